// Package registry is the type metadata provider for the framecodec engines.
//
// A Registry turns a Go type into a TypeInfo once and caches it. Engines never
// inspect struct fields at encode or decode time; they dispatch on the
// precomputed shape and walk the ordered member table.
//
// # Shapes
//
//	Shape                   Go types
//	──────────────────────────────────────────────────────────────
//	primitive               bool, ints, uints, floats, string
//	enum                    integer types registered with RegisterEnum
//	special                 time.Time, time.Duration, uuid.UUID, []byte
//	object                  structs
//	primitive collection    slices/arrays of primitives or specials
//	enum collection         slices/arrays of enums
//	object collection       slices/arrays of anything else
//	map                     map[string]T
//	interface               interface types (polymorphic slots)
//
// Pointers are described by a TypeInfo with Pointer set; Target follows them
// to the value's own description.
//
// # Members
//
// Exported struct fields become members. The struct tag
//
//	Name string `codec:"name,2,omitempty"`
//
// sets the member name, its stable index and omit-empty behaviour. Without a
// codec tag the json tag name is used, then the field name. Indices default
// to the field's position among exported fields, starting at 1; index 0 is
// reserved as the object terminator on the binary wire.
//
// # Polymorphism
//
// Values stored in interface slots carry a type tag. RegisterType binds a Go
// type to a numeric id (binary) and a name (JSON). Ids below FirstUserID are
// reserved for the builtin dynamic types.
//
// # Thread Safety
//
// A Registry is safe for concurrent use. Registrations must happen before the
// affected types are first described.
package registry

package binary

import (
	ebinary "encoding/binary"

	"github.com/wippyai/framecodec/registry"
)

// IndexWidth selects how member indices are written.
type IndexWidth uint8

const (
	IndexVarint IndexWidth = 0
	Index8      IndexWidth = 1
	Index16     IndexWidth = 2
	Index32     IndexWidth = 4
)

// TypeIDMode selects when type ids are written.
type TypeIDMode uint8

const (
	// TypeIDsPolymorphic writes ids only for values in interface slots.
	TypeIDsPolymorphic TypeIDMode = iota
	// TypeIDsAlways writes ids for every registered value.
	TypeIDsAlways
)

// Options configures encoders and decoders.
type Options struct {
	Registry  *registry.Registry
	ByteOrder ebinary.ByteOrder

	IndexWidth IndexWidth
	TypeIDs    TypeIDMode

	// EnumAsName writes enums as names instead of ordinals. Decoders accept
	// both regardless.
	EnumAsName bool

	// SkipUnknownTypes leaves interface slots nil when their type id is not
	// registered instead of failing.
	SkipUnknownTypes bool

	MaxDepth            int
	MaxCollectionLength int
	MaxStringSize       int
}

// DefaultOptions returns the default configuration.
func DefaultOptions() Options {
	return Options{
		Registry:            registry.Default(),
		ByteOrder:           ebinary.LittleEndian,
		IndexWidth:          IndexVarint,
		TypeIDs:             TypeIDsPolymorphic,
		MaxDepth:            64,
		MaxCollectionLength: 1 << 20,
		MaxStringSize:       16 << 20,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.Registry == nil {
		o.Registry = d.Registry
	}
	if o.ByteOrder == nil {
		o.ByteOrder = d.ByteOrder
	}
	if o.MaxDepth <= 0 {
		o.MaxDepth = d.MaxDepth
	}
	if o.MaxCollectionLength <= 0 {
		o.MaxCollectionLength = d.MaxCollectionLength
	}
	if o.MaxStringSize <= 0 {
		o.MaxStringSize = d.MaxStringSize
	}
	return o
}

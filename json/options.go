package json

import (
	"github.com/wippyai/framecodec/registry"
)

// Encoding selects the character encoding of documents handled by Codec.
// Engines always work on UTF-8; the facade transcodes at the edges.
type Encoding uint8

const (
	UTF8 Encoding = iota
	UTF16LE
	UTF16BE
)

func (e Encoding) String() string {
	switch e {
	case UTF16LE:
		return "utf-16le"
	case UTF16BE:
		return "utf-16be"
	}
	return "utf-8"
}

// TypeTagMode selects when type tags are written.
type TypeTagMode uint8

const (
	// TypeTagsPolymorphic tags values held in interface slots.
	TypeTagsPolymorphic TypeTagMode = iota
	// TypeTagsAlways also tags registered objects in declared slots.
	// Scalars, enums and collections outside interface slots stay bare.
	TypeTagsAlways
	// TypeTagsNever writes no tags. Polymorphic values cannot be read back.
	TypeTagsNever
)

// Options configures encoders and decoders.
type Options struct {
	Registry *registry.Registry

	// Indent is repeated once per nesting level. Empty means compact output.
	Indent string

	// EnumAsName writes enums as names instead of ordinals. Decoders accept
	// both regardless.
	EnumAsName bool

	TypeTags TypeTagMode
	TypeKey  string
	ValueKey string

	// StrictNull rejects null for non-nullable slots instead of leaving the
	// zero value.
	StrictNull bool

	// Nameless reads and writes a slice root as a bare sequence of values.
	Nameless bool

	Encoding Encoding

	MaxDepth      int
	MaxStringSize int
}

// DefaultOptions returns the default configuration.
func DefaultOptions() Options {
	return Options{
		Registry:      registry.Default(),
		EnumAsName:    true,
		TypeTags:      TypeTagsPolymorphic,
		TypeKey:       "$type",
		ValueKey:      "$value",
		Encoding:      UTF8,
		MaxDepth:      64,
		MaxStringSize: 16 << 20,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.Registry == nil {
		o.Registry = d.Registry
	}
	if o.TypeKey == "" {
		o.TypeKey = d.TypeKey
	}
	if o.ValueKey == "" {
		o.ValueKey = d.ValueKey
	}
	if o.MaxDepth <= 0 {
		o.MaxDepth = d.MaxDepth
	}
	if o.MaxStringSize <= 0 {
		o.MaxStringSize = d.MaxStringSize
	}
	return o
}

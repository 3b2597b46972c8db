package binary

import (
	"github.com/wippyai/framecodec/registry"
)

// WireType is the encoding of a value's payload.
type WireType uint8

const (
	WirePairs WireType = iota
	WireVarint
	WireUvarint
	WireFixed32
	WireFixed64
	WireBytes
	WireMembers
	WireSequence
)

var wireNames = [...]string{
	WirePairs:    "pairs",
	WireVarint:   "varint",
	WireUvarint:  "uvarint",
	WireFixed32:  "fixed32",
	WireFixed64:  "fixed64",
	WireBytes:    "bytes",
	WireMembers:  "members",
	WireSequence: "sequence",
}

func (w WireType) String() string {
	if int(w) < len(wireNames) {
		return wireNames[w]
	}
	return "unknown"
}

const (
	flagNull    byte = 0x00
	flagPresent byte = 0x01

	typeIDFlag byte = 0x08
	wireMask   byte = 0x07
)

func makeTag(shape registry.Shape, wire WireType, hasID bool) byte {
	b := byte(shape)<<4 | byte(wire)
	if hasID {
		b |= typeIDFlag
	}
	return b
}

// splitTag unpacks a tag byte. ok is false for bytes that are not tags.
func splitTag(b byte) (shape registry.Shape, wire WireType, hasID, ok bool) {
	shape = registry.Shape(b >> 4)
	wire = WireType(b & wireMask)
	hasID = b&typeIDFlag != 0
	if shape < registry.ShapePrimitive || shape > registry.ShapeMap {
		return 0, 0, false, false
	}
	return shape, wire, hasID, wireFits(shape, wire)
}

func wireFits(shape registry.Shape, wire WireType) bool {
	switch shape {
	case registry.ShapeObject:
		return wire == WireMembers
	case registry.ShapeMap:
		return wire == WirePairs
	case registry.ShapePrimitiveCollection, registry.ShapeEnumCollection, registry.ShapeObjectCollection:
		return wire == WireSequence
	case registry.ShapeEnum:
		return wire == WireVarint || wire == WireBytes
	}
	return wire >= WireVarint && wire <= WireBytes
}

// wireFor returns the wire type used to write values described by ti.
func wireFor(ti *registry.TypeInfo, opts *Options) WireType {
	switch ti.Shape {
	case registry.ShapeEnum:
		if opts.EnumAsName {
			return WireBytes
		}
		return WireVarint
	case registry.ShapeObject:
		return WireMembers
	case registry.ShapeMap:
		return WirePairs
	case registry.ShapePrimitiveCollection, registry.ShapeEnumCollection, registry.ShapeObjectCollection:
		return WireSequence
	}

	switch ti.Kind {
	case registry.KindBool, registry.KindUint:
		return WireUvarint
	case registry.KindInt, registry.KindDuration:
		return WireVarint
	case registry.KindFloat32:
		return WireFixed32
	case registry.KindFloat64:
		return WireFixed64
	}
	return WireBytes
}

func tagString(shape registry.Shape, wire WireType) string {
	return shape.String() + "/" + wire.String()
}

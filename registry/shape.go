package registry

// Shape is the structural category of a value.
type Shape uint8

const (
	ShapeInvalid Shape = iota
	ShapePrimitive
	ShapeEnum
	ShapeSpecial
	ShapeObject
	ShapePrimitiveCollection
	ShapeEnumCollection
	ShapeObjectCollection
	ShapeMap
	ShapeInterface
)

var shapeNames = [...]string{
	ShapeInvalid:             "invalid",
	ShapePrimitive:           "primitive",
	ShapeEnum:                "enum",
	ShapeSpecial:             "special",
	ShapeObject:              "object",
	ShapePrimitiveCollection: "primitive-collection",
	ShapeEnumCollection:      "enum-collection",
	ShapeObjectCollection:    "object-collection",
	ShapeMap:                 "map",
	ShapeInterface:           "interface",
}

func (s Shape) String() string {
	if int(s) < len(shapeNames) {
		return shapeNames[s]
	}
	return "unknown"
}

// IsCollection reports whether s is one of the collection shapes.
func (s Shape) IsCollection() bool {
	return s == ShapePrimitiveCollection || s == ShapeEnumCollection || s == ShapeObjectCollection
}

// IsScalar reports whether values of shape s carry no nested values.
func (s Shape) IsScalar() bool {
	return s == ShapePrimitive || s == ShapeEnum || s == ShapeSpecial
}

// Kind identifies the scalar representation of primitive, enum and special shapes.
type Kind uint8

const (
	KindNone Kind = iota
	KindBool
	KindInt
	KindUint
	KindFloat32
	KindFloat64
	KindString
	KindTime
	KindDuration
	KindUUID
	KindBytes
)

var kindNames = [...]string{
	KindNone:     "none",
	KindBool:     "bool",
	KindInt:      "int",
	KindUint:     "uint",
	KindFloat32:  "float32",
	KindFloat64:  "float64",
	KindString:   "string",
	KindTime:     "time",
	KindDuration: "duration",
	KindUUID:     "uuid",
	KindBytes:    "bytes",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "unknown"
}

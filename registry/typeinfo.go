package registry

import (
	"reflect"
	"strings"
)

// TypeInfo is the precomputed description of a Go type.
// It is immutable once returned by Describe.
type TypeInfo struct {
	Type  reflect.Type
	Elem  *TypeInfo // pointer target, collection element or map value
	Enum  *EnumInfo
	Shape Shape
	Kind  Kind

	// Members are ordered by Index.
	Members []*Member

	// ArrayLen is the length of a fixed-size array, zero otherwise.
	ArrayLen int
	Pointer  bool

	byIndex map[uint32]*Member
	byName  map[string]*Member
	byFold  map[string]*Member
}

// Target follows pointers to the description of the pointed-to value.
func (t *TypeInfo) Target() *TypeInfo {
	for t.Pointer {
		t = t.Elem
	}
	return t
}

// Nullable reports whether the wire form of t carries a null flag.
func (t *TypeInfo) Nullable() bool {
	switch t.Type.Kind() {
	case reflect.Pointer, reflect.Interface, reflect.Slice, reflect.Map:
		return true
	}
	return false
}

// Wrap converts v, a value of the type Target describes, into a value
// assignable to t: pointers are allocated, and a value whose type only
// implements an interface through its pointer is boxed.
func (t *TypeInfo) Wrap(v reflect.Value) reflect.Value {
	if !v.IsValid() {
		return v
	}
	if t.Pointer {
		inner := t.Elem.Wrap(v)
		p := reflect.New(t.Elem.Type)
		p.Elem().Set(inner)
		return p
	}
	if t.Shape == ShapeInterface && !v.Type().AssignableTo(t.Type) {
		p := reflect.New(v.Type())
		p.Elem().Set(v)
		return p
	}
	return v
}

// MemberByIndex returns the member with the given wire index.
func (t *TypeInfo) MemberByIndex(index uint32) (*Member, bool) {
	m, ok := t.byIndex[index]
	return m, ok
}

// MemberByName returns the member with the given name, trying an exact match
// before a case-insensitive one.
func (t *TypeInfo) MemberByName(name string) (*Member, bool) {
	if m, ok := t.byName[name]; ok {
		return m, true
	}
	m, ok := t.byFold[strings.ToLower(name)]
	return m, ok
}

func (t *TypeInfo) String() string {
	if t.Pointer {
		return "*" + t.Elem.String()
	}
	return t.Shape.String() + "(" + t.Type.String() + ")"
}

// Member is one serialized struct field.
type Member struct {
	Type      *TypeInfo
	Name      string
	Field     []int
	Index     uint32
	OmitEmpty bool
}

// Get returns the member's field of the struct value obj.
func (m *Member) Get(obj reflect.Value) reflect.Value {
	return obj.FieldByIndex(m.Field)
}

// Set stores v into the member's field of the addressable struct value obj.
func (m *Member) Set(obj, v reflect.Value) {
	f := obj.FieldByIndex(m.Field)
	if !v.IsValid() {
		f.SetZero()
		return
	}
	f.Set(v)
}

// EnumInfo maps enum ordinals to names.
type EnumInfo struct {
	Names    []string
	ordinals map[string]int64
	folded   map[string]int64
}

func newEnumInfo(names []string) *EnumInfo {
	e := &EnumInfo{
		Names:    names,
		ordinals: make(map[string]int64, len(names)),
		folded:   make(map[string]int64, len(names)),
	}
	for i, n := range names {
		e.ordinals[n] = int64(i)
		e.folded[strings.ToLower(n)] = int64(i)
	}
	return e
}

// Name returns the name of ordinal.
func (e *EnumInfo) Name(ordinal int64) (string, bool) {
	if ordinal < 0 || ordinal >= int64(len(e.Names)) {
		return "", false
	}
	return e.Names[ordinal], true
}

// Ordinal returns the ordinal for name, matching case-insensitively when
// there is no exact match.
func (e *EnumInfo) Ordinal(name string) (int64, bool) {
	if o, ok := e.ordinals[name]; ok {
		return o, true
	}
	o, ok := e.folded[strings.ToLower(name)]
	return o, ok
}

// Valid reports whether ordinal names a declared value.
func (e *EnumInfo) Valid(ordinal int64) bool {
	return ordinal >= 0 && ordinal < int64(len(e.Names))
}

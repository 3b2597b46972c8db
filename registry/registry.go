package registry

import (
	"reflect"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"github.com/wippyai/framecodec/errors"
)

// FirstUserID is the lowest type id available to RegisterType.
const FirstUserID = 32

var (
	timeType     = reflect.TypeFor[time.Time]()
	durationType = reflect.TypeFor[time.Duration]()
	uuidType     = reflect.TypeFor[uuid.UUID]()
)

// Builtin polymorphic type ids. They cover every value the dynamic decoders
// produce, so anything decoded into an `any` slot can be encoded again.
const (
	IDString   uint32 = 1
	IDBool     uint32 = 2
	IDInt      uint32 = 3
	IDInt64    uint32 = 4
	IDUint64   uint32 = 5
	IDFloat64  uint32 = 6
	IDList     uint32 = 7
	IDMap      uint32 = 8
	IDBytes    uint32 = 9
	IDTime     uint32 = 10
	IDUUID     uint32 = 11
	IDDuration uint32 = 12
)

var builtins = []struct {
	id   uint32
	name string
	typ  reflect.Type
}{
	{IDString, "string", reflect.TypeFor[string]()},
	{IDBool, "bool", reflect.TypeFor[bool]()},
	{IDInt, "int", reflect.TypeFor[int]()},
	{IDInt64, "int64", reflect.TypeFor[int64]()},
	{IDUint64, "uint64", reflect.TypeFor[uint64]()},
	{IDFloat64, "float64", reflect.TypeFor[float64]()},
	{IDList, "list", reflect.TypeFor[[]any]()},
	{IDMap, "map", reflect.TypeFor[map[string]any]()},
	{IDBytes, "bytes", reflect.TypeFor[[]byte]()},
	{IDTime, "time", timeType},
	{IDUUID, "uuid", uuidType},
	{IDDuration, "duration", durationType},
}

// Registry describes Go types for the codec engines and maps polymorphic
// type ids and names to Go types.
type Registry struct {
	cache   sync.Map // reflect.Type -> *TypeInfo
	buildMu sync.Mutex

	mu     sync.RWMutex
	enums  map[reflect.Type][]string
	byID   map[uint32]reflect.Type
	byName map[string]reflect.Type
	ids    map[reflect.Type]uint32
	names  map[reflect.Type]string
}

// New returns a registry holding only the builtin types.
func New() *Registry {
	r := &Registry{
		enums:  make(map[reflect.Type][]string),
		byID:   make(map[uint32]reflect.Type),
		byName: make(map[string]reflect.Type),
		ids:    make(map[reflect.Type]uint32),
		names:  make(map[reflect.Type]string),
	}
	for _, b := range builtins {
		r.bind(b.id, b.name, b.typ)
	}
	return r
}

var defaultRegistry = New()

// Default returns the process-wide registry used when options carry none.
func Default() *Registry {
	return defaultRegistry
}

func (r *Registry) bind(id uint32, name string, t reflect.Type) {
	r.byID[id] = t
	r.byName[name] = t
	r.ids[t] = id
	r.names[t] = name
}

// RegisterType binds t to a polymorphic id and name. The id must be at least
// FirstUserID; neither id, name nor type may already be bound.
func (r *Registry) RegisterType(id uint32, name string, t reflect.Type) error {
	if t == nil {
		return errors.New(errors.PhaseRegister, errors.KindNilPointer).
			Detail("type cannot be nil").
			Build()
	}
	if id < FirstUserID {
		return errors.Registration(t.String(), "type id "+strconv.FormatUint(uint64(id), 10)+" is reserved")
	}
	if name == "" {
		return errors.Registration(t.String(), "type name cannot be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if prev, ok := r.byID[id]; ok {
		return errors.Registration(t.String(), "type id "+strconv.FormatUint(uint64(id), 10)+" already bound to "+prev.String())
	}
	if prev, ok := r.byName[name]; ok {
		return errors.Registration(t.String(), "type name "+strconv.Quote(name)+" already bound to "+prev.String())
	}
	if _, ok := r.ids[t]; ok {
		return errors.Registration(t.String(), "type already registered")
	}
	r.bind(id, name, t)
	return nil
}

// Register is RegisterType for the type parameter.
func Register[T any](r *Registry, id uint32, name string) error {
	return r.RegisterType(id, name, reflect.TypeFor[T]())
}

// RegisterEnum declares t as an enum whose ordinal i is named names[i].
// It must be called before t is first described.
func (r *Registry) RegisterEnum(t reflect.Type, names ...string) error {
	if t == nil {
		return errors.New(errors.PhaseRegister, errors.KindNilPointer).
			Detail("type cannot be nil").
			Build()
	}
	if !isInteger(t.Kind()) {
		return errors.Registration(t.String(), "enum must have an integer underlying type")
	}
	if len(names) == 0 {
		return errors.Registration(t.String(), "enum needs at least one name")
	}
	if dup, ok := firstDuplicate(names); ok {
		return errors.Registration(t.String(), "duplicate enum name "+strconv.Quote(dup))
	}
	if _, ok := r.cache.Load(t); ok {
		return errors.Registration(t.String(), "type was described before it was registered as an enum")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.enums[t]; ok {
		return errors.Registration(t.String(), "enum already registered")
	}
	r.enums[t] = slices.Clone(names)
	return nil
}

// Integer is the constraint for enum types.
type Integer interface {
	~int | ~int8 | ~int16 | ~int32 | ~int64 | ~uint | ~uint8 | ~uint16 | ~uint32 | ~uint64
}

// Enum is RegisterEnum for the type parameter.
func Enum[T Integer](r *Registry, names ...string) error {
	return r.RegisterEnum(reflect.TypeFor[T](), names...)
}

// ByID returns the type bound to a polymorphic id.
func (r *Registry) ByID(id uint32) (reflect.Type, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.byID[id]
	return t, ok
}

// ByName returns the type bound to a polymorphic name.
func (r *Registry) ByName(name string) (reflect.Type, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.byName[name]
	return t, ok
}

// IDOf returns the polymorphic id and name bound to t.
func (r *Registry) IDOf(t reflect.Type) (uint32, string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.ids[t]
	if !ok {
		return 0, "", false
	}
	return id, r.names[t], true
}

// Describe returns the cached description of t, building it on first use.
func (r *Registry) Describe(t reflect.Type) (*TypeInfo, error) {
	if t == nil {
		return nil, errors.New(errors.PhaseRegister, errors.KindNilPointer).
			Detail("type cannot be nil").
			Build()
	}
	if cached, ok := r.cache.Load(t); ok {
		return cached.(*TypeInfo), nil
	}

	r.buildMu.Lock()
	defer r.buildMu.Unlock()

	building := make(map[reflect.Type]*TypeInfo)
	ti, err := r.build(t, building, nil)
	if err != nil {
		return nil, err
	}
	for typ, info := range building {
		r.cache.Store(typ, info)
	}
	return ti, nil
}

// MustDescribe is Describe for types known to be valid. It panics on error.
func (r *Registry) MustDescribe(t reflect.Type) *TypeInfo {
	ti, err := r.Describe(t)
	if err != nil {
		panic(err)
	}
	return ti
}

func (r *Registry) build(t reflect.Type, building map[reflect.Type]*TypeInfo, path []string) (*TypeInfo, error) {
	if cached, ok := r.cache.Load(t); ok {
		return cached.(*TypeInfo), nil
	}
	if ti, ok := building[t]; ok {
		return ti, nil
	}

	ti := &TypeInfo{Type: t}
	building[t] = ti

	switch t {
	case timeType:
		ti.Shape, ti.Kind = ShapeSpecial, KindTime
		return ti, nil
	case durationType:
		ti.Shape, ti.Kind = ShapeSpecial, KindDuration
		return ti, nil
	case uuidType:
		ti.Shape, ti.Kind = ShapeSpecial, KindUUID
		return ti, nil
	}

	r.mu.RLock()
	names, isEnum := r.enums[t]
	r.mu.RUnlock()
	if isEnum {
		ti.Shape = ShapeEnum
		ti.Kind = integerKind(t.Kind())
		ti.Enum = newEnumInfo(names)
		return ti, nil
	}

	switch k := t.Kind(); {
	case k == reflect.Bool:
		ti.Shape, ti.Kind = ShapePrimitive, KindBool
	case isInteger(k):
		ti.Shape, ti.Kind = ShapePrimitive, integerKind(k)
	case k == reflect.Float32:
		ti.Shape, ti.Kind = ShapePrimitive, KindFloat32
	case k == reflect.Float64:
		ti.Shape, ti.Kind = ShapePrimitive, KindFloat64
	case k == reflect.String:
		ti.Shape, ti.Kind = ShapePrimitive, KindString
	case k == reflect.Interface:
		ti.Shape = ShapeInterface
	case k == reflect.Pointer:
		ti.Pointer = true
		elem, err := r.build(t.Elem(), building, path)
		if err != nil {
			return nil, err
		}
		ti.Elem = elem
	case k == reflect.Slice && t.Elem().Kind() == reflect.Uint8 && !r.isEnum(t.Elem()):
		ti.Shape, ti.Kind = ShapeSpecial, KindBytes
	case k == reflect.Slice || k == reflect.Array:
		if k == reflect.Array {
			ti.ArrayLen = t.Len()
		}
		elem, err := r.build(t.Elem(), building, append(path, "[]"))
		if err != nil {
			return nil, err
		}
		ti.Elem = elem
		ti.Shape = collectionShape(elem.Target())
	case k == reflect.Map:
		if t.Key().Kind() != reflect.String {
			return nil, errors.New(errors.PhaseRegister, errors.KindUnsupported).
				Path(path...).
				GoType(t.String()).
				Detail("map keys must be strings").
				Build()
		}
		ti.Shape = ShapeMap
		elem, err := r.build(t.Elem(), building, append(path, "{}"))
		if err != nil {
			return nil, err
		}
		ti.Elem = elem
	case k == reflect.Struct:
		// Set before members so recursive references see an object.
		ti.Shape = ShapeObject
		if err := r.buildMembers(ti, building, path); err != nil {
			return nil, err
		}
	default:
		return nil, errors.New(errors.PhaseRegister, errors.KindUnsupported).
			Path(path...).
			GoType(t.String()).
			Detail("unsupported kind %s", k).
			Build()
	}
	return ti, nil
}

func (r *Registry) isEnum(t reflect.Type) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.enums[t]
	return ok
}

func (r *Registry) buildMembers(ti *TypeInfo, building map[reflect.Type]*TypeInfo, path []string) error {
	t := ti.Type
	seen := make(map[uint32]string)
	pos := 0

	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		tag, skip := parseTag(f)
		if skip {
			continue
		}
		pos++

		index := tag.index
		if index == 0 {
			index = uint32(pos)
		}
		if prev, dup := seen[index]; dup {
			return errors.New(errors.PhaseRegister, errors.KindRegistration).
				Path(path...).
				GoType(t.String()).
				Detail("members %s and %s share index %d", prev, f.Name, index).
				Build()
		}
		seen[index] = f.Name

		mt, err := r.build(f.Type, building, append(path, tag.name))
		if err != nil {
			return err
		}
		ti.Members = append(ti.Members, &Member{
			Index:     index,
			Name:      tag.name,
			Field:     f.Index,
			Type:      mt,
			OmitEmpty: tag.omitEmpty,
		})
	}

	slices.SortFunc(ti.Members, func(a, b *Member) int {
		return int(a.Index) - int(b.Index)
	})
	ti.byIndex = lo.KeyBy(ti.Members, func(m *Member) uint32 { return m.Index })
	ti.byName = lo.KeyBy(ti.Members, func(m *Member) string { return m.Name })
	ti.byFold = lo.KeyBy(ti.Members, func(m *Member) string { return strings.ToLower(m.Name) })
	return nil
}

type fieldTag struct {
	name      string
	index     uint32
	omitEmpty bool
}

// parseTag reads `codec:"name,index,omitempty"`, falling back to the json
// tag name and then the field name.
func parseTag(f reflect.StructField) (fieldTag, bool) {
	tag := fieldTag{name: f.Name}

	raw, ok := f.Tag.Lookup("codec")
	if !ok {
		if js, ok := f.Tag.Lookup("json"); ok {
			name, opts, _ := strings.Cut(js, ",")
			if name == "-" && opts == "" {
				return tag, true
			}
			if name != "" {
				tag.name = name
			}
			tag.omitEmpty = slices.Contains(strings.Split(opts, ","), "omitempty")
		}
		return tag, false
	}
	if raw == "-" {
		return tag, true
	}

	parts := strings.Split(raw, ",")
	if parts[0] != "" {
		tag.name = parts[0]
	}
	for _, p := range parts[1:] {
		if p == "omitempty" {
			tag.omitEmpty = true
			continue
		}
		if n, err := strconv.ParseUint(p, 10, 32); err == nil {
			tag.index = uint32(n)
		}
	}
	return tag, false
}

func isInteger(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return true
	}
	return false
}

func integerKind(k reflect.Kind) Kind {
	switch k {
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return KindUint
	}
	return KindInt
}

func collectionShape(elem *TypeInfo) Shape {
	switch elem.Shape {
	case ShapePrimitive, ShapeSpecial:
		return ShapePrimitiveCollection
	case ShapeEnum:
		return ShapeEnumCollection
	}
	return ShapeObjectCollection
}

func firstDuplicate(names []string) (string, bool) {
	dups := lo.FindDuplicates(names)
	if len(dups) == 0 {
		return "", false
	}
	return dups[0], true
}

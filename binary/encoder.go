package binary

import (
	"math"
	"reflect"
	"slices"
	"strconv"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/google/uuid"

	"github.com/wippyai/framecodec/errors"
	"github.com/wippyai/framecodec/internal/reflectx"
	"github.com/wippyai/framecodec/internal/leb128"
	"github.com/wippyai/framecodec/registry"
	"github.com/wippyai/framecodec/stack"
)

// writeFrame is one encoding mode. emit appends the next token of the value
// to the encoder's pending output and advances, pushes or pops.
type writeFrame interface {
	emit(e *Encoder) error
	mode() string
}

// Encoder writes a Go value into caller-sized buffers.
type Encoder struct {
	opts    Options
	err     error
	pending []byte
	pos     int
	st      stack.State[writeFrame]
}

// NewEncoder returns an encoder for v. Pointers at the root are followed; a
// nil root pointer is an error.
func NewEncoder(v any, opts Options) (*Encoder, error) {
	opts = opts.withDefaults()

	rv := reflect.ValueOf(v)
	if !rv.IsValid() {
		rv = reflect.Zero(reflect.TypeFor[any]())
	}
	rv, ok := reflectx.Indirect(rv)
	if !ok {
		return nil, errors.NilPointer(errors.PhaseEncode, nil, rv.Type().String())
	}

	ti, err := opts.Registry.Describe(rv.Type())
	if err != nil {
		return nil, err
	}
	e := &Encoder{opts: opts}
	e.st.Reset(&valueWriter{decl: ti, v: rv})
	return e, nil
}

// Encode writes as much of the value as fits into p.
func (e *Encoder) Encode(p []byte) (int, error) {
	if e.err != nil {
		return 0, e.err
	}

	n := 0
	for {
		if e.pos < len(e.pending) {
			c := copy(p[n:], e.pending[e.pos:])
			n += c
			e.pos += c
			e.st.Offset += c
			if e.pos < len(e.pending) {
				e.st.Suspend(len(e.pending) - e.pos)
				return n, nil
			}
			e.pending, e.pos = e.pending[:0], 0
		}
		if e.st.Ended() {
			e.st.BytesNeeded = 0
			return n, nil
		}
		if n == len(p) {
			e.st.Suspend(1)
			return n, nil
		}
		if err := e.st.Current().emit(e); err != nil {
			if be, ok := err.(*errors.Error); ok && be.Offset == errors.NoOffset {
				be.Offset = e.st.Offset + len(e.pending) - e.pos
			}
			e.err = err
			Logger().Debug("encode failed", zap.Error(err), zap.Int("depth", e.st.Depth()))
			return n, err
		}
	}
}

// Done reports whether the whole value has been written.
func (e *Encoder) Done() bool {
	return e.st.Ended() && e.pos == len(e.pending)
}

// BytesNeeded is the number of produced bytes still waiting for buffer
// space, or 1 when nothing is pending but the value is incomplete.
func (e *Encoder) BytesNeeded() int {
	if e.Done() {
		return 0
	}
	return e.st.BytesNeeded
}

// Depth is the current nesting depth.
func (e *Encoder) Depth() int { return e.st.Depth() }

// Mode names the frame in progress.
func (e *Encoder) Mode() string {
	if e.st.Ended() {
		return "done"
	}
	return e.st.Current().mode()
}

func (e *Encoder) push(f writeFrame) error {
	if e.st.Depth() >= e.opts.MaxDepth {
		return errors.Overflow(errors.PhaseEncode, nil, e.st.Depth()+1, "max depth "+strconv.Itoa(e.opts.MaxDepth))
	}
	e.st.Push(f)
	return nil
}

func (e *Encoder) pop() {
	e.st.Pop(stack.Result{})
}

func (e *Encoder) appendBytes(b []byte) {
	e.pending = slices.Grow(e.pending, leb128.SizeUvarint(uint64(len(b)))+len(b))
	e.pending = leb128.AppendUvarint(e.pending, uint64(len(b)))
	e.pending = append(e.pending, b...)
}

func (e *Encoder) appendIndex(idx uint32) {
	order := e.opts.ByteOrder
	switch e.opts.IndexWidth {
	case Index8:
		e.pending = append(e.pending, byte(idx))
	case Index16:
		var b [2]byte
		order.PutUint16(b[:], uint16(idx))
		e.pending = append(e.pending, b[:]...)
	case Index32:
		var b [4]byte
		order.PutUint32(b[:], idx)
		e.pending = append(e.pending, b[:]...)
	default:
		e.pending = leb128.AppendUvarint(e.pending, uint64(idx))
	}
}

func (e *Encoder) indexFits(idx uint32) bool {
	switch e.opts.IndexWidth {
	case Index8:
		return idx <= math.MaxUint8
	case Index16:
		return idx <= math.MaxUint16
	}
	return true
}

// isNull reports whether v is nil anywhere along its pointer chain.
func isNull(v reflect.Value) bool {
	for {
		switch v.Kind() {
		case reflect.Pointer, reflect.Interface:
			if v.IsNil() {
				return true
			}
			v = v.Elem()
		case reflect.Slice, reflect.Map:
			return v.IsNil()
		default:
			return false
		}
	}
}

// concrete strips pointers and interfaces from a non-null v.
func concrete(v reflect.Value) reflect.Value {
	for v.Kind() == reflect.Pointer || v.Kind() == reflect.Interface {
		v = v.Elem()
	}
	return v
}

// valueWriter writes the null flag, tag, type id and, for scalars, the
// payload of one value. Composite payloads continue in their own frame.
type valueWriter struct {
	decl *registry.TypeInfo
	v    reflect.Value
}

func (f *valueWriter) mode() string { return "value" }

func (f *valueWriter) emit(e *Encoder) error {
	if f.decl.Nullable() {
		if isNull(f.v) {
			e.pending = append(e.pending, flagNull)
			e.pop()
			return nil
		}
		e.pending = append(e.pending, flagPresent)
	}

	v := concrete(f.v)
	target := f.decl.Target()
	hasID := false
	var id uint32

	if target.Shape == registry.ShapeInterface {
		ti, err := e.opts.Registry.Describe(v.Type())
		if err != nil {
			return err
		}
		tid, _, ok := e.opts.Registry.IDOf(v.Type())
		if !ok {
			return errors.New(errors.PhaseEncode, errors.KindUnsupported).
				GoType(v.Type().String()).
				Detail("type has no registered id for polymorphic encoding").
				Build()
		}
		target, hasID, id = ti, true, tid
	} else if e.opts.TypeIDs == TypeIDsAlways {
		id, _, hasID = e.opts.Registry.IDOf(target.Type)
	}

	wire := wireFor(target, &e.opts)
	e.pending = append(e.pending, makeTag(target.Shape, wire, hasID))
	if hasID {
		e.pending = leb128.AppendUvarint(e.pending, uint64(id))
	}

	switch target.Shape {
	case registry.ShapeObject:
		e.st.Replace(&objectWriter{ti: target, v: v})
		return nil
	case registry.ShapePrimitiveCollection, registry.ShapeEnumCollection, registry.ShapeObjectCollection:
		if v.Len() > e.opts.MaxCollectionLength {
			return errors.Overflow(errors.PhaseEncode, nil, v.Len(), "max collection length "+strconv.Itoa(e.opts.MaxCollectionLength))
		}
		e.pending = leb128.AppendUvarint(e.pending, uint64(v.Len()))
		e.st.Replace(&collectionWriter{ti: target, v: v})
		return nil
	case registry.ShapeMap:
		keys := v.MapKeys()
		slices.SortFunc(keys, func(a, b reflect.Value) int {
			switch {
			case a.String() < b.String():
				return -1
			case a.String() > b.String():
				return 1
			}
			return 0
		})
		e.pending = leb128.AppendUvarint(e.pending, uint64(len(keys)))
		key, err := e.opts.Registry.Describe(v.Type().Key())
		if err != nil {
			return err
		}
		e.st.Replace(&mapWriter{ti: target, key: key, v: v, keys: keys})
		return nil
	}

	if err := e.appendScalar(target, wire, v); err != nil {
		return err
	}
	e.pop()
	return nil
}

func (e *Encoder) appendScalar(ti *registry.TypeInfo, wire WireType, v reflect.Value) error {
	if ti.Shape == registry.ShapeEnum {
		ord := enumOrdinal(ti, v)
		name, ok := ti.Enum.Name(ord)
		if !ok {
			return errors.InvalidEnum(errors.PhaseEncode, nil, ord, ti.Type.String())
		}
		if wire == WireBytes {
			e.appendBytes([]byte(name))
		} else {
			e.pending = leb128.AppendVarint(e.pending, ord)
		}
		return nil
	}

	switch ti.Kind {
	case registry.KindBool:
		b := uint64(0)
		if v.Bool() {
			b = 1
		}
		e.pending = leb128.AppendUvarint(e.pending, b)
	case registry.KindInt, registry.KindDuration:
		e.pending = leb128.AppendVarint(e.pending, v.Int())
	case registry.KindUint:
		e.pending = leb128.AppendUvarint(e.pending, v.Uint())
	case registry.KindFloat32:
		var b [4]byte
		e.opts.ByteOrder.PutUint32(b[:], math.Float32bits(float32(v.Float())))
		e.pending = append(e.pending, b[:]...)
	case registry.KindFloat64:
		var b [8]byte
		e.opts.ByteOrder.PutUint64(b[:], math.Float64bits(v.Float()))
		e.pending = append(e.pending, b[:]...)
	case registry.KindString:
		s := v.String()
		if len(s) > e.opts.MaxStringSize {
			return errors.Overflow(errors.PhaseEncode, nil, len(s), "max string size "+strconv.Itoa(e.opts.MaxStringSize))
		}
		if !utf8.ValidString(s) {
			return errors.InvalidUTF8(errors.PhaseEncode, nil, []byte(s))
		}
		e.appendBytes([]byte(s))
	case registry.KindBytes:
		b := v.Bytes()
		if len(b) > e.opts.MaxStringSize {
			return errors.Overflow(errors.PhaseEncode, nil, len(b), "max string size "+strconv.Itoa(e.opts.MaxStringSize))
		}
		e.appendBytes(b)
	case registry.KindTime:
		t := v.Interface().(interface{ MarshalBinary() ([]byte, error) })
		b, err := t.MarshalBinary()
		if err != nil {
			return errors.New(errors.PhaseEncode, errors.KindInvalidData).
				GoType(ti.Type.String()).
				Cause(err).
				Detail("time cannot be marshaled").
				Build()
		}
		e.appendBytes(b)
	case registry.KindUUID:
		u := v.Interface().(uuid.UUID)
		e.appendBytes(u[:])
	default:
		return errors.Unsupported(errors.PhaseEncode, "scalar kind "+ti.Kind.String())
	}
	return nil
}

func enumOrdinal(ti *registry.TypeInfo, v reflect.Value) int64 {
	if ti.Kind == registry.KindUint {
		u := v.Uint()
		if u > math.MaxInt64 {
			return -1
		}
		return int64(u)
	}
	return v.Int()
}

// objectWriter writes one (index, value) pair per step and the terminating
// index 0.
type objectWriter struct {
	ti *registry.TypeInfo
	v  reflect.Value
	i  int
}

func (f *objectWriter) mode() string { return "object" }

func (f *objectWriter) emit(e *Encoder) error {
	for f.i < len(f.ti.Members) {
		m := f.ti.Members[f.i]
		f.i++
		fv := m.Get(f.v)
		if m.OmitEmpty && fv.IsZero() {
			continue
		}
		if !e.indexFits(m.Index) {
			return errors.Overflow(errors.PhaseEncode, []string{m.Name}, m.Index, "member index width")
		}
		e.appendIndex(m.Index)
		return e.push(&valueWriter{decl: m.Type, v: fv})
	}
	e.appendIndex(0)
	e.pop()
	return nil
}

// collectionWriter writes one element per step.
type collectionWriter struct {
	ti *registry.TypeInfo
	v  reflect.Value
	i  int
}

func (f *collectionWriter) mode() string { return "collection" }

func (f *collectionWriter) emit(e *Encoder) error {
	if f.i == f.v.Len() {
		e.pop()
		return nil
	}
	elem := f.v.Index(f.i)
	f.i++
	return e.push(&valueWriter{decl: f.ti.Elem, v: elem})
}

// mapWriter writes keys and values alternately in sorted key order.
type mapWriter struct {
	ti    *registry.TypeInfo
	key   *registry.TypeInfo
	v     reflect.Value
	keys  []reflect.Value
	i     int
	value bool
}

func (f *mapWriter) mode() string { return "map" }

func (f *mapWriter) emit(e *Encoder) error {
	if f.i == len(f.keys) {
		e.pop()
		return nil
	}
	k := f.keys[f.i]
	if !f.value {
		f.value = true
		return e.push(&valueWriter{decl: f.key, v: k})
	}
	f.value = false
	f.i++
	return e.push(&valueWriter{decl: f.ti.Elem, v: f.v.MapIndex(k)})
}

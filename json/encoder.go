package json

import (
	"encoding/base64"
	"math"
	"reflect"
	"slices"
	"strconv"
	"time"
	"unicode/utf8"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/wippyai/framecodec/errors"
	"github.com/wippyai/framecodec/internal/reflectx"
	"github.com/wippyai/framecodec/registry"
	"github.com/wippyai/framecodec/stack"
)

// writeFrame is one encoding mode. emit appends the next token of the value
// to the encoder's pending output and advances, pushes or pops.
type writeFrame interface {
	emit(e *Encoder) error
	mode() string
}

// Encoder writes a Go value as JSON into caller-sized buffers.
type Encoder struct {
	opts    Options
	err     error
	pending []byte
	pos     int
	base    int
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
	if opts.Nameless && ti.Shape.IsCollection() && ti.Type.Kind() == reflect.Slice {
		e.st.Reset(&arrayWriter{ti: ti, v: rv, nameless: true})
		e.st.Nameless = true
		e.base = 1
		return e, nil
	}
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
			if je, ok := err.(*errors.Error); ok && je.Offset == errors.NoOffset {
				je.Offset = e.st.Offset + len(e.pending) - e.pos
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

// level is the indentation level of the members of the current frame.
func (e *Encoder) level() int { return e.st.Depth() - e.base }

func (e *Encoder) newline(level int) {
	if e.opts.Indent == "" {
		return
	}
	e.pending = append(e.pending, '\n')
	for range level {
		e.pending = append(e.pending, e.opts.Indent...)
	}
}

// key writes the separator, indentation and name of a member.
func (e *Encoder) key(first bool, name string) error {
	if !first {
		e.pending = append(e.pending, ',')
	}
	e.newline(e.level())
	if err := e.appendString(name); err != nil {
		return err
	}
	e.pending = append(e.pending, ':')
	if e.opts.Indent != "" {
		e.pending = append(e.pending, ' ')
	}
	return nil
}

func (e *Encoder) appendString(s string) error {
	if len(s) > e.opts.MaxStringSize {
		return errors.Overflow(errors.PhaseEncode, nil, len(s), "max string size "+strconv.Itoa(e.opts.MaxStringSize))
	}
	if !utf8.ValidString(s) {
		return errors.InvalidUTF8(errors.PhaseEncode, nil, []byte(s))
	}
	q, err := sonic.Marshal(s)
	if err != nil {
		return errors.Wrap(errors.PhaseEncode, errors.KindInvalidData, err, "string cannot be quoted")
	}
	e.pending = append(e.pending, q...)
	return nil
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

// valueWriter writes one value: null, a scalar, or the opening of a
// composite that continues in its own frame. bare suppresses the type tag
// for a value already wrapped by a taggedWriter.
type valueWriter struct {
	decl *registry.TypeInfo
	v    reflect.Value
	bare bool
}

func (f *valueWriter) mode() string { return "value" }

func (f *valueWriter) emit(e *Encoder) error {
	if isNull(f.v) {
		e.pending = append(e.pending, "null"...)
		e.pop()
		return nil
	}

	v := concrete(f.v)
	target := f.decl.Target()
	tag := ""

	if target.Shape == registry.ShapeInterface {
		polymorphic := target.Type.NumMethod() != 0
		ti, err := e.opts.Registry.Describe(v.Type())
		if err != nil {
			return err
		}
		target = ti
		if !f.bare && e.opts.TypeTags != TypeTagsNever {
			id, name, ok := e.opts.Registry.IDOf(v.Type())
			switch {
			case ok && id >= registry.FirstUserID:
				tag = name
			case !ok && polymorphic:
				return errors.New(errors.PhaseEncode, errors.KindUnsupported).
					GoType(v.Type().String()).
					Detail("type has no registered name for polymorphic encoding").
					Build()
			}
		}
	} else if !f.bare && e.opts.TypeTags == TypeTagsAlways && target.Shape == registry.ShapeObject {
		// Outside interface slots only objects carry the type key; the
		// decoder skips it there as an unknown member.
		if id, name, ok := e.opts.Registry.IDOf(target.Type); ok && id >= registry.FirstUserID {
			tag = name
		}
	}

	switch target.Shape {
	case registry.ShapeObject:
		e.st.Replace(&objectWriter{ti: target, v: v, tag: tag})
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
		e.st.Replace(&mapWriter{ti: target, v: v, keys: keys, tag: tag})
		return nil
	}

	if tag != "" {
		e.st.Replace(&taggedWriter{ti: target, v: v, tag: tag})
		return nil
	}
	if target.Shape.IsCollection() {
		e.st.Replace(&arrayWriter{ti: target, v: v})
		return nil
	}
	if err := e.appendScalar(target, v); err != nil {
		return err
	}
	e.pop()
	return nil
}

func (e *Encoder) appendScalar(ti *registry.TypeInfo, v reflect.Value) error {
	if ti.Shape == registry.ShapeEnum {
		ord := enumOrdinal(ti, v)
		name, ok := ti.Enum.Name(ord)
		if !ok {
			return errors.InvalidEnum(errors.PhaseEncode, nil, ord, ti.Type.String())
		}
		if e.opts.EnumAsName {
			return e.appendString(name)
		}
		e.pending = strconv.AppendInt(e.pending, ord, 10)
		return nil
	}

	switch ti.Kind {
	case registry.KindBool:
		e.pending = strconv.AppendBool(e.pending, v.Bool())
	case registry.KindInt:
		e.pending = strconv.AppendInt(e.pending, v.Int(), 10)
	case registry.KindUint:
		e.pending = strconv.AppendUint(e.pending, v.Uint(), 10)
	case registry.KindFloat32, registry.KindFloat64:
		x := v.Float()
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return errors.New(errors.PhaseEncode, errors.KindUnsupported).
				GoType(ti.Type.String()).
				Value(x).
				Detail("JSON has no representation for %v", x).
				Build()
		}
		bits := 64
		if ti.Kind == registry.KindFloat32 {
			bits = 32
		}
		e.pending = strconv.AppendFloat(e.pending, x, 'g', -1, bits)
	case registry.KindString:
		return e.appendString(v.String())
	case registry.KindBytes:
		return e.appendString(base64.StdEncoding.EncodeToString(v.Bytes()))
	case registry.KindTime:
		return e.appendString(v.Interface().(time.Time).Format(time.RFC3339Nano))
	case registry.KindDuration:
		return e.appendString(time.Duration(v.Int()).String())
	case registry.KindUUID:
		return e.appendString(v.Interface().(uuid.UUID).String())
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

// objectWriter writes the type tag, if any, then one member per step.
type objectWriter struct {
	ti     *registry.TypeInfo
	v      reflect.Value
	tag    string
	i      int
	n      int
	opened bool
}

func (f *objectWriter) mode() string { return "object" }

func (f *objectWriter) emit(e *Encoder) error {
	if !f.opened {
		f.opened = true
		e.pending = append(e.pending, '{')
		if f.tag == "" {
			return nil
		}
		f.n++
		if err := e.key(true, e.opts.TypeKey); err != nil {
			return err
		}
		return e.appendString(f.tag)
	}

	for f.i < len(f.ti.Members) {
		m := f.ti.Members[f.i]
		f.i++
		fv := m.Get(f.v)
		if m.OmitEmpty && fv.IsZero() {
			continue
		}
		if err := e.key(f.n == 0, m.Name); err != nil {
			return err
		}
		f.n++
		return e.push(&valueWriter{decl: m.Type, v: fv})
	}

	if f.n > 0 {
		e.newline(e.level() - 1)
	}
	e.pending = append(e.pending, '}')
	e.pop()
	return nil
}

// mapWriter writes one entry per step in sorted key order.
type mapWriter struct {
	ti     *registry.TypeInfo
	v      reflect.Value
	keys   []reflect.Value
	tag    string
	i      int
	n      int
	opened bool
}

func (f *mapWriter) mode() string { return "map" }

func (f *mapWriter) emit(e *Encoder) error {
	if !f.opened {
		f.opened = true
		e.pending = append(e.pending, '{')
		if f.tag == "" {
			return nil
		}
		f.n++
		if err := e.key(true, e.opts.TypeKey); err != nil {
			return err
		}
		return e.appendString(f.tag)
	}

	if f.i < len(f.keys) {
		k := f.keys[f.i]
		f.i++
		if err := e.key(f.n == 0, k.String()); err != nil {
			return err
		}
		f.n++
		return e.push(&valueWriter{decl: f.ti.Elem, v: f.v.MapIndex(k)})
	}

	if f.n > 0 {
		e.newline(e.level() - 1)
	}
	e.pending = append(e.pending, '}')
	e.pop()
	return nil
}

// arrayWriter writes one element per step. A nameless writer omits the
// brackets and ends every element with a newline.
type arrayWriter struct {
	ti       *registry.TypeInfo
	v        reflect.Value
	nameless bool
	i        int
	opened   bool
}

func (f *arrayWriter) mode() string {
	if f.nameless {
		return "array-nameless"
	}
	return "array"
}

func (f *arrayWriter) emit(e *Encoder) error {
	if f.nameless {
		if f.i > 0 {
			e.pending = append(e.pending, '\n')
		}
		if f.i == f.v.Len() {
			e.pop()
			return nil
		}
		f.i++
		return e.push(&valueWriter{decl: f.ti.Elem, v: f.v.Index(f.i - 1)})
	}

	if !f.opened {
		f.opened = true
		e.pending = append(e.pending, '[')
		return nil
	}
	if f.i == f.v.Len() {
		if f.i > 0 {
			e.newline(e.level() - 1)
		}
		e.pending = append(e.pending, ']')
		e.pop()
		return nil
	}
	if f.i > 0 {
		e.pending = append(e.pending, ',')
	}
	e.newline(e.level())
	f.i++
	return e.push(&valueWriter{decl: f.ti.Elem, v: f.v.Index(f.i - 1)})
}

// taggedWriter wraps a non-object value of a registered type as
// {"$type": name, "$value": v}.
type taggedWriter struct {
	ti     *registry.TypeInfo
	v      reflect.Value
	tag    string
	opened bool
}

func (f *taggedWriter) mode() string { return "tagged" }

func (f *taggedWriter) emit(e *Encoder) error {
	if !f.opened {
		f.opened = true
		e.pending = append(e.pending, '{')
		if err := e.key(true, e.opts.TypeKey); err != nil {
			return err
		}
		if err := e.appendString(f.tag); err != nil {
			return err
		}
		if err := e.key(false, e.opts.ValueKey); err != nil {
			return err
		}
		return e.push(&valueWriter{decl: f.ti, v: f.v, bare: true})
	}
	e.newline(e.level() - 1)
	e.pending = append(e.pending, '}')
	e.pop()
	return nil
}

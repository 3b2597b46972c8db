package binary

import (
	"math"
	"reflect"
	"strconv"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/wippyai/framecodec/errors"
	"github.com/wippyai/framecodec/internal/leb128"
	"github.com/wippyai/framecodec/internal/reflectx"
	"github.com/wippyai/framecodec/registry"
	"github.com/wippyai/framecodec/stack"
)

// readFrame is one decoding mode. step consumes a prefix of p and must either
// consume input, change its own state, push or pop a frame, or suspend.
type readFrame interface {
	step(d *Decoder, p []byte) (int, error)
	mode() string
	segment() string
}

// Decoder reconstructs a Go value from binary input fed in arbitrary chunks.
type Decoder struct {
	opts    Options
	root    *registry.TypeInfo
	anyInfo *registry.TypeInfo
	observe func(Event) error
	err     error
	st      stack.State[readFrame]
}

// NewDecoder returns a decoder for values of type t. Pointer types are
// described by their element type.
func NewDecoder(t reflect.Type, opts Options) (*Decoder, error) {
	opts = opts.withDefaults()
	if t == nil {
		t = reflect.TypeFor[any]()
	}
	ti, err := opts.Registry.Describe(reflectx.Deref(t))
	if err != nil {
		return nil, err
	}
	d := &Decoder{opts: opts, root: ti}
	d.Reset()
	return d, nil
}

// Reset prepares the decoder for a new value of the same type.
func (d *Decoder) Reset() {
	d.err = nil
	d.st.Reset(&valueFrame{decl: d.root})
}

// Feed consumes as much of p as it can. The caller must keep p[n:] and pass
// it again, followed by new input, on the next call.
func (d *Decoder) Feed(p []byte) (int, error) {
	if d.err != nil {
		return 0, d.err
	}
	d.st.BytesNeeded = 0

	total := 0
	for !d.st.Ended() {
		n, err := d.st.Current().step(d, p[total:])
		if err != nil {
			return total + n, d.fail(err, n)
		}
		total += n
		d.st.Offset += n
		if d.st.BytesNeeded > 0 {
			Logger().Debug("decoder suspended",
				zap.Int("offset", d.st.Offset),
				zap.Int("bytes_needed", d.st.BytesNeeded),
				zap.Int("depth", d.st.Depth()),
				zap.String("mode", d.Mode()))
			break
		}
	}
	return total, nil
}

// Finish reports whether the input ended on a complete value.
func (d *Decoder) Finish() error {
	if d.err != nil {
		return d.err
	}
	if d.st.Ended() {
		return nil
	}
	needed := d.st.BytesNeeded
	if needed < 1 {
		needed = 1
	}
	d.err = errors.PrematureEnd(errors.PhaseDecode, d.st.Offset, needed)
	return d.err
}

// Value returns the decoded value once Done reports true. It is invalid for
// a null or skipped root.
func (d *Decoder) Value() reflect.Value {
	if !d.st.Ended() {
		return reflect.Value{}
	}
	return d.st.Last().Value
}

// Done reports whether the root value is complete.
func (d *Decoder) Done() bool { return d.st.Ended() }

// BytesNeeded is the minimum number of additional bytes needed to make
// progress after the last Feed.
func (d *Decoder) BytesNeeded() int {
	if d.st.Ended() {
		return 0
	}
	return d.st.BytesNeeded
}

// Depth is the current nesting depth.
func (d *Decoder) Depth() int { return d.st.Depth() }

// Offset is the number of bytes consumed so far.
func (d *Decoder) Offset() int { return d.st.Offset }

// Mode names the frame in progress.
func (d *Decoder) Mode() string {
	if d.st.Ended() {
		return "done"
	}
	return d.st.Current().mode()
}

func (d *Decoder) fail(err error, consumed int) error {
	if e, ok := err.(*errors.Error); ok {
		if e.Offset == errors.NoOffset {
			e.Offset = d.st.Offset + consumed
		}
		if len(e.Path) == 0 {
			e.Path = d.path()
		}
	}
	d.err = err
	return err
}

func (d *Decoder) path() []string {
	var path []string
	for _, f := range d.st.Frames() {
		if s := f.segment(); s != "" {
			path = append(path, s)
		}
	}
	return path
}

func (d *Decoder) push(f readFrame) error {
	if d.st.Depth() >= d.opts.MaxDepth {
		return errors.Overflow(errors.PhaseDecode, nil, d.st.Depth()+1, "max depth "+strconv.Itoa(d.opts.MaxDepth))
	}
	d.st.Push(f)
	return nil
}

// deliver pops the current frame with v converted to the declared type.
func (d *Decoder) deliver(decl *registry.TypeInfo, v reflect.Value) {
	d.st.Pop(stack.Result{Value: decl.Wrap(v)})
}

func (d *Decoder) uvarint(p []byte) (uint64, int, error) {
	v, n, err := leb128.Uvarint(p)
	if err != nil {
		return 0, 0, errors.Wrap(errors.PhaseDecode, errors.KindInvalidData, err, "malformed uvarint")
	}
	if n == 0 {
		d.st.Suspend(1)
	}
	return v, n, nil
}

func (d *Decoder) varint(p []byte) (int64, int, error) {
	v, n, err := leb128.Varint(p)
	if err != nil {
		return 0, 0, errors.Wrap(errors.PhaseDecode, errors.KindInvalidData, err, "malformed varint")
	}
	if n == 0 {
		d.st.Suspend(1)
	}
	return v, n, nil
}

// fixed returns the first size bytes of p, or suspends.
func (d *Decoder) fixed(p []byte, size int) ([]byte, bool) {
	if len(p) < size {
		d.st.Suspend(size - len(p))
		return nil, false
	}
	return p[:size], true
}

func (d *Decoder) count(p []byte) (int, int, error) {
	v, n, err := d.uvarint(p)
	if err != nil || n == 0 {
		return 0, 0, err
	}
	if v > uint64(d.opts.MaxCollectionLength) {
		return 0, 0, errors.Overflow(errors.PhaseDecode, nil, v, "max collection length "+strconv.Itoa(d.opts.MaxCollectionLength))
	}
	return int(v), n, nil
}

func (d *Decoder) length(p []byte) (int, int, error) {
	v, n, err := d.uvarint(p)
	if err != nil || n == 0 {
		return 0, 0, err
	}
	if v > uint64(d.opts.MaxStringSize) {
		return 0, 0, errors.Overflow(errors.PhaseDecode, nil, v, "max string size "+strconv.Itoa(d.opts.MaxStringSize))
	}
	return int(v), n, nil
}

func (d *Decoder) index(p []byte) (uint32, int, error) {
	switch d.opts.IndexWidth {
	case Index8:
		b, ok := d.fixed(p, 1)
		if !ok {
			return 0, 0, nil
		}
		return uint32(b[0]), 1, nil
	case Index16:
		b, ok := d.fixed(p, 2)
		if !ok {
			return 0, 0, nil
		}
		return uint32(d.opts.ByteOrder.Uint16(b)), 2, nil
	case Index32:
		b, ok := d.fixed(p, 4)
		if !ok {
			return 0, 0, nil
		}
		return d.opts.ByteOrder.Uint32(b), 4, nil
	}
	v, n, err := d.uvarint(p)
	if err != nil || n == 0 {
		return 0, 0, err
	}
	if v > math.MaxUint32 {
		return 0, 0, errors.Overflow(errors.PhaseDecode, nil, v, "member index width")
	}
	return uint32(v), n, nil
}

func (d *Decoder) emit(ev Event) error {
	if d.observe == nil {
		return nil
	}
	ev.Depth = d.st.Depth()
	ev.Offset = d.st.Offset
	return d.observe(ev)
}

// payloadFrame returns the frame that reads the payload of a value described
// by target into a slot declared as decl.
func payloadFrame(decl, target *registry.TypeInfo, wire WireType) readFrame {
	switch target.Shape {
	case registry.ShapeObject:
		return &objectFrame{decl: decl, ti: target, obj: reflect.New(target.Type).Elem()}
	case registry.ShapePrimitiveCollection, registry.ShapeEnumCollection, registry.ShapeObjectCollection:
		return &collectionFrame{decl: decl, ti: target}
	case registry.ShapeMap:
		return &mapFrame{decl: decl, ti: target}
	}
	if wire == WireBytes {
		return &bytesFrame{decl: decl, ti: target}
	}
	return &scalarFrame{decl: decl, ti: target, wire: wire}
}

// accepts reports whether a payload tagged shape/wire can decode into target.
func accepts(target *registry.TypeInfo, shape registry.Shape, wire WireType) bool {
	if shape != target.Shape {
		return false
	}
	switch {
	case target.Shape == registry.ShapeEnum:
		return wire == WireVarint || wire == WireBytes
	case target.Shape.IsScalar():
		return wire == wireFor(target, &Options{})
	}
	return true
}

const (
	vsFlag uint8 = iota
	vsTag
	vsTypeID
)

// valueFrame reads the null flag, tag and type id of a value, then replaces
// itself with the frame for the payload.
type valueFrame struct {
	decl  *registry.TypeInfo
	state uint8
	shape registry.Shape
	wire  WireType
}

func (f *valueFrame) mode() string    { return "value" }
func (f *valueFrame) segment() string { return "" }

func (f *valueFrame) step(d *Decoder, p []byte) (int, error) {
	switch f.state {
	case vsFlag:
		if !f.decl.Nullable() {
			f.state = vsTag
			return 0, nil
		}
		if len(p) == 0 {
			d.st.Suspend(1)
			return 0, nil
		}
		switch p[0] {
		case flagNull:
			d.st.Pop(stack.Result{Value: reflect.Zero(f.decl.Type)})
			return 1, nil
		case flagPresent:
			f.state = vsTag
			return 1, nil
		}
		// A tag in place of the flag: the writer declared a non-nullable type.
		if _, _, _, ok := splitTag(p[0]); ok {
			f.state = vsTag
			return 0, nil
		}
		return 0, errors.Syntax(errors.PhaseDecode, d.st.Offset, p[0], "null flag")

	case vsTag:
		if len(p) == 0 {
			d.st.Suspend(1)
			return 0, nil
		}
		shape, wire, hasID, ok := splitTag(p[0])
		if !ok {
			return 0, errors.Syntax(errors.PhaseDecode, d.st.Offset, p[0], "type tag")
		}
		f.shape, f.wire = shape, wire
		if hasID {
			f.state = vsTypeID
			return 1, nil
		}
		return 1, f.resolve(d, 0, false)

	default:
		id, n, err := d.uvarint(p)
		if err != nil || n == 0 {
			return 0, err
		}
		return n, f.resolve(d, id, true)
	}
}

func (f *valueFrame) resolve(d *Decoder, id uint64, hasID bool) error {
	target := f.decl.Target()

	if target.Shape == registry.ShapeInterface {
		if !hasID {
			if target.Type.NumMethod() == 0 {
				d.st.Replace(&skipFrame{decl: f.decl, keep: true, state: skPayload, shape: f.shape, wire: f.wire})
				return nil
			}
			return errors.New(errors.PhaseDecode, errors.KindTypeMismatch).
				GoType(target.Type.String()).
				WireType(tagString(f.shape, f.wire)).
				Detail("polymorphic value without a type id").
				Build()
		}

		var typ reflect.Type
		ok := id <= math.MaxUint32
		if ok {
			typ, ok = d.opts.Registry.ByID(uint32(id))
		}
		if !ok {
			if d.opts.SkipUnknownTypes {
				Logger().Debug("skipping value of unknown type", zap.Uint64("type_id", id), zap.Int("offset", d.st.Offset))
				d.st.Replace(&skipFrame{state: skPayload, shape: f.shape, wire: f.wire})
				return nil
			}
			return errors.UnknownType(errors.PhaseDecode, nil, id)
		}

		ti, err := d.opts.Registry.Describe(typ)
		if err != nil {
			return err
		}
		if !typ.AssignableTo(target.Type) && !reflect.PointerTo(typ).AssignableTo(target.Type) {
			return errors.New(errors.PhaseDecode, errors.KindTypeMismatch).
				GoType(target.Type.String()).
				Value(id).
				Detail("registered type %s does not implement %s", typ, target.Type).
				Build()
		}
		target = ti
	}

	if !accepts(target, f.shape, f.wire) {
		return errors.TypeMismatch(errors.PhaseDecode, nil, target.Type.String(), tagString(f.shape, f.wire))
	}
	d.st.Replace(payloadFrame(f.decl, target, f.wire))
	return nil
}

// scalarFrame reads varint and fixed-width payloads.
type scalarFrame struct {
	decl *registry.TypeInfo
	ti   *registry.TypeInfo
	wire WireType
}

func (f *scalarFrame) mode() string    { return "scalar" }
func (f *scalarFrame) segment() string { return "" }

func (f *scalarFrame) step(d *Decoder, p []byte) (int, error) {
	out := reflect.New(f.ti.Type).Elem()

	switch f.wire {
	case WireVarint:
		v, n, err := d.varint(p)
		if err != nil || n == 0 {
			return 0, err
		}
		if err := setSigned(f.ti, out, v); err != nil {
			return 0, err
		}
		d.deliver(f.decl, out)
		return n, nil

	case WireUvarint:
		v, n, err := d.uvarint(p)
		if err != nil || n == 0 {
			return 0, err
		}
		if err := setUnsigned(f.ti, out, v); err != nil {
			return 0, err
		}
		d.deliver(f.decl, out)
		return n, nil

	case WireFixed32:
		b, ok := d.fixed(p, 4)
		if !ok {
			return 0, nil
		}
		out.SetFloat(float64(math.Float32frombits(d.opts.ByteOrder.Uint32(b))))
		d.deliver(f.decl, out)
		return 4, nil

	default:
		b, ok := d.fixed(p, 8)
		if !ok {
			return 0, nil
		}
		out.SetFloat(math.Float64frombits(d.opts.ByteOrder.Uint64(b)))
		d.deliver(f.decl, out)
		return 8, nil
	}
}

func setSigned(ti *registry.TypeInfo, out reflect.Value, v int64) error {
	if ti.Shape == registry.ShapeEnum && !ti.Enum.Valid(v) {
		return errors.InvalidEnum(errors.PhaseDecode, nil, v, ti.Type.String())
	}
	switch ti.Kind {
	case registry.KindInt, registry.KindDuration:
		if out.OverflowInt(v) {
			return errors.Overflow(errors.PhaseDecode, nil, v, ti.Type.String())
		}
		out.SetInt(v)
		return nil
	case registry.KindUint:
		if v < 0 || out.OverflowUint(uint64(v)) {
			return errors.Overflow(errors.PhaseDecode, nil, v, ti.Type.String())
		}
		out.SetUint(uint64(v))
		return nil
	}
	return errors.TypeMismatch(errors.PhaseDecode, nil, ti.Type.String(), WireVarint.String())
}

func setUnsigned(ti *registry.TypeInfo, out reflect.Value, v uint64) error {
	switch ti.Kind {
	case registry.KindBool:
		if v > 1 {
			return errors.InvalidData(errors.PhaseDecode, nil, "bool out of range: "+strconv.FormatUint(v, 10))
		}
		out.SetBool(v == 1)
		return nil
	case registry.KindUint:
		if out.OverflowUint(v) {
			return errors.Overflow(errors.PhaseDecode, nil, v, ti.Type.String())
		}
		out.SetUint(v)
		return nil
	case registry.KindInt:
		if v > math.MaxInt64 || out.OverflowInt(int64(v)) {
			return errors.Overflow(errors.PhaseDecode, nil, v, ti.Type.String())
		}
		out.SetInt(int64(v))
		return nil
	}
	return errors.TypeMismatch(errors.PhaseDecode, nil, ti.Type.String(), WireUvarint.String())
}

// bytesFrame reads a length-prefixed payload. The payload accumulates across
// suspensions.
type bytesFrame struct {
	decl    *registry.TypeInfo
	ti      *registry.TypeInfo
	buf     []byte
	n       int
	haveLen bool
}

func (f *bytesFrame) mode() string    { return "bytes" }
func (f *bytesFrame) segment() string { return "" }

func (f *bytesFrame) step(d *Decoder, p []byte) (int, error) {
	if !f.haveLen {
		size, n, err := d.length(p)
		if err != nil || n == 0 {
			return 0, err
		}
		f.n, f.haveLen = size, true
		f.buf = make([]byte, 0, min(size, 4096))
		return n, nil
	}

	take := min(f.n-len(f.buf), len(p))
	f.buf = append(f.buf, p[:take]...)
	if len(f.buf) < f.n {
		d.st.Suspend(f.n - len(f.buf))
		return take, nil
	}

	v, err := convertBytes(f.ti, f.buf)
	if err != nil {
		return take, err
	}
	d.deliver(f.decl, v)
	return take, nil
}

func convertBytes(ti *registry.TypeInfo, b []byte) (reflect.Value, error) {
	out := reflect.New(ti.Type).Elem()

	if ti.Shape == registry.ShapeEnum {
		ord, ok := ti.Enum.Ordinal(string(b))
		if !ok {
			return out, errors.InvalidEnum(errors.PhaseDecode, nil, string(b), ti.Type.String())
		}
		if ti.Kind == registry.KindUint {
			out.SetUint(uint64(ord))
		} else {
			out.SetInt(ord)
		}
		return out, nil
	}

	switch ti.Kind {
	case registry.KindString:
		if !utf8.Valid(b) {
			return out, errors.InvalidUTF8(errors.PhaseDecode, nil, b)
		}
		out.SetString(string(b))
	case registry.KindBytes:
		out.SetBytes(b)
	case registry.KindTime:
		var t time.Time
		if err := t.UnmarshalBinary(b); err != nil {
			return out, errors.New(errors.PhaseDecode, errors.KindInvalidData).
				GoType(ti.Type.String()).
				Cause(err).
				Detail("malformed time").
				Build()
		}
		out.Set(reflect.ValueOf(t))
	case registry.KindUUID:
		u, err := uuid.FromBytes(b)
		if err != nil {
			return out, errors.New(errors.PhaseDecode, errors.KindInvalidData).
				GoType(ti.Type.String()).
				Cause(err).
				Detail("malformed uuid").
				Build()
		}
		out.Set(reflect.ValueOf(u))
	default:
		return out, errors.TypeMismatch(errors.PhaseDecode, nil, ti.Type.String(), WireBytes.String())
	}
	return out, nil
}

// objectFrame reads (index, value) pairs until index 0.
type objectFrame struct {
	decl    *registry.TypeInfo
	ti      *registry.TypeInfo
	member  *registry.Member
	obj     reflect.Value
	index   uint32
	waiting bool
}

func (f *objectFrame) mode() string { return "object" }

func (f *objectFrame) segment() string {
	if f.member != nil {
		return f.member.Name
	}
	if f.waiting {
		return "#" + strconv.FormatUint(uint64(f.index), 10)
	}
	return ""
}

func (f *objectFrame) step(d *Decoder, p []byte) (int, error) {
	if f.waiting {
		r, _ := d.st.TakeLast()
		if f.member != nil {
			f.member.Set(f.obj, r.Value)
		}
		f.member, f.waiting = nil, false
	}

	idx, n, err := d.index(p)
	if err != nil || n == 0 {
		return 0, err
	}
	if idx == 0 {
		d.deliver(f.decl, f.obj)
		return n, nil
	}

	f.index, f.waiting = idx, true
	m, ok := f.ti.MemberByIndex(idx)
	if !ok {
		Logger().Debug("skipping unknown member",
			zap.String("type", f.ti.Type.String()),
			zap.Uint32("index", idx),
			zap.Int("offset", d.st.Offset+n))
		return n, d.push(&skipFrame{})
	}
	f.member = m
	return n, d.push(&valueFrame{decl: m.Type})
}

// collectionFrame reads a count and that many elements.
type collectionFrame struct {
	decl    *registry.TypeInfo
	ti      *registry.TypeInfo
	out     reflect.Value
	n, i    int
	started bool
	waiting bool
}

func (f *collectionFrame) mode() string { return "collection" }

func (f *collectionFrame) segment() string {
	if !f.waiting {
		return ""
	}
	return "[" + strconv.Itoa(f.i) + "]"
}

func (f *collectionFrame) step(d *Decoder, p []byte) (int, error) {
	if !f.started {
		count, n, err := d.count(p)
		if err != nil || n == 0 {
			return 0, err
		}
		if f.ti.Type.Kind() == reflect.Array {
			if count != f.ti.Type.Len() {
				return 0, errors.InvalidData(errors.PhaseDecode, nil,
					"array of length "+strconv.Itoa(f.ti.Type.Len())+" cannot hold "+strconv.Itoa(count)+" elements")
			}
			f.out = reflect.New(f.ti.Type).Elem()
		} else {
			f.out = reflect.MakeSlice(f.ti.Type, 0, min(count, 1024))
		}
		f.n, f.started = count, true
		return n, nil
	}

	if f.waiting {
		r, _ := d.st.TakeLast()
		f.store(r.Value)
		f.i++
		f.waiting = false
	}
	if f.i == f.n {
		d.deliver(f.decl, f.out)
		return 0, nil
	}
	f.waiting = true
	return 0, d.push(&valueFrame{decl: f.ti.Elem})
}

func (f *collectionFrame) store(v reflect.Value) {
	if f.out.Kind() == reflect.Array {
		if v.IsValid() {
			f.out.Index(f.i).Set(v)
		}
		return
	}
	if !v.IsValid() {
		v = reflect.Zero(f.ti.Elem.Type)
	}
	f.out = reflect.Append(f.out, v)
}

const (
	mapNext uint8 = iota
	mapKey
	mapValue
)

// mapFrame reads a count and that many key/value pairs.
type mapFrame struct {
	decl    *registry.TypeInfo
	ti      *registry.TypeInfo
	key     *registry.TypeInfo
	out     reflect.Value
	k       reflect.Value
	n, i    int
	state   uint8
	started bool
}

func (f *mapFrame) mode() string { return "map" }

func (f *mapFrame) segment() string {
	if f.state == mapValue && f.k.IsValid() {
		return f.k.String()
	}
	return ""
}

func (f *mapFrame) step(d *Decoder, p []byte) (int, error) {
	if !f.started {
		count, n, err := d.count(p)
		if err != nil || n == 0 {
			return 0, err
		}
		key, err := d.opts.Registry.Describe(f.ti.Type.Key())
		if err != nil {
			return 0, err
		}
		f.key = key
		f.out = reflect.MakeMapWithSize(f.ti.Type, min(count, 1024))
		f.n, f.started = count, true
		return n, nil
	}

	switch f.state {
	case mapKey:
		r, _ := d.st.TakeLast()
		f.k = r.Value
		f.state = mapValue
		return 0, d.push(&valueFrame{decl: f.ti.Elem})
	case mapValue:
		r, _ := d.st.TakeLast()
		v := r.Value
		if !v.IsValid() {
			v = reflect.Zero(f.ti.Elem.Type)
		}
		f.out.SetMapIndex(f.k, v)
		f.k = reflect.Value{}
		f.i++
		f.state = mapNext
	}

	if f.i == f.n {
		d.deliver(f.decl, f.out)
		return 0, nil
	}
	f.state = mapKey
	return 0, d.push(&valueFrame{decl: f.key})
}

package binary

import (
	"math"
	"reflect"
	"strconv"
	"unicode/utf8"

	"github.com/wippyai/framecodec/errors"
	"github.com/wippyai/framecodec/registry"
	"github.com/wippyai/framecodec/stack"
)

const (
	skFirst uint8 = iota
	skTag
	skTypeID
	skPayload
	skBytes
	skMembers
	skItems
)

const previewSize = 32

// skipFrame parses a value without knowing its Go type. It relies only on
// the wire: a first byte of 0x00 or 0x01 is a null flag, anything else is a
// tag. Without keep the value is discarded; with keep it is built as a
// dynamic value (int64, uint64, float64, string, []byte, []any or
// map[string]any) for an empty interface slot.
type skipFrame struct {
	decl  *registry.TypeInfo
	shape registry.Shape
	wire  WireType
	keep  bool
	state uint8

	typeID    uint64
	hasTypeID bool

	remaining int
	buf       []byte

	index uint32
	items []any
	obj   map[string]any
	key   string
	isKey bool
}

func (f *skipFrame) mode() string { return "skip" }

func (f *skipFrame) segment() string {
	if f.state == skMembers && f.index != 0 {
		return "#" + strconv.FormatUint(uint64(f.index), 10)
	}
	return ""
}

func (f *skipFrame) step(d *Decoder, p []byte) (int, error) {
	switch f.state {
	case skFirst:
		if len(p) == 0 {
			d.st.Suspend(1)
			return 0, nil
		}
		switch p[0] {
		case flagNull:
			if err := d.emit(Event{Kind: EventNull}); err != nil {
				return 0, err
			}
			d.st.Pop(stack.Result{})
			return 1, nil
		case flagPresent:
			f.state = skTag
			return 1, nil
		}
		return 1, f.tag(d, p[0])

	case skTag:
		if len(p) == 0 {
			d.st.Suspend(1)
			return 0, nil
		}
		return 1, f.tag(d, p[0])

	case skTypeID:
		id, n, err := d.uvarint(p)
		if err != nil || n == 0 {
			return 0, err
		}
		f.typeID, f.hasTypeID = id, true
		f.state = skPayload
		if f.keep {
			return n, f.typed(d)
		}
		return n, nil

	case skPayload:
		return f.payload(d, p)

	case skBytes:
		take := min(f.remaining, len(p))
		if f.keep || (d.observe != nil && len(f.buf) < previewSize) {
			keep := take
			if !f.keep {
				keep = min(take, previewSize-len(f.buf))
			}
			f.buf = append(f.buf, p[:keep]...)
		}
		f.remaining -= take
		if f.remaining > 0 {
			d.st.Suspend(f.remaining)
			return take, nil
		}
		return take, f.done(d, f.bytesValue())

	case skMembers:
		f.collect(d)
		idx, n, err := d.index(p)
		if err != nil || n == 0 {
			return 0, err
		}
		if idx == 0 {
			if err := d.emit(Event{Kind: EventEnd, Shape: f.shape}); err != nil {
				return 0, err
			}
			return n, f.done(d, f.obj)
		}
		f.index = idx
		if err := d.emit(Event{Kind: EventMember, Index: idx}); err != nil {
			return 0, err
		}
		return n, d.push(&skipFrame{keep: f.keep})

	default:
		f.collect(d)
		if f.remaining == 0 {
			if err := d.emit(Event{Kind: EventEnd, Shape: f.shape}); err != nil {
				return 0, err
			}
			if f.wire == WirePairs {
				return 0, f.done(d, f.obj)
			}
			return 0, f.done(d, f.items)
		}
		f.remaining--
		return 0, d.push(&skipFrame{keep: f.keep})
	}
}

func (f *skipFrame) tag(d *Decoder, b byte) error {
	shape, wire, hasID, ok := splitTag(b)
	if !ok {
		return errors.Syntax(errors.PhaseDecode, d.st.Offset, b, "type tag")
	}
	f.shape, f.wire = shape, wire
	if hasID {
		f.state = skTypeID
	} else {
		f.state = skPayload
	}
	return nil
}

// typed switches to a typed payload frame when a kept value names a
// registered type.
func (f *skipFrame) typed(d *Decoder) error {
	if f.typeID > math.MaxUint32 {
		return nil
	}
	typ, ok := d.opts.Registry.ByID(uint32(f.typeID))
	if !ok {
		if d.opts.SkipUnknownTypes {
			f.keep = false
			return nil
		}
		return errors.UnknownType(errors.PhaseDecode, nil, f.typeID)
	}
	ti, err := d.opts.Registry.Describe(typ)
	if err != nil {
		return err
	}
	if !accepts(ti, f.shape, f.wire) {
		return errors.TypeMismatch(errors.PhaseDecode, nil, ti.Type.String(), tagString(f.shape, f.wire))
	}
	decl := f.decl
	if decl == nil {
		if decl, err = d.anyType(); err != nil {
			return err
		}
	}
	d.st.Replace(payloadFrame(decl, ti, f.wire))
	return nil
}

func (f *skipFrame) payload(d *Decoder, p []byte) (int, error) {
	ev := Event{Shape: f.shape, Wire: f.wire, TypeID: f.typeID, HasTypeID: f.hasTypeID}

	switch f.wire {
	case WireVarint:
		v, n, err := d.varint(p)
		if err != nil || n == 0 {
			return 0, err
		}
		ev.Kind, ev.Value = EventScalar, v
		if err := d.emit(ev); err != nil {
			return 0, err
		}
		return n, f.done(d, v)

	case WireUvarint:
		v, n, err := d.uvarint(p)
		if err != nil || n == 0 {
			return 0, err
		}
		ev.Kind, ev.Value = EventScalar, v
		if err := d.emit(ev); err != nil {
			return 0, err
		}
		return n, f.done(d, v)

	case WireFixed32:
		b, ok := d.fixed(p, 4)
		if !ok {
			return 0, nil
		}
		v := float64(math.Float32frombits(d.opts.ByteOrder.Uint32(b)))
		ev.Kind, ev.Value = EventScalar, v
		if err := d.emit(ev); err != nil {
			return 0, err
		}
		return 4, f.done(d, v)

	case WireFixed64:
		b, ok := d.fixed(p, 8)
		if !ok {
			return 0, nil
		}
		v := math.Float64frombits(d.opts.ByteOrder.Uint64(b))
		ev.Kind, ev.Value = EventScalar, v
		if err := d.emit(ev); err != nil {
			return 0, err
		}
		return 8, f.done(d, v)

	case WireBytes:
		size, n, err := d.length(p)
		if err != nil || n == 0 {
			return 0, err
		}
		f.remaining = size
		f.state = skBytes
		return n, nil

	case WireMembers:
		ev.Kind = EventBegin
		if err := d.emit(ev); err != nil {
			return 0, err
		}
		if f.keep {
			f.obj = make(map[string]any)
		}
		f.state = skMembers
		return 0, nil
	}

	count, n, err := d.count(p)
	if err != nil || n == 0 {
		return 0, err
	}
	ev.Kind, ev.Count = EventBegin, count
	if err := d.emit(ev); err != nil {
		return 0, err
	}
	f.remaining = count
	if f.wire == WirePairs {
		f.remaining = 2 * count
		if f.keep {
			f.obj = make(map[string]any, min(count, 1024))
		}
	} else if f.keep {
		f.items = make([]any, 0, min(count, 1024))
	}
	f.state = skItems
	return n, nil
}

// collect stores the result of a finished child into the value being built.
func (f *skipFrame) collect(d *Decoder) {
	r, ok := d.st.TakeLast()
	if !ok || !f.keep {
		return
	}
	var v any
	if r.Value.IsValid() {
		v = r.Value.Interface()
	}

	switch {
	case f.state == skMembers:
		f.obj[strconv.FormatUint(uint64(f.index), 10)] = v
	case f.wire == WirePairs && !f.isKey:
		f.key = keyString(v)
		f.isKey = true
	case f.wire == WirePairs:
		f.obj[f.key] = v
		f.isKey = false
	default:
		f.items = append(f.items, v)
	}
}

func (f *skipFrame) bytesValue() any {
	if f.shape == registry.ShapeSpecial || !utf8.Valid(f.buf) {
		return f.buf
	}
	return string(f.buf)
}

func (f *skipFrame) done(d *Decoder, v any) error {
	if f.state == skBytes {
		if err := d.emit(Event{Kind: EventScalar, Shape: f.shape, Wire: f.wire, TypeID: f.typeID, HasTypeID: f.hasTypeID, Value: v}); err != nil {
			return err
		}
	}
	if !f.keep {
		d.st.Pop(stack.Result{})
		return nil
	}
	rv := reflect.ValueOf(v)
	if f.decl != nil {
		d.deliver(f.decl, rv)
		return nil
	}
	d.st.Pop(stack.Result{Value: rv})
	return nil
}

func keyString(v any) string {
	switch k := v.(type) {
	case string:
		return k
	case []byte:
		return string(k)
	case int64:
		return strconv.FormatInt(k, 10)
	case uint64:
		return strconv.FormatUint(k, 10)
	}
	return ""
}

func (d *Decoder) anyType() (*registry.TypeInfo, error) {
	if d.anyInfo == nil {
		ti, err := d.opts.Registry.Describe(reflect.TypeFor[any]())
		if err != nil {
			return nil, err
		}
		d.anyInfo = ti
	}
	return d.anyInfo, nil
}

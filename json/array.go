package json

import (
	"reflect"
	"strconv"

	"github.com/wippyai/framecodec/errors"
	"github.com/wippyai/framecodec/registry"
)

const (
	arOpen  uint8 = iota // before '['
	arFirst              // after '[': value or ']'
	arItem               // after ',': value
	arNext               // after value: ',' or ']'
)

// arrayFrame reads an array into a slice or array. Without ti the array is
// discarded. A nameless frame reads a bracketless sequence that ends with
// the input.
type arrayFrame struct {
	decl     *registry.TypeInfo
	ti       *registry.TypeInfo
	nameless bool

	out     reflect.Value
	i       int
	state   uint8
	waiting bool
}

func (f *arrayFrame) mode() string {
	if f.nameless {
		return "array-nameless"
	}
	return "array"
}

func (f *arrayFrame) segment() string {
	if !f.waiting {
		return ""
	}
	return "[" + strconv.Itoa(f.i) + "]"
}

func (f *arrayFrame) step(d *Decoder, p []byte) (int, error) {
	if f.waiting {
		f.waiting = false
		r, _ := d.st.TakeLast()
		if err := f.store(r.Value); err != nil {
			return 0, err
		}
		f.i++
	}
	if f.nameless {
		return f.sequence(d, p)
	}

	i, ok := d.peek(p)
	if !ok {
		return i, nil
	}
	c := p[i]

	switch f.state {
	case arOpen:
		if c != '[' {
			return i, d.syntax(p, i, "'['")
		}
		f.init()
		f.state = arFirst
		return i + 1, nil

	case arFirst:
		if c == ']' {
			f.close(d)
			return i + 1, nil
		}
		return i, f.item(d)

	case arItem:
		if c == ']' {
			return i, d.syntax(p, i, "value")
		}
		return i, f.item(d)

	default:
		switch c {
		case ',':
			f.state = arItem
			return i + 1, nil
		case ']':
			f.close(d)
			return i + 1, nil
		}
		return i, d.syntax(p, i, "',' or ']'")
	}
}

// sequence reads values separated by whitespace or single commas until
// Finish marks the end of input.
func (f *arrayFrame) sequence(d *Decoder, p []byte) (int, error) {
	if !f.out.IsValid() {
		f.init()
	}
	i := 0
	for i < len(p) && isSpace(p[i]) {
		i++
	}
	if i == len(p) {
		if d.eof {
			if f.state == arItem {
				return i, errors.New(errors.PhaseDecode, errors.KindSyntax).
					Offset(d.st.Offset + i).
					Detail("unexpected end of input, expected value after ','").
					Build()
			}
			f.close(d)
			return i, nil
		}
		d.st.Suspend(1)
		return i, nil
	}
	if p[i] == ',' {
		if f.state != arNext {
			return i, d.syntax(p, i, "value")
		}
		f.state = arItem
		return i + 1, nil
	}
	return i, f.item(d)
}

func (f *arrayFrame) init() {
	switch {
	case f.ti == nil:
	case f.ti.Type.Kind() == reflect.Array:
		f.out = reflect.New(f.ti.Type).Elem()
	default:
		f.out = reflect.MakeSlice(f.ti.Type, 0, 0)
	}
}

func (f *arrayFrame) item(d *Decoder) error {
	var elem *registry.TypeInfo
	if f.ti != nil {
		elem = f.ti.Elem
	}
	f.state, f.waiting = arNext, true
	return d.push(&valueFrame{decl: elem})
}

func (f *arrayFrame) store(v reflect.Value) error {
	if f.ti == nil {
		return nil
	}
	if f.out.Kind() == reflect.Array {
		if f.i >= f.out.Len() {
			return errors.InvalidData(errors.PhaseDecode, nil,
				"array of length "+strconv.Itoa(f.out.Len())+" cannot hold more elements")
		}
		if v.IsValid() {
			f.out.Index(f.i).Set(v)
		}
		return nil
	}
	if !v.IsValid() {
		v = reflect.Zero(f.ti.Elem.Type)
	}
	f.out = reflect.Append(f.out, v)
	return nil
}

func (f *arrayFrame) close(d *Decoder) {
	if f.ti == nil {
		d.deliver(nil, reflect.Value{})
		return
	}
	d.deliver(f.decl, f.out)
}

package json

import (
	"reflect"

	"go.uber.org/zap"

	"github.com/wippyai/framecodec/errors"
	"github.com/wippyai/framecodec/registry"
)

const (
	obOpen  uint8 = iota // before '{'
	obFirst              // after '{': key or '}'
	obKey                // after ',': key
	obColon              // after key: ':'
	obNext               // after value: ',' or '}'
)

// members receives the events of an object scan.
type members interface {
	// key returns the declared type of the value for name, or nil to
	// discard it.
	key(d *Decoder, name string) *registry.TypeInfo
	value(v reflect.Value)
	close(d *Decoder)
}

// objectScanner walks the punctuation of an object and pushes frames for
// keys and values. objectFrame and mapFrame differ only in where members go.
type objectScanner struct {
	state   uint8
	waiting bool
	name    string
}

func (s *objectScanner) segment() string {
	if s.waiting && s.state == obNext {
		return s.name
	}
	return ""
}

func (s *objectScanner) scan(d *Decoder, p []byte, m members) (int, error) {
	if s.waiting {
		s.waiting = false
		r, _ := d.st.TakeLast()
		switch s.state {
		case obColon:
			s.name = r.Raw
		case obNext:
			m.value(r.Value)
		}
	}

	i, ok := d.peek(p)
	if !ok {
		return i, nil
	}
	c := p[i]

	switch s.state {
	case obOpen:
		if c != '{' {
			return i, d.syntax(p, i, "'{'")
		}
		s.state = obFirst
		return i + 1, nil

	case obFirst, obKey:
		if c == '"' {
			s.state, s.waiting = obColon, true
			return i, d.push(&stringFrame{start: d.st.Offset + i})
		}
		if c == '}' && s.state == obFirst {
			m.close(d)
			return i + 1, nil
		}
		return i, d.syntax(p, i, "member name")

	case obColon:
		if c != ':' {
			return i, d.syntax(p, i, "':'")
		}
		decl := m.key(d, s.name)
		s.state, s.waiting = obNext, true
		return i + 1, d.push(&valueFrame{decl: decl})

	default:
		switch c {
		case ',':
			s.state = obKey
			return i + 1, nil
		case '}':
			m.close(d)
			return i + 1, nil
		}
		return i, d.syntax(p, i, "',' or '}'")
	}
}

// objectFrame reads an object into a struct, resolving keys to members by
// name. Unknown keys are parsed and discarded.
type objectFrame struct {
	objectScanner
	decl   *registry.TypeInfo
	ti     *registry.TypeInfo
	obj    reflect.Value
	member *registry.Member
}

func newObjectFrame(decl, ti *registry.TypeInfo) *objectFrame {
	return &objectFrame{decl: decl, ti: ti, obj: reflect.New(ti.Type).Elem()}
}

func (f *objectFrame) mode() string { return "object" }

func (f *objectFrame) step(d *Decoder, p []byte) (int, error) {
	return f.scan(d, p, f)
}

func (f *objectFrame) key(d *Decoder, name string) *registry.TypeInfo {
	m, ok := f.ti.MemberByName(name)
	if !ok {
		Logger().Debug("skipping unknown member",
			zap.String("type", f.ti.Type.String()),
			zap.String("key", name),
			zap.Int("offset", d.st.Offset))
		f.member = nil
		return nil
	}
	f.member = m
	return m.Type
}

func (f *objectFrame) value(v reflect.Value) {
	if f.member != nil {
		f.member.Set(f.obj, v)
	}
	f.member = nil
}

func (f *objectFrame) close(d *Decoder) { d.deliver(f.decl, f.obj) }

// mapFrame reads an object into a map with string keys. Without ti the
// object is discarded.
type mapFrame struct {
	objectScanner
	decl *registry.TypeInfo
	ti   *registry.TypeInfo
	out  reflect.Value
	k    reflect.Value
}

func newMapFrame(decl, ti *registry.TypeInfo) *mapFrame {
	return &mapFrame{decl: decl, ti: ti, out: reflect.MakeMap(ti.Type)}
}

func (f *mapFrame) mode() string { return "map" }

func (f *mapFrame) step(d *Decoder, p []byte) (int, error) {
	return f.scan(d, p, f)
}

func (f *mapFrame) key(_ *Decoder, name string) *registry.TypeInfo {
	if f.ti == nil {
		return nil
	}
	f.k = reflect.ValueOf(name).Convert(f.ti.Type.Key())
	return f.ti.Elem
}

func (f *mapFrame) value(v reflect.Value) {
	if f.ti == nil {
		return
	}
	if !v.IsValid() {
		v = reflect.Zero(f.ti.Elem.Type)
	}
	f.out.SetMapIndex(f.k, v)
}

func (f *mapFrame) close(d *Decoder) {
	if f.ti == nil {
		d.deliver(nil, reflect.Value{})
		return
	}
	d.deliver(f.decl, f.out)
}

const (
	pfOpen       uint8 = iota // before '{'
	pfFirst                   // after '{'
	pfKey                     // first key read
	pfTypeColon               // after the type key: ':'
	pfTypeName                // type name read
	pfComma                   // after a scalar type name: ','
	pfValueKey                // after ',': the value key
	pfValueColon              // value key read: ':'
	pfClose                   // value read: '}'
)

// polyFrame reads an object in an interface slot. The type key must come
// first; it names the concrete type, whose members follow directly for
// objects and maps or under the value key for anything else. An empty
// interface accepts an object without a type key as map[string]any.
type polyFrame struct {
	decl     *registry.TypeInfo
	target   *registry.TypeInfo
	concrete *registry.TypeInfo
	state    uint8
	waiting  bool
	value    reflect.Value
}

func (f *polyFrame) mode() string { return "polymorphic" }

func (f *polyFrame) segment() string {
	if f.concrete != nil && f.waiting {
		return f.concrete.Type.String()
	}
	return ""
}

func (f *polyFrame) dynamic() bool { return f.target.Type.NumMethod() == 0 }

func (f *polyFrame) step(d *Decoder, p []byte) (int, error) {
	if f.waiting {
		f.waiting = false
		r, _ := d.st.TakeLast()
		switch f.state {
		case pfKey:
			if r.Raw != d.opts.TypeKey {
				if !f.dynamic() {
					return 0, f.untagged(d)
				}
				m := newMapFrame(f.decl, d.mapInfo)
				m.state, m.name = obColon, r.Raw
				d.st.Replace(m)
				return 0, nil
			}
			f.state = pfTypeColon
		case pfTypeName:
			if err := f.resolve(d, r.Raw); err != nil {
				return 0, err
			}
			if f.concrete == nil {
				return 0, nil
			}
			f.state = pfComma
		case pfValueColon:
			if r.Raw != d.opts.ValueKey {
				return 0, errors.UnknownMember(errors.PhaseDecode, nil, r.Raw)
			}
		case pfClose:
			f.value = r.Value
		}
	}

	i, ok := d.peek(p)
	if !ok {
		return i, nil
	}
	c := p[i]

	switch f.state {
	case pfOpen:
		if c != '{' {
			return i, d.syntax(p, i, "'{'")
		}
		f.state = pfFirst
		return i + 1, nil

	case pfFirst:
		switch c {
		case '}':
			if !f.dynamic() {
				return i, f.untagged(d)
			}
			d.deliver(f.decl, reflect.ValueOf(map[string]any{}))
			return i + 1, nil
		case '"':
			f.state, f.waiting = pfKey, true
			return i, d.push(&stringFrame{start: d.st.Offset + i})
		}
		return i, d.syntax(p, i, "member name")

	case pfTypeColon:
		if c != ':' {
			return i, d.syntax(p, i, "':'")
		}
		f.state, f.waiting = pfTypeName, true
		return i + 1, d.push(&valueFrame{})

	case pfComma:
		if c != ',' {
			return i, d.syntax(p, i, "','")
		}
		f.state = pfValueKey
		return i + 1, nil

	case pfValueKey:
		if c != '"' {
			return i, d.syntax(p, i, "member name")
		}
		f.state, f.waiting = pfValueColon, true
		return i, d.push(&stringFrame{start: d.st.Offset + i})

	case pfValueColon:
		if c != ':' {
			return i, d.syntax(p, i, "':'")
		}
		f.state, f.waiting = pfClose, true
		return i + 1, d.push(&valueFrame{decl: f.concrete})

	default:
		if c != '}' {
			return i, d.syntax(p, i, "'}'")
		}
		d.deliver(f.decl, f.value)
		return i + 1, nil
	}
}

// resolve looks up the named type. Objects and maps continue in their own
// frame after the type key; other values set f.concrete and wait for the
// value key.
func (f *polyFrame) resolve(d *Decoder, name string) error {
	typ, ok := d.opts.Registry.ByName(name)
	if !ok {
		return errors.UnknownType(errors.PhaseDecode, nil, name)
	}
	if !typ.AssignableTo(f.target.Type) && !reflect.PointerTo(typ).AssignableTo(f.target.Type) {
		return errors.New(errors.PhaseDecode, errors.KindTypeMismatch).
			GoType(f.target.Type.String()).
			Value(name).
			Detail("registered type %s does not implement %s", typ, f.target.Type).
			Build()
	}
	ti, err := d.opts.Registry.Describe(typ)
	if err != nil {
		return err
	}

	switch ti.Shape {
	case registry.ShapeObject:
		o := newObjectFrame(f.decl, ti)
		o.state = obNext
		d.st.Replace(o)
	case registry.ShapeMap:
		m := newMapFrame(f.decl, ti)
		m.state = obNext
		d.st.Replace(m)
	default:
		f.concrete = ti
	}
	return nil
}

func (f *polyFrame) untagged(d *Decoder) error {
	return errors.New(errors.PhaseDecode, errors.KindUnknownType).
		GoType(f.target.Type.String()).
		Detail("polymorphic object must start with %q", d.opts.TypeKey).
		Build()
}

package json

import (
	"strconv"
	"unicode/utf8"

	"github.com/bytedance/sonic"

	"github.com/wippyai/framecodec/errors"
	"github.com/wippyai/framecodec/registry"
	"github.com/wippyai/framecodec/stack"
)

// stringFrame reads a quoted string. The raw text accumulates across
// suspensions and is unescaped once the closing quote arrives. Without a
// decl the unescaped text is returned as the result's Raw field.
type stringFrame struct {
	decl  *registry.TypeInfo
	start int

	buf     []byte
	open    bool
	escaped bool
	escapes bool
}

func (f *stringFrame) mode() string {
	if f.decl == nil || f.decl.Target().Kind == registry.KindString {
		return "string"
	}
	return "string-to-type"
}

func (f *stringFrame) segment() string { return "" }

func (f *stringFrame) step(d *Decoder, p []byte) (int, error) {
	i := 0
	if !f.open {
		if len(p) == 0 {
			d.st.Suspend(1)
			return 0, nil
		}
		if p[0] != '"' {
			return 0, d.syntax(p, 0, "string")
		}
		f.open, i = true, 1
	}

	from := i
	for ; i < len(p); i++ {
		c := p[i]
		if f.escaped {
			f.escaped = false
			continue
		}
		switch {
		case c == '\\':
			f.escaped, f.escapes = true, true
		case c == '"':
			f.buf = append(f.buf, p[from:i]...)
			if err := f.checkSize(d); err != nil {
				return i, err
			}
			return i + 1, f.finish(d)
		case c < 0x20:
			return i, d.syntax(p, i, "string character")
		}
	}

	f.buf = append(f.buf, p[from:]...)
	if err := f.checkSize(d); err != nil {
		return len(p), err
	}
	d.st.Suspend(1)
	return len(p), nil
}

func (f *stringFrame) checkSize(d *Decoder) error {
	if len(f.buf) > d.opts.MaxStringSize {
		return errors.Overflow(errors.PhaseDecode, nil, len(f.buf), "max string size "+strconv.Itoa(d.opts.MaxStringSize))
	}
	return nil
}

func (f *stringFrame) finish(d *Decoder) error {
	s, err := unquote(f.buf, f.escapes)
	if err != nil {
		return err
	}
	if f.decl == nil {
		d.st.Pop(stack.Result{Raw: s})
		return nil
	}
	v, err := fromString(f.decl.Target(), s)
	if err != nil {
		return err
	}
	d.deliver(f.decl, v)
	return nil
}

// unquote returns the text of a string token without its quotes.
func unquote(raw []byte, escapes bool) (string, error) {
	if !utf8.Valid(raw) {
		return "", errors.InvalidUTF8(errors.PhaseDecode, nil, raw)
	}
	if !escapes {
		return string(raw), nil
	}
	quoted := make([]byte, 0, len(raw)+2)
	quoted = append(quoted, '"')
	quoted = append(quoted, raw...)
	quoted = append(quoted, '"')

	var s string
	if err := sonic.Unmarshal(quoted, &s); err != nil {
		return "", errors.Wrap(errors.PhaseDecode, errors.KindSyntax, err, "invalid escape sequence")
	}
	return s, nil
}

// literalFrame reads true, false or null.
type literalFrame struct {
	decl  *registry.TypeInfo
	start int
	buf   []byte
}

func (f *literalFrame) mode() string    { return "literal" }
func (f *literalFrame) segment() string { return "" }

func (f *literalFrame) step(d *Decoder, p []byte) (int, error) {
	i := 0
	for i < len(p) && p[i] >= 'a' && p[i] <= 'z' {
		i++
	}
	f.buf = append(f.buf, p[:i]...)
	if len(f.buf) > len("false") {
		return i, f.invalid()
	}
	if i == len(p) && !d.eof {
		d.st.Suspend(1)
		return i, nil
	}

	switch string(f.buf) {
	case "null":
		return i, d.null(f.decl)
	case "true", "false":
		if f.decl == nil {
			d.st.Pop(stack.Result{})
			return i, nil
		}
		v, err := fromBool(f.decl.Target(), f.buf[0] == 't')
		if err != nil {
			return i, err
		}
		d.deliver(f.decl, v)
		return i, nil
	}
	if d.eof && i == len(p) && isLiteralPrefix(f.buf) {
		d.st.Suspend(1)
		return i, nil
	}
	return i, f.invalid()
}

func isLiteralPrefix(b []byte) bool {
	for _, lit := range []string{"true", "false", "null"} {
		if len(b) < len(lit) && lit[:len(b)] == string(b) {
			return true
		}
	}
	return false
}

func (f *literalFrame) invalid() error {
	return errors.New(errors.PhaseDecode, errors.KindSyntax).
		Offset(f.start).
		Value(string(f.buf)).
		Detail("invalid literal %q", f.buf).
		Build()
}

// numberFrame reads a number. A number has no closing delimiter, so it ends
// at the first character that cannot belong to it, which is left for the
// parent, or at the end of input.
type numberFrame struct {
	decl  *registry.TypeInfo
	start int
	buf   []byte
}

func (f *numberFrame) mode() string {
	if f.decl == nil {
		return "number"
	}
	switch t := f.decl.Target(); {
	case t.Shape == registry.ShapeInterface:
		return "number"
	case t.Shape == registry.ShapePrimitive && t.Kind != registry.KindString && t.Kind != registry.KindBool:
		return "number"
	}
	return "number-to-type"
}

func (f *numberFrame) segment() string { return "" }

func (f *numberFrame) step(d *Decoder, p []byte) (int, error) {
	i := 0
	for i < len(p) && isNumberChar(p[i]) {
		i++
	}
	f.buf = append(f.buf, p[:i]...)
	if len(f.buf) > d.opts.MaxStringSize {
		return i, errors.Overflow(errors.PhaseDecode, nil, len(f.buf), "max string size "+strconv.Itoa(d.opts.MaxStringSize))
	}
	if i == len(p) && !d.eof {
		d.st.Suspend(1)
		return i, nil
	}

	if !validNumber(f.buf) {
		if d.eof && i == len(p) && len(f.buf) > 0 && !isDigit(f.buf[len(f.buf)-1]) {
			d.st.Suspend(1)
			return i, nil
		}
		return i, errors.New(errors.PhaseDecode, errors.KindSyntax).
			Offset(f.start).
			Value(string(f.buf)).
			Detail("invalid number %q", f.buf).
			Build()
	}
	if f.decl == nil {
		d.st.Pop(stack.Result{})
		return i, nil
	}
	v, err := fromNumber(f.decl.Target(), string(f.buf))
	if err != nil {
		return i, err
	}
	d.deliver(f.decl, v)
	return i, nil
}

func isNumberChar(c byte) bool {
	return isDigit(c) || c == '-' || c == '+' || c == '.' || c == 'e' || c == 'E'
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

// validNumber checks b against the JSON number grammar.
func validNumber(b []byte) bool {
	i := 0
	if i < len(b) && b[i] == '-' {
		i++
	}
	switch {
	case i < len(b) && b[i] == '0':
		i++
	case i < len(b) && b[i] >= '1' && b[i] <= '9':
		for i < len(b) && isDigit(b[i]) {
			i++
		}
	default:
		return false
	}
	if i < len(b) && b[i] == '.' {
		i++
		if i == len(b) || !isDigit(b[i]) {
			return false
		}
		for i < len(b) && isDigit(b[i]) {
			i++
		}
	}
	if i < len(b) && (b[i] == 'e' || b[i] == 'E') {
		i++
		if i < len(b) && (b[i] == '+' || b[i] == '-') {
			i++
		}
		if i == len(b) || !isDigit(b[i]) {
			return false
		}
		for i < len(b) && isDigit(b[i]) {
			i++
		}
	}
	return i == len(b)
}

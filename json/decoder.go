package json

import (
	"reflect"
	"strconv"

	"go.uber.org/zap"

	"github.com/wippyai/framecodec/errors"
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

// Decoder reconstructs a Go value from JSON fed in arbitrary chunks.
type Decoder struct {
	opts Options
	root *registry.TypeInfo

	// dynamic targets for empty-interface slots
	anyInfo  *registry.TypeInfo
	listInfo *registry.TypeInfo
	mapInfo  *registry.TypeInfo

	eof bool
	err error
	st  stack.State[readFrame]
}

// NewDecoder returns a decoder for values of type t. Pointer types are
// described by their element type.
func NewDecoder(t reflect.Type, opts Options) (*Decoder, error) {
	opts = opts.withDefaults()
	if t == nil {
		t = reflect.TypeFor[any]()
	}
	d := &Decoder{opts: opts}

	var err error
	if d.root, err = opts.Registry.Describe(reflectx.Deref(t)); err != nil {
		return nil, err
	}
	if d.anyInfo, err = opts.Registry.Describe(reflect.TypeFor[any]()); err != nil {
		return nil, err
	}
	if d.listInfo, err = opts.Registry.Describe(reflect.TypeFor[[]any]()); err != nil {
		return nil, err
	}
	if d.mapInfo, err = opts.Registry.Describe(reflect.TypeFor[map[string]any]()); err != nil {
		return nil, err
	}
	d.Reset()
	return d, nil
}

// Reset prepares the decoder for a new value of the same type.
func (d *Decoder) Reset() {
	d.err, d.eof = nil, false
	if d.opts.Nameless && d.root.Shape.IsCollection() && d.root.Type.Kind() == reflect.Slice {
		d.st.Reset(&arrayFrame{decl: d.root, ti: d.root, nameless: true})
		d.st.Nameless = true
		return
	}
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

// Finish marks the end of input. Tokens that end only where the input ends,
// a root number or a nameless sequence, are completed; anything else still
// open is a premature end.
func (d *Decoder) Finish() error {
	if d.err != nil {
		return d.err
	}
	if !d.st.Ended() {
		d.eof = true
		if _, err := d.Feed(nil); err != nil {
			return err
		}
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

// Trailing checks input that follows the root value. Anything but
// whitespace is a syntax error.
func (d *Decoder) Trailing(p []byte) error {
	for i, c := range p {
		if !isSpace(c) {
			return errors.New(errors.PhaseDecode, errors.KindSyntax).
				Offset(d.st.Offset + i).
				Value(c).
				Detail("unexpected data after the top-level value").
				Build()
		}
	}
	d.st.Offset += len(p)
	return nil
}

// Value returns the decoded value once Done reports true. It is invalid for
// a null root.
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

// deliver pops the current frame with v converted to the declared type. A
// nil decl marks a discarded value.
func (d *Decoder) deliver(decl *registry.TypeInfo, v reflect.Value) {
	if decl == nil {
		d.st.Pop(stack.Result{})
		return
	}
	d.st.Pop(stack.Result{Value: decl.Wrap(v)})
}

// null pops the current frame with the value of a JSON null.
func (d *Decoder) null(decl *registry.TypeInfo) error {
	switch {
	case decl == nil:
		d.st.Pop(stack.Result{})
	case decl.Nullable():
		d.st.Pop(stack.Result{Value: reflect.Zero(decl.Type)})
	case d.opts.StrictNull:
		return errors.Coercion(errors.PhaseDecode, nil, "null", decl.Type.String(), nil)
	default:
		d.st.Pop(stack.Result{})
	}
	return nil
}

// peek skips whitespace and returns the index of the next character. It
// suspends when p holds nothing else.
func (d *Decoder) peek(p []byte) (int, bool) {
	i := 0
	for i < len(p) && isSpace(p[i]) {
		i++
	}
	if i == len(p) {
		d.st.Suspend(1)
		return i, false
	}
	return i, true
}

func (d *Decoder) syntax(p []byte, i int, expected string) error {
	return errors.Syntax(errors.PhaseDecode, d.st.Offset+i, p[i], expected)
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}

// valueFrame looks at the first character of a value and replaces itself
// with the frame for that token. It consumes only leading whitespace.
type valueFrame struct {
	decl *registry.TypeInfo
}

func (f *valueFrame) mode() string    { return "value" }
func (f *valueFrame) segment() string { return "" }

func (f *valueFrame) step(d *Decoder, p []byte) (int, error) {
	i, ok := d.peek(p)
	if !ok {
		return i, nil
	}
	next, err := d.dispatch(f.decl, p, i)
	if err != nil {
		return i, err
	}
	d.st.Replace(next)
	return i, nil
}

// dispatch picks the frame for the token starting at p[i]. A nil decl
// discards the value.
func (d *Decoder) dispatch(decl *registry.TypeInfo, p []byte, i int) (readFrame, error) {
	var target *registry.TypeInfo
	if decl != nil {
		target = decl.Target()
	}
	start := d.st.Offset + i

	switch c := p[i]; {
	case c == '"':
		return &stringFrame{decl: decl, start: start}, nil
	case c == 't' || c == 'f' || c == 'n':
		return &literalFrame{decl: decl, start: start}, nil
	case c == '-' || (c >= '0' && c <= '9'):
		return &numberFrame{decl: decl, start: start}, nil

	case c == '{':
		switch {
		case target == nil:
			return &mapFrame{}, nil
		case target.Shape == registry.ShapeObject:
			return newObjectFrame(decl, target), nil
		case target.Shape == registry.ShapeMap:
			return newMapFrame(decl, target), nil
		case target.Shape == registry.ShapeInterface:
			return &polyFrame{decl: decl, target: target}, nil
		}
		return nil, errors.TypeMismatch(errors.PhaseDecode, nil, target.Type.String(), "object")

	case c == '[':
		switch {
		case target == nil:
			return &arrayFrame{}, nil
		case target.Shape.IsCollection():
			return &arrayFrame{decl: decl, ti: target}, nil
		case target.Shape == registry.ShapeInterface && target.Type.NumMethod() == 0:
			return &arrayFrame{decl: decl, ti: d.listInfo}, nil
		}
		return nil, errors.TypeMismatch(errors.PhaseDecode, nil, target.Type.String(), "array")
	}
	return nil, d.syntax(p, i, "value")
}

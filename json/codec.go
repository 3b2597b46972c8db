package json

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"reflect"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"github.com/wippyai/framecodec"
	"github.com/wippyai/framecodec/errors"
	"github.com/wippyai/framecodec/internal/reflectx"
	"github.com/wippyai/framecodec/stream"
)

// Name is the format name reported by Codec.
const Name = "json"

const chunkSize = 4 << 10

// Codec is the JSON format facade. Byte and stream entry points use
// Options.Encoding; string entry points always work on UTF-8 text.
type Codec struct {
	opts   Options
	stream stream.Options
}

var _ framecodec.Codec = (*Codec)(nil)

// NewCodec returns a codec using opts.
func NewCodec(opts Options) *Codec {
	so := stream.DefaultOptions()
	so.Format = Name
	return &Codec{opts: opts.withDefaults(), stream: so}
}

// WithStreamOptions returns a copy of c that pumps readers and writers with so.
func (c *Codec) WithStreamOptions(so stream.Options) *Codec {
	cp := *c
	if so.Format == "" {
		so.Format = Name
	}
	cp.stream = so
	return &cp
}

// Options returns the engine options.
func (c *Codec) Options() Options { return c.opts }

func (c *Codec) Name() string { return Name }

func (c *Codec) Marshal(v any) ([]byte, error) {
	text, err := c.marshal(v)
	if err != nil {
		return nil, err
	}
	enc := textEncoding(c.opts.Encoding)
	if enc == nil {
		return text, nil
	}
	out, err := enc.NewEncoder().Bytes(text)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseEncode, errors.KindInvalidData, err, "transcode to "+c.opts.Encoding.String())
	}
	return out, nil
}

func (c *Codec) MarshalString(v any) (string, error) {
	text, err := c.marshal(v)
	if err != nil {
		return "", err
	}
	return string(text), nil
}

func (c *Codec) marshal(v any) ([]byte, error) {
	enc, err := NewEncoder(v, c.opts)
	if err != nil {
		return nil, err
	}

	var out bytes.Buffer
	chunk := make([]byte, chunkSize)
	for !enc.Done() {
		n, err := enc.Encode(chunk)
		if err != nil {
			return nil, err
		}
		out.Write(chunk[:n])
	}
	return out.Bytes(), nil
}

func (c *Codec) MarshalTo(ctx context.Context, w io.Writer, v any) error {
	enc, err := NewEncoder(v, c.opts)
	if err != nil {
		return err
	}
	te := textEncoding(c.opts.Encoding)
	if te == nil {
		return stream.Encode(ctx, w, enc, c.stream)
	}

	tw := transform.NewWriter(w, te.NewEncoder())
	if err := stream.Encode(ctx, tw, enc, c.stream); err != nil {
		return err
	}
	if err := tw.Close(); err != nil {
		return errors.Wrap(errors.PhaseStream, errors.KindInvalidData, err, "transcode to "+c.opts.Encoding.String())
	}
	return nil
}

func (c *Codec) Unmarshal(data []byte, v any) error {
	dst, ok := reflectx.Target(v)
	if !ok {
		return errors.NilPointer(errors.PhaseDecode, nil, fmt.Sprintf("%T", v))
	}
	text, err := c.utf8(data)
	if err != nil {
		return err
	}
	out, err := c.decode(text, dst.Type())
	if err != nil {
		return err
	}
	reflectx.Assign(dst, out)
	return nil
}

func (c *Codec) UnmarshalString(s string, v any) error {
	dst, ok := reflectx.Target(v)
	if !ok {
		return errors.NilPointer(errors.PhaseDecode, nil, fmt.Sprintf("%T", v))
	}
	out, err := c.decode([]byte(s), dst.Type())
	if err != nil {
		return err
	}
	reflectx.Assign(dst, out)
	return nil
}

func (c *Codec) UnmarshalFrom(ctx context.Context, r io.Reader, v any) error {
	dst, ok := reflectx.Target(v)
	if !ok {
		return errors.NilPointer(errors.PhaseDecode, nil, fmt.Sprintf("%T", v))
	}
	dec, err := NewDecoder(dst.Type(), c.opts)
	if err != nil {
		return err
	}
	if te := textEncoding(c.opts.Encoding); te != nil {
		r = transform.NewReader(r, te.NewDecoder())
	}
	if err := stream.Decode(ctx, r, dec, c.stream); err != nil {
		return err
	}
	reflectx.Assign(dst, dec.Value())
	return nil
}

func (c *Codec) DecodeType(data []byte, t reflect.Type) (any, error) {
	text, err := c.utf8(data)
	if err != nil {
		return nil, err
	}
	out, err := c.decode(text, t)
	if err != nil {
		return nil, err
	}
	if !out.IsValid() {
		return nil, nil
	}
	return out.Interface(), nil
}

func (c *Codec) utf8(data []byte) ([]byte, error) {
	te := textEncoding(c.opts.Encoding)
	if te == nil {
		return data, nil
	}
	text, err := te.NewDecoder().Bytes(data)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseDecode, errors.KindInvalidData, err, "transcode from "+c.opts.Encoding.String())
	}
	return text, nil
}

func (c *Codec) decode(data []byte, t reflect.Type) (reflect.Value, error) {
	dec, err := NewDecoder(t, c.opts)
	if err != nil {
		return reflect.Value{}, err
	}
	n, err := dec.Feed(data)
	if err != nil {
		return reflect.Value{}, err
	}
	if err := dec.Finish(); err != nil {
		return reflect.Value{}, err
	}
	if err := dec.Trailing(data[n:]); err != nil {
		return reflect.Value{}, err
	}
	return dec.Value(), nil
}

// textEncoding returns the transcoder for e, or nil for UTF-8.
func textEncoding(e Encoding) encoding.Encoding {
	switch e {
	case UTF16LE:
		return unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM)
	case UTF16BE:
		return unicode.UTF16(unicode.BigEndian, unicode.IgnoreBOM)
	}
	return nil
}

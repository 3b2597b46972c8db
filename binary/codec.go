package binary

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"reflect"
	"sync"

	"github.com/wippyai/framecodec"
	"github.com/wippyai/framecodec/errors"
	"github.com/wippyai/framecodec/internal/reflectx"
	"github.com/wippyai/framecodec/stream"
)

// Name is the format name reported by Codec.
const Name = "binary"

const (
	poolChunkSize = 4 << 10
	poolMaxCap    = 1 << 20
)

var chunkPool = sync.Pool{
	New: func() any {
		buf := make([]byte, poolChunkSize)
		return &buf
	},
}

func getChunk() *[]byte {
	return chunkPool.Get().(*[]byte)
}

func putChunk(buf *[]byte) {
	if buf == nil || cap(*buf) > poolMaxCap {
		return
	}
	chunkPool.Put(buf)
}

// Codec is the binary format facade.
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
	enc, err := NewEncoder(v, c.opts)
	if err != nil {
		return nil, err
	}

	chunk := getChunk()
	defer putChunk(chunk)

	var out []byte
	for !enc.Done() {
		n, err := enc.Encode(*chunk)
		if err != nil {
			return nil, err
		}
		out = append(out, (*chunk)[:n]...)
	}
	return out, nil
}

func (c *Codec) MarshalString(v any) (string, error) {
	data, err := c.Marshal(v)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

func (c *Codec) MarshalTo(ctx context.Context, w io.Writer, v any) error {
	enc, err := NewEncoder(v, c.opts)
	if err != nil {
		return err
	}
	return stream.Encode(ctx, w, enc, c.stream)
}

func (c *Codec) Unmarshal(data []byte, v any) error {
	dst, ok := reflectx.Target(v)
	if !ok {
		return errors.NilPointer(errors.PhaseDecode, nil, fmt.Sprintf("%T", v))
	}
	out, err := c.decode(data, dst.Type())
	if err != nil {
		return err
	}
	reflectx.Assign(dst, out)
	return nil
}

func (c *Codec) UnmarshalString(s string, v any) error {
	data, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return errors.Wrap(errors.PhaseDecode, errors.KindSyntax, err, "invalid base64")
	}
	return c.Unmarshal(data, v)
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
	if err := stream.Decode(ctx, r, dec, c.stream); err != nil {
		return err
	}
	reflectx.Assign(dst, dec.Value())
	return nil
}

func (c *Codec) DecodeType(data []byte, t reflect.Type) (any, error) {
	out, err := c.decode(data, t)
	if err != nil {
		return nil, err
	}
	if !out.IsValid() {
		return nil, nil
	}
	return out.Interface(), nil
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
	if n < len(data) {
		return reflect.Value{}, errors.New(errors.PhaseDecode, errors.KindInvalidData).
			Offset(n).
			Detail("%d trailing byte(s)", len(data)-n).
			Build()
	}
	return dec.Value(), nil
}

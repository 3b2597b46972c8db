package framecodec

import (
	"context"
	"io"
	"reflect"
)

// Codec is the format-neutral facade implemented by binary.Codec and
// json.Codec.
type Codec interface {
	// Name returns the format name.
	Name() string

	Marshal(v any) ([]byte, error)
	// MarshalString returns the encoding as text. Binary formats return
	// standard base64.
	MarshalString(v any) (string, error)
	// MarshalTo streams the encoding of v to w.
	MarshalTo(ctx context.Context, w io.Writer, v any) error

	// Unmarshal decodes data into the value pointed to by v.
	Unmarshal(data []byte, v any) error
	UnmarshalString(s string, v any) error
	// UnmarshalFrom decodes one value from r into the value pointed to by v.
	UnmarshalFrom(ctx context.Context, r io.Reader, v any) error

	// DecodeType decodes data as a value of type t.
	DecodeType(data []byte, t reflect.Type) (any, error)
}

// Decode decodes data into a new T.
func Decode[T any](c Codec, data []byte) (T, error) {
	var v T
	err := c.Unmarshal(data, &v)
	return v, err
}

// DecodeString decodes the text form s into a new T.
func DecodeString[T any](c Codec, s string) (T, error) {
	var v T
	err := c.UnmarshalString(s, &v)
	return v, err
}

// Read decodes one T from r.
func Read[T any](ctx context.Context, c Codec, r io.Reader) (T, error) {
	var v T
	err := c.UnmarshalFrom(ctx, r, &v)
	return v, err
}

// Result carries the outcome of an asynchronous read.
type Result[T any] struct {
	Value T
	Err   error
}

// ReadAsync decodes one T from r on a new goroutine. The channel receives
// exactly one result and is then closed.
func ReadAsync[T any](ctx context.Context, c Codec, r io.Reader) <-chan Result[T] {
	ch := make(chan Result[T], 1)
	go func() {
		defer close(ch)
		v, err := Read[T](ctx, c, r)
		ch <- Result[T]{Value: v, Err: err}
	}()
	return ch
}

// WriteAsync encodes v to w on a new goroutine. The channel receives the
// outcome and is then closed.
func WriteAsync(ctx context.Context, c Codec, w io.Writer, v any) <-chan error {
	ch := make(chan error, 1)
	go func() {
		defer close(ch)
		ch <- c.MarshalTo(ctx, w, v)
	}()
	return ch
}

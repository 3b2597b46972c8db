package stream

import (
	"bytes"
	"context"
	stderrors "errors"
	"io"
	"strings"
	"testing"
	"testing/iotest"

	"github.com/wippyai/framecodec/errors"
)

// recordDecoder reads one length-prefixed record and, like the binary
// engine, never consumes a partial body.
type recordDecoder struct {
	body   []byte
	want   int
	needed int
	done   bool
}

func newRecordDecoder() *recordDecoder { return &recordDecoder{want: -1} }

func (r *recordDecoder) Feed(p []byte) (int, error) {
	if r.done {
		return 0, nil
	}
	n := 0
	if r.want < 0 {
		if len(p) == 0 {
			r.needed = 1
			return 0, nil
		}
		if p[0] == 0xff {
			return 0, errors.Syntax(errors.PhaseDecode, 0, p[0], "length")
		}
		r.want = int(p[0])
		n = 1
	}
	rest := p[n:]
	if len(rest) < r.want {
		r.needed = r.want - len(rest)
		return n, nil
	}
	r.body = append([]byte(nil), rest[:r.want]...)
	r.done, r.needed = true, 0
	return n + r.want, nil
}

func (r *recordDecoder) Finish() error {
	if r.done {
		return nil
	}
	return errors.PrematureEnd(errors.PhaseDecode, 0, max(r.needed, 1))
}

func (r *recordDecoder) BytesNeeded() int { return r.needed }
func (r *recordDecoder) Done() bool       { return r.done }

type sliceEncoder struct {
	data []byte
	pos  int
}

func (s *sliceEncoder) Encode(p []byte) (int, error) {
	n := copy(p, s.data[s.pos:])
	s.pos += n
	return n, nil
}

func (s *sliceEncoder) Done() bool { return s.pos == len(s.data) }

func record(body string) []byte {
	return append([]byte{byte(len(body))}, body...)
}

func TestDecode(t *testing.T) {
	body := strings.Repeat("x", 200)

	tests := []struct {
		name   string
		reader func([]byte) io.Reader
		opts   Options
	}{
		{"whole", func(b []byte) io.Reader { return bytes.NewReader(b) }, Options{}},
		{"one byte reads", func(b []byte) io.Reader { return iotest.OneByteReader(bytes.NewReader(b)) }, Options{}},
		{"half reads", func(b []byte) io.Reader { return iotest.HalfReader(bytes.NewReader(b)) }, Options{BufferSize: 16}},
		{"data with eof", func(b []byte) io.Reader { return iotest.DataErrReader(bytes.NewReader(b)) }, Options{}},
		{"grown buffer", func(b []byte) io.Reader { return bytes.NewReader(b) }, Options{BufferSize: 4}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := newRecordDecoder()
			if err := Decode(context.Background(), tt.reader(record(body)), d, tt.opts); err != nil {
				t.Fatalf("Decode: %v", err)
			}
			if string(d.body) != body {
				t.Errorf("body = %d bytes, want %d", len(d.body), len(body))
			}
		})
	}
}

func TestDecodeErrors(t *testing.T) {
	canceled, cancel := context.WithCancel(context.Background())
	cancel()

	tests := []struct {
		name string
		ctx  context.Context
		r    io.Reader
		opts Options
		kind errors.Kind
	}{
		{"premature end", context.Background(), bytes.NewReader(record("hello")[:3]), Options{}, errors.KindPrematureEnd},
		{"empty input", context.Background(), bytes.NewReader(nil), Options{}, errors.KindPrematureEnd},
		{"syntax", context.Background(), bytes.NewReader([]byte{0xff}), Options{}, errors.KindSyntax},
		{"canceled", canceled, bytes.NewReader(record("hello")), Options{}, errors.KindCanceled},
		{"read failure", context.Background(), iotest.ErrReader(stderrors.New("disk gone")), Options{}, errors.KindInvalidData},
		{"buffer limit", context.Background(), bytes.NewReader(record(strings.Repeat("y", 100))), Options{BufferSize: 4, MaxBufferSize: 16}, errors.KindOverflow},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Decode(tt.ctx, tt.r, newRecordDecoder(), tt.opts)
			if err == nil {
				t.Fatal("expected error")
			}
			if !errors.IsKind(err, tt.kind) {
				t.Errorf("err = %v, want kind %v", err, tt.kind)
			}
		})
	}
}

func TestDecodeCanceledUnwraps(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := Decode(ctx, bytes.NewReader(record("a")), newRecordDecoder(), Options{})
	if !stderrors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled in chain", err)
	}
}

// strictDecoder rejects anything but zero padding after its record.
type strictDecoder struct {
	*recordDecoder
	tail []byte
}

func (s *strictDecoder) Trailing(p []byte) error {
	s.tail = append(s.tail, p...)
	for i, c := range p {
		if c != 0 {
			return errors.Syntax(errors.PhaseDecode, i, c, "padding")
		}
	}
	return nil
}

func TestDecodeTrailing(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		kind errors.Kind
	}{
		{"no tail", record("abc"), ""},
		{"padding", append(record("abc"), 0, 0), ""},
		{"garbage", append(record("abc"), 0, 'x'), errors.KindSyntax},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := &strictDecoder{recordDecoder: newRecordDecoder()}
			err := Decode(context.Background(), bytes.NewReader(tt.data), d, Options{})
			if tt.kind == "" {
				if err != nil {
					t.Fatalf("Decode: %v", err)
				}
			} else if !errors.IsKind(err, tt.kind) {
				t.Fatalf("err = %v, want %v", err, tt.kind)
			}
			if want := len(tt.data) - len(record("abc")); len(d.tail) != want {
				t.Errorf("tail = % x, want %d bytes", d.tail, want)
			}
		})
	}

	// a plain decoder leaves the tail alone
	if err := Decode(context.Background(), bytes.NewReader(append(record("abc"), 'x')), newRecordDecoder(), Options{}); err != nil {
		t.Errorf("Decode without Trailer: %v", err)
	}
}

func TestEncode(t *testing.T) {
	data := []byte(strings.Repeat("abc", 100))
	var out bytes.Buffer
	if err := Encode(context.Background(), &out, &sliceEncoder{data: data}, Options{BufferSize: 7}); err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if !bytes.Equal(out.Bytes(), data) {
		t.Errorf("wrote %d bytes, want %d", out.Len(), len(data))
	}
}

// cancelWriter cancels its context after the first write.
type cancelWriter struct {
	bytes.Buffer
	cancel context.CancelFunc
}

func (c *cancelWriter) Write(p []byte) (int, error) {
	defer c.cancel()
	return c.Buffer.Write(p)
}

func TestEncodeCanceledBetweenChunks(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	w := &cancelWriter{cancel: cancel}

	err := Encode(ctx, w, &sliceEncoder{data: make([]byte, 100)}, Options{BufferSize: 10})
	if !errors.IsKind(err, errors.KindCanceled) {
		t.Fatalf("err = %v, want canceled", err)
	}
	if w.Len() != 10 {
		t.Errorf("wrote %d bytes, want exactly one chunk", w.Len())
	}
}

type failWriter struct{}

func (failWriter) Write([]byte) (int, error) { return 0, stderrors.New("pipe closed") }

func TestEncodeWriteFailure(t *testing.T) {
	err := Encode(context.Background(), failWriter{}, &sliceEncoder{data: []byte("x")}, Options{})
	if !errors.IsKind(err, errors.KindInvalidData) {
		t.Errorf("err = %v, want invalid data", err)
	}
}

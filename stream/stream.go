package stream

import (
	"context"
	stderrors "errors"
	"io"
	"strconv"

	"go.uber.org/zap"

	"github.com/wippyai/framecodec/errors"
	"github.com/wippyai/framecodec/metrics"
)

// Decoder is a resumable decoding engine.
type Decoder interface {
	Feed(p []byte) (int, error)
	Finish() error
	BytesNeeded() int
	Done() bool
}

// Trailer is implemented by decoders that reject input following a
// complete value. Decode hands it the bytes already read past the value; it
// does not read on to the end of the stream.
type Trailer interface {
	Trailing(p []byte) error
}

// Encoder is a resumable encoding engine.
type Encoder interface {
	Encode(p []byte) (int, error)
	Done() bool
}

// Options configures a pump.
type Options struct {
	// Format labels metrics and log records.
	Format        string
	BufferSize    int
	MaxBufferSize int
}

// DefaultOptions returns a 4 KiB buffer that may grow to 64 MiB.
func DefaultOptions() Options {
	return Options{
		Format:        "unknown",
		BufferSize:    4 << 10,
		MaxBufferSize: 64 << 20,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.Format == "" {
		o.Format = d.Format
	}
	if o.BufferSize <= 0 {
		o.BufferSize = d.BufferSize
	}
	if o.MaxBufferSize <= 0 {
		o.MaxBufferSize = d.MaxBufferSize
	}
	if o.MaxBufferSize < o.BufferSize {
		o.MaxBufferSize = o.BufferSize
	}
	return o
}

// Decode feeds d from r until d completes, r is exhausted or ctx is done.
func Decode(ctx context.Context, r io.Reader, d Decoder, opts Options) error {
	opts = opts.withDefaults()
	log := Logger().With(zap.String("format", opts.Format))

	buf := make([]byte, opts.BufferSize)
	start, end, total := 0, 0, 0
	eof := false

	for {
		n, err := d.Feed(buf[start:end])
		start += n
		if err != nil {
			return failed(opts.Format, metrics.Decode, err)
		}
		if d.Done() {
			if err := trailing(d, buf[start:end]); err != nil {
				return failed(opts.Format, metrics.Decode, err)
			}
			metrics.DocumentSize.WithLabelValues(opts.Format, metrics.Decode).Observe(float64(total - (end - start)))
			return nil
		}
		if eof {
			if err := d.Finish(); err != nil {
				return failed(opts.Format, metrics.Decode, err)
			}
			if err := trailing(d, buf[start:end]); err != nil {
				return failed(opts.Format, metrics.Decode, err)
			}
			return nil
		}
		metrics.StreamSuspensions.WithLabelValues(opts.Format, metrics.Decode).Inc()

		// Keep the unconsumed tail at the front of the buffer.
		if start > 0 {
			end = copy(buf, buf[start:end])
			start = 0
		}
		if need := d.BytesNeeded(); need > len(buf)-end {
			grown, err := grow(buf, end+need, opts.MaxBufferSize)
			if err != nil {
				return failed(opts.Format, metrics.Decode, err)
			}
			log.Debug("decode buffer grown", zap.Int("from", len(buf)), zap.Int("to", len(grown)))
			metrics.StreamBufferGrows.WithLabelValues(opts.Format).Inc()
			buf = grown
		}

		if err := ctx.Err(); err != nil {
			return failed(opts.Format, metrics.Decode, errors.Canceled(errors.PhaseStream, err))
		}
		m, rerr := r.Read(buf[end:])
		end += m
		total += m
		metrics.StreamBytes.WithLabelValues(opts.Format, metrics.Decode).Add(float64(m))

		switch {
		case rerr == nil:
		case stderrors.Is(rerr, io.EOF):
			eof = true
		default:
			return failed(opts.Format, metrics.Decode, errors.Wrap(errors.PhaseStream, errors.KindInvalidData, rerr, "read failed"))
		}
	}
}

// Encode writes the output of e to w in chunks of BufferSize bytes.
func Encode(ctx context.Context, w io.Writer, e Encoder, opts Options) error {
	opts = opts.withDefaults()

	buf := make([]byte, opts.BufferSize)
	total := 0
	for !e.Done() {
		if err := ctx.Err(); err != nil {
			return failed(opts.Format, metrics.Encode, errors.Canceled(errors.PhaseStream, err))
		}
		n, err := e.Encode(buf)
		if err != nil {
			return failed(opts.Format, metrics.Encode, err)
		}
		if n == 0 {
			continue
		}
		if _, err := w.Write(buf[:n]); err != nil {
			return failed(opts.Format, metrics.Encode, errors.Wrap(errors.PhaseStream, errors.KindInvalidData, err, "write failed"))
		}
		total += n
		metrics.StreamBytes.WithLabelValues(opts.Format, metrics.Encode).Add(float64(n))
		if !e.Done() {
			metrics.StreamSuspensions.WithLabelValues(opts.Format, metrics.Encode).Inc()
		}
	}
	metrics.DocumentSize.WithLabelValues(opts.Format, metrics.Encode).Observe(float64(total))
	return nil
}

func trailing(d Decoder, tail []byte) error {
	if t, ok := d.(Trailer); ok {
		return t.Trailing(tail)
	}
	return nil
}

func grow(buf []byte, need, limit int) ([]byte, error) {
	if need > limit {
		return nil, errors.Overflow(errors.PhaseStream, nil, need, "max buffer size "+strconv.Itoa(limit))
	}
	size := max(2*len(buf), need)
	size = min(size, limit)
	grown := make([]byte, size)
	copy(grown, buf)
	return grown, nil
}

func failed(format, direction string, err error) error {
	kind := errors.KindOf(err)
	if kind == "" {
		kind = "unknown"
	}
	metrics.StreamErrors.WithLabelValues(format, direction, string(kind)).Inc()
	Logger().Debug("stream failed",
		zap.String("format", format),
		zap.String("direction", direction),
		zap.Error(err))
	return err
}

package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/wippyai/framecodec"
	"github.com/wippyai/framecodec/binary"
	"github.com/wippyai/framecodec/json"
	"github.com/wippyai/framecodec/stream"
)

func main() {
	var (
		from        = flag.String("from", "", "Input format: binary or json (default: from -in extension, else json)")
		to          = flag.String("to", "", "Output format: binary or json (default: the other format)")
		in          = flag.String("in", "-", "Input file, - for stdin")
		out         = flag.String("out", "-", "Output file, - for stdout")
		configFile  = flag.String("config", "", "YAML options file")
		chunk       = flag.Int("chunk", 0, "Stream buffer size in bytes (overrides config)")
		inspect     = flag.Bool("inspect", false, "Dump the structure of a binary payload and exit")
		interactive = flag.Bool("i", false, "Step through decoding chunk by chunk in a TUI")
		verbose     = flag.Bool("v", false, "Verbose engine logging to stderr")
	)
	flag.Parse()

	if *verbose {
		logger, err := zap.NewDevelopment()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer logger.Sync()
		binary.SetLogger(logger)
		json.SetLogger(logger)
		stream.SetLogger(logger)
	}

	cfg, err := loadConfig(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if *chunk > 0 {
		cfg.Stream.BufferSize = *chunk
	}

	src := *from
	if src == "" {
		src = formatOf(*in)
	}

	switch {
	case *inspect:
		err = runInspect(*in, cfg)
	case *interactive:
		err = runInteractive(*in, src, cfg, *chunk)
	default:
		dst := *to
		if dst == "" {
			dst = otherFormat(src)
		}
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		err = run(ctx, cfg, src, dst, *in, *out)
		stop()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run converts one document from src to dst. The value passes through an
// empty interface, so registered types keep their names and everything else
// becomes maps, slices and scalars.
func run(ctx context.Context, cfg *config, src, dst, inPath, outPath string) error {
	decoder, err := newCodec(src, cfg)
	if err != nil {
		return err
	}
	encoder, err := newCodec(dst, cfg)
	if err != nil {
		return err
	}

	r, closeIn, err := openInput(inPath)
	if err != nil {
		return err
	}
	defer closeIn()

	v, err := framecodec.Read[any](ctx, decoder, r)
	if err != nil {
		return fmt.Errorf("decode %s: %w", src, err)
	}

	if outPath == "-" || outPath == "" {
		// Raw binary would garble a terminal.
		if dst == binary.Name && term.IsTerminal(int(os.Stdout.Fd())) {
			s, err := encoder.MarshalString(v)
			if err != nil {
				return fmt.Errorf("encode %s: %w", dst, err)
			}
			_, err = fmt.Fprintln(os.Stdout, s)
			return err
		}
		if err := <-framecodec.WriteAsync(ctx, encoder, os.Stdout, v); err != nil {
			return fmt.Errorf("encode %s: %w", dst, err)
		}
		if dst == json.Name && term.IsTerminal(int(os.Stdout.Fd())) {
			fmt.Fprintln(os.Stdout)
		}
		return nil
	}

	f, err := os.Create(outPath)
	if err != nil {
		return fmt.Errorf("create output: %w", err)
	}
	if err := <-framecodec.WriteAsync(ctx, encoder, f, v); err != nil {
		f.Close()
		return fmt.Errorf("encode %s: %w", dst, err)
	}
	return f.Close()
}

func newCodec(format string, cfg *config) (framecodec.Codec, error) {
	switch format {
	case binary.Name:
		opts, err := cfg.binaryOptions()
		if err != nil {
			return nil, err
		}
		return binary.NewCodec(opts).WithStreamOptions(cfg.streamOptions(binary.Name)), nil
	case json.Name:
		opts, err := cfg.jsonOptions()
		if err != nil {
			return nil, err
		}
		return json.NewCodec(opts).WithStreamOptions(cfg.streamOptions(json.Name)), nil
	}
	return nil, fmt.Errorf("unknown format %q (want %s or %s)", format, binary.Name, json.Name)
}

func openInput(path string) (io.Reader, func(), error) {
	if path == "-" || path == "" {
		return os.Stdin, func() {}, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open input: %w", err)
	}
	return f, func() { f.Close() }, nil
}

func readInput(path string) ([]byte, error) {
	if path == "-" || path == "" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(path)
}

func formatOf(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".bin", ".fcb":
		return binary.Name
	}
	return json.Name
}

func otherFormat(format string) string {
	if format == binary.Name {
		return json.Name
	}
	return binary.Name
}

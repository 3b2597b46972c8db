package main

import (
	"bufio"
	"fmt"
	"math"
	"os"
	"strings"

	"github.com/wippyai/framecodec/binary"
)

// runInspect prints one line per structural event of a binary payload.
func runInspect(path string, cfg *config) error {
	data, err := readInput(path)
	if err != nil {
		return fmt.Errorf("read input: %w", err)
	}
	opts, err := cfg.binaryOptions()
	if err != nil {
		return err
	}

	w := bufio.NewWriter(os.Stdout)
	defer w.Flush()

	fmt.Fprintf(w, "%d bytes\n", len(data))
	return binary.Walk(data, opts, func(ev binary.Event) error {
		_, err := fmt.Fprintf(w, "%8d  %s%s\n", ev.Offset, strings.Repeat("  ", ev.Depth), describeEvent(ev, opts))
		return err
	})
}

func describeEvent(ev binary.Event, opts binary.Options) string {
	var b strings.Builder
	switch ev.Kind {
	case binary.EventMember:
		fmt.Fprintf(&b, "#%d", ev.Index)
		return b.String()
	case binary.EventEnd:
		return "end " + ev.Shape.String()
	case binary.EventNull:
		b.WriteString("null")
	case binary.EventBegin:
		fmt.Fprintf(&b, "%s [%d]", ev.Shape, ev.Count)
	case binary.EventScalar:
		fmt.Fprintf(&b, "%s %s", ev.Wire, formatScalar(ev.Value))
	}
	if ev.HasTypeID {
		fmt.Fprintf(&b, " type=%d", ev.TypeID)
		if typ, ok := opts.Registry.ByID(uint32(ev.TypeID)); ev.TypeID <= math.MaxUint32 && ok {
			fmt.Fprintf(&b, " (%s)", typ)
		}
	}
	return b.String()
}

func formatScalar(v any) string {
	switch v := v.(type) {
	case string:
		return fmt.Sprintf("%q", v)
	case []byte:
		return fmt.Sprintf("% x", v)
	}
	return fmt.Sprint(v)
}

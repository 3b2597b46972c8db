package binary

import (
	"github.com/wippyai/framecodec/errors"
	"github.com/wippyai/framecodec/registry"
)

// EventKind identifies a structural event reported by Walk.
type EventKind uint8

const (
	EventNull EventKind = iota
	EventScalar
	EventBegin
	EventEnd
	EventMember
)

var eventNames = [...]string{
	EventNull:   "null",
	EventScalar: "scalar",
	EventBegin:  "begin",
	EventEnd:    "end",
	EventMember: "member",
}

func (k EventKind) String() string {
	if int(k) < len(eventNames) {
		return eventNames[k]
	}
	return "unknown"
}

// Event describes one step of a payload walk.
type Event struct {
	// Value holds scalar payloads: int64, uint64, float64, string or a
	// []byte preview of at most 32 bytes.
	Value     any
	Kind      EventKind
	Shape     registry.Shape
	Wire      WireType
	TypeID    uint64
	HasTypeID bool
	Index     uint32
	Count     int
	Depth     int
	Offset    int
}

// Walk reports the structure of a complete payload without decoding it into
// Go types. It stops at the first error returned by fn.
func Walk(data []byte, opts Options, fn func(Event) error) error {
	d := &Decoder{opts: opts.withDefaults(), observe: fn}
	d.st.Reset(&skipFrame{})

	n, err := d.Feed(data)
	if err != nil {
		return err
	}
	if err := d.Finish(); err != nil {
		return err
	}
	if n < len(data) {
		return errors.New(errors.PhaseDecode, errors.KindInvalidData).
			Offset(n).
			Detail("%d trailing byte(s)", len(data)-n).
			Build()
	}
	return nil
}

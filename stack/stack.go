// Package stack implements the frame stack shared by the binary and JSON
// engines.
//
// A State holds the path from the document root to the value currently being
// produced or consumed: the suspended parent frames plus the current frame.
// Engines never recurse; they inspect the current frame, consume input,
// and either advance the frame in place, Push a child, or Pop a finished
// value. Because the whole path lives in the State, a driver can return to
// its caller at any depth when input runs out and resume later.
//
// A State belongs to exactly one top-level call and is not safe for
// concurrent use.
package stack

import (
	"reflect"
)

// Result is the value produced by a completed frame.
type Result struct {
	// Value is the constructed Go value. It is invalid for discarded values.
	Value reflect.Value
	// Raw is the undecoded text of the value, kept by the JSON engine for
	// object keys and type names.
	Raw string
}

// State is one run of a frame-stack machine over frames of type F.
type State[F any] struct {
	frames  []F
	current F
	last    Result
	hasLast bool
	ended   bool
	started bool

	// Nameless marks a JSON document whose root is a bare sequence.
	Nameless bool
	// BytesNeeded is the minimum number of additional bytes required before
	// the driver can make progress. Only meaningful while suspended.
	BytesNeeded int
	// Offset is the number of input bytes consumed (or output bytes
	// produced) so far.
	Offset int
}

// Reset starts a new run with root as the current frame.
// The frame slice keeps its capacity so frame slots are reused across runs.
func (s *State[F]) Reset(root F) {
	var zero F
	for i := range s.frames {
		s.frames[i] = zero
	}
	s.frames = s.frames[:0]
	s.current = root
	s.last = Result{}
	s.hasLast = false
	s.ended = false
	s.started = true
	s.Nameless = false
	s.BytesNeeded = 0
	s.Offset = 0
}

// Current returns the frame in progress.
func (s *State[F]) Current() F {
	return s.current
}

// Push saves the current frame and makes f current.
func (s *State[F]) Push(f F) {
	s.frames = append(s.frames, s.current)
	s.current = f
}

// Replace swaps the current frame for f without changing depth. Engines use
// it when a frame commits to a more specific mode.
func (s *State[F]) Replace(f F) {
	s.current = f
}

// Pop records r as the last result and restores the parent frame. Popping
// the root frame ends the run.
func (s *State[F]) Pop(r Result) {
	s.last = r
	s.hasLast = true

	var zero F
	if len(s.frames) == 0 {
		s.current = zero
		s.ended = true
		return
	}

	top := len(s.frames) - 1
	s.current = s.frames[top]
	s.frames[top] = zero
	s.frames = s.frames[:top]
}

// TakeLast returns the most recently completed child result and clears it,
// so a parent consumes each child exactly once.
func (s *State[F]) TakeLast() (Result, bool) {
	if !s.hasLast {
		return Result{}, false
	}
	r := s.last
	s.last = Result{}
	s.hasLast = false
	return r, true
}

// Last returns the most recently completed result without clearing it.
// After the run has ended this is the root value.
func (s *State[F]) Last() Result {
	return s.last
}

// Suspend records that n more bytes are needed.
func (s *State[F]) Suspend(n int) {
	if n < 1 {
		n = 1
	}
	s.BytesNeeded = n
}

// Suspended reports whether the last step ran out of input.
func (s *State[F]) Suspended() bool {
	return s.BytesNeeded > 0 && !s.ended
}

// Ended reports whether the root frame has completed.
func (s *State[F]) Ended() bool {
	return s.ended
}

// Started reports whether Reset has been called.
func (s *State[F]) Started() bool {
	return s.started
}

// Depth returns the current nesting depth: suspended parents plus the
// current frame, or zero once the run has ended.
func (s *State[F]) Depth() int {
	if s.ended || !s.started {
		return 0
	}
	return len(s.frames) + 1
}

// Frames returns the path from the root to the current frame. The slice is
// a copy and safe to retain.
func (s *State[F]) Frames() []F {
	if s.ended || !s.started {
		return nil
	}
	out := make([]F, 0, len(s.frames)+1)
	out = append(out, s.frames...)
	return append(out, s.current)
}

// Package join implements the windowed stream join engine (C7, §4.7): per-window
// build of left/right containers followed by nested-loop or hash probe on fire.
// It reuses window.Assigner/window.Interval for slicing so a join shares the exact
// tumbling/sliding semantics C6 already implements, and shares C6's convention of a
// uint64 join key (the same convention a chained join's output stream re-exposes to
// the next join, per §4.7 "Multi-join").
package join

import "github.com/nebulastream/nes-runtime/window"

// Strategy selects the per-slice probe algorithm (§4.7).
type Strategy int

const (
	NestedLoop Strategy = iota
	Hash
)

// Side identifies which input a record arrived on.
type Side int

const (
	Left Side = iota
	Right
)

// Record is one input tuple carrying its event-time timestamp, join key, and the
// rest of its fields opaque to the join engine (concatenated verbatim into the
// output schema, §4.7 "Output schema").
type Record struct {
	TS     int64
	Key    uint64
	Fields map[string]any
}

// Result is one emitted matched pair, still tagged with its owning window so the
// caller can prepend start/end/key per §4.7's output schema.
type Result struct {
	Interval window.Interval
	Key      uint64
	Left     Record
	Right    Record
}

// OutputFn receives each matched pair produced when a window fires.
type OutputFn func(Result)

package pipeline

import "github.com/nebulastream/nes-runtime/cmn/debug"

// HandlerIndex is a compile-time-declared slot the code generator and runtime agree
// on (§9 "Dynamic reflection over operator handlers" design note): no runtime type
// introspection, just a typed handle table indexed by (pipelineId, handlerIndex).
type HandlerIndex int

// HandlerTable owns every operator handler (§3 "Operator handler") a pipeline's
// stages reach for by index: emit ordering state, window slice stores, join hash
// tables, and so on.
type HandlerTable struct {
	handlers map[HandlerIndex]any
}

func NewHandlerTable() *HandlerTable {
	return &HandlerTable{handlers: make(map[HandlerIndex]any)}
}

// Register installs a handler at idx; registering twice at the same idx is a
// configuration bug the code generator should never produce.
func (t *HandlerTable) Register(idx HandlerIndex, handler any) {
	debug.Assert(t.handlers[idx] == nil, "handler index already registered")
	t.handlers[idx] = handler
}

// Handler fetches the raw handler at idx; use the package-level generic Get for a
// typed lookup.
func (t *HandlerTable) Handler(idx HandlerIndex) any { return t.handlers[idx] }

// Get performs the typed lookup+downcast the code generator relies on: the generator
// and runtime agree ahead of time on both idx and T, so a type mismatch here is a
// compile-time-adjacent bug, asserted rather than silently ignored.
func Get[T any](t *HandlerTable, idx HandlerIndex) T {
	h, ok := t.handlers[idx].(T)
	debug.Assert(ok, "handler at index has unexpected type")
	return h
}

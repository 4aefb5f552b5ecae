package pipeline

import "sync"

// Pipeline is a linked chain of operators compiled into a single Stage (§3
// "Pipeline"): one scan root, zero or more intermediate operators, one or more emit
// leaves, all already fused by the code generator into Stage.Execute. What this
// struct tracks at runtime is identity, handler state, successors, and lifecycle.
type Pipeline struct {
	ID    uint64
	Stage Stage
	Ctx   *ExecutionContext

	mu      sync.RWMutex
	running bool
}

// NewPipeline wires a compiled stage to its execution context.
func NewPipeline(id uint64, stage Stage, ctx *ExecutionContext) *Pipeline {
	return &Pipeline{ID: id, Stage: stage, Ctx: ctx}
}

func (p *Pipeline) Name() string {
	return "pipeline-" + itoa(p.ID)
}

func (p *Pipeline) SetRunning(v bool) {
	p.mu.Lock()
	p.running = v
	p.mu.Unlock()
	p.Ctx.SetRunning(v)
}

func (p *Pipeline) Running() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.running
}

func itoa(n uint64) string {
	if n == 0 {
		return "0"
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	return string(buf[i:])
}

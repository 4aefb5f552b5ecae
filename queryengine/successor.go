package queryengine

import (
	"github.com/nebulastream/nes-runtime/memsys"
	"github.com/nebulastream/nes-runtime/pipeline"
)

// PipelineSuccessor adapts a downstream pipeline to pipeline.Successor by enqueuing
// a fresh data task onto the scheduler instead of calling the pipeline directly —
// this is the seam that turns "pipeline A emits" into "pipeline B's queue gains a
// task" (§1 data-flow: "stage calls emit → new Task enqueued for downstream
// pipeline").
type PipelineSuccessor struct {
	Scheduler *Scheduler
	QueryID   uint64
	Target    *pipeline.Pipeline
}

func (s *PipelineSuccessor) Accept(buf *memsys.TupleBuffer) error {
	s.Scheduler.Submit(&Task{
		QueryID:    s.QueryID,
		PipelineID: s.Target.ID,
		Pipeline:   s.Target,
		Buffer:     buf,
	})
	return nil
}

func (s *PipelineSuccessor) Name() string { return s.Target.Name() }

// SinkSuccessor adapts a sink (writeData contract, §6) to pipeline.Successor.
type SinkSuccessor struct {
	SinkName string
	WriteFn  func(*memsys.TupleBuffer) error
}

func (s *SinkSuccessor) Accept(buf *memsys.TupleBuffer) error {
	err := s.WriteFn(buf)
	buf.Release()
	return err
}

func (s *SinkSuccessor) Name() string { return s.SinkName }

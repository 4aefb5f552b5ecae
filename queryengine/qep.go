package queryengine

import (
	"time"

	"github.com/nebulastream/nes-runtime/cmn"
	"github.com/nebulastream/nes-runtime/cmn/debug"
	"github.com/nebulastream/nes-runtime/cmn/nlog"
	"github.com/nebulastream/nes-runtime/memsys"
	"github.com/nebulastream/nes-runtime/pipeline"
	"github.com/nebulastream/nes-runtime/stats"
	"golang.org/x/sync/errgroup"
)

// Status is the QEP lifecycle state (§3).
type Status int

const (
	StatusCreated Status = iota
	StatusRunning
	StatusStopped
	StatusFinished
	StatusErrorState
	StatusInvalid
)

func (s Status) String() string {
	switch s {
	case StatusCreated:
		return "Created"
	case StatusRunning:
		return "Running"
	case StatusStopped:
		return "Stopped"
	case StatusFinished:
		return "Finished"
	case StatusErrorState:
		return "ErrorState"
	case StatusInvalid:
		return "Invalid"
	default:
		return "Unknown"
	}
}

// SourceContract is §6's source plugin contract: everything the scheduler needs to
// drive a source's lifecycle. Concrete sources live in package source; this
// interface is declared here (not there) so queryengine never depends on a concrete
// plugin implementation, only the contract.
type SourceContract interface {
	Start() error
	Stop(graceful bool) error
	Fail() error
	OperatorID() uint64
	ExecutableSuccessors() []pipeline.Successor
	IsNetwork() bool
}

// SinkContract is §6's sink plugin contract.
type SinkContract interface {
	Setup() error
	WriteData(buf *memsys.TupleBuffer) error
	Shutdown(graceful bool) error
	IsNetwork() bool
	Name() string
}

// QEP is the Query Execution Plan (§3): the rooted DAG of pipelines and sinks for
// one query, plus its sources and lifecycle status.
type QEP struct {
	ID        uint64
	Pipelines []*pipeline.Pipeline
	Sources   []SourceContract
	Sinks     []SinkContract

	// SLA is this qep's declared service-level objective (§4.9); the zero value
	// means "none declared" and Manager.Register substitutes stats.DefaultSLA().
	SLA stats.SLA

	scheduler *Scheduler
	status    Status

	done chan struct{} // closed once the qep reaches a terminal status
}

// NewQEP constructs a qep in the Created state (§4.4 register()).
func NewQEP(id uint64, scheduler *Scheduler, pipelines []*pipeline.Pipeline, sources []SourceContract, sinks []SinkContract) *QEP {
	return &QEP{
		ID:        id,
		Pipelines: pipelines,
		Sources:   sources,
		Sinks:     sinks,
		scheduler: scheduler,
		status:    StatusCreated,
		done:      make(chan struct{}),
	}
}

func (q *QEP) Status() Status { return q.status }

func (q *QEP) finish(s Status) {
	q.status = s
	select {
	case <-q.done:
	default:
		close(q.done)
	}
}

// Start runs §4.4's fixed four-phase startup ordering: network sinks, then network
// sources, then non-network sinks, then non-network sources — receivers ready
// before producers. Each phase uses an errgroup so phase N+1 only begins once every
// actor in phase N has reported ready.
func (q *QEP) Start() error {
	for _, p := range q.Pipelines {
		if err := p.Stage.Setup(p.Ctx); err != nil {
			q.status = StatusErrorState
			return cmn.NewErrCannotOpenSource(0, err)
		}
	}

	phases := []func(*errgroup.Group){
		func(g *errgroup.Group) {
			for _, s := range q.Sinks {
				if s.IsNetwork() {
					s := s
					g.Go(func() error { return wrapSinkErr(s, s.Setup()) })
				}
			}
		},
		func(g *errgroup.Group) {
			for _, s := range q.Sources {
				if s.IsNetwork() {
					s := s
					g.Go(func() error { return wrapSourceErr(s, s.Start()) })
				}
			}
		},
		func(g *errgroup.Group) {
			for _, s := range q.Sinks {
				if !s.IsNetwork() {
					s := s
					g.Go(func() error { return wrapSinkErr(s, s.Setup()) })
				}
			}
		},
		func(g *errgroup.Group) {
			for _, s := range q.Sources {
				if !s.IsNetwork() {
					s := s
					g.Go(func() error { return wrapSourceErr(s, s.Start()) })
				}
			}
		},
	}
	for _, phase := range phases {
		var g errgroup.Group
		phase(&g)
		if err := g.Wait(); err != nil {
			q.status = StatusErrorState
			return err
		}
	}

	for _, p := range q.Pipelines {
		p.SetRunning(true)
	}
	q.status = StatusRunning
	return nil
}

func wrapSourceErr(s SourceContract, err error) error {
	if err != nil {
		return cmn.NewErrCannotOpenSource(s.OperatorID(), err)
	}
	return nil
}

func wrapSinkErr(s SinkContract, err error) error {
	if err != nil {
		return cmn.NewErrCannotOpenSink(s.Name(), err)
	}
	return nil
}

// Stop implements §4.4's stop(qep, graceful): graceful stops only leaf (non-network)
// sources and propagates soft-EOS; hard stops every source immediately and
// propagates hard-EOS. It waits up to cfg.TerminationTimeout for the termination
// future; timing out is a fatal assertion (§7 DeadlineExceeded), not silently
// ignored.
func (q *QEP) Stop(graceful bool, cfg *cmn.Config) error {
	if graceful {
		for _, s := range q.Sources {
			if !s.IsNetwork() {
				if err := s.Stop(true); err != nil {
					nlog.Errorln("queryengine: graceful source stop failed:", err)
				}
			}
		}
		for _, s := range q.Sources {
			q.AddEndOfStream(s, true)
		}
	} else {
		for _, s := range q.Sources {
			if err := s.Stop(false); err != nil {
				nlog.Errorln("queryengine: hard source stop failed:", err)
			}
		}
		for _, s := range q.Sources {
			q.AddEndOfStream(s, false)
		}
	}

	select {
	case <-q.done:
		return nil
	case <-time.After(cfg.TerminationTimeout):
		err := cmn.NewErrDeadlineExceeded("stop")
		nlog.Fatalln("queryengine: qep", q.ID, "stop exceeded termination deadline:", err)
		return err
	}
}

// Fail implements §4.4's fail(qep): fail all sources, wait on the termination
// future, then post a destroy reconfiguration once it resolves.
func (q *QEP) Fail(cfg *cmn.Config) error {
	for _, s := range q.Sources {
		if err := s.Fail(); err != nil {
			nlog.Errorln("queryengine: source fail reported:", err)
		}
	}
	q.finish(StatusErrorState)

	select {
	case <-q.done:
	case <-time.After(cfg.TerminationTimeout):
		nlog.Fatalln("queryengine: qep", q.ID, "fail exceeded termination deadline")
		return cmn.NewErrDeadlineExceeded("fail")
	}

	for _, p := range q.Pipelines {
		q.scheduler.PostReconfiguration(ReconfigDestroy, p.ID, q.ID, nil, nil)
	}
	return nil
}

// AddEndOfStream posts a soft- or hard-EOS reconfiguration message for every
// successor pipeline of src (§4.4), each callback carrying a reference to this qep
// (the qep pointer itself; Go's GC makes a literal weak-handle upgrade unnecessary,
// but callers must still check q.status before acting, exactly as a real
// weak-reference upgrade would require). Successors that are not a
// *PipelineSuccessor (sinks) receive no message, and network sources are not
// notified.
func (q *QEP) AddEndOfStream(src SourceContract, graceful bool) {
	typ := ReconfigSoftEOS
	if !graceful {
		typ = ReconfigHardEOS
	}
	for _, succ := range src.ExecutableSuccessors() {
		if ps, ok := succ.(*PipelineSuccessor); ok {
			debug.Assert(ps.Target != nil, "pipeline successor missing target")
			q.scheduler.PostReconfiguration(typ, ps.Target.ID, q.ID, nil, func() {
				q.maybeFinish()
			})
		}
	}
}

// maybeFinish transitions the qep to Finished on the first EOS barrier callback that
// reaches it, unless the qep is in ErrorState. It keeps no count of which pipelines
// have observed EOS.
func (q *QEP) maybeFinish() {
	if q.status == StatusErrorState {
		return
	}
	q.finish(StatusFinished)
}

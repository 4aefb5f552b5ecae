package queryengine

import (
	"sync"

	"github.com/nebulastream/nes-runtime/cmn"
	"github.com/nebulastream/nes-runtime/stats"
	"github.com/teris-io/shortid"
)

// Manager is the query-submission surface of §6: register/start/stop/fail/status/
// statistics, one level above Scheduler (which only knows about tasks and queues,
// not qeps).
type Manager struct {
	cfg       *cmn.Config
	scheduler *Scheduler
	stats     *stats.Listener

	mu   sync.RWMutex
	qeps map[uint64]*QEP

	nextQueue int // round-robin Static-mode queue assignment at register() time
}

func NewManager(cfg *cmn.Config) *Manager {
	listener := stats.NewListener(cfg.Adaptive.WindowSize)
	scheduler := NewScheduler(cfg)
	scheduler.SetStatsListener(listener)
	return &Manager{
		cfg:       cfg,
		scheduler: scheduler,
		stats:     listener,
		qeps:      make(map[uint64]*QEP),
	}
}

func (m *Manager) Scheduler() *Scheduler { return m.scheduler }

func (m *Manager) StartWorkers() { m.scheduler.Start() }
func (m *Manager) StopWorkers()  { m.scheduler.Stop() }

// Register records a qep's sources, assigns it a Static-mode queue id, creates its
// per-query statistics, and makes it reachable by id (§4.4 register(qep): "record
// sources, create per-query statistics, assign a task-queue id"). Every registered
// qep gets a QueryStats tracker, not only the ones a stage author remembers to wire
// by hand; worker.runData reports every completed task to it (§4.9).
func (m *Manager) Register(qep *QEP) {
	if m.cfg.QueryManagerMode == cmn.ModeStatic {
		qi := m.nextQueue % m.cfg.NumberOfQueues
		m.nextQueue++
		for _, p := range qep.Pipelines {
			m.scheduler.AssignQueue(p.ID, qi)
		}
	}

	sla := qep.SLA
	if sla == (stats.SLA{}) {
		sla = stats.DefaultSLA()
	}
	computer := stats.TuplePerTaskComputer{
		IncreaseFactor: m.cfg.Adaptive.IncreaseFactor,
		DecreaseFactor: m.cfg.Adaptive.DecreaseFactor,
		MinBatch:       m.cfg.Adaptive.MinBatch,
	}
	m.stats.Register(qep.ID, sla, computer, m.cfg.Adaptive.MinBatch)

	m.mu.Lock()
	m.qeps[qep.ID] = qep
	m.mu.Unlock()
}

// Statistics implements §6's statistics(qepId) -> QueryStatistics: the current
// aggregated SLA-compliance and adaptive-batch-size snapshot for a registered qep.
func (m *Manager) Statistics(id uint64) (stats.Snapshot, bool) {
	return m.stats.Snapshot(id)
}

func (m *Manager) Get(id uint64) (*QEP, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	q, ok := m.qeps[id]
	return q, ok
}

func (m *Manager) Start(id uint64) error {
	q, ok := m.Get(id)
	if !ok {
		return cmn.NewErrConfiguration("unknown qep %d", id)
	}
	return q.Start()
}

func (m *Manager) Stop(id uint64, graceful bool) error {
	q, ok := m.Get(id)
	if !ok {
		return cmn.NewErrConfiguration("unknown qep %d", id)
	}
	return q.Stop(graceful, m.cfg)
}

func (m *Manager) Fail(id uint64) error {
	q, ok := m.Get(id)
	if !ok {
		return cmn.NewErrConfiguration("unknown qep %d", id)
	}
	return q.Fail(m.cfg)
}

func (m *Manager) StatusOf(id uint64) (Status, bool) {
	q, ok := m.Get(id)
	if !ok {
		return StatusInvalid, false
	}
	return q.Status(), true
}

// NewQueryID generates a short, URL-safe query execution plan id, the way the
// teacher generates xaction UUIDs at Start() time (xact/xs/tcobjs.go's genBEID).
func NewQueryID() (string, error) {
	return shortid.Generate()
}

package window

import (
	"encoding/binary"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/OneOfOne/xxhash"
)

const numStripes = 32

// OutputFn receives one fired slice's result: one call per key for keyed windows, a
// single call with hasKey=false for non-keyed (global) windows (§4.6 "Emission
// writes one output tuple per (key) for keyed windows, or one tuple for global
// windows").
type OutputFn func(interval Interval, key uint64, hasKey bool, value float64)

// Store is the per-operator window slice store (C6, §4.6). Its striped locks are
// keyed by window-start (§5): stripeFor hashes the interval start with xxhash to
// pick one of numStripes mutexes, so two goroutines updating different windows
// rarely contend.
type Store struct {
	assigner        Assigner
	fn              AggFunc
	keyed           bool
	allowedLateness int64
	domain          TimeDomain

	stripes [numStripes]sync.Mutex
	slices  map[int64]*sliceEntry // keyed by interval start; guarded by the stripe its start hashes to

	watermarkMu    sync.Mutex
	perOriginMaxTS map[uint64]int64
	watermark      int64

	lateRecords atomic.Int64
}

type sliceEntry struct {
	interval Interval
	keyed    map[uint64]*aggState
	global   *aggState
}

// NewStore constructs an empty slice store for one window specification.
func NewStore(assigner Assigner, fn AggFunc, keyed bool, allowedLateness int64, domain TimeDomain) *Store {
	return &Store{
		assigner:        assigner,
		fn:              fn,
		keyed:           keyed,
		allowedLateness: allowedLateness,
		domain:          domain,
		slices:          make(map[int64]*sliceEntry),
		perOriginMaxTS:  make(map[uint64]int64),
	}
}

func stripeFor(start int64) int {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], uint64(start))
	return int(xxhash.Checksum64(b[:]) % numStripes)
}

// Watermark returns the current watermark, advanced per AdvanceWatermark calls.
func (s *Store) Watermark() int64 {
	s.watermarkMu.Lock()
	defer s.watermarkMu.Unlock()
	return s.watermark
}

// LateRecords returns the count of records dropped for arriving after their slice's
// allowed lateness deadline (P3).
func (s *Store) LateRecords() int64 { return s.lateRecords.Load() }

// Process folds one record into every active slice its timestamp belongs to (§4.6
// "Slicing"). Returns false if the record was dropped as late.
func (s *Store) Process(t int64, key uint64, hasKey bool, value float64) bool {
	wm := s.Watermark()
	if t+s.allowedLateness < wm {
		s.lateRecords.Add(1)
		return false
	}

	for _, iv := range s.assigner.SlicesFor(t) {
		stripe := &s.stripes[stripeFor(iv.Start)]
		stripe.Lock()
		e, ok := s.slices[iv.Start]
		if !ok {
			e = &sliceEntry{interval: iv}
			if s.keyed {
				e.keyed = make(map[uint64]*aggState)
			} else {
				e.global = newAggState(s.fn)
			}
			s.slices[iv.Start] = e
		}
		if s.keyed {
			a, ok := e.keyed[key]
			if !ok {
				a = newAggState(s.fn)
				e.keyed[key] = a
			}
			a.update(value)
		} else {
			e.global.update(value)
		}
		stripe.Unlock()
	}
	return true
}

// AdvanceWatermark updates originID's observed max timestamp and recomputes the
// global watermark as max(previous, min over known origins of their per-origin max
// timestamp) — §4.6's definition, generalized across however many origins feed this
// operator (one, for a single source; more, after a union).
func (s *Store) AdvanceWatermark(originID uint64, observedMaxTS int64) int64 {
	s.watermarkMu.Lock()
	defer s.watermarkMu.Unlock()
	if cur, ok := s.perOriginMaxTS[originID]; !ok || observedMaxTS > cur {
		s.perOriginMaxTS[originID] = observedMaxTS
	}
	minAcrossOrigins := int64(-1)
	for _, ts := range s.perOriginMaxTS {
		if minAcrossOrigins == -1 || ts < minAcrossOrigins {
			minAcrossOrigins = ts
		}
	}
	if minAcrossOrigins > s.watermark {
		s.watermark = minAcrossOrigins
	}
	return s.watermark
}

// Fire emits and discards every slice whose end <= the current watermark, in
// ascending end order (§4.6 "Firing"). Emission order within one slice is
// unspecified for keyed windows (§4.7's sibling rule for joins applies equally
// here).
func (s *Store) Fire(out OutputFn) {
	wm := s.Watermark()

	type due struct {
		start int64
		e     *sliceEntry
	}
	var dueList []due

	for start, e := range s.collectSnapshot() {
		if e.interval.End <= wm {
			dueList = append(dueList, due{start: start, e: e})
		}
	}
	sort.Slice(dueList, func(i, j int) bool { return dueList[i].e.interval.End < dueList[j].e.interval.End })

	for _, d := range dueList {
		stripe := &s.stripes[stripeFor(d.start)]
		stripe.Lock()
		e, ok := s.slices[d.start]
		if ok {
			delete(s.slices, d.start)
		}
		stripe.Unlock()
		if !ok {
			continue // concurrently fired by another caller; Fire is expected single-threaded per operator but guards anyway
		}
		if s.keyed {
			for k, a := range e.keyed {
				out(e.interval, k, true, a.Value())
			}
		} else {
			out(e.interval, 0, false, e.global.Value())
		}
	}
}

// collectSnapshot takes a point-in-time copy of slice intervals while holding every
// stripe lock at once.
func (s *Store) collectSnapshot() map[int64]*sliceEntry {
	snap := make(map[int64]*sliceEntry, len(s.slices))
	for i := range s.stripes {
		s.stripes[i].Lock()
	}
	for start, e := range s.slices {
		snap[start] = e
	}
	for i := range s.stripes {
		s.stripes[i].Unlock()
	}
	return snap
}

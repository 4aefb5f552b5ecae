package join

import (
	"encoding/binary"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/OneOfOne/xxhash"
	"github.com/nebulastream/nes-runtime/window"
)

const numStripes = 32

// Store is the per-join-operator slice store: striped locks keyed by window-start,
// the same layout window.Store uses (§5 applies equally to join build-side state).
type Store struct {
	assigner        window.Assigner
	strategy        Strategy
	allowedLateness int64

	stripes [numStripes]sync.Mutex
	slices  map[int64]*joinSlice

	watermarkMu    sync.Mutex
	perOriginMaxTS map[uint64]int64
	watermark      int64

	lateRecords atomic.Int64
}

type joinSlice struct {
	interval window.Interval
	left     []Record
	right    []Record
}

func NewStore(assigner window.Assigner, strategy Strategy, allowedLateness int64) *Store {
	return &Store{
		assigner:        assigner,
		strategy:        strategy,
		allowedLateness: allowedLateness,
		slices:          make(map[int64]*joinSlice),
		perOriginMaxTS:  make(map[uint64]int64),
	}
}

func stripeFor(start int64) int {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], uint64(start))
	return int(xxhash.Checksum64(b[:]) % numStripes)
}

func (s *Store) Watermark() int64 {
	s.watermarkMu.Lock()
	defer s.watermarkMu.Unlock()
	return s.watermark
}

func (s *Store) LateRecords() int64 { return s.lateRecords.Load() }

// Process appends rec into every active slice on the given side (§4.7 "Per-window
// build"). Returns false if the record was dropped as late.
func (s *Store) Process(side Side, rec Record) bool {
	wm := s.Watermark()
	if rec.TS+s.allowedLateness < wm {
		s.lateRecords.Add(1)
		return false
	}

	for _, iv := range s.assigner.SlicesFor(rec.TS) {
		stripe := &s.stripes[stripeFor(iv.Start)]
		stripe.Lock()
		e, ok := s.slices[iv.Start]
		if !ok {
			e = &joinSlice{interval: iv}
			s.slices[iv.Start] = e
		}
		if side == Left {
			e.left = append(e.left, rec)
		} else {
			e.right = append(e.right, rec)
		}
		stripe.Unlock()
	}
	return true
}

// AdvanceWatermark mirrors window.Store.AdvanceWatermark: the watermark is the max
// of its previous value and the min, over known origins, of their per-origin max
// observed timestamp.
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

// Fire probes and discards every slice whose end <= watermark, in ascending end
// order (§4.7 "Ordering": "between windows, output order respects window end time").
func (s *Store) Fire(out OutputFn) {
	wm := s.Watermark()

	type due struct {
		start int64
		e     *joinSlice
	}
	var dueList []due
	for start, e := range s.collectSnapshot() {
		if e.interval.End <= wm {
			dueList = append(dueList, due{start, e})
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
			continue
		}
		probe(s.strategy, e.left, e.right, func(l, r Record) {
			out(Result{Interval: e.interval, Key: l.Key, Left: l, Right: r})
		})
	}
}

func (s *Store) collectSnapshot() map[int64]*joinSlice {
	snap := make(map[int64]*joinSlice, len(s.slices))
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

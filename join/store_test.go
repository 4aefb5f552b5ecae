package join

import (
	"testing"

	"github.com/nebulastream/nes-runtime/window"
)

func rec(ts int64, key uint64, id any) Record {
	return Record{TS: ts, Key: key, Fields: map[string]any{"id": id}}
}

func TestNestedLoopTumblingJoin(t *testing.T) {
	s := NewStore(window.Tumbling{Size: 1000}, NestedLoop, 0)

	s.Process(Left, rec(1001, 12, 1))
	s.Process(Right, rec(1011, 12, 5))
	s.Process(Left, rec(1002, 4, 1))
	s.Process(Right, rec(1102, 4, 3))

	s.AdvanceWatermark(1, 2000)

	var results []Result
	s.Fire(func(r Result) { results = append(results, r) })

	if len(results) != 2 {
		t.Fatalf("expected 2 matched pairs, got %d: %+v", len(results), results)
	}
	for _, r := range results {
		if r.Interval.Start != 1000 || r.Interval.End != 2000 {
			t.Fatalf("unexpected window interval: %+v", r.Interval)
		}
		if r.Left.Key != r.Right.Key {
			t.Fatalf("matched pair keys differ: %+v", r)
		}
	}
}

func TestHashJoinMatchesSameAsNestedLoop(t *testing.T) {
	nl := NewStore(window.Tumbling{Size: 1000}, NestedLoop, 0)
	hj := NewStore(window.Tumbling{Size: 1000}, Hash, 0)

	for _, store := range []*Store{nl, hj} {
		store.Process(Left, rec(1001, 12, "l12a"))
		store.Process(Left, rec(1005, 12, "l12b"))
		store.Process(Right, rec(1011, 12, "r12"))
		store.Process(Left, rec(1002, 4, "l4"))
		store.Process(Right, rec(1102, 4, "r4"))
		store.Process(Right, rec(1500, 99, "unmatched"))
		store.AdvanceWatermark(1, 2000)
	}

	count := func(s *Store) int {
		n := 0
		s.Fire(func(r Result) { n++ })
		return n
	}

	nlCount := count(nl)
	hjCount := count(hj)
	if nlCount != hjCount {
		t.Fatalf("nested-loop and hash join produced different match counts: %d vs %d", nlCount, hjCount)
	}
	if nlCount != 3 {
		t.Fatalf("expected 3 matched pairs (2 for key 12, 1 for key 4), got %d", nlCount)
	}
}

func TestJoinLateRecordDropped(t *testing.T) {
	s := NewStore(window.Tumbling{Size: 1000}, NestedLoop, 100)
	s.AdvanceWatermark(1, 5000)

	ok := s.Process(Left, rec(1000, 1, "x")) // 1000+100=1100 < 5000 -> late
	if ok {
		t.Fatalf("expected late record to be dropped")
	}
	if s.LateRecords() != 1 {
		t.Fatalf("expected 1 late record recorded, got %d", s.LateRecords())
	}
}

func TestChainedJoinOutputFeedsNextJoin(t *testing.T) {
	first := NewStore(window.Tumbling{Size: 1000}, NestedLoop, 0)
	first.Process(Left, rec(1001, 12, "a"))
	first.Process(Right, rec(1011, 12, "b"))
	first.AdvanceWatermark(1, 2000)

	var chained []Record
	first.Fire(func(r Result) {
		chained = append(chained, AsRecord(r, 777))
	})
	if len(chained) != 1 {
		t.Fatalf("expected 1 chained record, got %d", len(chained))
	}
	if chained[0].Key != 777 {
		t.Fatalf("expected re-keyed chained record, got key %d", chained[0].Key)
	}
	if chained[0].Fields["id"] == nil {
		t.Fatalf("expected merged fields to carry through, got %+v", chained[0].Fields)
	}
}

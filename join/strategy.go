package join

import (
	"encoding/binary"

	cuckoo "github.com/seiflotfy/cuckoofilter"
)

// probe runs the configured strategy over one slice's accumulated left/right
// records and reports every pair whose keys match (§4.7 "Per-window build").
func probe(strategy Strategy, left, right []Record, emit func(l, r Record)) {
	switch strategy {
	case Hash:
		hashProbe(left, right, emit)
	default:
		nestedLoopProbe(left, right, emit)
	}
}

// nestedLoopProbe cartesian-enumerates and keeps pairs satisfying the equi-join
// predicate (§4.7's NestedLoop strategy).
func nestedLoopProbe(left, right []Record, emit func(l, r Record)) {
	for _, l := range left {
		for _, r := range right {
			if l.Key == r.Key {
				emit(l, r)
			}
		}
	}
}

// hashProbe builds a hash table on the smaller side and probes it with the larger
// side (§4.7 "probe smaller side against larger"), guarding each probe with a
// cuckoo filter so keys absent from the build side skip the exact bucket lookup.
func hashProbe(left, right []Record, emit func(l, r Record)) {
	buildLeft := len(left) <= len(right)
	build, probeSide := left, right
	if !buildLeft {
		build, probeSide = right, left
	}

	filter := cuckoo.NewFilter(uint(nextPow2(len(build) + 1)))
	table := make(map[uint64][]Record, len(build))
	for _, rec := range build {
		filter.InsertUnique(keyBytes(rec.Key))
		table[rec.Key] = append(table[rec.Key], rec)
	}

	for _, rec := range probeSide {
		if !filter.Lookup(keyBytes(rec.Key)) {
			continue // definitely absent from the build side, skip the real lookup
		}
		for _, match := range table[rec.Key] {
			if buildLeft {
				emit(match, rec)
			} else {
				emit(rec, match)
			}
		}
	}
}

func keyBytes(k uint64) []byte {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], k)
	return b[:]
}

func nextPow2(n int) int {
	if n < 1 {
		return 1
	}
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}

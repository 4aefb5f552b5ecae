// Package inputformat implements C10's spanning-tuple reassembly: a sequence ring
// buffer of staged byte-stream chunks, indexed by sequenceNumber mod N, each slot
// carrying an ABA-tagged atomic state word (§4.10). The bit layout reproduces the
// original NebulaStream `SequenceRingBuffer.hpp`: a 32-bit iteration tag packed with
// three boolean bits (SUPPLEMENTED FEATURES #2), rather than inventing a new
// encoding.
package inputformat

import "sync/atomic"

// Bit layout of slotState, low to high:
//
//	bits [0:32)  abaIteration   (sequenceNumber / N at last Stage)
//	bit  32      hasTupleDelimiter
//	bit  33      claimedSpanningTuple
//	bit  34      usedLeading
//	bit  35      usedTrailing
const (
	bitHasDelimiter = 32
	bitClaimed      = 33
	bitUsedLeading  = 34
	bitUsedTrailing = 35

	abaMask = (uint64(1) << 32) - 1
)

func packState(aba uint32, hasDelim, claimed, usedLeading, usedTrailing bool) uint64 {
	s := uint64(aba)
	if hasDelim {
		s |= 1 << bitHasDelimiter
	}
	if claimed {
		s |= 1 << bitClaimed
	}
	if usedLeading {
		s |= 1 << bitUsedLeading
	}
	if usedTrailing {
		s |= 1 << bitUsedTrailing
	}
	return s
}

func abaOf(state uint64) uint32      { return uint32(state & abaMask) }
func hasDelimiter(state uint64) bool { return state&(1<<bitHasDelimiter) != 0 }
func isClaimed(state uint64) bool    { return state&(1<<bitClaimed) != 0 }
func usedLeading(state uint64) bool  { return state&(1<<bitUsedLeading) != 0 }
func usedTrailing(state uint64) bool { return state&(1<<bitUsedTrailing) != 0 }

// slot is one ring position: its staged leading/trailing byte spans plus the
// packed atomic state word guarding them.
type slot struct {
	state atomic.Uint64

	leading  []byte
	trailing []byte
}

// RingBuffer is the fixed-size, ABA-tagged sequence ring of §4.10. Its size must
// exceed the worst-case in-flight span the caller expects (unbounded spans are a
// configuration error the caller must size for, not something the ring detects).
type RingBuffer struct {
	n     uint64
	slots []slot
}

// NewRingBuffer constructs a ring of n slots.
func NewRingBuffer(n int) *RingBuffer {
	if n < 1 {
		n = 1
	}
	return &RingBuffer{n: uint64(n), slots: make([]slot, n)}
}

func (r *RingBuffer) index(seq uint64) uint64 { return seq % r.n }
func (r *RingBuffer) iteration(seq uint64) uint32 { return uint32(seq / r.n) }

// Stage writes one arriving buffer's content into slot (s mod N) per step 1 of
// §4.10's protocol: an atomic CAS that embeds the current iteration tag, so a
// reader can distinguish this write from a stale one left by a previous wrap.
// hasDelimiter reports whether the buffer itself contains a record delimiter
// (e.g. newline); leading/trailing are the byte spans before the first and after
// the last delimiter respectively (equal to the full content when hasDelimiter is
// false).
func (r *RingBuffer) Stage(seq uint64, leading, trailing []byte, hasDelim bool) bool {
	idx := r.index(seq)
	iter := r.iteration(seq)
	sl := &r.slots[idx]

	for {
		old := sl.state.Load()
		if abaOf(old) == iter && (usedLeading(old) || usedTrailing(old) || isClaimed(old)) {
			return false // already staged and in use this iteration; caller must not overwrite
		}
		next := packState(iter, hasDelim, false, false, false)
		if sl.state.CompareAndSwap(old, next) {
			sl.leading = leading
			sl.trailing = trailing
			return true
		}
	}
}

// slotView is a read-only observation of one slot's state for the neighbor walk.
type slotView struct {
	ok    bool
	state uint64
	idx   uint64
}

func (r *RingBuffer) view(seq uint64) slotView {
	idx := r.index(seq)
	iter := r.iteration(seq)
	state := r.slots[idx].state.Load()
	if abaOf(state) != iter {
		return slotView{} // not owned by this iteration: treat as absent (§4.10 step 2/3 "un-owned slot")
	}
	return slotView{ok: true, state: state, idx: idx}
}

// Reassemble implements §4.10 steps 2-5 for the slot at sequence number seq that
// carries an unresolved leading fragment (either a delimiter-bearing buffer whose
// own leading span needs a predecessor, or a pure continuation chunk that needs
// both a predecessor and a successor). It walks backward for a leading
// delimiter-bearing slot and, unless seq itself bears a delimiter (in which case
// seq is its own right edge), forward for a trailing one. If both edges are found,
// the caller that wins the CAS on the leading slot's claim bit assembles and
// returns the spanning tuple; all others get ok=false and must not reassemble
// (§4.10 step 4).
func (r *RingBuffer) Reassemble(seq uint64) (spanning []byte, ok bool) {
	v := r.view(seq)
	if !v.ok {
		return nil, false
	}

	leadSeq, leadOK := r.walk(seq, -1)

	trailSeq := seq
	trailOK := hasDelimiter(v.state)
	if !trailOK {
		trailSeq, trailOK = r.walk(seq, +1)
	}
	if !leadOK || !trailOK {
		return nil, false
	}

	leadIdx := r.index(leadSeq)
	leadSlot := &r.slots[leadIdx]
	leadIter := r.iteration(leadSeq)

	for {
		old := leadSlot.state.Load()
		if abaOf(old) != leadIter {
			return nil, false // wrapped under us
		}
		if isClaimed(old) {
			return nil, false // another goroutine already won this spanning tuple
		}
		next := old | (1 << bitClaimed)
		if leadSlot.state.CompareAndSwap(old, next) {
			break
		}
	}

	var out []byte
	out = append(out, leadSlot.trailing...)
	for s := leadSeq + 1; s < trailSeq; s++ {
		v := r.view(s)
		if !v.ok {
			continue
		}
		full := r.slots[r.index(s)].leading
		out = append(out, full...)
		r.markUsed(s, true, true)
	}
	trailSlot := &r.slots[r.index(trailSeq)]
	out = append(out, trailSlot.leading...)

	r.markUsed(leadSeq, false, true)
	r.markUsed(trailSeq, true, false)

	return out, true
}

// walk searches for the nearest delimiter-bearing slot in direction dir (-1 for
// leading, +1 for trailing), stopping at the first delimiter-bearing slot or at an
// un-owned slot (§4.10 steps 2/3). It returns the found sequence number, or ok=false
// if the walk ran off owned slots before finding a delimiter.
func (r *RingBuffer) walk(from uint64, dir int64) (uint64, bool) {
	seq := int64(from) + dir
	for i := uint64(0); i < r.n; i++ {
		if seq < 0 {
			return 0, false
		}
		v := r.view(uint64(seq))
		if !v.ok {
			return 0, false
		}
		if hasDelimiter(v.state) {
			return uint64(seq), true
		}
		seq += dir
	}
	return 0, false
}

func (r *RingBuffer) markUsed(seq uint64, leading, trailing bool) {
	sl := &r.slots[r.index(seq)]
	iter := r.iteration(seq)
	for {
		old := sl.state.Load()
		if abaOf(old) != iter {
			return
		}
		next := old
		if leading {
			next |= 1 << bitUsedLeading
		}
		if trailing {
			next |= 1 << bitUsedTrailing
		}
		if next == old || sl.state.CompareAndSwap(old, next) {
			return
		}
	}
}

// Validate checks §4.10 step 5's invariant for seq: every completed slot has
// usedLeading set, and if its successor shares its iteration tag, usedTrailing is
// also set.
func (r *RingBuffer) Validate(seq uint64) bool {
	v := r.view(seq)
	if !v.ok {
		return true // nothing staged at this slot (yet), vacuously fine
	}
	if !usedLeading(v.state) {
		return false
	}
	succ := r.view(seq + 1)
	if succ.ok && r.iteration(seq) == r.iteration(seq+1) {
		return usedTrailing(v.state)
	}
	return true
}

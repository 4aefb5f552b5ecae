package inputformat

import (
	"bytes"

	"github.com/nebulastream/nes-runtime/memsys"
)

// Scanner is the seam a scan pipeline stage calls into before tokenizing raw
// bytes (SUPPLEMENTED FEATURES #5: "a scan stage calls into inputformat before
// tokenizing"). It owns one RingBuffer per origin's byte stream and splits each
// incoming buffer on delim, staging any boundary-straddling remainder for
// reassembly.
type Scanner struct {
	ring  *RingBuffer
	delim byte
}

// NewScanner builds a scanner over a ring of ringSize slots, splitting records on
// delim (e.g. '\n').
func NewScanner(ringSize int, delim byte) *Scanner {
	return &Scanner{ring: NewRingBuffer(ringSize), delim: delim}
}

// Scan processes buf's payload at sequence number seq: every complete
// delimiter-bounded record within the payload is returned directly, while a
// leading/trailing partial record (one that starts or ends the payload without a
// delimiter on that side) is staged in the ring buffer so a neighboring chunk can
// complete it. assembled holds any spanning tuple this call's staging completed.
// The payload is copied first, so returned and staged records stay valid after buf
// is released.
func (s *Scanner) Scan(buf *memsys.TupleBuffer) (complete [][]byte, assembled [][]byte) {
	payload := bytes.Clone(buf.PayloadPtr()[:buf.PayloadSize()])
	seq := buf.SequenceNumber()

	first := bytes.IndexByte(payload, s.delim)
	if first < 0 {
		// no delimiter at all in this chunk: the whole thing is one straddling span.
		s.ring.Stage(seq, payload, payload, false)
		if span, ok := s.ring.Reassemble(seq); ok {
			assembled = append(assembled, span)
		}
		return complete, assembled
	}

	last := bytes.LastIndexByte(payload, s.delim)
	leading := payload[:first]
	trailing := payload[last+1:]
	s.ring.Stage(seq, leading, trailing, true)

	if len(leading) > 0 {
		if span, ok := s.ring.Reassemble(seq); ok {
			assembled = append(assembled, span)
		} else {
			// no predecessor staged (yet): treat as a standalone record rather than
			// block on a reassembly that may never come, e.g. the very first chunk
			// of a stream.
			complete = append(complete, leading)
		}
	}

	for start := first + 1; start <= last; {
		next := bytes.IndexByte(payload[start:], s.delim)
		if next < 0 {
			break
		}
		complete = append(complete, payload[start:start+next])
		start += next + 1
	}

	return complete, assembled
}

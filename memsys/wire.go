package memsys

import (
	"bytes"

	"github.com/tinylib/msgp/msgp"
)

// Header is the on-the-wire buffer header (§6 "Buffer wire semantics"), encoded with
// msgp's streaming primitives directly (no generated (De)EncodeMsg — the header is
// nine fixed fields, a code-gen pass would buy nothing over hand-written Write/Read
// calls on msgp.Writer/Reader).
type Header struct {
	OriginID         uint64
	SequenceNumber   uint64
	ChunkNumber      uint64
	LastChunk        bool
	Watermark        uint64
	CreationTS       uint64
	NumberOfTuples   uint64
	PayloadBytes     uint64
	ChildBufferCount uint16
}

// HeaderOf snapshots a TupleBuffer's metadata into a wire Header.
func HeaderOf(b *TupleBuffer) Header {
	return Header{
		OriginID:         b.OriginID(),
		SequenceNumber:   b.SequenceNumber(),
		ChunkNumber:      b.ChunkNumber(),
		LastChunk:        b.LastChunk(),
		Watermark:        b.Watermark(),
		CreationTS:       creationWallClock(),
		NumberOfTuples:   b.NumberOfTuples(),
		PayloadBytes:     uint64(b.PayloadSize()),
		ChildBufferCount: uint16(b.ChildBufferCount()),
	}
}

// EncodeHeader writes h's nine fields in the fixed wire order.
func EncodeHeader(h Header) ([]byte, error) {
	var buf bytes.Buffer
	w := msgp.NewWriter(&buf)
	var lastChunk uint8
	if h.LastChunk {
		lastChunk = 1
	}
	for _, err := range []error{
		w.WriteUint64(h.OriginID),
		w.WriteUint64(h.SequenceNumber),
		w.WriteUint64(h.ChunkNumber),
		w.WriteUint8(lastChunk),
		w.WriteUint64(h.Watermark),
		w.WriteUint64(h.CreationTS),
		w.WriteUint64(h.NumberOfTuples),
		w.WriteUint64(h.PayloadBytes),
		w.WriteUint16(h.ChildBufferCount),
	} {
		if err != nil {
			return nil, err
		}
	}
	if err := w.Flush(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DecodeHeader reverses EncodeHeader.
func DecodeHeader(b []byte) (Header, error) {
	var h Header
	r := msgp.NewReader(bytes.NewReader(b))
	var err error
	if h.OriginID, err = r.ReadUint64(); err != nil {
		return h, err
	}
	if h.SequenceNumber, err = r.ReadUint64(); err != nil {
		return h, err
	}
	if h.ChunkNumber, err = r.ReadUint64(); err != nil {
		return h, err
	}
	lastChunk, err := r.ReadUint8()
	if err != nil {
		return h, err
	}
	h.LastChunk = lastChunk != 0
	if h.Watermark, err = r.ReadUint64(); err != nil {
		return h, err
	}
	if h.CreationTS, err = r.ReadUint64(); err != nil {
		return h, err
	}
	if h.NumberOfTuples, err = r.ReadUint64(); err != nil {
		return h, err
	}
	if h.PayloadBytes, err = r.ReadUint64(); err != nil {
		return h, err
	}
	if h.ChildBufferCount, err = r.ReadUint16(); err != nil {
		return h, err
	}
	return h, nil
}

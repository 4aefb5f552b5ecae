package source

import (
	"sync"

	"github.com/nebulastream/nes-runtime/memsys"
)

// CollectingSink implements queryengine.SinkContract by decoding and accumulating
// every written buffer's rows in memory — a terminal sink for tests and for
// observing query output without a network transport.
type CollectingSink struct {
	name string

	mu   sync.Mutex
	rows []Record
}

func NewCollectingSink(name string) *CollectingSink {
	return &CollectingSink{name: name}
}

func (s *CollectingSink) Name() string  { return s.name }
func (s *CollectingSink) IsNetwork() bool { return false }
func (s *CollectingSink) Setup() error  { return nil }

func (s *CollectingSink) WriteData(buf *memsys.TupleBuffer) error {
	rows, err := DecodeRecords(buf.PayloadPtr()[:buf.PayloadSize()])
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.rows = append(s.rows, rows...)
	s.mu.Unlock()
	return nil
}

func (s *CollectingSink) Shutdown(graceful bool) error { return nil }

// Rows returns a snapshot of everything written so far.
func (s *CollectingSink) Rows() []Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Record, len(s.rows))
	copy(out, s.rows)
	return out
}

package source

import (
	"io"
	"strings"
	"testing"

	"github.com/nebulastream/nes-runtime/cmn"
	"github.com/nebulastream/nes-runtime/memsys"
	"github.com/nebulastream/nes-runtime/pipeline"
)

func newPool(t *testing.T) (*memsys.BufferManager, *memsys.FixedSizeBufferPool) {
	t.Helper()
	cfg := cmn.Default()
	cfg.NumberOfBuffers = 16
	cfg.BufferSize = 4096
	bm, err := memsys.NewBufferManager(cfg)
	if err != nil {
		t.Fatalf("NewBufferManager: %v", err)
	}
	sp, err := bm.CreateFixedSizeBufferPool("source-test", 8)
	if err != nil {
		t.Fatalf("CreateFixedSizeBufferPool: %v", err)
	}
	return bm, sp
}

func TestRecordSourceDrainsAndStampsSequence(t *testing.T) {
	bm, sp := newPool(t)
	defer bm.Destroy()

	sink := NewCollectingSink("out")
	succ := &acceptSuccessor{fn: func(buf *memsys.TupleBuffer) error {
		err := sink.WriteData(buf)
		buf.Release()
		return err
	}}

	base := NewBase(1, 100, sp, []pipeline.Successor{succ}, false)
	rows := []Record{{"id": 1.0}, {"id": 2.0}, {"id": 3.0}}
	src := NewRecordSource(base, rows, 2)
	if err := src.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	var seqs []uint64
	for {
		err := src.Drain()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("Drain: %v", err)
		}
		seqs = append(seqs, base.seq.Load())
	}
	if len(seqs) != 2 {
		t.Fatalf("expected 2 batches (2+1 rows over batch size 2), got %d", len(seqs))
	}
	if seqs[0] != 1 || seqs[1] != 2 {
		t.Fatalf("expected monotonically increasing sequence numbers, got %v", seqs)
	}
	if got := sink.Rows(); len(got) != 3 {
		t.Fatalf("expected all 3 rows collected, got %d: %+v", len(got), got)
	}
}

type acceptSuccessor struct {
	fn func(*memsys.TupleBuffer) error
}

func (a *acceptSuccessor) Accept(buf *memsys.TupleBuffer) error { return a.fn(buf) }
func (a *acceptSuccessor) Name() string                         { return "test-sink" }

func TestLoadCSVParsesNumericAndStringColumns(t *testing.T) {
	csvData := "win1,id1,ts\n1000,12,1001\n1000,4,1002\n"
	rows, err := LoadCSV(strings.NewReader(csvData))
	if err != nil {
		t.Fatalf("LoadCSV: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
	if rows[0]["id1"] != 12.0 {
		t.Fatalf("expected numeric field parsed as float64, got %#v", rows[0]["id1"])
	}
}

func TestGracefulStopMarksLastChunk(t *testing.T) {
	bm, sp := newPool(t)
	defer bm.Destroy()

	var lastChunkSeen bool
	succ := &acceptSuccessor{fn: func(buf *memsys.TupleBuffer) error {
		lastChunkSeen = buf.LastChunk()
		buf.Release()
		return nil
	}}
	base := NewBase(1, 1, sp, []pipeline.Successor{succ}, false)
	src := NewRecordSource(base, []Record{{"id": 1.0}}, 10)
	src.Start()

	if err := src.Drain(); err != nil {
		t.Fatalf("Drain: %v", err)
	}
	if !lastChunkSeen {
		t.Fatalf("expected the final buffer to carry lastChunk=true on graceful drain completion")
	}
}

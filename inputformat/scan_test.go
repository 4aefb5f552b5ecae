package inputformat

import (
	"testing"

	"github.com/nebulastream/nes-runtime/cmn"
	"github.com/nebulastream/nes-runtime/memsys"
)

func writeBuf(t *testing.T, bm *memsys.BufferManager, seq uint64, content string) *memsys.TupleBuffer {
	t.Helper()
	buf := bm.GetBufferBlocking()
	copy(buf.PayloadPtr(), content)
	buf.Allocate(len(content))
	buf.SetSequenceNumber(seq)
	return buf
}

func TestScannerSplitsCompleteRecordsAndStagesRemainder(t *testing.T) {
	cfg := cmn.Default()
	cfg.NumberOfBuffers = 4
	cfg.BufferSize = 256
	bm, err := memsys.NewBufferManager(cfg)
	if err != nil {
		t.Fatalf("NewBufferManager: %v", err)
	}
	defer bm.Destroy()

	s := NewScanner(8, '\n')

	b1 := writeBuf(t, bm, 0, "row1\nrow2\nHEAD")
	complete, assembled := s.Scan(b1)
	b1.Release()
	if len(complete) != 2 || string(complete[0]) != "row1" || string(complete[1]) != "row2" {
		t.Fatalf("expected complete records 'row1' (no predecessor, treated standalone) and 'row2', got %q", complete)
	}
	if len(assembled) != 0 {
		t.Fatalf("expected no reassembly yet (no leading neighbor), got %q", assembled)
	}

	b2 := writeBuf(t, bm, 1, "TAIL\nrow3\n")
	complete2, assembled2 := s.Scan(b2)
	b2.Release()
	if len(complete2) != 1 || string(complete2[0]) != "row3" {
		t.Fatalf("expected one complete record 'row3', got %q", complete2)
	}
	if len(assembled2) != 1 || string(assembled2[0]) != "HEADTAIL" {
		t.Fatalf("expected the spanning record 'HEADTAIL', got %q", assembled2)
	}
}

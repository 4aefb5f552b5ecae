package source

import (
	"bufio"
	"encoding/csv"
	"io"
	"strconv"

	"github.com/nebulastream/nes-runtime/cmn"
)

// RecordSource replays a fixed, pre-loaded set of rows as tuple buffers, batching
// rowsPerBuffer rows into each buffer. It is the minimal source needed to drive the
// engine end to end without a network transport (§4.8's leaf, non-network case).
type RecordSource struct {
	*Base
	rows      []Record
	batchSize int
	cursor    int
}

// NewRecordSource constructs a source over rows, batching rowsPerBuffer rows into
// each emitted tuple buffer.
func NewRecordSource(base *Base, rows []Record, rowsPerBuffer int) *RecordSource {
	if rowsPerBuffer < 1 {
		rowsPerBuffer = 1
	}
	return &RecordSource{Base: base, rows: rows, batchSize: rowsPerBuffer}
}

func (s *RecordSource) Start() error {
	s.setRunning(true)
	return nil
}

// Drain emits the next batch of rows as one tuple buffer, honoring §4.8's buffer
// labeling contract; the batch that exhausts the rows goes out through the graceful
// stop with lastChunk set. Callers (typically a worker driving this source from its
// own goroutine) call Drain until it returns io.EOF.
func (s *RecordSource) Drain() error {
	if !s.isRunning() {
		return io.EOF
	}
	if s.cursor >= len(s.rows) {
		return io.EOF
	}
	end := s.cursor + s.batchSize
	if end > len(s.rows) {
		end = len(s.rows)
	}
	batch := s.rows[s.cursor:end]
	s.cursor = end

	buf, err := s.nextBuffer()
	if err != nil {
		return err
	}
	payload, err := EncodeRecords(batch)
	if err != nil {
		buf.Release()
		return err
	}
	if len(payload) > buf.Capacity() {
		payload = payload[:buf.Capacity()]
	}
	copy(buf.PayloadPtr(), payload)
	buf.Allocate(len(payload))
	buf.SetNumberOfTuples(uint64(len(batch)))

	if s.cursor >= len(s.rows) {
		return s.stopGraceful(buf)
	}
	return s.emit(buf)
}

func (s *RecordSource) Stop(graceful bool) error {
	if graceful {
		return s.stopGraceful(nil)
	}
	s.stopHard()
	return nil
}

func (s *RecordSource) Fail() error {
	s.fail()
	return nil
}

// LoadCSV parses r as a header-row CSV file into Records keyed by column name,
// converting numeric-looking fields to float64 so window/join code can treat them
// as aggregable values (§8's window.csv/window2.csv fixtures follow this shape:
// columns like win1/id1/ts).
func LoadCSV(r io.Reader) ([]Record, error) {
	reader := csv.NewReader(bufio.NewReader(r))
	header, err := reader.Read()
	if err != nil {
		return nil, err
	}
	var rows []Record
	for {
		fields, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, cmn.NewErrConfiguration("csv source: %v", err)
		}
		row := make(Record, len(header))
		for i, col := range header {
			if i >= len(fields) {
				continue
			}
			if f, err := strconv.ParseFloat(fields[i], 64); err == nil {
				row[col] = f
			} else {
				row[col] = fields[i]
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}

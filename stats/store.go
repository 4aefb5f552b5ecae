package stats

import (
	"fmt"

	jsoniter "github.com/json-iterator/go"
	"github.com/tidwall/buntdb"
)

var jsonAPI = jsoniter.ConfigCompatibleWithStandardLibrary

// Store is an embedded, queryable history of QueryStatistics snapshots (§4.9,
// DOMAIN STACK: buntdb "so statistics(qepId) can serve point-in-time and ranged
// reads without re-deriving from the live rolling window").
type Store struct {
	db *buntdb.DB
}

// OpenStore opens path (":memory:" for a process-local, non-persistent store) and
// creates the by_seq index (ascending seq) that Latest and Range read through.
func OpenStore(path string) (*Store, error) {
	db, err := buntdb.Open(path)
	if err != nil {
		return nil, err
	}
	if err := db.CreateIndex("by_seq", "snap:*", buntdb.IndexJSON("seq")); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

type storedSnapshot struct {
	Snapshot
	Seq int64 `json:"seq"`
}

// Put persists snap under a monotonically increasing sequence number, keyed by
// query id and seq, so Latest returns the snapshot with the highest seq.
func (s *Store) Put(seq int64, snap Snapshot) error {
	rec := storedSnapshot{Snapshot: snap, Seq: seq}
	buf, err := jsonAPI.Marshal(rec)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *buntdb.Tx) error {
		_, _, err := tx.Set(snapKey(snap.QueryID, seq), string(buf), nil)
		return err
	})
}

// Latest returns the most recently written snapshot for queryID.
func (s *Store) Latest(queryID uint64) (Snapshot, bool, error) {
	var result storedSnapshot
	var found bool
	err := s.db.View(func(tx *buntdb.Tx) error {
		return tx.Descend("by_seq", func(key, value string) bool {
			var rec storedSnapshot
			if err := jsonAPI.UnmarshalFromString(value, &rec); err != nil {
				return true
			}
			if rec.QueryID != queryID {
				return true
			}
			result = rec
			found = true
			return false
		})
	})
	if err != nil {
		return Snapshot{}, false, err
	}
	return result.Snapshot, found, nil
}

// Range returns every snapshot for queryID with seq in [fromSeq, toSeq], ascending.
func (s *Store) Range(queryID uint64, fromSeq, toSeq int64) ([]Snapshot, error) {
	var out []Snapshot
	err := s.db.View(func(tx *buntdb.Tx) error {
		return tx.AscendRange("by_seq",
			fmt.Sprintf(`{"seq":%d}`, fromSeq),
			fmt.Sprintf(`{"seq":%d}`, toSeq+1),
			func(key, value string) bool {
				var rec storedSnapshot
				if err := jsonAPI.UnmarshalFromString(value, &rec); err != nil {
					return true
				}
				if rec.QueryID == queryID {
					out = append(out, rec.Snapshot)
				}
				return true
			})
	})
	return out, err
}

func snapKey(queryID uint64, seq int64) string {
	return fmt.Sprintf("snap:%d:%012d", queryID, seq)
}

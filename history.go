// history.go
// Persistent suggestion history: per-mode shown/accepted/dismissed counters
// and a bounded log of recently accepted suggestions, stored in bbolt.
package ghosttype

import (
	"bytes"
	"encoding/binary"
	"encoding/gob"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"go.etcd.io/bbolt"
)

var (
	historyStatsBucket  = []byte("StatsV1")
	historyRecentBucket = []byte("RecentV1")
	historyMetaBucket   = []byte("MetaV1")
	historySchemaKey    = []byte("schemaVersion")
)

// recentHistoryLimit bounds the persisted accepted-suggestion log.
const recentHistoryLimit = 50

// HistoryRecord is one accepted suggestion kept in the recent log.
type HistoryRecord struct {
	Mode     Mode
	Text     string
	URI      string
	Accepted time.Time
}

// HistoryStats aggregates counters for one mode.
type HistoryStats struct {
	Shown     uint64 `json:"shown"`
	Accepted  uint64 `json:"accepted"`
	Dismissed uint64 `json:"dismissed"`
}

// HistoryStore persists suggestion outcomes across engine restarts.
type HistoryStore struct {
	db     *bbolt.DB
	logger *slog.Logger
}

// NewHistoryStore opens (or creates) the bbolt database at path. A schema
// version mismatch drops and recreates the buckets. Open failures return a
// nil store wrapped error; the engine runs without history in that case.
func NewHistoryStore(path string, logger *slog.Logger) (*HistoryStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "HistoryStore")

	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("%w: creating history dir: %w", ErrHistory, err)
	}
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("%w: opening %s: %w", ErrHistory, path, err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		meta, err := tx.CreateBucketIfNotExists(historyMetaBucket)
		if err != nil {
			return err
		}
		stored := meta.Get(historySchemaKey)
		if stored != nil && btoi(stored) != historySchemaVersion {
			logger.Warn("History schema version mismatch, resetting store",
				"stored", btoi(stored), "expected", historySchemaVersion)
			for _, name := range [][]byte{historyStatsBucket, historyRecentBucket} {
				if tx.Bucket(name) != nil {
					if err := tx.DeleteBucket(name); err != nil {
						return err
					}
				}
			}
		}
		if err := meta.Put(historySchemaKey, itob(historySchemaVersion)); err != nil {
			return err
		}
		if _, err := tx.CreateBucketIfNotExists(historyStatsBucket); err != nil {
			return err
		}
		_, err = tx.CreateBucketIfNotExists(historyRecentBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: initializing buckets: %w", ErrHistory, err)
	}
	logger.Info("Suggestion history store opened", "path", path)
	return &HistoryStore{db: db, logger: logger}, nil
}

// Close closes the underlying database. Safe on a nil store.
func (h *HistoryStore) Close() error {
	if h == nil || h.db == nil {
		return nil
	}
	return h.db.Close()
}

func (h *HistoryStore) bump(counter string, mode Mode) {
	if h == nil || h.db == nil {
		return
	}
	key := []byte(counter + ":" + string(mode))
	err := h.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(historyStatsBucket)
		if b == nil {
			return nil
		}
		var n uint64
		if v := b.Get(key); v != nil {
			n = btou(v)
		}
		return b.Put(key, utob(n+1))
	})
	if err != nil {
		h.logger.Warn("Failed to update history counter", "counter", counter, "mode", mode, "error", err)
	}
}

// RecordShown notes that a suggestion reached the renderer.
func (h *HistoryStore) RecordShown(mode Mode) { h.bump("shown", mode) }

// RecordDismissed notes a dismissed suggestion.
func (h *HistoryStore) RecordDismissed(mode Mode) { h.bump("dismissed", mode) }

// RecordAccepted notes an accepted suggestion and appends it to the recent
// log, trimming the log to recentHistoryLimit entries.
func (h *HistoryStore) RecordAccepted(rec HistoryRecord) {
	if h == nil || h.db == nil {
		return
	}
	h.bump("accepted", rec.Mode)

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(rec); err != nil {
		h.logger.Warn("Failed to encode history record", "error", err)
		return
	}
	err := h.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(historyRecentBucket)
		if b == nil {
			return nil
		}
		seq, err := b.NextSequence()
		if err != nil {
			return err
		}
		if err := b.Put(utob(seq), buf.Bytes()); err != nil {
			return err
		}
		// Trim oldest entries beyond the limit.
		c := b.Cursor()
		count := 0
		for k, _ := c.First(); k != nil; k, _ = c.Next() {
			count++
		}
		excess := count - recentHistoryLimit
		for k, _ := c.First(); k != nil && excess > 0; k, _ = c.Next() {
			// Deleting through the cursor keeps iteration stable.
			if err := c.Delete(); err != nil {
				return err
			}
			excess--
		}
		return nil
	})
	if err != nil {
		h.logger.Warn("Failed to append history record", "error", err)
	}
}

// Stats returns the per-mode counters.
func (h *HistoryStore) Stats() map[Mode]HistoryStats {
	out := make(map[Mode]HistoryStats)
	if h == nil || h.db == nil {
		return out
	}
	err := h.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(historyStatsBucket)
		if b == nil {
			return nil
		}
		return b.ForEach(func(k, v []byte) error {
			var counter, mode string
			if i := bytes.IndexByte(k, ':'); i > 0 {
				counter, mode = string(k[:i]), string(k[i+1:])
			} else {
				return nil
			}
			s := out[Mode(mode)]
			switch counter {
			case "shown":
				s.Shown = btou(v)
			case "accepted":
				s.Accepted = btou(v)
			case "dismissed":
				s.Dismissed = btou(v)
			}
			out[Mode(mode)] = s
			return nil
		})
	})
	if err != nil {
		h.logger.Warn("Failed to read history stats", "error", err)
	}
	return out
}

// RecentAccepted returns up to n most recently accepted suggestions, newest
// first.
func (h *HistoryStore) RecentAccepted(n int) []HistoryRecord {
	if h == nil || h.db == nil || n <= 0 {
		return nil
	}
	var out []HistoryRecord
	err := h.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(historyRecentBucket)
		if b == nil {
			return nil
		}
		c := b.Cursor()
		for k, v := c.Last(); k != nil && len(out) < n; k, v = c.Prev() {
			var rec HistoryRecord
			if err := gob.NewDecoder(bytes.NewReader(v)).Decode(&rec); err != nil {
				h.logger.Warn("Skipping undecodable history record", "error", err)
				continue
			}
			out = append(out, rec)
		}
		return nil
	})
	if err != nil {
		h.logger.Warn("Failed to read recent history", "error", err)
	}
	return out
}

func itob(v int) []byte    { return utob(uint64(v)) }
func btoi(b []byte) int    { return int(btou(b)) }
func utob(v uint64) []byte { b := make([]byte, 8); binary.BigEndian.PutUint64(b, v); return b }
func btou(b []byte) uint64 {
	if len(b) != 8 {
		return 0
	}
	return binary.BigEndian.Uint64(b)
}

// Package storage is the bbolt-backed bookkeeping store: the Reclaimer's
// persisted age-sweep watermark and an audit ledger of dispatched anomaly
// actions and sweep outcomes. This is operational bookkeeping, not the
// central bundle storage the spec explicitly excludes — bundles themselves
// stay on local disk under the output root; only small accounting records
// live here.
//
// Schema (bbolt bucket layout):
//
//	/meta
//	    key: "schema_version"  value: "1"
//	    key: "last_age_sweep"  value: RFC3339Nano
//
//	/ledger
//	    key:   fixed-width UTC timestamp (ns) + "_" + zero-padded sequence  (sortable)
//	    value: JSON-encoded LedgerEntry
package storage

import (
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	bolt "go.etcd.io/bbolt"
)

const (
	// SchemaVersion is the current database schema version.
	SchemaVersion = "1"

	// DefaultRetentionDays is the default ledger retention period.
	DefaultRetentionDays = 30

	bucketMeta   = "meta"
	bucketLedger = "ledger"

	metaKeySchemaVersion = "schema_version"
	metaKeyLastAgeSweep  = "last_age_sweep"
)

// LedgerEntry is a single audit record: either a dispatched anomaly action
// or a Reclaimer sweep outcome.
type LedgerEntry struct {
	Timestamp time.Time `json:"timestamp"`
	NodeID    string    `json:"node_id"`

	// Event is "anomaly_dispatch" or "reclaim_sweep".
	Event string `json:"event"`

	// Fields populated for Event == "anomaly_dispatch".
	AnomalyKind     string `json:"anomaly_kind,omitempty"`
	BatchID         int64  `json:"batch_id,omitempty"`
	ActionsOK       int    `json:"actions_ok,omitempty"`
	ActionsFailed   int    `json:"actions_failed,omitempty"`
	BundlePath      string `json:"bundle_path,omitempty"`

	// Fields populated for Event == "reclaim_sweep".
	SweepKind     string `json:"sweep_kind,omitempty"` // "size" or "age"
	EntriesDeleted int   `json:"entries_deleted,omitempty"`
	BytesFreed    int64  `json:"bytes_freed,omitempty"`
}

// DB wraps a bbolt instance with typed accessors for daemon bookkeeping.
type DB struct {
	db            *bolt.DB
	retentionDays int
	seq           uint64
}

// Open opens (or creates) the bbolt database at path, initialising its
// buckets and schema version in one write transaction.
func Open(path string, retentionDays int) (*DB, error) {
	if retentionDays <= 0 {
		retentionDays = DefaultRetentionDays
	}

	bdb, err := bolt.Open(path, 0o600, &bolt.Options{
		Timeout:      5 * time.Second,
		FreelistType: bolt.FreelistArrayType,
	})
	if err != nil {
		return nil, fmt.Errorf("bolt.Open(%q): %w", path, err)
	}

	d := &DB{db: bdb, retentionDays: retentionDays}

	if err := d.db.Update(func(tx *bolt.Tx) error {
		for _, name := range []string{bucketMeta, bucketLedger} {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return fmt.Errorf("CreateBucketIfNotExists(%q): %w", name, err)
			}
		}
		meta := tx.Bucket([]byte(bucketMeta))
		if meta.Get([]byte(metaKeySchemaVersion)) == nil {
			if err := meta.Put([]byte(metaKeySchemaVersion), []byte(SchemaVersion)); err != nil {
				return fmt.Errorf("write schema_version: %w", err)
			}
		}
		return nil
	}); err != nil {
		_ = bdb.Close()
		return nil, fmt.Errorf("database initialisation failed: %w", err)
	}

	if err := d.checkSchemaVersion(); err != nil {
		_ = bdb.Close()
		return nil, err
	}

	return d, nil
}

func (d *DB) checkSchemaVersion() error {
	return d.db.View(func(tx *bolt.Tx) error {
		meta := tx.Bucket([]byte(bucketMeta))
		v := meta.Get([]byte(metaKeySchemaVersion))
		if string(v) != SchemaVersion {
			return fmt.Errorf(
				"schema version mismatch: database has %q, daemon requires %q",
				string(v), SchemaVersion)
		}
		return nil
	})
}

// Close closes the underlying bbolt file.
func (d *DB) Close() error { return d.db.Close() }

// LastAgeSweepTime returns the persisted watermark for the Reclaimer's
// age-based cleanup, or the zero Time if none has been recorded yet.
func (d *DB) LastAgeSweepTime() (time.Time, error) {
	var t time.Time
	err := d.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket([]byte(bucketMeta)).Get([]byte(metaKeyLastAgeSweep))
		if v == nil {
			return nil
		}
		parsed, err := time.Parse(time.RFC3339Nano, string(v))
		if err != nil {
			return fmt.Errorf("parse last_age_sweep: %w", err)
		}
		t = parsed
		return nil
	})
	return t, err
}

// SetLastAgeSweepTime persists the watermark for the Reclaimer's age-based
// cleanup so it survives a supervised restart.
func (d *DB) SetLastAgeSweepTime(t time.Time) error {
	return d.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(bucketMeta)).Put(
			[]byte(metaKeyLastAgeSweep), []byte(t.UTC().Format(time.RFC3339Nano)))
	})
}

// ledgerKeyLayout is RFC3339 with a fixed nine-digit fraction. Unlike
// time.RFC3339Nano it keeps trailing zeros, so every key has the same width.
const ledgerKeyLayout = "2006-01-02T15:04:05.000000000Z07:00"

// ledgerKey constructs a sortable key: fixed-width UTC timestamp + "_" +
// monotonic sequence, zero-padded. Lexicographic sort equals chronological
// sort even when two entries share a timestamp.
func (d *DB) ledgerKey(t time.Time) []byte {
	seq := atomic.AddUint64(&d.seq, 1)
	return []byte(fmt.Sprintf("%s_%020d", t.UTC().Format(ledgerKeyLayout), seq))
}

// AppendLedger writes a new audit ledger entry.
func (d *DB) AppendLedger(entry LedgerEntry) error {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("AppendLedger marshal: %w", err)
	}
	key := d.ledgerKey(entry.Timestamp)
	return d.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(bucketLedger)).Put(key, data)
	})
}

// PruneOldLedgerEntries deletes ledger entries older than retentionDays.
// Called on startup. Returns the number of entries deleted.
func (d *DB) PruneOldLedgerEntries() (int, error) {
	cutoff := time.Now().UTC().AddDate(0, 0, -d.retentionDays)
	cutoffKey := []byte(fmt.Sprintf("%s_", cutoff.Format(ledgerKeyLayout)))

	var deleted int
	err := d.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketLedger))
		c := b.Cursor()

		var toDelete [][]byte
		for k, _ := c.First(); k != nil; k, _ = c.Next() {
			if string(k) >= string(cutoffKey) {
				break
			}
			keyCopy := make([]byte, len(k))
			copy(keyCopy, k)
			toDelete = append(toDelete, keyCopy)
		}
		for _, k := range toDelete {
			if err := b.Delete(k); err != nil {
				return fmt.Errorf("PruneOldLedgerEntries delete: %w", err)
			}
			deleted++
		}
		return nil
	})
	return deleted, err
}

package storage

import (
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	bolt "go.etcd.io/bbolt"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "aodv2.db")
	db, err := Open(path, 30)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestLastAgeSweepTimeRoundTrip(t *testing.T) {
	db := openTestDB(t)

	zero, err := db.LastAgeSweepTime()
	if err != nil {
		t.Fatalf("LastAgeSweepTime before any write: %v", err)
	}
	if !zero.IsZero() {
		t.Fatalf("expected zero time before first write, got %v", zero)
	}

	want := time.Now().UTC().Truncate(time.Nanosecond)
	if err := db.SetLastAgeSweepTime(want); err != nil {
		t.Fatalf("SetLastAgeSweepTime: %v", err)
	}

	got, err := db.LastAgeSweepTime()
	if err != nil {
		t.Fatalf("LastAgeSweepTime: %v", err)
	}
	if !got.Equal(want) {
		t.Fatalf("LastAgeSweepTime() = %v, want %v", got, want)
	}
}

// readLedgerEntries is a test-only helper that walks the ledger bucket
// directly in key order, since the daemon itself never reads the ledger back
// (it is write-only bookkeeping with no operational inspection path).
func readLedgerEntries(t *testing.T, db *DB) []LedgerEntry {
	t.Helper()
	var entries []LedgerEntry
	err := db.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(bucketLedger)).ForEach(func(_, v []byte) error {
			var e LedgerEntry
			if err := json.Unmarshal(v, &e); err != nil {
				return err
			}
			entries = append(entries, e)
			return nil
		})
	})
	if err != nil {
		t.Fatalf("walk ledger bucket: %v", err)
	}
	return entries
}

func TestAppendLedgerOrdersEntriesChronologically(t *testing.T) {
	db := openTestDB(t)

	for i := 0; i < 3; i++ {
		if err := db.AppendLedger(LedgerEntry{
			Event:       "anomaly_dispatch",
			AnomalyKind: "latency",
			BatchID:     int64(i),
		}); err != nil {
			t.Fatalf("AppendLedger %d: %v", i, err)
		}
	}

	entries := readLedgerEntries(t, db)
	if len(entries) != 3 {
		t.Fatalf("ledger has %d entries, want 3", len(entries))
	}
	for i, e := range entries {
		if e.BatchID != int64(i) {
			t.Fatalf("entry %d: BatchID = %d, want %d (ledger must sort chronologically)", i, e.BatchID, i)
		}
	}
}

func TestPruneOldLedgerEntries(t *testing.T) {
	db := openTestDB(t)

	old := LedgerEntry{Event: "reclaim_sweep", SweepKind: "age", Timestamp: time.Now().UTC().AddDate(0, 0, -40)}
	if err := db.AppendLedger(old); err != nil {
		t.Fatalf("AppendLedger(old): %v", err)
	}
	recent := LedgerEntry{Event: "reclaim_sweep", SweepKind: "size"}
	if err := db.AppendLedger(recent); err != nil {
		t.Fatalf("AppendLedger(recent): %v", err)
	}

	deleted, err := db.PruneOldLedgerEntries()
	if err != nil {
		t.Fatalf("PruneOldLedgerEntries: %v", err)
	}
	if deleted != 1 {
		t.Fatalf("PruneOldLedgerEntries deleted %d, want 1", deleted)
	}

	entries := readLedgerEntries(t, db)
	if len(entries) != 1 || entries[0].SweepKind != "size" {
		t.Fatalf("expected only the recent entry to survive pruning, got %+v", entries)
	}
}

func TestOpenRejectsSchemaMismatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "aodv2.db")
	db, err := Open(path, 30)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := db.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(bucketMeta)).Put([]byte(metaKeySchemaVersion), []byte("99"))
	}); err != nil {
		t.Fatalf("corrupt schema version: %v", err)
	}
	db.Close()

	if _, err := Open(path, 30); err == nil {
		t.Fatal("expected Open to reject a mismatched schema version")
	}
}

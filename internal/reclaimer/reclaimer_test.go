package reclaimer

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/aodv2/aodv2/internal/config"
	"github.com/aodv2/aodv2/internal/observability"
	"github.com/aodv2/aodv2/internal/storage"
)

func writeArchive(t *testing.T, dir, name string, size int, mtime time.Time) {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, make([]byte, size), 0o644); err != nil {
		t.Fatalf("write archive %s: %v", path, err)
	}
	if err := os.Chtimes(path, mtime, mtime); err != nil {
		t.Fatalf("chtimes %s: %v", path, err)
	}
}

func testReclaimer(t *testing.T, maxBytes, maxAgeDays int) (*Reclaimer, string) {
	t.Helper()
	root := t.TempDir()
	batches := filepath.Join(root, "batches")
	if err := os.MkdirAll(batches, 0o755); err != nil {
		t.Fatalf("mkdir batches: %v", err)
	}

	db, err := storage.Open(filepath.Join(root, "aodv2.db"), 30)
	if err != nil {
		t.Fatalf("storage.Open: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	cfg := config.Defaults()
	cfg.AODOutputDir = root
	cfg.Cleanup.MaxTotalLogSizeMB = 0
	cfg.Cleanup.MaxLogAgeDays = maxAgeDays

	r := New(&cfg, observability.NewMetrics(), zap.NewNop(), db)
	r.maxBytes = int64(maxBytes)
	return r, batches
}

func TestSizeCleanupDeletesOldestFirstToLowWatermark(t *testing.T) {
	r, batches := testReclaimer(t, 1000, 7)

	now := time.Now()
	writeArchive(t, batches, "aod_quick_1.tar.zst", 400, now.Add(-3*time.Hour))
	writeArchive(t, batches, "aod_quick_2.tar.zst", 400, now.Add(-2*time.Hour))
	writeArchive(t, batches, "aod_quick_3.tar.zst", 400, now.Add(-1*time.Hour))

	r.Tick()

	if _, err := os.Stat(filepath.Join(batches, "aod_quick_1.tar.zst")); !os.IsNotExist(err) {
		t.Fatal("expected oldest archive to be deleted first")
	}
	if _, err := os.Stat(filepath.Join(batches, "aod_quick_3.tar.zst")); err != nil {
		t.Fatal("expected newest archive to survive size cleanup")
	}
}

func TestSizeCleanupSkipsBelowTrigger(t *testing.T) {
	r, batches := testReclaimer(t, 1000, 7)

	now := time.Now()

	// Below the 0.9 trigger: no deletions should occur.
	writeArchive(t, batches, "aod_quick_small.tar.zst", 100, now)
	r.Tick()
	if _, err := os.Stat(filepath.Join(batches, "aod_quick_small.tar.zst")); err != nil {
		t.Fatal("expected archive below trigger watermark to survive")
	}
}

func TestAgeCleanupPersistsWatermark(t *testing.T) {
	r, batches := testReclaimer(t, 1_000_000, 1)

	old := time.Now().Add(-48 * time.Hour)
	writeArchive(t, batches, "aod_quick_old.tar.zst", 10, old)

	r.Tick()

	if _, err := os.Stat(filepath.Join(batches, "aod_quick_old.tar.zst")); !os.IsNotExist(err) {
		t.Fatal("expected archive older than max_log_age_days to be deleted")
	}

	last, err := r.db.LastAgeSweepTime()
	if err != nil {
		t.Fatalf("LastAgeSweepTime: %v", err)
	}
	if last.IsZero() {
		t.Fatal("expected age-sweep watermark to be persisted")
	}
}

func TestAgeCleanupSkipsWithinInterval(t *testing.T) {
	r, batches := testReclaimer(t, 1_000_000, 7)

	if err := r.db.SetLastAgeSweepTime(time.Now()); err != nil {
		t.Fatalf("SetLastAgeSweepTime: %v", err)
	}

	old := time.Now().Add(-8 * 24 * time.Hour)
	writeArchive(t, batches, "aod_quick_old.tar.zst", 10, old)

	r.Tick()

	if _, err := os.Stat(filepath.Join(batches, "aod_quick_old.tar.zst")); err != nil {
		t.Fatal("expected archive to survive: age sweep interval has not elapsed")
	}
}

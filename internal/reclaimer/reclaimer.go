// Package reclaimer periodically measures disk usage under the output root
// and enforces age and size budgets on finalized bundle archives. It never
// looks at in-progress bundle directories: only files matching the finalized
// archive glob are visible to it, which is what makes size/age cleanup
// race-free against the Collector without any locking.
package reclaimer

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/aodv2/aodv2/internal/config"
	"github.com/aodv2/aodv2/internal/observability"
	"github.com/aodv2/aodv2/internal/storage"
)

const (
	// sizeTriggerFactor is the fraction of the size budget that triggers a
	// size-based sweep.
	sizeTriggerFactor = 0.9

	// lowWatermarkFactor is the fraction of the size budget a size-based
	// sweep cleans down to, preventing thrash around the trigger line.
	lowWatermarkFactor = 0.5
)

// archiveInfo is one finalized bundle archive under batches/.
type archiveInfo struct {
	path    string
	size    int64
	modTime time.Time
}

// Reclaimer enforces size and age budgets on finalized archives.
type Reclaimer struct {
	batchesDir string
	archiveExt string
	maxAgeDays int
	maxBytes   int64

	db      *storage.DB
	metrics *observability.Metrics
	log     *zap.Logger
}

// New builds a Reclaimer from the frozen configuration.
func New(cfg *config.Config, metrics *observability.Metrics, log *zap.Logger, db *storage.DB) *Reclaimer {
	return &Reclaimer{
		batchesDir: filepath.Join(cfg.AODOutputDir, "batches"),
		archiveExt: cfg.Cleanup.ArchiveExtension,
		maxAgeDays: cfg.Cleanup.MaxLogAgeDays,
		maxBytes:   int64(cfg.Cleanup.MaxTotalLogSizeMB) * 1024 * 1024,
		db:         db,
		metrics:    metrics,
		log:        log.Named("reclaimer"),
	}
}

// Tick runs one sweep: measures total archive size, runs a size-based
// cleanup if over the trigger watermark, and runs an age-based cleanup if
// the configured interval has elapsed since the last one. Per-entry
// filesystem errors are logged and tolerated; the next tick retries.
func (r *Reclaimer) Tick() {
	entries, err := r.listArchives()
	if err != nil {
		r.log.Warn("list archives failed", zap.Error(err))
		return
	}

	var total int64
	for _, e := range entries {
		total += e.size
	}
	r.metrics.ReclaimTotalBytes.Set(float64(total))

	if float64(total) >= sizeTriggerFactor*float64(r.maxBytes) {
		r.sizeCleanup(entries, total)
	}

	r.maybeAgeCleanup(entries)
}

// sizeCleanup deletes archives oldest-first until total bundle bytes fall to
// or below the low watermark.
func (r *Reclaimer) sizeCleanup(entries []archiveInfo, total int64) {
	sorted := append([]archiveInfo(nil), entries...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].modTime.Before(sorted[j].modTime) })

	target := int64(lowWatermarkFactor * float64(r.maxBytes))
	var freed int64
	var deleted int

	for _, e := range sorted {
		if total <= target {
			break
		}
		if err := os.Remove(e.path); err != nil {
			r.log.Warn("size cleanup delete failed", zap.String("path", e.path), zap.Error(err))
			continue
		}
		total -= e.size
		freed += e.size
		deleted++
		r.log.Info("size cleanup deleted archive", zap.String("path", e.path), zap.Int64("bytes", e.size))
	}

	r.metrics.ReclaimDeletionsTotal.WithLabelValues("size").Add(float64(deleted))
	r.metrics.ReclaimBytesFreedTotal.Add(float64(freed))

	if r.db != nil && deleted > 0 {
		if err := r.db.AppendLedger(storage.LedgerEntry{
			Event: "reclaim_sweep", SweepKind: "size",
			EntriesDeleted: deleted, BytesFreed: freed,
		}); err != nil {
			r.log.Warn("ledger write failed", zap.Error(err))
		}
	}
}

// maybeAgeCleanup runs an age-based sweep if max_log_age_days have elapsed
// since the persisted watermark, then updates the watermark.
func (r *Reclaimer) maybeAgeCleanup(entries []archiveInfo) {
	last, err := r.db.LastAgeSweepTime()
	if err != nil {
		r.log.Warn("read last age sweep watermark failed", zap.Error(err))
		return
	}

	ageInterval := time.Duration(r.maxAgeDays) * 24 * time.Hour
	if !last.IsZero() && time.Since(last) < ageInterval {
		return
	}

	cutoff := time.Now().Add(-ageInterval)
	var deleted int
	for _, e := range entries {
		if e.modTime.After(cutoff) {
			continue
		}
		if err := os.Remove(e.path); err != nil {
			r.log.Warn("age cleanup delete failed", zap.String("path", e.path), zap.Error(err))
			continue
		}
		deleted++
		r.log.Info("age cleanup deleted archive", zap.String("path", e.path), zap.Time("mtime", e.modTime))
	}

	r.metrics.ReclaimDeletionsTotal.WithLabelValues("age").Add(float64(deleted))

	now := time.Now()
	if err := r.db.SetLastAgeSweepTime(now); err != nil {
		r.log.Warn("persist last age sweep watermark failed", zap.Error(err))
	}
	if deleted > 0 {
		if err := r.db.AppendLedger(storage.LedgerEntry{
			Event: "reclaim_sweep", SweepKind: "age", EntriesDeleted: deleted,
		}); err != nil {
			r.log.Warn("ledger write failed", zap.Error(err))
		}
	}
}

// listArchives enumerates finalized archives matching aod_*<ext> under
// batches/. In-progress bundle directories never match this glob.
func (r *Reclaimer) listArchives() ([]archiveInfo, error) {
	pattern := filepath.Join(r.batchesDir, "aod_*"+r.archiveExt)
	paths, err := filepath.Glob(pattern)
	if err != nil {
		return nil, fmt.Errorf("glob %s: %w", pattern, err)
	}

	entries := make([]archiveInfo, 0, len(paths))
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			r.log.Warn("stat archive failed", zap.String("path", p), zap.Error(err))
			continue
		}
		entries = append(entries, archiveInfo{path: p, size: info.Size(), modTime: info.ModTime()})
	}
	return entries, nil
}

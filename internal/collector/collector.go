// Package collector consumes anomaly actions one at a time and executes a
// bounded-concurrency set of log-collection actions per anomaly, writing
// and then compressing a bundle directory per anomaly.
package collector

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/aodv2/aodv2/internal/config"
	"github.com/aodv2/aodv2/internal/observability"
	"github.com/aodv2/aodv2/internal/ringevent"
	"github.com/aodv2/aodv2/internal/storage"
)

// concurrencyLimit bounds in-flight actions across all anomalies.
const concurrencyLimit = 4

// Collector runs the log-collection actions configured for each anomaly
// kind and finalizes the resulting bundle.
type Collector struct {
	outputRoot    string
	archiveExt    string
	actionsByKind map[string][]Action

	sem     chan struct{}
	metrics *observability.Metrics
	log     *zap.Logger
	db      *storage.DB

	wg sync.WaitGroup
}

// New builds a Collector from the frozen configuration. Unknown action
// names are rejected here, at construction, rather than at dispatch time.
func New(cfg *config.Config, metrics *observability.Metrics, log *zap.Logger, db *storage.DB) (*Collector, error) {
	actionsByKind := make(map[string][]Action, len(cfg.Guardian.Anomalies))
	for name, ac := range cfg.Guardian.Anomalies {
		resolved, err := resolveActions(ac.Actions)
		if err != nil {
			return nil, fmt.Errorf("anomaly %q: %w", name, err)
		}
		actionsByKind[ac.Kind] = resolved
	}

	return &Collector{
		outputRoot:    cfg.AODOutputDir,
		archiveExt:    cfg.Cleanup.ArchiveExtension,
		actionsByKind: actionsByKind,
		sem:           make(chan struct{}, concurrencyLimit),
		metrics:       metrics,
		log:           log.Named("collector"),
		db:            db,
	}, nil
}

// Run consumes anomaly actions from in until it is closed (the Watcher's
// terminating sentinel). It stops accepting new anomalies at that point,
// waits for every already-accepted anomaly to finish (including its
// finalize step) before returning.
func (c *Collector) Run(in <-chan ringevent.AnomalyAction) error {
	for action := range in {
		c.wg.Add(1)
		go c.handleAnomaly(action)
	}
	c.wg.Wait()
	return nil
}

func (c *Collector) handleAnomaly(action ringevent.AnomalyAction) {
	defer c.wg.Done()
	start := time.Now()

	batchID := action.TimestampNS
	workDir := filepath.Join(c.outputRoot, "batches", fmt.Sprintf("aod_quick_%d", batchID))
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		c.log.Error("create bundle working dir failed", zap.String("dir", workDir), zap.Error(err))
		return
	}

	actions := c.actionsByKind[action.Kind]
	var inner sync.WaitGroup
	var okCount, failCount int32

	for _, act := range actions {
		c.sem <- struct{}{}
		c.metrics.ActionsInFlight.Inc()
		inner.Add(1)
		go func(act Action) {
			defer inner.Done()
			defer func() {
				<-c.sem
				c.metrics.ActionsInFlight.Dec()
			}()

			if err := act.Execute(context.Background(), workDir); err != nil {
				atomic.AddInt32(&failCount, 1)
				c.metrics.ActionsExecutedTotal.WithLabelValues("error").Inc()
				c.log.Warn("action failed", zap.String("action", act.Name),
					zap.Int64("batch_id", batchID), zap.Error(err))
				return
			}
			atomic.AddInt32(&okCount, 1)
			c.metrics.ActionsExecutedTotal.WithLabelValues("ok").Inc()
		}(act)
	}
	inner.Wait()

	archivePath := filepath.Join(c.outputRoot, "batches",
		fmt.Sprintf("aod_quick_%d%s", batchID, c.archiveExt))
	if err := finalize(workDir, archivePath); err != nil {
		c.log.Error("bundle finalize failed", zap.Int64("batch_id", batchID), zap.Error(err))
	}
	c.metrics.BundleFinalizeLatency.Observe(time.Since(start).Seconds())

	if c.db != nil {
		if err := c.db.AppendLedger(storage.LedgerEntry{
			Event:         "anomaly_dispatch",
			AnomalyKind:   action.Kind,
			BatchID:       batchID,
			ActionsOK:     int(okCount),
			ActionsFailed: int(failCount),
			BundlePath:    archivePath,
		}); err != nil {
			c.log.Warn("ledger write failed", zap.Error(err))
		}
	}
}

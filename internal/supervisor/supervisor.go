// Package supervisor wires the Dispatcher, Watcher, Collector, and
// Reclaimer into one pipeline, restarts any of them that crash, and keeps
// the configured tool subprocesses running for the daemon's lifetime. It
// owns the shutdown sequence: cancel, let the pipeline drain front-to-back
// through channel closes, stop subprocesses, then return.
package supervisor

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/aodv2/aodv2/internal/collector"
	"github.com/aodv2/aodv2/internal/config"
	"github.com/aodv2/aodv2/internal/dispatcher"
	"github.com/aodv2/aodv2/internal/observability"
	"github.com/aodv2/aodv2/internal/operator"
	"github.com/aodv2/aodv2/internal/reclaimer"
	"github.com/aodv2/aodv2/internal/ringevent"
	"github.com/aodv2/aodv2/internal/storage"
	"github.com/aodv2/aodv2/internal/watcher"
)

// channelDepth bounds how many batches/actions may queue between pipeline
// stages before a slow downstream stage blocks its upstream producer.
const channelDepth = 64

// Supervisor runs the full event pipeline plus subprocess fleet and
// restarts any worker that exits unexpectedly.
type Supervisor struct {
	cfg     *config.Config
	metrics *observability.Metrics
	log     *zap.Logger
	db      *storage.DB
}

// New builds a Supervisor from the frozen configuration and shared
// dependencies.
func New(cfg *config.Config, metrics *observability.Metrics, log *zap.Logger, db *storage.DB) *Supervisor {
	return &Supervisor{cfg: cfg, metrics: metrics, log: log.Named("supervisor"), db: db}
}

// Run starts every pipeline stage and tool subprocess and blocks until ctx
// is cancelled, at which point it drives the shutdown sequence: stop
// accepting new ring data, let the pipeline drain, stop subprocesses, and
// return once every worker has exited.
func (s *Supervisor) Run(ctx context.Context) error {
	specs, err := buildToolSpecs(s.cfg)
	if err != nil {
		return err
	}

	d := dispatcher.New(s.cfg.Shm.Name, s.metrics, s.log)
	w, err := watcher.New(s.cfg.Guardian, s.metrics, s.log)
	if err != nil {
		return err
	}
	c, err := collector.New(s.cfg, s.metrics, s.log, s.db)
	if err != nil {
		return err
	}
	r := reclaimer.New(s.cfg, s.metrics, s.log, s.db)

	batches := make(chan ringevent.Batch, channelDepth)
	actions := make(chan ringevent.AnomalyAction, channelDepth)

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		superviseWorker(ctx, "dispatcher", s.cfg.RestartCooldown(), s.metrics, s.log, func() error {
			return d.Run(ctx, batches)
		})
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		superviseWorker(ctx, "watcher", s.cfg.RestartCooldown(), s.metrics, s.log, func() error {
			return w.Run(batches, actions)
		})
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		superviseWorker(ctx, "collector", s.cfg.RestartCooldown(), s.metrics, s.log, func() error {
			return c.Run(actions)
		})
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		superviseWorker(ctx, "reclaimer", s.cfg.RestartCooldown(), s.metrics, s.log, func() error {
			return r.Run(ctx, s.cfg.CleanupInterval())
		})
	}()

	for _, spec := range specs {
		spec := spec
		wg.Add(1)
		go func() {
			defer wg.Done()
			runSubprocess(ctx, spec, s.cfg.SubprocessShutdownTimeout(), s.metrics, s.log)
		}()
	}

	if s.cfg.Operator.Enabled {
		op := operator.New(s.cfg.Operator.SocketPath, s.metrics, s.log)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := op.Run(ctx); err != nil {
				s.log.Error("operator server exited with error", zap.Error(err))
			}
		}()
	}

	<-ctx.Done()
	s.log.Info("shutdown requested, draining pipeline")
	wg.Wait()
	s.log.Info("all workers stopped")
	return nil
}

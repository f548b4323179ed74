// Package observability provides Prometheus metrics for the daemon.
//
// Endpoint: GET /metrics on 127.0.0.1:9091 by default. The listen address
// is taken from config as given; the default binds loopback only. All metrics are registered on a dedicated
// prometheus.Registry (not the default global registry) to avoid collisions
// with other instrumented libraries in the same process.
//
// Metric naming convention: aodv2_<subsystem>_<name>_<unit>.
package observability

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds every Prometheus metric descriptor for the daemon.
type Metrics struct {
	registry *prometheus.Registry

	// ─── Dispatcher ──────────────────────────────────────────────────────────

	// RingEventsConsumedTotal counts Events drained from the shared-memory
	// ring.
	RingEventsConsumedTotal prometheus.Counter

	// RingBatchesPublishedTotal counts EventBatches published downstream.
	RingBatchesPublishedTotal prometheus.Counter

	// RingCorruptIndicesTotal counts out-of-range head/tail recoveries.
	RingCorruptIndicesTotal prometheus.Counter

	// RingOccupancyBytes is the ring occupancy observed at the last poll.
	RingOccupancyBytes prometheus.Gauge

	// ─── Watcher ─────────────────────────────────────────────────────────────

	// AnomaliesEmittedTotal counts emitted anomaly actions, by kind.
	AnomaliesEmittedTotal *prometheus.CounterVec

	// BatchesEvaluatedTotal counts EventBatches the Watcher processed.
	BatchesEvaluatedTotal prometheus.Counter

	// ─── Collector ───────────────────────────────────────────────────────────

	// ActionsExecutedTotal counts log-collection actions run, by outcome
	// (ok, error).
	ActionsExecutedTotal *prometheus.CounterVec

	// ActionsInFlight is the current number of actions holding a semaphore
	// slot across all anomalies.
	ActionsInFlight prometheus.Gauge

	// BundleFinalizeLatency records time from anomaly receive to archive
	// finalization.
	BundleFinalizeLatency prometheus.Histogram

	// ─── Reclaimer ───────────────────────────────────────────────────────────

	// ReclaimDeletionsTotal counts archives deleted, by sweep kind
	// (size, age).
	ReclaimDeletionsTotal *prometheus.CounterVec

	// ReclaimBytesFreedTotal counts bytes freed by size-based cleanup.
	ReclaimBytesFreedTotal prometheus.Counter

	// ReclaimTotalBytes is the total bundle bytes observed at the last tick.
	ReclaimTotalBytes prometheus.Gauge

	// ─── Supervisor ──────────────────────────────────────────────────────────

	// WorkerRestartsTotal counts worker restarts, by worker name.
	WorkerRestartsTotal *prometheus.CounterVec

	// SubprocessRestartsTotal counts tool subprocess restarts, by tool name.
	SubprocessRestartsTotal *prometheus.CounterVec

	// DaemonUptimeSeconds is the number of seconds since daemon start.
	DaemonUptimeSeconds prometheus.Gauge

	startTime time.Time
}

// NewMetrics creates and registers every daemon Prometheus metric on a
// fresh, private registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		registry:  reg,
		startTime: time.Now(),

		RingEventsConsumedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "aodv2", Subsystem: "dispatcher", Name: "ring_events_consumed_total",
			Help: "Total Events decoded off the shared-memory ring.",
		}),
		RingBatchesPublishedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "aodv2", Subsystem: "dispatcher", Name: "ring_batches_published_total",
			Help: "Total EventBatches published to the Watcher.",
		}),
		RingCorruptIndicesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "aodv2", Subsystem: "dispatcher", Name: "ring_corrupt_indices_total",
			Help: "Total times head/tail were out of range and tail was reset.",
		}),
		RingOccupancyBytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "aodv2", Subsystem: "dispatcher", Name: "ring_occupancy_bytes",
			Help: "Ring occupancy in bytes observed at the last poll.",
		}),

		AnomaliesEmittedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "aodv2", Subsystem: "watcher", Name: "anomalies_emitted_total",
			Help: "Total anomaly actions emitted, by kind.",
		}, []string{"kind"}),
		BatchesEvaluatedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "aodv2", Subsystem: "watcher", Name: "batches_evaluated_total",
			Help: "Total EventBatches evaluated by the anomaly handlers.",
		}),

		ActionsExecutedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "aodv2", Subsystem: "collector", Name: "actions_executed_total",
			Help: "Total log-collection actions executed, by outcome.",
		}, []string{"outcome"}),
		ActionsInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "aodv2", Subsystem: "collector", Name: "actions_in_flight",
			Help: "Current number of actions holding a concurrency slot.",
		}),
		BundleFinalizeLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "aodv2", Subsystem: "collector", Name: "bundle_finalize_latency_seconds",
			Help:    "Latency from anomaly receive to finalized archive.",
			Buckets: prometheus.DefBuckets,
		}),

		ReclaimDeletionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "aodv2", Subsystem: "reclaimer", Name: "deletions_total",
			Help: "Total archives deleted, by sweep kind.",
		}, []string{"sweep_kind"}),
		ReclaimBytesFreedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "aodv2", Subsystem: "reclaimer", Name: "bytes_freed_total",
			Help: "Total bytes freed by size-driven cleanup.",
		}),
		ReclaimTotalBytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "aodv2", Subsystem: "reclaimer", Name: "total_bundle_bytes",
			Help: "Total bundle bytes observed at the last sweep tick.",
		}),

		WorkerRestartsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "aodv2", Subsystem: "supervisor", Name: "worker_restarts_total",
			Help: "Total worker restarts, by worker name.",
		}, []string{"worker"}),
		SubprocessRestartsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "aodv2", Subsystem: "supervisor", Name: "subprocess_restarts_total",
			Help: "Total tool subprocess restarts, by tool name.",
		}, []string{"tool"}),
		DaemonUptimeSeconds: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "aodv2", Subsystem: "supervisor", Name: "uptime_seconds",
			Help: "Seconds since the daemon started.",
		}),
	}

	reg.MustRegister(
		m.RingEventsConsumedTotal,
		m.RingBatchesPublishedTotal,
		m.RingCorruptIndicesTotal,
		m.RingOccupancyBytes,
		m.AnomaliesEmittedTotal,
		m.BatchesEvaluatedTotal,
		m.ActionsExecutedTotal,
		m.ActionsInFlight,
		m.BundleFinalizeLatency,
		m.ReclaimDeletionsTotal,
		m.ReclaimBytesFreedTotal,
		m.ReclaimTotalBytes,
		m.WorkerRestartsTotal,
		m.SubprocessRestartsTotal,
		m.DaemonUptimeSeconds,
		prometheus.NewGoCollector(),
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
	)

	return m
}

// ServeMetrics starts the Prometheus HTTP metrics server on addr. Blocks
// until ctx is cancelled or the server fails to start.
func (m *Metrics) ServeMetrics(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
		ErrorHandling:     promhttp.ContinueOnError,
	}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	srv := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go m.updateUptime(ctx)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("metrics server on %s: %w", addr, err)
	}
	return nil
}

func (m *Metrics) updateUptime(ctx context.Context) {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			m.DaemonUptimeSeconds.Set(time.Since(m.startTime).Seconds())
		case <-ctx.Done():
			return
		}
	}
}

// Package watcher consumes EventBatches, partitions them by anomaly kind,
// calls the configured kind-specific handlers, and emits AnomalyActions.
package watcher

import (
	"time"

	"go.uber.org/zap"

	"github.com/aodv2/aodv2/internal/config"
	"github.com/aodv2/aodv2/internal/observability"
	"github.com/aodv2/aodv2/internal/ringevent"
)

// maxWait bounds how long the Watcher coalesces additional batches beyond
// its first blocking receive, before evaluating whatever it has collected.
const maxWait = 5 * time.Millisecond

// Watcher evaluates configured anomaly kinds against incoming EventBatches.
type Watcher struct {
	registry map[string]entry
	metrics  *observability.Metrics
	log      *zap.Logger
}

// New builds a Watcher from a frozen Guardian configuration.
func New(cfg config.GuardianConfig, metrics *observability.Metrics, log *zap.Logger) (*Watcher, error) {
	reg, err := buildRegistry(cfg)
	if err != nil {
		return nil, err
	}
	return &Watcher{registry: reg, metrics: metrics, log: log.Named("watcher")}, nil
}

// Run consumes batches from in until it is closed (the Dispatcher's
// terminating sentinel), forwards the sentinel by closing out exactly once,
// and returns.
func (w *Watcher) Run(in <-chan ringevent.Batch, out chan<- ringevent.AnomalyAction) error {
	for {
		first, ok := <-in
		if !ok {
			close(out)
			return nil
		}

		batch := append(ringevent.Batch(nil), first...)

		timer := time.NewTimer(maxWait)
	collect:
		for {
			select {
			case more, ok := <-in:
				if !ok {
					timer.Stop()
					w.evaluate(batch, out)
					close(out)
					return nil
				}
				batch = append(batch, more...)
			case <-timer.C:
				break collect
			}
		}

		w.evaluate(batch, out)
	}
}

// evaluate runs every configured handler against its tool_id-masked slice of
// batch and emits at most one AnomalyAction per kind.
func (w *Watcher) evaluate(batch ringevent.Batch, out chan<- ringevent.AnomalyAction) {
	w.metrics.BatchesEvaluatedTotal.Inc()

	for _, e := range w.registry {
		masked := filterByTool(batch, e.toolID)
		if len(masked) == 0 {
			continue
		}
		if e.handler.Detect(masked) {
			w.metrics.AnomaliesEmittedTotal.WithLabelValues(e.kind).Inc()
			out <- ringevent.AnomalyAction{Kind: e.kind, TimestampNS: time.Now().UnixNano()}
		}
	}
}

// filterByTool returns the subsequence of batch whose Tool matches toolID.
func filterByTool(batch ringevent.Batch, toolID uint8) ringevent.Batch {
	masked := make(ringevent.Batch, 0, len(batch))
	for _, ev := range batch {
		if ev.Tool == toolID {
			masked = append(masked, ev)
		}
	}
	return masked
}

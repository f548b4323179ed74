// Package dispatcher drains the shared-memory ring, assembles event
// batches, and publishes them to the Watcher.
package dispatcher

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/aodv2/aodv2/internal/observability"
	"github.com/aodv2/aodv2/internal/ring"
	"github.com/aodv2/aodv2/internal/ringevent"
)

const (
	// tickInterval is the polling cadence.
	tickInterval = 1 * time.Second

	// maxWait tolerates the single non-atomic writer's pending commit
	// before a drain, and bounds extra batch coalescing.
	maxWait = 5 * time.Millisecond

	// lowWaterRecords is the occupancy, in records, that triggers an
	// immediate drain regardless of the countdown timer.
	lowWaterRecords = 10

	// fallbackTicks bounds batching latency to this many ticks for
	// low-rate streams: the countdown starts at fallbackTicks-1 so the
	// drain fires on the fallbackTicks'th tick after a pending event
	// arrives, not the (fallbackTicks+1)'th.
	fallbackTicks = 3
)

// Dispatcher drains the shared-memory ring and publishes EventBatches.
type Dispatcher struct {
	shmName string
	metrics *observability.Metrics
	log     *zap.Logger
}

// New constructs a Dispatcher for the given shared-memory object name.
func New(shmName string, metrics *observability.Metrics, log *zap.Logger) *Dispatcher {
	return &Dispatcher{shmName: shmName, metrics: metrics, log: log.Named("dispatcher")}
}

// Run opens the ring, polls it until ctx is cancelled, and publishes
// assembled batches to out. On ctx cancellation it performs one final drain,
// closes out exactly once, unmaps and unlinks the ring, and returns nil.
// Any other error is returned so the Supervisor's restart wrapper can retry;
// in that case out is left open for the next attempt to reuse.
func (d *Dispatcher) Run(ctx context.Context, out chan<- ringevent.Batch) error {
	r, err := ring.Open(d.shmName)
	if err != nil {
		return err
	}

	timer := fallbackTicks - 1
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			d.drainOnce(r, out)
			if r.DataLoss() {
				d.log.Warn("shutdown with unread ring data; events may be lost")
			}
			close(out)
			if err := r.Close(); err != nil {
				d.log.Warn("ring unmap failed", zap.Error(err))
			}
			if err := r.Unlink(); err != nil {
				d.log.Warn("ring unlink failed", zap.Error(err))
			}
			return nil

		case <-ticker.C:
			occupancy := ring.Occupancy(r.Head(), r.Tail())
			d.metrics.RingOccupancyBytes.Set(float64(occupancy))
			available := occupancy / ringevent.Size
			if available >= lowWaterRecords || timer == 0 {
				if available == 0 {
					timer = fallbackTicks - 1
					continue
				}
				time.Sleep(maxWait)
				if err := d.drainOnce(r, out); err != nil {
					return err
				}
				timer = fallbackTicks - 1
			} else {
				timer--
			}
		}
	}
}

// drainOnce performs one drain-and-publish cycle. Corrupt indices are
// recovered in place (tail reset to head) rather than propagated, per the
// protocol-error policy; any other failure is returned to the caller.
func (d *Dispatcher) drainOnce(r *ring.Ring, out chan<- ringevent.Batch) error {
	batch, err := r.Drain()
	if errors.Is(err, ring.ErrCorruptIndices) {
		d.metrics.RingCorruptIndicesTotal.Inc()
		d.log.Error("ring indices out of range, dropping queued data")
		return r.ResetTail(r.Head())
	}
	if err != nil {
		d.log.Error("ring drain failed", zap.Error(err))
		return err
	}
	if len(batch) == 0 {
		return nil
	}

	d.metrics.RingEventsConsumedTotal.Add(float64(len(batch)))
	d.metrics.RingBatchesPublishedTotal.Inc()
	d.metrics.RingOccupancyBytes.Set(float64(ring.Occupancy(r.Head(), r.Tail())))

	out <- batch
	return nil
}

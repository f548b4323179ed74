package reclaimer

import (
	"context"
	"time"
)

// Run ticks every interval until ctx is cancelled, calling Tick on each
// wake. On shutdown it wakes once more and returns, per the daemon's
// shutdown sequence.
func (r *Reclaimer) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.Tick()
			return nil
		case <-ticker.C:
			r.Tick()
		}
	}
}

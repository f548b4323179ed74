package supervisor

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/aodv2/aodv2/internal/observability"
)

// superviseWorker runs fn under a restart wrapper: on unexpected return, log
// with stack-adjacent context, wait the cooldown, and restart unless ctx is
// already done. fn is expected to itself observe ctx for graceful shutdown
// and return nil in that case.
func superviseWorker(ctx context.Context, name string, cooldown time.Duration,
	metrics *observability.Metrics, log *zap.Logger, fn func() error) {

	for {
		err := runGuarded(name, log, fn)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			metrics.WorkerRestartsTotal.WithLabelValues(name).Inc()
			log.Error("worker exited unexpectedly, restarting", zap.String("worker", name), zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(cooldown):
		}
	}
}

// runGuarded recovers a panic in fn and turns it into an error so a bug in
// one worker cannot bring down the whole process outside the restart
// wrapper's control.
func runGuarded(name string, log *zap.Logger, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("worker panicked", zap.String("worker", name), zap.Any("recover", r))
			err = errPanic
		}
	}()
	return fn()
}

var errPanic = panicError{}

type panicError struct{}

func (panicError) Error() string { return "worker panicked" }

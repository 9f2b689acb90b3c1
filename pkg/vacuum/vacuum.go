package vacuum

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"bloomd/pkg/config"
	"bloomd/pkg/filter"
	"bloomd/pkg/listener"
)

const defaultRetryInterval = time.Second

// Remover forgets a filter once its storage is reclaimed.
type Remover interface {
	Remove(f *filter.Filter) bool
}

// Worker reclaims the storage of dropped filters one at a time.
type Worker struct {
	remover Remover
	grace   time.Duration
	retry   time.Duration

	*listener.Listener[*filter.Filter]
}

func New(in <-chan *filter.Filter, remover Remover, cfg config.VacuumConfig) *Worker {
	interval := cfg.RetryInterval
	if interval <= 0 {
		interval = defaultRetryInterval
	}

	w := &Worker{
		remover: remover,
		grace:   cfg.GracePeriod,
		retry:   interval,
	}
	w.Listener = listener.New("vacuum", in, w.reclaim, func() { w.drainPending(in) })
	return w
}

// reclaim waits out the grace period, destroys the filter storage and
// removes the filter from the registry. Destroy is retried until it
// succeeds or the worker stops. A stop cuts the grace period short and
// leaves one last attempt.
func (w *Worker) reclaim(ctx context.Context, f *filter.Filter) error {
	if w.grace > 0 {
		timer := time.NewTimer(w.grace)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			w.finish(f)
			return ctx.Err()
		}
	}

	// the first attempt consumes the only token, retries are paced
	retries := rate.NewLimiter(rate.Every(w.retry), 1)
	for attempt := 1; ; attempt++ {
		if err := retries.Wait(ctx); err != nil {
			if ctx.Err() != nil {
				w.finish(f)
			}
			return fmt.Errorf("vacuum %s: %w", f.Name(), err)
		}

		err := f.Destroy()
		if err == nil {
			break
		}
		slog.Warn("vacuum failed, will retry", "filter", f.Name(), "attempt", attempt, "error", err)
	}

	w.remover.Remove(f)
	slog.Info("filter vacuumed", "filter", f.Name())
	return nil
}

// finish makes a single reclaim attempt while the worker stops.
func (w *Worker) finish(f *filter.Filter) {
	if err := f.Destroy(); err != nil {
		slog.Error("vacuum stopped before filter was reclaimed, data kept", "filter", f.Name(), "error", err)
		return
	}
	w.remover.Remove(f)
	slog.Info("filter vacuumed", "filter", f.Name())
}

// drainPending reclaims filters still queued when the worker stops.
func (w *Worker) drainPending(in <-chan *filter.Filter) {
	for {
		select {
		case f, ok := <-in:
			if !ok {
				return
			}
			w.finish(f)
		default:
			return
		}
	}
}

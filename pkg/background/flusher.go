package background

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

var errJobStopped = errors.New("background job stopped by context")

type flushAller interface {
	FlushAll(ctx context.Context) error
}

// Flusher periodically persists the dirty pages of every active filter.
type Flusher struct {
	registry flushAller
	interval time.Duration

	wg     sync.WaitGroup
	cancel func()
}

func NewFlusher(registry flushAller, interval time.Duration) *Flusher {
	return &Flusher{
		registry: registry,
		interval: interval,
		cancel:   func() {},
	}
}

// Start launches the flush loop. A non-positive interval disables it.
func (f *Flusher) Start(ctx context.Context) {
	if f.interval <= 0 {
		slog.Warn("periodic flush disabled")
		return
	}
	ctx, f.cancel = context.WithCancel(ctx)
	ticker := time.NewTicker(f.interval)

	f.wg.Add(1)
	go func() {
		defer f.wg.Done()
		defer ticker.Stop()
		for {
			if err := f.run(ctx, ticker.C); err != nil {
				return
			}
		}
	}()
}

func (f *Flusher) run(ctx context.Context, tick <-chan time.Time) error {
	select {
	case <-tick:
		start := time.Now()
		if err := f.registry.FlushAll(ctx); err != nil && ctx.Err() == nil {
			slog.Error("periodic flush failed", "error", err)
		} else {
			slog.Debug("periodic flush done", "took", time.Since(start))
		}
	case <-ctx.Done():
		return errJobStopped
	}

	return nil
}

func (f *Flusher) Stop() {
	f.cancel()
	f.wg.Wait()
}

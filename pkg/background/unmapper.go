package background

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

type coldCloser interface {
	ColdFilters() []string
	Close(name string) error
}

// Unmapper closes filters that were not touched for a whole interval,
// releasing their memory until the next access.
type Unmapper struct {
	registry coldCloser
	interval time.Duration

	wg     sync.WaitGroup
	cancel func()
}

func NewUnmapper(registry coldCloser, interval time.Duration) *Unmapper {
	return &Unmapper{
		registry: registry,
		interval: interval,
		cancel:   func() {},
	}
}

// Start launches the scan loop. A non-positive interval disables it.
func (u *Unmapper) Start(ctx context.Context) {
	if u.interval <= 0 {
		slog.Warn("cold filter unmapping disabled")
		return
	}
	ctx, u.cancel = context.WithCancel(ctx)
	ticker := time.NewTicker(u.interval)

	u.wg.Add(1)
	go func() {
		defer u.wg.Done()
		defer ticker.Stop()
		for {
			if err := u.run(ctx, ticker.C); err != nil {
				return
			}
		}
	}()
}

func (u *Unmapper) run(ctx context.Context, tick <-chan time.Time) error {
	select {
	case <-tick:
		u.unmapCold(ctx)
	case <-ctx.Done():
		return errJobStopped
	}

	return nil
}

func (u *Unmapper) unmapCold(ctx context.Context) {
	for _, name := range u.registry.ColdFilters() {
		if ctx.Err() != nil {
			return
		}
		if err := u.registry.Close(name); err != nil {
			slog.Warn("failed to unmap cold filter", "filter", name, "error", err)
			continue
		}
		slog.Info("unmapped cold filter", "filter", name)
	}
}

func (u *Unmapper) Stop() {
	u.cancel()
	u.wg.Wait()
}

package background

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeRegistry struct {
	flushes atomic.Int32

	mu     sync.Mutex
	cold   []string
	closed []string
}

func (f *fakeRegistry) FlushAll(context.Context) error {
	f.flushes.Add(1)
	return nil
}

func (f *fakeRegistry) ColdFilters() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := f.cold
	f.cold = nil
	return out
}

func (f *fakeRegistry) Close(name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if name == "broken" {
		return errors.New("close failed")
	}
	f.closed = append(f.closed, name)
	return nil
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met in time")
		}
		time.Sleep(time.Millisecond)
	}
}

func TestFlusherTicks(t *testing.T) {
	reg := &fakeRegistry{}
	f := NewFlusher(reg, time.Millisecond)
	f.Start(context.Background())

	waitFor(t, func() bool { return reg.flushes.Load() >= 3 })
	f.Stop()
}

func TestFlusherDisabled(t *testing.T) {
	reg := &fakeRegistry{}
	f := NewFlusher(reg, 0)
	f.Start(context.Background())
	f.Stop()

	if reg.flushes.Load() != 0 {
		t.Fatalf("disabled flusher ran %d times", reg.flushes.Load())
	}
}

func TestUnmapperClosesColdFilters(t *testing.T) {
	reg := &fakeRegistry{cold: []string{"a", "broken", "b"}}
	u := NewUnmapper(reg, time.Millisecond)
	u.Start(context.Background())

	waitFor(t, func() bool {
		reg.mu.Lock()
		defer reg.mu.Unlock()
		return len(reg.closed) == 2
	})
	u.Stop()

	reg.mu.Lock()
	defer reg.mu.Unlock()
	if reg.closed[0] != "a" || reg.closed[1] != "b" {
		t.Fatalf("unexpected closed filters: %v", reg.closed)
	}
}

func TestStopOnParentCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	u := NewUnmapper(&fakeRegistry{}, time.Hour)
	u.Start(ctx)
	cancel()
	u.Stop()
}

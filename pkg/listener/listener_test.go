package listener

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestListenerHandlesInOrder(t *testing.T) {
	in := make(chan int, 8)
	var mu sync.Mutex
	var got []int
	done := make(chan struct{})

	l := New("test", in, func(_ context.Context, v int) error {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, v)
		if len(got) == 3 {
			close(done)
		}
		return nil
	})
	l.Start(context.Background())
	defer l.Stop()

	in <- 1
	in <- 2
	in <- 3

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("handler was not called")
	}

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 3 || got[0] != 1 || got[1] != 2 || got[2] != 3 {
		t.Fatalf("unexpected order: %v", got)
	}
}

func TestListenerSurvivesHandlerErrors(t *testing.T) {
	in := make(chan int)
	calls := make(chan int, 2)

	l := New("test", in, func(_ context.Context, v int) error {
		calls <- v
		return errors.New("boom")
	})
	l.Start(context.Background())
	defer l.Stop()

	in <- 1
	in <- 2
	if <-calls != 1 || <-calls != 2 {
		t.Fatal("listener stopped after handler error")
	}
}

func TestStopCancelsHandlerAndRunsStopHandler(t *testing.T) {
	in := make(chan int, 1)
	started := make(chan struct{})
	stopped := false

	l := New("test", in, func(ctx context.Context, _ int) error {
		close(started)
		<-ctx.Done()
		return ctx.Err()
	}, func() { stopped = true })
	l.Start(context.Background())

	in <- 1
	<-started
	l.Stop()

	if !stopped {
		t.Fatal("stop handler was not called")
	}
}

func TestClosedChannelStopsListener(t *testing.T) {
	in := make(chan int)
	l := New("test", in, func(context.Context, int) error { return nil })
	l.Start(context.Background())

	close(in)
	l.Stop()
}

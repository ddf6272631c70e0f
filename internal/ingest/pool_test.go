package ingest_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/joestump/joe-stats/internal/ingest"
	"github.com/joestump/joe-stats/internal/logger"
)

type countingIngester struct {
	calls   atomic.Int64
	err     error
	release chan struct{}
}

func (c *countingIngester) Ingest(ctx context.Context, req ingest.Request) error {
	if c.release != nil {
		<-c.release
	}
	c.calls.Add(1)
	return c.err
}

func TestPool_SubmitReturnsIngestResult(t *testing.T) {
	boom := errors.New("boom")
	ing := &countingIngester{err: boom}
	p := ingest.NewPool(ing, 2, 4, logger.Nop())
	defer p.Close()

	if err := p.Submit(context.Background(), ingest.NoEvent()); !errors.Is(err, boom) {
		t.Errorf("Submit err = %v, want %v", err, boom)
	}
	if got := ing.calls.Load(); got != 1 {
		t.Errorf("calls = %d, want 1", got)
	}
}

func TestPool_ConcurrentSubmits(t *testing.T) {
	ing := &countingIngester{}
	p := ingest.NewPool(ing, 4, 8, logger.Nop())

	const n = 100
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := p.Submit(context.Background(), ingest.NoEvent()); err != nil {
				t.Errorf("Submit: %v", err)
			}
		}()
	}
	wg.Wait()
	if err := p.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if got := ing.calls.Load(); got != n {
		t.Errorf("calls = %d, want %d", got, n)
	}
}

func TestPool_SubmitAfterClose(t *testing.T) {
	p := ingest.NewPool(&countingIngester{}, 1, 1, logger.Nop())
	if err := p.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := p.Submit(context.Background(), ingest.NoEvent()); !errors.Is(err, ingest.ErrPoolClosed) {
		t.Errorf("Submit after Close = %v, want ErrPoolClosed", err)
	}
	// Close is idempotent.
	if err := p.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
}

func TestPool_CanceledBeforeEnqueue(t *testing.T) {
	ing := &countingIngester{release: make(chan struct{})}
	p := ingest.NewPool(ing, 1, 0, logger.Nop())

	// Occupy the only worker so the unbuffered queue cannot accept another job.
	go p.Submit(context.Background(), ingest.NoEvent())
	time.Sleep(20 * time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := p.Submit(ctx, ingest.NoEvent()); !errors.Is(err, context.Canceled) {
		t.Errorf("Submit err = %v, want context.Canceled", err)
	}

	close(ing.release)
	if err := p.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if got := ing.calls.Load(); got != 1 {
		t.Errorf("calls = %d, want 1 (canceled request never ran)", got)
	}
}

func TestPool_QueuedRequestCompletesAfterCallerLeaves(t *testing.T) {
	ing := &countingIngester{release: make(chan struct{})}
	p := ingest.NewPool(ing, 1, 4, logger.Nop())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := p.Submit(ctx, ingest.NoEvent()); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Submit err = %v, want context.DeadlineExceeded", err)
	}

	close(ing.release)
	if err := p.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if got := ing.calls.Load(); got != 1 {
		t.Errorf("calls = %d, want 1 (queued request still applied)", got)
	}
}

func TestPool_CloseDrainsQueue(t *testing.T) {
	ing := &countingIngester{release: make(chan struct{})}
	p := ingest.NewPool(ing, 1, 10, logger.Nop())

	const n = 5
	for i := 0; i < n; i++ {
		ctx, cancel := context.WithCancel(context.Background())
		go func() {
			time.Sleep(10 * time.Millisecond)
			cancel()
		}()
		// Returns once ctx is canceled; the job stays queued.
		_ = p.Submit(ctx, ingest.NoEvent())
	}

	closed := make(chan error, 1)
	go func() { closed <- p.Close() }()
	close(ing.release)

	select {
	case err := <-closed:
		if err != nil {
			t.Fatalf("Close: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Close did not return")
	}
	if got := ing.calls.Load(); got != n {
		t.Errorf("calls = %d, want %d drained", got, n)
	}
}

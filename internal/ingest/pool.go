package ingest

import (
	"context"
	"errors"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/joestump/joe-stats/internal/logger"
	"github.com/joestump/joe-stats/internal/metrics"
)

// ErrPoolClosed is returned by Submit after Close has been called.
var ErrPoolClosed = errors.New("ingest pool closed")

// Ingester applies one request. *Coordinator implements it.
type Ingester interface {
	Ingest(ctx context.Context, req Request) error
}

type job struct {
	ctx  context.Context
	req  Request
	done chan error
}

// Pool runs an Ingester on a fixed number of workers fed by a bounded queue, keeping
// blocking storage calls off the HTTP accept path.
type Pool struct {
	ingester Ingester
	jobs     chan job
	group    errgroup.Group
	log      *logger.Logger

	mu     sync.RWMutex
	closed bool
}

// NewPool starts workers goroutines reading from a queue of the given capacity.
func NewPool(ingester Ingester, workers, queue int, log *logger.Logger) *Pool {
	if workers < 1 {
		workers = 1
	}
	if queue < 0 {
		queue = 0
	}
	p := &Pool{
		ingester: ingester,
		jobs:     make(chan job, queue),
		log:      log.With("component", "ingest_pool"),
	}
	for i := 0; i < workers; i++ {
		p.group.Go(p.work)
	}
	p.log.Info("ingest pool started", "workers", workers, "queue", queue)
	return p
}

func (p *Pool) work() error {
	for j := range p.jobs {
		metrics.IngestQueueDepth.Set(float64(len(p.jobs)))
		j.done <- p.ingester.Ingest(j.ctx, j.req)
	}
	return nil
}

// Submit queues req and waits for its result. If ctx ends before the request is
// queued, Submit returns ctx.Err() and nothing is applied. If ctx ends after it is
// queued, Submit returns ctx.Err() but the request still runs to completion.
func (p *Pool) Submit(ctx context.Context, req Request) error {
	done := make(chan error, 1)

	p.mu.RLock()
	if p.closed {
		p.mu.RUnlock()
		return ErrPoolClosed
	}
	select {
	case p.jobs <- job{ctx: ctx, req: req, done: done}:
		metrics.IngestQueueDepth.Set(float64(len(p.jobs)))
		p.mu.RUnlock()
	case <-ctx.Done():
		p.mu.RUnlock()
		return ctx.Err()
	}

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops accepting requests, lets the workers drain everything already queued,
// and waits for them to exit.
func (p *Pool) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.jobs)
	p.mu.Unlock()

	err := p.group.Wait()
	p.log.Info("ingest pool drained")
	return err
}

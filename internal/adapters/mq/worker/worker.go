// Package worker drains the change queue and hands each change to a Deliverer.
package worker

import (
	"context"
	"fmt"
	"runtime"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/okian/lanes/internal/domain/model"
	"github.com/okian/lanes/pkg/logger"
	"github.com/okian/lanes/pkg/metrics"
)

const poolShutdownTimeout = 10 * time.Second

// Change abstracts what workers read off the queue.
type Change = model.Change

// Deliverer forwards a change to observers. Errors are reported, never retried.
type Deliverer interface {
	Deliver(ctx context.Context, c Change) error
}

// Queue defines how workers receive changes.
type Queue interface {
	Dequeue(ctx context.Context) <-chan Change
}

// InMemoryWorker dispatches changes from the queue to a Deliverer.
type InMemoryWorker struct {
	queue     Queue
	deliverer Deliverer
	name      string

	shutdown chan struct{}
	done     chan struct{}

	processed *atomic.Int64
	logger    logger.Logger
}

// NewInMemoryWorker creates a new worker with configuration options.
func NewInMemoryWorker(queue Queue, deliverer Deliverer, opts ...Option) *InMemoryWorker {
	w := &InMemoryWorker{
		queue:     queue,
		deliverer: deliverer,
		name:      "worker",
		shutdown:  make(chan struct{}),
		done:      make(chan struct{}),
		processed: &atomic.Int64{},
		logger:    logger.NewNop(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run dispatches until the queue is closed and drained, ctx is cancelled or
// Shutdown is called.
func (w *InMemoryWorker) Run(ctx context.Context) {
	defer close(w.done)

	changes := w.queue.Dequeue(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.shutdown:
			return
		case c, ok := <-changes:
			if !ok {
				return
			}
			if err := w.dispatch(ctx, c); err != nil {
				w.logger.Warn(ctx, "change delivery failed",
					logger.String("item_id", c.ItemID),
					logger.String("type", c.Type()),
					logger.Error(err),
				)
			}
		}
	}
}

// Shutdown stops the worker without draining.
func (w *InMemoryWorker) Shutdown(ctx context.Context) error {
	select {
	case <-w.shutdown:
	default:
		close(w.shutdown)
	}
	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}

func (w *InMemoryWorker) dispatch(ctx context.Context, c Change) error { //nolint:gocritic // hugeParam: value semantics on the channel
	start := time.Now()
	defer func() {
		metrics.RecordWorkerProcessingLatency(float64(time.Since(start).Microseconds()) / 1000)
	}()

	w.processed.Add(1)
	if err := w.deliverer.Deliver(ctx, c); err != nil {
		metrics.RecordWorkerError()
		metrics.RecordErrorByComponent("worker", "delivery_failed")
		return fmt.Errorf("deliver %s for %s: %w", c.Type(), c.ItemID, err)
	}
	return nil
}

// Pool manages multiple dispatch workers over one queue.
type Pool struct {
	workers   []*InMemoryWorker
	queue     Queue
	processed atomic.Int64
	logger    logger.Logger
}

// NewPool creates a pool of workerCount workers; values below 1 use NumCPU.
// A nil logger discards output.
func NewPool(workerCount int, queue Queue, deliverer Deliverer, l logger.Logger) *Pool {
	if workerCount < 1 {
		workerCount = runtime.NumCPU()
	}
	if l == nil {
		l = logger.NewNop()
	}
	p := &Pool{
		workers: make([]*InMemoryWorker, workerCount),
		queue:   queue,
		logger:  l.Named("worker-pool"),
	}
	for i := range p.workers {
		p.workers[i] = NewInMemoryWorker(queue, deliverer,
			WithLogger(l),
			WithName("worker-"+strconv.Itoa(i)),
			withCounter(&p.processed),
		)
	}
	metrics.UpdateWorkerCount(workerCount)
	return p
}

// Start starts all workers in the pool.
func (p *Pool) Start(ctx context.Context) {
	for _, w := range p.workers {
		go w.Run(ctx)
	}
	p.logger.Info(ctx, "dispatch workers started", logger.Int("workers", len(p.workers)))
}

// Processed returns how many changes the pool has dispatched.
func (p *Pool) Processed() int64 {
	return p.processed.Load()
}

// Shutdown closes the queue and waits for workers to drain it.
func (p *Pool) Shutdown(ctx context.Context) error {
	if closer, ok := p.queue.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			p.logger.Error(ctx, "error closing queue", logger.Error(err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, poolShutdownTimeout)
	defer cancel()

	for i, w := range p.workers {
		select {
		case <-w.done:
		case <-shutdownCtx.Done():
			p.logger.Warn(ctx, "worker shutdown timed out", logger.Int("worker_id", i))
			_ = w.Shutdown(ctx)
		}
	}
	metrics.UpdateWorkerCount(0)
	return nil
}

package notify

import (
	"context"

	"github.com/okian/lanes/internal/adapters/mq/queue"
	"github.com/okian/lanes/internal/adapters/mq/worker"
	"github.com/okian/lanes/internal/domain/model"
	"github.com/okian/lanes/pkg/logger"
	"github.com/okian/lanes/pkg/metrics"
)

// Notifier accepts committed changes without blocking the caller and
// dispatches them asynchronously. Delivery is best effort.
type Notifier struct {
	queue  *queue.InMemoryQueue
	pool   *worker.Pool
	logger logger.Logger
}

// NewNotifier builds the queue and dispatch pool in front of deliverer.
func NewNotifier(deliverer worker.Deliverer, queueSize, workers int, l logger.Logger) *Notifier {
	if l == nil {
		l = logger.NewNop()
	}
	q := queue.NewInMemoryQueue(queue.WithCapacity(queueSize))
	return &Notifier{
		queue:  q,
		pool:   worker.NewPool(workers, q, deliverer, l.Named("worker")),
		logger: l,
	}
}

// Start launches the dispatch workers.
func (n *Notifier) Start(ctx context.Context) {
	n.pool.Start(ctx)
}

// Publish enqueues c. A rejected change is logged and counted, never returned
// to the caller as an error.
func (n *Notifier) Publish(ctx context.Context, c model.Change) bool {
	if n.queue.Enqueue(ctx, c) {
		metrics.RecordNotificationPublished()
		return true
	}
	reason := "queue_full"
	if n.queue.IsClosed() {
		reason = "closed"
	}
	metrics.RecordNotificationDropped(reason)
	n.logger.Warn(ctx, "change notification dropped",
		logger.String("item_id", c.ItemID),
		logger.String("type", c.Type()),
		logger.String("reason", reason),
	)
	return false
}

// Pending returns the number of queued changes.
func (n *Notifier) Pending(ctx context.Context) int {
	return n.queue.Len(ctx)
}

// Shutdown stops accepting changes and drains what is queued.
func (n *Notifier) Shutdown(ctx context.Context) error {
	return n.pool.Shutdown(ctx)
}

// Fanout delivers to each deliverer in turn.
type Fanout []worker.Deliverer

// Deliver implements worker.Deliverer; the first error is returned after all
// deliverers ran.
func (f Fanout) Deliver(ctx context.Context, c model.Change) error {
	var first error
	for _, d := range f {
		if err := d.Deliver(ctx, c); err != nil && first == nil {
			first = err
		}
	}
	return first
}

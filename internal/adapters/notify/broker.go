// Package notify fans committed changes out to observers: a local broker for
// stream subscribers in this process and a Redis bridge across processes.
package notify

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/okian/lanes/internal/domain/model"
	"github.com/okian/lanes/pkg/logger"
	"github.com/okian/lanes/pkg/metrics"
)

const defaultSubscriberBuffer = 64

type subscriber struct {
	id     string
	ch     chan model.Change
	closed atomic.Bool
	once   sync.Once
}

func (s *subscriber) close() {
	s.once.Do(func() {
		s.closed.Store(true)
		close(s.ch)
	})
}

// Broker delivers changes to in-process subscribers. A subscriber whose
// buffer is full misses the change; it resynchronizes by polling.
type Broker struct {
	mu          sync.RWMutex
	subscribers map[string]*subscriber
	bufferSize  int
	synthetic   atomic.Int64
	logger      logger.Logger
}

// BrokerOption configures a Broker.
type BrokerOption func(*Broker)

// WithSubscriberBuffer sets the per-subscriber channel capacity.
func WithSubscriberBuffer(n int) BrokerOption {
	return func(b *Broker) {
		if n > 0 {
			b.bufferSize = n
		}
	}
}

// WithBrokerLogger overrides the broker logger.
func WithBrokerLogger(l logger.Logger) BrokerOption {
	return func(b *Broker) {
		if l != nil {
			b.logger = l
		}
	}
}

// NewBroker creates an empty broker.
func NewBroker(opts ...BrokerOption) *Broker {
	b := &Broker{
		subscribers: make(map[string]*subscriber),
		bufferSize:  defaultSubscriberBuffer,
		logger:      logger.NewNop(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Subscribe registers a subscriber until ctx is done or cancel is called.
// The returned channel is closed on removal.
func (b *Broker) Subscribe(ctx context.Context) (<-chan model.Change, func()) {
	s := &subscriber{id: uuid.NewString(), ch: make(chan model.Change, b.bufferSize)}

	b.mu.Lock()
	b.subscribers[s.id] = s
	count := len(b.subscribers)
	b.mu.Unlock()

	metrics.UpdateSubscribers(count)
	metrics.UpdatePresence(b.Online())
	b.logger.Debug(ctx, "subscriber added", logger.String("subscriber_id", s.id), logger.Int("total", count))

	stop := context.AfterFunc(ctx, func() { b.remove(s.id) })
	cancel := func() {
		stop()
		b.remove(s.id)
	}
	return s.ch, cancel
}

func (b *Broker) remove(id string) {
	b.mu.Lock()
	s, ok := b.subscribers[id]
	if ok {
		delete(b.subscribers, id)
	}
	count := len(b.subscribers)
	b.mu.Unlock()

	if ok {
		s.close()
		metrics.UpdateSubscribers(count)
		metrics.UpdatePresence(b.Online())
	}
}

// Deliver implements worker.Deliverer. It never blocks on a subscriber.
func (b *Broker) Deliver(ctx context.Context, c model.Change) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	dropped := 0
	for _, s := range b.subscribers {
		if s.closed.Load() {
			continue
		}
		select {
		case s.ch <- c:
		default:
			dropped++
		}
	}
	metrics.RecordNotificationDelivered("broker")
	if dropped > 0 {
		metrics.RecordNotificationDropped("slow_subscriber")
		b.logger.Debug(ctx, "change dropped for slow subscribers",
			logger.String("item_id", c.ItemID), logger.Int("dropped", dropped))
	}
	return nil
}

// ClientCount returns the number of live subscribers.
func (b *Broker) ClientCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

// SetSynthetic sets the number of fake observers added to Online.
func (b *Broker) SetSynthetic(n int) {
	if n < 0 {
		n = 0
	}
	b.synthetic.Store(int64(n))
	metrics.UpdatePresence(b.Online())
}

// Online is live subscribers plus synthetic presence.
func (b *Broker) Online() int {
	return b.ClientCount() + int(b.synthetic.Load())
}

// Close removes every subscriber.
func (b *Broker) Close() {
	b.mu.Lock()
	subs := b.subscribers
	b.subscribers = make(map[string]*subscriber)
	b.mu.Unlock()
	for _, s := range subs {
		s.close()
	}
	metrics.UpdateSubscribers(0)
}

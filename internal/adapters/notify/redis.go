package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/okian/lanes/internal/domain/model"
	"github.com/okian/lanes/pkg/logger"
	"github.com/okian/lanes/pkg/metrics"
	"github.com/redis/go-redis/v9"
)

const (
	publishTimeout        = 5 * time.Second
	defaultReconnectDelay = time.Second
	maxReconnectDelay     = 30 * time.Second
)

// envelope is the JSON published on the Redis channel.
type envelope struct {
	Event   string       `json:"event"`
	Payload model.Change `json:"payload"`
}

// RedisBridge publishes changes on a Redis channel and relays everything
// received on that channel, from any instance, to the local broker.
type RedisBridge struct {
	client  *redis.Client
	channel string
	local   *Broker
	logger  logger.Logger

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewRedisBridge wires client to local over channel.
func NewRedisBridge(client *redis.Client, channel string, local *Broker, l logger.Logger) *RedisBridge {
	if l == nil {
		l = logger.NewNop()
	}
	return &RedisBridge{client: client, channel: channel, local: local, logger: l}
}

// Deliver implements worker.Deliverer by publishing to Redis.
func (r *RedisBridge) Deliver(ctx context.Context, c model.Change) error {
	payload, err := json.Marshal(envelope{Event: c.Type(), Payload: c})
	if err != nil {
		return fmt.Errorf("marshal change: %w", err)
	}
	pctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	if err := r.client.Publish(pctx, r.channel, payload).Err(); err != nil {
		metrics.RecordNotificationDropped("redis_publish")
		return fmt.Errorf("publish to %s: %w", r.channel, err)
	}
	metrics.RecordNotificationDelivered("redis")
	return nil
}

// Start subscribes and relays messages until ctx is done or Stop is called.
// It returns once the subscription is confirmed.
func (r *RedisBridge) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return nil
	}

	sub := r.client.Subscribe(ctx, r.channel)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return fmt.Errorf("subscribe %s: %w", r.channel, err)
	}

	lctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.done = make(chan struct{})
	r.running = true
	go r.relay(lctx, sub)

	r.logger.Info(ctx, "redis relay started", logger.String("channel", r.channel))
	return nil
}

// relay forwards messages and resubscribes with backoff if the channel closes.
func (r *RedisBridge) relay(ctx context.Context, sub *redis.PubSub) {
	defer close(r.done)
	delay := defaultReconnectDelay

	for {
		r.consume(ctx, sub)
		_ = sub.Close()
		if ctx.Err() != nil {
			return
		}

		r.logger.Warn(ctx, "redis subscription lost, reconnecting", logger.Duration("delay", delay))
		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
		delay = min(delay*2, maxReconnectDelay)
		sub = r.client.Subscribe(ctx, r.channel)
		if _, err := sub.Receive(ctx); err != nil {
			r.logger.Warn(ctx, "redis resubscribe failed", logger.Error(err))
			continue
		}
		delay = defaultReconnectDelay
	}
}

func (r *RedisBridge) consume(ctx context.Context, sub *redis.PubSub) {
	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var env envelope
			if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
				r.logger.Warn(ctx, "discarding malformed change", logger.Error(err))
				continue
			}
			_ = r.local.Deliver(ctx, env.Payload)
		}
	}
}

// Stop ends the relay and waits for it to exit.
func (r *RedisBridge) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	r.running = false
	cancel, done := r.cancel, r.done
	r.mu.Unlock()

	cancel()
	<-done
}

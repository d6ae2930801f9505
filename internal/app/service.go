// Package service provides the engagement service: the only writer of item
// state and the implementation of the dependencies required by the HTTP API.
package service

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/okian/lanes/internal/adapters/notify"
	"github.com/okian/lanes/internal/adapters/repository"
	"github.com/okian/lanes/internal/domain/lane"
	"github.com/okian/lanes/internal/domain/model"
	"github.com/okian/lanes/internal/domain/types"
	"github.com/okian/lanes/pkg/logger"
	"github.com/okian/lanes/pkg/metrics"
)

const maxIDLength = 256

// Publisher accepts committed changes without blocking. A false return means
// the change was dropped.
type Publisher interface {
	Publish(ctx context.Context, c model.Change) bool
}

// Presence tracks connected observers.
type Presence interface {
	Subscribe(ctx context.Context) (<-chan model.Change, func())
	Online() int
}

// Service records clicks and serves the read side of the lanes board.
type Service struct {
	mu sync.RWMutex

	// Core components
	store     repository.Store
	policy    *lane.Policy
	publisher Publisher
	presence  Presence
	notifier  *notify.Notifier

	// Configuration
	thresholds       lane.Thresholds
	workerCount      int
	queueSize        int
	shardCount       int
	snapshotInterval time.Duration

	started bool
	now     func() time.Time
	logger  logger.Logger
}

// New constructs a new Service with default configuration.
func New(opts ...Option) *Service {
	s := &Service{
		thresholds:       lane.DefaultThresholds(),
		workerCount:      runtime.NumCPU(),
		queueSize:        10_000,
		shardCount:       16,
		snapshotInterval: 500 * time.Millisecond,
		now:              time.Now,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Start validates the thresholds and builds whatever was not injected: a
// MemoryStore, a local broker and a notifier in front of it.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}

	if s.logger == nil {
		s.logger = logger.Get().Named("service")
	}

	policy, err := lane.NewPolicy(s.thresholds)
	if err != nil {
		return fmt.Errorf("start service: %w", err)
	}
	s.policy = policy

	if s.store == nil {
		s.store = repository.NewMemoryStore(ctx,
			repository.WithShards(s.shardCount),
			repository.WithSnapshotInterval(s.snapshotInterval),
		)
		s.logger.Info(ctx, "using in-memory store", logger.Int("shards", s.shardCount))
	}

	var broker *notify.Broker
	if s.presence == nil {
		broker = notify.NewBroker()
		s.presence = broker
	}
	if s.publisher == nil {
		var deliverer = broker
		if deliverer == nil {
			b, ok := s.presence.(*notify.Broker)
			if !ok {
				return fmt.Errorf("start service: %w: no publisher for custom presence", ErrInvalidInput)
			}
			deliverer = b
		}
		s.notifier = notify.NewNotifier(deliverer, s.queueSize, s.workerCount, s.logger.Named("notifier"))
		s.notifier.Start(ctx)
		s.publisher = s.notifier
	}

	s.started = true
	t := policy.Thresholds()
	s.logger.Info(ctx, "engagement service started",
		logger.Int("promote_to_trending", t.PromoteToTrending),
		logger.Int("promote_to_graduated", t.PromoteToGraduated),
	)
	return nil
}

// Stop drains the notifier it owns and closes the store.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}

	ctx := context.Background()
	s.logger.Info(ctx, "stopping engagement service...")

	if s.notifier != nil {
		if err := s.notifier.Shutdown(ctx); err != nil {
			s.logger.Warn(ctx, "notifier shutdown", logger.Error(err))
		}
		s.notifier = nil
		s.publisher = nil
	}
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			s.logger.Warn(ctx, "store close", logger.Error(err))
		}
	}

	s.started = false
	s.logger.Info(ctx, "engagement service stopped")
}

func (s *Service) components() (repository.Store, *lane.Policy, Publisher, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started {
		return nil, nil, nil, ErrNotStarted
	}
	return s.store, s.policy, s.publisher, nil
}

func validateID(kind, id string) error {
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("%w: %s is required", ErrInvalidInput, kind)
	}
	if len(id) > maxIDLength {
		return fmt.Errorf("%w: %s longer than %d bytes", ErrInvalidInput, kind, maxIDLength)
	}
	return nil
}

// translate maps store errors onto the service's kinds.
func translate(op string, err error) error {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	case errors.Is(err, repository.ErrInvalidLimit):
		return fmt.Errorf("%s: %w", op, ErrInvalidLimit)
	case errors.Is(err, repository.ErrUnavailable):
		return fmt.Errorf("%s: %w: %w", op, ErrPersistenceUnavailable, err)
	default:
		return fmt.Errorf("%s: %w", op, err)
	}
}

// RecordClick counts one click by actorID on itemID. Unknown items are
// created in lane New. A repeated (item, actor) pair is reported as a
// duplicate with the current count and changes nothing. An accepted click is
// durable before RecordClick returns; its change notification is handed off
// afterwards and a failed hand-off never fails the click.
func (s *Service) RecordClick(ctx context.Context, itemID, actorID string) (model.ClickResult, error) {
	start := time.Now()

	if err := validateID("item_id", itemID); err != nil {
		return model.ClickResult{}, err
	}
	if err := validateID("actor_id", actorID); err != nil {
		return model.ClickResult{}, err
	}

	store, policy, publisher, err := s.components()
	if err != nil {
		return model.ClickResult{}, err
	}

	// Once the ledger row is written the click counts, so an abandoned
	// caller must not abort the unit half way.
	wctx := context.WithoutCancel(ctx)

	if _, err := store.EnsureItem(wctx, itemID); err != nil {
		metrics.RecordClickError()
		return model.ClickResult{}, translate("ensure item", err)
	}

	e, err := store.Engage(wctx, itemID, actorID, policy.Evaluate)
	if err != nil {
		metrics.RecordClickError()
		s.logger.Error(ctx, "click not recorded",
			logger.String("item_id", itemID),
			logger.String("actor_id", actorID),
			logger.Error(err),
		)
		return model.ClickResult{}, translate("record click", err)
	}

	result := model.ResultOf(e)
	metrics.RecordClickLatency(float64(time.Since(start).Microseconds()) / 1000.0)

	if !e.Inserted {
		metrics.RecordClickDuplicate()
		s.logger.Debug(ctx, "duplicate click",
			logger.String("item_id", itemID),
			logger.String("actor_id", actorID),
			logger.Int("click_count", result.ClickCount),
		)
		return result, nil
	}

	metrics.RecordClickAccepted()
	if e.LaneChanged() {
		metrics.RecordLaneTransition(e.PrevLane.String(), e.Item.Lane.String())
		s.logger.Info(ctx, "lane transition",
			logger.String("item_id", itemID),
			logger.String("from", e.PrevLane.String()),
			logger.String("to", e.Item.Lane.String()),
			logger.Int("click_count", e.Item.ClickCount),
		)
	}

	publisher.Publish(wctx, model.ChangeOf(e, s.now()))
	return result, nil
}

// ListActiveItems returns the reconciliation view of every visible item.
func (s *Service) ListActiveItems(ctx context.Context) (model.Board, error) {
	store, _, _, err := s.components()
	if err != nil {
		return model.Board{}, err
	}
	items, err := store.ListActive(ctx, s.now())
	if err != nil {
		return model.Board{}, translate("list items", err)
	}
	return model.BoardOf(items), nil
}

// ActiveInLane returns the visible items currently in l, newest first.
func (s *Service) ActiveInLane(ctx context.Context, l lane.Lane) ([]model.Item, error) {
	store, _, _, err := s.components()
	if err != nil {
		return nil, err
	}
	items, err := store.ActiveInLane(ctx, l, s.now())
	if err != nil {
		return nil, translate("list lane", err)
	}
	return items, nil
}

// Item returns one item.
func (s *Service) Item(ctx context.Context, itemID string) (model.Item, error) {
	if err := validateID("item_id", itemID); err != nil {
		return model.Item{}, err
	}
	store, _, _, err := s.components()
	if err != nil {
		return model.Item{}, err
	}
	it, err := store.Get(ctx, itemID)
	if err != nil {
		return model.Item{}, translate("get item", err)
	}
	return it, nil
}

// TopN returns the top N items by click count.
func (s *Service) TopN(ctx context.Context, n int) ([]types.Entry, error) {
	store, _, _, err := s.components()
	if err != nil {
		return nil, err
	}
	entries, err := store.TopN(ctx, n)
	if err != nil {
		return nil, translate("top n", err)
	}
	return entries, nil
}

// Rank returns the leaderboard position of one item.
func (s *Service) Rank(ctx context.Context, itemID string) (types.Entry, error) {
	if err := validateID("item_id", itemID); err != nil {
		return types.Entry{}, err
	}
	store, _, _, err := s.components()
	if err != nil {
		return types.Entry{}, err
	}
	entry, err := store.Rank(ctx, itemID)
	if err != nil {
		return types.Entry{}, translate("rank", err)
	}
	return entry, nil
}

// ActorClicks lists the items an actor has clicked.
func (s *Service) ActorClicks(ctx context.Context, actorID string) ([]string, error) {
	if err := validateID("actor_id", actorID); err != nil {
		return nil, err
	}
	store, _, _, err := s.components()
	if err != nil {
		return nil, err
	}
	ids, err := store.ActorClicks(ctx, actorID)
	if err != nil {
		return nil, translate("actor clicks", err)
	}
	return ids, nil
}

// Population counts active items per lane.
func (s *Service) Population(ctx context.Context) (model.Population, error) {
	store, _, _, err := s.components()
	if err != nil {
		return model.Population{}, err
	}
	p, err := store.Population(ctx)
	if err != nil {
		return model.Population{}, translate("population", err)
	}
	for _, l := range lane.All {
		metrics.UpdateLanePopulation(l.String(), p.Of(l))
	}
	return p, nil
}

// Subscribe registers an observer of committed changes until ctx ends or
// the returned cancel is called.
func (s *Service) Subscribe(ctx context.Context) (<-chan model.Change, func(), error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started {
		return nil, nil, ErrNotStarted
	}
	ch, cancel := s.presence.Subscribe(ctx)
	return ch, cancel, nil
}

// Online returns the number of observers, synthetic ones included.
func (s *Service) Online() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.presence == nil {
		return 0
	}
	return s.presence.Online()
}

// Thresholds returns the thresholds in effect.
func (s *Service) Thresholds() lane.Thresholds {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.policy == nil {
		return s.thresholds
	}
	return s.policy.Thresholds()
}

// UpdateThresholds swaps the thresholds for future clicks. Items keep their
// current lane; invalid thresholds are rejected and the old ones stay.
func (s *Service) UpdateThresholds(ctx context.Context, t lane.Thresholds) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.policy == nil {
		if err := t.Validate(); err != nil {
			return err
		}
		s.thresholds = t
		return nil
	}
	old := s.policy.Thresholds()
	if err := s.policy.Update(t); err != nil {
		return err
	}
	s.thresholds = t
	s.logger.Info(ctx, "lane thresholds updated",
		logger.Int("old_trending", old.PromoteToTrending),
		logger.Int("old_graduated", old.PromoteToGraduated),
		logger.Int("promote_to_trending", t.PromoteToTrending),
		logger.Int("promote_to_graduated", t.PromoteToGraduated),
	)
	return nil
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx := context.Background()
	stats := map[string]interface{}{
		"started":     s.started,
		"workerCount": s.workerCount,
		"queueSize":   s.queueSize,
	}

	if s.started {
		total := s.store.Count(ctx)
		stats["totalItems"] = total
		stats["thresholds"] = s.policy.Thresholds()
		stats["online"] = s.presence.Online()
		metrics.UpdateItemsTotal(total)

		if p, err := s.store.Population(ctx); err == nil {
			stats["population"] = p
		}
		if s.notifier != nil {
			pending := s.notifier.Pending(ctx)
			stats["pendingNotifications"] = pending
			metrics.UpdateQueueSize(pending)
		}
	}

	return stats
}

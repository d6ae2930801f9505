package scheduler

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/okian/lanes/internal/domain/lane"
	"github.com/okian/lanes/internal/domain/model"
	"github.com/okian/lanes/pkg/logger"
	"github.com/okian/lanes/pkg/metrics"
	"github.com/robfig/cron/v3"
)

const (
	defaultInterval = 10 * time.Second
	actorPrefix     = "bot:"
)

// Skip reasons reported by Tick.
const (
	SkipAtCapacity  = "at_capacity"
	SkipNoCandidate = "no_candidate"
	SkipReadFailed  = "read_failed"
	SkipClickFailed = "click_failed"
	SkipDuplicate   = "duplicate"
)

// Engine is the part of the engagement service the scheduler drives.
type Engine interface {
	Population(ctx context.Context) (model.Population, error)
	ActiveInLane(ctx context.Context, l lane.Lane) ([]model.Item, error)
	Thresholds() lane.Thresholds
	RecordClick(ctx context.Context, itemID, actorID string) (model.ClickResult, error)
}

// Presence receives the synthetic observer count while the scheduler runs.
type Presence interface {
	SetSynthetic(n int)
}

// Outcome describes one tick.
type Outcome struct {
	ItemID  string
	ActorID string
	Result  model.ClickResult
	Skipped string
}

// Scheduler clicks one admitted item per tick.
type Scheduler struct {
	engine    Engine
	presence  Presence
	synthetic int
	interval  time.Duration
	capacity  atomic.Pointer[Capacity]
	pick      func(n int) int
	logger    logger.Logger

	mu   sync.Mutex
	cron *cron.Cron
}

// New creates a scheduler with a 10s interval and default capacity.
func New(engine Engine, opts ...Option) *Scheduler {
	s := &Scheduler{
		engine:   engine,
		interval: defaultInterval,
		pick:     rand.IntN,
		logger:   logger.NewNop(),
	}
	c := DefaultCapacity()
	s.capacity.Store(&c)
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Capacity returns the ceilings in effect.
func (s *Scheduler) Capacity() Capacity {
	return *s.capacity.Load()
}

// SetCapacity replaces the ceilings from the next tick on.
func (s *Scheduler) SetCapacity(c Capacity) error {
	if err := c.Validate(); err != nil {
		return err
	}
	s.capacity.Store(&c)
	return nil
}

// Tick reads lane populations, admits candidates and clicks one of them
// with a fresh synthetic actor. Population reads are not transactional with
// the click, so concurrent real clicks can still overflow a lane.
func (s *Scheduler) Tick(ctx context.Context) (Outcome, error) {
	metrics.RecordSchedulerTick()
	c := s.Capacity()

	pop, err := s.engine.Population(ctx)
	if err != nil {
		return s.skip(ctx, SkipReadFailed), fmt.Errorf("read population: %w", err)
	}
	if pop.Trending >= c.MaxTrending && pop.Graduated >= c.MaxGraduated {
		return s.skip(ctx, SkipAtCapacity), nil
	}

	trending, err := s.engine.ActiveInLane(ctx, lane.Trending)
	if err != nil {
		return s.skip(ctx, SkipReadFailed), fmt.Errorf("read trending: %w", err)
	}
	fresh, err := s.engine.ActiveInLane(ctx, lane.New)
	if err != nil {
		return s.skip(ctx, SkipReadFailed), fmt.Errorf("read new: %w", err)
	}

	candidates := Admit(pop, trending, fresh, s.engine.Thresholds(), c)
	if len(candidates) == 0 {
		return s.skip(ctx, SkipNoCandidate), nil
	}

	target := candidates[s.pick(len(candidates))]
	actor := actorPrefix + uuid.NewString()
	res, err := s.engine.RecordClick(ctx, target.ID, actor)
	if err != nil {
		return s.skip(ctx, SkipClickFailed), fmt.Errorf("click %s: %w", target.ID, err)
	}
	if res.Duplicate {
		return s.skip(ctx, SkipDuplicate), nil
	}

	metrics.RecordSchedulerClick()
	s.logger.Debug(ctx, "synthetic click",
		logger.String("item_id", target.ID),
		logger.Int("click_count", res.ClickCount),
		logger.Int("candidates", len(candidates)),
	)
	return Outcome{ItemID: target.ID, ActorID: actor, Result: res}, nil
}

func (s *Scheduler) skip(ctx context.Context, reason string) Outcome {
	metrics.RecordSchedulerSkip(reason)
	s.logger.Debug(ctx, "scheduler tick skipped", logger.String("reason", reason))
	return Outcome{Skipped: reason}
}

// Start runs Tick on the interval until Stop or ctx is done, and shows the
// synthetic observers.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cron != nil {
		return nil
	}
	if s.interval <= 0 {
		return fmt.Errorf("%w: %s", ErrInvalidInterval, s.interval)
	}

	cl := logger.Cron(s.logger)
	c := cron.New(cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)))
	spec := "@every " + s.interval.String()
	if _, err := c.AddFunc(spec, func() {
		if _, err := s.Tick(ctx); err != nil {
			s.logger.Warn(ctx, "scheduler tick failed", logger.Error(err))
		}
	}); err != nil {
		return fmt.Errorf("schedule %q: %w", spec, err)
	}
	c.Start()
	s.cron = c

	if s.presence != nil {
		s.presence.SetSynthetic(s.synthetic)
	}
	context.AfterFunc(ctx, s.Stop)

	s.logger.Info(ctx, "scheduler started",
		logger.Duration("interval", s.interval),
		logger.Int("synthetic_presence", s.synthetic),
	)
	return nil
}

// Stop waits for a running tick and removes the synthetic observers.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	c := s.cron
	s.cron = nil
	s.mu.Unlock()

	if c == nil {
		return
	}
	<-c.Stop().Done()
	if s.presence != nil {
		s.presence.SetSynthetic(0)
	}
	s.logger.Info(context.Background(), "scheduler stopped")
}

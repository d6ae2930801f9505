package catalog

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/okian/lanes/internal/adapters/repository"
	"github.com/okian/lanes/internal/domain/model"
	"github.com/okian/lanes/pkg/logger"
	"github.com/okian/lanes/pkg/metrics"
	"github.com/robfig/cron/v3"
)

const (
	defaultDripWindow = 55 * time.Minute
	defaultSchedule   = "@every 1h"
)

// Source yields the current catalog.
type Source interface {
	Fetch(ctx context.Context) ([]model.CatalogItem, error)
}

// Sink is the slice of the item store the syncer writes to.
type Sink interface {
	Get(ctx context.Context, itemID string) (model.Item, error)
	UpsertCatalog(ctx context.Context, batch []repository.CatalogEntry, seenAt time.Time) (int, error)
	DeactivateExcept(ctx context.Context, keep []string) (int, error)
}

// Result summarizes one sync.
type Result struct {
	Fetched     int
	Inserted    int
	Deactivated int
}

// Syncer copies the catalog into the store. It only ever writes display
// metadata and activity; counts and lanes belong to the click path.
type Syncer struct {
	source     Source
	sink       Sink
	dripWindow time.Duration
	schedule   string
	shuffle    func(ids []string)
	now        func() time.Time
	logger     logger.Logger

	mu   sync.Mutex
	cron *cron.Cron
}

// NewSyncer wires source to sink.
func NewSyncer(source Source, sink Sink, opts ...SyncerOption) *Syncer {
	s := &Syncer{
		source:     source,
		sink:       sink,
		dripWindow: defaultDripWindow,
		schedule:   defaultSchedule,
		shuffle: func(ids []string) {
			rand.Shuffle(len(ids), func(i, j int) { ids[i], ids[j] = ids[j], ids[i] })
		},
		now:    time.Now,
		logger: logger.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Sync runs one fetch, upsert and deactivate pass. Items new to the store
// are released one by one across the drip window in random order. An empty
// feed deactivates nothing.
func (s *Syncer) Sync(ctx context.Context) (Result, error) {
	items, err := s.source.Fetch(ctx)
	if err != nil {
		metrics.RecordCatalogSync("fetch_failed")
		return Result{}, fmt.Errorf("sync: %w", err)
	}
	res := Result{Fetched: len(items)}
	if len(items) == 0 {
		metrics.RecordCatalogSync("empty")
		s.logger.Warn(ctx, "catalog returned no items, keeping current set")
		return res, nil
	}

	now := s.now()
	release, err := s.releaseTimes(ctx, items, now)
	if err != nil {
		metrics.RecordCatalogSync("failed")
		return res, err
	}

	batch := make([]repository.CatalogEntry, len(items))
	keep := make([]string, len(items))
	for i, it := range items {
		batch[i] = repository.CatalogEntry{CatalogItem: it, ReleaseAt: release[it.ID]}
		keep[i] = it.ID
	}

	if res.Inserted, err = s.sink.UpsertCatalog(ctx, batch, now); err != nil {
		metrics.RecordCatalogSync("failed")
		return res, fmt.Errorf("sync upsert: %w", err)
	}
	if res.Deactivated, err = s.sink.DeactivateExcept(ctx, keep); err != nil {
		metrics.RecordCatalogSync("failed")
		return res, fmt.Errorf("sync deactivate: %w", err)
	}

	metrics.RecordCatalogSync("ok")
	metrics.RecordCatalogItems("fetched", res.Fetched)
	metrics.RecordCatalogItems("inserted", res.Inserted)
	metrics.RecordCatalogItems("deactivated", res.Deactivated)
	s.logger.Info(ctx, "catalog synced",
		logger.Int("fetched", res.Fetched),
		logger.Int("inserted", res.Inserted),
		logger.Int("deactivated", res.Deactivated),
		logger.Duration("drip_window", s.dripWindow),
	)
	return res, nil
}

// releaseTimes assigns each item not yet in the store an evenly spaced slot
// in [now, now+dripWindow]. A single new item is released at once.
func (s *Syncer) releaseTimes(ctx context.Context, items []model.CatalogItem, now time.Time) (map[string]time.Time, error) {
	var fresh []string
	seen := make(map[string]struct{}, len(items))
	for _, it := range items {
		if _, dup := seen[it.ID]; dup {
			continue
		}
		seen[it.ID] = struct{}{}
		_, err := s.sink.Get(ctx, it.ID)
		switch {
		case errors.Is(err, repository.ErrNotFound):
			fresh = append(fresh, it.ID)
		case err != nil:
			return nil, fmt.Errorf("sync lookup %s: %w", it.ID, err)
		}
	}

	out := make(map[string]time.Time, len(fresh))
	s.shuffle(fresh)
	for i, id := range fresh {
		var offset time.Duration
		if len(fresh) > 1 {
			offset = time.Duration(float64(s.dripWindow) * float64(i) / float64(len(fresh)-1))
		}
		out[id] = now.Add(offset)
	}
	return out, nil
}

// Start runs Sync once and then on the configured schedule until Stop or
// ctx is done.
func (s *Syncer) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cron != nil {
		return nil
	}

	cl := logger.Cron(s.logger)
	c := cron.New(cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)))
	run := func() {
		if _, err := s.Sync(ctx); err != nil {
			s.logger.Error(ctx, "catalog sync failed", logger.Error(err))
		}
	}
	if _, err := c.AddFunc(s.schedule, run); err != nil {
		return fmt.Errorf("schedule %q: %w", s.schedule, err)
	}
	c.Start()
	s.cron = c
	context.AfterFunc(ctx, s.Stop)

	go run()
	s.logger.Info(ctx, "catalog sync scheduled", logger.String("schedule", s.schedule))
	return nil
}

// Stop halts the schedule and waits for a running sync.
func (s *Syncer) Stop() {
	s.mu.Lock()
	c := s.cron
	s.cron = nil
	s.mu.Unlock()
	if c != nil {
		<-c.Stop().Done()
	}
}

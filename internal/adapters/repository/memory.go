package repository

import (
	"context"
	"fmt"
	"hash/fnv"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okian/lanes/internal/domain/lane"
	"github.com/okian/lanes/internal/domain/ledger"
	"github.com/okian/lanes/internal/domain/model"
	"github.com/okian/lanes/internal/domain/types"
	"github.com/okian/lanes/pkg/metrics"
)

// Snapshot is an immutable ranking view rebuilt in the background.
type Snapshot struct {
	Ranked     []types.Entry
	RankByItem map[string]int
	Population model.Population
	BuiltAt    time.Time
}

// entry guards one item. Its mutex is the per-item serialization point.
type entry struct {
	mu   sync.Mutex
	item model.Item
}

type itemShard struct {
	mu    sync.RWMutex
	items map[string]*entry
}

// MemoryStore keeps items in sharded maps with one lock per item, so clicks on
// different items never contend.
type MemoryStore struct {
	shardCount       int
	shards           []*itemShard
	ledger           *ledger.Memory
	snapshotInterval time.Duration
	now              func() time.Time

	snapshot atomic.Pointer[Snapshot]

	wg       sync.WaitGroup
	stopChan chan struct{}
}

// NewMemoryStore constructs the store and starts its snapshot loop.
func NewMemoryStore(ctx context.Context, opts ...Option) *MemoryStore {
	s := &MemoryStore{
		shardCount:       16,
		snapshotInterval: time.Second,
		now:              time.Now,
		stopChan:         make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.ledger == nil {
		s.ledger = ledger.NewMemory(ledger.WithShards(s.shardCount))
	}
	s.shards = make([]*itemShard, s.shardCount)
	for i := range s.shards {
		s.shards[i] = &itemShard{items: make(map[string]*entry)}
	}

	s.Refresh()
	s.startPeriodicSnapshots(ctx)
	return s
}

func (s *MemoryStore) shardFor(itemID string) *itemShard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(itemID))
	return s.shards[h.Sum32()%uint32(len(s.shards))]
}

func (s *MemoryStore) lookup(itemID string) (*entry, bool) {
	sh := s.shardFor(itemID)
	sh.mu.RLock()
	e, ok := sh.items[itemID]
	sh.mu.RUnlock()
	return e, ok
}

// getOrCreate returns the entry for itemID, creating it with init if absent.
func (s *MemoryStore) getOrCreate(itemID string, init func() model.Item) (*entry, bool) {
	if e, ok := s.lookup(itemID); ok {
		return e, false
	}
	sh := s.shardFor(itemID)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	if e, ok := sh.items[itemID]; ok {
		return e, false
	}
	e := &entry{item: init()}
	sh.items[itemID] = e
	return e, true
}

func (s *MemoryStore) startPeriodicSnapshots(ctx context.Context) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.snapshotInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-s.stopChan:
				return
			case <-ticker.C:
				s.Refresh()
			}
		}
	}()
}

// Refresh rebuilds and publishes the ranking snapshot now.
func (s *MemoryStore) Refresh() {
	start := time.Now()
	all := s.collect(func(model.Item) bool { return true })

	ranked := make([]types.Entry, len(all))
	for i, it := range all {
		ranked[i] = types.Entry{ItemID: it.ID, Title: it.Title, Lane: it.Lane, ClickCount: it.ClickCount}
	}
	sortEntries(ranked)
	assignRanksWithTies(ranked)

	snap := &Snapshot{
		Ranked:     ranked,
		RankByItem: make(map[string]int, len(ranked)),
		BuiltAt:    s.now(),
	}
	for _, e := range ranked {
		snap.RankByItem[e.ItemID] = e.Rank
	}
	for _, it := range all {
		if it.Active {
			snap.Population.Add(it.Lane)
		}
	}
	s.snapshot.Store(snap)

	metrics.RecordSnapshotRebuild(float64(time.Since(start).Microseconds())/1000, snap.BuiltAt.Unix())
	metrics.UpdateItemsTotal(len(all))
	metrics.UpdateLedgerSize(s.ledger.Size())
	for _, l := range lane.All {
		metrics.UpdateLanePopulation(string(l), snap.Population.Of(l))
	}
}

// Snapshot returns the latest published ranking view.
func (s *MemoryStore) Snapshot() *Snapshot {
	return s.snapshot.Load()
}

// Close stops the snapshot loop.
func (s *MemoryStore) Close() error {
	select {
	case <-s.stopChan:
	default:
		close(s.stopChan)
	}
	s.wg.Wait()
	return nil
}

func (s *MemoryStore) newItem(itemID string) func() model.Item {
	return func() model.Item {
		now := s.now()
		return model.Item{
			ID:        itemID,
			Lane:      lane.New,
			Active:    true,
			CreatedAt: now,
			UpdatedAt: now,
			LastSeen:  now,
		}
	}
}

// EnsureItem implements Store.EnsureItem.
func (s *MemoryStore) EnsureItem(ctx context.Context, itemID string) (model.Item, error) {
	if err := ctx.Err(); err != nil {
		return model.Item{}, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	e, _ := s.getOrCreate(itemID, s.newItem(itemID))
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.item, nil
}

// Engage implements Store.Engage. The ledger insert, the increment and the
// lane evaluation all happen while the item's lock is held.
func (s *MemoryStore) Engage(ctx context.Context, itemID, actorID string, eval EvalFunc) (model.Engagement, error) {
	e, ok := s.lookup(itemID)
	if !ok {
		return model.Engagement{}, ErrNotFound
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	prev := e.item.Lane
	inserted, err := s.ledger.TryInsert(ctx, itemID, actorID)
	if err != nil {
		return model.Engagement{}, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	if !inserted {
		return model.Engagement{Inserted: false, PrevLane: prev, Item: e.item}, nil
	}

	e.item.ClickCount++
	e.item.Lane = advance(eval, prev, e.item.ClickCount)
	e.item.UpdatedAt = s.now()
	return model.Engagement{Inserted: true, PrevLane: prev, Item: e.item}, nil
}

// Get implements Store.Get.
func (s *MemoryStore) Get(_ context.Context, itemID string) (model.Item, error) {
	e, ok := s.lookup(itemID)
	if !ok {
		return model.Item{}, ErrNotFound
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.item, nil
}

// Rank reads the item's position from the latest snapshot and its count live.
func (s *MemoryStore) Rank(ctx context.Context, itemID string) (types.Entry, error) {
	it, err := s.Get(ctx, itemID)
	if err != nil {
		metrics.RecordErrorByComponent("repository", "not_found")
		return types.Entry{}, err
	}
	rank, ok := s.Snapshot().RankByItem[itemID]
	if !ok {
		s.Refresh()
		rank = s.Snapshot().RankByItem[itemID]
	}
	return types.Entry{Rank: rank, ItemID: it.ID, Title: it.Title, Lane: it.Lane, ClickCount: it.ClickCount}, nil
}

// TopN serves the leaderboard from the latest snapshot.
func (s *MemoryStore) TopN(_ context.Context, n int) ([]types.Entry, error) {
	if n < 1 {
		metrics.RecordErrorByComponent("repository", "invalid_limit")
		return nil, ErrInvalidLimit
	}
	ranked := s.Snapshot().Ranked
	if n > len(ranked) {
		n = len(ranked)
	}
	out := make([]types.Entry, n)
	copy(out, ranked[:n])
	return out, nil
}

// ListActive implements Store.ListActive.
func (s *MemoryStore) ListActive(_ context.Context, visibleAt time.Time) ([]model.Item, error) {
	items := s.collect(func(it model.Item) bool { return it.VisibleAt(visibleAt) })
	sortNewestFirst(items)
	return items, nil
}

// ActiveInLane implements Store.ActiveInLane.
func (s *MemoryStore) ActiveInLane(_ context.Context, l lane.Lane, visibleAt time.Time) ([]model.Item, error) {
	items := s.collect(func(it model.Item) bool { return it.Lane == l && it.VisibleAt(visibleAt) })
	sortNewestFirst(items)
	return items, nil
}

// Population counts live rather than from the snapshot; the scheduler's
// capacity checks depend on it.
func (s *MemoryStore) Population(_ context.Context) (model.Population, error) {
	var p model.Population
	for _, it := range s.collect(func(it model.Item) bool { return it.Active }) {
		p.Add(it.Lane)
	}
	return p, nil
}

// ActorClicks implements Store.ActorClicks.
func (s *MemoryStore) ActorClicks(ctx context.Context, actorID string) ([]string, error) {
	return s.ledger.ActorItems(ctx, actorID)
}

// UpsertCatalog implements Store.UpsertCatalog.
func (s *MemoryStore) UpsertCatalog(ctx context.Context, batch []CatalogEntry, seenAt time.Time) (int, error) {
	inserted := 0
	for _, c := range batch {
		if err := ctx.Err(); err != nil {
			return inserted, fmt.Errorf("%w: %w", ErrUnavailable, err)
		}
		release := c.ReleaseAt
		if release.IsZero() {
			release = seenAt
		}
		e, created := s.getOrCreate(c.ID, func() model.Item {
			return model.Item{ID: c.ID, Lane: lane.New, CreatedAt: release}
		})
		if created {
			inserted++
		}
		e.mu.Lock()
		e.item.Title = c.Title
		e.item.Employer = c.Employer
		e.item.City = c.City
		e.item.State = c.State
		e.item.Country = c.Country
		e.item.ApplyLink = c.ApplyLink
		e.item.LogoURL = c.LogoURL
		e.item.Active = true
		e.item.LastSeen = seenAt
		e.item.UpdatedAt = seenAt
		e.mu.Unlock()
	}
	return inserted, nil
}

// DeactivateExcept implements Store.DeactivateExcept.
func (s *MemoryStore) DeactivateExcept(_ context.Context, keep []string) (int, error) {
	keepSet := make(map[string]struct{}, len(keep))
	for _, id := range keep {
		keepSet[id] = struct{}{}
	}
	n := 0
	for _, sh := range s.shards {
		sh.mu.RLock()
		for id, e := range sh.items {
			if _, ok := keepSet[id]; ok {
				continue
			}
			e.mu.Lock()
			if e.item.Active {
				e.item.Active = false
				e.item.UpdatedAt = s.now()
				n++
			}
			e.mu.Unlock()
		}
		sh.mu.RUnlock()
	}
	return n, nil
}

// Count implements Store.Count.
func (s *MemoryStore) Count(_ context.Context) int {
	n := 0
	for _, sh := range s.shards {
		sh.mu.RLock()
		n += len(sh.items)
		sh.mu.RUnlock()
	}
	return n
}

// collect copies every item matching keep. Item locks are taken one at a time.
func (s *MemoryStore) collect(keep func(model.Item) bool) []model.Item {
	var out []model.Item
	for _, sh := range s.shards {
		sh.mu.RLock()
		entries := make([]*entry, 0, len(sh.items))
		for _, e := range sh.items {
			entries = append(entries, e)
		}
		sh.mu.RUnlock()

		for _, e := range entries {
			e.mu.Lock()
			it := e.item
			e.mu.Unlock()
			if keep(it) {
				out = append(out, it)
			}
		}
	}
	return out
}

func sortNewestFirst(items []model.Item) {
	sort.Slice(items, func(i, j int) bool {
		if !items[i].CreatedAt.Equal(items[j].CreatedAt) {
			return items[i].CreatedAt.After(items[j].CreatedAt)
		}
		return items[i].ID < items[j].ID
	})
}

// sortEntries orders by click count desc, then item id asc.
func sortEntries(entries []types.Entry) {
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].ClickCount != entries[j].ClickCount {
			return entries[i].ClickCount > entries[j].ClickCount
		}
		return entries[i].ItemID < entries[j].ItemID
	})
}

// assignRanksWithTies gives equal counts the same rank; ranks stay consecutive.
func assignRanksWithTies(entries []types.Entry) {
	rank := 0
	for i := range entries {
		if i == 0 || entries[i].ClickCount != entries[i-1].ClickCount {
			rank++
		}
		entries[i].Rank = rank
	}
}

// Package ledger records which actor clicked which item. A pair is recorded
// at most once, ever; the ledger never evicts.
package ledger

import (
	"context"
	"hash/fnv"
	"sort"
	"sync"
	"sync/atomic"
)

// Ledger is the append-only set of (item, actor) click records.
type Ledger interface {
	// TryInsert records the pair if it is absent. It reports false for a
	// pair that was already recorded; that is an outcome, not an error.
	TryInsert(ctx context.Context, itemID, actorID string) (bool, error)

	// ActorItems lists the items an actor clicked.
	ActorItems(ctx context.Context, actorID string) ([]string, error)
}

type shard struct {
	mu sync.RWMutex
	// actor -> set of item ids
	byActor map[string]map[string]struct{}
}

// Memory is an in-process Ledger sharded by actor id. Both the pair check and
// the insert happen under a single shard lock.
type Memory struct {
	shards []*shard
	size   atomic.Int64
}

// NewMemory creates an empty in-memory ledger.
func NewMemory(opts ...Option) *Memory {
	m := &Memory{}
	cfg := options{shards: defaultShards}
	for _, opt := range opts {
		opt(&cfg)
	}
	m.shards = make([]*shard, cfg.shards)
	for i := range m.shards {
		m.shards[i] = &shard{byActor: make(map[string]map[string]struct{})}
	}
	return m
}

func (m *Memory) shardFor(actorID string) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(actorID))
	return m.shards[h.Sum32()%uint32(len(m.shards))]
}

// TryInsert records (itemID, actorID) unless it already exists.
func (m *Memory) TryInsert(ctx context.Context, itemID, actorID string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s := m.shardFor(actorID)
	s.mu.Lock()
	defer s.mu.Unlock()

	items, ok := s.byActor[actorID]
	if !ok {
		items = make(map[string]struct{})
		s.byActor[actorID] = items
	}
	if _, seen := items[itemID]; seen {
		return false, nil
	}
	items[itemID] = struct{}{}
	m.size.Add(1)
	return true, nil
}

// ActorItems lists the items an actor clicked, sorted by id.
func (m *Memory) ActorItems(_ context.Context, actorID string) ([]string, error) {
	s := m.shardFor(actorID)
	s.mu.RLock()
	out := make([]string, 0, len(s.byActor[actorID]))
	for id := range s.byActor[actorID] {
		out = append(out, id)
	}
	s.mu.RUnlock()
	sort.Strings(out)
	return out, nil
}

// Size returns the number of recorded pairs.
func (m *Memory) Size() int64 {
	return m.size.Load()
}

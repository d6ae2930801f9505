package repository

import (
	"time"

	"github.com/okian/lanes/internal/domain/ledger"
)

// Option applies a configuration option to the MemoryStore.
type Option func(*MemoryStore)

// WithShards sets the number of item map shards.
func WithShards(n int) Option {
	return func(s *MemoryStore) {
		if n > 0 {
			s.shardCount = n
		}
	}
}

// WithSnapshotInterval sets how often the ranking snapshot is rebuilt.
func WithSnapshotInterval(interval time.Duration) Option {
	return func(s *MemoryStore) {
		if interval > 0 {
			s.snapshotInterval = interval
		}
	}
}

// WithLedger replaces the default in-memory ledger.
func WithLedger(l *ledger.Memory) Option {
	return func(s *MemoryStore) {
		if l != nil {
			s.ledger = l
		}
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *MemoryStore) {
		if now != nil {
			s.now = now
		}
	}
}

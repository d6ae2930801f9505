package service

import (
	"time"

	"github.com/okian/lanes/internal/adapters/repository"
	"github.com/okian/lanes/internal/domain/lane"
	"github.com/okian/lanes/pkg/logger"
)

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithStore sets the item store. Without it Start creates a MemoryStore.
func WithStore(store repository.Store) Option {
	return func(s *Service) {
		if store != nil {
			s.store = store
		}
	}
}

// WithThresholds sets the initial lane thresholds.
func WithThresholds(t lane.Thresholds) Option {
	return func(s *Service) {
		s.thresholds = t
	}
}

// WithPublisher sets where committed changes are handed off.
func WithPublisher(p Publisher) Option {
	return func(s *Service) {
		if p != nil {
			s.publisher = p
		}
	}
}

// WithPresence sets the observer registry used by Subscribe and Online.
func WithPresence(p Presence) Option {
	return func(s *Service) {
		if p != nil {
			s.presence = p
		}
	}
}

// WithShardCount sets the shard count of the default MemoryStore.
func WithShardCount(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.shardCount = n
		}
	}
}

// WithSnapshotInterval sets the ranking refresh of the default MemoryStore.
func WithSnapshotInterval(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.snapshotInterval = d
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock overrides time.Now for change timestamps and visibility.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithWorkerCount sets the dispatch workers of the default notifier.
func WithWorkerCount(count int) Option {
	return func(s *Service) {
		if count > 0 {
			s.workerCount = count
		}
	}
}

// WithQueueSize sets the change queue capacity of the default notifier.
func WithQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

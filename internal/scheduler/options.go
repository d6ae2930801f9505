package scheduler

import (
	"time"

	"github.com/okian/lanes/pkg/logger"
)

// Option applies a configuration option to the Scheduler.
type Option func(*Scheduler)

// WithInterval sets the time between ticks.
func WithInterval(d time.Duration) Option {
	return func(s *Scheduler) {
		s.interval = d
	}
}

// WithCapacity sets the initial ceilings. Invalid values are ignored.
func WithCapacity(c Capacity) Option {
	return func(s *Scheduler) {
		if c.Validate() == nil {
			s.capacity.Store(&c)
		}
	}
}

// WithPresence shows n synthetic observers on p while running.
func WithPresence(p Presence, n int) Option {
	return func(s *Scheduler) {
		s.presence = p
		s.synthetic = n
	}
}

// WithPicker replaces the uniform random choice among candidates.
func WithPicker(pick func(n int) int) Option {
	return func(s *Scheduler) {
		if pick != nil {
			s.pick = pick
		}
	}
}

// WithLogger sets the scheduler logger.
func WithLogger(l logger.Logger) Option {
	return func(s *Scheduler) {
		if l != nil {
			s.logger = l
		}
	}
}

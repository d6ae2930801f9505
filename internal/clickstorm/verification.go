package clickstorm

import (
	"errors"
	"fmt"

	"github.com/okian/lanes/internal/domain/lane"
)

// replay applies clicks one at a time from (from, count) and returns the
// resulting lane and how many transitions it took.
func replay(from lane.Lane, count, clicks int, t lane.Thresholds) (lane.Lane, int) {
	current, transitions := from, 0
	for i := 1; i <= clicks; i++ {
		next := lane.Next(current, count+i, t)
		if next != current {
			transitions++
			current = next
		}
	}
	return current, transitions
}

// verify checks the storm against a sequential replay of the same clicks.
func verify(cfg Config, start itemResponse, stats *Stats) error {
	wantLane, wantMigrations := replay(start.Lane, start.ClickCount, cfg.Actors, cfg.Thresholds)
	wantCount := start.ClickCount + cfg.Actors

	var errs []error
	check := func(name string, got, want any) {
		if got != want {
			errs = append(errs, fmt.Errorf("%s: got %v, want %v", name, got, want))
		}
	}
	check("failed clicks", stats.Failed, 0)
	check("accepted clicks", stats.Accepted, cfg.Actors)
	check("duplicate clicks", stats.Duplicate, cfg.Duplicates)
	check("click count", stats.FinalCount, wantCount)
	check("lane", stats.FinalLane, wantLane)
	check("migrations", stats.Migrations, wantMigrations)

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrMismatch, errors.Join(errs...))
	}
	return nil
}

package clickstorm

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/okian/lanes/internal/domain/lane"
	"github.com/okian/lanes/pkg/logger"
)

type job struct {
	actorID string
}

// Run clicks cfg.ItemID from Actors distinct actors plus Duplicates replays,
// all concurrently, then reads the item back and verifies it.
func Run(ctx context.Context, cfg Config, l logger.Logger) (*Stats, error) {
	if l == nil {
		l = logger.NewNop()
	}
	if err := validate(cfg); err != nil {
		return nil, err
	}
	if cfg.ItemID == "" {
		cfg.ItemID = "clickstorm-" + uuid.NewString()
	}

	client := newHTTPClient(cfg.BaseURL, cfg.Timeout, cfg.Rate)
	stats := &Stats{StartTime: time.Now()}

	l.Info(ctx, "starting click storm",
		logger.String("base_url", cfg.BaseURL),
		logger.String("item_id", cfg.ItemID),
		logger.Int("actors", cfg.Actors),
		logger.Int("duplicates", cfg.Duplicates),
		logger.Int("workers", cfg.Workers),
	)

	if err := checkHealth(ctx, client); err != nil {
		return nil, err
	}
	start, err := readItem(ctx, client, cfg.ItemID)
	if err != nil {
		return nil, err
	}

	submit(ctx, client, cfg, stats, l)

	final, err := readItem(ctx, client, cfg.ItemID)
	if err != nil {
		return stats, err
	}
	stats.FinalCount = final.ClickCount
	stats.FinalLane = final.Lane
	stats.Duration = time.Since(stats.StartTime)

	l.Info(ctx, "click storm finished",
		logger.Int("accepted", stats.Accepted),
		logger.Int("duplicate", stats.Duplicate),
		logger.Int("failed", stats.Failed),
		logger.Int("throttled", stats.Throttled),
		logger.Int("migrations", stats.Migrations),
		logger.Int("click_count", stats.FinalCount),
		logger.String("lane", string(stats.FinalLane)),
		logger.Duration("duration", stats.Duration),
	)
	return stats, verify(cfg, start, stats)
}

func validate(cfg Config) error {
	switch {
	case cfg.BaseURL == "":
		return fmt.Errorf("%w: base url is required", ErrInvalidConfig)
	case cfg.Actors < 1:
		return fmt.Errorf("%w: actors must be positive", ErrInvalidConfig)
	case cfg.Duplicates < 0:
		return fmt.Errorf("%w: duplicates must not be negative", ErrInvalidConfig)
	case cfg.Workers < 1:
		return fmt.Errorf("%w: workers must be positive", ErrInvalidConfig)
	}
	if err := cfg.Thresholds.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return nil
}

func checkHealth(ctx context.Context, c *httpClient) error {
	status, err := c.get(ctx, "/healthz", nil)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUnhealthy, err)
	}
	if status != http.StatusOK {
		return fmt.Errorf("%w: status %d", ErrUnhealthy, status)
	}
	return nil
}

// readItem returns the item, or a fresh New item with no clicks when the
// server does not know it yet.
func readItem(ctx context.Context, c *httpClient, itemID string) (itemResponse, error) {
	var it itemResponse
	status, err := c.get(ctx, "/items/"+url.PathEscape(itemID), &it)
	if err != nil {
		return it, err
	}
	switch status {
	case http.StatusOK:
		return it, nil
	case http.StatusNotFound:
		return itemResponse{ItemID: itemID, Lane: lane.New}, nil
	default:
		return it, fmt.Errorf("read item %s: status %d", itemID, status)
	}
}

// submit fans the clicks out over cfg.Workers goroutines.
func submit(ctx context.Context, c *httpClient, cfg Config, stats *Stats, l logger.Logger) {
	var (
		submitted  atomic.Int64
		accepted   atomic.Int64
		duplicate  atomic.Int64
		failed     atomic.Int64
		throttled  atomic.Int64
		migrations atomic.Int64
	)

	jobs := make(chan job, cfg.Workers*2)
	var wg sync.WaitGroup
	for i := 0; i < cfg.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range jobs {
				res, o, t, err := c.click(ctx, cfg.ItemID, j.actorID)
				submitted.Add(1)
				throttled.Add(int64(t))
				switch o {
				case outcomeAccepted:
					accepted.Add(1)
					if res.NewLane != nil {
						migrations.Add(1)
					}
				case outcomeDuplicate:
					duplicate.Add(1)
				default:
					failed.Add(1)
					l.Warn(ctx, "click failed", logger.String("actor_id", j.actorID), logger.Error(err))
				}
				if cfg.Verbose {
					l.Info(ctx, "click", logger.String("actor_id", j.actorID),
						logger.Int("click_count", res.ClickCount), logger.String("status", res.Status))
				}
			}
		}()
	}

	go func() {
		defer close(jobs)
		for _, j := range plan(cfg.Actors, cfg.Duplicates) {
			select {
			case <-ctx.Done():
				return
			case jobs <- j:
			}
		}
	}()
	wg.Wait()

	stats.Submitted = int(submitted.Load())
	stats.Accepted = int(accepted.Load())
	stats.Duplicate = int(duplicate.Load())
	stats.Failed = int(failed.Load())
	stats.Throttled = int(throttled.Load())
	stats.Migrations = int(migrations.Load())
}

// plan lists one click per actor followed by the duplicate replays, which
// cycle through the same actors.
func plan(actors, duplicates int) []job {
	out := make([]job, 0, actors+duplicates)
	for i := 0; i < actors; i++ {
		out = append(out, job{actorID: actorName(i)})
	}
	for i := 0; i < duplicates; i++ {
		out = append(out, job{actorID: actorName(i % actors)})
	}
	return out
}

func actorName(i int) string {
	return fmt.Sprintf("storm-actor-%d", i)
}

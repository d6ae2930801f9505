// Package repository owns persisted item state: click counts, lanes and the
// click ledger, plus the catalog metadata displayed alongside them.
package repository

import (
	"context"
	"time"

	"github.com/okian/lanes/internal/domain/lane"
	"github.com/okian/lanes/internal/domain/model"
	"github.com/okian/lanes/internal/domain/types"
)

// EvalFunc maps the lane an item held before a click and its new count to
// the lane it should hold after the click.
type EvalFunc func(current lane.Lane, clickCount int) lane.Lane

// advance applies eval but keeps the current lane when eval returns an
// unknown lane or one that ranks below it.
func advance(eval EvalFunc, current lane.Lane, clickCount int) lane.Lane {
	next := eval(current, clickCount)
	if !next.Valid() || next.Rank() < current.Rank() {
		return current
	}
	return next
}

// Store provides read/write access to item state.
type Store interface {
	// EnsureItem creates the item in lane New with zero clicks if it is absent.
	EnsureItem(ctx context.Context, itemID string) (model.Item, error)

	// Engage is the atomic click unit: record (item, actor) in the ledger and,
	// only if that created a record, increment the count, evaluate the lane and
	// persist both. Writers to the same item are serialized; writers to
	// different items are not. Returns ErrNotFound for unknown items.
	Engage(ctx context.Context, itemID, actorID string, eval EvalFunc) (model.Engagement, error)

	// Get returns one item or ErrNotFound.
	Get(ctx context.Context, itemID string) (model.Item, error)

	// Rank returns the item's leaderboard position by click count.
	Rank(ctx context.Context, itemID string) (types.Entry, error)

	// TopN returns up to n items ordered by click count desc, then id asc.
	TopN(ctx context.Context, n int) ([]types.Entry, error)

	// ListActive returns active items released at or before visibleAt,
	// newest first.
	ListActive(ctx context.Context, visibleAt time.Time) ([]model.Item, error)

	// ActiveInLane returns active, released items currently in l.
	ActiveInLane(ctx context.Context, l lane.Lane, visibleAt time.Time) ([]model.Item, error)

	// Population counts active items per lane.
	Population(ctx context.Context) (model.Population, error)

	// ActorClicks lists the item ids an actor has clicked.
	ActorClicks(ctx context.Context, actorID string) ([]string, error)

	// UpsertCatalog writes display metadata, marks items active and stamps
	// last_seen. New items take ReleaseAt as created_at. Count and lane are
	// never written. Returns how many items were inserted.
	UpsertCatalog(ctx context.Context, batch []CatalogEntry, seenAt time.Time) (int, error)

	// DeactivateExcept marks every active item not in keep as inactive.
	DeactivateExcept(ctx context.Context, keep []string) (int, error)

	// Count returns the number of items tracked.
	Count(ctx context.Context) int

	Close() error
}

// CatalogEntry is catalog metadata plus the time a new item becomes visible.
type CatalogEntry struct {
	model.CatalogItem
	ReleaseAt time.Time
}

package catalog_test

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"testing"
	"time"

	"github.com/okian/lanes/internal/adapters/catalog"
	"github.com/okian/lanes/internal/adapters/repository"
	"github.com/okian/lanes/internal/domain/lane"
	"github.com/okian/lanes/internal/domain/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticSource struct {
	items []model.CatalogItem
	err   error
}

func (s staticSource) Fetch(context.Context) ([]model.CatalogItem, error) { return s.items, s.err }

func catalogItems(ids ...string) []model.CatalogItem {
	out := make([]model.CatalogItem, len(ids))
	for i, id := range ids {
		out[i] = model.CatalogItem{ID: id, Title: "title " + id}
	}
	return out
}

func newSyncStore(t *testing.T, now time.Time) *repository.MemoryStore {
	t.Helper()
	s := repository.NewMemoryStore(context.Background(),
		repository.WithSnapshotInterval(time.Hour),
		repository.WithClock(func() time.Time { return now }),
	)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSyncer_DripsNewItems(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	ctx := context.Background()
	store := newSyncStore(t, now)

	_, _ = store.EnsureItem(ctx, "old")
	for i := 0; i < 6; i++ {
		_, err := store.Engage(ctx, "old", fmt.Sprintf("u%d", i), func(c lane.Lane, n int) lane.Lane {
			return lane.Next(c, n, lane.DefaultThresholds())
		})
		require.NoError(t, err)
	}
	_, _ = store.EnsureItem(ctx, "gone")

	syncer := catalog.NewSyncer(staticSource{items: catalogItems("old", "a", "b", "c")}, store,
		catalog.WithDripWindow(60*time.Minute),
		catalog.WithShuffle(sort.Strings),
		catalog.WithSyncClock(func() time.Time { return now }),
	)

	res, err := syncer.Sync(ctx)
	require.NoError(t, err)
	assert.Equal(t, catalog.Result{Fetched: 4, Inserted: 3, Deactivated: 1}, res)

	for id, offset := range map[string]time.Duration{"a": 0, "b": 30 * time.Minute, "c": 60 * time.Minute} {
		it, err := store.Get(ctx, id)
		require.NoError(t, err)
		assert.True(t, it.CreatedAt.Equal(now.Add(offset)), "%s released at %s", id, it.CreatedAt)
	}

	old, _ := store.Get(ctx, "old")
	assert.Equal(t, 6, old.ClickCount)
	assert.Equal(t, lane.Trending, old.Lane)
	assert.Equal(t, "title old", old.Title)

	gone, _ := store.Get(ctx, "gone")
	assert.False(t, gone.Active)

	visible, _ := store.ListActive(ctx, now)
	require.Len(t, visible, 2)
}

func TestSyncer_SingleNewItemIsImmediate(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	store := newSyncStore(t, now)
	syncer := catalog.NewSyncer(staticSource{items: catalogItems("solo")}, store,
		catalog.WithSyncClock(func() time.Time { return now }))

	_, err := syncer.Sync(context.Background())
	require.NoError(t, err)
	it, _ := store.Get(context.Background(), "solo")
	assert.True(t, it.CreatedAt.Equal(now))
}

func TestSyncer_EmptyAndFailedFeeds(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	ctx := context.Background()
	store := newSyncStore(t, now)
	_, _ = store.EnsureItem(ctx, "keep")

	res, err := catalog.NewSyncer(staticSource{}, store).Sync(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Deactivated)
	it, _ := store.Get(ctx, "keep")
	assert.True(t, it.Active)

	_, err = catalog.NewSyncer(staticSource{err: errors.New("boom")}, store).Sync(ctx)
	assert.Error(t, err)
}

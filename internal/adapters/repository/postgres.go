package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/okian/lanes/internal/domain/lane"
	"github.com/okian/lanes/internal/domain/ledger"
	"github.com/okian/lanes/internal/domain/model"
	"github.com/okian/lanes/internal/domain/types"
)

const (
	defaultConnMaxLifetime = 5 * time.Minute
	defaultPingTimeout     = 5 * time.Second

	pqForeignKeyViolation = "23503"
)

const itemColumns = `item_id, title, employer, city, state, country, apply_link, logo_url,
	lane, click_count, active, created_at, updated_at, last_seen`

const (
	ensureItemSQL = `
INSERT INTO items (item_id, lane, click_count, active, created_at, updated_at, last_seen)
VALUES ($1, 'new', 0, TRUE, NOW(), NOW(), NOW())
ON CONFLICT (item_id) DO NOTHING`

	getItemSQL = `SELECT ` + itemColumns + ` FROM items WHERE item_id = $1`

	incrementSQL = `
UPDATE items SET click_count = click_count + 1, updated_at = NOW()
WHERE item_id = $1
RETURNING ` + itemColumns

	setLaneSQL = `UPDATE items SET lane = $2 WHERE item_id = $1`

	rankSQL = `
SELECT COUNT(DISTINCT click_count) + 1 FROM items
WHERE click_count > (SELECT click_count FROM items WHERE item_id = $1)`

	topNSQL = `
SELECT item_id, title, lane, click_count FROM items
ORDER BY click_count DESC, item_id ASC
LIMIT $1`

	listActiveSQL = `SELECT ` + itemColumns + ` FROM items
WHERE active AND created_at <= $1
ORDER BY created_at DESC, item_id ASC`

	activeInLaneSQL = `SELECT ` + itemColumns + ` FROM items
WHERE active AND lane = $1 AND created_at <= $2
ORDER BY created_at DESC, item_id ASC`

	populationSQL = `SELECT lane, COUNT(*) AS n FROM items WHERE active GROUP BY lane`

	upsertCatalogSQL = `
INSERT INTO items (item_id, title, employer, city, state, country, apply_link, logo_url,
	lane, click_count, active, created_at, updated_at, last_seen)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 'new', 0, TRUE, $9, $10, $10)
ON CONFLICT (item_id) DO UPDATE SET
	title = EXCLUDED.title,
	employer = EXCLUDED.employer,
	city = EXCLUDED.city,
	state = EXCLUDED.state,
	country = EXCLUDED.country,
	apply_link = EXCLUDED.apply_link,
	logo_url = EXCLUDED.logo_url,
	active = TRUE,
	updated_at = EXCLUDED.updated_at,
	last_seen = EXCLUDED.last_seen
RETURNING (xmax = 0) AS inserted`

	deactivateExceptSQL = `
UPDATE items SET active = FALSE, updated_at = NOW()
WHERE active AND NOT (item_id = ANY($1))`

	countSQL = `SELECT COUNT(*) FROM items`
)

// OpenPostgres connects with a bounded pool and verifies the connection.
func OpenPostgres(ctx context.Context, dsn string, maxOpen, maxIdle int) (*sqlx.DB, error) {
	db, err := sqlx.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: open: %w", ErrUnavailable, err)
	}
	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(maxIdle)
	db.SetConnMaxLifetime(defaultConnMaxLifetime)

	pingCtx, cancel := context.WithTimeout(ctx, defaultPingTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: ping: %w", ErrUnavailable, err)
	}
	return db, nil
}

// PostgresStore keeps items and clicks in PostgreSQL. Each Engage is one
// transaction; the row lock taken by the increment serializes writers to
// the same item.
type PostgresStore struct {
	db *sqlx.DB
}

// NewPostgresStore wraps an open database handle.
func NewPostgresStore(db *sqlx.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrUnavailable, op, err)
}

// EnsureItem implements Store.EnsureItem.
func (s *PostgresStore) EnsureItem(ctx context.Context, itemID string) (model.Item, error) {
	if _, err := s.db.ExecContext(ctx, ensureItemSQL, itemID); err != nil {
		return model.Item{}, unavailable("ensure item", err)
	}
	return s.Get(ctx, itemID)
}

// Engage implements Store.Engage.
func (s *PostgresStore) Engage(ctx context.Context, itemID, actorID string, eval EvalFunc) (model.Engagement, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return model.Engagement{}, unavailable("begin", err)
	}
	defer func() { _ = tx.Rollback() }()

	inserted, err := ledger.NewSQL(tx).TryInsert(ctx, itemID, actorID)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == pqForeignKeyViolation {
			return model.Engagement{}, ErrNotFound
		}
		return model.Engagement{}, unavailable("record click", err)
	}

	if !inserted {
		var it model.Item
		if err := tx.GetContext(ctx, &it, getItemSQL, itemID); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return model.Engagement{}, ErrNotFound
			}
			return model.Engagement{}, unavailable("read item", err)
		}
		return model.Engagement{Inserted: false, PrevLane: it.Lane, Item: it}, nil
	}

	var it model.Item
	if err := tx.GetContext(ctx, &it, incrementSQL, itemID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Engagement{}, ErrNotFound
		}
		return model.Engagement{}, unavailable("increment", err)
	}

	prev := it.Lane
	next := advance(eval, prev, it.ClickCount)
	if next != prev {
		if _, err := tx.ExecContext(ctx, setLaneSQL, itemID, string(next)); err != nil {
			return model.Engagement{}, unavailable("set lane", err)
		}
		it.Lane = next
	}

	if err := tx.Commit(); err != nil {
		return model.Engagement{}, unavailable("commit", err)
	}
	return model.Engagement{Inserted: true, PrevLane: prev, Item: it}, nil
}

// Get implements Store.Get.
func (s *PostgresStore) Get(ctx context.Context, itemID string) (model.Item, error) {
	var it model.Item
	if err := s.db.GetContext(ctx, &it, getItemSQL, itemID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Item{}, ErrNotFound
		}
		return model.Item{}, unavailable("get item", err)
	}
	return it, nil
}

// Rank implements Store.Rank with dense ranking by click count.
func (s *PostgresStore) Rank(ctx context.Context, itemID string) (types.Entry, error) {
	it, err := s.Get(ctx, itemID)
	if err != nil {
		return types.Entry{}, err
	}
	var rank int
	if err := s.db.GetContext(ctx, &rank, rankSQL, itemID); err != nil {
		return types.Entry{}, unavailable("rank", err)
	}
	return types.Entry{Rank: rank, ItemID: it.ID, Title: it.Title, Lane: it.Lane, ClickCount: it.ClickCount}, nil
}

// TopN implements Store.TopN.
func (s *PostgresStore) TopN(ctx context.Context, n int) ([]types.Entry, error) {
	if n < 1 {
		return nil, ErrInvalidLimit
	}
	rows := []struct {
		ItemID     string    `db:"item_id"`
		Title      string    `db:"title"`
		Lane       lane.Lane `db:"lane"`
		ClickCount int       `db:"click_count"`
	}{}
	if err := s.db.SelectContext(ctx, &rows, topNSQL, n); err != nil {
		return nil, unavailable("top n", err)
	}
	out := make([]types.Entry, len(rows))
	for i, r := range rows {
		out[i] = types.Entry{ItemID: r.ItemID, Title: r.Title, Lane: r.Lane, ClickCount: r.ClickCount}
	}
	assignRanksWithTies(out)
	return out, nil
}

// ListActive implements Store.ListActive.
func (s *PostgresStore) ListActive(ctx context.Context, visibleAt time.Time) ([]model.Item, error) {
	items := []model.Item{}
	if err := s.db.SelectContext(ctx, &items, listActiveSQL, visibleAt); err != nil {
		return nil, unavailable("list active", err)
	}
	return items, nil
}

// ActiveInLane implements Store.ActiveInLane.
func (s *PostgresStore) ActiveInLane(ctx context.Context, l lane.Lane, visibleAt time.Time) ([]model.Item, error) {
	items := []model.Item{}
	if err := s.db.SelectContext(ctx, &items, activeInLaneSQL, string(l), visibleAt); err != nil {
		return nil, unavailable("active in lane", err)
	}
	return items, nil
}

// Population implements Store.Population.
func (s *PostgresStore) Population(ctx context.Context) (model.Population, error) {
	rows := []struct {
		Lane lane.Lane `db:"lane"`
		N    int       `db:"n"`
	}{}
	if err := s.db.SelectContext(ctx, &rows, populationSQL); err != nil {
		return model.Population{}, unavailable("population", err)
	}
	var p model.Population
	for _, r := range rows {
		switch r.Lane {
		case lane.New:
			p.New = r.N
		case lane.Trending:
			p.Trending = r.N
		case lane.Graduated:
			p.Graduated = r.N
		}
	}
	return p, nil
}

// ActorClicks implements Store.ActorClicks.
func (s *PostgresStore) ActorClicks(ctx context.Context, actorID string) ([]string, error) {
	ids, err := ledger.NewSQL(s.db).ActorItems(ctx, actorID)
	if err != nil {
		return nil, unavailable("actor clicks", err)
	}
	return ids, nil
}

// UpsertCatalog implements Store.UpsertCatalog in one transaction.
func (s *PostgresStore) UpsertCatalog(ctx context.Context, batch []CatalogEntry, seenAt time.Time) (int, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, unavailable("begin", err)
	}
	defer func() { _ = tx.Rollback() }()

	inserted := 0
	for _, c := range batch {
		release := c.ReleaseAt
		if release.IsZero() {
			release = seenAt
		}
		var isNew bool
		err := tx.QueryRowxContext(ctx, upsertCatalogSQL,
			c.ID, c.Title, c.Employer, c.City, c.State, c.Country, c.ApplyLink, c.LogoURL,
			release, seenAt,
		).Scan(&isNew)
		if err != nil {
			return 0, unavailable("upsert "+c.ID, err)
		}
		if isNew {
			inserted++
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, unavailable("commit", err)
	}
	return inserted, nil
}

// DeactivateExcept implements Store.DeactivateExcept.
func (s *PostgresStore) DeactivateExcept(ctx context.Context, keep []string) (int, error) {
	if keep == nil {
		keep = []string{}
	}
	res, err := s.db.ExecContext(ctx, deactivateExceptSQL, pq.Array(keep))
	if err != nil {
		return 0, unavailable("deactivate", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, unavailable("deactivate rows affected", err)
	}
	return int(n), nil
}

// Count implements Store.Count. Failures count as zero.
func (s *PostgresStore) Count(ctx context.Context) int {
	var n int
	if err := s.db.GetContext(ctx, &n, countSQL); err != nil {
		return 0
	}
	return n
}

// Close closes the connection pool.
func (s *PostgresStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

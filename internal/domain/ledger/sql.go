package ledger

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

const (
	insertClickSQL = `
INSERT INTO clicks (item_id, actor_id, recorded_at)
VALUES ($1, $2, NOW())
ON CONFLICT (item_id, actor_id) DO NOTHING`

	actorItemsSQL = `SELECT item_id FROM clicks WHERE actor_id = $1 ORDER BY item_id`
)

// SQL is a Ledger over the clicks table. Pass a *sqlx.Tx to make the insert
// part of a larger unit of work.
type SQL struct {
	db sqlx.ExtContext
}

// NewSQL wraps a database handle or transaction.
func NewSQL(db sqlx.ExtContext) *SQL {
	return &SQL{db: db}
}

// TryInsert relies on the (item_id, actor_id) primary key to reject repeats.
func (l *SQL) TryInsert(ctx context.Context, itemID, actorID string) (bool, error) {
	res, err := l.db.ExecContext(ctx, insertClickSQL, itemID, actorID)
	if err != nil {
		return false, fmt.Errorf("insert click: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("insert click rows affected: %w", err)
	}
	return n == 1, nil
}

// ActorItems lists the items an actor clicked.
func (l *SQL) ActorItems(ctx context.Context, actorID string) ([]string, error) {
	ids := []string{}
	if err := sqlx.SelectContext(ctx, l.db, &ids, actorItemsSQL, actorID); err != nil {
		return nil, fmt.Errorf("actor clicks: %w", err)
	}
	return ids, nil
}

// Package waitlists persists interest in combinations that are minted out.
package waitlists

import (
	"context"
	"fmt"
	"time"

	"github.com/andrejs2008/evomint/internal/dbx"
)

// SQLiteRepository implements Repository over a dbx.DBTX. joined_at holds
// unix epoch milliseconds.
type SQLiteRepository struct {
	db dbx.DBTX
}

func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func (r *SQLiteRepository) Join(ctx context.Context, combination, requester string, joinedAt time.Time) (bool, error) {
	query := `INSERT INTO waitlist_entries (combination, requester, joined_at)
		VALUES (?, ?, ?)
		ON CONFLICT(combination, requester) DO NOTHING`
	res, err := r.db.ExecContext(ctx, query, combination, requester, joinedAt.UnixMilli())
	if err != nil {
		return false, fmt.Errorf("failed to join waitlist: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected error: %w", err)
	}
	return n == 1, nil
}

func (r *SQLiteRepository) Count(ctx context.Context, combination string) (int64, error) {
	query := `SELECT COUNT(*) FROM waitlist_entries WHERE combination = ?`
	var n int64
	if err := r.db.QueryRowContext(ctx, query, combination).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count waitlist: %w", err)
	}
	return n, nil
}

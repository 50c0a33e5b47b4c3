package waitlists

import (
	"context"
	"fmt"
	"time"

	"github.com/andrejs2008/evomint/internal/dbx"
)

// PostgresRepository implements Repository over a dbx.DBTX.
type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Join(ctx context.Context, combination, requester string, joinedAt time.Time) (bool, error) {
	query := `INSERT INTO waitlist_entries (combination, requester, joined_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (combination, requester) DO NOTHING`
	res, err := r.db.ExecContext(ctx, query, combination, requester, joinedAt)
	if err != nil {
		return false, fmt.Errorf("failed to join waitlist: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected error: %w", err)
	}
	return n == 1, nil
}

func (r *PostgresRepository) Count(ctx context.Context, combination string) (int64, error) {
	query := `SELECT COUNT(*) FROM waitlist_entries WHERE combination = $1`
	var n int64
	if err := r.db.QueryRowContext(ctx, query, combination).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count waitlist: %w", err)
	}
	return n, nil
}

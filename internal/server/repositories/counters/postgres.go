package counters

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/andrejs2008/evomint/internal/common"
	"github.com/andrejs2008/evomint/internal/dbx"
	"github.com/andrejs2008/evomint/internal/server/models"
)

// PostgresRepository implements Repository over a dbx.DBTX.
type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Get(ctx context.Context, combination string) (*models.QuotaCounter, error) {
	query := `SELECT combination, minted_count, total_limit FROM quota_counters WHERE combination = $1`
	c := &models.QuotaCounter{}
	err := r.db.QueryRowContext(ctx, query, combination).Scan(&c.Combination, &c.MintedCount, &c.TotalLimit)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrorNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to select counter: %w", err)
	}
	return c, nil
}

func (r *PostgresRepository) List(ctx context.Context) ([]*models.QuotaCounter, error) {
	query := `SELECT combination, minted_count, total_limit FROM quota_counters ORDER BY combination`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to select counters: %w", err)
	}
	defer rows.Close()

	var result []*models.QuotaCounter
	for rows.Next() {
		c := &models.QuotaCounter{}
		if err := rows.Scan(&c.Combination, &c.MintedCount, &c.TotalLimit); err != nil {
			return nil, err
		}
		result = append(result, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *PostgresRepository) SeedLimit(ctx context.Context, combination string, limit int64) error {
	query := `INSERT INTO quota_counters (combination, minted_count, total_limit)
		VALUES ($1, 0, $2)
		ON CONFLICT (combination) DO UPDATE SET total_limit = EXCLUDED.total_limit
		WHERE EXCLUDED.total_limit > quota_counters.total_limit`
	_, err := r.db.ExecContext(ctx, query, combination, limit)
	if err != nil {
		return fmt.Errorf("failed to seed limit: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Increment(ctx context.Context, combination string, fallbackLimit int64) error {
	query := `INSERT INTO quota_counters (combination, minted_count, total_limit)
		VALUES ($1, 1, $2)
		ON CONFLICT (combination) DO UPDATE SET minted_count = quota_counters.minted_count + 1`
	_, err := r.db.ExecContext(ctx, query, combination, fallbackLimit)
	if err != nil {
		return fmt.Errorf("failed to increment counter: %w", err)
	}
	return nil
}

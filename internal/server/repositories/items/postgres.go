package items

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/andrejs2008/evomint/internal/common"
	"github.com/andrejs2008/evomint/internal/dbx"
	"github.com/andrejs2008/evomint/internal/server/models"
)

// PostgresRepository implements Repository over a dbx.DBTX (*sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Save(ctx context.Context, item *models.Item) error {
	traitsDoc, scarcityDoc, historyDoc, uniqueDoc, err := marshalDocs(item)
	if err != nil {
		return err
	}
	query := `INSERT INTO items (` + itemColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21)
		ON CONFLICT (id)
		DO UPDATE SET
			owner = EXCLUDED.owner,
			creator = EXCLUDED.creator,
			category = EXCLUDED.category,
			mode = EXCLUDED.mode,
			prompt = EXCLUDED.prompt,
			name = EXCLUDED.name,
			description = EXCLUDED.description,
			image_ref = EXCLUDED.image_ref,
			traits = EXCLUDED.traits,
			scarcity = EXCLUDED.scarcity,
			history = EXCLUDED.history,
			uniqueness = EXCLUDED.uniqueness,
			version = EXCLUDED.version,
			updated_at = EXCLUDED.updated_at,
			last_evolution_at = EXCLUDED.last_evolution_at,
			evolution_period_days = EXCLUDED.evolution_period_days,
			ledger_id = EXCLUDED.ledger_id,
			ledger_status = EXCLUDED.ledger_status,
			ledger_attempts = EXCLUDED.ledger_attempts
	`
	_, err = r.db.ExecContext(ctx, query,
		item.ID, item.Owner, item.Creator, item.Category, item.Mode, item.Prompt, item.Name, item.Description,
		item.ImageRef, traitsDoc, scarcityDoc, historyDoc, uniqueDoc, item.Version,
		item.CreatedAt, item.UpdatedAt, item.LastEvolutionAt, item.EvolutionPeriodDays,
		nullIfEmpty(item.LedgerID), string(item.LedgerStatus), item.LedgerAttempts,
	)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*models.Item, error) {
	query := `SELECT ` + itemColumns + ` FROM items WHERE id = $1`
	item, err := r.scanItem(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrorNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to select item: %w", err)
	}
	return item, nil
}

func (r *PostgresRepository) List(ctx context.Context, owner string) ([]*models.Item, error) {
	query := `SELECT ` + itemColumns + ` FROM items ORDER BY created_at DESC`
	var args []any
	if owner != "" {
		query = `SELECT ` + itemColumns + ` FROM items WHERE owner = $1 ORDER BY created_at DESC`
		args = append(args, owner)
	}
	return r.selectItems(ctx, query, args...)
}

func (r *PostgresRepository) AppendEvolution(ctx context.Context, item *models.Item) error {
	traitsDoc, _, historyDoc, _, err := marshalDocs(item)
	if err != nil {
		return err
	}
	query := `UPDATE items SET
			traits = $1, image_ref = $2, history = $3, version = $4,
			updated_at = $5, last_evolution_at = $6
		WHERE id = $7 AND version = $8`
	res, err := r.db.ExecContext(ctx, query,
		traitsDoc, item.ImageRef, historyDoc, item.Version,
		item.UpdatedAt, item.LastEvolutionAt,
		item.ID, item.Version-1,
	)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	if n == 1 {
		return nil
	}
	var one int
	err = r.db.QueryRowContext(ctx, `SELECT 1 FROM items WHERE id = $1`, item.ID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return common.ErrorNotFound
	}
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return common.ErrVersionConflict
}

func (r *PostgresRepository) UpdateLedgerStatus(ctx context.Context, id string, ledgerID string, status models.LedgerStatus, updatedAt time.Time) error {
	query := `UPDATE items SET
			ledger_id = CASE WHEN $1 <> '' THEN $1 ELSE ledger_id END,
			ledger_status = $2,
			ledger_attempts = CASE WHEN $3 THEN 0 ELSE ledger_attempts END,
			updated_at = $4
		WHERE id = $5`
	res, err := r.db.ExecContext(ctx, query,
		ledgerID, string(status), status == models.StatusMinted, updatedAt, id)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	if n == 0 {
		return common.ErrorNotFound
	}
	return nil
}

func (r *PostgresRepository) IncrementLedgerAttempts(ctx context.Context, id string) (int64, error) {
	query := `UPDATE items SET ledger_attempts = ledger_attempts + 1 WHERE id = $1 RETURNING ledger_attempts`
	var attempts int64
	err := r.db.QueryRowContext(ctx, query, id).Scan(&attempts)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, common.ErrorNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return attempts, nil
}

func (r *PostgresRepository) DueForEvolution(ctx context.Context, now time.Time, limit int) ([]*models.Item, error) {
	query := `SELECT ` + itemColumns + ` FROM items
		WHERE last_evolution_at + make_interval(days => evolution_period_days::int) <= $1
		ORDER BY last_evolution_at
		LIMIT $2`
	return r.selectItems(ctx, query, now, limit)
}

func (r *PostgresRepository) ByLedgerStatus(ctx context.Context, statuses []models.LedgerStatus, limit int) ([]*models.Item, error) {
	if len(statuses) == 0 {
		return nil, nil
	}
	placeholders := make([]string, len(statuses))
	args := make([]any, 0, len(statuses)+1)
	for i, s := range statuses {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args = append(args, string(s))
	}
	args = append(args, limit)
	query := `SELECT ` + itemColumns + ` FROM items
		WHERE ledger_status IN (` + strings.Join(placeholders, ", ") + `)
		ORDER BY updated_at
		LIMIT $` + fmt.Sprint(len(statuses)+1)
	return r.selectItems(ctx, query, args...)
}

func (r *PostgresRepository) selectItems(ctx context.Context, query string, args ...any) ([]*models.Item, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to select items: %w", err)
	}
	defer rows.Close()

	var result []*models.Item
	for rows.Next() {
		item, err := r.scanItem(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *PostgresRepository) scanItem(row rowScanner) (*models.Item, error) {
	var item models.Item
	var traitsDoc, scarcityDoc, historyDoc, uniqueDoc []byte
	var ledgerID sql.NullString
	var status string
	if err := row.Scan(
		&item.ID, &item.Owner, &item.Creator, &item.Category, &item.Mode, &item.Prompt, &item.Name, &item.Description,
		&item.ImageRef, &traitsDoc, &scarcityDoc, &historyDoc, &uniqueDoc, &item.Version,
		&item.CreatedAt, &item.UpdatedAt, &item.LastEvolutionAt, &item.EvolutionPeriodDays,
		&ledgerID, &status, &item.LedgerAttempts,
	); err != nil {
		return nil, err
	}
	if err := unmarshalDocs(&item, traitsDoc, scarcityDoc, historyDoc, uniqueDoc); err != nil {
		return nil, err
	}
	item.LedgerID = ledgerID.String
	item.LedgerStatus = models.LedgerStatus(status)
	return &item, nil
}

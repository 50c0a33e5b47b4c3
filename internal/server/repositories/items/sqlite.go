// Package items provides SQL-backed repositories for collectible rows,
// including version-guarded evolution commits and ledger bookkeeping.
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

// SQLiteRepository implements Repository over a dbx.DBTX (*sql.DB or *sql.Tx).
// Timestamp columns hold unix epoch milliseconds.
type SQLiteRepository struct {
	db dbx.DBTX
}

// NewSQLiteRepository returns a repository bound to the given DBTX.
func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func (r *SQLiteRepository) Save(ctx context.Context, item *models.Item) error {
	traitsDoc, scarcityDoc, historyDoc, uniqueDoc, err := marshalDocs(item)
	if err != nil {
		return err
	}
	query := `INSERT INTO items (` + itemColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			owner = excluded.owner,
			creator = excluded.creator,
			category = excluded.category,
			mode = excluded.mode,
			prompt = excluded.prompt,
			name = excluded.name,
			description = excluded.description,
			image_ref = excluded.image_ref,
			traits = excluded.traits,
			scarcity = excluded.scarcity,
			history = excluded.history,
			uniqueness = excluded.uniqueness,
			version = excluded.version,
			updated_at = excluded.updated_at,
			last_evolution_at = excluded.last_evolution_at,
			evolution_period_days = excluded.evolution_period_days,
			ledger_id = excluded.ledger_id,
			ledger_status = excluded.ledger_status,
			ledger_attempts = excluded.ledger_attempts
	`
	_, err = r.db.ExecContext(ctx, query,
		item.ID, item.Owner, item.Creator, item.Category, item.Mode, item.Prompt, item.Name, item.Description,
		item.ImageRef, traitsDoc, scarcityDoc, historyDoc, uniqueDoc, item.Version,
		item.CreatedAt.UnixMilli(), item.UpdatedAt.UnixMilli(), item.LastEvolutionAt.UnixMilli(), item.EvolutionPeriodDays,
		nullIfEmpty(item.LedgerID), string(item.LedgerStatus), item.LedgerAttempts,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert item: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) GetByID(ctx context.Context, id string) (*models.Item, error) {
	query := `SELECT ` + itemColumns + ` FROM items WHERE id = ?`
	item, err := r.scanItem(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrorNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to select item: %w", err)
	}
	return item, nil
}

func (r *SQLiteRepository) List(ctx context.Context, owner string) ([]*models.Item, error) {
	query := `SELECT ` + itemColumns + ` FROM items ORDER BY created_at DESC`
	var args []any
	if owner != "" {
		query = `SELECT ` + itemColumns + ` FROM items WHERE owner = ? ORDER BY created_at DESC`
		args = append(args, owner)
	}
	return r.selectItems(ctx, query, args...)
}

func (r *SQLiteRepository) AppendEvolution(ctx context.Context, item *models.Item) error {
	traitsDoc, _, historyDoc, _, err := marshalDocs(item)
	if err != nil {
		return err
	}
	query := `UPDATE items SET
			traits = ?, image_ref = ?, history = ?, version = ?,
			updated_at = ?, last_evolution_at = ?
		WHERE id = ? AND version = ?`
	res, err := r.db.ExecContext(ctx, query,
		traitsDoc, item.ImageRef, historyDoc, item.Version,
		item.UpdatedAt.UnixMilli(), item.LastEvolutionAt.UnixMilli(),
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
	err = r.db.QueryRowContext(ctx, `SELECT 1 FROM items WHERE id = ?`, item.ID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return common.ErrorNotFound
	}
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return common.ErrVersionConflict
}

func (r *SQLiteRepository) UpdateLedgerStatus(ctx context.Context, id string, ledgerID string, status models.LedgerStatus, updatedAt time.Time) error {
	query := `UPDATE items SET
			ledger_id = CASE WHEN ? <> '' THEN ? ELSE ledger_id END,
			ledger_status = ?,
			ledger_attempts = CASE WHEN ? THEN 0 ELSE ledger_attempts END,
			updated_at = ?
		WHERE id = ?`
	res, err := r.db.ExecContext(ctx, query,
		ledgerID, ledgerID, string(status), status == models.StatusMinted, updatedAt.UnixMilli(), id)
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

func (r *SQLiteRepository) IncrementLedgerAttempts(ctx context.Context, id string) (int64, error) {
	res, err := r.db.ExecContext(ctx, `UPDATE items SET ledger_attempts = ledger_attempts + 1 WHERE id = ?`, id)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected error: %w", err)
	}
	if n == 0 {
		return 0, common.ErrorNotFound
	}
	var attempts int64
	if err := r.db.QueryRowContext(ctx, `SELECT ledger_attempts FROM items WHERE id = ?`, id).Scan(&attempts); err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return attempts, nil
}

func (r *SQLiteRepository) DueForEvolution(ctx context.Context, now time.Time, limit int) ([]*models.Item, error) {
	query := `SELECT ` + itemColumns + ` FROM items
		WHERE last_evolution_at + evolution_period_days * 86400000 <= ?
		ORDER BY last_evolution_at
		LIMIT ?`
	return r.selectItems(ctx, query, now.UnixMilli(), limit)
}

func (r *SQLiteRepository) ByLedgerStatus(ctx context.Context, statuses []models.LedgerStatus, limit int) ([]*models.Item, error) {
	if len(statuses) == 0 {
		return nil, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(statuses)), ", ")
	query := `SELECT ` + itemColumns + ` FROM items
		WHERE ledger_status IN (` + placeholders + `)
		ORDER BY updated_at
		LIMIT ?`
	args := make([]any, 0, len(statuses)+1)
	for _, s := range statuses {
		args = append(args, string(s))
	}
	args = append(args, limit)
	return r.selectItems(ctx, query, args...)
}

func (r *SQLiteRepository) selectItems(ctx context.Context, query string, args ...any) ([]*models.Item, error) {
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

type rowScanner interface {
	Scan(dest ...any) error
}

func (r *SQLiteRepository) scanItem(row rowScanner) (*models.Item, error) {
	var item models.Item
	var traitsDoc, scarcityDoc, historyDoc, uniqueDoc []byte
	var createdAt, updatedAt, lastEvo int64
	var ledgerID sql.NullString
	var status string
	if err := row.Scan(
		&item.ID, &item.Owner, &item.Creator, &item.Category, &item.Mode, &item.Prompt, &item.Name, &item.Description,
		&item.ImageRef, &traitsDoc, &scarcityDoc, &historyDoc, &uniqueDoc, &item.Version,
		&createdAt, &updatedAt, &lastEvo, &item.EvolutionPeriodDays,
		&ledgerID, &status, &item.LedgerAttempts,
	); err != nil {
		return nil, err
	}
	if err := unmarshalDocs(&item, traitsDoc, scarcityDoc, historyDoc, uniqueDoc); err != nil {
		return nil, err
	}
	item.CreatedAt = time.UnixMilli(createdAt).UTC()
	item.UpdatedAt = time.UnixMilli(updatedAt).UTC()
	item.LastEvolutionAt = time.UnixMilli(lastEvo).UTC()
	item.LedgerID = ledgerID.String
	item.LedgerStatus = models.LedgerStatus(status)
	return &item, nil
}

func nullIfEmpty(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

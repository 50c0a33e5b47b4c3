package items

import (
	"context"
	"time"

	"github.com/andrejs2008/evomint/internal/server/models"
)

// itemColumns is the canonical select/insert list shared by both dialects.
const itemColumns = "id, owner, creator, category, mode, prompt, name, description, " +
	"image_ref, traits, scarcity, history, uniqueness, version, " +
	"created_at, updated_at, last_evolution_at, evolution_period_days, " +
	"ledger_id, ledger_status, ledger_attempts"

type Repository interface {
	// Save upserts the full item row by ID.
	Save(ctx context.Context, item *models.Item) error
	// GetByID returns one item or common.ErrorNotFound.
	GetByID(ctx context.Context, id string) (*models.Item, error)
	// List returns items newest first, filtered by owner when owner is
	// non-empty.
	List(ctx context.Context, owner string) ([]*models.Item, error)
	// AppendEvolution commits a new version guarded by the previous one.
	// Returns common.ErrVersionConflict if another writer got there first,
	// common.ErrorNotFound if the item does not exist.
	AppendEvolution(ctx context.Context, item *models.Item) error
	// UpdateLedgerStatus records the outcome of a remote ledger attempt
	// and bumps updated_at. A non-empty ledgerID overwrites the stored
	// one; reaching models.StatusMinted resets the attempt counter.
	// Version, traits and history are left alone.
	UpdateLedgerStatus(ctx context.Context, id string, ledgerID string, status models.LedgerStatus, updatedAt time.Time) error
	// IncrementLedgerAttempts bumps the retry counter and returns the new
	// value.
	IncrementLedgerAttempts(ctx context.Context, id string) (int64, error)
	// DueForEvolution returns up to limit items whose evolution interval
	// has elapsed at now, oldest first.
	DueForEvolution(ctx context.Context, now time.Time, limit int) ([]*models.Item, error)
	// ByLedgerStatus returns up to limit items in any of the given
	// statuses, least recently touched first.
	ByLedgerStatus(ctx context.Context, statuses []models.LedgerStatus, limit int) ([]*models.Item, error)
}

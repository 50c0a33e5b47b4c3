package counters

import (
	"context"

	"github.com/andrejs2008/evomint/internal/server/models"
)

type Repository interface {
	// Get returns the counter for a combination or common.ErrorNotFound.
	Get(ctx context.Context, combination string) (*models.QuotaCounter, error)
	// List returns all counters ordered by combination.
	List(ctx context.Context) ([]*models.QuotaCounter, error)
	// SeedLimit inserts the combination with the given limit, or raises
	// the stored limit. It never lowers a limit and never touches
	// minted_count.
	SeedLimit(ctx context.Context, combination string, limit int64) error
	// Increment bumps minted_count by one, creating the row with
	// fallbackLimit if the combination was never seeded. It does not
	// check availability; that is the caller's job.
	Increment(ctx context.Context, combination string, fallbackLimit int64) error
}

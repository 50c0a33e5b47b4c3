package credentials

import (
	"context"

	"github.com/andrejs2008/evomint/internal/server/models"
)

type Repository interface {
	// Get returns the stored credential or common.ErrorNotFound.
	Get(ctx context.Context, owner, platform string) (*models.Credential, error)
	// Save upserts a credential on (owner, platform).
	Save(ctx context.Context, cred *models.Credential) error
}

package credentials

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

func (r *PostgresRepository) Get(ctx context.Context, owner, platform string) (*models.Credential, error) {
	query := `SELECT owner, platform, external_user_id, handle, token_blob, token_nonce, updated_at
		FROM credentials WHERE owner = $1 AND platform = $2`
	c := &models.Credential{}
	err := r.db.QueryRowContext(ctx, query, owner, platform).Scan(
		&c.Owner, &c.Platform, &c.ExternalUserID, &c.Handle, &c.TokenBlob, &c.TokenNonce, &c.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrorNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to select credential: %w", err)
	}
	return c, nil
}

func (r *PostgresRepository) Save(ctx context.Context, cred *models.Credential) error {
	query := `INSERT INTO credentials (owner, platform, external_user_id, handle, token_blob, token_nonce, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (owner, platform) DO UPDATE SET
			external_user_id = EXCLUDED.external_user_id,
			handle = EXCLUDED.handle,
			token_blob = EXCLUDED.token_blob,
			token_nonce = EXCLUDED.token_nonce,
			updated_at = EXCLUDED.updated_at`
	_, err := r.db.ExecContext(ctx, query,
		cred.Owner, cred.Platform, cred.ExternalUserID, cred.Handle,
		cred.TokenBlob, cred.TokenNonce, cred.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert credential: %w", err)
	}
	return nil
}

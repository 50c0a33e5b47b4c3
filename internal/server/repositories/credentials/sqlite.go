// Package credentials persists encrypted social platform bindings. Token
// material is stored as AES-GCM ciphertext and never leaves the row in
// plaintext.
package credentials

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/andrejs2008/evomint/internal/common"
	"github.com/andrejs2008/evomint/internal/dbx"
	"github.com/andrejs2008/evomint/internal/server/models"
)

// SQLiteRepository implements Repository over a dbx.DBTX. updated_at holds
// unix epoch milliseconds.
type SQLiteRepository struct {
	db dbx.DBTX
}

func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func (r *SQLiteRepository) Get(ctx context.Context, owner, platform string) (*models.Credential, error) {
	query := `SELECT owner, platform, external_user_id, handle, token_blob, token_nonce, updated_at
		FROM credentials WHERE owner = ? AND platform = ?`
	c := &models.Credential{}
	var updatedAt int64
	err := r.db.QueryRowContext(ctx, query, owner, platform).Scan(
		&c.Owner, &c.Platform, &c.ExternalUserID, &c.Handle, &c.TokenBlob, &c.TokenNonce, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrorNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to select credential: %w", err)
	}
	c.UpdatedAt = time.UnixMilli(updatedAt).UTC()
	return c, nil
}

func (r *SQLiteRepository) Save(ctx context.Context, cred *models.Credential) error {
	query := `INSERT INTO credentials (owner, platform, external_user_id, handle, token_blob, token_nonce, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(owner, platform) DO UPDATE SET
			external_user_id = excluded.external_user_id,
			handle = excluded.handle,
			token_blob = excluded.token_blob,
			token_nonce = excluded.token_nonce,
			updated_at = excluded.updated_at`
	_, err := r.db.ExecContext(ctx, query,
		cred.Owner, cred.Platform, cred.ExternalUserID, cred.Handle,
		cred.TokenBlob, cred.TokenNonce, cred.UpdatedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to upsert credential: %w", err)
	}
	return nil
}

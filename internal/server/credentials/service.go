// Package credentials is the encryption boundary for platform tokens.
// Below it only sealed blobs exist; above it plaintext tokens are handed
// out transiently for a single outbound call.
package credentials

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/andrejs2008/evomint/internal/common"
	"github.com/andrejs2008/evomint/internal/cryptox"
	"github.com/andrejs2008/evomint/internal/logging"
	"github.com/andrejs2008/evomint/internal/server/models"
	"github.com/andrejs2008/evomint/internal/server/repositories/repomanager"
)

type Service struct {
	db     *sql.DB
	repos  repomanager.RepositoryManager
	key    []byte
	logger logging.Logger
}

// NewService derives the sealing key once; the salt must stay stable across
// restarts or stored blobs become undecryptable.
func NewService(db *sql.DB, repos repomanager.RepositoryManager, secret, salt string, logger logging.Logger) *Service {
	return &Service{
		db:     db,
		repos:  repos,
		key:    cryptox.DeriveMasterKey([]byte(secret), []byte(salt)),
		logger: logger,
	}
}

// Save seals the token pair and upserts the credential row.
func (s *Service) Save(ctx context.Context, owner, platform, externalUserID, handle string, tokens models.TokenPair) error {
	if owner == "" || platform == "" {
		return fmt.Errorf("%w: owner and platform are required", common.ErrValidation)
	}
	if tokens.AccessToken == "" {
		return fmt.Errorf("%w: access token is required", common.ErrValidation)
	}

	blob, nonce, err := cryptox.EncryptEntry(tokens, s.key)
	if err != nil {
		return fmt.Errorf("failed to seal tokens: %w", err)
	}

	cred := &models.Credential{
		Owner:          owner,
		Platform:       platform,
		ExternalUserID: externalUserID,
		Handle:         handle,
		TokenBlob:      blob,
		TokenNonce:     nonce,
		UpdatedAt:      time.Now().UTC(),
	}

	if err := s.repos.Credentials(s.db).Save(ctx, cred); err != nil {
		return err
	}

	s.logger.Info(ctx, "credential stored", "owner", owner, "platform", platform, "handle", handle)
	return nil
}

// Get returns the credential row together with its decrypted token pair.
// The caller must not retain the plaintext beyond the call it serves.
func (s *Service) Get(ctx context.Context, owner, platform string) (*models.Credential, *models.TokenPair, error) {
	cred, err := s.repos.Credentials(s.db).Get(ctx, owner, platform)
	if err != nil {
		return nil, nil, err
	}

	var tokens models.TokenPair
	if err := cryptox.DecryptEntry(cred.TokenBlob, cred.TokenNonce, s.key, &tokens); err != nil {
		return nil, nil, fmt.Errorf("failed to open token blob: %w", err)
	}
	return cred, &tokens, nil
}

package admission

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/andrejs2008/evomint/internal/common"
	"github.com/andrejs2008/evomint/internal/dbx"
	"github.com/andrejs2008/evomint/internal/server/models"
)

type seedEntry struct {
	Creator  string `yaml:"creator"`
	Category string `yaml:"category"`
	Limit    int64  `yaml:"limit"`
}

// SeedFromFile loads a YAML list of {creator, category, limit} entries and
// applies them in one transaction. Seeding only ever raises limits, so
// re-running with an old file is harmless.
func (s *Service) SeedFromFile(ctx context.Context, path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read quota seed: %w", err)
	}

	var entries []seedEntry
	if err := yaml.Unmarshal(raw, &entries); err != nil {
		return fmt.Errorf("failed to parse quota seed: %w", err)
	}
	for i, e := range entries {
		if e.Creator == "" || e.Category == "" {
			return fmt.Errorf("%w: quota seed entry %d: creator and category are required", common.ErrValidation, i)
		}
		if e.Limit <= 0 {
			return fmt.Errorf("%w: quota seed entry %d: limit must be positive", common.ErrValidation, i)
		}
	}

	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repos.Counters(tx)
		for _, e := range entries {
			if err := repo.SeedLimit(ctx, models.CombinationKey(e.Creator, e.Category), e.Limit); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to apply quota seed: %w", err)
	}

	s.logger.Info(ctx, "quota seed applied", "path", path, "combinations", len(entries))
	return nil
}

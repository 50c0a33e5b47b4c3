// Package admission gates item creation behind per-combination scarcity
// quotas and keeps waitlists for combinations that are minted out.
package admission

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"time"

	"github.com/andrejs2008/evomint/internal/common"
	"github.com/andrejs2008/evomint/internal/logging"
	"github.com/andrejs2008/evomint/internal/server/models"
	"github.com/andrejs2008/evomint/internal/server/repositories/repomanager"
)

// CombinationStatus is the read-only availability snapshot served to
// clients.
type CombinationStatus struct {
	Combination string `json:"combination"`
	Available   bool   `json:"available"`
	Minted      int64  `json:"minted"`
	Limit       int64  `json:"limit"`
	Waitlisted  int64  `json:"waitlisted"`
}

// Service owns all quota counter mutation. RecordMint is the only writer
// of minted counts and serializes behind the service mutex; quota checks
// stay cheap reads. Expected combination cardinality is low, so one lock
// covers all combinations.
type Service struct {
	db            *sql.DB
	repos         repomanager.RepositoryManager
	fallbackLimit int64
	logger        logging.Logger

	mu sync.Mutex
}

func NewService(db *sql.DB, repos repomanager.RepositoryManager, fallbackLimit int64, logger logging.Logger) *Service {
	return &Service{
		db:            db,
		repos:         repos,
		fallbackLimit: fallbackLimit,
		logger:        logger,
	}
}

// counter reads the stored counter or synthesizes an unseeded one at the
// fallback limit.
func (s *Service) counter(ctx context.Context, combination string) (*models.QuotaCounter, error) {
	c, err := s.repos.Counters(s.db).Get(ctx, combination)
	if errors.Is(err, common.ErrorNotFound) {
		return &models.QuotaCounter{Combination: combination, MintedCount: 0, TotalLimit: s.fallbackLimit}, nil
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}

// IsAvailable reports whether the combination can still admit a mint.
func (s *Service) IsAvailable(ctx context.Context, creator, category string) (bool, error) {
	c, err := s.counter(ctx, models.CombinationKey(creator, category))
	if err != nil {
		return false, err
	}
	return c.Available(), nil
}

// Status returns the availability snapshot including the waitlist size.
func (s *Service) Status(ctx context.Context, creator, category string) (*CombinationStatus, error) {
	combination := models.CombinationKey(creator, category)
	c, err := s.counter(ctx, combination)
	if err != nil {
		return nil, err
	}
	waiting, err := s.repos.Waitlists(s.db).Count(ctx, combination)
	if err != nil {
		return nil, err
	}
	return &CombinationStatus{
		Combination: combination,
		Available:   c.Available(),
		Minted:      c.MintedCount,
		Limit:       c.TotalLimit,
		Waitlisted:  waiting,
	}, nil
}

// RecordMint consumes one slot of the combination's quota and returns the
// post-increment counter. It is a trusted post-admission step: callers
// check IsAvailable first, RecordMint itself never rejects.
func (s *Service) RecordMint(ctx context.Context, creator, category string) (*models.QuotaCounter, error) {
	combination := models.CombinationKey(creator, category)

	s.mu.Lock()
	defer s.mu.Unlock()

	repo := s.repos.Counters(s.db)
	if err := repo.Increment(ctx, combination, s.fallbackLimit); err != nil {
		return nil, err
	}
	c, err := repo.Get(ctx, combination)
	if err != nil {
		return nil, err
	}
	s.logger.Debug(ctx, "mint recorded", "combination", combination, "minted", c.MintedCount, "limit", c.TotalLimit)
	return c, nil
}

// ListCounters returns every known combination counter, ordered by
// combination.
func (s *Service) ListCounters(ctx context.Context) ([]*models.QuotaCounter, error) {
	return s.repos.Counters(s.db).List(ctx)
}

// JoinWaitlist registers interest in a combination. It reports whether the
// requester was newly added; repeat joins are not an error.
func (s *Service) JoinWaitlist(ctx context.Context, creator, category, requester string) (bool, error) {
	combination := models.CombinationKey(creator, category)
	joined, err := s.repos.Waitlists(s.db).Join(ctx, combination, requester, time.Now().UTC())
	if err != nil {
		return false, err
	}
	if joined {
		s.logger.Info(ctx, "waitlist join", "combination", combination, "requester", requester)
	}
	return joined, nil
}

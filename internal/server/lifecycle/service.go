// Package lifecycle orchestrates the dual-store life of an item: local
// commits are authoritative and always land first, the remote ledger is
// best effort, and sweeps repair the gap afterwards.
package lifecycle

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/andrejs2008/evomint/internal/common"
	"github.com/andrejs2008/evomint/internal/logging"
	"github.com/andrejs2008/evomint/internal/server/admission"
	"github.com/andrejs2008/evomint/internal/server/images"
	"github.com/andrejs2008/evomint/internal/server/ledger"
	"github.com/andrejs2008/evomint/internal/server/metrics"
	"github.com/andrejs2008/evomint/internal/server/models"
	"github.com/andrejs2008/evomint/internal/server/repositories/repomanager"
	"github.com/andrejs2008/evomint/internal/server/social"
	"github.com/andrejs2008/evomint/internal/syncx"
	"github.com/andrejs2008/evomint/internal/traits"
)

// Config carries the reconciler's tunables.
type Config struct {
	// DefaultEvolutionPeriodDays applies when a create request leaves the
	// interval unset.
	DefaultEvolutionPeriodDays int64
	// MaxLedgerAttempts dead-letters an item to abandoned once its retry
	// counter reaches this value.
	MaxLedgerAttempts int64
	// SweepBatchSize bounds how many items one sweep pass loads.
	SweepBatchSize int
}

const (
	defaultEvolutionPeriodDays = 7
	defaultMaxLedgerAttempts   = 5
	defaultSweepBatchSize      = 100
)

func (c Config) withDefaults() Config {
	if c.DefaultEvolutionPeriodDays <= 0 {
		c.DefaultEvolutionPeriodDays = defaultEvolutionPeriodDays
	}
	if c.MaxLedgerAttempts <= 0 {
		c.MaxLedgerAttempts = defaultMaxLedgerAttempts
	}
	if c.SweepBatchSize <= 0 {
		c.SweepBatchSize = defaultSweepBatchSize
	}
	return c
}

// Deps are the reconciler's collaborators. Ledger nil disables the remote
// leg entirely (items stay in status disabled); Signals nil makes every
// evolution fall back to drift; Events nil drops events.
type Deps struct {
	DB        *sql.DB
	Repos     repomanager.RepositoryManager
	Engine    *traits.Engine
	Admission *admission.Service
	Images    *images.Service
	Ledger    ledger.Client
	Signals   social.Source
	Events    EventPublisher
	Logger    logging.Logger
}

// Service is the reconciler: the only writer of items, and the only
// component that translates remote outcomes into ledger statuses.
type Service struct {
	db     *sql.DB
	repos  repomanager.RepositoryManager
	engine *traits.Engine
	adm    *admission.Service
	images *images.Service
	ledger ledger.Client
	signal social.Source
	events EventPublisher
	logger logging.Logger
	cfg    Config

	itemLocks *syncx.KeyedMutex

	retrySweepActive  atomic.Bool
	evolveSweepActive atomic.Bool
	diffSweepActive   atomic.Bool
}

func NewService(deps Deps, cfg Config) *Service {
	events := deps.Events
	if events == nil {
		events = NopPublisher{}
	}
	return &Service{
		db:        deps.DB,
		repos:     deps.Repos,
		engine:    deps.Engine,
		adm:       deps.Admission,
		images:    deps.Images,
		ledger:    deps.Ledger,
		signal:    deps.Signals,
		events:    events,
		logger:    deps.Logger,
		cfg:       cfg.withDefaults(),
		itemLocks: syncx.NewKeyedMutex(),
	}
}

// CreateRequest is a validated item creation order.
type CreateRequest struct {
	Owner       string
	Creator     string
	Category    string
	Mode        string
	Prompt      string
	Name        string
	Description string

	Unique              traits.UniquenessInputs
	EvolutionPeriodDays int64
}

// RemoteOutcome summarizes the best-effort ledger leg of an operation.
type RemoteOutcome struct {
	Attempted bool                `json:"attempted"`
	Status    models.LedgerStatus `json:"status"`
	LedgerID  string              `json:"ledger_id,omitempty"`
	Error     string              `json:"error,omitempty"`
}

// Dual-storage outcomes: complete (both stores agree), partial (local
// committed, remote leg failed), local_only (remote integration off).
const (
	StorageComplete  = "complete"
	StoragePartial   = "partial"
	StorageLocalOnly = "local_only"
)

// CreateResult is the caller-visible outcome: the local item always, plus
// what happened remotely.
type CreateResult struct {
	Item              *models.Item  `json:"item"`
	Remote            RemoteOutcome `json:"remote"`
	DualStorageStatus string        `json:"dual_storage_status"`
}

func (r CreateRequest) validate() error {
	switch {
	case r.Owner == "":
		return fmt.Errorf("%w: owner is required", common.ErrValidation)
	case r.Creator == "":
		return fmt.Errorf("%w: creator is required", common.ErrValidation)
	case !slices.Contains(models.Categories, r.Category):
		return fmt.Errorf("%w: unknown category %q", common.ErrValidation, r.Category)
	}

	if r.Mode != models.ModeSelection && r.Mode != models.ModePrompt {
		return fmt.Errorf("%w: unknown generation mode %q", common.ErrValidation, r.Mode)
	}
	if r.Mode == models.ModePrompt && r.Prompt == "" {
		return fmt.Errorf("%w: prompt mode requires a prompt", common.ErrValidation)
	}

	u := r.Unique
	if u.LocationHash == "" || u.TimestampSeed == "" || u.WalletEntropy == "" {
		return fmt.Errorf("%w: location hash, timestamp seed and wallet entropy are required", common.ErrValidation)
	}
	return nil
}

// CreateItem runs the full mint pipeline. The local commit (scarcity
// consumption + item row) always completes before any remote call; the
// remote mint is best effort and its failure is recorded, not raised.
func (s *Service) CreateItem(ctx context.Context, req CreateRequest) (*CreateResult, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}

	available, err := s.adm.IsAvailable(ctx, req.Creator, req.Category)
	if err != nil {
		return nil, err
	}
	if !available {
		return nil, fmt.Errorf("%w: %s", common.ErrCapacityExhausted, models.CombinationKey(req.Creator, req.Category))
	}

	tv := s.engine.GenerateInitial(req.Unique)
	seed := s.engine.ImageSeed(req.Unique)

	prompt, err := images.BuildPrompt(req.Mode, req.Creator, req.Category, req.Prompt, req.Unique, tv)
	if err != nil {
		return nil, err
	}

	imageRef, err := s.images.GenerateAndStore(ctx, prompt, seed)
	if err != nil {
		return nil, fmt.Errorf("image synthesis failed: %w", err)
	}

	item := s.newItem(req, tv, imageRef, models.EvolutionEvent{
		Version:    1,
		OccurredAt: time.Now().UTC(),
		Trigger:    "mint",
	})

	return s.commitAndMint(ctx, item)
}

func (s *Service) newItem(req CreateRequest, tv traits.Vector, imageRef string, mintEvent models.EvolutionEvent) *models.Item {
	now := time.Now().UTC()
	period := req.EvolutionPeriodDays
	if period <= 0 {
		period = s.cfg.DefaultEvolutionPeriodDays
	}

	status := models.StatusDisabled
	if s.ledger != nil {
		status = models.StatusPendingMint
	}

	return &models.Item{
		ID:          uuid.New().String(),
		Owner:       req.Owner,
		Creator:     req.Creator,
		Category:    req.Category,
		Mode:        req.Mode,
		Prompt:      req.Prompt,
		Name:        req.Name,
		Description: req.Description,

		ImageRef: imageRef,
		Traits:   tv,
		History:  []models.EvolutionEvent{mintEvent},
		Unique:   req.Unique,

		Version:             1,
		CreatedAt:           now,
		UpdatedAt:           now,
		LastEvolutionAt:     now,
		EvolutionPeriodDays: period,

		LedgerStatus: status,
	}
}

// commitAndMint consumes the scarcity slot, persists the item and runs the
// best-effort remote mint. RecordMint precedes Save so a store failure can
// only under-consume the quota, never let the combination overrun it.
func (s *Service) commitAndMint(ctx context.Context, item *models.Item) (*CreateResult, error) {
	counter, err := s.adm.RecordMint(ctx, item.Creator, item.Category)
	if err != nil {
		return nil, err
	}
	item.Scarcity = models.ScarcitySnapshot{
		Combination: counter.Combination,
		Minted:      counter.MintedCount,
		Limit:       counter.TotalLimit,
	}

	if err := s.repos.Items(s.db).Save(ctx, item); err != nil {
		s.logger.Error(ctx, "item save failed after scarcity consumption",
			"item_id", item.ID, "combination", counter.Combination, "error", err)
		return nil, fmt.Errorf("failed to save item: %w", err)
	}
	metrics.MintsTotal.WithLabelValues(item.Mode).Inc()
	s.logger.Info(ctx, "item minted locally",
		"item_id", item.ID, "owner", item.Owner, "combination", item.Combination(),
		"minted", counter.MintedCount, "limit", counter.TotalLimit)

	remote := s.remoteMint(ctx, item)

	result := &CreateResult{
		Item:              item,
		Remote:            remote,
		DualStorageStatus: storageStatus(remote),
	}
	return result, nil
}

// remoteMint runs the ledger leg of a create. All failures are converted
// to statuses; only the event and the returned summary carry them.
func (s *Service) remoteMint(ctx context.Context, item *models.Item) RemoteOutcome {
	if s.ledger == nil {
		return RemoteOutcome{Attempted: false, Status: models.StatusDisabled}
	}

	rec, err := s.ledger.Mint(ctx, recordFromItem(item))
	if err != nil {
		s.failRemoteLeg(ctx, item, "mint", err)
		return RemoteOutcome{Attempted: true, Status: item.LedgerStatus, Error: err.Error()}
	}

	if err := s.repos.Items(s.db).UpdateLedgerStatus(ctx, item.ID, rec.ID, models.StatusMinted, time.Now().UTC()); err != nil {
		s.logger.Error(ctx, "minted remotely but status update failed", "item_id", item.ID, "error", err)
		return RemoteOutcome{Attempted: true, Status: item.LedgerStatus, LedgerID: rec.ID, Error: err.Error()}
	}
	item.LedgerID = rec.ID
	item.LedgerStatus = models.StatusMinted
	item.LedgerAttempts = 0

	metrics.LedgerOpsTotal.WithLabelValues("mint", "ok").Inc()
	s.publish(EventMinted, item.ID, item.Version)
	return RemoteOutcome{Attempted: true, Status: models.StatusMinted, LedgerID: rec.ID}
}

// failRemoteLeg records one failed ledger attempt on the item: bumps the
// counter, picks failed_mint/failed_update or abandoned at the cap, and
// publishes the matching event. The item's in-memory status is updated to
// the stored one.
func (s *Service) failRemoteLeg(ctx context.Context, item *models.Item, op string, cause error) {
	repo := s.repos.Items(s.db)
	metrics.LedgerOpsTotal.WithLabelValues(op, "error").Inc()

	attempts, err := repo.IncrementLedgerAttempts(ctx, item.ID)
	if err != nil {
		s.logger.Error(ctx, "failed to record ledger attempt", "item_id", item.ID, "error", err)
		attempts = item.LedgerAttempts + 1
	}
	item.LedgerAttempts = attempts

	// The local commit already succeeded, so a failed update leg carries no
	// event of its own; mint failures and dead-lettering do.
	status := models.StatusFailedMint
	event := EventMintFailed
	if op == "update" {
		status = models.StatusFailedUpdate
		event = ""
	}
	if attempts >= s.cfg.MaxLedgerAttempts {
		status = models.StatusAbandoned
		event = EventAbandoned
	}

	if err := repo.UpdateLedgerStatus(ctx, item.ID, "", status, time.Now().UTC()); err != nil {
		s.logger.Error(ctx, "failed to record ledger status", "item_id", item.ID, "status", status, "error", err)
		return
	}
	item.LedgerStatus = status

	s.logger.Warn(ctx, "ledger leg failed",
		"item_id", item.ID, "operation", op, "status", status, "attempts", attempts, "error", cause)
	if event != "" {
		s.publish(event, item.ID, item.Version)
	}
}

func storageStatus(remote RemoteOutcome) string {
	switch remote.Status {
	case models.StatusDisabled:
		return StorageLocalOnly
	case models.StatusMinted:
		return StorageComplete
	default:
		return StoragePartial
	}
}

// recordFromItem projects the local item onto the remote schema. Traits
// travel as an opaque JSON document.
func recordFromItem(item *models.Item) *ledger.Record {
	traitsJSON, err := json.Marshal(item.Traits)
	if err != nil {
		traitsJSON = []byte("{}")
	}
	return &ledger.Record{
		ID:          item.LedgerID,
		Owner:       item.Owner,
		Name:        item.Name,
		Description: item.Description,
		ImageRef:    item.ImageRef,
		Version:     item.Version,
		TraitsJSON:  string(traitsJSON),
		MintedAt:    item.CreatedAt,
		UpdatedAt:   item.UpdatedAt,
	}
}

// BreedRequest orders a child item from two or more parents.
type BreedRequest struct {
	Owner       string
	Creator     string
	Category    string
	ParentIDs   []string
	Name        string
	Description string

	Unique              traits.UniquenessInputs
	EvolutionPeriodDays int64
}

// BreedItem mixes the parents' traits and runs the mint pipeline for the
// child with mode breeding and the lineage recorded in its mint event.
func (s *Service) BreedItem(ctx context.Context, req BreedRequest) (*CreateResult, error) {
	if len(req.ParentIDs) < 2 {
		return nil, fmt.Errorf("%w: breeding requires at least two parents, got %d", common.ErrValidation, len(req.ParentIDs))
	}

	createReq := CreateRequest{
		Owner:               req.Owner,
		Creator:             req.Creator,
		Category:            req.Category,
		Mode:                models.ModeSelection,
		Name:                req.Name,
		Description:         req.Description,
		Unique:              req.Unique,
		EvolutionPeriodDays: req.EvolutionPeriodDays,
	}
	if err := createReq.validate(); err != nil {
		return nil, err
	}

	repo := s.repos.Items(s.db)
	parents := make([]traits.Vector, 0, len(req.ParentIDs))
	for _, id := range req.ParentIDs {
		parent, err := repo.GetByID(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("parent %s: %w", id, err)
		}
		parents = append(parents, parent.Traits)
	}

	available, err := s.adm.IsAvailable(ctx, req.Creator, req.Category)
	if err != nil {
		return nil, err
	}
	if !available {
		return nil, fmt.Errorf("%w: %s", common.ErrCapacityExhausted, models.CombinationKey(req.Creator, req.Category))
	}

	tv, err := s.engine.Breed(parents)
	if err != nil {
		return nil, err
	}
	seed := s.engine.ImageSeed(req.Unique)

	prompt, err := images.BuildPrompt(models.ModeBreeding, req.Creator, req.Category, "", req.Unique, tv)
	if err != nil {
		return nil, err
	}

	imageRef, err := s.images.GenerateAndStore(ctx, prompt, seed)
	if err != nil {
		return nil, fmt.Errorf("image synthesis failed: %w", err)
	}

	item := s.newItem(createReq, tv, imageRef, models.EvolutionEvent{
		Version:    1,
		OccurredAt: time.Now().UTC(),
		Trigger:    "breeding",
		Note:       "bred from " + strings.Join(req.ParentIDs, ", "),
	})
	item.Mode = models.ModeBreeding

	return s.commitAndMint(ctx, item)
}

// GetItem returns one item or common.ErrorNotFound.
func (s *Service) GetItem(ctx context.Context, id string) (*models.Item, error) {
	return s.repos.Items(s.db).GetByID(ctx, id)
}

// ListItems returns items newest first; owner filters when non-empty.
func (s *Service) ListItems(ctx context.Context, owner string) ([]*models.Item, error) {
	return s.repos.Items(s.db).List(ctx, owner)
}

// GetEvolutionHistory returns the ordered history log of one item.
func (s *Service) GetEvolutionHistory(ctx context.Context, id string) ([]models.EvolutionEvent, error) {
	item, err := s.repos.Items(s.db).GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return item.History, nil
}

// ImageURL resolves an item's artifact reference to a fetchable URL.
func (s *Service) ImageURL(ctx context.Context, id string) (string, error) {
	item, err := s.repos.Items(s.db).GetByID(ctx, id)
	if err != nil {
		return "", err
	}
	return s.images.URL(ctx, item.ImageRef)
}

// Ping verifies the local store is reachable.
func (s *Service) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// LedgerHealth queries the remote ledger; nil with no error when the
// integration is disabled.
func (s *Service) LedgerHealth(ctx context.Context) (*ledger.Health, error) {
	if s.ledger == nil {
		return nil, nil
	}
	return s.ledger.Health(ctx)
}

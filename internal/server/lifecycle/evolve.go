package lifecycle

import (
	"context"
	"fmt"
	"time"

	"github.com/andrejs2008/evomint/internal/common"
	"github.com/andrejs2008/evomint/internal/server/images"
	"github.com/andrejs2008/evomint/internal/server/metrics"
	"github.com/andrejs2008/evomint/internal/server/models"
	"github.com/andrejs2008/evomint/internal/traits"
)

// Evolution entry points. Auto is resolved to a recorded trigger of
// social or drift depending on whether signal data was available.
const (
	TriggerManual = "manual"
	TriggerAuto   = "auto"
)

// EvolveResult mirrors CreateResult for an evolution step.
type EvolveResult struct {
	Item              *models.Item  `json:"item"`
	Remote            RemoteOutcome `json:"remote"`
	DualStorageStatus string        `json:"dual_storage_status"`
}

// EvolveItem advances one item a single version: gather signals, move the
// traits, re-render the artwork, commit atomically, then push the new
// state to the ledger best-effort. Runs under the item's lock; concurrent
// calls for the same id serialize.
func (s *Service) EvolveItem(ctx context.Context, id, trigger string) (*EvolveResult, error) {
	if trigger != TriggerManual && trigger != TriggerAuto {
		return nil, fmt.Errorf("%w: unknown evolution trigger %q", common.ErrValidation, trigger)
	}

	s.itemLocks.Lock(id)
	defer s.itemLocks.Unlock(id)

	started := time.Now()

	repo := s.repos.Items(s.db)
	item, err := repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	summary := s.fetchSignals(ctx, item)
	newTraits := s.engine.Evolve(item.Traits, summary)

	prompt, err := images.BuildPrompt(item.Mode, item.Creator, item.Category, item.Prompt, item.Unique, newTraits)
	if err != nil {
		return nil, err
	}
	imageRef, err := s.images.GenerateAndStore(ctx, prompt, s.engine.ImageSeed(item.Unique))
	if err != nil {
		s.publish(EventEvolutionFailed, item.ID, item.Version)
		return nil, fmt.Errorf("image synthesis failed: %w", err)
	}

	recorded := trigger
	if trigger == TriggerAuto {
		recorded = "drift"
		if summary.HasData() {
			recorded = "social"
		}
	}

	now := time.Now().UTC()
	item.Traits = newTraits
	item.ImageRef = imageRef
	item.Version++
	item.History = append(item.History, models.EvolutionEvent{
		Version:    item.Version,
		OccurredAt: now,
		Trigger:    recorded,
	})
	item.LastEvolutionAt = now
	item.UpdatedAt = now

	if err := repo.AppendEvolution(ctx, item); err != nil {
		s.publish(EventEvolutionFailed, item.ID, item.Version-1)
		return nil, err
	}

	metrics.EvolutionsTotal.WithLabelValues(recorded).Inc()
	metrics.EvolutionDuration.Observe(time.Since(started).Seconds())
	s.logger.Info(ctx, "item evolved",
		"item_id", item.ID, "version", item.Version, "trigger", recorded)
	s.publish(EventEvolved, item.ID, item.Version)

	remote := s.remoteUpdate(ctx, item)

	return &EvolveResult{
		Item:              item,
		Remote:            remote,
		DualStorageStatus: storageStatus(remote),
	}, nil
}

// fetchSignals asks the signal source for the window since the last
// evolution. Any failure degrades to nil, which the engine treats as
// drift.
func (s *Service) fetchSignals(ctx context.Context, item *models.Item) *traits.SignalSummary {
	if s.signal == nil {
		return nil
	}
	summary, err := s.signal.FetchSummary(ctx, item.Owner, item.LastEvolutionAt)
	if err != nil {
		s.logger.Warn(ctx, "signal fetch failed, falling back to drift", "item_id", item.ID, "error", err)
		return nil
	}
	return summary
}

// remoteUpdate pushes the evolved state to the ledger when the item is
// confirmed minted there. Items in any other status are left to the retry
// sweep, which pushes the latest local state anyway.
func (s *Service) remoteUpdate(ctx context.Context, item *models.Item) RemoteOutcome {
	if s.ledger == nil || item.LedgerStatus != models.StatusMinted {
		return RemoteOutcome{Attempted: false, Status: item.LedgerStatus}
	}

	if _, err := s.ledger.Update(ctx, item.LedgerID, recordFromItem(item)); err != nil {
		s.failRemoteLeg(ctx, item, "update", err)
		return RemoteOutcome{Attempted: true, Status: item.LedgerStatus, LedgerID: item.LedgerID, Error: err.Error()}
	}

	if err := s.repos.Items(s.db).UpdateLedgerStatus(ctx, item.ID, "", models.StatusMinted, time.Now().UTC()); err != nil {
		s.logger.Error(ctx, "updated remotely but attempt reset failed", "item_id", item.ID, "error", err)
	} else {
		item.LedgerAttempts = 0
	}

	metrics.LedgerOpsTotal.WithLabelValues("update", "ok").Inc()
	return RemoteOutcome{Attempted: true, Status: models.StatusMinted, LedgerID: item.LedgerID}
}

// EvolveReport counts one pass over due items.
type EvolveReport struct {
	Due     int `json:"due"`
	Evolved int `json:"evolved"`
	Failed  int `json:"failed"`
}

// EvolveDueItems evolves every item whose interval has elapsed. Guarded
// against concurrent runs; per-item failures are logged and skipped so one
// broken item cannot stall the rest.
func (s *Service) EvolveDueItems(ctx context.Context) (*EvolveReport, error) {
	if !s.evolveSweepActive.CompareAndSwap(false, true) {
		return nil, common.ErrSweepActive
	}
	defer s.evolveSweepActive.Store(false)

	due, err := s.repos.Items(s.db).DueForEvolution(ctx, time.Now().UTC(), s.cfg.SweepBatchSize)
	if err != nil {
		return nil, fmt.Errorf("failed to select due items: %w", err)
	}

	report := &EvolveReport{Due: len(due)}
	for _, item := range due {
		if ctx.Err() != nil {
			return report, ctx.Err()
		}
		if _, err := s.EvolveItem(ctx, item.ID, TriggerAuto); err != nil {
			report.Failed++
			s.logger.Warn(ctx, "scheduled evolution failed", "item_id", item.ID, "error", err)
			continue
		}
		report.Evolved++
	}

	s.logger.Info(ctx, "evolution sweep finished",
		"due", report.Due, "evolved", report.Evolved, "failed", report.Failed)
	return report, nil
}

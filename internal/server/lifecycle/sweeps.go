package lifecycle

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/andrejs2008/evomint/internal/common"
	"github.com/andrejs2008/evomint/internal/server/ledger"
	"github.com/andrejs2008/evomint/internal/server/metrics"
	"github.com/andrejs2008/evomint/internal/server/models"
)

// RetryReport counts one repair pass over items with failed ledger legs.
type RetryReport struct {
	Scanned   int `json:"scanned"`
	Reminted  int `json:"reminted"`
	Reupdated int `json:"reupdated"`
	Failed    int `json:"failed"`
	Abandoned int `json:"abandoned"`
	Skipped   int `json:"skipped"`
}

// RetrySweep re-runs the remote leg for every item stuck in failed_mint or
// failed_update, dead-lettering items whose attempt budget runs out.
// Reentrancy-guarded: a second call while one runs returns ErrSweepActive.
func (s *Service) RetrySweep(ctx context.Context) (*RetryReport, error) {
	if !s.retrySweepActive.CompareAndSwap(false, true) {
		return nil, common.ErrSweepActive
	}
	defer s.retrySweepActive.Store(false)

	if s.ledger == nil {
		return nil, fmt.Errorf("%w: ledger integration disabled", common.ErrValidation)
	}

	stale, err := s.repos.Items(s.db).ByLedgerStatus(ctx,
		[]models.LedgerStatus{models.StatusFailedMint, models.StatusFailedUpdate}, s.cfg.SweepBatchSize)
	if err != nil {
		metrics.SweepRunsTotal.WithLabelValues("retry", "error").Inc()
		return nil, fmt.Errorf("failed to select retryable items: %w", err)
	}

	report := &RetryReport{Scanned: len(stale)}
	for _, candidate := range stale {
		if ctx.Err() != nil {
			return report, ctx.Err()
		}
		s.retryOne(ctx, candidate.ID, report)
	}

	metrics.SweepRunsTotal.WithLabelValues("retry", "ok").Inc()
	s.logger.Info(ctx, "retry sweep finished",
		"scanned", report.Scanned, "reminted", report.Reminted, "reupdated", report.Reupdated,
		"failed", report.Failed, "abandoned", report.Abandoned, "skipped", report.Skipped)
	return report, nil
}

// retryOne repairs a single item under its lock. The item is reloaded
// after locking: an evolution or a concurrent repair may have moved it
// since the batch was selected.
func (s *Service) retryOne(ctx context.Context, id string, report *RetryReport) {
	s.itemLocks.Lock(id)
	defer s.itemLocks.Unlock(id)

	repo := s.repos.Items(s.db)
	item, err := repo.GetByID(ctx, id)
	if err != nil {
		s.logger.Warn(ctx, "retry candidate vanished", "item_id", id, "error", err)
		report.Skipped++
		return
	}

	switch item.LedgerStatus {
	case models.StatusFailedMint:
		rec, err := s.ledger.Mint(ctx, recordFromItem(item))
		if err != nil {
			s.countRetryFailure(ctx, item, "mint", err, report)
			return
		}
		if err := repo.UpdateLedgerStatus(ctx, item.ID, rec.ID, models.StatusMinted, time.Now().UTC()); err != nil {
			s.logger.Error(ctx, "reminted remotely but status update failed", "item_id", item.ID, "error", err)
			report.Failed++
			return
		}
		metrics.LedgerOpsTotal.WithLabelValues("mint", "ok").Inc()
		metrics.SweepItemsTotal.WithLabelValues("reminted").Inc()
		s.publish(EventMinted, item.ID, item.Version)
		report.Reminted++

	case models.StatusFailedUpdate:
		if _, err := s.ledger.Update(ctx, item.LedgerID, recordFromItem(item)); err != nil {
			s.countRetryFailure(ctx, item, "update", err, report)
			return
		}
		if err := repo.UpdateLedgerStatus(ctx, item.ID, "", models.StatusMinted, time.Now().UTC()); err != nil {
			s.logger.Error(ctx, "reupdated remotely but status update failed", "item_id", item.ID, "error", err)
			report.Failed++
			return
		}
		metrics.LedgerOpsTotal.WithLabelValues("update", "ok").Inc()
		metrics.SweepItemsTotal.WithLabelValues("reupdated").Inc()
		report.Reupdated++

	default:
		// repaired or dead-lettered between select and lock
		report.Skipped++
	}
}

func (s *Service) countRetryFailure(ctx context.Context, item *models.Item, op string, cause error, report *RetryReport) {
	s.failRemoteLeg(ctx, item, op, cause)
	if item.LedgerStatus == models.StatusAbandoned {
		metrics.SweepItemsTotal.WithLabelValues("abandoned").Inc()
		report.Abandoned++
		return
	}
	metrics.SweepItemsTotal.WithLabelValues("failed").Inc()
	report.Failed++
}

// DiffEntry is one divergence found by a diff sweep.
type DiffEntry struct {
	ItemID   string `json:"item_id,omitempty"`
	LedgerID string `json:"ledger_id,omitempty"`
	Detail   string `json:"detail"`
}

// DiffReport is the outcome of comparing both stores. The sweep only
// reports; it never decides which side is stale.
type DiffReport struct {
	CheckedLocal  int         `json:"checked_local"`
	CheckedRemote int         `json:"checked_remote"`
	LocalOnly     []DiffEntry `json:"local_only"`
	Mismatched    []DiffEntry `json:"mismatched"`
	RemoteOnly    []DiffEntry `json:"remote_only"`
}

// DiffSweep fetches both stores concurrently and reports every divergence:
// items never or no longer present remotely, version/image mismatches, and
// untracked remote records.
func (s *Service) DiffSweep(ctx context.Context) (*DiffReport, error) {
	if !s.diffSweepActive.CompareAndSwap(false, true) {
		return nil, common.ErrSweepActive
	}
	defer s.diffSweepActive.Store(false)

	if s.ledger == nil {
		return nil, fmt.Errorf("%w: ledger integration disabled", common.ErrValidation)
	}

	var (
		local  []*models.Item
		remote []*ledger.Record
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		if local, err = s.repos.Items(s.db).List(gctx, ""); err != nil {
			return fmt.Errorf("failed to list local items: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		remote, err = s.ledger.ListAll(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		metrics.SweepRunsTotal.WithLabelValues("diff", "error").Inc()
		return nil, err
	}

	report := buildDiff(local, remote)
	metrics.SweepRunsTotal.WithLabelValues("diff", "ok").Inc()
	s.logger.Info(ctx, "diff sweep finished",
		"local", report.CheckedLocal, "remote", report.CheckedRemote,
		"local_only", len(report.LocalOnly), "mismatched", len(report.Mismatched),
		"remote_only", len(report.RemoteOnly))
	return report, nil
}

// buildDiff compares version and image reference only: trait vectors
// round-trip through JSON floats on both sides and version already moves
// on every trait change.
func buildDiff(local []*models.Item, remote []*ledger.Record) *DiffReport {
	remoteByID := make(map[string]*ledger.Record, len(remote))
	for _, rec := range remote {
		remoteByID[rec.ID] = rec
	}
	referenced := make(map[string]bool, len(local))

	report := &DiffReport{CheckedLocal: len(local), CheckedRemote: len(remote)}
	for _, item := range local {
		if item.LedgerID == "" {
			report.LocalOnly = append(report.LocalOnly, DiffEntry{
				ItemID: item.ID,
				Detail: fmt.Sprintf("never minted remotely (status %s)", item.LedgerStatus),
			})
			continue
		}
		referenced[item.LedgerID] = true

		rec, ok := remoteByID[item.LedgerID]
		if !ok {
			report.LocalOnly = append(report.LocalOnly, DiffEntry{
				ItemID:   item.ID,
				LedgerID: item.LedgerID,
				Detail:   "ledger record missing, possibly burned remotely",
			})
			continue
		}
		if rec.Version != item.Version || rec.ImageRef != item.ImageRef {
			report.Mismatched = append(report.Mismatched, DiffEntry{
				ItemID:   item.ID,
				LedgerID: item.LedgerID,
				Detail: fmt.Sprintf("local v%d image %s, remote v%d image %s",
					item.Version, item.ImageRef, rec.Version, rec.ImageRef),
			})
		}
	}

	for _, rec := range remote {
		if !referenced[rec.ID] {
			report.RemoteOnly = append(report.RemoteOnly, DiffEntry{
				LedgerID: rec.ID,
				Detail:   "untracked remote record",
			})
		}
	}
	return report
}

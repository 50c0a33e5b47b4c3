package lifecycle

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andrejs2008/evomint/internal/common"
	"github.com/andrejs2008/evomint/internal/server/models"
	"github.com/andrejs2008/evomint/internal/traits"
)

func TestEvolveItem_AdvancesVersionAndHistory(t *testing.T) {
	h := setupHarness(t, nil)
	ctx := context.Background()

	created, err := h.svc.CreateItem(ctx, createReq(1))
	require.NoError(t, err)
	id := created.Item.ID

	res, err := h.svc.EvolveItem(ctx, id, TriggerManual)
	require.NoError(t, err)
	assert.Equal(t, int64(2), res.Item.Version)
	assert.Equal(t, StorageComplete, res.DualStorageStatus)

	res, err = h.svc.EvolveItem(ctx, id, TriggerManual)
	require.NoError(t, err)
	assert.Equal(t, int64(3), res.Item.Version)

	stored, err := h.svc.GetItem(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, int64(3), stored.Version)
	require.Len(t, stored.History, 3)
	assert.Equal(t, "mint", stored.History[0].Trigger)
	assert.Equal(t, "manual", stored.History[1].Trigger)
	assert.Equal(t, "manual", stored.History[2].Trigger)
	assert.True(t, stored.Traits.InBounds())
	assert.False(t, stored.LastEvolutionAt.Before(stored.CreatedAt))

	// the remote mirror followed both updates
	assert.Equal(t, 2, h.ledger.updateCalls)
	rec := h.ledger.record(stored.LedgerID)
	require.NotNil(t, rec)
	assert.Equal(t, int64(3), rec.Version)

	assert.Equal(t, []string{EventMinted, EventEvolved, EventEvolved}, h.events.types())
}

func TestEvolveItem_UnknownTrigger(t *testing.T) {
	h := setupHarness(t, nil)

	_, err := h.svc.EvolveItem(context.Background(), "any", "cosmic-ray")
	require.ErrorIs(t, err, common.ErrValidation)
}

func TestEvolveItem_UnknownItem(t *testing.T) {
	h := setupHarness(t, nil)

	_, err := h.svc.EvolveItem(context.Background(), "missing", TriggerManual)
	require.ErrorIs(t, err, common.ErrorNotFound)
}

func TestEvolveItem_AutoWithSignalsRecordsSocial(t *testing.T) {
	h := setupHarness(t, func(deps *Deps, _ *Config) {
		deps.Signals = &fakeSignals{summary: &traits.SignalSummary{
			MeanSentiment:  0.4,
			SentimentCount: 3,
			Engagement:     50,
			Frequency:      1.2,
			KeywordMatches: 4,
		}}
	})
	ctx := context.Background()

	created, err := h.svc.CreateItem(ctx, createReq(1))
	require.NoError(t, err)

	res, err := h.svc.EvolveItem(ctx, created.Item.ID, TriggerAuto)
	require.NoError(t, err)
	require.Len(t, res.Item.History, 2)
	assert.Equal(t, "social", res.Item.History[1].Trigger)
}

func TestEvolveItem_AutoWithoutSignalsRecordsDrift(t *testing.T) {
	h := setupHarness(t, nil) // no signal source wired
	ctx := context.Background()

	created, err := h.svc.CreateItem(ctx, createReq(1))
	require.NoError(t, err)

	res, err := h.svc.EvolveItem(ctx, created.Item.ID, TriggerAuto)
	require.NoError(t, err)
	assert.Equal(t, "drift", res.Item.History[1].Trigger)
}

func TestEvolveItem_SignalErrorDegradesToDrift(t *testing.T) {
	h := setupHarness(t, func(deps *Deps, _ *Config) {
		deps.Signals = &fakeSignals{err: fmt.Errorf("feed timeout")}
	})
	ctx := context.Background()

	created, err := h.svc.CreateItem(ctx, createReq(1))
	require.NoError(t, err)

	res, err := h.svc.EvolveItem(ctx, created.Item.ID, TriggerAuto)
	require.NoError(t, err)
	assert.Equal(t, "drift", res.Item.History[1].Trigger)
}

func TestEvolveItem_UpdateLegFailureKeepsLocalCommit(t *testing.T) {
	h := setupHarness(t, nil)
	ctx := context.Background()

	created, err := h.svc.CreateItem(ctx, createReq(1))
	require.NoError(t, err)
	h.ledger.setUpdateErr(fmt.Errorf("ledger unreachable"))

	res, err := h.svc.EvolveItem(ctx, created.Item.ID, TriggerManual)
	require.NoError(t, err)

	assert.Equal(t, int64(2), res.Item.Version)
	assert.True(t, res.Remote.Attempted)
	assert.Equal(t, models.StatusFailedUpdate, res.Remote.Status)
	assert.Equal(t, StoragePartial, res.DualStorageStatus)

	stored, err := h.svc.GetItem(ctx, created.Item.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), stored.Version)
	assert.Equal(t, models.StatusFailedUpdate, stored.LedgerStatus)
	assert.Equal(t, int64(1), stored.LedgerAttempts)

	// the remote mirror is stale but the local log is complete
	rec := h.ledger.record(stored.LedgerID)
	require.NotNil(t, rec)
	assert.Equal(t, int64(1), rec.Version)

	assert.Equal(t, []string{EventMinted, EventEvolved}, h.events.types())
}

func TestEvolveItem_UnmintedItemLeftToSweep(t *testing.T) {
	h := setupHarness(t, nil)
	ctx := context.Background()
	h.ledger.setMintErr(fmt.Errorf("ledger unreachable"))

	created, err := h.svc.CreateItem(ctx, createReq(1))
	require.NoError(t, err)
	require.Equal(t, models.StatusFailedMint, created.Item.LedgerStatus)

	res, err := h.svc.EvolveItem(ctx, created.Item.ID, TriggerManual)
	require.NoError(t, err)

	assert.Equal(t, int64(2), res.Item.Version)
	assert.False(t, res.Remote.Attempted)
	assert.Equal(t, models.StatusFailedMint, res.Remote.Status)
	assert.Equal(t, StoragePartial, res.DualStorageStatus)
	assert.Zero(t, h.ledger.updateCalls)
}

func TestEvolveDueItems_EvolvesOnlyDue(t *testing.T) {
	h := setupHarness(t, nil)
	ctx := context.Background()

	due, err := h.svc.CreateItem(ctx, createReq(1))
	require.NoError(t, err)
	fresh, err := h.svc.CreateItem(ctx, createReq(2))
	require.NoError(t, err)

	// push the first item's clock past its interval
	repo := h.repos.Items(h.db)
	item, err := repo.GetByID(ctx, due.Item.ID)
	require.NoError(t, err)
	item.LastEvolutionAt = time.Now().UTC().AddDate(0, 0, -int(item.EvolutionPeriodDays)-1)
	require.NoError(t, repo.Save(ctx, item))

	report, err := h.svc.EvolveDueItems(ctx)
	require.NoError(t, err)
	assert.Equal(t, &EvolveReport{Due: 1, Evolved: 1}, report)

	evolved, err := h.svc.GetItem(ctx, due.Item.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), evolved.Version)
	assert.Equal(t, "drift", evolved.History[1].Trigger)

	untouched, err := h.svc.GetItem(ctx, fresh.Item.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), untouched.Version)
}

func TestEvolveDueItems_GuardsAgainstConcurrentRuns(t *testing.T) {
	h := setupHarness(t, nil)

	h.svc.evolveSweepActive.Store(true)
	_, err := h.svc.EvolveDueItems(context.Background())
	require.ErrorIs(t, err, common.ErrSweepActive)

	h.svc.evolveSweepActive.Store(false)
	report, err := h.svc.EvolveDueItems(context.Background())
	require.NoError(t, err)
	assert.Zero(t, report.Due)
}

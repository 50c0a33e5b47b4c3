package rest

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andrejs2008/evomint/internal/common"
	"github.com/andrejs2008/evomint/internal/logging"
	"github.com/andrejs2008/evomint/internal/server/admission"
	"github.com/andrejs2008/evomint/internal/server/credentials"
	"github.com/andrejs2008/evomint/internal/server/images"
	"github.com/andrejs2008/evomint/internal/server/ledger"
	"github.com/andrejs2008/evomint/internal/server/lifecycle"
	"github.com/andrejs2008/evomint/internal/server/repositories/repomanager"
	"github.com/andrejs2008/evomint/internal/traits"

	_ "modernc.org/sqlite"
)

func init() {
	gin.SetMode(gin.TestMode)
}

const testAdminSecret = "rest-test-admin-secret"

// fakeLedgerClient is the in-memory ledger used behind the full router.
type fakeLedgerClient struct {
	mu      sync.Mutex
	mintErr error
	nextID  int
	records map[string]*ledger.Record
}

func newFakeLedgerClient() *fakeLedgerClient {
	return &fakeLedgerClient{records: map[string]*ledger.Record{}}
}

func (f *fakeLedgerClient) Mint(_ context.Context, rec *ledger.Record) (*ledger.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.mintErr != nil {
		return nil, f.mintErr
	}
	f.nextID++
	stored := *rec
	stored.ID = fmt.Sprintf("led-%d", f.nextID)
	f.records[stored.ID] = &stored
	out := stored
	return &out, nil
}

func (f *fakeLedgerClient) Update(_ context.Context, id string, rec *ledger.Record) (*ledger.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.records[id]; !ok {
		return nil, common.ErrorNotFound
	}
	stored := *rec
	stored.ID = id
	f.records[id] = &stored
	out := stored
	return &out, nil
}

func (f *fakeLedgerClient) Get(_ context.Context, id string) (*ledger.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.records[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	out := *rec
	return &out, nil
}

func (f *fakeLedgerClient) ListAll(context.Context) ([]*ledger.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*ledger.Record, 0, len(f.records))
	for _, rec := range f.records {
		c := *rec
		out = append(out, &c)
	}
	return out, nil
}

func (f *fakeLedgerClient) Health(context.Context) (*ledger.Health, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return &ledger.Health{Status: "ok", Records: int64(len(f.records))}, nil
}

func (f *fakeLedgerClient) setMintErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.mintErr = err
}

type apiOptions struct {
	quotaLimit    int64
	quotaSeedPath string
}

type apiHarness struct {
	router *gin.Engine
	ledger *fakeLedgerClient
}

// newTestAPI assembles the full router over in-memory sqlite and a fake
// ledger, the same wiring the app performs at boot.
func newTestAPI(t *testing.T, opts apiOptions) *apiHarness {
	t.Helper()

	if opts.quotaLimit == 0 {
		opts.quotaLimit = 100
	}

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := sql.Open("sqlite", dsn)
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })

	repos, err := repomanager.NewSqliteRepositoryManager()
	require.NoError(t, err)
	require.NoError(t, repos.RunMigrations(context.Background(), db))

	logger := logging.NewNopLogger()
	led := newFakeLedgerClient()
	adm := admission.NewService(db, repos, opts.quotaLimit, logger)

	lc := lifecycle.NewService(lifecycle.Deps{
		DB:        db,
		Repos:     repos,
		Engine:    traits.NewEngine(traits.DefaultConfig()),
		Admission: adm,
		Images:    images.NewService(nil, nil, logger),
		Ledger:    led,
		Logger:    logger,
	}, lifecycle.Config{MaxLedgerAttempts: 3, SweepBatchSize: 50})

	creds := credentials.NewService(db, repos, "rest-test-secret", "rest-test-salt", logger)

	router := NewRouter(lc, adm, creds, NewHub(logger), RouterConfig{
		AdminSecret:   []byte(testAdminSecret),
		TokenValidity: time.Hour,
		QuotaSeedPath: opts.quotaSeedPath,
	}, logger)

	return &apiHarness{router: router, ledger: led}
}

func (h *apiHarness) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	return h.doAuthed(t, method, path, body, "")
}

func (h *apiHarness) doAuthed(t *testing.T, method, path string, body any, token string) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	h.router.ServeHTTP(w, req)
	return w
}

// adminToken exchanges the shared secret for a JWT through the public
// endpoint, the same path an operator takes.
func (h *apiHarness) adminToken(t *testing.T) string {
	t.Helper()

	w := h.do(t, http.MethodPost, "/api/v1/admin/token", gin.H{"operator": "ops", "secret": testAdminSecret})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var out struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	require.NotEmpty(t, out.Token)
	return out.Token
}

func createItemBody(n int) gin.H {
	return gin.H{
		"owner":    "wallet-owner-1",
		"creator":  "Van Gogh",
		"category": "cosmic",
		"mode":     "selection",
		"name":     fmt.Sprintf("Nebula %d", n),
		"uniqueness": gin.H{
			"location_hash":  fmt.Sprintf("a1b2c3d4%08d", n),
			"timestamp_seed": "1744452000",
			"wallet_entropy": fmt.Sprintf("wallet-entropy-%d", n),
		},
	}
}

type mintReply struct {
	Item struct {
		ID           string `json:"id"`
		Owner        string `json:"owner"`
		Version      int64  `json:"version"`
		LedgerID     string `json:"ledger_id"`
		LedgerStatus string `json:"ledger_status"`
	} `json:"item"`
	Remote struct {
		Attempted bool   `json:"attempted"`
		Status    string `json:"status"`
		Error     string `json:"error"`
	} `json:"remote"`
	DualStorageStatus string `json:"dual_storage_status"`
}

func (h *apiHarness) createItem(t *testing.T, n int) mintReply {
	t.Helper()

	w := h.do(t, http.MethodPost, "/api/v1/items", createItemBody(n))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var out mintReply
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func TestCreateItem_ReturnsMintResult(t *testing.T) {
	h := newTestAPI(t, apiOptions{})

	out := h.createItem(t, 1)
	assert.NotEmpty(t, out.Item.ID)
	assert.Equal(t, int64(1), out.Item.Version)
	assert.Equal(t, "minted", out.Item.LedgerStatus)
	assert.NotEmpty(t, out.Item.LedgerID)
	assert.True(t, out.Remote.Attempted)
	assert.Equal(t, lifecycle.StorageComplete, out.DualStorageStatus)
}

func TestCreateItem_UnknownCategoryRejected(t *testing.T) {
	h := newTestAPI(t, apiOptions{})

	body := createItemBody(1)
	body["category"] = "sunsets"
	w := h.do(t, http.MethodPost, "/api/v1/items", body)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "validation")
}

func TestCreateItem_MissingUniquenessRejected(t *testing.T) {
	h := newTestAPI(t, apiOptions{})

	body := createItemBody(1)
	delete(body, "uniqueness")
	w := h.do(t, http.MethodPost, "/api/v1/items", body)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCreateItem_LedgerDownStillCommitsLocally(t *testing.T) {
	h := newTestAPI(t, apiOptions{})
	h.ledger.setMintErr(errors.New("ledger down"))

	w := h.do(t, http.MethodPost, "/api/v1/items", createItemBody(1))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var out mintReply
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	assert.Equal(t, "partial", out.DualStorageStatus)
	assert.Equal(t, "failed_mint", out.Item.LedgerStatus)
	assert.NotEmpty(t, out.Remote.Error)
}

func TestCreateItem_CapacityExhaustedOffersWaitlist(t *testing.T) {
	h := newTestAPI(t, apiOptions{quotaLimit: 1})

	h.createItem(t, 1)

	w := h.do(t, http.MethodPost, "/api/v1/items", createItemBody(2))
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, w.Body.String(), "waitlist")
}

func TestGetItem_RoundTrip(t *testing.T) {
	h := newTestAPI(t, apiOptions{})
	created := h.createItem(t, 1)

	w := h.do(t, http.MethodGet, "/api/v1/items/"+created.Item.ID, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var out struct {
		ID    string `json:"id"`
		Owner string `json:"owner"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	assert.Equal(t, created.Item.ID, out.ID)
	assert.Equal(t, "wallet-owner-1", out.Owner)
}

func TestGetItem_NotFound(t *testing.T) {
	h := newTestAPI(t, apiOptions{})

	w := h.do(t, http.MethodGet, "/api/v1/items/no-such-item", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestListItems_FiltersByOwner(t *testing.T) {
	h := newTestAPI(t, apiOptions{})
	h.createItem(t, 1)

	other := createItemBody(2)
	other["owner"] = "wallet-owner-2"
	w := h.do(t, http.MethodPost, "/api/v1/items", other)
	require.Equal(t, http.StatusCreated, w.Code)

	w = h.do(t, http.MethodGet, "/api/v1/items?owner=wallet-owner-2", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var out struct {
		Items []struct {
			Owner string `json:"owner"`
		} `json:"items"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	require.Len(t, out.Items, 1)
	assert.Equal(t, "wallet-owner-2", out.Items[0].Owner)
}

func TestEvolveItem_AdvancesVersion(t *testing.T) {
	h := newTestAPI(t, apiOptions{})
	created := h.createItem(t, 1)

	w := h.do(t, http.MethodPost, "/api/v1/items/"+created.Item.ID+"/evolve", gin.H{"trigger": "manual"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var out mintReply
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	assert.Equal(t, int64(2), out.Item.Version)
}

func TestEvolveItem_EmptyBodyDefaultsToManual(t *testing.T) {
	h := newTestAPI(t, apiOptions{})
	created := h.createItem(t, 1)

	w := h.do(t, http.MethodPost, "/api/v1/items/"+created.Item.ID+"/evolve", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var out mintReply
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	assert.Equal(t, int64(2), out.Item.Version)
}

func TestGetHistory_ListsMintEvent(t *testing.T) {
	h := newTestAPI(t, apiOptions{})
	created := h.createItem(t, 1)

	w := h.do(t, http.MethodGet, "/api/v1/items/"+created.Item.ID+"/history", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var out struct {
		History []struct {
			Trigger string `json:"trigger"`
		} `json:"history"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	require.Len(t, out.History, 1)
	assert.Equal(t, "mint", out.History[0].Trigger)
}

func TestGetImageURL(t *testing.T) {
	h := newTestAPI(t, apiOptions{})
	created := h.createItem(t, 1)

	w := h.do(t, http.MethodGet, "/api/v1/items/"+created.Item.ID+"/image-url", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var out struct {
		ImageURL string `json:"image_url"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	assert.NotEmpty(t, out.ImageURL)
}

func TestAvailability_ReportsCounts(t *testing.T) {
	h := newTestAPI(t, apiOptions{})
	h.createItem(t, 1)

	w := h.do(t, http.MethodGet, "/api/v1/availability/Van%20Gogh/cosmic", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var out struct {
		Combination string `json:"combination"`
		Available   bool   `json:"available"`
		Minted      int64  `json:"minted"`
		Limit       int64  `json:"limit"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	assert.Equal(t, "Van Gogh-cosmic", out.Combination)
	assert.True(t, out.Available)
	assert.Equal(t, int64(1), out.Minted)
	assert.Equal(t, int64(100), out.Limit)
}

func TestAvailability_UnknownCategoryRejected(t *testing.T) {
	h := newTestAPI(t, apiOptions{})

	w := h.do(t, http.MethodGet, "/api/v1/availability/Van%20Gogh/sunsets", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestJoinWaitlist_Idempotent(t *testing.T) {
	h := newTestAPI(t, apiOptions{})

	body := gin.H{"creator": "Van Gogh", "category": "cosmic", "requester": "wallet-owner-9"}

	w := h.do(t, http.MethodPost, "/api/v1/waitlist", body)
	require.Equal(t, http.StatusOK, w.Code)
	var out struct {
		Combination string `json:"combination"`
		Joined      bool   `json:"joined"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	assert.Equal(t, "Van Gogh-cosmic", out.Combination)
	assert.True(t, out.Joined)

	w = h.do(t, http.MethodPost, "/api/v1/waitlist", body)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	assert.False(t, out.Joined)
}

func TestSaveCredentials(t *testing.T) {
	h := newTestAPI(t, apiOptions{})

	w := h.do(t, http.MethodPost, "/api/v1/credentials", gin.H{
		"owner":            "wallet-owner-1",
		"platform":         "twitter",
		"external_user_id": "u-100",
		"handle":           "@collector",
		"access_token":     "tok-abc",
		"refresh_token":    "tok-def",
	})
	assert.Equal(t, http.StatusCreated, w.Code, w.Body.String())
}

func TestSaveCredentials_MissingTokenRejected(t *testing.T) {
	h := newTestAPI(t, apiOptions{})

	w := h.do(t, http.MethodPost, "/api/v1/credentials", gin.H{
		"owner":            "wallet-owner-1",
		"platform":         "twitter",
		"external_user_id": "u-100",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHealth(t *testing.T) {
	h := newTestAPI(t, apiOptions{})

	w := h.do(t, http.MethodGet, "/api/v1/health", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var out struct {
		Status string `json:"status"`
		Ledger struct {
			Status string `json:"status"`
		} `json:"ledger"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	assert.Equal(t, "ok", out.Status)
	assert.Equal(t, "ok", out.Ledger.Status)
}

func TestMetricsEndpoint(t *testing.T) {
	h := newTestAPI(t, apiOptions{})
	h.createItem(t, 1)

	w := h.do(t, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "evomint_mints_total")
}

func TestAdminEndpoints_RequireToken(t *testing.T) {
	h := newTestAPI(t, apiOptions{})

	w := h.doAuthed(t, http.MethodPost, "/api/v1/admin/sweeps/retry", nil, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = h.doAuthed(t, http.MethodPost, "/api/v1/admin/sweeps/retry", nil, "not-a-jwt")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAdminToken_WrongSecretRejected(t *testing.T) {
	h := newTestAPI(t, apiOptions{})

	w := h.do(t, http.MethodPost, "/api/v1/admin/token", gin.H{"operator": "ops", "secret": "wrong"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAdminRetrySweep_RunsWithToken(t *testing.T) {
	h := newTestAPI(t, apiOptions{})
	token := h.adminToken(t)

	w := h.doAuthed(t, http.MethodPost, "/api/v1/admin/sweeps/retry", nil, token)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var out struct {
		Scanned int `json:"scanned"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	assert.Equal(t, 0, out.Scanned)
}

func TestAdminDiffSweep_ReportsClean(t *testing.T) {
	h := newTestAPI(t, apiOptions{})
	h.createItem(t, 1)
	token := h.adminToken(t)

	w := h.doAuthed(t, http.MethodPost, "/api/v1/admin/sweeps/diff", nil, token)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var out struct {
		CheckedLocal  int `json:"checked_local"`
		CheckedRemote int `json:"checked_remote"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	assert.Equal(t, 1, out.CheckedLocal)
	assert.Equal(t, 1, out.CheckedRemote)
}

func TestAdminEvolveDue_RunsWithToken(t *testing.T) {
	h := newTestAPI(t, apiOptions{})
	token := h.adminToken(t)

	w := h.doAuthed(t, http.MethodPost, "/api/v1/admin/evolve-due", nil, token)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var out struct {
		Due int `json:"due"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	assert.Equal(t, 0, out.Due)
}

func TestAdminQuotas_ListsCounters(t *testing.T) {
	h := newTestAPI(t, apiOptions{})
	h.createItem(t, 1)
	token := h.adminToken(t)

	w := h.doAuthed(t, http.MethodGet, "/api/v1/admin/quotas", nil, token)
	require.Equal(t, http.StatusOK, w.Code)

	var out struct {
		Quotas []struct {
			Combination string `json:"combination"`
			Minted      int64  `json:"minted"`
			Limit       int64  `json:"limit"`
		} `json:"quotas"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	require.Len(t, out.Quotas, 1)
	assert.Equal(t, "Van Gogh-cosmic", out.Quotas[0].Combination)
	assert.Equal(t, int64(1), out.Quotas[0].Minted)
}

func TestAdminQuotaSeed_AppliesFile(t *testing.T) {
	seedPath := filepath.Join(t.TempDir(), "quotas.yaml")
	seed := "- creator: Monet\n  category: nature\n  limit: 500\n"
	require.NoError(t, os.WriteFile(seedPath, []byte(seed), 0o600))

	h := newTestAPI(t, apiOptions{quotaSeedPath: seedPath})
	token := h.adminToken(t)

	w := h.doAuthed(t, http.MethodPost, "/api/v1/admin/quotas/seed", nil, token)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = h.do(t, http.MethodGet, "/api/v1/availability/Monet/nature", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var out struct {
		Limit int64 `json:"limit"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	assert.Equal(t, int64(500), out.Limit)
}

func TestAdminQuotaSeed_NoFileConfigured(t *testing.T) {
	h := newTestAPI(t, apiOptions{})
	token := h.adminToken(t)

	w := h.doAuthed(t, http.MethodPost, "/api/v1/admin/quotas/seed", nil, token)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

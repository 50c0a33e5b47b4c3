package admission

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andrejs2008/evomint/internal/common"
	"github.com/andrejs2008/evomint/internal/logging"
	"github.com/andrejs2008/evomint/internal/server/repositories/repomanager"

	_ "modernc.org/sqlite"
)

func setupService(t *testing.T, fallbackLimit int64) (*Service, *sql.DB) {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := sql.Open("sqlite", dsn)
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })

	repos, err := repomanager.NewSqliteRepositoryManager()
	require.NoError(t, err)
	require.NoError(t, repos.RunMigrations(context.Background(), db))

	return NewService(db, repos, fallbackLimit, logging.NewNopLogger()), db
}

func TestIsAvailable_UnseededUsesFallback(t *testing.T) {
	s, _ := setupService(t, 2)
	ctx := context.Background()

	ok, err := s.IsAvailable(ctx, "alice", "cosmic")
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = s.RecordMint(ctx, "alice", "cosmic")
	require.NoError(t, err)
	_, err = s.RecordMint(ctx, "alice", "cosmic")
	require.NoError(t, err)

	ok, err = s.IsAvailable(ctx, "alice", "cosmic")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRecordMint_ReturnsPostIncrementCounter(t *testing.T) {
	s, _ := setupService(t, 10)
	ctx := context.Background()

	c, err := s.RecordMint(ctx, "alice", "cosmic")
	require.NoError(t, err)
	assert.Equal(t, "alice-cosmic", c.Combination)
	assert.Equal(t, int64(1), c.MintedCount)
	assert.Equal(t, int64(10), c.TotalLimit)

	c, err = s.RecordMint(ctx, "alice", "cosmic")
	require.NoError(t, err)
	assert.Equal(t, int64(2), c.MintedCount)
}

func TestRecordMint_ConcurrentCallsAllLand(t *testing.T) {
	s, _ := setupService(t, 100)
	ctx := context.Background()

	const n = 20
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			_, err := s.RecordMint(ctx, "alice", "cosmic")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	st, err := s.Status(ctx, "alice", "cosmic")
	require.NoError(t, err)
	assert.Equal(t, int64(n), st.Minted)
}

func TestStatus_IncludesWaitlist(t *testing.T) {
	s, _ := setupService(t, 1)
	ctx := context.Background()

	_, err := s.RecordMint(ctx, "alice", "cosmic")
	require.NoError(t, err)

	joined, err := s.JoinWaitlist(ctx, "alice", "cosmic", "wallet-9")
	require.NoError(t, err)
	assert.True(t, joined)

	// second join reports already joined
	joined, err = s.JoinWaitlist(ctx, "alice", "cosmic", "wallet-9")
	require.NoError(t, err)
	assert.False(t, joined)

	st, err := s.Status(ctx, "alice", "cosmic")
	require.NoError(t, err)
	assert.Equal(t, "alice-cosmic", st.Combination)
	assert.False(t, st.Available)
	assert.Equal(t, int64(1), st.Minted)
	assert.Equal(t, int64(1), st.Limit)
	assert.Equal(t, int64(1), st.Waitlisted)
}

func TestSeedFromFile_AppliedInOneTx(t *testing.T) {
	s, _ := setupService(t, 5)
	ctx := context.Background()

	path := filepath.Join(t.TempDir(), "quotas.yaml")
	seed := `- creator: alice
  category: cosmic
  limit: 10
- creator: bob
  category: urban
  limit: 3
`
	require.NoError(t, os.WriteFile(path, []byte(seed), 0o600))
	require.NoError(t, s.SeedFromFile(ctx, path))

	st, err := s.Status(ctx, "alice", "cosmic")
	require.NoError(t, err)
	assert.Equal(t, int64(10), st.Limit)

	st, err = s.Status(ctx, "bob", "urban")
	require.NoError(t, err)
	assert.Equal(t, int64(3), st.Limit)
}

func TestSeedFromFile_ValidationStopsBeforeWrite(t *testing.T) {
	s, _ := setupService(t, 5)
	ctx := context.Background()

	path := filepath.Join(t.TempDir(), "quotas.yaml")
	seed := `- creator: alice
  category: cosmic
  limit: 10
- creator: ""
  category: urban
  limit: 3
`
	require.NoError(t, os.WriteFile(path, []byte(seed), 0o600))

	err := s.SeedFromFile(ctx, path)
	require.ErrorIs(t, err, common.ErrValidation)

	// nothing was applied, alice still at fallback
	st, err := s.Status(ctx, "alice", "cosmic")
	require.NoError(t, err)
	assert.Equal(t, int64(5), st.Limit)
}

func TestSeedFromFile_MissingFile(t *testing.T) {
	s, _ := setupService(t, 5)

	err := s.SeedFromFile(context.Background(), filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

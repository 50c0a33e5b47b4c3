package waitlists

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "modernc.org/sqlite"
)

func setupDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	_, err = db.Exec(`
CREATE TABLE waitlist_entries (
  combination TEXT NOT NULL,
  requester TEXT NOT NULL,
  joined_at INTEGER NOT NULL,
  PRIMARY KEY (combination, requester)
);
`)
	require.NoError(t, err)

	return db
}

func TestJoin_IdempotentAndCount(t *testing.T) {
	db := setupDB(t)
	r := NewSQLiteRepository(db)
	ctx := context.Background()
	now := time.Date(2025, 4, 12, 10, 0, 0, 0, time.UTC)

	inserted, err := r.Join(ctx, "alice-cosmic", "wallet-1", now)
	require.NoError(t, err)
	assert.True(t, inserted)

	// повторный join не создаёт дубликата
	inserted, err = r.Join(ctx, "alice-cosmic", "wallet-1", now.Add(time.Hour))
	require.NoError(t, err)
	assert.False(t, inserted)

	inserted, err = r.Join(ctx, "alice-cosmic", "wallet-2", now)
	require.NoError(t, err)
	assert.True(t, inserted)

	n, err := r.Count(ctx, "alice-cosmic")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	n, err = r.Count(ctx, "bob-urban")
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

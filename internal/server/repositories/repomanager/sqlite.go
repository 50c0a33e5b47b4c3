// Package repomanager provides concrete RepositoryManagers per database
// dialect, wiring together repository constructors and schema migrations
// (via goose).
package repomanager

import (
	"context"
	"database/sql"

	"github.com/andrejs2008/evomint/internal/dbx"
	sqlitemigrations "github.com/andrejs2008/evomint/internal/server/migrations/sqlite"
	"github.com/andrejs2008/evomint/internal/server/repositories/counters"
	"github.com/andrejs2008/evomint/internal/server/repositories/credentials"
	"github.com/andrejs2008/evomint/internal/server/repositories/items"
	"github.com/andrejs2008/evomint/internal/server/repositories/waitlists"
	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"
)

// SqliteRepositoryManager vends SQLite-backed repository implementations
// and exposes a schema migration hook.
type SqliteRepositoryManager struct{}

// NewSqliteRepositoryManager constructs a SQLite-backed RepositoryManager.
func NewSqliteRepositoryManager() (RepositoryManager, error) {
	return &SqliteRepositoryManager{}, nil
}

// Items returns an items.Repository bound to the provided DBTX.
func (m *SqliteRepositoryManager) Items(db dbx.DBTX) items.Repository {
	return items.NewSQLiteRepository(db)
}

// Counters returns a counters.Repository bound to the provided DBTX.
func (m *SqliteRepositoryManager) Counters(db dbx.DBTX) counters.Repository {
	return counters.NewSQLiteRepository(db)
}

// Waitlists returns a waitlists.Repository bound to the provided DBTX.
func (m *SqliteRepositoryManager) Waitlists(db dbx.DBTX) waitlists.Repository {
	return waitlists.NewSQLiteRepository(db)
}

// Credentials returns a credentials.Repository bound to the provided DBTX.
func (m *SqliteRepositoryManager) Credentials(db dbx.DBTX) credentials.Repository {
	return credentials.NewSQLiteRepository(db)
}

// gooseUpContext is a seam for testing goose.UpContext.
var gooseUpContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
	return goose.UpContext(ctx, db, dir, opts...)
}

// RunMigrations sets up goose with the embedded SQLite migrations and runs
// them against the provided database connection.
func (m *SqliteRepositoryManager) RunMigrations(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(sqlitemigrations.Migrations)
	goose.SetDialect("sqlite3")
	if err := gooseUpContext(ctx, db, "."); err != nil {
		return err
	}
	return nil
}

package repomanager

import (
	"context"
	"database/sql"

	"github.com/andrejs2008/evomint/internal/dbx"
	postgresmigrations "github.com/andrejs2008/evomint/internal/server/migrations/postgres"
	"github.com/andrejs2008/evomint/internal/server/repositories/counters"
	"github.com/andrejs2008/evomint/internal/server/repositories/credentials"
	"github.com/andrejs2008/evomint/internal/server/repositories/items"
	"github.com/andrejs2008/evomint/internal/server/repositories/waitlists"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

// PostgresRepositoryManager vends PostgreSQL-backed repository
// implementations and exposes a schema migration hook.
type PostgresRepositoryManager struct{}

// NewPostgresRepositoryManager constructs a PostgreSQL-backed
// RepositoryManager.
func NewPostgresRepositoryManager() (RepositoryManager, error) {
	return &PostgresRepositoryManager{}, nil
}

// Items returns an items.Repository bound to the provided DBTX.
func (m *PostgresRepositoryManager) Items(db dbx.DBTX) items.Repository {
	return items.NewPostgresRepository(db)
}

// Counters returns a counters.Repository bound to the provided DBTX.
func (m *PostgresRepositoryManager) Counters(db dbx.DBTX) counters.Repository {
	return counters.NewPostgresRepository(db)
}

// Waitlists returns a waitlists.Repository bound to the provided DBTX.
func (m *PostgresRepositoryManager) Waitlists(db dbx.DBTX) waitlists.Repository {
	return waitlists.NewPostgresRepository(db)
}

// Credentials returns a credentials.Repository bound to the provided DBTX.
func (m *PostgresRepositoryManager) Credentials(db dbx.DBTX) credentials.Repository {
	return credentials.NewPostgresRepository(db)
}

// RunMigrations sets up goose with the embedded PostgreSQL migrations and
// runs them against the provided database connection.
func (m *PostgresRepositoryManager) RunMigrations(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(postgresmigrations.Migrations)
	goose.SetDialect("pgx")
	if err := gooseUpContext(ctx, db, "."); err != nil {
		return err
	}
	return nil
}

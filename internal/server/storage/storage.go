// Package storage opens the local database from a DSN and picks the
// matching repository manager. SQLite is the default backend; a
// postgres:// DSN switches to PostgreSQL.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/andrejs2008/evomint/internal/server/repositories/repomanager"
)

// Store bundles an open connection with the dialect's repository manager.
type Store struct {
	DB       *sql.DB
	Repos    repomanager.RepositoryManager
	IsSqlite bool
}

// Open connects to the database named by dsn, runs migrations and returns
// the store. DSNs starting with postgres:// or postgresql:// use pgx;
// anything else is treated as a SQLite path or URI.
func Open(ctx context.Context, dsn string) (*Store, error) {
	var (
		driver   string
		isSqlite bool
	)
	switch {
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"):
		driver = "pgx"
	default:
		driver = "sqlite"
		isSqlite = true
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open db: %w", err)
	}
	if isSqlite {
		// modernc sqlite needs a single writer connection
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping db: %w", err)
	}

	var repos repomanager.RepositoryManager
	if isSqlite {
		repos, err = repomanager.NewSqliteRepositoryManager()
	} else {
		repos, err = repomanager.NewPostgresRepositoryManager()
	}
	if err != nil {
		db.Close()
		return nil, err
	}

	if err := repos.RunMigrations(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &Store{DB: db, Repos: repos, IsSqlite: isSqlite}, nil
}

// Close releases the underlying connection.
func (s *Store) Close() error {
	return s.DB.Close()
}

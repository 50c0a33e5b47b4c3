package repomanager

import (
	"context"
	"database/sql"

	"github.com/andrejs2008/evomint/internal/dbx"
	"github.com/andrejs2008/evomint/internal/server/repositories/counters"
	"github.com/andrejs2008/evomint/internal/server/repositories/credentials"
	"github.com/andrejs2008/evomint/internal/server/repositories/items"
	"github.com/andrejs2008/evomint/internal/server/repositories/waitlists"
)

type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Items(db dbx.DBTX) items.Repository
	Counters(db dbx.DBTX) counters.Repository
	Waitlists(db dbx.DBTX) waitlists.Repository
	Credentials(db dbx.DBTX) credentials.Repository
}

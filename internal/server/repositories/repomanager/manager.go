package repomanager

import (
	"context"
	"database/sql"

	"github.com/passwords-you-take-anywhere/server/internal/dbx"
	"github.com/passwords-you-take-anywhere/server/internal/server/repositories/records"
	"github.com/passwords-you-take-anywhere/server/internal/server/repositories/sessions"
	"github.com/passwords-you-take-anywhere/server/internal/server/repositories/users"
)

type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Users(db dbx.DBTX) users.Repository
	Sessions(db dbx.DBTX) sessions.Repository
	Records(db dbx.DBTX) records.Repository
}

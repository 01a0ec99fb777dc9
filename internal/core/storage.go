package core

import (
	"context"
	"fmt"
	"os"

	"nodemapper/internal/blob"
	"nodemapper/internal/infra/session/blobsession"
	"nodemapper/internal/infra/session/memory"
	"nodemapper/internal/infra/session/postgres"
	"nodemapper/internal/infra/session/sqlite"
	"nodemapper/pkg/domain"
)

// SessionDriver identifies a repository session implementation.
type SessionDriver string

const (
	SessionMemory   SessionDriver = "memory"   // in-memory only (tests / ephemeral)
	SessionSQLite   SessionDriver = "sqlite"   // embedded sqlite file
	SessionPostgres SessionDriver = "postgres" // PostgreSQL server
	SessionBlob     SessionDriver = "blob"     // JSON objects in a blob store
)

// OpenSession selects a repository session using environment variables.
// Defaults to sqlite when unset.
//
//	NODEMAPPER_SESSION_DRIVER: memory|sqlite|postgres|blob (default sqlite)
//	NODEMAPPER_SQLITE_PATH: path to sqlite file (default ./nodemapper.db)
//	NODEMAPPER_POSTGRES_DSN: postgres DSN when driver=postgres
//	NODEMAPPER_BLOB_PREFIX: key prefix when driver=blob; the store itself is
//	  chosen by blob.Open (NODEMAPPER_BLOB_DRIVER and friends)
func OpenSession(ctx context.Context) (domain.RepositorySession, error) {
	driver := os.Getenv("NODEMAPPER_SESSION_DRIVER")
	if driver == "" {
		driver = string(SessionSQLite)
	}
	switch SessionDriver(driver) {
	case SessionMemory:
		return memory.NewSession(), nil
	case SessionSQLite:
		return sqlite.NewSession(ctx, os.Getenv("NODEMAPPER_SQLITE_PATH"))
	case SessionPostgres:
		return postgres.NewSession(ctx, os.Getenv("NODEMAPPER_POSTGRES_DSN"))
	case SessionBlob:
		store, err := blob.Open(ctx)
		if err != nil {
			return nil, err
		}
		return blobsession.New(store, os.Getenv("NODEMAPPER_BLOB_PREFIX")), nil
	default:
		return nil, fmt.Errorf("unknown session driver %s", driver)
	}
}

// Package postgres provides a repository session backed by a Postgres nodes
// table with JSONB properties.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver

	"nodemapper/internal/infra/session/sqlstore"
	"nodemapper/pkg/domain"
)

const (
	defaultDriver = "pgx"
	defaultDSN    = "postgres://localhost/nodemapper?sslmode=disable"
)

// Statements of the Postgres dialect.
const (
	SchemaNodes = `CREATE TABLE IF NOT EXISTS nodes (
		path TEXT PRIMARY KEY,
		parent TEXT NOT NULL,
		type TEXT NOT NULL DEFAULT '',
		properties JSONB NOT NULL
	)`
	SchemaParentIndex = `CREATE INDEX IF NOT EXISTS nodes_parent ON nodes(parent)`
	InsertRoot        = `INSERT INTO nodes(path,parent,type,properties) VALUES($1,$2,$3,$4) ON CONFLICT(path) DO NOTHING`
	SelectNode        = `SELECT type, properties FROM nodes WHERE path = $1`
	SelectExists      = `SELECT 1 FROM nodes WHERE path = $1`
	Upsert            = `INSERT INTO nodes(path,parent,type,properties) VALUES($1,$2,$3,$4) ON CONFLICT(path) DO UPDATE SET parent=EXCLUDED.parent, type=EXCLUDED.type, properties=EXCLUDED.properties`
	DeleteTree        = `DELETE FROM nodes WHERE path = $1 OR starts_with(path, $2)`
	ListTree          = `SELECT path FROM nodes WHERE path = $1 OR starts_with(path, $2)`
)

// Dialect is the Postgres rendition of the nodes table.
var Dialect = sqlstore.Dialect{
	Name:         "postgres",
	Schema:       []string{SchemaNodes, SchemaParentIndex},
	InsertRoot:   InsertRoot,
	SelectNode:   SelectNode,
	SelectExists: SelectExists,
	Upsert:       Upsert,
	DeleteTree:   DeleteTree,
	ListTree:     ListTree,
	TreeArgs: func(path string) []any {
		return []any{path, domain.DescendantPrefix(path)}
	},
}

var (
	sqlOpen = sql.Open
	openMu  sync.Mutex
)

// NewSession connects with dsn (falls back to a local default), applies the
// schema and ensures the root node exists.
func NewSession(ctx context.Context, dsn string) (*sqlstore.Session, error) {
	if dsn == "" {
		dsn = defaultDSN
	}
	openMu.Lock()
	db, err := sqlOpen(defaultDriver, dsn)
	openMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	s, err := sqlstore.Open(ctx, db, Dialect)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// OverrideSQLOpen swaps the sqlOpen function for tests and returns a restore function.
func OverrideSQLOpen(fn func(driverName, dataSourceName string) (*sql.DB, error)) func() {
	openMu.Lock()
	defer openMu.Unlock()
	prev := sqlOpen
	sqlOpen = fn
	return func() {
		openMu.Lock()
		defer openMu.Unlock()
		sqlOpen = prev
	}
}

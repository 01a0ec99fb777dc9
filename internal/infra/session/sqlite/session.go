// Package sqlite provides a repository session backed by a SQLite nodes table.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite" // pure go sqlite driver

	"nodemapper/internal/infra/session/sqlstore"
	"nodemapper/pkg/domain"
)

const defaultPath = "nodemapper.db"

// Dialect is the SQLite rendition of the nodes table.
var Dialect = sqlstore.Dialect{
	Name: "sqlite",
	Schema: []string{
		`CREATE TABLE IF NOT EXISTS nodes (
			path TEXT PRIMARY KEY,
			parent TEXT NOT NULL,
			type TEXT NOT NULL DEFAULT '',
			properties TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS nodes_parent ON nodes(parent)`,
	},
	InsertRoot:   `INSERT INTO nodes(path,parent,type,properties) VALUES(?,?,?,?) ON CONFLICT(path) DO NOTHING`,
	SelectNode:   `SELECT type, properties FROM nodes WHERE path = ?`,
	SelectExists: `SELECT 1 FROM nodes WHERE path = ?`,
	Upsert: `INSERT INTO nodes(path,parent,type,properties) VALUES(?,?,?,?)
		ON CONFLICT(path) DO UPDATE SET parent=excluded.parent, type=excluded.type, properties=excluded.properties`,
	DeleteTree: `DELETE FROM nodes WHERE path = ? OR (path >= ? AND path < ?)`,
	ListTree:   `SELECT path FROM nodes WHERE path = ? OR (path >= ? AND path < ?)`,
	TreeArgs:   treeArgs,
}

// treeArgs bounds the subtree of path as a half-open key range. '0' sorts
// directly after '/'.
func treeArgs(path string) []any {
	prefix := domain.DescendantPrefix(path)
	upper := prefix[:len(prefix)-1] + "0"
	return []any{path, prefix, upper}
}

// NewSession opens (or creates) the database file at path. An empty path uses
// nodemapper.db in the working directory.
func NewSession(ctx context.Context, path string) (*sqlstore.Session, error) {
	if path == "" {
		path = defaultPath
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil && !errors.Is(err, os.ErrExist) {
		return nil, fmt.Errorf("create dirs: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// SQLite allows one writer at a time.
	db.SetMaxOpenConns(1)
	s, err := sqlstore.Open(ctx, db, Dialect)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

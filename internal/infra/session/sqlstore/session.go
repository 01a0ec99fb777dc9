// Package sqlstore implements a repository session over a single SQL table of
// nodes. Driver specific SQL lives in a Dialect supplied by the sqlite and
// postgres packages.
package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"nodemapper/pkg/domain"
)

// Compile-time contract assertions.
var (
	_ domain.RepositorySession = (*Session)(nil)
	_ domain.NodeLister        = (*Session)(nil)
)

// Dialect carries the statements of one SQL driver. The nodes table has the
// columns path, parent, type and properties (a JSON object).
type Dialect struct {
	Name string
	// Schema statements run once on open.
	Schema []string
	// InsertRoot creates the root row if missing. Args: path, parent, type, properties.
	InsertRoot string
	// SelectNode returns type and properties. Args: path.
	SelectNode string
	// SelectExists returns one row when the node exists. Args: path.
	SelectExists string
	// Upsert inserts or replaces a node. Args: path, parent, type, properties.
	Upsert string
	// DeleteTree removes a node and its subtree. Args from TreeArgs.
	DeleteTree string
	// ListTree returns the paths of a node and its subtree. Args from TreeArgs.
	ListTree string
	// TreeArgs builds the arguments of DeleteTree and ListTree.
	TreeArgs func(path string) []any
}

// Session stores nodes in a SQL database.
type Session struct {
	db      *sql.DB
	dialect Dialect
}

// Open prepares the schema on db and returns a session over it.
func Open(ctx context.Context, db *sql.DB, dialect Dialect) (*Session, error) {
	for _, stmt := range dialect.Schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return nil, fmt.Errorf("%s schema: %w", dialect.Name, err)
		}
	}
	if _, err := db.ExecContext(ctx, dialect.InsertRoot, domain.RootPath, "", "", "{}"); err != nil {
		return nil, fmt.Errorf("%s root node: %w", dialect.Name, err)
	}
	return &Session{db: db, dialect: dialect}, nil
}

// DB exposes the underlying sql.DB for integration testing hooks.
func (s *Session) DB() *sql.DB { return s.db }

// Close closes the database.
func (s *Session) Close() error { return s.db.Close() }

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *Session) readNode(ctx context.Context, q queryer, path string) (domain.Node, bool, error) {
	var nodeType string
	var raw []byte
	err := q.QueryRowContext(ctx, s.dialect.SelectNode, path).Scan(&nodeType, &raw)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Node{}, false, nil
	}
	if err != nil {
		return domain.Node{}, false, fmt.Errorf("select node %s: %w", path, err)
	}
	props := domain.Properties{}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &props); err != nil {
			return domain.Node{}, false, fmt.Errorf("decode node %s: %w", path, err)
		}
	}
	return domain.Node{Path: path, Type: nodeType, Properties: props}, true, nil
}

func (s *Session) exists(ctx context.Context, q queryer, path string) (bool, error) {
	var one int
	err := q.QueryRowContext(ctx, s.dialect.SelectExists, path).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("select node %s: %w", path, err)
	}
	return true, nil
}

// ReadNode implements domain.RepositorySession.
func (s *Session) ReadNode(ctx context.Context, path string) (domain.Node, bool, error) {
	if err := domain.ValidatePath(path); err != nil {
		return domain.Node{}, false, err
	}
	return s.readNode(ctx, s.db, path)
}

// Exists implements domain.RepositorySession.
func (s *Session) Exists(ctx context.Context, path string) (bool, error) {
	if err := domain.ValidatePath(path); err != nil {
		return false, err
	}
	return s.exists(ctx, s.db, path)
}

// WriteNode implements domain.RepositorySession. The read, merge and upsert
// run in one transaction.
func (s *Session) WriteNode(ctx context.Context, path string, node domain.Node) (retPath string, retErr error) {
	if err := domain.ValidatePath(path); err != nil {
		return "", err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("begin tx: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	existing, found, err := s.readNode(ctx, tx, path)
	if err != nil {
		return "", err
	}
	parent := domain.ParentPath(path)
	if !found {
		ok, err := s.exists(ctx, tx, parent)
		if err != nil {
			return "", err
		}
		if !ok {
			return "", fmt.Errorf("write %s: %w", path, domain.ErrParentNotFound)
		}
		existing = domain.Node{Path: path}
	}
	merged := existing.Merge(node)
	payload, err := json.Marshal(merged.Properties)
	if err != nil {
		return "", fmt.Errorf("encode node %s: %w", path, err)
	}
	if path == domain.RootPath {
		parent = ""
	}
	if _, err := tx.ExecContext(ctx, s.dialect.Upsert, path, parent, merged.Type, string(payload)); err != nil {
		return "", fmt.Errorf("upsert node %s: %w", path, err)
	}
	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("commit: %w", err)
	}
	committed = true
	return path, nil
}

// DeleteNode implements domain.RepositorySession.
func (s *Session) DeleteNode(ctx context.Context, path string) error {
	if err := domain.ValidatePath(path); err != nil {
		return err
	}
	if path == domain.RootPath {
		return fmt.Errorf("delete %s: root node cannot be removed", path)
	}
	if _, err := s.db.ExecContext(ctx, s.dialect.DeleteTree, s.dialect.TreeArgs(path)...); err != nil {
		return fmt.Errorf("delete node %s: %w", path, err)
	}
	return nil
}

// ListDescendants implements domain.NodeLister.
func (s *Session) ListDescendants(ctx context.Context, root string) ([]string, error) {
	if err := domain.ValidatePath(root); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, s.dialect.ListTree, s.dialect.TreeArgs(root)...)
	if err != nil {
		return nil, fmt.Errorf("list nodes %s: %w", root, err)
	}
	defer func() { _ = rows.Close() }()
	var out []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, fmt.Errorf("scan node path: %w", err)
		}
		if domain.IsAncestor(root, p) {
			out = append(out, p)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate nodes: %w", err)
	}
	sort.Strings(out)
	return out, nil
}

// Package testutil provides a stub database understanding the statements of
// the postgres nodes session.
package testutil

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"
)

var stubSeq atomic.Uint64

// StubNode is one row of the stubbed nodes table.
type StubNode struct {
	Parent     string
	Type       string
	Properties string
}

// StubConn records statements and keeps the nodes table in memory.
type StubConn struct {
	mu         sync.Mutex
	Execs      []string
	Nodes      map[string]StubNode
	FailExec   bool
	FailPing   bool
	FailBegin  bool
	FailCommit bool
	FailQuery  bool
	RowsErr    error
}

// NewStubDB registers a sql.DB backed by an in-memory stub connection.
func NewStubDB() (*sql.DB, *StubConn) {
	conn := &StubConn{Nodes: make(map[string]StubNode)}
	name := fmt.Sprintf("stubpg%d", stubSeq.Add(1))
	sql.Register(name, &stubDriver{conn: conn})
	db, err := sql.Open(name, "stub")
	if err != nil {
		panic(err)
	}
	return db, conn
}

type stubDriver struct {
	conn *StubConn
}

func (d *stubDriver) Open(string) (driver.Conn, error) {
	return d.conn, nil
}

// Prepare implements driver.Conn.
func (c *StubConn) Prepare(string) (driver.Stmt, error) { return nil, fmt.Errorf("not implemented") }

// Close implements driver.Conn.
func (c *StubConn) Close() error { return nil }

// Begin implements driver.Conn.
func (c *StubConn) Begin() (driver.Tx, error) {
	return c.BeginTx(context.Background(), driver.TxOptions{})
}

// Ping implements driver.Pinger.
func (c *StubConn) Ping(_ context.Context) error {
	if c.FailPing {
		return fmt.Errorf("ping fail")
	}
	return nil
}

// BeginTx implements driver.ConnBeginTx.
func (c *StubConn) BeginTx(_ context.Context, _ driver.TxOptions) (driver.Tx, error) {
	if c.FailBegin {
		return nil, fmt.Errorf("begin fail")
	}
	return &stubTx{conn: c}, nil
}

// ExecContext implements driver.ExecerContext.
func (c *StubConn) ExecContext(_ context.Context, query string, args []driver.NamedValue) (driver.Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Execs = append(c.Execs, query)
	if c.FailExec {
		return nil, fmt.Errorf("exec fail")
	}
	up := normalize(query)
	switch {
	case strings.HasPrefix(up, "CREATE "):
		return driver.RowsAffected(0), nil
	case strings.HasPrefix(up, "INSERT INTO NODES"):
		if len(args) != 4 {
			return nil, fmt.Errorf("insert expects 4 args, got %d", len(args))
		}
		path := str(args[0])
		if _, exists := c.Nodes[path]; exists && strings.Contains(up, "DO NOTHING") {
			return driver.RowsAffected(0), nil
		}
		c.Nodes[path] = StubNode{Parent: str(args[1]), Type: str(args[2]), Properties: str(args[3])}
		return driver.RowsAffected(1), nil
	case strings.HasPrefix(up, "DELETE FROM NODES"):
		if len(args) != 2 {
			return nil, fmt.Errorf("delete expects 2 args, got %d", len(args))
		}
		var n int64
		for p := range c.Nodes {
			if matchesTree(p, str(args[0]), str(args[1])) {
				delete(c.Nodes, p)
				n++
			}
		}
		return driver.RowsAffected(n), nil
	}
	return nil, fmt.Errorf("unsupported statement: %s", query)
}

// QueryContext implements driver.QueryerContext.
func (c *StubConn) QueryContext(_ context.Context, query string, args []driver.NamedValue) (driver.Rows, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.FailQuery {
		return nil, fmt.Errorf("query fail")
	}
	up := normalize(query)
	switch {
	case strings.HasPrefix(up, "SELECT TYPE, PROPERTIES FROM NODES"):
		rows := &stubRows{cols: []string{"type", "properties"}, err: c.RowsErr}
		if n, ok := c.Nodes[str(args[0])]; ok {
			rows.rows = append(rows.rows, []driver.Value{n.Type, []byte(n.Properties)})
		}
		return rows, nil
	case strings.HasPrefix(up, "SELECT 1 FROM NODES"):
		rows := &stubRows{cols: []string{"?column?"}, err: c.RowsErr}
		if _, ok := c.Nodes[str(args[0])]; ok {
			rows.rows = append(rows.rows, []driver.Value{int64(1)})
		}
		return rows, nil
	case strings.HasPrefix(up, "SELECT PATH FROM NODES"):
		rows := &stubRows{cols: []string{"path"}, err: c.RowsErr}
		for p := range c.Nodes {
			if matchesTree(p, str(args[0]), str(args[1])) {
				rows.rows = append(rows.rows, []driver.Value{p})
			}
		}
		return rows, nil
	}
	return nil, fmt.Errorf("unsupported query: %s", query)
}

// Statements returns a copy of the recorded exec statements.
func (c *StubConn) Statements() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.Execs...)
}

func normalize(query string) string {
	return strings.ToUpper(strings.Join(strings.Fields(query), " "))
}

func matchesTree(p, path, prefix string) bool {
	return p == path || strings.HasPrefix(p, prefix)
}

func str(v driver.NamedValue) string {
	switch x := v.Value.(type) {
	case string:
		return x
	case []byte:
		return string(x)
	default:
		return fmt.Sprint(x)
	}
}

type stubTx struct {
	conn *StubConn
}

func (t *stubTx) Commit() error {
	if t.conn.FailCommit {
		return fmt.Errorf("commit fail")
	}
	return nil
}
func (t *stubTx) Rollback() error { return nil }

type stubRows struct {
	cols []string
	rows [][]driver.Value
	idx  int
	err  error
}

func (r *stubRows) Columns() []string { return r.cols }
func (r *stubRows) Close() error      { return nil }

func (r *stubRows) Next(dest []driver.Value) error {
	if r.idx >= len(r.rows) {
		if r.err != nil {
			return r.err
		}
		return io.EOF
	}
	copy(dest, r.rows[r.idx])
	r.idx++
	return nil
}

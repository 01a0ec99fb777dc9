package core

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"

	exprlang "github.com/expr-lang/expr"
	exprvm "github.com/expr-lang/expr/vm"

	"nodemapper/pkg/domain"
)

// ErrListingUnsupported is returned by queries over sessions that cannot
// enumerate a subtree.
var ErrListingUnsupported = errors.New("session cannot list nodes")

// NativeQuery filters the nodes below a root with an expr-lang expression.
//
// The expression sees the node's properties as top-level variables plus
// path, name, depth, type and props (the full property map). An empty
// expression matches every node.
//
//	query, _ := dm.CreateNativeQuery("/articles", `type == "article" && year >= 2020`)
type NativeQuery struct {
	session    domain.RepositorySession
	root       string
	expression string
	program    *exprvm.Program
}

func newNativeQuery(session domain.RepositorySession, root, expression string) (*NativeQuery, error) {
	if err := domain.ValidatePath(root); err != nil {
		return nil, err
	}
	q := &NativeQuery{session: session, root: root, expression: expression}
	if expression == "" {
		return q, nil
	}
	program, err := exprlang.Compile(expression,
		exprlang.Env(map[string]any{}),
		exprlang.AllowUndefinedVariables(),
		exprlang.AsBool(),
	)
	if err != nil {
		return nil, fmt.Errorf("compile query %q: %w", expression, err)
	}
	q.program = program
	return q, nil
}

// Root returns the path the query searches below.
func (q *NativeQuery) Root() string { return q.root }

// Expression returns the filter expression.
func (q *NativeQuery) Expression() string { return q.expression }

// Execute returns the matching nodes ordered by path.
func (q *NativeQuery) Execute(ctx context.Context) ([]domain.Node, error) {
	lister, ok := q.session.(domain.NodeLister)
	if !ok {
		return nil, ErrListingUnsupported
	}
	paths, err := lister.ListDescendants(ctx, q.root)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", q.root, err)
	}
	var out []domain.Node
	for _, p := range paths {
		node, found, err := q.session.ReadNode(ctx, p)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", p, err)
		}
		if !found {
			continue
		}
		match, err := q.matches(node)
		if err != nil {
			return nil, err
		}
		if match {
			out = append(out, node)
		}
	}
	return out, nil
}

func (q *NativeQuery) matches(node domain.Node) (bool, error) {
	if q.program == nil {
		return true, nil
	}
	env, err := queryEnv(node)
	if err != nil {
		return false, err
	}
	result, err := exprlang.Run(q.program, env)
	if err != nil {
		return false, fmt.Errorf("evaluate %q on %s: %w", q.expression, node.Path, err)
	}
	match, _ := result.(bool)
	return match, nil
}

func queryEnv(node domain.Node) (map[string]any, error) {
	props := make(map[string]any, len(node.Properties))
	for name, raw := range node.Properties {
		var v any
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, fmt.Errorf("decode %s.%s: %w", node.Path, name, err)
		}
		props[name] = v
	}
	env := make(map[string]any, len(props)+5)
	for k, v := range props {
		env[k] = v
	}
	env["path"] = node.Path
	env["name"] = domain.NodeName(node.Path)
	env["depth"] = domain.PathDepth(node.Path)
	env["type"] = node.Type
	env["props"] = props
	return env, nil
}

// Query is a NativeQuery whose results are hydrated into tracked documents of
// one type. Nodes of other node types are skipped.
type Query struct {
	native *NativeQuery
	uow    *UnitOfWork
	desc   *domain.TypeDescriptor
}

// Native returns the underlying node query.
func (q *Query) Native() *NativeQuery { return q.native }

// Execute returns the matching documents ordered by path.
func (q *Query) Execute(ctx context.Context) ([]any, error) {
	nodes, err := q.native.Execute(ctx)
	if err != nil {
		return nil, err
	}
	t := reflect.PointerTo(q.desc.Type)
	var out []any
	for _, node := range nodes {
		if node.Type != q.desc.NodeType {
			continue
		}
		doc, found, err := q.uow.Find(ctx, t, node.Path)
		if err != nil {
			return nil, err
		}
		if found {
			out = append(out, doc)
		}
	}
	return out, nil
}

// Package memory provides an in-memory repository session used for tests and
// ephemeral environments.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"nodemapper/pkg/domain"
)

// Compile-time contract assertions.
var (
	_ domain.RepositorySession = (*Session)(nil)
	_ domain.NodeLister        = (*Session)(nil)
)

// Session stores nodes in a map keyed by path. The root node always exists.
type Session struct {
	mu    sync.RWMutex
	nodes map[string]domain.Node
}

// NewSession returns a session holding only the root node.
func NewSession() *Session {
	return &Session{nodes: map[string]domain.Node{
		domain.RootPath: {Path: domain.RootPath, Properties: domain.Properties{}},
	}}
}

// ReadNode implements domain.RepositorySession.
func (s *Session) ReadNode(_ context.Context, path string) (domain.Node, bool, error) {
	if err := domain.ValidatePath(path); err != nil {
		return domain.Node{}, false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	node, ok := s.nodes[path]
	if !ok {
		return domain.Node{}, false, nil
	}
	return node.Clone(), true, nil
}

// WriteNode implements domain.RepositorySession.
func (s *Session) WriteNode(_ context.Context, path string, node domain.Node) (string, error) {
	if err := domain.ValidatePath(path); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.nodes[path]
	if !ok {
		if _, parent := s.nodes[domain.ParentPath(path)]; !parent {
			return "", fmt.Errorf("write %s: %w", path, domain.ErrParentNotFound)
		}
		existing = domain.Node{Path: path}
	}
	s.nodes[path] = existing.Merge(node)
	return path, nil
}

// DeleteNode implements domain.RepositorySession.
func (s *Session) DeleteNode(_ context.Context, path string) error {
	if err := domain.ValidatePath(path); err != nil {
		return err
	}
	if path == domain.RootPath {
		return fmt.Errorf("delete %s: root node cannot be removed", path)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.nodes, path)
	for p := range s.nodes {
		if domain.IsAncestor(path, p) {
			delete(s.nodes, p)
		}
	}
	return nil
}

// Exists implements domain.RepositorySession.
func (s *Session) Exists(_ context.Context, path string) (bool, error) {
	if err := domain.ValidatePath(path); err != nil {
		return false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.nodes[path]
	return ok, nil
}

// ListDescendants implements domain.NodeLister.
func (s *Session) ListDescendants(_ context.Context, root string) ([]string, error) {
	if err := domain.ValidatePath(root); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []string
	for p := range s.nodes {
		if domain.IsAncestor(root, p) {
			out = append(out, p)
		}
	}
	sort.Strings(out)
	return out, nil
}

// Len reports the number of stored nodes, the root included.
func (s *Session) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.nodes)
}

// Snapshot returns a deep copy of every stored node keyed by path.
func (s *Session) Snapshot() map[string]domain.Node {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]domain.Node, len(s.nodes))
	for p, n := range s.nodes {
		out[p] = n.Clone()
	}
	return out
}

// Package blobsession stores repository nodes as JSON objects in a blob store.
// The node at /a/b lives under the key <prefix>a/b/_node.json; the root under
// <prefix>_node.json.
package blobsession

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"

	"nodemapper/internal/blob"
	"nodemapper/pkg/domain"
)

// Compile-time contract assertions.
var (
	_ domain.RepositorySession = (*Session)(nil)
	_ domain.NodeLister        = (*Session)(nil)
)

const nodeObject = "_node.json"

type storedNode struct {
	Type       string            `json:"type,omitempty"`
	Properties domain.Properties `json:"properties"`
}

// Session maps nodes onto a blob.Store. Writes are serialized within the
// process; the store offers no cross-process isolation.
type Session struct {
	store  blob.Store
	prefix string
	mu     sync.Mutex
}

// New returns a session storing nodes below prefix. A non-empty prefix gets a
// trailing slash.
func New(store blob.Store, prefix string) *Session {
	prefix = strings.Trim(prefix, "/")
	if prefix != "" {
		prefix += "/"
	}
	return &Session{store: store, prefix: prefix}
}

// Store returns the underlying blob store.
func (s *Session) Store() blob.Store { return s.store }

func (s *Session) dirFor(path string) string {
	if path == domain.RootPath {
		return s.prefix
	}
	return s.prefix + strings.TrimPrefix(path, "/") + "/"
}

func (s *Session) keyFor(path string) string {
	return s.dirFor(path) + nodeObject
}

func (s *Session) pathFor(key string) (string, bool) {
	rel, ok := strings.CutPrefix(key, s.prefix)
	if !ok {
		return "", false
	}
	if rel == nodeObject {
		return domain.RootPath, true
	}
	dir, ok := strings.CutSuffix(rel, "/"+nodeObject)
	if !ok || dir == "" {
		return "", false
	}
	return "/" + dir, true
}

func (s *Session) read(ctx context.Context, path string) (domain.Node, bool, error) {
	_, rc, err := s.store.Get(ctx, s.keyFor(path))
	if errors.Is(err, blob.ErrNotFound) {
		if path == domain.RootPath {
			return domain.Node{Path: path, Properties: domain.Properties{}}, true, nil
		}
		return domain.Node{}, false, nil
	}
	if err != nil {
		return domain.Node{}, false, fmt.Errorf("get node %s: %w", path, err)
	}
	defer func() { _ = rc.Close() }()
	raw, err := io.ReadAll(rc)
	if err != nil {
		return domain.Node{}, false, fmt.Errorf("read node %s: %w", path, err)
	}
	var sn storedNode
	if err := json.Unmarshal(raw, &sn); err != nil {
		return domain.Node{}, false, fmt.Errorf("decode node %s: %w", path, err)
	}
	if sn.Properties == nil {
		sn.Properties = domain.Properties{}
	}
	return domain.Node{Path: path, Type: sn.Type, Properties: sn.Properties}, true, nil
}

func (s *Session) exists(ctx context.Context, path string) (bool, error) {
	if path == domain.RootPath {
		return true, nil
	}
	_, err := s.store.Head(ctx, s.keyFor(path))
	if errors.Is(err, blob.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("head node %s: %w", path, err)
	}
	return true, nil
}

// ReadNode implements domain.RepositorySession.
func (s *Session) ReadNode(ctx context.Context, path string) (domain.Node, bool, error) {
	if err := domain.ValidatePath(path); err != nil {
		return domain.Node{}, false, err
	}
	return s.read(ctx, path)
}

// Exists implements domain.RepositorySession.
func (s *Session) Exists(ctx context.Context, path string) (bool, error) {
	if err := domain.ValidatePath(path); err != nil {
		return false, err
	}
	return s.exists(ctx, path)
}

// WriteNode implements domain.RepositorySession.
func (s *Session) WriteNode(ctx context.Context, path string, node domain.Node) (string, error) {
	if err := domain.ValidatePath(path); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, found, err := s.read(ctx, path)
	if err != nil {
		return "", err
	}
	if !found {
		ok, err := s.exists(ctx, domain.ParentPath(path))
		if err != nil {
			return "", err
		}
		if !ok {
			return "", fmt.Errorf("write %s: %w", path, domain.ErrParentNotFound)
		}
		existing = domain.Node{Path: path}
	}
	merged := existing.Merge(node)
	payload, err := json.Marshal(storedNode{Type: merged.Type, Properties: merged.Properties})
	if err != nil {
		return "", fmt.Errorf("encode node %s: %w", path, err)
	}
	if _, err := s.store.Put(ctx, s.keyFor(path), bytes.NewReader(payload), blob.PutOptions{ContentType: "application/json"}); err != nil {
		return "", fmt.Errorf("put node %s: %w", path, err)
	}
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
	s.mu.Lock()
	defer s.mu.Unlock()
	infos, err := s.store.List(ctx, s.dirFor(path))
	if err != nil {
		return fmt.Errorf("list node %s: %w", path, err)
	}
	// Deepest objects first so a failure never orphans a subtree.
	sort.SliceStable(infos, func(i, j int) bool {
		return strings.Count(infos[i].Key, "/") > strings.Count(infos[j].Key, "/")
	})
	for _, info := range infos {
		if _, err := s.store.Delete(ctx, info.Key); err != nil {
			return fmt.Errorf("delete node object %s: %w", info.Key, err)
		}
	}
	return nil
}

// ListDescendants implements domain.NodeLister.
func (s *Session) ListDescendants(ctx context.Context, root string) ([]string, error) {
	if err := domain.ValidatePath(root); err != nil {
		return nil, err
	}
	infos, err := s.store.List(ctx, s.dirFor(root))
	if err != nil {
		return nil, fmt.Errorf("list node %s: %w", root, err)
	}
	var out []string
	for _, info := range infos {
		p, ok := s.pathFor(info.Key)
		if ok && domain.IsAncestor(root, p) {
			out = append(out, p)
		}
	}
	sort.Strings(out)
	return out, nil
}

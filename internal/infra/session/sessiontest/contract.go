// Package sessiontest holds the behavioural contract every repository session
// backend must satisfy.
package sessiontest

import (
	"context"
	"encoding/json"
	"errors"
	"reflect"
	"testing"

	"nodemapper/pkg/domain"
)

// Run exercises the session returned by open against the hierarchy rules.
// open is called once per subtest and must return an empty repository.
func Run(t *testing.T, open func(t *testing.T) domain.RepositorySession) {
	t.Helper()
	t.Run("root", func(t *testing.T) { testRoot(t, open(t)) })
	t.Run("write and read", func(t *testing.T) { testWriteRead(t, open(t)) })
	t.Run("merge", func(t *testing.T) { testMerge(t, open(t)) })
	t.Run("delete subtree", func(t *testing.T) { testDelete(t, open(t)) })
	t.Run("invalid paths", func(t *testing.T) { testInvalidPaths(t, open(t)) })
	t.Run("list", func(t *testing.T) { testList(t, open(t)) })
}

func write(t *testing.T, s domain.RepositorySession, path, nodeType string, props domain.Properties) {
	t.Helper()
	got, err := s.WriteNode(context.Background(), path, domain.Node{Path: path, Type: nodeType, Properties: props})
	if err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	if got != path {
		t.Fatalf("write %s returned %s", path, got)
	}
}

func testRoot(t *testing.T, s domain.RepositorySession) {
	ctx := context.Background()
	if ok, err := s.Exists(ctx, domain.RootPath); err != nil || !ok {
		t.Fatalf("root must exist: %v %v", ok, err)
	}
	if _, found, err := s.ReadNode(ctx, domain.RootPath); err != nil || !found {
		t.Fatalf("root must be readable: %v %v", found, err)
	}
	if err := s.DeleteNode(ctx, domain.RootPath); err == nil {
		t.Fatalf("deleting the root must fail")
	}
}

func testWriteRead(t *testing.T, s domain.RepositorySession) {
	ctx := context.Background()
	if _, err := s.WriteNode(ctx, "/missing/child", domain.Node{}); !errors.Is(err, domain.ErrParentNotFound) {
		t.Fatalf("expected ErrParentNotFound, got %v", err)
	}
	write(t, s, "/docs", "folder", domain.Properties{"title": []byte(`"Docs"`), "tags": []byte(`["a","b"]`)})
	node, found, err := s.ReadNode(ctx, "/docs")
	if err != nil || !found {
		t.Fatalf("read: %v %v", found, err)
	}
	if node.Path != "/docs" || node.Type != "folder" {
		t.Fatalf("unexpected node %+v", node)
	}
	want := map[string]any{"title": "Docs", "tags": []any{"a", "b"}}
	if got := decode(t, node.Properties); !reflect.DeepEqual(got, want) {
		t.Fatalf("properties = %v, want %v", got, want)
	}
	if _, found, err := s.ReadNode(ctx, "/nothing"); err != nil || found {
		t.Fatalf("missing node: %v %v", found, err)
	}
	if ok, err := s.Exists(ctx, "/docs"); err != nil || !ok {
		t.Fatalf("exists: %v %v", ok, err)
	}
}

func testMerge(t *testing.T, s domain.RepositorySession) {
	ctx := context.Background()
	write(t, s, "/doc", "article", domain.Properties{"title": []byte(`"Old"`), "year": []byte(`2020`)})
	write(t, s, "/doc", "", domain.Properties{"title": []byte(`"New"`), "year": []byte(`null`), "draft": []byte(`true`)})
	node, _, err := s.ReadNode(ctx, "/doc")
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if node.Type != "article" {
		t.Fatalf("empty type must keep the stored one, got %q", node.Type)
	}
	want := map[string]any{"title": "New", "draft": true}
	if got := decode(t, node.Properties); !reflect.DeepEqual(got, want) {
		t.Fatalf("properties = %v, want %v", got, want)
	}
}

func testDelete(t *testing.T, s domain.RepositorySession) {
	ctx := context.Background()
	for _, p := range []string{"/a", "/a/b", "/a/b/c", "/a/B", "/ab"} {
		write(t, s, p, "folder", nil)
	}
	if err := s.DeleteNode(ctx, "/a"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	for _, p := range []string{"/a", "/a/b", "/a/b/c", "/a/B"} {
		if ok, _ := s.Exists(ctx, p); ok {
			t.Fatalf("%s survived the delete", p)
		}
	}
	if ok, _ := s.Exists(ctx, "/ab"); !ok {
		t.Fatalf("sibling sharing a name prefix was deleted")
	}
	if err := s.DeleteNode(ctx, "/a"); err != nil {
		t.Fatalf("deleting a missing node must succeed: %v", err)
	}
}

func testInvalidPaths(t *testing.T, s domain.RepositorySession) {
	ctx := context.Background()
	for _, p := range []string{"", "rel", "/trailing/", "/a//b", "/a/../b"} {
		if _, _, err := s.ReadNode(ctx, p); !errors.Is(err, domain.ErrInvalidPath) {
			t.Fatalf("read %q: %v", p, err)
		}
		if _, err := s.WriteNode(ctx, p, domain.Node{}); !errors.Is(err, domain.ErrInvalidPath) {
			t.Fatalf("write %q: %v", p, err)
		}
		if err := s.DeleteNode(ctx, p); !errors.Is(err, domain.ErrInvalidPath) {
			t.Fatalf("delete %q: %v", p, err)
		}
		if _, err := s.Exists(ctx, p); !errors.Is(err, domain.ErrInvalidPath) {
			t.Fatalf("exists %q: %v", p, err)
		}
	}
}

func testList(t *testing.T, s domain.RepositorySession) {
	lister, ok := s.(domain.NodeLister)
	if !ok {
		t.Skip("session cannot list nodes")
	}
	ctx := context.Background()
	for _, p := range []string{"/x", "/x/b", "/x/a", "/x/a/deep", "/x-y", "/xz"} {
		write(t, s, p, "", nil)
	}
	got, err := lister.ListDescendants(ctx, "/x")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	want := []string{"/x/a", "/x/a/deep", "/x/b"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("list /x = %v, want %v", got, want)
	}
	all, err := lister.ListDescendants(ctx, domain.RootPath)
	if err != nil {
		t.Fatalf("list root: %v", err)
	}
	wantAll := []string{"/x", "/x-y", "/x/a", "/x/a/deep", "/x/b", "/xz"}
	if !reflect.DeepEqual(all, wantAll) {
		t.Fatalf("list / = %v, want %v", all, wantAll)
	}
}

func decode(t *testing.T, props domain.Properties) map[string]any {
	t.Helper()
	out := make(map[string]any, len(props))
	for k, raw := range props {
		var v any
		if err := json.Unmarshal(raw, &v); err != nil {
			t.Fatalf("decode %s: %v", k, err)
		}
		out[k] = v
	}
	return out
}

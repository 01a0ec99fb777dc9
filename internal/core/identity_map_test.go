package core

import (
	"errors"
	"testing"

	"nodemapper/pkg/domain"
)

func TestIdentityMapRegisterAndLookup(t *testing.T) {
	m := newIdentityMap()
	a := &trackedEntity{doc: &folder{}}
	if err := m.Register("/a", a); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := m.Register("/a", a); err != nil {
		t.Fatalf("re-register same entity: %v", err)
	}
	var dup domain.DuplicateIdentityError
	if err := m.Register("/a", &trackedEntity{doc: &folder{}}); !errors.As(err, &dup) {
		t.Fatalf("expected DuplicateIdentityError, got %v", err)
	}
	if got, ok := m.Lookup("/a"); !ok || got != a {
		t.Fatalf("lookup returned %v %v", got, ok)
	}
	if got, ok := m.ByDocument(a.doc); !ok || got != a {
		t.Fatalf("by document returned %v %v", got, ok)
	}
	if a.currentPath() != "/a" || m.Len() != 1 {
		t.Fatalf("unexpected state path=%q len=%d", a.currentPath(), m.Len())
	}
}

func TestIdentityMapRebindAndDescendants(t *testing.T) {
	m := newIdentityMap()
	root := &trackedEntity{doc: &folder{}}
	child := &trackedEntity{doc: &folder{}}
	other := &trackedEntity{doc: &folder{}}
	_ = m.Register("/a", root)
	_ = m.Register("/a/b", child)
	_ = m.Register("/ab", other)

	got := m.Descendants("/a")
	if len(got) != 1 || got[0] != child {
		t.Fatalf("descendants = %v", got)
	}

	if _, err := m.Rebind(child, "/ab"); !errors.As(err, new(domain.DuplicateIdentityError)) {
		t.Fatalf("expected DuplicateIdentityError, got %v", err)
	}
	if _, err := m.Rebind(child, "/a/c"); err != nil {
		t.Fatalf("rebind: %v", err)
	}
	if _, ok := m.Lookup("/a/b"); ok {
		t.Fatalf("old path still bound")
	}
	if e, ok := m.Lookup("/a/c"); !ok || e != child {
		t.Fatalf("new path not bound")
	}
}

func TestIdentityMapRebindMovesSubtree(t *testing.T) {
	m := newIdentityMap()
	parent := &trackedEntity{doc: &folder{}}
	child := &trackedEntity{doc: &folder{}}
	grandchild := &trackedEntity{doc: &folder{}}
	sibling := &trackedEntity{doc: &folder{}}
	_ = m.Register("/draft", parent)
	_ = m.Register("/draft/a", child)
	_ = m.Register("/draft/a/b", grandchild)
	_ = m.Register("/drafts", sibling)

	moved, err := m.Rebind(parent, "/final")
	if err != nil {
		t.Fatalf("rebind: %v", err)
	}
	if len(moved) != 2 {
		t.Fatalf("moved = %d entities", len(moved))
	}
	for path, want := range map[string]*trackedEntity{
		"/final": parent, "/final/a": child, "/final/a/b": grandchild, "/drafts": sibling,
	} {
		if e, ok := m.Lookup(path); !ok || e != want {
			t.Fatalf("%s not bound to the expected entity", path)
		}
	}
	if _, ok := m.Lookup("/draft/a"); ok {
		t.Fatalf("old child path still bound")
	}

	blocker := &trackedEntity{doc: &folder{}}
	_ = m.Register("/taken/a", blocker)
	if _, err := m.Rebind(parent, "/taken"); !errors.As(err, new(domain.DuplicateIdentityError)) {
		t.Fatalf("expected DuplicateIdentityError, got %v", err)
	}
	if child.currentPath() != "/final/a" {
		t.Fatalf("failed rebind must leave paths untouched, got %s", child.currentPath())
	}
}

func TestIdentityMapUnregisterAndReset(t *testing.T) {
	m := newIdentityMap()
	a := &trackedEntity{doc: &folder{}}
	b := &trackedEntity{doc: &folder{}}
	_ = m.Register("/a", a)
	_ = m.Register("/b", b)
	m.Unregister("/a")
	m.Unregister("/missing")
	if _, ok := m.ByDocument(a.doc); ok {
		t.Fatalf("unregistered document still bound")
	}
	if got := m.Entities(); len(got) != 1 || got[0] != b {
		t.Fatalf("entities = %v", got)
	}
	held := m.Reset()
	if len(held) != 1 || held[0] != b || m.Len() != 0 {
		t.Fatalf("reset returned %v, len %d", held, m.Len())
	}
}

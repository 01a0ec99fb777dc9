package core

import (
	"context"
	"errors"
	"testing"

	"nodemapper/internal/infra/session/memory"
	"nodemapper/pkg/domain"
)

// unlistedSession hides the lister of the wrapped session.
type unlistedSession struct {
	domain.RepositorySession
}

func seedArticles(t *testing.T) *memory.Session {
	t.Helper()
	session := memory.NewSession()
	seed(t, session, "/blog", "folder", map[string]string{"title": `"Blog"`})
	seed(t, session, "/blog/one", "article", map[string]string{"title": `"One"`, "year": "2019"})
	seed(t, session, "/blog/two", "article", map[string]string{"title": `"Two"`, "year": "2023"})
	seed(t, session, "/blog/two/notes", "article", map[string]string{"title": `"Notes"`, "year": "2024"})
	return session
}

func TestNativeQueryFiltersWithExpressions(t *testing.T) {
	ctx := context.Background()
	dm := NewDocumentManager(seedArticles(t))

	cases := []struct {
		expr string
		want []string
	}{
		{"", []string{"/blog/one", "/blog/two", "/blog/two/notes"}},
		{`year >= 2020`, []string{"/blog/two", "/blog/two/notes"}},
		{`depth == 2 && type == "article"`, []string{"/blog/one", "/blog/two"}},
		{`name startsWith "t"`, []string{"/blog/two"}},
		{`props.title == "Notes"`, []string{"/blog/two/notes"}},
		{`missing == nil && year < 2020`, []string{"/blog/one"}},
	}
	for _, tc := range cases {
		q, err := dm.CreateNativeQuery("/blog", tc.expr)
		if err != nil {
			t.Fatalf("compile %q: %v", tc.expr, err)
		}
		if q.Root() != "/blog" || q.Expression() != tc.expr {
			t.Fatalf("accessors lost the query definition")
		}
		nodes, err := q.Execute(ctx)
		if err != nil {
			t.Fatalf("execute %q: %v", tc.expr, err)
		}
		got := make([]string, len(nodes))
		for i, n := range nodes {
			got[i] = n.Path
		}
		if len(got) != len(tc.want) {
			t.Fatalf("%q: got %v, want %v", tc.expr, got, tc.want)
		}
		for i := range got {
			if got[i] != tc.want[i] {
				t.Fatalf("%q: got %v, want %v", tc.expr, got, tc.want)
			}
		}
	}
}

func TestQueryHydratesTrackedDocuments(t *testing.T) {
	ctx := context.Background()
	dm := NewDocumentManager(seedArticles(t))
	existing, _, err := dm.Find(ctx, articleType, "/blog/two")
	if err != nil {
		t.Fatalf("find: %v", err)
	}

	q, err := dm.CreateQuery(articleType, "/", `type == "article" && year > 2020`)
	if err != nil {
		t.Fatalf("create query: %v", err)
	}
	if q.Native().Root() != "/" {
		t.Fatalf("native root = %q", q.Native().Root())
	}
	docs, err := q.Execute(ctx)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if len(docs) != 2 || docs[0] != existing || docs[1].(*article).Title != "Notes" {
		t.Fatalf("unexpected documents %+v", docs)
	}
}

func TestQueryErrors(t *testing.T) {
	ctx := context.Background()
	session := seedArticles(t)
	dm := NewDocumentManager(session)
	if _, err := dm.CreateNativeQuery("/blog", "year >"); err == nil {
		t.Fatalf("expected a compile error")
	}
	if _, err := dm.CreateNativeQuery("blog", ""); !errors.Is(err, domain.ErrInvalidPath) {
		t.Fatalf("expected ErrInvalidPath, got %v", err)
	}
	if _, err := dm.CreateQuery(nil, "/", ""); !errors.Is(err, domain.ErrNotDocument) {
		t.Fatalf("expected ErrNotDocument, got %v", err)
	}

	broken := memory.NewSession()
	seed(t, broken, "/bad", "article", map[string]string{"title": "not json"})
	q, err := NewDocumentManager(broken).CreateNativeQuery("/", "title != nil")
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	if _, err := q.Execute(ctx); err == nil {
		t.Fatalf("expected a decode error")
	}

	unlisted := NewDocumentManager(unlistedSession{session})
	q, err = unlisted.CreateNativeQuery("/blog", "")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := q.Execute(ctx); !errors.Is(err, ErrListingUnsupported) {
		t.Fatalf("expected ErrListingUnsupported, got %v", err)
	}
}

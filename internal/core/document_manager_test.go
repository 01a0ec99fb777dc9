package core

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"

	"nodemapper/internal/infra/session/memory"
	"nodemapper/pkg/domain"
)

// catalogEntry selects the "catalog" repository.
type catalogEntry struct {
	Path string `odm:",path"`
	SKU  string `odm:"sku"`
}

func (*catalogEntry) RepositoryName() string { return "catalog" }

type catalogRepository struct {
	*DocumentRepository
}

func TestDocumentManagerPersistUnderGeneratesNames(t *testing.T) {
	ctx := context.Background()
	dm := NewDocumentManager(memory.NewSession())
	if err := dm.Persist(ctx, &folder{Title: "Docs"}, "/docs"); err != nil {
		t.Fatalf("persist: %v", err)
	}
	doc := &article{Title: "Hello"}
	path, err := dm.PersistUnder(ctx, doc, "/docs")
	if err != nil {
		t.Fatalf("persist under: %v", err)
	}
	if !strings.HasPrefix(path, "/docs/") || len(domain.NodeName(path)) != 36 {
		t.Fatalf("unexpected generated path %q", path)
	}
	if _, err := dm.PersistUnder(ctx, &article{}, "docs"); !errors.Is(err, domain.ErrInvalidPath) {
		t.Fatalf("expected ErrInvalidPath, got %v", err)
	}
	if err := dm.Flush(ctx); err != nil {
		t.Fatalf("flush: %v", err)
	}
	if !dm.Contains(doc) || doc.Path != path {
		t.Fatalf("document not managed at %s", path)
	}

	got, found, err := Find[article](ctx, dm, path)
	if err != nil || !found || got != doc {
		t.Fatalf("typed find: %v %v %v", got, found, err)
	}
	if _, found, err := Find[article](ctx, dm, "/docs/none"); err != nil || found {
		t.Fatalf("typed find of missing node: %v %v", found, err)
	}
}

func TestDocumentManagerTypedReference(t *testing.T) {
	ctx := context.Background()
	session := memory.NewSession()
	seed(t, session, "/alice", "author", map[string]string{"name": `"Alice"`})
	dm := NewDocumentManager(session)

	ref, err := GetReference[author](ctx, dm, "/alice")
	if err != nil {
		t.Fatalf("reference: %v", err)
	}
	if ref.IsLoaded() {
		t.Fatalf("expected a placeholder")
	}
	if err := ref.Load(ctx); err != nil || ref.Name != "Alice" {
		t.Fatalf("load: %v %+v", err, ref)
	}
	if err := dm.Remove(ctx, ref); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if err := dm.Flush(ctx); err != nil {
		t.Fatalf("flush: %v", err)
	}
	if found, _ := session.Exists(ctx, "/alice"); found {
		t.Fatalf("node not deleted")
	}
}

func TestDocumentManagerRepositories(t *testing.T) {
	ctx := context.Background()
	session := memory.NewSession()
	seed(t, session, "/docs", "folder", nil)
	seed(t, session, "/docs/a", "article", map[string]string{"title": `"A"`})
	seed(t, session, "/docs/b", "article", map[string]string{"title": `"B"`})
	seed(t, session, "/docs/sub", "folder", nil)
	dm := NewDocumentManager(session)

	repo, err := RepositoryOf[article](dm)
	if err != nil {
		t.Fatalf("repository: %v", err)
	}
	again, _ := dm.Repository(articleType)
	if repo != again {
		t.Fatalf("repositories must be cached per type")
	}
	if repo.Descriptor().NodeType != "article" {
		t.Fatalf("descriptor = %+v", repo.Descriptor())
	}

	all, err := repo.FindAll(ctx, "/docs")
	if err != nil || len(all) != 2 {
		t.Fatalf("find all: %v %v", all, err)
	}
	if all[0].(*article).Title != "A" || all[1].(*article).Title != "B" {
		t.Fatalf("unexpected order %+v %+v", all[0], all[1])
	}
	many, err := repo.FindMany(ctx, []string{"/docs/b", "/docs/missing"})
	if err != nil || len(many) != 1 || many[0] != all[1] {
		t.Fatalf("find many: %v %v", many, err)
	}
	doc, found, err := repo.Find(ctx, "/docs/a")
	if err != nil || !found || doc != all[0] {
		t.Fatalf("find: %v %v", found, err)
	}
	doc.(*article).Title = "changed"
	if err := repo.Refresh(ctx, doc); err != nil || doc.(*article).Title != "A" {
		t.Fatalf("refresh: %v %+v", err, doc)
	}
}

func TestDocumentManagerCustomRepository(t *testing.T) {
	dm := NewDocumentManager(memory.NewSession())
	if _, err := RepositoryOf[catalogEntry](dm); err == nil {
		t.Fatalf("expected an error for an unregistered repository")
	}

	var built int
	dm.RegisterRepository("catalog", func(dm *DocumentManager, desc *domain.TypeDescriptor) Repository {
		built++
		return catalogRepository{NewDocumentRepository(dm, desc)}
	})
	repo, err := RepositoryOf[catalogEntry](dm)
	if err != nil {
		t.Fatalf("repository: %v", err)
	}
	if _, ok := repo.(catalogRepository); !ok {
		t.Fatalf("expected the custom repository, got %T", repo)
	}
	_, _ = RepositoryOf[catalogEntry](dm)
	if built != 1 {
		t.Fatalf("factory ran %d times", built)
	}

	other := NewDocumentManager(memory.NewSession())
	other.RegisterRepository("catalog", func(*DocumentManager, *domain.TypeDescriptor) Repository { return nil })
	if _, err := RepositoryOf[catalogEntry](other); err == nil {
		t.Fatalf("expected an error for a nil repository")
	}
	other.RegisterRepository("catalog", nil)
	if _, err := other.Repository(reflect.TypeOf(&catalogEntry{})); err == nil || !strings.Contains(err.Error(), "not registered") {
		t.Fatalf("expected unregistered error, got %v", err)
	}
}

func TestDocumentManagerAccessorsAndClear(t *testing.T) {
	ctx := context.Background()
	session := memory.NewSession()
	dm := NewDocumentManager(session)
	if dm.Session() != session || dm.UnitOfWork().Session() != session {
		t.Fatalf("session accessors disagree")
	}
	if dm.Metadata() == nil || dm.Events() == nil {
		t.Fatalf("default collaborators missing")
	}
	doc := &folder{}
	_ = dm.Persist(ctx, doc, "/x")
	if err := dm.Detach(doc); err != nil {
		t.Fatalf("detach: %v", err)
	}
	_ = dm.Persist(ctx, &folder{}, "/y")
	dm.Clear()
	if err := dm.Flush(ctx); err != nil {
		t.Fatalf("flush: %v", err)
	}
	if session.Len() != 1 {
		t.Fatalf("cleared work reached the session")
	}
	if _, err := dm.GetReference(ctx, folderType, "/"); err != nil {
		t.Fatalf("reference to root: %v", err)
	}
}

package core

import (
	"context"
	"fmt"
	"reflect"
	"sync"

	"github.com/google/uuid"

	"nodemapper/pkg/domain"
)

// DocumentManager is the entry point for applications. It delegates document
// tracking to its UnitOfWork and adds repositories and queries on top.
type DocumentManager struct {
	uow *UnitOfWork

	mu        sync.Mutex
	factories map[string]RepositoryFactory
	repos     map[reflect.Type]Repository
}

// NewDocumentManager constructs a manager over session.
func NewDocumentManager(session domain.RepositorySession, opts ...Option) *DocumentManager {
	return &DocumentManager{
		uow:       NewUnitOfWork(session, opts...),
		factories: make(map[string]RepositoryFactory),
		repos:     make(map[reflect.Type]Repository),
	}
}

// UnitOfWork returns the manager's unit of work.
func (dm *DocumentManager) UnitOfWork() *UnitOfWork { return dm.uow }

// Session returns the repository session.
func (dm *DocumentManager) Session() domain.RepositorySession { return dm.uow.session }

// Metadata returns the metadata provider.
func (dm *DocumentManager) Metadata() domain.MetadataProvider { return dm.uow.opts.metadata }

// Events returns the event bus.
func (dm *DocumentManager) Events() domain.EventBus { return dm.uow.opts.events }

// Find returns the document of type t at path.
func (dm *DocumentManager) Find(ctx context.Context, t reflect.Type, path string) (any, bool, error) {
	return dm.uow.Find(ctx, t, path)
}

// GetReference returns the tracked document at path or a lazy placeholder.
func (dm *DocumentManager) GetReference(ctx context.Context, t reflect.Type, path string) (any, error) {
	return dm.uow.GetReference(ctx, t, path)
}

// Persist schedules doc for insertion at path.
func (dm *DocumentManager) Persist(ctx context.Context, doc any, path string) error {
	return dm.uow.Persist(ctx, doc, path)
}

// PersistUnder schedules doc for insertion as a child of parent with a
// generated name and returns the chosen path.
func (dm *DocumentManager) PersistUnder(ctx context.Context, doc any, parent string) (string, error) {
	if err := domain.ValidatePath(parent); err != nil {
		return "", err
	}
	path := domain.JoinPath(parent, uuid.NewString())
	if err := dm.uow.Persist(ctx, doc, path); err != nil {
		return "", err
	}
	return path, nil
}

// Remove schedules doc for deletion.
func (dm *DocumentManager) Remove(ctx context.Context, doc any) error {
	return dm.uow.Remove(ctx, doc)
}

// Refresh re-reads doc from the repository.
func (dm *DocumentManager) Refresh(ctx context.Context, doc any) error {
	return dm.uow.Refresh(ctx, doc)
}

// Flush commits pending changes.
func (dm *DocumentManager) Flush(ctx context.Context) error {
	return dm.uow.Flush(ctx)
}

// Contains reports whether doc is tracked and not removed.
func (dm *DocumentManager) Contains(doc any) bool {
	return dm.uow.Contains(doc)
}

// Detach stops tracking doc.
func (dm *DocumentManager) Detach(doc any) error {
	return dm.uow.Detach(doc)
}

// Clear detaches every document.
func (dm *DocumentManager) Clear() {
	dm.uow.Clear()
}

// RegisterRepository makes factory available to document types whose
// RepositoryName is name. Registering a name twice replaces the factory for
// repositories not built yet.
func (dm *DocumentManager) RegisterRepository(name string, factory RepositoryFactory) {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	if factory == nil {
		delete(dm.factories, name)
		return
	}
	dm.factories[name] = factory
}

// Repository returns the repository of type t, building it on first use.
func (dm *DocumentManager) Repository(t reflect.Type) (Repository, error) {
	desc, err := dm.Metadata().Describe(t)
	if err != nil {
		return nil, err
	}
	dm.mu.Lock()
	defer dm.mu.Unlock()
	if repo, ok := dm.repos[desc.Type]; ok {
		return repo, nil
	}
	var repo Repository
	if desc.RepositoryName == "" {
		repo = NewDocumentRepository(dm, desc)
	} else {
		factory, ok := dm.factories[desc.RepositoryName]
		if !ok {
			return nil, fmt.Errorf("repository %q for %s is not registered", desc.RepositoryName, desc.Type)
		}
		repo = factory(dm, desc)
		if repo == nil {
			return nil, fmt.Errorf("repository factory %q returned nil", desc.RepositoryName)
		}
	}
	dm.repos[desc.Type] = repo
	return repo, nil
}

// CreateQuery builds a query returning documents of type t below root.
func (dm *DocumentManager) CreateQuery(t reflect.Type, root, expression string) (*Query, error) {
	desc, err := dm.Metadata().Describe(t)
	if err != nil {
		return nil, err
	}
	native, err := newNativeQuery(dm.uow.session, root, expression)
	if err != nil {
		return nil, err
	}
	return &Query{native: native, uow: dm.uow, desc: desc}, nil
}

// CreateNativeQuery builds a query returning raw nodes below root.
func (dm *DocumentManager) CreateNativeQuery(root, expression string) (*NativeQuery, error) {
	return newNativeQuery(dm.uow.session, root, expression)
}

// Find is the typed form of DocumentManager.Find.
func Find[T any](ctx context.Context, dm *DocumentManager, path string) (*T, bool, error) {
	doc, found, err := dm.Find(ctx, reflect.TypeFor[T](), path)
	if err != nil || !found {
		return nil, found, err
	}
	return doc.(*T), true, nil
}

// GetReference is the typed form of DocumentManager.GetReference.
func GetReference[T any](ctx context.Context, dm *DocumentManager, path string) (*T, error) {
	doc, err := dm.GetReference(ctx, reflect.TypeFor[T](), path)
	if err != nil {
		return nil, err
	}
	return doc.(*T), nil
}

// RepositoryOf is the typed form of DocumentManager.Repository.
func RepositoryOf[T any](dm *DocumentManager) (Repository, error) {
	return dm.Repository(reflect.TypeFor[T]())
}

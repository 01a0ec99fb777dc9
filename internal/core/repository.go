package core

import (
	"context"
	"reflect"

	"nodemapper/pkg/domain"
)

// Repository gives typed access to the documents of one type.
type Repository interface {
	// Find returns the document at path; found is false when no node exists.
	Find(ctx context.Context, path string) (doc any, found bool, err error)
	// FindMany returns the documents at the given paths, skipping missing ones.
	FindMany(ctx context.Context, paths []string) ([]any, error)
	// FindAll returns every document of the repository's type below root.
	FindAll(ctx context.Context, root string) ([]any, error)
	// Refresh re-reads a managed document.
	Refresh(ctx context.Context, doc any) error
	// Descriptor returns the mapping of the repository's type.
	Descriptor() *domain.TypeDescriptor
}

// RepositoryFactory builds a custom repository for a descriptor whose
// RepositoryName matches the name it was registered under.
type RepositoryFactory func(dm *DocumentManager, desc *domain.TypeDescriptor) Repository

// DocumentRepository is the default Repository.
type DocumentRepository struct {
	dm   *DocumentManager
	desc *domain.TypeDescriptor
}

var _ Repository = (*DocumentRepository)(nil)

// NewDocumentRepository returns the default repository for desc.
func NewDocumentRepository(dm *DocumentManager, desc *domain.TypeDescriptor) *DocumentRepository {
	return &DocumentRepository{dm: dm, desc: desc}
}

func (r *DocumentRepository) docType() reflect.Type {
	return reflect.PointerTo(r.desc.Type)
}

// Find implements Repository.
func (r *DocumentRepository) Find(ctx context.Context, path string) (any, bool, error) {
	return r.dm.Find(ctx, r.docType(), path)
}

// FindMany implements Repository.
func (r *DocumentRepository) FindMany(ctx context.Context, paths []string) ([]any, error) {
	out := make([]any, 0, len(paths))
	for _, p := range paths {
		doc, found, err := r.Find(ctx, p)
		if err != nil {
			return nil, err
		}
		if found {
			out = append(out, doc)
		}
	}
	return out, nil
}

// FindAll implements Repository.
func (r *DocumentRepository) FindAll(ctx context.Context, root string) ([]any, error) {
	q, err := r.dm.CreateQuery(r.docType(), root, "")
	if err != nil {
		return nil, err
	}
	return q.Execute(ctx)
}

// Refresh implements Repository.
func (r *DocumentRepository) Refresh(ctx context.Context, doc any) error {
	return r.dm.Refresh(ctx, doc)
}

// Descriptor implements Repository.
func (r *DocumentRepository) Descriptor() *domain.TypeDescriptor {
	return r.desc
}

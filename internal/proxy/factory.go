// Package proxy builds lazy placeholder documents.
package proxy

import (
	"fmt"
	"reflect"

	"nodemapper/internal/mapping"
	"nodemapper/pkg/domain"
)

// Factory is the default domain.ProxyFactory. Placeholders are fresh zero
// instances of the document type with their path field set and the loader
// bound through the embedded domain.Lazy handle.
type Factory struct{}

var _ domain.ProxyFactory = Factory{}

// NewFactory returns the default factory.
func NewFactory() Factory { return Factory{} }

// CreatePlaceholder implements domain.ProxyFactory.
func (Factory) CreatePlaceholder(desc *domain.TypeDescriptor, path string, loader domain.LoadFunc) (any, error) {
	if desc == nil || desc.Type == nil || desc.Type.Kind() != reflect.Struct {
		return nil, domain.ErrNotDocument
	}
	if loader == nil {
		return nil, fmt.Errorf("placeholder %s: loader required", path)
	}
	doc := reflect.New(desc.Type).Interface()
	lazy, ok := doc.(domain.LazyLoadable)
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrNotLazy, desc.Type)
	}
	mapping.SetPath(desc, doc, path)
	lazy.BindLoader(loader)
	return doc, nil
}

// IsPlaceholder reports whether doc is an unloaded placeholder.
func IsPlaceholder(doc any) bool {
	lazy, ok := doc.(domain.LazyLoadable)
	return ok && !lazy.IsLoaded()
}

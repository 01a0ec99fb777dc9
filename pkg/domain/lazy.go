package domain

import (
	"context"
	"sync"
)

// LoadFunc hydrates a placeholder. It is bound by the ProxyFactory and must be
// safe to call concurrently.
type LoadFunc func(ctx context.Context) error

// LazyLoadable is implemented by documents that can stand in as placeholders.
// Embedding Lazy is the usual way to satisfy it.
type LazyLoadable interface {
	BindLoader(fn LoadFunc)
	MarkLoaded()
	IsLoaded() bool
	Load(ctx context.Context) error
}

// Lazy is embedded into document structs to make them usable as lazy
// placeholders. A document that was never bound to a loader reports itself as
// loaded and Load is a no-op. Documents embedding Lazy must not be copied.
//
//	type Article struct {
//		domain.Lazy
//		Path  string `odm:",path"`
//		Title string `odm:"title"`
//	}
//
//	func (a *Article) GetTitle(ctx context.Context) (string, error) {
//		if err := a.Load(ctx); err != nil {
//			return "", err
//		}
//		return a.Title, nil
//	}
type Lazy struct {
	mu      sync.Mutex
	loader  LoadFunc
	pending bool
}

// BindLoader turns the document into an unloaded placeholder.
func (l *Lazy) BindLoader(fn LoadFunc) {
	l.mu.Lock()
	l.loader = fn
	l.pending = fn != nil
	l.mu.Unlock()
}

// MarkLoaded records that the document holds hydrated state.
func (l *Lazy) MarkLoaded() {
	l.mu.Lock()
	l.loader = nil
	l.pending = false
	l.mu.Unlock()
}

// IsLoaded reports whether the document holds hydrated state.
func (l *Lazy) IsLoaded() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return !l.pending
}

// Load hydrates the placeholder on first use. Concurrent callers share one
// repository read.
func (l *Lazy) Load(ctx context.Context) error {
	l.mu.Lock()
	fn, pending := l.loader, l.pending
	l.mu.Unlock()
	if !pending || fn == nil {
		return nil
	}
	return fn(ctx)
}

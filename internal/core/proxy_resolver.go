package core

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strconv"

	"golang.org/x/sync/singleflight"

	"nodemapper/internal/mapping"
	"nodemapper/pkg/domain"
)

// proxyResolver hands out identity-mapped documents or lazy placeholders and
// hydrates placeholders on first use.
type proxyResolver struct {
	session  domain.RepositorySession
	tracker  *changeTracker
	metadata domain.MetadataProvider
	proxies  domain.ProxyFactory
	notify   func(ctx context.Context, name string, payload any)
	group    singleflight.Group
}

// resolve returns the document tracked at path or registers a new Managed,
// unloaded placeholder for it.
func (r *proxyResolver) resolve(ctx context.Context, desc *domain.TypeDescriptor, path string) (any, error) {
	if err := domain.ValidatePath(path); err != nil {
		return nil, err
	}
	if e, ok := r.tracker.imap.Lookup(path); ok {
		if err := checkType(e, desc, path); err != nil {
			return nil, err
		}
		return e.doc, nil
	}

	e := &trackedEntity{desc: desc, seq: r.tracker.next(), state: domain.StateManaged}
	doc, err := r.proxies.CreatePlaceholder(desc, path, func(ctx context.Context) error {
		return r.load(ctx, e)
	})
	eager := errors.Is(err, domain.ErrNotLazy)
	switch {
	case eager:
		doc = reflect.New(desc.Type).Interface()
	case err != nil:
		return nil, fmt.Errorf("placeholder %s: %w", path, err)
	}
	e.doc = doc
	if err := r.tracker.imap.Register(path, e); err != nil {
		return nil, err
	}
	if eager {
		if err := r.load(ctx, e); err != nil {
			r.tracker.imap.Unregister(path)
			return nil, err
		}
	}
	return doc, nil
}

// load hydrates e once. Concurrent callers for one entity share the read.
func (r *proxyResolver) load(ctx context.Context, e *trackedEntity) error {
	if e.isLoaded() {
		return nil
	}
	key := strconv.FormatUint(e.seq, 10)
	_, err, _ := r.group.Do(key, func() (any, error) {
		if e.isLoaded() {
			return nil, nil
		}
		path := e.currentPath()
		if e.getState() == domain.StateDetached {
			return nil, domain.NotManagedError{Path: path}
		}
		node, found, err := r.session.ReadNode(ctx, path)
		if err != nil {
			return nil, fmt.Errorf("load %s: %w", path, err)
		}
		if !found {
			return nil, fmt.Errorf("load %s: %w", path, domain.ErrNotFound)
		}
		return nil, r.hydrate(ctx, e, node)
	})
	return err
}

// hydrate copies node into the tracked document in place and takes a fresh
// snapshot.
func (r *proxyResolver) hydrate(ctx context.Context, e *trackedEntity, node domain.Node) error {
	path := e.currentPath()
	resolve := func(t reflect.Type, target string) (any, error) {
		desc, err := r.metadata.Describe(t)
		if err != nil {
			return nil, err
		}
		return r.resolve(ctx, desc, target)
	}
	if err := mapping.Assign(e.desc, e.doc, node.Properties, resolve); err != nil {
		return fmt.Errorf("hydrate %s: %w", path, err)
	}
	mapping.SetPath(e.desc, e.doc, path)
	props, _, err := mapping.Extract(e.desc, e.doc, r.tracker.referencePath)
	if err != nil {
		return fmt.Errorf("snapshot %s: %w", path, err)
	}
	e.setSnapshot(props)
	if lazy, ok := e.doc.(domain.LazyLoadable); ok {
		lazy.MarkLoaded()
	}
	r.notify(ctx, domain.EventPostLoad, domain.LifecycleEvent{Path: path, Document: e.doc})
	return nil
}

func checkType(e *trackedEntity, desc *domain.TypeDescriptor, path string) error {
	if e.desc.Type != desc.Type {
		return fmt.Errorf("path %s holds a %s, not a %s", path, e.desc.Type, desc.Type)
	}
	return nil
}

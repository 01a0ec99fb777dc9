// Package events provides a synchronous in-process domain.EventBus.
package events

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"nodemapper/pkg/domain"
)

// Listener handles one dispatched event.
type Listener func(ctx context.Context, name string, payload any) error

// Bus dispatches events to listeners in subscription order. A failing or
// panicking listener does not stop the remaining ones; their failures are
// joined into the returned error.
type Bus struct {
	mu        sync.RWMutex
	listeners map[string][]Listener
	wildcard  []Listener
}

var _ domain.EventBus = (*Bus)(nil)

// NewBus returns an empty bus.
func NewBus() *Bus {
	return &Bus{listeners: make(map[string][]Listener)}
}

// Subscribe registers fn for the named event. An empty name subscribes to
// every event.
func (b *Bus) Subscribe(name string, fn Listener) {
	if fn == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if name == "" {
		b.wildcard = append(b.wildcard, fn)
		return
	}
	b.listeners[name] = append(b.listeners[name], fn)
}

// Dispatch implements domain.EventBus.
func (b *Bus) Dispatch(ctx context.Context, name string, payload any) error {
	b.mu.RLock()
	targets := make([]Listener, 0, len(b.listeners[name])+len(b.wildcard))
	targets = append(targets, b.listeners[name]...)
	targets = append(targets, b.wildcard...)
	b.mu.RUnlock()

	var errs []error
	for _, fn := range targets {
		if err := invoke(ctx, fn, name, payload); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func invoke(ctx context.Context, fn Listener, name string, payload any) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("listener for %s panicked: %v", name, r)
		}
	}()
	return fn(ctx, name, payload)
}

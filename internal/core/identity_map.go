package core

import (
	"strings"
	"sync"

	"nodemapper/pkg/domain"
)

// trackedEntity is the unit of work's record for one document.
type trackedEntity struct {
	doc  any
	desc *domain.TypeDescriptor
	path string
	seq  uint64

	// Placeholder hydration may run on another goroutine, so the mutable
	// fields below are guarded by mu.
	mu       sync.Mutex
	state    domain.State
	original domain.Properties
	loaded   bool
}

func (e *trackedEntity) getState() domain.State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

func (e *trackedEntity) setState(s domain.State) {
	e.mu.Lock()
	e.state = s
	e.mu.Unlock()
}

func (e *trackedEntity) currentPath() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.path
}

func (e *trackedEntity) snapshot() (domain.Properties, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.original, e.loaded
}

func (e *trackedEntity) setSnapshot(props domain.Properties) {
	e.mu.Lock()
	e.original = props
	e.loaded = true
	e.mu.Unlock()
}

func (e *trackedEntity) isLoaded() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.loaded
}

// identityMap binds paths and document pointers to tracked entities. Repeated
// lookups of one path return the same entity for the map's lifetime.
type identityMap struct {
	mu     sync.Mutex
	byPath map[string]*trackedEntity
	byDoc  map[any]*trackedEntity
	order  []*trackedEntity
}

func newIdentityMap() *identityMap {
	return &identityMap{
		byPath: make(map[string]*trackedEntity),
		byDoc:  make(map[any]*trackedEntity),
	}
}

// Lookup returns the entity bound to path.
func (m *identityMap) Lookup(path string) (*trackedEntity, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.byPath[path]
	return e, ok
}

// ByDocument returns the entity tracking doc.
func (m *identityMap) ByDocument(doc any) (*trackedEntity, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.byDoc[doc]
	return e, ok
}

// Register binds path to e. Registering the same entity twice is a no-op.
func (m *identityMap) Register(path string, e *trackedEntity) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.byPath[path]; ok {
		if existing == e {
			return nil
		}
		return domain.DuplicateIdentityError{Path: path}
	}
	e.mu.Lock()
	e.path = path
	e.mu.Unlock()
	m.byPath[path] = e
	m.byDoc[e.doc] = e
	m.order = append(m.order, e)
	return nil
}

// Unregister drops the binding for path. Missing paths are ignored.
func (m *identityMap) Unregister(path string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.byPath[path]
	if !ok {
		return
	}
	delete(m.byPath, path)
	if m.byDoc[e.doc] == e {
		delete(m.byDoc, e.doc)
	}
}

// Rebind moves e to a new path, used when the repository assigns a different
// path on insert. Entities below the old path move along with it and are
// returned.
func (m *identityMap) Rebind(e *trackedEntity, path string) ([]*trackedEntity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	old := e.path
	if old == path {
		return nil, nil
	}
	targets := map[*trackedEntity]string{e: path}
	var moved []*trackedEntity
	for _, d := range m.order {
		if m.byPath[d.path] != d || !domain.IsAncestor(old, d.path) {
			continue
		}
		targets[d] = path + strings.TrimPrefix(d.path, old)
		moved = append(moved, d)
	}
	for _, target := range targets {
		if existing, ok := m.byPath[target]; ok {
			if _, moving := targets[existing]; !moving {
				return nil, domain.DuplicateIdentityError{Path: target}
			}
		}
	}
	for d := range targets {
		if m.byPath[d.path] == d {
			delete(m.byPath, d.path)
		}
	}
	for d, target := range targets {
		d.mu.Lock()
		d.path = target
		d.mu.Unlock()
		m.byPath[target] = d
	}
	return moved, nil
}

// Entities returns the live entities in registration order.
func (m *identityMap) Entities() []*trackedEntity {
	m.mu.Lock()
	defer m.mu.Unlock()
	live := m.order[:0]
	for _, e := range m.order {
		if m.byPath[e.path] == e {
			live = append(live, e)
		}
	}
	for i := len(live); i < len(m.order); i++ {
		m.order[i] = nil
	}
	m.order = live
	return append([]*trackedEntity(nil), live...)
}

// Descendants returns live entities strictly below path.
func (m *identityMap) Descendants(path string) []*trackedEntity {
	var out []*trackedEntity
	for _, e := range m.Entities() {
		if domain.IsAncestor(path, e.currentPath()) {
			out = append(out, e)
		}
	}
	return out
}

// Reset empties the map and returns the entities it held.
func (m *identityMap) Reset() []*trackedEntity {
	m.mu.Lock()
	defer m.mu.Unlock()
	var held []*trackedEntity
	for _, e := range m.order {
		if m.byPath[e.path] == e {
			held = append(held, e)
		}
	}
	m.byPath = make(map[string]*trackedEntity)
	m.byDoc = make(map[any]*trackedEntity)
	m.order = nil
	return held
}

// Len reports the number of bound paths.
func (m *identityMap) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.byPath)
}

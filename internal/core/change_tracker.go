package core

import (
	"reflect"
	"sync/atomic"

	"nodemapper/internal/mapping"
	"nodemapper/pkg/domain"
)

// pendingOp is an explicitly scheduled insert or delete. Updates are never
// queued; they are recomputed from the snapshots on every flush.
type pendingOp struct {
	kind   domain.OperationKind
	entity *trackedEntity
	seq    uint64
}

// changeTracker owns the per-document state machine and the pending queue.
type changeTracker struct {
	imap      *identityMap
	metadata  domain.MetadataProvider
	seq       atomic.Uint64
	queue     []pendingOp
	cancelled map[*trackedEntity]struct{}
	// deleted holds documents whose node was deleted by a flush, keyed by
	// document with the path they had. They stay Removed for good.
	deleted map[any]string
}

func newChangeTracker(imap *identityMap, metadata domain.MetadataProvider) *changeTracker {
	return &changeTracker{
		imap:      imap,
		metadata:  metadata,
		cancelled: make(map[*trackedEntity]struct{}),
		deleted:   make(map[any]string),
	}
}

func (t *changeTracker) next() uint64 {
	return t.seq.Add(1)
}

// pathOf resolves reference targets to their tracked paths.
func (t *changeTracker) pathOf(doc any) (string, bool) {
	e, ok := t.imap.ByDocument(doc)
	if !ok {
		return "", false
	}
	return e.currentPath(), true
}

// referencePath resolves a reference target for encoding. Targets that are
// no longer tracked (deleted, detached or cleared) keep the path stored in
// their path field.
func (t *changeTracker) referencePath(doc any) (string, bool) {
	if p, ok := t.pathOf(doc); ok {
		return p, true
	}
	if p, ok := t.deleted[doc]; ok {
		return p, true
	}
	if t.metadata == nil {
		return "", false
	}
	desc, err := t.metadata.Describe(reflect.TypeOf(doc))
	if err != nil {
		return "", false
	}
	p := mapping.GetPath(desc, doc)
	return p, p != ""
}

// terminal reports the last path of a document deleted by a flush.
func (t *changeTracker) terminal(doc any) (string, bool) {
	p, ok := t.deleted[doc]
	return p, ok
}

// bury evicts e after its node was deleted and marks the document Removed
// for good.
func (t *changeTracker) bury(e *trackedEntity) {
	path := e.currentPath()
	t.forget(e)
	e.setState(domain.StateRemoved)
	t.deleted[e.doc] = path
}

// scheduleInsert registers doc as New under path and queues its insert.
func (t *changeTracker) scheduleInsert(doc any, desc *domain.TypeDescriptor, path string) (*trackedEntity, error) {
	if old, gone := t.terminal(doc); gone {
		return nil, domain.InvalidStateTransitionError{Path: old, From: domain.StateRemoved, Op: "persist"}
	}
	if e, ok := t.imap.ByDocument(doc); ok {
		state := e.getState()
		if state == domain.StateNew && e.currentPath() == path {
			return e, nil
		}
		return nil, domain.InvalidStateTransitionError{Path: e.currentPath(), From: state, Op: "persist"}
	}
	if _, taken := t.imap.Lookup(path); taken {
		return nil, domain.DuplicateIdentityError{Path: path}
	}
	e := &trackedEntity{
		doc:    doc,
		desc:   desc,
		seq:    t.next(),
		state:  domain.StateNew,
		loaded: true,
	}
	if err := t.imap.Register(path, e); err != nil {
		return nil, err
	}
	t.queue = append(t.queue, pendingOp{kind: domain.OpInsert, entity: e, seq: t.next()})
	return e, nil
}

// track registers a document read from the repository as Managed.
func (t *changeTracker) track(doc any, desc *domain.TypeDescriptor, path string) (*trackedEntity, error) {
	e := &trackedEntity{
		doc:   doc,
		desc:  desc,
		seq:   t.next(),
		state: domain.StateManaged,
	}
	if err := t.imap.Register(path, e); err != nil {
		return nil, err
	}
	return e, nil
}

// scheduleDelete moves a tracked document to Removed. A New document only
// loses its pending insert; a Managed one gets a delete queued.
func (t *changeTracker) scheduleDelete(doc any) (*trackedEntity, bool, error) {
	e, ok := t.imap.ByDocument(doc)
	if !ok {
		if old, gone := t.terminal(doc); gone {
			return nil, false, domain.InvalidStateTransitionError{Path: old, From: domain.StateRemoved, Op: "remove"}
		}
		return nil, false, domain.NotManagedError{}
	}
	switch e.getState() {
	case domain.StateRemoved:
		return e, false, nil
	case domain.StateNew:
		t.dequeue(domain.OpInsert, e)
		e.setState(domain.StateRemoved)
		t.cancelled[e] = struct{}{}
		return e, true, nil
	case domain.StateManaged:
		e.setState(domain.StateRemoved)
		t.queue = append(t.queue, pendingOp{kind: domain.OpDelete, entity: e, seq: t.next()})
		return e, true, nil
	default:
		return nil, false, domain.NotManagedError{Path: e.currentPath()}
	}
}

// dequeue drops the pending operation of the given kind for e.
func (t *changeTracker) dequeue(kind domain.OperationKind, e *trackedEntity) {
	kept := t.queue[:0]
	for _, op := range t.queue {
		if op.kind == kind && op.entity == e {
			continue
		}
		kept = append(kept, op)
	}
	t.queue = kept
}

// forget drops every pending operation of e and unbinds it.
func (t *changeTracker) forget(e *trackedEntity) {
	kept := t.queue[:0]
	for _, op := range t.queue {
		if op.entity != e {
			kept = append(kept, op)
		}
	}
	t.queue = kept
	delete(t.cancelled, e)
	if current, ok := t.imap.Lookup(e.currentPath()); ok && current == e {
		t.imap.Unregister(e.currentPath())
	}
}

// changeSet is the flush input: planned operations plus the property sets
// captured for them, keyed by operation sequence.
type changeSet struct {
	ops   []domain.Operation
	props map[uint64]domain.Properties
}

// collect runs dirty detection and merges the result with the queue.
func (t *changeTracker) collect() (changeSet, error) {
	cs := changeSet{props: make(map[uint64]domain.Properties)}
	for _, op := range t.queue {
		e := op.entity
		path := e.currentPath()
		switch op.kind {
		case domain.OpInsert:
			props, deps, err := mapping.Extract(e.desc, e.doc, t.referencePath)
			if err != nil {
				return changeSet{}, err
			}
			cs.props[op.seq] = props
			cs.ops = append(cs.ops, domain.Operation{
				Kind:      domain.OpInsert,
				Path:      path,
				Document:  e.doc,
				DependsOn: deps,
				Seq:       op.seq,
			})
		case domain.OpDelete:
			cs.ops = append(cs.ops, domain.Operation{
				Kind:     domain.OpDelete,
				Path:     path,
				Document: e.doc,
				Seq:      op.seq,
			})
		}
	}
	for _, e := range t.imap.Entities() {
		if e.getState() != domain.StateManaged {
			continue
		}
		original, loaded := e.snapshot()
		if !loaded {
			continue
		}
		props, _, err := mapping.Extract(e.desc, e.doc, t.referencePath)
		if err != nil {
			return changeSet{}, err
		}
		changed := original.Diff(props)
		if len(changed) == 0 {
			continue
		}
		cs.props[e.seq] = props
		cs.ops = append(cs.ops, domain.Operation{
			Kind:     domain.OpUpdate,
			Path:     e.currentPath(),
			Document: e.doc,
			Changed:  changed,
			Seq:      e.seq,
		})
	}
	return cs, nil
}

// finish evicts New documents that were removed before they were inserted.
func (t *changeTracker) finish() {
	for e := range t.cancelled {
		t.forget(e)
	}
}

// reset detaches every tracked document and drops the queue.
func (t *changeTracker) reset() {
	for _, e := range t.imap.Reset() {
		e.setState(domain.StateDetached)
	}
	for e := range t.cancelled {
		e.setState(domain.StateDetached)
	}
	t.queue = nil
	t.cancelled = make(map[*trackedEntity]struct{})
}

// pending reports the number of queued inserts and deletes.
func (t *changeTracker) pending() int {
	return len(t.queue)
}

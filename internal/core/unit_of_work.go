package core

import (
	"context"
	"fmt"
	"reflect"
	"sync/atomic"
	"time"

	"github.com/oklog/ulid/v2"

	"nodemapper/internal/mapping"
	"nodemapper/pkg/domain"
)

// UnitOfWork tracks documents between flushes and commits their changes to a
// RepositorySession in dependency order.
//
// A UnitOfWork is meant to be driven by one goroutine. Only placeholder
// loading may run concurrently.
type UnitOfWork struct {
	session  domain.RepositorySession
	opts     options
	imap     *identityMap
	tracker  *changeTracker
	resolver *proxyResolver
	planner  CommitPlanner
	flushing atomic.Bool
}

// NewUnitOfWork constructs a unit of work over session.
func NewUnitOfWork(session domain.RepositorySession, opts ...Option) *UnitOfWork {
	o := applyOptions(opts)
	imap := newIdentityMap()
	tracker := newChangeTracker(imap, o.metadata)
	u := &UnitOfWork{
		session: session,
		opts:    o,
		imap:    imap,
		tracker: tracker,
	}
	u.resolver = &proxyResolver{
		session:  session,
		tracker:  tracker,
		metadata: o.metadata,
		proxies:  o.proxies,
		notify:   u.dispatch,
	}
	return u
}

// Session returns the underlying repository session.
func (u *UnitOfWork) Session() domain.RepositorySession { return u.session }

func (u *UnitOfWork) describe(doc any) (*domain.TypeDescriptor, error) {
	if _, err := mapping.DocumentValue(doc); err != nil {
		return nil, err
	}
	return u.opts.metadata.Describe(reflect.TypeOf(doc))
}

// Persist schedules doc for insertion at path. Persisting the same document
// under the same path again is a no-op.
func (u *UnitOfWork) Persist(ctx context.Context, doc any, path string) error {
	if err := domain.ValidatePath(path); err != nil {
		return err
	}
	desc, err := u.describe(doc)
	if err != nil {
		return err
	}
	pending := u.tracker.pending()
	e, err := u.tracker.scheduleInsert(doc, desc, path)
	if err != nil {
		return err
	}
	if u.tracker.pending() > pending {
		mapping.SetPath(desc, doc, path)
		u.dispatch(ctx, domain.EventPrePersist, domain.LifecycleEvent{Path: e.currentPath(), Document: doc})
	}
	return nil
}

// Remove schedules doc for deletion. Removing a New document cancels its
// insert.
func (u *UnitOfWork) Remove(ctx context.Context, doc any) error {
	e, changed, err := u.tracker.scheduleDelete(doc)
	if err != nil {
		return err
	}
	if changed {
		u.dispatch(ctx, domain.EventPreRemove, domain.LifecycleEvent{Path: e.currentPath(), Document: doc})
	}
	return nil
}

// Find returns the document of type t stored at path. A missing node reports
// found == false without an error. t may be the struct type or a pointer to it.
func (u *UnitOfWork) Find(ctx context.Context, t reflect.Type, path string) (doc any, found bool, err error) {
	start := u.opts.clock.Now()
	ctx, span := u.opts.tracer.Start(ctx, "find")
	defer func() {
		span.End(err)
		u.opts.metrics.Observe(ctx, "find", err == nil, u.opts.clock.Now().Sub(start))
	}()

	if err := domain.ValidatePath(path); err != nil {
		return nil, false, err
	}
	desc, err := u.opts.metadata.Describe(t)
	if err != nil {
		return nil, false, err
	}
	if e, ok := u.imap.Lookup(path); ok {
		if err := checkType(e, desc, path); err != nil {
			return nil, false, err
		}
		if e.getState() == domain.StateRemoved {
			return nil, false, nil
		}
		if err := u.resolver.load(ctx, e); err != nil {
			return nil, false, err
		}
		return e.doc, true, nil
	}

	node, ok, err := u.session.ReadNode(ctx, path)
	if err != nil {
		return nil, false, fmt.Errorf("find %s: %w", path, err)
	}
	if !ok {
		return nil, false, nil
	}
	doc = reflect.New(desc.Type).Interface()
	e, err := u.tracker.track(doc, desc, path)
	if err != nil {
		return nil, false, err
	}
	if err := u.resolver.hydrate(ctx, e, node); err != nil {
		u.imap.Unregister(path)
		return nil, false, err
	}
	return doc, true, nil
}

// GetReference returns the tracked document at path or an unloaded
// placeholder for it. No repository read happens until the placeholder is
// loaded, unless the type cannot act as a placeholder.
func (u *UnitOfWork) GetReference(ctx context.Context, t reflect.Type, path string) (any, error) {
	desc, err := u.opts.metadata.Describe(t)
	if err != nil {
		return nil, err
	}
	return u.resolver.resolve(ctx, desc, path)
}

// Refresh re-reads the node of a Managed document, overwriting local changes.
func (u *UnitOfWork) Refresh(ctx context.Context, doc any) error {
	e, ok := u.imap.ByDocument(doc)
	if !ok {
		if old, gone := u.tracker.terminal(doc); gone {
			return domain.InvalidStateTransitionError{Path: old, From: domain.StateRemoved, Op: "refresh"}
		}
		return domain.NotManagedError{}
	}
	path := e.currentPath()
	if state := e.getState(); state != domain.StateManaged {
		return domain.InvalidStateTransitionError{Path: path, From: state, Op: "refresh"}
	}
	node, found, err := u.session.ReadNode(ctx, path)
	if err != nil {
		return fmt.Errorf("refresh %s: %w", path, err)
	}
	if !found {
		return fmt.Errorf("refresh %s: %w", path, domain.ErrNotFound)
	}
	return u.resolver.hydrate(ctx, e, node)
}

// Contains reports whether doc is tracked and not scheduled for removal.
func (u *UnitOfWork) Contains(doc any) bool {
	e, ok := u.imap.ByDocument(doc)
	if !ok {
		return false
	}
	state := e.getState()
	return state == domain.StateNew || state == domain.StateManaged
}

// StateOf reports the persistence state of doc. Documents deleted by a flush
// stay removed; other untracked documents that carry a path are reported as
// detached.
func (u *UnitOfWork) StateOf(doc any) domain.State {
	if e, ok := u.imap.ByDocument(doc); ok {
		return e.getState()
	}
	if _, gone := u.tracker.terminal(doc); gone {
		return domain.StateRemoved
	}
	desc, err := u.describe(doc)
	if err != nil {
		return domain.StateUnknown
	}
	if mapping.GetPath(desc, doc) != "" {
		return domain.StateDetached
	}
	return domain.StateUnknown
}

// PathOf returns the path doc is tracked under.
func (u *UnitOfWork) PathOf(doc any) (string, bool) {
	return u.tracker.pathOf(doc)
}

// Size reports the number of tracked documents.
func (u *UnitOfWork) Size() int {
	return u.imap.Len()
}

// Detach stops tracking doc and drops its pending operations.
func (u *UnitOfWork) Detach(doc any) error {
	e, ok := u.imap.ByDocument(doc)
	if !ok {
		return domain.NotManagedError{}
	}
	u.tracker.forget(e)
	e.setState(domain.StateDetached)
	return nil
}

// Clear detaches every tracked document and discards all pending operations
// without touching the repository.
func (u *UnitOfWork) Clear() {
	u.tracker.reset()
	u.opts.logger.Debug("unit of work cleared")
}

// ScheduledOperations returns the plan the next flush would execute.
func (u *UnitOfWork) ScheduledOperations() ([]domain.Operation, error) {
	cs, err := u.tracker.collect()
	if err != nil {
		return nil, err
	}
	return u.planner.Plan(cs.ops)
}

// Flush commits all pending changes. Operations run one by one; on failure
// the ones already applied stay committed and the failed one and its
// successors stay queued for the next flush. Repository failures are reported
// as domain.RepositoryOperationError.
func (u *UnitOfWork) Flush(ctx context.Context) (err error) {
	if !u.flushing.CompareAndSwap(false, true) {
		return domain.ErrFlushInProgress
	}
	defer u.flushing.Store(false)

	start := u.opts.clock.Now()
	batch := ulid.Make().String()
	ctx, span := u.opts.tracer.Start(ctx, "flush")
	var executed int
	defer func() {
		elapsed := u.opts.clock.Now().Sub(start)
		span.End(err)
		u.opts.metrics.Observe(ctx, "flush", err == nil, elapsed)
		u.dispatch(ctx, domain.EventPostFlush, domain.FlushEvent{BatchID: batch, Operations: executed, Err: err})
		u.logFlush(batch, executed, elapsed, err)
	}()

	u.dispatch(ctx, domain.EventPreFlush, domain.FlushEvent{BatchID: batch})
	cs, err := u.tracker.collect()
	if err != nil {
		return err
	}
	plan, err := u.planner.Plan(cs.ops)
	if err != nil {
		return err
	}
	u.dispatch(ctx, domain.EventOnFlush, domain.FlushEvent{BatchID: batch, Operations: len(plan)})

	for _, op := range plan {
		if err := u.execute(ctx, op, cs.props[op.Seq]); err != nil {
			return err
		}
		executed++
	}
	u.tracker.finish()
	return nil
}

func (u *UnitOfWork) logFlush(batch string, executed int, elapsed time.Duration, err error) {
	if err != nil {
		u.opts.logger.Error("flush failed", "batch", batch, "executed", executed, "error", err)
		return
	}
	u.opts.logger.Info("flush committed", "batch", batch, "operations", executed, "duration", elapsed)
}

func (u *UnitOfWork) execute(ctx context.Context, op domain.Operation, props domain.Properties) error {
	e, ok := u.imap.ByDocument(op.Document)
	if !ok {
		return domain.NotManagedError{Path: op.Path}
	}
	switch op.Kind {
	case domain.OpInsert:
		// An earlier insert may have moved this one along with its parent.
		path := e.currentPath()
		node := domain.Node{Path: path, Type: e.desc.NodeType, Properties: props}
		assigned, err := u.session.WriteNode(ctx, path, node)
		if err != nil {
			return domain.RepositoryOperationError{Op: op.Kind, Path: path, Err: err}
		}
		if assigned == "" {
			assigned = path
		}
		moved, err := u.imap.Rebind(e, assigned)
		if err != nil {
			return err
		}
		for _, d := range moved {
			mapping.SetPath(d.desc, d.doc, d.currentPath())
		}
		mapping.SetPath(e.desc, e.doc, assigned)
		e.setState(domain.StateManaged)
		e.setSnapshot(props)
		u.tracker.dequeue(domain.OpInsert, e)
		u.opts.logger.Debug("inserted node", "path", assigned)
		u.dispatch(ctx, domain.EventPostPersist, domain.LifecycleEvent{Path: assigned, Document: e.doc})

	case domain.OpUpdate:
		u.dispatch(ctx, domain.EventPreUpdate, domain.LifecycleEvent{Path: op.Path, Document: e.doc, Changed: op.Changed})
		node := domain.Node{Path: op.Path, Properties: props.Subset(op.Changed)}
		if _, err := u.session.WriteNode(ctx, op.Path, node); err != nil {
			return domain.RepositoryOperationError{Op: op.Kind, Path: op.Path, Err: err}
		}
		e.setSnapshot(props)
		u.opts.logger.Debug("updated node", "path", op.Path, "changed", op.Changed)
		u.dispatch(ctx, domain.EventPostUpdate, domain.LifecycleEvent{Path: op.Path, Document: e.doc, Changed: op.Changed})

	case domain.OpDelete:
		if err := u.session.DeleteNode(ctx, op.Path); err != nil {
			return domain.RepositoryOperationError{Op: op.Kind, Path: op.Path, Err: err}
		}
		for _, d := range u.imap.Descendants(op.Path) {
			u.tracker.bury(d)
		}
		u.tracker.bury(e)
		u.opts.logger.Debug("deleted node", "path", op.Path)
		u.dispatch(ctx, domain.EventPostRemove, domain.LifecycleEvent{Path: op.Path, Document: e.doc})
	}
	return nil
}

// dispatch delivers a best-effort event. Listener failures are logged and
// never reach the caller.
func (u *UnitOfWork) dispatch(ctx context.Context, name string, payload any) {
	defer func() {
		if r := recover(); r != nil {
			u.opts.logger.Warn("event listener panicked", "event", name, "panic", r)
		}
	}()
	if err := u.opts.events.Dispatch(ctx, name, payload); err != nil {
		u.opts.logger.Warn("event listener failed", "event", name, "error", err)
	}
}

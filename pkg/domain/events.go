package domain

import "context"

// Event names dispatched by the unit of work.
const (
	EventPreFlush    = "preFlush"
	EventOnFlush     = "onFlush"
	EventPostFlush   = "postFlush"
	EventPrePersist  = "prePersist"
	EventPostPersist = "postPersist"
	EventPreUpdate   = "preUpdate"
	EventPostUpdate  = "postUpdate"
	EventPreRemove   = "preRemove"
	EventPostRemove  = "postRemove"
	EventPostLoad    = "postLoad"
)

// EventBus receives best-effort notifications. Failures never abort the
// operation that raised the event.
type EventBus interface {
	Dispatch(ctx context.Context, name string, payload any) error
}

// FlushEvent is the payload of the flush phase events.
type FlushEvent struct {
	BatchID    string
	Operations int
	// Err is set on postFlush when the flush failed.
	Err error
}

// LifecycleEvent is the payload of per-document events.
type LifecycleEvent struct {
	Path     string
	Document any
	Changed  []string
}

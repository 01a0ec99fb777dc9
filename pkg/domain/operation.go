package domain

// State is the persistence state of a tracked document.
type State int

const (
	// StateUnknown is reported for documents the unit of work does not track.
	StateUnknown State = iota
	// StateNew marks documents scheduled for insertion.
	StateNew
	// StateManaged marks documents in sync with (or loaded from) the repository.
	StateManaged
	// StateRemoved marks documents scheduled for deletion.
	StateRemoved
	// StateDetached marks documents no longer tracked after a clear or detach.
	StateDetached
)

func (s State) String() string {
	switch s {
	case StateNew:
		return "new"
	case StateManaged:
		return "managed"
	case StateRemoved:
		return "removed"
	case StateDetached:
		return "detached"
	default:
		return "unknown"
	}
}

// OperationKind enumerates pending repository operations.
type OperationKind string

const (
	OpInsert OperationKind = "insert"
	OpUpdate OperationKind = "update"
	OpDelete OperationKind = "delete"
)

// Operation is one pending repository write.
type Operation struct {
	Kind OperationKind
	// Path is the target node path.
	Path string
	// Document is the tracked document the operation belongs to.
	Document any
	// Changed lists the modified properties of an update.
	Changed []string
	// DependsOn lists paths referenced by the document; pending inserts of
	// those paths must run first.
	DependsOn []string
	// Seq is the scheduling order used as tie-break.
	Seq uint64
}

package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotFound reports that a node does not exist in the repository.
	ErrNotFound = errors.New("node not found")
	// ErrInvalidPath reports a malformed node path.
	ErrInvalidPath = errors.New("invalid node path")
	// ErrParentNotFound reports a write below a missing parent node.
	ErrParentNotFound = errors.New("parent node not found")
	// ErrFlushInProgress reports a nested flush.
	ErrFlushInProgress = errors.New("flush already in progress")
	// ErrNotDocument reports a value that is not a pointer to a struct.
	ErrNotDocument = errors.New("document must be a non-nil pointer to a struct")
	// ErrNotLazy is returned by proxy factories for types without a lazy handle.
	ErrNotLazy = errors.New("type cannot act as a lazy placeholder")
)

// DuplicateIdentityError reports two distinct documents claiming one path.
type DuplicateIdentityError struct {
	Path string
}

func (e DuplicateIdentityError) Error() string {
	return fmt.Sprintf("path %s is already bound to a different document", e.Path)
}

// InvalidStateTransitionError reports a tracking call that is not allowed in
// the document's current state.
type InvalidStateTransitionError struct {
	Path string
	From State
	Op   string
}

func (e InvalidStateTransitionError) Error() string {
	return fmt.Sprintf("cannot %s document %s in state %s", e.Op, e.Path, e.From)
}

// NotManagedError reports a document unknown to the unit of work.
type NotManagedError struct {
	Path string
}

func (e NotManagedError) Error() string {
	if e.Path == "" {
		return "document is not managed"
	}
	return fmt.Sprintf("document %s is not managed", e.Path)
}

// UnresolvableOrderingError reports a dependency cycle among pending inserts.
// It is terminal: retrying the same batch cannot succeed.
type UnresolvableOrderingError struct {
	Paths []string
}

func (e UnresolvableOrderingError) Error() string {
	return fmt.Sprintf("cannot order pending inserts, cycle between %s", strings.Join(e.Paths, ", "))
}

// RepositoryOperationError wraps a session failure raised while flushing.
type RepositoryOperationError struct {
	Op   OperationKind
	Path string
	Err  error
}

func (e RepositoryOperationError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e RepositoryOperationError) Unwrap() error { return e.Err }

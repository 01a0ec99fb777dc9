package domain

import "context"

// RepositorySession is the transport to a hierarchical node repository.
// Every call is synchronous; transport failures are returned unchanged and the
// unit of work wraps them in RepositoryOperationError.
type RepositorySession interface {
	// ReadNode returns the node stored at path. found is false when no node
	// exists; err is reserved for real failures.
	ReadNode(ctx context.Context, path string) (node Node, found bool, err error)
	// WriteNode creates the node at path or merges the given properties into
	// the existing one (null values remove a property). The parent must exist.
	// The returned path is the one the repository assigned.
	WriteNode(ctx context.Context, path string, node Node) (string, error)
	// DeleteNode removes the node and its whole subtree. Deleting a missing
	// node is not an error.
	DeleteNode(ctx context.Context, path string) error
	// Exists reports whether a node is stored at path.
	Exists(ctx context.Context, path string) (bool, error)
}

// NodeLister is implemented by sessions able to enumerate a subtree. Queries
// require it.
type NodeLister interface {
	// ListDescendants returns the paths strictly below root in ascending order.
	ListDescendants(ctx context.Context, root string) ([]string, error)
}

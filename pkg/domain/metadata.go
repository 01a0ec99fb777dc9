package domain

import "reflect"

// FieldMapping binds one struct field to a node property.
type FieldMapping struct {
	// Name is the Go field name.
	Name string
	// Property is the node property name.
	Property string
	// Index is the reflect field index path, usable with FieldByIndex.
	Index []int
	// Reference marks fields that point at another document. They are stored
	// as the target's path.
	Reference bool
}

// TypeDescriptor describes how a document type maps onto nodes.
type TypeDescriptor struct {
	// Type is the struct type (not the pointer).
	Type reflect.Type
	// NodeType is written as the node type on insert.
	NodeType string
	// PathField is the name of the string field carrying the document path.
	// Empty when the type does not expose its path.
	PathField string
	// PathIndex is the reflect index of PathField.
	PathIndex []int
	// Fields lists the mapped properties in declaration order.
	Fields []FieldMapping
	// RepositoryName selects a registered custom repository. Empty selects the
	// default document repository.
	RepositoryName string
}

// Field returns the mapping for a property name.
func (d *TypeDescriptor) Field(property string) (FieldMapping, bool) {
	for _, f := range d.Fields {
		if f.Property == property {
			return f, true
		}
	}
	return FieldMapping{}, false
}

// MetadataProvider resolves document types to descriptors. Implementations are
// expected to be pure and to cache their results.
type MetadataProvider interface {
	Describe(t reflect.Type) (*TypeDescriptor, error)
}

// ProxyFactory creates lazy placeholders. The returned value must be a pointer
// to a new instance of desc.Type whose loading is routed through loader.
// Factories return ErrNotLazy when the type cannot carry a lazy handle.
type ProxyFactory interface {
	CreatePlaceholder(desc *TypeDescriptor, path string, loader LoadFunc) (any, error)
}

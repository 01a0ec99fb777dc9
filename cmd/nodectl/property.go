package main

import (
	"encoding/json"
	"reflect"
	"sync"

	"nodemapper/internal/mapping"
	"nodemapper/pkg/domain"
)

// propertyDoc exposes a single node property as a document. The property it
// maps is chosen per command by propertyMetadata.
type propertyDoc struct {
	Path  string          `odm:",path"`
	Value json.RawMessage `odm:"value"`
}

var propertyDocType = reflect.TypeOf(&propertyDoc{})

// propertyMetadata describes propertyDoc with its value field renamed to the
// property and node type given on the command line. Other types are described
// by the default provider.
type propertyMetadata struct {
	base *mapping.Provider

	mu       sync.Mutex
	property string
	nodeType string
}

var _ domain.MetadataProvider = (*propertyMetadata)(nil)

func newPropertyMetadata() *propertyMetadata {
	return &propertyMetadata{base: mapping.NewProvider(), property: "value"}
}

func (m *propertyMetadata) bind(property, nodeType string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.property = property
	m.nodeType = nodeType
}

func (m *propertyMetadata) Describe(t reflect.Type) (*domain.TypeDescriptor, error) {
	desc, err := m.base.Describe(t)
	if err != nil || t != propertyDocType {
		return desc, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	bound := *desc
	bound.NodeType = m.nodeType
	bound.Fields = append([]domain.FieldMapping(nil), desc.Fields...)
	bound.Fields[0].Property = m.property
	return &bound, nil
}

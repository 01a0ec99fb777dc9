// Package mapping derives node mappings from struct tags.
//
// Fields are mapped with the `odm` tag:
//
//	Path   string   `odm:",path"`             // document path, not stored as a property
//	Title  string   `odm:"title"`             // stored as property "title"
//	Parent *Folder  `odm:"parent,reference"`  // stored as the referenced document's path
//	Draft  bool     `odm:"-"`                 // ignored
//
// Untagged exported fields are stored under their Go field name. Embedded
// structs without a tag are flattened; an embedded domain.Lazy is skipped.
package mapping

import (
	"fmt"
	"reflect"
	"strings"
	"sync"

	"nodemapper/pkg/domain"
)

const tagName = "odm"

var (
	lazyType   = reflect.TypeOf(domain.Lazy{})
	stringType = reflect.TypeOf("")
)

// NodeTyper lets a document choose the node type written on insert.
type NodeTyper interface {
	NodeType() string
}

// RepositoryNamer lets a document select a registered custom repository.
type RepositoryNamer interface {
	RepositoryName() string
}

// Provider is a caching, reflection based domain.MetadataProvider.
type Provider struct {
	mu    sync.RWMutex
	cache map[reflect.Type]*domain.TypeDescriptor
}

var _ domain.MetadataProvider = (*Provider)(nil)

// NewProvider returns an empty provider.
func NewProvider() *Provider {
	return &Provider{cache: make(map[reflect.Type]*domain.TypeDescriptor)}
}

// Describe returns the descriptor for t, which may be a struct or a pointer to
// a struct.
func (p *Provider) Describe(t reflect.Type) (*domain.TypeDescriptor, error) {
	if t == nil {
		return nil, domain.ErrNotDocument
	}
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return nil, fmt.Errorf("%w: got %s", domain.ErrNotDocument, t)
	}

	p.mu.RLock()
	desc, ok := p.cache[t]
	p.mu.RUnlock()
	if ok {
		return desc, nil
	}

	desc, err := describe(t)
	if err != nil {
		return nil, err
	}
	p.mu.Lock()
	if existing, ok := p.cache[t]; ok {
		desc = existing
	} else {
		p.cache[t] = desc
	}
	p.mu.Unlock()
	return desc, nil
}

func describe(t reflect.Type) (*domain.TypeDescriptor, error) {
	desc := &domain.TypeDescriptor{Type: t, NodeType: t.String()}
	seen := make(map[string]string)
	if err := collectFields(desc, t, nil, seen); err != nil {
		return nil, err
	}

	zero := reflect.New(t).Interface()
	if typer, ok := zero.(NodeTyper); ok && typer.NodeType() != "" {
		desc.NodeType = typer.NodeType()
	}
	if namer, ok := zero.(RepositoryNamer); ok {
		desc.RepositoryName = namer.RepositoryName()
	}
	return desc, nil
}

func collectFields(desc *domain.TypeDescriptor, t reflect.Type, prefix []int, seen map[string]string) error {
	for i := 0; i < t.NumField(); i++ {
		sf := t.Field(i)
		index := append(append([]int(nil), prefix...), i)
		tag, hasTag := sf.Tag.Lookup(tagName)
		if tag == "-" {
			continue
		}
		if sf.Anonymous {
			if sf.Type == lazyType {
				continue
			}
			if !hasTag && sf.Type.Kind() == reflect.Struct {
				if err := collectFields(desc, sf.Type, index, seen); err != nil {
					return err
				}
				continue
			}
		}
		if !sf.IsExported() {
			continue
		}

		name, opts := parseTag(tag)
		if opts["path"] {
			if sf.Type != stringType {
				return fmt.Errorf("%s.%s: path field must be a string", t, sf.Name)
			}
			if desc.PathField != "" {
				return fmt.Errorf("%s: duplicate path field %s", t, sf.Name)
			}
			desc.PathField = sf.Name
			desc.PathIndex = index
			continue
		}
		if name == "" {
			name = sf.Name
		}
		if other, dup := seen[name]; dup {
			return fmt.Errorf("%s: property %q mapped by both %s and %s", t, name, other, sf.Name)
		}
		seen[name] = sf.Name

		ref := opts["reference"]
		if ref && !isReferenceType(sf.Type) {
			return fmt.Errorf("%s.%s: reference must be a string or a pointer to a struct", t, sf.Name)
		}
		desc.Fields = append(desc.Fields, domain.FieldMapping{
			Name:      sf.Name,
			Property:  name,
			Index:     index,
			Reference: ref,
		})
	}
	return nil
}

func parseTag(tag string) (string, map[string]bool) {
	parts := strings.Split(tag, ",")
	opts := make(map[string]bool, len(parts)-1)
	for _, o := range parts[1:] {
		opts[strings.TrimSpace(o)] = true
	}
	return strings.TrimSpace(parts[0]), opts
}

func isReferenceType(t reflect.Type) bool {
	if t == stringType {
		return true
	}
	return t.Kind() == reflect.Pointer && t.Elem().Kind() == reflect.Struct
}

package mapping

import (
	"encoding/json"
	"fmt"
	"reflect"

	"nodemapper/pkg/domain"
)

// PathOf reports the tracked path of a referenced document.
type PathOf func(doc any) (string, bool)

// Resolver returns the document to assign to a reference field of type t
// (pointer to struct) for the given path.
type Resolver func(t reflect.Type, path string) (any, error)

// DocumentValue checks that doc is a non-nil pointer to a struct and returns
// the addressable struct value.
func DocumentValue(doc any) (reflect.Value, error) {
	v := reflect.ValueOf(doc)
	if !v.IsValid() || v.Kind() != reflect.Pointer || v.IsNil() || v.Elem().Kind() != reflect.Struct {
		return reflect.Value{}, domain.ErrNotDocument
	}
	return v.Elem(), nil
}

// Extract encodes every mapped field of doc into node properties. Reference
// fields are stored as the referenced document's path; the referenced paths
// are returned as dependencies.
func Extract(desc *domain.TypeDescriptor, doc any, pathOf PathOf) (domain.Properties, []string, error) {
	v, err := DocumentValue(doc)
	if err != nil {
		return nil, nil, err
	}
	props := make(domain.Properties, len(desc.Fields))
	var deps []string
	for _, f := range desc.Fields {
		fv := v.FieldByIndex(f.Index)
		if f.Reference {
			target, err := referencePath(fv, pathOf)
			if err != nil {
				return nil, nil, fmt.Errorf("%s.%s: %w", desc.Type, f.Name, err)
			}
			if target == "" {
				props[f.Property] = json.RawMessage("null")
				continue
			}
			deps = append(deps, target)
			props[f.Property], _ = json.Marshal(target)
			continue
		}
		raw, err := json.Marshal(fv.Interface())
		if err != nil {
			return nil, nil, fmt.Errorf("encode %s.%s: %w", desc.Type, f.Name, err)
		}
		props[f.Property] = raw
	}
	return props, deps, nil
}

func referencePath(fv reflect.Value, pathOf PathOf) (string, error) {
	if fv.Kind() == reflect.String {
		return fv.String(), nil
	}
	if fv.IsNil() {
		return "", nil
	}
	if pathOf == nil {
		return "", fmt.Errorf("reference cannot be resolved")
	}
	p, ok := pathOf(fv.Interface())
	if !ok || p == "" {
		return "", fmt.Errorf("reference to a document that is not managed")
	}
	return p, nil
}

// Assign decodes props into doc. Mapped properties missing from props are
// reset to their zero value. Pointer references are resolved through resolve.
func Assign(desc *domain.TypeDescriptor, doc any, props domain.Properties, resolve Resolver) error {
	v, err := DocumentValue(doc)
	if err != nil {
		return err
	}
	for _, f := range desc.Fields {
		fv := v.FieldByIndex(f.Index)
		raw, ok := props[f.Property]
		if !ok || domain.IsNull(raw) {
			fv.Set(reflect.Zero(fv.Type()))
			continue
		}
		if f.Reference {
			var target string
			if err := json.Unmarshal(raw, &target); err != nil {
				return fmt.Errorf("decode reference %s.%s: %w", desc.Type, f.Name, err)
			}
			if fv.Kind() == reflect.String {
				fv.SetString(target)
				continue
			}
			if resolve == nil {
				return fmt.Errorf("%s.%s: no resolver for reference %s", desc.Type, f.Name, target)
			}
			ref, err := resolve(fv.Type().Elem(), target)
			if err != nil {
				return fmt.Errorf("resolve %s.%s: %w", desc.Type, f.Name, err)
			}
			fv.Set(reflect.ValueOf(ref))
			continue
		}
		fresh := reflect.New(fv.Type())
		if err := json.Unmarshal(raw, fresh.Interface()); err != nil {
			return fmt.Errorf("decode %s.%s: %w", desc.Type, f.Name, err)
		}
		fv.Set(fresh.Elem())
	}
	return nil
}

// SetPath writes p into the descriptor's path field, if any.
func SetPath(desc *domain.TypeDescriptor, doc any, p string) {
	if desc.PathIndex == nil {
		return
	}
	if v, err := DocumentValue(doc); err == nil {
		v.FieldByIndex(desc.PathIndex).SetString(p)
	}
}

// GetPath reads the descriptor's path field, if any.
func GetPath(desc *domain.TypeDescriptor, doc any) string {
	if desc.PathIndex == nil {
		return ""
	}
	v, err := DocumentValue(doc)
	if err != nil {
		return ""
	}
	return v.FieldByIndex(desc.PathIndex).String()
}

package domain

import (
	"bytes"
	"encoding/json"
	"sort"
)

// Properties holds the JSON encoded property values of a node keyed by
// property name.
type Properties map[string]json.RawMessage

// Clone returns a deep copy of the property set.
func (p Properties) Clone() Properties {
	if p == nil {
		return nil
	}
	out := make(Properties, len(p))
	for k, v := range p {
		out[k] = cloneRawMessage(v)
	}
	return out
}

// Names returns the property names in ascending order.
func (p Properties) Names() []string {
	names := make([]string, 0, len(p))
	for k := range p {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Subset returns a copy restricted to the given names. Names absent from the
// set are carried as JSON null so a write removes them.
func (p Properties) Subset(names []string) Properties {
	out := make(Properties, len(names))
	for _, n := range names {
		if v, ok := p[n]; ok {
			out[n] = cloneRawMessage(v)
			continue
		}
		out[n] = json.RawMessage("null")
	}
	return out
}

// Diff lists the property names whose encoding differs between p and other,
// in ascending order. A property missing on one side counts as a difference.
func (p Properties) Diff(other Properties) []string {
	var changed []string
	for k, v := range p {
		ov, ok := other[k]
		if !ok || !bytes.Equal(v, ov) {
			changed = append(changed, k)
		}
	}
	for k := range other {
		if _, ok := p[k]; !ok {
			changed = append(changed, k)
		}
	}
	sort.Strings(changed)
	return changed
}

// IsNull reports whether a raw property value is absent or JSON null.
func IsNull(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}

// Node is the repository-side representation of a document.
type Node struct {
	Path       string     `json:"path"`
	Type       string     `json:"type,omitempty"`
	Properties Properties `json:"properties"`
}

// Clone returns a deep copy of the node.
func (n Node) Clone() Node {
	n.Properties = n.Properties.Clone()
	return n
}

// Merge applies a write onto n: non-null properties replace existing values,
// null properties remove them and a non-empty type replaces the node type.
func (n Node) Merge(write Node) Node {
	out := n.Clone()
	if out.Properties == nil {
		out.Properties = make(Properties, len(write.Properties))
	}
	if write.Type != "" {
		out.Type = write.Type
	}
	for k, v := range write.Properties {
		if IsNull(v) {
			delete(out.Properties, k)
			continue
		}
		out.Properties[k] = cloneRawMessage(v)
	}
	return out
}

func cloneRawMessage(raw json.RawMessage) json.RawMessage {
	if raw == nil {
		return nil
	}
	out := make(json.RawMessage, len(raw))
	copy(out, raw)
	return out
}

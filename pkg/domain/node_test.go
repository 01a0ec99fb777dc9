package domain

import (
	"encoding/json"
	"reflect"
	"testing"
)

func props(kv ...string) Properties {
	p := make(Properties, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		p[kv[i]] = json.RawMessage(kv[i+1])
	}
	return p
}

func TestPropertiesDiff(t *testing.T) {
	before := props("a", `1`, "b", `"x"`, "c", `true`)
	after := props("a", `1`, "b", `"y"`, "d", `null`)
	if got := before.Diff(after); !reflect.DeepEqual(got, []string{"b", "c", "d"}) {
		t.Fatalf("diff = %v", got)
	}
	if got := before.Diff(before.Clone()); len(got) != 0 {
		t.Fatalf("identical sets differ: %v", got)
	}
}

func TestPropertiesCloneAndSubset(t *testing.T) {
	p := props("a", `[1,2]`, "b", `2`)
	c := p.Clone()
	c["a"][1] = '9'
	if string(p["a"]) != `[1,2]` {
		t.Fatalf("clone shares bytes")
	}
	if Properties(nil).Clone() != nil {
		t.Fatalf("nil clone must stay nil")
	}
	sub := p.Subset([]string{"b", "gone"})
	if string(sub["b"]) != "2" || string(sub["gone"]) != "null" || len(sub) != 2 {
		t.Fatalf("subset = %v", sub)
	}
	if got := p.Names(); !reflect.DeepEqual(got, []string{"a", "b"}) {
		t.Fatalf("names = %v", got)
	}
}

func TestNodeMerge(t *testing.T) {
	base := Node{Path: "/n", Type: "folder", Properties: props("a", `1`, "b", `2`)}
	merged := base.Merge(Node{Properties: props("a", `3`, "b", ` null `, "c", `"new"`)})
	if merged.Type != "folder" {
		t.Fatalf("type = %q", merged.Type)
	}
	want := props("a", `3`, "c", `"new"`)
	if !reflect.DeepEqual(merged.Properties, want) {
		t.Fatalf("merged = %v", merged.Properties)
	}
	if string(base.Properties["a"]) != "1" {
		t.Fatalf("merge mutated the receiver")
	}
	retyped := Node{}.Merge(Node{Type: "article"})
	if retyped.Type != "article" || retyped.Properties == nil {
		t.Fatalf("unexpected %+v", retyped)
	}
}

func TestIsNull(t *testing.T) {
	for _, raw := range []string{"", "null", "  null\n"} {
		if !IsNull(json.RawMessage(raw)) {
			t.Fatalf("IsNull(%q) = false", raw)
		}
	}
	if IsNull(json.RawMessage(`0`)) || IsNull(json.RawMessage(`"null"`)) {
		t.Fatalf("non-null values reported as null")
	}
}

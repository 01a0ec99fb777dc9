package proxy

import (
	"context"
	"errors"
	"reflect"
	"sync/atomic"
	"testing"

	"nodemapper/internal/mapping"
	"nodemapper/pkg/domain"
)

type lazyDoc struct {
	domain.Lazy
	Path  string `odm:",path"`
	Title string `odm:"title"`
}

type eagerDoc struct {
	Path string `odm:",path"`
}

func TestCreatePlaceholderBindsLoader(t *testing.T) {
	desc, err := mapping.NewProvider().Describe(reflect.TypeOf(&lazyDoc{}))
	if err != nil {
		t.Fatalf("describe: %v", err)
	}
	var calls int32
	var doc *lazyDoc
	obj, err := NewFactory().CreatePlaceholder(desc, "/a", func(context.Context) error {
		atomic.AddInt32(&calls, 1)
		doc.Title = "loaded"
		doc.MarkLoaded()
		return nil
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	doc = obj.(*lazyDoc)
	if doc.Path != "/a" {
		t.Fatalf("expected path on placeholder, got %q", doc.Path)
	}
	if !IsPlaceholder(doc) {
		t.Fatalf("expected unloaded placeholder")
	}
	for i := 0; i < 3; i++ {
		if err := doc.Load(context.Background()); err != nil {
			t.Fatalf("load: %v", err)
		}
	}
	if calls != 1 || doc.Title != "loaded" || IsPlaceholder(doc) {
		t.Fatalf("expected exactly one load, calls=%d doc=%+v", calls, doc)
	}
}

func TestCreatePlaceholderRejectsEagerTypes(t *testing.T) {
	desc, err := mapping.NewProvider().Describe(reflect.TypeOf(&eagerDoc{}))
	if err != nil {
		t.Fatalf("describe: %v", err)
	}
	noop := func(context.Context) error { return nil }
	if _, err := NewFactory().CreatePlaceholder(desc, "/a", noop); !errors.Is(err, domain.ErrNotLazy) {
		t.Fatalf("expected ErrNotLazy, got %v", err)
	}
	if _, err := NewFactory().CreatePlaceholder(nil, "/a", noop); !errors.Is(err, domain.ErrNotDocument) {
		t.Fatalf("expected ErrNotDocument, got %v", err)
	}
	if _, err := NewFactory().CreatePlaceholder(desc, "/a", nil); err == nil {
		t.Fatalf("expected error without loader")
	}
	if IsPlaceholder(&eagerDoc{}) {
		t.Fatalf("eager documents are never placeholders")
	}
}

package events

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func TestBusDispatchesInOrder(t *testing.T) {
	bus := NewBus()
	var got []string
	bus.Subscribe("preFlush", func(_ context.Context, name string, _ any) error {
		got = append(got, "a:"+name)
		return nil
	})
	bus.Subscribe("preFlush", func(_ context.Context, name string, _ any) error {
		got = append(got, "b:"+name)
		return nil
	})
	bus.Subscribe("", func(_ context.Context, name string, _ any) error {
		got = append(got, "*:"+name)
		return nil
	})
	bus.Subscribe("other", nil)

	if err := bus.Dispatch(context.Background(), "preFlush", nil); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if err := bus.Dispatch(context.Background(), "postFlush", nil); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	want := "a:preFlush,b:preFlush,*:preFlush,*:postFlush"
	if strings.Join(got, ",") != want {
		t.Fatalf("got %v, want %s", got, want)
	}
}

func TestBusCollectsFailuresAndPanics(t *testing.T) {
	bus := NewBus()
	boom := errors.New("boom")
	var reached bool
	bus.Subscribe("x", func(context.Context, string, any) error { return boom })
	bus.Subscribe("x", func(context.Context, string, any) error { panic("kaboom") })
	bus.Subscribe("x", func(context.Context, string, any) error {
		reached = true
		return nil
	})

	err := bus.Dispatch(context.Background(), "x", 1)
	if !errors.Is(err, boom) {
		t.Fatalf("expected joined error to contain boom, got %v", err)
	}
	if !strings.Contains(err.Error(), "panicked") {
		t.Fatalf("expected panic to be reported, got %v", err)
	}
	if !reached {
		t.Fatalf("later listeners must still run")
	}
}

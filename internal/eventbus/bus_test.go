package eventbus

import (
	"context"
	"testing"
	"time"

	"pkt.systems/tabtree/core"
	"pkt.systems/tabtree/internal/memtabs"
	"pkt.systems/tabtree/schema"
)

var _ core.EventSink = (*Bus)(nil)

func TestSubscribeAndPublish(t *testing.T) {
	bus := New(nil)
	ch, cancel := bus.Subscribe(1)
	defer cancel()

	event := schema.TreeEvent{Type: schema.TreeEventAttached, WindowID: 1, Tab: "b", Attached: schema.AttachedEvent{Parent: "a"}}
	bus.OnTreeEvent(event)

	select {
	case got := <-ch:
		if got.Type != schema.TreeEventAttached {
			t.Fatalf("expected attached event, got %v", got.Type)
		}
		if got.Tab != "b" || got.Attached.Parent != "a" {
			t.Fatalf("unexpected payload: %+v", got)
		}
	case <-time.After(500 * time.Millisecond):
		t.Fatalf("timed out waiting for event")
	}
}

func TestPublishFiltersByWindow(t *testing.T) {
	bus := New(nil)
	one, cancelOne := bus.Subscribe(1)
	defer cancelOne()
	all, cancelAll := bus.Subscribe(schema.NoWindow)
	defer cancelAll()

	bus.OnTreeEvent(schema.TreeEvent{Type: schema.TreeEventMoved, WindowID: 2, Tab: "x"})

	select {
	case got := <-one:
		t.Fatalf("window 1 subscriber received window 2 event: %+v", got)
	default:
	}
	select {
	case got := <-all:
		if got.WindowID != 2 {
			t.Fatalf("expected window 2 event, got %+v", got)
		}
	default:
		t.Fatalf("expected catch-all subscriber to receive event")
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	bus := New(nil)
	ch, cancel := bus.Subscribe(1)
	cancel()
	cancel()
	if _, ok := <-ch; ok {
		t.Fatalf("expected channel to be closed")
	}
	if got := bus.Subscribers(1); got != 0 {
		t.Fatalf("expected no subscribers, got %d", got)
	}
}

func TestPublishDoesNotBlockWhenFull(t *testing.T) {
	bus := New(nil)
	bus.depth = 1
	_, cancel := bus.Subscribe(1)
	defer cancel()

	bus.OnTreeEvent(schema.TreeEvent{Type: schema.TreeEventMoved, WindowID: 1})
	done := make(chan struct{})
	go func() {
		bus.OnTreeEvent(schema.TreeEvent{Type: schema.TreeEventMoved, WindowID: 1})
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(500 * time.Millisecond):
		t.Fatalf("publish blocked on full channel")
	}
}

func TestBusReceivesTreeEvents(t *testing.T) {
	ctx := context.Background()
	bus := New(nil)
	ch, cancel := bus.Subscribe(1)
	defer cancel()

	svc := memtabs.New(memtabs.Options{})
	tree, err := core.NewTree(schema.DefaultTreeConfig(), core.TreeDeps{Service: svc, EventSink: bus})
	if err != nil {
		t.Fatalf("new tree: %v", err)
	}
	svc.SetListener(tree)
	if _, err := svc.Create(ctx, schema.CreateParams{WindowID: 1, PersistentID: "a", Index: -1}); err != nil {
		t.Fatalf("create: %v", err)
	}

	select {
	case got := <-ch:
		if got.Type != schema.TreeEventCreated || got.Tab != "a" {
			t.Fatalf("expected created event for a, got %+v", got)
		}
	case <-time.After(500 * time.Millisecond):
		t.Fatalf("timed out waiting for tree event")
	}
}

package core

import (
	"slices"
	"testing"

	"pkt.systems/tabtree/schema"
)

func TestDropTreeOntoTab(t *testing.T) {
	f := newFixture(t, []string{"A", "B", "C", "D"})
	f.attach(t, "B", "A")

	dropped, err := f.tree.PerformDragDrop(f.ctx, DragDropParams{
		Tabs:     []schema.TabID{"A", "B"},
		AttachTo: "D",
		Attach:   true,
	})
	if err != nil {
		t.Fatalf("drop: %v", err)
	}
	if !slices.Equal(dropped, []schema.TabID{"A", "B"}) {
		t.Fatalf("dropped = %v", dropped)
	}
	want := []string{"C", "D", "A", "B"}
	if got := f.order(testWindow); !slices.Equal(got, want) {
		t.Fatalf("order = %v, want %v", got, want)
	}
	if got := f.serviceOrder(t, testWindow); !slices.Equal(got, want) {
		t.Fatalf("service order = %v, want %v", got, want)
	}
	if f.parent("A") != "D" || f.parent("B") != "A" {
		t.Fatalf("unexpected parents A=%q B=%q", f.parent("A"), f.parent("B"))
	}
	checkInvariants(t, f.tree)
}

func TestDropPartialTreeAsRoot(t *testing.T) {
	f := newFixture(t, []string{"A", "B", "C"})
	f.attach(t, "B", "A")

	if _, err := f.tree.PerformDragDrop(f.ctx, DragDropParams{
		Tabs:        []schema.TabID{"A"},
		InsertAfter: "C",
	}); err != nil {
		t.Fatalf("drop: %v", err)
	}
	want := []string{"B", "C", "A"}
	if got := f.order(testWindow); !slices.Equal(got, want) {
		t.Fatalf("order = %v, want %v", got, want)
	}
	if got := f.serviceOrder(t, testWindow); !slices.Equal(got, want) {
		t.Fatalf("service order = %v, want %v", got, want)
	}
	if f.parent("B") != "" || f.parent("A") != "" {
		t.Fatalf("dragged parent should leave its children behind")
	}
	checkInvariants(t, f.tree)
}

func TestDropIntoAnotherWindow(t *testing.T) {
	f := newFixture(t, []string{"A", "B"})
	f.open(t, 2, "W")
	f.open(t, 2, "X")

	dropped, err := f.tree.PerformDragDrop(f.ctx, DragDropParams{
		Tabs:              []schema.TabID{"B"},
		DestinationWindow: 2,
		AttachTo:          "W",
		Attach:            true,
		InsertAfter:       "W",
	})
	if err != nil {
		t.Fatalf("drop: %v", err)
	}
	if !slices.Equal(dropped, []schema.TabID{"B"}) {
		t.Fatalf("dropped = %v", dropped)
	}
	if got := f.order(2); !slices.Equal(got, []string{"W", "B", "X"}) {
		t.Fatalf("destination order = %v", got)
	}
	if f.parent("B") != "W" {
		t.Fatalf("parent of B = %q, want W", f.parent("B"))
	}
	if active := f.tree.ActiveTab(2); active != "B" {
		t.Fatalf("dropped tab should be focused, active %q", active)
	}
	checkInvariants(t, f.tree)
}

package core

import (
	"errors"
	"slices"
	"testing"

	"pkt.systems/tabtree/internal/memtabs"
	"pkt.systems/tabtree/schema"
)

var _ memtabs.Listener = (*Tree)(nil)

func TestAttachSetsLevelsAndChildren(t *testing.T) {
	f := newFixture(t, []string{"A", "B", "C", "D"})
	f.attach(t, "B", "A")
	f.attach(t, "C", "B")
	f.attach(t, "D", "A")

	if got := f.order(testWindow); !slices.Equal(got, []string{"A", "B", "C", "D"}) {
		t.Fatalf("order = %v", got)
	}
	if got := f.children("A"); !slices.Equal(got, []string{"B", "D"}) {
		t.Fatalf("children of A = %v", got)
	}
	if f.parent("C") != "B" {
		t.Fatalf("parent of C = %q", f.parent("C"))
	}
	for id, want := range map[string]int{"A": 0, "B": 1, "C": 2, "D": 1} {
		view, _ := f.tree.Tab(schema.TabID(id))
		if view.Level != want {
			t.Fatalf("level of %s = %d, want %d", id, view.Level, want)
		}
	}
	if got := f.tree.Ancestors("C"); !slices.Equal(got, []schema.TabID{"B", "A"}) {
		t.Fatalf("ancestors of C = %v", got)
	}
	if got := f.tree.Descendants("A"); !slices.Equal(got, []schema.TabID{"B", "C", "D"}) {
		t.Fatalf("descendants of A = %v", got)
	}
	if root := f.tree.Root("C"); root != "A" {
		t.Fatalf("root of C = %q", root)
	}
	checkInvariants(t, f.tree)
}

func TestAttachMovesChildAfterLastDescendant(t *testing.T) {
	f := newFixture(t, []string{"A", "B", "C", "D"})
	f.attach(t, "B", "A")
	f.events.reset()
	f.attach(t, "D", "A")

	want := []string{"A", "B", "D", "C"}
	if got := f.order(testWindow); !slices.Equal(got, want) {
		t.Fatalf("order = %v, want %v", got, want)
	}
	if got := f.serviceOrder(t, testWindow); !slices.Equal(got, want) {
		t.Fatalf("service order = %v, want %v", got, want)
	}
	if got := f.children("A"); !slices.Equal(got, []string{"B", "D"}) {
		t.Fatalf("children of A = %v", got)
	}
	for i, id := range want {
		view, _ := f.tree.Tab(schema.TabID(id))
		if view.Index != i {
			t.Fatalf("index of %s = %d, want %d", id, view.Index, i)
		}
	}
	attached := f.events.ofType(schema.TreeEventAttached)
	if len(attached) != 1 || attached[0].Tab != "D" || !attached[0].Attached.NewlyAttached || attached[0].Attached.Parent != "A" {
		t.Fatalf("unexpected attached events %+v", attached)
	}
	if moved := f.events.ofType(schema.TreeEventMoved); len(moved) != 1 || moved[0].Tab != "D" {
		t.Fatalf("unexpected moved events %+v", moved)
	}
	counters, _ := f.tree.Counters(testWindow)
	if counters != (Counters{}) {
		t.Fatalf("counters not settled: %+v", counters)
	}
	checkInvariants(t, f.tree)
}

func TestAttachInsertAtFirst(t *testing.T) {
	f := newFixture(t, []string{"A", "B", "C"}, withConfig(func(cfg *schema.TreeConfig) {
		cfg.InsertNewChildAt = schema.InsertAtFirst
	}))
	f.attach(t, "B", "A")
	f.attach(t, "C", "A")

	want := []string{"A", "C", "B"}
	if got := f.order(testWindow); !slices.Equal(got, want) {
		t.Fatalf("order = %v, want %v", got, want)
	}
	if got := f.serviceOrder(t, testWindow); !slices.Equal(got, want) {
		t.Fatalf("service order = %v, want %v", got, want)
	}
	if got := f.children("A"); !slices.Equal(got, []string{"C", "B"}) {
		t.Fatalf("children of A = %v", got)
	}
	checkInvariants(t, f.tree)
}

func TestAttachRejectsInvalidStructure(t *testing.T) {
	f := newFixture(t, []string{"A", "B", "C"})
	f.attach(t, "B", "A")
	f.attach(t, "C", "B")
	if _, err := f.svc.Create(f.ctx, schema.CreateParams{WindowID: testWindow, PersistentID: "P", Index: -1, Pinned: true}); err != nil {
		t.Fatalf("create pinned: %v", err)
	}
	f.open(t, 2, "W")

	tests := []struct {
		name   string
		child  string
		parent string
		want   error
	}{
		{name: "self", child: "A", parent: "A", want: schema.ErrCycle},
		{name: "descendant", child: "A", parent: "C", want: schema.ErrCycle},
		{name: "pinned child", child: "P", parent: "A", want: schema.ErrPinned},
		{name: "pinned parent", child: "C", parent: "P", want: schema.ErrPinned},
		{name: "other window", child: "W", parent: "A", want: schema.ErrCrossWindow},
		{name: "missing", child: "Z", parent: "A", want: schema.ErrTabNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := f.tree.Attach(f.ctx, schema.TabID(tt.child), schema.TabID(tt.parent), AttachOptions{})
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
			if tt.want != schema.ErrTabNotFound && !errors.Is(err, schema.ErrInvalidStructure) {
				t.Fatalf("expected invalid structure, got %v", err)
			}
		})
	}
	if f.parent("A") != "" || f.parent("C") != "B" || f.parent("W") != "" {
		t.Fatalf("rejected attach changed the tree")
	}
	if view, _ := f.tree.Tab("P"); view.Level != schema.NoLevel {
		t.Fatalf("pinned level = %d", view.Level)
	}
	checkInvariants(t, f.tree)
}

func TestDetachMakesRoot(t *testing.T) {
	f := newFixture(t, []string{"A", "B", "C"})
	f.attach(t, "B", "A")
	f.attach(t, "C", "B")

	if err := f.tree.Detach(f.ctx, "B", DetachOptions{}); err != nil {
		t.Fatalf("detach: %v", err)
	}
	if f.parent("B") != "" || len(f.children("A")) != 0 {
		t.Fatalf("B still attached to A")
	}
	if view, _ := f.tree.Tab("C"); view.Level != 1 || view.Parent != "B" {
		t.Fatalf("unexpected view of C %+v", view)
	}
	if err := f.tree.Detach(f.ctx, "Z", DetachOptions{}); !errors.Is(err, schema.ErrTabNotFound) {
		t.Fatalf("expected tab not found, got %v", err)
	}
	detached := f.events.ofType(schema.TreeEventDetached)
	if len(detached) != 1 || detached[0].Detached.OldParent != "A" {
		t.Fatalf("unexpected detached events %+v", detached)
	}
	checkInvariants(t, f.tree)
}

func TestAttachUnderCollapsedParent(t *testing.T) {
	f := newFixture(t, []string{"A", "B", "C", "D"})
	f.attach(t, "B", "A")
	if err := f.tree.CollapseExpandSubtree(f.ctx, "A", CollapseOptions{Collapsed: true}); err != nil {
		t.Fatalf("collapse: %v", err)
	}
	f.attach(t, "C", "A")
	if record := f.record(t, "C"); !record.collapsed {
		t.Fatalf("child of collapsed parent is visible")
	}
	if err := f.tree.Attach(f.ctx, "D", "A", AttachOptions{ForceExpand: true}); err != nil {
		t.Fatalf("attach: %v", err)
	}
	if f.record(t, "A").subtreeCollapsed {
		t.Fatalf("force expand left parent collapsed")
	}
	for _, id := range []string{"B", "C", "D"} {
		if f.record(t, id).collapsed {
			t.Fatalf("%s still collapsed after force expand", id)
		}
	}
	checkInvariants(t, f.tree)
}

func TestAttachPublishesCommand(t *testing.T) {
	commands := &commandLog{}
	f := newFixture(t, []string{"A", "B"}, withBroadcaster(commands))
	if err := f.tree.Attach(f.ctx, "B", "A", AttachOptions{Broadcast: true}); err != nil {
		t.Fatalf("attach: %v", err)
	}
	got := commands.snapshot()
	if len(got) != 1 {
		t.Fatalf("expected one command, got %+v", got)
	}
	if got[0].Type != schema.CommandAttachTabTo || got[0].Tab != "B" || got[0].Parent != "A" || got[0].InsertAfter != "A" {
		t.Fatalf("unexpected command %+v", got[0])
	}
}

func TestDetachTabsFromTreeRehomesChildren(t *testing.T) {
	f := newFixture(t, []string{"A", "B", "C"})
	f.attach(t, "B", "A")
	f.attach(t, "C", "B")

	f.tree.DetachTabsFromTree(f.ctx, []schema.TabID{"B"})
	if f.parent("B") != "" {
		t.Fatalf("B still has parent %q", f.parent("B"))
	}
	if f.parent("C") != "A" {
		t.Fatalf("C parent = %q, want A", f.parent("C"))
	}
	checkInvariants(t, f.tree)
}

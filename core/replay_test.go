package core

import (
	"errors"
	"slices"
	"testing"

	"pkt.systems/tabtree/schema"
)

func TestApplyIsIdempotent(t *testing.T) {
	commands := &commandLog{}
	f := newFixture(t, []string{"A", "B", "C"}, withBroadcaster(commands))
	attach := schema.Command{Seq: 1, Type: schema.CommandAttachTabTo, WindowID: testWindow, Tab: "B", Parent: "A", DontMove: true}

	if err := f.tree.Apply(f.ctx, attach); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if f.parent("B") != "A" {
		t.Fatalf("attach not applied")
	}
	f.events.reset()
	if err := f.tree.Apply(f.ctx, attach); err != nil {
		t.Fatalf("apply again: %v", err)
	}
	attach.Seq = 0
	if err := f.tree.Apply(f.ctx, attach); err != nil {
		t.Fatalf("apply without sequence: %v", err)
	}
	if len(f.events.ofType(schema.TreeEventAttached)) != 0 {
		t.Fatalf("repeated command changed the tree")
	}
	if got := commands.snapshot(); len(got) != 0 {
		t.Fatalf("replayed commands must not be republished: %+v", got)
	}
	checkInvariants(t, f.tree)
}

func TestApplyCommands(t *testing.T) {
	f := newFixture(t, []string{"A", "B", "C"})
	steps := []schema.Command{
		{Seq: 1, Type: schema.CommandAttachTabTo, WindowID: testWindow, Tab: "C", Parent: "A", InsertAfter: "A"},
		{Seq: 2, Type: schema.CommandChangeSubtreeCollapsedState, WindowID: testWindow, Tab: "A", Collapsed: true},
		{Seq: 3, Type: schema.CommandBlockUserOperations, WindowID: testWindow, Throbber: true},
	}
	for _, cmd := range steps {
		if err := f.tree.Apply(f.ctx, cmd); err != nil {
			t.Fatalf("apply %s: %v", cmd.Type, err)
		}
	}
	if got := f.order(testWindow); !slices.Equal(got, []string{"A", "C", "B"}) {
		t.Fatalf("order = %v", got)
	}
	if got := f.serviceOrder(t, testWindow); !slices.Equal(got, []string{"A", "B", "C"}) {
		t.Fatalf("replay must not move service tabs, got %v", got)
	}
	if !f.record(t, "A").subtreeCollapsed || !f.record(t, "C").collapsed {
		t.Fatalf("collapse not applied")
	}
	if !f.tree.Blocked(testWindow) {
		t.Fatalf("block not applied")
	}

	more := []schema.Command{
		{Seq: 4, Type: schema.CommandUnblockUserOperations, WindowID: testWindow, Throbber: true},
		{Seq: 5, Type: schema.CommandChangeSubtreeCollapsedState, WindowID: testWindow, Tab: "A", Collapsed: false},
		{Seq: 6, Type: schema.CommandDetachTab, WindowID: testWindow, Tab: "C"},
		{Seq: 7, Type: schema.CommandMoveTabsAfter, WindowID: testWindow, Tab: "C", Tabs: []schema.TabID{"A"}},
		{Seq: 8, Type: schema.CommandRemoveTabsInternally, WindowID: testWindow, Tabs: []schema.TabID{"B"}},
		{Seq: 9, Type: schema.CommandChangeTabCollapsedState, WindowID: testWindow, Tab: "B", Collapsed: true},
	}
	for _, cmd := range more {
		if err := f.tree.Apply(f.ctx, cmd); err != nil {
			t.Fatalf("apply %s: %v", cmd.Type, err)
		}
	}
	if f.tree.Blocked(testWindow) {
		t.Fatalf("unblock not applied")
	}
	if f.parent("C") != "" {
		t.Fatalf("detach not applied")
	}
	if got := f.order(testWindow); !slices.Equal(got, []string{"C", "A", "B"}) {
		t.Fatalf("order = %v", got)
	}
	record := f.record(t, "B")
	if !record.removing || !record.collapsed {
		t.Fatalf("unexpected record %+v", record)
	}
}

func TestApplyRejectsUnknownCommand(t *testing.T) {
	f := newFixture(t, []string{"A"})
	err := f.tree.Apply(f.ctx, schema.Command{Type: "explode", WindowID: testWindow})
	if !errors.Is(err, schema.ErrInvalidCommand) {
		t.Fatalf("expected invalid command, got %v", err)
	}
}

func TestApplyIgnoresMissingTabs(t *testing.T) {
	f := newFixture(t, []string{"A"})
	for _, cmd := range []schema.Command{
		{Type: schema.CommandAttachTabTo, WindowID: testWindow, Tab: "Z", Parent: "A"},
		{Type: schema.CommandDetachTab, WindowID: testWindow, Tab: "Z"},
		{Type: schema.CommandMoveTabsBefore, WindowID: testWindow, Tab: "Z", Tabs: []schema.TabID{"A"}},
		{Type: schema.CommandChangeSubtreeCollapsedState, WindowID: testWindow, Tab: "Z", Collapsed: true},
	} {
		if err := f.tree.Apply(f.ctx, cmd); err != nil {
			t.Fatalf("apply %s: %v", cmd.Type, err)
		}
	}
}

func TestApplyTracksSequencePerWindow(t *testing.T) {
	f := newFixture(t, []string{"A", "B"})
	f.open(t, 2, "C")
	f.open(t, 2, "D")

	later := schema.Command{Seq: 2, Type: schema.CommandAttachTabTo, WindowID: testWindow, Tab: "B", Parent: "A", DontMove: true}
	earlier := schema.Command{Seq: 1, Type: schema.CommandAttachTabTo, WindowID: 2, Tab: "D", Parent: "C", DontMove: true}
	for _, cmd := range []schema.Command{later, earlier} {
		if err := f.tree.Apply(f.ctx, cmd); err != nil {
			t.Fatalf("apply seq %d: %v", cmd.Seq, err)
		}
	}
	if f.parent("B") != "A" || f.parent("D") != "C" {
		t.Fatalf("parents = %q, %q, want A, C", f.parent("B"), f.parent("D"))
	}

	f.events.reset()
	stale := schema.Command{Seq: 1, Type: schema.CommandDetachTab, WindowID: testWindow, Tab: "B"}
	if err := f.tree.Apply(f.ctx, stale); err != nil {
		t.Fatalf("apply stale: %v", err)
	}
	if f.parent("B") != "A" {
		t.Fatalf("command below the window sequence was applied")
	}
	checkInvariants(t, f.tree)
}

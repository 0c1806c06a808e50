package core

import (
	"errors"
	"slices"
	"testing"

	"pkt.systems/tabtree/schema"
)

func TestGroupTabs(t *testing.T) {
	f := newFixture(t, []string{"A", "B", "C", "D"})
	f.attach(t, "C", "B")

	group, err := f.tree.GroupTabs(f.ctx, []schema.TabID{"B", "C", "D"})
	if err != nil {
		t.Fatalf("group: %v", err)
	}
	want := []string{"A", string(group), "B", "C", "D"}
	if got := f.order(testWindow); !slices.Equal(got, want) {
		t.Fatalf("order = %v, want %v", got, want)
	}
	if got := f.serviceOrder(t, testWindow); !slices.Equal(got, want) {
		t.Fatalf("service order = %v, want %v", got, want)
	}
	if got := f.children(string(group)); !slices.Equal(got, []string{"B", "D"}) {
		t.Fatalf("children of group = %v", got)
	}
	if f.parent("C") != "B" {
		t.Fatalf("structure inside the selection was lost")
	}
	record := f.record(t, string(group))
	if !record.groupTab || record.url != schema.DefaultGroupTabURL {
		t.Fatalf("unexpected group record %+v", record)
	}
	counters, _ := f.tree.Counters(testWindow)
	if counters.ToBeOpenedOrphans != 0 || counters.ToBeOpenedWithPositions != 0 {
		t.Fatalf("open counters left behind: %+v", counters)
	}
	checkInvariants(t, f.tree)
}

func TestGroupTabsKeepsParent(t *testing.T) {
	f := newFixture(t, []string{"A", "B", "C"})
	f.attach(t, "B", "A")
	f.attach(t, "C", "A")

	group, err := f.tree.GroupTabs(f.ctx, []schema.TabID{"B", "C"})
	if err != nil {
		t.Fatalf("group: %v", err)
	}
	if f.parent(string(group)) != "A" {
		t.Fatalf("group parent = %q, want A", f.parent(string(group)))
	}
	if f.parent("B") != string(group) || f.parent("C") != string(group) {
		t.Fatalf("members not attached to group")
	}
	checkInvariants(t, f.tree)
}

func TestGroupTabsMissing(t *testing.T) {
	f := newFixture(t, []string{"A"})
	if _, err := f.tree.GroupTabs(f.ctx, []schema.TabID{"Z"}); !errors.Is(err, schema.ErrTabNotFound) {
		t.Fatalf("expected tab not found, got %v", err)
	}
}

func TestBehaveAutoAttachedTab(t *testing.T) {
	tests := []struct {
		name     string
		behavior schema.NewTabBehavior
		base     string
		parent   string
		attached bool
		order    []string
	}{
		{name: "child", behavior: schema.NewTabOpenAsChild, base: "B", parent: "B", attached: true, order: []string{"A", "B", "N", "C"}},
		{name: "sibling", behavior: schema.NewTabOpenAsSibling, base: "B", parent: "A", attached: true, order: []string{"A", "B", "N", "C"}},
		{name: "next sibling", behavior: schema.NewTabOpenAsNextSibling, base: "B", parent: "A", attached: true, order: []string{"A", "B", "N", "C"}},
		{name: "orphan", behavior: schema.NewTabOpenAsOrphan, base: "B", parent: "", attached: false, order: []string{"A", "B", "C", "N"}},
		{name: "sibling of root", behavior: schema.NewTabOpenAsSibling, base: "A", parent: "", attached: true, order: []string{"A", "B", "C", "N"}},
		{name: "next sibling of root", behavior: schema.NewTabOpenAsNextSibling, base: "A", parent: "", attached: false, order: []string{"A", "B", "N", "C"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, []string{"A", "B", "N", "C"})
			f.attach(t, "B", "A")
			if err := f.tree.Detach(f.ctx, "N", DetachOptions{}); err != nil {
				t.Fatalf("detach: %v", err)
			}
			if _, err := f.svc.Move(f.ctx, []schema.APITabID{f.api["N"]}, schema.MoveParams{Index: 0}); err != nil {
				t.Fatalf("move: %v", err)
			}
			if got := f.order(testWindow); !slices.Equal(got, []string{"N", "A", "B", "C"}) {
				t.Fatalf("setup order = %v", got)
			}

			attached, err := f.tree.BehaveAutoAttachedTab(f.ctx, "N", schema.TabID(tt.base), tt.behavior)
			if err != nil {
				t.Fatalf("behave: %v", err)
			}
			if attached != tt.attached {
				t.Fatalf("attached = %v, want %v", attached, tt.attached)
			}
			if got := f.parent("N"); got != tt.parent {
				t.Fatalf("parent of N = %q, want %q", got, tt.parent)
			}
			if got := f.order(testWindow); !slices.Equal(got, tt.order) {
				t.Fatalf("order = %v, want %v", got, tt.order)
			}
			if got := f.serviceOrder(t, testWindow); !slices.Equal(got, tt.order) {
				t.Fatalf("service order = %v, want %v", got, tt.order)
			}
			checkInvariants(t, f.tree)
		})
	}
}

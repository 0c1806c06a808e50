package core

import (
	"slices"
	"testing"

	"pkt.systems/tabtree/schema"
)

func TestEncodeParentIndices(t *testing.T) {
	tests := []struct {
		name    string
		attach  [][2]string
		ids     []schema.TabID
		parents []int
	}{
		{
			name:    "one tree",
			attach:  [][2]string{{"B", "A"}, {"C", "A"}, {"D", "A"}},
			ids:     []schema.TabID{"A", "B", "C", "D"},
			parents: []int{-1, 0, 0, 0},
		},
		{
			name:    "forest",
			attach:  [][2]string{{"B", "A"}, {"D", "C"}},
			ids:     []schema.TabID{"A", "B", "C", "D"},
			parents: []int{-1, 0, -1, 2},
		},
		{
			name:    "chain",
			attach:  [][2]string{{"B", "A"}, {"C", "B"}, {"D", "C"}},
			ids:     []schema.TabID{"A", "B", "C", "D"},
			parents: []int{-1, 0, 1, 2},
		},
		{
			name:    "parent outside selection",
			attach:  [][2]string{{"B", "A"}, {"C", "B"}},
			ids:     []schema.TabID{"B", "C", "D"},
			parents: []int{-1, 0, -1},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, []string{"A", "B", "C", "D"})
			for _, pair := range tt.attach {
				f.attach(t, pair[0], pair[1])
			}
			got := f.tree.Encode(tt.ids).Parents()
			if !slices.Equal(got, tt.parents) {
				t.Fatalf("parents = %v, want %v", got, tt.parents)
			}
		})
	}
}

func TestEncodeEmpty(t *testing.T) {
	f := newFixture(t, []string{"A"})
	if got := f.tree.Encode(nil); len(got) != 0 {
		t.Fatalf("expected empty structure, got %v", got)
	}
}

func TestCleanUpStructure(t *testing.T) {
	tests := []struct {
		in   []int
		want []int
	}{
		{in: []int{-1, 0, 0, 0}, want: []int{-1, 0, 0, 0}},
		{in: []int{-1, 0, -1, 2}, want: []int{-1, 0, -1, 2}},
		{in: []int{3, 0, 1}, want: []int{-1, 0, 1}},
		{in: []int{-1, 0, 5, 1}, want: []int{-1, 0, -1, -1}},
		{in: []int{-1, 1, 0}, want: []int{-1, -1, -1}},
		{in: []int{-7}, want: []int{-1}},
	}
	for _, tt := range tests {
		if got := cleanUpStructure(tt.in); !slices.Equal(got, tt.want) {
			t.Fatalf("cleanUpStructure(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestDecodeAppliesStructure(t *testing.T) {
	f := newFixture(t, []string{"A", "B", "C", "D"})
	ids := []schema.TabID{"A", "B", "C", "D"}
	structure := schema.TreeStructure{
		{ID: "A", Parent: -1},
		{ID: "B", Parent: 0, Collapsed: true},
		{ID: "C", Parent: 1},
		{ID: "D", Parent: 0},
	}
	if err := f.tree.Decode(f.ctx, ids, structure); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got := f.order(testWindow); !slices.Equal(got, []string{"A", "B", "C", "D"}) {
		t.Fatalf("decode moved tabs: %v", got)
	}
	if got := f.children("A"); !slices.Equal(got, []string{"B", "D"}) {
		t.Fatalf("children of A = %v", got)
	}
	if f.parent("C") != "B" {
		t.Fatalf("parent of C = %q", f.parent("C"))
	}
	if !f.record(t, "C").collapsed || f.record(t, "D").collapsed {
		t.Fatalf("collapsed state not restored")
	}
	checkInvariants(t, f.tree)

	encoded := f.tree.Encode(ids)
	if !slices.Equal(encoded.Parents(), structure.Parents()) {
		t.Fatalf("round trip parents = %v, want %v", encoded.Parents(), structure.Parents())
	}
	for i := range structure {
		if encoded[i].Collapsed != structure[i].Collapsed || encoded[i].ID != structure[i].ID {
			t.Fatalf("round trip entry %d = %+v, want %+v", i, encoded[i], structure[i])
		}
	}
}

func TestDecodeReplacesExistingStructure(t *testing.T) {
	f := newFixture(t, []string{"A", "B", "C"})
	f.attach(t, "C", "B")
	structure := schema.TreeStructure{{ID: "A", Parent: -1}, {ID: "B", Parent: 0}, {ID: "C", Parent: -1}}
	if err := f.tree.Decode(f.ctx, []schema.TabID{"A", "B", "C"}, structure); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if f.parent("B") != "A" {
		t.Fatalf("parent of B = %q, want A", f.parent("B"))
	}
	if f.parent("C") != "" {
		t.Fatalf("C should be a root, parent %q", f.parent("C"))
	}
	checkInvariants(t, f.tree)
}

func TestEncodeFullCarriesAttributes(t *testing.T) {
	f := newFixture(t, []string{"A", "B"})
	f.attach(t, "B", "A")
	full := f.tree.EncodeFull([]schema.TabID{"A", "B"})
	if full[1].URL != "https://example.com/B" || full[1].Title != "B" {
		t.Fatalf("unexpected entry %+v", full[1])
	}
	short := f.tree.Encode([]schema.TabID{"A", "B"})
	if short[1].URL != "" || short[1].Title != "" {
		t.Fatalf("short encoding carries attributes %+v", short[1])
	}
}

func TestSnapshotTree(t *testing.T) {
	f := newFixture(t, []string{"A", "B", "C"})
	f.attach(t, "B", "A")
	if _, err := f.svc.Create(f.ctx, schema.CreateParams{WindowID: testWindow, PersistentID: "P", Index: -1, Pinned: true}); err != nil {
		t.Fatalf("create pinned: %v", err)
	}

	snapshot := f.tree.SnapshotTree("B", nil)
	if len(snapshot.Tabs) != 3 {
		t.Fatalf("expected pinned tab excluded, got %d tabs", len(snapshot.Tabs))
	}
	if snapshot.Target == nil || snapshot.Target.ID != "B" || snapshot.Target.Parent != "A" {
		t.Fatalf("unexpected target %+v", snapshot.Target)
	}
	if snapshot.Target.Previous != "A" || snapshot.Target.Next != "C" {
		t.Fatalf("unexpected neighbors %+v", snapshot.Target)
	}
	if snapshot.Active == nil || snapshot.Active.ID != "A" {
		t.Fatalf("unexpected active %+v", snapshot.Active)
	}
	if view := snapshot.TabsByID["A"]; !slices.Equal(view.Children, []schema.TabID{"B"}) {
		t.Fatalf("children of A = %v", view.Children)
	}
	if view := snapshot.TabsByID["C"]; view.Next != "" {
		t.Fatalf("pinned tab should not be a neighbor, got %q", view.Next)
	}

	partial := f.tree.SnapshotTree("", []schema.TabID{"C"})
	if len(partial.Tabs) != 1 || partial.Target != nil || partial.Active != nil {
		t.Fatalf("unexpected partial snapshot %+v", partial)
	}
}

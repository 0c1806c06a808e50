package core

import (
	"context"
	"errors"
	"sync"
	"testing"

	"pkt.systems/tabtree/schema"
)

type memoryStore struct {
	mu     sync.Mutex
	states map[schema.WindowID]schema.WindowState
}

func newMemoryStore() *memoryStore {
	return &memoryStore{states: make(map[schema.WindowID]schema.WindowState)}
}

func (s *memoryStore) SaveWindow(_ context.Context, state schema.WindowState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[state.WindowID] = state
	return nil
}

func (s *memoryStore) LoadWindow(_ context.Context, windowID schema.WindowID) (schema.WindowState, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	state, ok := s.states[windowID]
	return state, ok, nil
}

func TestSaveAndRestoreWindow(t *testing.T) {
	store := newMemoryStore()
	f := newFixture(t, []string{"A", "B", "C", "D"}, withStore(store))
	f.attach(t, "B", "A")
	f.attach(t, "C", "B")
	f.attach(t, "D", "A")
	if err := f.tree.CollapseExpandSubtree(f.ctx, "B", CollapseOptions{Collapsed: true}); err != nil {
		t.Fatalf("collapse: %v", err)
	}
	if err := f.tree.SaveWindow(f.ctx, testWindow); err != nil {
		t.Fatalf("save: %v", err)
	}
	state := store.states[testWindow]
	if state.Active != "A" || len(state.Structure) != 4 || state.Structure[1].URL != "https://example.com/B" {
		t.Fatalf("unexpected saved state %+v", state)
	}

	if err := f.tree.Decode(f.ctx, []schema.TabID{"A", "B", "C", "D"}, schema.TreeStructure{
		{ID: "A", Parent: -1}, {ID: "B", Parent: -1}, {ID: "C", Parent: -1}, {ID: "D", Parent: -1},
	}); err != nil {
		t.Fatalf("flatten: %v", err)
	}
	f.remove(t, "B")

	restored, err := f.tree.RestoreWindow(f.ctx, testWindow)
	if err != nil || !restored {
		t.Fatalf("restore: %v, %v", restored, err)
	}
	if f.parent("C") != "A" || f.parent("D") != "A" {
		t.Fatalf("orphaned entries should move to the nearest kept ancestor: C=%q D=%q", f.parent("C"), f.parent("D"))
	}
	checkInvariants(t, f.tree)
}

func TestRestoreRestoresCollapsedState(t *testing.T) {
	store := newMemoryStore()
	f := newFixture(t, []string{"A", "B", "C"}, withStore(store))
	f.attach(t, "B", "A")
	f.attach(t, "C", "B")
	if err := f.tree.CollapseExpandSubtree(f.ctx, "A", CollapseOptions{Collapsed: true}); err != nil {
		t.Fatalf("collapse: %v", err)
	}
	if err := f.tree.SaveWindow(f.ctx, testWindow); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := f.tree.Decode(f.ctx, []schema.TabID{"A", "B", "C"}, schema.TreeStructure{
		{ID: "A", Parent: -1}, {ID: "B", Parent: -1}, {ID: "C", Parent: -1},
	}); err != nil {
		t.Fatalf("flatten: %v", err)
	}
	if _, err := f.tree.RestoreWindow(f.ctx, testWindow); err != nil {
		t.Fatalf("restore: %v", err)
	}
	if !f.record(t, "A").subtreeCollapsed || !f.record(t, "B").collapsed || !f.record(t, "C").collapsed {
		t.Fatalf("collapsed state not restored")
	}
	checkInvariants(t, f.tree)
}

func TestRestoreWithoutSavedState(t *testing.T) {
	f := newFixture(t, []string{"A"}, withStore(newMemoryStore()))
	restored, err := f.tree.RestoreWindow(f.ctx, 9)
	if err != nil || restored {
		t.Fatalf("expected nothing restored, got %v, %v", restored, err)
	}
	if err := f.tree.SaveWindow(f.ctx, 9); !errors.Is(err, schema.ErrWindowNotFound) {
		t.Fatalf("expected window not found, got %v", err)
	}
}

func TestSaveWithoutStore(t *testing.T) {
	f := newFixture(t, []string{"A"})
	if err := f.tree.SaveWindow(f.ctx, testWindow); !errors.Is(err, errNoStore) {
		t.Fatalf("expected missing store, got %v", err)
	}
	if _, err := f.tree.RestoreWindow(f.ctx, testWindow); !errors.Is(err, errNoStore) {
		t.Fatalf("expected missing store, got %v", err)
	}
}

func TestMatchStructureDropsMissingEntries(t *testing.T) {
	f := newFixture(t, []string{"A", "C"})
	saved := schema.TreeStructure{
		{ID: "A", Parent: -1},
		{ID: "B", Parent: 0},
		{ID: "C", Parent: 1},
		{ID: "X", Parent: 3},
	}
	f.tree.mu.Lock()
	records, structure := f.tree.matchStructureLocked(testWindow, saved)
	f.tree.mu.Unlock()
	if len(records) != 2 || records[0].id != "A" || records[1].id != "C" {
		t.Fatalf("unexpected records")
	}
	if structure[0].Parent != -1 || structure[1].Parent != 0 {
		t.Fatalf("unexpected structure %+v", structure)
	}
}

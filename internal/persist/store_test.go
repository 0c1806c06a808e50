package persist

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"pkt.systems/tabtree/core"
	"pkt.systems/tabtree/internal/memtabs"
	"pkt.systems/tabtree/schema"
)

var (
	_ core.StructureStore = (*Store)(nil)
	_ core.StructureStore = (*SQLiteStore)(nil)
)

func openBackends(t *testing.T) map[string]Backend {
	t.Helper()
	out := map[string]Backend{}
	for _, name := range []string{BackendJSON, BackendSQLite} {
		backend, err := Open(name, t.TempDir(), nil)
		if err != nil {
			t.Fatalf("open %s: %v", name, err)
		}
		t.Cleanup(func() { _ = backend.Close() })
		out[name] = backend
	}
	return out
}

func sampleState() schema.WindowState {
	return schema.WindowState{
		WindowID: 3,
		SavedAt:  time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		Active:   "b",
		Structure: schema.TreeStructure{
			{ID: "a", Parent: -1, Collapsed: true, Title: "A", URL: "https://a.example"},
			{ID: "b", Parent: 0, Title: "B", URL: "https://b.example"},
			{ID: "p", Parent: -1, Pinned: true},
		},
	}
}

func TestStoreLoadMissing(t *testing.T) {
	for name, backend := range openBackends(t) {
		_, ok, err := backend.LoadWindow(context.Background(), 9)
		if err != nil {
			t.Fatalf("%s load: %v", name, err)
		}
		if ok {
			t.Fatalf("%s: expected missing window", name)
		}
	}
}

func TestStoreSaveLoadRoundTrip(t *testing.T) {
	ctx := context.Background()
	for name, backend := range openBackends(t) {
		want := sampleState()
		if err := backend.SaveWindow(ctx, want); err != nil {
			t.Fatalf("%s save: %v", name, err)
		}
		got, ok, err := backend.LoadWindow(ctx, want.WindowID)
		if err != nil {
			t.Fatalf("%s load: %v", name, err)
		}
		if !ok {
			t.Fatalf("%s: expected window to exist", name)
		}
		if !got.SavedAt.Equal(want.SavedAt) {
			t.Fatalf("%s: saved_at mismatch: want %v got %v", name, want.SavedAt, got.SavedAt)
		}
		got.SavedAt = want.SavedAt
		if !reflect.DeepEqual(want, got) {
			t.Fatalf("%s: state mismatch:\nwant: %+v\ngot:  %+v", name, want, got)
		}
	}
}

func TestStoreSaveReplacesWindow(t *testing.T) {
	ctx := context.Background()
	for name, backend := range openBackends(t) {
		if err := backend.SaveWindow(ctx, sampleState()); err != nil {
			t.Fatalf("%s save: %v", name, err)
		}
		next := schema.WindowState{
			WindowID:  3,
			SavedAt:   time.Date(2026, 1, 3, 0, 0, 0, 0, time.UTC),
			Structure: schema.TreeStructure{{ID: "z", Parent: -1}},
		}
		if err := backend.SaveWindow(ctx, next); err != nil {
			t.Fatalf("%s resave: %v", name, err)
		}
		got, _, err := backend.LoadWindow(ctx, 3)
		if err != nil {
			t.Fatalf("%s load: %v", name, err)
		}
		if len(got.Structure) != 1 || got.Structure[0].ID != "z" || got.Active != "" {
			t.Fatalf("%s: expected replaced structure, got %+v", name, got)
		}
	}
}

func TestStoreRejectsNoWindow(t *testing.T) {
	for name, backend := range openBackends(t) {
		err := backend.SaveWindow(context.Background(), schema.WindowState{})
		if !errors.Is(err, schema.ErrWindowNotFound) {
			t.Fatalf("%s: expected ErrWindowNotFound, got %v", name, err)
		}
	}
}

func TestStoreLoadInvalidJSON(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(dir)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	path := filepath.Join(dir, "window-1.json")
	if err := os.WriteFile(path, []byte("{not-json"), 0o600); err != nil {
		t.Fatalf("write bad json: %v", err)
	}
	if _, _, err := store.LoadWindow(context.Background(), 1); err == nil {
		t.Fatalf("expected error for invalid JSON")
	}
}

func TestStoreWritesPrivateFile(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(dir)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	if err := store.SaveWindow(context.Background(), sampleState()); err != nil {
		t.Fatalf("save: %v", err)
	}
	info, err := os.Stat(filepath.Join(dir, "window-3.json"))
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Fatalf("expected 0600, got %o", perm)
	}
	leftovers, _ := filepath.Glob(filepath.Join(dir, "*.tmp"))
	if len(leftovers) != 0 {
		t.Fatalf("temp files left behind: %v", leftovers)
	}
}

func TestOpenRejectsUnknownBackend(t *testing.T) {
	if _, err := Open("bolt", t.TempDir(), nil); !errors.Is(err, schema.ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig, got %v", err)
	}
	if _, err := NewStore(" "); err == nil {
		t.Fatalf("expected error for empty dir")
	}
}

func TestTreeSessionThroughSQLite(t *testing.T) {
	ctx := context.Background()
	store, err := NewSQLiteStore(t.TempDir(), nil)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	defer store.Close()

	svc := memtabs.New(memtabs.Options{})
	tree, err := core.NewTree(schema.DefaultTreeConfig(), core.TreeDeps{Service: svc, Store: store})
	if err != nil {
		t.Fatalf("new tree: %v", err)
	}
	svc.SetListener(tree)
	for _, name := range []schema.TabID{"a", "b", "c"} {
		if _, err := svc.Create(ctx, schema.CreateParams{WindowID: 1, PersistentID: name, Index: -1}); err != nil {
			t.Fatalf("create %s: %v", name, err)
		}
	}
	if err := tree.Attach(ctx, "b", "a", core.AttachOptions{}); err != nil {
		t.Fatalf("attach b: %v", err)
	}
	if err := tree.Attach(ctx, "c", "b", core.AttachOptions{}); err != nil {
		t.Fatalf("attach c: %v", err)
	}
	if err := tree.SaveWindow(ctx, 1); err != nil {
		t.Fatalf("save window: %v", err)
	}
	if err := tree.Decode(ctx, []schema.TabID{"a", "b", "c"}, schema.TreeStructure{
		{ID: "a", Parent: -1}, {ID: "b", Parent: -1}, {ID: "c", Parent: -1},
	}); err != nil {
		t.Fatalf("flatten: %v", err)
	}
	if got := tree.Parent("c"); got != "" {
		t.Fatalf("expected flattened tree, c parent %q", got)
	}
	restored, err := tree.RestoreWindow(ctx, 1)
	if err != nil {
		t.Fatalf("restore window: %v", err)
	}
	if !restored {
		t.Fatalf("expected saved structure to be restored")
	}
	if got := tree.Parent("b"); got != "a" {
		t.Fatalf("expected b under a, got %q", got)
	}
	if got := tree.Parent("c"); got != "b" {
		t.Fatalf("expected c under b, got %q", got)
	}
}

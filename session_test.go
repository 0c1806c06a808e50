package tabtree

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"pkt.systems/tabtree/core"
	"pkt.systems/tabtree/internal/memtabs"
	"pkt.systems/tabtree/internal/persist"
	"pkt.systems/tabtree/schema"
)

func TestNewRequiresService(t *testing.T) {
	if _, err := New(SessionConfig{}, SessionDeps{}); err == nil {
		t.Fatalf("expected error without tab service")
	}
}

func TestNewRejectsUnknownBackend(t *testing.T) {
	svc := memtabs.New(memtabs.Options{})
	_, err := New(SessionConfig{StateBackend: "bolt", StateDir: t.TempDir()}, SessionDeps{Service: svc}, WithStore())
	if err == nil {
		t.Fatalf("expected error for unknown backend")
	}
}

func TestSessionLifecycleErrors(t *testing.T) {
	svc := memtabs.New(memtabs.Options{})
	session, err := New(SessionConfig{}, SessionDeps{Service: svc})
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	if err := session.Wait(); err == nil {
		t.Fatalf("expected wait error before start")
	}
	if err := session.Follow(1, session.Tree()); err == nil {
		t.Fatalf("expected follow error without broadcast")
	}
	ctx := context.Background()
	if err := session.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := session.Start(ctx); err == nil {
		t.Fatalf("expected second start to fail")
	}
	if err := session.Stop(ctx); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if err := session.Wait(); err != nil {
		t.Fatalf("wait after stop: %v", err)
	}
}

func TestSessionFollowPersistAndRestore(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	cfg := SessionConfig{
		Tree:             schema.DefaultTreeConfig(),
		StateBackend:     persist.BackendJSON,
		StateDir:         dir,
		BroadcastHistory: 16,
	}

	svc := memtabs.New(memtabs.Options{})
	session, err := New(cfg, SessionDeps{Service: svc}, WithEvents(), WithBroadcast(), WithStore())
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	svc.SetListener(session.Tree())
	events, cancelEvents := session.Events().Subscribe(1)
	defer cancelEvents()
	openTabs(t, svc, "a", "b")
	if err := session.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}

	if err := session.Tree().Attach(ctx, "b", "a", core.AttachOptions{Broadcast: true}); err != nil {
		t.Fatalf("attach: %v", err)
	}
	if !sawEvent(events, schema.TreeEventAttached, "b") {
		t.Fatalf("expected attached event on the bus")
	}

	peer, err := core.NewTree(cfg.Tree, core.TreeDeps{Service: svc})
	if err != nil {
		t.Fatalf("new peer: %v", err)
	}
	if err := peer.LoadWindow(ctx, 1); err != nil {
		t.Fatalf("peer load: %v", err)
	}
	if err := session.Follow(1, peer); err != nil {
		t.Fatalf("follow: %v", err)
	}
	waitFor(t, func() bool { return peer.Parent("b") == "a" })

	if err := session.Stop(ctx); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "window-1.json")); err != nil {
		t.Fatalf("expected saved window: %v", err)
	}

	svc2 := memtabs.New(memtabs.Options{})
	restored, err := New(cfg, SessionDeps{Service: svc2}, WithStore())
	if err != nil {
		t.Fatalf("new restored session: %v", err)
	}
	svc2.SetListener(restored.Tree())
	openTabs(t, svc2, "a", "b")
	if got := restored.Tree().Parent("b"); got != "" {
		t.Fatalf("expected fresh tree to be flat, got parent %q", got)
	}
	if err := restored.Start(ctx); err != nil {
		t.Fatalf("start restored: %v", err)
	}
	defer func() { _ = restored.Stop(ctx) }()
	if got := restored.Tree().Parent("b"); got != "a" {
		t.Fatalf("expected restored parent a, got %q", got)
	}
}

func TestSessionFollowsWindowsIndependently(t *testing.T) {
	ctx := context.Background()
	svc := memtabs.New(memtabs.Options{})
	session, err := New(SessionConfig{Tree: schema.DefaultTreeConfig(), BroadcastHistory: 16}, SessionDeps{Service: svc}, WithBroadcast())
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	svc.SetListener(session.Tree())
	openTabs(t, svc, "a", "b")
	openTabsIn(t, svc, 2, "c", "d")
	if err := session.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer func() { _ = session.Stop(ctx) }()

	if err := session.Tree().Attach(ctx, "d", "c", core.AttachOptions{Broadcast: true}); err != nil {
		t.Fatalf("attach d: %v", err)
	}
	if err := session.Tree().Attach(ctx, "b", "a", core.AttachOptions{Broadcast: true}); err != nil {
		t.Fatalf("attach b: %v", err)
	}

	peer, err := core.NewTree(schema.DefaultTreeConfig(), core.TreeDeps{Service: svc})
	if err != nil {
		t.Fatalf("new peer: %v", err)
	}
	for _, windowID := range []schema.WindowID{1, 2} {
		if err := peer.LoadWindow(ctx, windowID); err != nil {
			t.Fatalf("peer load %d: %v", windowID, err)
		}
	}
	if err := session.Follow(1, peer); err != nil {
		t.Fatalf("follow 1: %v", err)
	}
	waitFor(t, func() bool { return peer.Parent("b") == "a" })
	if err := session.Follow(2, peer); err != nil {
		t.Fatalf("follow 2: %v", err)
	}
	waitFor(t, func() bool { return peer.Parent("d") == "c" })
}

func openTabs(t *testing.T, svc *memtabs.Service, names ...string) {
	t.Helper()
	openTabsIn(t, svc, 1, names...)
}

func openTabsIn(t *testing.T, svc *memtabs.Service, windowID schema.WindowID, names ...string) {
	t.Helper()
	for _, name := range names {
		_, err := svc.Create(context.Background(), schema.CreateParams{
			WindowID:     windowID,
			PersistentID: schema.TabID(name),
			Index:        -1,
		})
		if err != nil {
			t.Fatalf("create %s: %v", name, err)
		}
	}
}

func sawEvent(ch <-chan schema.TreeEvent, typ schema.TreeEventType, tab schema.TabID) bool {
	for {
		select {
		case event := <-ch:
			if event.Type == typ && event.Tab == tab {
				return true
			}
		default:
			return false
		}
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("condition not met before deadline")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

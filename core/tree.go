package core

import (
	"context"
	"errors"
	"sync"

	"pkt.systems/pslog"
	"pkt.systems/tabtree/internal/logx"
	"pkt.systems/tabtree/schema"
)

// Tree owns the tab tree of one session. All pointers and window counters are
// guarded by mu, which is never held across a TabService call.
type Tree struct {
	cfg         schema.TreeConfig
	svc         TabService
	sink        EventSink
	broadcaster Broadcaster
	store       StructureStore
	logger      pslog.Logger

	mu      sync.Mutex
	tabs    map[schema.TabID]*tab
	byAPI   map[schema.APITabID]schema.TabID
	windows map[schema.WindowID]*container
	fx      effects
	// appliedSeq is the highest replayed command sequence per window.
	appliedSeq map[schema.WindowID]uint64
}

// effects are side effects queued while mu is held and performed after it is released.
type effects struct {
	events   []schema.TreeEvent
	commands []schema.Command
	moves    []moveRequest
	removals []removeRequest
	focus    []focusRequest
}

// NewTree constructs a tree bound to a tab service.
func NewTree(cfg schema.TreeConfig, deps TreeDeps) (*Tree, error) {
	normalized, err := schema.NormalizeTreeConfig(cfg)
	if err != nil {
		return nil, err
	}
	if deps.Service == nil {
		return nil, errors.New("missing tab service")
	}
	sink := deps.EventSink
	if sink == nil {
		sink = nopSink{}
	}
	return &Tree{
		cfg:         normalized,
		svc:         deps.Service,
		sink:        sink,
		broadcaster: deps.Broadcaster,
		store:       deps.Store,
		logger:      deps.Logger,
		tabs:        make(map[schema.TabID]*tab),
		byAPI:       make(map[schema.APITabID]schema.TabID),
		windows:     make(map[schema.WindowID]*container),
		appliedSeq:  make(map[schema.WindowID]uint64),
	}, nil
}

// Config returns the normalized tree configuration.
func (t *Tree) Config() schema.TreeConfig {
	return t.cfg
}

// logCtx binds the tree logger to ctx when one was configured.
func (t *Tree) logCtx(ctx context.Context) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	if t.logger == nil {
		return ctx
	}
	return pslog.ContextWithLogger(ctx, t.logger)
}

func (t *Tree) log(ctx context.Context, windowID schema.WindowID, id schema.TabID) pslog.Logger {
	return logx.WithWindowTab(ctx, windowID, id)
}

// release unlocks the tree and hands back the queued side effects.
func (t *Tree) release() effects {
	fx := t.fx
	t.fx = effects{}
	t.mu.Unlock()
	return fx
}

// settle delivers events and commands, then performs queued external
// requests. It returns the failures a caller has to see.
func (t *Tree) settle(ctx context.Context, fx effects) error {
	for _, event := range fx.events {
		t.sink.OnTreeEvent(event)
	}
	if t.broadcaster != nil {
		for _, cmd := range fx.commands {
			t.broadcaster.Publish(cmd)
		}
	}
	var errs []error
	for _, req := range fx.moves {
		if err := t.reconcile(ctx, req); err != nil {
			errs = append(errs, err)
		}
	}
	for _, req := range fx.removals {
		t.removeExternal(ctx, req)
	}
	for _, req := range fx.focus {
		t.activateExternal(ctx, req)
	}
	return errors.Join(errs...)
}

// run executes fn under the lock and settles its side effects.
func (t *Tree) run(ctx context.Context, fn func() error) error {
	t.mu.Lock()
	err := fn()
	fx := t.release()
	if settleErr := t.settle(ctx, fx); settleErr != nil {
		pslog.Ctx(ctx).Debug("tree follow-up move failed", "err", settleErr)
	}
	return err
}

func (t *Tree) emit(event schema.TreeEvent) {
	t.fx.events = append(t.fx.events, event)
}

func (t *Tree) publish(cmd schema.Command) {
	t.fx.commands = append(t.fx.commands, cmd)
}

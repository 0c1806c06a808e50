// Package tabtree composes a tab tree with its event bus, command hub and
// structure store.
package tabtree

import (
	"context"
	"errors"
	"sync"

	"golang.org/x/sync/errgroup"

	"pkt.systems/pslog"
	"pkt.systems/tabtree/core"
	"pkt.systems/tabtree/internal/broadcast"
	"pkt.systems/tabtree/internal/eventbus"
	"pkt.systems/tabtree/internal/persist"
	"pkt.systems/tabtree/schema"
)

// SessionConfig configures the compositor.
type SessionConfig struct {
	Tree             schema.TreeConfig
	StateBackend     string
	StateDir         string
	BroadcastHistory int
}

// SessionDeps captures dependencies required to build a session.
type SessionDeps struct {
	Service   core.TabService
	EventSink core.EventSink
	Logger    pslog.Logger
}

// SessionOption toggles compositor components.
type SessionOption func(*sessionOptions)

type sessionOptions struct {
	enableEvents    bool
	enableBroadcast bool
	enableStore     bool
}

// WithEvents enables the tree event bus.
func WithEvents() SessionOption {
	return func(o *sessionOptions) { o.enableEvents = true }
}

// WithBroadcast enables the command hub.
func WithBroadcast() SessionOption {
	return func(o *sessionOptions) { o.enableBroadcast = true }
}

// WithStore enables structure persistence.
func WithStore() SessionOption {
	return func(o *sessionOptions) { o.enableStore = true }
}

// Session owns one tree and the components wired around it.
type Session struct {
	cfg     SessionConfig
	options sessionOptions
	tree    *core.Tree
	bus     *eventbus.Bus
	hub     *broadcast.Hub
	store   persist.Backend

	mu      sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc
	group   *errgroup.Group
	unsubs  []func()
	started bool
	stopped bool
}

// New constructs a session.
func New(cfg SessionConfig, deps SessionDeps, opts ...SessionOption) (*Session, error) {
	options := sessionOptions{}
	for _, opt := range opts {
		opt(&options)
	}
	if deps.Service == nil {
		return nil, errors.New("tab service dependency is required")
	}
	treeCfg, err := schema.NormalizeTreeConfig(cfg.Tree)
	if err != nil {
		return nil, err
	}
	cfg.Tree = treeCfg
	logger := deps.Logger
	if logger == nil {
		logger = pslog.Ctx(context.Background())
	}

	s := &Session{cfg: cfg, options: options}
	sinks := make([]core.EventSink, 0, 2)
	if deps.EventSink != nil {
		sinks = append(sinks, deps.EventSink)
	}
	if options.enableEvents {
		s.bus = eventbus.New(logger)
		sinks = append(sinks, s.bus)
	}
	treeDeps := core.TreeDeps{Service: deps.Service, Logger: logger}
	switch len(sinks) {
	case 0:
	case 1:
		treeDeps.EventSink = sinks[0]
	default:
		treeDeps.EventSink = eventFanout{sinks: sinks}
	}
	if options.enableBroadcast {
		s.hub = broadcast.NewHub(cfg.BroadcastHistory, logger)
		treeDeps.Broadcaster = s.hub
	}
	if options.enableStore {
		store, err := persist.Open(cfg.StateBackend, cfg.StateDir, logger)
		if err != nil {
			return nil, err
		}
		s.store = store
		treeDeps.Store = store
	}
	tree, err := core.NewTree(cfg.Tree, treeDeps)
	if err != nil {
		if s.store != nil {
			_ = s.store.Close()
		}
		return nil, err
	}
	s.tree = tree
	return s, nil
}

// Tree returns the session tree.
func (s *Session) Tree() *core.Tree { return s.tree }

// Events returns the event bus, or nil when disabled.
func (s *Session) Events() *eventbus.Bus { return s.bus }

// Hub returns the command hub, or nil when disabled.
func (s *Session) Hub() *broadcast.Hub { return s.hub }

// Start begins background work. Windows with a saved structure are restored
// when a store is configured.
func (s *Session) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		pslog.Ctx(ctx).Warn("session start rejected", "reason", "already started")
		return errors.New("session already started")
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.group, s.ctx = errgroup.WithContext(s.ctx)
	s.started = true
	s.mu.Unlock()

	log := pslog.Ctx(ctx)
	log.Info("session start",
		"events", s.options.enableEvents,
		"broadcast", s.options.enableBroadcast,
		"store", s.options.enableStore,
		"state_backend", s.cfg.StateBackend,
	)
	if s.store == nil {
		return nil
	}
	for _, windowID := range s.tree.Windows() {
		restored, err := s.tree.RestoreWindow(ctx, windowID)
		if err != nil {
			log.Warn("session restore failed", "window", int(windowID), "err", err)
			continue
		}
		log.Debug("session restore", "window", int(windowID), "restored", restored)
	}
	return nil
}

// Follow feeds commands of a window to a peer tree. Retained history is
// applied first. schema.NoWindow follows every window.
func (s *Session) Follow(windowID schema.WindowID, peer broadcast.Applier) error {
	if s.hub == nil {
		return errors.New("broadcast is not enabled")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started || s.stopped {
		return errors.New("session not running")
	}
	ch, unsub, _, history := s.hub.Subscribe(windowID)
	s.unsubs = append(s.unsubs, unsub)
	ctx := s.ctx
	s.group.Go(func() error {
		if _, err := broadcast.CatchUp(ctx, history, peer); err != nil {
			return err
		}
		return broadcast.Relay(ctx, ch, peer)
	})
	return nil
}

// Wait blocks until the session stops.
func (s *Session) Wait() error {
	s.mu.Lock()
	group := s.group
	ctx := s.ctx
	started := s.started
	s.mu.Unlock()
	if !started {
		return errors.New("session not started")
	}
	<-ctx.Done()
	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// Stop cancels followers, saves every window and closes the store.
func (s *Session) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.started || s.stopped {
		s.mu.Unlock()
		return nil
	}
	s.stopped = true
	cancel := s.cancel
	group := s.group
	unsubs := s.unsubs
	s.unsubs = nil
	s.mu.Unlock()
	if ctx == nil {
		ctx = context.Background()
	}
	log := pslog.Ctx(ctx)
	log.Info("session stop requested")
	cancel()
	for _, unsub := range unsubs {
		unsub()
	}
	var errs []error
	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		errs = append(errs, err)
	}
	if s.store != nil {
		for _, windowID := range s.tree.Windows() {
			if err := s.tree.SaveWindow(ctx, windowID); err != nil {
				log.Warn("session save failed", "window", int(windowID), "err", err)
				errs = append(errs, err)
			}
		}
		if err := s.store.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	log.Info("session stopped")
	return errors.Join(errs...)
}

package eventbus

import (
	"context"
	"sync"

	"pkt.systems/pslog"
	"pkt.systems/tabtree/schema"
)

// Bus fans tree events out to per-window subscribers. Subscribers registered
// for schema.NoWindow receive events of every window.
type Bus struct {
	mu    sync.Mutex
	subs  map[schema.WindowID]map[chan schema.TreeEvent]struct{}
	log   pslog.Logger
	depth int
}

// New constructs a Bus.
func New(logger pslog.Logger) *Bus {
	if logger == nil {
		logger = pslog.Ctx(context.Background())
	}
	return &Bus{
		subs:  make(map[schema.WindowID]map[chan schema.TreeEvent]struct{}),
		log:   logger,
		depth: 256,
	}
}

// Subscribe registers a subscriber for the window and returns a channel + cancel.
func (b *Bus) Subscribe(windowID schema.WindowID) (<-chan schema.TreeEvent, func()) {
	if b == nil {
		return nil, func() {}
	}
	ch := make(chan schema.TreeEvent, b.depth)
	b.mu.Lock()
	windowSubs := b.subs[windowID]
	if windowSubs == nil {
		windowSubs = make(map[chan schema.TreeEvent]struct{})
		b.subs[windowID] = windowSubs
	}
	windowSubs[ch] = struct{}{}
	count := len(windowSubs)
	b.mu.Unlock()
	b.log.With("window", int(windowID)).Debug("eventbus subscribe", "subs", count)
	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			if subs := b.subs[windowID]; subs != nil {
				delete(subs, ch)
				if len(subs) == 0 {
					delete(b.subs, windowID)
				}
			}
			b.mu.Unlock()
			close(ch)
			b.log.With("window", int(windowID)).Debug("eventbus unsubscribe")
		})
	}
}

// Subscribers reports the number of subscribers for the window.
func (b *Bus) Subscribers(windowID schema.WindowID) int {
	if b == nil {
		return 0
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs[windowID])
}

// OnTreeEvent implements core.EventSink.
func (b *Bus) OnTreeEvent(event schema.TreeEvent) {
	if b == nil {
		return
	}
	b.mu.Lock()
	subs := make([]chan schema.TreeEvent, 0, len(b.subs[event.WindowID])+len(b.subs[schema.NoWindow]))
	for sub := range b.subs[event.WindowID] {
		subs = append(subs, sub)
	}
	if event.WindowID != schema.NoWindow {
		for sub := range b.subs[schema.NoWindow] {
			subs = append(subs, sub)
		}
	}
	dropped := 0
	for _, sub := range subs {
		select {
		case sub <- event:
		default:
			dropped++
		}
	}
	b.mu.Unlock()
	if dropped > 0 {
		b.log.With("window", int(event.WindowID)).Trace("eventbus dropped", "type", string(event.Type), "count", dropped)
	}
}

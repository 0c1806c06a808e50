// Package broadcast carries tree mutation commands between tree contexts.
// Commands receive a hub-wide sequence number and are kept in a bounded
// history so late subscribers can catch up with Replay.
package broadcast

import (
	"context"
	"sync"

	"pkt.systems/pslog"
	"pkt.systems/tabtree/internal/logx"
	"pkt.systems/tabtree/schema"
)

// DefaultHistorySize is used when NewHub gets a non-positive size.
const DefaultHistorySize = 1000

// Hub broadcasts commands per window.
type Hub struct {
	mu          sync.Mutex
	seq         uint64
	history     []schema.Command
	subs        map[schema.WindowID]map[chan schema.Command]struct{}
	historySize int
	depth       int
	log         pslog.Logger
}

// NewHub constructs a hub with the given history size.
func NewHub(historySize int, logger pslog.Logger) *Hub {
	if historySize <= 0 {
		historySize = DefaultHistorySize
	}
	if logger == nil {
		logger = pslog.Ctx(context.Background())
	}
	return &Hub{
		subs:        make(map[schema.WindowID]map[chan schema.Command]struct{}),
		historySize: historySize,
		depth:       256,
		log:         logger,
	}
}

// Publish implements core.Broadcaster. The command is stamped with the next
// sequence number and marked as broadcasted.
func (h *Hub) Publish(cmd schema.Command) {
	h.mu.Lock()
	h.seq++
	cmd.Seq = h.seq
	cmd.Broadcasted = true
	cmd.Tabs = append([]schema.TabID(nil), cmd.Tabs...)
	h.history = append(h.history, cmd)
	if len(h.history) > h.historySize {
		h.history = h.history[len(h.history)-h.historySize:]
	}
	dropped := 0
	for _, windowID := range subscriberKeys(cmd.WindowID) {
		for sub := range h.subs[windowID] {
			select {
			case sub <- cmd:
			default:
				dropped++
			}
		}
	}
	h.mu.Unlock()

	log := logx.WithCommand(h.log.With("window", int(cmd.WindowID)), cmd)
	log.Trace("broadcast publish", "tab", string(cmd.Tab))
	if dropped > 0 {
		log.Warn("broadcast command dropped", "dropped", dropped)
	}
}

// Subscribe registers a subscriber for a window and returns the channel, a
// cancel func, the current sequence and the retained history of the window.
// schema.NoWindow subscribes to every window.
func (h *Hub) Subscribe(windowID schema.WindowID) (<-chan schema.Command, func(), uint64, []schema.Command) {
	h.mu.Lock()
	defer h.mu.Unlock()
	subs := h.subs[windowID]
	if subs == nil {
		subs = make(map[chan schema.Command]struct{})
		h.subs[windowID] = subs
	}
	ch := make(chan schema.Command, h.depth)
	subs[ch] = struct{}{}
	history := h.replayLocked(windowID, 0)
	seq := h.seq
	log := h.log.With("window", int(windowID))
	log.Info("broadcast subscribe", "subs", len(subs), "history", len(history))
	var once sync.Once
	unsub := func() {
		once.Do(func() {
			h.mu.Lock()
			delete(subs, ch)
			close(ch)
			remaining := len(subs)
			h.mu.Unlock()
			log.Info("broadcast unsubscribe", "subs", remaining)
		})
	}
	return ch, unsub, seq, history
}

// Replay returns the retained commands of a window after the provided seq.
func (h *Hub) Replay(windowID schema.WindowID, after uint64) []schema.Command {
	h.mu.Lock()
	defer h.mu.Unlock()
	cmds := h.replayLocked(windowID, after)
	h.log.With("window", int(windowID)).Debug("broadcast replay", "after", after, "count", len(cmds))
	return cmds
}

// Seq reports the last assigned sequence number.
func (h *Hub) Seq() uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.seq
}

func (h *Hub) replayLocked(windowID schema.WindowID, after uint64) []schema.Command {
	cmds := make([]schema.Command, 0, len(h.history))
	for _, cmd := range h.history {
		if cmd.Seq <= after {
			continue
		}
		if windowID != schema.NoWindow && cmd.WindowID != windowID {
			continue
		}
		cmds = append(cmds, cmd)
	}
	return cmds
}

func subscriberKeys(windowID schema.WindowID) []schema.WindowID {
	if windowID == schema.NoWindow {
		return []schema.WindowID{schema.NoWindow}
	}
	return []schema.WindowID{windowID, schema.NoWindow}
}

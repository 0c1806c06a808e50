package core

import (
	"context"
	"slices"

	"pkt.systems/tabtree/schema"
)

// MoveOptions tunes MoveBefore, MoveAfter and the subtree moves.
type MoveOptions struct {
	Broadcast bool
	// Broadcasted marks a replayed command. Only the local order changes.
	Broadcasted bool
}

// MoveBefore places tabs contiguously right before next. It returns the tabs
// that were requested to move, or nothing when they are already in place or
// next is gone.
func (t *Tree) MoveBefore(ctx context.Context, ids []schema.TabID, next schema.TabID, opts MoveOptions) []schema.TabID {
	return t.moveTabs(ctx, ids, next, false, opts)
}

// MoveAfter places tabs contiguously right after previous.
func (t *Tree) MoveAfter(ctx context.Context, ids []schema.TabID, previous schema.TabID, opts MoveOptions) []schema.TabID {
	return t.moveTabs(ctx, ids, previous, true, opts)
}

func (t *Tree) moveTabs(ctx context.Context, ids []schema.TabID, ref schema.TabID, after bool, opts MoveOptions) []schema.TabID {
	ctx = t.logCtx(ctx)
	var out []schema.TabID
	_ = t.run(ctx, func() error {
		out = tabIDs(t.moveTabsLocked(ctx, t.resolve(ids), t.get(ref), after, opts))
		return nil
	})
	return out
}

// MoveSubtreeBefore moves root before next and lets its descendants follow.
// schema.ErrTabRemovedDuringMove is returned when root vanished before its
// descendants could follow.
func (t *Tree) MoveSubtreeBefore(ctx context.Context, root, next schema.TabID, opts MoveOptions) error {
	return t.moveSubtree(ctx, root, next, false, opts)
}

// MoveSubtreeAfter moves root after previous and lets its descendants follow.
func (t *Tree) MoveSubtreeAfter(ctx context.Context, root, previous schema.TabID, opts MoveOptions) error {
	return t.moveSubtree(ctx, root, previous, true, opts)
}

func (t *Tree) moveSubtree(ctx context.Context, root, ref schema.TabID, after bool, opts MoveOptions) error {
	ctx = t.logCtx(ctx)
	t.mu.Lock()
	record := t.get(root)
	if record != nil {
		t.moveSubtreeLocked(ctx, record, t.get(ref), after, opts)
	}
	fx := t.release()
	if err := t.settle(ctx, fx); err != nil {
		return err
	}
	if record == nil {
		return schema.ErrTabNotFound
	}
	return nil
}

func (t *Tree) moveTabsLocked(ctx context.Context, records []*tab, ref *tab, after bool, opts MoveOptions) []*tab {
	if len(records) == 0 || ref == nil {
		return nil
	}
	placed := t.allPlacedBefore(records, ref)
	if after {
		placed = t.allPlacedAfter(records, ref)
	}
	if placed {
		t.log(ctx, ref.windowID, ref.id).Trace("tree move skipped: already placed", "tabs", len(records))
		return nil
	}
	moved, _ := t.moveInternallyLocked(ctx, records, ref, after, opts, false)
	return moved
}

func (t *Tree) moveSubtreeLocked(ctx context.Context, root, ref *tab, after bool, opts MoveOptions) {
	if root == nil || ref == nil {
		return
	}
	members := append([]*tab{root}, t.descendantsOf(root)...)
	for _, member := range members {
		if member.id == ref.id {
			t.log(ctx, root.windowID, root.id).Trace("tree subtree move skipped: reference inside subtree")
			return
		}
	}
	placed := t.allPlacedBefore(members, ref)
	if after {
		placed = t.allPlacedAfter(members, ref)
	}
	if placed {
		t.log(ctx, root.windowID, root.id).Trace("tree subtree move skipped: already placed")
		return
	}
	c := t.container(root.windowID)
	c.counters.SubtreeMoving++
	if _, queued := t.moveInternallyLocked(ctx, members, ref, after, opts, true); !queued {
		decrement(&c.counters.SubtreeMoving, 1)
	}
}

// moveInternallyLocked reorders the local sequence right away and queues the
// external request that makes the service match it.
func (t *Tree) moveInternallyLocked(ctx context.Context, records []*tab, ref *tab, after bool, opts MoveOptions, subtree bool) ([]*tab, bool) {
	c := t.container(ref.windowID)
	filtered := records[:0:0]
	for _, record := range records {
		if record.id != ref.id && record.windowID == ref.windowID {
			filtered = append(filtered, record)
		}
	}
	records = filtered
	if len(records) == 0 {
		return nil, false
	}
	log := t.log(ctx, ref.windowID, ref.id)
	if opts.Broadcast && !opts.Broadcasted {
		cmdType := schema.CommandMoveTabsBefore
		if after {
			cmdType = schema.CommandMoveTabsAfter
		}
		t.publish(schema.Command{Type: cmdType, WindowID: ref.windowID, Tabs: tabIDs(records), Tab: ref.id})
	}

	positions := []int{c.position(ref.id)}
	for _, record := range records {
		positions = append(positions, c.position(record.id))
	}
	anchor := ref
	if after {
		anchor = t.nextTabOf(ref)
		if anchor != nil && slices.ContainsFunc(records, func(record *tab) bool { return record.id == anchor.id }) {
			anchor = nil
		}
	}
	moved := 0
	for _, record := range records {
		oldPrevious := t.previousTabOf(record)
		oldNext := t.nextTabOf(record)
		if tabID(oldNext) == tabID(anchor) {
			continue
		}
		c.remove(record.id)
		pos := len(c.order)
		if anchor != nil {
			pos = c.position(anchor.id)
		}
		c.insert(record.id, pos)
		c.counters.AlreadyMoved++
		moved++
		t.emit(schema.TreeEvent{
			Type:     schema.TreeEventMoved,
			WindowID: record.windowID,
			Tab:      record.id,
			Moved:    schema.MovedEvent{OldPrevious: tabID(oldPrevious), OldNext: tabID(oldNext), NewIndex: pos},
		})
	}
	parents := make([]*tab, 0, len(records))
	for _, record := range records {
		parents = append(parents, t.parentOf(record))
	}
	t.syncChildrenOrder(parents)
	if moved == 0 {
		log.Trace("tree move: actually nothing moved")
		return records, false
	}
	positions = append(positions, c.position(ref.id))
	for _, record := range records {
		positions = append(positions, c.position(record.id))
	}
	t.restampRange(c, slices.Min(positions), slices.Max(positions))
	log.Debug("tree tabs moved locally", "tabs", len(records), "moved", moved, "after", after)

	if opts.Broadcasted {
		decrement(&c.counters.AlreadyMoved, moved)
		return records, false
	}
	req := moveRequest{
		windowID: ref.windowID,
		tabs:     tabIDs(records),
		ref:      ref.id,
		after:    after,
		subtree:  subtree,
		moved:    moved,
	}
	for _, record := range records {
		c.expect(expectMove, record.apiID)
	}
	t.fx.moves = append(t.fx.moves, req)
	return records, true
}

// syncChildrenOrder sorts children by their physical position.
func (t *Tree) syncChildrenOrder(parents []*tab) {
	seen := make(map[schema.TabID]struct{}, len(parents))
	for _, parent := range parents {
		if parent == nil {
			continue
		}
		if _, ok := seen[parent.id]; ok {
			continue
		}
		seen[parent.id] = struct{}{}
		if len(parent.children) < 2 {
			continue
		}
		c := t.container(parent.windowID)
		slices.SortStableFunc(parent.children, func(a, b schema.TabID) int {
			return c.position(a) - c.position(b)
		})
	}
}

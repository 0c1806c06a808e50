package core

import (
	"context"
	"errors"
	"fmt"

	"pkt.systems/tabtree/internal/logx"
	"pkt.systems/tabtree/schema"
)

// AttachOptions tunes Attach.
type AttachOptions struct {
	// InsertAt overrides the configured insert position.
	InsertAt     schema.InsertPosition
	InsertBefore schema.TabID
	InsertAfter  schema.TabID
	// DontMove keeps the child at its current physical position.
	DontMove         bool
	DontUpdateIndent bool
	ForceExpand      bool
	DontExpand       bool
	Broadcast        bool
	// Broadcasted marks a replayed command. The physical move is left to the origin.
	Broadcasted bool

	ignore map[schema.TabID]struct{}
}

// DetachOptions tunes Detach.
type DetachOptions struct {
	Broadcast   bool
	Broadcasted bool
}

// Attach makes child a child of parent. Pinned tabs, tabs of different
// windows and requests that would create a cycle are rejected with an error
// wrapping schema.ErrInvalidStructure and leave the tree unchanged. When the
// child is closed while its subtree is being placed,
// schema.ErrTabRemovedDuringMove is returned.
func (t *Tree) Attach(ctx context.Context, child, parent schema.TabID, opts AttachOptions) error {
	ctx = t.logCtx(ctx)
	t.mu.Lock()
	err := t.attachLocked(ctx, t.get(child), t.get(parent), opts)
	fx := t.release()
	settleErr := t.settle(ctx, fx)
	if err == nil && !opts.DontMove && errors.Is(settleErr, schema.ErrTabRemovedDuringMove) {
		return settleErr
	}
	if settleErr != nil {
		t.log(ctx, schema.NoWindow, child).Debug("tree follow-up move failed", "err", settleErr)
	}
	return err
}

// Detach makes child a root.
func (t *Tree) Detach(ctx context.Context, child schema.TabID, opts DetachOptions) error {
	ctx = t.logCtx(ctx)
	return t.run(ctx, func() error {
		record := t.get(child)
		if record == nil {
			return fmt.Errorf("detach %s: %w", child, schema.ErrTabNotFound)
		}
		t.detachLocked(ctx, record, opts)
		return nil
	})
}

func (t *Tree) attachLocked(ctx context.Context, child, parent *tab, opts AttachOptions) error {
	if child == nil || parent == nil {
		logMissing(ctx, "tree attach skipped: missing tab", child, parent)
		return schema.ErrTabNotFound
	}
	log := t.log(ctx, child.windowID, child.id).With("parent", string(parent.id))
	if err := t.validateAttach(child, parent); err != nil {
		log.Debug("tree attach rejected", "err", err)
		return err
	}

	insertBefore := t.get(opts.InsertBefore)
	insertAfter := t.get(opts.InsertAfter)
	if opts.DontMove {
		insertBefore = t.nextTabOf(child)
		insertAfter = nil
		if insertBefore == nil {
			insertAfter = t.previousTabOf(child)
		}
	}
	if insertBefore == nil && insertAfter == nil {
		insertBefore, insertAfter = t.referenceTabsForNewChild(child, parent, opts.InsertAt, opts.ignore)
	}
	if insertAfter == nil {
		insertAfter = parent
	}
	newIndex := t.newTabIndex(child, insertBefore, insertAfter)

	newlyAttached := parent.childPosition(child.id) < 0 || child.parent != parent.id
	c := t.container(child.windowID)
	expected := make([]schema.TabID, 0, len(c.order))
	for _, id := range c.order {
		if id != child.id {
			expected = append(expected, id)
		}
	}
	if newIndex < 0 || newIndex > len(expected) {
		newIndex = len(expected)
	}
	expected = append(expected[:newIndex], append([]schema.TabID{child.id}, expected[newIndex:]...)...)
	children := make([]schema.TabID, 0, len(parent.children)+1)
	for _, id := range expected {
		if id == child.id {
			children = append(children, id)
			continue
		}
		if member := t.get(id); member != nil && member.parent == parent.id {
			children = append(children, id)
		}
	}

	if newlyAttached {
		t.detachLocked(ctx, child, DetachOptions{Broadcasted: true})
		child.parent = parent.id
	}
	parent.children = children
	if newlyAttached {
		if !opts.DontUpdateIndent {
			t.updateIndent(child, parent.level+1)
		}
		t.emit(schema.TreeEvent{Type: schema.TreeEventParentUpdated, WindowID: parent.windowID, Tab: parent.id})
	} else {
		log.Trace("tree attach normalized existing child")
	}
	t.emit(schema.TreeEvent{
		Type:     schema.TreeEventAttached,
		WindowID: child.windowID,
		Tab:      child.id,
		Attached: schema.AttachedEvent{Parent: parent.id, NewIndex: newIndex, NewlyAttached: newlyAttached},
	})
	log.Debug("tree attached", "index", newIndex, "newly_attached", newlyAttached)

	if opts.Broadcast && !opts.Broadcasted {
		t.publish(schema.Command{
			Type:             schema.CommandAttachTabTo,
			WindowID:         child.windowID,
			Tab:              child.id,
			Parent:           parent.id,
			InsertAt:         opts.InsertAt,
			InsertBefore:     tabID(insertBefore),
			InsertAfter:      tabID(insertAfter),
			DontMove:         opts.DontMove,
			DontUpdateIndent: opts.DontUpdateIndent,
			ForceExpand:      opts.ForceExpand,
			DontExpand:       opts.DontExpand,
		})
	}

	if !opts.DontMove {
		move := MoveOptions{Broadcasted: opts.Broadcasted}
		if insertBefore != nil {
			t.moveSubtreeLocked(ctx, child, insertBefore, false, move)
		} else {
			t.moveSubtreeLocked(ctx, child, insertAfter, true, move)
		}
	}
	t.fixCollapsedStateForAttached(ctx, child, parent, opts)
	return nil
}

func (t *Tree) validateAttach(child, parent *tab) error {
	if child.pinned || parent.pinned {
		return schema.ErrPinned
	}
	if child.windowID != parent.windowID {
		return schema.ErrCrossWindow
	}
	if child.id == parent.id || t.isDescendantOf(parent, child) {
		return schema.ErrCycle
	}
	return nil
}

// fixCollapsedStateForAttached keeps a new child consistent with a collapsed parent.
func (t *Tree) fixCollapsedStateForAttached(ctx context.Context, child, parent *tab, opts AttachOptions) {
	hide := parent.subtreeCollapsed || parent.collapsed
	if hide && !opts.DontExpand && (opts.ForceExpand || t.subtreeHasActive(child)) {
		chain := append([]*tab{parent}, t.ancestorsOf(parent)...)
		for i := len(chain) - 1; i >= 0; i-- {
			if chain[i].subtreeCollapsed {
				t.collapseExpandSubtreeLocked(ctx, chain[i], CollapseOptions{Collapsed: false})
			}
		}
		hide = false
	}
	t.collapseExpandTabAndSubtreeLocked(ctx, child, collapseStep{collapsed: hide})
}

func (t *Tree) subtreeHasActive(record *tab) bool {
	if record.active {
		return true
	}
	for _, descendant := range t.descendantsOf(record) {
		if descendant.active {
			return true
		}
	}
	return false
}

func (t *Tree) detachLocked(ctx context.Context, child *tab, opts DetachOptions) {
	parent := t.parentOf(child)
	if parent == nil {
		if child.parent != "" {
			child.parent = ""
			t.updateIndent(child, 0)
		}
		t.log(ctx, child.windowID, child.id).Trace("tree detach skipped: already a root")
		return
	}
	parent.removeChild(child.id)
	child.parent = ""
	t.updateIndent(child, 0)
	t.emit(schema.TreeEvent{
		Type:     schema.TreeEventDetached,
		WindowID: child.windowID,
		Tab:      child.id,
		Detached: schema.DetachedEvent{OldParent: parent.id},
	})
	t.emit(schema.TreeEvent{Type: schema.TreeEventParentUpdated, WindowID: parent.windowID, Tab: parent.id})
	if child.collapsed {
		t.collapseExpandTabAndSubtreeLocked(ctx, child, collapseStep{collapsed: false})
	}
	if opts.Broadcast && !opts.Broadcasted {
		t.publish(schema.Command{Type: schema.CommandDetachTab, WindowID: child.windowID, Tab: child.id})
	}
}

// updateIndent rewrites the level of record and its subtree. Pinned tabs keep no level.
func (t *Tree) updateIndent(record *tab, level int) {
	if record == nil || record.pinned {
		return
	}
	if record.level != level {
		record.level = level
		t.emit(schema.TreeEvent{
			Type:     schema.TreeEventLevelChanged,
			WindowID: record.windowID,
			Tab:      record.id,
			Level:    schema.LevelEvent{Level: level},
		})
	}
	for _, child := range t.childrenOf(record) {
		t.updateIndent(child, level+1)
	}
}

// referenceTabsForNewChild picks the neighbors of a new child among the
// parent's descendants according to the insert position policy.
func (t *Tree) referenceTabsForNewChild(child, parent *tab, insertAt schema.InsertPosition, ignore map[schema.TabID]struct{}) (before, after *tab) {
	if insertAt == "" {
		insertAt = t.cfg.InsertNewChildAt
	}
	skip := func(record *tab) bool {
		_, ok := ignore[record.id]
		return ok
	}
	var descendants []*tab
	for _, descendant := range t.descendantsOf(parent) {
		if !skip(descendant) {
			descendants = append(descendants, descendant)
		}
	}
	var lastDescendant *tab
	if len(descendants) > 0 {
		first := descendants[0]
		lastDescendant = descendants[len(descendants)-1]
		switch insertAt {
		case schema.InsertAtFirst:
			before = first
		case schema.InsertAtNearest:
			position := t.positionsIgnoring(child.windowID, ignore)
			index, ok := position[child.id]
			if !ok {
				index = -1
			}
			switch {
			case index < position[first.id]:
				before = first
				after = parent
			case index > position[lastDescendant.id]:
				after = lastDescendant
			default:
				for _, sibling := range t.childrenOf(parent) {
					if skip(sibling) || index > position[sibling.id] {
						continue
					}
					before = sibling
					break
				}
				if before == nil {
					after = lastDescendant
				}
			}
		default:
			after = lastDescendant
		}
	} else {
		after = parent
	}
	if before != nil && before.id == child.id {
		before = t.nextTabOf(before)
	}
	if after != nil && after.id == child.id {
		after = t.previousTabOf(after)
	}
	c := t.container(parent.windowID)
	if before != nil && c.position(before.id) <= c.position(parent.id) {
		before = nil
	}
	if after != nil {
		lastMember := parent
		if lastDescendant != nil {
			lastMember = lastDescendant
		}
		if c.position(after.id) >= c.position(lastMember.id) {
			after = lastMember
		}
	}
	return before, after
}

func (t *Tree) positionsIgnoring(windowID schema.WindowID, ignore map[schema.TabID]struct{}) map[schema.TabID]int {
	c := t.container(windowID)
	out := make(map[schema.TabID]int, len(c.order))
	pos := 0
	for _, id := range c.order {
		if _, ok := ignore[id]; ok {
			continue
		}
		out[id] = pos
		pos++
	}
	return out
}

// newTabIndex returns the position of child in the sequence without child.
func (t *Tree) newTabIndex(child, before, after *tab) int {
	position := t.positionsIgnoring(child.windowID, map[schema.TabID]struct{}{child.id: {}})
	if before != nil {
		if pos, ok := position[before.id]; ok {
			return pos
		}
	}
	if after != nil {
		if pos, ok := position[after.id]; ok {
			return pos + 1
		}
	}
	return -1
}

func logMissing(ctx context.Context, msg string, records ...*tab) {
	ids := make([]string, 0, len(records))
	for _, record := range records {
		if record != nil {
			ids = append(ids, string(record.id))
		}
	}
	logx.Ctx(ctx).Debug(msg, "known", ids)
}

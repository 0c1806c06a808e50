package core

import (
	"context"

	"pkt.systems/tabtree/schema"
)

// HandleCreated registers a tab reported by the service and places it in the
// tree. Tabs opened by the tree itself keep the position they were given.
func (t *Tree) HandleCreated(ctx context.Context, api schema.APITab) schema.TabID {
	ctx = t.logCtx(ctx)
	var id schema.TabID
	_ = t.run(ctx, func() error {
		record, created := t.registerLocked(api)
		id = record.id
		if !created {
			return nil
		}
		log := t.log(ctx, record.windowID, record.id)
		c := t.container(record.windowID)
		if c.counters.Duplicating > 0 {
			record.duplicating = true
			log.Trace("tree created tab left for duplication")
			return nil
		}
		skipAttach := c.counters.ToBeOpenedOrphans > 0
		if skipAttach {
			decrement(&c.counters.ToBeOpenedOrphans, 1)
		}
		skipFixup := c.counters.ToBeOpenedWithPositions > 0
		if skipFixup {
			decrement(&c.counters.ToBeOpenedWithPositions, 1)
		}
		if !skipAttach && api.OpenerTabID != 0 {
			if opener := t.getByAPI(api.OpenerTabID); opener != nil && opener.windowID == record.windowID {
				attached, err := t.behaveAutoAttachedLocked(ctx, record, opener, t.cfg.AutoAttachOnOpenedWithOpener)
				if err != nil {
					log.Debug("tree auto attach failed", "err", err)
				}
				skipFixup = skipFixup || attached || t.cfg.AutoAttachOnOpenedWithOpener != schema.NewTabDoNothing
			}
		}
		if !skipFixup {
			t.fixupTreeLocked(ctx, record)
		}
		log.Debug("tree tab created", "index", record.index, "parent", string(record.parent))
		return nil
	})
	return id
}

// HandleRemoved applies the close-parent behavior for a tab the service
// closed and drops its record.
func (t *Tree) HandleRemoved(ctx context.Context, apiID schema.APITabID) {
	ctx = t.logCtx(ctx)
	t.mu.Lock()
	record := t.getByAPI(apiID)
	if record == nil {
		fx := t.release()
		_ = t.settle(ctx, fx)
		return
	}
	id := record.id
	log := t.log(ctx, record.windowID, record.id)
	c := t.container(record.windowID)
	internal := c.consume(expectClose, apiID)
	record.removing = true

	behavior := schema.CloseParentSimplyDetachAllChildren
	switch {
	case internal:
		log.Trace("tree removal caused internally")
	case c.counters.ToBeDetached > 0:
		decrement(&c.counters.ToBeDetached, 1)
		log.Trace("tree removal is a transfer")
	default:
		behavior = t.closeParentBehaviorLocked(record, CloseParentOptions{})
		if record.active {
			t.tryMoveFocusLocked(ctx, record, FocusOptions{WasActive: true, Behavior: behavior})
		}
	}
	if behavior == schema.CloseParentCloseAllChildren {
		t.closeDescendantsLocked(record)
	}
	replace := behavior == schema.CloseParentReplaceWithGroupTab && record.hasChildren()
	fx := t.release()
	_ = t.settle(ctx, fx)

	if replace {
		if err := t.replaceWithGroupTab(ctx, id); err != nil {
			log.Warn("tree group tab replacement failed", "err", err)
			behavior = schema.CloseParentPromoteFirstChild
		}
	}

	_ = t.run(ctx, func() error {
		record := t.get(id)
		if record == nil {
			return nil
		}
		t.detachAllChildrenLocked(ctx, record, behavior, true)
		t.detachLocked(ctx, record, DetachOptions{Broadcast: true})
		t.unregisterLocked(record)
		log.Debug("tree tab removed", "behavior", string(behavior))
		return nil
	})
}

// closeDescendantsLocked asks the service to close the whole subtree of record.
func (t *Tree) closeDescendantsLocked(record *tab) {
	descendants := t.descendantsOf(record)
	if len(descendants) == 0 {
		return
	}
	c := t.container(record.windowID)
	ids := make([]schema.APITabID, 0, len(descendants))
	for _, descendant := range descendants {
		descendant.removing = true
		c.expect(expectClose, descendant.apiID)
		ids = append(ids, descendant.apiID)
	}
	t.publish(schema.Command{
		Type:     schema.CommandRemoveTabsInternally,
		WindowID: record.windowID,
		Tabs:     tabIDs(descendants),
	})
	t.fx.removals = append(t.fx.removals, removeRequest{windowID: record.windowID, ids: ids})
}

// HandleMoved follows a move reported by the service. Moves requested by the
// tree only refresh the cached index; other moves reorder the local sequence
// and fix the tree around the new position.
func (t *Tree) HandleMoved(ctx context.Context, api schema.APITab) {
	ctx = t.logCtx(ctx)
	_ = t.run(ctx, func() error {
		record := t.getByAPI(api.ID)
		if record == nil {
			return nil
		}
		c := t.container(record.windowID)
		log := t.log(ctx, record.windowID, record.id)
		if c.consume(expectMove, api.ID) {
			log.Trace("tree move caused internally", "index", api.Index)
			return nil
		}
		oldPrevious := t.previousTabOf(record)
		oldNext := t.nextTabOf(record)
		from := c.remove(record.id)
		c.insert(record.id, api.Index)
		to := c.position(record.id)
		t.restampRange(c, min(from, to), max(from, to))
		t.emit(schema.TreeEvent{
			Type:     schema.TreeEventMoved,
			WindowID: record.windowID,
			Tab:      record.id,
			Moved:    schema.MovedEvent{OldPrevious: tabID(oldPrevious), OldNext: tabID(oldNext), NewIndex: to},
		})
		t.syncChildrenOrder([]*tab{t.parentOf(record)})
		log.Debug("tree tab moved by service", "from", from, "to", to)
		if c.counters.SubtreeMoving > 0 || c.counters.AlreadyMoved > 0 {
			return nil
		}
		if record.hasChildren() {
			t.detachAllChildrenLocked(ctx, record, t.closeParentBehaviorLocked(record, CloseParentOptions{KeepChildren: true}), true)
		}
		t.fixupTreeLocked(ctx, record)
		return nil
	})
}

// fixupTreeLocked attaches a tab that landed between other tabs to the tree
// its neighbors imply.
func (t *Tree) fixupTreeLocked(ctx context.Context, record *tab) {
	if record.pinned {
		return
	}
	prev := t.previousTabOf(record)
	next := t.nextTabOf(record)
	if prev != nil && prev.pinned {
		prev = nil
	}
	if next != nil && next.pinned {
		next = nil
	}
	var parent *tab
	switch {
	case prev == nil || next == nil:
	case prev.level < next.level:
		parent = prev
	case prev.level == next.level:
		parent = t.parentOf(prev)
	default:
		parent = t.parentOf(next)
	}
	if parent == nil {
		if record.parent != "" {
			t.detachLocked(ctx, record, DetachOptions{Broadcast: true})
		}
		return
	}
	if parent.id == record.parent {
		return
	}
	if err := t.attachLocked(ctx, record, parent, AttachOptions{DontMove: true, Broadcast: true}); err != nil {
		t.log(ctx, record.windowID, record.id).Debug("tree fixup attach rejected", "err", err)
	}
}

// HandleActivated follows a focus change reported by the service.
func (t *Tree) HandleActivated(ctx context.Context, apiID schema.APITabID) {
	ctx = t.logCtx(ctx)
	var anchor schema.TabID
	_ = t.run(ctx, func() error {
		record := t.getByAPI(apiID)
		if record == nil {
			return nil
		}
		c := t.container(record.windowID)
		if c.consume(expectFocus, apiID) {
			t.setActiveLocked(c, record, true)
			return nil
		}
		t.setActiveLocked(c, record, false)
		if record.collapsed {
			ancestors := t.ancestorsOf(record)
			for i := len(ancestors) - 1; i >= 0; i-- {
				if ancestors[i].subtreeCollapsed {
					t.collapseExpandSubtreeLocked(ctx, ancestors[i], CollapseOptions{Collapsed: false, Broadcast: true})
				}
			}
		}
		if t.cfg.AutoCollapseExpandSubtreeOnSelect {
			anchor = record.id
		}
		return nil
	})
	if anchor != "" {
		_ = t.CollapseExpandTreesIntelligently(ctx, anchor)
	}
}

// HandleUpdated refreshes service-owned attributes. A tab that becomes
// pinned leaves its tree.
func (t *Tree) HandleUpdated(ctx context.Context, api schema.APITab) {
	ctx = t.logCtx(ctx)
	_ = t.run(ctx, func() error {
		record := t.getByAPI(api.ID)
		if record == nil {
			return nil
		}
		wasPinned := record.pinned
		record.update(api)
		switch {
		case record.pinned && !wasPinned:
			record.pinned = false
			t.detachAllChildrenLocked(ctx, record, t.closeParentBehaviorLocked(record, CloseParentOptions{KeepChildren: true}), true)
			t.detachLocked(ctx, record, DetachOptions{Broadcast: true})
			record.pinned = true
			t.setLevelLocked(record, schema.NoLevel)
			t.log(ctx, record.windowID, record.id).Debug("tree tab pinned")
		case !record.pinned && wasPinned:
			t.setLevelLocked(record, 0)
			t.log(ctx, record.windowID, record.id).Debug("tree tab unpinned")
		}
		return nil
	})
}

func (t *Tree) setLevelLocked(record *tab, level int) {
	if record.level == level {
		return
	}
	record.level = level
	t.emit(schema.TreeEvent{
		Type:     schema.TreeEventLevelChanged,
		WindowID: record.windowID,
		Tab:      record.id,
		Level:    schema.LevelEvent{Level: level},
	})
}

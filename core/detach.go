package core

import (
	"context"
	"fmt"
	"slices"

	"pkt.systems/tabtree/schema"
)

// DetachAllChildren rewrites the children of a tab according to behavior,
// as done when the tab closes. An empty behavior simply detaches them.
func (t *Tree) DetachAllChildren(ctx context.Context, id schema.TabID, behavior schema.CloseParentBehavior) error {
	ctx = t.logCtx(ctx)
	if behavior == schema.CloseParentReplaceWithGroupTab {
		if err := t.replaceWithGroupTab(ctx, id); err != nil {
			return err
		}
	}
	return t.run(ctx, func() error {
		record := t.get(id)
		if record == nil {
			return fmt.Errorf("detach children of %s: %w", id, schema.ErrTabNotFound)
		}
		t.detachAllChildrenLocked(ctx, record, behavior, true)
		return nil
	})
}

func (t *Tree) detachAllChildrenLocked(ctx context.Context, record *tab, behavior schema.CloseParentBehavior, broadcast bool) {
	children := t.childrenOf(record)
	if len(children) == 0 {
		return
	}
	if behavior == "" {
		behavior = schema.CloseParentSimplyDetachAllChildren
	}
	if behavior == schema.CloseParentCloseAllChildren {
		behavior = schema.CloseParentPromoteFirstChild
	}
	if record.groupTab && !slices.ContainsFunc(children, func(child *tab) bool { return !child.removing }) {
		behavior = schema.CloseParentPromoteAllChildren
	}
	parent := t.parentOf(record)

	var nextTab *tab
	if behavior == schema.CloseParentDetachAllChildren && !t.cfg.MoveTabsToBottomWhenDetachedFromClosedParent {
		nextTab = t.nextSiblingOf(t.rootOf(record))
	}
	if behavior == schema.CloseParentReplaceWithGroupTab {
		behavior = schema.CloseParentPromoteAllChildren
	}
	if behavior != schema.CloseParentDetachAllChildren {
		t.collapseExpandSubtreeLocked(ctx, record, CollapseOptions{Collapsed: false, Broadcast: broadcast})
	}
	t.log(ctx, record.windowID, record.id).Debug("tree detaching all children", "behavior", string(behavior), "children", len(children))

	detach := DetachOptions{Broadcast: broadcast}
	attach := AttachOptions{DontMove: true, DontExpand: true, Broadcast: broadcast}
	for i, child := range children {
		switch behavior {
		case schema.CloseParentDetachAllChildren:
			t.detachLocked(ctx, child, detach)
			if nextTab != nil {
				t.moveSubtreeLocked(ctx, child, nextTab, false, MoveOptions{Broadcast: broadcast})
			} else if last := t.lastTabOf(child.windowID); last != nil {
				t.moveSubtreeLocked(ctx, child, last, true, MoveOptions{Broadcast: broadcast})
			}
		case schema.CloseParentPromoteFirstChild:
			t.detachLocked(ctx, child, detach)
			if i == 0 {
				if parent != nil {
					_ = t.attachLocked(ctx, child, parent, attach)
				}
				t.collapseExpandSubtreeLocked(ctx, child, CollapseOptions{Collapsed: false, Broadcast: broadcast})
				continue
			}
			_ = t.attachLocked(ctx, child, children[0], attach)
		case schema.CloseParentPromoteAllChildren:
			if parent != nil {
				_ = t.attachLocked(ctx, child, parent, attach)
				continue
			}
			t.detachLocked(ctx, child, detach)
		default:
			t.detachLocked(ctx, child, detach)
		}
	}
}

// replaceWithGroupTab opens a group tab in the place of id and makes id its
// only child, so promoting the children of id hands them to the group tab.
func (t *Tree) replaceWithGroupTab(ctx context.Context, id schema.TabID) error {
	t.mu.Lock()
	record := t.get(id)
	if record == nil {
		t.mu.Unlock()
		return fmt.Errorf("replace %s with group tab: %w", id, schema.ErrTabNotFound)
	}
	params := schema.CreateParams{
		WindowID: record.windowID,
		URL:      t.cfg.GroupTabURL,
		Title:    record.title,
		Index:    t.container(record.windowID).position(record.id),
	}
	parent := tabID(t.parentOf(record))
	t.mu.Unlock()

	group, err := t.openTab(ctx, params, true)
	if err != nil {
		return fmt.Errorf("open group tab: %w", err)
	}
	return t.run(ctx, func() error {
		record := t.get(id)
		groupTab := t.get(group)
		if record == nil || groupTab == nil {
			return nil
		}
		if p := t.get(parent); p != nil {
			_ = t.attachLocked(ctx, groupTab, p, AttachOptions{DontMove: true, DontExpand: true, Broadcast: true})
		}
		return t.attachLocked(ctx, record, groupTab, AttachOptions{DontMove: true, DontExpand: true, Broadcast: true})
	})
}

// DetachTabsFromTree lifts a selection out of its trees. Children outside
// the selection are handed to the nearest surviving ancestor, and the
// structure inside the selection is kept.
func (t *Tree) DetachTabsFromTree(ctx context.Context, ids []schema.TabID) {
	ctx = t.logCtx(ctx)
	_ = t.run(ctx, func() error {
		t.detachTabsFromTreeLocked(ctx, t.resolve(ids), true)
		return nil
	})
}

func (t *Tree) detachTabsFromTreeLocked(ctx context.Context, records []*tab, broadcast bool) {
	selected := make(map[schema.TabID]struct{}, len(records))
	for _, record := range records {
		selected[record.id] = struct{}{}
	}
	for i := len(records) - 1; i >= 0; i-- {
		record := records[i]
		parent := t.parentOf(record)
		for _, child := range t.childrenOf(record) {
			if _, ok := selected[child.id]; ok {
				continue
			}
			if parent != nil {
				_ = t.attachLocked(ctx, child, parent, AttachOptions{DontMove: true, Broadcast: broadcast})
				continue
			}
			t.detachLocked(ctx, child, DetachOptions{Broadcast: broadcast})
		}
	}
	for _, record := range records {
		parent := t.parentOf(record)
		if parent == nil {
			continue
		}
		if _, ok := selected[parent.id]; !ok {
			t.detachLocked(ctx, record, DetachOptions{Broadcast: broadcast})
		}
	}
}

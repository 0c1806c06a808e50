package core

import (
	"context"
	"fmt"
	"slices"

	"pkt.systems/tabtree/schema"
)

// openTab creates a tab through the service and registers it. The creation
// notification is told to leave the new tab where it was placed.
func (t *Tree) openTab(ctx context.Context, params schema.CreateParams, group bool) (schema.TabID, error) {
	t.withContainer(params.WindowID, func(c *container) {
		c.counters.ToBeOpenedOrphans++
		c.counters.ToBeOpenedWithPositions++
	})
	api, err := t.svc.Create(ctx, params)
	if err != nil {
		t.withContainer(params.WindowID, func(c *container) {
			decrement(&c.counters.ToBeOpenedOrphans, 1)
			decrement(&c.counters.ToBeOpenedWithPositions, 1)
		})
		return "", err
	}
	var id schema.TabID
	_ = t.run(ctx, func() error {
		record, created := t.registerLocked(api)
		if created {
			c := t.container(record.windowID)
			decrement(&c.counters.ToBeOpenedOrphans, 1)
			decrement(&c.counters.ToBeOpenedWithPositions, 1)
		}
		record.groupTab = group
		id = record.id
		return nil
	})
	return id, nil
}

// GroupTabs puts the selection under a new group tab opened in place of the
// first selected root. It returns the group tab.
func (t *Tree) GroupTabs(ctx context.Context, ids []schema.TabID) (schema.TabID, error) {
	ctx = t.logCtx(ctx)
	t.mu.Lock()
	records := t.sortedLocked(t.resolve(ids))
	if len(records) == 0 {
		t.mu.Unlock()
		return "", fmt.Errorf("group tabs: %w", schema.ErrTabNotFound)
	}
	roots := t.collectRootTabs(records)
	first := roots[0]
	params := schema.CreateParams{
		WindowID: first.windowID,
		URL:      t.cfg.GroupTabURL,
		Title:    first.title,
		Index:    t.container(first.windowID).position(first.id),
	}
	parent := tabID(t.parentOf(first))
	t.mu.Unlock()

	group, err := t.openTab(ctx, params, true)
	if err != nil {
		return "", fmt.Errorf("open group tab: %w", err)
	}

	t.mu.Lock()
	groupTab := t.get(group)
	if p := t.get(parent); p != nil && groupTab != nil {
		_ = t.attachLocked(ctx, groupTab, p, AttachOptions{DontMove: true, Broadcast: true})
	}
	records = t.sortedLocked(t.resolve(ids))
	t.detachTabsFromTreeLocked(ctx, records, true)
	if len(records) > 1 {
		t.moveTabsLocked(ctx, records[1:], records[0], true, MoveOptions{Broadcast: true})
	}
	fx := t.release()
	_ = t.settle(ctx, fx)

	err = t.run(ctx, func() error {
		groupTab := t.get(group)
		if groupTab == nil {
			return fmt.Errorf("group tab %s: %w", group, schema.ErrTabNotFound)
		}
		for _, root := range t.collectRootTabs(t.sortedLocked(t.resolve(ids))) {
			if err := t.attachLocked(ctx, root, groupTab, AttachOptions{ForceExpand: true, DontMove: true, Broadcast: true}); err != nil {
				t.log(ctx, root.windowID, root.id).Debug("tree group member not attached", "err", err)
			}
		}
		t.log(ctx, groupTab.windowID, groupTab.id).Info("tree tabs grouped", "tabs", len(ids))
		return nil
	})
	if err != nil {
		return "", err
	}
	return group, nil
}

// sortedLocked orders records by window and position.
func (t *Tree) sortedLocked(records []*tab) []*tab {
	out := slices.Clone(records)
	slices.SortStableFunc(out, func(a, b *tab) int {
		if a.windowID != b.windowID {
			return int(a.windowID) - int(b.windowID)
		}
		c := t.container(a.windowID)
		return c.position(a.id) - c.position(b.id)
	})
	return out
}

// BehaveAutoAttachedTab places a new tab relative to base according to
// behavior. It reports whether the tab was attached to a tree.
func (t *Tree) BehaveAutoAttachedTab(ctx context.Context, id, base schema.TabID, behavior schema.NewTabBehavior) (bool, error) {
	ctx = t.logCtx(ctx)
	var attached bool
	err := t.run(ctx, func() error {
		record := t.get(id)
		if record == nil {
			return fmt.Errorf("auto attach %s: %w", id, schema.ErrTabNotFound)
		}
		baseTab := t.get(base)
		if baseTab == nil {
			baseTab = t.get(t.container(record.windowID).active)
		}
		var err error
		attached, err = t.behaveAutoAttachedLocked(ctx, record, baseTab, behavior)
		return err
	})
	return attached, err
}

func (t *Tree) behaveAutoAttachedLocked(ctx context.Context, record, base *tab, behavior schema.NewTabBehavior) (bool, error) {
	log := t.log(ctx, record.windowID, record.id)
	log.Debug("tree auto attach", "behavior", string(behavior), "base", string(tabID(base)))
	switch behavior {
	case schema.NewTabOpenAsOrphan:
		t.detachLocked(ctx, record, DetachOptions{Broadcast: true})
		if t.nextTabOf(record) != nil {
			t.moveTabsLocked(ctx, []*tab{record}, t.lastTabOf(record.windowID), true, MoveOptions{Broadcast: true})
		}
		return false, nil
	case schema.NewTabOpenAsChild:
		if base == nil || base == record {
			return false, nil
		}
		err := t.attachLocked(ctx, record, base, AttachOptions{
			DontMove:    t.cfg.InsertNewChildAt == schema.InsertNoControl,
			ForceExpand: true,
			Broadcast:   true,
		})
		return err == nil, err
	case schema.NewTabOpenAsSibling:
		if base == nil || base == record {
			return false, nil
		}
		if parent := t.parentOf(base); parent != nil {
			err := t.attachLocked(ctx, record, parent, AttachOptions{Broadcast: true})
			return err == nil, err
		}
		t.detachLocked(ctx, record, DetachOptions{Broadcast: true})
		t.moveTabsLocked(ctx, []*tab{record}, t.lastTabOf(record.windowID), true, MoveOptions{Broadcast: true})
		return true, nil
	case schema.NewTabOpenAsNextSibling:
		if base == nil || base == record {
			return false, nil
		}
		nextSibling := t.nextSiblingOf(base)
		if nextSibling == record {
			nextSibling = nil
		}
		if parent := t.parentOf(base); parent != nil {
			err := t.attachLocked(ctx, record, parent, AttachOptions{
				InsertBefore: tabID(nextSibling),
				InsertAfter:  tabID(t.lastDescendantOf(base)),
				Broadcast:    true,
			})
			return err == nil, err
		}
		t.detachLocked(ctx, record, DetachOptions{Broadcast: true})
		if nextSibling != nil {
			t.moveTabsLocked(ctx, []*tab{record}, nextSibling, false, MoveOptions{Broadcast: true})
		} else {
			ref := t.lastDescendantOf(base)
			if ref == nil {
				ref = base
			}
			t.moveTabsLocked(ctx, []*tab{record}, ref, true, MoveOptions{Broadcast: true})
		}
		return false, nil
	}
	return false, nil
}

package core

import (
	"context"
	"slices"

	"pkt.systems/tabtree/schema"
)

// DragDropParams describes a drop of dragged tabs.
type DragDropParams struct {
	Tabs []schema.TabID
	// DestinationWindow defaults to the window of the dragged tabs.
	DestinationWindow schema.WindowID
	// AttachTo is the drop parent. Empty drops the tabs as roots.
	AttachTo     schema.TabID
	InsertBefore schema.TabID
	InsertAfter  schema.TabID
	// Attach applies AttachTo. Without it the tabs are only moved.
	Attach    bool
	Duplicate bool
}

// PerformDragDrop moves dragged tabs to the drop position and applies the
// drop parent. A partially dragged tree is lifted out first.
func (t *Tree) PerformDragDrop(ctx context.Context, params DragDropParams) ([]schema.TabID, error) {
	ctx = t.logCtx(ctx)
	t.mu.Lock()
	dragged := t.sortedLocked(t.resolve(params.Tabs))
	if len(dragged) == 0 {
		t.mu.Unlock()
		return nil, nil
	}
	source := dragged[0].windowID
	dest := params.DestinationWindow
	if dest == schema.NoWindow {
		dest = source
	}
	roots := t.collectRootTabs(dragged)
	whole := slices.Clone(roots)
	for _, root := range roots {
		for _, descendant := range t.descendantsOf(root) {
			if !slices.Contains(whole, descendant) {
				whole = append(whole, descendant)
			}
		}
	}
	log := t.log(ctx, source, "").With("tabs", len(dragged), "destination", int(dest))
	if len(whole) != len(dragged) && !params.Duplicate {
		log.Debug("tree drop of partial tree")
		t.detachTabsFromTreeLocked(ctx, dragged, true)
	}
	insertBefore := t.get(params.InsertBefore)
	for insertBefore != nil && slices.Contains(whole, insertBefore) {
		insertBefore = t.nextTabOf(insertBefore)
	}
	insertAfter := t.get(params.InsertAfter)
	for insertAfter != nil && slices.Contains(whole, insertAfter) {
		insertAfter = t.previousTabOf(insertAfter)
	}
	ids := tabIDs(dragged)
	fx := t.release()
	_ = t.settle(ctx, fx)

	if params.Duplicate || dest != source {
		moved, err := t.MoveTabs(ctx, ids, MoveTabsOptions{
			DestinationWindow: dest,
			InsertBefore:      tabID(insertBefore),
			InsertAfter:       tabID(insertAfter),
			Duplicate:         params.Duplicate,
		})
		if err != nil {
			return nil, err
		}
		ids = moved
	}

	t.mu.Lock()
	dragged = t.resolve(ids)
	roots = t.collectRootTabs(dragged)
	parent := t.get(params.AttachTo)
	insertBefore = t.get(tabID(insertBefore))
	insertAfter = t.get(tabID(insertAfter))
	switch {
	case params.AttachTo == "" || parent == nil:
		for _, root := range roots {
			t.detachLocked(ctx, root, DetachOptions{Broadcast: true})
			t.collapseExpandTabAndSubtreeLocked(ctx, root, collapseStep{collapsed: false, broadcast: true})
		}
	case params.Attach:
		t.attachOnDropLocked(ctx, roots, dragged, parent, insertBefore, insertAfter)
	default:
		log.Trace("tree drop only moves tabs")
	}
	switch {
	case insertBefore != nil:
		t.moveTabsLocked(ctx, dragged, insertBefore, false, MoveOptions{Broadcast: true})
	case insertAfter != nil:
		t.moveTabsLocked(ctx, dragged, insertAfter, true, MoveOptions{Broadcast: true})
	}
	if dest != source && len(dragged) > 0 {
		t.focusLocked(t.container(dragged[0].windowID), dragged[0])
	}
	ids = tabIDs(dragged)
	fx = t.release()
	_ = t.settle(ctx, fx)
	log.Debug("tree drop finished", "attach_to", string(params.AttachTo))
	return ids, nil
}

func (t *Tree) attachOnDropLocked(ctx context.Context, roots, dragged []*tab, parent, insertBefore, insertAfter *tab) {
	if insertBefore == nil && insertAfter == nil && len(roots) > 0 {
		ignore := make(map[schema.TabID]struct{}, len(dragged))
		for _, record := range dragged {
			ignore[record.id] = struct{}{}
		}
		insertBefore, insertAfter = t.referenceTabsForNewChild(roots[0], parent, "", ignore)
	}
	switch {
	case insertBefore != nil:
		t.moveTabsLocked(ctx, dragged, insertBefore, false, MoveOptions{Broadcast: true})
	case insertAfter != nil:
		t.moveTabsLocked(ctx, dragged, insertAfter, true, MoveOptions{Broadcast: true})
	}
	forceExpand := slices.ContainsFunc(dragged, func(record *tab) bool { return record.active })
	for _, root := range roots {
		if err := t.attachLocked(ctx, root, parent, AttachOptions{DontMove: true, ForceExpand: forceExpand, Broadcast: true}); err != nil {
			t.log(ctx, root.windowID, root.id).Debug("tree drop attach rejected", "err", err)
		}
	}
}

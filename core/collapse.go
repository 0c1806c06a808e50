package core

import (
	"context"
	"fmt"

	"pkt.systems/tabtree/schema"
)

// CollapseOptions tunes CollapseExpandSubtree.
type CollapseOptions struct {
	Collapsed bool
	// Force rewrites descendants even when the state already matches.
	Force           bool
	JustNow         bool
	ManualOperation bool
	Broadcast       bool
	Broadcasted     bool
}

// collapseStep describes the change applied to one tab by an ancestor.
type collapseStep struct {
	collapsed   bool
	anchor      schema.TabID
	justNow     bool
	broadcast   bool
	broadcasted bool
}

// CollapseExpandSubtree hides or shows every descendant of a tab. Descendants
// below another collapsed subtree stay hidden on expand.
func (t *Tree) CollapseExpandSubtree(ctx context.Context, id schema.TabID, opts CollapseOptions) error {
	ctx = t.logCtx(ctx)
	return t.run(ctx, func() error {
		record := t.get(id)
		if record == nil {
			return fmt.Errorf("collapse %s: %w", id, schema.ErrTabNotFound)
		}
		t.collapseExpandSubtreeLocked(ctx, record, opts)
		return nil
	})
}

// ManualCollapseExpandSubtree toggles a subtree on behalf of the user and
// broadcasts the change.
func (t *Tree) ManualCollapseExpandSubtree(ctx context.Context, id schema.TabID, collapsed bool) error {
	return t.CollapseExpandSubtree(ctx, id, CollapseOptions{
		Collapsed:       collapsed,
		ManualOperation: true,
		Broadcast:       true,
	})
}

// CollapseExpandTabAndSubtree hides or shows a tab together with its
// subtree. Used when a dropped tree lands inside a collapsed one.
func (t *Tree) CollapseExpandTabAndSubtree(ctx context.Context, id schema.TabID, collapsed bool) error {
	ctx = t.logCtx(ctx)
	return t.run(ctx, func() error {
		record := t.get(id)
		if record == nil {
			return fmt.Errorf("collapse tab %s: %w", id, schema.ErrTabNotFound)
		}
		t.collapseExpandTabAndSubtreeLocked(ctx, record, collapseStep{collapsed: collapsed, broadcast: true})
		return nil
	})
}

func (t *Tree) collapseExpandSubtreeLocked(ctx context.Context, record *tab, opts CollapseOptions) {
	log := t.log(ctx, record.windowID, record.id)
	if record.subtreeCollapsed == opts.Collapsed && !opts.Force {
		log.Trace("tree collapse skipped: state unchanged", "collapsed", opts.Collapsed)
		return
	}
	if record.subtreeCollapsed != opts.Collapsed {
		record.subtreeCollapsed = opts.Collapsed
		t.emit(schema.TreeEvent{
			Type:      schema.TreeEventSubtreeCollapsedChanged,
			WindowID:  record.windowID,
			Tab:       record.id,
			Collapsed: schema.CollapsedEvent{Collapsed: opts.Collapsed, Anchor: record.id},
		})
	}
	switch {
	case opts.Collapsed:
		record.expandedManually = false
	case opts.ManualOperation:
		record.expandedManually = true
	}
	if opts.Broadcast && !opts.Broadcasted {
		t.publish(schema.Command{
			Type:            schema.CommandChangeSubtreeCollapsedState,
			WindowID:        record.windowID,
			Tab:             record.id,
			Collapsed:       opts.Collapsed,
			ManualOperation: opts.ManualOperation,
			JustNow:         opts.JustNow,
		})
	}
	t.setSubtreeVisibility(ctx, record, collapseStep{
		collapsed:   opts.Collapsed,
		anchor:      record.id,
		justNow:     opts.JustNow,
		broadcasted: opts.Broadcasted,
	})
	log.Debug("tree subtree collapsed state changed", "collapsed", opts.Collapsed, "descendants", len(t.descendantsOf(record)))
}

// setSubtreeVisibility rewrites the collapsed flag of every descendant of
// record. A descendant is hidden when its parent is hidden or has a
// collapsed subtree, so expanding a tab does not reveal tabs below a
// descendant that is still collapsed itself.
func (t *Tree) setSubtreeVisibility(ctx context.Context, record *tab, step collapseStep) {
	hidden := record.collapsed || record.subtreeCollapsed
	for _, child := range t.childrenOf(record) {
		next := step
		next.collapsed = hidden
		t.collapseExpandTabLocked(ctx, child, next)
		t.setSubtreeVisibility(ctx, child, step)
	}
}

func (t *Tree) collapseExpandTabAndSubtreeLocked(ctx context.Context, record *tab, step collapseStep) {
	t.collapseExpandTabLocked(ctx, record, step)
	t.setSubtreeVisibility(ctx, record, step)
}

// collapseExpandTabLocked sets the collapsed flag of one tab. An active tab
// that becomes hidden hands focus to its nearest visible ancestor.
func (t *Tree) collapseExpandTabLocked(ctx context.Context, record *tab, step collapseStep) {
	if record.pinned && step.collapsed {
		return
	}
	if record.collapsed == step.collapsed {
		return
	}
	record.collapsed = step.collapsed
	t.emit(schema.TreeEvent{
		Type:      schema.TreeEventCollapsedChanged,
		WindowID:  record.windowID,
		Tab:       record.id,
		Collapsed: schema.CollapsedEvent{Collapsed: step.collapsed, Anchor: step.anchor},
	})
	if step.broadcast && !step.broadcasted {
		t.publish(schema.Command{
			Type:      schema.CommandChangeTabCollapsedState,
			WindowID:  record.windowID,
			Tab:       record.id,
			Collapsed: step.collapsed,
			JustNow:   step.justNow,
		})
	}
	if step.collapsed && record.active {
		if target := t.visibleAncestorOrSelf(record); target != nil && target != record {
			t.log(ctx, record.windowID, record.id).Debug("tree focus moved out of collapsed tree", "target", string(target.id))
			t.focusLocked(t.container(record.windowID), target)
		}
	}
}

// focusLocked activates a tab locally and asks the service to follow.
func (t *Tree) focusLocked(c *container, record *tab) {
	if c.active == record.id {
		return
	}
	t.setActiveLocked(c, record, true)
	c.expect(expectFocus, record.apiID)
	t.fx.focus = append(t.fx.focus, focusRequest{windowID: c.windowID, apiID: record.apiID})
}

// CollapseExpandTreesIntelligently expands the tree around anchor and
// collapses unrelated trees. Nested calls for the same window are ignored.
func (t *Tree) CollapseExpandTreesIntelligently(ctx context.Context, anchor schema.TabID) error {
	ctx = t.logCtx(ctx)
	t.mu.Lock()
	record := t.get(anchor)
	if record == nil {
		t.mu.Unlock()
		return fmt.Errorf("collapse around %s: %w", anchor, schema.ErrTabNotFound)
	}
	c := t.container(record.windowID)
	if c.counters.IntelligentCollapse > 0 {
		t.mu.Unlock()
		t.log(ctx, record.windowID, record.id).Trace("tree intelligent collapse skipped: already running")
		return nil
	}
	c.counters.IntelligentCollapse++
	t.collapseExpandTreesIntelligentlyLocked(ctx, record)
	fx := t.release()
	_ = t.settle(ctx, fx)

	t.withContainer(c.windowID, func(c *container) { decrement(&c.counters.IntelligentCollapse, 1) })
	return nil
}

func (t *Tree) collapseExpandTreesIntelligentlyLocked(ctx context.Context, anchor *tab) {
	keep := map[schema.TabID]struct{}{anchor.id: {}}
	for _, ancestor := range t.ancestorsOf(anchor) {
		keep[ancestor.id] = struct{}{}
	}
	for _, descendant := range t.descendantsOf(anchor) {
		keep[descendant.id] = struct{}{}
	}
	c := t.container(anchor.windowID)
	var candidates []*tab
	for _, id := range c.order {
		record := t.get(id)
		if record == nil || record.pinned || record.hidden || record.collapsed {
			continue
		}
		if !record.hasChildren() || record.subtreeCollapsed || record.expandedManually {
			continue
		}
		if _, ok := keep[record.id]; ok {
			continue
		}
		candidates = append(candidates, record)
	}
	collapsed := 0
	for _, candidate := range candidates {
		dontCollapse := false
		if parent := t.parentOf(candidate); parent != nil {
			dontCollapse = true
			if !parent.subtreeCollapsed {
				for _, ancestor := range t.ancestorsOf(candidate) {
					if _, ok := keep[ancestor.id]; !ok {
						continue
					}
					dontCollapse = false
					break
				}
			}
		}
		if dontCollapse {
			continue
		}
		t.collapseExpandSubtreeLocked(ctx, candidate, CollapseOptions{Collapsed: true, Broadcast: true})
		collapsed++
	}
	t.collapseExpandSubtreeLocked(ctx, anchor, CollapseOptions{Collapsed: false, Broadcast: true})
	t.log(ctx, anchor.windowID, anchor.id).Debug("tree trees collapsed intelligently", "collapsed", collapsed)
}

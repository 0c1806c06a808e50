package core

import (
	"context"

	"pkt.systems/tabtree/schema"
)

// CloseParentOptions adjusts how the close-parent behavior is resolved.
type CloseParentOptions struct {
	// KeepChildren forces a promote behavior so no child is closed.
	KeepChildren bool
	// AsIndividualTab ignores a collapsed subtree.
	AsIndividualTab bool
}

// CloseParentBehaviorFor resolves the configured close-parent behavior for a
// tab about to close.
func (t *Tree) CloseParentBehaviorFor(id schema.TabID, opts CloseParentOptions) schema.CloseParentBehavior {
	t.mu.Lock()
	defer t.mu.Unlock()
	record := t.get(id)
	if record == nil {
		return t.cfg.CloseParentBehavior
	}
	return t.closeParentBehaviorLocked(record, opts)
}

func (t *Tree) closeParentBehaviorLocked(record *tab, opts CloseParentOptions) schema.CloseParentBehavior {
	if !opts.AsIndividualTab && record.subtreeCollapsed && !opts.KeepChildren {
		return schema.CloseParentCloseAllChildren
	}
	behavior := t.cfg.CloseParentBehavior
	parent := t.parentOf(record)
	if opts.KeepChildren &&
		behavior != schema.CloseParentPromoteFirstChild &&
		behavior != schema.CloseParentPromoteAllChildren {
		behavior = schema.CloseParentPromoteFirstChild
	}
	if parent == nil && behavior == schema.CloseParentPromoteAllChildren && t.cfg.PromoteFirstChildForClosedRoot {
		behavior = schema.CloseParentPromoteFirstChild
	}
	if behavior == schema.CloseParentPromoteFirstChild && parent != nil &&
		len(parent.children) == 1 && t.cfg.PromoteAllChildrenWhenClosedParentIsLastChild {
		behavior = schema.CloseParentPromoteAllChildren
	}
	return behavior
}

// FocusOptions tunes TryMoveFocusFromClosingCurrentTab.
type FocusOptions struct {
	// Ignored tabs are closing too and cannot take focus.
	Ignored []schema.TabID
	// WasActive treats the tab as active even when focus already moved.
	WasActive bool
	Behavior  schema.CloseParentBehavior
}

// TryMoveFocusFromClosingCurrentTab moves focus to the tab that should follow
// a closing active tab within its tree. It returns the newly focused tab, or
// an empty id when focus is left to the service.
func (t *Tree) TryMoveFocusFromClosingCurrentTab(ctx context.Context, id schema.TabID, opts FocusOptions) schema.TabID {
	ctx = t.logCtx(ctx)
	var focused schema.TabID
	_ = t.run(ctx, func() error {
		record := t.get(id)
		if record == nil {
			return nil
		}
		if target := t.tryMoveFocusLocked(ctx, record, opts); target != nil {
			focused = target.id
		}
		return nil
	})
	return focused
}

func (t *Tree) tryMoveFocusLocked(ctx context.Context, record *tab, opts FocusOptions) *tab {
	if !t.cfg.MoveFocusInTreeForClosedCurrentTab {
		return nil
	}
	log := t.log(ctx, record.windowID, record.id)
	if !opts.WasActive && !record.active {
		log.Trace("tree focus redirect skipped: not active")
		return nil
	}
	ignored := make(map[schema.TabID]struct{}, len(opts.Ignored)+1)
	ignored[record.id] = struct{}{}
	for _, id := range opts.Ignored {
		ignored[id] = struct{}{}
	}
	isIgnored := func(candidate *tab) bool {
		if candidate == nil {
			return false
		}
		_, ok := ignored[candidate.id]
		return ok
	}
	behavior := opts.Behavior
	if behavior == "" {
		behavior = t.closeParentBehaviorLocked(record, CloseParentOptions{})
	}
	parent := t.parentOf(record)

	var next *tab
	if first := t.firstChildOf(record); first != nil &&
		(behavior == schema.CloseParentPromoteAllChildren || behavior == schema.CloseParentPromoteFirstChild) {
		next = first
	}
	if parent != nil {
		if next == nil && t.lastChildOf(parent) == record {
			if t.firstChildOf(parent) == record {
				next = parent
			} else {
				next = t.previousSiblingOf(record)
			}
		}
		if isIgnored(next) {
			next = t.nextFocusedTabOf(parent, ignored)
		}
	} else if next == nil {
		next = t.nextFocusedTabOf(record, ignored)
	}
	if isIgnored(next) {
		next = t.nextFocusedTabOf(next, ignored)
	}
	if next == nil || next.hidden || next.active {
		log.Trace("tree focus redirect skipped: no candidate")
		return nil
	}
	log.Debug("tree focus redirected from closing tab", "target", string(next.id), "behavior", string(behavior))
	t.focusLocked(t.container(record.windowID), next)
	return next
}

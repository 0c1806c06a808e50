package core

import (
	"context"
	"fmt"

	"pkt.systems/tabtree/schema"
)

// Apply replays a command broadcast by a peer. Commands already applied,
// either by a sequence at or below the last one seen for their window or by
// their visible effect, are skipped, and commands
// naming unknown tabs are ignored.
func (t *Tree) Apply(ctx context.Context, cmd schema.Command) error {
	ctx = t.logCtx(ctx)
	return t.run(ctx, func() error {
		log := t.log(ctx, cmd.WindowID, cmd.Tab).With("command", string(cmd.Type))
		if cmd.Seq != 0 {
			if cmd.Seq <= t.appliedSeq[cmd.WindowID] {
				log.Trace("tree command skipped: already applied", "seq", cmd.Seq)
				return nil
			}
			t.appliedSeq[cmd.WindowID] = cmd.Seq
		}
		applied, err := t.applyLocked(ctx, cmd)
		if err != nil {
			log.Debug("tree command rejected", "err", err)
			return err
		}
		if !applied {
			log.Trace("tree command had no effect")
		}
		return nil
	})
}

func (t *Tree) applyLocked(ctx context.Context, cmd schema.Command) (bool, error) {
	record := t.get(cmd.Tab)
	switch cmd.Type {
	case schema.CommandAttachTabTo:
		parent := t.get(cmd.Parent)
		if record == nil || parent == nil {
			return false, nil
		}
		if record.parent == parent.id {
			return false, nil
		}
		err := t.attachLocked(ctx, record, parent, AttachOptions{
			InsertAt:         cmd.InsertAt,
			InsertBefore:     cmd.InsertBefore,
			InsertAfter:      cmd.InsertAfter,
			DontMove:         cmd.DontMove,
			DontUpdateIndent: cmd.DontUpdateIndent,
			ForceExpand:      cmd.ForceExpand,
			DontExpand:       cmd.DontExpand,
			Broadcasted:      true,
		})
		return err == nil, err
	case schema.CommandDetachTab:
		if record == nil || record.parent == "" {
			return false, nil
		}
		t.detachLocked(ctx, record, DetachOptions{Broadcasted: true})
		return true, nil
	case schema.CommandMoveTabsBefore, schema.CommandMoveTabsAfter:
		after := cmd.Type == schema.CommandMoveTabsAfter
		moved := t.moveTabsLocked(ctx, t.resolve(cmd.Tabs), record, after, MoveOptions{Broadcasted: true})
		return len(moved) > 0, nil
	case schema.CommandChangeSubtreeCollapsedState:
		if record == nil || record.subtreeCollapsed == cmd.Collapsed {
			return false, nil
		}
		t.collapseExpandSubtreeLocked(ctx, record, CollapseOptions{
			Collapsed:       cmd.Collapsed,
			JustNow:         cmd.JustNow,
			ManualOperation: cmd.ManualOperation,
			Broadcasted:     true,
		})
		return true, nil
	case schema.CommandChangeTabCollapsedState:
		if record == nil || record.collapsed == cmd.Collapsed {
			return false, nil
		}
		t.collapseExpandTabLocked(ctx, record, collapseStep{collapsed: cmd.Collapsed, justNow: cmd.JustNow, broadcasted: true})
		return true, nil
	case schema.CommandRemoveTabsInternally:
		changed := false
		for _, member := range t.resolve(cmd.Tabs) {
			if !member.removing {
				member.removing = true
				changed = true
			}
		}
		return changed, nil
	case schema.CommandBlockUserOperations:
		t.blockLocked(cmd.WindowID, cmd.Throbber, false)
		return true, nil
	case schema.CommandUnblockUserOperations:
		t.unblockLocked(cmd.WindowID, cmd.Throbber, false)
		return true, nil
	}
	return false, fmt.Errorf("%w: %q", schema.ErrInvalidCommand, cmd.Type)
}

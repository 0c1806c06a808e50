package schema

// CommandType identifies a broadcast tree mutation.
type CommandType string

const (
	// CommandAttachTabTo replays Attach.
	CommandAttachTabTo CommandType = "attach_tab_to"
	// CommandDetachTab replays Detach.
	CommandDetachTab CommandType = "detach_tab"
	// CommandMoveTabsBefore replays MoveBefore.
	CommandMoveTabsBefore CommandType = "move_tabs_before"
	// CommandMoveTabsAfter replays MoveAfter.
	CommandMoveTabsAfter CommandType = "move_tabs_after"
	// CommandChangeSubtreeCollapsedState replays CollapseExpandSubtree.
	CommandChangeSubtreeCollapsedState CommandType = "change_subtree_collapsed_state"
	// CommandChangeTabCollapsedState replays a single tab collapse change.
	CommandChangeTabCollapsedState CommandType = "change_tab_collapsed_state"
	// CommandRemoveTabsInternally announces tabs being closed by the tree.
	CommandRemoveTabsInternally CommandType = "remove_tabs_internally"
	// CommandBlockUserOperations asks peers to block user input for a window.
	CommandBlockUserOperations CommandType = "block_user_operations"
	// CommandUnblockUserOperations releases a block.
	CommandUnblockUserOperations CommandType = "unblock_user_operations"
)

// Command is the broadcast message for a tree mutation. It carries enough
// identity for a receiver to detect an already applied effect.
type Command struct {
	Seq              uint64         `json:"seq,omitempty"`
	Type             CommandType    `json:"type"`
	WindowID         WindowID       `json:"window_id"`
	Tab              TabID          `json:"tab,omitempty"`
	Tabs             []TabID        `json:"tabs,omitempty"`
	Parent           TabID          `json:"parent,omitempty"`
	InsertBefore     TabID          `json:"insert_before,omitempty"`
	InsertAfter      TabID          `json:"insert_after,omitempty"`
	InsertAt         InsertPosition `json:"insert_at,omitempty"`
	DontMove         bool           `json:"dont_move,omitempty"`
	DontUpdateIndent bool           `json:"dont_update_indent,omitempty"`
	ForceExpand      bool           `json:"force_expand,omitempty"`
	DontExpand       bool           `json:"dont_expand,omitempty"`
	Collapsed        bool           `json:"collapsed,omitempty"`
	ManualOperation  bool           `json:"manual_operation,omitempty"`
	ByAncestor       bool           `json:"by_ancestor,omitempty"`
	JustNow          bool           `json:"just_now,omitempty"`
	Throbber         bool           `json:"throbber,omitempty"`
	Broadcasted      bool           `json:"broadcasted,omitempty"`
}

// Known reports whether the command type is one the tree can replay.
func (t CommandType) Known() bool {
	switch t {
	case CommandAttachTabTo,
		CommandDetachTab,
		CommandMoveTabsBefore,
		CommandMoveTabsAfter,
		CommandChangeSubtreeCollapsedState,
		CommandChangeTabCollapsedState,
		CommandRemoveTabsInternally,
		CommandBlockUserOperations,
		CommandUnblockUserOperations:
		return true
	}
	return false
}

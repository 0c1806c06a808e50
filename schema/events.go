package schema

// TreeEventType identifies the tree event payload.
type TreeEventType string

const (
	// TreeEventCreated reports a tab record entering the registry.
	TreeEventCreated TreeEventType = "created"
	// TreeEventRemoved reports a tab record leaving the registry.
	TreeEventRemoved TreeEventType = "removed"
	// TreeEventAttached reports a child attached to a parent.
	TreeEventAttached TreeEventType = "attached"
	// TreeEventDetached reports a child detached from its parent.
	TreeEventDetached TreeEventType = "detached"
	// TreeEventMoved reports a local reorder of a tab.
	TreeEventMoved TreeEventType = "moved"
	// TreeEventLevelChanged reports a new indentation level.
	TreeEventLevelChanged TreeEventType = "level_changed"
	// TreeEventCollapsedChanged reports a tab hidden or shown by an ancestor.
	TreeEventCollapsedChanged TreeEventType = "collapsed_changed"
	// TreeEventSubtreeCollapsedChanged reports a tab's own children hidden or shown.
	TreeEventSubtreeCollapsedChanged TreeEventType = "subtree_collapsed_changed"
	// TreeEventParentUpdated reports a parent whose children changed.
	TreeEventParentUpdated TreeEventType = "parent_updated"
	// TreeEventActivated reports a focus change.
	TreeEventActivated TreeEventType = "activated"
)

// TreeEvent is a typed notification emitted by the tree core. Only the payload
// matching Type is populated.
type TreeEvent struct {
	Type      TreeEventType
	WindowID  WindowID
	Tab       TabID
	Attached  AttachedEvent
	Detached  DetachedEvent
	Moved     MovedEvent
	Level     LevelEvent
	Collapsed CollapsedEvent
	Activated ActivatedEvent
}

// AttachedEvent carries attach details.
type AttachedEvent struct {
	Parent        TabID
	NewIndex      int
	NewlyAttached bool
}

// DetachedEvent carries the previous parent.
type DetachedEvent struct {
	OldParent TabID
}

// MovedEvent carries the neighbors before the local reorder.
type MovedEvent struct {
	OldPrevious TabID
	OldNext     TabID
	NewIndex    int
}

// LevelEvent carries the new level.
type LevelEvent struct {
	Level int
}

// CollapsedEvent carries collapse state details.
type CollapsedEvent struct {
	Collapsed bool
	// Anchor is the tab whose subtree toggle caused the change.
	Anchor TabID
	// Last marks the final tab of an expand pass.
	Last bool
}

// ActivatedEvent carries focus change details.
type ActivatedEvent struct {
	Previous TabID
	Silently bool
}

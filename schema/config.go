package schema

import (
	"fmt"
	"strings"
	"time"
)

// InsertPosition selects where a new child is placed among its parent's descendants.
type InsertPosition string

const (
	// InsertAtEnd places the child after the last descendant.
	InsertAtEnd InsertPosition = "end"
	// InsertAtFirst places the child before the first child.
	InsertAtFirst InsertPosition = "first"
	// InsertAtNearest keeps the child close to its current physical position.
	InsertAtNearest InsertPosition = "nearest"
	// InsertNoControl leaves the child where the tab service put it.
	InsertNoControl InsertPosition = "no_control"
)

// CloseParentBehavior selects how children are rewritten when their parent closes.
type CloseParentBehavior string

const (
	// CloseParentCloseAllChildren closes the whole subtree. The tree rewrite is
	// identical to CloseParentPromoteFirstChild.
	CloseParentCloseAllChildren CloseParentBehavior = "close_all_children"
	// CloseParentDetachAllChildren makes every child a root and moves it out of the tree.
	CloseParentDetachAllChildren CloseParentBehavior = "detach_all_children"
	// CloseParentPromoteFirstChild makes the first child take the parent's role.
	CloseParentPromoteFirstChild CloseParentBehavior = "promote_first_child"
	// CloseParentPromoteAllChildren attaches every child to the grandparent.
	CloseParentPromoteAllChildren CloseParentBehavior = "promote_all_children"
	// CloseParentReplaceWithGroupTab puts a group tab in the parent's place.
	CloseParentReplaceWithGroupTab CloseParentBehavior = "replace_with_group_tab"
	// CloseParentSimplyDetachAllChildren detaches children without moving them.
	CloseParentSimplyDetachAllChildren CloseParentBehavior = "simply_detach_all_children"
)

// NewTabBehavior selects how a freshly opened tab joins the tree.
type NewTabBehavior string

const (
	// NewTabDoNothing leaves the tab alone.
	NewTabDoNothing NewTabBehavior = "do_nothing"
	// NewTabOpenAsOrphan detaches the tab and moves it to the end.
	NewTabOpenAsOrphan NewTabBehavior = "orphan"
	// NewTabOpenAsChild attaches the tab to the base tab.
	NewTabOpenAsChild NewTabBehavior = "child"
	// NewTabOpenAsSibling attaches the tab to the base tab's parent.
	NewTabOpenAsSibling NewTabBehavior = "sibling"
	// NewTabOpenAsNextSibling places the tab right after the base tab's subtree.
	NewTabOpenAsNextSibling NewTabBehavior = "next_sibling"
)

// TreeConfig defines tree behavior defaults and external wait limits.
type TreeConfig struct {
	InsertNewChildAt    InsertPosition
	CloseParentBehavior CloseParentBehavior
	// MoveTabsToBottomWhenDetachedFromClosedParent sends children detached
	// from a closed parent to the end of the window instead of right after
	// the closed tree.
	MoveTabsToBottomWhenDetachedFromClosedParent  bool
	PromoteFirstChildForClosedRoot                bool
	PromoteAllChildrenWhenClosedParentIsLastChild bool
	MoveFocusInTreeForClosedCurrentTab            bool
	// AutoAttachOnOpenedWithOpener applies to tabs opened from another tab.
	AutoAttachOnOpenedWithOpener NewTabBehavior
	// AutoCollapseExpandSubtreeOnSelect collapses other trees when a tab is
	// activated from outside.
	AutoCollapseExpandSubtreeOnSelect bool
	// MoveConfirmTimeout bounds the wait for the tab service to report a move.
	MoveConfirmTimeout time.Duration
	// PollInterval is the first backoff step of confirmation polls.
	PollInterval time.Duration
	// DuplicateTimeout bounds the wait for duplicated or transferred tabs to appear.
	DuplicateTimeout time.Duration
	GroupTabURL      string
}

// Default tree timing values.
const (
	DefaultMoveConfirmTimeout = 2 * time.Second
	DefaultPollInterval       = 20 * time.Millisecond
	DefaultDuplicateTimeout   = 10 * time.Second
	DefaultGroupTabURL        = "about:treetabs-group"
)

// DefaultTreeConfig returns the configuration used when nothing is set.
func DefaultTreeConfig() TreeConfig {
	return TreeConfig{
		InsertNewChildAt:                              InsertAtEnd,
		CloseParentBehavior:                           CloseParentPromoteFirstChild,
		PromoteFirstChildForClosedRoot:                true,
		PromoteAllChildrenWhenClosedParentIsLastChild: true,
		MoveFocusInTreeForClosedCurrentTab:            true,
		AutoAttachOnOpenedWithOpener:                  NewTabOpenAsChild,
		AutoCollapseExpandSubtreeOnSelect:             true,
		MoveConfirmTimeout:                            DefaultMoveConfirmTimeout,
		PollInterval:                                  DefaultPollInterval,
		DuplicateTimeout:                              DefaultDuplicateTimeout,
		GroupTabURL:                                   DefaultGroupTabURL,
	}
}

// NormalizeTreeConfig applies defaults and validates the config.
func NormalizeTreeConfig(cfg TreeConfig) (TreeConfig, error) {
	if cfg.InsertNewChildAt == "" {
		cfg.InsertNewChildAt = InsertAtEnd
	}
	if cfg.CloseParentBehavior == "" {
		cfg.CloseParentBehavior = CloseParentPromoteFirstChild
	}
	if cfg.AutoAttachOnOpenedWithOpener == "" {
		cfg.AutoAttachOnOpenedWithOpener = NewTabOpenAsChild
	}
	if cfg.MoveConfirmTimeout <= 0 {
		cfg.MoveConfirmTimeout = DefaultMoveConfirmTimeout
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.DuplicateTimeout <= 0 {
		cfg.DuplicateTimeout = DefaultDuplicateTimeout
	}
	if cfg.GroupTabURL == "" {
		cfg.GroupTabURL = DefaultGroupTabURL
	}
	var err error
	if cfg.InsertNewChildAt, err = ParseInsertPosition(string(cfg.InsertNewChildAt)); err != nil {
		return TreeConfig{}, err
	}
	if cfg.CloseParentBehavior, err = ParseCloseParentBehavior(string(cfg.CloseParentBehavior)); err != nil {
		return TreeConfig{}, err
	}
	if cfg.AutoAttachOnOpenedWithOpener, err = ParseNewTabBehavior(string(cfg.AutoAttachOnOpenedWithOpener)); err != nil {
		return TreeConfig{}, err
	}
	if cfg.PollInterval > cfg.MoveConfirmTimeout {
		return TreeConfig{}, fmt.Errorf("%w: poll interval exceeds move confirm timeout", ErrInvalidConfig)
	}
	return cfg, nil
}

// ParseInsertPosition validates an insert position name.
func ParseInsertPosition(value string) (InsertPosition, error) {
	switch pos := InsertPosition(strings.ToLower(strings.TrimSpace(value))); pos {
	case InsertAtEnd, InsertAtFirst, InsertAtNearest, InsertNoControl:
		return pos, nil
	}
	return "", fmt.Errorf("%w: unknown insert position %q", ErrInvalidConfig, value)
}

// ParseCloseParentBehavior validates a close-parent behavior name.
func ParseCloseParentBehavior(value string) (CloseParentBehavior, error) {
	switch b := CloseParentBehavior(strings.ToLower(strings.TrimSpace(value))); b {
	case CloseParentCloseAllChildren,
		CloseParentDetachAllChildren,
		CloseParentPromoteFirstChild,
		CloseParentPromoteAllChildren,
		CloseParentReplaceWithGroupTab,
		CloseParentSimplyDetachAllChildren:
		return b, nil
	}
	return "", fmt.Errorf("%w: unknown close parent behavior %q", ErrInvalidConfig, value)
}

// ParseNewTabBehavior validates a new tab behavior name.
func ParseNewTabBehavior(value string) (NewTabBehavior, error) {
	switch b := NewTabBehavior(strings.ToLower(strings.TrimSpace(value))); b {
	case NewTabDoNothing, NewTabOpenAsOrphan, NewTabOpenAsChild, NewTabOpenAsSibling, NewTabOpenAsNextSibling:
		return b, nil
	}
	return "", fmt.Errorf("%w: unknown new tab behavior %q", ErrInvalidConfig, value)
}

package appconfig

import (
	"os"
	"path/filepath"
	"time"

	"pkt.systems/tabtree/schema"
)

// Config is the top-level application configuration.
type Config struct {
	ConfigVersion int             `mapstructure:"config_version" yaml:"config_version"`
	Tree          TreeConfig      `mapstructure:"tree" yaml:"tree"`
	State         StateConfig     `mapstructure:"state" yaml:"state"`
	Broadcast     BroadcastConfig `mapstructure:"broadcast" yaml:"broadcast"`
}

// CurrentConfigVersion marks the supported config version.
const CurrentConfigVersion = 1

// TreeConfig controls tree behavior. Durations are milliseconds.
type TreeConfig struct {
	InsertNewChildAt                              string `mapstructure:"insert_new_child_at" yaml:"insert_new_child_at"`
	CloseParentBehavior                           string `mapstructure:"close_parent_behavior" yaml:"close_parent_behavior"`
	MoveTabsToBottomWhenDetachedFromClosedParent  bool   `mapstructure:"move_tabs_to_bottom_when_detached_from_closed_parent" yaml:"move_tabs_to_bottom_when_detached_from_closed_parent"`
	PromoteFirstChildForClosedRoot                bool   `mapstructure:"promote_first_child_for_closed_root" yaml:"promote_first_child_for_closed_root"`
	PromoteAllChildrenWhenClosedParentIsLastChild bool   `mapstructure:"promote_all_children_when_closed_parent_is_last_child" yaml:"promote_all_children_when_closed_parent_is_last_child"`
	MoveFocusInTreeForClosedCurrentTab            bool   `mapstructure:"move_focus_in_tree_for_closed_current_tab" yaml:"move_focus_in_tree_for_closed_current_tab"`
	AutoAttachOnOpenedWithOpener                  string `mapstructure:"auto_attach_on_opened_with_opener" yaml:"auto_attach_on_opened_with_opener"`
	AutoCollapseExpandSubtreeOnSelect             bool   `mapstructure:"auto_collapse_expand_subtree_on_select" yaml:"auto_collapse_expand_subtree_on_select"`
	GroupTabURL                                   string `mapstructure:"group_tab_url" yaml:"group_tab_url"`
	MoveConfirmTimeoutMS                          int    `mapstructure:"move_confirm_timeout_ms" yaml:"move_confirm_timeout_ms"`
	PollIntervalMS                                int    `mapstructure:"poll_interval_ms" yaml:"poll_interval_ms"`
	DuplicateTimeoutMS                            int    `mapstructure:"duplicate_timeout_ms" yaml:"duplicate_timeout_ms"`
}

// StateConfig controls where window structures are persisted.
type StateConfig struct {
	Backend string `mapstructure:"backend" yaml:"backend"`
	Dir     string `mapstructure:"dir" yaml:"dir"`
}

// BroadcastConfig controls the command hub.
type BroadcastConfig struct {
	History int `mapstructure:"history" yaml:"history"`
}

// DefaultConfig returns a config with sensible defaults.
func DefaultConfig() (Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return Config{}, err
	}
	tree := schema.DefaultTreeConfig()
	return Config{
		ConfigVersion: CurrentConfigVersion,
		Tree: TreeConfig{
			InsertNewChildAt:    string(tree.InsertNewChildAt),
			CloseParentBehavior: string(tree.CloseParentBehavior),
			MoveTabsToBottomWhenDetachedFromClosedParent:  tree.MoveTabsToBottomWhenDetachedFromClosedParent,
			PromoteFirstChildForClosedRoot:                tree.PromoteFirstChildForClosedRoot,
			PromoteAllChildrenWhenClosedParentIsLastChild: tree.PromoteAllChildrenWhenClosedParentIsLastChild,
			MoveFocusInTreeForClosedCurrentTab:            tree.MoveFocusInTreeForClosedCurrentTab,
			AutoAttachOnOpenedWithOpener:                  string(tree.AutoAttachOnOpenedWithOpener),
			AutoCollapseExpandSubtreeOnSelect:             tree.AutoCollapseExpandSubtreeOnSelect,
			GroupTabURL:                                   tree.GroupTabURL,
			MoveConfirmTimeoutMS:                          int(tree.MoveConfirmTimeout / time.Millisecond),
			PollIntervalMS:                                int(tree.PollInterval / time.Millisecond),
			DuplicateTimeoutMS:                            int(tree.DuplicateTimeout / time.Millisecond),
		},
		State: StateConfig{
			Backend: "json",
			Dir:     filepath.Join(home, ".tabtree", "state"),
		},
		Broadcast: BroadcastConfig{
			History: 1000,
		},
	}, nil
}

// Resolve converts the section into a validated schema.TreeConfig.
func (c TreeConfig) Resolve() (schema.TreeConfig, error) {
	return schema.NormalizeTreeConfig(schema.TreeConfig{
		InsertNewChildAt:    schema.InsertPosition(c.InsertNewChildAt),
		CloseParentBehavior: schema.CloseParentBehavior(c.CloseParentBehavior),
		MoveTabsToBottomWhenDetachedFromClosedParent:  c.MoveTabsToBottomWhenDetachedFromClosedParent,
		PromoteFirstChildForClosedRoot:                c.PromoteFirstChildForClosedRoot,
		PromoteAllChildrenWhenClosedParentIsLastChild: c.PromoteAllChildrenWhenClosedParentIsLastChild,
		MoveFocusInTreeForClosedCurrentTab:            c.MoveFocusInTreeForClosedCurrentTab,
		AutoAttachOnOpenedWithOpener:                  schema.NewTabBehavior(c.AutoAttachOnOpenedWithOpener),
		AutoCollapseExpandSubtreeOnSelect:             c.AutoCollapseExpandSubtreeOnSelect,
		GroupTabURL:                                   c.GroupTabURL,
		MoveConfirmTimeout:                            time.Duration(c.MoveConfirmTimeoutMS) * time.Millisecond,
		PollInterval:                                  time.Duration(c.PollIntervalMS) * time.Millisecond,
		DuplicateTimeout:                              time.Duration(c.DuplicateTimeoutMS) * time.Millisecond,
	})
}

// DefaultConfigPath returns the standard config path.
func DefaultConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".tabtree", "config.yaml"), nil
}

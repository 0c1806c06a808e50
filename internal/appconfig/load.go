package appconfig

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
	"pkt.systems/tabtree/internal/persist"
)

// Load reads configuration from the provided path. If path is empty, uses DefaultConfigPath.
func Load(path string) (Config, error) {
	if path == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			return Config{}, err
		}
		path = defaultPath
	}

	cfg, err := DefaultConfig()
	if err != nil {
		return Config{}, err
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("TABTREE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	v.SetDefault("tree.insert_new_child_at", cfg.Tree.InsertNewChildAt)
	v.SetDefault("tree.close_parent_behavior", cfg.Tree.CloseParentBehavior)
	v.SetDefault("tree.move_tabs_to_bottom_when_detached_from_closed_parent", cfg.Tree.MoveTabsToBottomWhenDetachedFromClosedParent)
	v.SetDefault("tree.promote_first_child_for_closed_root", cfg.Tree.PromoteFirstChildForClosedRoot)
	v.SetDefault("tree.promote_all_children_when_closed_parent_is_last_child", cfg.Tree.PromoteAllChildrenWhenClosedParentIsLastChild)
	v.SetDefault("tree.move_focus_in_tree_for_closed_current_tab", cfg.Tree.MoveFocusInTreeForClosedCurrentTab)
	v.SetDefault("tree.auto_attach_on_opened_with_opener", cfg.Tree.AutoAttachOnOpenedWithOpener)
	v.SetDefault("tree.auto_collapse_expand_subtree_on_select", cfg.Tree.AutoCollapseExpandSubtreeOnSelect)
	v.SetDefault("tree.group_tab_url", cfg.Tree.GroupTabURL)
	v.SetDefault("tree.move_confirm_timeout_ms", cfg.Tree.MoveConfirmTimeoutMS)
	v.SetDefault("tree.poll_interval_ms", cfg.Tree.PollIntervalMS)
	v.SetDefault("tree.duplicate_timeout_ms", cfg.Tree.DuplicateTimeoutMS)
	v.SetDefault("state.backend", cfg.State.Backend)
	v.SetDefault("state.dir", cfg.State.Dir)
	v.SetDefault("broadcast.history", cfg.Broadcast.History)

	configLoaded := false
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && !os.IsNotExist(err) {
			return Config{}, err
		}
	} else {
		configLoaded = true
	}

	if configLoaded {
		if !v.IsSet("config_version") {
			return Config{}, fmt.Errorf("config_version is required; expected %d", CurrentConfigVersion)
		}
		if v.GetInt("config_version") != CurrentConfigVersion {
			return Config{}, fmt.Errorf("unsupported config_version %d; expected %d", v.GetInt("config_version"), CurrentConfigVersion)
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}
	expandConfigEnv(&cfg)
	if err := validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func validate(cfg Config) error {
	if _, err := cfg.Tree.Resolve(); err != nil {
		return err
	}
	switch strings.ToLower(strings.TrimSpace(cfg.State.Backend)) {
	case persist.BackendJSON, persist.BackendSQLite:
	default:
		return fmt.Errorf("unsupported state.backend %q", cfg.State.Backend)
	}
	if strings.TrimSpace(cfg.State.Dir) == "" {
		return fmt.Errorf("state.dir is required")
	}
	if cfg.Broadcast.History < 0 {
		return fmt.Errorf("broadcast.history must not be negative")
	}
	return nil
}

func expandConfigEnv(cfg *Config) {
	if cfg == nil {
		return
	}
	cfg.State.Dir = expandEnv(cfg.State.Dir)
	cfg.Tree.GroupTabURL = expandEnv(cfg.Tree.GroupTabURL)
}

func expandEnv(value string) string {
	if value == "" {
		return value
	}
	return os.Expand(value, func(key string) string {
		if key == "" {
			return ""
		}
		if val, ok := lookupEnv(key); ok {
			return val
		}
		return "$" + key
	})
}

func lookupEnv(key string) (string, bool) {
	if val, ok := os.LookupEnv(key); ok {
		return val, true
	}
	switch key {
	case "UID":
		return fmt.Sprintf("%d", os.Getuid()), true
	case "GID":
		return fmt.Sprintf("%d", os.Getgid()), true
	}
	return "", false
}

// WriteDefault writes the default config to the target path.
func WriteDefault(path string, overwrite bool) (string, error) {
	if path == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			return "", err
		}
		path = defaultPath
	}

	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return "", fmt.Errorf("config already exists at %s", path)
		}
	}

	cfg, err := DefaultConfig()
	if err != nil {
		return "", err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return "", err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return "", err
	}
	return path, nil
}

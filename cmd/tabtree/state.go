package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"pkt.systems/pslog"
	"pkt.systems/tabtree/internal/appconfig"
	"pkt.systems/tabtree/internal/persist"
	"pkt.systems/tabtree/schema"
)

func newStateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "state",
		Short: "Inspect persisted window structures",
	}
	cmd.AddCommand(newStateShowCmd())
	return cmd
}

func newStateShowCmd() *cobra.Command {
	var path string
	var format string
	var windowID int
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print the saved structure of a window",
		RunE: func(cmd *cobra.Command, args []string) error {
			out, err := parseFormat(format)
			if err != nil {
				return err
			}
			cfg, err := appconfig.Load(path)
			if err != nil {
				return err
			}
			logger := pslog.Ctx(cmd.Context())
			store, err := persist.Open(cfg.State.Backend, cfg.State.Dir, logger)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()
			state, ok, err := store.LoadWindow(cmd.Context(), schema.WindowID(windowID))
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("window %d: %w", windowID, schema.ErrWindowNotFound)
			}
			return writeOutput(cmd.OutOrStdout(), out, state)
		},
	}
	cmd.Flags().StringVarP(&path, "config", "c", "", "config file path")
	cmd.Flags().StringVarP(&format, "output", "o", formatYAML, "output format (yaml|json)")
	cmd.Flags().IntVarP(&windowID, "window", "w", 1, "window id")
	return cmd
}

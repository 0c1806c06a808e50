package main

import (
	"context"
	"errors"
	"os"

	"github.com/spf13/cobra"

	"pkt.systems/pslog"
	"pkt.systems/tabtree"
	"pkt.systems/tabtree/internal/appconfig"
	"pkt.systems/tabtree/internal/broadcast"
	"pkt.systems/tabtree/internal/memtabs"
	"pkt.systems/tabtree/internal/persist"
	"pkt.systems/tabtree/schema"
)

type inspectOptions struct {
	configPath  string
	format      string
	persist     bool
	stateDir    string
	replayPath  string
	commandsOut string
}

func newInspectCmd() *cobra.Command {
	var opts inspectOptions
	cmd := &cobra.Command{
		Use:   "inspect <scenario.yaml|scenario.json>",
		Short: "Run a tab scenario against an in-process tab service and print the tree",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := parseFormat(opts.format)
			if err != nil {
				return err
			}
			report, err := runInspect(cmd.Context(), args[0], opts)
			if err != nil {
				return err
			}
			return writeOutput(cmd.OutOrStdout(), format, report)
		},
	}
	cmd.Flags().StringVarP(&opts.configPath, "config", "c", "", "config file path")
	cmd.Flags().StringVarP(&opts.format, "output", "o", formatYAML, "output format (yaml|json)")
	cmd.Flags().BoolVar(&opts.persist, "persist", false, "restore and save window structures through the configured store")
	cmd.Flags().StringVar(&opts.stateDir, "state-dir", "", "override state.dir")
	cmd.Flags().StringVar(&opts.replayPath, "replay", "", "apply broadcast commands (JSON lines) after the steps")
	cmd.Flags().StringVar(&opts.commandsOut, "commands-out", "", "write broadcast commands (JSON lines) to this file")
	return cmd
}

func runInspect(ctx context.Context, scenarioPath string, opts inspectOptions) (report Report, err error) {
	logger := pslog.Ctx(ctx)
	cfg, err := appconfig.Load(opts.configPath)
	if err != nil {
		return Report{}, err
	}
	if opts.stateDir != "" {
		cfg.State.Dir = opts.stateDir
	}
	treeCfg, err := cfg.Tree.Resolve()
	if err != nil {
		return Report{}, err
	}
	sc, err := loadScenario(scenarioPath)
	if err != nil {
		return Report{}, err
	}

	svc := memtabs.New(memtabs.Options{Logger: logger})
	sessionOpts := []tabtree.SessionOption{tabtree.WithBroadcast()}
	if opts.persist {
		sessionOpts = append(sessionOpts, tabtree.WithStore())
	}
	session, err := tabtree.New(tabtree.SessionConfig{
		Tree:             treeCfg,
		StateBackend:     cfg.State.Backend,
		StateDir:         cfg.State.Dir,
		BroadcastHistory: cfg.Broadcast.History,
	}, tabtree.SessionDeps{Service: svc, Logger: logger}, sessionOpts...)
	if err != nil {
		return Report{}, err
	}
	svc.SetListener(session.Tree())

	r := &runner{tree: session.Tree(), svc: svc}
	if err := r.open(ctx, sc); err != nil {
		return Report{}, err
	}
	if err := session.Start(ctx); err != nil {
		return Report{}, err
	}
	defer func() {
		err = errors.Join(err, session.Stop(ctx))
	}()
	if err := r.run(ctx, sc.Steps); err != nil {
		return Report{}, err
	}
	if opts.replayPath != "" {
		if err := replayCommands(ctx, session, opts.replayPath); err != nil {
			return Report{}, err
		}
	}
	if opts.commandsOut != "" {
		if err := writeCommands(opts.commandsOut, session.Hub().Replay(schema.NoWindow, 0)); err != nil {
			return Report{}, err
		}
	}
	logger.Info("inspect done", "scenario", scenarioPath, "steps", len(sc.Steps), "commands", session.Hub().Seq(), "persist", opts.persist, "backend", backendName(cfg, opts))
	return r.report(), nil
}

func replayCommands(ctx context.Context, session *tabtree.Session, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	cmds, err := broadcast.ReadCommands(f)
	if err != nil {
		return err
	}
	_, err = broadcast.CatchUp(ctx, cmds, session.Tree())
	return err
}

func writeCommands(path string, cmds []schema.Command) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	if err := broadcast.WriteCommands(f, cmds); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

func backendName(cfg appconfig.Config, opts inspectOptions) string {
	if !opts.persist {
		return "none"
	}
	if cfg.State.Backend == "" {
		return persist.BackendJSON
	}
	return cfg.State.Backend
}

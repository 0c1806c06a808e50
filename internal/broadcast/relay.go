package broadcast

import (
	"context"
	"errors"

	"pkt.systems/pslog"
	"pkt.systems/tabtree/internal/logx"
	"pkt.systems/tabtree/schema"
)

// Applier replays a broadcast command. core.Tree implements it.
type Applier interface {
	Apply(ctx context.Context, cmd schema.Command) error
}

// Relay applies commands from ch until the channel closes or ctx is done.
// Rejected commands are logged and skipped. It returns ctx.Err() when
// cancelled and nil when the channel closes.
func Relay(ctx context.Context, ch <-chan schema.Command, applier Applier) error {
	log := pslog.Ctx(ctx)
	applied := 0
	for {
		select {
		case <-ctx.Done():
			log.Debug("broadcast relay stopped", "applied", applied)
			return ctx.Err()
		case cmd, ok := <-ch:
			if !ok {
				log.Debug("broadcast relay drained", "applied", applied)
				return nil
			}
			if err := applier.Apply(ctx, cmd); err != nil {
				if errors.Is(err, context.Canceled) {
					return err
				}
				logx.WithCommand(log, cmd).Debug("broadcast relay apply failed", "err", err)
				continue
			}
			applied++
		}
	}
}

// CatchUp applies retained history in order. It returns the sequence of the
// last command handed to the applier.
func CatchUp(ctx context.Context, history []schema.Command, applier Applier) (uint64, error) {
	var last uint64
	for _, cmd := range history {
		if err := ctx.Err(); err != nil {
			return last, err
		}
		if err := applier.Apply(ctx, cmd); err != nil {
			logx.WithCommand(pslog.Ctx(ctx), cmd).Debug("broadcast catch-up apply failed", "err", err)
		}
		last = cmd.Seq
	}
	return last, nil
}

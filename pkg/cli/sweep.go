package cli

import (
	"context"

	"github.com/secmon-lab/medic/pkg/utils/async"
	"github.com/secmon-lab/medic/pkg/utils/logging"
	"github.com/urfave/cli/v3"
)

func cmdSweep() *cli.Command {
	var cfg pipelineConfig

	return &cli.Command{
		Name:  "sweep",
		Usage: "Expire overdue approvals and recover stranded incidents once, e.g. from a scheduled job",
		Flags: cfg.Flags(),
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx, p, err := cfg.build(async.WithSync(ctx))
			if err != nil {
				return err
			}
			defer p.Close()

			return runSweep(ctx, p)
		},
	}
}

func runSweep(ctx context.Context, p *pipeline) error {
	expired, err := p.uc.SweepExpiredApprovals(ctx)
	if err != nil {
		return err
	}
	recovered, err := p.uc.RecoverIncidents(ctx)
	if err != nil {
		return err
	}

	logging.From(ctx).Info("sweep finished", "expired", expired, "recovered", recovered)
	return nil
}

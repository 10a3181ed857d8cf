package config

import (
	"log/slog"
	"os"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/medic/pkg/adapter/runner"
	"github.com/secmon-lab/medic/pkg/utils/errutil"
	"github.com/urfave/cli/v3"
)

// Runner configures how remediation actions reach the target.
type Runner struct {
	playbookDir string
	binary      string
	dryRun      bool
}

func (x *Runner) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "playbook-dir",
			Usage:       "Directory holding <action>.yml playbooks, execution is unavailable when empty",
			Category:    "Runner",
			Destination: &x.playbookDir,
			Sources:     cli.EnvVars("MEDIC_PLAYBOOK_DIR"),
		},
		&cli.StringFlag{
			Name:        "playbook-binary",
			Usage:       "ansible-playbook executable",
			Category:    "Runner",
			Destination: &x.binary,
			Sources:     cli.EnvVars("MEDIC_PLAYBOOK_BINARY"),
			Value:       runner.DefaultBinary,
		},
		&cli.BoolFlag{
			Name:        "dry-run",
			Usage:       "Run playbooks in check mode without changing targets",
			Category:    "Runner",
			Destination: &x.dryRun,
			Sources:     cli.EnvVars("MEDIC_DRY_RUN"),
		},
	}
}

func (x Runner) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("playbook_dir", x.playbookDir),
		slog.String("binary", x.binary),
		slog.Bool("dry_run", x.dryRun),
	)
}

func (x *Runner) DryRun() bool {
	return x.dryRun
}

func (x *Runner) IsConfigured() bool {
	return x.playbookDir != ""
}

// Configure returns nil without error when no playbook directory is set.
func (x *Runner) Configure() (*runner.Playbook, error) {
	if !x.IsConfigured() {
		return nil, nil
	}

	info, err := os.Stat(x.playbookDir)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to open playbook directory", goerr.TV(errutil.FilePathKey, x.playbookDir))
	}
	if !info.IsDir() {
		return nil, goerr.New("playbook-dir is not a directory", goerr.TV(errutil.FilePathKey, x.playbookDir))
	}

	return runner.NewPlaybook(x.playbookDir, runner.WithBinary(x.binary)), nil
}

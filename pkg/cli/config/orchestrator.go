package config

import (
	"log/slog"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/medic/pkg/service/decision"
	"github.com/secmon-lab/medic/pkg/service/executor"
	"github.com/secmon-lab/medic/pkg/service/investigator"
	"github.com/secmon-lab/medic/pkg/usecase"
	"github.com/urfave/cli/v3"
)

// Orchestrator holds the timing and threshold knobs of the pipeline.
type Orchestrator struct {
	dedupWindow         time.Duration
	recoverAfter        time.Duration
	sweepInterval       time.Duration
	investigateTimeout  time.Duration
	probeMaxAttempts    int
	probeRetryInterval  time.Duration
	actionTimeout       time.Duration
	diskCriticalPercent int
	cleanupDirectory    string
}

func (x *Orchestrator) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.DurationFlag{
			Name:        "dedup-window",
			Usage:       "Alerts for the same alert name and target within this window join the open incident",
			Category:    "Orchestrator",
			Destination: &x.dedupWindow,
			Sources:     cli.EnvVars("MEDIC_DEDUP_WINDOW"),
			Value:       usecase.DefaultDedupWindow,
		},
		&cli.DurationFlag{
			Name:        "recover-after",
			Usage:       "Idle time after which a stranded incident is resumed by the sweeper",
			Category:    "Orchestrator",
			Destination: &x.recoverAfter,
			Sources:     cli.EnvVars("MEDIC_RECOVER_AFTER"),
			Value:       usecase.DefaultRecoverAfter,
		},
		&cli.DurationFlag{
			Name:        "sweep-interval",
			Usage:       "Interval of approval expiry and recovery sweeps",
			Category:    "Orchestrator",
			Destination: &x.sweepInterval,
			Sources:     cli.EnvVars("MEDIC_SWEEP_INTERVAL"),
			Value:       usecase.DefaultSweepInterval,
		},
		&cli.DurationFlag{
			Name:        "investigate-timeout",
			Usage:       "Timeout of one investigation, retries included",
			Category:    "Orchestrator",
			Destination: &x.investigateTimeout,
			Sources:     cli.EnvVars("MEDIC_INVESTIGATE_TIMEOUT"),
			Value:       investigator.DefaultTimeout,
		},
		&cli.IntFlag{
			Name:        "probe-max-attempts",
			Usage:       "Attempts per probe on connection errors",
			Category:    "Orchestrator",
			Destination: &x.probeMaxAttempts,
			Sources:     cli.EnvVars("MEDIC_PROBE_MAX_ATTEMPTS"),
			Value:       investigator.DefaultMaxAttempts,
		},
		&cli.DurationFlag{
			Name:        "probe-retry-interval",
			Usage:       "Initial backoff between probe attempts",
			Category:    "Orchestrator",
			Destination: &x.probeRetryInterval,
			Sources:     cli.EnvVars("MEDIC_PROBE_RETRY_INTERVAL"),
			Value:       investigator.DefaultRetryInterval,
		},
		&cli.DurationFlag{
			Name:        "action-timeout",
			Usage:       "Timeout of one remediation action",
			Category:    "Orchestrator",
			Destination: &x.actionTimeout,
			Sources:     cli.EnvVars("MEDIC_ACTION_TIMEOUT"),
			Value:       executor.DefaultTimeout,
		},
		&cli.IntFlag{
			Name:        "disk-critical-percent",
			Usage:       "Disk usage at or above which cleanup_disk is chosen",
			Category:    "Orchestrator",
			Destination: &x.diskCriticalPercent,
			Sources:     cli.EnvVars("MEDIC_DISK_CRITICAL_PERCENT"),
			Value:       decision.DefaultDiskCriticalPercent,
		},
		&cli.StringFlag{
			Name:        "cleanup-directory",
			Usage:       "Directory passed to cleanup_disk",
			Category:    "Orchestrator",
			Destination: &x.cleanupDirectory,
			Sources:     cli.EnvVars("MEDIC_CLEANUP_DIRECTORY"),
			Value:       decision.DefaultCleanupDirectory,
		},
	}
}

func (x Orchestrator) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Duration("dedup_window", x.dedupWindow),
		slog.Duration("recover_after", x.recoverAfter),
		slog.Duration("sweep_interval", x.sweepInterval),
		slog.Duration("investigate_timeout", x.investigateTimeout),
		slog.Int("probe_max_attempts", x.probeMaxAttempts),
		slog.Duration("action_timeout", x.actionTimeout),
		slog.Int("disk_critical_percent", x.diskCriticalPercent),
		slog.String("cleanup_directory", x.cleanupDirectory),
	)
}

func (x *Orchestrator) Validate() error {
	if x.probeMaxAttempts < 1 {
		return goerr.New("probe-max-attempts must be at least 1", goerr.V("value", x.probeMaxAttempts))
	}
	if x.diskCriticalPercent < 1 || x.diskCriticalPercent > 100 {
		return goerr.New("disk-critical-percent must be within 1..100", goerr.V("value", x.diskCriticalPercent))
	}
	for name, d := range map[string]time.Duration{
		"dedup-window":        x.dedupWindow,
		"recover-after":       x.recoverAfter,
		"sweep-interval":      x.sweepInterval,
		"investigate-timeout": x.investigateTimeout,
		"action-timeout":      x.actionTimeout,
	} {
		if d <= 0 {
			return goerr.New("duration must be positive", goerr.V("flag", name), goerr.V("value", d.String()))
		}
	}
	// the sweeper fails investigating incidents idle for recover-after, so a
	// live investigation must always finish first
	if x.investigateTimeout >= x.recoverAfter {
		return goerr.New("investigate-timeout must be shorter than recover-after",
			goerr.V("investigate_timeout", x.investigateTimeout.String()),
			goerr.V("recover_after", x.recoverAfter.String()))
	}
	return nil
}

func (x *Orchestrator) SweepInterval() time.Duration {
	return x.sweepInterval
}

// Options converts the knobs into use case options.
func (x *Orchestrator) Options() []usecase.Option {
	return []usecase.Option{
		usecase.WithDedupWindow(x.dedupWindow),
		usecase.WithRecoverAfter(x.recoverAfter),
		usecase.WithInvestigatorOptions(
			investigator.WithTimeout(x.investigateTimeout),
			investigator.WithMaxAttempts(uint(x.probeMaxAttempts)), // #nosec G115 -- validated positive
			investigator.WithRetryInterval(x.probeRetryInterval),
		),
		usecase.WithDecisionOptions(
			decision.WithDiskCriticalPercent(x.diskCriticalPercent),
			decision.WithCleanupDirectory(x.cleanupDirectory),
		),
		usecase.WithExecutorOptions(executor.WithTimeout(x.actionTimeout)),
	}
}

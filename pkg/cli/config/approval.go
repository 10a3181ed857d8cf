package config

import (
	"log/slog"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/medic/pkg/domain/types"
	"github.com/secmon-lab/medic/pkg/service/approval"
	"github.com/urfave/cli/v3"
)

// Approval configures signed approval callbacks and the approval windows per
// severity.
type Approval struct {
	secret         string
	tolerance      time.Duration
	windowCritical time.Duration
	windowWarning  time.Duration
	windowInfo     time.Duration
}

func (x *Approval) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "approval-secret",
			Usage:       "Shared secret signing approval callbacks, the callback endpoint rejects everything when empty",
			Category:    "Approval",
			Destination: &x.secret,
			Sources:     cli.EnvVars("MEDIC_APPROVAL_SECRET"),
		},
		&cli.DurationFlag{
			Name:        "approval-tolerance",
			Usage:       "Allowed clock drift of a signed callback",
			Category:    "Approval",
			Destination: &x.tolerance,
			Sources:     cli.EnvVars("MEDIC_APPROVAL_TOLERANCE"),
			Value:       approval.DefaultTolerance,
		},
		&cli.DurationFlag{
			Name:        "approval-window-critical",
			Usage:       "Approval window for critical incidents",
			Category:    "Approval",
			Destination: &x.windowCritical,
			Sources:     cli.EnvVars("MEDIC_APPROVAL_WINDOW_CRITICAL"),
			Value:       approval.DefaultWindows[types.SeverityCritical],
		},
		&cli.DurationFlag{
			Name:        "approval-window-warning",
			Usage:       "Approval window for warning incidents",
			Category:    "Approval",
			Destination: &x.windowWarning,
			Sources:     cli.EnvVars("MEDIC_APPROVAL_WINDOW_WARNING"),
			Value:       approval.DefaultWindows[types.SeverityWarning],
		},
		&cli.DurationFlag{
			Name:        "approval-window-info",
			Usage:       "Approval window for info incidents",
			Category:    "Approval",
			Destination: &x.windowInfo,
			Sources:     cli.EnvVars("MEDIC_APPROVAL_WINDOW_INFO"),
			Value:       approval.DefaultWindows[types.SeverityInfo],
		},
	}
}

func (x Approval) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int("secret.len", len(x.secret)),
		slog.Duration("tolerance", x.tolerance),
		slog.Duration("window_critical", x.windowCritical),
		slog.Duration("window_warning", x.windowWarning),
		slog.Duration("window_info", x.windowInfo),
	)
}

func (x *Approval) Validate() error {
	windows := map[types.Severity]time.Duration{
		types.SeverityCritical: x.windowCritical,
		types.SeverityWarning:  x.windowWarning,
		types.SeverityInfo:     x.windowInfo,
	}
	for sev, d := range windows {
		if d <= 0 {
			return goerr.New("approval window must be positive", goerr.V("severity", sev), goerr.V("window", d.String()))
		}
	}
	return nil
}

// GateOptions returns the configured approval windows.
func (x *Approval) GateOptions() []approval.Option {
	return []approval.Option{
		approval.WithWindow(types.SeverityCritical, x.windowCritical),
		approval.WithWindow(types.SeverityWarning, x.windowWarning),
		approval.WithWindow(types.SeverityInfo, x.windowInfo),
	}
}

// Verifier returns nil when no secret is set.
func (x *Approval) Verifier() *approval.Verifier {
	if x.secret == "" {
		return nil
	}
	return approval.NewVerifier(x.secret, approval.WithTolerance(x.tolerance))
}

func (x *Approval) Signer() (*approval.Signer, error) {
	if x.secret == "" {
		return nil, goerr.New("approval-secret is required")
	}
	return approval.NewSigner(x.secret), nil
}

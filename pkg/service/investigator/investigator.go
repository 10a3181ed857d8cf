package investigator

import (
	"context"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/medic/pkg/domain/interfaces"
	"github.com/secmon-lab/medic/pkg/domain/model/diagnosis"
	"github.com/secmon-lab/medic/pkg/domain/model/errs"
	"github.com/secmon-lab/medic/pkg/domain/types"
	"github.com/secmon-lab/medic/pkg/utils/clock"
	"github.com/secmon-lab/medic/pkg/utils/logging"
	"github.com/secmon-lab/medic/pkg/utils/metrics"
	"golang.org/x/sync/errgroup"
)

// Probes is the fixed whitelist of read-only diagnostics, in report order.
var Probes = []types.ProbeName{
	types.ProbeDiskUsage,
	types.ProbeProcessSnapshot,
	types.ProbeLogTail,
	types.ProbeUptime,
}

const (
	DefaultTimeout       = 60 * time.Second
	DefaultMaxAttempts   = 3
	DefaultRetryInterval = 500 * time.Millisecond

	SummaryUnreachable = "target unreachable"
)

type Investigator struct {
	provider      interfaces.DiagnosticsProvider
	timeout       time.Duration
	maxAttempts   uint
	retryInterval time.Duration
}

type Option func(*Investigator)

// WithTimeout bounds the whole investigation, retries included.
func WithTimeout(d time.Duration) Option {
	return func(x *Investigator) {
		x.timeout = d
	}
}

// WithMaxAttempts sets how many times a probe is tried on connection errors.
func WithMaxAttempts(n uint) Option {
	return func(x *Investigator) {
		x.maxAttempts = n
	}
}

func WithRetryInterval(d time.Duration) Option {
	return func(x *Investigator) {
		x.retryInterval = d
	}
}

func New(provider interfaces.DiagnosticsProvider, opts ...Option) *Investigator {
	x := &Investigator{
		provider:      provider,
		timeout:       DefaultTimeout,
		maxAttempts:   DefaultMaxAttempts,
		retryInterval: DefaultRetryInterval,
	}
	for _, opt := range opts {
		opt(x)
	}
	return x
}

type probeResult struct {
	output      string
	err         error
	unreachable bool
}

// Investigate runs every whitelisted probe against target concurrently. It never
// fails: a probe error becomes a degraded entry, and a target that stays
// unreachable after retries sets Report.Unreachable.
func (x *Investigator) Investigate(ctx context.Context, target string) *diagnosis.Report {
	ctx, cancel := context.WithTimeout(ctx, x.timeout)
	defer cancel()

	logger := logging.From(ctx).With("target", target)
	results := make([]probeResult, len(Probes))

	var eg errgroup.Group
	eg.SetLimit(len(Probes))
	for i, probe := range Probes {
		eg.Go(func() error {
			results[i] = x.runProbe(ctx, target, probe)
			return nil
		})
	}
	_ = eg.Wait()

	report := &diagnosis.Report{
		Entries:     make([]diagnosis.Entry, 0, len(Probes)),
		CollectedAt: clock.Now(ctx),
	}
	for i, probe := range Probes {
		r := results[i]
		if r.err != nil {
			logger.Warn("probe degraded", "probe", probe, logging.ErrAttr(r.err))
			report.Entries = append(report.Entries, diagnosis.Entry{
				Probe:    probe,
				Output:   "<error>: " + r.err.Error(),
				Degraded: true,
			})
			if r.unreachable {
				report.Unreachable = true
			}
			continue
		}
		report.Entries = append(report.Entries, diagnosis.Entry{Probe: probe, Output: r.output})
	}

	report.Summary = summarize(report)
	logger.Info("investigation finished",
		"unreachable", report.Unreachable,
		"degraded", report.DegradedCount(),
	)
	return report
}

func (x *Investigator) runProbe(ctx context.Context, target string, probe types.ProbeName) probeResult {
	started := time.Now()

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = x.retryInterval

	output, err := backoff.Retry(ctx, func() (string, error) {
		out, err := x.provider.RunProbe(ctx, target, probe)
		if err != nil {
			if goerr.HasTag(err, errs.TagUnreachable) {
				return "", err
			}
			return "", backoff.Permanent(err)
		}
		return out, nil
	},
		backoff.WithBackOff(b),
		backoff.WithMaxTries(x.maxAttempts),
	)

	if err != nil {
		metrics.ProbeObserved(probe, "error", time.Since(started))
		if ctx.Err() != nil && !goerr.HasTag(err, errs.TagUnreachable) {
			err = goerr.Wrap(err, "probe timed out", goerr.T(errs.TagTimeout))
		}
		return probeResult{err: err, unreachable: goerr.HasTag(err, errs.TagUnreachable)}
	}

	metrics.ProbeObserved(probe, "ok", time.Since(started))
	return probeResult{output: output}
}

func summarize(report *diagnosis.Report) string {
	if report.Unreachable {
		return SummaryUnreachable
	}

	var parts []string
	if out, ok := report.Output(types.ProbeDiskUsage); ok {
		parts = append(parts, "Disk usage:\n"+strings.TrimSpace(out))
	}
	if out, ok := report.Output(types.ProbeLogTail); ok {
		parts = append(parts, "Recent logs:\n"+strings.TrimSpace(out))
	}
	if len(parts) == 0 {
		return "no diagnostics collected"
	}
	return strings.Join(parts, "\n\n")
}

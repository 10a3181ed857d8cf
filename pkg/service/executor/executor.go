package executor

import (
	"context"
	"fmt"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/medic/pkg/domain/event"
	"github.com/secmon-lab/medic/pkg/domain/interfaces"
	"github.com/secmon-lab/medic/pkg/domain/model/errs"
	"github.com/secmon-lab/medic/pkg/domain/model/incident"
	"github.com/secmon-lab/medic/pkg/domain/model/remediation"
	"github.com/secmon-lab/medic/pkg/domain/types"
	"github.com/secmon-lab/medic/pkg/utils/clock"
	"github.com/secmon-lab/medic/pkg/utils/errutil"
	"github.com/secmon-lab/medic/pkg/utils/logging"
	"github.com/secmon-lab/medic/pkg/utils/metrics"
)

const (
	DefaultTimeout = 10 * time.Minute

	// MaxStoredLog bounds the action log kept on the incident document. The
	// archive, when configured, receives the full log.
	MaxStoredLog = 32 * 1024
)

// Executor runs the decided action of an approved incident exactly once. The
// approved -> executing compare-and-swap is the only guard against duplicate
// dispatch; a caller that loses it gets the current incident back.
type Executor struct {
	repo     interfaces.IncidentRepository
	runner   interfaces.ActionRunner
	notifier interfaces.Notifier
	archive  interfaces.ExecutionArchive
	timeout  time.Duration
}

type Option func(*Executor)

func WithTimeout(d time.Duration) Option {
	return func(x *Executor) {
		x.timeout = d
	}
}

func WithNotifier(n interfaces.Notifier) Option {
	return func(x *Executor) {
		x.notifier = n
	}
}

func WithArchive(a interfaces.ExecutionArchive) Option {
	return func(x *Executor) {
		x.archive = a
	}
}

func New(repo interfaces.IncidentRepository, runner interfaces.ActionRunner, opts ...Option) *Executor {
	x := &Executor{
		repo:    repo,
		runner:  runner,
		timeout: DefaultTimeout,
	}
	for _, opt := range opts {
		opt(x)
	}
	return x
}

func executable(state types.IncidentState) bool {
	return state == types.StateApproved || state == types.StateAutoApproved
}

func (x *Executor) Execute(ctx context.Context, id types.IncidentID) (*incident.Incident, error) {
	ctx, logger := logging.Scope(ctx, "incident_id", id)

	inc, err := x.repo.GetIncident(ctx, id)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to get incident", goerr.TV(errutil.IncidentIDKey, id))
	}

	if !executable(inc.State) {
		logger.Info("incident is not executable, skipping", "state", inc.State)
		return inc, nil
	}

	if inc.Decision.RequiresHuman() {
		return x.transition(ctx, inc, types.StateFailed, incident.Patch{
			FailureReason: types.ActionManualIntervention.String(),
			Reason:        "no executable action",
		})
	}

	running, err := x.transition(ctx, inc, types.StateExecuting, incident.Patch{
		Reason: fmt.Sprintf("dispatching %s", inc.Decision.Action),
	})
	if err != nil {
		if goerr.HasTag(err, errs.TagConflict) {
			logger.Info("execution already claimed by another worker")
			return x.repo.GetIncident(ctx, id)
		}
		return nil, err
	}

	result := x.run(ctx, running)

	next, patch := types.StateResolved, incident.Patch{Result: truncateLog(result), Reason: "action succeeded"}
	if !result.Success {
		next = types.StateFailed
		patch.FailureReason = fmt.Sprintf("action %s failed with exit code %d", running.Decision.Action, result.ExitCode)
		patch.Reason = "action failed"
	}

	final, err := x.transition(ctx, running, next, patch)
	if err != nil {
		return nil, err
	}

	if x.archive != nil {
		record := final.Copy()
		record.Result = result
		if err := x.archive.SaveExecution(ctx, record); err != nil {
			errs.Handle(ctx, goerr.Wrap(err, "failed to archive execution", goerr.TV(errutil.IncidentIDKey, id)))
		}
	}
	return final, nil
}

// truncateLog keeps the tail of an oversized log, where playbook failures are
// reported.
func truncateLog(result *remediation.Result) *remediation.Result {
	if len(result.Log) <= MaxStoredLog {
		return result
	}
	truncated := *result
	truncated.Log = "...(truncated)\n" + result.Log[len(result.Log)-MaxStoredLog:]
	return &truncated
}

func (x *Executor) run(ctx context.Context, inc *incident.Incident) *remediation.Result {
	logger := logging.From(ctx)
	action := inc.Decision.Action

	runCtx, cancel := context.WithTimeout(ctx, x.timeout)
	defer cancel()

	started := clock.Now(ctx)
	result, err := x.runner.Run(runCtx, inc.Target, action, inc.Decision.Params)
	if err != nil {
		logger.Error("action runner failed", "action", action, logging.ErrAttr(err))
		result = &remediation.Result{
			Success:  false,
			Log:      err.Error(),
			ExitCode: -1,
		}
	}
	if result.StartedAt.IsZero() {
		result.StartedAt = started
	}
	if result.FinishedAt.IsZero() {
		result.FinishedAt = clock.Now(ctx)
	}

	metrics.ActionExecuted(action, result.Success, result.FinishedAt.Sub(result.StartedAt))
	logger.Info("action finished", "action", action, "success", result.Success, "exit_code", result.ExitCode)
	return result
}

func (x *Executor) transition(ctx context.Context, inc *incident.Incident, next types.IncidentState, patch incident.Patch) (*incident.Incident, error) {
	updated, err := x.repo.TransitionIncident(ctx, inc.ID, inc.State, next, patch)
	if err != nil {
		if goerr.HasTag(err, errs.TagConflict) {
			metrics.CASConflict(inc.State, next)
		}
		return nil, goerr.Wrap(err, "failed to transition incident",
			goerr.TV(errutil.IncidentIDKey, inc.ID),
			goerr.TV(errutil.NextStateKey, next))
	}

	metrics.Transition(inc.State, next)
	if x.notifier != nil {
		x.notifier.NotifyTransition(ctx, &event.TransitionEvent{Incident: updated, From: inc.State, To: next})
	}
	return updated, nil
}

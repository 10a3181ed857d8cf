package usecase

import (
	"context"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/opaq"
	"github.com/secmon-lab/medic/pkg/domain/event"
	"github.com/secmon-lab/medic/pkg/domain/interfaces"
	"github.com/secmon-lab/medic/pkg/domain/model/errs"
	"github.com/secmon-lab/medic/pkg/domain/model/incident"
	"github.com/secmon-lab/medic/pkg/domain/model/remediation"
	"github.com/secmon-lab/medic/pkg/domain/types"
	"github.com/secmon-lab/medic/pkg/repository"
	"github.com/secmon-lab/medic/pkg/service/approval"
	"github.com/secmon-lab/medic/pkg/service/decision"
	"github.com/secmon-lab/medic/pkg/service/executor"
	"github.com/secmon-lab/medic/pkg/service/investigator"
	"github.com/secmon-lab/medic/pkg/service/notifier"
	"github.com/secmon-lab/medic/pkg/service/policy"
	slackService "github.com/secmon-lab/medic/pkg/service/slack"
	"github.com/secmon-lab/medic/pkg/utils/errutil"
	"github.com/secmon-lab/medic/pkg/utils/logging"
	"github.com/secmon-lab/medic/pkg/utils/metrics"
)

const (
	DefaultDedupWindow  = 10 * time.Minute
	DefaultRecoverAfter = 5 * time.Minute

	// FailureOrchestrationInterrupted is recorded on incidents whose worker
	// died between investigation and decision.
	FailureOrchestrationInterrupted = "orchestration_interrupted"
)

// UseCases orchestrates incidents from alert intake to remediation. Each stage
// commits its result with a compare-and-swap on the incident state, so any
// number of replicas, callbacks and sweepers may act on the same incident.
type UseCases struct {
	// services and adapters
	repository   interfaces.IncidentRepository
	provider     interfaces.DiagnosticsProvider
	runner       interfaces.ActionRunner
	notifier     interfaces.Notifier
	policyClient interfaces.PolicyClient
	archive      interfaces.ExecutionArchive
	slackService *slackService.Service

	policyDefaults *policy.Defaults
	investigator   []investigator.Option
	engine         []decision.Option
	gate           []approval.Option
	executor       []executor.Option

	// built in New
	policySvc       *policy.Service
	investigatorSvc *investigator.Investigator
	engineSvc       *decision.Engine
	gateSvc         *approval.Gate
	executorSvc     *executor.Executor

	// configs
	dedupWindow  time.Duration
	recoverAfter time.Duration
}

type Option func(*UseCases)

func WithRepository(repo interfaces.IncidentRepository) Option {
	return func(u *UseCases) {
		u.repository = repo
	}
}

func WithDiagnosticsProvider(provider interfaces.DiagnosticsProvider) Option {
	return func(u *UseCases) {
		u.provider = provider
	}
}

func WithActionRunner(runner interfaces.ActionRunner) Option {
	return func(u *UseCases) {
		u.runner = runner
	}
}

func WithNotifier(n interfaces.Notifier) Option {
	return func(u *UseCases) {
		u.notifier = n
	}
}

func WithPolicyClient(client interfaces.PolicyClient) Option {
	return func(u *UseCases) {
		u.policyClient = client
	}
}

// WithPolicyDefaults sets the fallback used when Rego yields no remediation
// policy for an alert.
func WithPolicyDefaults(d *policy.Defaults) Option {
	return func(u *UseCases) {
		u.policyDefaults = d
	}
}

func WithExecutionArchive(a interfaces.ExecutionArchive) Option {
	return func(u *UseCases) {
		u.archive = a
	}
}

// WithSlackService enables updating approval messages after a button click.
func WithSlackService(svc *slackService.Service) Option {
	return func(u *UseCases) {
		u.slackService = svc
	}
}

func WithInvestigatorOptions(opts ...investigator.Option) Option {
	return func(u *UseCases) {
		u.investigator = append(u.investigator, opts...)
	}
}

func WithDecisionOptions(opts ...decision.Option) Option {
	return func(u *UseCases) {
		u.engine = append(u.engine, opts...)
	}
}

func WithApprovalOptions(opts ...approval.Option) Option {
	return func(u *UseCases) {
		u.gate = append(u.gate, opts...)
	}
}

func WithExecutorOptions(opts ...executor.Option) Option {
	return func(u *UseCases) {
		u.executor = append(u.executor, opts...)
	}
}

// WithDedupWindow sets how long an open incident absorbs repeated alerts for the
// same target and alert name.
func WithDedupWindow(d time.Duration) Option {
	return func(u *UseCases) {
		u.dedupWindow = d
	}
}

// WithRecoverAfter sets how long an incident may sit in a non-parked state
// before the sweeper re-dispatches it.
func WithRecoverAfter(d time.Duration) Option {
	return func(u *UseCases) {
		u.recoverAfter = d
	}
}

type dummyPolicyClient struct{}

func (c *dummyPolicyClient) Query(ctx context.Context, query string, data, result any, queryOptions ...opaq.QueryOption) error {
	return opaq.ErrNoEvalResult
}

func (c *dummyPolicyClient) Sources() map[string]string {
	return map[string]string{}
}

type unavailableProvider struct{}

func (unavailableProvider) RunProbe(ctx context.Context, target string, probe types.ProbeName) (string, error) {
	return "", goerr.New("no diagnostics provider configured",
		goerr.T(errs.TagUnreachable),
		goerr.V("probe", probe))
}

type unavailableRunner struct{}

func (unavailableRunner) Run(ctx context.Context, target string, action types.ActionName, params map[string]string) (*remediation.Result, error) {
	return nil, goerr.New("no action runner configured", goerr.V("action", action))
}

func New(opts ...Option) *UseCases {
	u := &UseCases{
		repository:     repository.NewMemory(),
		provider:       unavailableProvider{},
		runner:         unavailableRunner{},
		policyClient:   &dummyPolicyClient{},
		policyDefaults: policy.BuiltinDefaults(),
		notifier:       notifier.Discard{},
		dedupWindow:    DefaultDedupWindow,
		recoverAfter:   DefaultRecoverAfter,
	}

	for _, opt := range opts {
		opt(u)
	}

	u.policySvc = policy.New(u.policyClient, policy.WithDefaults(u.policyDefaults))
	u.investigatorSvc = investigator.New(u.provider, u.investigator...)
	u.engineSvc = decision.New(u.engine...)
	u.gateSvc = approval.New(u.gate...)

	execOpts := []executor.Option{executor.WithNotifier(u.notifier)}
	if u.archive != nil {
		execOpts = append(execOpts, executor.WithArchive(u.archive))
	}
	u.executorSvc = executor.New(u.repository, u.runner, append(execOpts, u.executor...)...)

	return u
}

func isConflict(err error) bool {
	return goerr.HasTag(err, errs.TagConflict)
}

// transition commits one edge of the state machine, then records metrics and
// notifies.
func (uc *UseCases) transition(ctx context.Context, inc *incident.Incident, next types.IncidentState, patch incident.Patch) (*incident.Incident, error) {
	updated, err := uc.repository.TransitionIncident(ctx, inc.ID, inc.State, next, patch)
	if err != nil {
		if isConflict(err) {
			metrics.CASConflict(inc.State, next)
		}
		return nil, goerr.Wrap(err, "failed to transition incident",
			goerr.TV(errutil.IncidentIDKey, inc.ID),
			goerr.TV(errutil.StateKey, inc.State),
			goerr.TV(errutil.NextStateKey, next))
	}

	logging.From(ctx).Info("incident transitioned",
		"from", inc.State,
		"to", next,
		"reason", patch.Reason,
	)
	metrics.Transition(inc.State, next)
	uc.notifier.NotifyTransition(ctx, &event.TransitionEvent{Incident: updated, From: inc.State, To: next})
	return updated, nil
}

// fail moves an incident to failed. A lost race is not an error: whoever won
// now owns the incident.
func (uc *UseCases) fail(ctx context.Context, inc *incident.Incident, reason string) error {
	_, err := uc.transition(ctx, inc, types.StateFailed, incident.Patch{
		FailureReason: reason,
		Reason:        reason,
	})
	if err != nil && !isConflict(err) {
		return err
	}
	return nil
}

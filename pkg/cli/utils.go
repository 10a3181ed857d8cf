package cli

import (
	"context"
	"log/slog"
	"slices"

	"github.com/secmon-lab/medic/pkg/cli/config"
	"github.com/secmon-lab/medic/pkg/domain/interfaces"
	"github.com/secmon-lab/medic/pkg/service/notifier"
	"github.com/secmon-lab/medic/pkg/service/slack"
	"github.com/secmon-lab/medic/pkg/usecase"
	"github.com/secmon-lab/medic/pkg/utils/dryrun"
	"github.com/secmon-lab/medic/pkg/utils/logging"
	"github.com/urfave/cli/v3"
)

func joinFlags(flags ...[]cli.Flag) []cli.Flag {
	var result []cli.Flag
	for _, flag := range flags {
		result = append(result, flag...)
	}
	return result
}

// pipelineConfig is the configuration shared by every command that runs the
// orchestration pipeline.
type pipelineConfig struct {
	policy       config.Policy
	sentry       config.Sentry
	slack        config.Slack
	firestore    config.Firestore
	storage      config.Storage
	ssh          config.SSH
	runner       config.Runner
	approval     config.Approval
	orchestrator config.Orchestrator
}

func (x *pipelineConfig) Flags() []cli.Flag {
	return joinFlags(
		x.policy.Flags(),
		x.sentry.Flags(),
		x.slack.Flags(),
		x.firestore.Flags(),
		x.storage.Flags(),
		x.ssh.Flags(),
		x.runner.Flags(),
		x.approval.Flags(),
		x.orchestrator.Flags(),
	)
}

func (x *pipelineConfig) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Any("policy", x.policy),
		slog.Any("sentry", x.sentry),
		slog.Any("slack", x.slack),
		slog.Any("firestore", x.firestore),
		slog.Any("storage", x.storage),
		slog.Any("ssh", x.ssh),
		slog.Any("runner", x.runner),
		slog.Any("approval", x.approval),
		slog.Any("orchestrator", x.orchestrator),
	)
}

// pipeline is the assembled use case and the pieces the HTTP server needs.
type pipeline struct {
	uc       *usecase.UseCases
	policy   interfaces.PolicyClient
	slackSvc *slack.Service
	closers  []func()
}

func (x *pipeline) Close() {
	for _, f := range slices.Backward(x.closers) {
		f()
	}
}

// build wires every configured adapter into a use case. Adapters that are not
// configured keep the use case defaults. notifiers are added next to Slack.
// The returned context carries the dry-run switch.
func (x *pipelineConfig) build(ctx context.Context, notifiers ...interfaces.Notifier) (context.Context, *pipeline, error) {
	logger := logging.From(ctx)
	p := &pipeline{}

	if err := x.approval.Validate(); err != nil {
		return ctx, nil, err
	}
	if err := x.orchestrator.Validate(); err != nil {
		return ctx, nil, err
	}

	sentryCloser, err := x.sentry.Configure()
	p.closers = append(p.closers, sentryCloser)
	if err != nil {
		return ctx, nil, err
	}

	opts := append([]usecase.Option{
		usecase.WithApprovalOptions(x.approval.GateOptions()...),
	}, x.orchestrator.Options()...)

	policyClient, err := x.policy.Configure()
	if err != nil {
		p.Close()
		return ctx, nil, err
	}
	if policyClient != nil {
		p.policy = policyClient
		opts = append(opts, usecase.WithPolicyClient(policyClient))
	} else {
		logger.Warn("no Rego policy given, remediation policies come from defaults only")
	}

	defaults, err := x.policy.Defaults()
	if err != nil {
		p.Close()
		return ctx, nil, err
	}
	opts = append(opts, usecase.WithPolicyDefaults(defaults))

	repo, repoCloser, err := x.firestore.Repository(ctx)
	p.closers = append(p.closers, repoCloser)
	if err != nil {
		p.Close()
		return ctx, nil, err
	}
	opts = append(opts, usecase.WithRepository(repo))

	archive, archiveCloser, err := x.storage.Configure(ctx)
	p.closers = append(p.closers, archiveCloser)
	if err != nil {
		p.Close()
		return ctx, nil, err
	}
	if archive != nil {
		opts = append(opts, usecase.WithExecutionArchive(archive))
	}

	provider, err := x.ssh.Configure(ctx)
	if err != nil {
		p.Close()
		return ctx, nil, err
	}
	if provider != nil {
		opts = append(opts, usecase.WithDiagnosticsProvider(provider))
	} else {
		logger.Warn("SSH is not configured, every investigation reports the target unreachable")
	}

	runner, err := x.runner.Configure()
	if err != nil {
		p.Close()
		return ctx, nil, err
	}
	if runner != nil {
		opts = append(opts, usecase.WithActionRunner(runner))
	} else {
		logger.Warn("playbook directory is not configured, approved actions fail at execution")
	}

	slackSvc, err := x.slack.Configure()
	if err != nil {
		p.Close()
		return ctx, nil, err
	}
	if slackSvc != nil {
		p.slackSvc = slackSvc
		notifiers = append(notifiers, x.slack.Notifier(slackSvc))
		opts = append(opts, usecase.WithSlackService(slackSvc))
	}

	switch len(notifiers) {
	case 0:
	case 1:
		opts = append(opts, usecase.WithNotifier(notifiers[0]))
	default:
		opts = append(opts, usecase.WithNotifier(notifier.Multi(notifiers)))
	}

	p.uc = usecase.New(opts...)
	return dryrun.With(ctx, x.runner.DryRun()), p, nil
}

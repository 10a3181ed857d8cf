package usecase_test

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gt"
	"github.com/secmon-lab/medic/pkg/domain/event"
	"github.com/secmon-lab/medic/pkg/domain/model/alert"
	"github.com/secmon-lab/medic/pkg/domain/model/errs"
	"github.com/secmon-lab/medic/pkg/domain/model/incident"
	"github.com/secmon-lab/medic/pkg/domain/model/policy"
	"github.com/secmon-lab/medic/pkg/domain/model/remediation"
	"github.com/secmon-lab/medic/pkg/domain/types"
	"github.com/secmon-lab/medic/pkg/repository"
	"github.com/secmon-lab/medic/pkg/service/investigator"
	policySvc "github.com/secmon-lab/medic/pkg/service/policy"
	"github.com/secmon-lab/medic/pkg/usecase"
	"github.com/secmon-lab/medic/pkg/utils/async"
	"github.com/secmon-lab/medic/pkg/utils/clock"
	"github.com/slack-go/slack"
)

var baseTime = time.Date(2026, 10, 1, 9, 0, 0, 0, time.UTC)

const diskFull = "Filesystem Size Used Avail Use% Mounted on\n/dev/sda1 50G 48G 2G 96% /\n"

type mockProvider struct {
	outputs map[types.ProbeName]string
	err     error
}

func (m *mockProvider) RunProbe(ctx context.Context, target string, probe types.ProbeName) (string, error) {
	if m.err != nil {
		return "", m.err
	}
	return m.outputs[probe], nil
}

type mockRunner struct {
	mu      sync.Mutex
	actions []types.ActionName
	result  remediation.Result
}

func (m *mockRunner) Run(ctx context.Context, target string, action types.ActionName, params map[string]string) (*remediation.Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.actions = append(m.actions, action)
	result := m.result
	return &result, nil
}

func (m *mockRunner) Actions() []types.ActionName {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]types.ActionName(nil), m.actions...)
}

type recordingNotifier struct {
	mu          sync.Mutex
	approvals   []*event.ApprovalRequestEvent
	transitions []*event.TransitionEvent
	deadLetters []*event.DeadLetterEvent
}

func (n *recordingNotifier) NotifyApprovalRequest(ctx context.Context, ev *event.ApprovalRequestEvent) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.approvals = append(n.approvals, ev)
	return nil
}

func (n *recordingNotifier) NotifyTransition(ctx context.Context, ev *event.TransitionEvent) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.transitions = append(n.transitions, ev)
}

func (n *recordingNotifier) NotifyDeadLetter(ctx context.Context, ev *event.DeadLetterEvent) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.deadLetters = append(n.deadLetters, ev)
}

func (n *recordingNotifier) Approvals() []*event.ApprovalRequestEvent {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]*event.ApprovalRequestEvent(nil), n.approvals...)
}

type fixture struct {
	uc       *usecase.UseCases
	repo     *repository.Memory
	provider *mockProvider
	runner   *mockRunner
	notifier *recordingNotifier
	ctx      context.Context
	advance  func(time.Duration)
}

func autoApprove() *policySvc.Defaults {
	return &policySvc.Defaults{
		Default: policy.Remediation{
			RequiresApproval: false,
			AllowedActions:   types.KnownActions,
		},
	}
}

func newFixture(t *testing.T, opts ...usecase.Option) *fixture {
	t.Helper()

	c, advance := clock.Fixed(baseTime)
	f := &fixture{
		repo:     repository.NewMemory(),
		provider: &mockProvider{outputs: map[types.ProbeName]string{types.ProbeDiskUsage: diskFull}},
		runner:   &mockRunner{result: remediation.Result{Success: true, Log: "ok"}},
		notifier: &recordingNotifier{},
		ctx:      clock.With(async.WithSync(context.Background()), c),
		advance:  advance,
	}

	base := []usecase.Option{
		usecase.WithRepository(f.repo),
		usecase.WithDiagnosticsProvider(f.provider),
		usecase.WithActionRunner(f.runner),
		usecase.WithNotifier(f.notifier),
		usecase.WithInvestigatorOptions(investigator.WithRetryInterval(time.Millisecond)),
	}
	f.uc = usecase.New(append(base, opts...)...)
	return f
}

type alertSpec struct {
	status string
	labels map[string]string
}

func webhook(t *testing.T, alerts ...alertSpec) []byte {
	t.Helper()

	var list []map[string]any
	for _, a := range alerts {
		status := a.status
		if status == "" {
			status = "firing"
		}
		list = append(list, map[string]any{
			"status":      status,
			"labels":      a.labels,
			"annotations": map[string]string{"summary": "disk is almost full"},
			"startsAt":    baseTime.Format(time.RFC3339),
			"fingerprint": "fp-" + a.labels["target_id"],
		})
	}

	raw, err := json.Marshal(map[string]any{
		"version":      "4",
		"status":       "firing",
		"receiver":     "medic",
		"commonLabels": map[string]string{"project_id": "shop"},
		"alerts":       list,
	})
	gt.NoError(t, err).Required()
	return raw
}

func diskAlert(target string) alertSpec {
	return alertSpec{labels: map[string]string{
		"alertname": "DiskFull",
		"severity":  "critical",
		"target_id": target,
	}}
}

func statesOf(t *testing.T, f *fixture, id types.IncidentID) []types.IncidentState {
	t.Helper()
	inc, err := f.repo.GetIncident(f.ctx, id)
	gt.NoError(t, err).Required()

	var states []types.IncidentState
	for _, h := range inc.History {
		states = append(states, h.To)
	}
	return states
}

func TestAutoApprovedIncidentResolves(t *testing.T) {
	f := newFixture(t, usecase.WithPolicyDefaults(autoApprove()))

	result, err := f.uc.HandleAlerts(f.ctx, webhook(t, diskAlert("web-1")))
	gt.NoError(t, err).Required()
	gt.A(t, result.Created).Length(1)

	inc, err := f.uc.GetIncident(f.ctx, result.Created[0].ID)
	gt.NoError(t, err).Required()
	gt.Equal(t, inc.State, types.StateResolved)
	gt.Equal(t, inc.Decision.Action, types.ActionCleanupDisk)
	gt.Equal(t, inc.Decision.Params["target_directory"], "/tmp")
	gt.Equal(t, inc.Approval.Status, types.ApprovalAuto)
	gt.True(t, inc.Result.Success)
	gt.Equal(t, f.runner.Actions(), []types.ActionName{types.ActionCleanupDisk})

	gt.Equal(t, statesOf(t, f, inc.ID), []types.IncidentState{
		types.StateTriggered,
		types.StateInvestigating,
		types.StateDeciding,
		types.StateAutoApproved,
		types.StateExecuting,
		types.StateResolved,
	})
}

func TestApprovalRequiredIncident(t *testing.T) {
	t.Run("never executes before approval", func(t *testing.T) {
		f := newFixture(t)

		result, err := f.uc.HandleAlerts(f.ctx, webhook(t, diskAlert("web-1")))
		gt.NoError(t, err).Required()
		id := result.Created[0].ID

		inc, err := f.uc.GetIncident(f.ctx, id)
		gt.NoError(t, err).Required()
		gt.Equal(t, inc.State, types.StateAwaitingApproval)
		gt.Equal(t, inc.Approval.Status, types.ApprovalPending)
		gt.True(t, inc.Approval.Deadline.Equal(baseTime.Add(15*time.Minute)))
		gt.A(t, f.runner.Actions()).Length(0)

		// Recovery and sweeping must not touch a parked incident before its deadline.
		f.advance(10 * time.Minute)
		n, err := f.uc.RecoverIncidents(f.ctx)
		gt.NoError(t, err)
		gt.Equal(t, n, 0)
		n, err = f.uc.SweepExpiredApprovals(f.ctx)
		gt.NoError(t, err)
		gt.Equal(t, n, 0)
		gt.A(t, f.runner.Actions()).Length(0)

		approvals := f.notifier.Approvals()
		gt.A(t, approvals).Length(1)
		gt.Equal(t, approvals[0].ApproveRef, "approve:"+id.String())
		gt.Equal(t, approvals[0].RejectRef, "reject:"+id.String())

		approved, err := f.uc.HandleApproval(f.ctx, id, types.ApprovalActionApprove, "alice")
		gt.NoError(t, err).Required()
		gt.Equal(t, approved.State, types.StateApproved)
		gt.Equal(t, approved.Approval.Actor, "alice")

		final, err := f.uc.GetIncident(f.ctx, id)
		gt.NoError(t, err).Required()
		gt.Equal(t, final.State, types.StateResolved)
		gt.Equal(t, f.runner.Actions(), []types.ActionName{types.ActionCleanupDisk})
		gt.Value(t, final.Result).NotNil().Required()
		gt.True(t, final.Result.Success)
		gt.NotEqual(t, final.Result.Log, "")

		gt.Equal(t, statesOf(t, f, id), []types.IncidentState{
			types.StateTriggered,
			types.StateInvestigating,
			types.StateDeciding,
			types.StateAwaitingApproval,
			types.StateApproved,
			types.StateExecuting,
			types.StateResolved,
		})
	})

	t.Run("duplicate callback is a no-op", func(t *testing.T) {
		f := newFixture(t)

		result, err := f.uc.HandleAlerts(f.ctx, webhook(t, diskAlert("web-1")))
		gt.NoError(t, err).Required()
		id := result.Created[0].ID

		_, err = f.uc.HandleApproval(f.ctx, id, types.ApprovalActionApprove, "alice")
		gt.NoError(t, err).Required()

		again, err := f.uc.HandleApproval(f.ctx, id, types.ApprovalActionReject, "bob")
		gt.NoError(t, err).Required()
		gt.Equal(t, again.State, types.StateResolved)
		gt.Equal(t, again.Approval.Actor, "alice")
		gt.A(t, f.runner.Actions()).Length(1)
	})

	t.Run("rejection is terminal", func(t *testing.T) {
		f := newFixture(t)

		result, err := f.uc.HandleAlerts(f.ctx, webhook(t, diskAlert("web-1")))
		gt.NoError(t, err).Required()

		inc, err := f.uc.HandleApproval(f.ctx, result.Created[0].ID, types.ApprovalActionReject, "bob")
		gt.NoError(t, err).Required()
		gt.Equal(t, inc.State, types.StateRejected)
		gt.Equal(t, inc.Approval.Status, types.ApprovalRejected)
		gt.A(t, f.runner.Actions()).Length(0)
	})

	t.Run("invalid action", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.uc.HandleApproval(f.ctx, types.NewIncidentID(), types.ApprovalAction("maybe"), "bob")
		gt.Error(t, err)
		gt.True(t, goerr.HasTag(err, errs.TagValidation))
	})
}

func TestApprovalExpires(t *testing.T) {
	t.Run("late callback expires the incident", func(t *testing.T) {
		f := newFixture(t)

		result, err := f.uc.HandleAlerts(f.ctx, webhook(t, diskAlert("web-1")))
		gt.NoError(t, err).Required()

		f.advance(16 * time.Minute)
		inc, err := f.uc.HandleApproval(f.ctx, result.Created[0].ID, types.ApprovalActionApprove, "alice")
		gt.NoError(t, err).Required()
		gt.Equal(t, inc.State, types.StateExpired)
		gt.A(t, f.runner.Actions()).Length(0)
	})

	t.Run("sweeper expires overdue approvals", func(t *testing.T) {
		f := newFixture(t)

		result, err := f.uc.HandleAlerts(f.ctx, webhook(t, diskAlert("web-1"), diskAlert("web-2")))
		gt.NoError(t, err).Required()
		gt.A(t, result.Created).Length(2)

		f.advance(15 * time.Minute)
		n, err := f.uc.SweepExpiredApprovals(f.ctx)
		gt.NoError(t, err)
		gt.Equal(t, n, 2)

		for _, created := range result.Created {
			inc, err := f.uc.GetIncident(f.ctx, created.ID)
			gt.NoError(t, err).Required()
			gt.Equal(t, inc.State, types.StateExpired)
			gt.Equal(t, inc.Approval.Status, types.ApprovalExpired)
		}

		// A callback after the sweep is stale.
		inc, err := f.uc.HandleApproval(f.ctx, result.Created[0].ID, types.ApprovalActionApprove, "alice")
		gt.NoError(t, err).Required()
		gt.Equal(t, inc.State, types.StateExpired)
		gt.A(t, f.runner.Actions()).Length(0)
	})
}

func TestUnmappedAlert(t *testing.T) {
	f := newFixture(t)

	body := webhook(t, alertSpec{labels: map[string]string{"alertname": "DiskFull"}})
	result, err := f.uc.HandleAlerts(f.ctx, body)
	gt.NoError(t, err).Required()
	gt.A(t, result.Created).Length(0)
	gt.A(t, result.DeadLetters).Length(1).At(0, func(t testing.TB, v *alert.DeadLetter) {
		gt.Equal(t, v.Reason, types.DeadLetterUnmappedAlert)
		gt.S(t, v.Detail).Contains("target_id")
		gt.NotEqual(t, v.ID, types.DeadLetterID(""))
	})

	stored, err := f.uc.ListDeadLetters(f.ctx, 0)
	gt.NoError(t, err).Required()
	gt.A(t, stored).Length(1)

	for _, state := range types.AllIncidentStates {
		list, err := f.uc.ListIncidents(f.ctx, state, 0)
		gt.NoError(t, err).Required()
		gt.A(t, list).Length(0)
	}
	gt.A(t, f.notifier.deadLetters).Length(1)
}

func TestMalformedPayload(t *testing.T) {
	f := newFixture(t)

	for _, body := range [][]byte{[]byte("{"), []byte(`{"alerts":[]}`), nil} {
		result, err := f.uc.HandleAlerts(f.ctx, body)
		gt.NoError(t, err).Required()
		gt.A(t, result.DeadLetters).Length(1).At(0, func(t testing.TB, v *alert.DeadLetter) {
			gt.Equal(t, v.Reason, types.DeadLetterMalformedPayload)
		})
	}
}

func TestResolvedAlertsAreSkipped(t *testing.T) {
	f := newFixture(t)

	a := diskAlert("web-1")
	a.status = "resolved"
	result, err := f.uc.HandleAlerts(f.ctx, webhook(t, a))
	gt.NoError(t, err).Required()
	gt.Equal(t, result.Skipped, 1)
	gt.A(t, result.Created).Length(0)
	gt.A(t, result.DeadLetters).Length(0)
}

func TestDeduplication(t *testing.T) {
	t.Run("repeated alert joins the open incident", func(t *testing.T) {
		f := newFixture(t)

		first, err := f.uc.HandleAlerts(f.ctx, webhook(t, diskAlert("web-1")))
		gt.NoError(t, err).Required()
		second, err := f.uc.HandleAlerts(f.ctx, webhook(t, diskAlert("web-1")))
		gt.NoError(t, err).Required()

		gt.A(t, second.Created).Length(0)
		gt.A(t, second.Deduplicated).Length(1)
		gt.Equal(t, second.Deduplicated[0].ID, first.Created[0].ID)
	})

	t.Run("after the window a new incident opens", func(t *testing.T) {
		f := newFixture(t, usecase.WithDedupWindow(5*time.Minute))

		first, err := f.uc.HandleAlerts(f.ctx, webhook(t, diskAlert("web-1")))
		gt.NoError(t, err).Required()
		f.advance(6 * time.Minute)
		second, err := f.uc.HandleAlerts(f.ctx, webhook(t, diskAlert("web-1")))
		gt.NoError(t, err).Required()

		gt.A(t, second.Created).Length(1)
		gt.NotEqual(t, second.Created[0].ID, first.Created[0].ID)
	})

	t.Run("concurrent deliveries create one incident", func(t *testing.T) {
		f := newFixture(t)
		body := webhook(t, diskAlert("web-1"))

		const n = 16
		var wg sync.WaitGroup
		results := make([]*usecase.AlertsResult, n)
		for i := range n {
			wg.Add(1)
			go func() {
				defer wg.Done()
				r, err := f.uc.HandleAlerts(f.ctx, body)
				gt.NoError(t, err)
				results[i] = r
			}()
		}
		wg.Wait()

		created := 0
		ids := map[types.IncidentID]struct{}{}
		for _, r := range results {
			created += len(r.Created)
			for _, inc := range r.Created {
				ids[inc.ID] = struct{}{}
			}
			for _, inc := range r.Deduplicated {
				ids[inc.ID] = struct{}{}
			}
		}
		gt.Equal(t, created, 1)
		gt.Equal(t, len(ids), 1)
	})
}

func TestUnreachableTargetNeedsHuman(t *testing.T) {
	f := newFixture(t, usecase.WithPolicyDefaults(autoApprove()))
	f.provider.err = goerr.New("connection refused", goerr.T(errs.TagUnreachable))

	result, err := f.uc.HandleAlerts(f.ctx, webhook(t, diskAlert("web-1")))
	gt.NoError(t, err).Required()

	inc, err := f.uc.GetIncident(f.ctx, result.Created[0].ID)
	gt.NoError(t, err).Required()
	gt.Equal(t, inc.State, types.StateFailed)
	gt.Equal(t, inc.FailureReason, "manual_intervention_required")
	gt.True(t, inc.Report.Unreachable)
	gt.Equal(t, inc.Decision.Action, types.ActionManualIntervention)
	gt.A(t, f.runner.Actions()).Length(0)
}

func TestFailedActionFailsIncident(t *testing.T) {
	f := newFixture(t, usecase.WithPolicyDefaults(autoApprove()))
	f.runner.result = remediation.Result{Success: false, ExitCode: 2, Log: "fatal"}

	result, err := f.uc.HandleAlerts(f.ctx, webhook(t, diskAlert("web-1")))
	gt.NoError(t, err).Required()

	inc, err := f.uc.GetIncident(f.ctx, result.Created[0].ID)
	gt.NoError(t, err).Required()
	gt.Equal(t, inc.State, types.StateFailed)
	gt.S(t, inc.FailureReason).Contains("exit code 2")
}

func TestRunIncidentIsIdempotent(t *testing.T) {
	f := newFixture(t, usecase.WithPolicyDefaults(autoApprove()))

	result, err := f.uc.HandleAlerts(f.ctx, webhook(t, diskAlert("web-1")))
	gt.NoError(t, err).Required()
	id := result.Created[0].ID

	gt.NoError(t, f.uc.RunIncident(f.ctx, id))
	_, err = f.uc.ExecuteIncident(f.ctx, id)
	gt.NoError(t, err)
	gt.A(t, f.runner.Actions()).Length(1)
}

func TestListIncidentsValidation(t *testing.T) {
	f := newFixture(t)

	_, err := f.uc.ListIncidents(f.ctx, types.IncidentState("unmapped"), 0)
	gt.Error(t, err)
	gt.True(t, goerr.HasTag(err, errs.TagValidation))

	_, err = f.uc.ListDeadLetters(f.ctx, -1)
	gt.Error(t, err)

	_, err = f.uc.GetIncident(f.ctx, types.IncidentID("not-a-uuid"))
	gt.Error(t, err)
	gt.True(t, goerr.HasTag(err, errs.TagValidation))
}

func TestRecoverStrandedIncident(t *testing.T) {
	f := newFixture(t, usecase.WithPolicyDefaults(autoApprove()))

	// An incident whose worker died right after it was stored.
	a := &alert.Normalized{AlertName: "DiskFull", Target: "web-1", Project: "shop", Severity: types.SeverityCritical}
	stranded, created, err := f.repo.CreateOrGetIncident(f.ctx, incident.IdentityOf(a, time.Hour), func() *incident.Incident {
		return incident.New(a, baseTime)
	})
	gt.NoError(t, err).Required()
	gt.True(t, created)

	n, err := f.uc.RecoverIncidents(f.ctx)
	gt.NoError(t, err)
	gt.Equal(t, n, 0)

	f.advance(usecase.DefaultRecoverAfter)
	n, err = f.uc.RecoverIncidents(f.ctx)
	gt.NoError(t, err)
	gt.Equal(t, n, 1)

	inc, err := f.uc.GetIncident(f.ctx, stranded.ID)
	gt.NoError(t, err).Required()
	gt.Equal(t, inc.State, types.StateResolved)
	gt.A(t, f.runner.Actions()).Length(1)
}

func TestRecoverInterruptedIncident(t *testing.T) {
	f := newFixture(t)

	a := &alert.Normalized{AlertName: "DiskFull", Target: "db-1", Project: "shop", Severity: types.SeverityWarning}
	inc, _, err := f.repo.CreateOrGetIncident(f.ctx, incident.IdentityOf(a, time.Hour), func() *incident.Incident {
		return incident.New(a, baseTime)
	})
	gt.NoError(t, err).Required()
	_, err = f.repo.TransitionIncident(f.ctx, inc.ID, types.StateTriggered, types.StateInvestigating, incident.Patch{Reason: "collecting diagnostics"})
	gt.NoError(t, err).Required()

	f.advance(usecase.DefaultRecoverAfter)
	n, err := f.uc.RecoverIncidents(f.ctx)
	gt.NoError(t, err)
	gt.Equal(t, n, 1)

	got, err := f.uc.GetIncident(f.ctx, inc.ID)
	gt.NoError(t, err).Required()
	gt.Equal(t, got.State, types.StateFailed)
	gt.Equal(t, got.FailureReason, usecase.FailureOrchestrationInterrupted)
	gt.A(t, f.runner.Actions()).Length(0)

	// already terminal, nothing left to recover
	n, err = f.uc.RecoverIncidents(f.ctx)
	gt.NoError(t, err)
	gt.Equal(t, n, 0)
}

func TestSweeperRunStopsOnCancel(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(f.ctx)

	done := make(chan error, 1)
	go func() {
		done <- usecase.NewSweeper(f.uc, 10*time.Millisecond).Run(ctx)
	}()
	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		gt.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop")
	}
}

func TestHandleSlackInteraction(t *testing.T) {
	f := newFixture(t)

	result, err := f.uc.HandleAlerts(f.ctx, webhook(t, diskAlert("web-1")))
	gt.NoError(t, err).Required()
	refs := f.notifier.Approvals()
	gt.A(t, refs).Length(1)

	callback := &slack.InteractionCallback{
		Type: slack.InteractionTypeBlockActions,
		User: slack.User{ID: "U123", Name: "alice"},
		ActionCallback: slack.ActionCallbacks{
			BlockActions: []*slack.BlockAction{
				{ActionID: "medic_approve", Value: refs[0].ApproveRef},
			},
		},
	}
	gt.NoError(t, f.uc.HandleSlackInteraction(f.ctx, callback)).Required()

	inc, err := f.uc.GetIncident(f.ctx, result.Created[0].ID)
	gt.NoError(t, err).Required()
	gt.Equal(t, inc.State, types.StateResolved)
	gt.Equal(t, inc.Approval.Actor, "slack:alice")

	t.Run("button and reference must agree", func(t *testing.T) {
		callback := &slack.InteractionCallback{
			Type: slack.InteractionTypeBlockActions,
			User: slack.User{ID: "U123"},
			ActionCallback: slack.ActionCallbacks{
				BlockActions: []*slack.BlockAction{
					{ActionID: "medic_reject", Value: refs[0].ApproveRef},
				},
			},
		}
		err := f.uc.HandleSlackInteraction(f.ctx, callback)
		gt.Error(t, err)
		gt.True(t, goerr.HasTag(err, errs.TagValidation))
	})

	t.Run("unrelated interactions are ignored", func(t *testing.T) {
		gt.NoError(t, f.uc.HandleSlackInteraction(f.ctx, &slack.InteractionCallback{
			Type: slack.InteractionTypeViewSubmission,
		}))
	})
}

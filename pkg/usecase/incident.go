package usecase

import (
	"context"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/medic/pkg/domain/event"
	"github.com/secmon-lab/medic/pkg/domain/model/incident"
	"github.com/secmon-lab/medic/pkg/domain/model/policy"
	"github.com/secmon-lab/medic/pkg/domain/types"
	"github.com/secmon-lab/medic/pkg/service/approval"
	"github.com/secmon-lab/medic/pkg/service/decision"
	"github.com/secmon-lab/medic/pkg/utils/clock"
	"github.com/secmon-lab/medic/pkg/utils/errutil"
	"github.com/secmon-lab/medic/pkg/utils/logging"
	"github.com/secmon-lab/medic/pkg/utils/metrics"
)

// RunIncident drives a triggered incident through investigation and decision.
// It ends either parked in awaiting_approval, in a terminal state, or by
// handing an auto-approved incident to the executor. Calling it for an
// incident that already left triggered is a no-op.
func (uc *UseCases) RunIncident(ctx context.Context, id types.IncidentID) error {
	ctx, logger := logging.Scope(ctx, "incident_id", id)

	inc, err := uc.repository.GetIncident(ctx, id)
	if err != nil {
		return goerr.Wrap(err, "failed to get incident", goerr.TV(errutil.IncidentIDKey, id))
	}
	if inc.State != types.StateTriggered {
		logger.Info("incident already in progress, skipping", "state", inc.State)
		return nil
	}

	inc, err = uc.transition(ctx, inc, types.StateInvestigating, incident.Patch{Reason: "collecting diagnostics"})
	if err != nil {
		return ignoreConflict(ctx, err)
	}

	report := uc.investigatorSvc.Investigate(ctx, inc.Target)
	inc, err = uc.transition(ctx, inc, types.StateDeciding, incident.Patch{
		Report: report,
		Reason: "diagnostics collected",
	})
	if err != nil {
		return ignoreConflict(ctx, err)
	}

	pol, err := uc.policySvc.Remediation(ctx, &policy.RemediationQuery{
		AlertName: inc.AlertName,
		Project:   inc.Project,
		Target:    inc.Target,
		Severity:  inc.Severity,
		Labels:    inc.Labels,
	})
	if err != nil {
		if failErr := uc.fail(ctx, inc, "remediation policy evaluation failed"); failErr != nil {
			return failErr
		}
		return goerr.Wrap(err, "failed to evaluate remediation policy", goerr.TV(errutil.IncidentIDKey, id))
	}

	d := uc.engineSvc.Decide(decision.Input{
		Report:  report,
		Policy:  pol,
		Service: inc.Service(),
	})
	logger.Info("remediation decided", "action", d.Action, "rule", d.Rule, "reason", d.Reason)

	if d.RequiresHuman() {
		_, err := uc.transition(ctx, inc, types.StateFailed, incident.Patch{
			Decision:      &d,
			FailureReason: types.ActionManualIntervention.String(),
			Reason:        d.Reason,
		})
		return ignoreConflict(ctx, err)
	}

	now := clock.Now(ctx)
	verdict := uc.gateSvc.Evaluate(inc, &d, pol, now)

	if verdict.Pending() {
		parked, err := uc.transition(ctx, inc, types.StateAwaitingApproval, incident.Patch{
			Decision: &d,
			Approval: &incident.Approval{
				Status:      types.ApprovalPending,
				RequestedAt: now,
				Deadline:    verdict.Deadline,
			},
			Reason: "approval required by policy",
		})
		if err != nil {
			return ignoreConflict(ctx, err)
		}

		// An undelivered request is left for the sweeper to expire.
		if err := uc.notifier.NotifyApprovalRequest(ctx, &event.ApprovalRequestEvent{
			Incident:   parked,
			ApproveRef: approval.Ref(parked.ID, types.ApprovalActionApprove),
			RejectRef:  approval.Ref(parked.ID, types.ApprovalActionReject),
		}); err != nil {
			metrics.Notification("approval_failed")
			logger.Error("failed to deliver approval request", logging.ErrAttr(err))
		}
		return nil
	}

	approved, err := uc.transition(ctx, inc, types.StateAutoApproved, incident.Patch{
		Decision: &d,
		Approval: &incident.Approval{
			Status:      types.ApprovalAuto,
			RequestedAt: now,
			ResolvedAt:  now,
			Actor:       incident.ActorSystem,
		},
		Reason: "auto-approved by policy",
	})
	if err != nil {
		return ignoreConflict(ctx, err)
	}

	if _, err := uc.executorSvc.Execute(ctx, approved.ID); err != nil {
		return goerr.Wrap(err, "failed to execute remediation", goerr.TV(errutil.IncidentIDKey, id))
	}
	return nil
}

// ExecuteIncident runs the decided action of an approved or auto-approved
// incident. Duplicate invocations are absorbed by the executor.
func (uc *UseCases) ExecuteIncident(ctx context.Context, id types.IncidentID) (*incident.Incident, error) {
	return uc.executorSvc.Execute(ctx, id)
}

func ignoreConflict(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	if isConflict(err) {
		logging.From(ctx).Info("incident advanced concurrently, leaving it to the winner", logging.ErrAttr(err))
		return nil
	}
	return err
}

package usecase

import (
	"context"
	"fmt"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/medic/pkg/domain/model/errs"
	"github.com/secmon-lab/medic/pkg/domain/model/incident"
	slackModel "github.com/secmon-lab/medic/pkg/domain/model/slack"
	"github.com/secmon-lab/medic/pkg/domain/types"
	"github.com/secmon-lab/medic/pkg/service/approval"
	"github.com/secmon-lab/medic/pkg/utils/async"
	"github.com/secmon-lab/medic/pkg/utils/clock"
	"github.com/secmon-lab/medic/pkg/utils/errutil"
	"github.com/secmon-lab/medic/pkg/utils/logging"
	"github.com/secmon-lab/medic/pkg/utils/metrics"
	"github.com/slack-go/slack"
)

// HandleApproval applies a human decision to an incident waiting for approval.
// A callback for an incident that is not waiting (already decided, expired or
// never asked) changes nothing and returns the current incident.
func (uc *UseCases) HandleApproval(ctx context.Context, id types.IncidentID, action types.ApprovalAction, actor string) (*incident.Incident, error) {
	ctx, logger := logging.Scope(ctx, "incident_id", id, "approval_action", action, "actor", actor)

	if err := action.Validate(); err != nil {
		return nil, goerr.Wrap(err, "invalid approval action", goerr.T(errs.TagValidation))
	}
	if actor == "" {
		return nil, goerr.New("approval actor is required", goerr.T(errs.TagValidation))
	}

	inc, err := uc.repository.GetIncident(ctx, id)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to get incident", goerr.TV(errutil.IncidentIDKey, id))
	}

	now := clock.Now(ctx)
	status, ok := uc.gateSvc.Resolve(inc, action, now)
	if !ok {
		logger.Info("stale approval callback ignored", "state", inc.State)
		metrics.ApprovalCallback("stale")
		return inc, nil
	}

	resolved := *inc.Approval
	resolved.Status = status
	resolved.ResolvedAt = now
	resolved.Actor = actor

	updated, err := uc.transition(ctx, inc, approval.NextState(status), incident.Patch{
		Approval: &resolved,
		Actor:    actor,
		Reason:   fmt.Sprintf("%s by %s", status, actor),
	})
	if err != nil {
		if isConflict(err) {
			logger.Info("approval callback lost the race", logging.ErrAttr(err))
			metrics.ApprovalCallback("stale")
			return uc.repository.GetIncident(ctx, id)
		}
		return nil, err
	}
	metrics.ApprovalCallback(string(status))

	if updated.State == types.StateApproved {
		async.Dispatch(ctx, func(ctx context.Context) error {
			_, err := uc.executorSvc.Execute(ctx, id)
			return err
		})
	}
	return updated, nil
}

// HandleSlackInteraction applies approve/reject button clicks and rewrites the
// original message with the outcome.
func (uc *UseCases) HandleSlackInteraction(ctx context.Context, callback *slack.InteractionCallback) error {
	if callback.Type != slack.InteractionTypeBlockActions {
		logging.From(ctx).Debug("ignoring slack interaction", "type", callback.Type)
		return nil
	}

	actor := callback.User.Name
	if actor == "" {
		actor = callback.User.ID
	}

	for _, blockAction := range callback.ActionCallback.BlockActions {
		action, ok := slackModel.ActionID(blockAction.ActionID).ApprovalAction()
		if !ok {
			continue
		}

		id, refAction, err := approval.ParseRef(blockAction.Value)
		if err != nil {
			return goerr.Wrap(err, "invalid approval button value", goerr.V("value", blockAction.Value))
		}
		if refAction != action {
			return goerr.New("approval button does not match its reference",
				goerr.T(errs.TagValidation),
				goerr.V("action_id", blockAction.ActionID),
				goerr.V("value", blockAction.Value))
		}

		inc, err := uc.HandleApproval(ctx, id, action, "slack:"+actor)
		if err != nil {
			return err
		}

		if uc.slackService != nil {
			if err := uc.slackService.UpdateApprovalResult(ctx, callback.Channel.ID, callback.Message.Timestamp, inc); err != nil {
				errs.Handle(ctx, goerr.Wrap(err, "failed to update approval message", goerr.TV(errutil.IncidentIDKey, id)))
			}
		}
	}

	return nil
}

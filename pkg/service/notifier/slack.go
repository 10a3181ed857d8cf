package notifier

import (
	"context"

	"github.com/secmon-lab/medic/pkg/domain/event"
	"github.com/secmon-lab/medic/pkg/domain/interfaces"
	"github.com/secmon-lab/medic/pkg/domain/model/alert"
	"github.com/secmon-lab/medic/pkg/domain/model/incident"
	"github.com/secmon-lab/medic/pkg/domain/types"
	"github.com/secmon-lab/medic/pkg/utils/logging"
)

// SlackPoster is the subset of the Slack service the notifier needs
type SlackPoster interface {
	PostApprovalRequest(ctx context.Context, inc *incident.Incident, approveRef, rejectRef string) (string, error)
	PostTransition(ctx context.Context, inc *incident.Incident, from, to types.IncidentState) error
	PostDeadLetter(ctx context.Context, dl *alert.DeadLetter) error
}

// SlackNotifier posts approval requests with interactive buttons and announces
// terminal outcomes in a Slack channel.
type SlackNotifier struct {
	poster SlackPoster
}

// NewSlackNotifier creates a new Slack notifier
func NewSlackNotifier(poster SlackPoster) interfaces.Notifier {
	return &SlackNotifier{poster: poster}
}

func (n *SlackNotifier) NotifyApprovalRequest(ctx context.Context, ev *event.ApprovalRequestEvent) error {
	_, err := n.poster.PostApprovalRequest(ctx, ev.Incident, ev.ApproveRef, ev.RejectRef)
	return err
}

// NotifyTransition only reports terminal states to keep the channel readable
func (n *SlackNotifier) NotifyTransition(ctx context.Context, ev *event.TransitionEvent) {
	if !ev.To.IsTerminal() {
		return
	}
	if err := n.poster.PostTransition(ctx, ev.Incident, ev.From, ev.To); err != nil {
		logging.From(ctx).Warn("failed to post transition to slack", logging.ErrAttr(err))
	}
}

func (n *SlackNotifier) NotifyDeadLetter(ctx context.Context, ev *event.DeadLetterEvent) {
	if err := n.poster.PostDeadLetter(ctx, ev.DeadLetter); err != nil {
		logging.From(ctx).Warn("failed to post dead letter to slack", logging.ErrAttr(err))
	}
}

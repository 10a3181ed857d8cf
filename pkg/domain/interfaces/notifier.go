package interfaces

import (
	"context"

	"github.com/secmon-lab/medic/pkg/domain/event"
)

// Notifier is an interface for handling notification events from the orchestration
// pipeline. Implementations can output events to console, Slack, or other
// notification channels.
type Notifier interface {
	// NotifyApprovalRequest asks a human to approve or reject a remediation. An error
	// means the request may not have been delivered.
	NotifyApprovalRequest(ctx context.Context, ev *event.ApprovalRequestEvent) error

	// NotifyTransition is called after every committed state change
	NotifyTransition(ctx context.Context, ev *event.TransitionEvent)

	// NotifyDeadLetter is called when an input is rejected
	NotifyDeadLetter(ctx context.Context, ev *event.DeadLetterEvent)
}

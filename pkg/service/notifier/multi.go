package notifier

import (
	"context"
	"errors"

	"github.com/secmon-lab/medic/pkg/domain/event"
	"github.com/secmon-lab/medic/pkg/domain/interfaces"
)

// Multi fans every event out to all notifiers.
type Multi []interfaces.Notifier

func (m Multi) NotifyApprovalRequest(ctx context.Context, ev *event.ApprovalRequestEvent) error {
	var errs []error
	for _, n := range m {
		if err := n.NotifyApprovalRequest(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m Multi) NotifyTransition(ctx context.Context, ev *event.TransitionEvent) {
	for _, n := range m {
		n.NotifyTransition(ctx, ev)
	}
}

func (m Multi) NotifyDeadLetter(ctx context.Context, ev *event.DeadLetterEvent) {
	for _, n := range m {
		n.NotifyDeadLetter(ctx, ev)
	}
}

// Discard drops every event.
type Discard struct{}

func (Discard) NotifyApprovalRequest(context.Context, *event.ApprovalRequestEvent) error { return nil }
func (Discard) NotifyTransition(context.Context, *event.TransitionEvent)               {}
func (Discard) NotifyDeadLetter(context.Context, *event.DeadLetterEvent)               {}

package event

import (
	"github.com/secmon-lab/medic/pkg/domain/model/alert"
	"github.com/secmon-lab/medic/pkg/domain/model/incident"
	"github.com/secmon-lab/medic/pkg/domain/types"
)

// NotificationEvent represents an event during incident orchestration
type NotificationEvent interface {
	isNotificationEvent()
}

// ApprovalRequestEvent is fired when an incident is parked waiting for a human.
// ApproveRef and RejectRef are opaque references the responder hands back.
type ApprovalRequestEvent struct {
	Incident   *incident.Incident
	ApproveRef string
	RejectRef  string
}

func (e *ApprovalRequestEvent) isNotificationEvent() {}

// TransitionEvent is fired after a state change is committed
type TransitionEvent struct {
	Incident *incident.Incident
	From     types.IncidentState
	To       types.IncidentState
}

func (e *TransitionEvent) isNotificationEvent() {}

// DeadLetterEvent is fired when an input is rejected into the dead-letter log
type DeadLetterEvent struct {
	DeadLetter *alert.DeadLetter
}

func (e *DeadLetterEvent) isNotificationEvent() {}

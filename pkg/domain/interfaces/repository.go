package interfaces

import (
	"context"

	"github.com/secmon-lab/medic/pkg/domain/model/alert"
	"github.com/secmon-lab/medic/pkg/domain/model/incident"
	"github.com/secmon-lab/medic/pkg/domain/types"
)

type IncidentRepository interface {
	// CreateOrGetIncident atomically returns the open incident owning identity, or
	// stores the one built by newIncident. The bool is true when a new incident was
	// created.
	CreateOrGetIncident(ctx context.Context, identity incident.Identity, newIncident func() *incident.Incident) (*incident.Incident, bool, error)

	// TransitionIncident is a compare-and-swap on the incident state. A state
	// mismatch is tagged errs.TagConflict and an edge outside the state machine is
	// tagged errs.TagInvalidState.
	TransitionIncident(ctx context.Context, id types.IncidentID, expected, next types.IncidentState, patch incident.Patch) (*incident.Incident, error)

	GetIncident(ctx context.Context, id types.IncidentID) (*incident.Incident, error)
	ListIncidentsByState(ctx context.Context, state types.IncidentState, limit int) ([]*incident.Incident, error)

	PutDeadLetter(ctx context.Context, dl *alert.DeadLetter) error
	ListDeadLetters(ctx context.Context, limit int) ([]*alert.DeadLetter, error)
}

package incident

import (
	"maps"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/medic/pkg/domain/model/alert"
	"github.com/secmon-lab/medic/pkg/domain/model/diagnosis"
	"github.com/secmon-lab/medic/pkg/domain/model/errs"
	"github.com/secmon-lab/medic/pkg/domain/model/remediation"
	"github.com/secmon-lab/medic/pkg/domain/types"
)

type Incident struct {
	ID         types.IncidentID    `json:"id"`
	Target     string              `json:"target"`
	Project    string              `json:"project"`
	AlertName  string              `json:"alert_name"`
	Severity   types.Severity      `json:"severity"`
	Labels     map[string]string   `json:"labels"`
	RawPayload map[string]any      `json:"raw_payload"`
	State      types.IncidentState `json:"state"`
	DedupKey   string              `json:"dedup_key"`

	Report        *diagnosis.Report     `json:"report,omitempty"`
	Decision      *remediation.Decision `json:"decision,omitempty"`
	Approval      *Approval             `json:"approval,omitempty"`
	Result        *remediation.Result   `json:"result,omitempty"`
	FailureReason string                `json:"failure_reason,omitempty"`

	History   []Transition `json:"history"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
}

// New opens an incident in the triggered state for a normalized alert.
func New(a *alert.Normalized, now time.Time) *Incident {
	return &Incident{
		ID:         types.NewIncidentID(),
		Target:     a.Target,
		Project:    a.Project,
		AlertName:  a.AlertName,
		Severity:   a.Severity,
		Labels:     maps.Clone(a.Labels),
		RawPayload: a.Payload,
		State:      types.StateTriggered,
		DedupKey:   IdentityOf(a, 0).Key(),
		History: []Transition{
			{To: types.StateTriggered, At: now, Actor: ActorSystem, Reason: "alert received"},
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func (x *Incident) Validate() error {
	if err := x.ID.Validate(); err != nil {
		return goerr.Wrap(err, "invalid incident ID")
	}
	if err := x.State.Validate(); err != nil {
		return goerr.Wrap(err, "invalid incident state")
	}
	if x.Target == "" {
		return goerr.New("target is required", goerr.V("id", x.ID))
	}
	if x.AlertName == "" {
		return goerr.New("alert name is required", goerr.V("id", x.ID))
	}
	return nil
}

// Service returns the service name to act on, taken from the alert labels.
func (x *Incident) Service() string {
	if v := x.Labels[alert.LabelService]; v != "" {
		return v
	}
	return DefaultServiceName
}

// DefaultServiceName is used when the alert does not name a service.
const DefaultServiceName = "app-service"

// Copy returns a deep enough copy that callers cannot mutate stored history.
func (x *Incident) Copy() *Incident {
	if x == nil {
		return nil
	}
	c := *x
	c.Labels = maps.Clone(x.Labels)
	c.RawPayload = maps.Clone(x.RawPayload)
	c.History = append([]Transition(nil), x.History...)
	if x.Approval != nil {
		a := *x.Approval
		c.Approval = &a
	}
	if x.Decision != nil {
		d := *x.Decision
		d.Params = maps.Clone(x.Decision.Params)
		c.Decision = &d
	}
	if x.Result != nil {
		r := *x.Result
		c.Result = &r
	}
	return &c
}

// Apply moves the incident from its current state to next and merges patch. It
// checks both the expected state and the transition table, so every store
// implementation shares one set of rules.
func (x *Incident) Apply(expected, next types.IncidentState, patch Patch, now time.Time) error {
	if x.State != expected {
		return goerr.New("incident state does not match expected state",
			goerr.V("id", x.ID),
			goerr.V("actual", x.State),
			goerr.V("expected", expected),
			goerr.V("next", next),
			goerr.Tag(errs.TagConflict),
		)
	}
	if !x.State.CanTransitionTo(next) {
		return goerr.New("transition is not allowed by the state machine",
			goerr.V("id", x.ID),
			goerr.V("from", x.State),
			goerr.V("next", next),
			goerr.Tag(errs.TagInvalidState),
		)
	}

	if patch.Report != nil {
		x.Report = patch.Report
	}
	if patch.Decision != nil {
		x.Decision = patch.Decision
	}
	if patch.Approval != nil {
		x.Approval = patch.Approval
	}
	if patch.Result != nil {
		x.Result = patch.Result
	}
	if patch.FailureReason != "" {
		x.FailureReason = patch.FailureReason
	}

	actor := patch.Actor
	if actor == "" {
		actor = ActorSystem
	}
	x.History = append(x.History, Transition{
		From:   x.State,
		To:     next,
		At:     now,
		Actor:  actor,
		Reason: patch.Reason,
	})
	x.State = next
	x.UpdatedAt = now
	return nil
}

const ActorSystem = "system"

type Transition struct {
	From   types.IncidentState `json:"from"`
	To     types.IncidentState `json:"to"`
	At     time.Time           `json:"at"`
	Actor  string              `json:"actor"`
	Reason string              `json:"reason"`
}

// Patch carries the fields written together with a state change. Zero fields are
// left untouched.
type Patch struct {
	Report        *diagnosis.Report
	Decision      *remediation.Decision
	Approval      *Approval
	Result        *remediation.Result
	FailureReason string

	Actor  string
	Reason string
}

type Approval struct {
	Status      types.ApprovalStatus `json:"status"`
	RequestedAt time.Time            `json:"requested_at"`
	Deadline    time.Time            `json:"deadline"`
	ResolvedAt  time.Time            `json:"resolved_at"`
	Actor       string               `json:"actor"`
}

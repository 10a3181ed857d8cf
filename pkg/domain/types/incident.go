package types

import (
	"github.com/google/uuid"
	"github.com/m-mizutani/goerr/v2"
)

type IncidentID string

func (x IncidentID) String() string {
	return string(x)
}

func NewIncidentID() IncidentID {
	id, err := uuid.NewV7()
	if err != nil {
		panic(err)
	}
	return IncidentID(id.String())
}

func (x IncidentID) Validate() error {
	if x == EmptyIncidentID {
		return goerr.New("empty incident ID")
	}
	if _, err := uuid.Parse(string(x)); err != nil {
		return goerr.Wrap(err, "invalid incident ID format", goerr.V("id", x))
	}
	return nil
}

const (
	EmptyIncidentID IncidentID = ""
)

// IncidentState is a node of the remediation state machine. Every change of state
// goes through a compare-and-swap in the incident repository.
type IncidentState string

const (
	StateTriggered        IncidentState = "triggered"
	StateInvestigating    IncidentState = "investigating"
	StateDeciding         IncidentState = "deciding"
	StateAutoApproved     IncidentState = "auto_approved"
	StateAwaitingApproval IncidentState = "awaiting_approval"
	StateApproved         IncidentState = "approved"
	StateRejected         IncidentState = "rejected"
	StateExpired          IncidentState = "expired"
	StateExecuting        IncidentState = "executing"
	StateResolved         IncidentState = "resolved"
	StateFailed           IncidentState = "failed"
)

var AllIncidentStates = []IncidentState{
	StateTriggered,
	StateInvestigating,
	StateDeciding,
	StateAutoApproved,
	StateAwaitingApproval,
	StateApproved,
	StateRejected,
	StateExpired,
	StateExecuting,
	StateResolved,
	StateFailed,
}

var incidentTransitions = map[IncidentState][]IncidentState{
	StateTriggered:        {StateInvestigating, StateFailed},
	StateInvestigating:    {StateDeciding, StateFailed},
	StateDeciding:         {StateAutoApproved, StateAwaitingApproval, StateFailed},
	StateAutoApproved:     {StateExecuting, StateFailed},
	StateAwaitingApproval: {StateApproved, StateRejected, StateExpired},
	StateApproved:         {StateExecuting, StateFailed},
	StateExecuting:        {StateResolved, StateFailed},
}

var incidentStateLabels = map[IncidentState]string{
	StateTriggered:        "🔔 Triggered",
	StateInvestigating:    "🔍 Investigating",
	StateDeciding:         "🧭 Deciding",
	StateAutoApproved:     "🤖 Auto Approved",
	StateAwaitingApproval: "🕒 Awaiting Approval",
	StateApproved:         "👍 Approved",
	StateRejected:         "🚫 Rejected",
	StateExpired:          "⌛ Expired",
	StateExecuting:        "⚙️ Executing",
	StateResolved:         "✅ Resolved",
	StateFailed:           "❌ Failed",
}

func (s IncidentState) String() string {
	return string(s)
}

func (s IncidentState) Label() string {
	return incidentStateLabels[s]
}

func (s IncidentState) Validate() error {
	if _, ok := incidentStateLabels[s]; ok {
		return nil
	}
	return goerr.New("invalid incident state", goerr.V("state", s))
}

// IsTerminal reports whether s is absorbing.
func (s IncidentState) IsTerminal() bool {
	_, hasNext := incidentTransitions[s]
	return !hasNext && s.Validate() == nil
}

// CanTransitionTo reports whether next is a legal successor of s.
func (s IncidentState) CanTransitionTo(next IncidentState) bool {
	for _, candidate := range incidentTransitions[s] {
		if candidate == next {
			return true
		}
	}
	return false
}

// Severity of the originating alert.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

func (s Severity) String() string {
	return string(s)
}

func (s Severity) Validate() error {
	switch s {
	case SeverityInfo, SeverityWarning, SeverityCritical:
		return nil
	}
	return goerr.New("invalid severity", goerr.V("severity", s))
}

// ParseSeverity maps free-form alert labels onto the three known levels. Anything
// unrecognized is treated as info.
func ParseSeverity(v string) Severity {
	switch Severity(v) {
	case SeverityWarning, SeverityCritical:
		return Severity(v)
	}
	switch v {
	case "error", "high", "page":
		return SeverityCritical
	case "warn", "medium":
		return SeverityWarning
	}
	return SeverityInfo
}

package approval

import (
	"time"

	"github.com/secmon-lab/medic/pkg/domain/model/incident"
	"github.com/secmon-lab/medic/pkg/domain/model/policy"
	"github.com/secmon-lab/medic/pkg/domain/model/remediation"
	"github.com/secmon-lab/medic/pkg/domain/types"
)

var DefaultWindows = map[types.Severity]time.Duration{
	types.SeverityInfo:     4 * time.Hour,
	types.SeverityWarning:  time.Hour,
	types.SeverityCritical: 15 * time.Minute,
}

// Verdict is the result of evaluating whether a decision needs a human.
type Verdict struct {
	Status   types.ApprovalStatus
	Deadline time.Time
}

func (x Verdict) Pending() bool {
	return x.Status == types.ApprovalPending
}

// Gate decides whether a remediation needs human approval and resolves
// callbacks against the approval deadline.
type Gate struct {
	windows map[types.Severity]time.Duration
}

type Option func(*Gate)

// WithWindow overrides the approval window for one severity.
func WithWindow(sev types.Severity, d time.Duration) Option {
	return func(g *Gate) {
		g.windows[sev] = d
	}
}

func New(opts ...Option) *Gate {
	g := &Gate{windows: make(map[types.Severity]time.Duration, len(DefaultWindows))}
	for k, v := range DefaultWindows {
		g.windows[k] = v
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func (g *Gate) Window(sev types.Severity) time.Duration {
	if d, ok := g.windows[sev]; ok {
		return d
	}
	return g.windows[types.SeverityInfo]
}

// Evaluate is a pure function of its arguments.
func (g *Gate) Evaluate(inc *incident.Incident, d *remediation.Decision, p *policy.Remediation, now time.Time) Verdict {
	if p != nil && p.ForcesApproval(d.Action) {
		return Verdict{
			Status:   types.ApprovalPending,
			Deadline: now.Add(g.Window(inc.Severity)),
		}
	}
	return Verdict{Status: types.ApprovalAuto}
}

// Resolve maps a callback onto the next approval state. ok is false when the
// incident is not waiting for approval, making the callback a no-op.
func (g *Gate) Resolve(inc *incident.Incident, action types.ApprovalAction, now time.Time) (types.ApprovalStatus, bool) {
	if inc.State != types.StateAwaitingApproval || inc.Approval == nil || inc.Approval.Status != types.ApprovalPending {
		return "", false
	}
	if !now.Before(inc.Approval.Deadline) {
		return types.ApprovalExpired, true
	}
	if action == types.ApprovalActionApprove {
		return types.ApprovalApproved, true
	}
	return types.ApprovalRejected, true
}

// Expired reports whether a pending approval is past its deadline.
func (g *Gate) Expired(inc *incident.Incident, now time.Time) bool {
	return inc.State == types.StateAwaitingApproval &&
		inc.Approval != nil &&
		!now.Before(inc.Approval.Deadline)
}

// NextState maps an approval outcome onto the incident state machine.
func NextState(status types.ApprovalStatus) types.IncidentState {
	switch status {
	case types.ApprovalAuto:
		return types.StateAutoApproved
	case types.ApprovalPending:
		return types.StateAwaitingApproval
	case types.ApprovalApproved:
		return types.StateApproved
	case types.ApprovalRejected:
		return types.StateRejected
	case types.ApprovalExpired:
		return types.StateExpired
	}
	return types.StateFailed
}

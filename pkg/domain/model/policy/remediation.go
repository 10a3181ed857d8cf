package policy

import (
	"slices"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/medic/pkg/domain/types"
)

// Remediation constrains what the decision engine may choose and when a human must
// confirm it.
type Remediation struct {
	RequiresApproval        bool               `json:"requires_approval" yaml:"requires_approval"`
	AllowedActions          []types.ActionName `json:"allowed_actions" yaml:"allowed_actions"`
	ApprovalRequiredActions []types.ActionName `json:"approval_required_actions" yaml:"approval_required_actions"`
	MaxImpact               int                `json:"max_impact" yaml:"max_impact"`
}

// Allows reports whether action may be selected at all. The no-op action is always
// allowed.
func (x *Remediation) Allows(action types.ActionName) bool {
	if action.IsNoop() {
		return true
	}
	return slices.Contains(x.AllowedActions, action)
}

func (x *Remediation) ForcesApproval(action types.ActionName) bool {
	return x.RequiresApproval || slices.Contains(x.ApprovalRequiredActions, action)
}

// WithinImpact reports whether impact is under the ceiling. Zero means no ceiling.
func (x *Remediation) WithinImpact(impact int) bool {
	return x.MaxImpact <= 0 || impact <= x.MaxImpact
}

func (x *Remediation) Validate() error {
	for _, a := range append(slices.Clone(x.AllowedActions), x.ApprovalRequiredActions...) {
		if !slices.Contains(types.KnownActions, a) {
			return goerr.New("unknown action in policy", goerr.V("action", a))
		}
	}
	if x.MaxImpact < 0 {
		return goerr.New("max_impact must not be negative", goerr.V("max_impact", x.MaxImpact))
	}
	return nil
}

// RemediationQuery is the input document handed to the policy engine.
type RemediationQuery struct {
	AlertName string            `json:"alert_name"`
	Project   string            `json:"project"`
	Target    string            `json:"target"`
	Severity  types.Severity    `json:"severity"`
	Labels    map[string]string `json:"labels"`
}

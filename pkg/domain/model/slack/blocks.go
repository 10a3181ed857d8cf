package slack

import "github.com/secmon-lab/medic/pkg/domain/types"

type ActionID string

func (id ActionID) String() string {
	return string(id)
}

const (
	ActionIDApprove ActionID = "medic_approve"
	ActionIDReject  ActionID = "medic_reject"
)

// ApprovalAction maps a button onto the approval callback it represents.
func (id ActionID) ApprovalAction() (types.ApprovalAction, bool) {
	switch id {
	case ActionIDApprove:
		return types.ApprovalActionApprove, true
	case ActionIDReject:
		return types.ApprovalActionReject, true
	}
	return "", false
}

const BlockIDApprovalActions = "medic_approval_actions"

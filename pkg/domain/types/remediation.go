package types

import (
	"github.com/google/uuid"
	"github.com/m-mizutani/goerr/v2"
)

// ActionName identifies a remediation runbook.
type ActionName string

const (
	ActionCleanupDisk        ActionName = "cleanup_disk"
	ActionRestartService     ActionName = "restart_service"
	ActionManualIntervention ActionName = "manual_intervention_required"
)

var KnownActions = []ActionName{
	ActionCleanupDisk,
	ActionRestartService,
}

func (x ActionName) String() string {
	return string(x)
}

// IsNoop reports whether the action must never reach the executor.
func (x ActionName) IsNoop() bool {
	return x == ActionManualIntervention
}

// ProbeName identifies one read-only diagnostic command.
type ProbeName string

const (
	ProbeDiskUsage       ProbeName = "disk_usage"
	ProbeProcessSnapshot ProbeName = "process_snapshot"
	ProbeLogTail         ProbeName = "log_tail"
	ProbeUptime          ProbeName = "uptime"
)

func (x ProbeName) String() string {
	return string(x)
}

type ApprovalStatus string

const (
	ApprovalAuto     ApprovalStatus = "auto_approved"
	ApprovalPending  ApprovalStatus = "pending_approval"
	ApprovalApproved ApprovalStatus = "approved"
	ApprovalRejected ApprovalStatus = "rejected"
	ApprovalExpired  ApprovalStatus = "expired"
)

func (x ApprovalStatus) String() string {
	return string(x)
}

// ApprovalAction is what a callback asks for.
type ApprovalAction string

const (
	ApprovalActionApprove ApprovalAction = "approve"
	ApprovalActionReject  ApprovalAction = "reject"
)

func (x ApprovalAction) Validate() error {
	switch x {
	case ApprovalActionApprove, ApprovalActionReject:
		return nil
	}
	return goerr.New("invalid approval action", goerr.V("action", x))
}

type DeadLetterID string

func (x DeadLetterID) String() string {
	return string(x)
}

func NewDeadLetterID() DeadLetterID {
	id, err := uuid.NewV7()
	if err != nil {
		panic(err)
	}
	return DeadLetterID(id.String())
}

type DeadLetterReason string

const (
	DeadLetterUnmappedAlert    DeadLetterReason = "UNMAPPED_ALERT"
	DeadLetterMalformedPayload DeadLetterReason = "MALFORMED_PAYLOAD"
	DeadLetterSystemError      DeadLetterReason = "SYSTEM_ERROR"
)

func (x DeadLetterReason) String() string {
	return string(x)
}

package remediation

import (
	"time"

	"github.com/secmon-lab/medic/pkg/domain/types"
)

const (
	ParamTargetDirectory = "target_directory"
	ParamDryRun          = "dry_run"
	ParamServiceName     = "service_name"
)

// Decision is the deterministic output of the rule table.
type Decision struct {
	Action types.ActionName  `json:"action"`
	Params map[string]string `json:"params"`
	Rule   string            `json:"rule"`
	Reason string            `json:"reason"`
}

func (x *Decision) RequiresHuman() bool {
	return x == nil || x.Action.IsNoop()
}

// actionImpact ranks how disruptive an action is. Policy ceilings compare against it.
var actionImpact = map[types.ActionName]int{
	types.ActionManualIntervention: 0,
	types.ActionCleanupDisk:        2,
	types.ActionRestartService:     3,
}

// Impact returns the disruption rank of action. Unknown actions rank highest.
func Impact(action types.ActionName) int {
	if v, ok := actionImpact[action]; ok {
		return v
	}
	return 10
}

type Result struct {
	Success    bool      `json:"success"`
	Log        string    `json:"log"`
	ExitCode   int       `json:"exit_code"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

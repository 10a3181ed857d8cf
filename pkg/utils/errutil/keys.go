package errutil

import (
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/medic/pkg/domain/types"
)

var (
	// IDs
	IncidentIDKey   = goerr.NewTypedKey[types.IncidentID]("incident_id")
	DeadLetterIDKey = goerr.NewTypedKey[types.DeadLetterID]("dead_letter_id")
	RequestIDKey    = goerr.NewTypedKey[string]("request_id")

	// Orchestration
	StateKey         = goerr.NewTypedKey[types.IncidentState]("state")
	ExpectedStateKey = goerr.NewTypedKey[types.IncidentState]("expected_state")
	NextStateKey     = goerr.NewTypedKey[types.IncidentState]("next_state")
	ActionKey        = goerr.NewTypedKey[types.ActionName]("action")
	ProbeKey         = goerr.NewTypedKey[types.ProbeName]("probe")
	TargetKey        = goerr.NewTypedKey[string]("target")
	ActorKey         = goerr.NewTypedKey[string]("actor")

	// Values
	ReasonKey     = goerr.NewTypedKey[string]("reason")
	RepositoryKey = goerr.NewTypedKey[string]("repository")
	CollectionKey = goerr.NewTypedKey[string]("collection")
	LimitKey      = goerr.NewTypedKey[int]("limit")
	DurationKey   = goerr.NewTypedKey[time.Duration]("duration")
	ExitCodeKey   = goerr.NewTypedKey[int]("exit_code")

	// External services
	ServiceKey  = goerr.NewTypedKey[string]("service")
	EndpointKey = goerr.NewTypedKey[string]("endpoint")
	FilePathKey = goerr.NewTypedKey[string]("file_path")
)

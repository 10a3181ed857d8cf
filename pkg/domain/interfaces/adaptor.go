package interfaces

import (
	"context"

	"github.com/m-mizutani/opaq"
	"github.com/secmon-lab/medic/pkg/domain/model/incident"
	"github.com/secmon-lab/medic/pkg/domain/model/remediation"
	"github.com/secmon-lab/medic/pkg/domain/types"
	"github.com/slack-go/slack"
)

type PolicyClient interface {
	Query(context.Context, string, any, any, ...opaq.QueryOption) error
	Sources() map[string]string
}

// DiagnosticsProvider runs one whitelisted read-only probe on a target. It only
// receives the probe name; mapping to a command is the provider's job.
type DiagnosticsProvider interface {
	RunProbe(ctx context.Context, target string, probe types.ProbeName) (string, error)
}

// ActionRunner executes a remediation action. A failed action is reported through
// Result.Success, the error return is reserved for failures to start.
type ActionRunner interface {
	Run(ctx context.Context, target string, action types.ActionName, params map[string]string) (*remediation.Result, error)
}

type SlackClient interface {
	PostMessageContext(ctx context.Context, channelID string, options ...slack.MsgOption) (string, string, error)
	UpdateMessageContext(ctx context.Context, channelID, timestamp string, options ...slack.MsgOption) (string, string, string, error)
}

// StorageClient keeps opaque objects such as execution archives.
type StorageClient interface {
	Put(ctx context.Context, object string, data []byte, contentType string) error
	Get(ctx context.Context, object string) ([]byte, error)
}

// ExecutionArchive records the full outcome of a finished execution.
type ExecutionArchive interface {
	SaveExecution(ctx context.Context, inc *incident.Incident) error
}

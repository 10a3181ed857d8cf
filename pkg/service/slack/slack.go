package slack

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/medic/pkg/domain/interfaces"
	"github.com/secmon-lab/medic/pkg/domain/model/alert"
	"github.com/secmon-lab/medic/pkg/domain/model/errs"
	"github.com/secmon-lab/medic/pkg/domain/model/incident"
	"github.com/secmon-lab/medic/pkg/domain/types"
	"github.com/slack-go/slack"
)

// Service posts incident messages to one Slack channel.
type Service struct {
	channelID string
	client    interfaces.SlackClient
}

func New(client interfaces.SlackClient, channelID string) *Service {
	return &Service{
		channelID: channelID,
		client:    client,
	}
}

// PostApprovalRequest posts approve and reject buttons for inc. Button values
// carry the approval references handed back on interaction.
func (x *Service) PostApprovalRequest(ctx context.Context, inc *incident.Incident, approveRef, rejectRef string) (string, error) {
	_, ts, err := x.client.PostMessageContext(ctx, x.channelID,
		slack.MsgOptionText(fmt.Sprintf("Approval required for %s on %s", inc.AlertName, inc.Target), false),
		slack.MsgOptionBlocks(buildApprovalBlocks(inc, approveRef, rejectRef)...),
	)
	if err != nil {
		return "", goerr.Wrap(err, "failed to post approval request",
			goerr.V("channel_id", x.channelID),
			goerr.V("incident_id", inc.ID),
			goerr.T(errs.TagSlackError))
	}
	return ts, nil
}

func (x *Service) PostTransition(ctx context.Context, inc *incident.Incident, from, to types.IncidentState) error {
	text := fmt.Sprintf("%s → %s  `%s` %s on %s", from.Label(), to.Label(), inc.ID, inc.AlertName, inc.Target)
	if inc.FailureReason != "" && to == types.StateFailed {
		text += "\n> " + inc.FailureReason
	}
	if _, _, err := x.client.PostMessageContext(ctx, x.channelID, slack.MsgOptionText(text, false)); err != nil {
		return goerr.Wrap(err, "failed to post transition",
			goerr.V("channel_id", x.channelID),
			goerr.V("incident_id", inc.ID),
			goerr.T(errs.TagSlackError))
	}
	return nil
}

func (x *Service) PostDeadLetter(ctx context.Context, dl *alert.DeadLetter) error {
	text := fmt.Sprintf("🪦 Dead letter `%s` (%s): %s", dl.ID, dl.Reason, dl.Detail)
	if _, _, err := x.client.PostMessageContext(ctx, x.channelID, slack.MsgOptionText(text, false)); err != nil {
		return goerr.Wrap(err, "failed to post dead letter",
			goerr.V("channel_id", x.channelID),
			goerr.T(errs.TagSlackError))
	}
	return nil
}

// UpdateApprovalResult replaces the buttons of an approval request once resolved.
func (x *Service) UpdateApprovalResult(ctx context.Context, channelID, ts string, inc *incident.Incident) error {
	blocks := buildApprovalResultBlocks(inc)
	if _, _, _, err := x.client.UpdateMessageContext(ctx, channelID, ts, slack.MsgOptionBlocks(blocks...)); err != nil {
		return goerr.Wrap(err, "failed to update approval message",
			goerr.V("channel_id", channelID),
			goerr.V("incident_id", inc.ID),
			goerr.T(errs.TagSlackError))
	}
	return nil
}

func shortenString(s string, maxLen int) string {
	if len([]rune(s)) <= maxLen {
		return s
	}
	return string([]rune(s)[:maxLen-3]) + "..."
}

func formatParams(params map[string]string) string {
	if len(params) == 0 {
		return "_none_"
	}
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	lines := make([]string, 0, len(keys))
	for _, k := range keys {
		lines = append(lines, fmt.Sprintf("`%s`=`%s`", k, params[k]))
	}
	return strings.Join(lines, ", ")
}

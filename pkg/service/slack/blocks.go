package slack

import (
	"fmt"
	"strings"

	"github.com/secmon-lab/medic/pkg/domain/model/incident"
	model "github.com/secmon-lab/medic/pkg/domain/model/slack"
	"github.com/slack-go/slack"
)

const summaryLimit = 2500

func buildApprovalBlocks(inc *incident.Incident, approveRef, rejectRef string) []slack.Block {
	lines := []string{
		"*ID:* `" + inc.ID.String() + "`",
		"*Target:* `" + inc.Target + "`",
		"*Project:* `" + inc.Project + "`",
		"*Severity:* `" + inc.Severity.String() + "`",
	}
	if inc.Approval != nil {
		lines = append(lines, fmt.Sprintf("*Deadline:* <!date^%d^{date_short_pretty} {time}|%s>",
			inc.Approval.Deadline.Unix(), inc.Approval.Deadline.UTC().Format("2006-01-02 15:04 MST")))
	}

	blocks := []slack.Block{
		slack.NewHeaderBlock(
			slack.NewTextBlockObject(slack.PlainTextType, shortenString("🛠️ "+inc.AlertName, 140), false, false),
		),
		slack.NewSectionBlock(
			slack.NewTextBlockObject(slack.MarkdownType, strings.Join(lines, "\n"), false, false),
			nil,
			nil,
		),
		slack.NewDividerBlock(),
	}

	if inc.Decision != nil {
		decision := fmt.Sprintf("*Action:* `%s` (rule `%s`)\n*Params:* %s\n*Reason:* %s",
			inc.Decision.Action, inc.Decision.Rule, formatParams(inc.Decision.Params), inc.Decision.Reason)
		blocks = append(blocks, slack.NewSectionBlock(
			slack.NewTextBlockObject(slack.MarkdownType, decision, false, false),
			nil,
			nil,
		))
	}

	if inc.Report != nil && inc.Report.Summary != "" {
		blocks = append(blocks, slack.NewSectionBlock(
			slack.NewTextBlockObject(slack.MarkdownType, "```"+shortenString(inc.Report.Summary, summaryLimit)+"```", false, false),
			nil,
			nil,
		))
	}

	blocks = append(blocks, slack.NewActionBlock(model.BlockIDApprovalActions,
		slack.NewButtonBlockElement(
			model.ActionIDApprove.String(),
			approveRef,
			slack.NewTextBlockObject(slack.PlainTextType, "Approve", false, false),
		).WithStyle(slack.StylePrimary),
		slack.NewButtonBlockElement(
			model.ActionIDReject.String(),
			rejectRef,
			slack.NewTextBlockObject(slack.PlainTextType, "Reject", false, false),
		).WithStyle(slack.StyleDanger),
	))

	return blocks
}

func buildApprovalResultBlocks(inc *incident.Incident) []slack.Block {
	actor := "system"
	if inc.Approval != nil && inc.Approval.Actor != "" {
		actor = inc.Approval.Actor
	}
	text := fmt.Sprintf("%s *%s* on `%s` by %s", inc.State.Label(), inc.AlertName, inc.Target, actor)
	return []slack.Block{
		slack.NewSectionBlock(
			slack.NewTextBlockObject(slack.MarkdownType, text, false, false),
			nil,
			nil,
		),
	}
}

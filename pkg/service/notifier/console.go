package notifier

import (
	"context"
	"fmt"
	"io"
	"sort"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/secmon-lab/medic/pkg/domain/event"
	"github.com/secmon-lab/medic/pkg/domain/interfaces"
)

// ConsoleNotifier is a console-based event notifier that outputs
// orchestration events to the console with color formatting.
// Useful for CLI mode and debugging.
type ConsoleNotifier struct {
	w io.Writer
}

func NewConsoleNotifierWithWriter(w io.Writer) interfaces.Notifier {
	return &ConsoleNotifier{w: w}
}

func (n *ConsoleNotifier) NotifyApprovalRequest(ctx context.Context, ev *event.ApprovalRequestEvent) error {
	yellow := color.New(color.FgYellow, color.Bold)
	white := color.New(color.FgWhite)

	inc := ev.Incident
	yellow.Fprintln(n.w, "Approval Required:")
	fmt.Fprintf(n.w, "  Incident: %s\n", inc.ID)
	fmt.Fprintf(n.w, "  Alert:    %s on %s (%s)\n", inc.AlertName, inc.Target, inc.Severity)
	if inc.Decision != nil {
		fmt.Fprintf(n.w, "  Action:   %s (rule %s)\n", inc.Decision.Action, inc.Decision.Rule)
		keys := make([]string, 0, len(inc.Decision.Params))
		for k := range inc.Decision.Params {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			white.Fprintf(n.w, "    %s=%s\n", k, inc.Decision.Params[k])
		}
	}
	if inc.Approval != nil {
		fmt.Fprintf(n.w, "  Deadline: %s (%s)\n",
			inc.Approval.Deadline.Format("2006-01-02 15:04:05 MST"),
			humanize.Time(inc.Approval.Deadline))
	}
	fmt.Fprintf(n.w, "  Approve:  %s\n", ev.ApproveRef)
	fmt.Fprintf(n.w, "  Reject:   %s\n\n", ev.RejectRef)
	return nil
}

func (n *ConsoleNotifier) NotifyTransition(ctx context.Context, ev *event.TransitionEvent) {
	c := color.New(color.FgCyan)
	if ev.To.IsTerminal() {
		c = color.New(color.FgGreen, color.Bold)
		if ev.Incident.FailureReason != "" {
			c = color.New(color.FgRed, color.Bold)
		}
	}
	c.Fprintf(n.w, "[%s] %s -> %s", ev.Incident.ID, ev.From, ev.To)
	if ev.Incident.FailureReason != "" && ev.To.IsTerminal() {
		fmt.Fprintf(n.w, " (%s)", ev.Incident.FailureReason)
	}
	fmt.Fprintln(n.w)
}

func (n *ConsoleNotifier) NotifyDeadLetter(ctx context.Context, ev *event.DeadLetterEvent) {
	red := color.New(color.FgRed, color.Bold)
	red.Fprint(n.w, "Dead Letter: ")
	fmt.Fprintf(n.w, "%s %s\n", ev.DeadLetter.Reason, ev.DeadLetter.Detail)
}

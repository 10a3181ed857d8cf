package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/medic/pkg/domain/model/incident"
	"github.com/secmon-lab/medic/pkg/service/notifier"
	"github.com/secmon-lab/medic/pkg/usecase"
	"github.com/secmon-lab/medic/pkg/utils/async"
	"github.com/secmon-lab/medic/pkg/utils/errutil"
	"github.com/secmon-lab/medic/pkg/utils/safe"
	"github.com/urfave/cli/v3"
)

func cmdAlert() *cli.Command {
	var (
		cfg       pipelineConfig
		inputFile string
	)

	flags := joinFlags(
		[]cli.Flag{
			&cli.StringFlag{
				Name:        "input",
				Aliases:     []string{"i"},
				Usage:       "Alertmanager webhook JSON file (default: stdin)",
				Destination: &inputFile,
			},
		},
		cfg.Flags(),
	)

	return &cli.Command{
		Name:  "alert",
		Usage: "Run an Alertmanager webhook payload through the pipeline in the foreground",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			body, err := readAlertData(inputFile)
			if err != nil {
				return err
			}

			ctx, p, err := cfg.build(async.WithSync(ctx), notifier.NewConsoleNotifierWithWriter(os.Stderr))
			if err != nil {
				return err
			}
			defer p.Close()

			return runAlert(ctx, os.Stdout, p.uc, body)
		},
	}
}

func readAlertData(inputFile string) ([]byte, error) {
	var reader io.Reader = os.Stdin

	if inputFile != "" {
		file, err := os.Open(filepath.Clean(inputFile))
		if err != nil {
			return nil, goerr.Wrap(err, "failed to open input file", goerr.TV(errutil.FilePathKey, inputFile))
		}
		defer safe.Close(context.Background(), file)
		reader = file
	}

	body, err := io.ReadAll(reader)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to read alert data")
	}
	return body, nil
}

// runAlert processes body synchronously and prints where every alert ended up.
func runAlert(ctx context.Context, w io.Writer, uc *usecase.UseCases, body []byte) error {
	result, err := uc.HandleAlerts(ctx, body)
	if err != nil {
		return err
	}

	// orchestration already ran in sync mode; reload to show final states
	var final []*incident.Incident
	for _, inc := range result.Created {
		got, err := uc.GetIncident(ctx, inc.ID)
		if err != nil {
			return err
		}
		final = append(final, got)
	}

	displayAlertsResult(w, final, result)
	return nil
}

func displayAlertsResult(w io.Writer, final []*incident.Incident, result *usecase.AlertsResult) {
	if len(final) == 0 && len(result.Deduplicated) == 0 && len(result.DeadLetters) == 0 {
		fmt.Fprintf(w, "No incidents created (skipped %d resolved alerts)\n", result.Skipped)
		return
	}

	for _, inc := range final {
		fmt.Fprintln(w, "INCIDENT")
		fmt.Fprintln(w, "─────────────────────────────────────────────────────────────────────────")
		fmt.Fprintf(w, "ID:        %s\n", inc.ID)
		fmt.Fprintf(w, "Alert:     %s\n", inc.AlertName)
		fmt.Fprintf(w, "Target:    %s\n", inc.Target)
		fmt.Fprintf(w, "Severity:  %s\n", inc.Severity)
		fmt.Fprintf(w, "State:     %s\n", inc.State)
		if inc.Decision != nil {
			fmt.Fprintf(w, "Action:    %s (%s)\n", inc.Decision.Action, inc.Decision.Reason)
		}
		if inc.FailureReason != "" {
			fmt.Fprintf(w, "Failure:   %s\n", inc.FailureReason)
		}
		for _, tr := range inc.History {
			fmt.Fprintf(w, "  • %s -> %s by %s\n", tr.From, tr.To, tr.Actor)
		}
		fmt.Fprintln(w)
	}

	for _, inc := range result.Deduplicated {
		fmt.Fprintf(w, "Deduplicated into %s (%s on %s, %s)\n", inc.ID, inc.AlertName, inc.Target, inc.State)
	}
	for _, dl := range result.DeadLetters {
		fmt.Fprintf(w, "Dead letter %s: %s %s\n", dl.ID, dl.Reason, dl.Detail)
	}
}

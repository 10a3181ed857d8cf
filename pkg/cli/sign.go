package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/medic/pkg/cli/config"
	"github.com/secmon-lab/medic/pkg/domain/model/errs"
	"github.com/secmon-lab/medic/pkg/domain/types"
	"github.com/secmon-lab/medic/pkg/service/approval"
	"github.com/urfave/cli/v3"
)

func cmdSign() *cli.Command {
	var (
		approvalCfg config.Approval
		incidentID  string
		action      string
		actor       string
		baseURL     string
	)

	flags := joinFlags(
		[]cli.Flag{
			&cli.StringFlag{
				Name:        "incident-id",
				Aliases:     []string{"i"},
				Usage:       "Incident to approve or reject",
				Required:    true,
				Destination: &incidentID,
			},
			&cli.StringFlag{
				Name:        "action",
				Usage:       "approve or reject",
				Value:       string(types.ApprovalActionApprove),
				Destination: &action,
			},
			&cli.StringFlag{
				Name:        "actor",
				Usage:       "Who is approving, recorded on the incident",
				Sources:     cli.EnvVars("USER"),
				Destination: &actor,
			},
			&cli.StringFlag{
				Name:        "url",
				Usage:       "Base URL of the medic server, prints a curl command when set",
				Sources:     cli.EnvVars("MEDIC_URL"),
				Destination: &baseURL,
			},
		},
		approvalCfg.Flags(),
	)

	return &cli.Command{
		Name:  "sign",
		Usage: "Produce a signed approval callback for an incident",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			signer, err := approvalCfg.Signer()
			if err != nil {
				return err
			}
			return signApproval(os.Stdout, signer, baseURL,
				types.IncidentID(incidentID), types.ApprovalAction(action), actor, time.Now())
		},
	}
}

type signedApproval struct {
	Action types.ApprovalAction `json:"action"`
	Actor  string               `json:"actor"`
}

func signApproval(w io.Writer, signer *approval.Signer, baseURL string, id types.IncidentID, action types.ApprovalAction, actor string, now time.Time) error {
	if err := id.Validate(); err != nil {
		return err
	}
	if err := action.Validate(); err != nil {
		return err
	}
	if actor == "" {
		return goerr.New("actor is required", goerr.T(errs.TagValidation))
	}

	body, err := json.Marshal(signedApproval{Action: action, Actor: actor})
	if err != nil {
		return goerr.Wrap(err, "failed to marshal approval body")
	}
	ts, sig := signer.Sign(id, body, now)

	if baseURL == "" {
		fmt.Fprintf(w, "%s: %s\n%s: %s\n\n%s\n", approval.HeaderTimestamp, ts, approval.HeaderSignature, sig, body)
		return nil
	}

	endpoint := strings.TrimSuffix(baseURL, "/") + "/hooks/approval/" + id.String()
	fmt.Fprintf(w, "curl -X POST -H 'Content-Type: application/json' -H '%s: %s' -H '%s: %s' -d '%s' %s\n",
		approval.HeaderTimestamp, ts, approval.HeaderSignature, sig, body, endpoint)
	return nil
}

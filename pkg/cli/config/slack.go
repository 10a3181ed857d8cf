package config

import (
	"log/slog"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/medic/pkg/domain/interfaces"
	model "github.com/secmon-lab/medic/pkg/domain/model/slack"
	"github.com/secmon-lab/medic/pkg/service/notifier"
	"github.com/secmon-lab/medic/pkg/service/slack"
	"github.com/urfave/cli/v3"

	sdk "github.com/slack-go/slack"
)

type Slack struct {
	oauthToken    string
	signingSecret string
	channelID     string
	rateEvery     time.Duration
	rateBurst     int
}

func (x *Slack) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "slack-oauth-token",
			Usage:       "Slack OAuth token",
			Category:    "Slack",
			Destination: &x.oauthToken,
			Sources:     cli.EnvVars("MEDIC_SLACK_OAUTH_TOKEN"),
		},
		&cli.StringFlag{
			Name:        "slack-signing-secret",
			Usage:       "Slack signing secret for interactive approval buttons",
			Category:    "Slack",
			Destination: &x.signingSecret,
			Sources:     cli.EnvVars("MEDIC_SLACK_SIGNING_SECRET"),
		},
		&cli.StringFlag{
			Name:        "slack-channel-id",
			Usage:       "Slack channel ID for approval requests and outcomes",
			Category:    "Slack",
			Destination: &x.channelID,
			Sources:     cli.EnvVars("MEDIC_SLACK_CHANNEL_ID"),
		},
		&cli.DurationFlag{
			Name:        "slack-rate-every",
			Usage:       "Minimum interval between Slack messages once the burst is spent",
			Category:    "Slack",
			Destination: &x.rateEvery,
			Sources:     cli.EnvVars("MEDIC_SLACK_RATE_EVERY"),
			Value:       time.Second,
		},
		&cli.IntFlag{
			Name:        "slack-rate-burst",
			Usage:       "Number of Slack messages allowed in a burst",
			Category:    "Slack",
			Destination: &x.rateBurst,
			Sources:     cli.EnvVars("MEDIC_SLACK_RATE_BURST"),
			Value:       5,
		},
	}
}

func (x Slack) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int("oauth-token.len", len(x.oauthToken)),
		slog.Int("signing-secret.len", len(x.signingSecret)),
		slog.String("channel-id", x.channelID),
		slog.Duration("rate-every", x.rateEvery),
		slog.Int("rate-burst", x.rateBurst),
	)
}

func (x *Slack) IsConfigured() bool {
	return x.oauthToken != ""
}

// Configure returns nil without error when no token is set.
func (x *Slack) Configure() (*slack.Service, error) {
	if !x.IsConfigured() {
		return nil, nil
	}
	if x.channelID == "" {
		return nil, goerr.New("slack-channel-id is required when slack-oauth-token is set")
	}

	return slack.New(sdk.New(x.oauthToken), x.channelID), nil
}

// Notifier wraps svc with the configured rate limit.
func (x *Slack) Notifier(svc *slack.Service) interfaces.Notifier {
	return notifier.NewThrottled(notifier.NewSlackNotifier(svc),
		notifier.WithRate(x.rateEvery, x.rateBurst),
	)
}

func (x *Slack) Verifier() model.PayloadVerifier {
	if x.signingSecret == "" {
		return nil
	}

	return model.NewPayloadVerifier(x.signingSecret)
}

package slack

import (
	"context"
	"net/http"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/medic/pkg/domain/model/errs"
	"github.com/slack-go/slack"
)

type PayloadVerifier func(ctx context.Context, header http.Header, payload []byte) error

// NewPayloadVerifier checks Slack request signatures (v0 HMAC over timestamp and
// body, five minute freshness) with slack-go's SecretsVerifier.
func NewPayloadVerifier(signingSecret string) PayloadVerifier {
	return func(ctx context.Context, header http.Header, payload []byte) error {
		verifier, err := slack.NewSecretsVerifier(header, signingSecret)
		if err != nil {
			return goerr.Wrap(err, "failed to create secrets verifier", goerr.T(errs.TagUnauthorized))
		}

		if _, err := verifier.Write(payload); err != nil {
			return goerr.Wrap(err, "failed to write request body to verifier", goerr.T(errs.TagUnauthorized))
		}

		if err := verifier.Ensure(); err != nil {
			return goerr.Wrap(err, "invalid slack signature", goerr.T(errs.TagUnauthorized))
		}

		return nil
	}
}

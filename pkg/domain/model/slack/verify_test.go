package slack_test

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strconv"
	"testing"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gt"
	"github.com/secmon-lab/medic/pkg/domain/model/errs"
	"github.com/secmon-lab/medic/pkg/domain/model/slack"
	"github.com/secmon-lab/medic/pkg/domain/types"
)

func signedHeader(secret string, body []byte, ts time.Time) http.Header {
	timestamp := strconv.FormatInt(ts.Unix(), 10)
	h := hmac.New(sha256.New, []byte(secret))
	h.Write([]byte("v0:" + timestamp + ":"))
	h.Write(body)

	header := http.Header{}
	header.Set("X-Slack-Request-Timestamp", timestamp)
	header.Set("X-Slack-Signature", "v0="+hex.EncodeToString(h.Sum(nil)))
	return header
}

func TestPayloadVerifier(t *testing.T) {
	body := []byte("payload=%7B%7D")
	verify := slack.NewPayloadVerifier("signing-secret")

	t.Run("valid", func(t *testing.T) {
		gt.NoError(t, verify(t.Context(), signedHeader("signing-secret", body, time.Now()), body))
	})

	t.Run("wrong secret", func(t *testing.T) {
		err := verify(t.Context(), signedHeader("other", body, time.Now()), body)
		gt.True(t, goerr.HasTag(err, errs.TagUnauthorized))
	})

	t.Run("stale", func(t *testing.T) {
		err := verify(t.Context(), signedHeader("signing-secret", body, time.Now().Add(-10*time.Minute)), body)
		gt.Error(t, err)
	})
}

func TestActionID(t *testing.T) {
	a, ok := slack.ActionIDApprove.ApprovalAction()
	gt.True(t, ok)
	gt.Equal(t, a, types.ApprovalActionApprove)

	_, ok = slack.ActionID("other").ApprovalAction()
	gt.False(t, ok)
}

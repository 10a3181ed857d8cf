package approval

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/medic/pkg/domain/model/errs"
	"github.com/secmon-lab/medic/pkg/domain/types"
)

const (
	HeaderTimestamp = "X-Medic-Request-Timestamp"
	HeaderSignature = "X-Medic-Signature"

	signatureVersion = "v0"

	// DefaultTolerance is how far a request timestamp may drift from now.
	DefaultTolerance = 5 * time.Minute
)

// Signer produces callback signatures with the same shared secret the Verifier
// checks.
type Signer struct {
	secret []byte
}

func NewSigner(secret string) *Signer {
	return &Signer{secret: []byte(secret)}
}

// Sign returns the timestamp and signature header values for an approval body
// addressed to incident id. A signature is only valid for that incident.
func (x *Signer) Sign(id types.IncidentID, body []byte, now time.Time) (string, string) {
	ts := strconv.FormatInt(now.Unix(), 10)
	return ts, signatureVersion + "=" + hex.EncodeToString(mac(x.secret, ts, id, body))
}

// SignRequest sets both signature headers on req.
func (x *Signer) SignRequest(req *http.Request, id types.IncidentID, body []byte, now time.Time) {
	ts, sig := x.Sign(id, body, now)
	req.Header.Set(HeaderTimestamp, ts)
	req.Header.Set(HeaderSignature, sig)
}

type Verifier struct {
	secret    []byte
	tolerance time.Duration
}

type VerifierOption func(*Verifier)

func WithTolerance(d time.Duration) VerifierOption {
	return func(v *Verifier) {
		v.tolerance = d
	}
}

func NewVerifier(secret string, opts ...VerifierOption) *Verifier {
	v := &Verifier{secret: []byte(secret), tolerance: DefaultTolerance}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Verify checks header values against body and the incident the request is
// addressed to. Every failure is tagged errs.TagUnauthorized.
func (x *Verifier) Verify(timestamp, signature string, id types.IncidentID, body []byte, now time.Time) error {
	if timestamp == "" || signature == "" {
		return goerr.New("missing signature headers", goerr.T(errs.TagUnauthorized))
	}

	sec, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return goerr.Wrap(err, "invalid signature timestamp",
			goerr.V("timestamp", timestamp),
			goerr.T(errs.TagUnauthorized))
	}
	drift := now.Sub(time.Unix(sec, 0))
	if drift > x.tolerance || drift < -x.tolerance {
		return goerr.New("stale signature timestamp",
			goerr.V("timestamp", timestamp),
			goerr.V("drift", drift.String()),
			goerr.T(errs.TagUnauthorized))
	}

	version, encoded, ok := strings.Cut(signature, "=")
	if !ok || version != signatureVersion {
		return goerr.New("unsupported signature version", goerr.T(errs.TagUnauthorized))
	}
	got, err := hex.DecodeString(encoded)
	if err != nil {
		return goerr.Wrap(err, "malformed signature", goerr.T(errs.TagUnauthorized))
	}

	if !hmac.Equal(got, mac(x.secret, timestamp, id, body)) {
		return goerr.New("signature mismatch", goerr.T(errs.TagUnauthorized), goerr.V("incident_id", id))
	}
	return nil
}

// VerifyRequest reads the signature headers from header and checks body.
func (x *Verifier) VerifyRequest(header http.Header, id types.IncidentID, body []byte, now time.Time) error {
	return x.Verify(header.Get(HeaderTimestamp), header.Get(HeaderSignature), id, body, now)
}

// mac covers "v0:<timestamp>:<incident_id>:<body>".
func mac(secret []byte, timestamp string, id types.IncidentID, body []byte) []byte {
	h := hmac.New(sha256.New, secret)
	h.Write([]byte(signatureVersion + ":" + timestamp + ":" + id.String() + ":"))
	h.Write(body)
	return h.Sum(nil)
}

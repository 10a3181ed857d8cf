package http

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"runtime/debug"

	"github.com/go-chi/chi/v5"
	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/medic/pkg/domain/interfaces"
	"github.com/secmon-lab/medic/pkg/domain/model/errs"
	"github.com/secmon-lab/medic/pkg/domain/model/slack"
	"github.com/secmon-lab/medic/pkg/domain/types"
	"github.com/secmon-lab/medic/pkg/service/approval"
	"github.com/secmon-lab/medic/pkg/utils/clock"
	"github.com/secmon-lab/medic/pkg/utils/logging"
)

// maxBodySize bounds every webhook body read into memory.
const maxBodySize = 4 << 20

func readBody(r *http.Request) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		return nil, goerr.Wrap(err, "failed to read request body", goerr.T(errs.TagValidation))
	}
	r.Body = io.NopCloser(bytes.NewBuffer(body))
	return body, nil
}

func verifySlackRequest(verifier slack.PayloadVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if verifier == nil {
				handleError(w, r, goerr.New("slack signing secret is not configured", goerr.T(errs.TagUnauthorized)))
				return
			}

			body, err := readBody(r)
			if err != nil {
				handleError(w, r, err)
				return
			}

			if err := verifier(r.Context(), r.Header, body); err != nil {
				handleError(w, r, goerr.Wrap(err, "failed to verify slack request", goerr.T(errs.TagUnauthorized)))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// verifyApprovalRequest checks the callback signature, which covers the
// incident ID of the path. It must be mounted on the route itself.
func verifyApprovalRequest(verifier *approval.Verifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if verifier == nil {
				handleError(w, r, goerr.New("approval signing secret is not configured", goerr.T(errs.TagUnauthorized)))
				return
			}

			body, err := readBody(r)
			if err != nil {
				handleError(w, r, err)
				return
			}

			id := types.IncidentID(chi.URLParam(r, "incident_id"))
			if err := verifier.VerifyRequest(r.Header, id, body, clock.Now(r.Context())); err != nil {
				handleError(w, r, err)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func panicRecoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				panicErr := goerr.New("panic recovered",
					goerr.V("panic", fmt.Sprintf("%v", err)),
					goerr.V("debug_stack", string(debug.Stack())),
					goerr.V("method", r.Method),
					goerr.V("path", r.URL.Path),
				)

				handleError(w, r, panicErr)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// authInput is the document evaluated by the "data.auth" policy.
type authInput struct {
	Method string              `json:"method"`
	Path   string              `json:"path"`
	Remote string              `json:"remote"`
	Header map[string][]string `json:"header"`
}

func buildAuthInput(r *http.Request) *authInput {
	header := make(map[string][]string, len(r.Header))
	for k, v := range r.Header {
		header[k] = v
	}
	return &authInput{
		Method: r.Method,
		Path:   r.URL.Path,
		Remote: r.RemoteAddr,
		Header: header,
	}
}

func authorizeWithPolicy(policy interfaces.PolicyClient, noAuthorization bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if noAuthorization {
				logging.From(r.Context()).Debug("authorization check bypassed due to --no-authorization flag")
				next.ServeHTTP(w, r)
				return
			}

			if policy == nil {
				handleError(w, r, goerr.New("no authorization policy configured", goerr.T(errs.TagForbidden)))
				return
			}

			var result struct {
				Allow bool `json:"allow"`
			}

			ctx := r.Context()
			input := buildAuthInput(r)
			if err := policy.Query(ctx, "data.auth", input, &result); err != nil {
				handleError(w, r, goerr.Wrap(err, "failed to authorize request", goerr.T(errs.TagPolicyError)))
				return
			}

			logging.From(ctx).Debug("authorization result", "method", input.Method, "path", input.Path, "allow", result.Allow)

			if !result.Allow {
				handleError(w, r, goerr.New("request denied by policy", goerr.T(errs.TagForbidden), goerr.V("path", input.Path)))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

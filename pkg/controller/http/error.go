package http

import (
	"log/slog"
	"net/http"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/medic/pkg/domain/model/errs"
	"github.com/secmon-lab/medic/pkg/utils/logging"
	"github.com/secmon-lab/medic/pkg/utils/request_id"
	"github.com/secmon-lab/medic/pkg/utils/safe"
)

type errorResponse struct {
	Error     string `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}

// errorStatus is how a failed request is answered. An empty message means
// err.Error() is returned. Reported errors go to Sentry through errs.Handle.
type errorStatus struct {
	code    int
	message string
	report  bool
}

func classifyError(err error) errorStatus {
	switch {
	case goerr.HasTag(err, errs.TagNotFound):
		return errorStatus{code: http.StatusNotFound}
	case goerr.HasTag(err, errs.TagValidation):
		return errorStatus{code: http.StatusBadRequest}
	case goerr.HasTag(err, errs.TagUnauthorized):
		return errorStatus{code: http.StatusUnauthorized, message: "unauthorized"}
	case goerr.HasTag(err, errs.TagForbidden):
		return errorStatus{code: http.StatusForbidden}
	case goerr.HasTag(err, errs.TagConflict), goerr.HasTag(err, errs.TagInvalidState):
		return errorStatus{code: http.StatusConflict}
	case goerr.HasTag(err, errs.TagRateLimit):
		return errorStatus{code: http.StatusTooManyRequests}
	case goerr.HasTag(err, errs.TagExternal), goerr.HasTag(err, errs.TagUnreachable):
		return errorStatus{code: http.StatusBadGateway}
	case goerr.HasTag(err, errs.TagTimeout):
		return errorStatus{code: http.StatusGatewayTimeout}
	case goerr.HasTag(err, errs.TagDatabase):
		return errorStatus{code: http.StatusServiceUnavailable, message: "incident store unavailable", report: true}
	default:
		return errorStatus{code: http.StatusInternalServerError, message: "internal server error", report: true}
	}
}

func handleError(w http.ResponseWriter, r *http.Request, err error) {
	ctx := r.Context()
	st := classifyError(err)
	message := st.message
	if message == "" {
		message = err.Error()
	}

	switch {
	case st.report:
		errs.Handle(ctx, err)
	case st.code >= http.StatusInternalServerError:
		logging.From(ctx).Error("upstream failure", logging.ErrAttr(err), slog.Int("status", st.code))
	default:
		logging.From(ctx).Warn("request rejected", logging.ErrAttr(err), slog.Int("status", st.code))
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(st.code)
	safe.EncodeJSON(ctx, w, errorResponse{Error: message, RequestID: request_id.FromContext(ctx)})
}

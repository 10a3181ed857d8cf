package http

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/medic/pkg/domain/model/errs"
	"github.com/secmon-lab/medic/pkg/domain/types"
	"github.com/secmon-lab/medic/pkg/utils/safe"
)

type approvalRequest struct {
	Action types.ApprovalAction `json:"action"`
	Actor  string               `json:"actor"`
}

type incidentStateResponse struct {
	IncidentID string              `json:"incident_id"`
	State      types.IncidentState `json:"state"`
}

func approvalHandler(uc UseCase) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := types.IncidentID(chi.URLParam(r, "incident_id"))
		if err := id.Validate(); err != nil {
			handleError(w, r, goerr.Wrap(err, "invalid incident ID", goerr.T(errs.TagValidation)))
			return
		}

		body, err := readBody(r)
		if err != nil {
			handleError(w, r, err)
			return
		}

		var req approvalRequest
		if err := json.Unmarshal(body, &req); err != nil {
			handleError(w, r, goerr.Wrap(err, "failed to decode approval request",
				goerr.T(errs.TagValidation),
				goerr.V("body", string(body)),
			))
			return
		}

		inc, err := uc.HandleApproval(r.Context(), id, req.Action, req.Actor)
		if err != nil {
			handleError(w, r, err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		safe.EncodeJSON(r.Context(), w, incidentStateResponse{
			IncidentID: inc.ID.String(),
			State:      inc.State,
		})
	}
}

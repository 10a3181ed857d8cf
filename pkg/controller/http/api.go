package http

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/medic/pkg/domain/model/errs"
	"github.com/secmon-lab/medic/pkg/domain/types"
	"github.com/secmon-lab/medic/pkg/utils/safe"
)

func parseLimit(r *http.Request) (int, error) {
	v := r.URL.Query().Get("limit")
	if v == "" {
		return 0, nil
	}
	limit, err := strconv.Atoi(v)
	if err != nil {
		return 0, goerr.Wrap(err, "invalid limit", goerr.T(errs.TagValidation), goerr.V("limit", v))
	}
	return limit, nil
}

func writeJSON(w http.ResponseWriter, r *http.Request, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	safe.EncodeJSON(r.Context(), w, v)
}

func getIncidentHandler(uc UseCase) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := types.IncidentID(chi.URLParam(r, "incident_id"))

		inc, err := uc.GetIncident(r.Context(), id)
		if err != nil {
			handleError(w, r, err)
			return
		}
		writeJSON(w, r, inc)
	}
}

func listIncidentsHandler(uc UseCase) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		state := types.IncidentState(r.URL.Query().Get("state"))
		if state == "" {
			state = types.StateAwaitingApproval
		}
		limit, err := parseLimit(r)
		if err != nil {
			handleError(w, r, err)
			return
		}

		incidents, err := uc.ListIncidents(r.Context(), state, limit)
		if err != nil {
			handleError(w, r, err)
			return
		}
		writeJSON(w, r, map[string]any{"incidents": incidents})
	}
}

func listDeadLettersHandler(uc UseCase) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit, err := parseLimit(r)
		if err != nil {
			handleError(w, r, err)
			return
		}

		deadLetters, err := uc.ListDeadLetters(r.Context(), limit)
		if err != nil {
			handleError(w, r, err)
			return
		}
		writeJSON(w, r, map[string]any{"dead_letters": deadLetters})
	}
}

package http

import (
	"net/http"

	"github.com/secmon-lab/medic/pkg/utils/logging"
	"github.com/secmon-lab/medic/pkg/utils/safe"
)

type alertResponse struct {
	Status       string   `json:"status"`
	Incidents    []string `json:"incidents,omitempty"`
	Deduplicated []string `json:"deduplicated,omitempty"`
	DeadLetters  []string `json:"dead_letters,omitempty"`
}

// alertHandler accepts an Alertmanager webhook. Every payload problem is
// answered with 202 and recorded as a dead letter; only a failing incident
// store is reported so that Alertmanager retries.
func alertHandler(uc UseCase) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := readBody(r)
		if err != nil {
			// Unreadable bodies are handed over as empty, which dead-letters them.
			logging.From(r.Context()).Warn("failed to read alert body", "error", err)
			body = nil
		}

		result, err := uc.HandleAlerts(r.Context(), body)
		if err != nil {
			handleError(w, r, err)
			return
		}

		resp := alertResponse{Status: "accepted"}
		for _, inc := range result.Created {
			resp.Incidents = append(resp.Incidents, inc.ID.String())
		}
		for _, inc := range result.Deduplicated {
			resp.Deduplicated = append(resp.Deduplicated, inc.ID.String())
		}
		for _, dl := range result.DeadLetters {
			resp.DeadLetters = append(resp.DeadLetters, dl.ID.String())
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusAccepted)
		safe.EncodeJSON(r.Context(), w, resp)
	}
}

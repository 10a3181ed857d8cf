package http

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/secmon-lab/medic/pkg/domain/interfaces"
	"github.com/secmon-lab/medic/pkg/domain/model/alert"
	"github.com/secmon-lab/medic/pkg/domain/model/incident"
	slack_model "github.com/secmon-lab/medic/pkg/domain/model/slack"
	"github.com/secmon-lab/medic/pkg/domain/types"
	"github.com/secmon-lab/medic/pkg/service/approval"
	"github.com/secmon-lab/medic/pkg/usecase"
	"github.com/slack-go/slack"
)

type UseCase interface {
	HandleAlerts(ctx context.Context, body []byte) (*usecase.AlertsResult, error)
	HandleApproval(ctx context.Context, id types.IncidentID, action types.ApprovalAction, actor string) (*incident.Incident, error)
	HandleSlackInteraction(ctx context.Context, callback *slack.InteractionCallback) error
	GetIncident(ctx context.Context, id types.IncidentID) (*incident.Incident, error)
	ListIncidents(ctx context.Context, state types.IncidentState, limit int) ([]*incident.Incident, error)
	ListDeadLetters(ctx context.Context, limit int) ([]*alert.DeadLetter, error)
}

var _ UseCase = &usecase.UseCases{}

type Server struct {
	router           *chi.Mux
	slackVerifier    slack_model.PayloadVerifier
	approvalVerifier *approval.Verifier
	policy           interfaces.PolicyClient
	noAuthorization  bool
}

type Options func(*Server)

func WithSlackVerifier(verifier slack_model.PayloadVerifier) Options {
	return func(s *Server) {
		s.slackVerifier = verifier
	}
}

// WithApprovalVerifier enables the signed approval callback endpoint. Without
// it the endpoint rejects every request.
func WithApprovalVerifier(verifier *approval.Verifier) Options {
	return func(s *Server) {
		s.approvalVerifier = verifier
	}
}

// WithPolicy authorizes /api requests with the "data.auth" Rego package.
func WithPolicy(policy interfaces.PolicyClient) Options {
	return func(s *Server) {
		s.policy = policy
	}
}

func WithNoAuthorization(disabled bool) Options {
	return func(s *Server) {
		s.noAuthorization = disabled
	}
}

func New(uc UseCase, opts ...Options) *Server {
	r := chi.NewRouter()

	s := &Server{router: r}
	for _, opt := range opts {
		opt(s)
	}

	r.Use(loggingMiddleware)
	r.Use(panicRecoveryMiddleware)

	r.Get("/health", healthHandler)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/hooks", func(r chi.Router) {
		r.Post("/alert", alertHandler(uc))

		// verification runs after routing so the signature can be checked
		// against the incident in the path
		r.With(verifyApprovalRequest(s.approvalVerifier)).
			Post("/approval/{incident_id}", approvalHandler(uc))

		r.Route("/slack", func(r chi.Router) {
			r.Use(verifySlackRequest(s.slackVerifier))
			r.Post("/interaction", slackInteractionHandler(uc))
		})
	})

	r.Route("/api", func(r chi.Router) {
		r.Use(authorizeWithPolicy(s.policy, s.noAuthorization))
		r.Get("/incidents", listIncidentsHandler(uc))
		r.Get("/incidents/{incident_id}", getIncidentHandler(uc))
		r.Get("/dead_letters", listDeadLettersHandler(uc))
	})

	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

package alert

import (
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/medic/pkg/domain/types"
)

// StatusResolved marks an Alertmanager notification that an alert cleared.
const StatusResolved = "resolved"

const (
	LabelAlertName = "alertname"
	LabelSeverity  = "severity"
	LabelTargetID  = "target_id"
	LabelTarget    = "target"
	LabelInstance  = "instance"
	LabelProjectID = "project_id"
	LabelProject   = "project"
	LabelService   = "service"
)

// WebhookPayload is the body Alertmanager posts to a webhook receiver.
type WebhookPayload struct {
	Version           string            `json:"version"`
	GroupKey          string            `json:"groupKey"`
	Status            string            `json:"status"`
	Receiver          string            `json:"receiver"`
	GroupLabels       map[string]string `json:"groupLabels"`
	CommonLabels      map[string]string `json:"commonLabels"`
	CommonAnnotations map[string]string `json:"commonAnnotations"`
	ExternalURL       string            `json:"externalURL"`
	Alerts            []WebhookAlert    `json:"alerts"`
}

type WebhookAlert struct {
	Status       string            `json:"status"`
	Labels       map[string]string `json:"labels"`
	Annotations  map[string]string `json:"annotations"`
	StartsAt     time.Time         `json:"startsAt"`
	EndsAt       time.Time         `json:"endsAt"`
	GeneratorURL string            `json:"generatorURL"`
	Fingerprint  string            `json:"fingerprint"`
}

func (x *WebhookPayload) Validate() error {
	if len(x.Alerts) == 0 {
		return goerr.New("no alerts in payload")
	}
	return nil
}

// Raws splits the grouped payload into one Raw per alert. Group-wide labels and
// annotations are used as defaults and the per-alert values win on conflict.
func (x *WebhookPayload) Raws() []Raw {
	raws := make([]Raw, 0, len(x.Alerts))
	for _, a := range x.Alerts {
		raws = append(raws, Raw{
			Status:      a.Status,
			Labels:      merge(x.CommonLabels, a.Labels),
			Annotations: merge(x.CommonAnnotations, a.Annotations),
			StartsAt:    a.StartsAt,
			Fingerprint: a.Fingerprint,
			Payload: map[string]any{
				"status":       a.Status,
				"labels":       a.Labels,
				"annotations":  a.Annotations,
				"startsAt":     a.StartsAt,
				"generatorURL": a.GeneratorURL,
				"fingerprint":  a.Fingerprint,
				"receiver":     x.Receiver,
			},
		})
	}
	return raws
}

func merge(base, override map[string]string) map[string]string {
	out := make(map[string]string, len(base)+len(override))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range override {
		out[k] = v
	}
	return out
}

// Raw is a single alert as received, before any mapping.
type Raw struct {
	Status      string            `json:"status"`
	Labels      map[string]string `json:"labels"`
	Annotations map[string]string `json:"annotations"`
	StartsAt    time.Time         `json:"starts_at"`
	Fingerprint string            `json:"fingerprint"`
	Payload     map[string]any    `json:"payload"`
}

// Normalized is an alert whose routing fields have all been resolved.
type Normalized struct {
	AlertName   string            `json:"alert_name"`
	Target      string            `json:"target"`
	Project     string            `json:"project"`
	Severity    types.Severity    `json:"severity"`
	Labels      map[string]string `json:"labels"`
	Annotations map[string]string `json:"annotations"`
	StartsAt    time.Time         `json:"starts_at"`
	Payload     map[string]any    `json:"payload"`
}

// DeadLetter records an input that could not become an incident. Dead letters are
// append-only.
type DeadLetter struct {
	ID        types.DeadLetterID     `json:"id"`
	Reason    types.DeadLetterReason `json:"reason"`
	Detail    string                 `json:"detail"`
	Payload   map[string]any         `json:"payload"`
	CreatedAt time.Time              `json:"created_at"`
}

func NewDeadLetter(reason types.DeadLetterReason, detail string, payload map[string]any, now time.Time) *DeadLetter {
	return &DeadLetter{
		ID:        types.NewDeadLetterID(),
		Reason:    reason,
		Detail:    detail,
		Payload:   payload,
		CreatedAt: now,
	}
}

package usecase

import (
	"context"
	"encoding/json"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/medic/pkg/domain/event"
	"github.com/secmon-lab/medic/pkg/domain/model/alert"
	"github.com/secmon-lab/medic/pkg/domain/model/incident"
	"github.com/secmon-lab/medic/pkg/domain/types"
	"github.com/secmon-lab/medic/pkg/service/normalizer"
	"github.com/secmon-lab/medic/pkg/utils/async"
	"github.com/secmon-lab/medic/pkg/utils/clock"
	"github.com/secmon-lab/medic/pkg/utils/errutil"
	"github.com/secmon-lab/medic/pkg/utils/logging"
	"github.com/secmon-lab/medic/pkg/utils/metrics"
)

// AlertsResult reports what one webhook delivery turned into.
type AlertsResult struct {
	// Created incidents, whose orchestration has been dispatched
	Created []*incident.Incident
	// Deduplicated alerts, resolved to the incident that already owns them
	Deduplicated []*incident.Incident
	DeadLetters  []*alert.DeadLetter
	// Skipped counts alerts in resolved status
	Skipped int
}

// HandleAlerts ingests one Alertmanager webhook body. Malformed or unmappable
// input is recorded as a dead letter and never returned as an error; only a
// failing incident store is.
func (uc *UseCases) HandleAlerts(ctx context.Context, body []byte) (*AlertsResult, error) {
	logger := logging.From(ctx)
	now := clock.Now(ctx)
	result := &AlertsResult{}

	payload, err := decodePayload(body)
	if err != nil {
		metrics.AlertReceived("malformed")
		dl := alert.NewDeadLetter(types.DeadLetterMalformedPayload, err.Error(), map[string]any{"body": string(body)}, now)
		if err := uc.putDeadLetter(ctx, dl); err != nil {
			return nil, err
		}
		result.DeadLetters = append(result.DeadLetters, dl)
		return result, nil
	}

	for _, raw := range payload.Raws() {
		if raw.Status == alert.StatusResolved {
			logger.Debug("skipping resolved alert", "fingerprint", raw.Fingerprint)
			metrics.AlertReceived("resolved")
			result.Skipped++
			continue
		}

		normalized, dl := normalizer.Normalize(raw)
		if dl != nil {
			metrics.AlertReceived("unmapped")
			dl.ID = types.NewDeadLetterID()
			dl.CreatedAt = now
			if err := uc.putDeadLetter(ctx, dl); err != nil {
				return nil, err
			}
			result.DeadLetters = append(result.DeadLetters, dl)
			continue
		}

		inc, created, err := uc.repository.CreateOrGetIncident(ctx,
			incident.IdentityOf(normalized, uc.dedupWindow),
			func() *incident.Incident { return incident.New(normalized, now) },
		)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to register incident",
				goerr.TV(errutil.TargetKey, normalized.Target),
				goerr.V("alert_name", normalized.AlertName))
		}

		if !created {
			metrics.AlertReceived("deduplicated")
			logger.Info("alert deduplicated into open incident",
				"incident_id", inc.ID,
				"state", inc.State,
				"alert_name", normalized.AlertName,
				"target", normalized.Target,
			)
			result.Deduplicated = append(result.Deduplicated, inc)
			continue
		}

		metrics.AlertReceived("created")
		logger.Info("incident created",
			"incident_id", inc.ID,
			"alert_name", inc.AlertName,
			"target", inc.Target,
			"severity", inc.Severity,
		)
		result.Created = append(result.Created, inc)

		id := inc.ID
		async.Dispatch(ctx, func(ctx context.Context) error {
			return uc.RunIncident(ctx, id)
		})
	}

	return result, nil
}

func decodePayload(body []byte) (*alert.WebhookPayload, error) {
	var payload alert.WebhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, goerr.Wrap(err, "invalid JSON")
	}
	if err := payload.Validate(); err != nil {
		return nil, err
	}
	return &payload, nil
}

func (uc *UseCases) putDeadLetter(ctx context.Context, dl *alert.DeadLetter) error {
	if err := uc.repository.PutDeadLetter(ctx, dl); err != nil {
		return goerr.Wrap(err, "failed to store dead letter",
			goerr.TV(errutil.DeadLetterIDKey, dl.ID),
			goerr.V("reason", dl.Reason))
	}

	logging.From(ctx).Warn("alert dead-lettered",
		"dead_letter_id", dl.ID,
		"reason", dl.Reason,
		"detail", dl.Detail,
	)
	metrics.DeadLetter(dl.Reason)
	uc.notifier.NotifyDeadLetter(ctx, &event.DeadLetterEvent{DeadLetter: dl})
	return nil
}

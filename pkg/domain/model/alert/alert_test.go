package alert_test

import (
	"testing"

	"github.com/m-mizutani/gt"
	"github.com/secmon-lab/medic/pkg/domain/model/alert"
)

func TestWebhookPayloadRaws(t *testing.T) {
	payload := alert.WebhookPayload{
		Receiver:     "medic",
		CommonLabels: map[string]string{"project_id": "prj-a", "severity": "warning"},
		Alerts: []alert.WebhookAlert{
			{Labels: map[string]string{"alertname": "DiskFull", "instance": "web-1", "severity": "critical"}},
			{Labels: map[string]string{"alertname": "HighLoad", "instance": "web-2"}},
		},
	}

	raws := payload.Raws()
	gt.A(t, raws).Length(2)

	t.Run("per alert label wins", func(t *testing.T) {
		gt.Equal(t, raws[0].Labels["severity"], "critical")
		gt.Equal(t, raws[0].Labels["project_id"], "prj-a")
	})

	t.Run("common label fills gaps", func(t *testing.T) {
		gt.Equal(t, raws[1].Labels["severity"], "warning")
		gt.Equal(t, raws[1].Payload["receiver"], any("medic"))
	})

	t.Run("common labels are not mutated", func(t *testing.T) {
		gt.Equal(t, payload.CommonLabels["severity"], "warning")
		gt.Equal(t, len(payload.CommonLabels), 2)
	})
}

func TestWebhookPayloadValidate(t *testing.T) {
	gt.Error(t, (&alert.WebhookPayload{}).Validate())
	gt.NoError(t, (&alert.WebhookPayload{Alerts: []alert.WebhookAlert{{}}}).Validate())
}

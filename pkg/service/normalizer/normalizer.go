package normalizer

import (
	"maps"
	"strings"

	"github.com/secmon-lab/medic/pkg/domain/model/alert"
	"github.com/secmon-lab/medic/pkg/domain/types"
)

var (
	targetLabels  = []string{alert.LabelTargetID, alert.LabelTarget, alert.LabelInstance}
	projectLabels = []string{alert.LabelProjectID, alert.LabelProject}
)

// Normalize resolves routing fields of raw. Exactly one of the results is non-nil.
// A dead letter is returned without ID or timestamp; the caller stamps it when
// persisting. Normalize performs no dedup and no I/O.
func Normalize(raw alert.Raw) (*alert.Normalized, *alert.DeadLetter) {
	var missing []string

	name := strings.TrimSpace(raw.Labels[alert.LabelAlertName])
	if name == "" {
		missing = append(missing, alert.LabelAlertName)
	}

	target := firstLabel(raw.Labels, targetLabels)
	if target == "" {
		missing = append(missing, strings.Join(targetLabels, "|"))
	}

	project := firstLabel(raw.Labels, projectLabels)
	if project == "" {
		missing = append(missing, strings.Join(projectLabels, "|"))
	}

	if len(missing) > 0 {
		return nil, &alert.DeadLetter{
			Reason:  types.DeadLetterUnmappedAlert,
			Detail:  "missing label: " + strings.Join(missing, ", "),
			Payload: payloadOf(raw),
		}
	}

	return &alert.Normalized{
		AlertName:   name,
		Target:      target,
		Project:     project,
		Severity:    types.ParseSeverity(strings.ToLower(strings.TrimSpace(raw.Labels[alert.LabelSeverity]))),
		Labels:      maps.Clone(raw.Labels),
		Annotations: maps.Clone(raw.Annotations),
		StartsAt:    raw.StartsAt,
		Payload:     payloadOf(raw),
	}, nil
}

func firstLabel(labels map[string]string, keys []string) string {
	for _, k := range keys {
		if v := strings.TrimSpace(labels[k]); v != "" {
			return v
		}
	}
	return ""
}

func payloadOf(raw alert.Raw) map[string]any {
	if raw.Payload != nil {
		return raw.Payload
	}
	labels := make(map[string]any, len(raw.Labels))
	for k, v := range raw.Labels {
		labels[k] = v
	}
	return map[string]any{"labels": labels}
}

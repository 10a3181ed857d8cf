package approval

import (
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/medic/pkg/domain/model/errs"
	"github.com/secmon-lab/medic/pkg/domain/types"
)

// Ref is the opaque token handed to a responder for one approval choice, in
// the form "<action>:<incident_id>".
func Ref(id types.IncidentID, action types.ApprovalAction) string {
	return string(action) + ":" + id.String()
}

func ParseRef(ref string) (types.IncidentID, types.ApprovalAction, error) {
	action, id, ok := strings.Cut(ref, ":")
	if !ok {
		return "", "", goerr.New("malformed approval reference",
			goerr.T(errs.TagValidation),
			goerr.V("ref", ref))
	}

	a := types.ApprovalAction(action)
	if err := a.Validate(); err != nil {
		return "", "", goerr.Wrap(err, "unknown approval action",
			goerr.T(errs.TagValidation),
			goerr.V("ref", ref))
	}

	incidentID := types.IncidentID(id)
	if err := incidentID.Validate(); err != nil {
		return "", "", goerr.Wrap(err, "invalid incident ID in approval reference",
			goerr.T(errs.TagValidation),
			goerr.V("ref", ref))
	}
	return incidentID, a, nil
}

package usecase

import (
	"context"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/medic/pkg/domain/model/alert"
	"github.com/secmon-lab/medic/pkg/domain/model/errs"
	"github.com/secmon-lab/medic/pkg/domain/model/incident"
	"github.com/secmon-lab/medic/pkg/domain/types"
	"github.com/secmon-lab/medic/pkg/utils/errutil"
)

const (
	DefaultListLimit = 100
	MaxListLimit     = 1000
)

func normalizeLimit(limit int) (int, error) {
	switch {
	case limit < 0:
		return 0, goerr.New("limit must not be negative", goerr.T(errs.TagValidation), goerr.TV(errutil.LimitKey, limit))
	case limit == 0:
		return DefaultListLimit, nil
	case limit > MaxListLimit:
		return MaxListLimit, nil
	}
	return limit, nil
}

func (uc *UseCases) GetIncident(ctx context.Context, id types.IncidentID) (*incident.Incident, error) {
	if err := id.Validate(); err != nil {
		return nil, goerr.Wrap(err, "invalid incident ID", goerr.T(errs.TagValidation))
	}
	return uc.repository.GetIncident(ctx, id)
}

// ListIncidents returns incidents in state, oldest first.
func (uc *UseCases) ListIncidents(ctx context.Context, state types.IncidentState, limit int) ([]*incident.Incident, error) {
	if err := state.Validate(); err != nil {
		return nil, goerr.Wrap(err, "invalid state", goerr.T(errs.TagValidation))
	}
	limit, err := normalizeLimit(limit)
	if err != nil {
		return nil, err
	}
	return uc.repository.ListIncidentsByState(ctx, state, limit)
}

// ListDeadLetters returns rejected inputs, newest first.
func (uc *UseCases) ListDeadLetters(ctx context.Context, limit int) ([]*alert.DeadLetter, error) {
	limit, err := normalizeLimit(limit)
	if err != nil {
		return nil, err
	}
	return uc.repository.ListDeadLetters(ctx, limit)
}

package repository

import (
	"context"
	"sort"
	"sync"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/medic/pkg/domain/interfaces"
	"github.com/secmon-lab/medic/pkg/domain/model/alert"
	"github.com/secmon-lab/medic/pkg/domain/model/errs"
	"github.com/secmon-lab/medic/pkg/domain/model/incident"
	"github.com/secmon-lab/medic/pkg/domain/types"
	"github.com/secmon-lab/medic/pkg/utils/clock"
	"github.com/secmon-lab/medic/pkg/utils/errutil"
)

// Memory is an in-process IncidentRepository. A single mutex serializes every
// write, so CreateOrGetIncident and TransitionIncident are atomic.
type Memory struct {
	mu sync.RWMutex

	incidents   map[types.IncidentID]*incident.Incident
	owners      map[string]types.IncidentID
	deadLetters []*alert.DeadLetter

	eb *goerr.Builder
}

var _ interfaces.IncidentRepository = &Memory{}

func NewMemory() *Memory {
	return &Memory{
		incidents: make(map[types.IncidentID]*incident.Incident),
		owners:    make(map[string]types.IncidentID),
		eb:        goerr.NewBuilder(goerr.TV(errutil.RepositoryKey, "memory")),
	}
}

func (r *Memory) CreateOrGetIncident(ctx context.Context, identity incident.Identity, newIncident func() *incident.Incident) (*incident.Incident, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if id, ok := r.owners[identity.Key()]; ok {
		if current := r.incidents[id]; identity.Owns(current, clock.Now(ctx)) {
			return current.Copy(), false, nil
		}
	}

	inc := newIncident()
	if err := inc.Validate(); err != nil {
		return nil, false, r.eb.Wrap(err, "invalid incident",
			goerr.TV(errutil.IncidentIDKey, inc.ID),
			goerr.T(errs.TagValidation))
	}
	if _, exists := r.incidents[inc.ID]; exists {
		return nil, false, r.eb.New("incident ID already exists",
			goerr.TV(errutil.IncidentIDKey, inc.ID),
			goerr.T(errs.TagConflict))
	}

	r.incidents[inc.ID] = inc.Copy()
	r.owners[identity.Key()] = inc.ID
	return inc.Copy(), true, nil
}

func (r *Memory) TransitionIncident(ctx context.Context, id types.IncidentID, expected, next types.IncidentState, patch incident.Patch) (*incident.Incident, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.incidents[id]
	if !ok {
		return nil, r.eb.New("incident not found",
			goerr.TV(errutil.IncidentIDKey, id),
			goerr.T(errs.TagNotFound))
	}

	updated := current.Copy()
	if err := updated.Apply(expected, next, patch, clock.Now(ctx)); err != nil {
		return nil, r.eb.Wrap(err, "failed to transition incident",
			goerr.TV(errutil.IncidentIDKey, id),
			goerr.TV(errutil.ExpectedStateKey, expected),
			goerr.TV(errutil.NextStateKey, next))
	}

	r.incidents[id] = updated
	return updated.Copy(), nil
}

func (r *Memory) GetIncident(ctx context.Context, id types.IncidentID) (*incident.Incident, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	inc, ok := r.incidents[id]
	if !ok {
		return nil, r.eb.New("incident not found",
			goerr.TV(errutil.IncidentIDKey, id),
			goerr.T(errs.TagNotFound))
	}
	return inc.Copy(), nil
}

func (r *Memory) ListIncidentsByState(ctx context.Context, state types.IncidentState, limit int) ([]*incident.Incident, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []*incident.Incident
	for _, inc := range r.incidents {
		if inc.State == state {
			result = append(result, inc.Copy())
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})

	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (r *Memory) PutDeadLetter(ctx context.Context, dl *alert.DeadLetter) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	copied := *dl
	r.deadLetters = append(r.deadLetters, &copied)
	return nil
}

// ListDeadLetters returns the newest dead letters first.
func (r *Memory) ListDeadLetters(ctx context.Context, limit int) ([]*alert.DeadLetter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*alert.DeadLetter, 0, len(r.deadLetters))
	for i := len(r.deadLetters) - 1; i >= 0; i-- {
		copied := *r.deadLetters[i]
		result = append(result, &copied)
		if limit > 0 && len(result) >= limit {
			break
		}
	}
	return result, nil
}

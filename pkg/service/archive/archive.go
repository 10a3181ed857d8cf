// Package archive stores a JSON record of every finished execution, including
// the complete action log, outside the incident store.
package archive

import (
	"context"
	"encoding/json"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/medic/pkg/domain/interfaces"
	"github.com/secmon-lab/medic/pkg/domain/model/errs"
	"github.com/secmon-lab/medic/pkg/domain/model/incident"
	"github.com/secmon-lab/medic/pkg/domain/types"
	"github.com/secmon-lab/medic/pkg/utils/clock"
)

const contentTypeJSON = "application/json"

type Record struct {
	Incident   *incident.Incident `json:"incident"`
	ArchivedAt time.Time          `json:"archived_at"`
}

type Service struct {
	client interfaces.StorageClient
	prefix string
}

var _ interfaces.ExecutionArchive = &Service{}

type Option func(*Service)

// WithPrefix sets the object prefix, e.g. "prod/".
func WithPrefix(prefix string) Option {
	return func(s *Service) {
		s.prefix = prefix
	}
}

func New(client interfaces.StorageClient, opts ...Option) *Service {
	s := &Service{client: client}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) objectName(id types.IncidentID) string {
	return s.prefix + "executions/" + id.String() + ".json"
}

func (s *Service) SaveExecution(ctx context.Context, inc *incident.Incident) error {
	if inc == nil || inc.Result == nil {
		return goerr.New("incident has no execution result", goerr.T(errs.TagValidation))
	}

	data, err := json.Marshal(Record{
		Incident:   inc,
		ArchivedAt: clock.Now(ctx),
	})
	if err != nil {
		return goerr.Wrap(err, "failed to marshal execution record", goerr.V("incident_id", inc.ID))
	}

	if err := s.client.Put(ctx, s.objectName(inc.ID), data, contentTypeJSON); err != nil {
		return goerr.Wrap(err, "failed to save execution record", goerr.V("incident_id", inc.ID))
	}
	return nil
}

func (s *Service) LoadExecution(ctx context.Context, id types.IncidentID) (*Record, error) {
	data, err := s.client.Get(ctx, s.objectName(id))
	if err != nil {
		return nil, goerr.Wrap(err, "failed to load execution record", goerr.V("incident_id", id))
	}

	var record Record
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, goerr.Wrap(err, "corrupted execution record", goerr.V("incident_id", id))
	}
	return &record, nil
}

package policy

import (
	"context"
	"errors"
	"os"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/opaq"
	"github.com/secmon-lab/medic/pkg/domain/interfaces"
	"github.com/secmon-lab/medic/pkg/domain/model/errs"
	"github.com/secmon-lab/medic/pkg/domain/model/policy"
	"github.com/secmon-lab/medic/pkg/domain/types"
	"github.com/secmon-lab/medic/pkg/utils/errutil"
	"github.com/secmon-lab/medic/pkg/utils/logging"
	"gopkg.in/yaml.v3"
)

const remediationQuery = "data.remediation"

// Service resolves the RemediationPolicy for an incident. Rego policies take
// precedence; YAML defaults apply when no Rego rule produces a result. It never
// caches, so policy edits apply to the next decision.
type Service struct {
	client   interfaces.PolicyClient
	defaults *Defaults
}

type Option func(*Service)

func WithDefaults(d *Defaults) Option {
	return func(s *Service) {
		s.defaults = d
	}
}

func New(client interfaces.PolicyClient, opts ...Option) *Service {
	s := &Service{
		client:   client,
		defaults: BuiltinDefaults(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) Remediation(ctx context.Context, q *policy.RemediationQuery) (*policy.Remediation, error) {
	if s.client != nil {
		var result policy.Remediation
		err := s.client.Query(ctx, remediationQuery, q, &result)
		switch {
		case err == nil:
			if err := result.Validate(); err != nil {
				return nil, goerr.Wrap(err, "invalid remediation policy result",
					goerr.V("alert_name", q.AlertName),
					goerr.T(errs.TagPolicyError))
			}
			return &result, nil

		case errors.Is(err, opaq.ErrNoEvalResult):
			logging.From(ctx).Debug("no remediation policy result, using defaults", "alert_name", q.AlertName)

		default:
			return nil, goerr.Wrap(err, "failed to evaluate remediation policy",
				goerr.V("alert_name", q.AlertName),
				goerr.T(errs.TagPolicyError))
		}
	}

	return s.defaults.For(q.AlertName), nil
}

// Defaults is the YAML form of fallback policies keyed by alert name.
type Defaults struct {
	Default policy.Remediation            `yaml:"default"`
	Alerts  map[string]policy.Remediation `yaml:"alerts"`
}

// BuiltinDefaults allows every known action but asks a human first.
func BuiltinDefaults() *Defaults {
	return &Defaults{
		Default: policy.Remediation{
			RequiresApproval: true,
			AllowedActions:   append([]types.ActionName(nil), types.KnownActions...),
		},
	}
}

func (x *Defaults) For(alertName string) *policy.Remediation {
	if p, ok := x.Alerts[alertName]; ok {
		return &p
	}
	p := x.Default
	return &p
}

func (x *Defaults) Validate() error {
	if err := x.Default.Validate(); err != nil {
		return goerr.Wrap(err, "invalid default policy")
	}
	for name, p := range x.Alerts {
		if err := p.Validate(); err != nil {
			return goerr.Wrap(err, "invalid alert policy", goerr.V("alert_name", name))
		}
	}
	return nil
}

func LoadDefaults(path string) (*Defaults, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to read policy defaults", goerr.TV(errutil.FilePathKey, path))
	}
	return ParseDefaults(raw)
}

func ParseDefaults(raw []byte) (*Defaults, error) {
	var d Defaults
	if err := yaml.Unmarshal(raw, &d); err != nil {
		return nil, goerr.Wrap(err, "failed to parse policy defaults", goerr.T(errs.TagValidation))
	}
	if err := d.Validate(); err != nil {
		return nil, goerr.Wrap(err, "invalid policy defaults", goerr.T(errs.TagValidation))
	}
	return &d, nil
}

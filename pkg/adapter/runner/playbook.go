// Package runner executes remediation actions as Ansible playbooks.
package runner

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os/exec"
	"path/filepath"
	"slices"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/medic/pkg/domain/interfaces"
	"github.com/secmon-lab/medic/pkg/domain/model/errs"
	"github.com/secmon-lab/medic/pkg/domain/model/remediation"
	"github.com/secmon-lab/medic/pkg/domain/types"
	"github.com/secmon-lab/medic/pkg/utils/clock"
	"github.com/secmon-lab/medic/pkg/utils/dryrun"
	"github.com/secmon-lab/medic/pkg/utils/logging"
)

const DefaultBinary = "ansible-playbook"

// Playbook runs <dir>/<action>.yml against a single-host inventory.
type Playbook struct {
	dir    string
	binary string
}

var _ interfaces.ActionRunner = &Playbook{}

type Option func(*Playbook)

func WithBinary(path string) Option {
	return func(p *Playbook) {
		p.binary = path
	}
}

func NewPlaybook(dir string, opts ...Option) *Playbook {
	p := &Playbook{
		dir:    dir,
		binary: DefaultBinary,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Args builds the command line for one action. Dry-run adds --check so the
// playbook reports changes without applying them.
func (p *Playbook) Args(ctx context.Context, target string, action types.ActionName, params map[string]string) ([]string, error) {
	if !slices.Contains(types.KnownActions, action) {
		return nil, goerr.New("action has no playbook",
			goerr.T(errs.TagValidation),
			goerr.V("action", action))
	}
	if target == "" {
		return nil, goerr.New("target is empty", goerr.T(errs.TagValidation))
	}

	if params == nil {
		params = map[string]string{}
	}
	vars, err := json.Marshal(params)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to marshal extra vars", goerr.V("action", action))
	}

	args := []string{
		filepath.Join(p.dir, action.String()+".yml"),
		"-i", target + ",",
		"--extra-vars", string(vars),
	}
	if dryrun.IsDryRun(ctx) {
		args = append(args, "--check")
	}
	return args, nil
}

func (p *Playbook) Run(ctx context.Context, target string, action types.ActionName, params map[string]string) (*remediation.Result, error) {
	args, err := p.Args(ctx, target, action, params)
	if err != nil {
		return nil, err
	}

	logger := logging.From(ctx)
	logger.Info("running playbook",
		"binary", p.binary,
		"args", args,
		"dry_run", dryrun.IsDryRun(ctx),
	)

	var out bytes.Buffer
	cmd := exec.CommandContext(ctx, p.binary, args...)
	cmd.Stdout = &out
	cmd.Stderr = &out

	result := &remediation.Result{StartedAt: clock.Now(ctx)}
	runErr := cmd.Run()
	result.FinishedAt = clock.Now(ctx)
	result.Log = out.String()

	if runErr != nil {
		var exitErr *exec.ExitError
		if errors.As(runErr, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
			return result, nil
		}
		return nil, goerr.Wrap(runErr, "failed to start playbook",
			goerr.V("binary", p.binary),
			goerr.V("action", action),
			goerr.V("target", target))
	}

	result.Success = true
	return result, nil
}

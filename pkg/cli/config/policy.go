package config

import (
	"log/slog"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/opaq"
	"github.com/secmon-lab/medic/pkg/service/policy"
	"github.com/urfave/cli/v3"
)

type Policy struct {
	filePaths    []string
	defaultsPath string
}

func (x *Policy) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringSliceFlag{
			Name:        "policy",
			Usage:       "Rego policy file/dir path, provides data.remediation and data.auth",
			Aliases:     []string{"p"},
			Destination: &x.filePaths,
			Category:    "Policy",
			Sources:     cli.EnvVars("MEDIC_POLICY"),
		},
		&cli.StringFlag{
			Name:        "policy-defaults",
			Usage:       "YAML file with fallback remediation policies keyed by alert name",
			Destination: &x.defaultsPath,
			Category:    "Policy",
			Sources:     cli.EnvVars("MEDIC_POLICY_DEFAULTS"),
		},
	}
}

func (x Policy) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Any("file_paths", x.filePaths),
		slog.String("defaults_path", x.defaultsPath),
	)
}

func (x *Policy) HasPolicies() bool {
	return len(x.filePaths) > 0
}

// Configure returns nil without error when no policy file is given, callers
// then fall back to the defaults.
func (x *Policy) Configure() (*opaq.Client, error) {
	if !x.HasPolicies() {
		return nil, nil
	}

	client, err := opaq.New(opaq.Files(x.filePaths...))
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create opaq client", goerr.V("file_paths", x.filePaths))
	}

	return client, nil
}

// Defaults loads the fallback policies, or the builtin ones when no file is set.
func (x *Policy) Defaults() (*policy.Defaults, error) {
	if x.defaultsPath == "" {
		return policy.BuiltinDefaults(), nil
	}
	return policy.LoadDefaults(x.defaultsPath)
}

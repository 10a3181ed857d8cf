package config

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/medic/pkg/adapter/ssh"
	"github.com/secmon-lab/medic/pkg/utils/errutil"
	"github.com/secmon-lab/medic/pkg/utils/logging"
	"github.com/urfave/cli/v3"

	cryptossh "golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

// SSH configures the diagnostics provider that runs read-only probes on
// alerting hosts.
type SSH struct {
	user            string
	keyFile         string
	keyPassphrase   string
	knownHostsFile  string
	insecureHostKey bool
	port            int
	dialTimeout     time.Duration
}

func (x *SSH) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "ssh-user",
			Usage:       "SSH user for diagnostics probes, probes are unavailable when empty",
			Category:    "SSH",
			Destination: &x.user,
			Sources:     cli.EnvVars("MEDIC_SSH_USER"),
		},
		&cli.StringFlag{
			Name:        "ssh-key-file",
			Usage:       "Private key file for SSH authentication",
			Category:    "SSH",
			Destination: &x.keyFile,
			Sources:     cli.EnvVars("MEDIC_SSH_KEY_FILE"),
		},
		&cli.StringFlag{
			Name:        "ssh-key-passphrase",
			Usage:       "Passphrase of the private key",
			Category:    "SSH",
			Destination: &x.keyPassphrase,
			Sources:     cli.EnvVars("MEDIC_SSH_KEY_PASSPHRASE"),
		},
		&cli.StringFlag{
			Name:        "ssh-known-hosts",
			Usage:       "known_hosts file used to verify target host keys",
			Category:    "SSH",
			Destination: &x.knownHostsFile,
			Sources:     cli.EnvVars("MEDIC_SSH_KNOWN_HOSTS"),
		},
		&cli.BoolFlag{
			Name:        "ssh-insecure-ignore-host-key",
			Usage:       "Skip host key verification (lab environments only)",
			Category:    "SSH",
			Destination: &x.insecureHostKey,
			Sources:     cli.EnvVars("MEDIC_SSH_INSECURE_IGNORE_HOST_KEY"),
		},
		&cli.IntFlag{
			Name:        "ssh-port",
			Usage:       "Default SSH port when the target has none",
			Category:    "SSH",
			Destination: &x.port,
			Sources:     cli.EnvVars("MEDIC_SSH_PORT"),
			Value:       ssh.DefaultPort,
		},
		&cli.DurationFlag{
			Name:        "ssh-dial-timeout",
			Usage:       "Timeout for connecting and handshaking",
			Category:    "SSH",
			Destination: &x.dialTimeout,
			Sources:     cli.EnvVars("MEDIC_SSH_DIAL_TIMEOUT"),
			Value:       ssh.DefaultDialTimeout,
		},
	}
}

func (x SSH) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("user", x.user),
		slog.String("key_file", x.keyFile),
		slog.String("known_hosts", x.knownHostsFile),
		slog.Bool("insecure_host_key", x.insecureHostKey),
		slog.Int("port", x.port),
		slog.Duration("dial_timeout", x.dialTimeout),
	)
}

func (x *SSH) IsConfigured() bool {
	return x.user != ""
}

// Configure returns nil without error when no user is set. Exactly one of the
// known_hosts file or the insecure switch must be given.
func (x *SSH) Configure(ctx context.Context) (*ssh.Provider, error) {
	if !x.IsConfigured() {
		return nil, nil
	}
	if x.keyFile == "" {
		return nil, goerr.New("ssh-key-file is required when ssh-user is set")
	}

	raw, err := os.ReadFile(filepath.Clean(x.keyFile))
	if err != nil {
		return nil, goerr.Wrap(err, "failed to read ssh key", goerr.TV(errutil.FilePathKey, x.keyFile))
	}

	var signer cryptossh.Signer
	if x.keyPassphrase != "" {
		signer, err = cryptossh.ParsePrivateKeyWithPassphrase(raw, []byte(x.keyPassphrase))
	} else {
		signer, err = cryptossh.ParsePrivateKey(raw)
	}
	if err != nil {
		return nil, goerr.Wrap(err, "failed to parse ssh key", goerr.TV(errutil.FilePathKey, x.keyFile))
	}

	var hostKey cryptossh.HostKeyCallback
	switch {
	case x.knownHostsFile != "" && x.insecureHostKey:
		return nil, goerr.New("ssh-known-hosts and ssh-insecure-ignore-host-key are mutually exclusive")
	case x.knownHostsFile != "":
		hostKey, err = knownhosts.New(x.knownHostsFile)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to load known_hosts", goerr.TV(errutil.FilePathKey, x.knownHostsFile))
		}
	case x.insecureHostKey:
		logging.From(ctx).Warn("SSH host key verification is DISABLED", "flag", "--ssh-insecure-ignore-host-key")
		hostKey = cryptossh.InsecureIgnoreHostKey() // #nosec G106 -- explicit opt-in for lab targets
	default:
		return nil, goerr.New("either ssh-known-hosts or ssh-insecure-ignore-host-key is required")
	}

	return ssh.New(x.user,
		ssh.WithSigner(signer),
		ssh.WithHostKeyCallback(hostKey),
		ssh.WithPort(x.port),
		ssh.WithDialTimeout(x.dialTimeout),
	)
}

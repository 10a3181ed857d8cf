// Package ssh runs whitelisted diagnostic probes on a remote host over SSH.
package ssh

import (
	"bytes"
	"context"
	"errors"
	"net"
	"strconv"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/medic/pkg/domain/interfaces"
	"github.com/secmon-lab/medic/pkg/domain/model/errs"
	"github.com/secmon-lab/medic/pkg/domain/types"
	"github.com/secmon-lab/medic/pkg/utils/logging"
	"golang.org/x/crypto/ssh"
)

// probeCommands is the only place a probe name becomes a shell command. It is
// not configurable.
var probeCommands = map[types.ProbeName]string{
	types.ProbeDiskUsage:       "df -h",
	types.ProbeProcessSnapshot: "top -bn1 | head -n 20",
	types.ProbeLogTail:         "tail -n 50 /var/log/syslog",
	types.ProbeUptime:          "uptime",
}

const (
	DefaultPort        = 22
	DefaultDialTimeout = 10 * time.Second
)

type Provider struct {
	user        string
	port        int
	dialTimeout time.Duration
	signers     []ssh.Signer
	hostKey     ssh.HostKeyCallback
}

var _ interfaces.DiagnosticsProvider = &Provider{}

type Option func(*Provider)

func WithPort(port int) Option {
	return func(p *Provider) {
		p.port = port
	}
}

func WithDialTimeout(d time.Duration) Option {
	return func(p *Provider) {
		p.dialTimeout = d
	}
}

func WithSigner(signer ssh.Signer) Option {
	return func(p *Provider) {
		p.signers = append(p.signers, signer)
	}
}

// WithHostKeyCallback sets host key verification, typically knownhosts.New or
// ssh.InsecureIgnoreHostKey for lab environments.
func WithHostKeyCallback(cb ssh.HostKeyCallback) Option {
	return func(p *Provider) {
		p.hostKey = cb
	}
}

func New(user string, opts ...Option) (*Provider, error) {
	p := &Provider{
		user:        user,
		port:        DefaultPort,
		dialTimeout: DefaultDialTimeout,
	}
	for _, opt := range opts {
		opt(p)
	}

	if p.user == "" {
		return nil, goerr.New("ssh user is required", goerr.T(errs.TagValidation))
	}
	if len(p.signers) == 0 {
		return nil, goerr.New("at least one ssh private key is required", goerr.T(errs.TagValidation))
	}
	if p.hostKey == nil {
		return nil, goerr.New("ssh host key verification is not configured", goerr.T(errs.TagValidation))
	}

	return p, nil
}

// Command returns the fixed command line for probe.
func Command(probe types.ProbeName) (string, bool) {
	cmd, ok := probeCommands[probe]
	return cmd, ok
}

func (p *Provider) RunProbe(ctx context.Context, target string, probe types.ProbeName) (string, error) {
	cmd, ok := probeCommands[probe]
	if !ok {
		return "", goerr.New("probe is not whitelisted",
			goerr.T(errs.TagValidation),
			goerr.V("probe", probe))
	}

	addr := p.address(target)
	eb := goerr.NewBuilder(goerr.V("target", target), goerr.V("addr", addr), goerr.V("probe", probe))

	client, err := p.dial(ctx, addr)
	if err != nil {
		return "", eb.Wrap(err, "failed to connect to target", goerr.T(errs.TagUnreachable))
	}
	defer func() {
		if err := client.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			logging.From(ctx).Debug("failed to close ssh client", logging.ErrAttr(err))
		}
	}()

	// Closing the client unblocks a session stuck on a dead connection.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = client.Close()
		case <-done:
		}
	}()

	session, err := client.NewSession()
	if err != nil {
		return "", eb.Wrap(err, "failed to open ssh session", goerr.T(errs.TagUnreachable))
	}
	defer func() { _ = session.Close() }()

	var stdout, stderr bytes.Buffer
	session.Stdout = &stdout
	session.Stderr = &stderr

	if err := session.Run(cmd); err != nil {
		if ctx.Err() != nil {
			return "", eb.Wrap(ctx.Err(), "probe interrupted", goerr.T(errs.TagTimeout))
		}

		var exitErr *ssh.ExitError
		if errors.As(err, &exitErr) {
			return "", eb.Wrap(err, "probe command failed",
				goerr.V("exit_status", exitErr.ExitStatus()),
				goerr.V("stderr", stderr.String()))
		}
		return "", eb.Wrap(err, "ssh session lost", goerr.T(errs.TagUnreachable))
	}

	return stdout.String(), nil
}

func (p *Provider) address(target string) string {
	if _, _, err := net.SplitHostPort(target); err == nil {
		return target
	}
	return net.JoinHostPort(target, strconv.Itoa(p.port))
}

func (p *Provider) dial(ctx context.Context, addr string) (*ssh.Client, error) {
	d := net.Dialer{Timeout: p.dialTimeout}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to dial")
	}

	deadline := time.Now().Add(p.dialTimeout)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(deadline) {
		deadline = ctxDeadline
	}
	if err := conn.SetDeadline(deadline); err != nil {
		_ = conn.Close()
		return nil, goerr.Wrap(err, "failed to set handshake deadline")
	}

	cfg := &ssh.ClientConfig{
		User:            p.user,
		Auth:            []ssh.AuthMethod{ssh.PublicKeys(p.signers...)},
		HostKeyCallback: p.hostKey,
		Timeout:         p.dialTimeout,
	}

	c, chans, reqs, err := ssh.NewClientConn(conn, addr, cfg)
	if err != nil {
		_ = conn.Close()
		return nil, goerr.Wrap(err, "ssh handshake failed")
	}

	if err := conn.SetDeadline(time.Time{}); err != nil {
		_ = c.Close()
		return nil, goerr.Wrap(err, "failed to clear handshake deadline")
	}

	return ssh.NewClient(c, chans, reqs), nil
}

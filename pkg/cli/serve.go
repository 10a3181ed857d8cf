package cli

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/m-mizutani/goerr/v2"
	server "github.com/secmon-lab/medic/pkg/controller/http"
	"github.com/secmon-lab/medic/pkg/domain/interfaces"
	"github.com/secmon-lab/medic/pkg/service/notifier"
	"github.com/secmon-lab/medic/pkg/usecase"
	"github.com/secmon-lab/medic/pkg/utils/async"
	"github.com/secmon-lab/medic/pkg/utils/logging"
	"github.com/urfave/cli/v3"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

func cmdServe() *cli.Command {
	var (
		addr            string
		noAuthorization bool
		cfg             pipelineConfig
	)

	flags := joinFlags(
		[]cli.Flag{
			&cli.StringFlag{
				Name:        "addr",
				Aliases:     []string{"a"},
				Sources:     cli.EnvVars("MEDIC_ADDR"),
				Usage:       "Listen address",
				Value:       "127.0.0.1:8080",
				Destination: &addr,
			},
			&cli.BoolFlag{
				Name:        "no-authorization",
				Aliases:     []string{"no-authz"},
				Usage:       "Disable policy-based authorization of /api (development only)",
				Category:    "Security",
				Sources:     cli.EnvVars("MEDIC_NO_AUTHORIZATION"),
				Destination: &noAuthorization,
			},
		},
		cfg.Flags(),
	)

	return &cli.Command{
		Name:    "serve",
		Aliases: []string{"s"},
		Usage:   "Run HTTP server and approval sweeper",
		Flags:   flags,
		Action: func(ctx context.Context, cmd *cli.Command) error {
			logger := logging.From(ctx)
			logger.Info("starting server",
				"addr", addr,
				"noAuthorization", noAuthorization,
				"config", &cfg,
			)

			var fallback []interfaces.Notifier
			if !cfg.slack.IsConfigured() {
				logger.Warn("Slack is not configured, approval requests are printed to stderr")
				fallback = append(fallback, notifier.NewConsoleNotifierWithWriter(os.Stderr))
			}

			ctx, p, err := cfg.build(ctx, fallback...)
			if err != nil {
				return err
			}
			defer p.Close()

			serverOptions := []server.Options{
				server.WithApprovalVerifier(cfg.approval.Verifier()),
			}
			if p.policy != nil {
				serverOptions = append(serverOptions, server.WithPolicy(p.policy))
			}
			if noAuthorization {
				logger.Warn("SECURITY WARNING: Authorization checks are DISABLED",
					"flag", "--no-authorization",
					"recommendation", "This should only be used in development environments")
				serverOptions = append(serverOptions, server.WithNoAuthorization(true))
			}
			if v := cfg.slack.Verifier(); v != nil {
				serverOptions = append(serverOptions, server.WithSlackVerifier(v))
			}

			return serve(ctx, addr, server.New(p.uc, serverOptions...), usecase.NewSweeper(p.uc, cfg.orchestrator.SweepInterval()))
		},
	}
}

// serve runs the HTTP server and the sweeper until SIGINT/SIGTERM, then drains
// in-flight orchestrations.
func serve(ctx context.Context, addr string, handler http.Handler, sweeper *usecase.Sweeper) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// requests in flight at shutdown finish with the values of ctx but without
	// its cancellation
	baseCtx := context.WithoutCancel(ctx)
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadTimeout:       30 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext: func(l net.Listener) context.Context {
			return baseCtx
		},
	}

	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return goerr.Wrap(err, "failed to serve HTTP", goerr.V("addr", addr))
		}
		return nil
	})
	eg.Go(func() error {
		return sweeper.Run(ctx)
	})
	eg.Go(func() error {
		<-ctx.Done()
		logging.From(ctx).Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return goerr.Wrap(err, "failed to shutdown HTTP server")
		}
		if err := async.Wait(shutdownCtx); err != nil {
			logging.From(ctx).Warn("orchestrations still running at shutdown, the sweeper recovers them", "error", err)
		}
		return nil
	})

	return eg.Wait()
}

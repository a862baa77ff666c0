package cmd

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/vitalsync/vitalsync/internal/core/scheduler"
	"github.com/vitalsync/vitalsync/internal/observability"
	"github.com/vitalsync/vitalsync/internal/server"
	"github.com/vitalsync/vitalsync/internal/server/handlers"
	"github.com/vitalsync/vitalsync/internal/sink"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the polling service",
	Long: `Run the polling service: poll all enabled routes on the configured
interval, publish records to the sink, and serve health and status
endpoints over HTTP.

SIGINT or SIGTERM triggers a graceful shutdown.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runService(cmd.Context())
	},
}

func runService(parent context.Context) error {
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	application, cleanup, err := buildApp(ctx, observability.CLILogger)
	if err != nil {
		return err
	}
	defer cleanup()

	observability.InitServerLogger("vitalsync",
		application.cfg.Logging.Level, application.cfg.Logging.Format)
	defer observability.Sync()
	log := observability.ServerLogger

	out, err := sink.Open(ctx, application.cfg.Sink)
	if err != nil {
		return err
	}
	defer out.Close()

	runner := scheduler.NewRunner(application.cfg.Runner, application.gen,
		application.repo, application.routes, out, nil, log)

	var srv *server.Server
	srvErr := make(chan error, 1)
	if application.cfg.Server.Enabled {
		health := handlers.NewHealth(versionInfo.Version)
		if application.store != nil {
			health.Register("store", handlers.HealthCheckerFunc(func(ctx context.Context) error {
				return application.store.DB.PingContext(ctx)
			}))
		}
		srv = server.New(application.cfg.Server.Host, application.cfg.Server.Port,
			health, application.gen, runner, log)
		go func() {
			if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				srvErr <- err
			}
		}()
	}

	log.Info("polling service started",
		zap.Int("routes", len(application.routes)),
		zap.Duration("interval", application.cfg.Runner.PollInterval))

	runDone := make(chan error, 1)
	go func() {
		runDone <- runner.Run(ctx)
	}()

	select {
	case err := <-srvErr:
		stop()
		<-runDone
		return err
	case err := <-runDone:
		if errors.Is(err, context.Canceled) {
			err = nil
		}
		if srv != nil {
			shutdownCtx, cancel := context.WithTimeout(context.Background(),
				application.cfg.Server.ShutdownTimeout)
			defer cancel()
			if serr := srv.Shutdown(shutdownCtx); serr != nil && err == nil {
				err = serr
			}
		}
		log.Info("polling service stopped")
		return err
	}
}

func init() {
	rootCmd.AddCommand(runCmd)
}

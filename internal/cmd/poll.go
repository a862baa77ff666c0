package cmd

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/vitalsync/vitalsync/internal/core"
	"github.com/vitalsync/vitalsync/internal/core/route"
	"github.com/vitalsync/vitalsync/internal/core/scheduler"
	"github.com/vitalsync/vitalsync/internal/observability"
	"github.com/vitalsync/vitalsync/internal/sink"
)

var (
	pollRoute  string
	pollUser   string
	pollMax    int
	pollDryRun bool
)

var pollCmd = &cobra.Command{
	Use:   "poll",
	Short: "Run a single polling cycle",
	Long: `Run one polling cycle: generate the due requests, execute them, and
publish the converted records to the configured sink.

With --dry-run the requests are listed without being executed, so no
offsets move and no records are published.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		log := observability.CLILogger

		application, cleanup, err := buildApp(ctx, log)
		if err != nil {
			return err
		}
		defer cleanup()

		routes, err := selectRoutes(application.routes, pollRoute)
		if err != nil {
			return err
		}

		reqs, err := generateRequests(ctx, application, routes)
		if err != nil {
			return err
		}
		if len(reqs) == 0 {
			fmt.Println("nothing to poll")
			return nil
		}

		if pollDryRun {
			for _, req := range reqs {
				fmt.Printf("%s %s [%s, %s)\n",
					req.User.VersionedID(), req.Route.Name,
					req.Start.Format(time.RFC3339), req.End.Format(time.RFC3339))
			}
			fmt.Printf("%d requests\n", len(reqs))
			return nil
		}

		out, err := sink.Open(ctx, application.cfg.Sink)
		if err != nil {
			return err
		}
		defer out.Close()

		stats := executeRequests(ctx, application, reqs, out, log)
		log.Info("poll complete",
			zap.Int64("requests", stats.Requests),
			zap.Int64("records", stats.Records),
			zap.Int64("failures", stats.Failures))
		return nil
	},
}

func selectRoutes(routes []route.Route, name string) ([]route.Route, error) {
	if name == "" {
		return routes, nil
	}
	for _, rt := range routes {
		if rt.Name == name {
			return []route.Route{rt}, nil
		}
	}
	return nil, fmt.Errorf("unknown or disabled route: %s", name)
}

func generateRequests(ctx context.Context, application *app, routes []route.Route) ([]scheduler.RestRequest, error) {
	var reqs []scheduler.RestRequest
	if pollUser != "" {
		user, err := application.repo.Get(ctx, pollUser)
		if err != nil {
			return nil, err
		}
		for _, rt := range routes {
			reqs = append(reqs, application.gen.RequestsForUser(ctx, user, rt, pollMax)...)
		}
		return reqs, nil
	}
	for _, rt := range routes {
		reqs = append(reqs, application.gen.Requests(ctx, rt, pollMax)...)
	}
	return reqs, nil
}

func executeRequests(ctx context.Context, application *app, reqs []scheduler.RestRequest, out sink.Sink, log *zap.Logger) scheduler.Stats {
	client := &http.Client{Timeout: application.cfg.Runner.RequestTimeout}
	var stats scheduler.Stats
	for _, req := range reqs {
		stats.Requests++
		records, err := executeOne(ctx, application, client, req)
		if err != nil {
			stats.Failures++
			log.Warn("request failed",
				zap.String("pair", req.Key().String()),
				zap.Error(err))
			continue
		}
		if len(records) == 0 {
			continue
		}
		stats.Records += int64(len(records))
		if err := out.Publish(ctx, records); err != nil {
			stats.Failures++
			log.Error("publish failed", zap.Error(err))
		}
	}
	return stats
}

func executeOne(ctx context.Context, application *app, client *http.Client, req scheduler.RestRequest) ([]core.Record, error) {
	resp, err := client.Do(req.Request)
	if err != nil {
		return nil, application.gen.HandleTransportError(req, err)
	}
	defer resp.Body.Close()
	return application.gen.HandleResponse(ctx, req, resp)
}

func init() {
	rootCmd.AddCommand(pollCmd)
	pollCmd.Flags().StringVar(&pollRoute, "route", "", "poll only this route")
	pollCmd.Flags().StringVar(&pollUser, "user", "", "poll only this user ID")
	pollCmd.Flags().IntVar(&pollMax, "max", 0, "maximum requests per route (0 = unlimited; the per-pair cap still applies)")
	pollCmd.Flags().BoolVar(&pollDryRun, "dry-run", false, "list the requests without executing them")
}

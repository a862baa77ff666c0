package cmd

import (
	"context"

	"go.uber.org/zap"

	"github.com/vitalsync/vitalsync/internal/config"
	"github.com/vitalsync/vitalsync/internal/core/offsets"
	"github.com/vitalsync/vitalsync/internal/core/route"
	"github.com/vitalsync/vitalsync/internal/core/scheduler"
	"github.com/vitalsync/vitalsync/internal/core/store"
	"github.com/vitalsync/vitalsync/internal/core/userdir"
	verrors "github.com/vitalsync/vitalsync/internal/errors"
)

// app bundles the wired components shared by the CLI commands.
type app struct {
	cfg     *config.Config
	store   *store.Store
	offsets offsets.Manager
	repo    userdir.Repository
	routes  []route.Route
	gen     *scheduler.Generator
}

// buildApp assembles the application from the loaded configuration. The
// returned cleanup function closes the store.
func buildApp(ctx context.Context, log *zap.Logger) (*app, func(), error) {
	cfg := config.GetConfig()
	if cfg == nil {
		return nil, nil, verrors.New(verrors.KindValidation, "configuration not loaded")
	}

	var (
		st  *store.Store
		mgr offsets.Manager
	)
	if cfg.Store.Driver == "memory" {
		mgr = offsets.NewMemory()
	} else {
		opened, err := store.Open(ctx, cfg.Store)
		if err != nil {
			return nil, nil, err
		}
		if err := opened.Migrate(ctx); err != nil {
			_ = opened.Close()
			return nil, nil, err
		}
		st = opened
		mgr = opened
	}
	cleanup := func() {
		if st != nil {
			if err := st.Close(); err != nil {
				log.Warn("failed to close store", zap.Error(err))
			}
		}
	}

	repo, err := buildRepository(cfg, log)
	if err != nil {
		cleanup()
		return nil, nil, err
	}

	routes := route.Catalog(cfg.Routes.Enabled, cfg.Routes.Intervals, log)
	if len(routes) == 0 {
		cleanup()
		return nil, nil, verrors.New(verrors.KindValidation, "no routes enabled")
	}

	gen, err := scheduler.NewGenerator(cfg.Scheduler, repo, mgr, log)
	if err != nil {
		cleanup()
		return nil, nil, err
	}

	return &app{
		cfg:     cfg,
		store:   st,
		offsets: mgr,
		repo:    repo,
		routes:  routes,
		gen:     gen,
	}, cleanup, nil
}

func buildRepository(cfg *config.Config, log *zap.Logger) (userdir.Repository, error) {
	switch cfg.UserRepository.Type {
	case "", "service":
		return userdir.NewService(cfg.UserRepository.Service, nil, log)
	case "yaml":
		return userdir.NewYAML(cfg.UserRepository.Path)
	default:
		return nil, verrors.New(verrors.KindValidation, "unknown user repository type "+cfg.UserRepository.Type)
	}
}

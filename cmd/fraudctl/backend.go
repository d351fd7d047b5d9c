package main

import (
	"context"
	"fmt"

	"github.com/jassnet/Fraudhunter/internal/repository"
	"github.com/jassnet/Fraudhunter/internal/repository/sqlite"
	"github.com/jassnet/Fraudhunter/internal/service"
	"github.com/jassnet/Fraudhunter/internal/settings"
	"github.com/jassnet/Fraudhunter/internal/source"
)

// backend is an opened store plus the pipeline built on it.
type backend struct {
	pipeline *service.Pipeline
	close    func()
}

// openBackend opens PostgreSQL or SQLite. With needSource false the
// pipeline gets a source that fails every fetch, so detection works
// without ACS credentials.
func (a *app) openBackend(ctx context.Context, needSource bool) (*backend, error) {
	loc, err := a.cfg.Location()
	if err != nil {
		return nil, err
	}

	var src service.Source = source.Unconfigured{Err: fmt.Errorf("not needed by this command")}
	if needSource {
		srcCfg, err := a.cfg.SourceClientConfig()
		if err != nil {
			return nil, err
		}
		client, err := source.New(srcCfg, a.logger)
		if err != nil {
			return nil, err
		}
		src = client
	}

	var (
		stores  service.Stores
		sp      *settings.Service
		closeFn func()
	)
	if a.cfg.DatabaseURL != "" {
		repo, err := repository.New(ctx, a.cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("connect database: %w", err)
		}
		stores = service.Stores{
			Clicks:      repository.NewClickRepository(repo),
			Conversions: repository.NewConversionRepository(repo),
			Masters:     repository.NewMasterRepository(repo),
			Dates:       repository.NewReportRepository(repo),
		}
		sp = newSettings(repository.NewSettingsRepository(repo), a)
		closeFn = repo.Close
		a.logger.Debug("using postgres backend")
	} else {
		store, err := sqlite.Open(ctx, a.cfg.DBPath, a.logger, sqlite.WithLocation(loc))
		if err != nil {
			return nil, err
		}
		stores = service.Stores{Clicks: store, Conversions: store, Masters: store, Dates: store}
		sp = newSettings(store, a)
		closeFn = func() { _ = store.Close() }
		a.logger.Debug("using sqlite backend", "path", a.cfg.DBPath)
	}

	p := service.NewPipeline(src, stores, sp, service.Options{
		PageSize: a.cfg.PageSize,
		StoreRaw: a.cfg.StoreRaw,
		Location: loc,
	}, a.logger, nil)
	return &backend{pipeline: p, close: closeFn}, nil
}

func newSettings(store settings.Store, a *app) *settings.Service {
	return settings.NewService(store, nil, a.cfg.Detection, a.logger)
}

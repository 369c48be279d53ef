package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/vodhub/vodhub/internal/api"
	"github.com/vodhub/vodhub/internal/cache"
	"github.com/vodhub/vodhub/internal/config"
	"github.com/vodhub/vodhub/internal/database"
	apperrors "github.com/vodhub/vodhub/internal/errors"
	"github.com/vodhub/vodhub/internal/external/tmdb"
	"github.com/vodhub/vodhub/internal/httpclient"
	"github.com/vodhub/vodhub/internal/jobs"
	"github.com/vodhub/vodhub/internal/logger"
	"github.com/vodhub/vodhub/internal/matcher"
	"github.com/vodhub/vodhub/internal/providers"
	"github.com/vodhub/vodhub/internal/reconciler"
	"github.com/vodhub/vodhub/internal/shutdown"
)

// app bundles the wired engine components shared by run and run-job
type app struct {
	cfg      *config.Config
	stores   *database.Stores
	cache    *cache.Store
	client   *httpclient.Client
	registry *providers.Registry
	engine   *jobs.Engine
	queue    *jobs.Queue
	service  *jobs.Service
}

// buildApp wires the full engine from the loaded configuration
func buildApp() (*app, error) {
	cfg := config.Get()
	logger.Initialize(cfg.GetAppLogLevel(), cfg.GetJobsLogLevel())

	if err := database.Initialize(); err != nil {
		return nil, err
	}
	stores := database.NewStores(database.Get())

	ctx := context.Background()
	if lvl, err := stores.Settings.Get(ctx, "log_stream_level"); err == nil {
		logger.JobLogger().SetLevel(lvl)
	}

	cacheStore, err := cache.Open(cfg.Data.Dir)
	if err != nil {
		return nil, fmt.Errorf("failed to open response cache: %w", err)
	}

	client := httpclient.New(cacheStore)
	tmdbClient := tmdb.NewClient(client, tmdb.Config{
		Token:    stores.Settings.GetOr(ctx, "tmdb_token", cfg.TMDB.Token),
		Language: cfg.TMDB.Language,
		CacheTTL: cfg.TMDBCacheTTL(),
	})

	engine := jobs.NewEngine(stores, time.Duration(cfg.Jobs.HeartbeatSeconds)*time.Second)
	queue := jobs.NewQueue()
	registry := providers.NewRegistry()
	service := jobs.NewService(stores, registry, client,
		matcher.New(tmdbClient, matcher.DefaultConfig()),
		reconciler.New(stores, tmdbClient),
		engine, queue)
	if err := service.RegisterAll(cfg.SyncInterval(), cfg.MonitorInterval()); err != nil {
		return nil, err
	}

	if err := stores.Users.EnsureAdmin(ctx, cfg.Admin.Username, cfg.Admin.Password); err != nil {
		return nil, err
	}

	return &app{
		cfg:      cfg,
		stores:   stores,
		cache:    cacheStore,
		client:   client,
		registry: registry,
		engine:   engine,
		queue:    queue,
		service:  service,
	}, nil
}

func (a *app) close() {
	if err := a.cache.Close(); err != nil {
		logger.AppLogger().Error("failed to close cache", err)
	}
	if err := database.Close(); err != nil {
		logger.AppLogger().Error("failed to close database", err)
	}
}

// probeProviders verifies upstream credentials at startup. The run
// command treats auth failure of every enabled provider as fatal.
func (a *app) probeProviders(ctx context.Context) (enabled, authFailed int, err error) {
	configs, err := a.stores.Providers.ListActive(ctx)
	if err != nil {
		return 0, 0, err
	}

	for i := range configs {
		cfg := &configs[i]
		adapter, err := a.service.Adapter(cfg)
		if err != nil {
			logger.AppLogger().WithProvider(cfg.ID).Error("failed to instantiate adapter", err)
			continue
		}

		probeCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		_, err = adapter.LoadCategories(probeCtx)
		cancel()

		switch {
		case err == nil:
		case apperrors.IsAuthError(err):
			authFailed++
			if setErr := a.stores.Providers.SetLastError(ctx, cfg.ID, err.Error()); setErr != nil {
				logger.AppLogger().WithProvider(cfg.ID).Error("failed to record auth error", setErr)
			}
			logger.AppLogger().WithProvider(cfg.ID).Error("provider authentication failed", err)
		default:
			// Transient upstream trouble is not fatal; the sync job retries
			logger.AppLogger().WithProvider(cfg.ID).Error("provider probe failed", err)
		}
	}
	return len(configs), authFailed, nil
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the ingestion engine: scheduler, event jobs and HTTP boundary",
	Run: func(cmd *cobra.Command, args []string) {
		a, err := buildApp()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error starting engine: %v\n", err)
			os.Exit(2)
		}
		defer a.close()

		ctx := context.Background()
		enabled, authFailed, err := a.probeProviders(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error probing providers: %v\n", err)
			os.Exit(2)
		}
		if enabled > 0 && authFailed == enabled {
			fmt.Fprintln(os.Stderr, "Error: authentication failed for every enabled provider")
			os.Exit(3)
		}

		handler := shutdown.New(30 * time.Second)

		if err := a.engine.Start(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "Error starting job engine: %v\n", err)
			os.Exit(2)
		}
		handler.Register("job engine", func(ctx context.Context) error {
			a.engine.Stop()
			return nil
		})

		server := api.NewServer(a.stores, a.queue, a.engine)
		go func() {
			if err := server.Start(a.cfg.API.Port); err != nil {
				logger.AppLogger().Error("http boundary stopped", err)
				handler.TriggerShutdown()
			}
		}()
		handler.Register("http boundary", server.Shutdown)

		logger.AppLogger().Info("engine started")
		if err := handler.Wait(); err != nil {
			fmt.Fprintf(os.Stderr, "Error during shutdown: %v\n", err)
			os.Exit(1)
		}
	},
}

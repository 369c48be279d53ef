package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/vodhub/vodhub/internal/database"
	apperrors "github.com/vodhub/vodhub/internal/errors"
	"github.com/vodhub/vodhub/internal/httpclient"
	"github.com/vodhub/vodhub/internal/logger"
	"github.com/vodhub/vodhub/internal/matcher"
	"github.com/vodhub/vodhub/internal/models"
	"github.com/vodhub/vodhub/internal/providers"
	"github.com/vodhub/vodhub/internal/reconciler"
)

// Service wires the ingestion jobs' dependencies and carries the job bodies
type Service struct {
	stores     *database.Stores
	registry   *providers.Registry
	client     *httpclient.Client
	matcher    *matcher.Matcher
	reconciler *reconciler.Reconciler
	engine     *Engine
	queue      *Queue
}

// NewService creates the job service
func NewService(stores *database.Stores, registry *providers.Registry, client *httpclient.Client, m *matcher.Matcher, r *reconciler.Reconciler, engine *Engine, queue *Queue) *Service {
	return &Service{
		stores:     stores,
		registry:   registry,
		client:     client,
		matcher:    m,
		reconciler: r,
		engine:     engine,
		queue:      queue,
	}
}

// RegisterAll installs every job on the engine
func (s *Service) RegisterAll(syncInterval, monitorInterval time.Duration) error {
	registrations := []struct {
		name     string
		interval time.Duration
		fn       JobFunc
	}{
		{JobSyncTitles, syncInterval, s.SyncProviderTitles},
		{JobMonitor, monitorInterval, s.MonitorProviderTitles},
		{JobProviderAdded, 0, s.ProviderAdded},
		{JobProviderEnabled, 0, s.ProviderEnabled},
		{JobCategoriesChanged, 0, s.CategoriesChanged},
		{JobProviderDeleted, 0, s.ProviderDeleted},
	}
	for _, reg := range registrations {
		if err := s.engine.Register(reg.name, reg.interval, reg.fn); err != nil {
			return err
		}
	}
	return nil
}

// Adapter returns the live adapter of one provider, creating it on first
// use. The run command uses it for the startup credential probe.
func (s *Service) Adapter(cfg *models.ProviderConfig) (providers.Adapter, error) {
	return s.adapterFor(cfg)
}

// adapterFor returns the live adapter of one provider, creating it on
// first use and refreshing its config otherwise
func (s *Service) adapterFor(cfg *models.ProviderConfig) (providers.Adapter, error) {
	if adapter, ok := s.registry.Get(cfg.ID); ok {
		adapter.ConfigUpdate(cfg)
		return adapter, nil
	}
	adapter, err := providers.NewAdapter(s.client, cfg)
	if err != nil {
		return nil, err
	}
	s.registry.Put(adapter)
	return adapter, nil
}

// SyncProviderTitles ingests every active provider's catalog, matches new
// titles and reconciles the canonical store
func (s *Service) SyncProviderTitles(ctx context.Context, run *Run) (string, error) {
	since := time.Time{}
	if run.LastExecution != nil {
		since = *run.LastExecution
	}

	configs, err := s.stores.Providers.ListActive(ctx)
	if err != nil {
		return "", err
	}

	log := logger.JobLogger().WithJob(JobSyncTitles)
	var synced, saved, matched, ignoredCount, errCount int

	for i := range configs {
		cfg := &configs[i]
		if err := ctx.Err(); err != nil {
			return "", apperrors.Cancelled(err)
		}
		if cfg.LastError != nil {
			logger.JobLogger().WithProvider(cfg.ID).
				Warn("skipping provider with pending error")
			continue
		}

		stat, err := s.syncProvider(ctx, cfg, since)
		if err != nil {
			if apperrors.IsCancelled(err) {
				return "", err
			}
			if apperrors.IsAuthError(err) {
				if setErr := s.stores.Providers.SetLastError(ctx, cfg.ID, err.Error()); setErr != nil {
					log.Error("failed to record provider auth error", setErr)
				}
			}
			errCount++
			logger.JobLogger().WithProvider(cfg.ID).Error("provider sync failed", err)
			continue
		}
		synced++
		saved += stat.TitlesSaved
		matched += stat.Matched
		ignoredCount += stat.Ignored
		errCount += stat.Errors

		if recErr := s.stores.Stats.Record(ctx, stat); recErr != nil {
			log.Error("failed to record sync stats", recErr)
		}
	}

	reconciled, err := s.reconcileSince(ctx, since)
	if err != nil {
		return "", err
	}

	return fmt.Sprintf("providers=%d saved=%d matched=%d ignored=%d reconciled=%d errors=%d",
		synced, saved, matched, ignoredCount, reconciled, errCount), nil
}

func (s *Service) syncProvider(ctx context.Context, cfg *models.ProviderConfig, since time.Time) (*models.Stat, error) {
	started := time.Now()

	adapter, err := s.adapterFor(cfg)
	if err != nil {
		return nil, err
	}

	categories, err := adapter.LoadCategories(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.stores.Providers.ReplaceCategories(ctx, cfg.ID, categories); err != nil {
		return nil, err
	}

	batch, err := adapter.LoadTitles(ctx, since)
	if err != nil {
		return nil, err
	}

	saved, err := s.stores.ProviderTitles.UpsertBatch(ctx, batch.Titles)
	if err != nil {
		return nil, err
	}

	matched, ignored, matchErrs := s.matchUnmatched(ctx, cfg.ID)

	return &models.Stat{
		Job:         JobSyncTitles,
		ProviderID:  cfg.ID,
		TitlesSeen:  len(batch.Titles),
		TitlesSaved: saved,
		Matched:     matched,
		Ignored:     ignored,
		Errors:      batch.Errors + matchErrs,
		DurationMS:  time.Since(started).Milliseconds(),
	}, nil
}

// matchUnmatched runs the matcher over every title of one provider still
// awaiting a verdict. Matcher upstream failures stop the loop; the titles
// stay unmatched and the next sync retries them.
func (s *Service) matchUnmatched(ctx context.Context, providerID string) (int, int, int) {
	log := logger.JobLogger().WithProvider(providerID)

	unmatched, err := s.stores.ProviderTitles.ListUnmatched(ctx, providerID)
	if err != nil {
		log.Error("failed to list unmatched titles", err)
		return 0, 0, 1
	}

	var matched, ignored, errCount int
	for i := range unmatched {
		title := &unmatched[i]
		if ctx.Err() != nil {
			break
		}

		verdict, err := s.matcher.Match(ctx, title)
		if err != nil {
			errCount++
			log.Error("title match failed", err)
			break
		}

		if verdict.Ignored {
			if err := s.stores.ProviderTitles.SetIgnored(ctx, title.ID, verdict.IgnoredReason); err != nil {
				errCount++
				log.Error("failed to persist ignored verdict", err)
			} else {
				ignored++
			}
			continue
		}
		if err := s.stores.ProviderTitles.SetMatch(ctx, title.ID, verdict.TMDBID); err != nil {
			errCount++
			log.Error("failed to persist match", err)
			continue
		}
		matched++
	}
	return matched, ignored, errCount
}

// reconcileSince rebuilds the canonical titles touched after since
func (s *Service) reconcileSince(ctx context.Context, since time.Time) (int, error) {
	activeIDs, err := s.stores.Providers.ActiveIDs(ctx)
	if err != nil {
		return 0, err
	}

	updated, err := s.stores.ProviderTitles.ListUpdatedSince(ctx, activeIDs, since)
	if err != nil {
		return 0, err
	}
	if len(updated) == 0 {
		return 0, nil
	}

	result, err := s.reconciler.Reconcile(ctx, updated)
	if err != nil {
		return 0, err
	}
	return result.Rebuilt + result.Deleted, nil
}

package jobs

import (
	"context"
	"fmt"
	"time"

	apperrors "github.com/vodhub/vodhub/internal/errors"
	"github.com/vodhub/vodhub/internal/logger"
	"github.com/vodhub/vodhub/internal/models"
)

// JobProviderDeleted cleans up after provider removals. It is not part of
// the timer schedule; the API boundary triggers it.
const JobProviderDeleted = "iptvProviderDeleted"

// ProviderAdded instantiates adapters for newly created providers and
// schedules a sync
func (s *Service) ProviderAdded(ctx context.Context, run *Run) (string, error) {
	ids := s.queue.Drain(ActionAdded)
	if len(ids) == 0 {
		return "queue empty", nil
	}

	processed := 0
	for _, id := range ids {
		cfg, err := s.stores.Providers.Get(ctx, id)
		if err != nil {
			logger.JobLogger().WithProvider(id).Error("added provider not found", err)
			continue
		}
		if !cfg.Active() {
			continue
		}
		if _, err := s.adapterFor(cfg); err != nil {
			logger.JobLogger().WithProvider(id).Error("failed to instantiate adapter", err)
			continue
		}
		processed++
	}

	if processed > 0 {
		s.engine.Trigger(JobSyncTitles)
	}
	return fmt.Sprintf("providers=%d", processed), nil
}

// ProviderEnabled handles the enablement toggle in both directions.
// Re-enabled providers get a fresh adapter and a sync; disabled ones
// have their contributions reconciled out of the canonical store so a
// title whose last source went dark does not linger.
func (s *Service) ProviderEnabled(ctx context.Context, run *Run) (string, error) {
	ids := s.queue.Drain(ActionEnabled)
	if len(ids) == 0 {
		return "queue empty", nil
	}

	var withdrawn []models.ProviderTitle
	enabled, disabled := 0, 0

	for _, id := range ids {
		cfg, err := s.stores.Providers.Get(ctx, id)
		if err != nil {
			logger.JobLogger().WithProvider(id).Error("toggled provider not found", err)
			continue
		}

		if !cfg.Active() {
			titles, err := s.stores.ProviderTitles.ListUpdatedSince(ctx, []string{id}, time.Time{})
			if err != nil {
				logger.JobLogger().WithProvider(id).Error("failed to list titles of disabled provider", err)
				continue
			}
			withdrawn = append(withdrawn, titles...)
			disabled++
			continue
		}

		if _, err := s.adapterFor(cfg); err != nil {
			logger.JobLogger().WithProvider(id).Error("failed to refresh adapter", err)
			continue
		}
		enabled++
	}

	if len(withdrawn) > 0 {
		if _, err := s.reconciler.Reconcile(ctx, withdrawn); err != nil {
			return "", err
		}
	}
	if enabled > 0 {
		s.engine.Trigger(JobSyncTitles)
	}
	return fmt.Sprintf("enabled=%d disabled=%d", enabled, disabled), nil
}

// CategoriesChanged applies category enablement changes: adapter configs
// are rebuilt, titles of disabled categories are removed and the affected
// canonical titles reconciled
func (s *Service) CategoriesChanged(ctx context.Context, run *Run) (string, error) {
	ids := s.queue.Drain(ActionCategoriesChanged)
	if len(ids) == 0 {
		return "queue empty", nil
	}

	var removedTitles []models.ProviderTitle
	processed := 0

	for _, id := range ids {
		cfg, err := s.stores.Providers.Get(ctx, id)
		if err != nil {
			logger.JobLogger().WithProvider(id).Error("changed provider not found", err)
			continue
		}
		if _, err := s.adapterFor(cfg); err != nil {
			logger.JobLogger().WithProvider(id).Error("failed to refresh adapter", err)
			continue
		}

		removed, err := s.removeDisabledCategories(ctx, cfg)
		if err != nil {
			if apperrors.IsCancelled(err) {
				return "", err
			}
			logger.JobLogger().WithProvider(id).Error("failed to remove disabled categories", err)
			continue
		}
		removedTitles = append(removedTitles, removed...)
		processed++
	}

	if len(removedTitles) > 0 {
		if _, err := s.reconciler.Reconcile(ctx, removedTitles); err != nil {
			return "", err
		}
	}
	return fmt.Sprintf("providers=%d removed_titles=%d", processed, len(removedTitles)), nil
}

// removeDisabledCategories deletes one provider's titles in categories no
// longer enabled and returns the removed rows for reconciliation
func (s *Service) removeDisabledCategories(ctx context.Context, cfg *models.ProviderConfig) ([]models.ProviderTitle, error) {
	categories, err := s.stores.Providers.ListCategories(ctx, cfg.ID)
	if err != nil {
		return nil, err
	}

	disabled := map[models.TitleType][]int{}
	for _, cat := range categories {
		if !cfg.EnabledCategories.Allows(cat.Type, cat.CategoryKey) {
			disabled[cat.Type] = append(disabled[cat.Type], cat.CategoryID)
		}
	}

	var removed []models.ProviderTitle
	for titleType, categoryIDs := range disabled {
		batch, err := s.stores.ProviderTitles.DeleteByCategories(ctx, cfg.ID, titleType, categoryIDs)
		if err != nil {
			return nil, err
		}
		removed = append(removed, batch...)
	}
	return removed, nil
}

// ProviderDeleted tears down removed providers: titles and stream rows go
// away, sources are reconciled out of the canonical store and the live
// adapter plus rate quota are dropped
func (s *Service) ProviderDeleted(ctx context.Context, run *Run) (string, error) {
	ids := s.queue.Drain(ActionDeleted)
	if len(ids) == 0 {
		return "queue empty", nil
	}

	var removedTitles []models.ProviderTitle
	for _, id := range ids {
		removed, err := s.stores.ProviderTitles.DeleteByProvider(ctx, id)
		if err != nil {
			logger.JobLogger().WithProvider(id).Error("failed to delete provider titles", err)
			continue
		}
		if err := s.stores.TitleStreams.DeleteByProvider(ctx, id); err != nil {
			logger.JobLogger().WithProvider(id).Error("failed to delete provider streams", err)
		}
		removedTitles = append(removedTitles, removed...)

		s.registry.Remove(id)
		s.client.Remove(id)
	}

	if len(removedTitles) > 0 {
		if _, err := s.reconciler.Reconcile(ctx, removedTitles); err != nil {
			return "", err
		}
	}
	return fmt.Sprintf("providers=%d removed_titles=%d", len(ids), len(removedTitles)), nil
}

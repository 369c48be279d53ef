package database

import (
	"context"
	"errors"
	"time"

	apperrors "github.com/vodhub/vodhub/internal/errors"
	"github.com/vodhub/vodhub/internal/models"
	"gorm.io/gorm"
)

// ProviderTitleStore accesses the per-provider title collections
type ProviderTitleStore struct {
	db *gorm.DB
}

// UpsertBatch writes a batch of provider titles inside one transaction,
// keyed by (provider_id, title_key). Existing match state survives the
// upsert: a re-fetched title keeps its tmdb_id / ignored flags unless the
// upstream entry changed enough to need re-matching.
func (s *ProviderTitleStore) UpsertBatch(ctx context.Context, titles []models.ProviderTitle) (int, error) {
	if len(titles) == 0 {
		return 0, nil
	}

	saved := 0
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for i := range titles {
			title := &titles[i]
			title.LastUpdated = time.Now()

			var existing models.ProviderTitle
			err := tx.Where("provider_id = ? AND title_key = ?", title.ProviderID, title.TitleKey).
				First(&existing).Error

			switch {
			case err == nil:
				title.ID = existing.ID
				if title.Title == existing.Title {
					// Same upstream name: keep the previous match verdict
					title.TMDBID = existing.TMDBID
					title.Ignored = existing.Ignored
					title.IgnoredReason = existing.IgnoredReason
				}
				if err := tx.Save(title).Error; err != nil {
					return err
				}
			case errors.Is(err, gorm.ErrRecordNotFound):
				if err := tx.Create(title).Error; err != nil {
					return err
				}
			default:
				return err
			}
			saved++
		}
		return nil
	})
	if err != nil {
		return saved, apperrors.PersistenceError("failed to upsert provider titles", err)
	}
	return saved, nil
}

// ListUpdatedSince returns titles of the given providers updated after since.
// A zero since means a full listing.
func (s *ProviderTitleStore) ListUpdatedSince(ctx context.Context, providerIDs []string, since time.Time) ([]models.ProviderTitle, error) {
	if len(providerIDs) == 0 {
		return nil, nil
	}

	query := s.db.WithContext(ctx).Where("provider_id IN ?", providerIDs)
	if !since.IsZero() {
		query = query.Where("last_updated > ?", since)
	}

	var titles []models.ProviderTitle
	if err := query.Find(&titles).Error; err != nil {
		return nil, apperrors.PersistenceError("failed to list provider titles", err)
	}
	return titles, nil
}

// ListContributors returns the non-ignored matched titles of the given
// providers for one canonical (type, tmdb_id) pair
func (s *ProviderTitleStore) ListContributors(ctx context.Context, titleType models.TitleType, tmdbID int, providerIDs []string) ([]models.ProviderTitle, error) {
	if len(providerIDs) == 0 {
		return nil, nil
	}

	var titles []models.ProviderTitle
	err := s.db.WithContext(ctx).
		Where("type = ? AND tmdb_id = ? AND ignored = ? AND provider_id IN ?",
			titleType, tmdbID, false, providerIDs).
		Find(&titles).Error
	if err != nil {
		return nil, apperrors.PersistenceError("failed to list contributing titles", err)
	}
	return titles, nil
}

// ListUnmatched returns titles of one provider still awaiting a match verdict
func (s *ProviderTitleStore) ListUnmatched(ctx context.Context, providerID string) ([]models.ProviderTitle, error) {
	var titles []models.ProviderTitle
	err := s.db.WithContext(ctx).
		Where("provider_id = ? AND tmdb_id IS NULL AND ignored = ?", providerID, false).
		Find(&titles).Error
	if err != nil {
		return nil, apperrors.PersistenceError("failed to list unmatched titles", err)
	}
	return titles, nil
}

// SetMatch records a successful match
func (s *ProviderTitleStore) SetMatch(ctx context.Context, id uint, tmdbID int) error {
	err := s.db.WithContext(ctx).Model(&models.ProviderTitle{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"tmdb_id":        tmdbID,
			"ignored":        false,
			"ignored_reason": "",
			"last_updated":   time.Now(),
		}).Error
	if err != nil {
		return apperrors.PersistenceError("failed to record match", err)
	}
	return nil
}

// SetIgnored flags a title as excluded from reconciliation
func (s *ProviderTitleStore) SetIgnored(ctx context.Context, id uint, reason models.IgnoredReason) error {
	err := s.db.WithContext(ctx).Model(&models.ProviderTitle{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"tmdb_id":        nil,
			"ignored":        true,
			"ignored_reason": reason,
			"last_updated":   time.Now(),
		}).Error
	if err != nil {
		return apperrors.PersistenceError("failed to flag ignored title", err)
	}
	return nil
}

// DeleteByCategories removes one provider's titles in the given categories
// and returns the removed rows so the caller can reconcile the affected
// canonical titles
func (s *ProviderTitleStore) DeleteByCategories(ctx context.Context, providerID string, titleType models.TitleType, categoryIDs []int) ([]models.ProviderTitle, error) {
	if len(categoryIDs) == 0 {
		return nil, nil
	}

	var removed []models.ProviderTitle
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("provider_id = ? AND type = ? AND category_id IN ?",
			providerID, titleType, categoryIDs).
			Find(&removed).Error; err != nil {
			return err
		}
		if len(removed) == 0 {
			return nil
		}
		return tx.Where("provider_id = ? AND type = ? AND category_id IN ?",
			providerID, titleType, categoryIDs).
			Delete(&models.ProviderTitle{}).Error
	})
	if err != nil {
		return nil, apperrors.PersistenceError("failed to delete titles by category", err)
	}
	return removed, nil
}

// DeleteByProvider removes every title of one provider and returns the
// removed rows
func (s *ProviderTitleStore) DeleteByProvider(ctx context.Context, providerID string) ([]models.ProviderTitle, error) {
	var removed []models.ProviderTitle
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("provider_id = ?", providerID).Find(&removed).Error; err != nil {
			return err
		}
		if len(removed) == 0 {
			return nil
		}
		return tx.Where("provider_id = ?", providerID).Delete(&models.ProviderTitle{}).Error
	})
	if err != nil {
		return nil, apperrors.PersistenceError("failed to delete provider titles", err)
	}
	return removed, nil
}

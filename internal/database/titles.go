package database

import (
	"context"
	"errors"
	"time"

	apperrors "github.com/vodhub/vodhub/internal/errors"
	"github.com/vodhub/vodhub/internal/models"
	"gorm.io/gorm"
)

// TitleStore accesses the canonical titles collection
type TitleStore struct {
	db *gorm.DB
}

// Upsert writes a canonical title keyed by title_key. Stream maps are
// normalized before persisting so identical rebuilds produce identical rows.
func (s *TitleStore) Upsert(ctx context.Context, title *models.CanonicalTitle) error {
	title.Streams.Normalize()
	title.LastUpdated = time.Now()

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing models.CanonicalTitle
		err := tx.First(&existing, "title_key = ?", title.TitleKey).Error
		switch {
		case err == nil:
			title.CreatedAt = existing.CreatedAt
			return tx.Save(title).Error
		case errors.Is(err, gorm.ErrRecordNotFound):
			title.CreatedAt = title.LastUpdated
			return tx.Create(title).Error
		default:
			return err
		}
	})
	if err != nil {
		return apperrors.PersistenceError("failed to upsert title", err)
	}
	return nil
}

// Get loads one canonical title by key
func (s *TitleStore) Get(ctx context.Context, titleKey string) (*models.CanonicalTitle, error) {
	var title models.CanonicalTitle
	err := s.db.WithContext(ctx).First(&title, "title_key = ?", titleKey).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.NotFoundError("title", titleKey)
	}
	if err != nil {
		return nil, apperrors.PersistenceError("failed to load title", err)
	}
	return &title, nil
}

// Delete removes a canonical title that no provider contributes to anymore
func (s *TitleStore) Delete(ctx context.Context, titleKey string) error {
	err := s.db.WithContext(ctx).
		Delete(&models.CanonicalTitle{}, "title_key = ?", titleKey).Error
	if err != nil {
		return apperrors.PersistenceError("failed to delete title", err)
	}
	return nil
}

// ExistingKeys reports which of the given keys are already present
func (s *TitleStore) ExistingKeys(ctx context.Context, keys []string) (map[string]bool, error) {
	if len(keys) == 0 {
		return map[string]bool{}, nil
	}

	var found []string
	err := s.db.WithContext(ctx).Model(&models.CanonicalTitle{}).
		Where("title_key IN ?", keys).
		Pluck("title_key", &found).Error
	if err != nil {
		return nil, apperrors.PersistenceError("failed to check title keys", err)
	}

	present := make(map[string]bool, len(found))
	for _, k := range found {
		present[k] = true
	}
	return present, nil
}

// Count returns the number of canonical titles, optionally per type
func (s *TitleStore) Count(ctx context.Context, titleType models.TitleType) (int64, error) {
	query := s.db.WithContext(ctx).Model(&models.CanonicalTitle{})
	if titleType != "" {
		query = query.Where("type = ?", titleType)
	}

	var count int64
	if err := query.Count(&count).Error; err != nil {
		return 0, apperrors.PersistenceError("failed to count titles", err)
	}
	return count, nil
}

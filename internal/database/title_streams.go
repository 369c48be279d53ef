package database

import (
	"context"
	"time"

	apperrors "github.com/vodhub/vodhub/internal/errors"
	"github.com/vodhub/vodhub/internal/models"
	"gorm.io/gorm"
)

// TitleStreamStore accesses the derived titles_streams collection
type TitleStreamStore struct {
	db *gorm.DB
}

// ReplaceForCanonical swaps the stream rows of one canonical title for the
// desired set. Rows are diffed by key so an unchanged rebuild touches nothing.
func (s *TitleStreamStore) ReplaceForCanonical(ctx context.Context, titleType models.TitleType, tmdbID int, desired []models.TitleStream) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var current []models.TitleStream
		if err := tx.Where("type = ? AND tmdb_id = ?", titleType, tmdbID).
			Find(&current).Error; err != nil {
			return err
		}

		currentByKey := make(map[string]models.TitleStream, len(current))
		for _, row := range current {
			currentByKey[row.Key] = row
		}

		desiredKeys := make(map[string]bool, len(desired))
		for i := range desired {
			row := &desired[i]
			desiredKeys[row.Key] = true

			existing, ok := currentByKey[row.Key]
			if ok && streamEqual(&existing, row) {
				continue
			}
			row.LastUpdated = time.Now()
			if err := tx.Save(row).Error; err != nil {
				return err
			}
		}

		for key := range currentByKey {
			if !desiredKeys[key] {
				if err := tx.Delete(&models.TitleStream{}, "key = ?", key).Error; err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		return apperrors.PersistenceError("failed to replace title streams", err)
	}
	return nil
}

func streamEqual(a, b *models.TitleStream) bool {
	return a.ProxyPath == b.ProxyPath &&
		a.ProxyURL == b.ProxyURL &&
		a.TvgID == b.TvgID &&
		a.TvgName == b.TvgName &&
		a.TvgLogo == b.TvgLogo &&
		a.GroupTitle == b.GroupTitle
}

// DeleteForCanonical removes every stream row of one canonical title
func (s *TitleStreamStore) DeleteForCanonical(ctx context.Context, titleType models.TitleType, tmdbID int) error {
	err := s.db.WithContext(ctx).
		Where("type = ? AND tmdb_id = ?", titleType, tmdbID).
		Delete(&models.TitleStream{}).Error
	if err != nil {
		return apperrors.PersistenceError("failed to delete title streams", err)
	}
	return nil
}

// DeleteByProvider removes every stream row contributed by one provider
func (s *TitleStreamStore) DeleteByProvider(ctx context.Context, providerID string) error {
	err := s.db.WithContext(ctx).
		Where("provider_id = ?", providerID).
		Delete(&models.TitleStream{}).Error
	if err != nil {
		return apperrors.PersistenceError("failed to delete provider streams", err)
	}
	return nil
}

// ListForCanonical returns the stream rows of one canonical title
func (s *TitleStreamStore) ListForCanonical(ctx context.Context, titleType models.TitleType, tmdbID int) ([]models.TitleStream, error) {
	var rows []models.TitleStream
	err := s.db.WithContext(ctx).
		Where("type = ? AND tmdb_id = ?", titleType, tmdbID).
		Order("key").
		Find(&rows).Error
	if err != nil {
		return nil, apperrors.PersistenceError("failed to list title streams", err)
	}
	return rows, nil
}

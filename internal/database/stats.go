package database

import (
	"context"
	"time"

	apperrors "github.com/vodhub/vodhub/internal/errors"
	"github.com/vodhub/vodhub/internal/models"
	"gorm.io/gorm"
)

// StatStore accesses the per-sync counter collection
type StatStore struct {
	db *gorm.DB
}

// Record writes one counter row at job completion
func (s *StatStore) Record(ctx context.Context, stat *models.Stat) error {
	stat.RecordedAt = time.Now()
	if err := s.db.WithContext(ctx).Create(stat).Error; err != nil {
		return apperrors.PersistenceError("failed to record stats", err)
	}
	return nil
}

// ListByJob returns the most recent counter rows of one job
func (s *StatStore) ListByJob(ctx context.Context, job string, limit int) ([]models.Stat, error) {
	if limit <= 0 {
		limit = 20
	}
	var stats []models.Stat
	err := s.db.WithContext(ctx).
		Where("job = ?", job).
		Order("recorded_at DESC").
		Limit(limit).
		Find(&stats).Error
	if err != nil {
		return nil, apperrors.PersistenceError("failed to list stats", err)
	}
	return stats, nil
}

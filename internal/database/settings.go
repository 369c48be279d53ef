package database

import (
	"context"
	"errors"
	"time"

	apperrors "github.com/vodhub/vodhub/internal/errors"
	"github.com/vodhub/vodhub/internal/models"
	"gorm.io/gorm"
)

// SettingStore accesses the runtime settings collection
type SettingStore struct {
	db *gorm.DB
}

// Get returns the value of one setting
func (s *SettingStore) Get(ctx context.Context, key string) (string, error) {
	var setting models.Setting
	err := s.db.WithContext(ctx).First(&setting, "key = ?", key).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", apperrors.NotFoundError("setting", key)
	}
	if err != nil {
		return "", apperrors.PersistenceError("failed to load setting", err)
	}
	return setting.Value, nil
}

// GetOr returns the value of one setting or a fallback when unset
func (s *SettingStore) GetOr(ctx context.Context, key, fallback string) string {
	value, err := s.Get(ctx, key)
	if err != nil {
		return fallback
	}
	return value
}

// Set writes one setting
func (s *SettingStore) Set(ctx context.Context, key, value string) error {
	setting := models.Setting{
		Key:         key,
		Value:       value,
		LastUpdated: time.Now(),
	}
	if err := s.db.WithContext(ctx).Save(&setting).Error; err != nil {
		return apperrors.PersistenceError("failed to save setting", err)
	}
	return nil
}

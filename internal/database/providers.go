package database

import (
	"context"
	"errors"
	"time"

	apperrors "github.com/vodhub/vodhub/internal/errors"
	"github.com/vodhub/vodhub/internal/models"
	"gorm.io/gorm"
)

// ProviderStore accesses the iptv_providers collection
type ProviderStore struct {
	db *gorm.DB
}

// Create inserts a new provider config. The supplied id is slug-normalized;
// a second creation with an id that slugifies equally is rejected.
func (s *ProviderStore) Create(ctx context.Context, cfg *models.ProviderConfig) error {
	cfg.ID = models.Slugify(cfg.ID)
	if cfg.ID == "" {
		return apperrors.New(apperrors.CodeValidation, "provider id is required")
	}
	if len(cfg.StreamsURLs) == 0 {
		return apperrors.New(apperrors.CodeValidation, "streams_urls must contain the API URL")
	}
	if cfg.Type != models.ProviderTypeXtream && cfg.Type != models.ProviderTypeAGTV {
		return apperrors.New(apperrors.CodeValidation, "unknown provider type")
	}

	now := time.Now()
	cfg.CreatedAt = now
	cfg.LastUpdated = now

	var count int64
	if err := s.db.WithContext(ctx).Model(&models.ProviderConfig{}).
		Where("id = ?", cfg.ID).Count(&count).Error; err != nil {
		return apperrors.PersistenceError("failed to check provider id", err)
	}
	if count > 0 {
		return apperrors.ConflictError("provider", cfg.ID)
	}

	if err := s.db.WithContext(ctx).Create(cfg).Error; err != nil {
		return apperrors.PersistenceError("failed to create provider", err)
	}
	return nil
}

// Get loads one provider by id
func (s *ProviderStore) Get(ctx context.Context, id string) (*models.ProviderConfig, error) {
	var cfg models.ProviderConfig
	err := s.db.WithContext(ctx).First(&cfg, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.NotFoundError("provider", id)
	}
	if err != nil {
		return nil, apperrors.PersistenceError("failed to load provider", err)
	}
	return &cfg, nil
}

// List returns all non-deleted providers
func (s *ProviderStore) List(ctx context.Context) ([]models.ProviderConfig, error) {
	var configs []models.ProviderConfig
	err := s.db.WithContext(ctx).
		Where("deleted = ?", false).
		Order("id").
		Find(&configs).Error
	if err != nil {
		return nil, apperrors.PersistenceError("failed to list providers", err)
	}
	return configs, nil
}

// ListActive returns providers that participate in ingestion
func (s *ProviderStore) ListActive(ctx context.Context) ([]models.ProviderConfig, error) {
	var configs []models.ProviderConfig
	err := s.db.WithContext(ctx).
		Where("enabled = ? AND deleted = ?", true, false).
		Order("id").
		Find(&configs).Error
	if err != nil {
		return nil, apperrors.PersistenceError("failed to list active providers", err)
	}
	return configs, nil
}

// ActiveIDs returns the ids of providers that participate in ingestion
func (s *ProviderStore) ActiveIDs(ctx context.Context) ([]string, error) {
	configs, err := s.ListActive(ctx)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(configs))
	for _, c := range configs {
		ids = append(ids, c.ID)
	}
	return ids, nil
}

// Update persists a modified config. The id is immutable; the last_error
// annotation is cleared so a fixed config gets a fresh chance.
func (s *ProviderStore) Update(ctx context.Context, cfg *models.ProviderConfig) error {
	cfg.LastUpdated = time.Now()
	cfg.LastError = nil
	result := s.db.WithContext(ctx).Model(&models.ProviderConfig{}).
		Where("id = ?", cfg.ID).
		Select("Type", "Enabled", "StreamsURLs", "Username", "Password",
			"EnabledCategories", "APIRate", "Cleanup", "LastError", "LastUpdated").
		Updates(cfg)
	if result.Error != nil {
		return apperrors.PersistenceError("failed to update provider", result.Error)
	}
	if result.RowsAffected == 0 {
		return apperrors.NotFoundError("provider", cfg.ID)
	}
	return nil
}

// SetEnabled toggles a provider
func (s *ProviderStore) SetEnabled(ctx context.Context, id string, enabled bool) error {
	result := s.db.WithContext(ctx).Model(&models.ProviderConfig{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{"enabled": enabled, "last_updated": time.Now()})
	if result.Error != nil {
		return apperrors.PersistenceError("failed to toggle provider", result.Error)
	}
	if result.RowsAffected == 0 {
		return apperrors.NotFoundError("provider", id)
	}
	return nil
}

// SoftDelete marks a provider deleted without removing history
func (s *ProviderStore) SoftDelete(ctx context.Context, id string) error {
	result := s.db.WithContext(ctx).Model(&models.ProviderConfig{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{"deleted": true, "enabled": false, "last_updated": time.Now()})
	if result.Error != nil {
		return apperrors.PersistenceError("failed to delete provider", result.Error)
	}
	if result.RowsAffected == 0 {
		return apperrors.NotFoundError("provider", id)
	}
	return nil
}

// SetLastError records an upstream auth annotation; sync jobs skip the
// provider until the admin edits its config
func (s *ProviderStore) SetLastError(ctx context.Context, id, message string) error {
	err := s.db.WithContext(ctx).Model(&models.ProviderConfig{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{"last_error": message, "last_updated": time.Now()}).Error
	if err != nil {
		return apperrors.PersistenceError("failed to record provider error", err)
	}
	return nil
}

// ReplaceCategories swaps the stored category set of one provider
func (s *ProviderStore) ReplaceCategories(ctx context.Context, providerID string, categories []models.ProviderCategory) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("provider_id = ?", providerID).
			Delete(&models.ProviderCategory{}).Error; err != nil {
			return err
		}
		for i := range categories {
			categories[i].ID = 0
			categories[i].ProviderID = providerID
		}
		if len(categories) == 0 {
			return nil
		}
		return tx.Create(&categories).Error
	})
	if err != nil {
		return apperrors.PersistenceError("failed to replace categories", err)
	}
	return nil
}

// ListCategories returns the stored categories of one provider
func (s *ProviderStore) ListCategories(ctx context.Context, providerID string) ([]models.ProviderCategory, error) {
	var categories []models.ProviderCategory
	err := s.db.WithContext(ctx).
		Where("provider_id = ?", providerID).
		Order("category_key").
		Find(&categories).Error
	if err != nil {
		return nil, apperrors.PersistenceError("failed to list categories", err)
	}
	return categories, nil
}

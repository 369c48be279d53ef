package testing

import (
	"testing"
	"time"

	"github.com/vodhub/vodhub/internal/database"
	"github.com/vodhub/vodhub/internal/models"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// TestDB creates an in-memory SQLite database for testing
func TestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}

	if err := database.Migrate(db); err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}

	return db
}

// TestStores creates the store bundle over an in-memory database
func TestStores(t *testing.T) *database.Stores {
	t.Helper()
	return database.NewStores(TestDB(t))
}

// CreateProvider creates a test provider config
func CreateProvider(db *gorm.DB, overrides ...func(*models.ProviderConfig)) *models.ProviderConfig {
	cfg := &models.ProviderConfig{
		ID:          "px",
		Type:        models.ProviderTypeXtream,
		Enabled:     true,
		StreamsURLs: models.StringList{"http://provider.example/"},
		Username:    "user",
		Password:    "pass",
		APIRate:     models.APIRate{Concurrent: 2, DurationSeconds: 1},
		CreatedAt:   time.Now(),
		LastUpdated: time.Now(),
	}

	for _, override := range overrides {
		override(cfg)
	}

	db.Create(cfg)
	return cfg
}

// CreateProviderTitle creates a test provider title
func CreateProviderTitle(db *gorm.DB, overrides ...func(*models.ProviderTitle)) *models.ProviderTitle {
	title := &models.ProviderTitle{
		ProviderID:  "px",
		Type:        models.TitleTypeMovies,
		TitleID:     "100",
		TitleKey:    "movies-100",
		Title:       "Test Movie (2024)",
		CategoryID:  10,
		Streams:     models.StringMap{models.MainSlot: "http://provider.example/movie/100.mkv"},
		LastUpdated: time.Now(),
	}

	for _, override := range overrides {
		override(title)
	}

	db.Create(title)
	return title
}

// CreateCanonicalTitle creates a test canonical title
func CreateCanonicalTitle(db *gorm.DB, overrides ...func(*models.CanonicalTitle)) *models.CanonicalTitle {
	title := &models.CanonicalTitle{
		TitleKey:    "movies-438631",
		TitleID:     438631,
		Type:        models.TitleTypeMovies,
		Title:       "Dune",
		ReleaseDate: "2021-09-15",
		Streams: models.StreamsMap{
			models.MainSlot: {Sources: models.StringList{"px"}},
		},
		CreatedAt:   time.Now(),
		LastUpdated: time.Now(),
	}

	for _, override := range overrides {
		override(title)
	}

	db.Create(title)
	return title
}

package database

import (
	"fmt"
	"time"

	"github.com/vodhub/vodhub/internal/config"
	"github.com/vodhub/vodhub/internal/logger"
	"github.com/vodhub/vodhub/internal/models"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

var db *gorm.DB

// Initialize sets up the database connection and runs migrations
func Initialize() error {
	cfg := config.Get()

	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Database.Host,
		cfg.Database.Port,
		cfg.Database.User,
		cfg.Database.Password,
		cfg.Database.DBName,
		cfg.Database.SSLMode,
	)

	gormLogger := logger.NewGormAdapter(logger.AppLogger(), cfg.GetAppLogLevel())

	var err error
	db, err = gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormLogger,
	})
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get database instance: %w", err)
	}

	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := Migrate(db); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// Get returns the database instance
func Get() *gorm.DB {
	return db
}

// Migrate runs auto-migrations for all engine collections
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.ProviderConfig{},
		&models.ProviderCategory{},
		&models.ProviderTitle{},
		&models.CanonicalTitle{},
		&models.TitleStream{},
		&models.JobRecord{},
		&models.Setting{},
		&models.User{},
		&models.Stat{},
	)
}

// HealthCheck verifies database connectivity
func HealthCheck() error {
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get database instance: %w", err)
	}

	if err := sqlDB.Ping(); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	return nil
}

// Close closes the database connection
func Close() error {
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get database instance: %w", err)
	}

	return sqlDB.Close()
}

// Stores bundles the per-collection accessors around one connection
type Stores struct {
	Providers      *ProviderStore
	ProviderTitles *ProviderTitleStore
	Titles         *TitleStore
	TitleStreams   *TitleStreamStore
	Jobs           *JobStore
	Settings       *SettingStore
	Users          *UserStore
	Stats          *StatStore
}

// NewStores creates the store bundle for a connection
func NewStores(db *gorm.DB) *Stores {
	return &Stores{
		Providers:      &ProviderStore{db: db},
		ProviderTitles: &ProviderTitleStore{db: db},
		Titles:         &TitleStore{db: db},
		TitleStreams:   &TitleStreamStore{db: db},
		Jobs:           &JobStore{db: db},
		Settings:       &SettingStore{db: db},
		Users:          &UserStore{db: db},
		Stats:          &StatStore{db: db},
	}
}

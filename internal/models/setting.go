package models

import "time"

// Setting keys consumed by the engine
const (
	SettingTMDBToken             = "tmdb_token"
	SettingLogStreamLevel        = "log_stream_level"
	SettingLogUnmanagedEndpoints = "log_unmanaged_endpoints"
)

// Setting is a key/value configuration entry editable at runtime
type Setting struct {
	Key         string    `gorm:"primaryKey;type:varchar(64)" json:"key"`
	Value       string    `gorm:"type:text" json:"value"`
	LastUpdated time.Time `gorm:"not null" json:"last_updated"`
}

// TableName specifies the table name for Setting
func (Setting) TableName() string {
	return "settings"
}

// User is an account row; the engine only seeds the default admin
type User struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	Username     string    `gorm:"type:varchar(64);not null;uniqueIndex" json:"username"`
	PasswordHash string    `gorm:"type:varchar(128);not null" json:"-"`
	IsAdmin      bool      `gorm:"not null;default:false" json:"is_admin"`
	CreatedAt    time.Time `gorm:"not null" json:"created_at"`
}

// TableName specifies the table name for User
func (User) TableName() string {
	return "users"
}

// Stat is a per-sync counter row written at job completion
type Stat struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	Job         string    `gorm:"type:varchar(64);not null;index" json:"job"`
	ProviderID  string    `gorm:"type:varchar(64);index" json:"provider_id"`
	TitlesSeen  int       `json:"titles_seen"`
	TitlesSaved int       `json:"titles_saved"`
	Matched     int       `json:"matched"`
	Ignored     int       `json:"ignored"`
	Errors      int       `json:"errors"`
	DurationMS  int64     `json:"duration_ms"`
	RecordedAt  time.Time `gorm:"not null" json:"recorded_at"`
}

// TableName specifies the table name for Stat
func (Stat) TableName() string {
	return "stats"
}

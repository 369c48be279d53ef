package models

import (
	"database/sql/driver"
	"time"
)

// APIRate caps upstream calls for one provider: at most Concurrent calls
// in flight and at most Concurrent calls per DurationSeconds window.
type APIRate struct {
	Concurrent      int `json:"concurrent"`
	DurationSeconds int `json:"duration_seconds"`
}

// Value implements driver.Valuer
func (r APIRate) Value() (driver.Value, error) {
	return jsonValue(r)
}

// Scan implements sql.Scanner
func (r *APIRate) Scan(value interface{}) error {
	return scanJSON(value, r)
}

// EnabledCategories holds the category keys enabled per title type
type EnabledCategories struct {
	Movies  []string `json:"movies"`
	TVShows []string `json:"tvshows"`
}

// Value implements driver.Valuer
func (c EnabledCategories) Value() (driver.Value, error) {
	return jsonValue(c)
}

// Scan implements sql.Scanner
func (c *EnabledCategories) Scan(value interface{}) error {
	return scanJSON(value, c)
}

// ForType returns the enabled category keys for one title type
func (c EnabledCategories) ForType(t TitleType) []string {
	if t == TitleTypeMovies {
		return c.Movies
	}
	return c.TVShows
}

// Allows reports whether a category key passes the enablement filter.
// An empty set for a type enables every category of that type.
func (c EnabledCategories) Allows(t TitleType, categoryKey string) bool {
	keys := c.ForType(t)
	if len(keys) == 0 {
		return true
	}
	for _, k := range keys {
		if k == categoryKey {
			return true
		}
	}
	return false
}

// CleanupRule rewrites upstream title names before persisting
type CleanupRule struct {
	Pattern string `json:"pattern"`
	Replace string `json:"replace"`
}

// CleanupRules is an ordered JSON-serialized rule list column
type CleanupRules []CleanupRule

// Value implements driver.Valuer
func (r CleanupRules) Value() (driver.Value, error) {
	if r == nil {
		r = CleanupRules{}
	}
	return jsonValue(r)
}

// Scan implements sql.Scanner
func (r *CleanupRules) Scan(value interface{}) error {
	return scanJSON(value, r)
}

// ProviderConfig represents one upstream IPTV provider. The id is a slug
// assigned at creation and never mutated; providers are soft-deleted only.
type ProviderConfig struct {
	ID                string            `gorm:"primaryKey;type:varchar(64)" json:"id"`
	Type              ProviderType      `gorm:"type:varchar(20);not null" json:"type"`
	Enabled           bool              `gorm:"not null;default:false" json:"enabled"`
	Deleted           bool              `gorm:"not null;default:false" json:"deleted"`
	StreamsURLs       StringList        `gorm:"type:text;not null" json:"streams_urls"`
	Username          string            `gorm:"type:varchar(255)" json:"username"`
	Password          string            `gorm:"type:varchar(255)" json:"password"`
	EnabledCategories EnabledCategories `gorm:"type:text" json:"enabled_categories"`
	APIRate           APIRate           `gorm:"type:text" json:"api_rate"`
	Cleanup           CleanupRules      `gorm:"type:text" json:"cleanup"`
	LastError         *string           `gorm:"type:text" json:"last_error,omitempty"`
	CreatedAt         time.Time         `gorm:"not null" json:"createdAt"`
	LastUpdated       time.Time         `gorm:"not null" json:"lastUpdated"`
}

// TableName specifies the table name for ProviderConfig
func (ProviderConfig) TableName() string {
	return "iptv_providers"
}

// APIURL returns the base URL used for control calls (index 0 by contract)
func (p *ProviderConfig) APIURL() string {
	if len(p.StreamsURLs) == 0 {
		return ""
	}
	return p.StreamsURLs[0]
}

// Active reports whether the provider participates in ingestion
func (p *ProviderConfig) Active() bool {
	return p.Enabled && !p.Deleted
}

// RateOrDefault returns the provider quota, defaulting to one call per second
func (p *ProviderConfig) RateOrDefault() APIRate {
	r := p.APIRate
	if r.Concurrent <= 0 {
		r.Concurrent = 1
	}
	if r.DurationSeconds <= 0 {
		r.DurationSeconds = 1
	}
	return r
}

// ProviderCategory represents one upstream category of a provider feed
type ProviderCategory struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	ProviderID   string    `gorm:"type:varchar(64);not null;uniqueIndex:idx_provider_category" json:"provider_id"`
	CategoryID   int       `gorm:"not null" json:"category_id"`
	Type         TitleType `gorm:"type:varchar(20);not null" json:"type"`
	CategoryKey  string    `gorm:"type:varchar(40);not null;uniqueIndex:idx_provider_category" json:"category_key"`
	CategoryName string    `gorm:"type:varchar(255);not null" json:"category_name"`
}

// TableName specifies the table name for ProviderCategory
func (ProviderCategory) TableName() string {
	return "iptv_provider_categories"
}

package models

import "time"

// TitleStream is a derived per-(provider, slot) row carrying the proxy
// metadata the playlist generators read. Only the reconciler writes it.
type TitleStream struct {
	Key         string    `gorm:"primaryKey;type:varchar(128)" json:"key"`
	Type        TitleType `gorm:"type:varchar(20);not null" json:"type"`
	TMDBID      int       `gorm:"not null;index" json:"tmdb_id"`
	Slot        string    `gorm:"type:varchar(16);not null" json:"slot"`
	ProviderID  string    `gorm:"type:varchar(64);not null;index" json:"provider_id"`
	ProxyPath   string    `gorm:"type:varchar(255);not null" json:"proxy_path"`
	ProxyURL    string    `gorm:"type:varchar(512);not null" json:"proxy_url"`
	TvgID       string    `gorm:"type:varchar(64)" json:"tvg_id"`
	TvgName     string    `gorm:"type:varchar(512)" json:"tvg_name"`
	TvgLogo     string    `gorm:"type:varchar(255)" json:"tvg_logo"`
	GroupTitle  string    `gorm:"type:varchar(255)" json:"group_title"`
	LastUpdated time.Time `gorm:"not null" json:"lastUpdated"`
}

// TableName specifies the table name for TitleStream
func (TitleStream) TableName() string {
	return "titles_streams"
}

package models

import "time"

// IgnoredReason explains why a provider title was excluded from
// reconciliation. The set is closed; free-form reasons are not persisted.
type IgnoredReason string

const (
	IgnoredAmbiguousMatch IgnoredReason = "ambiguous_match"
	IgnoredNoCandidate    IgnoredReason = "no_candidate"
	IgnoredEmptyName      IgnoredReason = "empty_name"
	IgnoredMissingYear    IgnoredReason = "missing_year"
	IgnoredUnknownType    IgnoredReason = "unknown_type"
)

// ProviderTitle represents a record derived from one provider's feed.
// Streams maps slot keys ("main" or "S{NN}-E{NN}") to upstream paths.
type ProviderTitle struct {
	ID            uint          `gorm:"primaryKey" json:"id"`
	ProviderID    string        `gorm:"type:varchar(64);not null;uniqueIndex:idx_provider_title;index:idx_provider_titles_tmdb" json:"provider_id"`
	Type          TitleType     `gorm:"type:varchar(20);not null;index:idx_provider_titles_match" json:"type"`
	TitleID       string        `gorm:"type:varchar(64);not null" json:"title_id"`
	TitleKey      string        `gorm:"type:varchar(96);not null;uniqueIndex:idx_provider_title" json:"title_key"`
	Title         string        `gorm:"type:varchar(512);not null" json:"title"`
	ReleaseDate   string        `gorm:"type:varchar(10)" json:"release_date"`
	CategoryID    int           `gorm:"index" json:"category_id"`
	Streams       StringMap     `gorm:"type:text" json:"streams"`
	TMDBID        *int          `gorm:"index:idx_provider_titles_match;index:idx_provider_titles_tmdb" json:"tmdb_id,omitempty"`
	Ignored       bool          `gorm:"not null;default:false" json:"ignored"`
	IgnoredReason IgnoredReason `gorm:"type:varchar(32)" json:"ignored_reason,omitempty"`
	LastUpdated   time.Time     `gorm:"not null;index" json:"lastUpdated"`
}

// TableName specifies the table name for ProviderTitle
func (ProviderTitle) TableName() string {
	return "iptv_provider_titles"
}

// Matched reports whether the title contributes to reconciliation
func (t *ProviderTitle) Matched() bool {
	return t.TMDBID != nil && !t.Ignored
}

// CanonicalKey returns the canonical key this title contributes to, or ""
func (t *ProviderTitle) CanonicalKey() string {
	if t.TMDBID == nil {
		return ""
	}
	return CanonicalKey(t.Type, *t.TMDBID)
}

package models

import (
	"database/sql/driver"
	"sort"
	"time"
)

// StreamSources holds the providers contributing one stream slot
type StreamSources struct {
	Sources StringList `json:"sources"`
}

// StreamsMap maps slot keys to contributing provider sets
type StreamsMap map[string]StreamSources

// Value implements driver.Valuer
func (m StreamsMap) Value() (driver.Value, error) {
	if m == nil {
		m = StreamsMap{}
	}
	return jsonValue(m)
}

// Scan implements sql.Scanner
func (m *StreamsMap) Scan(value interface{}) error {
	return scanJSON(value, m)
}

// Normalize sorts every source list so persisted records compare equal
// regardless of rebuild order
func (m StreamsMap) Normalize() {
	for slot, s := range m {
		sorted := append(StringList{}, s.Sources...)
		sort.Strings(sorted)
		m[slot] = StreamSources{Sources: sorted}
	}
}

// CanonicalTitle is a TMDB-keyed record aggregating provider titles
type CanonicalTitle struct {
	TitleKey      string     `gorm:"primaryKey;type:varchar(40)" json:"title_key"`
	TitleID       int        `gorm:"not null;index" json:"title_id"`
	Type          TitleType  `gorm:"type:varchar(20);not null" json:"type"`
	Title         string     `gorm:"type:varchar(512);not null" json:"title"`
	ReleaseDate   string     `gorm:"type:varchar(10)" json:"release_date"`
	Overview      string     `gorm:"type:text" json:"overview"`
	PosterPath    string     `gorm:"type:varchar(255)" json:"poster_path"`
	BackdropPath  string     `gorm:"type:varchar(255)" json:"backdrop_path"`
	Genres        StringList `gorm:"type:text" json:"genres"`
	Runtime       *int       `json:"runtime,omitempty"`
	VoteAverage   float64    `json:"vote_average"`
	VoteCount     int        `json:"vote_count"`
	Streams       StreamsMap `gorm:"type:text" json:"streams"`
	SimilarTitles StringList `gorm:"type:text" json:"similar_titles"`
	CreatedAt     time.Time  `gorm:"not null" json:"createdAt"`
	LastUpdated   time.Time  `gorm:"not null" json:"lastUpdated"`
}

// TableName specifies the table name for CanonicalTitle
func (CanonicalTitle) TableName() string {
	return "titles"
}

// HasSources reports whether any slot still carries a provider
func (t *CanonicalTitle) HasSources() bool {
	for _, s := range t.Streams {
		if len(s.Sources) > 0 {
			return true
		}
	}
	return false
}

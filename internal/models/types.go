package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// TitleType represents the type of media content
type TitleType string

const (
	TitleTypeMovies  TitleType = "movies"
	TitleTypeTVShows TitleType = "tvshows"
)

// ParseTitleType converts a string into a TitleType
func ParseTitleType(s string) (TitleType, bool) {
	switch TitleType(s) {
	case TitleTypeMovies:
		return TitleTypeMovies, true
	case TitleTypeTVShows:
		return TitleTypeTVShows, true
	}
	return "", false
}

// ProviderType represents the upstream protocol family
type ProviderType string

const (
	ProviderTypeXtream ProviderType = "xtream"
	ProviderTypeAGTV   ProviderType = "agtv"
)

// MainSlot is the sole stream slot of a movie title
const MainSlot = "main"

var (
	slotPattern = regexp.MustCompile(`^S\d{2}-E\d{2}$`)
	slugPattern = regexp.MustCompile(`[^a-z0-9]+`)
)

// EpisodeSlot builds the stream slot key for a TV episode
func EpisodeSlot(season, episode int) string {
	return fmt.Sprintf("S%02d-E%02d", season, episode)
}

// ValidSlot reports whether slot is legal for the given title type
func ValidSlot(titleType TitleType, slot string) bool {
	if titleType == TitleTypeMovies {
		return slot == MainSlot
	}
	return slotPattern.MatchString(slot)
}

// CategoryKey builds the "{type}-{category_id}" key
func CategoryKey(titleType TitleType, categoryID int) string {
	return fmt.Sprintf("%s-%d", titleType, categoryID)
}

// TitleKey builds the "{type}-{title_id}" key of a provider title
func TitleKey(titleType TitleType, titleID string) string {
	return fmt.Sprintf("%s-%s", titleType, titleID)
}

// CanonicalKey builds the "{type}-{tmdb_id}" key of a canonical title
func CanonicalKey(titleType TitleType, tmdbID int) string {
	return fmt.Sprintf("%s-%d", titleType, tmdbID)
}

// StreamKey builds the composite "{type}-{tmdb_id}-{slot}-{provider_id}" key
func StreamKey(titleType TitleType, tmdbID int, slot, providerID string) string {
	return fmt.Sprintf("%s-%d-%s-%s", titleType, tmdbID, slot, providerID)
}

// StreamKeyPrefix builds the "{type}-{tmdb_id}-" prefix matching every
// stream row of one canonical title
func StreamKeyPrefix(titleType TitleType, tmdbID int) string {
	return fmt.Sprintf("%s-%d-", titleType, tmdbID)
}

// Slugify normalizes an identifier to a URL-safe slug
func Slugify(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = slugPattern.ReplaceAllString(s, "-")
	return strings.Trim(s, "-")
}

// StringList is a JSON-serialized list column
type StringList []string

// Value implements driver.Valuer
func (l StringList) Value() (driver.Value, error) {
	if l == nil {
		l = StringList{}
	}
	b, err := json.Marshal(l)
	return string(b), err
}

// Scan implements sql.Scanner
func (l *StringList) Scan(value interface{}) error {
	return scanJSON(value, l)
}

// StringMap is a JSON-serialized map column
type StringMap map[string]string

// Value implements driver.Valuer
func (m StringMap) Value() (driver.Value, error) {
	if m == nil {
		m = StringMap{}
	}
	b, err := json.Marshal(m)
	return string(b), err
}

// Scan implements sql.Scanner
func (m *StringMap) Scan(value interface{}) error {
	return scanJSON(value, m)
}

func jsonValue(v interface{}) (driver.Value, error) {
	b, err := json.Marshal(v)
	return string(b), err
}

func scanJSON(value, dest interface{}) error {
	switch v := value.(type) {
	case nil:
		return nil
	case []byte:
		if len(v) == 0 {
			return nil
		}
		return json.Unmarshal(v, dest)
	case string:
		if v == "" {
			return nil
		}
		return json.Unmarshal([]byte(v), dest)
	default:
		return fmt.Errorf("unsupported column type %T", value)
	}
}

package providers

import (
	"bytes"
	"context"
	"fmt"
	"hash/fnv"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	apperrors "github.com/vodhub/vodhub/internal/errors"
	"github.com/vodhub/vodhub/internal/httpclient"
	"github.com/vodhub/vodhub/internal/logger"
	"github.com/vodhub/vodhub/internal/models"
	"github.com/vodhub/vodhub/internal/playlist"
)

var seasonEpisodeRegex = regexp.MustCompile(`(?i)[\s.]S(\d{1,2})\s*[-. ]?\s*E(\d{1,3})\s*$`)

// AGTV reads a single M3U playlist URL. Categories are derived from
// group-title attributes; stream URLs are embedded in the playlist.
type AGTV struct {
	client *httpclient.Client

	mu  sync.RWMutex
	cfg *models.ProviderConfig
}

// NewAGTV creates an AGTV adapter for one provider
func NewAGTV(client *httpclient.Client, cfg *models.ProviderConfig) *AGTV {
	a := &AGTV{client: client}
	a.ConfigUpdate(cfg)
	return a
}

// ProviderID returns the provider slug
func (a *AGTV) ProviderID() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.cfg.ID
}

// ConfigUpdate swaps the config and resizes the provider's rate quota
func (a *AGTV) ConfigUpdate(cfg *models.ProviderConfig) {
	a.client.Configure(cfg.ID, cfg.RateOrDefault())

	a.mu.Lock()
	a.cfg = cfg
	a.mu.Unlock()
}

func (a *AGTV) snapshot() *models.ProviderConfig {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.cfg
}

func (a *AGTV) loadPlaylist(ctx context.Context, cfg *models.ProviderConfig) ([]playlist.Entry, error) {
	body, err := a.client.Fetch(ctx, cfg.ID, cfg.APIURL(), httpclient.DefaultPolicy())
	if err != nil {
		return nil, err
	}

	entries, _, err := playlist.Parse(bytes.NewReader(body))
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeUpstreamRejected, "invalid playlist").
			WithContext("provider", cfg.ID)
	}
	return entries, nil
}

// LoadCategories derives one category per distinct group-title. Ids are
// stable FNV-32 hashes so re-discovery never renumbers.
func (a *AGTV) LoadCategories(ctx context.Context) ([]models.ProviderCategory, error) {
	cfg := a.snapshot()

	entries, err := a.loadPlaylist(ctx, cfg)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	var categories []models.ProviderCategory
	for _, entry := range entries {
		if entry.GroupTitle == "" {
			continue
		}
		titleType := classifyEntry(entry.TvgName)
		key := models.CategoryKey(titleType, groupHash(entry.GroupTitle))
		if seen[key] {
			continue
		}
		seen[key] = true
		categories = append(categories, models.ProviderCategory{
			ProviderID:   cfg.ID,
			CategoryID:   groupHash(entry.GroupTitle),
			Type:         titleType,
			CategoryKey:  key,
			CategoryName: entry.GroupTitle,
		})
	}

	sort.Slice(categories, func(i, j int) bool {
		return categories[i].CategoryKey < categories[j].CategoryKey
	})
	return categories, nil
}

// LoadTitles parses the playlist into provider titles. The playlist format
// carries no change stamps, so every load is a full one; since is ignored.
func (a *AGTV) LoadTitles(ctx context.Context, since time.Time) (*Batch, error) {
	cfg := a.snapshot()

	entries, err := a.loadPlaylist(ctx, cfg)
	if err != nil {
		return nil, err
	}

	batch := &Batch{}
	byKey := make(map[string]*models.ProviderTitle)
	var order []string

	for _, entry := range entries {
		if entry.TvgName == "" || entry.URL == "" {
			batch.Errors++
			continue
		}

		titleType := classifyEntry(entry.TvgName)
		categoryID := groupHash(entry.GroupTitle)
		if !cfg.EnabledCategories.Allows(titleType, models.CategoryKey(titleType, categoryID)) {
			continue
		}

		baseName, slot := splitEpisode(entry.TvgName, titleType)
		titleID := strconv.FormatUint(uint64(groupHash(strings.ToLower(baseName))), 10)
		titleKey := models.TitleKey(titleType, titleID)

		title, ok := byKey[titleKey]
		if !ok {
			title = &models.ProviderTitle{
				ProviderID: cfg.ID,
				Type:       titleType,
				TitleID:    titleID,
				TitleKey:   titleKey,
				Title:      baseName,
				CategoryID: categoryID,
				Streams:    models.StringMap{},
			}
			byKey[titleKey] = title
			order = append(order, titleKey)
		}
		title.Streams[slot] = entry.URL
	}

	for _, key := range order {
		batch.Titles = append(batch.Titles, *byKey[key])
	}

	if batch.Errors > 0 {
		logger.AppLogger().WithProvider(cfg.ID).Warn("playlist contained unusable entries")
	}
	return batch, nil
}

// PlaybackURLs returns the embedded playlist URL of one slot
func (a *AGTV) PlaybackURLs(title *models.ProviderTitle, slot string) []string {
	streamURL, ok := title.Streams[slot]
	if !ok {
		return nil
	}
	return []string{streamURL}
}

// classifyEntry decides the title type from the name: a season/episode
// tail means a TV show
func classifyEntry(name string) models.TitleType {
	if seasonEpisodeRegex.MatchString(name) {
		return models.TitleTypeTVShows
	}
	return models.TitleTypeMovies
}

// splitEpisode strips the season/episode tail of a TV show name and
// returns the base name plus the slot key
func splitEpisode(name string, titleType models.TitleType) (string, string) {
	if titleType != models.TitleTypeTVShows {
		return strings.TrimSpace(name), models.MainSlot
	}

	matches := seasonEpisodeRegex.FindStringSubmatch(name)
	if len(matches) < 3 {
		return strings.TrimSpace(name), models.MainSlot
	}

	season, err1 := strconv.Atoi(matches[1])
	episode, err2 := strconv.Atoi(matches[2])
	if err1 != nil || err2 != nil {
		return strings.TrimSpace(name), models.MainSlot
	}

	base := strings.TrimSpace(seasonEpisodeRegex.ReplaceAllString(name, ""))
	return base, models.EpisodeSlot(season, episode)
}

// groupHash derives a stable positive id from a group title
func groupHash(group string) int {
	h := fnv.New32a()
	fmt.Fprint(h, group)
	return int(h.Sum32() & 0x7fffffff)
}

package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	apperrors "github.com/vodhub/vodhub/internal/errors"
	"github.com/vodhub/vodhub/internal/httpclient"
	"github.com/vodhub/vodhub/internal/logger"
	"github.com/vodhub/vodhub/internal/models"
)

type xtreamCategory struct {
	CategoryID   string `json:"category_id"`
	CategoryName string `json:"category_name"`
}

type xtreamStream struct {
	StreamID     interface{} `json:"stream_id"`
	Name         string      `json:"name"`
	ContainerExt string      `json:"container_extension"`
	CategoryID   string      `json:"category_id"`
	Added        string      `json:"added"`
}

type xtreamSeries struct {
	SeriesID     interface{} `json:"series_id"`
	Name         string      `json:"name"`
	CategoryID   string      `json:"category_id"`
	LastModified string      `json:"last_modified"`
	ReleaseDate  string      `json:"releaseDate"`
}

type xtreamEpisode struct {
	ID           interface{} `json:"id"`
	EpisodeNum   int         `json:"episode_num"`
	Season       int         `json:"season"`
	ContainerExt string      `json:"container_extension"`
}

type xtreamSeriesInfo struct {
	Episodes map[string][]xtreamEpisode `json:"episodes"`
}

type cleanupRule struct {
	pattern *regexp.Regexp
	replace string
}

// Xtream speaks the player_api.php protocol. Control calls go to the first
// configured URL; playback paths are resolvable against every URL.
type Xtream struct {
	client *httpclient.Client

	mu      sync.RWMutex
	cfg     *models.ProviderConfig
	cleanup []cleanupRule
}

// NewXtream creates an Xtream adapter for one provider
func NewXtream(client *httpclient.Client, cfg *models.ProviderConfig) *Xtream {
	x := &Xtream{client: client}
	x.ConfigUpdate(cfg)
	return x
}

// ProviderID returns the provider slug
func (x *Xtream) ProviderID() string {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return x.cfg.ID
}

// ConfigUpdate swaps the config, recompiles the cleanup pipeline and
// resizes the provider's rate quota
func (x *Xtream) ConfigUpdate(cfg *models.ProviderConfig) {
	rules := make([]cleanupRule, 0, len(cfg.Cleanup))
	for _, r := range cfg.Cleanup {
		compiled, err := regexp.Compile(r.Pattern)
		if err != nil {
			logger.AppLogger().WithProvider(cfg.ID).Warn("skipping invalid cleanup pattern")
			continue
		}
		rules = append(rules, cleanupRule{pattern: compiled, replace: r.Replace})
	}

	x.client.Configure(cfg.ID, cfg.RateOrDefault())

	x.mu.Lock()
	x.cfg = cfg
	x.cleanup = rules
	x.mu.Unlock()
}

func (x *Xtream) snapshot() (*models.ProviderConfig, []cleanupRule) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return x.cfg, x.cleanup
}

func (x *Xtream) apiURL(cfg *models.ProviderConfig, action string, extra url.Values) string {
	params := url.Values{}
	params.Set("username", cfg.Username)
	params.Set("password", cfg.Password)
	params.Set("action", action)
	for k, vs := range extra {
		for _, v := range vs {
			params.Add(k, v)
		}
	}
	return fmt.Sprintf("%s/player_api.php?%s",
		strings.TrimSuffix(cfg.APIURL(), "/"), params.Encode())
}

func (x *Xtream) fetch(ctx context.Context, cfg *models.ProviderConfig, requestURL string, result interface{}) error {
	body, err := x.client.Fetch(ctx, cfg.ID, requestURL, httpclient.DefaultPolicy())
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, result); err != nil {
		return apperrors.New(apperrors.CodeUpstreamRejected, "invalid upstream response").
			WithContext("provider", cfg.ID)
	}
	return nil
}

// LoadCategories discovers movie and series categories
func (x *Xtream) LoadCategories(ctx context.Context) ([]models.ProviderCategory, error) {
	cfg, _ := x.snapshot()

	var categories []models.ProviderCategory
	for _, load := range []struct {
		action    string
		titleType models.TitleType
	}{
		{"get_vod_categories", models.TitleTypeMovies},
		{"get_series_categories", models.TitleTypeTVShows},
	} {
		var upstream []xtreamCategory
		if err := x.fetch(ctx, cfg, x.apiURL(cfg, load.action, nil), &upstream); err != nil {
			return nil, err
		}
		for _, cat := range upstream {
			id, err := strconv.Atoi(cat.CategoryID)
			if err != nil {
				continue
			}
			categories = append(categories, models.ProviderCategory{
				ProviderID:   cfg.ID,
				CategoryID:   id,
				Type:         load.titleType,
				CategoryKey:  models.CategoryKey(load.titleType, id),
				CategoryName: cat.CategoryName,
			})
		}
	}
	return categories, nil
}

// LoadTitles enumerates enabled categories and returns the titles changed
// after since. Per-item failures are counted, not raised.
func (x *Xtream) LoadTitles(ctx context.Context, since time.Time) (*Batch, error) {
	cfg, rules := x.snapshot()

	categories, err := x.LoadCategories(ctx)
	if err != nil {
		return nil, err
	}

	batch := &Batch{}
	for _, cat := range categories {
		if !cfg.EnabledCategories.Allows(cat.Type, cat.CategoryKey) {
			continue
		}

		var loadErr error
		if cat.Type == models.TitleTypeMovies {
			loadErr = x.loadMovies(ctx, cfg, rules, cat, since, batch)
		} else {
			loadErr = x.loadSeries(ctx, cfg, rules, cat, since, batch)
		}
		if loadErr != nil {
			if apperrors.IsAuthError(loadErr) || apperrors.IsCancelled(loadErr) {
				return nil, loadErr
			}
			batch.Errors++
			logger.AppLogger().WithFields(map[string]interface{}{
				"provider_id":  cfg.ID,
				"category_key": cat.CategoryKey,
			}).Warn("failed to load category titles")
		}
	}
	return batch, nil
}

func (x *Xtream) loadMovies(ctx context.Context, cfg *models.ProviderConfig, rules []cleanupRule, cat models.ProviderCategory, since time.Time, batch *Batch) error {
	params := url.Values{}
	params.Set("category_id", strconv.Itoa(cat.CategoryID))

	var streams []xtreamStream
	if err := x.fetch(ctx, cfg, x.apiURL(cfg, "get_vod_streams", params), &streams); err != nil {
		return err
	}

	for _, stream := range streams {
		if !changedAfter(stream.Added, since) {
			continue
		}

		id := idString(stream.StreamID)
		if id == "" || stream.Name == "" {
			batch.Errors++
			continue
		}

		ext := stream.ContainerExt
		if ext == "" {
			ext = "mkv"
		}
		path := fmt.Sprintf("/movie/%s/%s/%s.%s", cfg.Username, cfg.Password, id, ext)

		batch.Titles = append(batch.Titles, models.ProviderTitle{
			ProviderID: cfg.ID,
			Type:       models.TitleTypeMovies,
			TitleID:    id,
			TitleKey:   models.TitleKey(models.TitleTypeMovies, id),
			Title:      applyCleanup(rules, stream.Name),
			CategoryID: cat.CategoryID,
			Streams:    models.StringMap{models.MainSlot: path},
		})
	}
	return nil
}

func (x *Xtream) loadSeries(ctx context.Context, cfg *models.ProviderConfig, rules []cleanupRule, cat models.ProviderCategory, since time.Time, batch *Batch) error {
	params := url.Values{}
	params.Set("category_id", strconv.Itoa(cat.CategoryID))

	var series []xtreamSeries
	if err := x.fetch(ctx, cfg, x.apiURL(cfg, "get_series", params), &series); err != nil {
		return err
	}

	for _, s := range series {
		// Extended info is expensive; only changed series are expanded
		if !changedAfter(s.LastModified, since) {
			continue
		}

		id := idString(s.SeriesID)
		if id == "" || s.Name == "" {
			batch.Errors++
			continue
		}

		infoParams := url.Values{}
		infoParams.Set("series_id", id)
		var info xtreamSeriesInfo
		if err := x.fetch(ctx, cfg, x.apiURL(cfg, "get_series_info", infoParams), &info); err != nil {
			if apperrors.IsAuthError(err) || apperrors.IsCancelled(err) {
				return err
			}
			batch.Errors++
			continue
		}

		streams := models.StringMap{}
		for _, episodes := range info.Episodes {
			for _, ep := range episodes {
				episodeID := idString(ep.ID)
				if episodeID == "" || ep.Season <= 0 || ep.EpisodeNum <= 0 {
					continue
				}
				ext := ep.ContainerExt
				if ext == "" {
					ext = "mkv"
				}
				slot := models.EpisodeSlot(ep.Season, ep.EpisodeNum)
				streams[slot] = fmt.Sprintf("/series/%s/%s/%s.%s", cfg.Username, cfg.Password, episodeID, ext)
			}
		}
		if len(streams) == 0 {
			continue
		}

		batch.Titles = append(batch.Titles, models.ProviderTitle{
			ProviderID:  cfg.ID,
			Type:        models.TitleTypeTVShows,
			TitleID:     id,
			TitleKey:    models.TitleKey(models.TitleTypeTVShows, id),
			Title:       applyCleanup(rules, s.Name),
			ReleaseDate: s.ReleaseDate,
			CategoryID:  cat.CategoryID,
			Streams:     streams,
		})
	}
	return nil
}

// PlaybackURLs resolves a slot's upstream path against every configured
// stream host so clients can attempt fallbacks
func (x *Xtream) PlaybackURLs(title *models.ProviderTitle, slot string) []string {
	cfg, _ := x.snapshot()

	path, ok := title.Streams[slot]
	if !ok {
		return nil
	}

	urls := make([]string, 0, len(cfg.StreamsURLs))
	for _, base := range cfg.StreamsURLs {
		urls = append(urls, strings.TrimSuffix(base, "/")+path)
	}
	return urls
}

func applyCleanup(rules []cleanupRule, name string) string {
	for _, r := range rules {
		name = r.pattern.ReplaceAllString(name, r.replace)
	}
	return strings.TrimSpace(name)
}

// idString renders an upstream id that may arrive as string or number
func idString(v interface{}) string {
	switch id := v.(type) {
	case string:
		return id
	case float64:
		return strconv.FormatFloat(id, 'f', -1, 64)
	case json.Number:
		return id.String()
	default:
		return ""
	}
}

// changedAfter parses an epoch-seconds string and compares it to since.
// Unparseable or missing stamps count as changed so nothing is silently
// dropped.
func changedAfter(epochStr string, since time.Time) bool {
	if since.IsZero() {
		return true
	}
	epoch, err := strconv.ParseInt(epochStr, 10, 64)
	if err != nil {
		return true
	}
	return time.Unix(epoch, 0).After(since)
}

package tmdb

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	apperrors "github.com/vodhub/vodhub/internal/errors"
	"github.com/vodhub/vodhub/internal/httpclient"
	"github.com/vodhub/vodhub/internal/models"
	"github.com/vodhub/vodhub/internal/retry"
)

const (
	baseURL = "https://api.themoviedb.org/3"

	// providerID partitions the shared rate limiter and cache
	providerID = "tmdb"
)

// Config holds TMDB client configuration
type Config struct {
	Token    string
	Language string
	CacheTTL time.Duration
}

// Client handles TMDB API interactions. All calls go through the shared
// rate-limited client so metadata lookups are cached and quota-bounded
// like any other upstream.
type Client struct {
	http     *httpclient.Client
	token    string
	language string
	cacheTTL time.Duration
}

// Candidate is one search result considered by the matcher
type Candidate struct {
	ID          int
	Name        string
	ReleaseDate string
	VoteCount   int
	Popularity  float64
}

// Year returns the release year of the candidate, or 0
func (c Candidate) Year() int {
	if len(c.ReleaseDate) < 4 {
		return 0
	}
	var year int
	if _, err := fmt.Sscanf(c.ReleaseDate[:4], "%d", &year); err != nil {
		return 0
	}
	return year
}

// Details carries the metadata the reconciler persists on canonical titles
type Details struct {
	ID           int
	Title        string
	ReleaseDate  string
	Overview     string
	PosterPath   string
	BackdropPath string
	Genres       []string
	Runtime      *int
	VoteAverage  float64
	VoteCount    int
	SimilarIDs   []int
}

type genre struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

type searchResult struct {
	ID           int     `json:"id"`
	Title        string  `json:"title"`
	Name         string  `json:"name"`
	ReleaseDate  string  `json:"release_date"`
	FirstAirDate string  `json:"first_air_date"`
	VoteCount    int     `json:"vote_count"`
	Popularity   float64 `json:"popularity"`
}

type searchResponse struct {
	Page         int            `json:"page"`
	Results      []searchResult `json:"results"`
	TotalPages   int            `json:"total_pages"`
	TotalResults int            `json:"total_results"`
}

type similarBlock struct {
	Results []searchResult `json:"results"`
}

type detailsResponse struct {
	ID           int          `json:"id"`
	Title        string       `json:"title"`
	Name         string       `json:"name"`
	ReleaseDate  string       `json:"release_date"`
	FirstAirDate string       `json:"first_air_date"`
	Overview     string       `json:"overview"`
	PosterPath   string       `json:"poster_path"`
	BackdropPath string       `json:"backdrop_path"`
	Genres       []genre      `json:"genres"`
	Runtime      *int         `json:"runtime"`
	VoteAverage  float64      `json:"vote_average"`
	VoteCount    int          `json:"vote_count"`
	Similar      similarBlock `json:"similar"`
}

// NewClient creates a TMDB client over the shared rate-limited client
func NewClient(httpClient *httpclient.Client, cfg Config) *Client {
	if cfg.Language == "" {
		cfg.Language = "en-US"
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 30 * 24 * time.Hour
	}

	// TMDB allows a generous request rate; 40/10s mirrors their
	// documented legacy limit
	httpClient.Configure(providerID, models.APIRate{Concurrent: 40, DurationSeconds: 10})

	return &Client{
		http:     httpClient,
		token:    cfg.Token,
		language: cfg.Language,
		cacheTTL: cfg.CacheTTL,
	}
}

// Search returns candidate titles for a name and optional year
func (c *Client) Search(ctx context.Context, titleType models.TitleType, name string, year int) ([]Candidate, error) {
	endpoint := "/search/movie"
	if titleType == models.TitleTypeTVShows {
		endpoint = "/search/tv"
	}

	params := url.Values{}
	params.Set("query", name)
	if year > 0 {
		if titleType == models.TitleTypeMovies {
			params.Set("year", fmt.Sprintf("%d", year))
		} else {
			params.Set("first_air_date_year", fmt.Sprintf("%d", year))
		}
	}

	var response searchResponse
	if err := c.request(ctx, endpoint, params, &response); err != nil {
		return nil, err
	}

	candidates := make([]Candidate, 0, len(response.Results))
	for _, r := range response.Results {
		candidates = append(candidates, toCandidate(r, titleType))
	}
	return candidates, nil
}

// Details loads one title's metadata including similar titles of the
// same type
func (c *Client) Details(ctx context.Context, titleType models.TitleType, id int) (*Details, error) {
	endpoint := fmt.Sprintf("/movie/%d", id)
	if titleType == models.TitleTypeTVShows {
		endpoint = fmt.Sprintf("/tv/%d", id)
	}

	params := url.Values{}
	params.Set("append_to_response", "similar")

	var response detailsResponse
	if err := c.request(ctx, endpoint, params, &response); err != nil {
		return nil, err
	}

	details := &Details{
		ID:           response.ID,
		Title:        response.Title,
		ReleaseDate:  response.ReleaseDate,
		Overview:     response.Overview,
		PosterPath:   response.PosterPath,
		BackdropPath: response.BackdropPath,
		Runtime:      response.Runtime,
		VoteAverage:  response.VoteAverage,
		VoteCount:    response.VoteCount,
	}
	if titleType == models.TitleTypeTVShows {
		details.Title = response.Name
		details.ReleaseDate = response.FirstAirDate
	}
	for _, g := range response.Genres {
		details.Genres = append(details.Genres, g.Name)
	}
	for _, similar := range response.Similar.Results {
		details.SimilarIDs = append(details.SimilarIDs, similar.ID)
	}
	return details, nil
}

func toCandidate(r searchResult, titleType models.TitleType) Candidate {
	candidate := Candidate{
		ID:          r.ID,
		Name:        r.Title,
		ReleaseDate: r.ReleaseDate,
		VoteCount:   r.VoteCount,
		Popularity:  r.Popularity,
	}
	if titleType == models.TitleTypeTVShows {
		candidate.Name = r.Name
		candidate.ReleaseDate = r.FirstAirDate
	}
	return candidate
}

func (c *Client) request(ctx context.Context, endpoint string, params url.Values, result interface{}) error {
	if c.token == "" {
		return apperrors.New(apperrors.CodeMissingConfig, "tmdb token not configured")
	}

	params.Set("api_key", c.token)
	params.Set("language", c.language)
	requestURL := fmt.Sprintf("%s%s?%s", baseURL, endpoint, params.Encode())

	policy := httpclient.Policy{
		CacheTTL: c.cacheTTL,
		Retry: retry.Config{
			MaxAttempts:       3,
			BaseBackoff:       time.Second,
			MaxBackoff:        10 * time.Second,
			BackoffMultiplier: 2.0,
			JitterFraction:    0.1,
		},
		Timeout: 10 * time.Second,
	}

	body, err := c.http.Fetch(ctx, providerID, requestURL, policy)
	if err != nil {
		return err
	}

	if err := json.Unmarshal(body, result); err != nil {
		return apperrors.Wrap(err, apperrors.CodeUpstreamRejected, "invalid tmdb response")
	}
	return nil
}

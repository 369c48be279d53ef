package providers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/vodhub/vodhub/internal/httpclient"
	"github.com/vodhub/vodhub/internal/models"
)

func xtreamServer(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/player_api.php" {
			http.NotFound(w, r)
			return
		}
		switch r.URL.Query().Get("action") {
		case "get_vod_categories":
			w.Write([]byte(`[{"category_id":"10","category_name":"Action"},{"category_id":"11","category_name":"Drama"}]`))
		case "get_series_categories":
			w.Write([]byte(`[{"category_id":"3","category_name":"Series"}]`))
		case "get_vod_streams":
			if r.URL.Query().Get("category_id") != "10" {
				w.Write([]byte(`[]`))
				return
			}
			w.Write([]byte(`[
				{"stream_id":100,"name":"Dune (2021)","container_extension":"mkv","category_id":"10","added":"1700000000"},
				{"stream_id":"101","name":"Old Movie","container_extension":"mp4","category_id":"10","added":"1000000000"}
			]`))
		case "get_series":
			w.Write([]byte(`[{"series_id":7,"name":"Breaking Bad","category_id":"3","last_modified":"1700000000","releaseDate":"2008-01-20"}]`))
		case "get_series_info":
			w.Write([]byte(`{"episodes":{"1":[
				{"id":"9001","episode_num":1,"season":1,"container_extension":"mkv"},
				{"id":9002,"episode_num":2,"season":1,"container_extension":"mkv"}
			]}}`))
		default:
			http.NotFound(w, r)
		}
	}))
}

func xtreamConfig(serverURL string) *models.ProviderConfig {
	return &models.ProviderConfig{
		ID:          "px",
		Type:        models.ProviderTypeXtream,
		Enabled:     true,
		StreamsURLs: models.StringList{serverURL, "http://fallback.example"},
		Username:    "user",
		Password:    "pass",
		APIRate:     models.APIRate{Concurrent: 10, DurationSeconds: 1},
	}
}

func TestXtreamLoadCategories(t *testing.T) {
	server := xtreamServer(t)
	defer server.Close()

	adapter := NewXtream(httpclient.New(nil), xtreamConfig(server.URL))
	categories, err := adapter.LoadCategories(context.Background())
	if err != nil {
		t.Fatalf("LoadCategories failed: %v", err)
	}
	if len(categories) != 3 {
		t.Fatalf("expected 3 categories, got %d", len(categories))
	}
	if categories[0].CategoryKey != "movies-10" || categories[2].CategoryKey != "tvshows-3" {
		t.Errorf("unexpected category keys: %+v", categories)
	}
}

func TestXtreamLoadTitlesFull(t *testing.T) {
	server := xtreamServer(t)
	defer server.Close()

	adapter := NewXtream(httpclient.New(nil), xtreamConfig(server.URL))
	batch, err := adapter.LoadTitles(context.Background(), time.Time{})
	if err != nil {
		t.Fatalf("LoadTitles failed: %v", err)
	}
	// Two movies plus one series
	if len(batch.Titles) != 3 {
		t.Fatalf("expected 3 titles, got %d: %+v", len(batch.Titles), batch.Titles)
	}

	var movie, show *models.ProviderTitle
	for i := range batch.Titles {
		title := &batch.Titles[i]
		if title.TitleKey == "movies-100" {
			movie = title
		}
		if title.TitleKey == "tvshows-7" {
			show = title
		}
	}
	if movie == nil || movie.Streams[models.MainSlot] != "/movie/user/pass/100.mkv" {
		t.Errorf("unexpected movie: %+v", movie)
	}
	if show == nil {
		t.Fatal("series title missing")
	}
	if show.Streams["S01-E01"] != "/series/user/pass/9001.mkv" ||
		show.Streams["S01-E02"] != "/series/user/pass/9002.mkv" {
		t.Errorf("unexpected episode slots: %v", show.Streams)
	}
	if show.ReleaseDate != "2008-01-20" {
		t.Errorf("release date not carried: %q", show.ReleaseDate)
	}
}

func TestXtreamLoadTitlesIncremental(t *testing.T) {
	server := xtreamServer(t)
	defer server.Close()

	adapter := NewXtream(httpclient.New(nil), xtreamConfig(server.URL))

	// Between the old movie (epoch 1000000000) and the fresh entries
	since := time.Unix(1500000000, 0)
	batch, err := adapter.LoadTitles(context.Background(), since)
	if err != nil {
		t.Fatalf("LoadTitles failed: %v", err)
	}
	for _, title := range batch.Titles {
		if title.TitleKey == "movies-101" {
			t.Error("unchanged title must be skipped on incremental load")
		}
	}
	if len(batch.Titles) != 2 {
		t.Errorf("expected 2 changed titles, got %d", len(batch.Titles))
	}
}

func TestXtreamCategoryFilter(t *testing.T) {
	server := xtreamServer(t)
	defer server.Close()

	cfg := xtreamConfig(server.URL)
	cfg.EnabledCategories = models.EnabledCategories{
		Movies:  []string{"movies-11"},
		TVShows: []string{"tvshows-3"},
	}

	adapter := NewXtream(httpclient.New(nil), cfg)
	batch, err := adapter.LoadTitles(context.Background(), time.Time{})
	if err != nil {
		t.Fatalf("LoadTitles failed: %v", err)
	}
	for _, title := range batch.Titles {
		if title.Type == models.TitleTypeMovies {
			t.Errorf("disabled movie category leaked: %+v", title)
		}
	}
}

func TestXtreamCleanupPipeline(t *testing.T) {
	server := xtreamServer(t)
	defer server.Close()

	cfg := xtreamConfig(server.URL)
	cfg.Cleanup = models.CleanupRules{
		{Pattern: `(?i)^old\s+`, Replace: ""},
	}

	adapter := NewXtream(httpclient.New(nil), cfg)
	batch, err := adapter.LoadTitles(context.Background(), time.Time{})
	if err != nil {
		t.Fatalf("LoadTitles failed: %v", err)
	}
	for _, title := range batch.Titles {
		if title.TitleKey == "movies-101" && title.Title != "Movie" {
			t.Errorf("cleanup not applied: %q", title.Title)
		}
	}
}

func TestXtreamPlaybackURLs(t *testing.T) {
	cfg := xtreamConfig("http://primary.example")
	adapter := NewXtream(httpclient.New(nil), cfg)

	title := &models.ProviderTitle{
		Streams: models.StringMap{models.MainSlot: "/movie/user/pass/100.mkv"},
	}
	urls := adapter.PlaybackURLs(title, models.MainSlot)
	if len(urls) != 2 ||
		urls[0] != "http://primary.example/movie/user/pass/100.mkv" ||
		urls[1] != "http://fallback.example/movie/user/pass/100.mkv" {
		t.Errorf("unexpected playback urls: %v", urls)
	}
	if adapter.PlaybackURLs(title, "S01-E01") != nil {
		t.Error("missing slot should yield nil")
	}
}

func agtvServer(t *testing.T) *httptest.Server {
	t.Helper()
	playlist := `#EXTM3U
#EXTINF:-1 tvg-name="Dune (2021)" tvg-logo="http://img/d.png" group-title="Movies | SciFi",Dune (2021)
http://agtv.example/movies/dune.mkv
#EXTINF:-1 tvg-name="Breaking Bad S01 E01" group-title="Series | Drama",Breaking Bad S01 E01
http://agtv.example/series/bb-s01e01.mkv
#EXTINF:-1 tvg-name="Breaking Bad S01 E02" group-title="Series | Drama",Breaking Bad S01 E02
http://agtv.example/series/bb-s01e02.mkv
`
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(playlist))
	}))
}

func agtvConfig(serverURL string) *models.ProviderConfig {
	return &models.ProviderConfig{
		ID:          "py",
		Type:        models.ProviderTypeAGTV,
		Enabled:     true,
		StreamsURLs: models.StringList{serverURL},
		APIRate:     models.APIRate{Concurrent: 5, DurationSeconds: 1},
	}
}

func TestAGTVLoadTitles(t *testing.T) {
	server := agtvServer(t)
	defer server.Close()

	adapter := NewAGTV(httpclient.New(nil), agtvConfig(server.URL))
	batch, err := adapter.LoadTitles(context.Background(), time.Time{})
	if err != nil {
		t.Fatalf("LoadTitles failed: %v", err)
	}
	if len(batch.Titles) != 2 {
		t.Fatalf("expected movie plus grouped series, got %d: %+v", len(batch.Titles), batch.Titles)
	}

	var movie, show *models.ProviderTitle
	for i := range batch.Titles {
		title := &batch.Titles[i]
		if title.Type == models.TitleTypeMovies {
			movie = title
		} else {
			show = title
		}
	}
	if movie == nil || movie.Title != "Dune (2021)" ||
		movie.Streams[models.MainSlot] != "http://agtv.example/movies/dune.mkv" {
		t.Errorf("unexpected movie: %+v", movie)
	}
	if show == nil || show.Title != "Breaking Bad" {
		t.Fatalf("unexpected show: %+v", show)
	}
	if show.Streams["S01-E01"] != "http://agtv.example/series/bb-s01e01.mkv" ||
		show.Streams["S01-E02"] != "http://agtv.example/series/bb-s01e02.mkv" {
		t.Errorf("episodes not grouped: %v", show.Streams)
	}
}

func TestAGTVLoadCategoriesStable(t *testing.T) {
	server := agtvServer(t)
	defer server.Close()

	adapter := NewAGTV(httpclient.New(nil), agtvConfig(server.URL))

	first, err := adapter.LoadCategories(context.Background())
	if err != nil {
		t.Fatalf("LoadCategories failed: %v", err)
	}
	second, err := adapter.LoadCategories(context.Background())
	if err != nil {
		t.Fatalf("second LoadCategories failed: %v", err)
	}
	if len(first) != 2 || len(second) != 2 {
		t.Fatalf("expected 2 categories, got %d and %d", len(first), len(second))
	}
	for i := range first {
		if first[i].CategoryID != second[i].CategoryID || first[i].CategoryKey != second[i].CategoryKey {
			t.Errorf("category ids not stable: %+v vs %+v", first[i], second[i])
		}
	}
}

func TestClassifyEntry(t *testing.T) {
	tests := []struct {
		name     string
		expected models.TitleType
	}{
		{"Breaking Bad S01 E01", models.TitleTypeTVShows},
		{"Show S1-E2", models.TitleTypeTVShows},
		{"Dune (2021)", models.TitleTypeMovies},
		{"Plain Movie", models.TitleTypeMovies},
	}
	for _, tt := range tests {
		if got := classifyEntry(tt.name); got != tt.expected {
			t.Errorf("classifyEntry(%q) = %s, want %s", tt.name, got, tt.expected)
		}
	}
}

func TestRegistry(t *testing.T) {
	server := agtvServer(t)
	defer server.Close()

	registry := NewRegistry()
	adapter := NewAGTV(httpclient.New(nil), agtvConfig(server.URL))
	registry.Put(adapter)

	got, ok := registry.Get("py")
	if !ok || got.ProviderID() != "py" {
		t.Errorf("registry lookup failed: %v %v", got, ok)
	}

	registry.Remove("py")
	if _, ok := registry.Get("py"); ok {
		t.Error("removed adapter still present")
	}
}

func TestNewAdapterUnknownType(t *testing.T) {
	_, err := NewAdapter(httpclient.New(nil), &models.ProviderConfig{ID: "pz", Type: "stalker"})
	if err == nil {
		t.Error("expected error for unknown type")
	}
}

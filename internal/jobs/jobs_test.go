package jobs

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/vodhub/vodhub/internal/cache"
	"github.com/vodhub/vodhub/internal/database"
	apperrors "github.com/vodhub/vodhub/internal/errors"
	"github.com/vodhub/vodhub/internal/external/tmdb"
	"github.com/vodhub/vodhub/internal/httpclient"
	"github.com/vodhub/vodhub/internal/matcher"
	"github.com/vodhub/vodhub/internal/models"
	"github.com/vodhub/vodhub/internal/providers"
	"github.com/vodhub/vodhub/internal/reconciler"
	apptesting "github.com/vodhub/vodhub/internal/testing"
	"gorm.io/gorm"
)

type fakeAdapter struct {
	id            string
	categories    []models.ProviderCategory
	titles        []models.ProviderTitle
	batchErrors   int
	categoriesErr error
	titlesErr     error

	categoryCalls int
	titleCalls    int
	configCalls   int
}

func (f *fakeAdapter) ProviderID() string { return f.id }

func (f *fakeAdapter) LoadCategories(ctx context.Context) ([]models.ProviderCategory, error) {
	f.categoryCalls++
	if f.categoriesErr != nil {
		return nil, f.categoriesErr
	}
	return f.categories, nil
}

func (f *fakeAdapter) LoadTitles(ctx context.Context, since time.Time) (*providers.Batch, error) {
	f.titleCalls++
	if f.titlesErr != nil {
		return nil, f.titlesErr
	}
	return &providers.Batch{Titles: f.titles, Errors: f.batchErrors}, nil
}

func (f *fakeAdapter) PlaybackURLs(title *models.ProviderTitle, slot string) []string {
	return nil
}

func (f *fakeAdapter) ConfigUpdate(cfg *models.ProviderConfig) { f.configCalls++ }

type fakeSearcher struct {
	candidates map[string][]tmdb.Candidate
}

func (f fakeSearcher) Search(ctx context.Context, titleType models.TitleType, name string, year int) ([]tmdb.Candidate, error) {
	return f.candidates[name], nil
}

type fakeDetailer struct{}

func (fakeDetailer) Details(ctx context.Context, titleType models.TitleType, id int) (*tmdb.Details, error) {
	return &tmdb.Details{
		ID:          id,
		Title:       "Dune",
		ReleaseDate: "2021-09-15",
		PosterPath:  "/dune.jpg",
	}, nil
}

type fixture struct {
	db       *gorm.DB
	stores   *database.Stores
	registry *providers.Registry
	client   *httpclient.Client
	engine   *Engine
	queue    *Queue
	service  *Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	db := apptesting.TestDB(t)
	stores := database.NewStores(db)

	cacheStore, err := cache.OpenInMemory()
	if err != nil {
		t.Fatalf("failed to open cache: %v", err)
	}
	t.Cleanup(func() { cacheStore.Close() })

	registry := providers.NewRegistry()
	client := httpclient.New(cacheStore)
	m := matcher.New(fakeSearcher{candidates: map[string][]tmdb.Candidate{
		"dune": {{ID: 438631, Name: "Dune", ReleaseDate: "2021-09-15", VoteCount: 9000}},
	}}, matcher.DefaultConfig())
	rec := reconciler.New(stores, fakeDetailer{})

	engine := NewEngine(stores, time.Second)
	queue := NewQueue()
	service := NewService(stores, registry, client, m, rec, engine, queue)
	if err := service.RegisterAll(6*time.Hour, time.Hour); err != nil {
		t.Fatalf("RegisterAll failed: %v", err)
	}

	return &fixture{
		db:       db,
		stores:   stores,
		registry: registry,
		client:   client,
		engine:   engine,
		queue:    queue,
		service:  service,
	}
}

func (f *fixture) record(t *testing.T, name string) *models.JobRecord {
	t.Helper()
	record, err := f.stores.Jobs.Get(context.Background(), name)
	if err != nil {
		t.Fatalf("failed to load job record %s: %v", name, err)
	}
	return record
}

func TestParseAction(t *testing.T) {
	for _, valid := range []string{"added", "enabled", "categories-changed", "deleted"} {
		if _, ok := ParseAction(valid); !ok {
			t.Errorf("expected %q to parse", valid)
		}
	}
	if _, ok := ParseAction("restarted"); ok {
		t.Error("expected unknown action to be rejected")
	}
}

func TestQueueDrainDedup(t *testing.T) {
	q := NewQueue()
	q.Enqueue(ActionAdded, "pz")
	q.Enqueue(ActionAdded, "px")
	q.Enqueue(ActionAdded, "px")
	q.Enqueue(ActionDeleted, "py")

	drained := q.Drain(ActionAdded)
	if len(drained) != 2 || drained[0] != "px" || drained[1] != "pz" {
		t.Errorf("unexpected drain result: %v", drained)
	}
	if again := q.Drain(ActionAdded); again != nil {
		t.Errorf("expected empty second drain, got %v", again)
	}

	// Other actions are untouched
	if deleted := q.Drain(ActionDeleted); len(deleted) != 1 || deleted[0] != "py" {
		t.Errorf("unexpected deleted drain: %v", deleted)
	}
}

func TestEngineRunUnknownJob(t *testing.T) {
	f := newFixture(t)

	err := f.engine.Run(context.Background(), "nope")
	if !apperrors.IsCode(err, apperrors.CodeUnknownJob) {
		t.Errorf("expected unknown-job error, got %v", err)
	}
}

func TestEngineRunRecordsCompletion(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	err := f.engine.Register("reportOK", 0, func(ctx context.Context, run *Run) (string, error) {
		return "done", nil
	})
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	if err := f.engine.Run(ctx, "reportOK"); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	record := f.record(t, "reportOK")
	if record.Status != models.JobStatusCompleted || record.LastResult != "done" {
		t.Errorf("unexpected record: %+v", record)
	}
	if record.LastExecution == nil {
		t.Error("expected last_execution to be set on success")
	}
}

func TestEngineRunFailureKeepsLastExecution(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	err := f.engine.Register("reportFail", 0, func(ctx context.Context, run *Run) (string, error) {
		return "", fmt.Errorf("boom")
	})
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	if err := f.engine.Run(ctx, "reportFail"); err == nil {
		t.Fatal("expected run error")
	}

	record := f.record(t, "reportFail")
	if record.Status != models.JobStatusFailed || record.LastError != "boom" {
		t.Errorf("unexpected record: %+v", record)
	}
	if record.LastExecution != nil {
		t.Errorf("failed run must not advance last_execution, got %v", record.LastExecution)
	}
}

func TestEngineRunCancelRecorded(t *testing.T) {
	f := newFixture(t)

	err := f.engine.Register("reportCancel", 0, func(ctx context.Context, run *Run) (string, error) {
		return "", apperrors.Cancelled(context.Canceled)
	})
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	err = f.engine.Run(context.Background(), "reportCancel")
	if !apperrors.IsCancelled(err) {
		t.Fatalf("expected cancellation, got %v", err)
	}

	record := f.record(t, "reportCancel")
	if record.Status != models.JobStatusCancelled {
		t.Errorf("unexpected status: %s", record.Status)
	}
	if record.LastExecution != nil {
		t.Errorf("cancelled run must not advance last_execution, got %v", record.LastExecution)
	}
}

func TestEngineRunExclusive(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	entered := make(chan struct{})
	release := make(chan struct{})
	err := f.engine.Register("blocking", 0, func(ctx context.Context, run *Run) (string, error) {
		close(entered)
		<-release
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- f.engine.Run(ctx, "blocking") }()
	<-entered

	if err := f.engine.Run(ctx, "blocking"); !apperrors.IsCode(err, apperrors.CodeAlreadyRunning) {
		t.Errorf("expected already-running, got %v", err)
	}

	close(release)
	if err := <-done; err != nil {
		t.Fatalf("blocking run failed: %v", err)
	}

	// Claimable again once finished
	entered = make(chan struct{})
	release = make(chan struct{})
	close(release)
	if err := f.engine.Run(ctx, "blocking"); err != nil {
		t.Errorf("rerun after completion failed: %v", err)
	}
}

func TestSyncProviderTitles(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	apptesting.CreateProvider(f.db)
	f.registry.Put(&fakeAdapter{
		id: "px",
		categories: []models.ProviderCategory{
			{ProviderID: "px", CategoryID: 10, Type: models.TitleTypeMovies, CategoryKey: "movies-10", CategoryName: "4K Movies"},
		},
		titles: []models.ProviderTitle{
			{
				ProviderID:  "px",
				Type:        models.TitleTypeMovies,
				TitleID:     "100",
				TitleKey:    "movies-100",
				Title:       "Dune (2021)",
				CategoryID:  10,
				Streams:     models.StringMap{models.MainSlot: "/movie/user/pass/100.mkv"},
				LastUpdated: time.Now(),
			},
		},
	})

	if err := f.engine.Run(ctx, JobSyncTitles); err != nil {
		t.Fatalf("sync failed: %v", err)
	}

	record := f.record(t, JobSyncTitles)
	if record.Status != models.JobStatusCompleted {
		t.Fatalf("unexpected status: %s (%s)", record.Status, record.LastError)
	}
	if !strings.Contains(record.LastResult, "saved=1") || !strings.Contains(record.LastResult, "matched=1") {
		t.Errorf("unexpected result summary: %s", record.LastResult)
	}

	categories, err := f.stores.Providers.ListCategories(ctx, "px")
	if err != nil || len(categories) != 1 {
		t.Errorf("expected one stored category, got %v (%v)", categories, err)
	}

	contributors, err := f.stores.ProviderTitles.ListContributors(ctx, models.TitleTypeMovies, 438631, []string{"px"})
	if err != nil || len(contributors) != 1 {
		t.Fatalf("expected one matched contributor, got %v (%v)", contributors, err)
	}

	canonical, err := f.stores.Titles.Get(ctx, "movies-438631")
	if err != nil {
		t.Fatalf("canonical title missing: %v", err)
	}
	if canonical.Title != "Dune" {
		t.Errorf("unexpected canonical title: %s", canonical.Title)
	}

	rows, err := f.stores.TitleStreams.ListForCanonical(ctx, models.TitleTypeMovies, 438631)
	if err != nil || len(rows) != 1 || rows[0].ProviderID != "px" {
		t.Errorf("unexpected stream rows: %v (%v)", rows, err)
	}

	stats, err := f.stores.Stats.ListByJob(ctx, JobSyncTitles, 10)
	if err != nil || len(stats) != 1 || stats[0].TitlesSaved != 1 || stats[0].Matched != 1 {
		t.Errorf("unexpected stats: %v (%v)", stats, err)
	}
}

func TestSyncSkipsProviderWithPendingError(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	msg := "401 from upstream"
	apptesting.CreateProvider(f.db, func(cfg *models.ProviderConfig) {
		cfg.LastError = &msg
	})
	adapter := &fakeAdapter{id: "px"}
	f.registry.Put(adapter)

	if err := f.engine.Run(ctx, JobSyncTitles); err != nil {
		t.Fatalf("sync failed: %v", err)
	}
	if adapter.categoryCalls != 0 || adapter.titleCalls != 0 {
		t.Errorf("errored provider must not be fetched: categories=%d titles=%d",
			adapter.categoryCalls, adapter.titleCalls)
	}
	if record := f.record(t, JobSyncTitles); !strings.Contains(record.LastResult, "providers=0") {
		t.Errorf("unexpected result summary: %s", record.LastResult)
	}
}

func TestSyncRecordsAuthError(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	apptesting.CreateProvider(f.db)
	f.registry.Put(&fakeAdapter{
		id:            "px",
		categoriesErr: apperrors.UpstreamAuth("px", "invalid credentials"),
	})

	if err := f.engine.Run(ctx, JobSyncTitles); err != nil {
		t.Fatalf("sync failed: %v", err)
	}

	cfg, err := f.stores.Providers.Get(ctx, "px")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if cfg.LastError == nil || !strings.Contains(*cfg.LastError, "invalid credentials") {
		t.Errorf("expected auth error recorded on provider, got %v", cfg.LastError)
	}
	if record := f.record(t, JobSyncTitles); !strings.Contains(record.LastResult, "errors=1") {
		t.Errorf("unexpected result summary: %s", record.LastResult)
	}
}

func TestMonitorNoChanges(t *testing.T) {
	f := newFixture(t)

	if err := f.engine.Run(context.Background(), JobMonitor); err != nil {
		t.Fatalf("monitor failed: %v", err)
	}
	if record := f.record(t, JobMonitor); record.LastResult != "no changes" {
		t.Errorf("unexpected result: %s", record.LastResult)
	}
}

func TestCategoriesChangedRemovesDisabledTitles(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	apptesting.CreateProvider(f.db, func(cfg *models.ProviderConfig) {
		cfg.EnabledCategories = models.EnabledCategories{Movies: []string{"movies-11"}}
	})
	f.registry.Put(&fakeAdapter{id: "px"})

	err := f.stores.Providers.ReplaceCategories(ctx, "px", []models.ProviderCategory{
		{ProviderID: "px", CategoryID: 10, Type: models.TitleTypeMovies, CategoryKey: "movies-10", CategoryName: "Old"},
		{ProviderID: "px", CategoryID: 11, Type: models.TitleTypeMovies, CategoryKey: "movies-11", CategoryName: "New"},
	})
	if err != nil {
		t.Fatalf("ReplaceCategories failed: %v", err)
	}

	disabled := apptesting.CreateProviderTitle(f.db, func(title *models.ProviderTitle) {
		title.Title = "Dune (2021)"
		title.CategoryID = 10
	})
	if err := f.stores.ProviderTitles.SetMatch(ctx, disabled.ID, 438631); err != nil {
		t.Fatalf("SetMatch failed: %v", err)
	}
	apptesting.CreateProviderTitle(f.db, func(title *models.ProviderTitle) {
		title.TitleID = "101"
		title.TitleKey = "movies-101"
		title.Title = "Kept Movie (2022)"
		title.CategoryID = 11
	})
	apptesting.CreateCanonicalTitle(f.db)

	f.queue.Enqueue(ActionCategoriesChanged, "px")
	if err := f.engine.Run(ctx, JobCategoriesChanged); err != nil {
		t.Fatalf("categories-changed failed: %v", err)
	}

	contributors, err := f.stores.ProviderTitles.ListContributors(ctx, models.TitleTypeMovies, 438631, []string{"px"})
	if err != nil || len(contributors) != 0 {
		t.Errorf("expected disabled category title removed, got %v (%v)", contributors, err)
	}
	if _, err := f.stores.Titles.Get(ctx, "movies-438631"); !apperrors.IsCode(err, apperrors.CodeNotFound) {
		t.Errorf("expected orphaned canonical title deleted, got %v", err)
	}

	remaining, err := f.stores.ProviderTitles.ListUpdatedSince(ctx, []string{"px"}, time.Time{})
	if err != nil || len(remaining) != 1 || remaining[0].TitleKey != "movies-101" {
		t.Errorf("expected enabled category title kept, got %v (%v)", remaining, err)
	}
}

func TestProviderDeletedCleansUp(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	apptesting.CreateProvider(f.db)
	f.registry.Put(&fakeAdapter{id: "px"})

	title := apptesting.CreateProviderTitle(f.db, func(title *models.ProviderTitle) {
		title.Title = "Dune (2021)"
	})
	if err := f.stores.ProviderTitles.SetMatch(ctx, title.ID, 438631); err != nil {
		t.Fatalf("SetMatch failed: %v", err)
	}
	apptesting.CreateCanonicalTitle(f.db)
	err := f.stores.TitleStreams.ReplaceForCanonical(ctx, models.TitleTypeMovies, 438631, []models.TitleStream{
		{
			Key:        models.StreamKey(models.TitleTypeMovies, 438631, models.MainSlot, "px"),
			Type:       models.TitleTypeMovies,
			TMDBID:     438631,
			Slot:       models.MainSlot,
			ProviderID: "px",
			ProxyPath:  "/proxy/movies/438631/main/px",
		},
	})
	if err != nil {
		t.Fatalf("ReplaceForCanonical failed: %v", err)
	}

	f.queue.Enqueue(ActionDeleted, "px")
	if err := f.engine.Run(ctx, JobProviderDeleted); err != nil {
		t.Fatalf("provider-deleted failed: %v", err)
	}

	remaining, err := f.stores.ProviderTitles.ListUpdatedSince(ctx, []string{"px"}, time.Time{})
	if err != nil || len(remaining) != 0 {
		t.Errorf("expected provider titles removed, got %v (%v)", remaining, err)
	}
	if _, err := f.stores.Titles.Get(ctx, "movies-438631"); !apperrors.IsCode(err, apperrors.CodeNotFound) {
		t.Errorf("expected canonical title removed, got %v", err)
	}
	rows, err := f.stores.TitleStreams.ListForCanonical(ctx, models.TitleTypeMovies, 438631)
	if err != nil || len(rows) != 0 {
		t.Errorf("expected stream rows removed, got %v (%v)", rows, err)
	}
	if _, ok := f.registry.Get("px"); ok {
		t.Error("expected adapter dropped from registry")
	}
}

func TestProviderDisabledWithdrawsContributions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	apptesting.CreateProvider(f.db)
	adapter := &fakeAdapter{
		id: "px",
		titles: []models.ProviderTitle{
			{
				ProviderID: "px",
				Type:       models.TitleTypeMovies,
				TitleID:    "100",
				TitleKey:   "movies-100",
				Title:      "Dune (2021)",
				CategoryID: 10,
				Streams:    models.StringMap{models.MainSlot: "/movie/user/pass/100.mkv"},
			},
		},
	}
	f.registry.Put(adapter)

	if err := f.engine.Run(ctx, JobSyncTitles); err != nil {
		t.Fatalf("sync failed: %v", err)
	}
	if _, err := f.stores.Titles.Get(ctx, "movies-438631"); err != nil {
		t.Fatalf("canonical title missing after sync: %v", err)
	}

	// Disabling the only contributor must remove the canonical title
	if err := f.stores.Providers.SetEnabled(ctx, "px", false); err != nil {
		t.Fatalf("SetEnabled failed: %v", err)
	}
	f.queue.Enqueue(ActionEnabled, "px")
	if err := f.engine.Run(ctx, JobProviderEnabled); err != nil {
		t.Fatalf("toggle event failed: %v", err)
	}

	if _, err := f.stores.Titles.Get(ctx, "movies-438631"); !apperrors.IsCode(err, apperrors.CodeNotFound) {
		t.Errorf("expected canonical title removed after last provider disabled, got %v", err)
	}
	rows, err := f.stores.TitleStreams.ListForCanonical(ctx, models.TitleTypeMovies, 438631)
	if err != nil || len(rows) != 0 {
		t.Errorf("expected stream rows removed, got %v (%v)", rows, err)
	}
	if record := f.record(t, JobProviderEnabled); !strings.Contains(record.LastResult, "disabled=1") {
		t.Errorf("unexpected result summary: %s", record.LastResult)
	}

	// Re-enabling restores the title through a fresh sync
	if err := f.stores.Providers.SetEnabled(ctx, "px", true); err != nil {
		t.Fatalf("SetEnabled failed: %v", err)
	}
	f.queue.Enqueue(ActionEnabled, "px")
	if err := f.engine.Run(ctx, JobProviderEnabled); err != nil {
		t.Fatalf("toggle event failed: %v", err)
	}
	// Wait for the async sync trigger
	f.engine.Stop()

	canonical, err := f.stores.Titles.Get(ctx, "movies-438631")
	if err != nil {
		t.Fatalf("canonical title missing after re-enable: %v", err)
	}
	sources := canonical.Streams[models.MainSlot].Sources
	if len(sources) != 1 || sources[0] != "px" {
		t.Errorf("unexpected sources after re-enable: %v", sources)
	}
}

func TestProviderAddedTriggersSync(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	apptesting.CreateProvider(f.db)
	adapter := &fakeAdapter{id: "px"}
	f.registry.Put(adapter)

	f.queue.Enqueue(ActionAdded, "px")
	if err := f.engine.Run(ctx, JobProviderAdded); err != nil {
		t.Fatalf("provider-added failed: %v", err)
	}
	// Wait for the async sync trigger
	f.engine.Stop()

	if record := f.record(t, JobProviderAdded); !strings.Contains(record.LastResult, "providers=1") {
		t.Errorf("unexpected result summary: %s", record.LastResult)
	}
	if record := f.record(t, JobSyncTitles); record.Status != models.JobStatusCompleted {
		t.Errorf("expected triggered sync to complete, got %s (%s)", record.Status, record.LastError)
	}
	if adapter.titleCalls != 1 {
		t.Errorf("expected one title load from triggered sync, got %d", adapter.titleCalls)
	}
}

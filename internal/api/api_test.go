package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vodhub/vodhub/internal/database"
	"github.com/vodhub/vodhub/internal/jobs"
	"github.com/vodhub/vodhub/internal/models"
	apptesting "github.com/vodhub/vodhub/internal/testing"
	"gorm.io/gorm"
)

type recordingTrigger struct {
	mu    sync.Mutex
	names []string
}

func (r *recordingTrigger) Trigger(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.names = append(r.names, name)
}

func (r *recordingTrigger) triggered() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.names...)
}

func newTestServer(t *testing.T) (*Server, *gin.Engine, *gorm.DB, *recordingTrigger) {
	t.Helper()

	db := apptesting.TestDB(t)
	stores := database.NewStores(db)
	trigger := &recordingTrigger{}

	server := NewServer(stores, jobs.NewQueue(), trigger)
	server.check = func() error { return nil }
	return server, server.Router(), db, trigger
}

func doJSON(t *testing.T, router *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()

	req, err := http.NewRequest(method, path, strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestProviderChangedDeleted(t *testing.T) {
	server, router, db, trigger := newTestServer(t)
	apptesting.CreateProvider(db)

	w := doJSON(t, router, http.MethodPost, "/api/providers/px/changed", `{"action":"deleted"}`)
	require.Equal(t, http.StatusOK, w.Code)

	cfg, err := server.stores.Providers.Get(context.Background(), "px")
	require.NoError(t, err)
	assert.True(t, cfg.Deleted)
	assert.False(t, cfg.Enabled)

	assert.Equal(t, []string{"px"}, server.queue.Drain(jobs.ActionDeleted))
	assert.Contains(t, trigger.triggered(), jobs.JobProviderDeleted)
}

func TestProviderChangedAddedWithConfig(t *testing.T) {
	server, router, _, trigger := newTestServer(t)

	body := `{
		"action": "added",
		"providerConfig": {
			"type": "xtream",
			"enabled": true,
			"streams_urls": ["http://provider.example/"],
			"username": "user",
			"password": "pass"
		}
	}`
	w := doJSON(t, router, http.MethodPost, "/api/providers/My%20IPTV/changed", body)
	require.Equal(t, http.StatusOK, w.Code)

	cfg, err := server.stores.Providers.Get(context.Background(), "my-iptv")
	require.NoError(t, err)
	assert.Equal(t, models.ProviderTypeXtream, cfg.Type)

	assert.Contains(t, trigger.triggered(), jobs.JobProviderAdded)
}

func TestProviderChangedDisableKeepsFlag(t *testing.T) {
	server, router, db, trigger := newTestServer(t)
	apptesting.CreateProvider(db)

	body := `{
		"action": "enabled",
		"providerConfig": {
			"type": "xtream",
			"enabled": false,
			"streams_urls": ["http://provider.example/"],
			"username": "user",
			"password": "pass"
		}
	}`
	w := doJSON(t, router, http.MethodPost, "/api/providers/px/changed", body)
	require.Equal(t, http.StatusOK, w.Code)

	// A disable notification must not be flipped back to enabled
	cfg, err := server.stores.Providers.Get(context.Background(), "px")
	require.NoError(t, err)
	assert.False(t, cfg.Enabled)

	assert.Equal(t, []string{"px"}, server.queue.Drain(jobs.ActionEnabled))
	assert.Contains(t, trigger.triggered(), jobs.JobProviderEnabled)
}

func TestProviderChangedUnknownAction(t *testing.T) {
	_, router, _, trigger := newTestServer(t)

	w := doJSON(t, router, http.MethodPost, "/api/providers/px/changed", `{"action":"rebooted"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, trigger.triggered())
}

func TestProviderChangedBadBody(t *testing.T) {
	_, router, _, _ := newTestServer(t)

	w := doJSON(t, router, http.MethodPost, "/api/providers/px/changed", `{`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestProviderChangedMissingProviderStillAccepted(t *testing.T) {
	server, router, _, _ := newTestServer(t)

	// The notification contract is fire-and-forget; a stale id is logged
	// and the caller still gets a 200
	w := doJSON(t, router, http.MethodPost, "/api/providers/ghost/changed", `{"action":"enabled"}`)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"ghost"}, server.queue.Drain(jobs.ActionEnabled))
}

func TestCreateProvider(t *testing.T) {
	_, router, _, trigger := newTestServer(t)

	body := `{
		"id": "Main Provider",
		"type": "xtream",
		"enabled": true,
		"streams_urls": ["http://provider.example/"],
		"username": "user",
		"password": "secret"
	}`
	w := doJSON(t, router, http.MethodPost, "/api/providers", body)
	require.Equal(t, http.StatusCreated, w.Code)

	var created struct {
		Provider models.ProviderConfig `json:"provider"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	assert.Equal(t, "main-provider", created.Provider.ID)
	assert.Empty(t, created.Provider.Password)
	assert.Contains(t, trigger.triggered(), jobs.JobProviderAdded)

	// Same slug conflicts
	w = doJSON(t, router, http.MethodPost, "/api/providers", body)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestCreateProviderValidation(t *testing.T) {
	_, router, _, _ := newTestServer(t)

	w := doJSON(t, router, http.MethodPost, "/api/providers",
		`{"id":"p1","type":"xtream","streams_urls":[]}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestListProvidersRedactsPassword(t *testing.T) {
	_, router, db, _ := newTestServer(t)
	apptesting.CreateProvider(db)

	w := doJSON(t, router, http.MethodGet, "/api/providers", "")
	require.Equal(t, http.StatusOK, w.Code)

	var listed struct {
		Providers []models.ProviderConfig `json:"providers"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &listed))
	require.Len(t, listed.Providers, 1)
	assert.Equal(t, "px", listed.Providers[0].ID)
	assert.Empty(t, listed.Providers[0].Password)
}

func TestListJobs(t *testing.T) {
	server, router, _, _ := newTestServer(t)
	require.NoError(t, server.stores.Jobs.Ensure(context.Background(), jobs.JobSyncTitles, "6h"))

	w := doJSON(t, router, http.MethodGet, "/api/jobs", "")
	require.Equal(t, http.StatusOK, w.Code)

	var listed struct {
		Jobs []models.JobRecord `json:"jobs"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &listed))
	require.Len(t, listed.Jobs, 1)
	assert.Equal(t, jobs.JobSyncTitles, listed.Jobs[0].Name)
}

func TestHealth(t *testing.T) {
	server, router, _, _ := newTestServer(t)

	w := doJSON(t, router, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, w.Code)

	server.check = func() error { return assert.AnError }
	w = doJSON(t, router, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestRequestIDHeader(t *testing.T) {
	_, router, _, _ := newTestServer(t)

	w := doJSON(t, router, http.MethodGet, "/health", "")
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))

	req, err := http.NewRequest(http.MethodGet, "/health", nil)
	require.NoError(t, err)
	req.Header.Set("X-Request-ID", "req-42")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, "req-42", w.Header().Get("X-Request-ID"))
}

package providers

import (
	"context"
	"sync"
	"time"

	apperrors "github.com/vodhub/vodhub/internal/errors"
	"github.com/vodhub/vodhub/internal/httpclient"
	"github.com/vodhub/vodhub/internal/models"
)

// Batch is the result of one title load. Item-level failures never abort
// a batch; they are counted and the partial set is returned.
type Batch struct {
	Titles []models.ProviderTitle
	Errors int
}

// Adapter is the capability set every provider type implements
type Adapter interface {
	// ProviderID returns the slug of the provider this adapter serves
	ProviderID() string

	// LoadCategories discovers the upstream categories of both title types
	LoadCategories(ctx context.Context) ([]models.ProviderCategory, error)

	// LoadTitles returns the titles changed upstream after since. A zero
	// since requests the full catalog.
	LoadTitles(ctx context.Context, since time.Time) (*Batch, error)

	// PlaybackURLs returns the candidate playback URLs of one slot across
	// all configured stream hosts
	PlaybackURLs(title *models.ProviderTitle, slot string) []string

	// ConfigUpdate rebuilds the adapter's URL and auth plans from a new
	// provider config
	ConfigUpdate(cfg *models.ProviderConfig)
}

// NewAdapter instantiates the adapter matching the config's provider type
func NewAdapter(client *httpclient.Client, cfg *models.ProviderConfig) (Adapter, error) {
	switch cfg.Type {
	case models.ProviderTypeXtream:
		return NewXtream(client, cfg), nil
	case models.ProviderTypeAGTV:
		return NewAGTV(client, cfg), nil
	default:
		return nil, apperrors.New(apperrors.CodeValidation, "unknown provider type").
			WithContext("provider", cfg.ID).
			WithContext("type", string(cfg.Type))
	}
}

// Registry holds the live adapters of all active providers
type Registry struct {
	mu       sync.RWMutex
	adapters map[string]Adapter
}

// NewRegistry creates an empty adapter registry
func NewRegistry() *Registry {
	return &Registry{adapters: make(map[string]Adapter)}
}

// Get returns the adapter of one provider
func (r *Registry) Get(providerID string) (Adapter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	adapter, ok := r.adapters[providerID]
	return adapter, ok
}

// Put installs or replaces the adapter of one provider
func (r *Registry) Put(adapter Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters[adapter.ProviderID()] = adapter
}

// Remove drops the adapter of one provider
func (r *Registry) Remove(providerID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.adapters, providerID)
}

// IDs returns the registered provider ids
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.adapters))
	for id := range r.adapters {
		ids = append(ids, id)
	}
	return ids
}

package reconciler

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/vodhub/vodhub/internal/database"
	apperrors "github.com/vodhub/vodhub/internal/errors"
	"github.com/vodhub/vodhub/internal/external/tmdb"
	"github.com/vodhub/vodhub/internal/logger"
	"github.com/vodhub/vodhub/internal/models"
)

// Detailer loads canonical metadata for one title
type Detailer interface {
	Details(ctx context.Context, titleType models.TitleType, id int) (*tmdb.Details, error)
}

// Result summarizes one reconciliation pass
type Result struct {
	Affected int
	Rebuilt  int
	Deleted  int
	Errors   int
}

// Reconciler rebuilds canonical titles from the provider title collections.
// Passes are serialized by the job engine; within a pass keys are processed
// sequentially so a re-run with the same inputs persists identical records.
type Reconciler struct {
	stores *database.Stores
	tmdb   Detailer
}

// New creates a reconciler
func New(stores *database.Stores, detailer Detailer) *Reconciler {
	return &Reconciler{stores: stores, tmdb: detailer}
}

type canonicalRef struct {
	titleType models.TitleType
	tmdbID    int
}

func (c canonicalRef) key() string {
	return models.CanonicalKey(c.titleType, c.tmdbID)
}

// Reconcile processes the canonical titles affected by a set of updated
// provider titles. Per-key failures are counted and do not abort the pass.
func (r *Reconciler) Reconcile(ctx context.Context, updated []models.ProviderTitle) (*Result, error) {
	affected := collectAffected(updated)
	result := &Result{Affected: len(affected)}
	if len(affected) == 0 {
		return result, nil
	}

	activeIDs, err := r.stores.Providers.ActiveIDs(ctx)
	if err != nil {
		return result, err
	}

	// Keys created in this pass count as existing for similar filtering
	inPass := make(map[string]bool, len(affected))
	for _, ref := range affected {
		inPass[ref.key()] = true
	}

	log := logger.JobLogger()
	for _, ref := range affected {
		if err := ctx.Err(); err != nil {
			return result, apperrors.Cancelled(err)
		}

		if err := r.reconcileOne(ctx, ref, activeIDs, inPass, result); err != nil {
			if apperrors.IsCancelled(err) {
				return result, err
			}
			result.Errors++
			log.WithFields(map[string]interface{}{
				"title_key": ref.key(),
			}).Error("failed to reconcile title", err)
		}
	}
	return result, nil
}

func (r *Reconciler) reconcileOne(ctx context.Context, ref canonicalRef, activeIDs []string, inPass map[string]bool, result *Result) error {
	contributors, err := r.stores.ProviderTitles.ListContributors(ctx, ref.titleType, ref.tmdbID, activeIDs)
	if err != nil {
		return err
	}

	if len(contributors) == 0 {
		if err := r.stores.Titles.Delete(ctx, ref.key()); err != nil {
			return err
		}
		if err := r.stores.TitleStreams.DeleteForCanonical(ctx, ref.titleType, ref.tmdbID); err != nil {
			return err
		}
		result.Deleted++
		return nil
	}

	details, err := r.tmdb.Details(ctx, ref.titleType, ref.tmdbID)
	if err != nil {
		return err
	}

	slots := pickSlots(contributors)

	streams := models.StreamsMap{}
	for slot, owners := range slots {
		sources := models.StringList{}
		for providerID := range owners {
			sources = append(sources, providerID)
		}
		streams[slot] = models.StreamSources{Sources: sources}
	}

	similar, err := r.filterSimilar(ctx, ref.titleType, details.SimilarIDs, inPass)
	if err != nil {
		return err
	}

	canonical := &models.CanonicalTitle{
		TitleKey:      ref.key(),
		TitleID:       ref.tmdbID,
		Type:          ref.titleType,
		Title:         details.Title,
		ReleaseDate:   details.ReleaseDate,
		Overview:      details.Overview,
		PosterPath:    details.PosterPath,
		BackdropPath:  details.BackdropPath,
		Genres:        details.Genres,
		Runtime:       details.Runtime,
		VoteAverage:   details.VoteAverage,
		VoteCount:     details.VoteCount,
		Streams:       streams,
		SimilarTitles: similar,
	}
	if err := r.stores.Titles.Upsert(ctx, canonical); err != nil {
		return err
	}

	rows := buildStreamRows(ref, details, slots)
	if err := r.stores.TitleStreams.ReplaceForCanonical(ctx, ref.titleType, ref.tmdbID, rows); err != nil {
		return err
	}

	result.Rebuilt++
	return nil
}

// collectAffected derives the ordered set of canonical keys touched by the
// updated provider titles
func collectAffected(updated []models.ProviderTitle) []canonicalRef {
	seen := make(map[string]canonicalRef)
	for i := range updated {
		title := &updated[i]
		if !title.Matched() {
			continue
		}
		ref := canonicalRef{titleType: title.Type, tmdbID: *title.TMDBID}
		seen[ref.key()] = ref
	}

	refs := make([]canonicalRef, 0, len(seen))
	for _, ref := range seen {
		refs = append(refs, ref)
	}
	sort.Slice(refs, func(i, j int) bool { return refs[i].key() < refs[j].key() })
	return refs
}

type slotOwner struct {
	contributor *models.ProviderTitle
	lastUpdated time.Time
}

// pickSlots maps each slot to its contributing providers. When two titles
// of the same provider claim one slot, the latest upstream update wins.
func pickSlots(contributors []models.ProviderTitle) map[string]map[string]*models.ProviderTitle {
	chosen := make(map[string]map[string]slotOwner)
	for i := range contributors {
		contributor := &contributors[i]
		for slot := range contributor.Streams {
			if !models.ValidSlot(contributor.Type, slot) {
				continue
			}
			owners, ok := chosen[slot]
			if !ok {
				owners = make(map[string]slotOwner)
				chosen[slot] = owners
			}
			current, claimed := owners[contributor.ProviderID]
			if !claimed || contributor.LastUpdated.After(current.lastUpdated) {
				owners[contributor.ProviderID] = slotOwner{
					contributor: contributor,
					lastUpdated: contributor.LastUpdated,
				}
			}
		}
	}

	slots := make(map[string]map[string]*models.ProviderTitle, len(chosen))
	for slot, owners := range chosen {
		slots[slot] = make(map[string]*models.ProviderTitle, len(owners))
		for providerID, owner := range owners {
			slots[slot][providerID] = owner.contributor
		}
	}
	return slots
}

func (r *Reconciler) filterSimilar(ctx context.Context, titleType models.TitleType, similarIDs []int, inPass map[string]bool) (models.StringList, error) {
	if len(similarIDs) == 0 {
		return models.StringList{}, nil
	}

	keys := make([]string, 0, len(similarIDs))
	for _, id := range similarIDs {
		keys = append(keys, models.CanonicalKey(titleType, id))
	}

	existing, err := r.stores.Titles.ExistingKeys(ctx, keys)
	if err != nil {
		return nil, err
	}

	filtered := models.StringList{}
	for _, key := range keys {
		if existing[key] || inPass[key] {
			filtered = append(filtered, key)
		}
	}
	sort.Strings(filtered)
	return filtered, nil
}

func buildStreamRows(ref canonicalRef, details *tmdb.Details, slots map[string]map[string]*models.ProviderTitle) []models.TitleStream {
	var rows []models.TitleStream
	for slot, owners := range slots {
		for providerID := range owners {
			path := fmt.Sprintf("/proxy/%s/%d/%s/%s", ref.titleType, ref.tmdbID, slot, providerID)
			rows = append(rows, models.TitleStream{
				Key:        models.StreamKey(ref.titleType, ref.tmdbID, slot, providerID),
				Type:       ref.titleType,
				TMDBID:     ref.tmdbID,
				Slot:       slot,
				ProviderID: providerID,
				ProxyPath:  path,
				ProxyURL:   path,
				TvgName:    details.Title,
				TvgLogo:    details.PosterPath,
			})
		}
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Key < rows[j].Key })
	return rows
}

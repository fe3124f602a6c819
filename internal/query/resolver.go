package query

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"datastore-downloader/pkg/models"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

const (
	slugCacheSize = 256
	slugCacheTTL  = 10 * time.Minute
)

// Args are the raw query parameters of a download or saved query request
type Args struct {
	Query                  map[string]any   `json:"query,omitempty"`
	QueryVersion           string           `json:"query_version,omitempty"`
	ResourceIDs            []string         `json:"resource_ids,omitempty"`
	ResourceIDsAndVersions map[string]int64 `json:"resource_ids_and_versions,omitempty"`
	Version                *int64           `json:"version,omitempty"`
	SlugOrDOI              string           `json:"slug_or_doi,omitempty"`
	AllowNonDatastore      bool             `json:"allow_non_datastore,omitempty"`
}

// VersionRounder rounds a target timestamp down to the latest committed version of a
// resource. ok is false when the resource has no version at or before the target.
type VersionRounder interface {
	RoundedVersion(ctx context.Context, resourceID string, target int64) (version int64, ok bool, err error)
}

// SavedQueryStore persists queries under slugs
type SavedQueryStore interface {
	GetSavedQueryBySlug(slug string) (*models.SavedQuery, error)
	GetSavedQueryByRecordHash(recordHash string) (*models.SavedQuery, error)
	CreateSavedQuery(saved *models.SavedQuery) error
}

// Resolver turns request arguments into canonical queries
type Resolver struct {
	store  VersionRounder
	saved  SavedQueryStore
	slugs  *expirable.LRU[string, *models.SavedQuery]
	now    func() time.Time
	logger *slog.Logger
}

// NewResolver creates a new query resolver
func NewResolver(store VersionRounder, saved SavedQueryStore) *Resolver {
	return &Resolver{
		store:  store,
		saved:  saved,
		slugs:  expirable.NewLRU[string, *models.SavedQuery](slugCacheSize, nil, slugCacheTTL),
		now:    time.Now,
		logger: slog.Default(),
	}
}

// Resolve builds a Query from the arguments. A slug that cannot be resolved is ignored
// and the remaining arguments are used as given.
func (r *Resolver) Resolve(ctx context.Context, args Args) (*Query, error) {
	expression := args.Query
	version := args.QueryVersion
	resourceIDs := args.ResourceIDs
	versions := args.ResourceIDsAndVersions

	if args.SlugOrDOI != "" {
		saved, err := r.lookupSlug(args.SlugOrDOI)
		if err != nil {
			r.logger.Debug("Slug did not resolve, using request arguments", "slug", args.SlugOrDOI, "error", err)
		} else {
			expression = saved.Query
			version = saved.QueryVersion
			resourceIDs = saved.ResourceIDs
			versions = saved.ResourceVersions
		}
	}

	// validate before touching the store so bad input fails fast
	q, err := New(expression, version, nil)
	if err != nil {
		return nil, err
	}

	if versions != nil {
		resourceIDs = make([]string, 0, len(versions))
		for id := range versions {
			resourceIDs = append(resourceIDs, id)
		}
		sort.Strings(resourceIDs)
	}
	if len(resourceIDs) == 0 {
		return nil, Invalidf("no resources were requested")
	}

	target := r.now().UnixMilli()
	if args.Version != nil {
		target = *args.Version
	}

	resolved := make(map[string]int64, len(resourceIDs))
	for _, id := range resourceIDs {
		if _, seen := resolved[id]; seen {
			continue
		}

		resourceTarget := target
		if v, ok := versions[id]; ok {
			resourceTarget = v
		}

		rounded, ok, err := r.store.RoundedVersion(ctx, id, resourceTarget)
		if err != nil {
			return nil, fmt.Errorf("failed to round version for resource %s: %w", id, err)
		}
		switch {
		case ok:
			resolved[id] = rounded
		case args.AllowNonDatastore:
			resolved[id] = models.NotVersioned
		default:
			r.logger.Debug("Dropping resource with no version", "resource_id", id, "version", resourceTarget)
		}
	}

	if len(resolved) == 0 {
		return nil, Invalidf("none of the requested resources have data at the requested version")
	}

	q.Resources = resolved
	return q, nil
}

func (r *Resolver) lookupSlug(slug string) (*models.SavedQuery, error) {
	if saved, ok := r.slugs.Get(slug); ok {
		return saved, nil
	}
	saved, err := r.saved.GetSavedQueryBySlug(slug)
	if err != nil {
		return nil, err
	}
	r.slugs.Add(slug, saved)
	return saved, nil
}

// ResolveSlug returns the saved query stored under slug
func (r *Resolver) ResolveSlug(slug string) (*models.SavedQuery, error) {
	saved, err := r.lookupSlug(slug)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve slug %s: %w", slug, err)
	}
	return saved, nil
}

// SaveQuery stores the query arguments under a slug. Saving the same query and resources
// again returns the existing slug.
func (r *Resolver) SaveQuery(ctx context.Context, args Args) (*models.SavedQuery, error) {
	q, err := New(args.Query, args.QueryVersion, nil)
	if err != nil {
		return nil, err
	}

	ids := append([]string(nil), args.ResourceIDs...)
	for id := range args.ResourceIDsAndVersions {
		ids = append(ids, id)
	}
	ids = dedupeSorted(ids)
	if len(ids) == 0 {
		return nil, Invalidf("no resources were requested")
	}

	// the slug identity is the query plus the resources as requested, not as rounded
	pinned := make(map[string]int64, len(ids))
	for _, id := range ids {
		pinned[id] = args.ResourceIDsAndVersions[id]
	}
	recordHash := RecordHash(q.Hash(), ResourceHash(pinned))

	existing, err := r.saved.GetSavedQueryByRecordHash(recordHash)
	if err == nil {
		return existing, nil
	}

	saved := &models.SavedQuery{
		Query:            q.Expression,
		QueryVersion:     q.Version,
		ResourceIDs:      ids,
		ResourceVersions: args.ResourceIDsAndVersions,
		RecordHash:       recordHash,
	}

	for length := 12; length <= len(recordHash); length += 4 {
		candidate := recordHash[:length]
		if _, err := r.saved.GetSavedQueryBySlug(candidate); err == nil {
			continue
		}
		saved.Slug = candidate
		break
	}
	if saved.Slug == "" {
		return nil, errors.New("failed to allocate a slug")
	}

	if err := r.saved.CreateSavedQuery(saved); err != nil {
		return nil, fmt.Errorf("failed to save query: %w", err)
	}

	r.logger.Info("Saved query", "slug", saved.Slug, "record_hash", recordHash)
	return saved, nil
}

func dedupeSorted(ids []string) []string {
	sort.Strings(ids)
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if len(out) > 0 && out[len(out)-1] == id {
			continue
		}
		out = append(out, id)
	}
	return out
}

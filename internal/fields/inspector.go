package fields

import (
	"context"
	"fmt"
	"log/slog"

	"datastore-downloader/internal/datastore"
)

// Inspection is what the store reports about a resource's fields at one version
type Inspection struct {
	// Fields describes every field at the version, regardless of any query
	Fields []datastore.FieldInfo
	// All maps every leaf path at the version to its non-null occurrence count
	All map[string]int
	// Matching maps the same paths to their counts among the records matching the query.
	// Paths with no matching values are present with a count of 0.
	Matching map[string]int
}

// Inspector works out which fields a query's result set holds
type Inspector struct {
	store  datastore.Store
	logger *slog.Logger
}

// NewInspector creates a new field inspector
func NewInspector(store datastore.Store) *Inspector {
	return &Inspector{
		store:  store,
		logger: slog.Default(),
	}
}

// Inspect describes the fields of a resource at a version, with counts restricted to the
// records matching expression
func (i *Inspector) Inspect(ctx context.Context, resourceID string, version int64, expression map[string]any) (*Inspection, error) {
	infos, err := i.store.FieldSchema(ctx, resourceID, version, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to get field schema: %w", err)
	}

	inspection := &Inspection{
		Fields:   infos,
		All:      leafCounts(infos),
		Matching: make(map[string]int),
	}

	if len(expression) == 0 {
		for path, count := range inspection.All {
			inspection.Matching[path] = count
		}
		return inspection, nil
	}

	matching, err := i.store.FieldSchema(ctx, resourceID, version, expression)
	if err != nil {
		return nil, fmt.Errorf("failed to get matching field schema: %w", err)
	}
	for path := range inspection.All {
		inspection.Matching[path] = 0
	}
	for path, count := range leafCounts(matching) {
		inspection.Matching[path] = count
	}

	i.logger.Debug("Inspected fields", "resource_id", resourceID, "version", version, "fields", len(inspection.All))
	return inspection, nil
}

// Counts returns the all and matching field counts of a resource at a version
func (i *Inspector) Counts(ctx context.Context, resourceID string, version int64, expression map[string]any) (map[string]int, map[string]int, error) {
	inspection, err := i.Inspect(ctx, resourceID, version, expression)
	if err != nil {
		return nil, nil, err
	}
	return inspection.All, inspection.Matching, nil
}

// leafCounts keeps the paths that hold values rather than nested objects
func leafCounts(infos []datastore.FieldInfo) map[string]int {
	counts := make(map[string]int, len(infos))
	for _, info := range infos {
		if info.Types.Dict {
			continue
		}
		counts[info.Path] = info.Count
	}
	return counts
}

// Package core writes and reads the cached core files that every derivative is built from
package core

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/linkedin/goavro/v2"
	"golang.org/x/sync/singleflight"

	"datastore-downloader/internal/datastore"
	"datastore-downloader/internal/fields"
	"datastore-downloader/internal/metrics"
	"datastore-downloader/internal/query"
	"datastore-downloader/pkg/models"
)

const (
	// BatchSize is the number of records appended to a core file at a time
	BatchSize = 10000
	// PartialSuffix marks a core file that is still being written
	PartialSuffix = ".part"
)

// RecordStore persists core file records
type RecordStore interface {
	FindCoreRecordsByQueryHash(queryHash string) ([]*models.CoreFileRecord, error)
	UpdateCoreRecord(record *models.CoreFileRecord) error
}

// Progress is told which resource is about to be processed
type Progress func(resourceID string, index, total int)

// Generator makes sure a core file exists for every resource of a query
type Generator struct {
	dir       string
	store     datastore.Store
	inspector *fields.Inspector
	records   RecordStore
	group     singleflight.Group
	now       func() time.Time
	logger    *slog.Logger
}

type generated struct {
	total  int64
	counts map[string]int
}

// NewGenerator creates a generator caching core files under dir
func NewGenerator(dir string, store datastore.Store, records RecordStore) *Generator {
	return &Generator{
		dir:       dir,
		store:     store,
		inspector: fields.NewInspector(store),
		records:   records,
		now:       time.Now,
		logger:    slog.Default(),
	}
}

// Dir returns the directory holding the core files of a query hash
func (g *Generator) Dir(queryHash string) string {
	return filepath.Join(g.dir, queryHash)
}

// FileName returns the name of the core file of a resource at a version
func FileName(resourceID string, version int64) string {
	return fmt.Sprintf("%s_%d.avro", resourceID, version)
}

// Path returns the core file of a resource at a version for a query hash
func (g *Generator) Path(queryHash, resourceID string, version int64) string {
	return filepath.Join(g.Dir(queryHash), FileName(resourceID, version))
}

// Generate writes the core files of q that are missing and records every resource's total
// and field counts on record. The record is persisted after each resource so work done
// before a failure is kept.
func (g *Generator) Generate(ctx context.Context, q *query.Query, record *models.CoreFileRecord, progress Progress) error {
	queryHash := q.Hash()
	dir := g.Dir(queryHash)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create core directory: %w", err)
	}

	onDisk, err := listFiles(dir)
	if err != nil {
		return err
	}

	previous, err := g.records.FindCoreRecordsByQueryHash(queryHash)
	if err != nil {
		return fmt.Errorf("failed to find previous core records: %w", err)
	}
	// the record being filled in counts as documentation too
	previous = append([]*models.CoreFileRecord{record}, previous...)

	if record.ResourceTotals == nil {
		record.ResourceTotals = make(map[string]int64)
	}
	if record.FieldCounts == nil {
		record.FieldCounts = make(map[string]map[string]int)
	}

	resourceIDs := q.ResourceIDs()
	for i, resourceID := range resourceIDs {
		if err := ctx.Err(); err != nil {
			return err
		}
		if progress != nil {
			progress(resourceID, i, len(resourceIDs))
		}

		version := q.Resources[resourceID]
		logger := g.logger.With("resource_id", resourceID, "version", version, "query_hash", queryHash)

		result, err := g.resolve(ctx, q, resourceID, version, onDisk, previous, logger)
		if err != nil {
			return fmt.Errorf("failed to generate core file for resource %s: %w", resourceID, err)
		}

		record.ResourceTotals[resourceID] = result.total
		record.FieldCounts[resourceID] = result.counts
		record.Total = sumTotals(record.ResourceTotals)
		record.Modified = g.now()
		if err := g.records.UpdateCoreRecord(record); err != nil {
			return fmt.Errorf("failed to update core record: %w", err)
		}
	}

	return nil
}

// resolve finds or creates the core file of one resource
func (g *Generator) resolve(ctx context.Context, q *query.Query, resourceID string, version int64, onDisk map[string]bool, previous []*models.CoreFileRecord, logger *slog.Logger) (*generated, error) {
	if version == models.NotVersioned {
		return &generated{total: 1, counts: map[string]int{}}, nil
	}

	name := FileName(resourceID, version)
	path := filepath.Join(g.Dir(q.Hash()), name)
	documented := findDocumented(previous, resourceID, version)

	switch {
	case onDisk[name] && documented != nil:
		logger.Debug("Reusing core file")
		return documented, nil
	case documented != nil:
		logger.Warn("Core file documented but missing, regenerating")
	case onDisk[name]:
		// nothing documents this file so its totals are unknown
		logger.Warn("Replacing undocumented core file")
	}

	v, err, shared := g.group.Do(path, func() (any, error) {
		return g.write(ctx, q, resourceID, version, path, logger)
	})
	if err != nil {
		return nil, err
	}
	if shared {
		logger.Debug("Joined concurrent core file generation")
	}
	onDisk[name] = true
	return v.(*generated), nil
}

func findDocumented(records []*models.CoreFileRecord, resourceID string, version int64) *generated {
	for _, r := range records {
		if r == nil || r.ResourceVersions[resourceID] != version || !r.Generated(resourceID) {
			continue
		}
		counts := r.FieldCounts[resourceID]
		if counts == nil {
			counts = map[string]int{}
		}
		return &generated{total: r.ResourceTotals[resourceID], counts: counts}
	}
	return nil
}

// write streams the matching records of one resource into a new core file. The file is
// built under a partial name and renamed into place once complete, so readers of an older
// copy are never cut short.
func (g *Generator) write(ctx context.Context, q *query.Query, resourceID string, version int64, path string, logger *slog.Logger) (result *generated, err error) {
	started := g.now()

	inspection, err := g.inspector.Inspect(ctx, resourceID, version, q.Expression)
	if err != nil {
		return nil, err
	}
	schema, err := fields.Schema(inspection.Fields)
	if err != nil {
		return nil, err
	}
	codec, err := goavro.NewCodec(schema.JSON())
	if err != nil {
		return nil, fmt.Errorf("failed to create avro codec: %w", err)
	}

	partial := path + PartialSuffix
	if err := createFile(partial, codec); err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			if rmErr := os.Remove(partial); rmErr != nil && !errors.Is(rmErr, fs.ErrNotExist) {
				logger.Error("Failed to remove partial core file", "path", partial, "error", rmErr)
			}
		}
	}()

	var total int64
	batch := make([]any, 0, BatchSize)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := appendBatch(partial, codec, batch); err != nil {
			return err
		}
		logger.Debug("Appended batch to core file", "rows", len(batch), "total", total)
		metrics.CoreRows.Add(float64(len(batch)))
		batch = batch[:0]
		return nil
	}

	err = g.store.Scan(ctx, resourceID, version, q.Expression, func(record datastore.Record) error {
		batch = append(batch, schema.Native(record))
		total++
		if len(batch) >= BatchSize {
			return flush()
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan records: %w", err)
	}
	if err := flush(); err != nil {
		return nil, err
	}
	if err := os.Rename(partial, path); err != nil {
		return nil, fmt.Errorf("failed to move core file into place: %w", err)
	}

	metrics.CoreFilesGenerated.Inc()
	logger.Info("Core file generated", "rows", total, "duration", g.now().Sub(started))
	return &generated{total: total, counts: inspection.Matching}, nil
}

// createFile writes the header of an empty core file, replacing any existing file
func createFile(path string, codec *goavro.Codec) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("failed to create core file: %w", err)
	}
	if _, err := goavro.NewOCFWriter(goavro.OCFConfig{
		W:               f,
		Codec:           codec,
		CompressionName: goavro.CompressionDeflateLabel,
	}); err != nil {
		f.Close()
		return fmt.Errorf("failed to write core file header: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close core file: %w", err)
	}
	return nil
}

// appendBatch reopens a core file and appends one block of records to it, so the file is
// valid up to the last complete batch
func appendBatch(path string, codec *goavro.Codec, batch []any) error {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open core file: %w", err)
	}
	defer f.Close()

	writer, err := goavro.NewOCFWriter(goavro.OCFConfig{
		W:               f,
		Codec:           codec,
		CompressionName: goavro.CompressionDeflateLabel,
	})
	if err != nil {
		return fmt.Errorf("failed to reopen core file: %w", err)
	}
	if err := writer.Append(batch); err != nil {
		return fmt.Errorf("failed to append to core file: %w", err)
	}
	return f.Close()
}

func listFiles(dir string) (map[string]bool, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list core directory: %w", err)
	}
	names := make(map[string]bool, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() {
			names[entry.Name()] = true
		}
	}
	return names, nil
}

func sumTotals(totals map[string]int64) int64 {
	var total int64
	for _, t := range totals {
		total += t
	}
	return total
}

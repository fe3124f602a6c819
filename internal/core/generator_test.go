package core

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"datastore-downloader/internal/database"
	"datastore-downloader/internal/datastore"
	"datastore-downloader/internal/datastore/datastoretest"
	"datastore-downloader/internal/query"
	"datastore-downloader/pkg/models"
)

type fixture struct {
	store     *datastoretest.Store
	db        *database.DB
	generator *Generator
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, err := database.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	store := datastoretest.New()
	return &fixture{
		store:     store,
		db:        db,
		generator: NewGenerator(filepath.Join(t.TempDir(), "core"), store, db),
	}
}

func (f *fixture) newRecord(t *testing.T, q *query.Query) *models.CoreFileRecord {
	t.Helper()
	record := &models.CoreFileRecord{
		QueryHash:        q.Hash(),
		Query:            q.Expression,
		QueryVersion:     q.Version,
		ResourceVersions: q.Resources,
		ResourceHash:     q.ResourceHash(),
	}
	require.NoError(t, f.db.CreateCoreRecord(record))
	return record
}

func mustQuery(t *testing.T, expression map[string]any, resources map[string]int64) *query.Query {
	t.Helper()
	q, err := query.New(expression, "", resources)
	require.NoError(t, err)
	return q
}

func TestGenerator_Generate(t *testing.T) {
	f := newFixture(t)
	f.store.AddVersion("a", 10,
		datastore.Record{"_id": "1", "name": "moth", "count": 3},
		datastore.Record{"_id": "2", "name": "beetle"},
		datastore.Record{"_id": "3", "name": "moth", "colour": "brown"},
	)

	q := mustQuery(t, map[string]any{"search": "moth"}, map[string]int64{"a": 10})
	record := f.newRecord(t, q)

	var progressed []string
	err := f.generator.Generate(context.Background(), q, record, func(resourceID string, index, total int) {
		progressed = append(progressed, fmt.Sprintf("%s %d/%d", resourceID, index, total))
	})
	require.NoError(t, err)
	require.Equal(t, []string{"a 0/1"}, progressed)

	require.Equal(t, int64(2), record.Total)
	require.Equal(t, map[string]int64{"a": 2}, record.ResourceTotals)
	require.Equal(t, map[string]int{"_id": 2, "name": 2, "count": 1, "colour": 1}, record.FieldCounts["a"])

	// persisted too
	stored, err := f.db.GetCoreRecord(record.ID)
	require.NoError(t, err)
	require.Equal(t, record.ResourceTotals, stored.ResourceTotals)

	path := f.generator.Path(q.Hash(), "a", 10)
	require.Equal(t, filepath.Join(f.generator.Dir(q.Hash()), "a_10.avro"), path)

	var ids []string
	require.NoError(t, Read(context.Background(), path, func(r datastore.Record) error {
		ids = append(ids, r.ID())
		return nil
	}))
	require.Equal(t, []string{"1", "3"}, ids)
}

func TestGenerator_EmptyResultWritesHeaderOnly(t *testing.T) {
	f := newFixture(t)
	f.store.AddVersion("a", 10, datastore.Record{"_id": "1", "name": "beetle"})

	q := mustQuery(t, map[string]any{"search": "moth"}, map[string]int64{"a": 10})
	record := f.newRecord(t, q)
	require.NoError(t, f.generator.Generate(context.Background(), q, record, nil))

	require.Equal(t, int64(0), record.ResourceTotals["a"])
	require.Equal(t, map[string]int{"_id": 0, "name": 0}, record.FieldCounts["a"])

	n, err := Count(f.generator.Path(q.Hash(), "a", 10))
	require.NoError(t, err)
	require.Zero(t, n)
}

func TestGenerator_Batches(t *testing.T) {
	f := newFixture(t)
	records := make([]datastore.Record, 0, BatchSize+5)
	for i := 0; i < BatchSize+5; i++ {
		records = append(records, datastore.Record{"_id": fmt.Sprint(i), "n": i})
	}
	f.store.AddVersion("a", 1, records...)

	q := mustQuery(t, nil, map[string]int64{"a": 1})
	record := f.newRecord(t, q)
	require.NoError(t, f.generator.Generate(context.Background(), q, record, nil))

	require.Equal(t, int64(BatchSize+5), record.Total)
	n, err := Count(f.generator.Path(q.Hash(), "a", 1))
	require.NoError(t, err)
	require.Equal(t, int64(BatchSize+5), n)
}

func TestGenerator_ReusesExistingFiles(t *testing.T) {
	f := newFixture(t)
	f.store.AddVersion("a", 10, datastore.Record{"_id": "1"})
	q := mustQuery(t, nil, map[string]int64{"a": 10})

	first := f.newRecord(t, q)
	require.NoError(t, f.generator.Generate(context.Background(), q, first, nil))
	path := f.generator.Path(q.Hash(), "a", 10)
	info, err := os.Stat(path)
	require.NoError(t, err)

	second := f.newRecord(t, q)
	require.NoError(t, f.generator.Generate(context.Background(), q, second, nil))

	require.Equal(t, 1, f.store.ScanCount("a"))
	again, err := os.Stat(path)
	require.NoError(t, err)
	require.Equal(t, info.ModTime(), again.ModTime())
	require.Equal(t, first.ResourceTotals, second.ResourceTotals)
}

func TestGenerator_AdditiveResources(t *testing.T) {
	f := newFixture(t)
	f.store.AddVersion("a", 10, datastore.Record{"_id": "1"}, datastore.Record{"_id": "2"})
	f.store.AddVersion("b", 20, datastore.Record{"_id": "3"})
	f.store.AddVersion("c", 30, datastore.Record{"_id": "4"})
	ctx := context.Background()

	q1 := mustQuery(t, nil, map[string]int64{"a": 10, "b": 20})
	require.NoError(t, f.generator.Generate(ctx, q1, f.newRecord(t, q1), nil))

	pathA := f.generator.Path(q1.Hash(), "a", 10)
	before, err := os.Stat(pathA)
	require.NoError(t, err)

	q2 := mustQuery(t, nil, map[string]int64{"a": 10, "b": 20, "c": 30})
	require.Equal(t, q1.Hash(), q2.Hash())
	record := f.newRecord(t, q2)
	require.NoError(t, f.generator.Generate(ctx, q2, record, nil))

	require.Equal(t, 1, f.store.ScanCount("a"))
	require.Equal(t, 1, f.store.ScanCount("b"))
	require.Equal(t, 1, f.store.ScanCount("c"))
	require.Equal(t, map[string]int64{"a": 2, "b": 1, "c": 1}, record.ResourceTotals)
	require.Equal(t, int64(4), record.Total)

	after, err := os.Stat(pathA)
	require.NoError(t, err)
	require.Equal(t, before.ModTime(), after.ModTime())
}

func TestGenerator_RegeneratesMissingFile(t *testing.T) {
	f := newFixture(t)
	f.store.AddVersion("a", 10, datastore.Record{"_id": "1"})
	q := mustQuery(t, nil, map[string]int64{"a": 10})

	record := f.newRecord(t, q)
	require.NoError(t, f.generator.Generate(context.Background(), q, record, nil))

	path := f.generator.Path(q.Hash(), "a", 10)
	require.NoError(t, os.Remove(path))

	require.NoError(t, f.generator.Generate(context.Background(), q, record, nil))
	require.Equal(t, 2, f.store.ScanCount("a"))
	require.FileExists(t, path)
	require.Equal(t, int64(1), record.Total)
}

func TestGenerator_ReplacesUndocumentedFile(t *testing.T) {
	f := newFixture(t)
	f.store.AddVersion("a", 10, datastore.Record{"_id": "1"})
	q := mustQuery(t, nil, map[string]int64{"a": 10})

	path := f.generator.Path(q.Hash(), "a", 10)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("half written"), 0o644))

	record := f.newRecord(t, q)
	require.NoError(t, f.generator.Generate(context.Background(), q, record, nil))

	n, err := Count(path)
	require.NoError(t, err)
	require.Equal(t, int64(1), n)
}

func TestGenerator_NotVersioned(t *testing.T) {
	f := newFixture(t)
	q := mustQuery(t, nil, map[string]int64{"upload": models.NotVersioned})
	record := f.newRecord(t, q)

	require.NoError(t, f.generator.Generate(context.Background(), q, record, nil))
	require.Equal(t, map[string]int64{"upload": 1}, record.ResourceTotals)
	require.Empty(t, record.FieldCounts["upload"])
	require.Zero(t, f.store.ScanCount("upload"))

	entries, err := os.ReadDir(f.generator.Dir(q.Hash()))
	require.NoError(t, err)
	require.Empty(t, entries)
}

func TestGenerator_ScanFailure(t *testing.T) {
	f := newFixture(t)
	f.store.AddVersion("a", 10, datastore.Record{"_id": "1"})
	f.store.ScanErr = errors.New("search backend unavailable")
	q := mustQuery(t, nil, map[string]int64{"a": 10})
	record := f.newRecord(t, q)

	err := f.generator.Generate(context.Background(), q, record, nil)
	require.ErrorIs(t, err, f.store.ScanErr)
	require.NoFileExists(t, f.generator.Path(q.Hash(), "a", 10))
	require.False(t, record.Generated("a"))
}

func TestGenerator_ConcurrentGeneration(t *testing.T) {
	f := newFixture(t)
	f.store.AddVersion("a", 10, datastore.Record{"_id": "1"}, datastore.Record{"_id": "2"})
	q := mustQuery(t, nil, map[string]int64{"a": 10})

	records := []*models.CoreFileRecord{f.newRecord(t, q), f.newRecord(t, q), f.newRecord(t, q)}

	var wg sync.WaitGroup
	errs := make([]error, len(records))
	for i, record := range records {
		wg.Add(1)
		go func(i int, record *models.CoreFileRecord) {
			defer wg.Done()
			errs[i] = f.generator.Generate(context.Background(), q, record, nil)
		}(i, record)
	}
	wg.Wait()

	for i, err := range errs {
		require.NoError(t, err)
		require.Equal(t, int64(2), records[i].Total)
	}
	n, err := Count(f.generator.Path(q.Hash(), "a", 10))
	require.NoError(t, err)
	require.Equal(t, int64(2), n)
}

func TestGenerator_Cancelled(t *testing.T) {
	f := newFixture(t)
	f.store.AddVersion("a", 10, datastore.Record{"_id": "1"})
	q := mustQuery(t, nil, map[string]int64{"a": 10})

	ctx, cancel := context.WithTimeout(context.Background(), time.Nanosecond)
	defer cancel()
	time.Sleep(time.Millisecond)

	err := f.generator.Generate(ctx, q, f.newRecord(t, q), nil)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

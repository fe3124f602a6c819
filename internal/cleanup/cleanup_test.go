package cleanup

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"datastore-downloader/internal/database"
	"datastore-downloader/pkg/models"
)

type fakeStore struct {
	calls   []time.Duration
	deleted int64
	err     error
}

func (f *fakeStore) DeleteOldRequests(olderThan time.Duration) (int64, error) {
	f.calls = append(f.calls, olderThan)
	return f.deleted, f.err
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestService_Startup(t *testing.T) {
	downloads := filepath.Join(t.TempDir(), "downloads")
	coreDir := filepath.Join(t.TempDir(), "core")

	buildDir := filepath.Join(downloads, uuid.NewString())
	writeFile(t, filepath.Join(buildDir, "data.csv"), "a,b\n1,2\n")
	writeFile(t, filepath.Join(downloads, ".abc.zip.123.tmp"), "partial zip")
	writeFile(t, filepath.Join(downloads, "abc.zip"), "finished zip")
	require.NoError(t, os.MkdirAll(filepath.Join(downloads, "custom"), 0o755))
	writeFile(t, filepath.Join(coreDir, "hash1", "res_10.avro.part"), "partial")
	writeFile(t, filepath.Join(coreDir, "hash1", "res_9.avro"), "complete")

	s := NewService(&fakeStore{}, downloads, coreDir, 0)
	stats, err := s.Startup()
	require.NoError(t, err)
	require.Equal(t, 1, stats.BuildDirs)
	require.Equal(t, 1, stats.TempArchives)
	require.Equal(t, 1, stats.PartialFiles)
	require.Equal(t, int64(len("a,b\n1,2\n")+len("partial zip")+len("partial")), stats.Bytes)

	require.NoDirExists(t, buildDir)
	require.NoFileExists(t, filepath.Join(downloads, ".abc.zip.123.tmp"))
	require.NoFileExists(t, filepath.Join(coreDir, "hash1", "res_10.avro.part"))
	require.FileExists(t, filepath.Join(downloads, "abc.zip"))
	require.DirExists(t, filepath.Join(downloads, "custom"))
	require.FileExists(t, filepath.Join(coreDir, "hash1", "res_9.avro"))
}

func TestService_StartupMissingDirs(t *testing.T) {
	dir := t.TempDir()
	s := NewService(&fakeStore{}, filepath.Join(dir, "nope"), filepath.Join(dir, "core"), 0)
	stats, err := s.Startup()
	require.NoError(t, err)
	require.Equal(t, &Stats{}, stats)
}

func TestService_IsPathSafe(t *testing.T) {
	base := t.TempDir()
	s := NewService(&fakeStore{}, base, "", 0)

	tests := []struct {
		name string
		path string
		want bool
	}{
		{name: "inside", path: filepath.Join(base, "x"), want: true},
		{name: "nested", path: filepath.Join(base, "x", "y"), want: true},
		{name: "base itself", path: base, want: false},
		{name: "sibling with shared prefix", path: base + "-other", want: false},
		{name: "escape", path: filepath.Join(base, "..", "x"), want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, s.isPathSafe(tt.path, base))
		})
	}

	require.Error(t, s.remove(filepath.Join(base, "..", "x"), base))
}

func TestService_ExpireRequests(t *testing.T) {
	t.Run("disabled", func(t *testing.T) {
		store := &fakeStore{}
		deleted, err := NewService(store, t.TempDir(), "", 0).ExpireRequests()
		require.NoError(t, err)
		require.Zero(t, deleted)
		require.Empty(t, store.calls)
	})

	t.Run("enabled", func(t *testing.T) {
		store := &fakeStore{deleted: 3}
		deleted, err := NewService(store, t.TempDir(), "", 48*time.Hour).ExpireRequests()
		require.NoError(t, err)
		require.Equal(t, int64(3), deleted)
		require.Equal(t, []time.Duration{48 * time.Hour}, store.calls)
	})

	t.Run("store error", func(t *testing.T) {
		store := &fakeStore{err: errors.New("database is locked")}
		_, err := NewService(store, t.TempDir(), "", time.Hour).ExpireRequests()
		require.ErrorContains(t, err, "database is locked")
	})
}

func TestService_ExpireRequestsDatabase(t *testing.T) {
	db, err := database.New(":memory:")
	require.NoError(t, err)
	defer db.Close()

	request := &models.DownloadRequest{ID: uuid.NewString(), State: models.StateComplete, CreatedAt: time.Now().Add(-72 * time.Hour)}
	require.NoError(t, db.CreateRequest(request))
	recent := &models.DownloadRequest{ID: uuid.NewString(), State: models.StateComplete}
	require.NoError(t, db.CreateRequest(recent))

	deleted, err := NewService(db, t.TempDir(), "", 24*time.Hour).ExpireRequests()
	require.NoError(t, err)
	require.Equal(t, int64(1), deleted)

	_, err = db.GetRequest(request.ID)
	require.ErrorIs(t, err, database.ErrNotFound)
	_, err = db.GetRequest(recent.ID)
	require.NoError(t, err)
}

func TestService_Start(t *testing.T) {
	store := &fakeStore{}
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		NewService(store, t.TempDir(), "", time.Hour).Start(ctx, time.Hour)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Service did not stop")
	}
}

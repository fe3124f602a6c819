package archive

import (
	"archive/zip"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewService(t *testing.T) {
	service := NewService()
	require.NotNil(t, service)
	require.NotNil(t, service.logger)
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func readEntry(t *testing.T, archivePath, name string) string {
	t.Helper()
	reader, err := zip.OpenReader(archivePath)
	require.NoError(t, err)
	defer reader.Close()

	f, err := reader.Open(name)
	require.NoError(t, err)
	defer f.Close()
	data, err := io.ReadAll(f)
	require.NoError(t, err)
	return string(data)
}

func TestService_Create(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "build", "data.csv"), "a,b\n1,2\n")
	writeFile(t, filepath.Join(dir, "build", "manifest.json"), "{}")
	dest := filepath.Join(dir, "out.zip")

	service := NewService()
	err := service.Create(dest, []Entry{
		{Name: "data.csv", Path: filepath.Join(dir, "build", "data.csv")},
		{Name: "meta/manifest.json", Path: filepath.Join(dir, "build", "manifest.json")},
	})
	require.NoError(t, err)

	require.True(t, service.Valid(dest))
	names, err := service.List(dest)
	require.NoError(t, err)
	require.Equal(t, []string{"data.csv", "meta/manifest.json"}, names)
	require.Equal(t, "a,b\n1,2\n", readEntry(t, dest, "data.csv"))

	// no temporary files are left beside the archive
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 2)
}

func TestService_CreateReplaces(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "one.txt"), "one")
	writeFile(t, filepath.Join(dir, "two.txt"), "two")
	dest := filepath.Join(dir, "out.zip")

	service := NewService()
	require.NoError(t, service.Create(dest, []Entry{{Name: "file.txt", Path: filepath.Join(dir, "one.txt")}}))
	require.NoError(t, service.Create(dest, []Entry{{Name: "file.txt", Path: filepath.Join(dir, "two.txt")}}))
	require.Equal(t, "two", readEntry(t, dest, "file.txt"))
}

func TestService_CreateErrors(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "data.csv"), "x")
	service := NewService()

	tests := []struct {
		name  string
		entry Entry
	}{
		{name: "parent traversal", entry: Entry{Name: "../data.csv", Path: filepath.Join(dir, "data.csv")}},
		{name: "absolute name", entry: Entry{Name: "/data.csv", Path: filepath.Join(dir, "data.csv")}},
		{name: "empty name", entry: Entry{Name: "", Path: filepath.Join(dir, "data.csv")}},
		{name: "missing source", entry: Entry{Name: "missing.csv", Path: filepath.Join(dir, "missing.csv")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dest := filepath.Join(dir, "out.zip")
			require.Error(t, service.Create(dest, []Entry{tt.entry}))
			require.NoFileExists(t, dest)
		})
	}

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
}

func TestService_ZipDir(t *testing.T) {
	dir := t.TempDir()
	build := filepath.Join(dir, "build")
	writeFile(t, filepath.Join(build, "occurrence.csv"), "id\n1\n")
	writeFile(t, filepath.Join(build, "nested", "eml.xml"), "<eml/>")
	dest := filepath.Join(dir, "dwc.zip")

	service := NewService()
	require.NoError(t, service.ZipDir(build, dest))

	names, err := service.List(dest)
	require.NoError(t, err)
	require.Equal(t, []string{"nested/eml.xml", "occurrence.csv"}, names)

	require.Error(t, service.ZipDir(filepath.Join(dir, "missing"), dest))
}

func TestService_Valid(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "broken.zip"), "not a zip")

	service := NewService()
	require.False(t, service.Valid(filepath.Join(dir, "broken.zip")))
	require.False(t, service.Valid(filepath.Join(dir, "missing.zip")))

	_, err := service.List(filepath.Join(dir, "broken.zip"))
	require.Error(t, err)
}

// Package archive writes and checks the zip packages downloads are served as
package archive

import (
	"archive/zip"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Entry is one file to add to an archive
type Entry struct {
	// Name is the path inside the archive
	Name string
	// Path is the file on disk
	Path string
}

// Service creates zip archives
type Service struct {
	logger *slog.Logger
}

// NewService creates a new archive service
func NewService() *Service {
	return &Service{
		logger: slog.Default(),
	}
}

// Create writes entries into a new zip at dest. The archive is built under a temporary
// name beside dest and renamed into place, so dest is either complete or absent.
func (s *Service) Create(dest string, entries []Entry) (err error) {
	for _, entry := range entries {
		if !safeName(entry.Name) {
			return fmt.Errorf("refusing to archive file with unsafe name: %s", entry.Name)
		}
	}

	tmp, err := os.CreateTemp(filepath.Dir(dest), "."+filepath.Base(dest)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create archive: %w", err)
	}
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()

	zw := zip.NewWriter(tmp)
	for _, entry := range entries {
		if err = addFile(zw, entry); err != nil {
			return err
		}
	}
	if err = zw.Close(); err != nil {
		return fmt.Errorf("failed to finish archive: %w", err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("failed to close archive: %w", err)
	}
	if err = os.Chmod(tmp.Name(), 0o644); err != nil {
		return fmt.Errorf("failed to set archive permissions: %w", err)
	}
	if err = os.Rename(tmp.Name(), dest); err != nil {
		return fmt.Errorf("failed to move archive into place: %w", err)
	}

	s.logger.Debug("Archive created", "archive", dest, "files", len(entries))
	return nil
}

// ZipDir archives every file under dir, named relative to dir
func (s *Service) ZipDir(dir, dest string) error {
	var entries []Entry
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		entries = append(entries, Entry{Name: filepath.ToSlash(rel), Path: path})
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to list %s: %w", dir, err)
	}
	return s.Create(dest, entries)
}

// List returns the sorted names of the files in an archive
func (s *Service) List(path string) ([]string, error) {
	reader, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open ZIP archive: %w", err)
	}
	defer reader.Close()

	names := make([]string, 0, len(reader.File))
	for _, file := range reader.File {
		if !file.FileInfo().IsDir() {
			names = append(names, file.Name)
		}
	}
	sort.Strings(names)
	return names, nil
}

// Valid reports whether path is a readable zip archive
func (s *Service) Valid(path string) bool {
	reader, err := zip.OpenReader(path)
	if err != nil {
		return false
	}
	reader.Close()
	return true
}

func addFile(zw *zip.Writer, entry Entry) error {
	src, err := os.Open(entry.Path)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", entry.Path, err)
	}
	defer src.Close()

	info, err := src.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat %s: %w", entry.Path, err)
	}
	header, err := zip.FileInfoHeader(info)
	if err != nil {
		return fmt.Errorf("failed to create header for %s: %w", entry.Path, err)
	}
	header.Name = entry.Name
	header.Method = zip.Deflate

	w, err := zw.CreateHeader(header)
	if err != nil {
		return fmt.Errorf("failed to add %s: %w", entry.Name, err)
	}
	if _, err := io.Copy(w, src); err != nil {
		return fmt.Errorf("failed to copy %s into archive: %w", entry.Name, err)
	}
	return nil
}

// safeName rejects names that would escape the extraction directory
func safeName(name string) bool {
	if name == "" || strings.HasPrefix(name, "/") {
		return false
	}
	for _, part := range strings.Split(name, "/") {
		if part == ".." {
			return false
		}
	}
	return true
}

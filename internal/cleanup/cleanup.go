// Package cleanup removes files left behind by interrupted downloads and expires old requests
package cleanup

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"datastore-downloader/internal/core"
)

// RequestStore deletes finished download requests
type RequestStore interface {
	DeleteOldRequests(olderThan time.Duration) (int64, error)
}

// Service provides file cleanup services
type Service struct {
	db          RequestStore
	logger      *slog.Logger
	downloadDir string
	coreDir     string
	retention   time.Duration
}

// Stats counts what a startup cleanup removed
type Stats struct {
	BuildDirs    int   `json:"build_dirs"`
	TempArchives int   `json:"temp_archives"`
	PartialFiles int   `json:"partial_files"`
	Bytes        int64 `json:"bytes"`
}

// NewService creates a new cleanup service. Requests are never expired when retention is zero.
func NewService(db RequestStore, downloadDir, coreDir string, retention time.Duration) *Service {
	return &Service{
		db:          db,
		logger:      slog.Default(),
		downloadDir: downloadDir,
		coreDir:     coreDir,
		retention:   retention,
	}
}

// Startup removes build directories, temporary archives and partial core files left by a
// previous process. It must run before the worker starts.
func (s *Service) Startup() (*Stats, error) {
	stats := &Stats{}
	var errs []error

	if err := s.cleanDownloadDir(stats); err != nil {
		errs = append(errs, err)
	}
	if err := s.cleanCoreDir(stats); err != nil {
		errs = append(errs, err)
	}

	s.logger.Info("Startup cleanup completed",
		"build_dirs", stats.BuildDirs,
		"temp_archives", stats.TempArchives,
		"partial_files", stats.PartialFiles,
		"freed", humanize.Bytes(uint64(stats.Bytes)))

	return stats, errors.Join(errs...)
}

// cleanDownloadDir removes uuid named build directories and unfinished archive temp files
func (s *Service) cleanDownloadDir(stats *Stats) error {
	entries, err := os.ReadDir(s.downloadDir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read download directory: %w", err)
	}

	var errs []error
	for _, entry := range entries {
		path := filepath.Join(s.downloadDir, entry.Name())
		switch {
		case entry.IsDir() && isBuildDir(entry.Name()):
			size := s.getSize(path)
			if err := s.remove(path, s.downloadDir); err != nil {
				errs = append(errs, err)
				continue
			}
			stats.BuildDirs++
			stats.Bytes += size
		case !entry.IsDir() && isTempArchive(entry.Name()):
			size := s.getSize(path)
			if err := s.remove(path, s.downloadDir); err != nil {
				errs = append(errs, err)
				continue
			}
			stats.TempArchives++
			stats.Bytes += size
		}
	}
	return errors.Join(errs...)
}

// cleanCoreDir removes core files that were still being written
func (s *Service) cleanCoreDir(stats *Stats) error {
	if s.coreDir == "" {
		return nil
	}
	err := filepath.WalkDir(s.coreDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), core.PartialSuffix) {
			return nil
		}
		size := s.getSize(path)
		if err := s.remove(path, s.coreDir); err != nil {
			return err
		}
		stats.PartialFiles++
		stats.Bytes += size
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to clean core directory: %w", err)
	}
	return nil
}

// ExpireRequests deletes finished requests older than the retention period
func (s *Service) ExpireRequests() (int64, error) {
	if s.retention <= 0 {
		return 0, nil
	}
	deleted, err := s.db.DeleteOldRequests(s.retention)
	if err != nil {
		return 0, fmt.Errorf("failed to expire download requests: %w", err)
	}
	if deleted > 0 {
		s.logger.Info("Expired download requests", "count", deleted, "retention", s.retention)
	}
	return deleted, nil
}

// Start expires requests every interval until ctx is done
func (s *Service) Start(ctx context.Context, interval time.Duration) {
	if s.retention <= 0 {
		s.logger.Debug("Request retention disabled")
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if _, err := s.ExpireRequests(); err != nil {
			s.logger.Error("Failed to expire requests", "error", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func isBuildDir(name string) bool {
	_, err := uuid.Parse(name)
	return err == nil
}

// isTempArchive matches the names archives are written under before being renamed into place
func isTempArchive(name string) bool {
	return strings.HasPrefix(name, ".") && strings.HasSuffix(name, ".tmp")
}

// isPathSafe checks if a path is strictly inside base
func (s *Service) isPathSafe(path, base string) bool {
	absPath, err := filepath.Abs(path)
	if err != nil {
		s.logger.Warn("Failed to get absolute path", "path", path, "error", err)
		return false
	}
	absBase, err := filepath.Abs(base)
	if err != nil {
		s.logger.Warn("Failed to get absolute path for base directory", "base", base, "error", err)
		return false
	}
	return strings.HasPrefix(absPath, absBase+string(os.PathSeparator)) && absPath != absBase
}

func (s *Service) remove(path, base string) error {
	if !s.isPathSafe(path, base) {
		return fmt.Errorf("refusing to remove path outside %s: %s", base, path)
	}
	s.logger.Info("Removing leftover file", "path", path)
	if err := os.RemoveAll(path); err != nil {
		return fmt.Errorf("failed to remove %s: %w", path, err)
	}
	return nil
}

// getSize returns the size of a file or directory tree in bytes, or 0 if it can't be determined
func (s *Service) getSize(path string) int64 {
	var size int64
	_ = filepath.WalkDir(path, func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			if info, err := d.Info(); err == nil {
				size += info.Size()
			}
		}
		return nil
	})
	return size
}

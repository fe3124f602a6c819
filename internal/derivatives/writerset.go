package derivatives

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"datastore-downloader/internal/datastore"
)

// WriterSet holds the writers of one derivative: either a single writer shared by every
// resource or one writer per resource
type WriterSet struct {
	shared      Writer
	perResource map[string]Writer
}

// Shared creates a set where every resource's records go to w
func Shared(w Writer) *WriterSet {
	return &WriterSet{shared: w}
}

// PerResource creates a set with one writer per resource ID
func PerResource(writers map[string]Writer) *WriterSet {
	return &WriterSet{perResource: writers}
}

// NewWriterSet builds the writers for a derivative over the given resources
func NewWriterSet(ctx context.Context, base Spec, separate bool, resourceIDs []string, fieldsFor func(resourceID string) []string) (*WriterSet, error) {
	if !separate {
		w, err := New(ctx, base)
		if err != nil {
			return nil, err
		}
		return Shared(w), nil
	}

	writers := make(map[string]Writer, len(resourceIDs))
	for _, resourceID := range resourceIDs {
		spec := base
		spec.ResourceID = resourceID
		spec.Fields = fieldsFor(resourceID)
		w, err := New(ctx, spec)
		if err != nil {
			return nil, fmt.Errorf("failed to create writer for resource %s: %w", resourceID, err)
		}
		writers[resourceID] = w
	}
	return PerResource(writers), nil
}

// For returns the writer a resource's records go to
func (s *WriterSet) For(resourceID string) (Writer, bool) {
	if s.shared != nil {
		return s.shared, true
	}
	w, ok := s.perResource[resourceID]
	return w, ok
}

// All returns every writer in the set
func (s *WriterSet) All() []Writer {
	if s.shared != nil {
		return []Writer{s.shared}
	}
	ids := make([]string, 0, len(s.perResource))
	for id := range s.perResource {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	writers := make([]Writer, 0, len(ids))
	for _, id := range ids {
		writers = append(writers, s.perResource[id])
	}
	return writers
}

// Open opens every writer
func (s *WriterSet) Open() error {
	for _, w := range s.All() {
		if err := w.Open(); err != nil {
			return err
		}
	}
	return nil
}

// Write sends a record to its resource's writer
func (s *WriterSet) Write(resourceID string, record datastore.Record) error {
	w, ok := s.For(resourceID)
	if !ok {
		return fmt.Errorf("no writer for resource %s", resourceID)
	}
	return w.Write(resourceID, record)
}

// Close closes every writer, returning all close errors
func (s *WriterSet) Close() error {
	var errs []error
	for _, w := range s.All() {
		if err := w.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Files lists the files of every writer
func (s *WriterSet) Files() []string {
	var files []string
	for _, w := range s.All() {
		files = append(files, w.Files()...)
	}
	return files
}

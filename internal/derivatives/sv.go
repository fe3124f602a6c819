package derivatives

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"

	"datastore-downloader/internal/datastore"
	"datastore-downloader/internal/fields"
)

// svWriter writes delimiter separated values with one column per declared field
type svWriter struct {
	lifecycle
	spec      Spec
	delimiter rune
	extension string

	file   *os.File
	csv    *csv.Writer
	header []string
	// declared is the set of declared fields
	declared map[string]bool
}

func newCSVWriter(_ context.Context, spec Spec) (Writer, error) {
	return newSVWriter(spec, ',', "csv"), nil
}

func newTSVWriter(_ context.Context, spec Spec) (Writer, error) {
	return newSVWriter(spec, '\t', "tsv"), nil
}

func newSVWriter(spec Spec, delimiter rune, extension string) *svWriter {
	declared := make(map[string]bool, len(spec.Fields))
	for _, field := range spec.Fields {
		declared[field] = true
	}
	return &svWriter{spec: spec, delimiter: delimiter, extension: extension, declared: declared}
}

func (w *svWriter) fileName() string {
	return w.spec.baseName() + "." + w.extension
}

func (w *svWriter) Open() error {
	if err := w.lifecycle.open(); err != nil {
		return err
	}

	f, err := os.Create(filepath.Join(w.spec.Dir, w.fileName()))
	if err != nil {
		return fmt.Errorf("failed to create %s file: %w", w.extension, err)
	}
	w.file = f
	w.csv = csv.NewWriter(f)
	w.csv.Comma = w.delimiter

	w.header = make([]string, 0, len(w.spec.Fields)+1)
	if w.spec.Shared() {
		w.header = append(w.header, ResourceIDField)
	}
	w.header = append(w.header, w.spec.Fields...)
	if err := w.csv.Write(w.header); err != nil {
		return fmt.Errorf("failed to write %s header: %w", w.extension, err)
	}
	return nil
}

func (w *svWriter) Write(resourceID string, record datastore.Record) error {
	if err := w.lifecycle.write(); err != nil {
		return err
	}

	row, err := declaredRow(record, w.declared)
	if err != nil {
		return err
	}

	cells := make([]string, 0, len(w.header))
	if w.spec.Shared() {
		cells = append(cells, resourceID)
	}
	for _, field := range w.spec.Fields {
		cells = append(cells, fields.Text(row[field]))
	}
	return w.csv.Write(cells)
}

func (w *svWriter) Close() error {
	if !w.lifecycle.close() || w.file == nil {
		return nil
	}
	w.csv.Flush()
	if err := w.csv.Error(); err != nil {
		w.file.Close()
		return fmt.Errorf("failed to flush %s file: %w", w.extension, err)
	}
	return w.file.Close()
}

func (w *svWriter) Files() []string {
	return []string{w.fileName()}
}

// declaredRow flattens a record and checks every non-null value belongs to a declared field
func declaredRow(record datastore.Record, declared map[string]bool) (map[string]any, error) {
	flat := fields.Flatten(record)
	for field, value := range flat {
		if declared[field] {
			continue
		}
		if value == nil {
			delete(flat, field)
			continue
		}
		return nil, fmt.Errorf("%w: %s", ErrUnexpectedField, field)
	}
	return flat, nil
}

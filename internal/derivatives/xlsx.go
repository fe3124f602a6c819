package derivatives

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/xuri/excelize/v2"

	"datastore-downloader/internal/datastore"
	"datastore-downloader/internal/fields"
)

// SheetName is the worksheet the records are written to
const SheetName = "Data"

// xlsxWriter streams rows into a single worksheet
type xlsxWriter struct {
	lifecycle
	spec     Spec
	declared map[string]bool
	file     *excelize.File
	stream   *excelize.StreamWriter
	row      int
}

func newXLSXWriter(_ context.Context, spec Spec) (Writer, error) {
	declared := make(map[string]bool, len(spec.Fields))
	for _, field := range spec.Fields {
		declared[field] = true
	}
	return &xlsxWriter{spec: spec, declared: declared}, nil
}

func (w *xlsxWriter) fileName() string {
	return w.spec.baseName() + ".xlsx"
}

func (w *xlsxWriter) Open() error {
	if err := w.lifecycle.open(); err != nil {
		return err
	}

	w.file = excelize.NewFile()
	if err := w.file.SetSheetName(w.file.GetSheetName(0), SheetName); err != nil {
		return fmt.Errorf("failed to name worksheet: %w", err)
	}
	stream, err := w.file.NewStreamWriter(SheetName)
	if err != nil {
		return fmt.Errorf("failed to create worksheet stream: %w", err)
	}
	w.stream = stream

	header := make([]any, 0, len(w.spec.Fields)+1)
	if w.spec.Shared() {
		header = append(header, ResourceIDField)
	}
	for _, field := range w.spec.Fields {
		header = append(header, field)
	}
	return w.appendRow(header)
}

func (w *xlsxWriter) Write(resourceID string, record datastore.Record) error {
	if err := w.lifecycle.write(); err != nil {
		return err
	}

	row, err := declaredRow(record, w.declared)
	if err != nil {
		return err
	}

	cells := make([]any, 0, len(w.spec.Fields)+1)
	if w.spec.Shared() {
		cells = append(cells, resourceID)
	}
	for _, field := range w.spec.Fields {
		cells = append(cells, cellValue(row[field]))
	}
	return w.appendRow(cells)
}

func (w *xlsxWriter) appendRow(cells []any) error {
	w.row++
	cell, err := excelize.CoordinatesToCellName(1, w.row)
	if err != nil {
		return err
	}
	if err := w.stream.SetRow(cell, cells); err != nil {
		return fmt.Errorf("failed to write row %d: %w", w.row, err)
	}
	return nil
}

func (w *xlsxWriter) Close() error {
	if !w.lifecycle.close() || w.file == nil {
		return nil
	}
	defer w.file.Close()
	// opening failed before the stream existed
	if w.stream == nil {
		return nil
	}

	if err := w.stream.Flush(); err != nil {
		return fmt.Errorf("failed to flush worksheet: %w", err)
	}
	if err := w.file.SaveAs(filepath.Join(w.spec.Dir, w.fileName())); err != nil {
		return fmt.Errorf("failed to save xlsx file: %w", err)
	}
	return nil
}

func (w *xlsxWriter) Files() []string {
	return []string{w.fileName()}
}

// cellValue keeps numbers and booleans typed and renders everything else as text
func cellValue(v any) any {
	switch v := v.(type) {
	case nil:
		return nil
	case string, bool, int, int64, float64:
		return v
	case json.Number:
		if i, err := v.Int64(); err == nil {
			return i
		}
		if f, err := v.Float64(); err == nil {
			return f
		}
		return v.String()
	default:
		return fields.Text(v)
	}
}

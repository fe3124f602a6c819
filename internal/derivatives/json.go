package derivatives

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"datastore-downloader/internal/datastore"
)

// jsonWriter streams records as one JSON array of objects
type jsonWriter struct {
	lifecycle
	spec Spec
	file *os.File
	buf  *bufio.Writer
}

func newJSONWriter(_ context.Context, spec Spec) (Writer, error) {
	return &jsonWriter{spec: spec}, nil
}

func (w *jsonWriter) fileName() string {
	return w.spec.baseName() + ".json"
}

func (w *jsonWriter) Open() error {
	if err := w.lifecycle.open(); err != nil {
		return err
	}
	f, err := os.Create(filepath.Join(w.spec.Dir, w.fileName()))
	if err != nil {
		return fmt.Errorf("failed to create json file: %w", err)
	}
	w.file = f
	w.buf = bufio.NewWriter(f)
	_, err = w.buf.WriteString("[")
	return err
}

func (w *jsonWriter) Write(resourceID string, record datastore.Record) error {
	first := !w.lifecycle.wrote()
	if err := w.lifecycle.write(); err != nil {
		return err
	}

	if w.spec.Shared() {
		tagged := make(datastore.Record, len(record)+1)
		for k, v := range record {
			tagged[k] = v
		}
		tagged[ResourceIDField] = resourceID
		record = tagged
	}

	var encoded bytes.Buffer
	enc := json.NewEncoder(&encoded)
	enc.SetEscapeHTML(false)
	enc.SetIndent("  ", "  ")
	if err := enc.Encode(record); err != nil {
		return fmt.Errorf("failed to encode record: %w", err)
	}

	separator := ",\n  "
	if first {
		separator = "\n  "
	}
	if _, err := w.buf.WriteString(separator); err != nil {
		return err
	}
	_, err := w.buf.Write(bytes.TrimRight(encoded.Bytes(), "\n"))
	return err
}

func (w *jsonWriter) Close() error {
	if !w.lifecycle.close() || w.file == nil {
		return nil
	}
	if _, err := w.buf.WriteString("\n]"); err != nil {
		w.file.Close()
		return err
	}
	if err := w.buf.Flush(); err != nil {
		w.file.Close()
		return fmt.Errorf("failed to flush json file: %w", err)
	}
	return w.file.Close()
}

func (w *jsonWriter) Files() []string {
	return []string{w.fileName()}
}

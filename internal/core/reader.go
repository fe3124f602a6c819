package core

import (
	"bufio"
	"context"
	"fmt"
	"os"

	"github.com/linkedin/goavro/v2"

	"datastore-downloader/internal/datastore"
	"datastore-downloader/internal/fields"
)

// Read streams the records of a core file in the order they were written
func Read(ctx context.Context, path string, fn func(datastore.Record) error) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open core file: %w", err)
	}
	defer f.Close()

	reader, err := goavro.NewOCFReader(bufio.NewReader(f))
	if err != nil {
		return fmt.Errorf("failed to read core file header: %w", err)
	}

	for reader.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		native, err := reader.Read()
		if err != nil {
			return fmt.Errorf("failed to read core record: %w", err)
		}
		if err := fn(fields.FromNative(native)); err != nil {
			return err
		}
	}
	if err := reader.Err(); err != nil {
		return fmt.Errorf("failed to read core file: %w", err)
	}
	return nil
}

// Count returns the number of records in a core file
func Count(path string) (int64, error) {
	var n int64
	err := Read(context.Background(), path, func(datastore.Record) error {
		n++
		return nil
	})
	return n, err
}

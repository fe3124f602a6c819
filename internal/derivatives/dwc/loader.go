package dwc

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io/fs"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

const (
	schemaCacheSize = 16
	schemaCacheTTL  = 24 * time.Hour
)

// Loader loads schemas from a JSON cache file, regenerating from the source when the cache
// is missing. Loaded schemas are memoised.
type Loader struct {
	source  Source
	schemas *expirable.LRU[string, *Schema]
	logger  *slog.Logger
}

// NewLoader creates a loader regenerating schemas from source
func NewLoader(source Source) *Loader {
	return &Loader{
		source:  source,
		schemas: expirable.NewLRU[string, *Schema](schemaCacheSize, nil, schemaCacheTTL),
		logger:  slog.Default(),
	}
}

// Load returns the schema for opts. With an empty cachePath the schema is always built
// from the source.
func (l *Loader) Load(ctx context.Context, cachePath string, opts LoadOptions) (*Schema, error) {
	key := optionsKey(opts)
	path := CachePath(cachePath, opts)
	if schema, ok := l.schemas.Get(path + "|" + key); ok {
		return schema, nil
	}

	if path != "" {
		schema, err := ReadSchema(path)
		switch {
		case err == nil:
			l.schemas.Add(path+"|"+key, schema)
			return schema, nil
		case !errors.Is(err, fs.ErrNotExist):
			l.logger.Warn("Ignoring unreadable schema cache", "path", path, "error", err)
		}
	}

	l.logger.Info("Regenerating DarwinCore schema", "cache", path)
	schema, err := Regenerate(ctx, l.source, opts)
	if err != nil {
		return nil, err
	}
	if path != "" {
		if err := schema.Save(path); err != nil {
			return nil, err
		}
	}
	l.schemas.Add(path+"|"+key, schema)
	return schema, nil
}

// CachePath returns the cache file for a set of options. Schemas built with extensions are
// cached beside the plain one under a suffix naming the options.
func CachePath(cachePath string, opts LoadOptions) string {
	if cachePath == "" || (opts.CoreExtension == nil && len(opts.Extensions) == 0) {
		return cachePath
	}
	ext := filepath.Ext(cachePath)
	return strings.TrimSuffix(cachePath, ext) + "-" + optionsKey(opts)[:8] + ext
}

func optionsKey(opts LoadOptions) string {
	data, _ := json.Marshal(opts)
	sum := sha1.Sum(data)
	return hex.EncodeToString(sum[:])
}

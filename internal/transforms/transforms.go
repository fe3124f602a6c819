// Package transforms rewrites records on their way from a core file to a derivative
package transforms

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"datastore-downloader/internal/datastore"
	"datastore-downloader/internal/fields"
	"datastore-downloader/internal/query"
)

// Transform returns a rewritten copy of a record
type Transform func(datastore.Record) datastore.Record

// Env holds what transforms need to know about the portal
type Env struct {
	SiteURL        string
	RecordViewPath string
}

type constructor func(env Env, args map[string]any) (Transform, error)

// order is the order transforms run in, whatever order they were requested in
var order = []string{"id_as_url"}

var registry = map[string]constructor{
	"id_as_url": newIDAsURL,
}

// Names returns the registered transform names in the order they run
func Names() []string {
	return append([]string(nil), order...)
}

// Build returns the transforms named by config, in registry order. Each key of config
// names a transform and its value holds the transform's arguments.
func Build(config map[string]any, env Env) ([]Transform, error) {
	for name := range config {
		if _, ok := registry[name]; !ok {
			return nil, query.Invalidf("unknown transform: %s", name)
		}
	}

	var out []Transform
	for _, name := range order {
		raw, ok := config[name]
		if !ok || raw == nil {
			continue
		}
		args, ok := raw.(map[string]any)
		if !ok {
			return nil, query.Invalidf("arguments of transform %s must be an object", name)
		}
		t, err := registry[name](env, args)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

// Apply runs every transform in order
func Apply(ts []Transform, record datastore.Record) datastore.Record {
	for _, t := range ts {
		record = t(record)
	}
	return record
}

type idAsURLArgs struct {
	Field string `json:"field"`
}

// newIDAsURL replaces an id field with a link to the record's page
func newIDAsURL(env Env, args map[string]any) (Transform, error) {
	var parsed idAsURLArgs
	data, err := json.Marshal(args)
	if err != nil {
		return nil, fmt.Errorf("failed to encode id_as_url arguments: %w", err)
	}
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, query.Invalidf("invalid id_as_url arguments: %v", err)
	}
	field := parsed.Field
	if field == "" {
		field = "id"
	}
	logger := slog.Default()

	return func(record datastore.Record) datastore.Record {
		id := fields.Text(record[field])
		if id == "" {
			logger.Error("Failed to get uuid from field", "field", field)
			return record
		}
		out := make(datastore.Record, len(record))
		for k, v := range record {
			out[k] = v
		}
		out[field] = env.SiteURL + strings.ReplaceAll(env.RecordViewPath, "{uuid}", url.PathEscape(id))
		return out
	}, nil
}

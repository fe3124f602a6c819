package downloader

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"time"

	"datastore-downloader/internal/core"
	"datastore-downloader/internal/datastore"
	"datastore-downloader/internal/derivatives"
	"datastore-downloader/internal/fields"
	"datastore-downloader/internal/query"
	"datastore-downloader/internal/transforms"
	"datastore-downloader/pkg/models"
)

// ManifestName is the name of the manifest inside every archive
const ManifestName = "manifest.json"

// writeDerivative streams the core files of every included resource through the
// transforms into the derivative's writers and returns the files written
func (m *Manager) writeDerivative(ctx context.Context, q *query.Query, coreRecord *models.CoreFileRecord, args DerivativeArgs, dir string, logger *slog.Logger) ([]string, error) {
	format := derivatives.Format(args.Format)
	options, err := derivatives.DecodeOptions(format, args.FormatArgs)
	if err != nil {
		return nil, err
	}
	ts, err := transforms.Build(args.Transform, m.transformEnv())
	if err != nil {
		return nil, err
	}

	resourceIDs := q.ResourceIDs()
	included := make([]string, 0, len(resourceIDs))
	for _, resourceID := range resourceIDs {
		switch {
		case q.Resources[resourceID] == models.NotVersioned:
			logger.Warn("Skipping resource without datastore records", "resource_id", resourceID)
		case args.SeparateFiles && len(resourceIDs) > 1 && coreRecord.ResourceTotals[resourceID] == 0:
			logger.Debug("Skipping resource with no matching records", "resource_id", resourceID)
		default:
			included = append(included, resourceID)
		}
	}

	base := derivatives.Spec{
		Dir:     dir,
		Fields:  fields.GetFields(coreRecord.FieldCounts, args.IgnoreEmptyFields, included),
		Options: options,
		Query:   q,
		DwC:     m.dwcEnv(),
	}
	fieldsFor := func(resourceID string) []string {
		return fields.GetFields(coreRecord.FieldCounts, args.IgnoreEmptyFields, []string{resourceID})
	}
	set, err := derivatives.NewWriterSet(ctx, base, args.SeparateFiles, included, fieldsFor)
	if err != nil {
		return nil, err
	}
	if err := set.Open(); err != nil {
		_ = set.Close()
		return nil, err
	}

	for _, resourceID := range included {
		counts := coreRecord.FieldCounts[resourceID]
		corePath := m.generator.Path(q.Hash(), resourceID, q.Resources[resourceID])
		err := core.Read(ctx, corePath, func(record datastore.Record) error {
			record = transforms.Apply(ts, record)
			if args.IgnoreEmptyFields {
				record = fields.FilterDataFields(record, counts)
			}
			return set.Write(resourceID, record)
		})
		if err != nil {
			_ = set.Close()
			return nil, fmt.Errorf("failed to write records of resource %s: %w", resourceID, err)
		}
	}

	if err := set.Close(); err != nil {
		return nil, err
	}
	return set.Files(), nil
}

// dwcEnv returns the DarwinCore environment with the manager's EML hooks after its own
func (m *Manager) dwcEnv() *derivatives.DwCEnv {
	if m.dwc == nil {
		return nil
	}
	env := *m.dwc
	env.EMLHooks = env.EMLHooks.Append(m.hooks.EML...)
	return &env
}

// copyRaw copies the uploaded file of every resource into dir. Every resource must have one.
func (m *Manager) copyRaw(ctx context.Context, q *query.Query, dir string) ([]string, error) {
	var files []string
	seen := make(map[string]bool)
	for _, resourceID := range q.ResourceIDs() {
		resource, err := m.catalog.Resource(ctx, resourceID)
		if err != nil {
			return nil, err
		}
		if !resource.IsUpload() || len(resourceID) < 7 {
			return nil, fmt.Errorf("resource %s: %w", resourceID, ErrNoRawFile)
		}

		name := path.Base(resource.URL)
		if name == "" || name == "." || name == "/" {
			name = resourceID
		}
		if seen[name] {
			name = resourceID + "_" + name
		}
		seen[name] = true

		if err := copyFile(m.rawPath(resourceID), filepath.Join(dir, name)); err != nil {
			return nil, fmt.Errorf("resource %s: %w", resourceID, err)
		}
		files = append(files, name)
	}
	return files, nil
}

// rawPath is where the portal stores an uploaded resource file
func (m *Manager) rawPath(resourceID string) string {
	return filepath.Join(m.cfg.ResourceStoragePath, resourceID[0:3], resourceID[3:6], resourceID[6:])
}

func copyFile(src, dest string) error {
	in, err := os.Open(src)
	if os.IsNotExist(err) {
		return ErrNoRawFile
	}
	if err != nil {
		return fmt.Errorf("failed to open raw file: %w", err)
	}
	defer in.Close()

	out, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("failed to create raw file copy: %w", err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("failed to copy raw file: %w", err)
	}
	return out.Close()
}

func newManifest(request *models.DownloadRequest, q *query.Query, coreRecord *models.CoreFileRecord, args DerivativeArgs, files []string, start, end time.Time) Manifest {
	listed := make([]string, 0, len(files)+1)
	listed = append(listed, files...)
	listed = append(listed, ManifestName)

	return Manifest{
		"download_id":               request.ID,
		"query":                     q.Expression,
		"query_version":             q.Version,
		"resource_ids_and_versions": q.Resources,
		"separate_files":            args.SeparateFiles,
		"file_format":               args.Format,
		"format_args":               args.FormatArgs,
		"ignore_empty_fields":       args.IgnoreEmptyFields,
		"transform":                 args.Transform,
		"total_records":             coreRecord.Total,
		"start":                     start.UTC().Format(time.RFC3339),
		"end":                       end.UTC().Format(time.RFC3339),
		"duration_in_seconds":       end.Sub(start).Seconds(),
		"files":                     listed,
	}
}

func writeManifest(dest string, manifest Manifest) error {
	data, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode manifest: %w", err)
	}
	if err := os.WriteFile(dest, data, 0o644); err != nil {
		return fmt.Errorf("failed to write manifest: %w", err)
	}
	return nil
}

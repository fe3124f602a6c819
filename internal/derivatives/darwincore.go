package derivatives

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"datastore-downloader/internal/archive"
	"datastore-downloader/internal/datastore"
	"datastore-downloader/internal/derivatives/dwc"
	"datastore-downloader/internal/fields"
	"datastore-downloader/internal/hooks"
	"datastore-downloader/internal/query"
)

const (
	coreTable         = ""
	dynamicProperties = "dynamicProperties"
	dwcIDColumn       = "_id"
)

// DOIFinder looks up a DOI already minted for a query
type DOIFinder interface {
	FindDOI(ctx context.Context, resources map[string]int64, queryHash, queryVersion string) (*dwc.QueryDOI, error)
}

// Contributors lists the agents credited on a package
type Contributors interface {
	Contributions(ctx context.Context, packageID string) ([]datastore.Contribution, error)
}

// DwCEnv holds what the DarwinCore writer needs beyond its records
type DwCEnv struct {
	Loader      *dwc.Loader
	Registry    *dwc.Registry
	SchemaCache string
	// CoreExtension and Extensions are used when a request names none
	CoreExtension string
	Extensions    []string
	Catalog       datastore.Catalog
	// DOIs and Contributors are optional
	DOIs         DOIFinder
	Contributors Contributors
	EMLHooks     hooks.Chain[dwc.EML]
	Site         dwc.Site
	Archiver     *archive.Service
	Now          func() time.Time
}

type dwcTable struct {
	name     string
	location string
	columns  []string
	file     *os.File
	csv      *csv.Writer
}

// dwcWriter writes a DarwinCore archive: a core table, one table per extension and the
// meta.xml and eml.xml documents, zipped together
type dwcWriter struct {
	lifecycle
	spec    Spec
	env     *DwCEnv
	options DwCOptions
	schema  *dwc.Schema
	eml     dwc.EMLInput
	logger  *slog.Logger

	idField   string
	owner     map[string]string
	tables    map[string]*dwcTable
	extOrder  []string
	buildDir  string
	ready     bool
	headers   bool
	rows      int64
	completed bool
}

func newDwCWriter(ctx context.Context, spec Spec) (Writer, error) {
	env := spec.DwC
	if env == nil {
		return nil, errors.New("darwin core writer has no environment")
	}
	options := DwCOptions{}
	if spec.Options.DwC != nil {
		options = *spec.Options.DwC
	}

	coreExtension := options.CoreExtensionName
	if coreExtension == "" {
		coreExtension = env.CoreExtension
	}
	extensions := options.ExtensionNames
	if extensions == nil {
		extensions = env.Extensions
	}
	schema, err := env.Loader.Load(ctx, env.SchemaCache, env.Registry.Options(coreExtension, extensions, options.ExtensionMap))
	if err != nil {
		return nil, fmt.Errorf("failed to load darwin core schema: %w", err)
	}

	w := &dwcWriter{
		spec:    spec,
		env:     env,
		options: options,
		schema:  schema,
		logger:  slog.Default(),
		idField: options.IDField,
		owner:   map[string]string{},
		tables:  map[string]*dwcTable{},
	}
	if w.idField == "" {
		w.idField = datastore.IDField
	}
	w.planTables()

	if err := w.gatherMetadata(ctx); err != nil {
		return nil, err
	}
	return w, nil
}

// planTables divides the declared fields between the core table and the extension tables
func (w *dwcWriter) planTables() {
	for _, ext := range w.schema.Extensions {
		for _, field := range ext.Location.Fields {
			w.owner[field] = ext.Name
		}
	}

	core := map[string]bool{}
	for _, field := range dwc.StandardFields {
		core[field] = true
	}
	for _, field := range w.spec.Fields {
		root := strings.SplitN(field, ".", 2)[0]
		if _, owned := w.owner[root]; owned {
			continue
		}
		if _, known := w.schema.Props[root]; known {
			core[root] = true
		}
	}
	w.tables[coreTable] = &dwcTable{
		location: strings.ToLower(w.schema.RowTypeName()) + ".csv",
		columns:  append([]string{dwcIDColumn}, sortedKeys(core)...),
	}

	for _, ext := range w.schema.Extensions {
		owned := map[string]bool{}
		for _, field := range ext.Location.Fields {
			owned[field] = true
		}
		props := w.schema.ExtensionProps[ext.Name]
		columns := map[string]bool{}
		for _, field := range w.spec.Fields {
			parts := strings.Split(field, ".")
			if !owned[parts[0]] {
				continue
			}
			sub := parts[len(parts)-1]
			if _, ok := props[sub]; ok && sub != dwcIDColumn {
				columns[sub] = true
			}
		}
		w.tables[ext.Name] = &dwcTable{
			name:     ext.Name,
			location: strings.ToLower(ext.Name) + ".csv",
			columns:  append([]string{dwcIDColumn}, sortedKeys(columns)...),
		}
		w.extOrder = append(w.extOrder, ext.Name)
	}
}

// gatherMetadata looks up everything the eml.xml document needs apart from the row count
func (w *dwcWriter) gatherMetadata(ctx context.Context) error {
	q := w.spec.Query
	w.eml = dwc.EMLInput{
		Schema:   w.schema,
		Site:     w.env.Site,
		Title:    w.options.EMLTitle,
		Abstract: w.options.EMLAbstract,
	}
	if q == nil {
		return nil
	}
	w.eml.QueryHash = q.Hash()
	w.eml.EmptyQuery = len(q.Expression) == 0

	seenPackages := map[string]bool{}
	for _, resourceID := range q.ResourceIDs() {
		resource, err := w.env.Catalog.Resource(ctx, resourceID)
		if err != nil {
			return err
		}
		pkg, err := w.env.Catalog.Package(ctx, resource.PackageID)
		if err != nil {
			return err
		}
		w.eml.Resources = append(w.eml.Resources, resource)
		w.eml.Packages = append(w.eml.Packages, pkg)

		if w.env.Contributors == nil || seenPackages[pkg.ID] {
			continue
		}
		seenPackages[pkg.ID] = true
		contributions, err := w.env.Contributors.Contributions(ctx, pkg.ID)
		if err != nil {
			return err
		}
		for _, c := range contributions {
			w.eml.Contributors = append(w.eml.Contributors, c.Agent)
		}
	}

	if w.env.DOIs != nil {
		doi, err := w.env.DOIs.FindDOI(ctx, q.Resources, q.Hash(), q.Version)
		if err != nil {
			return fmt.Errorf("failed to find query doi: %w", err)
		}
		w.eml.QueryDOI = doi
	}
	return nil
}

func (w *dwcWriter) fileName() string {
	return w.spec.baseName() + ".zip"
}

func (w *dwcWriter) Open() error {
	if err := w.lifecycle.open(); err != nil {
		return err
	}

	w.buildDir = filepath.Join(w.spec.Dir, uuid.NewString())
	if err := os.Mkdir(w.buildDir, 0o755); err != nil {
		return fmt.Errorf("failed to create darwin core build directory: %w", err)
	}
	for _, table := range w.allTables() {
		f, err := os.Create(filepath.Join(w.buildDir, table.location))
		if err != nil {
			return fmt.Errorf("failed to create %s: %w", table.location, err)
		}
		table.file = f
		table.csv = csv.NewWriter(f)
	}
	w.ready = true
	return nil
}

func (w *dwcWriter) allTables() []*dwcTable {
	tables := []*dwcTable{w.tables[coreTable]}
	for _, name := range w.extOrder {
		tables = append(tables, w.tables[name])
	}
	return tables
}

// writeHeaders writes every table's header. The first record decides whether the core
// table keeps its type column.
func (w *dwcWriter) writeHeaders(first datastore.Record) error {
	if first != nil {
		if t, ok := first["type"]; ok && !dwc.IsValidType(t) {
			core := w.tables[coreTable]
			columns := core.columns[:0:0]
			for _, column := range core.columns {
				if column != "type" {
					columns = append(columns, column)
				}
			}
			core.columns = columns
		}
	}
	for _, table := range w.allTables() {
		if err := table.csv.Write(table.columns); err != nil {
			return fmt.Errorf("failed to write %s header: %w", table.location, err)
		}
	}
	w.headers = true
	return nil
}

func (w *dwcWriter) Write(_ string, record datastore.Record) error {
	if err := w.lifecycle.write(); err != nil {
		return err
	}
	if !w.ready {
		return fmt.Errorf("%w: build directory was not created", ErrNotOpen)
	}
	if !w.headers {
		if err := w.writeHeaders(record); err != nil {
			return err
		}
	}

	core, extensions, err := w.extract(record)
	if err != nil {
		return err
	}
	if err := w.writeRow(w.tables[coreTable], core); err != nil {
		return err
	}
	for _, name := range w.extOrder {
		for _, row := range extensions[name] {
			if err := w.writeRow(w.tables[name], row); err != nil {
				return err
			}
		}
	}
	w.rows++
	return nil
}

func (w *dwcWriter) writeRow(table *dwcTable, row map[string]any) error {
	cells := make([]string, len(table.columns))
	for i, column := range table.columns {
		cells[i] = fields.Text(row[column])
	}
	if err := table.csv.Write(cells); err != nil {
		return fmt.Errorf("failed to write to %s: %w", table.location, err)
	}
	return nil
}

// extract splits a record into its core row and the rows of each extension. Values of
// fields that are neither core columns nor extension owned go into dynamicProperties.
func (w *dwcWriter) extract(record datastore.Record) (map[string]any, map[string][]map[string]any, error) {
	id, ok := record[w.idField]
	if !ok {
		return nil, nil, query.Invalidf("record does not have id field %s", w.idField)
	}

	coreColumns := map[string]bool{}
	for _, column := range w.tables[coreTable].columns {
		coreColumns[column] = true
	}

	core := map[string]any{dwcIDColumn: id}
	extensions := map[string][]map[string]any{}
	dynamic := map[string]any{}

	for key, value := range record {
		if name, owned := w.owner[key]; owned {
			extensions[name] = append(extensions[name], w.extensionRows(name, id, key, value)...)
			continue
		}
		if coreColumns[key] {
			core[key] = value
		} else {
			dynamic[key] = value
		}
	}

	encoded, err := json.Marshal(dynamic)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to encode dynamic properties: %w", err)
	}
	core[dynamicProperties] = string(encoded)
	return core, extensions, nil
}

// extensionRows turns the value of an extension owned field into rows, each carrying the
// core record's id
func (w *dwcWriter) extensionRows(name string, id any, key string, value any) []map[string]any {
	columns := map[string]bool{}
	for _, column := range w.tables[name].columns {
		columns[column] = true
	}
	row := func(sub map[string]any) map[string]any {
		props := map[string]any{dwcIDColumn: id}
		for k, v := range sub {
			if columns[k] && k != dwcIDColumn {
				props[k] = v
			}
		}
		return props
	}

	switch v := value.(type) {
	case nil:
		return nil
	case []any:
		rows := make([]map[string]any, 0, len(v))
		for _, element := range v {
			if sub, ok := element.(map[string]any); ok {
				rows = append(rows, row(sub))
			} else {
				rows = append(rows, row(map[string]any{key: element}))
			}
		}
		return rows
	case map[string]any:
		return []map[string]any{row(v)}
	default:
		return []map[string]any{row(map[string]any{key: v})}
	}
}

// Close finishes the tables, writes the metadata documents and zips the build directory.
// The build directory is always removed.
func (w *dwcWriter) Close() (err error) {
	if !w.lifecycle.close() {
		return nil
	}
	defer func() {
		if rmErr := os.RemoveAll(w.buildDir); rmErr != nil {
			w.logger.Error("Failed to remove darwin core build directory", "path", w.buildDir, "error", rmErr)
		}
	}()

	if !w.ready {
		return w.closeTables()
	}
	if !w.headers {
		if err := w.writeHeaders(nil); err != nil {
			w.closeTables()
			return err
		}
	}
	if err := w.closeTables(); err != nil {
		return err
	}

	if err := w.writeMeta(); err != nil {
		return err
	}
	if err := w.writeEML(); err != nil {
		return err
	}

	if err := w.env.Archiver.ZipDir(w.buildDir, filepath.Join(w.spec.Dir, w.fileName())); err != nil {
		return fmt.Errorf("failed to zip darwin core archive: %w", err)
	}
	w.completed = true
	return nil
}

func (w *dwcWriter) closeTables() error {
	var errs []error
	for _, table := range w.allTables() {
		if table.file == nil {
			continue
		}
		table.csv.Flush()
		if err := table.csv.Error(); err != nil {
			errs = append(errs, fmt.Errorf("failed to flush %s: %w", table.location, err))
		}
		if err := table.file.Close(); err != nil {
			errs = append(errs, err)
		}
		table.file = nil
	}
	return errors.Join(errs...)
}

func (w *dwcWriter) writeMeta() error {
	core := w.tables[coreTable]
	coreSpec := dwc.Table{
		RowType:  w.schema.CoreRowType(),
		Location: core.location,
		Columns:  core.columns,
		Props:    w.schema.Props,
	}
	var extensions []dwc.Table
	for _, ext := range w.schema.Extensions {
		table := w.tables[ext.Name]
		extensions = append(extensions, dwc.Table{
			RowType:  ext.RowType,
			Location: table.location,
			Columns:  table.columns,
			Props:    w.schema.ExtensionProps[ext.Name],
		})
	}
	return w.writeXML("meta.xml", dwc.BuildMeta(coreSpec, extensions))
}

func (w *dwcWriter) writeEML() error {
	now := time.Now
	if w.env.Now != nil {
		now = w.env.Now
	}
	input := w.eml
	input.Rows = w.rows
	input.PackageID = w.fileName()
	input.Now = now()

	doc := w.env.EMLHooks.Apply(dwc.BuildEML(input))
	return w.writeXML("eml.xml", doc)
}

func (w *dwcWriter) writeXML(name string, v any) error {
	data, err := dwc.Marshal(v)
	if err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(w.buildDir, name), data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", name, err)
	}
	return nil
}

func (w *dwcWriter) Files() []string {
	if !w.completed {
		return nil
	}
	return []string{w.fileName()}
}

func sortedKeys(set map[string]bool) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Package derivatives writes the user facing output files of a download in each format
package derivatives

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"datastore-downloader/internal/datastore"
	"datastore-downloader/internal/query"
)

// Format is an output format
type Format string

const (
	FormatCSV  Format = "csv"
	FormatTSV  Format = "tsv"
	FormatJSON Format = "json"
	FormatXLSX Format = "xlsx"
	FormatDwC  Format = "dwc"
	// FormatRaw copies uploaded source files and has no writer
	FormatRaw Format = "raw"
)

// ResourceIDField names the column or key that tags records in a shared file
const ResourceIDField = "Source resource ID"

var (
	// ErrNotOpen is returned when writing to a writer that is not open
	ErrNotOpen = errors.New("writer is not open")
	// ErrUnexpectedField is returned when a record holds a value for an undeclared field
	ErrUnexpectedField = errors.New("unexpected field")
)

// Writer streams records into one format's output files
type Writer interface {
	// Open creates the output files and writes any header
	Open() error
	// Write adds one record that came from the given resource
	Write(resourceID string, record datastore.Record) error
	// Close flushes and finishes the output. Closing again is a no-op.
	Close() error
	// Files lists the files written, relative to the output directory
	Files() []string
}

// Spec is everything a writer is constructed with
type Spec struct {
	// Dir is the directory the output files are written to
	Dir string
	// Fields is the ordered list of fields to emit
	Fields []string
	// ResourceID is the only resource written, or empty for a writer shared by every resource
	ResourceID string
	Options    Options
	Query      *query.Query
	// DwC holds the collaborators of the DarwinCore writer
	DwC *DwCEnv
}

// Shared reports whether the writer receives records from every resource
func (s Spec) Shared() bool {
	return s.ResourceID == ""
}

// baseName is the file name, without extension, of a writer's main output
func (s Spec) baseName() string {
	if s.Shared() {
		return "data"
	}
	return s.ResourceID
}

// DwCOptions are the options of the DarwinCore format
type DwCOptions struct {
	CoreExtensionName string              `json:"core_extension_name,omitempty"`
	ExtensionNames    []string            `json:"extension_names,omitempty"`
	ExtensionMap      map[string][]string `json:"extension_map,omitempty"`
	IDField           string              `json:"id_field,omitempty"`
	EMLTitle          string              `json:"eml_title,omitempty"`
	EMLAbstract       string              `json:"eml_abstract,omitempty"`
}

// Options are the format specific options of a download. Only the variant matching Format
// is ever set.
type Options struct {
	Format Format
	DwC    *DwCOptions
}

// ParseFormat validates a format name
func ParseFormat(name string) (Format, error) {
	format := Format(name)
	switch format {
	case FormatCSV, FormatTSV, FormatJSON, FormatXLSX, FormatDwC, FormatRaw:
		return format, nil
	}
	return "", query.Invalidf("unknown format %q, must be one of %v", name, Formats())
}

// Formats lists every supported format
func Formats() []Format {
	formats := []Format{FormatRaw}
	for format := range registry {
		formats = append(formats, format)
	}
	sort.Slice(formats, func(i, j int) bool { return formats[i] < formats[j] })
	return formats
}

// DecodeOptions decodes the format arguments of a request. Arguments a format does not
// define are rejected.
func DecodeOptions(format Format, args map[string]any) (Options, error) {
	options := Options{Format: format}

	switch format {
	case FormatDwC:
		var dwc DwCOptions
		if err := decodeStrict(args, &dwc); err != nil {
			return Options{}, query.Invalidf("invalid %s format arguments: %v", format, err)
		}
		options.DwC = &dwc
	default:
		if _, err := ParseFormat(string(format)); err != nil {
			return Options{}, err
		}
		if len(args) > 0 {
			return Options{}, query.Invalidf("format %s takes no arguments", format)
		}
	}

	return options, nil
}

func decodeStrict(args map[string]any, out any) error {
	if len(args) == 0 {
		return nil
	}
	data, err := json.Marshal(args)
	if err != nil {
		return err
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	return dec.Decode(out)
}

// Args returns the options as plain format arguments
func (o Options) Args() map[string]any {
	args := map[string]any{}
	if o.DwC == nil {
		return args
	}
	data, err := json.Marshal(o.DwC)
	if err != nil {
		return args
	}
	_ = json.Unmarshal(data, &args)
	return args
}

// Constructor builds the writer of one format
type Constructor func(ctx context.Context, spec Spec) (Writer, error)

// registry maps every format that has a writer to its constructor
var registry = map[Format]Constructor{
	FormatCSV:  newCSVWriter,
	FormatTSV:  newTSVWriter,
	FormatJSON: newJSONWriter,
	FormatXLSX: newXLSXWriter,
	FormatDwC:  newDwCWriter,
}

// New creates the writer for spec.Options.Format
func New(ctx context.Context, spec Spec) (Writer, error) {
	constructor, ok := registry[spec.Options.Format]
	if !ok {
		return nil, fmt.Errorf("format %q has no writer", spec.Options.Format)
	}
	return constructor(ctx, spec)
}

type state int

const (
	stateUnopened state = iota
	stateOpen
	stateWriting
	stateClosed
)

func (s state) String() string {
	switch s {
	case stateUnopened:
		return "unopened"
	case stateOpen:
		return "open"
	case stateWriting:
		return "writing"
	default:
		return "closed"
	}
}

// lifecycle enforces unopened -> open -> writing -> closed for every writer
type lifecycle struct {
	state state
}

func (l *lifecycle) open() error {
	if l.state != stateUnopened {
		return fmt.Errorf("cannot open a writer that is %s", l.state)
	}
	l.state = stateOpen
	return nil
}

func (l *lifecycle) write() error {
	if l.state != stateOpen && l.state != stateWriting {
		return fmt.Errorf("%w: writer is %s", ErrNotOpen, l.state)
	}
	l.state = stateWriting
	return nil
}

// close marks the writer closed and reports whether it had been opened, so callers know
// whether there is anything to finish
func (l *lifecycle) close() bool {
	opened := l.state == stateOpen || l.state == stateWriting
	l.state = stateClosed
	return opened
}

// wrote reports whether at least one record has been written
func (l *lifecycle) wrote() bool {
	return l.state == stateWriting
}

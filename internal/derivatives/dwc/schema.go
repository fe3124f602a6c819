// Package dwc models the DarwinCore vocabulary and builds the metadata documents of a
// DarwinCore archive
package dwc

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// DefaultRowType is the core row type when no core extension is configured
const DefaultRowType = "http://rs.tdwg.org/dwc/terms/Occurrence"

// StandardFields are always columns of the core file
var StandardFields = []string{"datasetID", "basisOfRecord", "dynamicProperties"}

// ValidTypes are the values of the type term the core file may carry
var ValidTypes = []string{"StillImage", "MovingImage", "Sound", "PhysicalObject", "Event", "Text"}

// IsValidType reports whether t may be written to the type column
func IsValidType(t any) bool {
	s, ok := t.(string)
	if !ok {
		return false
	}
	for _, valid := range ValidTypes {
		if s == valid {
			return true
		}
	}
	return false
}

// Domain is a class of terms
type Domain struct {
	Name  string `json:"name"`
	Label string `json:"label"`
	IRI   string `json:"iri"`
}

// Prop is a single term
type Prop struct {
	Name         string   `json:"name"`
	IRI          string   `json:"iri"`
	Type         string   `json:"type,omitempty"`
	IsIdentifier bool     `json:"is_identifier"`
	Domain       string   `json:"domain"`
	Vocabulary   []string `json:"vocabulary"`
	Flags        []string `json:"flags"`
	Extension    string   `json:"extension,omitempty"`
}

// Props are terms keyed by name
type Props map[string]*Prop

// Flagged returns the props carrying every one of flags
func (p Props) Flagged(flags ...string) Props {
	flagged := Props{}
	for name, prop := range p {
		if prop.HasFlags(flags...) {
			flagged[name] = prop
		}
	}
	return flagged
}

// HasFlags reports whether the prop carries every one of flags
func (p *Prop) HasFlags(flags ...string) bool {
	for _, flag := range flags {
		found := false
		for _, own := range p.Flags {
			if strings.EqualFold(own, flag) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// Location is where an extension's definition lives. Fields names the record fields that
// hold the extension's rows.
type Location struct {
	URL    string   `json:"url" yaml:"url"`
	Base   string   `json:"base" yaml:"base"`
	Fields []string `json:"fields" yaml:"fields"`
}

// Extension is a satellite table definition
type Extension struct {
	Location  Location `json:"location"`
	PropNames []string `json:"prop_names"`
	RowType   string   `json:"row_type"`
	Name      string   `json:"name"`
	Core      bool     `json:"core"`
}

// Schema is the vocabulary an archive is written against
type Schema struct {
	Domains        []Domain         `json:"domains"`
	Props          Props            `json:"props"`
	RowType        string           `json:"row_type"`
	CoreExtension  *Extension       `json:"core_extension,omitempty"`
	Extensions     []Extension      `json:"extensions,omitempty"`
	ExtensionProps map[string]Props `json:"extension_props,omitempty"`
}

// RowTypeName is the short name of the core row type
func (s *Schema) RowTypeName() string {
	if s.CoreExtension != nil {
		return s.CoreExtension.Name
	}
	parts := strings.Split(s.rowType(), "/")
	return parts[len(parts)-1]
}

func (s *Schema) rowType() string {
	if s.CoreExtension != nil {
		return s.CoreExtension.RowType
	}
	if s.RowType == "" {
		return DefaultRowType
	}
	return s.RowType
}

// CoreRowType is the IRI of the core row type
func (s *Schema) CoreRowType() string {
	return s.rowType()
}

// ExtensionFor returns the name of the extension that owns a root record field
func (s *Schema) ExtensionFor(field string) (string, bool) {
	for _, ext := range s.Extensions {
		for _, owned := range ext.Location.Fields {
			if owned == field {
				return ext.Name, true
			}
		}
	}
	return "", false
}

// Save writes the schema as JSON to path
func (s *Schema) Save(path string) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode schema: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write schema cache: %w", err)
	}
	return nil
}

// ReadSchema loads a schema saved with Save
func ReadSchema(path string) (*Schema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var schema Schema
	if err := json.Unmarshal(data, &schema); err != nil {
		return nil, fmt.Errorf("failed to decode schema cache %s: %w", path, err)
	}
	if schema.Props == nil {
		schema.Props = Props{}
	}
	if schema.ExtensionProps == nil {
		schema.ExtensionProps = map[string]Props{}
	}
	return &schema, nil
}

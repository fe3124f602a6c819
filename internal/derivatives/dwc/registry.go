package dwc

import (
	_ "embed"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	TDWGBaseURL  = "https://dwc.tdwg.org/xml"
	TDWGXMLNS    = "http://rs.tdwg.org/dwc/text"
	TDWGCoreXSD  = "https://dwc.tdwg.org/xml/tdwg_dwcterms.xsd"
	TDWGTermsCSV = "https://raw.githubusercontent.com/tdwg/dwc/master/vocabulary/term_versions.csv"
	TDWGMetadata = "http://rs.tdwg.org/dwc/text/tdwg_dwc_text.xsd"

	GBIFBaseURL   = "https://rs.gbif.org"
	GBIFEML       = "http://rs.gbif.org/schema/eml-gbif-profile/1.1/eml.xsd"
	GBIFThesaurus = "http://rs.gbif.org/vocabulary/gbif/dataset_type.xml"

	XSINamespace = "http://www.w3.org/2001/XMLSchema-instance"
	XSNamespace  = "http://www.w3.org/2001/XMLSchema"
	DCNamespace  = "http://purl.org/dc/terms"
	EMLNamespace = "eml://ecoinformatics.org/eml-2.1.1"
)

//go:embed extensions.yaml
var extensionsYAML []byte

// Registry lists the extensions an archive can be written with
type Registry struct {
	CoreExtensions map[string]Location `yaml:"core_extensions"`
	Extensions     map[string]Location `yaml:"extensions"`
}

// LoadRegistry parses the built in extension registry
func LoadRegistry() (*Registry, error) {
	var registry Registry
	if err := yaml.Unmarshal(extensionsYAML, &registry); err != nil {
		return nil, fmt.Errorf("failed to parse extension registry: %w", err)
	}
	return &registry, nil
}

// LoadOptions selects the extensions a schema is built with
type LoadOptions struct {
	CoreExtension *Location  `json:"core_extension,omitempty"`
	Extensions    []Location `json:"extensions,omitempty"`
}

// Options resolves extension names into load options. Unknown names are ignored and
// fieldOverrides replaces the record fields an extension is read from. Extensions left
// with no fields are skipped.
func (r *Registry) Options(coreExtension string, extensions []string, fieldOverrides map[string][]string) LoadOptions {
	var opts LoadOptions
	if coreExtension != "" {
		if location, ok := r.CoreExtensions[strings.ToLower(coreExtension)]; ok {
			opts.CoreExtension = &location
		}
	}
	for _, name := range extensions {
		name = strings.ToLower(strings.TrimSpace(name))
		location, ok := r.Extensions[name]
		if !ok {
			continue
		}
		if fields, ok := fieldOverrides[name]; ok && fields != nil {
			location.Fields = fields
		}
		if len(location.Fields) == 0 {
			continue
		}
		opts.Extensions = append(opts.Extensions, location)
	}
	return opts
}

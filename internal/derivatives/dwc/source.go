package dwc

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	rdfClass    = "http://www.w3.org/2000/01/rdf-schema#Class"
	rdfProperty = "http://www.w3.org/1999/02/22-rdf-syntax-ns#Property"
)

// Source fetches vocabulary documents
type Source interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// HTTPSource fetches vocabulary documents over HTTP
type HTTPSource struct {
	httpClient *http.Client
}

// NewHTTPSource creates a source with a request timeout
func NewHTTPSource() *HTTPSource {
	return &HTTPSource{httpClient: &http.Client{Timeout: 60 * time.Second}}
}

// Fetch downloads the document at url
func (s *HTTPSource) Fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to fetch %s: status %d", url, resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", url, err)
	}
	return body, nil
}

// xmlNode is a generic element tree
type xmlNode struct {
	XMLName  xml.Name
	Attrs    []xml.Attr `xml:",any,attr"`
	Children []xmlNode  `xml:",any"`
}

func parseXML(data []byte) (*xmlNode, error) {
	dec := xml.NewDecoder(bytes.NewReader(data))
	dec.Strict = false
	var root xmlNode
	if err := dec.Decode(&root); err != nil {
		return nil, fmt.Errorf("failed to parse xml: %w", err)
	}
	return &root, nil
}

// attr returns the value of the attribute with the given local name
func (n *xmlNode) attr(local string) (string, bool) {
	for _, a := range n.Attrs {
		if a.Name.Local == local {
			return a.Value, true
		}
	}
	return "", false
}

// findAll returns every descendant element with the given local name, in document order
func (n *xmlNode) findAll(local string) []*xmlNode {
	var found []*xmlNode
	for i := range n.Children {
		child := &n.Children[i]
		if child.XMLName.Local == local {
			found = append(found, child)
		}
		found = append(found, child.findAll(local)...)
	}
	return found
}

// term is one row of the TDWG term versions table
type term struct {
	localName   string
	iri         string
	label       string
	organizedIn string
	rdfType     string
	flags       string
}

func parseTerms(data []byte) ([]term, error) {
	reader := csv.NewReader(bytes.NewReader(data))
	reader.FieldsPerRecord = -1
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to parse terms csv: %w", err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("terms csv is empty")
	}

	columns := make(map[string]int, len(rows[0]))
	for i, name := range rows[0] {
		columns[name] = i
	}
	for _, required := range []string{"term_localName", "term_iri", "status", "rdf_type"} {
		if _, ok := columns[required]; !ok {
			return nil, fmt.Errorf("terms csv has no %s column", required)
		}
	}
	cell := func(row []string, name string) string {
		i, ok := columns[name]
		if !ok || i >= len(row) {
			return ""
		}
		return row[i]
	}

	var terms []term
	for _, row := range rows[1:] {
		if cell(row, "status") != "recommended" {
			continue
		}
		terms = append(terms, term{
			localName:   cell(row, "term_localName"),
			iri:         cell(row, "term_iri"),
			label:       cell(row, "label"),
			organizedIn: cell(row, "organized_in"),
			rdfType:     cell(row, "rdf_type"),
			flags:       cell(row, "flags"),
		})
	}
	return terms, nil
}

// Regenerate builds a schema from the published vocabulary
func Regenerate(ctx context.Context, source Source, opts LoadOptions) (*Schema, error) {
	data, err := source.Fetch(ctx, TDWGTermsCSV)
	if err != nil {
		return nil, err
	}
	terms, err := parseTerms(data)
	if err != nil {
		return nil, err
	}

	data, err = source.Fetch(ctx, TDWGCoreXSD)
	if err != nil {
		return nil, err
	}
	coreXSD, err := parseXML(data)
	if err != nil {
		return nil, err
	}
	elements := make(map[string]*xmlNode)
	for _, element := range coreXSD.findAll("element") {
		if name, ok := element.attr("name"); ok {
			elements[name] = element
		}
	}

	schema := &Schema{
		Props:          Props{},
		RowType:        DefaultRowType,
		ExtensionProps: map[string]Props{},
	}
	coreProps := Props{}
	for _, t := range terms {
		switch t.rdfType {
		case rdfClass:
			schema.Domains = append(schema.Domains, Domain{Name: t.localName, Label: t.label, IRI: t.iri})
		case rdfProperty:
			prop := &Prop{Name: t.localName, IRI: t.iri, Domain: t.organizedIn, Vocabulary: []string{}, Flags: []string{}}
			if t.flags != "" {
				prop.Flags = append(prop.Flags, strings.ToLower(t.flags))
			}
			if err := prop.updateFromElement(ctx, source, lookupElement(elements, t.localName)); err != nil {
				return nil, err
			}
			coreProps[prop.Name] = prop
		}
	}

	if opts.CoreExtension != nil {
		root, err := fetchXML(ctx, source, opts.CoreExtension.URL)
		if err != nil {
			return nil, err
		}
		extensionProps := Props{}
		for _, element := range root.findAll("property") {
			name, _ := element.attr("name")
			prop, ok := coreProps[name]
			if !ok {
				prop = &Prop{Name: name, Flags: []string{"core_extension"}}
			}
			prop.updateFromExtension(element)
			if err := prop.updateFromElement(ctx, source, element); err != nil {
				return nil, err
			}
			extensionProps[prop.Name] = prop
		}
		coreProps = extensionProps
		ext := newExtension(*opts.CoreExtension, root, true)
		schema.CoreExtension = &ext
		schema.RowType = ext.RowType
	}
	schema.Props = coreProps

	for _, location := range opts.Extensions {
		root, err := fetchXML(ctx, source, location.URL)
		if err != nil {
			return nil, err
		}
		ext := newExtension(location, root, false)
		props := Props{}
		for _, element := range root.findAll("property") {
			name, _ := element.attr("name")
			prop := &Prop{Name: name, Flags: []string{}, Extension: ext.Name}
			prop.updateFromExtension(element)
			if err := prop.updateFromElement(ctx, source, element); err != nil {
				return nil, err
			}
			props[prop.Name] = prop
		}
		schema.Extensions = append(schema.Extensions, ext)
		schema.ExtensionProps[ext.Name] = props
	}

	return schema, nil
}

// lookupElement finds the XSD element of a term, allowing for terms whose element is
// spelled differently in the published XSD
func lookupElement(elements map[string]*xmlNode, name string) *xmlNode {
	if element, ok := elements[name]; ok {
		return element
	}
	aliases := map[string]string{
		"degreeOfEstablishment": "degreeOfEstablishmentMeans",
		"waterBody":             "waterbody",
	}
	if alias, ok := aliases[name]; ok {
		return elements[alias]
	}
	return nil
}

func fetchXML(ctx context.Context, source Source, url string) (*xmlNode, error) {
	data, err := source.Fetch(ctx, url)
	if err != nil {
		return nil, err
	}
	root, err := parseXML(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", url, err)
	}
	return root, nil
}

func newExtension(location Location, root *xmlNode, core bool) Extension {
	rowType, _ := root.attr("rowType")
	name, _ := root.attr("name")
	ext := Extension{Location: location, RowType: rowType, Name: name, Core: core, PropNames: []string{}}
	for _, element := range root.findAll("property") {
		if propName, ok := element.attr("name"); ok {
			ext.PropNames = append(ext.PropNames, propName)
		}
	}
	return ext
}

// updateFromExtension takes a prop's identity from an extension definition element
func (p *Prop) updateFromExtension(element *xmlNode) {
	p.Name, _ = element.attr("name")
	p.IRI, _ = element.attr("qualName")
	p.Domain, _ = element.attr("group")
}

// updateFromElement applies the type details an XSD or extension element carries
func (p *Prop) updateFromElement(ctx context.Context, source Source, element *xmlNode) error {
	p.Vocabulary = []string{}
	if element == nil {
		p.IsIdentifier = false
		return nil
	}

	group, _ := element.attr("substitutionGroup")
	p.IsIdentifier = group == "dwc:anyIdentifier"
	if t, ok := element.attr("type"); ok && t != "xs:string" {
		p.Type = t
	}

	thesaurus, ok := element.attr("thesaurus")
	if !ok || thesaurus == "" {
		return nil
	}
	root, err := fetchXML(ctx, source, thesaurus)
	if err != nil {
		return err
	}
	for _, concept := range root.findAll("concept") {
		for _, a := range concept.Attrs {
			if strings.Contains(a.Name.Local, "identifier") {
				p.Vocabulary = append(p.Vocabulary, a.Value)
				break
			}
		}
	}
	return nil
}

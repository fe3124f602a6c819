package dwc

import (
	"encoding/xml"
	"fmt"
	"strconv"
)

// Archive is the meta.xml descriptor of a DarwinCore archive
type Archive struct {
	XMLName        xml.Name   `xml:"archive"`
	XMLNS          string     `xml:"xmlns,attr"`
	XMLNSXSI       string     `xml:"xmlns:xsi,attr"`
	XMLNSXS        string     `xml:"xmlns:xs,attr"`
	Metadata       string     `xml:"metadata,attr"`
	SchemaLocation string     `xml:"xsi:schemaLocation,attr"`
	Core           FileSpec   `xml:"core"`
	Extensions     []FileSpec `xml:"extension"`
}

// FileSpec describes one table of the archive
type FileSpec struct {
	RowType            string      `xml:"rowType,attr"`
	Encoding           string      `xml:"encoding,attr"`
	LinesTerminatedBy  string      `xml:"linesTerminatedBy,attr"`
	FieldsTerminatedBy string      `xml:"fieldsTerminatedBy,attr"`
	FieldsEnclosedBy   string      `xml:"fieldsEnclosedBy,attr"`
	IgnoreHeaderLines  string      `xml:"ignoreHeaderLines,attr"`
	Location           string      `xml:"files>location"`
	ID                 *IndexSpec  `xml:"id,omitempty"`
	CoreID             *IndexSpec  `xml:"coreid,omitempty"`
	Fields             []FieldSpec `xml:"field"`
}

// IndexSpec points at the identifier column of a table
type IndexSpec struct {
	Index string `xml:"index,attr"`
}

// FieldSpec maps a column to a term
type FieldSpec struct {
	Index string `xml:"index,attr"`
	Term  string `xml:"term,attr"`
}

// Table is a written table: its row type, file name, columns and the props its columns
// are looked up in
type Table struct {
	RowType  string
	Location string
	Columns  []string
	Props    Props
}

func (t Table) fileSpec() FileSpec {
	spec := FileSpec{
		RowType:            t.RowType,
		Encoding:           "UTF-8",
		LinesTerminatedBy:  `\n`,
		FieldsTerminatedBy: ",",
		FieldsEnclosedBy:   `"`,
		IgnoreHeaderLines:  "1",
		Location:           t.Location,
	}
	for i, column := range t.Columns {
		if column == "_id" {
			continue
		}
		prop, ok := t.Props[column]
		if !ok {
			continue
		}
		spec.Fields = append(spec.Fields, FieldSpec{Index: strconv.Itoa(i), Term: prop.IRI})
	}
	return spec
}

// BuildMeta describes the core table and its extension tables
func BuildMeta(core Table, extensions []Table) *Archive {
	archive := &Archive{
		XMLNS:          TDWGXMLNS,
		XMLNSXSI:       XSINamespace,
		XMLNSXS:        XSNamespace,
		Metadata:       "eml.xml",
		SchemaLocation: TDWGXMLNS + " " + TDWGMetadata,
		Core:           core.fileSpec(),
	}
	archive.Core.ID = &IndexSpec{Index: "0"}
	for _, ext := range extensions {
		spec := ext.fileSpec()
		spec.CoreID = &IndexSpec{Index: "0"}
		archive.Extensions = append(archive.Extensions, spec)
	}
	return archive
}

// Marshal renders an XML document with its declaration
func Marshal(v any) ([]byte, error) {
	data, err := xml.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode xml: %w", err)
	}
	return append([]byte(xml.Header), append(data, '\n')...), nil
}

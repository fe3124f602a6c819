package dwc

import (
	"encoding/xml"
	"fmt"
	"time"

	"datastore-downloader/internal/datastore"
)

// EML is the eml.xml resource metadata document
type EML struct {
	XMLName            xml.Name            `xml:"eml:eml"`
	XMLNSEML           string              `xml:"xmlns:eml,attr"`
	XMLNSDC            string              `xml:"xmlns:dc,attr"`
	XMLNSXSI           string              `xml:"xmlns:xsi,attr"`
	SchemaLocation     string              `xml:"xsi:schemaLocation,attr"`
	PackageID          string              `xml:"packageId,attr"`
	System             string              `xml:"system,attr"`
	Scope              string              `xml:"scope,attr"`
	Lang               string              `xml:"xml:lang,attr"`
	Dataset            Dataset             `xml:"dataset"`
	AdditionalMetadata *AdditionalMetadata `xml:"additionalMetadata,omitempty"`
}

// Dataset is the dataset section of the metadata. Element order matters to GBIF.
type Dataset struct {
	AlternateIdentifiers []string     `xml:"alternateIdentifier"`
	Title                string       `xml:"title"`
	Creators             []Agent      `xml:"creator"`
	MetadataProviders    []Agent      `xml:"metadataProvider"`
	PubDate              string       `xml:"pubDate"`
	Language             string       `xml:"language,omitempty"`
	Abstract             Para         `xml:"abstract"`
	KeywordSets          []KeywordSet `xml:"keywordSet"`
	IntellectualRights   Para         `xml:"intellectualRights"`
	Distribution         Distribution `xml:"distribution"`
	Coverage             Coverage     `xml:"coverage"`
	Contacts             []Agent      `xml:"contact"`
}

// Agent is a creator, provider or contact
type Agent struct {
	IndividualName        *IndividualName `xml:"individualName,omitempty"`
	OrganizationName      string          `xml:"organizationName,omitempty"`
	ElectronicMailAddress string          `xml:"electronicMailAddress,omitempty"`
	OnlineURL             string          `xml:"onlineUrl,omitempty"`
	UserID                *UserID         `xml:"userId,omitempty"`
}

type IndividualName struct {
	GivenName string `xml:"givenName"`
	SurName   string `xml:"surName"`
}

type UserID struct {
	Directory string `xml:"directory,attr"`
	Value     string `xml:",chardata"`
}

type Para struct {
	Para string `xml:"para"`
}

type KeywordSet struct {
	Keyword          string `xml:"keyword"`
	KeywordThesaurus string `xml:"keywordThesaurus"`
}

type Distribution struct {
	Scope string    `xml:"scope,attr"`
	URL   OnlineURL `xml:"online>url"`
}

type OnlineURL struct {
	Function string `xml:"function,attr"`
	Value    string `xml:",chardata"`
}

type Coverage struct {
	Description string              `xml:"geographicCoverage>geographicDescription"`
	Bounds      BoundingCoordinates `xml:"geographicCoverage>boundingCoordinates"`
}

type BoundingCoordinates struct {
	West  float64 `xml:"westBoundingCoordinate"`
	East  float64 `xml:"eastBoundingCoordinate"`
	North float64 `xml:"northBoundingCoordinate"`
	South float64 `xml:"southBoundingCoordinate"`
}

// AdditionalMetadata carries the GBIF citation
type AdditionalMetadata struct {
	GBIF GBIFMetadata `xml:"metadata>gbif"`
}

type GBIFMetadata struct {
	DateStamp       string    `xml:"dateStamp"`
	Citation        *Citation `xml:"citation,omitempty"`
	ResourceLogoURL string    `xml:"resourceLogoUrl,omitempty"`
}

type Citation struct {
	Identifier string `xml:"identifier,attr"`
	Text       string `xml:",chardata"`
}

// Site describes the portal publishing the archive
type Site struct {
	Title          string
	URL            string
	Logo           string
	Locale         string
	OrgName        string
	OrgEmail       string
	DefaultLicense string
}

// QueryDOI is a DOI minted for a query
type QueryDOI struct {
	DOI        string
	Citation   string
	LandingURL string
}

// EMLInput is everything the metadata document is derived from
type EMLInput struct {
	QueryHash    string
	EmptyQuery   bool
	Resources    []*datastore.Resource
	Packages     []*datastore.Package
	Contributors []datastore.Agent
	QueryDOI     *QueryDOI
	Schema       *Schema
	Site         Site
	Rows         int64
	Title        string
	Abstract     string
	PackageID    string
	Now          time.Time
}

// BuildEML derives the metadata document of an archive
func BuildEML(in EMLInput) EML {
	packages := uniquePackages(in.Packages)
	singleResource := len(in.Resources) == 1
	singlePackage := len(packages) == 1

	site := Agent{OrganizationName: in.Site.OrgName, ElectronicMailAddress: in.Site.OrgEmail, OnlineURL: in.Site.URL}
	if site.OrganizationName == "" {
		site.OrganizationName = in.Site.Title
	}

	var container string
	switch {
	case singleResource:
		container = in.Resources[0].Name
	case singlePackage:
		container = fmt.Sprintf("%d resources in %s", len(in.Resources), packages[0].Title)
	default:
		container = in.Site.Title
	}

	title := in.Title
	if title == "" {
		title = "Query on " + container
	}
	abstract := in.Abstract
	if abstract == "" {
		abstract = fmt.Sprintf("Query ID %s on %s (%d records).", in.QueryHash, container, in.Rows)
	}

	dataset := Dataset{
		AlternateIdentifiers: []string{in.QueryHash},
		Title:                title,
		Creators:             []Agent{site},
		MetadataProviders:    []Agent{site},
		PubDate:              in.Now.Format("2006-01-02"),
		Language:             in.Site.Locale,
		Abstract:             Para{Para: abstract},
		IntellectualRights:   Para{Para: license(packages, in.Site.DefaultLicense)},
		Distribution: Distribution{
			Scope: "document",
			URL:   OnlineURL{Function: "information", Value: in.Site.URL},
		},
		Coverage: Coverage{
			Description: "Unbound",
			Bounds:      BoundingCoordinates{West: -180, East: 180, North: 90, South: -90},
		},
		Contacts: []Agent{site},
	}
	gbif := GBIFMetadata{
		DateStamp: in.Now.UTC().Format("2006-01-02T15:04:05Z"),
	}
	if in.Site.Logo != "" {
		gbif.ResourceLogoURL = in.Site.URL + in.Site.Logo
	}

	switch {
	case singlePackage && in.EmptyQuery:
		pkg := packages[0]
		dataset.Distribution.URL.Value = fmt.Sprintf("%s/dataset/%s", in.Site.URL, pkg.ID)
		if pkg.DOI != "" {
			dataset.AlternateIdentifiers = append(dataset.AlternateIdentifiers, "doi:"+pkg.DOI)
			gbif.Citation = &Citation{
				Identifier: "https://doi.org/" + pkg.DOI,
				Text:       fmt.Sprintf("%s (%s). Dataset: %s. %s", pkg.Author, pkg.Year(), pkg.Title, in.Site.Title),
			}
		}
		if singleResource {
			resource := in.Resources[0]
			dataset.Title = resource.Name
			dataset.AlternateIdentifiers = append(dataset.AlternateIdentifiers, resource.ID)
			if pkg.Modified != "" {
				dataset.PubDate = pkg.Modified
			}
			dataset.Abstract.Para = resource.Description
			dataset.Distribution.URL.Value = fmt.Sprintf("%s/dataset/%s/resource/%s", in.Site.URL, pkg.ID, resource.ID)
		}
	case in.QueryDOI != nil:
		dataset.AlternateIdentifiers = append(dataset.AlternateIdentifiers, "doi:"+in.QueryDOI.DOI)
		if in.QueryDOI.LandingURL != "" {
			dataset.Distribution.URL.Value = in.QueryDOI.LandingURL
		}
		gbif.Citation = &Citation{Identifier: "https://doi.org/" + in.QueryDOI.DOI, Text: in.QueryDOI.Citation}
	}

	if in.Schema != nil && in.Schema.CoreExtension != nil && in.Schema.CoreExtension.Location.Base == GBIFBaseURL {
		dataset.KeywordSets = append(dataset.KeywordSets, KeywordSet{
			Keyword:          in.Schema.RowTypeName(),
			KeywordThesaurus: "GBIF Dataset Type Vocabulary: " + GBIFThesaurus,
		})
	}

	dataset.Creators = append(dataset.Creators, creators(in.Contributors)...)

	doc := EML{
		XMLNSEML:       EMLNamespace,
		XMLNSDC:        DCNamespace,
		XMLNSXSI:       XSINamespace,
		SchemaLocation: EMLNamespace + " " + GBIFEML,
		PackageID:      in.PackageID,
		System:         "http://gbif.org",
		Scope:          "system",
		Lang:           "en",
		Dataset:        dataset,
	}
	if gbif.Citation != nil {
		doc.AdditionalMetadata = &AdditionalMetadata{GBIF: gbif}
	}
	return doc
}

// uniquePackages drops repeated packages, keeping the first of each
func uniquePackages(packages []*datastore.Package) []*datastore.Package {
	seen := make(map[string]bool, len(packages))
	var unique []*datastore.Package
	for _, pkg := range packages {
		if pkg == nil || seen[pkg.ID] {
			continue
		}
		seen[pkg.ID] = true
		unique = append(unique, pkg)
	}
	return unique
}

// license is the single license shared by every package, else the fallback
func license(packages []*datastore.Package, fallback string) string {
	titles := map[string]bool{}
	for _, pkg := range packages {
		if pkg.LicenseTitle != "" {
			titles[pkg.LicenseTitle] = true
		}
	}
	if len(titles) != 1 {
		return fallback
	}
	for title := range titles {
		return title
	}
	return fallback
}

// creators turns attribution agents into EML creators, once per agent
func creators(agents []datastore.Agent) []Agent {
	seen := map[string]bool{}
	var result []Agent
	for _, a := range agents {
		if seen[a.ID] {
			continue
		}
		seen[a.ID] = true

		agent := Agent{}
		if a.IsPerson() {
			agent.IndividualName = &IndividualName{GivenName: a.GivenNames, SurName: a.FamilyName}
		} else {
			agent.OrganizationName = a.Name
		}
		if a.ExternalID != "" {
			agent.UserID = &UserID{Directory: a.ExternalIDURL, Value: a.ExternalID}
		}
		result = append(result, agent)
	}
	return result
}

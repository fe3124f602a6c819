package dwc

import (
	"encoding/xml"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"datastore-downloader/internal/datastore"
)

var testSite = Site{
	Title:          "Data Portal",
	URL:            "https://data.example.org",
	Logo:           "/logo.png",
	Locale:         "en",
	OrgName:        "Example Museum",
	OrgEmail:       "data@example.org",
	DefaultLicense: "null",
}

func testInput() EMLInput {
	return EMLInput{
		QueryHash: "abc123",
		Resources: []*datastore.Resource{
			{ID: "res-1", PackageID: "pkg-1", Name: "Specimens", Description: "All specimens"},
			{ID: "res-2", PackageID: "pkg-1", Name: "Index lots"},
		},
		Packages: []*datastore.Package{
			{ID: "pkg-1", Title: "Collection", Author: "Museum", DOI: "10.5519/abc", Created: "2019-05-02", LicenseTitle: "CC-BY"},
			{ID: "pkg-1", Title: "Collection", Author: "Museum", DOI: "10.5519/abc", Created: "2019-05-02", LicenseTitle: "CC-BY"},
		},
		Site: testSite,
		Rows: 42,
		Now:  time.Date(2024, 3, 1, 12, 30, 0, 0, time.UTC),
	}
}

func TestBuildEML_FilteredQuery(t *testing.T) {
	doc := BuildEML(testInput())

	require.Equal(t, "Query on 2 resources in Collection", doc.Dataset.Title)
	require.Equal(t, "Query ID abc123 on 2 resources in Collection (42 records).", doc.Dataset.Abstract.Para)
	require.Equal(t, []string{"abc123"}, doc.Dataset.AlternateIdentifiers)
	require.Equal(t, "2024-03-01", doc.Dataset.PubDate)
	require.Equal(t, "CC-BY", doc.Dataset.IntellectualRights.Para)
	require.Equal(t, testSite.URL, doc.Dataset.Distribution.URL.Value)
	require.Equal(t, "Example Museum", doc.Dataset.Creators[0].OrganizationName)
	require.Nil(t, doc.AdditionalMetadata)
	require.Equal(t, BoundingCoordinates{West: -180, East: 180, North: 90, South: -90}, doc.Dataset.Coverage.Bounds)
}

func TestBuildEML_WholePackage(t *testing.T) {
	in := testInput()
	in.EmptyQuery = true
	doc := BuildEML(in)

	require.Equal(t, []string{"abc123", "doi:10.5519/abc"}, doc.Dataset.AlternateIdentifiers)
	require.Equal(t, "https://data.example.org/dataset/pkg-1", doc.Dataset.Distribution.URL.Value)
	require.NotNil(t, doc.AdditionalMetadata)
	citation := doc.AdditionalMetadata.GBIF.Citation
	require.Equal(t, "https://doi.org/10.5519/abc", citation.Identifier)
	require.Equal(t, "Museum (2019). Dataset: Collection. Data Portal", citation.Text)
	require.Equal(t, "https://data.example.org/logo.png", doc.AdditionalMetadata.GBIF.ResourceLogoURL)
	require.Equal(t, "2024-03-01T12:30:00Z", doc.AdditionalMetadata.GBIF.DateStamp)
}

func TestBuildEML_SingleResource(t *testing.T) {
	in := testInput()
	in.EmptyQuery = true
	in.Resources = in.Resources[:1]
	in.Packages = in.Packages[:1]
	in.Packages[0].Modified = "2023-11-11"
	doc := BuildEML(in)

	require.Equal(t, "Specimens", doc.Dataset.Title)
	require.Equal(t, "All specimens", doc.Dataset.Abstract.Para)
	require.Equal(t, "2023-11-11", doc.Dataset.PubDate)
	require.Equal(t, []string{"abc123", "doi:10.5519/abc", "res-1"}, doc.Dataset.AlternateIdentifiers)
	require.Equal(t, "https://data.example.org/dataset/pkg-1/resource/res-1", doc.Dataset.Distribution.URL.Value)
}

func TestBuildEML_QueryDOIAndOverrides(t *testing.T) {
	in := testInput()
	in.Packages[1] = &datastore.Package{ID: "pkg-2", Title: "Other", LicenseTitle: "CC0"}
	in.Title = "My download"
	in.Abstract = "Everything"
	in.QueryDOI = &QueryDOI{DOI: "10.5519/qd.1", Citation: "Query citation", LandingURL: "https://data.example.org/doi/10.5519/qd.1"}
	doc := BuildEML(in)

	require.Equal(t, "My download", doc.Dataset.Title)
	require.Equal(t, "Everything", doc.Dataset.Abstract.Para)
	require.Equal(t, "null", doc.Dataset.IntellectualRights.Para)
	require.Equal(t, []string{"abc123", "doi:10.5519/qd.1"}, doc.Dataset.AlternateIdentifiers)
	require.Equal(t, "https://data.example.org/doi/10.5519/qd.1", doc.Dataset.Distribution.URL.Value)
	require.Equal(t, "Query citation", doc.AdditionalMetadata.GBIF.Citation.Text)
}

func TestBuildEML_ContributorsAndKeywords(t *testing.T) {
	in := testInput()
	in.Schema = &Schema{CoreExtension: &Extension{Name: "Occurrence", Location: Location{Base: GBIFBaseURL}}}
	in.Contributors = []datastore.Agent{
		{ID: "a1", AgentType: "person", GivenNames: "Ada", FamilyName: "Lovelace", ExternalID: "0000-0001", ExternalIDURL: "https://orcid.org"},
		{ID: "a2", AgentType: "org", Name: "Survey"},
		{ID: "a1", AgentType: "person", GivenNames: "Ada", FamilyName: "Lovelace"},
	}
	doc := BuildEML(in)

	require.Len(t, doc.Dataset.Creators, 3)
	require.Equal(t, &IndividualName{GivenName: "Ada", SurName: "Lovelace"}, doc.Dataset.Creators[1].IndividualName)
	require.Equal(t, &UserID{Directory: "https://orcid.org", Value: "0000-0001"}, doc.Dataset.Creators[1].UserID)
	require.Equal(t, "Survey", doc.Dataset.Creators[2].OrganizationName)
	require.Equal(t, []KeywordSet{{Keyword: "Occurrence", KeywordThesaurus: "GBIF Dataset Type Vocabulary: " + GBIFThesaurus}}, doc.Dataset.KeywordSets)
}

func TestMarshal_EML(t *testing.T) {
	in := testInput()
	in.PackageID = "data.zip"
	data, err := Marshal(BuildEML(in))
	require.NoError(t, err)

	text := string(data)
	require.True(t, strings.HasPrefix(text, xml.Header))
	require.Contains(t, text, `<eml:eml xmlns:eml="eml://ecoinformatics.org/eml-2.1.1"`)
	require.Contains(t, text, `packageId="data.zip"`)
	require.Contains(t, text, `<url function="information">https://data.example.org</url>`)
	require.Contains(t, text, `<distribution scope="document">`)
	require.NotContains(t, text, "additionalMetadata")
}

func TestBuildMeta(t *testing.T) {
	props := Props{
		"basisOfRecord": {Name: "basisOfRecord", IRI: "http://rs.tdwg.org/dwc/terms/basisOfRecord"},
		"catalogNumber": {Name: "catalogNumber", IRI: "http://rs.tdwg.org/dwc/terms/catalogNumber"},
	}
	extProps := Props{"title": {Name: "title", IRI: "http://purl.org/dc/terms/title"}}

	archive := BuildMeta(
		Table{RowType: DefaultRowType, Location: "occurrence.csv", Columns: []string{"_id", "basisOfRecord", "unknown", "catalogNumber"}, Props: props},
		[]Table{{RowType: "http://rs.gbif.org/terms/1.0/Multimedia", Location: "multimedia.csv", Columns: []string{"_id", "title"}, Props: extProps}},
	)

	require.Equal(t, "occurrence.csv", archive.Core.Location)
	require.Equal(t, &IndexSpec{Index: "0"}, archive.Core.ID)
	require.Nil(t, archive.Core.CoreID)
	require.Equal(t, []FieldSpec{
		{Index: "1", Term: "http://rs.tdwg.org/dwc/terms/basisOfRecord"},
		{Index: "3", Term: "http://rs.tdwg.org/dwc/terms/catalogNumber"},
	}, archive.Core.Fields)

	require.Len(t, archive.Extensions, 1)
	require.Equal(t, &IndexSpec{Index: "0"}, archive.Extensions[0].CoreID)
	require.Equal(t, []FieldSpec{{Index: "1", Term: "http://purl.org/dc/terms/title"}}, archive.Extensions[0].Fields)

	data, err := Marshal(archive)
	require.NoError(t, err)
	text := string(data)
	require.Contains(t, text, `<archive xmlns="http://rs.tdwg.org/dwc/text"`)
	require.Contains(t, text, `linesTerminatedBy="\n"`)
	require.Contains(t, text, `<files>`)
	require.Contains(t, text, `<location>occurrence.csv</location>`)
	require.Contains(t, text, `<coreid index="0"></coreid>`)
}

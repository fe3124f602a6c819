package query

import (
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func sha(s string) string {
	sum := sha1.Sum([]byte(s))
	return hex.EncodeToString(sum[:])
}

func decode(t *testing.T, s string) map[string]any {
	t.Helper()
	dec := json.NewDecoder(strings.NewReader(s))
	dec.UseNumber()
	var out map[string]any
	require.NoError(t, dec.Decode(&out))
	return out
}

func TestNew_Defaults(t *testing.T) {
	q, err := New(nil, "", nil)
	require.NoError(t, err)
	require.Equal(t, VersionCurrent, q.Version)
	require.Empty(t, q.Expression)
	require.NotNil(t, q.Resources)
	require.Equal(t, sha(""), q.Hash())
}

func TestNew_InvalidVersion(t *testing.T) {
	_, err := New(map[string]any{}, "v2.0.0", nil)
	require.Error(t, err)
	require.True(t, IsValidationError(err))
}

func TestQuery_HashDeterminism(t *testing.T) {
	first := decode(t, `{
		"search": "bird",
		"filters": {"and": [
			{"string_equals": {"fields": ["b", "a"], "value": "x"}},
			{"number_range": {"fields": ["age"], "less_than": 10, "greater_than": 5, "greater_than_inclusive": false}}
		]}
	}`)
	second := decode(t, `{
		"filters": {"and": [
			{"number_range": {"greater_than_inclusive": false, "greater_than": 5, "fields": ["age"], "less_than": 10}},
			{"string_equals": {"value": "x", "fields": ["a", "b"]}}
		]},
		"search": "bird"
	}`)

	q1, err := New(first, VersionCurrent, map[string]int64{"r1": 10, "r2": 20})
	require.NoError(t, err)
	q2, err := New(second, VersionCurrent, map[string]int64{"r2": 20, "r1": 10})
	require.NoError(t, err)

	expected := sha("search:bird" + "filters:and:[number_range:age;<=10>5|string_equals:a,b;x]")
	require.Equal(t, expected, q1.Hash())
	require.Equal(t, q1.Hash(), q2.Hash())
	require.Equal(t, q1.ResourceHash(), q2.ResourceHash())
	require.Equal(t, q1.RecordHash(), q2.RecordHash())
	require.Equal(t, sha(q1.Hash()+"|"+q1.ResourceHash()), q1.RecordHash())
}

func TestResourceHash(t *testing.T) {
	got := ResourceHash(map[string]int64{"b": 2, "a": 1})
	require.Equal(t, sha("('a', 1)|('b', 2)"), got)

	require.NotEqual(t, got, ResourceHash(map[string]int64{"a": 1, "b": 3}))
	require.Equal(t, sha(""), ResourceHash(nil))
}

func TestHashExpression_Terms(t *testing.T) {
	tests := []struct {
		name     string
		filters  string
		rendered string
	}{
		{
			name:     "string contains",
			filters:  `{"string_contains": {"fields": ["z", "y"], "value": "abc"}}`,
			rendered: "string_contains:y,z;abc",
		},
		{
			name:     "number equals keeps number text",
			filters:  `{"number_equals": {"fields": ["n"], "value": 1.50}}`,
			rendered: "number_equals:n;1.50",
		},
		{
			name:     "number range defaults to inclusive",
			filters:  `{"number_range": {"fields": ["n"], "greater_than": 3}}`,
			rendered: "number_range:n;>=3",
		},
		{
			name:     "exists on fields",
			filters:  `{"exists": {"fields": ["b", "a"]}}`,
			rendered: "exists:a,b",
		},
		{
			name:     "exists on geo",
			filters:  `{"exists": {"geo_field": true}}`,
			rendered: "geo_exists",
		},
		{
			name:     "geo point defaults",
			filters:  `{"geo_point": {"latitude": 51.5, "longitude": -0.12}}`,
			rendered: "geo_point:0m;51.5;-0.12",
		},
		{
			name:     "geo point radius",
			filters:  `{"geo_point": {"latitude": 1, "longitude": 2, "radius": 10, "radius_unit": "km"}}`,
			rendered: "geo_point:10km;1;2",
		},
		{
			name:     "geo named area",
			filters:  `{"geo_named_area": {"country": "Costa Rica"}}`,
			rendered: "geo_named_area:country;Costa Rica",
		},
		{
			name:     "geo custom area swaps points",
			filters:  `{"geo_custom_area": [[[[1, 2], [3, 4], [5, 6], [1, 2]]]]}`,
			rendered: "geo_custom_area:[2,1],[4,3],[6,5],[2,1]",
		},
		{
			name:     "geo custom area with sorted holes",
			filters:  `{"geo_custom_area": [[[[0, 0], [0, 9], [9, 9]], [[5, 5], [5, 6], [6, 6]], [[1, 1], [1, 2], [2, 2]]]]}`,
			rendered: "geo_custom_area:[0,0],[9,0],[9,9]/['[1,1],[2,1],[2,2]', '[5,5],[6,5],[6,6]']",
		},
		{
			name:     "nested groups are sorted",
			filters:  `{"or": [{"not": [{"exists": {"fields": ["x"]}}]}, {"and": [{"exists": {"fields": ["y"]}}]}]}`,
			rendered: "or:[and:[exists:y]|not:[exists:x]]",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q, err := New(map[string]any{"filters": decode(t, tt.filters)}, VersionCurrent, nil)
			require.NoError(t, err)
			require.Equal(t, sha("filters:"+tt.rendered), q.Hash())
		})
	}
}

func TestQuery_HashSurvivesJSONRoundTrip(t *testing.T) {
	q, err := New(decode(t, `{"filters": {"number_equals": {"fields": ["n"], "value": 2.50}}}`), VersionCurrent, nil)
	require.NoError(t, err)

	data, err := json.Marshal(q.Expression)
	require.NoError(t, err)

	again, err := New(decode(t, string(data)), VersionCurrent, nil)
	require.NoError(t, err)
	require.Equal(t, q.Hash(), again.Hash())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		query   string
		wantErr bool
	}{
		{name: "empty", query: `{}`},
		{name: "search only", query: `{"search": "frogs"}`},
		{name: "valid group", query: `{"filters": {"and": [{"string_equals": {"fields": ["a"], "value": "b"}}]}}`},
		{name: "search not a string", query: `{"search": 12}`, wantErr: true},
		{name: "unknown top level key", query: `{"sort": "a"}`, wantErr: true},
		{name: "unknown term", query: `{"filters": {"fuzzy": {"fields": ["a"]}}}`, wantErr: true},
		{name: "two keys in term", query: `{"filters": {"and": [], "or": []}}`, wantErr: true},
		{name: "missing value", query: `{"filters": {"string_equals": {"fields": ["a"]}}}`, wantErr: true},
		{name: "empty fields", query: `{"filters": {"string_equals": {"fields": [], "value": "a"}}}`, wantErr: true},
		{name: "number as string", query: `{"filters": {"number_equals": {"fields": ["a"], "value": "1"}}}`, wantErr: true},
		{name: "range without bounds", query: `{"filters": {"number_range": {"fields": ["a"]}}}`, wantErr: true},
		{name: "latitude out of range", query: `{"filters": {"geo_point": {"latitude": 91, "longitude": 0}}}`, wantErr: true},
		{name: "bad radius unit", query: `{"filters": {"geo_point": {"latitude": 1, "longitude": 0, "radius_unit": "parsec"}}}`, wantErr: true},
		{name: "unknown named area", query: `{"filters": {"geo_named_area": {"planet": "Mars"}}}`, wantErr: true},
		{name: "polygon too small", query: `{"filters": {"geo_custom_area": [[[[1, 2], [3, 4]]]]}}`, wantErr: true},
		{name: "extra term option", query: `{"filters": {"exists": {"fields": ["a"], "boost": 2}}}`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(decode(t, tt.query), VersionCurrent, nil)
			if tt.wantErr {
				require.Error(t, err)
				require.True(t, IsValidationError(err))
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestNormalise_RemovesEmptyGroups(t *testing.T) {
	q, err := New(decode(t, `{"filters": {"and": [{"or": []}, {"exists": {"fields": ["a"]}}]}}`), VersionCurrent, nil)
	require.NoError(t, err)
	require.Equal(t, sha("filters:and:[exists:a]"), q.Hash())

	empty, err := New(decode(t, `{"search": "x", "filters": {"and": [{"not": []}]}}`), VersionCurrent, nil)
	require.NoError(t, err)
	_, hasFilters := empty.Expression["filters"]
	require.False(t, hasFilters)
}

func TestTranslateBasic(t *testing.T) {
	tests := []struct {
		name     string
		basic    string
		expected string
	}{
		{
			name:     "string q",
			basic:    `{"q": "banana"}`,
			expected: `{"search": "banana"}`,
		},
		{
			name:  "map q",
			basic: `{"q": {"": "free", "genus": "Mus"}}`,
			expected: `{"search": "free", "filters": {"and": [
				{"string_contains": {"fields": ["genus"], "value": "Mus"}}
			]}}`,
		},
		{
			name:  "filters with multiple values",
			basic: `{"filters": {"colour": ["red", "blue"], "size": "large", "empty": ""}}`,
			expected: `{"filters": {"and": [
				{"or": [
					{"string_equals": {"fields": ["colour"], "value": "red"}},
					{"string_equals": {"fields": ["colour"], "value": "blue"}}
				]},
				{"string_equals": {"fields": ["size"], "value": "large"}}
			]}}`,
		},
		{
			name:  "geo point",
			basic: `{"filters": {"__geo__": {"type": "Point", "distance": "10km", "coordinates": [-0.12, 51.5]}}}`,
			expected: `{"filters": {"and": [
				{"geo_point": {"latitude": 51.5, "longitude": -0.12, "radius": 10, "radius_unit": "km"}}
			]}}`,
		},
		{
			name:  "geo polygon as json string",
			basic: `{"filters": {"__geo__": "{\"type\": \"Polygon\", \"coordinates\": [[[1, 2], [3, 4], [5, 6]]]}"}}`,
			expected: `{"filters": {"and": [
				{"geo_custom_area": [[[[1, 2], [3, 4], [5, 6]]]]}
			]}}`,
		},
		{
			name:  "geo multipolygon",
			basic: `{"filters": {"__geo__": [{"type": "MultiPolygon", "coordinates": [[[[1, 2], [3, 4], [5, 6]]]]}]}}`,
			expected: `{"filters": {"and": [
				{"geo_custom_area": [[[[1, 2], [3, 4], [5, 6]]]]}
			]}}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			translated, err := TranslateBasic(decode(t, tt.basic))
			require.NoError(t, err)

			got, err := json.Marshal(translated)
			require.NoError(t, err)
			require.JSONEq(t, tt.expected, string(got))
		})
	}
}

func TestTranslateBasic_GeoErrors(t *testing.T) {
	tests := []struct {
		name  string
		basic string
	}{
		{name: "not json", basic: `{"filters": {"__geo__": "{nope"}}`},
		{name: "unknown type", basic: `{"filters": {"__geo__": {"type": "Box", "coordinates": []}}}`},
		{name: "missing distance", basic: `{"filters": {"__geo__": {"type": "Point", "coordinates": [1, 2]}}}`},
		{name: "bad distance", basic: `{"filters": {"__geo__": {"type": "Point", "distance": "far", "coordinates": [1, 2]}}}`},
		{name: "missing coordinates", basic: `{"filters": {"__geo__": {"type": "Polygon"}}}`},
		{name: "too few points", basic: `{"filters": {"__geo__": {"type": "Polygon", "coordinates": [[[1, 2], [3, 4]]]}}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := TranslateBasic(decode(t, tt.basic))
			require.Error(t, err)
			require.True(t, IsValidationError(err))
		})
	}
}

func TestNew_TranslatesBasicQueries(t *testing.T) {
	q, err := New(decode(t, `{"q": "banana", "filters": {"colour": "yellow"}}`), VersionBasic, nil)
	require.NoError(t, err)
	require.Equal(t, VersionCurrent, q.Version)
	require.Equal(t, "banana", q.Expression["search"])
	require.Equal(t, sha("search:banana"+"filters:and:[string_equals:colour;yellow]"), q.Hash())
}

package transforms

import (
	"testing"

	"github.com/stretchr/testify/require"

	"datastore-downloader/internal/datastore"
	"datastore-downloader/internal/query"
)

var testEnv = Env{SiteURL: "https://data.example.org", RecordViewPath: "/object/{uuid}"}

func TestBuild(t *testing.T) {
	tests := []struct {
		name    string
		config  map[string]any
		want    int
		wantErr bool
	}{
		{name: "no transforms", config: nil, want: 0},
		{name: "id as url", config: map[string]any{"id_as_url": map[string]any{"field": "occurrenceID"}}, want: 1},
		{name: "id as url with defaults", config: map[string]any{"id_as_url": map[string]any{}}, want: 1},
		{name: "unknown transform", config: map[string]any{"uppercase": map[string]any{}}, wantErr: true},
		{name: "arguments must be an object", config: map[string]any{"id_as_url": "id"}, wantErr: true},
		{name: "mistyped arguments", config: map[string]any{"id_as_url": map[string]any{"field": 3}}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Build(tt.config, testEnv)
			if tt.wantErr {
				require.True(t, query.IsValidationError(err))
				return
			}
			require.NoError(t, err)
			require.Len(t, got, tt.want)
		})
	}
}

func TestIDAsURL(t *testing.T) {
	ts, err := Build(map[string]any{"id_as_url": map[string]any{}}, testEnv)
	require.NoError(t, err)

	record := datastore.Record{"id": "abc-123", "name": "moth"}
	got := Apply(ts, record)
	require.Equal(t, datastore.Record{"id": "https://data.example.org/object/abc-123", "name": "moth"}, got)
	require.Equal(t, "abc-123", record["id"])
}

func TestIDAsURL_MissingID(t *testing.T) {
	ts, err := Build(map[string]any{"id_as_url": map[string]any{"field": "guid"}}, testEnv)
	require.NoError(t, err)

	for _, record := range []datastore.Record{{"name": "moth"}, {"guid": ""}, {"guid": nil}} {
		require.Equal(t, record, Apply(ts, record))
	}
}

func TestNames(t *testing.T) {
	require.Equal(t, []string{"id_as_url"}, Names())
}

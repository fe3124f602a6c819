package derivatives

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"datastore-downloader/internal/datastore"
)

func TestJSONWriter(t *testing.T) {
	tests := []struct {
		name       string
		resourceID string
		records    []datastore.Record
		want       string
	}{
		{
			name:       "empty array",
			resourceID: "res",
			want:       "[\n]",
		},
		{
			name:       "records are indented and comma separated",
			resourceID: "res",
			records: []datastore.Record{
				{"_id": "1", "where": map[string]any{"country": "UK"}},
				{"_id": "2", "html": "<b>&</b>"},
			},
			want: "[\n" +
				"  {\n    \"_id\": \"1\",\n    \"where\": {\n      \"country\": \"UK\"\n    }\n  },\n" +
				"  {\n    \"_id\": \"2\",\n    \"html\": \"<b>&</b>\"\n  }\n" +
				"]",
		},
		{
			name:    "shared files tag the resource",
			records: []datastore.Record{{"_id": "1"}},
			want:    "[\n  {\n    \"Source resource ID\": \"res\",\n    \"_id\": \"1\"\n  }\n]",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			w, err := New(context.Background(), Spec{Dir: dir, ResourceID: tt.resourceID, Options: Options{Format: FormatJSON}})
			require.NoError(t, err)
			require.NoError(t, w.Open())
			for _, record := range tt.records {
				require.NoError(t, w.Write("res", record))
			}
			require.NoError(t, w.Close())

			content := readFile(t, dir, w.Files()[0])
			require.Equal(t, tt.want, content)
			var decoded []map[string]any
			require.NoError(t, json.Unmarshal([]byte(content), &decoded))
			require.Len(t, decoded, len(tt.records))
		})
	}
}

func TestJSONWriter_DoesNotModifyRecord(t *testing.T) {
	w, err := New(context.Background(), Spec{Dir: t.TempDir(), Options: Options{Format: FormatJSON}})
	require.NoError(t, err)
	require.NoError(t, w.Open())

	record := datastore.Record{"_id": "1"}
	require.NoError(t, w.Write("res", record))
	require.NoError(t, w.Close())
	require.Equal(t, datastore.Record{"_id": "1"}, record)
}

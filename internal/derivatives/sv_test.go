package derivatives

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"datastore-downloader/internal/datastore"
)

func TestSVWriter(t *testing.T) {
	tests := []struct {
		name    string
		format  Format
		fields  []string
		records []datastore.Record
		want    string
	}{
		{
			name:    "nested and list values are flattened",
			format:  FormatCSV,
			fields:  []string{"_id", "tags", "where.country", "count"},
			records: []datastore.Record{{"_id": "1", "tags": []any{"a", "b"}, "where": map[string]any{"country": "UK"}, "count": json.Number("3")}},
			want:    "_id,tags,where.country,count\n1,a | b,UK,3\n",
		},
		{
			name:    "values needing quotes",
			format:  FormatCSV,
			fields:  []string{"_id", "notes"},
			records: []datastore.Record{{"_id": "1", "notes": "big, \"red\""}},
			want:    "_id,notes\n1,\"big, \"\"red\"\"\"\n",
		},
		{
			name:    "undeclared empty values are skipped",
			format:  FormatCSV,
			fields:  []string{"_id"},
			records: []datastore.Record{{"_id": "1", "gone": nil}},
			want:    "_id\n1\n",
		},
		{
			name:    "tab separated",
			format:  FormatTSV,
			fields:  []string{"_id", "name"},
			records: []datastore.Record{{"_id": "1", "name": "moth"}, {"_id": "2", "name": true}},
			want:    "_id\tname\n1\tmoth\n2\ttrue\n",
		},
		{
			name:   "header only",
			format: FormatTSV,
			fields: []string{"_id", "name"},
			want:   "_id\tname\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			w, err := New(context.Background(), Spec{Dir: dir, Fields: tt.fields, ResourceID: "res", Options: Options{Format: tt.format}})
			require.NoError(t, err)
			require.NoError(t, w.Open())
			for _, record := range tt.records {
				require.NoError(t, w.Write("res", record))
			}
			require.NoError(t, w.Close())
			require.Equal(t, tt.want, readFile(t, dir, w.Files()[0]))
		})
	}
}

func TestSVWriter_UnexpectedField(t *testing.T) {
	w, err := New(context.Background(), Spec{Dir: t.TempDir(), Fields: []string{"_id"}, ResourceID: "res", Options: Options{Format: FormatCSV}})
	require.NoError(t, err)
	require.NoError(t, w.Open())
	defer w.Close()

	err = w.Write("res", datastore.Record{"_id": "1", "surprise": "x"})
	require.ErrorIs(t, err, ErrUnexpectedField)
	require.ErrorContains(t, err, "surprise")
}

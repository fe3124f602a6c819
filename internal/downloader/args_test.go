package downloader

import (
	"testing"

	"github.com/stretchr/testify/require"

	"datastore-downloader/pkg/models"
)

func TestDerivativeArgs_OptionsHash(t *testing.T) {
	base := DerivativeArgs{Format: "csv"}
	hash, err := base.OptionsHash()
	require.NoError(t, err)

	tests := []struct {
		name string
		args DerivativeArgs
		same bool
	}{
		{name: "empty maps", args: DerivativeArgs{Format: "csv", FormatArgs: map[string]any{}, Transform: map[string]any{}}, same: true},
		{name: "format case", args: DerivativeArgs{Format: " CSV "}, same: true},
		{name: "other format", args: DerivativeArgs{Format: "tsv"}},
		{name: "separate files", args: DerivativeArgs{Format: "csv", SeparateFiles: true}},
		{name: "ignore empty fields", args: DerivativeArgs{Format: "csv", IgnoreEmptyFields: true}},
		{name: "transform", args: DerivativeArgs{Format: "csv", Transform: map[string]any{"id_as_url": map[string]any{}}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.args.OptionsHash()
			require.NoError(t, err)
			if tt.same {
				require.Equal(t, hash, got)
			} else {
				require.NotEqual(t, hash, got)
			}
		})
	}
}

func TestDownloadHash(t *testing.T) {
	require.Equal(t, DownloadHash("records", "options"), DownloadHash("records", "options"))
	require.NotEqual(t, DownloadHash("records", "options"), DownloadHash("records", "other"))
	require.NotEqual(t, DownloadHash("records", "options"), DownloadHash("other", "options"))
	require.Len(t, DownloadHash("a", "b"), 40)
}

func TestDerivativeArgsOf(t *testing.T) {
	args := DerivativeArgs{
		Format:        "dwc",
		FormatArgs:    map[string]any{"id_field": "catalogNumber"},
		SeparateFiles: true,
		Transform:     map[string]any{"id_as_url": map[string]any{"field": "guid"}},
	}
	record := &models.DerivativeFileRecord{Format: "dwc", Options: args.options()}

	got, err := derivativeArgsOf(record)
	require.NoError(t, err)
	require.Equal(t, args.normalise(), got)

	before, err := args.OptionsHash()
	require.NoError(t, err)
	after, err := got.OptionsHash()
	require.NoError(t, err)
	require.Equal(t, before, after)
}

func TestDerivativeArgsOf_EmptyOptions(t *testing.T) {
	got, err := derivativeArgsOf(&models.DerivativeFileRecord{Format: "json"})
	require.NoError(t, err)
	require.Equal(t, "json", got.Format)
	require.NotNil(t, got.FormatArgs)
	require.NotNil(t, got.Transform)
	require.False(t, got.SeparateFiles)
}

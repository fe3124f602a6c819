package handlers

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIsArchiveName(t *testing.T) {
	tests := []struct {
		name string
		want bool
	}{
		{name: "0a1b2c.zip", want: true},
		{name: "my-download.zip", want: true},
		{name: "", want: false},
		{name: "data.csv", want: false},
		{name: ".hidden.zip", want: false},
		{name: "../secret.zip", want: false},
		{name: "nested/archive.zip", want: false},
		{name: `quote".zip`, want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, isArchiveName(tt.name))
		})
	}
}

func TestStatusURL(t *testing.T) {
	h := NewHandlers(nil, nil, nil, nil, Options{SiteURL: "https://data.example.org/"})
	require.Equal(t, "https://data.example.org/downloads/abc/status", h.StatusURL("abc"))
}

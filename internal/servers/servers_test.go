package servers

import (
	"testing"

	"github.com/stretchr/testify/require"

	"datastore-downloader/internal/query"
	"datastore-downloader/pkg/models"
)

func TestDirect_Serve(t *testing.T) {
	server, err := New("direct", nil, "https://data.example.org")
	require.NoError(t, err)

	derivative := &models.DerivativeFileRecord{Filepath: "/downloads/0a1b2c.zip"}

	url := server.Serve(&models.DownloadRequest{}, derivative)
	require.Equal(t, "https://data.example.org/downloads/direct/0a1b2c.zip", url)

	custom := &models.DownloadRequest{ServerArgs: models.ServerArgs{CustomFilename: "all-birds"}}
	require.Equal(t, "https://data.example.org/downloads/custom/all-birds.zip", server.Serve(custom, derivative))
}

func TestNew(t *testing.T) {
	server, err := New("", nil, "")
	require.NoError(t, err)
	require.IsType(t, &Direct{}, server)

	_, err = New("ftp", nil, "")
	require.True(t, query.IsValidationError(err))
}

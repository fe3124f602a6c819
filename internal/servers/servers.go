// Package servers works out where a finished download can be fetched from
package servers

import (
	"path/filepath"

	"datastore-downloader/internal/query"
	"datastore-downloader/pkg/models"
)

const (
	// DirectPath is the URL path finished archives are served under
	DirectPath = "/downloads/direct/"
	// CustomPath is the URL path custom filename links are served under
	CustomPath = "/downloads/custom/"
)

// Server returns the URL of a finished download
type Server interface {
	Serve(request *models.DownloadRequest, derivative *models.DerivativeFileRecord) string
}

type constructor func(siteURL string, args map[string]any) (Server, error)

var registry = map[string]constructor{
	"direct": func(siteURL string, _ map[string]any) (Server, error) {
		return &Direct{siteURL: siteURL}, nil
	},
}

// New builds the server registered under name
func New(name string, args map[string]any, siteURL string) (Server, error) {
	if name == "" {
		name = "direct"
	}
	c, ok := registry[name]
	if !ok {
		return nil, query.Invalidf("unknown server type: %s", name)
	}
	return c(siteURL, args)
}

// Direct serves archives straight from the download directory
type Direct struct {
	siteURL string
}

// Serve links to the custom filename when one was requested, and to the archive itself
// otherwise
func (d *Direct) Serve(request *models.DownloadRequest, derivative *models.DerivativeFileRecord) string {
	if request.ServerArgs.CustomFilename != "" {
		return d.siteURL + CustomPath + request.ServerArgs.CustomFilename + ".zip"
	}
	return d.siteURL + DirectPath + filepath.Base(derivative.Filepath)
}

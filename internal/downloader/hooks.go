package downloader

import (
	"datastore-downloader/internal/derivatives/dwc"
	"datastore-downloader/internal/hooks"
	"datastore-downloader/internal/query"
	"datastore-downloader/pkg/models"
)

// Manifest is the manifest.json document written into every archive
type Manifest map[string]any

// Hooks are the extension points of a download. Every chain may hold any number of
// functions, including none.
type Hooks struct {
	// BeforeRun may rewrite a request's arguments before anything is validated
	BeforeRun hooks.Chain[Args]
	// AfterInit sees the resolved query once the request has been created
	AfterInit hooks.Chain[*query.Query]
	// Manifest may amend the manifest before it is written
	Manifest hooks.Chain[Manifest]
	// EML may amend the metadata document of DarwinCore archives
	EML hooks.Chain[dwc.EML]
	// AfterRun sees the request once a run has finished or failed
	AfterRun hooks.Chain[models.DownloadRequest]
}

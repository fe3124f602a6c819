package downloader

import (
	"context"

	"datastore-downloader/internal/archive"
	"datastore-downloader/internal/core"
	"datastore-downloader/internal/query"
	"datastore-downloader/pkg/models"
)

// DatabaseInterface defines the database operations used by the download manager
//
//go:generate mockgen -source=interfaces.go -destination=mocks/mock_interfaces.go -package=mocks
type DatabaseInterface interface {
	// Core file records
	CreateCoreRecord(record *models.CoreFileRecord) error
	GetCoreRecord(id int64) (*models.CoreFileRecord, error)
	FindCoreRecord(queryHash, resourceHash string) (*models.CoreFileRecord, error)

	// Derivative file records
	CreateDerivativeRecord(record *models.DerivativeFileRecord) error
	GetDerivativeRecord(id int64) (*models.DerivativeFileRecord, error)
	GetDerivativeByHash(downloadHash string) (*models.DerivativeFileRecord, error)
	UpdateDerivativeRecord(record *models.DerivativeFileRecord) error

	// Download requests
	CreateRequest(request *models.DownloadRequest) error
	GetRequest(id string) (*models.DownloadRequest, error)
	UpdateRequest(request *models.DownloadRequest) error
	GetUnfinishedRequests() ([]*models.DownloadRequest, error)
}

// ResolverInterface turns request arguments into a canonical query
type ResolverInterface interface {
	Resolve(ctx context.Context, args query.Args) (*query.Query, error)
}

// GeneratorInterface writes the core files of a query
type GeneratorInterface interface {
	Generate(ctx context.Context, q *query.Query, record *models.CoreFileRecord, progress core.Progress) error
	Path(queryHash, resourceID string, version int64) string
}

// ArchiverInterface writes and checks zip archives
type ArchiverInterface interface {
	Create(dest string, entries []archive.Entry) error
	Valid(path string) bool
}

// RunnerInterface runs one download request to completion
type RunnerInterface interface {
	Run(ctx context.Context, requestID string) error
}

// Package models defines the data structures used throughout the application
package models

import (
	"time"
)

// RequestState represents the current state of a download request
type RequestState string

const (
	StateInitiated     RequestState = "initiated"
	StateCoreGen       RequestState = "gen_core"
	StateDerivativeGen RequestState = "gen_derivative"
	StateZipping       RequestState = "zipping"
	StateComplete      RequestState = "complete"
	StateFailed        RequestState = "failed"
)

// IsTerminal reports whether no further transitions can happen from the state
func (s RequestState) IsTerminal() bool {
	return s == StateComplete || s == StateFailed
}

// NotVersioned marks a resource that is not backed by the versioned store, such as
// an uploaded file with no datastore index
const NotVersioned int64 = -1

// CoreFileRecord is a cached, format independent snapshot of the records matching a query
type CoreFileRecord struct {
	ID               int64                     `json:"id" db:"id"`
	QueryHash        string                    `json:"query_hash" db:"query_hash"`
	Query            map[string]any            `json:"query" db:"query"`
	QueryVersion     string                    `json:"query_version" db:"query_version"`
	ResourceVersions map[string]int64          `json:"resource_ids_and_versions" db:"resource_ids_and_versions"`
	ResourceHash     string                    `json:"resource_hash" db:"resource_hash"`
	Total            int64                     `json:"total" db:"total"`
	ResourceTotals   map[string]int64          `json:"resource_totals" db:"resource_totals"`
	FieldCounts      map[string]map[string]int `json:"field_counts" db:"field_counts"`
	Modified         time.Time                 `json:"modified" db:"modified"`
}

// Generated reports whether the record documents the resource as already written
func (c *CoreFileRecord) Generated(resourceID string) bool {
	_, ok := c.ResourceTotals[resourceID]
	return ok
}

// DerivativeFileRecord is a cached, finished output package for one format and option set
type DerivativeFileRecord struct {
	ID           int64          `json:"id" db:"id"`
	CoreID       int64          `json:"core_id" db:"core_id"`
	DownloadHash string         `json:"download_hash" db:"download_hash"`
	Created      time.Time      `json:"created" db:"created"`
	Format       string         `json:"format" db:"format"`
	Options      map[string]any `json:"options" db:"options"`
	Filepath     string         `json:"filepath" db:"filepath"`
}

// DownloadRequest is one user-visible invocation of the download pipeline
type DownloadRequest struct {
	ID           string       `json:"id" db:"id"`
	CoreID       int64        `json:"core_id" db:"core_id"`
	DerivativeID int64        `json:"derivative_id" db:"derivative_id"`
	State        RequestState `json:"state" db:"state"`
	Message      string       `json:"message" db:"message"`
	ServerArgs   ServerArgs   `json:"server_args" db:"server_args"`
	NotifierArgs NotifierArgs `json:"notifier_args" db:"notifier_args"`
	CreatedAt    time.Time    `json:"created_at" db:"created_at"`
	ModifiedAt   time.Time    `json:"modified_at" db:"modified_at"`
}

// ServerArgs selects how a finished download is served
type ServerArgs struct {
	Type           string         `json:"type"`
	TypeArgs       map[string]any `json:"type_args,omitempty"`
	CustomFilename string         `json:"custom_filename,omitempty"`
}

// NotifierArgs selects who is told about a download's progress
type NotifierArgs struct {
	Type     string         `json:"type"`
	TypeArgs map[string]any `json:"type_args,omitempty"`
}

// SavedQuery is a query stored under a memorable slug
type SavedQuery struct {
	ID               int64            `json:"id" db:"id"`
	Slug             string           `json:"slug" db:"slug"`
	Query            map[string]any   `json:"query" db:"query"`
	QueryVersion     string           `json:"query_version" db:"query_version"`
	ResourceIDs      []string         `json:"resource_ids" db:"resource_ids"`
	ResourceVersions map[string]int64 `json:"resource_ids_and_versions" db:"resource_ids_and_versions"`
	RecordHash       string           `json:"record_hash" db:"record_hash"`
	CreatedAt        time.Time        `json:"created_at" db:"created_at"`
}

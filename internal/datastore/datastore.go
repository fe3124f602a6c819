// Package datastore provides access to the versioned record store and the resource catalog
package datastore

import (
	"context"
	"errors"
	"fmt"
)

// ErrNotFound is returned when a resource or package does not exist
var ErrNotFound = errors.New("not found")

// IDField is the record identifier present in every record
const IDField = "_id"

// Record is one schema-less record as stored in a resource
type Record map[string]any

// ID returns the record identifier or "" when the record has none
func (r Record) ID() string {
	switch v := r[IDField].(type) {
	case string:
		return v
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

// FieldTypes flags every type observed for a field
type FieldTypes struct {
	String bool `json:"string"`
	Int    bool `json:"int"`
	Float  bool `json:"float"`
	Bool   bool `json:"bool"`
	List   bool `json:"list"`
	Dict   bool `json:"dict"`
}

// FieldInfo describes one field path observed in a resource at a version. Nested fields
// use dot joined paths and list elements are counted individually.
type FieldInfo struct {
	Path   string     `json:"path"`
	Types  FieldTypes `json:"types"`
	Count  int        `json:"count"`
	IsRoot bool       `json:"is_root"`
}

// Store is the versioned record store
type Store interface {
	// Scan streams every record of the resource at the version that matches the filter
	// expression, in the store's stable order, stopping at the first error fn returns.
	Scan(ctx context.Context, resourceID string, version int64, filter map[string]any, fn func(Record) error) error
	// FieldSchema describes the fields of the records matching the filter expression
	FieldSchema(ctx context.Context, resourceID string, version int64, filter map[string]any) ([]FieldInfo, error)
	// RoundedVersion rounds target down to the newest committed version of the resource
	RoundedVersion(ctx context.Context, resourceID string, target int64) (int64, bool, error)
}

// Resource is a catalog entry for one dataset table or uploaded file
type Resource struct {
	ID              string `json:"id"`
	PackageID       string `json:"package_id"`
	Name            string `json:"name"`
	Description     string `json:"description"`
	URL             string `json:"url"`
	URLType         string `json:"url_type"`
	Format          string `json:"format"`
	DatastoreActive bool   `json:"datastore_active"`
}

// IsUpload reports whether the resource's file was uploaded to the portal's storage
func (r *Resource) IsUpload() bool {
	return r.URLType == "upload"
}

// Package is a catalog dataset grouping resources
type Package struct {
	ID           string     `json:"id"`
	Name         string     `json:"name"`
	Title        string     `json:"title"`
	Notes        string     `json:"notes"`
	Author       string     `json:"author"`
	LicenseID    string     `json:"license_id"`
	LicenseTitle string     `json:"license_title"`
	LicenseURL   string     `json:"license_url"`
	DOI          string     `json:"doi"`
	Created      string     `json:"metadata_created"`
	Modified     string     `json:"metadata_modified"`
	Resources    []Resource `json:"resources"`
}

// Year returns the year the package was created, or "" when unknown
func (p *Package) Year() string {
	if len(p.Created) < 4 {
		return ""
	}
	return p.Created[:4]
}

// Catalog looks up resource and package metadata
type Catalog interface {
	Resource(ctx context.Context, id string) (*Resource, error)
	Package(ctx context.Context, id string) (*Package, error)
}

// Agent is a person or organisation credited on a package
type Agent struct {
	ID            string `json:"id"`
	AgentType     string `json:"agent_type"`
	Name          string `json:"name"`
	GivenNames    string `json:"given_names"`
	FamilyName    string `json:"family_name"`
	ExternalID    string `json:"external_id"`
	ExternalIDURL string `json:"external_id_url"`
}

// IsPerson reports whether the agent is an individual
func (a Agent) IsPerson() bool {
	return a.AgentType == "person"
}

// Contribution credits an agent on a package
type Contribution struct {
	Agent Agent `json:"agent"`
}

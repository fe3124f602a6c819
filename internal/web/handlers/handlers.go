// Package handlers provides the HTTP handlers of the download API and pages
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"datastore-downloader/internal/database"
	"datastore-downloader/internal/downloader"
	"datastore-downloader/internal/query"
	"datastore-downloader/internal/servers"
	"datastore-downloader/internal/web/templates"
	"datastore-downloader/pkg/models"
)

// maxBodySize caps the JSON bodies accepted by the API
const maxBodySize = 1 << 20

const (
	defaultPageSize = 50
	maxPageSize     = 500
)

// Store reads the records behind a download request
type Store interface {
	GetRequest(id string) (*models.DownloadRequest, error)
	GetCoreRecord(id int64) (*models.CoreFileRecord, error)
	GetDerivativeRecord(id int64) (*models.DerivativeFileRecord, error)
	GetRequestStats() (map[string]int, error)
	ListRequests(limit, offset int) ([]*models.DownloadRequest, error)
}

// Manager creates download requests
type Manager interface {
	New(ctx context.Context, args downloader.Args) (*models.DownloadRequest, error)
}

// Queue runs download requests in the background
type Queue interface {
	QueueRequest(requestID string) error
	Current() string
	Pending() int
}

// Queries saves and resolves query slugs
type Queries interface {
	SaveQuery(ctx context.Context, args query.Args) (*models.SavedQuery, error)
	ResolveSlug(slug string) (*models.SavedQuery, error)
}

// Options are the site settings the handlers need
type Options struct {
	SiteTitle   string
	SiteURL     string
	DownloadDir string
	CustomDir   string
}

// Handlers contains all HTTP handlers and their dependencies
type Handlers struct {
	db      Store
	manager Manager
	queue   Queue
	queries Queries
	opts    Options
	logger  *slog.Logger
}

// NewHandlers creates a new handlers instance
func NewHandlers(db Store, manager Manager, queue Queue, queries Queries, opts Options) *Handlers {
	return &Handlers{
		db:      db,
		manager: manager,
		queue:   queue,
		queries: queries,
		opts:    opts,
		logger:  slog.Default(),
	}
}

// DownloadStatus is the API view of a download request
type DownloadStatus struct {
	ID           string              `json:"id"`
	State        models.RequestState `json:"state"`
	Message      string              `json:"message,omitempty"`
	Format       string              `json:"format,omitempty"`
	TotalRecords int64               `json:"total_records"`
	URL          string              `json:"url,omitempty"`
	StatusURL    string              `json:"status_url"`
	CreatedAt    time.Time           `json:"created_at"`
	ModifiedAt   time.Time           `json:"modified_at"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// StatusURL is the status page of a request
func (h *Handlers) StatusURL(requestID string) string {
	return strings.TrimRight(h.opts.SiteURL, "/") + "/downloads/" + requestID + "/status"
}

// CreateDownload validates a download request, stores it and queues it
func (h *Handlers) CreateDownload(w http.ResponseWriter, r *http.Request) {
	var args downloader.Args
	if err := decodeBody(r, &args); err != nil {
		h.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body: " + err.Error()})
		return
	}

	request, err := h.manager.New(r.Context(), args)
	if err != nil {
		if errors.Is(err, downloader.ErrInvalidRequest) || query.IsValidationError(err) {
			h.writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
			return
		}
		h.logger.Error("Failed to create download request", "error", err)
		h.writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "failed to create download"})
		return
	}

	status := DownloadStatus{
		ID:         request.ID,
		State:      request.State,
		StatusURL:  h.StatusURL(request.ID),
		CreatedAt:  request.CreatedAt,
		ModifiedAt: request.ModifiedAt,
	}
	if err := h.queue.QueueRequest(request.ID); err != nil {
		// the request is stored so it will run when the worker next starts
		h.logger.Warn("Download request stored but not queued", "request_id", request.ID, "error", err)
		h.writeJSON(w, http.StatusServiceUnavailable, status)
		return
	}
	h.writeJSON(w, http.StatusAccepted, status)
}

// GetDownload returns the status of a download request
func (h *Handlers) GetDownload(w http.ResponseWriter, r *http.Request) {
	status, err := h.status(chi.URLParam(r, "id"))
	if errors.Is(err, database.ErrNotFound) {
		h.writeJSON(w, http.StatusNotFound, errorResponse{Error: "download not found"})
		return
	}
	if err != nil {
		h.logger.Error("Failed to get download status", "error", err)
		h.writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "failed to get download"})
		return
	}
	h.writeJSON(w, http.StatusOK, status)
}

// StatusPage renders the HTML status page of a download request
func (h *Handlers) StatusPage(w http.ResponseWriter, r *http.Request) {
	status, err := h.status(chi.URLParam(r, "id"))
	if errors.Is(err, database.ErrNotFound) {
		http.NotFound(w, r)
		return
	}
	if err != nil {
		h.logger.Error("Failed to get download status", "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	view := templates.StatusView{
		ID:           status.ID,
		State:        status.State,
		Message:      status.Message,
		Format:       status.Format,
		TotalRecords: status.TotalRecords,
		URL:          status.URL,
		Created:      status.CreatedAt,
		Modified:     status.ModifiedAt,
	}
	component := templates.Base(h.opts.SiteTitle+": download "+status.ID, templates.Status(view))
	if err := component.Render(r.Context(), w); err != nil {
		h.logger.Error("Failed to render status template", "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}

func (h *Handlers) status(requestID string) (*DownloadStatus, error) {
	request, err := h.db.GetRequest(requestID)
	if err != nil {
		return nil, err
	}
	status := &DownloadStatus{
		ID:         request.ID,
		State:      request.State,
		Message:    request.Message,
		StatusURL:  h.StatusURL(request.ID),
		CreatedAt:  request.CreatedAt,
		ModifiedAt: request.ModifiedAt,
	}

	if request.CoreID != 0 {
		coreRecord, err := h.db.GetCoreRecord(request.CoreID)
		if err != nil {
			return nil, err
		}
		status.TotalRecords = coreRecord.Total
	}
	if request.DerivativeID != 0 {
		derivative, err := h.db.GetDerivativeRecord(request.DerivativeID)
		if err != nil {
			return nil, err
		}
		status.Format = derivative.Format
		if request.State == models.StateComplete && derivative.Filepath != "" {
			server, err := servers.New(request.ServerArgs.Type, request.ServerArgs.TypeArgs, h.opts.SiteURL)
			if err != nil {
				return nil, err
			}
			status.URL = server.Serve(request, derivative)
		}
	}
	return status, nil
}

// ListDownloads returns a page of download requests, newest first
func (h *Handlers) ListDownloads(w http.ResponseWriter, r *http.Request) {
	limit, err := intParam(r, "limit", defaultPageSize)
	if err != nil || limit <= 0 || limit > maxPageSize {
		h.writeJSON(w, http.StatusBadRequest, errorResponse{Error: fmt.Sprintf("limit must be between 1 and %d", maxPageSize)})
		return
	}
	offset, err := intParam(r, "offset", 0)
	if err != nil || offset < 0 {
		h.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "offset must not be negative"})
		return
	}

	requests, err := h.db.ListRequests(limit, offset)
	if err != nil {
		h.logger.Error("Failed to list download requests", "error", err)
		h.writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "failed to list downloads"})
		return
	}

	statuses := make([]DownloadStatus, 0, len(requests))
	for _, request := range requests {
		statuses = append(statuses, DownloadStatus{
			ID:         request.ID,
			State:      request.State,
			Message:    request.Message,
			StatusURL:  h.StatusURL(request.ID),
			CreatedAt:  request.CreatedAt,
			ModifiedAt: request.ModifiedAt,
		})
	}
	h.writeJSON(w, http.StatusOK, statuses)
}

func intParam(r *http.Request, name string, fallback int) (int, error) {
	value := r.URL.Query().Get(name)
	if value == "" {
		return fallback, nil
	}
	return strconv.Atoi(value)
}

// GetStats returns request counts by state and the worker's queue
func (h *Handlers) GetStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.db.GetRequestStats()
	if err != nil {
		h.logger.Error("Failed to get request stats", "error", err)
		h.writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "failed to get stats"})
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"requests": stats,
		"current":  h.queue.Current(),
		"pending":  h.queue.Pending(),
	})
}

// SaveQuery stores a query under a slug
func (h *Handlers) SaveQuery(w http.ResponseWriter, r *http.Request) {
	var args query.Args
	if err := decodeBody(r, &args); err != nil {
		h.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body: " + err.Error()})
		return
	}

	saved, err := h.queries.SaveQuery(r.Context(), args)
	if err != nil {
		if query.IsValidationError(err) {
			h.writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
			return
		}
		h.logger.Error("Failed to save query", "error", err)
		h.writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "failed to save query"})
		return
	}
	h.writeJSON(w, http.StatusCreated, saved)
}

// ResolveQuery returns the query saved under a slug
func (h *Handlers) ResolveQuery(w http.ResponseWriter, r *http.Request) {
	saved, err := h.queries.ResolveSlug(chi.URLParam(r, "slug"))
	if errors.Is(err, database.ErrNotFound) {
		h.writeJSON(w, http.StatusNotFound, errorResponse{Error: "query not found"})
		return
	}
	if err != nil {
		h.logger.Error("Failed to resolve query", "error", err)
		h.writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "failed to resolve query"})
		return
	}
	h.writeJSON(w, http.StatusOK, saved)
}

// ServeDirect serves an archive from the download directory
func (h *Handlers) ServeDirect(w http.ResponseWriter, r *http.Request) {
	h.serveArchive(w, r, h.opts.DownloadDir)
}

// ServeCustom serves an archive through its custom filename
func (h *Handlers) ServeCustom(w http.ResponseWriter, r *http.Request) {
	h.serveArchive(w, r, h.opts.CustomDir)
}

func (h *Handlers) serveArchive(w http.ResponseWriter, r *http.Request, dir string) {
	name := chi.URLParam(r, "file")
	if !isArchiveName(name) {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", `attachment; filename="`+name+`"`)
	http.ServeFile(w, r, filepath.Join(dir, name))
}

// isArchiveName accepts plain zip file names only
func isArchiveName(name string) bool {
	return name != "" &&
		filepath.Base(name) == name &&
		!strings.HasPrefix(name, ".") &&
		!strings.ContainsAny(name, `/\"`) &&
		strings.HasSuffix(name, ".zip")
}

func decodeBody(r *http.Request, v any) error {
	decoder := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxBodySize))
	return decoder.Decode(v)
}

func (h *Handlers) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("Failed to encode response", "error", err)
	}
}

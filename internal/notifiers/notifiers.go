// Package notifiers tells people about the progress of their downloads
package notifiers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"datastore-downloader/internal/hooks"
	"datastore-downloader/internal/query"
	"datastore-downloader/pkg/models"
)

// Notifier is told when a download starts, finishes or fails
type Notifier interface {
	Start(ctx context.Context, request *models.DownloadRequest) error
	End(ctx context.Context, request *models.DownloadRequest, url string) error
	Error(ctx context.Context, request *models.DownloadRequest) error
}

// SMTP holds the mail server emails are sent through. An empty Host disables sending.
type SMTP struct {
	Host string
	Port int
	From string
}

// Env holds what notifiers need to know about the portal
type Env struct {
	SiteURL    string
	SiteTitle  string
	SMTP       SMTP
	HTTPClient *http.Client
	// StatusURL returns the status page of a request
	StatusURL func(requestID string) string
	// Context transforms the values messages are rendered from
	Context hooks.Chain[Message]
}

// Message is what notification texts are rendered from
type Message struct {
	SiteTitle   string
	SiteURL     string
	RequestID   string
	StatusURL   string
	DownloadURL string
	State       string
	Error       string
}

func (e Env) message(request *models.DownloadRequest, url string) Message {
	msg := Message{
		SiteTitle:   e.SiteTitle,
		SiteURL:     e.SiteURL,
		RequestID:   request.ID,
		DownloadURL: url,
		State:       string(request.State),
	}
	if e.StatusURL != nil {
		msg.StatusURL = e.StatusURL(request.ID)
	}
	if request.State == models.StateFailed {
		msg.Error = request.Message
	}
	return e.Context.Apply(msg)
}

func (e Env) httpClient() *http.Client {
	if e.HTTPClient != nil {
		return e.HTTPClient
	}
	return &http.Client{Timeout: 30 * time.Second}
}

type constructor func(env Env, args map[string]any) (Notifier, error)

var registry = map[string]constructor{
	"none":    newNone,
	"webhook": newWebhook,
	"email":   newEmail,
}

// New builds the notifier registered under name. Unknown names and bad arguments are
// validation errors.
func New(name string, args map[string]any, env Env) (Notifier, error) {
	if name == "" {
		name = "none"
	}
	c, ok := registry[name]
	if !ok {
		return nil, query.Invalidf("unknown notifier type: %s", name)
	}
	return c(env, args)
}

// decodeArgs decodes notifier arguments strictly into out
func decodeArgs(name string, args map[string]any, out any) error {
	if args == nil {
		args = map[string]any{}
	}
	data, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("failed to encode %s arguments: %w", name, err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return query.Invalidf("invalid %s notifier arguments: %v", name, err)
	}
	return nil
}

package notifiers

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"datastore-downloader/internal/query"
	"datastore-downloader/pkg/models"
)

type webhookArgs struct {
	URL       string `json:"url"`
	ParamName string `json:"param_name"`
	Post      bool   `json:"post"`
}

// Webhook calls a URL with the download link, or a status text before the link exists
type Webhook struct {
	env   Env
	url   string
	param string
	post  bool
}

func newWebhook(env Env, args map[string]any) (Notifier, error) {
	var parsed webhookArgs
	if err := decodeArgs("webhook", args, &parsed); err != nil {
		return nil, err
	}
	target, err := url.Parse(parsed.URL)
	if err != nil || parsed.URL == "" || (target.Scheme != "http" && target.Scheme != "https") {
		return nil, query.Invalidf("webhook notifier needs an http(s) url, got %q", parsed.URL)
	}
	if parsed.ParamName == "" {
		parsed.ParamName = "data"
	}
	return &Webhook{env: env, url: parsed.URL, param: parsed.ParamName, post: parsed.Post}, nil
}

func (w *Webhook) Start(ctx context.Context, request *models.DownloadRequest) error {
	msg := w.env.message(request, "")
	return w.call(ctx, fmt.Sprintf("Download %s started", msg.RequestID))
}

func (w *Webhook) End(ctx context.Context, request *models.DownloadRequest, fileURL string) error {
	return w.call(ctx, w.env.message(request, fileURL).DownloadURL)
}

func (w *Webhook) Error(ctx context.Context, request *models.DownloadRequest) error {
	msg := w.env.message(request, "")
	return w.call(ctx, fmt.Sprintf("Download %s failed: %s", msg.RequestID, msg.Error))
}

func (w *Webhook) call(ctx context.Context, value string) error {
	params := url.Values{w.param: {value}}

	var req *http.Request
	var err error
	if w.post {
		req, err = http.NewRequestWithContext(ctx, http.MethodPost, w.url, strings.NewReader(params.Encode()))
		if err == nil {
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		}
	} else {
		target, _ := url.Parse(w.url)
		values := target.Query()
		values.Set(w.param, value)
		target.RawQuery = values.Encode()
		req, err = http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
	}
	if err != nil {
		return fmt.Errorf("failed to create webhook request: %w", err)
	}

	resp, err := w.env.httpClient().Do(req)
	if err != nil {
		return fmt.Errorf("failed to call webhook: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}

package notifiers

import (
	"context"
	"log/slog"

	"datastore-downloader/pkg/models"
)

// None only logs
type None struct {
	logger *slog.Logger
}

func newNone(Env, map[string]any) (Notifier, error) {
	return &None{logger: slog.Default()}, nil
}

func (n *None) Start(_ context.Context, request *models.DownloadRequest) error {
	n.logger.Debug("Processing started", "request_id", request.ID)
	return nil
}

func (n *None) End(_ context.Context, request *models.DownloadRequest, url string) error {
	n.logger.Debug("Processing ended", "request_id", request.ID, "url", url)
	return nil
}

func (n *None) Error(_ context.Context, request *models.DownloadRequest) error {
	n.logger.Debug("Processing failed", "request_id", request.ID)
	return nil
}

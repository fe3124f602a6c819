package downloader

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrQueueFull is returned when a request cannot be queued
var ErrQueueFull = errors.New("download queue is full")

// Worker runs queued download requests one at a time
type Worker struct {
	runner  RunnerInterface
	db      DatabaseInterface
	logger  *slog.Logger
	queue   chan string
	timeout time.Duration
	mu      sync.RWMutex

	current string
}

// NewWorker creates a worker with room for queueSize waiting requests. Each run is given
// at most timeout, or no limit when timeout is zero.
func NewWorker(runner RunnerInterface, db DatabaseInterface, queueSize int, timeout time.Duration) *Worker {
	return &Worker{
		runner:  runner,
		db:      db,
		logger:  slog.Default(),
		queue:   make(chan string, queueSize),
		timeout: timeout,
	}
}

// Start runs requests left unfinished by a previous process, then processes the queue
// until ctx is done
func (w *Worker) Start(ctx context.Context) {
	w.logger.Info("Starting download worker")

	unfinished, err := w.db.GetUnfinishedRequests()
	if err != nil {
		w.logger.Error("Failed to load unfinished requests", "error", err)
	}
	for _, request := range unfinished {
		if ctx.Err() != nil {
			break
		}
		w.logger.Info("Resuming unfinished request", "request_id", request.ID, "state", request.State)
		w.process(ctx, request.ID)
	}

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("Download worker shutting down")
			return
		case requestID := <-w.queue:
			w.process(ctx, requestID)
		}
	}
}

// QueueRequest adds a request to the queue without blocking
func (w *Worker) QueueRequest(requestID string) error {
	select {
	case w.queue <- requestID:
		w.logger.Info("Download request queued", "request_id", requestID)
		return nil
	default:
		w.logger.Error("Download queue is full", "request_id", requestID)
		return ErrQueueFull
	}
}

// Current returns the ID of the request being run, or an empty string
func (w *Worker) Current() string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.current
}

// Pending returns the number of queued requests
func (w *Worker) Pending() int {
	return len(w.queue)
}

func (w *Worker) process(ctx context.Context, requestID string) {
	w.mu.Lock()
	w.current = requestID
	w.mu.Unlock()

	defer func() {
		w.mu.Lock()
		w.current = ""
		w.mu.Unlock()
	}()

	runCtx := ctx
	if w.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, w.timeout)
		defer cancel()
	}

	started := time.Now()
	if err := w.runner.Run(runCtx, requestID); err != nil {
		w.logger.Error("Download request failed", "request_id", requestID, "error", err)
		return
	}
	w.logger.Info("Download request finished", "request_id", requestID, "duration", time.Since(started))
}

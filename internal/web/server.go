// Package web provides the HTTP server and routing
package web

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"datastore-downloader/internal/config"
	"datastore-downloader/internal/metrics"
	"datastore-downloader/internal/servers"
	"datastore-downloader/internal/web/handlers"
)

// Server represents the HTTP server
type Server struct {
	server   *http.Server
	handlers *handlers.Handlers
	logger   *slog.Logger
}

// NewServer creates a new HTTP server
func NewServer(cfg *config.Config, h *handlers.Handlers) *Server {
	server := &http.Server{
		Addr:        ":" + cfg.ServerPort,
		Handler:     NewRouter(h),
		ReadTimeout: 15 * time.Second,
		// archives can be large so writes are not time limited
		IdleTimeout: 60 * time.Second,
	}

	return &Server{
		server:   server,
		handlers: h,
		logger:   slog.Default(),
	}
}

// NewRouter registers every route of the service
func NewRouter(h *handlers.Handlers) http.Handler {
	router := chi.NewRouter()
	router.Use(middleware.Recoverer)
	router.Use(metrics.Middleware)

	router.Route("/api", func(r chi.Router) {
		r.Get("/downloads", h.ListDownloads)
		r.Post("/downloads", h.CreateDownload)
		r.Get("/downloads/{id}", h.GetDownload)
		r.Get("/stats", h.GetStats)
		r.Post("/queries", h.SaveQuery)
		r.Get("/queries/{slug}", h.ResolveQuery)
	})

	router.Get("/downloads/{id}/status", h.StatusPage)
	router.Get(servers.DirectPath+"{file}", h.ServeDirect)
	router.Get(servers.CustomPath+"{file}", h.ServeCustom)
	router.Handle("/metrics", promhttp.Handler())

	return router
}

// Start starts the HTTP server
func (s *Server) Start() error {
	localIP := getLocalIP()
	port := strings.TrimPrefix(s.server.Addr, ":")

	s.logger.Info("Starting HTTP server",
		"addr", s.server.Addr,
		"local_ip", localIP,
		"port", port,
		"url", fmt.Sprintf("http://%s:%s", localIP, port))

	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the HTTP server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down HTTP server")
	return s.server.Shutdown(ctx)
}

// getLocalIP returns a private network address for the startup log
func getLocalIP() string {
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return "localhost"
	}
	for _, addr := range addrs {
		ipNet, ok := addr.(*net.IPNet)
		if !ok || ipNet.IP.IsLoopback() || ipNet.IP.To4() == nil {
			continue
		}
		if ipNet.IP.IsPrivate() {
			return ipNet.IP.String()
		}
	}
	return "localhost"
}

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"datastore-downloader/internal/archive"
	"datastore-downloader/internal/cleanup"
	"datastore-downloader/internal/config"
	"datastore-downloader/internal/core"
	"datastore-downloader/internal/database"
	"datastore-downloader/internal/datastore"
	"datastore-downloader/internal/derivatives"
	"datastore-downloader/internal/derivatives/dwc"
	"datastore-downloader/internal/downloader"
	"datastore-downloader/internal/notifiers"
	"datastore-downloader/internal/query"
	"datastore-downloader/internal/web"
	"datastore-downloader/internal/web/handlers"
)

const expiryInterval = 24 * time.Hour

func main() {
	if err := run(); err != nil {
		slog.Error("Application failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	setupLogging(cfg.LogLevel)

	slog.Info("Starting datastore downloader", "version", "1.0.0", "download_dir", cfg.DownloadDir)

	db, err := database.New(cfg.DatabasePath)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			slog.Error("Failed to close database", "error", err)
		}
	}()

	app, err := build(cfg, db)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return app.serve(ctx)
}

// app is the wired service
type app struct {
	cleanup *cleanup.Service
	worker  *downloader.Worker
	server  *web.Server
}

// build wires every component from the configuration
func build(cfg *config.Config, db *database.DB) (*app, error) {
	for _, dir := range []string{cfg.DownloadDir, cfg.CustomDir, cfg.CoreDir()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	client := datastore.New(cfg.DatastoreURL, cfg.DatastoreAPIKey)
	resolver := query.NewResolver(client, db)
	archiver := archive.NewService()

	registry, err := dwc.LoadRegistry()
	if err != nil {
		return nil, err
	}
	site := dwc.Site{
		Title:          cfg.SiteTitle,
		URL:            cfg.SiteURL,
		Logo:           cfg.SiteLogo,
		Locale:         cfg.LocaleDefault,
		OrgName:        cfg.DwCOrgName,
		OrgEmail:       cfg.DwCOrgEmail,
		DefaultLicense: cfg.DwCDefaultLicense,
	}
	dwcEnv := &derivatives.DwCEnv{
		Loader:        dwc.NewLoader(dwc.NewHTTPSource()),
		Registry:      registry,
		SchemaCache:   cfg.DwCSchemaCache,
		CoreExtension: cfg.DwCCoreExtension,
		Extensions:    cfg.DwCExtensions,
		Catalog:       client,
		Contributors:  client,
		Site:          site,
		Archiver:      archiver,
		Now:           time.Now,
	}

	opts := handlers.Options{
		SiteTitle:   cfg.SiteTitle,
		SiteURL:     cfg.SiteURL,
		DownloadDir: cfg.DownloadDir,
		CustomDir:   cfg.CustomDir,
	}
	// the status url only depends on the site url so handlers can be built without a manager
	statusURLs := handlers.NewHandlers(nil, nil, nil, nil, opts)

	manager := downloader.NewManager(downloader.Config{
		DownloadDir:         cfg.DownloadDir,
		CustomDir:           cfg.CustomDir,
		ResourceStoragePath: cfg.ResourceStoragePath,
		SiteURL:             cfg.SiteURL,
		RecordViewPath:      cfg.RecordViewPath,
	}, downloader.Deps{
		DB:        db,
		Resolver:  resolver,
		Generator: core.NewGenerator(cfg.CoreDir(), client, db),
		Catalog:   client,
		Archiver:  archiver,
		DwC:       dwcEnv,
		Notifiers: notifiers.Env{
			SiteURL:   cfg.SiteURL,
			SiteTitle: cfg.SiteTitle,
			SMTP: notifiers.SMTP{
				Host: cfg.SMTPHost,
				Port: cfg.SMTPPort,
				From: cfg.SMTPFrom,
			},
			StatusURL: statusURLs.StatusURL,
		},
	})

	worker := downloader.NewWorker(manager, db, cfg.QueueSize, cfg.JobTimeout)
	h := handlers.NewHandlers(db, manager, worker, resolver, opts)

	return &app{
		cleanup: cleanup.NewService(db, cfg.DownloadDir, cfg.CoreDir(), time.Duration(cfg.RetentionDays)*24*time.Hour),
		worker:  worker,
		server:  web.NewServer(cfg, h),
	}, nil
}

// serve runs the worker, the expiry routine and the HTTP server until ctx is done
func (a *app) serve(ctx context.Context) error {
	// leftovers are removed before the worker can write new ones
	if _, err := a.cleanup.Startup(); err != nil {
		slog.Error("Startup cleanup incomplete", "error", err)
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.worker.Start(ctx)
		return nil
	})
	g.Go(func() error {
		a.cleanup.Start(ctx, expiryInterval)
		return nil
	})
	g.Go(func() error {
		if err := a.server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		slog.Info("Shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := a.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("failed to shutdown server gracefully: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	slog.Info("Server shutdown complete")
	return nil
}

// setupLogging configures structured logging based on the log level
func setupLogging(level string) {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})
	slog.SetDefault(slog.New(handler))
}

// Package downloader creates download requests and runs them through core file generation,
// derivative writing and zipping
package downloader

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"datastore-downloader/internal/archive"
	"datastore-downloader/internal/database"
	"datastore-downloader/internal/datastore"
	"datastore-downloader/internal/derivatives"
	"datastore-downloader/internal/metrics"
	"datastore-downloader/internal/notifiers"
	"datastore-downloader/internal/query"
	"datastore-downloader/internal/servers"
	"datastore-downloader/internal/transforms"
	"datastore-downloader/pkg/models"
)

var (
	// ErrInvalidRequest wraps every problem with the arguments of a download request
	ErrInvalidRequest = errors.New("invalid download request")
	// ErrNoRawFile is returned when a raw download includes a resource without an uploaded file
	ErrNoRawFile = errors.New("no raw file available")
	// ErrRunPanicked is returned when a run was stopped by a panic
	ErrRunPanicked = errors.New("download run panicked")
)

var customFilenamePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*$`)

// Config is the configuration of the download manager
type Config struct {
	DownloadDir         string
	CustomDir           string
	ResourceStoragePath string
	SiteURL             string
	RecordViewPath      string
}

// Deps are the collaborators of the download manager
type Deps struct {
	DB        DatabaseInterface
	Resolver  ResolverInterface
	Generator GeneratorInterface
	Catalog   datastore.Catalog
	Archiver  ArchiverInterface
	// DwC is only needed for DarwinCore downloads
	DwC       *derivatives.DwCEnv
	Notifiers notifiers.Env
	Hooks     Hooks
}

// Manager creates download requests and runs them
type Manager struct {
	cfg       Config
	db        DatabaseInterface
	resolver  ResolverInterface
	generator GeneratorInterface
	catalog   datastore.Catalog
	archiver  ArchiverInterface
	dwc       *derivatives.DwCEnv
	notifiers notifiers.Env
	hooks     Hooks
	now       func() time.Time
	logger    *slog.Logger
}

// NewManager creates a new download manager
func NewManager(cfg Config, deps Deps) *Manager {
	return &Manager{
		cfg:       cfg,
		db:        deps.DB,
		resolver:  deps.Resolver,
		generator: deps.Generator,
		catalog:   deps.Catalog,
		archiver:  deps.Archiver,
		dwc:       deps.DwC,
		notifiers: deps.Notifiers,
		hooks:     deps.Hooks,
		now:       time.Now,
		logger:    slog.Default(),
	}
}

func invalid(err error) error {
	if query.IsValidationError(err) {
		return fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}
	return err
}

func (m *Manager) transformEnv() transforms.Env {
	return transforms.Env{SiteURL: m.cfg.SiteURL, RecordViewPath: m.cfg.RecordViewPath}
}

// New validates a request's arguments, finds or creates the core and derivative records
// it will use and stores the request in the initiated state. Nothing is generated.
func (m *Manager) New(ctx context.Context, args Args) (*models.DownloadRequest, error) {
	args = m.hooks.BeforeRun.Apply(args)

	file := args.File.normalise()
	format, err := derivatives.ParseFormat(file.Format)
	if err != nil {
		return nil, invalid(err)
	}
	options, err := derivatives.DecodeOptions(format, file.FormatArgs)
	if err != nil {
		return nil, invalid(err)
	}
	file.Format = string(format)
	file.FormatArgs = options.Args()
	file = file.normalise()

	if _, err := transforms.Build(file.Transform, m.transformEnv()); err != nil {
		return nil, invalid(err)
	}

	if args.Server.Type == "" {
		args.Server.Type = "direct"
	}
	if name := args.Server.CustomFilename; name != "" && !customFilenamePattern.MatchString(name) {
		return nil, invalid(query.Invalidf("invalid custom filename: %s", name))
	}
	if _, err := servers.New(args.Server.Type, args.Server.TypeArgs, m.cfg.SiteURL); err != nil {
		return nil, invalid(err)
	}
	if args.Notifier.Type == "" {
		args.Notifier.Type = "none"
	}
	if _, err := notifiers.New(args.Notifier.Type, args.Notifier.TypeArgs, m.notifiers); err != nil {
		return nil, invalid(err)
	}

	if format == derivatives.FormatRaw {
		// resources without datastore data are kept so a missing upload fails the run
		args.Query.AllowNonDatastore = true
	}
	q, err := m.resolver.Resolve(ctx, args.Query)
	if err != nil {
		return nil, invalid(err)
	}

	coreRecord, derivative, err := m.checkForRecords(q, file)
	if err != nil {
		return nil, err
	}

	request := &models.DownloadRequest{
		ID:           uuid.NewString(),
		CoreID:       coreRecord.ID,
		DerivativeID: derivative.ID,
		State:        models.StateInitiated,
		ServerArgs:   args.Server,
		NotifierArgs: args.Notifier,
	}
	if err := m.db.CreateRequest(request); err != nil {
		return nil, err
	}
	metrics.RequestsTotal.WithLabelValues(string(models.StateInitiated)).Inc()
	m.logger.Info("Download request created",
		"request_id", request.ID,
		"query_hash", q.Hash(),
		"download_hash", derivative.DownloadHash,
		"format", file.Format)

	m.hooks.AfterInit.Apply(q)
	return request, nil
}

// checkForRecords finds the records a request can reuse. A derivative with the same
// download hash wins, since its core record is compatible by construction. Otherwise the
// core record for the query and resource set is reused or created, and a new derivative
// record with no file is created on it.
func (m *Manager) checkForRecords(q *query.Query, file DerivativeArgs) (*models.CoreFileRecord, *models.DerivativeFileRecord, error) {
	optionsHash, err := file.OptionsHash()
	if err != nil {
		return nil, nil, err
	}
	downloadHash := DownloadHash(q.RecordHash(), optionsHash)

	derivative, err := m.db.GetDerivativeByHash(downloadHash)
	switch {
	case err == nil:
		coreRecord, err := m.db.GetCoreRecord(derivative.CoreID)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to load core record of derivative %d: %w", derivative.ID, err)
		}
		return coreRecord, derivative, nil
	case !errors.Is(err, database.ErrNotFound):
		return nil, nil, err
	}

	coreRecord, err := m.db.FindCoreRecord(q.Hash(), q.ResourceHash())
	switch {
	case errors.Is(err, database.ErrNotFound):
		coreRecord = &models.CoreFileRecord{
			QueryHash:        q.Hash(),
			Query:            q.Expression,
			QueryVersion:     q.Version,
			ResourceVersions: q.Resources,
			ResourceHash:     q.ResourceHash(),
			ResourceTotals:   map[string]int64{},
			FieldCounts:      map[string]map[string]int{},
		}
		if err := m.db.CreateCoreRecord(coreRecord); err != nil {
			return nil, nil, err
		}
	case err != nil:
		return nil, nil, err
	}

	derivative = &models.DerivativeFileRecord{
		CoreID:       coreRecord.ID,
		DownloadHash: downloadHash,
		Format:       file.Format,
		Options:      file.options(),
	}
	err = m.db.CreateDerivativeRecord(derivative)
	if errors.Is(err, database.ErrDuplicate) {
		// an identical request created it first
		existing, err := m.db.GetDerivativeByHash(downloadHash)
		if err != nil {
			return nil, nil, err
		}
		coreRecord, err := m.db.GetCoreRecord(existing.CoreID)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to load core record of derivative %d: %w", existing.ID, err)
		}
		return coreRecord, existing, nil
	}
	if err != nil {
		return nil, nil, err
	}
	return coreRecord, derivative, nil
}

// Run generates the download of a stored request. Every record is loaded afresh, so a
// request created by another process can be run here. On failure the request is marked
// failed with the state it failed in and the error is returned.
func (m *Manager) Run(ctx context.Context, requestID string) (err error) {
	start := m.now()
	request, err := m.db.GetRequest(requestID)
	if err != nil {
		return fmt.Errorf("failed to load download request: %w", err)
	}
	logger := m.logger.With("request_id", request.ID)

	var notifier notifiers.Notifier
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrRunPanicked, r)
		}
		if err != nil {
			m.fail(ctx, request, notifier, err, logger)
		}
		m.hooks.AfterRun.Apply(*request)
	}()

	coreRecord, err := m.db.GetCoreRecord(request.CoreID)
	if err != nil {
		return err
	}
	derivative, err := m.db.GetDerivativeRecord(request.DerivativeID)
	if err != nil {
		return err
	}
	q, err := query.New(coreRecord.Query, coreRecord.QueryVersion, coreRecord.ResourceVersions)
	if err != nil {
		return err
	}
	args, err := derivativeArgsOf(derivative)
	if err != nil {
		return err
	}
	server, err := servers.New(request.ServerArgs.Type, request.ServerArgs.TypeArgs, m.cfg.SiteURL)
	if err != nil {
		return err
	}
	notifier, err = notifiers.New(request.NotifierArgs.Type, request.NotifierArgs.TypeArgs, m.notifiers)
	if err != nil {
		return err
	}
	if err := notifier.Start(ctx, request); err != nil {
		logger.Warn("Failed to send start notification", "error", err)
	}

	format := derivatives.Format(args.Format)
	if format != derivatives.FormatRaw {
		if err := m.setState(request, models.StateCoreGen, ""); err != nil {
			return err
		}
		progress := func(resourceID string, index, total int) {
			m.setMessage(request, fmt.Sprintf("Generating core file %d of %d (%s)", index+1, total, resourceID))
		}
		if err := m.generator.Generate(ctx, q, coreRecord, progress); err != nil {
			return err
		}
	}

	if derivative.Filepath != "" && m.archiver.Valid(derivative.Filepath) {
		metrics.DerivativeCacheHits.Inc()
		logger.Info("Reusing existing download", "download_hash", derivative.DownloadHash, "path", derivative.Filepath)
	} else {
		if err := m.build(ctx, request, q, coreRecord, derivative, args, start, logger); err != nil {
			return err
		}
	}

	if name := request.ServerArgs.CustomFilename; name != "" {
		if err := m.linkCustom(name, derivative.Filepath); err != nil {
			return err
		}
	}

	url := server.Serve(request, derivative)
	if err := m.setState(request, models.StateComplete, ""); err != nil {
		return err
	}
	metrics.RunDuration.WithLabelValues(args.Format).Observe(m.now().Sub(start).Seconds())
	logger.Info("Download complete", "url", url)

	if err := notifier.End(ctx, request, url); err != nil {
		logger.Warn("Failed to send completion notification", "error", err)
	}
	return nil
}

// build writes the derivative files, the manifest and the archive. The derivative's file
// path is stored before anything is written.
func (m *Manager) build(ctx context.Context, request *models.DownloadRequest, q *query.Query, coreRecord *models.CoreFileRecord, derivative *models.DerivativeFileRecord, args DerivativeArgs, start time.Time, logger *slog.Logger) error {
	derivative.Filepath = filepath.Join(m.cfg.DownloadDir, derivative.DownloadHash+".zip")
	if err := m.db.UpdateDerivativeRecord(derivative); err != nil {
		return err
	}
	if err := m.setState(request, models.StateDerivativeGen, fmt.Sprintf("Writing %s records", humanize.Comma(coreRecord.Total))); err != nil {
		return err
	}

	buildDir := filepath.Join(m.cfg.DownloadDir, uuid.NewString())
	if err := os.MkdirAll(buildDir, 0o755); err != nil {
		return fmt.Errorf("failed to create build directory: %w", err)
	}
	defer func() {
		if err := os.RemoveAll(buildDir); err != nil {
			logger.Error("Failed to remove build directory", "path", buildDir, "error", err)
		}
	}()

	var files []string
	var err error
	if derivatives.Format(args.Format) == derivatives.FormatRaw {
		files, err = m.copyRaw(ctx, q, buildDir)
	} else {
		files, err = m.writeDerivative(ctx, q, coreRecord, args, buildDir, logger)
	}
	if err != nil {
		return err
	}

	end := m.now()
	manifest := m.hooks.Manifest.Apply(newManifest(request, q, coreRecord, args, files, start, end))
	if err := writeManifest(filepath.Join(buildDir, ManifestName), manifest); err != nil {
		return err
	}

	if err := m.setState(request, models.StateZipping, fmt.Sprintf("Zipping %d files", len(files)+1)); err != nil {
		return err
	}
	entries := make([]archive.Entry, 0, len(files)+1)
	for _, name := range append(files, ManifestName) {
		entries = append(entries, archive.Entry{Name: name, Path: filepath.Join(buildDir, name)})
	}
	if err := m.archiver.Create(derivative.Filepath, entries); err != nil {
		return err
	}
	logger.Info("Archive written", "path", derivative.Filepath, "files", len(entries))
	return nil
}

// linkCustom points the custom filename at an archive, replacing any previous link
func (m *Manager) linkCustom(name, target string) error {
	if err := os.MkdirAll(m.cfg.CustomDir, 0o755); err != nil {
		return fmt.Errorf("failed to create custom download directory: %w", err)
	}
	link := filepath.Join(m.cfg.CustomDir, name+".zip")
	if _, err := os.Lstat(link); err == nil {
		if err := os.Remove(link); err != nil {
			return fmt.Errorf("failed to remove previous custom link: %w", err)
		}
	}
	if err := os.Symlink(target, link); err != nil {
		return fmt.Errorf("failed to link custom filename: %w", err)
	}
	return nil
}

func (m *Manager) setState(request *models.DownloadRequest, state models.RequestState, message string) error {
	request.State = state
	request.Message = message
	if err := m.db.UpdateRequest(request); err != nil {
		return err
	}
	metrics.RequestsTotal.WithLabelValues(string(state)).Inc()
	m.logger.Info("Download state changed", "request_id", request.ID, "state", state)
	return nil
}

// setMessage records progress within the current state
func (m *Manager) setMessage(request *models.DownloadRequest, message string) {
	request.Message = message
	if err := m.db.UpdateRequest(request); err != nil {
		m.logger.Warn("Failed to update download progress", "request_id", request.ID, "error", err)
	}
	m.logger.Debug("Download progress", "request_id", request.ID, "message", message)
}

// fail records the state a request failed in and the error that stopped it
func (m *Manager) fail(ctx context.Context, request *models.DownloadRequest, notifier notifiers.Notifier, cause error, logger *slog.Logger) {
	message := fmt.Sprintf("%s: %s: %s", request.State, errorType(cause), cause.Error())
	if err := m.setState(request, models.StateFailed, message); err != nil {
		logger.Error("Failed to mark download as failed", "error", err)
	}
	logger.Error("Download failed", "error", cause)

	if notifier == nil {
		return
	}
	if err := notifier.Error(context.WithoutCancel(ctx), request); err != nil {
		logger.Warn("Failed to send failure notification", "error", err)
	}
}

// namedErrors are the sentinels a failure message can name
var namedErrors = []struct {
	name string
	err  error
}{
	{"downloader.ErrNoRawFile", ErrNoRawFile},
	{"downloader.ErrRunPanicked", ErrRunPanicked},
	{"database.ErrNotFound", database.ErrNotFound},
	{"datastore.ErrNotFound", datastore.ErrNotFound},
	{"derivatives.ErrUnexpectedField", derivatives.ErrUnexpectedField},
	{"derivatives.ErrNotOpen", derivatives.ErrNotOpen},
	{"context.Canceled", context.Canceled},
}

// errorType classifies a failure by the first known sentinel in its chain, else by the
// first error in the chain with a type of its own
func errorType(err error) string {
	for _, named := range namedErrors {
		if errors.Is(err, named.err) {
			return named.name
		}
	}
	if name := typedError(err); name != "" {
		return name
	}
	return "error"
}

func typedError(err error) string {
	if err == nil {
		return ""
	}
	switch name := fmt.Sprintf("%T", err); name {
	case "*fmt.wrapError", "*fmt.wrapErrors", "*errors.errorString", "*errors.joinError":
	default:
		return name
	}
	switch e := err.(type) {
	case interface{ Unwrap() error }:
		return typedError(e.Unwrap())
	case interface{ Unwrap() []error }:
		for _, inner := range e.Unwrap() {
			if name := typedError(inner); name != "" {
				return name
			}
		}
	}
	return ""
}

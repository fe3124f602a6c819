// Package database provides SQLite database operations for the application
package database

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"datastore-downloader/pkg/models"
)

var (
	// ErrNotFound is returned when a lookup matches no row
	ErrNotFound = errors.New("not found")
	// ErrDuplicate is returned when an insert collides with a unique key
	ErrDuplicate = errors.New("duplicate record")
)

// isUniqueViolation reports whether err is a sqlite unique or primary key constraint failure
func isUniqueViolation(err error) bool {
	var sqliteErr *sqlite.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	switch sqliteErr.Code() {
	case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
		return true
	case sqlite3.SQLITE_CONSTRAINT:
		// connections without extended result codes only report the primary code
		return strings.Contains(sqliteErr.Error(), "UNIQUE constraint failed")
	}
	return false
}

// DB wraps the SQLite database connection
type DB struct {
	conn *sql.DB
}

// New creates a new database connection and initializes the schema
func New(dbPath string) (*DB, error) {
	// Add connection parameters to help with concurrent access
	connString := dbPath
	if dbPath != ":memory:" {
		connString = dbPath + "?_busy_timeout=30000&_journal_mode=WAL&_synchronous=NORMAL"
	}

	conn, err := sql.Open("sqlite", connString)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Set connection pool settings
	conn.SetMaxOpenConns(1) // SQLite doesn't handle concurrent writes well
	conn.SetMaxIdleConns(1)

	db := &DB{conn: conn}

	if err := db.initSchema(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return db, nil
}

// Close closes the database connection
func (db *DB) Close() error {
	return db.conn.Close()
}

// initSchema creates the necessary tables
func (db *DB) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS core_file_records (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		query_hash TEXT NOT NULL,
		query TEXT NOT NULL,
		query_version TEXT NOT NULL,
		resource_ids_and_versions TEXT NOT NULL,
		resource_hash TEXT NOT NULL,
		total INTEGER DEFAULT 0,
		resource_totals TEXT NOT NULL,
		field_counts TEXT NOT NULL,
		modified DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_core_query_hash ON core_file_records(query_hash);
	CREATE INDEX IF NOT EXISTS idx_core_query_resource ON core_file_records(query_hash, resource_hash);

	CREATE TABLE IF NOT EXISTS derivative_file_records (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		core_id INTEGER NOT NULL,
		download_hash TEXT NOT NULL UNIQUE,
		created DATETIME NOT NULL,
		format TEXT NOT NULL,
		options TEXT NOT NULL,
		filepath TEXT,
		FOREIGN KEY (core_id) REFERENCES core_file_records(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_derivative_core_id ON derivative_file_records(core_id);

	CREATE TABLE IF NOT EXISTS download_requests (
		id TEXT PRIMARY KEY,
		core_id INTEGER,
		derivative_id INTEGER,
		state TEXT NOT NULL,
		message TEXT,
		server_args TEXT NOT NULL,
		notifier_args TEXT NOT NULL,
		created_at DATETIME NOT NULL,
		modified_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_requests_state ON download_requests(state);
	CREATE INDEX IF NOT EXISTS idx_requests_created_at ON download_requests(created_at);

	CREATE TABLE IF NOT EXISTS saved_queries (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		slug TEXT NOT NULL UNIQUE,
		query TEXT NOT NULL,
		query_version TEXT NOT NULL,
		resource_ids TEXT NOT NULL,
		resource_ids_and_versions TEXT NOT NULL,
		record_hash TEXT NOT NULL,
		created_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_saved_queries_record_hash ON saved_queries(record_hash);
	`

	_, err := db.conn.Exec(schema)
	return err
}

// scanner is satisfied by both *sql.Row and *sql.Rows
type scanner interface {
	Scan(dest ...any) error
}

func encodeJSON(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// decodeJSON keeps numbers as json.Number so query hashes stay stable across a round trip
func decodeJSON(data string, v any) error {
	if data == "" {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader([]byte(data)))
	dec.UseNumber()
	return dec.Decode(v)
}

const coreColumns = `id, query_hash, query, query_version, resource_ids_and_versions,
	resource_hash, total, resource_totals, field_counts, modified`

func scanCoreRecord(s scanner) (*models.CoreFileRecord, error) {
	var record models.CoreFileRecord
	var query, resources, totals, counts string
	if err := s.Scan(
		&record.ID, &record.QueryHash, &query, &record.QueryVersion, &resources,
		&record.ResourceHash, &record.Total, &totals, &counts, &record.Modified,
	); err != nil {
		return nil, err
	}

	if err := decodeJSON(query, &record.Query); err != nil {
		return nil, fmt.Errorf("failed to decode query: %w", err)
	}
	if err := decodeJSON(resources, &record.ResourceVersions); err != nil {
		return nil, fmt.Errorf("failed to decode resource versions: %w", err)
	}
	if err := decodeJSON(totals, &record.ResourceTotals); err != nil {
		return nil, fmt.Errorf("failed to decode resource totals: %w", err)
	}
	if err := decodeJSON(counts, &record.FieldCounts); err != nil {
		return nil, fmt.Errorf("failed to decode field counts: %w", err)
	}
	if record.ResourceTotals == nil {
		record.ResourceTotals = map[string]int64{}
	}
	if record.FieldCounts == nil {
		record.FieldCounts = map[string]map[string]int{}
	}

	return &record, nil
}

// CreateCoreRecord creates a new core file record
func (db *DB) CreateCoreRecord(record *models.CoreFileRecord) error {
	if record.ResourceTotals == nil {
		record.ResourceTotals = map[string]int64{}
	}
	if record.FieldCounts == nil {
		record.FieldCounts = map[string]map[string]int{}
	}
	if record.Modified.IsZero() {
		record.Modified = time.Now()
	}

	query, err := encodeJSON(record.Query)
	if err != nil {
		return fmt.Errorf("failed to encode query: %w", err)
	}
	resources, err := encodeJSON(record.ResourceVersions)
	if err != nil {
		return fmt.Errorf("failed to encode resource versions: %w", err)
	}
	totals, err := encodeJSON(record.ResourceTotals)
	if err != nil {
		return fmt.Errorf("failed to encode resource totals: %w", err)
	}
	counts, err := encodeJSON(record.FieldCounts)
	if err != nil {
		return fmt.Errorf("failed to encode field counts: %w", err)
	}

	result, err := db.conn.Exec(`
	INSERT INTO core_file_records (
		query_hash, query, query_version, resource_ids_and_versions,
		resource_hash, total, resource_totals, field_counts, modified
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		record.QueryHash, query, record.QueryVersion, resources,
		record.ResourceHash, record.Total, totals, counts, record.Modified,
	)
	if err != nil {
		return fmt.Errorf("failed to create core record: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	record.ID = id
	return nil
}

// GetCoreRecord retrieves a core file record by ID
func (db *DB) GetCoreRecord(id int64) (*models.CoreFileRecord, error) {
	row := db.conn.QueryRow(`SELECT `+coreColumns+` FROM core_file_records WHERE id = ?`, id)
	record, err := scanCoreRecord(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("core record %d: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get core record: %w", err)
	}
	return record, nil
}

// FindCoreRecord retrieves the most recently modified core record for a query and resource set
func (db *DB) FindCoreRecord(queryHash, resourceHash string) (*models.CoreFileRecord, error) {
	row := db.conn.QueryRow(`SELECT `+coreColumns+` FROM core_file_records
	WHERE query_hash = ? AND resource_hash = ?
	ORDER BY modified DESC, id DESC LIMIT 1`, queryHash, resourceHash)
	record, err := scanCoreRecord(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("core record for %s/%s: %w", queryHash, resourceHash, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to find core record: %w", err)
	}
	return record, nil
}

// FindCoreRecordsByQueryHash retrieves every core record built from the same query expression,
// newest first
func (db *DB) FindCoreRecordsByQueryHash(queryHash string) ([]*models.CoreFileRecord, error) {
	rows, err := db.conn.Query(`SELECT `+coreColumns+` FROM core_file_records
	WHERE query_hash = ?
	ORDER BY modified DESC, id DESC`, queryHash)
	if err != nil {
		return nil, fmt.Errorf("failed to query core records: %w", err)
	}
	defer rows.Close()

	var records []*models.CoreFileRecord
	for rows.Next() {
		record, err := scanCoreRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan core record: %w", err)
		}
		records = append(records, record)
	}

	return records, rows.Err()
}

// UpdateCoreRecord persists the totals and field counts of a core record
func (db *DB) UpdateCoreRecord(record *models.CoreFileRecord) error {
	totals, err := encodeJSON(record.ResourceTotals)
	if err != nil {
		return fmt.Errorf("failed to encode resource totals: %w", err)
	}
	counts, err := encodeJSON(record.FieldCounts)
	if err != nil {
		return fmt.Errorf("failed to encode field counts: %w", err)
	}
	record.Modified = time.Now()

	_, err = db.conn.Exec(`
	UPDATE core_file_records SET
		total = ?, resource_totals = ?, field_counts = ?, modified = ?
	WHERE id = ?`,
		record.Total, totals, counts, record.Modified, record.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update core record: %w", err)
	}

	return nil
}

const derivativeColumns = `id, core_id, download_hash, created, format, options, filepath`

func scanDerivativeRecord(s scanner) (*models.DerivativeFileRecord, error) {
	var record models.DerivativeFileRecord
	var options string
	var filepath sql.NullString
	if err := s.Scan(
		&record.ID, &record.CoreID, &record.DownloadHash, &record.Created,
		&record.Format, &options, &filepath,
	); err != nil {
		return nil, err
	}
	if err := decodeJSON(options, &record.Options); err != nil {
		return nil, fmt.Errorf("failed to decode options: %w", err)
	}
	record.Filepath = filepath.String
	return &record, nil
}

// CreateDerivativeRecord creates a new derivative file record
func (db *DB) CreateDerivativeRecord(record *models.DerivativeFileRecord) error {
	if record.Created.IsZero() {
		record.Created = time.Now()
	}
	options, err := encodeJSON(record.Options)
	if err != nil {
		return fmt.Errorf("failed to encode options: %w", err)
	}

	result, err := db.conn.Exec(`
	INSERT INTO derivative_file_records (
		core_id, download_hash, created, format, options, filepath
	) VALUES (?, ?, ?, ?, ?, ?)`,
		record.CoreID, record.DownloadHash, record.Created, record.Format, options,
		sql.NullString{String: record.Filepath, Valid: record.Filepath != ""},
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("failed to create derivative record %s: %w", record.DownloadHash, ErrDuplicate)
	}
	if err != nil {
		return fmt.Errorf("failed to create derivative record: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	record.ID = id
	return nil
}

// GetDerivativeRecord retrieves a derivative file record by ID
func (db *DB) GetDerivativeRecord(id int64) (*models.DerivativeFileRecord, error) {
	row := db.conn.QueryRow(`SELECT `+derivativeColumns+` FROM derivative_file_records WHERE id = ?`, id)
	record, err := scanDerivativeRecord(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("derivative record %d: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get derivative record: %w", err)
	}
	return record, nil
}

// GetDerivativeByHash retrieves the derivative file record with the given download hash
func (db *DB) GetDerivativeByHash(downloadHash string) (*models.DerivativeFileRecord, error) {
	row := db.conn.QueryRow(`SELECT `+derivativeColumns+` FROM derivative_file_records WHERE download_hash = ?`, downloadHash)
	record, err := scanDerivativeRecord(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("derivative record %s: %w", downloadHash, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get derivative record: %w", err)
	}
	return record, nil
}

// UpdateDerivativeRecord updates an existing derivative file record
func (db *DB) UpdateDerivativeRecord(record *models.DerivativeFileRecord) error {
	_, err := db.conn.Exec(`UPDATE derivative_file_records SET filepath = ? WHERE id = ?`,
		sql.NullString{String: record.Filepath, Valid: record.Filepath != ""}, record.ID)
	if err != nil {
		return fmt.Errorf("failed to update derivative record: %w", err)
	}
	return nil
}

const requestColumns = `id, core_id, derivative_id, state, message, server_args,
	notifier_args, created_at, modified_at`

func scanRequest(s scanner) (*models.DownloadRequest, error) {
	var request models.DownloadRequest
	var coreID, derivativeID sql.NullInt64
	var message sql.NullString
	var serverArgs, notifierArgs string
	if err := s.Scan(
		&request.ID, &coreID, &derivativeID, &request.State, &message,
		&serverArgs, &notifierArgs, &request.CreatedAt, &request.ModifiedAt,
	); err != nil {
		return nil, err
	}
	request.CoreID = coreID.Int64
	request.DerivativeID = derivativeID.Int64
	request.Message = message.String
	if err := decodeJSON(serverArgs, &request.ServerArgs); err != nil {
		return nil, fmt.Errorf("failed to decode server args: %w", err)
	}
	if err := decodeJSON(notifierArgs, &request.NotifierArgs); err != nil {
		return nil, fmt.Errorf("failed to decode notifier args: %w", err)
	}
	return &request, nil
}

// CreateRequest creates a new download request
func (db *DB) CreateRequest(request *models.DownloadRequest) error {
	now := time.Now()
	if request.CreatedAt.IsZero() {
		request.CreatedAt = now
	}
	request.ModifiedAt = now

	serverArgs, err := encodeJSON(request.ServerArgs)
	if err != nil {
		return fmt.Errorf("failed to encode server args: %w", err)
	}
	notifierArgs, err := encodeJSON(request.NotifierArgs)
	if err != nil {
		return fmt.Errorf("failed to encode notifier args: %w", err)
	}

	_, err = db.conn.Exec(`
	INSERT INTO download_requests (
		id, core_id, derivative_id, state, message, server_args,
		notifier_args, created_at, modified_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		request.ID, nullID(request.CoreID), nullID(request.DerivativeID),
		request.State, request.Message, serverArgs, notifierArgs,
		request.CreatedAt, request.ModifiedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create download request: %w", err)
	}

	return nil
}

func nullID(id int64) sql.NullInt64 {
	return sql.NullInt64{Int64: id, Valid: id != 0}
}

// GetRequest retrieves a download request by ID
func (db *DB) GetRequest(id string) (*models.DownloadRequest, error) {
	row := db.conn.QueryRow(`SELECT `+requestColumns+` FROM download_requests WHERE id = ?`, id)
	request, err := scanRequest(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("download request %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get download request: %w", err)
	}
	return request, nil
}

// UpdateRequest updates an existing download request
func (db *DB) UpdateRequest(request *models.DownloadRequest) error {
	request.ModifiedAt = time.Now()

	_, err := db.conn.Exec(`
	UPDATE download_requests SET
		core_id = ?, derivative_id = ?, state = ?, message = ?, modified_at = ?
	WHERE id = ?`,
		nullID(request.CoreID), nullID(request.DerivativeID), request.State,
		request.Message, request.ModifiedAt, request.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update download request: %w", err)
	}

	return nil
}

func (db *DB) queryRequests(query string, args ...any) ([]*models.DownloadRequest, error) {
	rows, err := db.conn.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query download requests: %w", err)
	}
	defer rows.Close()

	var requests []*models.DownloadRequest
	for rows.Next() {
		request, err := scanRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan download request: %w", err)
		}
		requests = append(requests, request)
	}

	return requests, rows.Err()
}

// ListRequests retrieves download requests with pagination, newest first
func (db *DB) ListRequests(limit, offset int) ([]*models.DownloadRequest, error) {
	return db.queryRequests(`SELECT `+requestColumns+` FROM download_requests
	ORDER BY created_at DESC, id ASC
	LIMIT ? OFFSET ?`, limit, offset)
}

// GetUnfinishedRequests retrieves requests that never reached a terminal state, oldest first
func (db *DB) GetUnfinishedRequests() ([]*models.DownloadRequest, error) {
	return db.queryRequests(`SELECT `+requestColumns+` FROM download_requests
	WHERE state NOT IN (?, ?)
	ORDER BY created_at ASC, id ASC`, models.StateComplete, models.StateFailed)
}

// DeleteOldRequests removes finished requests older than the specified duration. Core and
// derivative records are kept because they are shared cache entries.
func (db *DB) DeleteOldRequests(olderThan time.Duration) (int64, error) {
	cutoff := time.Now().Add(-olderThan)

	result, err := db.conn.Exec(`DELETE FROM download_requests
	WHERE created_at < ? AND state IN (?, ?)`, cutoff, models.StateComplete, models.StateFailed)
	if err != nil {
		return 0, fmt.Errorf("failed to delete old download requests: %w", err)
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected > 0 {
		slog.Info("Deleted old download requests", "count", rowsAffected, "cutoff", cutoff)
	}

	return rowsAffected, nil
}

// GetRequestStats retrieves download request counts by state
func (db *DB) GetRequestStats() (map[string]int, error) {
	rows, err := db.conn.Query(`SELECT state, COUNT(*) FROM download_requests GROUP BY state`)
	if err != nil {
		return nil, fmt.Errorf("failed to get request stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[string]int)
	for rows.Next() {
		var state string
		var count int
		if err := rows.Scan(&state, &count); err != nil {
			return nil, fmt.Errorf("failed to scan request stats: %w", err)
		}
		stats[state] = count
	}

	return stats, rows.Err()
}

const savedQueryColumns = `id, slug, query, query_version, resource_ids,
	resource_ids_and_versions, record_hash, created_at`

func scanSavedQuery(s scanner) (*models.SavedQuery, error) {
	var saved models.SavedQuery
	var query, resourceIDs, resources string
	if err := s.Scan(
		&saved.ID, &saved.Slug, &query, &saved.QueryVersion, &resourceIDs,
		&resources, &saved.RecordHash, &saved.CreatedAt,
	); err != nil {
		return nil, err
	}
	if err := decodeJSON(query, &saved.Query); err != nil {
		return nil, fmt.Errorf("failed to decode query: %w", err)
	}
	if err := decodeJSON(resourceIDs, &saved.ResourceIDs); err != nil {
		return nil, fmt.Errorf("failed to decode resource ids: %w", err)
	}
	if err := decodeJSON(resources, &saved.ResourceVersions); err != nil {
		return nil, fmt.Errorf("failed to decode resource versions: %w", err)
	}
	return &saved, nil
}

// CreateSavedQuery stores a query under its slug
func (db *DB) CreateSavedQuery(saved *models.SavedQuery) error {
	if saved.CreatedAt.IsZero() {
		saved.CreatedAt = time.Now()
	}
	query, err := encodeJSON(saved.Query)
	if err != nil {
		return fmt.Errorf("failed to encode query: %w", err)
	}
	resourceIDs, err := encodeJSON(saved.ResourceIDs)
	if err != nil {
		return fmt.Errorf("failed to encode resource ids: %w", err)
	}
	resources, err := encodeJSON(saved.ResourceVersions)
	if err != nil {
		return fmt.Errorf("failed to encode resource versions: %w", err)
	}

	result, err := db.conn.Exec(`
	INSERT INTO saved_queries (
		slug, query, query_version, resource_ids, resource_ids_and_versions,
		record_hash, created_at
	) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		saved.Slug, query, saved.QueryVersion, resourceIDs, resources,
		saved.RecordHash, saved.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create saved query: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	saved.ID = id
	return nil
}

// GetSavedQueryBySlug retrieves a saved query by its slug
func (db *DB) GetSavedQueryBySlug(slug string) (*models.SavedQuery, error) {
	row := db.conn.QueryRow(`SELECT `+savedQueryColumns+` FROM saved_queries WHERE slug = ?`, slug)
	saved, err := scanSavedQuery(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("saved query %s: %w", slug, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get saved query: %w", err)
	}
	return saved, nil
}

// GetSavedQueryByRecordHash retrieves the first saved query stored for a record hash
func (db *DB) GetSavedQueryByRecordHash(recordHash string) (*models.SavedQuery, error) {
	row := db.conn.QueryRow(`SELECT `+savedQueryColumns+` FROM saved_queries
	WHERE record_hash = ? ORDER BY id ASC LIMIT 1`, recordHash)
	saved, err := scanSavedQuery(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("saved query for %s: %w", recordHash, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get saved query: %w", err)
	}
	return saved, nil
}

package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite3 driver

	"media-registry/internal/logging"
	"media-registry/internal/metrics"
)

// Default timeout for database operations
var defaultTimeout = 5 * time.Second

// Metadata keys
const (
	MetaLegacyMigrationCompletedAt = "legacy_migration_completed_at"
)

// Database manages all registry storage. Normal operations hold mu for
// reading; the legacy migration holds it exclusively. writeMu serializes
// write transactions inside the process since SQLite allows one writer.
type Database struct {
	db      *sql.DB
	dbPath  string
	mu      sync.RWMutex
	writeMu sync.Mutex
}

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

const baseSchema = `
	CREATE TABLE IF NOT EXISTS movies (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		file_path TEXT NOT NULL UNIQUE,
		content_hash TEXT UNIQUE,
		name TEXT NOT NULL,
		duration_seconds REAL NOT NULL DEFAULT 0,
		width INTEGER NOT NULL DEFAULT 0,
		height INTEGER NOT NULL DEFAULT 0,
		codec TEXT NOT NULL DEFAULT '',
		file_size INTEGER NOT NULL DEFAULT 0,
		created_at INTEGER NOT NULL DEFAULT (strftime('%s', 'now')),
		last_scan_at INTEGER NOT NULL DEFAULT (strftime('%s', 'now'))
	);

	CREATE INDEX IF NOT EXISTS idx_movies_name ON movies(name);

	CREATE TABLE IF NOT EXISTS library_items (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		kind TEXT NOT NULL CHECK (kind IN ('folder', 'video')),
		name TEXT NOT NULL,
		url TEXT NOT NULL UNIQUE,
		parent_id INTEGER REFERENCES library_items(id),
		scanned_at INTEGER,
		created_at INTEGER NOT NULL DEFAULT (strftime('%s', 'now'))
	);

	CREATE INDEX IF NOT EXISTS idx_library_items_parent ON library_items(parent_id);

	CREATE TABLE IF NOT EXISTS library_item_movies (
		library_item_id INTEGER NOT NULL REFERENCES library_items(id) ON DELETE CASCADE,
		movie_id INTEGER NOT NULL REFERENCES movies(id),
		added_at INTEGER NOT NULL DEFAULT (strftime('%s', 'now')),
		UNIQUE(library_item_id, movie_id)
	);

	CREATE INDEX IF NOT EXISTS idx_library_item_movies_movie ON library_item_movies(movie_id);

	CREATE TABLE IF NOT EXISTS mosaic_batches (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		started_at INTEGER NOT NULL,
		ended_at INTEGER,
		status TEXT NOT NULL CHECK (status IN ('running', 'completed', 'failed')),
		settings TEXT NOT NULL DEFAULT '{}',
		error_message TEXT,
		item_count INTEGER NOT NULL DEFAULT 0,
		failed_count INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS preview_batches (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		started_at INTEGER NOT NULL,
		ended_at INTEGER,
		status TEXT NOT NULL CHECK (status IN ('running', 'completed', 'failed')),
		settings TEXT NOT NULL DEFAULT '{}',
		error_message TEXT,
		item_count INTEGER NOT NULL DEFAULT 0,
		failed_count INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS playlists (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		created_at INTEGER NOT NULL DEFAULT (strftime('%s', 'now')),
		updated_at INTEGER NOT NULL DEFAULT (strftime('%s', 'now'))
	);

	CREATE TABLE IF NOT EXISTS playlist_items (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		playlist_id INTEGER NOT NULL REFERENCES playlists(id) ON DELETE CASCADE,
		movie_id INTEGER NOT NULL REFERENCES movies(id),
		position INTEGER NOT NULL,
		added_at INTEGER NOT NULL DEFAULT (strftime('%s', 'now')),
		UNIQUE(playlist_id, position)
	);

	CREATE TABLE IF NOT EXISTS metadata (
		key TEXT PRIMARY KEY,
		value TEXT
	);
`

// assetSchema is held back while a legacy mosaics table occupies the name.
const assetSchema = `
	CREATE TABLE IF NOT EXISTS mosaics (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		movie_id INTEGER NOT NULL REFERENCES movies(id),
		batch_id INTEGER NOT NULL REFERENCES mosaic_batches(id),
		file_path TEXT NOT NULL,
		size TEXT NOT NULL DEFAULT '',
		density TEXT NOT NULL DEFAULT '',
		layout TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL CHECK (status IN ('completed', 'failed')),
		error_message TEXT,
		created_at INTEGER NOT NULL DEFAULT (strftime('%s', 'now'))
	);

	CREATE INDEX IF NOT EXISTS idx_mosaics_batch ON mosaics(batch_id);
	CREATE INDEX IF NOT EXISTS idx_mosaics_movie ON mosaics(movie_id, created_at);

	CREATE TABLE IF NOT EXISTS previews (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		movie_id INTEGER NOT NULL REFERENCES movies(id),
		batch_id INTEGER NOT NULL REFERENCES preview_batches(id),
		mosaic_id INTEGER REFERENCES mosaics(id),
		file_path TEXT NOT NULL,
		preview_type TEXT NOT NULL DEFAULT '',
		size TEXT NOT NULL DEFAULT '',
		duration_seconds REAL NOT NULL DEFAULT 0,
		status TEXT NOT NULL CHECK (status IN ('completed', 'failed')),
		error_message TEXT,
		created_at INTEGER NOT NULL DEFAULT (strftime('%s', 'now'))
	);

	CREATE INDEX IF NOT EXISTS idx_previews_batch ON previews(batch_id);
	CREATE INDEX IF NOT EXISTS idx_previews_movie ON previews(movie_id, created_at);
`

// New creates a new Database instance.
// dbPath is the path to the database FILE; its parent directory must exist.
func New(ctx context.Context, dbPath string) (*Database, error) {
	logging.Info("Database path: %s", dbPath)

	if err := diagnoseDatabasePermissions(dbPath); err != nil {
		logging.Warn("Database permission diagnostics: %v", err)
	}

	// _txlock=immediate makes every transaction take the write lock at BEGIN,
	// so a lookup-then-insert inside one transaction cannot race another writer.
	connStr := fmt.Sprintf("%s?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000&_foreign_keys=on&_txlock=immediate", dbPath)

	db, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			logging.Error("failed to close database after ping failure: %v", closeErr)
		}
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(time.Hour)

	d := &Database{
		db:     db,
		dbPath: dbPath,
	}

	if err := d.initialize(ctx); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			logging.Error("failed to close database after initialization failure: %v", closeErr)
		}
		return nil, fmt.Errorf("failed to initialize database schema: %w", err)
	}

	logging.Info("Database initialized successfully at %s", dbPath)
	return d, nil
}

func (d *Database) initialize(ctx context.Context) error {
	legacy, err := hasLegacySchema(ctx, d.db)
	if err != nil {
		return wrapErr("initialize", err)
	}

	if _, err := d.db.ExecContext(ctx, baseSchema); err != nil {
		return wrapErr("initialize", err)
	}

	if legacy {
		rows, countErr := countLegacyRows(ctx, d.db, "mosaics")
		if countErr != nil {
			return wrapErr("initialize", countErr)
		}
		logging.Warn("Legacy mosaics table detected (%d rows); asset tables will be created by the migration", rows)
		return nil
	}

	if _, err := d.db.ExecContext(ctx, assetSchema); err != nil {
		return wrapErr("initialize", err)
	}
	return nil
}

// Close closes the database connection.
func (d *Database) Close() error {
	return d.db.Close()
}

// Path returns the database file path.
func (d *Database) Path() string {
	return d.dbPath
}

// Tx is a registry transaction. Its methods use the context WithTx was
// called with.
type Tx struct {
	tx  *sql.Tx
	ctx context.Context
}

// WithTx runs fn inside one transaction. The transaction commits when fn
// returns nil and rolls back on error or panic.
func (d *Database) WithTx(ctx context.Context, fn func(*Tx) error) error {
	d.mu.RLock()
	defer d.mu.RUnlock()

	d.writeMu.Lock()
	defer d.writeMu.Unlock()

	return d.runTx(ctx, "tx", fn)
}

// WithExclusiveTx is WithTx holding the store exclusively; no other
// operation runs until it returns.
func (d *Database) WithExclusiveTx(ctx context.Context, fn func(*Tx) error) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.runTx(ctx, "exclusive_tx", fn)
}

func (d *Database) runTx(ctx context.Context, op string, fn func(*Tx) error) (err error) {
	start := time.Now()

	sqlTx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return wrapErr(op, err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = sqlTx.Rollback()
			metrics.DBTransactionDuration.WithLabelValues("rollback").Observe(time.Since(start).Seconds())
			panic(p)
		}
	}()

	if fnErr := fn(&Tx{tx: sqlTx, ctx: ctx}); fnErr != nil {
		metrics.DBTransactionDuration.WithLabelValues("rollback").Observe(time.Since(start).Seconds())
		if rbErr := sqlTx.Rollback(); rbErr != nil {
			return errors.Join(fnErr, fmt.Errorf("rollback also failed: %w", rbErr))
		}
		return fnErr
	}

	if err := sqlTx.Commit(); err != nil {
		metrics.DBTransactionDuration.WithLabelValues("rollback").Observe(time.Since(start).Seconds())
		return wrapErr(op+"_commit", err)
	}

	metrics.DBTransactionDuration.WithLabelValues("commit").Observe(time.Since(start).Seconds())
	return nil
}

// read runs fn against the pool under the shared lock with the default
// timeout, recording query metrics for op.
func (d *Database) read(ctx context.Context, op string, fn func(ctx context.Context, q querier) error) (err error) {
	start := time.Now()
	defer func() { recordQuery(op, start, err) }()

	d.mu.RLock()
	defer d.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	return wrapErr(op, fn(ctx, d.db))
}

// write runs fn in its own transaction, recording query metrics for op.
// The default timeout starts once the write lock is held, so queueing behind
// other writers never uses it up.
func (d *Database) write(ctx context.Context, op string, fn func(*Tx) error) (err error) {
	start := time.Now()
	defer func() { recordQuery(op, start, err) }()

	d.mu.RLock()
	defer d.mu.RUnlock()

	d.writeMu.Lock()
	defer d.writeMu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	return wrapErr(op, d.runTx(ctx, "tx", fn))
}

// Vacuum optimizes the database.
func (d *Database) Vacuum(ctx context.Context) error {
	start := time.Now()
	var err error
	defer func() { recordQuery("vacuum", start, err) }()

	d.mu.Lock()
	defer d.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, 60*time.Second)
	defer cancel()

	_, err = d.db.ExecContext(ctx, "VACUUM")
	return wrapErr("vacuum", err)
}

// recordQuery records database query metrics
func recordQuery(operation string, start time.Time, err error) {
	duration := time.Since(start).Seconds()
	status := "success"
	if err != nil {
		status = "error"
	}
	metrics.DBQueryTotal.WithLabelValues(operation, status).Inc()
	metrics.DBQueryDuration.WithLabelValues(operation).Observe(duration)
}

// UpdateDBMetrics updates database connection metrics
func (d *Database) UpdateDBMetrics() {
	stats := d.db.Stats()
	metrics.DBConnectionsOpen.Set(float64(stats.OpenConnections))
}

func unixTime(v int64) time.Time {
	return time.Unix(v, 0)
}

func nullTime(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := time.Unix(v.Int64, 0)
	return &t
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// diagnoseDatabasePermissions checks database directory and file permissions
func diagnoseDatabasePermissions(dbPath string) error {
	dir := filepath.Dir(dbPath)

	dirInfo, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("cannot stat database directory: %w", err)
	}

	logging.Debug("Database directory: %s (mode: %v)", dir, dirInfo.Mode())

	testFile := filepath.Join(dir, ".perm-test")
	if err := os.WriteFile(testFile, []byte("test"), 0o600); err != nil {
		return fmt.Errorf("database directory not writable: %w", err)
	}
	_ = os.Remove(testFile)

	for _, path := range []string{dbPath, dbPath + "-wal", dbPath + "-shm"} {
		info, err := os.Stat(path)
		if err != nil {
			continue
		}
		logging.Debug("Database file exists: %s (mode: %v, size: %d bytes)", path, info.Mode(), info.Size())
		if info.Mode().Perm()&0o200 == 0 {
			logging.Warn("%s is read-only! Mode: %v - this will cause write failures", path, info.Mode())
			if chmodErr := os.Chmod(path, 0o600); chmodErr != nil {
				logging.Error("Failed to fix permissions on %s: %v", path, chmodErr)
			} else {
				logging.Info("Fixed permissions on %s", path)
			}
		}
	}

	return nil
}

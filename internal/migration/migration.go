package migration

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"

	"media-registry/internal/database"
	"media-registry/internal/logging"
	"media-registry/internal/metrics"
)

var log = logging.With("migration")

var (
	// ErrNoLegacySchema means there is no legacy mosaics table to migrate.
	ErrNoLegacySchema = errors.New("no legacy schema present")

	// ErrAlreadyMigrated means the store records a completed migration.
	ErrAlreadyMigrated = errors.New("legacy migration already completed")

	// ErrMigrationLocked means another process holds the migration lock.
	ErrMigrationLocked = errors.New("migration lock held by another process")
)

// RowError reports a legacy row that cannot be carried over.
type RowError struct {
	RowID int64
	Path  string
	Err   error
}

func (e *RowError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("legacy row %d: %v", e.RowID, e.Err)
	}
	return fmt.Sprintf("legacy row %d (%s): %v", e.RowID, e.Path, e.Err)
}

func (e *RowError) Unwrap() error { return e.Err }

// CountMismatchError is returned when the migrated mosaic count differs from
// the number of legacy rows.
type CountMismatchError struct {
	Expected int
	Actual   int
}

func (e *CountMismatchError) Error() string {
	return fmt.Sprintf("migrated %d mosaics, expected %d", e.Actual, e.Expected)
}

// Report summarizes a completed migration.
type Report struct {
	BatchID        int64         `json:"batchId"`
	LegacyRows     int           `json:"legacyRows"`
	MoviesCreated  int           `json:"moviesCreated"`
	MoviesReused   int           `json:"moviesReused"`
	MosaicsCreated int           `json:"mosaicsCreated"`
	Duration       time.Duration `json:"duration"`
}

// Engine migrates one store.
type Engine struct {
	db       *database.Database
	lockPath string
}

// NewEngine creates an engine for db. The lock file lives next to the
// database file.
func NewEngine(db *database.Database) *Engine {
	return &Engine{
		db:       db,
		lockPath: db.Path() + ".migrate.lock",
	}
}

// LockPath returns the cross-process lock file used by the engine.
func (e *Engine) LockPath() string {
	return e.lockPath
}

// Pending reports whether the store has a legacy table and no record of a
// completed migration.
func (e *Engine) Pending(ctx context.Context) (bool, error) {
	legacy, err := e.db.HasLegacySchema(ctx)
	if err != nil || !legacy {
		return false, err
	}
	at, err := e.db.LegacyMigrationCompletedAt(ctx)
	if err != nil {
		return false, err
	}
	return at.IsZero(), nil
}

// MigrateToNewSchema converts the legacy mosaics table. It runs at most
// once per store; on any error nothing is changed.
func (e *Engine) MigrateToNewSchema(ctx context.Context) (report *Report, err error) {
	start := time.Now()
	outcome := "rejected"
	defer func() {
		metrics.MigrationRunsTotal.WithLabelValues(outcome).Inc()
	}()

	lock := flock.New(e.lockPath)
	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire migration lock: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrMigrationLocked, filepath.Base(e.lockPath))
	}
	defer func() {
		if err := lock.Unlock(); err != nil {
			log.Warn("Failed to release migration lock: %v", err)
		}
	}()

	report = &Report{}
	var validated bool
	err = e.db.WithExclusiveTx(ctx, func(tx *database.Tx) error {
		if err := checkPreconditions(tx); err != nil {
			return err
		}
		validated = true
		return migrate(tx, report)
	})
	if err != nil {
		if validated {
			outcome = "rolled_back"
			log.Error("Legacy migration rolled back: %v", err)
		}
		return nil, err
	}

	outcome = "completed"
	report.Duration = time.Since(start)
	metrics.MigrationRowsTotal.Add(float64(report.MosaicsCreated))
	log.Info("Legacy migration completed in %v: %d rows, %d movies created, %d reused, batch %d",
		report.Duration.Round(time.Millisecond), report.LegacyRows, report.MoviesCreated, report.MoviesReused, report.BatchID)
	return report, nil
}

func checkPreconditions(tx *database.Tx) error {
	_, err := tx.GetMetadata(database.MetaLegacyMigrationCompletedAt)
	switch {
	case err == nil:
		return ErrAlreadyMigrated
	case !errors.Is(err, database.ErrNotFound):
		return err
	}

	legacy, err := tx.HasLegacySchema()
	if err != nil {
		return err
	}
	if !legacy {
		return ErrNoLegacySchema
	}
	return nil
}

// legacySettings is the settings snapshot of the synthetic batch.
type legacySettings struct {
	Source      string `json:"source"`
	LegacyTable string `json:"legacyTable"`
	LegacyRows  int    `json:"legacyRows"`
}

func migrate(tx *database.Tx, report *Report) error {
	if err := tx.RenameLegacyTable(); err != nil {
		return err
	}
	if err := tx.CreateSchema(); err != nil {
		return err
	}

	rows, err := tx.ReadLegacyMosaics()
	if err != nil {
		return err
	}
	report.LegacyRows = len(rows)
	log.Info("Migrating %d legacy mosaic rows", len(rows))

	settings, err := json.Marshal(legacySettings{
		Source:      "legacy-migration",
		LegacyTable: database.LegacyTable,
		LegacyRows:  len(rows),
	})
	if err != nil {
		return err
	}

	now := time.Now()
	batch := &database.Batch{
		Kind:      database.BatchKindMosaic,
		StartedAt: now,
		EndedAt:   &now,
		Status:    database.BatchStatusCompleted,
		Settings:  settings,
		ItemCount: len(rows),
	}
	if err := tx.InsertBatch(batch); err != nil {
		return err
	}
	report.BatchID = batch.ID

	for _, row := range rows {
		if err := migrateRow(tx, batch.ID, row, report); err != nil {
			return err
		}
	}

	n, err := tx.CountMosaicsInBatch(batch.ID)
	if err != nil {
		return err
	}
	if n != len(rows) {
		return &CountMismatchError{Expected: len(rows), Actual: n}
	}

	return tx.SetMetadata(database.MetaLegacyMigrationCompletedAt, now.UTC().Format(time.RFC3339))
}

func migrateRow(tx *database.Tx, batchID int64, row database.LegacyMosaic, report *Report) error {
	switch {
	case row.MovieFilePath == "":
		return &RowError{RowID: row.ID, Err: errors.New("movie_file_path is empty")}
	case row.MosaicFilePath == "":
		return &RowError{RowID: row.ID, Path: row.MovieFilePath, Err: errors.New("mosaic_file_path is empty")}
	}

	movie, err := findMovie(tx, row)
	if err != nil {
		return &RowError{RowID: row.ID, Path: row.MovieFilePath, Err: err}
	}
	if movie != nil {
		report.MoviesReused++
	} else {
		movie = &database.Movie{
			FilePath:    row.MovieFilePath,
			ContentHash: row.ContentHash,
			CreatedAt:   row.CreationDate,
		}
		if err := tx.InsertMovie(movie); err != nil {
			return &RowError{RowID: row.ID, Path: row.MovieFilePath, Err: err}
		}
		report.MoviesCreated++
	}

	mosaic := &database.Mosaic{
		MovieID:   movie.ID,
		BatchID:   batchID,
		FilePath:  row.MosaicFilePath,
		Size:      row.Size,
		Density:   row.Density,
		Layout:    row.Layout,
		Status:    database.AssetStatusCompleted,
		CreatedAt: row.CreationDate,
	}
	if err := tx.InsertMosaic(mosaic); err != nil {
		return &RowError{RowID: row.ID, Path: row.MovieFilePath, Err: err}
	}
	report.MosaicsCreated++
	return nil
}

// findMovie looks the row's movie up by path, then by hash. It returns nil
// when neither matches.
func findMovie(tx *database.Tx, row database.LegacyMosaic) (*database.Movie, error) {
	m, err := tx.GetMovieByPath(row.MovieFilePath)
	if err == nil {
		return m, nil
	}
	if !errors.Is(err, database.ErrNotFound) {
		return nil, err
	}
	if row.ContentHash == "" {
		return nil, nil
	}

	m, err = tx.GetMovieByHash(row.ContentHash)
	if err == nil {
		return m, nil
	}
	if errors.Is(err, database.ErrNotFound) {
		return nil, nil
	}
	return nil, err
}

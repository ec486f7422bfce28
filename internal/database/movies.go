package database

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"strings"
	"time"
)

const movieColumns = `id, file_path, content_hash, name, duration_seconds, width, height, codec, file_size, created_at, last_scan_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMovie(row rowScanner) (*Movie, error) {
	var m Movie
	var hash sql.NullString
	var createdAt, lastScanAt int64

	err := row.Scan(&m.ID, &m.FilePath, &hash, &m.Name, &m.DurationSeconds,
		&m.Width, &m.Height, &m.Codec, &m.FileSize, &createdAt, &lastScanAt)
	if err != nil {
		return nil, err
	}

	m.ContentHash = hash.String
	m.CreatedAt = unixTime(createdAt)
	m.LastScanAt = unixTime(lastScanAt)
	return &m, nil
}

func getMovieBy(ctx context.Context, q querier, column string, value any) (*Movie, error) {
	// column is one of the fixed identifiers below, never caller input.
	m, err := scanMovie(q.QueryRowContext(ctx,
		"SELECT "+movieColumns+" FROM movies WHERE "+column+" = ?", value))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("get_movie", "movie with %s %v", column, value)
	}
	return m, err
}

func insertMovie(ctx context.Context, q querier, m *Movie) error {
	now := time.Now()
	if m.CreatedAt.IsZero() {
		m.CreatedAt = now
	}
	if m.LastScanAt.IsZero() {
		m.LastScanAt = now
	}
	if m.Name == "" {
		m.Name = filepath.Base(m.FilePath)
	}

	result, err := q.ExecContext(ctx, `
		INSERT INTO movies (file_path, content_hash, name, duration_seconds, width, height, codec, file_size, created_at, last_scan_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, m.FilePath, nullString(m.ContentHash), m.Name, m.DurationSeconds, m.Width, m.Height,
		m.Codec, m.FileSize, m.CreatedAt.Unix(), m.LastScanAt.Unix())
	if err != nil {
		return err
	}

	m.ID, err = result.LastInsertId()
	return err
}

// GetMovieByPath looks up a movie by file path inside the transaction.
func (t *Tx) GetMovieByPath(path string) (*Movie, error) {
	m, err := getMovieBy(t.ctx, t.tx, "file_path", path)
	return m, wrapErr("get_movie_by_path", err)
}

// GetMovieByHash looks up a movie by content hash inside the transaction.
func (t *Tx) GetMovieByHash(hash string) (*Movie, error) {
	if hash == "" {
		return nil, notFound("get_movie_by_hash", "empty hash")
	}
	m, err := getMovieBy(t.ctx, t.tx, "content_hash", hash)
	return m, wrapErr("get_movie_by_hash", err)
}

// FindMoviesByName returns the movies whose file name is name, oldest first.
func (t *Tx) FindMoviesByName(name string) ([]Movie, error) {
	const op = "find_movies_by_name"

	rows, err := t.tx.QueryContext(t.ctx,
		"SELECT "+movieColumns+" FROM movies WHERE name = ? ORDER BY id", name)
	if err != nil {
		return nil, wrapErr(op, err)
	}
	defer rows.Close()

	var movies []Movie
	for rows.Next() {
		m, err := scanMovie(rows)
		if err != nil {
			return nil, wrapErr(op, err)
		}
		movies = append(movies, *m)
	}
	return movies, wrapErr(op, rows.Err())
}

// InsertMovie inserts m unconditionally and sets its ID.
func (t *Tx) InsertMovie(m *Movie) error {
	return wrapErr("insert_movie", insertMovie(t.ctx, t.tx, m))
}

// RegisterMovie inserts m unless a movie with the same content hash or, failing
// that, the same path already exists. An existing row has its last scan time
// refreshed and is returned with created == false. A path match also takes the
// new probe results, since the file at that path may have changed.
func (t *Tx) RegisterMovie(m *Movie) (movie *Movie, created bool, err error) {
	const op = "register_movie"
	now := time.Now()

	if m.ContentHash != "" {
		existing, err := t.GetMovieByHash(m.ContentHash)
		switch {
		case err == nil:
			if _, err := t.tx.ExecContext(t.ctx,
				"UPDATE movies SET last_scan_at = ? WHERE id = ?", now.Unix(), existing.ID); err != nil {
				return nil, false, wrapErr(op, err)
			}
			existing.LastScanAt = unixTime(now.Unix())
			return existing, false, nil
		case !errors.Is(err, ErrNotFound):
			return nil, false, err
		}
	}

	existing, err := t.GetMovieByPath(m.FilePath)
	switch {
	case err == nil:
		_, err := t.tx.ExecContext(t.ctx, `
			UPDATE movies SET
				content_hash = COALESCE(?, content_hash),
				duration_seconds = ?, width = ?, height = ?, codec = ?, file_size = ?,
				last_scan_at = ?
			WHERE id = ?
		`, nullString(m.ContentHash), m.DurationSeconds, m.Width, m.Height, m.Codec, m.FileSize,
			now.Unix(), existing.ID)
		if err != nil {
			return nil, false, wrapErr(op, err)
		}
		updated, err := t.GetMovieByPath(m.FilePath)
		return updated, false, err
	case !errors.Is(err, ErrNotFound):
		return nil, false, err
	}

	fresh := *m
	fresh.LastScanAt = now
	if err := insertMovie(t.ctx, t.tx, &fresh); err != nil {
		return nil, false, wrapErr(op, err)
	}
	return &fresh, true, nil
}

// RegisterMovie runs Tx.RegisterMovie in its own transaction.
func (d *Database) RegisterMovie(ctx context.Context, m *Movie) (movie *Movie, created bool, err error) {
	err = d.write(ctx, "register_movie", func(tx *Tx) error {
		movie, created, err = tx.RegisterMovie(m)
		return err
	})
	return movie, created, err
}

// GetMovie retrieves a movie by id.
func (d *Database) GetMovie(ctx context.Context, id int64) (*Movie, error) {
	var m *Movie
	err := d.read(ctx, "get_movie", func(ctx context.Context, q querier) error {
		var err error
		m, err = getMovieBy(ctx, q, "id", id)
		return err
	})
	return m, err
}

// GetMovieByPath retrieves a movie by file path.
func (d *Database) GetMovieByPath(ctx context.Context, path string) (*Movie, error) {
	var m *Movie
	err := d.read(ctx, "get_movie_by_path", func(ctx context.Context, q querier) error {
		var err error
		m, err = getMovieBy(ctx, q, "file_path", path)
		return err
	})
	return m, err
}

// GetMovieByHash retrieves a movie by content hash.
func (d *Database) GetMovieByHash(ctx context.Context, hash string) (*Movie, error) {
	var m *Movie
	err := d.read(ctx, "get_movie_by_hash", func(ctx context.Context, q querier) error {
		var err error
		m, err = getMovieBy(ctx, q, "content_hash", hash)
		return err
	})
	return m, err
}

// ListMovies returns movies ordered by id. A limit of zero or less returns all.
func (d *Database) ListMovies(ctx context.Context, limit, offset int) ([]Movie, error) {
	if limit <= 0 {
		limit = -1
	}

	var movies []Movie
	err := d.read(ctx, "list_movies", func(ctx context.Context, q querier) error {
		rows, err := q.QueryContext(ctx,
			"SELECT "+movieColumns+" FROM movies ORDER BY id LIMIT ? OFFSET ?", limit, offset)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			m, err := scanMovie(rows)
			if err != nil {
				return err
			}
			movies = append(movies, *m)
		}
		return rows.Err()
	})
	return movies, err
}

// GetMoviesByIDs returns the movies with the given ids in the order given.
// A missing id fails the whole lookup.
func (d *Database) GetMoviesByIDs(ctx context.Context, ids []int64) ([]Movie, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	byID := make(map[int64]Movie, len(ids))
	err := d.read(ctx, "get_movies_by_ids", func(ctx context.Context, q querier) error {
		placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
		args := make([]any, len(ids))
		for i, id := range ids {
			args[i] = id
		}

		rows, err := q.QueryContext(ctx,
			"SELECT "+movieColumns+" FROM movies WHERE id IN ("+placeholders+")", args...)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			m, err := scanMovie(rows)
			if err != nil {
				return err
			}
			byID[m.ID] = *m
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}

	movies := make([]Movie, 0, len(ids))
	for _, id := range ids {
		m, ok := byID[id]
		if !ok {
			return nil, notFound("get_movies_by_ids", "movie %d", id)
		}
		movies = append(movies, m)
	}
	return movies, nil
}

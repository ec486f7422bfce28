package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

func batchTable(kind BatchKind) (string, error) {
	switch kind {
	case BatchKindMosaic:
		return "mosaic_batches", nil
	case BatchKindPreview:
		return "preview_batches", nil
	}
	return "", fmt.Errorf("%w: unknown batch kind %q", ErrSchema, kind)
}

const batchColumns = `id, started_at, ended_at, status, settings, error_message, item_count, failed_count`

func scanBatch(row rowScanner, kind BatchKind) (*Batch, error) {
	var b Batch
	var startedAt int64
	var endedAt sql.NullInt64
	var settings string
	var errMsg sql.NullString

	if err := row.Scan(&b.ID, &startedAt, &endedAt, &b.Status, &settings, &errMsg, &b.ItemCount, &b.FailedCount); err != nil {
		return nil, err
	}

	b.Kind = kind
	b.StartedAt = unixTime(startedAt)
	b.EndedAt = nullTime(endedAt)
	b.Settings = json.RawMessage(settings)
	b.ErrorMessage = errMsg.String
	return &b, nil
}

func getBatch(ctx context.Context, q querier, kind BatchKind, id int64) (*Batch, error) {
	table, err := batchTable(kind)
	if err != nil {
		return nil, err
	}
	b, err := scanBatch(q.QueryRowContext(ctx, "SELECT "+batchColumns+" FROM "+table+" WHERE id = ?", id), kind)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("get_batch", "%s batch %d", kind, id)
	}
	return b, err
}

// InsertBatch inserts b as given, including its status, and sets its ID. The
// pipeline opens running batches; the migration inserts a completed one.
func (t *Tx) InsertBatch(b *Batch) error {
	const op = "insert_batch"

	table, err := batchTable(b.Kind)
	if err != nil {
		return wrapErr(op, err)
	}
	if b.StartedAt.IsZero() {
		b.StartedAt = time.Now()
	}
	if b.Status == "" {
		b.Status = BatchStatusRunning
	}
	if len(b.Settings) == 0 {
		b.Settings = json.RawMessage("{}")
	}

	var endedAt sql.NullInt64
	if b.EndedAt != nil {
		endedAt = sql.NullInt64{Int64: b.EndedAt.Unix(), Valid: true}
	}

	result, err := t.tx.ExecContext(t.ctx, "INSERT INTO "+table+`
		(started_at, ended_at, status, settings, error_message, item_count, failed_count)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, b.StartedAt.Unix(), endedAt, b.Status, string(b.Settings), nullString(b.ErrorMessage), b.ItemCount, b.FailedCount)
	if err != nil {
		return wrapErr(op, err)
	}

	b.ID, err = result.LastInsertId()
	return wrapErr(op, err)
}

// FinishBatch moves a running batch to a terminal status. Terminal batches
// are immutable, so finishing one twice fails with ErrBatchClosed.
func (t *Tx) FinishBatch(kind BatchKind, id int64, status BatchStatus, errMsg string, failedCount int) error {
	const op = "finish_batch"

	if status == BatchStatusRunning {
		return wrapErr(op, fmt.Errorf("%w: cannot finish into %q", ErrBatchClosed, status))
	}
	table, err := batchTable(kind)
	if err != nil {
		return wrapErr(op, err)
	}

	result, err := t.tx.ExecContext(t.ctx, "UPDATE "+table+`
		SET status = ?, ended_at = ?, error_message = ?, failed_count = ?
		WHERE id = ? AND status = 'running'
	`, status, time.Now().Unix(), nullString(errMsg), failedCount, id)
	if err != nil {
		return wrapErr(op, err)
	}

	if n, _ := result.RowsAffected(); n == 0 {
		if _, err := getBatch(t.ctx, t.tx, kind, id); err != nil {
			return wrapErr(op, err)
		}
		return wrapErr(op, fmt.Errorf("%w: %s batch %d", ErrBatchClosed, kind, id))
	}
	return nil
}

// GetBatch reads a batch inside the transaction.
func (t *Tx) GetBatch(kind BatchKind, id int64) (*Batch, error) {
	b, err := getBatch(t.ctx, t.tx, kind, id)
	return b, wrapErr("get_batch", err)
}

// InsertMosaic inserts m and sets its ID. The movie and batch must exist.
func (t *Tx) InsertMosaic(m *Mosaic) error {
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now()
	}
	if m.Status == "" {
		m.Status = AssetStatusCompleted
	}

	result, err := t.tx.ExecContext(t.ctx, `
		INSERT INTO mosaics (movie_id, batch_id, file_path, size, density, layout, status, error_message, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, m.MovieID, m.BatchID, m.FilePath, m.Size, m.Density, m.Layout, m.Status, nullString(m.ErrorMessage), m.CreatedAt.Unix())
	if err != nil {
		return wrapErr("insert_mosaic", err)
	}

	m.ID, err = result.LastInsertId()
	return wrapErr("insert_mosaic", err)
}

// InsertPreview inserts p and sets its ID. The movie, batch and optional
// mosaic must exist.
func (t *Tx) InsertPreview(p *Preview) error {
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now()
	}
	if p.Status == "" {
		p.Status = AssetStatusCompleted
	}

	var mosaicID sql.NullInt64
	if p.MosaicID != nil {
		mosaicID = sql.NullInt64{Int64: *p.MosaicID, Valid: true}
	}

	result, err := t.tx.ExecContext(t.ctx, `
		INSERT INTO previews (movie_id, batch_id, mosaic_id, file_path, preview_type, size, duration_seconds, status, error_message, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, p.MovieID, p.BatchID, mosaicID, p.FilePath, p.PreviewType, p.Size, p.DurationSeconds,
		p.Status, nullString(p.ErrorMessage), p.CreatedAt.Unix())
	if err != nil {
		return wrapErr("insert_preview", err)
	}

	p.ID, err = result.LastInsertId()
	return wrapErr("insert_preview", err)
}

// CountMosaicsInBatch counts the mosaic rows owned by a batch.
func (t *Tx) CountMosaicsInBatch(batchID int64) (int, error) {
	var n int
	err := t.tx.QueryRowContext(t.ctx, "SELECT COUNT(*) FROM mosaics WHERE batch_id = ?", batchID).Scan(&n)
	return n, wrapErr("count_mosaics_in_batch", err)
}

// CreateBatch opens a running batch in its own transaction.
func (d *Database) CreateBatch(ctx context.Context, kind BatchKind, settings json.RawMessage, itemCount int) (*Batch, error) {
	b := &Batch{Kind: kind, Status: BatchStatusRunning, Settings: settings, ItemCount: itemCount}
	err := d.write(ctx, "create_batch", func(tx *Tx) error {
		return tx.InsertBatch(b)
	})
	if err != nil {
		return nil, err
	}
	return b, nil
}

// CreateMosaicBatch opens a running mosaic batch.
func (d *Database) CreateMosaicBatch(ctx context.Context, settings json.RawMessage, itemCount int) (*Batch, error) {
	return d.CreateBatch(ctx, BatchKindMosaic, settings, itemCount)
}

// CreatePreviewBatch opens a running preview batch.
func (d *Database) CreatePreviewBatch(ctx context.Context, settings json.RawMessage, itemCount int) (*Batch, error) {
	return d.CreateBatch(ctx, BatchKindPreview, settings, itemCount)
}

// FinishBatch runs Tx.FinishBatch in its own transaction.
func (d *Database) FinishBatch(ctx context.Context, kind BatchKind, id int64, status BatchStatus, errMsg string, failedCount int) error {
	return d.write(ctx, "finish_batch", func(tx *Tx) error {
		return tx.FinishBatch(kind, id, status, errMsg, failedCount)
	})
}

// CreateMosaicBatchWithAssets records a finished batch together with all of
// its mosaics. Either every row is written or none is.
func (d *Database) CreateMosaicBatchWithAssets(ctx context.Context, settings json.RawMessage, mosaics []Mosaic) (*Batch, error) {
	now := time.Now()
	b := &Batch{
		Kind:      BatchKindMosaic,
		StartedAt: now,
		EndedAt:   &now,
		Status:    BatchStatusCompleted,
		Settings:  settings,
		ItemCount: len(mosaics),
	}

	err := d.write(ctx, "create_mosaic_batch_with_assets", func(tx *Tx) error {
		if err := tx.InsertBatch(b); err != nil {
			return err
		}
		for i := range mosaics {
			mosaics[i].BatchID = b.ID
			if err := tx.InsertMosaic(&mosaics[i]); err != nil {
				return err
			}
			if mosaics[i].Status == AssetStatusFailed {
				b.FailedCount++
			}
		}
		if b.FailedCount == 0 {
			return nil
		}
		_, err := tx.tx.ExecContext(tx.ctx,
			"UPDATE mosaic_batches SET failed_count = ? WHERE id = ?", b.FailedCount, b.ID)
		return wrapErr("create_mosaic_batch_with_assets", err)
	})
	if err != nil {
		return nil, err
	}
	return b, nil
}

// GetBatch retrieves a batch of the given kind.
func (d *Database) GetBatch(ctx context.Context, kind BatchKind, id int64) (*Batch, error) {
	var b *Batch
	err := d.read(ctx, "get_batch", func(ctx context.Context, q querier) error {
		var err error
		b, err = getBatch(ctx, q, kind, id)
		return err
	})
	return b, err
}

// GetMosaicBatch retrieves a mosaic batch.
func (d *Database) GetMosaicBatch(ctx context.Context, id int64) (*Batch, error) {
	return d.GetBatch(ctx, BatchKindMosaic, id)
}

// GetPreviewBatch retrieves a preview batch.
func (d *Database) GetPreviewBatch(ctx context.Context, id int64) (*Batch, error) {
	return d.GetBatch(ctx, BatchKindPreview, id)
}

// ListBatches returns batches of a kind, newest first.
func (d *Database) ListBatches(ctx context.Context, kind BatchKind, limit int) ([]Batch, error) {
	if limit <= 0 {
		limit = -1
	}

	var batches []Batch
	err := d.read(ctx, "list_batches", func(ctx context.Context, q querier) error {
		table, err := batchTable(kind)
		if err != nil {
			return err
		}
		rows, err := q.QueryContext(ctx, "SELECT "+batchColumns+" FROM "+table+" ORDER BY id DESC LIMIT ?", limit)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			b, err := scanBatch(rows, kind)
			if err != nil {
				return err
			}
			batches = append(batches, *b)
		}
		return rows.Err()
	})
	return batches, err
}

// ListMosaicBatches returns mosaic batches, newest first.
func (d *Database) ListMosaicBatches(ctx context.Context, limit int) ([]Batch, error) {
	return d.ListBatches(ctx, BatchKindMosaic, limit)
}

// ListPreviewBatches returns preview batches, newest first.
func (d *Database) ListPreviewBatches(ctx context.Context, limit int) ([]Batch, error) {
	return d.ListBatches(ctx, BatchKindPreview, limit)
}

const mosaicColumns = `id, movie_id, batch_id, file_path, size, density, layout, status, error_message, created_at`

func scanMosaic(row rowScanner) (*Mosaic, error) {
	var m Mosaic
	var errMsg sql.NullString
	var createdAt int64
	if err := row.Scan(&m.ID, &m.MovieID, &m.BatchID, &m.FilePath, &m.Size, &m.Density, &m.Layout,
		&m.Status, &errMsg, &createdAt); err != nil {
		return nil, err
	}
	m.ErrorMessage = errMsg.String
	m.CreatedAt = unixTime(createdAt)
	return &m, nil
}

const previewColumns = `id, movie_id, batch_id, mosaic_id, file_path, preview_type, size, duration_seconds, status, error_message, created_at`

func scanPreview(row rowScanner) (*Preview, error) {
	var p Preview
	var mosaicID sql.NullInt64
	var errMsg sql.NullString
	var createdAt int64
	if err := row.Scan(&p.ID, &p.MovieID, &p.BatchID, &mosaicID, &p.FilePath, &p.PreviewType, &p.Size,
		&p.DurationSeconds, &p.Status, &errMsg, &createdAt); err != nil {
		return nil, err
	}
	if mosaicID.Valid {
		id := mosaicID.Int64
		p.MosaicID = &id
	}
	p.ErrorMessage = errMsg.String
	p.CreatedAt = unixTime(createdAt)
	return &p, nil
}

// ListMosaicsByBatch returns the mosaics owned by a batch.
func (d *Database) ListMosaicsByBatch(ctx context.Context, batchID int64) ([]Mosaic, error) {
	var mosaics []Mosaic
	err := d.read(ctx, "list_mosaics_by_batch", func(ctx context.Context, q querier) error {
		rows, err := q.QueryContext(ctx, "SELECT "+mosaicColumns+" FROM mosaics WHERE batch_id = ? ORDER BY id", batchID)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			m, err := scanMosaic(rows)
			if err != nil {
				return err
			}
			mosaics = append(mosaics, *m)
		}
		return rows.Err()
	})
	return mosaics, err
}

// ListPreviewsByBatch returns the previews owned by a batch.
func (d *Database) ListPreviewsByBatch(ctx context.Context, batchID int64) ([]Preview, error) {
	var previews []Preview
	err := d.read(ctx, "list_previews_by_batch", func(ctx context.Context, q querier) error {
		rows, err := q.QueryContext(ctx, "SELECT "+previewColumns+" FROM previews WHERE batch_id = ? ORDER BY id", batchID)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			p, err := scanPreview(rows)
			if err != nil {
				return err
			}
			previews = append(previews, *p)
		}
		return rows.Err()
	})
	return previews, err
}

func latestMosaicForMovie(ctx context.Context, q querier, movieID int64) (*Mosaic, error) {
	m, err := scanMosaic(q.QueryRowContext(ctx, "SELECT "+mosaicColumns+`
		FROM mosaics WHERE movie_id = ? AND status = 'completed'
		ORDER BY created_at DESC, id DESC LIMIT 1
	`, movieID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("latest_mosaic_for_movie", "no mosaic for movie %d", movieID)
	}
	return m, err
}

// LatestMosaicForMovie returns the newest completed mosaic of a movie.
func (d *Database) LatestMosaicForMovie(ctx context.Context, movieID int64) (*Mosaic, error) {
	var m *Mosaic
	err := d.read(ctx, "latest_mosaic_for_movie", func(ctx context.Context, q querier) error {
		var err error
		m, err = latestMosaicForMovie(ctx, q, movieID)
		return err
	})
	return m, err
}

// LatestMosaicID returns the id of the movie's newest completed mosaic, or
// nil if it has none.
func (t *Tx) LatestMosaicID(movieID int64) (*int64, error) {
	m, err := latestMosaicForMovie(t.ctx, t.tx, movieID)
	switch {
	case errors.Is(err, ErrNotFound):
		return nil, nil
	case err != nil:
		return nil, wrapErr("latest_mosaic_id", err)
	}
	return &m.ID, nil
}

// HasCompletedMosaic reports whether a movie already has a completed mosaic
// with the given descriptors.
func (d *Database) HasCompletedMosaic(ctx context.Context, movieID int64, size, density, layout string) (bool, error) {
	var exists bool
	err := d.read(ctx, "has_completed_mosaic", func(ctx context.Context, q querier) error {
		return q.QueryRowContext(ctx, `
			SELECT EXISTS(SELECT 1 FROM mosaics
				WHERE movie_id = ? AND status = 'completed' AND size = ? AND density = ? AND layout = ?)
		`, movieID, size, density, layout).Scan(&exists)
	})
	return exists, err
}

// HasCompletedPreview reports whether a movie already has a completed preview
// with the given type and size.
func (d *Database) HasCompletedPreview(ctx context.Context, movieID int64, previewType, size string) (bool, error) {
	var exists bool
	err := d.read(ctx, "has_completed_preview", func(ctx context.Context, q querier) error {
		return q.QueryRowContext(ctx, `
			SELECT EXISTS(SELECT 1 FROM previews
				WHERE movie_id = ? AND status = 'completed' AND preview_type = ? AND size = ?)
		`, movieID, previewType, size).Scan(&exists)
	})
	return exists, err
}

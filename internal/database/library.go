package database

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

const libraryItemColumns = `id, kind, name, url, parent_id, scanned_at, created_at`

func scanLibraryItem(row rowScanner) (*LibraryItem, error) {
	var item LibraryItem
	var parentID, scannedAt sql.NullInt64
	var createdAt int64

	if err := row.Scan(&item.ID, &item.Kind, &item.Name, &item.URL, &parentID, &scannedAt, &createdAt); err != nil {
		return nil, err
	}

	if parentID.Valid {
		id := parentID.Int64
		item.ParentID = &id
	}
	item.ScannedAt = nullTime(scannedAt)
	item.CreatedAt = unixTime(createdAt)
	return &item, nil
}

func getLibraryItemByURL(ctx context.Context, q querier, url string) (*LibraryItem, error) {
	item, err := scanLibraryItem(q.QueryRowContext(ctx,
		"SELECT "+libraryItemColumns+" FROM library_items WHERE url = ?", url))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("get_library_item", "library item %q", url)
	}
	return item, err
}

func listChildren(ctx context.Context, q querier, parentID int64) ([]*LibraryItem, error) {
	rows, err := q.QueryContext(ctx,
		"SELECT "+libraryItemColumns+" FROM library_items WHERE parent_id = ? ORDER BY id", parentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []*LibraryItem
	for rows.Next() {
		item, err := scanLibraryItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func listItemMovies(ctx context.Context, q querier, itemID int64) ([]Movie, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT m.id, m.file_path, m.content_hash, m.name, m.duration_seconds, m.width, m.height,
			m.codec, m.file_size, m.created_at, m.last_scan_at
		FROM movies m
		JOIN library_item_movies lim ON lim.movie_id = m.id
		WHERE lim.library_item_id = ?
		ORDER BY m.id
	`, itemID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var movies []Movie
	for rows.Next() {
		m, err := scanMovie(rows)
		if err != nil {
			return nil, err
		}
		movies = append(movies, *m)
	}
	return movies, rows.Err()
}

// CreateLibraryItem inserts item with its parent reference in a single
// statement and sets its ID and CreatedAt.
func (t *Tx) CreateLibraryItem(item *LibraryItem) error {
	if item.CreatedAt.IsZero() {
		item.CreatedAt = time.Now()
	}

	var parentID sql.NullInt64
	if item.ParentID != nil {
		parentID = sql.NullInt64{Int64: *item.ParentID, Valid: true}
	}

	result, err := t.tx.ExecContext(t.ctx, `
		INSERT INTO library_items (kind, name, url, parent_id, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, item.Kind, item.Name, item.URL, parentID, item.CreatedAt.Unix())
	if err != nil {
		return wrapErr("create_library_item", err)
	}

	item.ID, err = result.LastInsertId()
	return wrapErr("create_library_item", err)
}

// AttachMovie associates a movie with a library item. Attaching twice is a no-op.
func (t *Tx) AttachMovie(itemID, movieID int64) error {
	_, err := t.tx.ExecContext(t.ctx, `
		INSERT INTO library_item_movies (library_item_id, movie_id, added_at)
		VALUES (?, ?, strftime('%s', 'now'))
		ON CONFLICT(library_item_id, movie_id) DO NOTHING
	`, itemID, movieID)
	return wrapErr("attach_movie", err)
}

// SetParent moves an existing item under parentID.
func (t *Tx) SetParent(itemID, parentID int64) error {
	result, err := t.tx.ExecContext(t.ctx,
		"UPDATE library_items SET parent_id = ? WHERE id = ?", parentID, itemID)
	if err != nil {
		return wrapErr("set_parent", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return notFound("set_parent", "library item %d", itemID)
	}
	return nil
}

// MarkScanned records that every child of the item has been visited.
func (t *Tx) MarkScanned(itemID int64, at time.Time) error {
	result, err := t.tx.ExecContext(t.ctx,
		"UPDATE library_items SET scanned_at = ? WHERE id = ?", at.Unix(), itemID)
	if err != nil {
		return wrapErr("mark_scanned", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return notFound("mark_scanned", "library item %d", itemID)
	}
	return nil
}

// GetLibraryItemByURL retrieves a library item by its cleaned absolute path.
func (d *Database) GetLibraryItemByURL(ctx context.Context, url string) (*LibraryItem, error) {
	var item *LibraryItem
	err := d.read(ctx, "get_library_item_by_url", func(ctx context.Context, q querier) error {
		var err error
		item, err = getLibraryItemByURL(ctx, q, url)
		return err
	})
	return item, err
}

// ListChildren returns the direct children of a library item.
func (d *Database) ListChildren(ctx context.Context, parentID int64) ([]*LibraryItem, error) {
	var items []*LibraryItem
	err := d.read(ctx, "list_children", func(ctx context.Context, q querier) error {
		var err error
		items, err = listChildren(ctx, q, parentID)
		return err
	})
	return items, err
}

// ListItemMovies returns the movies attached to a library item.
func (d *Database) ListItemMovies(ctx context.Context, itemID int64) ([]Movie, error) {
	var movies []Movie
	err := d.read(ctx, "list_item_movies", func(ctx context.Context, q querier) error {
		var err error
		movies, err = listItemMovies(ctx, q, itemID)
		return err
	})
	return movies, err
}

// LoadSubtree fills Children and Movies for item and all of its descendants
// from the store.
func (d *Database) LoadSubtree(ctx context.Context, item *LibraryItem) error {
	movies, err := d.ListItemMovies(ctx, item.ID)
	if err != nil {
		return err
	}
	for _, m := range movies {
		item.AddMovie(m)
	}

	children, err := d.ListChildren(ctx, item.ID)
	if err != nil {
		return err
	}
	for _, child := range children {
		if err := d.LoadSubtree(ctx, child); err != nil {
			return err
		}
		item.AddChild(child)
	}
	return nil
}

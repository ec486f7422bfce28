package database

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

func getPlaylist(ctx context.Context, q querier, id int64) (*Playlist, error) {
	var p Playlist
	var createdAt, updatedAt int64
	err := q.QueryRowContext(ctx, "SELECT id, name, created_at, updated_at FROM playlists WHERE id = ?", id).
		Scan(&p.ID, &p.Name, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("get_playlist", "playlist %d", id)
	}
	if err != nil {
		return nil, err
	}
	p.CreatedAt = unixTime(createdAt)
	p.UpdatedAt = unixTime(updatedAt)
	return &p, nil
}

func listPlaylistItems(ctx context.Context, q querier, playlistID int64) ([]PlaylistItem, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT pi.id, pi.playlist_id, pi.movie_id, pi.position, pi.added_at, m.name, m.file_path
		FROM playlist_items pi
		JOIN movies m ON m.id = pi.movie_id
		WHERE pi.playlist_id = ?
		ORDER BY pi.position
	`, playlistID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []PlaylistItem
	for rows.Next() {
		var item PlaylistItem
		var addedAt int64
		if err := rows.Scan(&item.ID, &item.PlaylistID, &item.MovieID, &item.Position, &addedAt,
			&item.MovieName, &item.MoviePath); err != nil {
			return nil, err
		}
		item.AddedAt = unixTime(addedAt)
		items = append(items, item)
	}
	return items, rows.Err()
}

// CreatePlaylist inserts a playlist and sets its ID.
func (t *Tx) CreatePlaylist(p *Playlist) error {
	now := time.Now()
	p.CreatedAt, p.UpdatedAt = now, now

	result, err := t.tx.ExecContext(t.ctx,
		"INSERT INTO playlists (name, created_at, updated_at) VALUES (?, ?, ?)",
		p.Name, now.Unix(), now.Unix())
	if err != nil {
		return wrapErr("create_playlist", err)
	}
	p.ID, err = result.LastInsertId()
	return wrapErr("create_playlist", err)
}

// AddPlaylistItem appends a movie at MAX(position)+1, or 0 for an empty
// playlist.
func (t *Tx) AddPlaylistItem(playlistID, movieID int64) (*PlaylistItem, error) {
	const op = "add_playlist_item"

	var next int
	if err := t.tx.QueryRowContext(t.ctx,
		"SELECT COALESCE(MAX(position) + 1, 0) FROM playlist_items WHERE playlist_id = ?", playlistID).
		Scan(&next); err != nil {
		return nil, wrapErr(op, err)
	}

	now := time.Now()
	result, err := t.tx.ExecContext(t.ctx, `
		INSERT INTO playlist_items (playlist_id, movie_id, position, added_at) VALUES (?, ?, ?, ?)
	`, playlistID, movieID, next, now.Unix())
	if err != nil {
		return nil, wrapErr(op, err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, wrapErr(op, err)
	}

	if _, err := t.tx.ExecContext(t.ctx,
		"UPDATE playlists SET updated_at = ? WHERE id = ?", now.Unix(), playlistID); err != nil {
		return nil, wrapErr(op, err)
	}

	return &PlaylistItem{ID: id, PlaylistID: playlistID, MovieID: movieID, Position: next, AddedAt: now}, nil
}

// CreatePlaylist creates an empty playlist.
func (d *Database) CreatePlaylist(ctx context.Context, name string) (*Playlist, error) {
	p := &Playlist{Name: name}
	err := d.write(ctx, "create_playlist", func(tx *Tx) error {
		return tx.CreatePlaylist(p)
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

// AddPlaylistItem appends a movie to a playlist in its own transaction.
func (d *Database) AddPlaylistItem(ctx context.Context, playlistID, movieID int64) (*PlaylistItem, error) {
	var item *PlaylistItem
	err := d.write(ctx, "add_playlist_item", func(tx *Tx) error {
		var err error
		item, err = tx.AddPlaylistItem(playlistID, movieID)
		return err
	})
	return item, err
}

// RemovePlaylistItem deletes the item at position. Later positions keep
// their values; CompactPlaylist closes the gap.
func (d *Database) RemovePlaylistItem(ctx context.Context, playlistID int64, position int) error {
	return d.write(ctx, "remove_playlist_item", func(tx *Tx) error {
		result, err := tx.tx.ExecContext(tx.ctx,
			"DELETE FROM playlist_items WHERE playlist_id = ? AND position = ?", playlistID, position)
		if err != nil {
			return err
		}
		if n, _ := result.RowsAffected(); n == 0 {
			return notFound("remove_playlist_item", "playlist %d position %d", playlistID, position)
		}
		_, err = tx.tx.ExecContext(tx.ctx,
			"UPDATE playlists SET updated_at = strftime('%s', 'now') WHERE id = ?", playlistID)
		return err
	})
}

// CompactPlaylist renumbers a playlist's positions to 0..n-1 in their
// current order.
func (d *Database) CompactPlaylist(ctx context.Context, playlistID int64) error {
	return d.write(ctx, "compact_playlist", func(tx *Tx) error {
		rows, err := tx.tx.QueryContext(tx.ctx,
			"SELECT id FROM playlist_items WHERE playlist_id = ? ORDER BY position", playlistID)
		if err != nil {
			return err
		}
		var ids []int64
		for rows.Next() {
			var id int64
			if err := rows.Scan(&id); err != nil {
				rows.Close()
				return err
			}
			ids = append(ids, id)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}

		// Move everything to negative positions first so the renumbering
		// never collides with UNIQUE(playlist_id, position).
		if _, err := tx.tx.ExecContext(tx.ctx,
			"UPDATE playlist_items SET position = -position - 1 WHERE playlist_id = ?", playlistID); err != nil {
			return err
		}
		for i, id := range ids {
			if _, err := tx.tx.ExecContext(tx.ctx,
				"UPDATE playlist_items SET position = ? WHERE id = ?", i, id); err != nil {
				return err
			}
		}
		return nil
	})
}

// GetPlaylist returns a playlist with its items.
func (d *Database) GetPlaylist(ctx context.Context, id int64) (*Playlist, error) {
	var p *Playlist
	err := d.read(ctx, "get_playlist", func(ctx context.Context, q querier) error {
		var err error
		if p, err = getPlaylist(ctx, q, id); err != nil {
			return err
		}
		p.Items, err = listPlaylistItems(ctx, q, id)
		return err
	})
	return p, err
}

// ListPlaylists returns all playlists without their items.
func (d *Database) ListPlaylists(ctx context.Context) ([]Playlist, error) {
	var playlists []Playlist
	err := d.read(ctx, "list_playlists", func(ctx context.Context, q querier) error {
		rows, err := q.QueryContext(ctx, "SELECT id, name, created_at, updated_at FROM playlists ORDER BY name COLLATE NOCASE, id")
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var p Playlist
			var createdAt, updatedAt int64
			if err := rows.Scan(&p.ID, &p.Name, &createdAt, &updatedAt); err != nil {
				return err
			}
			p.CreatedAt = unixTime(createdAt)
			p.UpdatedAt = unixTime(updatedAt)
			playlists = append(playlists, p)
		}
		return rows.Err()
	})
	return playlists, err
}

// ListPlaylistItems returns a playlist's items ordered by position.
func (d *Database) ListPlaylistItems(ctx context.Context, playlistID int64) ([]PlaylistItem, error) {
	var items []PlaylistItem
	err := d.read(ctx, "list_playlist_items", func(ctx context.Context, q querier) error {
		var err error
		items, err = listPlaylistItems(ctx, q, playlistID)
		return err
	})
	return items, err
}

package playlist

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"media-registry/internal/database"
	"media-registry/internal/logging"
)

var log = logging.With("playlist")

// Resolution records how one entry was matched.
type Resolution struct {
	Entry   Entry  `json:"entry"`
	MovieID int64  `json:"movieId,omitempty"`
	Method  string `json:"method,omitempty"` // "path", "relative" or "name"
	Reason  string `json:"reason,omitempty"` // set when unresolved
}

// ImportResult is the outcome of importing one playlist file.
type ImportResult struct {
	Playlist   *database.Playlist `json:"playlist"`
	Resolved   []Resolution       `json:"resolved"`
	Unresolved []Resolution       `json:"unresolved"`
}

// Importer creates registry playlists from playlist files.
type Importer struct {
	db *database.Database
}

// NewImporter returns an importer writing to db.
func NewImporter(db *database.Database) *Importer {
	return &Importer{db: db}
}

// ImportWPL parses wplPath and stores it as a new playlist holding every
// entry that resolves to a registered movie, in file order. The playlist and
// its items are written in one transaction.
func (im *Importer) ImportWPL(ctx context.Context, wplPath string) (*ImportResult, error) {
	abs, err := filepath.Abs(wplPath)
	if err != nil {
		return nil, err
	}
	f, err := ParseWPL(abs)
	if err != nil {
		return nil, err
	}

	result := &ImportResult{Playlist: &database.Playlist{Name: f.Name}}
	dir := filepath.Dir(abs)

	err = im.db.WithTx(ctx, func(tx *database.Tx) error {
		result.Resolved, result.Unresolved = nil, nil
		if err := tx.CreatePlaylist(result.Playlist); err != nil {
			return err
		}

		items := make([]database.PlaylistItem, 0, len(f.Entries))
		for _, e := range f.Entries {
			res, err := resolve(tx, e, dir)
			if err != nil {
				return fmt.Errorf("resolve %q: %w", e.Src, err)
			}
			if res.MovieID == 0 {
				result.Unresolved = append(result.Unresolved, res)
				continue
			}

			item, err := tx.AddPlaylistItem(result.Playlist.ID, res.MovieID)
			if err != nil {
				return err
			}
			items = append(items, *item)
			result.Resolved = append(result.Resolved, res)
		}
		result.Playlist.Items = items
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Info("Imported playlist %q from %s: %d items, %d unresolved",
		f.Name, filepath.Base(abs), len(result.Resolved), len(result.Unresolved))
	for _, u := range result.Unresolved {
		log.Debug("Unresolved playlist entry %q: %s", u.Entry.Src, u.Reason)
	}
	return result, nil
}

func resolve(tx *database.Tx, e Entry, playlistDir string) (Resolution, error) {
	res := Resolution{Entry: e}

	if p, method, ok := e.localPath(playlistDir); ok {
		m, err := tx.GetMovieByPath(p)
		if err == nil {
			res.MovieID = m.ID
			res.Method = method
			return res, nil
		}
		if !errors.Is(err, database.ErrNotFound) {
			return res, err
		}
	}

	movies, err := tx.FindMoviesByName(e.Name)
	if err != nil {
		return res, err
	}
	switch len(movies) {
	case 0:
		res.Reason = "no registered movie matches"
	case 1:
		res.MovieID = movies[0].ID
		res.Method = "name"
	default:
		res.Reason = fmt.Sprintf("%d registered movies are named %s", len(movies), e.Name)
	}
	return res, nil
}

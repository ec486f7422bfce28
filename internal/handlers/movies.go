package handlers

import (
	"errors"
	"net/http"
	"path/filepath"

	"media-registry/internal/database"
)

const defaultMovieListLimit = 100

// MovieDetail is a movie with its newest completed mosaic.
type MovieDetail struct {
	*database.Movie
	LatestMosaic *database.Mosaic `json:"latestMosaic,omitempty"`
}

// ListMovies returns registered movies ordered by id.
func (h *Handlers) ListMovies(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", defaultMovieListLimit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	offset, err := queryInt(r, "offset", 0)
	if err != nil {
		writeError(w, r, err)
		return
	}

	movies, err := h.db.ListMovies(r.Context(), limit, offset)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if movies == nil {
		movies = []database.Movie{}
	}
	writeJSONCode(w, http.StatusOK, movies)
}

// GetMovie returns one movie.
func (h *Handlers) GetMovie(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}

	movie, err := h.db.GetMovie(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}

	detail := MovieDetail{Movie: movie}
	mosaic, err := h.db.LatestMosaicForMovie(r.Context(), id)
	switch {
	case err == nil:
		detail.LatestMosaic = mosaic
	case errors.Is(err, database.ErrNotFound), errors.Is(err, database.ErrSchema):
		// No mosaic yet, or the asset tables await migration.
	default:
		writeError(w, r, err)
		return
	}
	writeJSONCode(w, http.StatusOK, detail)
}

// GetLibrary returns the stored tree below a scanned path.
func (h *Handlers) GetLibrary(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("url")
	if raw == "" {
		writeError(w, r, badRequest("url is required"))
		return
	}
	url, err := filepath.Abs(raw)
	if err != nil {
		writeError(w, r, badRequest("invalid url %q", raw))
		return
	}

	item, err := h.db.GetLibraryItemByURL(r.Context(), url)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.db.LoadSubtree(r.Context(), item); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSONCode(w, http.StatusOK, item)
}

// GetStats returns the row count of every registry table.
func (h *Handlers) GetStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.db.RegistryStats(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSONCode(w, http.StatusOK, stats)
}

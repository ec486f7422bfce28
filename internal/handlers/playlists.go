package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"media-registry/internal/database"
)

type createPlaylistRequest struct {
	Name string `json:"name"`
}

type addItemRequest struct {
	MovieID int64 `json:"movieId"`
}

type importRequest struct {
	Path string `json:"path"`
}

// ListPlaylists returns all playlists without their items.
func (h *Handlers) ListPlaylists(w http.ResponseWriter, r *http.Request) {
	playlists, err := h.db.ListPlaylists(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	if playlists == nil {
		playlists = []database.Playlist{}
	}
	writeJSONCode(w, http.StatusOK, playlists)
}

// CreatePlaylist creates an empty playlist.
func (h *Handlers) CreatePlaylist(w http.ResponseWriter, r *http.Request) {
	var req createPlaylistRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		writeError(w, r, badRequest("name is required"))
		return
	}

	p, err := h.db.CreatePlaylist(r.Context(), name)
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.Header().Set("Location", "/api/playlists/"+strconv.FormatInt(p.ID, 10))
	writeJSONCode(w, http.StatusCreated, p)
}

// GetPlaylist returns a playlist with its items in position order.
func (h *Handlers) GetPlaylist(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	p, err := h.db.GetPlaylist(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSONCode(w, http.StatusOK, p)
}

// AddPlaylistItem appends a movie to a playlist.
func (h *Handlers) AddPlaylistItem(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req addItemRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if req.MovieID <= 0 {
		writeError(w, r, badRequest("movieId is required"))
		return
	}

	item, err := h.db.AddPlaylistItem(r.Context(), id, req.MovieID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSONCode(w, http.StatusCreated, item)
}

// RemovePlaylistItem deletes the item at a position. Later items keep their
// positions until the playlist is compacted.
func (h *Handlers) RemovePlaylistItem(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	raw := mux.Vars(r)["position"]
	position, err := strconv.Atoi(raw)
	if err != nil || position < 0 {
		writeError(w, r, badRequest("invalid position %q", raw))
		return
	}

	if err := h.db.RemovePlaylistItem(r.Context(), id, position); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// CompactPlaylist renumbers a playlist's positions without gaps.
func (h *Handlers) CompactPlaylist(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.db.CompactPlaylist(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	p, err := h.db.GetPlaylist(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSONCode(w, http.StatusOK, p)
}

// ImportPlaylist creates a playlist from a WPL file on the server.
func (h *Handlers) ImportPlaylist(w http.ResponseWriter, r *http.Request) {
	var req importRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if req.Path == "" {
		writeError(w, r, badRequest("path is required"))
		return
	}

	result, err := h.importer.ImportWPL(r.Context(), req.Path)
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.Header().Set("Location", "/api/playlists/"+strconv.FormatInt(result.Playlist.ID, 10))
	writeJSONCode(w, http.StatusCreated, result)
}

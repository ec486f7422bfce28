package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"media-registry/internal/database"
	"media-registry/internal/migration"
	"media-registry/internal/pipeline"
	"media-registry/internal/playlist"
	"media-registry/internal/render"
)

func TestStatusFor(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"bad request", badRequest("missing %s", "path"), http.StatusBadRequest},
		{"invalid kind", fmt.Errorf("%w: %q", pipeline.ErrInvalidKind, "gif"), http.StatusBadRequest},
		{"invalid settings", fmt.Errorf("%w: size", render.ErrInvalidSettings), http.StatusBadRequest},
		{"unsupported format", render.ErrUnsupportedFormat, http.StatusBadRequest},
		{"invalid wpl", fmt.Errorf("parse: %w", playlist.ErrInvalidWPL), http.StatusBadRequest},
		{"not found", &database.StoreError{Op: "get_movie", Kind: database.KindNotFound, Err: database.ErrNotFound}, http.StatusNotFound},
		{"unique", &database.StoreError{Op: "insert_movie", Kind: database.KindUniqueViolation}, http.StatusConflict},
		{"foreign key", fmt.Errorf("add item: %w", &database.StoreError{Kind: database.KindForeignKeyViolation}), http.StatusConflict},
		{"closed batch", &database.StoreError{Kind: database.KindInvalidState}, http.StatusConflict},
		{"busy", &database.StoreError{Kind: database.KindBusy}, http.StatusServiceUnavailable},
		{"internal", &database.StoreError{Kind: database.KindInternal}, http.StatusInternalServerError},
		{"already migrated", migration.ErrAlreadyMigrated, http.StatusConflict},
		{"no legacy schema", migration.ErrNoLegacySchema, http.StatusConflict},
		{"locked", migration.ErrMigrationLocked, http.StatusConflict},
		{"row error", &migration.RowError{RowID: 2, Err: errors.New("empty path")}, http.StatusInternalServerError},
		{"missing file", fmt.Errorf("open: %w", os.ErrNotExist), http.StatusNotFound},
		{"unknown job", errJobNotFound, http.StatusNotFound},
		{"finished job", errJobFinished, http.StatusConflict},
		{"deadline", context.DeadlineExceeded, http.StatusGatewayTimeout},
		{"cancelled", context.Canceled, http.StatusRequestTimeout},
		{"plain", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := statusFor(tt.err); got != tt.want {
				t.Errorf("statusFor(%v) = %d, want %d", tt.err, got, tt.want)
			}
		})
	}
}

func TestWriteError(t *testing.T) {
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/api/movies/7", nil)

	writeError(w, r, &database.StoreError{Op: "get_movie", Kind: database.KindNotFound, Err: database.ErrNotFound})

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}
	body := decode[map[string]string](t, w)
	if body["error"] == "" {
		t.Errorf("body = %v, want an error message", body)
	}
}

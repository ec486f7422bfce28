package handlers

import (
	"context"
	"errors"
	"net/http"
	"os"

	"media-registry/internal/database"
	"media-registry/internal/logging"
	"media-registry/internal/migration"
	"media-registry/internal/pipeline"
	"media-registry/internal/playlist"
	"media-registry/internal/render"
)

// errorKinder is implemented by errors that classify themselves, such as
// *database.StoreError.
type errorKinder interface {
	ErrorKind() string
}

// statusFor maps an operation error to the HTTP status reported for it.
func statusFor(err error) int {
	var reqErr *requestError
	if errors.As(err, &reqErr) {
		return http.StatusBadRequest
	}

	switch {
	case errors.Is(err, pipeline.ErrInvalidKind),
		errors.Is(err, render.ErrInvalidSettings),
		errors.Is(err, render.ErrUnsupportedFormat),
		errors.Is(err, playlist.ErrInvalidWPL):
		return http.StatusBadRequest
	case errors.Is(err, migration.ErrNoLegacySchema),
		errors.Is(err, migration.ErrAlreadyMigrated),
		errors.Is(err, migration.ErrMigrationLocked),
		errors.Is(err, errJobFinished):
		return http.StatusConflict
	case errors.Is(err, errJobNotFound), errors.Is(err, os.ErrNotExist):
		return http.StatusNotFound
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, context.Canceled):
		return http.StatusRequestTimeout
	}

	var kinder errorKinder
	if errors.As(err, &kinder) {
		switch kinder.ErrorKind() {
		case database.KindNotFound:
			return http.StatusNotFound
		case database.KindUniqueViolation, database.KindForeignKeyViolation,
			database.KindNotNullViolation, database.KindInvalidState:
			return http.StatusConflict
		case database.KindBusy, database.KindSchema:
			return http.StatusServiceUnavailable
		}
	}
	return http.StatusInternalServerError
}

// writeError reports err with the status statusFor picks. Server-side
// failures are logged; client errors are not.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := statusFor(err)
	if code >= http.StatusInternalServerError {
		logging.Error("%s %s: %v", r.Method, r.URL.Path, err)
	}
	writeJSONError(w, err.Error(), code)
}

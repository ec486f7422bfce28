package handlers

import (
	"net/http"
	"time"
)

// MigrationStatus describes the legacy schema state of the store.
type MigrationStatus struct {
	Pending     bool       `json:"pending"`
	LegacyRows  int        `json:"legacyRows,omitempty"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
	LockPath    string     `json:"lockPath"`
}

// GetMigrationStatus reports whether a legacy migration is waiting.
func (h *Handlers) GetMigrationStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	status := MigrationStatus{LockPath: h.migrator.LockPath()}

	pending, err := h.migrator.Pending(ctx)
	if err != nil {
		writeError(w, r, err)
		return
	}
	status.Pending = pending

	if pending {
		if status.LegacyRows, err = h.db.CountLegacyRows(ctx); err != nil {
			writeError(w, r, err)
			return
		}
	} else {
		at, err := h.db.LegacyMigrationCompletedAt(ctx)
		if err != nil {
			writeError(w, r, err)
			return
		}
		if !at.IsZero() {
			status.CompletedAt = &at
		}
	}
	writeJSONCode(w, http.StatusOK, status)
}

// Migrate runs the legacy schema migration synchronously. Any failure rolls
// the store back to its legacy state.
func (h *Handlers) Migrate(w http.ResponseWriter, r *http.Request) {
	report, err := h.migrator.MigrateToNewSchema(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSONCode(w, http.StatusOK, report)
}

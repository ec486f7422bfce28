package handlers

import (
	"context"
	"net/http"
	"os"
	"path/filepath"

	"github.com/gorilla/mux"

	"media-registry/internal/database"
	"media-registry/internal/scanner"
)

type scanRequest struct {
	Path string `json:"path"`
}

// ScanResult is the result of a finished scan job.
type ScanResult struct {
	Root     *database.LibraryItem `json:"root,omitempty"`
	Progress scanner.Progress      `json:"progress"`
	Errors   []string              `json:"errors,omitempty"`
}

// StartScan starts a background scan of a directory tree.
func (h *Handlers) StartScan(w http.ResponseWriter, r *http.Request) {
	var req scanRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if req.Path == "" {
		writeError(w, r, badRequest("path is required"))
		return
	}
	root, err := filepath.Abs(req.Path)
	if err != nil {
		writeError(w, r, badRequest("invalid path %q", req.Path))
		return
	}
	if _, err := os.Stat(root); err != nil {
		writeError(w, r, err)
		return
	}

	job := h.jobs.Start(JobScan, func(ctx context.Context, update func(any)) (any, error) {
		s := scanner.New(h.db, h.extractor, h.throttle)
		s.OnProgress = func(p scanner.Progress) { update(p) }

		item, err := s.Scan(ctx, root, nil)
		result := &ScanResult{Root: item, Progress: s.Progress()}
		if item != nil {
			result.Errors = collectErrors(item)
		}
		return result, err
	})

	w.Header().Set("Location", "/api/scans/"+job.ID)
	writeJSONCode(w, http.StatusAccepted, job)
}

// GetScan returns the state of a scan job.
func (h *Handlers) GetScan(w http.ResponseWriter, r *http.Request) {
	job, err := h.scanJob(mux.Vars(r)["id"])
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.Header().Set("Cache-Control", "no-cache")
	writeJSONCode(w, http.StatusOK, job)
}

// CancelScan cancels a running scan job.
func (h *Handlers) CancelScan(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if _, err := h.scanJob(id); err != nil {
		writeError(w, r, err)
		return
	}
	h.cancelJob(w, r, id)
}

func (h *Handlers) scanJob(id string) (Job, error) {
	job, err := h.jobs.Get(id)
	if err != nil {
		return Job{}, err
	}
	if job.Type != JobScan {
		return Job{}, errJobNotFound
	}
	return job, nil
}

// collectErrors flattens the per-child errors recorded below item.
func collectErrors(item *database.LibraryItem) []string {
	errs := item.ErrorMessages()
	for _, child := range item.Children {
		errs = append(errs, collectErrors(child)...)
	}
	return errs
}

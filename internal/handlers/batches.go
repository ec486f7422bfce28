package handlers

import (
	"context"
	"net/http"
	"sort"

	"github.com/gorilla/mux"

	"media-registry/internal/database"
	"media-registry/internal/pipeline"
)

const defaultBatchListLimit = 50

type batchRequest struct {
	Kind     pipeline.Kind     `json:"kind"`
	MovieIDs []int64           `json:"movieIds"`
	All      bool              `json:"all"`
	Settings pipeline.Settings `json:"settings"`
}

// BatchDetail is a batch with the assets recorded against it.
type BatchDetail struct {
	*database.Batch
	Mosaics  []database.Mosaic  `json:"mosaics,omitempty"`
	Previews []database.Preview `json:"previews,omitempty"`
}

// StartBatch validates a generation request and runs it as a background job.
func (h *Handlers) StartBatch(w http.ResponseWriter, r *http.Request) {
	var req batchRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if err := validateBatchRequest(req); err != nil {
		writeError(w, r, err)
		return
	}

	var movies []database.Movie
	var err error
	if req.All {
		movies, err = h.db.ListMovies(r.Context(), 0, 0)
	} else {
		movies, err = h.db.GetMoviesByIDs(r.Context(), req.MovieIDs)
	}
	if err != nil {
		writeError(w, r, err)
		return
	}
	if len(movies) == 0 {
		writeError(w, r, badRequest("no movies selected"))
		return
	}

	job := h.jobs.Start(JobBatch, func(ctx context.Context, update func(any)) (any, error) {
		p := pipeline.New(h.db, h.renderer, h.throttle)
		p.OnProgress = func(pr pipeline.Progress) { update(pr) }
		batch, err := p.RunBatch(ctx, req.Kind, movies, req.Settings)
		if batch == nil {
			return nil, err
		}
		return batch, err
	})

	w.Header().Set("Location", "/api/jobs/"+job.ID)
	writeJSONCode(w, http.StatusAccepted, job)
}

func validateBatchRequest(req batchRequest) error {
	if !req.Kind.Valid() {
		return badRequest("kind must be %q or %q", pipeline.KindMosaic, pipeline.KindPreview)
	}
	if req.All == (len(req.MovieIDs) > 0) {
		return badRequest("give either movieIds or all")
	}
	if req.Kind == pipeline.KindMosaic {
		return req.Settings.Mosaic.Validate()
	}
	return req.Settings.Preview.Validate()
}

// ListJobs returns every retained job.
func (h *Handlers) ListJobs(w http.ResponseWriter, _ *http.Request) {
	writeJSONCode(w, http.StatusOK, h.jobs.List())
}

// GetJob returns the state of any job.
func (h *Handlers) GetJob(w http.ResponseWriter, r *http.Request) {
	job, err := h.jobs.Get(mux.Vars(r)["id"])
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.Header().Set("Cache-Control", "no-cache")
	writeJSONCode(w, http.StatusOK, job)
}

// CancelJob cancels any running job.
func (h *Handlers) CancelJob(w http.ResponseWriter, r *http.Request) {
	h.cancelJob(w, r, mux.Vars(r)["id"])
}

func (h *Handlers) cancelJob(w http.ResponseWriter, r *http.Request, id string) {
	job, err := h.jobs.Cancel(id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSONCode(w, http.StatusAccepted, job)
}

// ListBatches returns the newest batches of one kind, or of both when the
// kind query parameter is absent.
func (h *Handlers) ListBatches(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", defaultBatchListLimit)
	if err != nil {
		writeError(w, r, err)
		return
	}

	kinds := []database.BatchKind{database.BatchKindMosaic, database.BatchKindPreview}
	if k := r.URL.Query().Get("kind"); k != "" {
		kind := database.BatchKind(k)
		if !kind.Valid() {
			writeError(w, r, badRequest("unknown batch kind %q", k))
			return
		}
		kinds = []database.BatchKind{kind}
	}

	batches := []database.Batch{}
	for _, kind := range kinds {
		list, err := h.db.ListBatches(r.Context(), kind, limit)
		if err != nil {
			writeError(w, r, err)
			return
		}
		batches = append(batches, list...)
	}
	sort.SliceStable(batches, func(a, b int) bool {
		return batches[a].StartedAt.After(batches[b].StartedAt)
	})
	if limit > 0 && len(batches) > limit {
		batches = batches[:limit]
	}

	writeJSONCode(w, http.StatusOK, batches)
}

// GetBatch returns one batch with its assets.
func (h *Handlers) GetBatch(w http.ResponseWriter, r *http.Request) {
	kind := database.BatchKind(mux.Vars(r)["kind"])
	if !kind.Valid() {
		writeError(w, r, badRequest("unknown batch kind %q", kind))
		return
	}
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}

	batch, err := h.db.GetBatch(r.Context(), kind, id)
	if err != nil {
		writeError(w, r, err)
		return
	}

	detail := BatchDetail{Batch: batch}
	if kind == database.BatchKindMosaic {
		detail.Mosaics, err = h.db.ListMosaicsByBatch(r.Context(), id)
	} else {
		detail.Previews, err = h.db.ListPreviewsByBatch(r.Context(), id)
	}
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSONCode(w, http.StatusOK, detail)
}

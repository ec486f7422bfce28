package handlers

import (
	"context"
	"time"

	"media-registry/internal/database"
	"media-registry/internal/migration"
	"media-registry/internal/pipeline"
	"media-registry/internal/playlist"
	"media-registry/internal/scanner"
	"media-registry/internal/throttle"
)

type Handlers struct {
	db        *database.Database
	extractor scanner.Extractor
	renderer  pipeline.Renderer
	throttle  *throttle.Controller
	migrator  *migration.Engine
	importer  *playlist.Importer
	jobs      *Jobs
	startTime time.Time
}

// New wires the handlers to the registry and its collaborators. Scans and
// batches started through the API share ctrl.
func New(db *database.Database, extractor scanner.Extractor, renderer pipeline.Renderer, ctrl *throttle.Controller) *Handlers {
	if ctrl == nil {
		ctrl = throttle.New(throttle.DefaultConfig(), nil)
	}
	return &Handlers{
		db:        db,
		extractor: extractor,
		renderer:  renderer,
		throttle:  ctrl,
		migrator:  migration.NewEngine(db),
		importer:  playlist.NewImporter(db),
		jobs:      NewJobs(),
		startTime: time.Now(),
	}
}

// Shutdown cancels running jobs and waits for them to record their state.
func (h *Handlers) Shutdown(ctx context.Context) error {
	return h.jobs.Shutdown(ctx)
}

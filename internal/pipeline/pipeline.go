package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"media-registry/internal/database"
	"media-registry/internal/logging"
	"media-registry/internal/metrics"
	"media-registry/internal/render"
	"media-registry/internal/throttle"
	"media-registry/internal/workers"
)

var log = logging.With("pipeline")

// Kind selects which asset a batch generates.
type Kind = database.BatchKind

const (
	KindMosaic  = database.BatchKindMosaic
	KindPreview = database.BatchKindPreview
)

// Stage labels reported in Progress.
const (
	StageStarting  = "starting"
	StageRendering = "rendering"
	StageRecording = "recording"
	StageFinished  = "finished"
)

// ErrInvalidKind is returned for a batch kind other than mosaic or preview.
var ErrInvalidKind = errors.New("invalid batch kind")

// Renderer produces asset files for a movie.
type Renderer interface {
	RenderMosaic(ctx context.Context, movie database.Movie, settings render.MosaicSettings) (*render.Output, error)
	RenderPreview(ctx context.Context, movie database.Movie, settings render.PreviewSettings) (*render.Output, error)
}

// Settings control one batch. They are stored with the batch row.
type Settings struct {
	Mosaic       render.MosaicSettings  `json:"mosaic"`
	Preview      render.PreviewSettings `json:"preview"`
	FailFast     bool                   `json:"failFast"`
	SkipExisting bool                   `json:"skipExisting"`
	LinkMosaic   bool                   `json:"linkMosaic"`
}

// snapshot is the JSON written to the batch's settings column. Only the
// settings of the batch's own kind are included.
func (s Settings) snapshot(kind Kind) (json.RawMessage, error) {
	out := struct {
		Mosaic       *render.MosaicSettings  `json:"mosaic,omitempty"`
		Preview      *render.PreviewSettings `json:"preview,omitempty"`
		FailFast     bool                    `json:"failFast"`
		SkipExisting bool                    `json:"skipExisting"`
		LinkMosaic   bool                    `json:"linkMosaic,omitempty"`
	}{FailFast: s.FailFast, SkipExisting: s.SkipExisting}

	if kind == KindMosaic {
		out.Mosaic = &s.Mosaic
	} else {
		out.Preview = &s.Preview
		out.LinkMosaic = s.LinkMosaic
	}
	return json.Marshal(out)
}

// ItemStatus is the outcome of one movie in a batch.
type ItemStatus string

const (
	ItemCompleted ItemStatus = "completed"
	ItemFailed    ItemStatus = "failed"
	ItemSkipped   ItemStatus = "skipped"
)

// ItemResult reports one finished movie.
type ItemResult struct {
	MovieID int64      `json:"movieId"`
	Status  ItemStatus `json:"status"`
	Error   string     `json:"error,omitempty"`
	Path    string     `json:"path,omitempty"`
}

// Progress is emitted as a batch advances.
type Progress struct {
	BatchID   int64       `json:"batchId"`
	Kind      Kind        `json:"kind"`
	Total     int         `json:"total"`
	Completed int         `json:"completed"`
	Failed    int         `json:"failed"`
	Skipped   int         `json:"skipped"`
	Percent   float64     `json:"percent"`
	Stage     string      `json:"stage"`
	Item      *ItemResult `json:"item,omitempty"`
}

// Pipeline runs derived-asset batches against the registry.
type Pipeline struct {
	db       *database.Database
	renderer Renderer
	throttle *throttle.Controller

	// Concurrency caps the items in flight; permits from the controller
	// still gate the renders themselves.
	Concurrency int

	// OnProgress, if set, receives every progress update. Calls are
	// serialized.
	OnProgress func(Progress)
}

// New creates a pipeline. A nil controller admits up to the default worker
// count at once.
func New(db *database.Database, renderer Renderer, ctrl *throttle.Controller) *Pipeline {
	if ctrl == nil {
		ctrl = throttle.New(throttle.DefaultConfig(), nil)
	}
	return &Pipeline{
		db:          db,
		renderer:    renderer,
		throttle:    ctrl,
		Concurrency: workers.ForIO(0),
	}
}

// run is the state of one RunBatch call.
type run struct {
	p        *Pipeline
	batch    *database.Batch
	settings Settings

	mu        sync.Mutex
	completed int
	failed    int
	skipped   int
}

func (r *run) emit(stage string, item *ItemResult) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if item != nil {
		switch item.Status {
		case ItemCompleted:
			r.completed++
		case ItemFailed:
			r.failed++
		case ItemSkipped:
			r.skipped++
		}
		metrics.BatchItemsTotal.WithLabelValues(string(r.batch.Kind), string(item.Status)).Inc()
	}

	if r.p.OnProgress == nil {
		return
	}
	total := r.batch.ItemCount
	percent := 100.0
	if total > 0 {
		percent = float64(r.completed+r.failed+r.skipped) * 100 / float64(total)
	}
	r.p.OnProgress(Progress{
		BatchID:   r.batch.ID,
		Kind:      r.batch.Kind,
		Total:     total,
		Completed: r.completed,
		Failed:    r.failed,
		Skipped:   r.skipped,
		Percent:   percent,
		Stage:     stage,
		Item:      item,
	})
}

func (r *run) failedCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.failed
}

// RunBatch generates one asset of kind for each movie. The returned batch
// reflects its terminal state. Invalid settings fail before any batch is
// opened.
func (p *Pipeline) RunBatch(ctx context.Context, kind Kind, movies []database.Movie, settings Settings) (*database.Batch, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidKind, kind)
	}
	switch kind {
	case KindMosaic:
		if err := settings.Mosaic.Validate(); err != nil {
			return nil, err
		}
		settings.Mosaic = settings.Mosaic.Normalize()
	case KindPreview:
		if err := settings.Preview.Validate(); err != nil {
			return nil, err
		}
		settings.Preview = settings.Preview.Normalize()
	}

	snapshot, err := settings.snapshot(kind)
	if err != nil {
		return nil, fmt.Errorf("encode batch settings: %w", err)
	}

	batch, err := p.db.CreateBatch(ctx, kind, snapshot, len(movies))
	if err != nil {
		return nil, err
	}

	start := time.Now()
	metrics.BatchesRunning.WithLabelValues(string(kind)).Inc()
	defer metrics.BatchesRunning.WithLabelValues(string(kind)).Dec()

	mode := "tolerant"
	if settings.FailFast {
		mode = "fail-fast"
	}
	log.Info("Batch %s/%d started: %d movies (%s)", kind, batch.ID, len(movies), mode)

	r := &run{p: p, batch: batch, settings: settings}
	r.emit(StageStarting, nil)

	if settings.FailFast {
		err = r.runFailFast(ctx, movies)
	} else {
		err = r.runTolerant(ctx, movies)
	}

	// Read back the terminal state even when ctx is already done.
	final, getErr := p.db.GetBatch(context.WithoutCancel(ctx), kind, batch.ID)
	if getErr != nil {
		final = batch
	}

	metrics.BatchesTotal.WithLabelValues(string(kind), string(final.Status)).Inc()
	metrics.BatchDuration.WithLabelValues(string(kind)).Observe(time.Since(start).Seconds())
	r.emit(StageFinished, nil)

	if err != nil {
		log.Warn("Batch %s/%d %s: %v", kind, batch.ID, final.Status, err)
	} else {
		log.Info("Batch %s/%d completed in %v: %d failed", kind, batch.ID,
			time.Since(start).Round(time.Millisecond), final.FailedCount)
	}
	return final, err
}

// runTolerant records every item independently. Only a store failure or
// cancellation stops the batch.
func (r *run) runTolerant(ctx context.Context, movies []database.Movie) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.p.concurrency())

	for _, movie := range movies {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if gctx.Err() != nil {
				return nil
			}
			if skip, err := r.alreadyDone(gctx, movie); err != nil {
				return err
			} else if skip {
				r.emit(StageRendering, &ItemResult{MovieID: movie.ID, Status: ItemSkipped})
				return nil
			}

			out, renderErr := r.render(gctx, movie)
			if renderErr != nil && gctx.Err() != nil {
				// Interrupted, not failed.
				return nil
			}

			// A finished render is recorded even if the batch is being cancelled.
			err := r.p.db.WithTx(context.WithoutCancel(gctx), func(tx *database.Tx) error {
				return r.insertAsset(tx, movie, out, renderErr)
			})
			if err != nil {
				if out != nil {
					_ = os.Remove(out.Path)
				}
				return fmt.Errorf("record movie %d: %w", movie.ID, err)
			}
			r.emit(StageRecording, itemResult(movie.ID, out, renderErr))
			return nil
		})
	}

	groupErr := g.Wait()
	finishCtx := context.WithoutCancel(ctx)

	switch {
	case ctx.Err() != nil:
		return r.finishCancelled(finishCtx, ctx)
	case groupErr != nil:
		return r.finish(finishCtx, database.BatchStatusFailed, groupErr)
	}
	return r.finish(finishCtx, database.BatchStatusCompleted, nil)
}

// staged is a rendered asset waiting for the all-or-nothing commit.
type staged struct {
	movie database.Movie
	out   *render.Output
}

// runFailFast renders every item, stopping at the first failure, and
// records the assets in one transaction only if all of them succeeded.
func (r *run) runFailFast(ctx context.Context, movies []database.Movie) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.p.concurrency())

	var (
		mu      sync.Mutex
		results []staged
	)

	for _, movie := range movies {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if gctx.Err() != nil {
				return nil
			}
			skip, err := r.alreadyDone(gctx, movie)
			if err != nil {
				return err
			}
			if skip {
				r.emit(StageRendering, &ItemResult{MovieID: movie.ID, Status: ItemSkipped})
				return nil
			}

			out, err := r.render(gctx, movie)
			if err != nil {
				if gctx.Err() != nil {
					// Stopped by a failed sibling or by cancellation.
					return nil
				}
				r.emit(StageRendering, itemResult(movie.ID, nil, err))
				return fmt.Errorf("movie %d: %w", movie.ID, err)
			}

			mu.Lock()
			results = append(results, staged{movie: movie, out: out})
			mu.Unlock()
			r.emit(StageRendering, &ItemResult{MovieID: movie.ID, Status: ItemCompleted, Path: out.Path})
			return nil
		})
	}

	groupErr := g.Wait()
	finishCtx := context.WithoutCancel(ctx)

	discard := func() {
		for _, s := range results {
			if err := os.Remove(s.out.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
				log.Warn("Failed to remove %s: %v", s.out.Path, err)
			}
		}
	}

	switch {
	case ctx.Err() != nil:
		discard()
		return r.finishCancelled(finishCtx, ctx)
	case groupErr != nil:
		discard()
		return r.finish(finishCtx, database.BatchStatusFailed, groupErr)
	}

	r.emit(StageRecording, nil)
	err := r.p.db.WithTx(finishCtx, func(tx *database.Tx) error {
		for _, s := range results {
			if err := r.insertAsset(tx, s.movie, s.out, nil); err != nil {
				return err
			}
		}
		return tx.FinishBatch(r.batch.Kind, r.batch.ID, database.BatchStatusCompleted, "", 0)
	})
	if err != nil {
		discard()
		return r.finish(finishCtx, database.BatchStatusFailed, err)
	}
	return nil
}

func (p *Pipeline) concurrency() int {
	if p.Concurrency > 0 {
		return p.Concurrency
	}
	return workers.ForIO(0)
}

// alreadyDone reports whether SkipExisting applies to movie.
func (r *run) alreadyDone(ctx context.Context, movie database.Movie) (bool, error) {
	if !r.settings.SkipExisting {
		return false, nil
	}
	if r.batch.Kind == KindMosaic {
		m := r.settings.Mosaic
		return r.p.db.HasCompletedMosaic(ctx, movie.ID, m.Size, m.Density, m.Layout)
	}
	pv := r.settings.Preview
	return r.p.db.HasCompletedPreview(ctx, movie.ID, pv.Type, pv.Size)
}

func (r *run) render(ctx context.Context, movie database.Movie) (*render.Output, error) {
	var out *render.Output
	err := r.p.throttle.Do(ctx, func(ctx context.Context) error {
		var err error
		if r.batch.Kind == KindMosaic {
			out, err = r.p.renderer.RenderMosaic(ctx, movie, r.settings.Mosaic)
		} else {
			out, err = r.p.renderer.RenderPreview(ctx, movie, r.settings.Preview)
		}
		return err
	})
	if err != nil {
		log.Debug("Render %s for movie %d failed: %v", r.batch.Kind, movie.ID, err)
	}
	return out, err
}

// insertAsset writes the asset row for one movie: completed with the
// output, or failed with renderErr's message.
func (r *run) insertAsset(tx *database.Tx, movie database.Movie, out *render.Output, renderErr error) error {
	status := database.AssetStatusCompleted
	var path, errMsg string
	if renderErr != nil {
		status = database.AssetStatusFailed
		errMsg = renderErr.Error()
	} else {
		path = out.Path
	}

	if r.batch.Kind == KindMosaic {
		s := r.settings.Mosaic
		return tx.InsertMosaic(&database.Mosaic{
			MovieID:      movie.ID,
			BatchID:      r.batch.ID,
			FilePath:     path,
			Size:         s.Size,
			Density:      s.Density,
			Layout:       s.Layout,
			Status:       status,
			ErrorMessage: errMsg,
		})
	}

	s := r.settings.Preview
	preview := &database.Preview{
		MovieID:      movie.ID,
		BatchID:      r.batch.ID,
		FilePath:     path,
		PreviewType:  s.Type,
		Size:         s.Size,
		Status:       status,
		ErrorMessage: errMsg,
	}
	if out != nil {
		preview.DurationSeconds = out.DurationSeconds
	}
	if r.settings.LinkMosaic {
		mosaicID, err := tx.LatestMosaicID(movie.ID)
		if err != nil {
			return err
		}
		preview.MosaicID = mosaicID
	}
	return tx.InsertPreview(preview)
}

func (r *run) finish(ctx context.Context, status database.BatchStatus, cause error) error {
	var msg string
	if cause != nil {
		msg = cause.Error()
	}
	if err := r.p.db.FinishBatch(ctx, r.batch.Kind, r.batch.ID, status, msg, r.failedCount()); err != nil {
		if cause != nil {
			return fmt.Errorf("%w (closing batch: %v)", cause, err)
		}
		return err
	}
	return cause
}

func (r *run) finishCancelled(finishCtx, ctx context.Context) error {
	msg := "cancelled: " + context.Cause(ctx).Error()
	if err := r.p.db.FinishBatch(finishCtx, r.batch.Kind, r.batch.ID, database.BatchStatusFailed, msg, r.failedCount()); err != nil {
		log.Error("Failed to close cancelled batch %s/%d: %v", r.batch.Kind, r.batch.ID, err)
	}
	return ctx.Err()
}

func itemResult(movieID int64, out *render.Output, err error) *ItemResult {
	if err != nil {
		return &ItemResult{MovieID: movieID, Status: ItemFailed, Error: err.Error()}
	}
	return &ItemResult{MovieID: movieID, Status: ItemCompleted, Path: out.Path}
}

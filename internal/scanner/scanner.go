package scanner

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"media-registry/internal/database"
	"media-registry/internal/filesystem"
	"media-registry/internal/logging"
	"media-registry/internal/mediatypes"
	"media-registry/internal/metrics"
	"media-registry/internal/throttle"
)

var log = logging.With("scanner")

// ScanError is a failure attributed to one path below a scanned folder.
type ScanError struct {
	Path string
	Err  error
}

func (e *ScanError) Error() string {
	return fmt.Sprintf("scan %s: %v", e.Path, e.Err)
}

func (e *ScanError) Unwrap() error { return e.Err }

// Progress is a snapshot of a scan's counters.
type Progress struct {
	FoldersDiscovered  int64 `json:"foldersDiscovered"`
	FilesDiscovered    int64 `json:"filesDiscovered"`
	VideosRegistered   int64 `json:"videosRegistered"`
	VideosDeduplicated int64 `json:"videosDeduplicated"`
	Skipped            int64 `json:"skipped"`
	Errors             int64 `json:"errors"`
}

// Scanner walks directory trees into the registry. A Scanner runs one scan
// at a time; use one per concurrent scan.
type Scanner struct {
	db        *database.Database
	extractor Extractor
	throttle  *throttle.Controller
	retry     filesystem.RetryConfig

	// OnProgress, if set, is called after every counter change. It may be
	// called from several goroutines at once.
	OnProgress func(Progress)

	folders      atomic.Int64
	files        atomic.Int64
	registered   atomic.Int64
	deduplicated atomic.Int64
	skipped      atomic.Int64
	failures     atomic.Int64
}

// New creates a scanner. A nil controller admits up to the default worker
// count at once.
func New(db *database.Database, extractor Extractor, ctrl *throttle.Controller) *Scanner {
	if ctrl == nil {
		ctrl = throttle.New(throttle.DefaultConfig(), nil)
	}
	return &Scanner{
		db:        db,
		extractor: extractor,
		throttle:  ctrl,
		retry:     filesystem.DefaultRetryConfig(),
	}
}

// Progress returns the current counters.
func (s *Scanner) Progress() Progress {
	return Progress{
		FoldersDiscovered:  s.folders.Load(),
		FilesDiscovered:    s.files.Load(),
		VideosRegistered:   s.registered.Load(),
		VideosDeduplicated: s.deduplicated.Load(),
		Skipped:            s.skipped.Load(),
		Errors:             s.failures.Load(),
	}
}

func (s *Scanner) bump(counter *atomic.Int64, result string) {
	counter.Add(1)
	metrics.ScanEntriesTotal.WithLabelValues(result).Inc()
	if s.OnProgress != nil {
		s.OnProgress(s.Progress())
	}
}

func (s *Scanner) reset() {
	for _, c := range []*atomic.Int64{&s.folders, &s.files, &s.registered, &s.deduplicated, &s.skipped, &s.failures} {
		c.Store(0)
	}
}

// Scan registers rootPath and everything below it. An already scanned item
// is returned as stored; an unscanned folder left by an interrupted scan is
// resumed. On cancellation the partial tree is returned with ctx.Err().
// If parent is non-nil the new item is created under it and attached to it.
func (s *Scanner) Scan(ctx context.Context, rootPath string, parent *database.LibraryItem) (*database.LibraryItem, error) {
	url, err := filepath.Abs(rootPath)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", rootPath, err)
	}
	url = filepath.Clean(url)

	s.reset()
	metrics.ScansInProgress.Inc()
	defer metrics.ScansInProgress.Dec()
	start := time.Now()

	log.Info("Starting scan of %s", url)
	item, cached, err := s.scan(ctx, url, parent)
	if item != nil && parent != nil {
		parent.AddChild(item)
	}

	outcome := "completed"
	switch {
	case cached:
		outcome = "cached"
	case err != nil && ctx.Err() != nil:
		outcome = "cancelled"
	case err != nil:
		outcome = "failed"
	}
	metrics.ScansTotal.WithLabelValues(outcome).Inc()
	metrics.ScanDuration.Observe(time.Since(start).Seconds())

	p := s.Progress()
	log.Info("Scan of %s %s in %v: %d folders, %d files, %d registered, %d deduplicated, %d skipped, %d errors",
		url, outcome, time.Since(start).Round(time.Millisecond),
		p.FoldersDiscovered, p.FilesDiscovered, p.VideosRegistered, p.VideosDeduplicated, p.Skipped, p.Errors)

	return item, err
}

// scan handles one path. cached reports that the item was already scanned
// and was loaded from the store.
func (s *Scanner) scan(ctx context.Context, url string, parent *database.LibraryItem) (item *database.LibraryItem, cached bool, err error) {
	existing, err := s.db.GetLibraryItemByURL(ctx, url)
	switch {
	case err == nil:
		if err := s.adopt(ctx, existing, parent); err != nil {
			return nil, false, err
		}
		if existing.Scanned() {
			if err := s.db.LoadSubtree(ctx, existing); err != nil {
				return nil, false, err
			}
			return existing, true, nil
		}
		log.Debug("Resuming unscanned %s %s", existing.Kind, url)
		item = existing
	case errors.Is(err, database.ErrNotFound):
		item, err = s.create(ctx, url, parent)
		if err != nil {
			return nil, false, err
		}
	default:
		return nil, false, err
	}

	if item.Kind == database.ItemKindVideo {
		if err := s.processFile(ctx, item, url); err != nil {
			return item, false, err
		}
		return item, false, s.markScanned(ctx, item)
	}
	return item, false, s.scanFolder(ctx, item)
}

// adopt records parent as the stored parent of item. An item first scanned
// as a root and later reached from an ancestor is linked in the store, so the
// ancestor's subtree includes it on the next load.
func (s *Scanner) adopt(ctx context.Context, item, parent *database.LibraryItem) error {
	if parent == nil || (item.ParentID != nil && *item.ParentID == parent.ID) {
		return nil
	}
	if err := s.db.WithTx(ctx, func(tx *database.Tx) error {
		return tx.SetParent(item.ID, parent.ID)
	}); err != nil {
		return err
	}
	id := parent.ID
	item.ParentID = &id
	log.Debug("Linked %s under %s", item.URL, parent.URL)
	return nil
}

func (s *Scanner) create(ctx context.Context, url string, parent *database.LibraryItem) (*database.LibraryItem, error) {
	info, err := filesystem.StatWithRetry(ctx, url, s.retry)
	if err != nil {
		return nil, err
	}

	item := &database.LibraryItem{
		Kind: database.ItemKindFolder,
		Name: filepath.Base(url),
		URL:  url,
	}
	if !info.IsDir() {
		if !mediatypes.IsVideo(url) {
			return nil, &ScanError{Path: url, Err: ErrNotVideo}
		}
		item.Kind = database.ItemKindVideo
	}
	if parent != nil {
		id := parent.ID
		item.ParentID = &id
	}

	if err := s.db.WithTx(ctx, func(tx *database.Tx) error {
		return tx.CreateLibraryItem(item)
	}); err != nil {
		return nil, err
	}
	if item.Kind == database.ItemKindFolder {
		s.bump(&s.folders, "folder")
	}
	return item, nil
}

func (s *Scanner) scanFolder(ctx context.Context, item *database.LibraryItem) error {
	var entries []os.DirEntry
	err := s.throttle.Do(ctx, func(ctx context.Context) error {
		var err error
		entries, err = filesystem.ReadDirWithRetry(ctx, item.URL, s.retry)
		return err
	})
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("read %s: %w", item.URL, err)
	}

	var (
		wg         sync.WaitGroup
		incomplete atomic.Bool
	)

	for _, entry := range entries {
		if mediatypes.IsHidden(entry.Name()) {
			continue
		}
		if ctx.Err() != nil {
			incomplete.Store(true)
			break
		}

		childPath := filepath.Join(item.URL, entry.Name())

		if entry.IsDir() {
			wg.Add(1)
			go func() {
				defer wg.Done()
				child, _, err := s.scan(ctx, childPath, item)
				if child != nil {
					item.AddChild(child)
				}
				switch {
				case err == nil:
				case ctx.Err() != nil:
					incomplete.Store(true)
				default:
					s.recordError(item, childPath, err)
				}
			}()
			continue
		}

		s.bump(&s.files, "discovered")
		if !mediatypes.IsVideo(childPath) {
			s.bump(&s.skipped, "skipped")
			continue
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.processFile(ctx, item, childPath)
			switch {
			case err == nil:
			case ctx.Err() != nil:
				incomplete.Store(true)
			default:
				s.recordError(item, childPath, err)
			}
		}()
	}

	wg.Wait()

	if incomplete.Load() || ctx.Err() != nil {
		log.Debug("Leaving %s unscanned after cancellation", item.URL)
		return ctx.Err()
	}
	return s.markScanned(ctx, item)
}

// processFile extracts, registers and attaches one video to item.
func (s *Scanner) processFile(ctx context.Context, item *database.LibraryItem, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	var info *VideoInfo
	err := s.throttle.Do(ctx, func(ctx context.Context) error {
		start := time.Now()
		var err error
		info, err = s.extractor.Extract(ctx, path)
		metrics.ScanExtractDuration.Observe(time.Since(start).Seconds())
		return err
	})
	if err != nil {
		return err
	}
	if info.Path == "" {
		info.Path = path
	}

	var (
		movie   *database.Movie
		created bool
	)
	// A finished extraction is recorded even if the scan is cancelled meanwhile.
	err = s.db.WithTx(context.WithoutCancel(ctx), func(tx *database.Tx) error {
		var err error
		movie, created, err = tx.RegisterMovie(info.Movie())
		if err != nil {
			return err
		}
		return tx.AttachMovie(item.ID, movie.ID)
	})
	if err != nil {
		return err
	}

	item.AddMovie(*movie)
	if created {
		log.Debug("Registered %s as movie %d", path, movie.ID)
		s.bump(&s.registered, "registered")
	} else {
		log.Debug("%s matches movie %d (%s)", path, movie.ID, movie.FilePath)
		s.bump(&s.deduplicated, "deduplicated")
	}
	return nil
}

func (s *Scanner) recordError(item *database.LibraryItem, path string, err error) {
	var scanErr *ScanError
	if !errors.As(err, &scanErr) {
		scanErr = &ScanError{Path: path, Err: err}
	}
	item.AddError(scanErr)
	log.Warn("%v", scanErr)
	s.bump(&s.failures, "error")
}

func (s *Scanner) markScanned(ctx context.Context, item *database.LibraryItem) error {
	now := time.Now()
	if err := s.db.WithTx(ctx, func(tx *database.Tx) error {
		return tx.MarkScanned(item.ID, now)
	}); err != nil {
		return err
	}
	at := time.Unix(now.Unix(), 0)
	item.ScannedAt = &at
	return nil
}

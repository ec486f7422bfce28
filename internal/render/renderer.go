package render

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"media-registry/internal/filesystem"
	"media-registry/internal/logging"
	"media-registry/internal/mediatypes"
	"media-registry/internal/metrics"
)

var log = logging.With("render")

// DefaultTimeout bounds one asset's generation.
const DefaultTimeout = 5 * time.Minute

// Output describes one generated file.
type Output struct {
	Path            string  `json:"path"`
	Size            string  `json:"size"`
	Density         string  `json:"density,omitempty"`
	Layout          string  `json:"layout,omitempty"`
	PreviewType     string  `json:"previewType,omitempty"`
	DurationSeconds float64 `json:"durationSeconds,omitempty"`
	Width           int     `json:"width"`
	Height          int     `json:"height"`
	Bytes           int64   `json:"bytes"`
}

// Config locates ffmpeg and the output tree.
type Config struct {
	FFmpegPath string
	OutputDir  string
	Timeout    time.Duration
}

// Renderer produces mosaics and previews with ffmpeg.
type Renderer struct {
	ffmpegPath string
	outputDir  string
	timeout    time.Duration
	retry      filesystem.RetryConfig
}

// New creates a renderer, creating the output directories.
func New(cfg Config) (*Renderer, error) {
	if cfg.FFmpegPath == "" {
		cfg.FFmpegPath = "ffmpeg"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.OutputDir == "" {
		return nil, errors.New("render: output directory is required")
	}

	for _, sub := range []string{"mosaics", "previews"} {
		if err := os.MkdirAll(filepath.Join(cfg.OutputDir, sub), 0o755); err != nil {
			return nil, fmt.Errorf("create output directory: %w", err)
		}
	}

	if _, err := exec.LookPath(cfg.FFmpegPath); err != nil {
		log.Warn("ffmpeg not found at %q: rendering will fail until it is installed", cfg.FFmpegPath)
	}

	return &Renderer{
		ffmpegPath: cfg.FFmpegPath,
		outputDir:  cfg.OutputDir,
		timeout:    cfg.Timeout,
		retry:      filesystem.DefaultRetryConfig(),
	}, nil
}

// OutputDir returns the root of the generated files.
func (r *Renderer) OutputDir() string {
	return r.outputDir
}

func (r *Renderer) checkSource(ctx context.Context, path string) error {
	info, err := filesystem.StatWithRetry(ctx, path, r.retry)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrSourceMissing, path)
		}
		return err
	}
	if info.IsDir() || info.Size() == 0 {
		return fmt.Errorf("%w: %s is not a readable video file", ErrSourceMissing, path)
	}
	return nil
}

func (r *Renderer) deadline(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeoutCause(ctx, r.timeout, ErrTimeout)
}

// classify turns a process failure under the generation deadline into
// ErrTimeout, and one under a cancelled parent into the parent's error.
func (r *Renderer) classify(ctx context.Context, err error) error {
	if ctx.Err() == nil {
		return err
	}
	if cause := context.Cause(ctx); errors.Is(cause, ErrTimeout) {
		return fmt.Errorf("%w after %v", ErrTimeout, r.timeout)
	}
	return ctx.Err()
}

func (r *Renderer) runFFmpeg(ctx context.Context, args ...string) ([]byte, error) {
	full := append([]string{"-hide_banner", "-loglevel", "error", "-nostdin"}, args...)
	cmd := exec.CommandContext(ctx, r.ffmpegPath, full...) //nolint:gosec

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	log.Debug("Running %s %s", r.ffmpegPath, strings.Join(full, " "))
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %v: %s", ErrFFmpeg, err, strings.TrimSpace(stderr.String()))
	}
	return stdout.Bytes(), nil
}

func (r *Renderer) outputPath(sub string, movieID int64, ext string) string {
	name := strconv.FormatInt(movieID, 10) + "-" + uuid.NewString() + ext
	return filepath.Join(r.outputDir, sub, name)
}

func (r *Renderer) observe(kind string, start time.Time, err error) {
	metrics.RenderDuration.WithLabelValues(kind, "total").Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.RenderErrors.WithLabelValues(kind, Reason(err)).Inc()
	}
}

func extensionFor(format string, mosaic bool) string {
	if mosaic {
		return mediatypes.MosaicFormats[format]
	}
	return mediatypes.PreviewFormats[format]
}

// writeAtomic writes data next to path and renames it into place.
func writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".render-*")
	if err != nil {
		return fmt.Errorf("create output: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write output: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("rename output: %w", err)
	}
	return nil
}

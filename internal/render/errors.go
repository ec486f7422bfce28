package render

import (
	"context"
	"errors"
	"os"
)

var (
	// ErrTimeout means the generation deadline elapsed before ffmpeg finished.
	ErrTimeout = errors.New("generation timed out")

	// ErrFFmpeg means an ffmpeg process failed or produced no output.
	ErrFFmpeg = errors.New("ffmpeg failed")

	// ErrSourceMissing means the movie file is gone or unusable as a source.
	ErrSourceMissing = errors.New("source missing")

	// ErrUnsupportedFormat means the requested output encoding is not available.
	ErrUnsupportedFormat = errors.New("unsupported output format")

	// ErrInvalidSettings means a size, density, layout or type preset is unknown.
	ErrInvalidSettings = errors.New("invalid render settings")
)

// Reason maps a render error to a short label for metrics and batch rows.
func Reason(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrTimeout):
		return "timeout"
	case errors.Is(err, ErrFFmpeg):
		return "ffmpeg"
	case errors.Is(err, ErrSourceMissing), errors.Is(err, os.ErrNotExist):
		return "source_missing"
	case errors.Is(err, ErrUnsupportedFormat), errors.Is(err, ErrInvalidSettings):
		return "unsupported"
	case errors.Is(err, context.Canceled):
		return "cancelled"
	default:
		return "other"
	}
}

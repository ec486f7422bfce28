package render

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"media-registry/internal/database"
)

// RenderPreview cuts a short silent clip or montage from movie.
func (r *Renderer) RenderPreview(ctx context.Context, movie database.Movie, settings PreviewSettings) (out *Output, err error) {
	start := time.Now()
	defer func() { r.observe("preview", start, err) }()

	if err := settings.Validate(); err != nil {
		return nil, err
	}
	settings = settings.Normalize()

	if err := r.checkSource(ctx, movie.FilePath); err != nil {
		return nil, err
	}
	segs := planSegments(settings, movie.DurationSeconds)
	if len(segs) == 0 {
		return nil, fmt.Errorf("%w: %s has no known duration", ErrSourceMissing, movie.FilePath)
	}

	ctx, cancel := r.deadline(ctx)
	defer cancel()

	path := r.outputPath("previews", movie.ID, extensionFor(settings.Format, false))
	tmp := filepath.Join(filepath.Dir(path), ".render-"+filepath.Base(path))
	defer func() { _ = os.Remove(tmp) }()

	height := previewHeights[settings.Size]
	if _, err := r.runFFmpeg(ctx, previewArgs(movie.FilePath, tmp, settings.Format, height, segs)...); err != nil {
		return nil, r.classify(ctx, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return nil, fmt.Errorf("rename output: %w", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}

	var total float64
	for _, s := range segs {
		total += s.duration
	}

	width := 0
	if movie.Height > 0 {
		width = movie.Width * height / movie.Height
		width -= width % 2
	}

	return &Output{
		Path:            path,
		Size:            settings.Size,
		PreviewType:     settings.Type,
		DurationSeconds: total,
		Width:           width,
		Height:          height,
		Bytes:           info.Size(),
	}, nil
}

// previewFilter builds a filter graph that trims each segment, resets its
// timestamps, scales it and concatenates the parts.
func previewFilter(segs []segment, height int) (filter, label string) {
	scale := fmt.Sprintf("scale=-2:%d", height)
	if len(segs) == 1 {
		s := segs[0]
		return fmt.Sprintf("[0:v]trim=start=%.3f:duration=%.3f,setpts=PTS-STARTPTS,%s[vout]", s.start, s.duration, scale), "[vout]"
	}

	parts := make([]string, 0, len(segs)+1)
	labels := make([]string, 0, len(segs))
	for i, s := range segs {
		l := fmt.Sprintf("v%d", i)
		labels = append(labels, "["+l+"]")
		parts = append(parts, fmt.Sprintf("[0:v]trim=start=%.3f:duration=%.3f,setpts=PTS-STARTPTS,%s[%s]", s.start, s.duration, scale, l))
	}
	parts = append(parts, fmt.Sprintf("%sconcat=n=%d:v=1:a=0[vout]", strings.Join(labels, ""), len(segs)))
	return strings.Join(parts, ";"), "[vout]"
}

func previewArgs(src, dst, format string, height int, segs []segment) []string {
	filter, label := previewFilter(segs, height)
	args := []string{"-y", "-i", src, "-filter_complex", filter, "-map", label, "-an"}

	switch format {
	case "webm":
		args = append(args, "-c:v", "libvpx-vp9", "-b:v", "0", "-crf", "40", "-row-mt", "1", "-f", "webm")
	default:
		args = append(args, "-c:v", "libx264", "-preset", "veryfast", "-crf", "28",
			"-pix_fmt", "yuv420p", "-movflags", "+faststart", "-f", "mp4")
	}
	return append(args, "-threads", strconv.Itoa(2), dst)
}

package render

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"strconv"
	"time"

	"github.com/disintegration/imaging"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"media-registry/internal/database"
	"media-registry/internal/metrics"
)

// RenderMosaic samples frames across movie and writes them as a labelled
// grid image under the renderer's mosaic directory.
func (r *Renderer) RenderMosaic(ctx context.Context, movie database.Movie, settings MosaicSettings) (out *Output, err error) {
	start := time.Now()
	defer func() { r.observe("mosaic", start, err) }()

	if err := settings.Validate(); err != nil {
		return nil, err
	}
	settings = settings.Normalize()

	if err := r.checkSource(ctx, movie.FilePath); err != nil {
		return nil, err
	}

	plan, err := PlanMosaic(settings, movie.Width, movie.Height, movie.DurationSeconds)
	if err != nil {
		return nil, err
	}

	ctx, cancel := r.deadline(ctx)
	defer cancel()

	extractStart := time.Now()
	frames := make([]image.Image, len(plan.Timestamps))
	for i, ts := range plan.Timestamps {
		frame, err := r.extractFrame(ctx, movie.FilePath, ts)
		if err != nil {
			return nil, r.classify(ctx, err)
		}
		frames[i] = frame
	}
	metrics.RenderDuration.WithLabelValues("mosaic", "extract").Observe(time.Since(extractStart).Seconds())

	composeStart := time.Now()
	var labels []string
	if settings.Timestamps {
		labels = make([]string, len(plan.Timestamps))
		for i, ts := range plan.Timestamps {
			labels[i] = formatTimestamp(ts)
		}
	}
	canvas := composeMosaic(frames, plan, labels)
	metrics.RenderDuration.WithLabelValues("mosaic", "compose").Observe(time.Since(composeStart).Seconds())

	encodeStart := time.Now()
	data, err := encodeMosaic(canvas, settings.Format, settings.Quality)
	if err != nil {
		return nil, err
	}
	metrics.RenderDuration.WithLabelValues("mosaic", "encode").Observe(time.Since(encodeStart).Seconds())

	path := r.outputPath("mosaics", movie.ID, extensionFor(settings.Format, true))
	if err := writeAtomic(path, data); err != nil {
		return nil, err
	}

	return &Output{
		Path:    path,
		Size:    settings.Size,
		Density: settings.Density,
		Layout:  settings.Layout,
		Width:   plan.Width,
		Height:  plan.Height,
		Bytes:   int64(len(data)),
	}, nil
}

// extractFrame decodes the frame at ts seconds as an image.
func (r *Renderer) extractFrame(ctx context.Context, path string, ts float64) (image.Image, error) {
	stdout, err := r.runFFmpeg(ctx,
		"-ss", strconv.FormatFloat(ts, 'f', 3, 64),
		"-i", path,
		"-frames:v", "1",
		"-f", "image2pipe",
		"-vcodec", "png",
		"-",
	)
	if err != nil {
		return nil, err
	}
	if len(stdout) == 0 {
		return nil, fmt.Errorf("%w: no frame at %.3fs in %s", ErrFFmpeg, ts, path)
	}

	img, err := imaging.Decode(bytes.NewReader(stdout))
	if err != nil {
		return nil, fmt.Errorf("%w: decode frame: %w", ErrFFmpeg, err)
	}
	return img, nil
}

// composeMosaic places each frame into its tile, fitted and centred on a
// black background. Labels, when given, are drawn in each tile's corner.
func composeMosaic(frames []image.Image, plan MosaicPlan, labels []string) *image.NRGBA {
	canvas := imaging.New(plan.Width, plan.Height, color.Black)

	for i, frame := range frames {
		if frame == nil {
			continue
		}
		x, y := plan.TileOrigin(i)
		tile := imaging.Fit(frame, plan.TileWidth, plan.TileHeight, imaging.Lanczos)
		offX := (plan.TileWidth - tile.Bounds().Dx()) / 2
		offY := (plan.TileHeight - tile.Bounds().Dy()) / 2
		canvas = imaging.Paste(canvas, tile, image.Pt(x+offX, y+offY))

		if i < len(labels) && labels[i] != "" {
			drawLabel(canvas, labels[i], x, y+plan.TileHeight)
		}
	}
	return canvas
}

// drawLabel writes text on a dark box at the bottom-left of a tile whose
// bottom edge is at y.
func drawLabel(dst draw.Image, text string, x, y int) {
	face := basicfont.Face7x13
	d := &font.Drawer{Dst: dst, Src: image.NewUniform(color.White), Face: face}

	w := d.MeasureString(text).Ceil()
	box := image.Rect(x+2, y-face.Height-4, x+w+6, y-2)
	draw.Draw(dst, box, image.NewUniform(color.RGBA{A: 160}), image.Point{}, draw.Over)

	d.Dot = fixed.P(x+4, y-4-face.Descent)
	d.DrawString(text)
}

func encodeMosaic(img image.Image, format string, quality int) ([]byte, error) {
	switch format {
	case "jpeg":
		return encodeImaging(img, imaging.JPEG, quality)
	case "png":
		return encodeImaging(img, imaging.PNG, 0)
	case "webp":
		return encodeWebP(img, quality)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
}

func encodeImaging(img image.Image, format imaging.Format, quality int) ([]byte, error) {
	var buf bytes.Buffer
	var opts []imaging.EncodeOption
	if format == imaging.JPEG && quality > 0 {
		opts = append(opts, imaging.JPEGQuality(quality))
	}
	if err := imaging.Encode(&buf, img, format, opts...); err != nil {
		return nil, fmt.Errorf("encode %s: %w", format, err)
	}
	return buf.Bytes(), nil
}

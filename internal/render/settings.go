package render

import (
	"fmt"
	"math"
	"strings"

	"media-registry/internal/mediatypes"
)

// Mosaic size presets: output canvas width in pixels.
var mosaicWidths = map[string]int{
	"small":  1280,
	"medium": 1920,
	"large":  3840,
}

// Mosaic density presets: number of frames sampled.
var mosaicFrames = map[string]int{
	"low":    9,
	"medium": 16,
	"high":   25,
	"ultra":  36,
}

// Preview size presets: output height in pixels.
var previewHeights = map[string]int{
	"small":  240,
	"medium": 360,
	"large":  480,
}

const (
	LayoutGrid = "grid"
	LayoutWide = "wide"

	PreviewClip    = "clip"
	PreviewMontage = "montage"
)

// MosaicSettings select the size, frame density, layout and encoding of
// a contact-sheet image.
type MosaicSettings struct {
	Size       string `json:"size"`
	Density    string `json:"density"`
	Layout     string `json:"layout"`
	Format     string `json:"format"`
	Quality    int    `json:"quality,omitempty"`
	Timestamps bool   `json:"timestamps"`
}

// DefaultMosaicSettings returns a medium, 16-frame JPEG grid with labels.
func DefaultMosaicSettings() MosaicSettings {
	return MosaicSettings{
		Size:       "medium",
		Density:    "medium",
		Layout:     LayoutGrid,
		Format:     "jpeg",
		Quality:    85,
		Timestamps: true,
	}
}

// Normalize fills empty fields from the defaults and lower-cases names.
func (s MosaicSettings) Normalize() MosaicSettings {
	def := DefaultMosaicSettings()
	s.Size = orDefault(s.Size, def.Size)
	s.Density = orDefault(s.Density, def.Density)
	s.Layout = orDefault(s.Layout, def.Layout)
	s.Format = orDefault(s.Format, def.Format)
	if s.Quality <= 0 || s.Quality > 100 {
		s.Quality = def.Quality
	}
	return s
}

// Validate reports unknown presets or output formats.
func (s MosaicSettings) Validate() error {
	s = s.Normalize()
	if _, ok := mosaicWidths[s.Size]; !ok {
		return fmt.Errorf("%w: mosaic size %q", ErrInvalidSettings, s.Size)
	}
	if _, ok := mosaicFrames[s.Density]; !ok {
		return fmt.Errorf("%w: mosaic density %q", ErrInvalidSettings, s.Density)
	}
	if s.Layout != LayoutGrid && s.Layout != LayoutWide {
		return fmt.Errorf("%w: mosaic layout %q", ErrInvalidSettings, s.Layout)
	}
	if _, ok := mediatypes.MosaicFormats[s.Format]; !ok {
		return fmt.Errorf("%w: mosaic format %q", ErrUnsupportedFormat, s.Format)
	}
	return nil
}

// PreviewSettings select the kind, size and encoding of a preview clip.
// A clip is one continuous excerpt from the middle of the movie; a montage
// concatenates Segments short excerpts spread across it.
type PreviewSettings struct {
	Type            string  `json:"type"`
	Size            string  `json:"size"`
	Format          string  `json:"format"`
	DurationSeconds float64 `json:"durationSeconds"`
	Segments        int     `json:"segments,omitempty"`
}

// DefaultPreviewSettings returns a 10 second, five-part mp4 montage.
func DefaultPreviewSettings() PreviewSettings {
	return PreviewSettings{
		Type:            PreviewMontage,
		Size:            "medium",
		Format:          "mp4",
		DurationSeconds: 10,
		Segments:        5,
	}
}

// Normalize fills empty fields from the defaults and lower-cases names.
func (s PreviewSettings) Normalize() PreviewSettings {
	def := DefaultPreviewSettings()
	s.Type = orDefault(s.Type, def.Type)
	s.Size = orDefault(s.Size, def.Size)
	s.Format = orDefault(s.Format, def.Format)
	if s.DurationSeconds <= 0 {
		s.DurationSeconds = def.DurationSeconds
	}
	if s.Type == PreviewClip {
		s.Segments = 1
	} else if s.Segments <= 0 {
		s.Segments = def.Segments
	}
	return s
}

// Validate reports unknown presets or output formats.
func (s PreviewSettings) Validate() error {
	s = s.Normalize()
	if s.Type != PreviewClip && s.Type != PreviewMontage {
		return fmt.Errorf("%w: preview type %q", ErrInvalidSettings, s.Type)
	}
	if _, ok := previewHeights[s.Size]; !ok {
		return fmt.Errorf("%w: preview size %q", ErrInvalidSettings, s.Size)
	}
	if _, ok := mediatypes.PreviewFormats[s.Format]; !ok {
		return fmt.Errorf("%w: preview format %q", ErrUnsupportedFormat, s.Format)
	}
	return nil
}

func orDefault(v, def string) string {
	v = strings.ToLower(strings.TrimSpace(v))
	if v == "" {
		return def
	}
	return v
}

// MosaicPlan is the geometry and sampling of one mosaic.
type MosaicPlan struct {
	Columns    int
	Rows       int
	TileWidth  int
	TileHeight int
	Width      int
	Height     int
	Timestamps []float64
}

// PlanMosaic lays out the tiles for a source of the given dimensions and
// duration. Frames are sampled evenly, skipping the very start and end.
func PlanMosaic(s MosaicSettings, srcWidth, srcHeight int, duration float64) (MosaicPlan, error) {
	if err := s.Validate(); err != nil {
		return MosaicPlan{}, err
	}
	s = s.Normalize()

	if duration <= 0 {
		return MosaicPlan{}, fmt.Errorf("%w: unknown duration", ErrSourceMissing)
	}
	if srcWidth <= 0 || srcHeight <= 0 {
		srcWidth, srcHeight = 16, 9
	}

	frames := mosaicFrames[s.Density]
	cols := int(math.Ceil(math.Sqrt(float64(frames))))
	if s.Layout == LayoutWide {
		cols = int(math.Ceil(math.Sqrt(float64(frames) * 16 / 9)))
	}
	rows := (frames + cols - 1) / cols

	width := mosaicWidths[s.Size]
	tileW := width / cols
	tileH := tileW * srcHeight / srcWidth
	if tileH < 1 {
		tileH = 1
	}

	plan := MosaicPlan{
		Columns:    cols,
		Rows:       rows,
		TileWidth:  tileW,
		TileHeight: tileH,
		Width:      tileW * cols,
		Height:     tileH * rows,
		Timestamps: make([]float64, frames),
	}
	for i := range plan.Timestamps {
		plan.Timestamps[i] = duration * float64(i+1) / float64(frames+1)
	}
	return plan, nil
}

// TileOrigin returns the top-left corner of tile i.
func (p MosaicPlan) TileOrigin(i int) (x, y int) {
	return (i % p.Columns) * p.TileWidth, (i / p.Columns) * p.TileHeight
}

// segment is one excerpt of a preview.
type segment struct {
	start    float64
	duration float64
}

// planSegments spreads n excerpts of total length across the movie. A
// movie shorter than the requested length is used whole.
func planSegments(s PreviewSettings, duration float64) []segment {
	s = s.Normalize()
	if duration <= 0 {
		return nil
	}
	if duration <= s.DurationSeconds {
		return []segment{{start: 0, duration: duration}}
	}

	n := s.Segments
	each := s.DurationSeconds / float64(n)
	if n == 1 {
		return []segment{{start: (duration - each) / 2, duration: each}}
	}

	segs := make([]segment, n)
	for i := range segs {
		center := duration * float64(i+1) / float64(n+1)
		start := math.Max(0, center-each/2)
		if start+each > duration {
			start = duration - each
		}
		segs[i] = segment{start: start, duration: each}
	}
	return segs
}

// formatTimestamp renders seconds as H:MM:SS or M:SS.
func formatTimestamp(seconds float64) string {
	total := int(seconds)
	h, m, sec := total/3600, (total%3600)/60, total%60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, sec)
	}
	return fmt.Sprintf("%d:%02d", m, sec)
}

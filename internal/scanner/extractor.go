package scanner

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/blake2b"

	"media-registry/internal/database"
	"media-registry/internal/filesystem"
)

var (
	// ErrNotVideo is returned when the probe cannot read the file as media.
	ErrNotVideo = errors.New("not a video file")

	// ErrNoVideoTrack is returned for media files without a video stream.
	ErrNoVideoTrack = errors.New("no video track")
)

// hashSampleSize is the length of each head/middle/tail sample fed to the
// content hash.
const hashSampleSize = 1 << 20

// VideoInfo is what an Extractor learns about one file.
type VideoInfo struct {
	Path            string
	DurationSeconds float64
	Width           int
	Height          int
	Codec           string
	FileSize        int64
	ContentHash     string
	ModTime         time.Time
}

// Movie converts the probe result into a registry row.
func (v *VideoInfo) Movie() *database.Movie {
	created := v.ModTime
	if created.IsZero() {
		created = time.Now()
	}
	return &database.Movie{
		FilePath:        v.Path,
		ContentHash:     v.ContentHash,
		Name:            filepath.Base(v.Path),
		DurationSeconds: v.DurationSeconds,
		Width:           v.Width,
		Height:          v.Height,
		Codec:           v.Codec,
		FileSize:        v.FileSize,
		CreatedAt:       created,
	}
}

// Extractor reads video metadata and a content hash from a file.
type Extractor interface {
	Extract(ctx context.Context, path string) (*VideoInfo, error)
}

// FFprobeExtractor shells out to ffprobe and hashes samples of the file.
type FFprobeExtractor struct {
	FFprobePath string
	Timeout     time.Duration
	Retry       filesystem.RetryConfig
}

// NewFFprobeExtractor returns an extractor using the given ffprobe binary.
// An empty path means "ffprobe" from PATH.
func NewFFprobeExtractor(ffprobePath string, timeout time.Duration) *FFprobeExtractor {
	if ffprobePath == "" {
		ffprobePath = "ffprobe"
	}
	return &FFprobeExtractor{
		FFprobePath: ffprobePath,
		Timeout:     timeout,
		Retry:       filesystem.DefaultRetryConfig(),
	}
}

type probeOutput struct {
	Streams []probeStream `json:"streams"`
	Format  *probeFormat  `json:"format"`
}

type probeStream struct {
	CodecType   string `json:"codec_type"`
	CodecName   string `json:"codec_name"`
	Width       int    `json:"width"`
	Height      int    `json:"height"`
	Duration    string `json:"duration"`
	Disposition struct {
		AttachedPic int `json:"attached_pic"`
	} `json:"disposition"`
}

type probeFormat struct {
	FormatName string `json:"format_name"`
	Duration   string `json:"duration"`
	Size       string `json:"size"`
}

// Extract probes path and computes its content hash.
func (e *FFprobeExtractor) Extract(ctx context.Context, path string) (*VideoInfo, error) {
	stat, err := filesystem.StatWithRetry(ctx, path, e.Retry)
	if err != nil {
		return nil, err
	}
	if stat.IsDir() {
		return nil, fmt.Errorf("%s: %w", path, ErrNotVideo)
	}

	if e.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, e.FFprobePath,
		"-v", "error",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		path,
	)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return nil, fmt.Errorf("%w: ffprobe: %s", ErrNotVideo, strings.TrimSpace(stderr.String()))
		}
		return nil, fmt.Errorf("ffprobe %s: %w", path, err)
	}

	info, err := parseProbe(stdout.Bytes())
	if err != nil {
		return nil, err
	}
	info.Path = path
	info.FileSize = stat.Size()
	info.ModTime = stat.ModTime()

	info.ContentHash, err = e.contentHash(ctx, path, stat.Size())
	if err != nil {
		return nil, fmt.Errorf("hash %s: %w", path, err)
	}
	return info, nil
}

// parseProbe reads ffprobe's JSON output. The first non-cover-art video
// stream supplies dimensions and codec.
func parseProbe(data []byte) (*VideoInfo, error) {
	var out probeOutput
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("%w: invalid probe output: %w", ErrNotVideo, err)
	}
	if out.Format == nil && len(out.Streams) == 0 {
		return nil, ErrNotVideo
	}

	info := &VideoInfo{}
	found := false
	for _, s := range out.Streams {
		if s.CodecType != "video" || s.Disposition.AttachedPic == 1 {
			continue
		}
		info.Width = s.Width
		info.Height = s.Height
		info.Codec = s.CodecName
		info.DurationSeconds = parseSeconds(s.Duration)
		found = true
		break
	}
	if !found {
		return nil, ErrNoVideoTrack
	}

	if out.Format != nil {
		if d := parseSeconds(out.Format.Duration); d > 0 {
			info.DurationSeconds = d
		}
	}
	return info, nil
}

func parseSeconds(s string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || v < 0 {
		return 0
	}
	return v
}

// contentHash is BLAKE2b-256 over the file size followed by the head,
// middle and tail samples. Files up to three samples long are hashed whole.
func (e *FFprobeExtractor) contentHash(ctx context.Context, path string, size int64) (string, error) {
	f, err := filesystem.OpenWithRetry(ctx, path, e.Retry)
	if err != nil {
		return "", err
	}
	defer func() { _ = f.Close() }()

	return hashSamples(f, size)
}

func hashSamples(r io.ReaderAt, size int64) (string, error) {
	h, err := blake2b.New256(nil)
	if err != nil {
		return "", err
	}

	var sizeBuf [8]byte
	binary.LittleEndian.PutUint64(sizeBuf[:], uint64(size))
	h.Write(sizeBuf[:])

	if size <= 3*hashSampleSize {
		if _, err := io.Copy(h, io.NewSectionReader(r, 0, size)); err != nil {
			return "", err
		}
		return hex.EncodeToString(h.Sum(nil)), nil
	}

	buf := make([]byte, hashSampleSize)
	for _, off := range []int64{0, size/2 - hashSampleSize/2, size - hashSampleSize} {
		if _, err := r.ReadAt(buf, off); err != nil && !errors.Is(err, io.EOF) {
			return "", err
		}
		h.Write(buf)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

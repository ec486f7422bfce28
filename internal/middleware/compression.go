package middleware

import (
	"compress/gzip"
	"io"
	"mime"
	"net/http"
	"slices"
	"strings"
	"sync"
)

// CompressionConfig holds configuration for the compression middleware
type CompressionConfig struct {
	// MinSize is the smallest body, in bytes, that is compressed.
	MinSize int
	// Level is a compress/gzip level; invalid levels use the default.
	Level int
	// CompressibleTypes are the media types eligible for compression.
	CompressibleTypes []string
	// SkipPaths are path prefixes served uncompressed. promhttp negotiates
	// its own encoding.
	SkipPaths []string
}

// DefaultCompressionConfig compresses JSON and text bodies of 1KB or more.
// Library trees and batch listings are the large responses.
func DefaultCompressionConfig() CompressionConfig {
	return CompressionConfig{
		MinSize:           1024,
		Level:             gzip.DefaultCompression,
		CompressibleTypes: []string{"application/json", "text/plain"},
		SkipPaths:         []string{"/metrics"},
	}
}

// writerPool reuses gzip writers of one compression level.
type writerPool struct {
	pool sync.Pool
}

func newWriterPool(level int) *writerPool {
	if level < gzip.HuffmanOnly || level > gzip.BestCompression {
		level = gzip.DefaultCompression
	}
	p := &writerPool{}
	p.pool.New = func() any {
		w, _ := gzip.NewWriterLevel(io.Discard, level)
		return w
	}
	return p
}

func (p *writerPool) get(dst io.Writer) *gzip.Writer {
	w := p.pool.Get().(*gzip.Writer)
	w.Reset(dst)
	return w
}

func (p *writerPool) put(w *gzip.Writer) {
	p.pool.Put(w)
}

type encodingState int

const (
	undecided encodingState = iota
	plain
	compressed
)

// gzipResponseWriter holds back the first MinSize bytes of a body so the
// size and content type are known before choosing an encoding.
type gzipResponseWriter struct {
	http.ResponseWriter
	config CompressionConfig
	pool   *writerPool

	state   encodingState
	status  int
	pending []byte
	gz      *gzip.Writer
}

func newGzipResponseWriter(w http.ResponseWriter, config CompressionConfig, pool *writerPool) *gzipResponseWriter {
	return &gzipResponseWriter{
		ResponseWriter: w,
		config:         config,
		pool:           pool,
		status:         http.StatusOK,
	}
}

// WriteHeader records the status; it is sent once the encoding is chosen.
func (g *gzipResponseWriter) WriteHeader(statusCode int) {
	if g.state == undecided {
		g.status = statusCode
	}
}

func (g *gzipResponseWriter) Write(data []byte) (int, error) {
	switch g.state {
	case plain:
		return g.ResponseWriter.Write(data)
	case compressed:
		return g.gz.Write(data)
	}

	g.pending = append(g.pending, data...)
	if len(g.pending) > g.config.MinSize {
		if err := g.decide(); err != nil {
			return 0, err
		}
	}
	return len(data), nil
}

func (g *gzipResponseWriter) compressible() bool {
	mediaType, _, err := mime.ParseMediaType(g.Header().Get("Content-Type"))
	if err != nil {
		return false
	}
	return slices.Contains(g.config.CompressibleTypes, mediaType)
}

// decide picks the encoding, sends the header and flushes the held-back
// bytes.
func (g *gzipResponseWriter) decide() error {
	if g.state != undecided {
		return nil
	}

	body := g.pending
	g.pending = nil

	if len(body) < g.config.MinSize || !g.compressible() {
		g.state = plain
		g.ResponseWriter.WriteHeader(g.status)
		_, err := g.ResponseWriter.Write(body)
		return err
	}

	g.state = compressed
	h := g.Header()
	h.Del("Content-Length")
	h.Set("Content-Encoding", "gzip")
	h.Add("Vary", "Accept-Encoding")
	g.ResponseWriter.WriteHeader(g.status)

	g.gz = g.pool.get(g.ResponseWriter)
	_, err := g.gz.Write(body)
	return err
}

// Close sends anything still held back and returns the gzip writer to the
// pool.
func (g *gzipResponseWriter) Close() error {
	err := g.decide()
	if g.gz != nil {
		if cerr := g.gz.Close(); err == nil {
			err = cerr
		}
		g.pool.put(g.gz)
		g.gz = nil
	}
	return err
}

func (g *gzipResponseWriter) Flush() {
	_ = g.decide()
	if g.gz != nil {
		_ = g.gz.Flush()
	}
	if f, ok := g.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Compression gzips eligible responses for clients that accept it.
func Compression(config CompressionConfig) func(http.Handler) http.Handler {
	pool := newWriterPool(config.Level)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !acceptsGzip(r) || skipCompression(r.URL.Path, config) {
				next.ServeHTTP(w, r)
				return
			}

			gzw := newGzipResponseWriter(w, config, pool)
			defer gzw.Close()
			next.ServeHTTP(gzw, r)
		})
	}
}

func acceptsGzip(r *http.Request) bool {
	return r.Method != http.MethodHead && strings.Contains(r.Header.Get("Accept-Encoding"), "gzip")
}

func skipCompression(path string, config CompressionConfig) bool {
	for _, prefix := range config.SkipPaths {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

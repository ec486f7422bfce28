package middleware

import (
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"media-registry/internal/logging"
)

var accessLog = logging.With("http")

const serviceName = "MediaRegistry/1.0"

// responseWriter records the status and body size of a response.
type responseWriter struct {
	http.ResponseWriter
	statusCode   int
	bytesWritten int64
	wroteHeader  bool
}

func newResponseWriter(w http.ResponseWriter) *responseWriter {
	return &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
}

func (rw *responseWriter) WriteHeader(code int) {
	if rw.wroteHeader {
		return
	}
	rw.statusCode = code
	rw.wroteHeader = true
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	rw.wroteHeader = true
	n, err := rw.ResponseWriter.Write(b)
	rw.bytesWritten += int64(n)
	return n, err
}

func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// LoggingConfig holds configuration for the logging middleware
type LoggingConfig struct {
	// SkipPaths are path prefixes that are never logged.
	SkipPaths       []string
	LogHealthChecks bool
	// LogRouteTemplate adds the matched route template as a final field.
	LogRouteTemplate bool
	// SlowRequest logs requests at warn level once they take this long.
	// Zero disables it.
	SlowRequest time.Duration
}

// DefaultLoggingConfig logs everything but /metrics.
func DefaultLoggingConfig() LoggingConfig {
	return LoggingConfig{
		SkipPaths:        []string{"/metrics"},
		LogHealthChecks:  true,
		LogRouteTemplate: true,
		SlowRequest:      5 * time.Second,
	}
}

var healthCheckPaths = map[string]bool{
	"/health": true,
	"/livez":  true,
	"/readyz": true,
}

// Logger returns access-log middleware writing one W3C Extended Log Format
// line per request: date time c-ip cs-method cs-uri-stem cs-uri-query
// sc-status sc-bytes time-taken cs(Content-Encoding) cs(User-Agent)
// cs(Referer) x-route.
func Logger(config LoggingConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if shouldSkip(r.URL.Path, config) {
				next.ServeHTTP(w, r)
				return
			}

			start := time.Now()
			rw := newResponseWriter(w)
			next.ServeHTTP(rw, r)

			entry := newAccessEntry(r, rw, time.Since(start), config.LogRouteTemplate)
			switch {
			case rw.statusCode >= http.StatusInternalServerError:
				accessLog.Warn("%s %s", serviceName, entry)
			case config.SlowRequest > 0 && entry.elapsed >= config.SlowRequest:
				accessLog.Warn("%s %s slow", serviceName, entry)
			default:
				accessLog.Info("%s %s", serviceName, entry)
			}
		})
	}
}

// accessEntry holds the sanitized fields of one access-log line.
type accessEntry struct {
	at       time.Time
	clientIP string
	method   string
	path     string
	query    string
	status   int
	bytes    int64
	elapsed  time.Duration
	encoding string
	agent    string
	referer  string
	route    string
}

func newAccessEntry(r *http.Request, rw *responseWriter, elapsed time.Duration, withRoute bool) accessEntry {
	e := accessEntry{
		at:       time.Now().UTC(),
		clientIP: orDash(sanitizeLogField(getClientIP(r))),
		method:   sanitizeLogField(r.Method),
		path:     sanitizeLogField(r.URL.Path),
		query:    orDash(sanitizeLogField(r.URL.RawQuery)),
		status:   rw.statusCode,
		bytes:    rw.bytesWritten,
		elapsed:  elapsed,
		encoding: orDash(rw.Header().Get("Content-Encoding")),
		agent:    orDash(escapeW3CField(sanitizeLogField(r.Header.Get("User-Agent")))),
		referer:  orDash(sanitizeLogField(r.Header.Get("Referer"))),
		route:    "-",
	}
	if withRoute {
		e.route = routeTemplate(r)
	}
	return e
}

func (e accessEntry) String() string {
	fields := []string{
		e.at.Format("2006-01-02"),
		e.at.Format("15:04:05"),
		e.clientIP,
		e.method,
		e.path,
		e.query,
		strconv.Itoa(e.status),
		strconv.FormatInt(e.bytes, 10),
		strconv.FormatInt(e.elapsed.Milliseconds(), 10),
		e.encoding,
		e.agent,
		e.referer,
		e.route,
	}
	return strings.Join(fields, " ")
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// sanitizeLogField keeps request data from forging log lines: CR and LF
// become spaces, tabs are kept and every other control character is
// dropped, ESC included.
func sanitizeLogField(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r == '\n' || r == '\r':
			return ' '
		case r == '\t':
			return r
		case r < 0x20 || r == 0x7f:
			return -1
		}
		return r
	}, s)
}

// routeTemplate returns the path template of the matched mux route, or "-"
// when no route matched.
func routeTemplate(r *http.Request) string {
	route := mux.CurrentRoute(r)
	if route == nil {
		return "-"
	}
	tmpl, err := route.GetPathTemplate()
	if err != nil {
		return "-"
	}
	return tmpl
}

func shouldSkip(path string, config LoggingConfig) bool {
	for _, prefix := range config.SkipPaths {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return !config.LogHealthChecks && healthCheckPaths[path]
}

// getClientIP prefers the first X-Forwarded-For hop, then X-Real-IP, then
// the connection's remote address.
func getClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

// escapeW3CField quotes values containing whitespace or quotes, doubling
// embedded quotes.
func escapeW3CField(s string) string {
	if !strings.ContainsAny(s, " \t\"") {
		return s
	}
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

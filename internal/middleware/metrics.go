package middleware

import (
	"net/http"
	"slices"
	"strconv"
	"strings"
	"time"

	"media-registry/internal/metrics"
)

// unmatchedRoute labels requests no route matched, so arbitrary paths cannot
// grow the label set.
const unmatchedRoute = "unmatched"

// MetricsConfig holds configuration for the metrics middleware
type MetricsConfig struct {
	// SkipPaths are path prefixes that are never recorded.
	SkipPaths []string
}

// DefaultMetricsConfig skips the scrape endpoint and the probes.
func DefaultMetricsConfig() MetricsConfig {
	return MetricsConfig{
		SkipPaths: []string{"/metrics", "/health", "/livez", "/readyz"},
	}
}

// Metrics records request counts, latency and in-flight requests. Requests
// are labelled by route template, so it must run inside the router
// (Router.Use).
func Metrics(config MetricsConfig) func(http.Handler) http.Handler {
	skip := func(path string) bool {
		return slices.ContainsFunc(config.SkipPaths, func(prefix string) bool {
			return strings.HasPrefix(path, prefix)
		})
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if skip(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			metrics.HTTPRequestsInFlight.Inc()
			defer metrics.HTTPRequestsInFlight.Dec()

			rw := newResponseWriter(w)
			start := time.Now()
			next.ServeHTTP(rw, r)

			route := routeLabel(r)
			metrics.HTTPRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(rw.statusCode)).Inc()
			metrics.HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
		})
	}
}

func routeLabel(r *http.Request) string {
	if tmpl := routeTemplate(r); tmpl != "-" {
		return tmpl
	}
	return unmatchedRoute
}

package startup

import (
	"maps"
	"slices"
	"strings"

	"github.com/gorilla/mux"

	"media-registry/internal/logging"
)

// RouteInfo contains information about a registered route
type RouteInfo struct {
	Method string
	Path   string
	Name   string
}

// GetRoutes lists every method and path template registered on router.
// Routes without a method restriction are reported with method "*".
func GetRoutes(router *mux.Router) ([]RouteInfo, error) {
	var routes []RouteInfo
	err := router.Walk(func(route *mux.Route, _ *mux.Router, _ []*mux.Route) error {
		// Subrouter prefixes
		if route.GetHandler() == nil {
			return nil
		}
		path, err := route.GetPathTemplate()
		if err != nil {
			return err
		}

		methods, err := route.GetMethods()
		if err != nil {
			methods = []string{"*"}
		}
		for _, method := range methods {
			routes = append(routes, RouteInfo{Method: method, Path: path, Name: route.GetName()})
		}
		return nil
	})
	return routes, err
}

// LogHTTPRoutes logs the route table at debug level, grouped by resource.
func LogHTTPRoutes(router *mux.Router, logHealthChecks bool) {
	section("HTTP SERVER SETUP")

	if logging.IsDebugEnabled() {
		routes, err := GetRoutes(router)
		if err != nil {
			logging.Warn("error walking routes: %v", err)
		}

		groups := make(map[string][]RouteInfo)
		for _, route := range routes {
			g := getRouteGroup(route.Path)
			groups[g] = append(groups[g], route)
		}

		logging.Debug("  Registered routes (%d total):", len(routes))
		for _, g := range slices.Sorted(maps.Keys(groups)) {
			label := g
			if label == "" {
				label = "root"
			}
			logging.Debug("  [%s]", label)
			for _, route := range groups[g] {
				logging.Debug("    %-6s %s", route.Method, route.Path)
			}
		}
	}

	if logHealthChecks {
		logging.Info("  Access log: health checks included")
	} else {
		logging.Info("  Access log: health checks skipped (LOG_HEALTH_CHECKS=true to include)")
	}
}

// getRouteGroup returns the first path segment, or "api/<resource>" for
// API routes.
func getRouteGroup(path string) string {
	first, rest, _ := strings.Cut(strings.TrimPrefix(path, "/"), "/")
	if first == "api" && rest != "" {
		resource, _, _ := strings.Cut(rest, "/")
		return "api/" + resource
	}
	return first
}

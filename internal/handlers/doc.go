// Package handlers provides the HTTP control surface of the media registry.
//
// It includes handlers for:
//   - Starting, polling and cancelling scans and asset batches, which run as
//     background jobs
//   - Browsing movies, the scanned library tree and batch provenance
//   - Running the legacy schema migration
//   - Playlist management and WPL import
//   - Health checks, version and Prometheus metrics
//
// Store errors are mapped to status codes by their kind: not_found is 404,
// constraint violations are 409 and malformed requests are 400.
package handlers

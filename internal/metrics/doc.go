// Package metrics provides Prometheus instrumentation for the media registry.
//
// All collectors are registered with the default registry through promauto
// and are prefixed with "media_registry_".
//
// # Metric Categories
//
//   - HTTP: request counts, durations and in-flight gauge for the control API.
//   - Store: query and transaction durations, constraint violations, and
//     per-table row gauges refreshed by [Collector].
//   - Scanner: scans by outcome, entries visited by result, extraction time.
//   - Pipeline: batches by kind and terminal status, items by result, render
//     durations by phase and render errors by reason.
//   - Migration: attempts by outcome and rows carried over.
//   - Throttle: capacity, permits in use, waiters, and capacity adjustments.
//   - Filesystem: stale-handle retries for stat, readdir and open.
//
// Call [InitializeMetrics] once at startup so that every labelled series is
// present from the first scrape. The filesystem package cannot import this
// package, so it reports through [NewFilesystemObserver].
package metrics

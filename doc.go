// Package main provides the entry point for the Media Registry server.
//
// Media Registry catalogues a video library in SQLite, generates derived
// assets (mosaics and previews) in tracked batches, and migrates databases
// written by the legacy single-table registry into the normalized schema.
//
// # Application Lifecycle
//
//  1. Memory Configuration: Sets GOMEMLIMIT from MEMORY_LIMIT when present
//  2. Configuration Loading: Defaults, CONFIG_FILE (TOML), then environment
//  3. Database Initialization: Opens the registry store and applies the schema
//  4. Legacy Migration: Runs once when a legacy table is found and AUTO_MIGRATE is on
//  5. Component Initialization:
//     - Concurrency controller sized from CPU count, adjusted by memory and CPU load
//     - ffprobe extractor and ffmpeg/libvips renderer
//     - Metrics collector refreshing registry row gauges
//  6. HTTP Server Setup: Routes, logging and metrics middleware, gzip
//  7. Graceful Shutdown: SIGINT/SIGTERM stops the server and cancels running jobs
//
// A failed startup migration does not stop the server. The store stays in
// its legacy state, /health reports "degraded" with migrationPending set,
// and the migration can be retried with POST /api/migrate.
//
// # HTTP API
//
//   - POST /api/scans, GET|DELETE /api/scans/{id}: background library scans
//   - POST|GET /api/batches, GET /api/batches/{kind}/{id}: mosaic and preview batches
//   - GET /api/jobs, GET|DELETE /api/jobs/{id}: all background jobs
//   - GET /api/movies, /api/movies/{id}, /api/library, /api/stats
//   - GET|POST /api/migrate: legacy migration status and trigger
//   - /api/playlists...: playlists and WPL import
//   - /health, /livez, /readyz, /version, /metrics
//
// # Environment Variables
//
//   - CONFIG_FILE: optional TOML file, overridden by the variables below
//   - DATABASE_PATH: SQLite registry file (default: /database/registry.db)
//   - OUTPUT_DIR: directory for generated assets (default: /cache/assets)
//   - PORT: HTTP port (default: 8080)
//   - METRICS_ENABLED: expose /metrics (default: true)
//   - AUTO_MIGRATE: migrate a legacy store at startup (default: true)
//   - FFMPEG_PATH, FFPROBE_PATH: media tools
//   - GENERATION_TIMEOUT, PROBE_TIMEOUT: per-item tool timeouts
//   - THROTTLE_MIN, THROTTLE_MAX, THROTTLE_INTERVAL: concurrency bounds
//   - LOG_LEVEL, LOG_HEALTH_CHECKS
//   - MEMORY_LIMIT, MEMORY_RATIO, GOMEMLIMIT
//
// # Build Requirements
//
// CGO is required for SQLite and libvips. ffmpeg and ffprobe must be on
// PATH or configured explicitly.
//
// The mediactl command in cmd/mediactl runs the same operations against a
// registry file without the server.
package main

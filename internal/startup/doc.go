// Package startup handles configuration loading and startup/shutdown
// logging.
//
// # Configuration
//
// [Load] layers three sources: built-in defaults, an optional TOML file and
// environment variables, which always win. [LoadConfig] reads the file
// named by CONFIG_FILE, prints the banner and configuration, and creates the
// directories the configuration names.
//
// Environment variables:
//
//   - DATABASE_PATH: SQLite registry file (default: /database/registry.db)
//   - OUTPUT_DIR: root for generated mosaics and previews (default: /cache/assets)
//   - PORT: HTTP server port (default: 8080)
//   - METRICS_ENABLED: serve /metrics (default: true)
//   - AUTO_MIGRATE: migrate a legacy store at startup (default: true)
//   - FFMPEG_PATH, FFPROBE_PATH: tool binaries (default: from PATH)
//   - GENERATION_TIMEOUT: per-asset generation deadline (default: 5m)
//   - PROBE_TIMEOUT: per-file ffprobe deadline (default: 30s)
//   - THROTTLE_MIN, THROTTLE_MAX: permit bounds; max 0 sizes from the CPU count
//   - THROTTLE_INTERVAL: how often capacity is re-evaluated (default: 5s)
//   - LOG_LEVEL: debug, info, warn, error (default: info)
//   - LOG_HEALTH_CHECKS: log health check requests (default: true)
//
// The TOML file uses the sections [paths], [server], [generation] and
// [throttle]:
//
//	[paths]
//	database = "/srv/registry/registry.db"
//	output = "/srv/registry/assets"
//
//	[server]
//	port = "9000"
//	auto_migrate = false
//
//	[generation]
//	timeout = "10m"
//
//	[throttle]
//	max = 8
//
// Unknown keys are rejected.
//
// # Build Information
//
// Build-time variables are injected via ldflags and exposed via [GetBuildInfo].
package startup

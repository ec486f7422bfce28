// Command mediactl runs registry operations directly against the SQLite
// store, without the HTTP server.
//
// It reads the same configuration as the server (defaults, the TOML file
// from --config or CONFIG_FILE, then environment variables) and accepts
// --database to point at another registry file.
//
// Commands:
//
//	mediactl scan PATH [--tree]
//	mediactl generate mosaic|preview (--movie ID... | --all) [--fail-fast] [--skip-existing]
//	mediactl migrate [--yes]
//	mediactl migrate status
//	mediactl movies [--limit N] [--offset N]
//	mediactl batches [--kind mosaic|preview] [--limit N]
//	mediactl playlist list
//	mediactl playlist show ID
//	mediactl playlist import FILE.wpl
//	mediactl stats
//	mediactl version
//
// migrate asks for confirmation on an interactive terminal and refuses to
// run unattended without --yes. Do not run it while the server is migrating
// the same file; the migration lock file rejects the second attempt.
package main

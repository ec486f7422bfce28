// Package logging provides leveled logging for the media registry.
//
// It supports the following log levels:
//   - DEBUG: Verbose debugging information
//   - INFO: General operational messages
//   - WARN: Warning conditions
//   - ERROR: Error conditions
//   - FATAL: Fatal errors that terminate the process
//
// The level is read from DEBUG or LOG_LEVEL on first use and may be
// overridden with SetLevel. Components that run concurrently (scanner,
// pipeline, migration, throttle) log through a Logger obtained from With,
// which tags each line with the component name.
package logging

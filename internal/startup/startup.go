package startup

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"media-registry/internal/logging"
)

// Build-time variables (injected via -ldflags)
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
	GoVersion = runtime.Version()
)

// BuildInfo contains version and build information
type BuildInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"buildTime"`
	GoVersion string `json:"goVersion"`
	OS        string `json:"os"`
	Arch      string `json:"arch"`
}

// GetBuildInfo returns the current build information
func GetBuildInfo() BuildInfo {
	return BuildInfo{
		Version:   Version,
		Commit:    Commit,
		BuildTime: BuildTime,
		GoVersion: GoVersion,
		OS:        runtime.GOOS,
		Arch:      runtime.GOARCH,
	}
}

const rule = "------------------------------------------------------------"

// section starts a titled block of the startup log.
func section(title string) {
	logging.Info("")
	logging.Info(rule)
	logging.Info("%s", title)
	logging.Info(rule)
}

// setting is one line of the configuration summary.
type setting struct {
	key   string
	value any
}

// summary lists the effective configuration in the order it is logged.
func (c *Config) summary() []setting {
	maxPermits := "auto"
	if c.ThrottleMax > 0 {
		maxPermits = fmt.Sprint(c.ThrottleMax)
	}

	s := []setting{
		{"DATABASE_PATH", c.DatabasePath},
		{"OUTPUT_DIR", c.OutputDir},
		{"PORT", c.Port},
		{"METRICS_ENABLED", c.MetricsEnabled},
		{"AUTO_MIGRATE", c.AutoMigrate},
		{"FFMPEG_PATH", c.FFmpegPath},
		{"FFPROBE_PATH", c.FFprobePath},
		{"GENERATION_TIMEOUT", c.GenerationTimeout},
		{"PROBE_TIMEOUT", c.ProbeTimeout},
		{"THROTTLE_MIN", c.ThrottleMin},
		{"THROTTLE_MAX", maxPermits},
		{"THROTTLE_INTERVAL", c.ThrottleInterval},
		{"LOG_HEALTH_CHECKS", c.LogHealthChecks},
		{"LOG_LEVEL", logging.GetLevel()},
	}
	if c.ConfigFile != "" {
		s = append([]setting{{"CONFIG_FILE", c.ConfigFile}}, s...)
	}
	return s
}

// LoadConfig prints the banner, loads configuration from CONFIG_FILE and
// the environment, logs it and prepares the directories it names.
func LoadConfig() (*Config, error) {
	printBanner()
	logSystemInfo()

	cfg, err := Load(os.Getenv("CONFIG_FILE"))
	if err != nil {
		return nil, err
	}
	cfg.ApplyLogLevel()

	section("CONFIGURATION")
	for _, s := range cfg.summary() {
		logging.Info("  %-20s %v", s.key+":", s.value)
	}

	section("DIRECTORY SETUP")
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LogDatabaseInit logs database initialization
func LogDatabaseInit(duration time.Duration) {
	section("DATABASE INITIALIZATION")
	logging.Info("  [OK] Registry store opened in %v", duration)
}

// LogMigrationResult logs the outcome of the startup legacy migration.
func LogMigrationResult(pending bool, rows int, duration time.Duration, err error) {
	section("LEGACY MIGRATION")
	switch {
	case !pending:
		logging.Info("  No legacy schema found")
	case err != nil:
		logging.Error("  Migration failed, store left in its legacy state: %v", err)
	default:
		logging.Info("  [OK] Migrated %d legacy rows in %v", rows, duration)
	}
}

// LogToolsInit checks that ffmpeg and ffprobe can be run.
func LogToolsInit(ffmpegPath, ffprobePath string) {
	section("MEDIA TOOLS")
	for _, tool := range []string{ffmpegPath, ffprobePath} {
		name := filepath.Base(tool)
		version, err := toolVersion(tool)
		if err != nil {
			logging.Warn("  %s unavailable: %v", name, err)
			logging.Warn("  Scans or asset generation may fail")
			continue
		}
		logging.Info("  [OK] %s", version)
	}
}

// LogThrottleInit logs the permit bounds of the concurrency controller.
func LogThrottleInit(minPermits, maxPermits, initial int, adaptive bool) {
	mode := "fixed"
	if adaptive {
		mode = "adaptive"
	}
	logging.Info("  Concurrency: %d permits (%s, %d-%d)", initial, mode, minPermits, maxPermits)
}

// ServerConfig holds configuration for the server startup log
type ServerConfig struct {
	Port            string
	MetricsEnabled  bool
	StartupDuration time.Duration
}

// LogServerStarted logs successful server start with all endpoint information
func LogServerStarted(config ServerConfig) {
	section("SERVER STARTED")
	logging.Info("  Startup time:    %v", config.StartupDuration)
	logging.Info("")

	endpoints := []setting{
		{"API", "/api"},
		{"Health", "/health"},
		{"Metrics", "/metrics"},
	}
	for _, e := range endpoints {
		if e.key == "Metrics" && !config.MetricsEnabled {
			logging.Info("    %-14s DISABLED", e.key+":")
			continue
		}
		logging.Info("    %-14s http://0.0.0.0:%s%s", e.key+":", config.Port, e.value)
	}
	logging.Info("")
	logging.Info("  Press Ctrl+C to stop the server")
	logging.Info(rule)
}

// LogShutdownInitiated logs shutdown start
func LogShutdownInitiated(signal string) {
	section(fmt.Sprintf("SHUTDOWN INITIATED (received %s)", signal))
}

// LogShutdownStep logs a shutdown step
func LogShutdownStep(step string) {
	logging.Debug("  %s...", step)
}

// LogShutdownStepComplete logs a completed shutdown step
func LogShutdownStepComplete(step string) {
	logging.Info("  [OK] %s", step)
}

// LogShutdownComplete logs shutdown completion
func LogShutdownComplete() {
	logging.Info("  [OK] Shutdown complete")
}

// LogFatal logs a fatal error and exits
func LogFatal(format string, args ...interface{}) {
	logging.Fatal(format, args...)
}

func printBanner() {
	fmt.Println(rule)
	fmt.Println("  MEDIA REGISTRY")
	fmt.Println(rule)
	logging.Info("  Version:    %s (%s)", Version, Commit)
	logging.Info("  Build Time: %s", BuildTime)
	logging.Info("  Started:    %s", time.Now().Format(time.RFC1123))
}

func logSystemInfo() {
	section("SYSTEM INFORMATION")
	logging.Info("  Go version:      %s", runtime.Version())
	logging.Info("  OS/Arch:         %s/%s", runtime.GOOS, runtime.GOARCH)
	logging.Info("  CPUs:            %d (GOMAXPROCS %d)", runtime.NumCPU(), runtime.GOMAXPROCS(0))
	if wd, err := os.Getwd(); err == nil {
		logging.Debug("  Working dir:     %s", wd)
	}
}

// ensureDirectory creates path if needed and fails when something other
// than a directory is in the way.
func ensureDirectory(path, name string) error {
	info, err := os.Stat(path)
	switch {
	case os.IsNotExist(err):
		if err := os.MkdirAll(path, 0o755); err != nil {
			return fmt.Errorf("create %s directory: %w", name, err)
		}
		logging.Debug("  Created %s directory %s", name, path)
		return nil
	case err != nil:
		return fmt.Errorf("stat %s directory: %w", name, err)
	case !info.IsDir():
		return fmt.Errorf("%s exists but is not a directory", path)
	}
	return nil
}

func testWriteAccess(dir string) error {
	probe, err := os.CreateTemp(dir, ".write-test-*")
	if err != nil {
		return err
	}
	name := probe.Name()
	probe.Close()
	if err := os.Remove(name); err != nil {
		logging.Warn("Could not remove write probe %s: %v", name, err)
	}
	return nil
}

// toolVersion runs "tool -version" and returns the first output line.
func toolVersion(tool string) (string, error) {
	path, err := exec.LookPath(tool)
	if err != nil {
		return "", fmt.Errorf("not found in PATH")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	output, err := exec.CommandContext(ctx, path, "-version").Output()
	if err != nil {
		return "", fmt.Errorf("run %s -version: %w", path, err)
	}
	first, _, _ := strings.Cut(string(output), "\n")
	return strings.TrimSpace(first), nil
}

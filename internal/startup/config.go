package startup

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/pelletier/go-toml/v2"

	"media-registry/internal/logging"
	"media-registry/internal/throttle"
)

// Config holds all application configuration
type Config struct {
	// ConfigFile is the TOML file the values were overlaid from, if any.
	ConfigFile string

	DatabasePath string
	OutputDir    string

	Port            string
	MetricsEnabled  bool
	LogHealthChecks bool
	AutoMigrate     bool

	FFmpegPath        string
	FFprobePath       string
	GenerationTimeout time.Duration
	ProbeTimeout      time.Duration

	// ThrottleMax of zero lets the controller pick from the CPU count.
	ThrottleMin      int
	ThrottleMax      int
	ThrottleInterval time.Duration

	LogLevel string
}

// fileConfig mirrors the TOML layout. Pointers distinguish "absent" from
// false.
type fileConfig struct {
	Paths struct {
		Database string `toml:"database"`
		Output   string `toml:"output"`
	} `toml:"paths"`
	Server struct {
		Port            string `toml:"port"`
		MetricsEnabled  *bool  `toml:"metrics_enabled"`
		LogHealthChecks *bool  `toml:"log_health_checks"`
		AutoMigrate     *bool  `toml:"auto_migrate"`
		LogLevel        string `toml:"log_level"`
	} `toml:"server"`
	Generation struct {
		FFmpegPath   string `toml:"ffmpeg_path"`
		FFprobePath  string `toml:"ffprobe_path"`
		Timeout      string `toml:"timeout"`
		ProbeTimeout string `toml:"probe_timeout"`
	} `toml:"generation"`
	Throttle struct {
		Min      int    `toml:"min"`
		Max      int    `toml:"max"`
		Interval string `toml:"interval"`
	} `toml:"throttle"`
}

// DefaultConfig returns the configuration used when nothing is set.
func DefaultConfig() Config {
	return Config{
		DatabasePath:      "/database/registry.db",
		OutputDir:         "/cache/assets",
		Port:              "8080",
		MetricsEnabled:    true,
		LogHealthChecks:   true,
		AutoMigrate:       true,
		FFmpegPath:        "ffmpeg",
		FFprobePath:       "ffprobe",
		GenerationTimeout: 5 * time.Minute,
		ProbeTimeout:      30 * time.Second,
		ThrottleMin:       1,
		ThrottleInterval:  5 * time.Second,
		LogLevel:          "info",
	}
}

// Load builds the configuration from defaults, the TOML file at configFile
// (when not empty) and then environment variables, which win. Paths are made
// absolute. Nothing is created on disk.
func Load(configFile string) (*Config, error) {
	cfg := DefaultConfig()

	if configFile != "" {
		abs, err := filepath.Abs(configFile)
		if err != nil {
			return nil, fmt.Errorf("resolve config file path: %w", err)
		}
		if err := cfg.overlayFile(abs); err != nil {
			return nil, err
		}
		cfg.ConfigFile = abs
	}

	if err := cfg.overlayEnv(); err != nil {
		return nil, err
	}

	var err error
	if cfg.DatabasePath, err = filepath.Abs(cfg.DatabasePath); err != nil {
		return nil, fmt.Errorf("failed to resolve database path: %w", err)
	}
	if cfg.OutputDir, err = filepath.Abs(cfg.OutputDir); err != nil {
		return nil, fmt.Errorf("failed to resolve output directory path: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) overlayFile(path string) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	var fc fileConfig
	decoder := toml.NewDecoder(file)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&fc); err != nil {
		var strict *toml.StrictMissingError
		if errors.As(err, &strict) {
			return fmt.Errorf("parse config %s: %s", filepath.Base(path), strict.String())
		}
		return fmt.Errorf("parse config %s: %w", filepath.Base(path), err)
	}

	setString(&c.DatabasePath, fc.Paths.Database)
	setString(&c.OutputDir, fc.Paths.Output)
	setString(&c.Port, fc.Server.Port)
	setBool(&c.MetricsEnabled, fc.Server.MetricsEnabled)
	setBool(&c.LogHealthChecks, fc.Server.LogHealthChecks)
	setBool(&c.AutoMigrate, fc.Server.AutoMigrate)
	setString(&c.LogLevel, fc.Server.LogLevel)
	setString(&c.FFmpegPath, fc.Generation.FFmpegPath)
	setString(&c.FFprobePath, fc.Generation.FFprobePath)
	if fc.Throttle.Min != 0 {
		c.ThrottleMin = fc.Throttle.Min
	}
	if fc.Throttle.Max != 0 {
		c.ThrottleMax = fc.Throttle.Max
	}

	durations := []struct {
		key string
		raw string
		dst *time.Duration
	}{
		{"generation.timeout", fc.Generation.Timeout, &c.GenerationTimeout},
		{"generation.probe_timeout", fc.Generation.ProbeTimeout, &c.ProbeTimeout},
		{"throttle.interval", fc.Throttle.Interval, &c.ThrottleInterval},
	}
	for _, d := range durations {
		if d.raw == "" {
			continue
		}
		v, err := time.ParseDuration(d.raw)
		if err != nil {
			return fmt.Errorf("config %s: %w", d.key, err)
		}
		*d.dst = v
	}
	return nil
}

func (c *Config) overlayEnv() error {
	c.DatabasePath = getEnv("DATABASE_PATH", c.DatabasePath)
	c.OutputDir = getEnv("OUTPUT_DIR", c.OutputDir)
	c.Port = getEnv("PORT", c.Port)
	c.MetricsEnabled = getEnvBool("METRICS_ENABLED", c.MetricsEnabled)
	c.LogHealthChecks = getEnvBool("LOG_HEALTH_CHECKS", c.LogHealthChecks)
	c.AutoMigrate = getEnvBool("AUTO_MIGRATE", c.AutoMigrate)
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)
	c.FFmpegPath = getEnv("FFMPEG_PATH", c.FFmpegPath)
	c.FFprobePath = getEnv("FFPROBE_PATH", c.FFprobePath)
	c.GenerationTimeout = getEnvDuration("GENERATION_TIMEOUT", c.GenerationTimeout)
	c.ProbeTimeout = getEnvDuration("PROBE_TIMEOUT", c.ProbeTimeout)
	c.ThrottleInterval = getEnvDuration("THROTTLE_INTERVAL", c.ThrottleInterval)

	var err error
	if c.ThrottleMin, err = getEnvInt("THROTTLE_MIN", c.ThrottleMin); err != nil {
		return err
	}
	if c.ThrottleMax, err = getEnvInt("THROTTLE_MAX", c.ThrottleMax); err != nil {
		return err
	}
	return nil
}

// Validate rejects settings no component can run with.
func (c *Config) Validate() error {
	if _, err := strconv.Atoi(c.Port); err != nil {
		return fmt.Errorf("invalid port %q", c.Port)
	}
	if _, ok := logging.ParseLevel(c.LogLevel); !ok {
		return fmt.Errorf("invalid log level %q", c.LogLevel)
	}
	if c.ThrottleMin < 1 {
		return fmt.Errorf("throttle min must be at least 1, got %d", c.ThrottleMin)
	}
	if c.ThrottleMax != 0 && c.ThrottleMax < c.ThrottleMin {
		return fmt.Errorf("throttle max %d is below min %d", c.ThrottleMax, c.ThrottleMin)
	}
	if c.GenerationTimeout <= 0 || c.ProbeTimeout <= 0 {
		return errors.New("timeouts must be positive")
	}
	return nil
}

// ThrottleConfig returns the controller configuration for these settings.
func (c *Config) ThrottleConfig() throttle.Config {
	tc := throttle.DefaultConfig()
	tc.MinPermits = c.ThrottleMin
	if c.ThrottleMax > 0 {
		tc.MaxPermits = c.ThrottleMax
	}
	if tc.InitialPermits > tc.MaxPermits {
		tc.InitialPermits = tc.MaxPermits
	}
	tc.Interval = c.ThrottleInterval
	return tc
}

// ApplyLogLevel sets the process log level unless DEBUG already forces it.
func (c *Config) ApplyLogLevel() {
	if os.Getenv("DEBUG") != "" {
		return
	}
	if level, ok := logging.ParseLevel(c.LogLevel); ok {
		logging.SetLevel(level)
	}
}

// EnsureDirectories creates the database and output directories and checks
// that both are writable.
func (c *Config) EnsureDirectories() error {
	dbDir := filepath.Dir(c.DatabasePath)
	if err := ensureDirectory(dbDir, "database"); err != nil {
		return fmt.Errorf("database directory error: %w", err)
	}
	logging.Debug("  Testing database directory write access...")
	if err := testWriteAccess(dbDir); err != nil {
		return fmt.Errorf("database directory is not writable (required for database): %w", err)
	}
	logging.Info("  [OK] Database directory is writable")

	if err := ensureDirectory(c.OutputDir, "output"); err != nil {
		return fmt.Errorf("output directory error: %w", err)
	}
	if err := testWriteAccess(c.OutputDir); err != nil {
		return fmt.Errorf("output directory is not writable: %w", err)
	}
	logging.Info("  [OK] Output directory is writable")
	return nil
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setBool(dst *bool, v *bool) {
	if v != nil {
		*dst = *v
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		logging.Warn("Invalid boolean value for %s: %q, using default: %v", key, value, defaultValue)
		return defaultValue
	}
	return parsed
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := time.ParseDuration(value)
	if err != nil || parsed <= 0 {
		logging.Warn("Invalid duration for %s: %q, using default: %v", key, value, defaultValue)
		return defaultValue
	}
	return parsed
}

func getEnvInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid integer for %s: %q", key, value)
	}
	return parsed, nil
}

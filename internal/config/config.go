// Package config provides configuration management for the story daemon.
// Process settings come from environment variables with sensible defaults;
// editing policy comes from an optional YAML file (see policy.go).
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

const (
	// Default values
	DefaultPort     = 8787
	DefaultLogLevel = "info"
	DefaultDataDir  = ".story"
	DefaultCacheTTL = 24 * time.Hour

	// Environment variable names
	EnvPort        = "STORY_PORT"
	EnvLogLevel    = "STORY_LOG_LEVEL"
	EnvDataDir     = "STORY_DATA_DIR"
	EnvCacheTTL    = "STORY_CACHE_TTL"
	EnvFFmpegPath  = "STORY_FFMPEG_PATH"
	EnvFFprobePath = "STORY_FFPROBE_PATH"
	EnvHeadless    = "STORY_HEADLESS"
	EnvPolicyFile  = "STORY_POLICY_FILE"

	// Database filename
	DBFilename = "story.db"

	// Decoder timeouts
	DefaultProbeTimeout  = 30 * time.Second
	DefaultFrameTimeout  = 15 * time.Second
	DefaultRenderTimeout = 30 * time.Minute
)

// Config defines the application configuration interface
type Config interface {
	Port() int
	LogLevel() string
	DataDir() string
	DBPath() string
	CacheDir() string
	CacheTTL() time.Duration
	ExportDir() string
	FFmpegPath() string
	FFprobePath() string
	Headless() bool
	PolicyFile() string
	ProbeTimeout() time.Duration
	FrameTimeout() time.Duration
	RenderTimeout() time.Duration
}

// EnvConfig reads configuration from environment variables
type EnvConfig struct {
	port        int
	logLevel    string
	dataDir     string
	cacheTTL    time.Duration
	ffmpegPath  string
	ffprobePath string
	headless    bool
	policyFile  string
}

// New creates a new EnvConfig with defaults and environment variable overrides
func New() (*EnvConfig, error) {
	cfg := &EnvConfig{
		port:     DefaultPort,
		logLevel: DefaultLogLevel,
		dataDir:  defaultDataDir(),
		cacheTTL: DefaultCacheTTL,
	}

	if p := os.Getenv(EnvPort); p != "" {
		port, err := strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", EnvPort, err)
		}
		if port < 1 || port > 65535 {
			return nil, fmt.Errorf("invalid %s: port must be between 1 and 65535", EnvPort)
		}
		cfg.port = port
	}

	if ll := os.Getenv(EnvLogLevel); ll != "" {
		cfg.logLevel = ll
	}

	if dd := os.Getenv(EnvDataDir); dd != "" {
		cfg.dataDir = dd
	}

	if ttl := os.Getenv(EnvCacheTTL); ttl != "" {
		d, err := time.ParseDuration(ttl)
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", EnvCacheTTL, err)
		}
		if d <= 0 {
			return nil, fmt.Errorf("invalid %s: must be positive", EnvCacheTTL)
		}
		cfg.cacheTTL = d
	}

	if h := os.Getenv(EnvHeadless); h != "" {
		v, err := strconv.ParseBool(h)
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", EnvHeadless, err)
		}
		cfg.headless = v
	}

	cfg.ffmpegPath = os.Getenv(EnvFFmpegPath)
	cfg.ffprobePath = os.Getenv(EnvFFprobePath)
	cfg.policyFile = os.Getenv(EnvPolicyFile)

	return cfg, nil
}

// Port returns the HTTP server port
func (c *EnvConfig) Port() int {
	return c.port
}

// LogLevel returns the log level (debug, info, warn, error)
func (c *EnvConfig) LogLevel() string {
	return c.logLevel
}

func (c *EnvConfig) DataDir() string {
	return c.dataDir
}

// DBPath returns the full path to the SQLite database file
func (c *EnvConfig) DBPath() string {
	return filepath.Join(c.dataDir, DBFilename)
}

// CacheDir holds the frame cache.
func (c *EnvConfig) CacheDir() string {
	return filepath.Join(c.dataDir, "cache")
}

func (c *EnvConfig) CacheTTL() time.Duration {
	return c.cacheTTL
}

// ExportDir is where rendered stories and their EDLs are written.
func (c *EnvConfig) ExportDir() string {
	return filepath.Join(c.dataDir, "exports")
}

// FFmpegPath is empty when ffmpeg should be looked up on PATH.
func (c *EnvConfig) FFmpegPath() string {
	return c.ffmpegPath
}

func (c *EnvConfig) FFprobePath() string {
	return c.ffprobePath
}

// Headless selects the stub decoder instead of ffmpeg.
func (c *EnvConfig) Headless() bool {
	return c.headless
}

func (c *EnvConfig) PolicyFile() string {
	return c.policyFile
}

func (c *EnvConfig) ProbeTimeout() time.Duration {
	return DefaultProbeTimeout
}

func (c *EnvConfig) FrameTimeout() time.Duration {
	return DefaultFrameTimeout
}

func (c *EnvConfig) RenderTimeout() time.Duration {
	return DefaultRenderTimeout
}

// defaultDataDir returns the default data directory path
func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		// Fallback to current directory if home is not available
		return DefaultDataDir
	}
	return filepath.Join(home, DefaultDataDir)
}

// Version information (set at build time via ldflags)
var (
	Version   = "0.1.0"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/urfave/cli/v3"
)

// Default values applied by New.
const (
	DefaultCount       = 1
	DefaultWidth       = 100
	DefaultHeight      = 100
	DefaultURLTemplate = "https://picsum.photos/{width}/{height}"
	DefaultExtension   = ".jpg"
	DefaultTimeout     = 10 * time.Second
	DefaultChunkSize   = 8192
	DefaultDelay       = 100 * time.Millisecond
)

// Config holds all configuration for the imagefetch application
type Config struct {
	// Image source
	Count       int
	Width       int
	Height      int
	URLTemplate string // {width} and {height} are substituted
	Extension   string

	// File system
	OutputDir     string // user-provided
	AbsOutputDir  string // resolved/absolute path
	LedgerPath    string // user-provided, empty disables the ledger
	AbsLedgerPath string // resolved/absolute path

	// Download behavior
	Timeout   time.Duration
	ChunkSize int
	Delay     time.Duration

	// Logging & console
	LogLevel string // debug|info|warn|error
	LogJSON  bool
	NoColor  bool

	Version   string
	StartTime time.Time
}

// New creates a Config with default values
func New() *Config {
	return &Config{
		Count:       DefaultCount,
		Width:       DefaultWidth,
		Height:      DefaultHeight,
		URLTemplate: DefaultURLTemplate,
		Extension:   DefaultExtension,
		OutputDir:   ".",
		Timeout:     DefaultTimeout,
		ChunkSize:   DefaultChunkSize,
		Delay:       DefaultDelay,
		LogLevel:    "warn",
		Version:     "1.0.0",
		StartTime:   time.Now(),
	}
}

// Flags returns CLI flags bound to the configuration fields.
func (c *Config) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.IntFlag{
			Name:        "count",
			Aliases:     []string{"n"},
			Usage:       "Number of images to download",
			Value:       c.Count,
			Destination: &c.Count,
			Sources:     cli.EnvVars("IMAGEFETCH_COUNT"),
		},
		&cli.IntFlag{
			Name:        "width",
			Usage:       "Requested image width in pixels",
			Value:       c.Width,
			Destination: &c.Width,
			Sources:     cli.EnvVars("IMAGEFETCH_WIDTH"),
		},
		&cli.IntFlag{
			Name:        "height",
			Usage:       "Requested image height in pixels",
			Value:       c.Height,
			Destination: &c.Height,
			Sources:     cli.EnvVars("IMAGEFETCH_HEIGHT"),
		},
		&cli.StringFlag{
			Name:        "url-template",
			Usage:       "Image service URL; {width} and {height} are replaced",
			Value:       c.URLTemplate,
			Destination: &c.URLTemplate,
			Sources:     cli.EnvVars("IMAGEFETCH_URL_TEMPLATE"),
		},
		&cli.StringFlag{
			Name:        "output-dir",
			Aliases:     []string{"o"},
			Usage:       "Directory for downloaded images",
			Value:       c.OutputDir,
			Destination: &c.OutputDir,
			Sources:     cli.EnvVars("IMAGEFETCH_OUTPUT_DIR"),
		},
		&cli.DurationFlag{
			Name:        "timeout",
			Usage:       "Timeout for a single image request",
			Value:       c.Timeout,
			Destination: &c.Timeout,
			Sources:     cli.EnvVars("IMAGEFETCH_TIMEOUT"),
		},
		&cli.IntFlag{
			Name:        "chunk-size",
			Usage:       "Bytes written per chunk while streaming an image",
			Value:       c.ChunkSize,
			Destination: &c.ChunkSize,
			Sources:     cli.EnvVars("IMAGEFETCH_CHUNK_SIZE"),
		},
		&cli.DurationFlag{
			Name:        "delay",
			Usage:       "Pause between two image requests",
			Value:       c.Delay,
			Destination: &c.Delay,
			Sources:     cli.EnvVars("IMAGEFETCH_DELAY"),
		},
		&cli.StringFlag{
			Name:        "ledger",
			Usage:       "Optional SQLite file recording what this run saved and deleted",
			Destination: &c.LedgerPath,
			Sources:     cli.EnvVars("IMAGEFETCH_LEDGER"),
		},
		&cli.StringFlag{
			Name:        "log-level",
			Usage:       "Log level (debug, info, warn, error)",
			Value:       c.LogLevel,
			Destination: &c.LogLevel,
			Sources:     cli.EnvVars("IMAGEFETCH_LOG_LEVEL"),
		},
		&cli.BoolFlag{
			Name:        "log-json",
			Usage:       "Output logs in JSON format",
			Destination: &c.LogJSON,
			Sources:     cli.EnvVars("IMAGEFETCH_LOG_JSON"),
		},
		&cli.BoolFlag{
			Name:        "no-color",
			Usage:       "Disable colored console output",
			Destination: &c.NoColor,
			Sources:     cli.EnvVars("IMAGEFETCH_NO_COLOR"),
		},
	}
}

// Validate checks that all required configuration is present and valid
func (c *Config) Validate() error {
	if c.Count < 0 {
		return fmt.Errorf("invalid count: %d (must be >= 0)", c.Count)
	}
	if c.Width < 1 || c.Height < 1 {
		return fmt.Errorf("invalid dimensions: %dx%d (must be positive)", c.Width, c.Height)
	}

	if strings.TrimSpace(c.URLTemplate) == "" {
		return fmt.Errorf("url template is required")
	}
	if !strings.HasPrefix(c.URLTemplate, "http://") && !strings.HasPrefix(c.URLTemplate, "https://") {
		return fmt.Errorf("invalid url template: %s (must be http or https)", c.URLTemplate)
	}

	if c.Extension == "" {
		c.Extension = DefaultExtension
	}
	if !strings.HasPrefix(c.Extension, ".") {
		c.Extension = "." + c.Extension
	}

	// Fall back to defaults for non-positive tuning values
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.ChunkSize < 1 {
		c.ChunkSize = DefaultChunkSize
	}
	if c.Delay < 0 {
		c.Delay = 0
	}

	validLevels := []string{"debug", "info", "warn", "error"}
	c.LogLevel = strings.ToLower(c.LogLevel)
	valid := false
	for _, level := range validLevels {
		if c.LogLevel == level {
			valid = true
			break
		}
	}
	if !valid {
		return fmt.Errorf("invalid log level: %s (must be debug|info|warn|error)", c.LogLevel)
	}

	return nil
}

// ImageURL renders the URL template with the configured dimensions.
func (c *Config) ImageURL() string {
	r := strings.NewReplacer(
		"{width}", strconv.Itoa(c.Width),
		"{height}", strconv.Itoa(c.Height),
	)
	return r.Replace(c.URLTemplate)
}

// ResolveOutputDir expands the output directory path and resolves it to an absolute path
// If empty, defaults to the current working directory
func (c *Config) ResolveOutputDir() error {
	if c.OutputDir == "" {
		c.OutputDir = "."
	}

	expanded, err := expandHome(c.OutputDir)
	if err != nil {
		return err
	}
	c.OutputDir = expanded

	abs, err := filepath.Abs(c.OutputDir)
	if err != nil {
		return fmt.Errorf("resolve absolute path for %s: %w", c.OutputDir, err)
	}
	c.AbsOutputDir = abs

	return nil
}

// ResolveLedgerPath expands the ledger path; an empty path leaves the ledger disabled.
func (c *Config) ResolveLedgerPath() error {
	if c.LedgerPath == "" {
		c.AbsLedgerPath = ""
		return nil
	}

	expanded, err := expandHome(c.LedgerPath)
	if err != nil {
		return err
	}
	c.LedgerPath = expanded

	abs, err := filepath.Abs(c.LedgerPath)
	if err != nil {
		return fmt.Errorf("resolve absolute path for %s: %w", c.LedgerPath, err)
	}
	c.AbsLedgerPath = abs

	return nil
}

func expandHome(p string) (string, error) {
	if p != "~" && !strings.HasPrefix(p, "~/") {
		return p, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("expand home directory: %w", err)
	}
	if p == "~" {
		return home, nil
	}
	return filepath.Join(home, p[2:]), nil // Skip "~/"
}

// String returns a pretty-printed representation of the configuration
func (c *Config) String() string {
	return fmt.Sprintf(`Config{
  Source:
    Count: %d
    Size: %dx%d
    URL: %s
  Files:
    OutputDir: %s (resolved: %s)
    Ledger: %s (resolved: %s)
  Download:
    Timeout: %s
    ChunkSize: %d
    Delay: %s
  Logging:
    LogLevel: %s
    LogJSON: %t
  Meta:
    Version: %s
    StartTime: %s
}`, c.Count, c.Width, c.Height, c.ImageURL(),
		c.OutputDir, c.AbsOutputDir,
		c.LedgerPath, c.AbsLedgerPath,
		c.Timeout, c.ChunkSize, c.Delay,
		c.LogLevel, c.LogJSON,
		c.Version, c.StartTime.Format(time.RFC3339))
}

// Summary returns a one-line summary of key configuration
func (c *Config) Summary() map[string]any {
	return map[string]any{
		"count":      c.Count,
		"url":        c.ImageURL(),
		"output_dir": c.AbsOutputDir,
		"ledger":     c.AbsLedgerPath,
		"timeout":    c.Timeout.String(),
		"chunk_size": c.ChunkSize,
		"delay":      c.Delay.String(),
		"log_level":  c.LogLevel,
		"version":    c.Version,
	}
}

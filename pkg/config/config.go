// Package config loads the YAML configuration shared by the gmc command,
// the HTTP job server and the MCP tool.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/sanonone/gmc/pkg/gmc"
	"github.com/sanonone/gmc/pkg/persistence"
	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration file.
type Config struct {
	Clustering gmc.Config    `yaml:"clustering"`
	Server     ServerConfig  `yaml:"server"`
	Output     OutputConfig  `yaml:"output"`
	Logging    LoggingConfig `yaml:"logging"`
}

// ServerConfig configures the HTTP job API.
type ServerConfig struct {
	Address string `yaml:"address"`
	// AuthToken protects the /v1 routes with a bearer token. Empty disables auth.
	AuthToken string `yaml:"auth_token"`
	// MaxConcurrentRuns bounds the clustering runs executing at once.
	MaxConcurrentRuns int `yaml:"max_concurrent_runs"`
	// MaxBodyBytes bounds the size of a job submission.
	MaxBodyBytes int64 `yaml:"max_body_bytes"`
}

// OutputConfig controls where and how results are written.
type OutputConfig struct {
	Directory string `yaml:"directory"`
	// Precision of snapshot matrices: "float64" or "float16".
	Precision string `yaml:"precision"`
	// Journal appends one record per iteration next to every snapshot.
	Journal bool `yaml:"journal"`
}

// LoggingConfig selects the slog handler.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text or json
}

// DefaultConfig returns a working configuration. Clustering.Clusters is left
// at zero and must come from the file or the command line.
func DefaultConfig() Config {
	return Config{
		Clustering: gmc.DefaultConfig(),
		Server: ServerConfig{
			Address:           ":9093",
			MaxConcurrentRuns: 2,
			MaxBodyBytes:      64 << 20,
		},
		Output: OutputConfig{
			Directory: "gmc-output",
			Precision: "float64",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// LoadConfig reads the YAML file at path on top of the defaults. Unknown keys
// are rejected. An empty path returns the defaults.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	file, err := os.Open(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to open config: %w", err)
	}
	defer file.Close()

	decoder := yaml.NewDecoder(file)
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return cfg, fmt.Errorf("YAML syntax error in config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate checks the sections that do not depend on the data. The
// clustering section is validated per run against the sample count.
func (c Config) Validate() error {
	if _, err := persistence.ParsePrecision(c.Output.Precision); err != nil {
		return fmt.Errorf("%w: %v", gmc.ErrInvalidConfig, err)
	}
	if _, err := parseLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("%w: %v", gmc.ErrInvalidConfig, err)
	}
	switch c.Logging.Format {
	case "", "text", "json":
	default:
		return fmt.Errorf("%w: unknown log format %q", gmc.ErrInvalidConfig, c.Logging.Format)
	}
	if c.Server.MaxConcurrentRuns < 1 {
		return fmt.Errorf("%w: server.max_concurrent_runs must be positive", gmc.ErrInvalidConfig)
	}
	return nil
}

// Precision returns the parsed snapshot precision.
func (c Config) Precision() persistence.Precision {
	p, err := persistence.ParsePrecision(c.Output.Precision)
	if err != nil {
		return persistence.Float64
	}
	return p
}

// NewLogger builds the slog logger described by the logging section.
func (c LoggingConfig) NewLogger(w io.Writer) *slog.Logger {
	level, err := parseLevel(c.Level)
	if err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if c.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if s == "" {
		return slog.LevelInfo, nil
	}
	if err := level.UnmarshalText([]byte(strings.ToUpper(s))); err != nil {
		return 0, fmt.Errorf("unknown log level %q", s)
	}
	return level, nil
}

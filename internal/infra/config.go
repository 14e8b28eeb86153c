package infra

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/itrapnauskas/market-simulator/internal/detection"
	"github.com/itrapnauskas/market-simulator/internal/engine"
	"gopkg.in/yaml.v3"
)

// ErrInvalidConfig is the same sentinel engine.New wraps, so callers need one errors.Is check.
var ErrInvalidConfig = engine.ErrInvalidConfig

// Config holds everything a run needs. Simulation options sit at the top
// level of the YAML document; the other concerns have their own sections.
type Config struct {
	App struct {
		Name    string `yaml:"name"`
		Version string `yaml:"version"`
	} `yaml:"app"`

	Simulation engine.Config `yaml:",inline"`

	Run struct {
		Days   int  `yaml:"days"`
		Detect bool `yaml:"detect"`
	} `yaml:"run"`

	Detection detection.Config `yaml:"detection"`

	Storage struct {
		DBPath        string `yaml:"db_path"`      // empty: <workspace>/runs.db
		SnapshotDir   string `yaml:"snapshot_dir"` // empty: <workspace>/snapshots
		KeepSnapshots int    `yaml:"keep_snapshots"`
	} `yaml:"storage"`

	Stream struct {
		Enabled      bool    `yaml:"enabled"`
		Addr         string  `yaml:"addr"`
		MaxFrameRate float64 `yaml:"max_frame_rate"`
		Burst        int     `yaml:"burst"`
		SendBuffer   int     `yaml:"send_buffer"`
	} `yaml:"stream"`

	Logging struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"` // text | json
	} `yaml:"logging"`
}

// DefaultConfig is the fair unconstrained market with detection disabled.
func DefaultConfig() *Config {
	cfg := &Config{
		Simulation: engine.DefaultConfig(),
		Detection:  detection.DefaultConfig(),
	}
	cfg.App.Name = AppName
	cfg.App.Version = Version
	cfg.Run.Days = 250
	cfg.Storage.KeepSnapshots = 5
	cfg.Stream.Addr = "127.0.0.1:8765"
	cfg.Stream.SendBuffer = 64
	cfg.Logging.Level = "info"
	cfg.Logging.Format = "text"
	return cfg
}

// LoadConfig reads path over the defaults. ${VAR} references in the file are
// expanded first and MARKETLAB_* variables override the result.
// An empty path yields the defaults with the same overrides applied.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}

	if err := overrideWithEnv(cfg); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return cfg, nil
}

// Validate checks every section.
func (c *Config) Validate() error {
	if err := c.Simulation.Validate(); err != nil {
		return err
	}
	if err := c.Detection.Validate(); err != nil {
		return err
	}
	if c.Run.Days < 1 {
		return fmt.Errorf("run.days must be >= 1, got %d", c.Run.Days)
	}
	if c.Storage.KeepSnapshots < 0 {
		return errors.New("storage.keep_snapshots must be >= 0")
	}
	if c.Stream.Enabled {
		if c.Stream.Addr == "" {
			return errors.New("stream.addr is required when streaming is enabled")
		}
		if c.Stream.MaxFrameRate < 0 || c.Stream.Burst < 0 || c.Stream.SendBuffer < 0 {
			return errors.New("stream.max_frame_rate, burst and send_buffer must be >= 0")
		}
	}
	if _, err := ParseLevel(c.Logging.Level); err != nil {
		return err
	}
	switch c.Logging.Format {
	case "", "text", "json":
	default:
		return fmt.Errorf("logging.format %q is not one of text, json", c.Logging.Format)
	}
	return nil
}

// overrideWithEnv applies MARKETLAB_* variables. They take precedence over the file.
func overrideWithEnv(cfg *Config) error {
	if v := os.Getenv("MARKETLAB_SEED"); v != "" {
		seed, err := strconv.ParseUint(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return fmt.Errorf("MARKETLAB_SEED %q is not an unsigned integer", v)
		}
		cfg.Simulation.RandomSeed = seed
	}
	if v := os.Getenv("MARKETLAB_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("MARKETLAB_DB_PATH"); v != "" {
		cfg.Storage.DBPath = v
	}
	return nil
}

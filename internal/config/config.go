// Package config loads buildtest settings from a YAML file and the
// environment.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/babydragon/buildtest/internal/buildctx"
	"github.com/babydragon/buildtest/relay"
	"gopkg.in/yaml.v3"
)

const (
	// EnvConfig names the config file when no path is given explicitly.
	EnvConfig = "BUILDTEST_CONFIG"

	// EnvEngineHost overrides engine.host.
	EnvEngineHost = "BUILDTEST_ENGINE_HOST"
)

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("invalid config")

// Config is the full set of settings.
type Config struct {
	Engine EngineConfig `yaml:"engine"`
	Build  BuildConfig  `yaml:"build"`
	Run    RunConfig    `yaml:"run"`
	Relay  RelayConfig  `yaml:"relay"`
	Log    LogConfig    `yaml:"log"`
}

// EngineConfig locates the Docker daemon. Empty fields fall back to
// DOCKER_HOST / DOCKER_API_VERSION and socket discovery.
type EngineConfig struct {
	Host       string `yaml:"host"`
	APIVersion string `yaml:"api_version"`
}

type BuildConfig struct {
	Image      string `yaml:"image"`
	Dockerfile string `yaml:"dockerfile"`
}

type RunConfig struct {
	Image   string   `yaml:"image"`
	Command []string `yaml:"command"`
}

type RelayConfig struct {
	Capacity int    `yaml:"capacity"`
	Sink     string `yaml:"sink"` // console or log
}

type LogConfig struct {
	Level string `yaml:"level"`
}

// Default returns the built-in settings.
func Default() *Config {
	return &Config{
		Build: BuildConfig{
			Image:      "demo",
			Dockerfile: buildctx.DefaultDescriptor,
		},
		Run: RunConfig{
			Image:   "alpine:3.15",
			Command: []string{"echo", "in container"},
		},
		Relay: RelayConfig{
			Capacity: relay.DefaultCapacity,
			Sink:     relay.HandlerConsole,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads path on top of the defaults and applies environment overrides.
// An empty path falls back to $BUILDTEST_CONFIG; with neither set only the
// defaults and environment are used.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = os.Getenv(EnvConfig)
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := cfg.Parse(data); err != nil {
			return nil, err
		}
	}

	if v := os.Getenv(EnvEngineHost); v != "" {
		cfg.Engine.Host = v
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse merges YAML data into cfg. Keys absent from data keep their
// current values.
func (c *Config) Parse(data []byte) error {
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse yaml: %w", err)
	}
	return nil
}

// Validate checks the settings for obvious mistakes.
func (c *Config) Validate() error {
	var errs []error

	if strings.TrimSpace(c.Build.Image) == "" {
		errs = append(errs, fmt.Errorf("%w: build.image is empty", ErrInvalid))
	}
	if strings.TrimSpace(c.Run.Image) == "" {
		errs = append(errs, fmt.Errorf("%w: run.image is empty", ErrInvalid))
	}
	if len(c.Run.Command) == 0 {
		errs = append(errs, fmt.Errorf("%w: run.command is empty", ErrInvalid))
	}
	if c.Relay.Capacity < 1 {
		errs = append(errs, fmt.Errorf("%w: relay.capacity must be at least 1, got %d", ErrInvalid, c.Relay.Capacity))
	}
	switch c.Relay.Sink {
	case relay.HandlerConsole, relay.HandlerLog:
	default:
		errs = append(errs, fmt.Errorf("%w: relay.sink %q (want %q or %q)", ErrInvalid, c.Relay.Sink, relay.HandlerConsole, relay.HandlerLog))
	}
	if _, err := c.Log.SlogLevel(); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

// SlogLevel converts the configured level name.
func (l LogConfig) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(l.Level)); err != nil {
		return slog.LevelInfo, fmt.Errorf("%w: log.level %q", ErrInvalid, l.Level)
	}
	return level, nil
}

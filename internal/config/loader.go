package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultFile is the configuration file looked up in the working directory
// when none is named explicitly.
const DefaultFile = "rune2e.yaml"

const (
	DefaultServerStopTimeout = 5 * time.Second
	DefaultReadinessInterval = 250 * time.Millisecond
	DefaultReadinessTimeout  = 60 * time.Second
	DefaultAttemptTimeout    = 2 * time.Second
)

// Environment variables that override configuration values.
const (
	EnvCIVariable      = "RUNE2E_CI_VARIABLE"
	EnvMetricsTextfile = "RUNE2E_METRICS_TEXTFILE"
)

// Default returns the built-in configuration: serve the app with make and
// drive nightwatch against it.
func Default() *Config {
	return &Config{
		Version: "1",
		Server: ServerSpec{
			Command:     []string{"make", "app-e2e"},
			StopTimeout: Duration{Duration: DefaultServerStopTimeout},
		},
		Runner: RunnerSpec{
			Command: []string{"./node_modules/.bin/nightwatch"},
			EnvFlag: "-e",
		},
		Environments: EnvironmentsSpec{
			CIVariable: "TRAVIS",
			CI:         []string{"chrome", "safari", "edge"},
			Default:    []string{"chrome"},
		},
	}
}

// Load reads a configuration file from the provided path. The file must exist.
func Load(path string) (*Config, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve config path: %w", err)
	}

	data, err := os.ReadFile(absPath)
	if err != nil {
		return nil, fmt.Errorf("open config file: %w", err)
	}

	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%s: decode: %w", absPath, err)
	}
	if raw != nil {
		if err := validateAgainstSchema(raw); err != nil {
			return nil, fmt.Errorf("%s: %w", absPath, err)
		}
	}

	cfg := Default()
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%s: decode: %w", absPath, err)
	}
	cfg.Source = absPath

	baseDir := filepath.Dir(absPath)
	cfg.Server.Workdir = resolvePath(baseDir, os.ExpandEnv(cfg.Server.Workdir))
	cfg.Runner.Workdir = resolvePath(baseDir, os.ExpandEnv(cfg.Runner.Workdir))
	cfg.Server.LogFile = resolvePath(baseDir, os.ExpandEnv(cfg.Server.LogFile))
	cfg.Server.Env = expandEnvValues(cfg.Server.Env)
	cfg.Runner.Env = expandEnvValues(cfg.Runner.Env)

	if err := cfg.finalize(); err != nil {
		return nil, fmt.Errorf("%s: %w", absPath, err)
	}
	return cfg, nil
}

// LoadOptional behaves like Load but falls back to Default when the file does
// not exist.
func LoadOptional(path string) (*Config, error) {
	cfg, err := Load(path)
	if err == nil {
		return cfg, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		cfg = Default()
		if err := cfg.finalize(); err != nil {
			return nil, err
		}
		return cfg, nil
	}
	return nil, err
}

// ApplyEnvOverrides replaces configuration values with those supplied through
// RUNE2E_* environment variables.
func (c *Config) ApplyEnvOverrides(lookup func(string) (string, bool)) error {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	if value, ok := lookup(EnvCIVariable); ok && value != "" {
		c.Environments.CIVariable = value
	}
	if value, ok := lookup(EnvMetricsTextfile); ok && value != "" {
		c.Metrics.Textfile = value
	}
	return c.Validate()
}

func (c *Config) finalize() error {
	if c.Version == "" {
		c.Version = "1"
	}
	// Zero leaves no room for a graceful exit; treat it as unset.
	if c.Server.StopTimeout.Duration == 0 {
		c.Server.StopTimeout.Duration = DefaultServerStopTimeout
	}
	c.Server.Readiness.ApplyDefaults()
	return c.Validate()
}

func resolvePath(base, path string) string {
	if path == "" {
		return ""
	}
	if filepath.IsAbs(path) {
		return filepath.Clean(path)
	}
	return filepath.Clean(filepath.Join(base, path))
}

func expandEnvValues(env map[string]string) map[string]string {
	if len(env) == 0 {
		return env
	}
	out := make(map[string]string, len(env))
	for k, v := range env {
		out[k] = os.ExpandEnv(v)
	}
	return out
}

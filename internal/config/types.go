package config

import (
	"fmt"
	"time"
)

// Duration wraps time.Duration for YAML unmarshalling.
type Duration struct {
	time.Duration
	explicit bool
}

// UnmarshalText parses a textual duration, accepting empty strings.
func (d *Duration) UnmarshalText(text []byte) error {
	d.explicit = true
	if len(text) == 0 {
		d.Duration = 0
		return nil
	}
	dur, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", string(text), err)
	}
	d.Duration = dur
	return nil
}

// MarshalText renders the duration using time.Duration formatting.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// IsSet reports whether the duration was explicitly provided or non-zero.
func (d Duration) IsSet() bool {
	return d.explicit || d.Duration != 0
}

// Config mirrors the rune2e.yaml document structure.
type Config struct {
	Version      string           `yaml:"version"`
	Server       ServerSpec       `yaml:"server"`
	Runner       RunnerSpec       `yaml:"runner"`
	Environments EnvironmentsSpec `yaml:"environments"`
	Metrics      MetricsSpec      `yaml:"metrics,omitempty"`

	// Source is the absolute path of the file the configuration was read
	// from. Empty when the built-in defaults are in use.
	Source string `yaml:"-"`
}

// ServerSpec describes the background application server.
type ServerSpec struct {
	Command     []string          `yaml:"command"`
	Workdir     string            `yaml:"workdir,omitempty"`
	Env         map[string]string `yaml:"env,omitempty"`
	StopTimeout Duration          `yaml:"stopTimeout"`
	Readiness   *ReadinessSpec    `yaml:"readiness,omitempty"`
	// LogFile receives the server's output in addition to debug logging.
	LogFile     string            `yaml:"logFile,omitempty"`
}

// RunnerSpec describes the foreground test runner.
type RunnerSpec struct {
	Command []string          `yaml:"command"`
	EnvFlag string            `yaml:"envFlag"`
	Workdir string            `yaml:"workdir,omitempty"`
	Env     map[string]string `yaml:"env,omitempty"`
	Timeout Duration          `yaml:"timeout,omitempty"`
}

// EnvironmentsSpec selects the browser environments handed to the runner.
type EnvironmentsSpec struct {
	CIVariable string   `yaml:"ciVariable"`
	CI         []string `yaml:"ci"`
	Default    []string `yaml:"default"`
}

// MetricsSpec configures metric export.
type MetricsSpec struct {
	Textfile string `yaml:"textfile,omitempty"`
}

// ReadinessSpec configures the optional wait for the server before the runner
// is launched.
type ReadinessSpec struct {
	Interval       Duration          `yaml:"interval"`
	Timeout        Duration          `yaml:"timeout"`
	AttemptTimeout Duration          `yaml:"attemptTimeout"`
	HTTP           *HTTPProbeSpec    `yaml:"http,omitempty"`
	TCP            *TCPProbeSpec     `yaml:"tcp,omitempty"`
	Command        *CommandProbeSpec `yaml:"command,omitempty"`
}

// HTTPProbeSpec defines an HTTP probe.
type HTTPProbeSpec struct {
	URL          string `yaml:"url"`
	ExpectStatus []int  `yaml:"expectStatus,omitempty"`
}

// TCPProbeSpec defines a TCP probe.
type TCPProbeSpec struct {
	Address string `yaml:"address"`
}

// CommandProbeSpec defines a command probe.
type CommandProbeSpec struct {
	Command []string `yaml:"command"`
}

// ApplyDefaults fills unset readiness timings.
func (r *ReadinessSpec) ApplyDefaults() {
	if r == nil {
		return
	}
	if !r.Interval.IsSet() {
		r.Interval.Duration = DefaultReadinessInterval
	}
	if !r.Timeout.IsSet() {
		r.Timeout.Duration = DefaultReadinessTimeout
	}
	if !r.AttemptTimeout.IsSet() {
		r.AttemptTimeout.Duration = DefaultAttemptTimeout
	}
}

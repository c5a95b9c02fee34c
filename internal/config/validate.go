package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"

	"github.com/docker/go-connections/nat"
)

// Validate enforces the invariants the orchestrator relies on.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("configuration is nil")
	}
	if c.Version != "" && c.Version != "1" {
		return fmt.Errorf("version: unsupported value %q", c.Version)
	}
	if err := validateCommand("server.command", c.Server.Command); err != nil {
		return err
	}
	if c.Server.StopTimeout.Duration < 0 {
		return fmt.Errorf("server.stopTimeout: must not be negative")
	}
	if c.Server.Readiness != nil {
		if err := validateReadiness("server.readiness", c.Server.Readiness); err != nil {
			return err
		}
	}
	if err := validateCommand("runner.command", c.Runner.Command); err != nil {
		return err
	}
	if c.Runner.Timeout.Duration < 0 {
		return fmt.Errorf("runner.timeout: must not be negative")
	}
	if strings.TrimSpace(c.Environments.CIVariable) == "" {
		return fmt.Errorf("environments.ciVariable: must not be empty")
	}
	if err := validateEnvironmentNames("environments.ci", c.Environments.CI); err != nil {
		return err
	}
	if err := validateEnvironmentNames("environments.default", c.Environments.Default); err != nil {
		return err
	}
	return nil
}

func validateCommand(field string, command []string) error {
	if len(command) == 0 {
		return fmt.Errorf("%s: requires at least one argument", field)
	}
	if strings.TrimSpace(command[0]) == "" {
		return fmt.Errorf("%s: executable must not be empty", field)
	}
	return nil
}

func validateEnvironmentNames(field string, names []string) error {
	if len(names) == 0 {
		return fmt.Errorf("%s: at least one environment is required", field)
	}
	for idx, name := range names {
		if strings.TrimSpace(name) == "" {
			return fmt.Errorf("%s[%d]: environment name must not be empty", field, idx)
		}
		if strings.ContainsAny(name, ", \t") {
			return fmt.Errorf("%s[%d]: environment name %q must not contain commas or whitespace", field, idx, name)
		}
	}
	return nil
}

func validateReadiness(field string, r *ReadinessSpec) error {
	probes := 0
	if r.HTTP != nil {
		probes++
		u, err := url.Parse(r.HTTP.URL)
		if err != nil {
			return fmt.Errorf("%s.http.url: %w", field, err)
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			return fmt.Errorf("%s.http.url: %q must be an absolute http(s) URL", field, r.HTTP.URL)
		}
		if u.Host == "" {
			return fmt.Errorf("%s.http.url: %q is missing a host", field, r.HTTP.URL)
		}
		for idx, status := range r.HTTP.ExpectStatus {
			if status < 100 || status > 599 {
				return fmt.Errorf("%s.http.expectStatus[%d]: invalid status code %d", field, idx, status)
			}
		}
	}
	if r.TCP != nil {
		probes++
		if err := validateAddress(r.TCP.Address); err != nil {
			return fmt.Errorf("%s.tcp.address: %w", field, err)
		}
	}
	if r.Command != nil {
		probes++
		if err := validateCommand(field+".command.command", r.Command.Command); err != nil {
			return err
		}
	}
	if probes == 0 {
		return fmt.Errorf("%s: at least one of http, tcp or command is required", field)
	}
	if r.Interval.Duration <= 0 {
		return fmt.Errorf("%s.interval: must be greater than zero", field)
	}
	if r.Timeout.Duration < 0 || r.AttemptTimeout.Duration < 0 {
		return fmt.Errorf("%s: durations must not be negative", field)
	}
	return nil
}

func validateAddress(address string) error {
	_, port, err := net.SplitHostPort(address)
	if err != nil {
		return fmt.Errorf("invalid address %q: %w", address, err)
	}
	value, err := nat.ParsePort(port)
	if err != nil {
		return fmt.Errorf("invalid port %q: %w", port, err)
	}
	if value == 0 {
		return fmt.Errorf("port must be between 1 and 65535")
	}
	return nil
}

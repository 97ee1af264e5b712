// Package config provides configuration management for the DIM station core.
package config

import (
	"crypto/tls"
	"errors"
	"fmt"
	"time"
)

// Config holds the station's full configuration.
type Config struct {
	Station  StationConfig  `toml:"station"`
	LogLevel string         `toml:"log_level"`
	TLS      TLSConfig      `toml:"tls"`
	Timeouts TimeoutsConfig `toml:"timeouts"`
	Limits   LimitsConfig   `toml:"limits"`
	Metrics  MetricsConfig  `toml:"metrics"`
	Mailbox  MailboxConfig  `toml:"mailbox"`
	Neighbor NeighborConfig `toml:"neighbor"`
}

// StationConfig identifies this station and where it listens.
type StationConfig struct {
	Hostname  string           `toml:"hostname"`
	ID        string           `toml:"id"`
	Listeners []ListenerConfig `toml:"listeners"`
}

// ListenerConfig defines settings for a single listener. The wire
// protocol itself is auto-detected per connection; a listener only
// carries its bind address and whether it terminates TLS.
type ListenerConfig struct {
	Address string `toml:"address"`
	TLS     bool   `toml:"tls"`
}

// TLSConfig holds TLS certificate and version settings.
type TLSConfig struct {
	CertFile   string `toml:"cert_file"`
	KeyFile    string `toml:"key_file"`
	MinVersion string `toml:"min_version"`
}

// TimeoutsConfig defines timeout durations. Idle and handshake bound
// the per-connection server loop. Connection and EnvelopeMaxAge are
// parsed and validated but read by no other component: the dispatcher
// applies its fixed 600-second ReplayWindow regardless of
// EnvelopeMaxAge.
type TimeoutsConfig struct {
	Connection     string `toml:"connection"`
	Handshake      string `toml:"handshake"`
	Idle           string `toml:"idle"`
	EnvelopeMaxAge string `toml:"envelope_max_age"`
}

// LimitsConfig defines resource limits for the station.
type LimitsConfig struct {
	MaxConnections int `toml:"max_connections"`
}

// MetricsConfig holds configuration for Prometheus metrics.
type MetricsConfig struct {
	Enabled bool   `toml:"enabled"`
	Address string `toml:"address"`
	Path    string `toml:"path"`
}

// MailboxConfig holds configuration for the append-only mailbox store.
type MailboxConfig struct {
	StateRoot string `toml:"state_root"`
}

// NeighborConfig names the one peer station this core forwards to.
type NeighborConfig struct {
	ID      string `toml:"id"`
	Address string `toml:"address"`
	Timeout string `toml:"timeout"`
}

// Default returns a Config with sensible default values.
func Default() Config {
	return Config{
		Station: StationConfig{
			Hostname: "localhost",
			Listeners: []ListenerConfig{
				{Address: ":9394"},
			},
		},
		LogLevel: "info",
		TLS: TLSConfig{
			MinVersion: "1.2",
		},
		Timeouts: TimeoutsConfig{
			Connection:     "10m",
			Handshake:      "30s",
			Idle:           "5m",
			EnvelopeMaxAge: "10m",
		},
		Limits: LimitsConfig{
			MaxConnections: 10000,
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Address: ":9101",
			Path:    "/metrics",
		},
		Mailbox: MailboxConfig{
			StateRoot: "./var/mailboxes",
		},
		Neighbor: NeighborConfig{
			Timeout: "5s",
		},
	}
}

// Validate checks that the configuration is valid and returns an error if not.
func (c *Config) Validate() error {
	if c.Station.Hostname == "" {
		return errors.New("station.hostname is required")
	}

	if len(c.Station.Listeners) == 0 {
		return errors.New("at least one listener is required")
	}

	for i, l := range c.Station.Listeners {
		if l.Address == "" {
			return fmt.Errorf("listener %d: address is required", i)
		}
	}

	if c.Limits.MaxConnections <= 0 {
		return errors.New("max_connections must be positive")
	}

	if c.Timeouts.Connection != "" {
		if _, err := time.ParseDuration(c.Timeouts.Connection); err != nil {
			return fmt.Errorf("invalid connection timeout: %w", err)
		}
	}

	if c.Timeouts.Handshake != "" {
		if _, err := time.ParseDuration(c.Timeouts.Handshake); err != nil {
			return fmt.Errorf("invalid handshake timeout: %w", err)
		}
	}

	if c.Timeouts.Idle != "" {
		if _, err := time.ParseDuration(c.Timeouts.Idle); err != nil {
			return fmt.Errorf("invalid idle timeout: %w", err)
		}
	}

	if c.Timeouts.EnvelopeMaxAge != "" {
		if _, err := time.ParseDuration(c.Timeouts.EnvelopeMaxAge); err != nil {
			return fmt.Errorf("invalid envelope_max_age: %w", err)
		}
	}

	if c.TLS.MinVersion != "" {
		if _, ok := minTLSVersions[c.TLS.MinVersion]; !ok {
			return fmt.Errorf("invalid TLS min_version %q (valid: 1.0, 1.1, 1.2, 1.3)", c.TLS.MinVersion)
		}
	}

	if c.Metrics.Enabled {
		if c.Metrics.Address == "" {
			return errors.New("metrics address is required when metrics are enabled")
		}
		if c.Metrics.Path == "" {
			return errors.New("metrics path is required when metrics are enabled")
		}
	}

	if c.Mailbox.StateRoot == "" {
		return errors.New("mailbox.state_root is required")
	}

	if c.Neighbor.Address != "" {
		if c.Neighbor.ID == "" {
			return errors.New("neighbor.id is required when neighbor.address is set")
		}
		if c.Neighbor.Timeout != "" {
			if _, err := time.ParseDuration(c.Neighbor.Timeout); err != nil {
				return fmt.Errorf("invalid neighbor.timeout: %w", err)
			}
		}
	}

	return nil
}

// MinTLSVersion returns the crypto/tls constant for the configured minimum TLS version.
// Returns tls.VersionTLS12 if not configured or invalid.
func (c *TLSConfig) MinTLSVersion() uint16 {
	if v, ok := minTLSVersions[c.MinVersion]; ok {
		return v
	}
	return tls.VersionTLS12
}

// ConnectionTimeout returns the connection timeout as a time.Duration.
// Returns 10 minutes if not configured or invalid.
func (c *TimeoutsConfig) ConnectionTimeout() time.Duration {
	return parseOrDefault(c.Connection, 10*time.Minute)
}

// HandshakeTimeout returns the handshake timeout as a time.Duration.
// Returns 30 seconds if not configured or invalid.
func (c *TimeoutsConfig) HandshakeTimeout() time.Duration {
	return parseOrDefault(c.Handshake, 30*time.Second)
}

// IdleTimeout returns the idle timeout as a time.Duration.
// Returns 5 minutes if not configured or invalid.
func (c *TimeoutsConfig) IdleTimeout() time.Duration {
	return parseOrDefault(c.Idle, 5*time.Minute)
}

// EnvelopeMaxAgeDuration returns the configured envelope maximum age.
// Returns 10 minutes if not configured or invalid. The dispatcher does
// not read it; its anti-replay window is the ReplayWindow constant.
func (c *TimeoutsConfig) EnvelopeMaxAgeDuration() time.Duration {
	return parseOrDefault(c.EnvelopeMaxAge, 10*time.Minute)
}

// NeighborTimeoutDuration returns the neighbor forward call's bound.
// Returns 5 seconds if not configured or invalid.
func (c *NeighborConfig) NeighborTimeoutDuration() time.Duration {
	return parseOrDefault(c.Timeout, 5*time.Second)
}

func parseOrDefault(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}

var minTLSVersions = map[string]uint16{
	"1.0": tls.VersionTLS10,
	"1.1": tls.VersionTLS11,
	"1.2": tls.VersionTLS12,
	"1.3": tls.VersionTLS13,
}

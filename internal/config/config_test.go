package config

import (
	"crypto/tls"
	"testing"
	"time"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Station.Hostname != "localhost" {
		t.Errorf("expected hostname 'localhost', got %q", cfg.Station.Hostname)
	}

	if cfg.LogLevel != "info" {
		t.Errorf("expected log_level 'info', got %q", cfg.LogLevel)
	}

	if len(cfg.Station.Listeners) != 1 {
		t.Fatalf("expected 1 listener, got %d", len(cfg.Station.Listeners))
	}

	if cfg.Station.Listeners[0].Address != ":9394" {
		t.Errorf("expected listener address ':9394', got %q", cfg.Station.Listeners[0].Address)
	}

	if cfg.TLS.MinVersion != "1.2" {
		t.Errorf("expected TLS min_version '1.2', got %q", cfg.TLS.MinVersion)
	}

	if cfg.Limits.MaxConnections != 10000 {
		t.Errorf("expected max_connections 10000, got %d", cfg.Limits.MaxConnections)
	}

	if cfg.Timeouts.Connection != "10m" {
		t.Errorf("expected connection timeout '10m', got %q", cfg.Timeouts.Connection)
	}

	if cfg.Timeouts.Idle != "5m" {
		t.Errorf("expected idle timeout '5m', got %q", cfg.Timeouts.Idle)
	}

	if cfg.Timeouts.EnvelopeMaxAge != "10m" {
		t.Errorf("expected envelope_max_age '10m', got %q", cfg.Timeouts.EnvelopeMaxAge)
	}

	if cfg.Mailbox.StateRoot == "" {
		t.Error("expected a default mailbox state_root")
	}

	if cfg.Neighbor.Address != "" {
		t.Errorf("expected no default neighbor address, got %q", cfg.Neighbor.Address)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr bool
	}{
		{
			name:    "valid default config",
			modify:  func(c *Config) {},
			wantErr: false,
		},
		{
			name:    "empty hostname",
			modify:  func(c *Config) { c.Station.Hostname = "" },
			wantErr: true,
		},
		{
			name:    "no listeners",
			modify:  func(c *Config) { c.Station.Listeners = nil },
			wantErr: true,
		},
		{
			name: "listener with empty address",
			modify: func(c *Config) {
				c.Station.Listeners = []ListenerConfig{{Address: ""}}
			},
			wantErr: true,
		},
		{
			name:    "zero max_connections",
			modify:  func(c *Config) { c.Limits.MaxConnections = 0 },
			wantErr: true,
		},
		{
			name:    "negative max_connections",
			modify:  func(c *Config) { c.Limits.MaxConnections = -1 },
			wantErr: true,
		},
		{
			name:    "invalid connection timeout",
			modify:  func(c *Config) { c.Timeouts.Connection = "invalid" },
			wantErr: true,
		},
		{
			name:    "invalid idle timeout",
			modify:  func(c *Config) { c.Timeouts.Idle = "invalid" },
			wantErr: true,
		},
		{
			name:    "invalid envelope_max_age",
			modify:  func(c *Config) { c.Timeouts.EnvelopeMaxAge = "invalid" },
			wantErr: true,
		},
		{
			name:    "invalid TLS min_version",
			modify:  func(c *Config) { c.TLS.MinVersion = "1.4" },
			wantErr: true,
		},
		{
			name:    "empty mailbox state_root",
			modify:  func(c *Config) { c.Mailbox.StateRoot = "" },
			wantErr: true,
		},
		{
			name: "metrics enabled without address",
			modify: func(c *Config) {
				c.Metrics.Enabled = true
				c.Metrics.Address = ""
			},
			wantErr: true,
		},
		{
			name: "neighbor address without id",
			modify: func(c *Config) {
				c.Neighbor.Address = "127.0.0.1:9000"
				c.Neighbor.ID = ""
			},
			wantErr: true,
		},
		{
			name: "neighbor address with id is valid",
			modify: func(c *Config) {
				c.Neighbor.Address = "127.0.0.1:9000"
				c.Neighbor.ID = "relay2@dim.chat"
			},
			wantErr: false,
		},
		{
			name: "neighbor invalid timeout",
			modify: func(c *Config) {
				c.Neighbor.Address = "127.0.0.1:9000"
				c.Neighbor.ID = "relay2@dim.chat"
				c.Neighbor.Timeout = "invalid"
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(&cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestMinTLSVersion(t *testing.T) {
	tests := []struct {
		version  string
		expected uint16
	}{
		{"1.0", tls.VersionTLS10},
		{"1.1", tls.VersionTLS11},
		{"1.2", tls.VersionTLS12},
		{"1.3", tls.VersionTLS13},
		{"", tls.VersionTLS12},        // default
		{"invalid", tls.VersionTLS12}, // invalid falls back to default
	}

	for _, tt := range tests {
		t.Run(tt.version, func(t *testing.T) {
			cfg := TLSConfig{MinVersion: tt.version}
			if got := cfg.MinTLSVersion(); got != tt.expected {
				t.Errorf("MinTLSVersion() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestConnectionTimeout(t *testing.T) {
	tests := []struct {
		value    string
		expected time.Duration
	}{
		{"10m", 10 * time.Minute},
		{"1h", 1 * time.Hour},
		{"30s", 30 * time.Second},
		{"", 10 * time.Minute},        // default
		{"invalid", 10 * time.Minute}, // invalid falls back to default
	}

	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			cfg := TimeoutsConfig{Connection: tt.value}
			if got := cfg.ConnectionTimeout(); got != tt.expected {
				t.Errorf("ConnectionTimeout() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestIdleTimeout(t *testing.T) {
	tests := []struct {
		value    string
		expected time.Duration
	}{
		{"5m", 5 * time.Minute},
		{"30s", 30 * time.Second},
		{"2m", 2 * time.Minute},
		{"", 5 * time.Minute},        // default
		{"invalid", 5 * time.Minute}, // invalid falls back to default
	}

	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			cfg := TimeoutsConfig{Idle: tt.value}
			if got := cfg.IdleTimeout(); got != tt.expected {
				t.Errorf("IdleTimeout() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestEnvelopeMaxAgeDuration(t *testing.T) {
	tests := []struct {
		value    string
		expected time.Duration
	}{
		{"10m", 10 * time.Minute},
		{"600s", 600 * time.Second},
		{"", 10 * time.Minute},        // default
		{"invalid", 10 * time.Minute}, // invalid falls back to default
	}

	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			cfg := TimeoutsConfig{EnvelopeMaxAge: tt.value}
			if got := cfg.EnvelopeMaxAgeDuration(); got != tt.expected {
				t.Errorf("EnvelopeMaxAgeDuration() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestNeighborTimeoutDuration(t *testing.T) {
	tests := []struct {
		value    string
		expected time.Duration
	}{
		{"5s", 5 * time.Second},
		{"", 5 * time.Second},        // default
		{"invalid", 5 * time.Second}, // invalid falls back to default
	}

	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			cfg := NeighborConfig{Timeout: tt.value}
			if got := cfg.NeighborTimeoutDuration(); got != tt.expected {
				t.Errorf("NeighborTimeoutDuration() = %v, want %v", got, tt.expected)
			}
		})
	}
}

package config

import (
	"flag"
	"fmt"
	"os"

	toml "github.com/pelletier/go-toml/v2"
)

// Flags holds command-line flag values.
type Flags struct {
	ConfigPath     string
	Hostname       string
	LogLevel       string
	Listen         string
	TLSCert        string
	TLSKey         string
	MaxConnections int
	MailboxRoot    string
	NeighborID     string
	NeighborAddr   string
}

// ParseFlags parses command-line flags and returns a Flags struct.
func ParseFlags() *Flags {
	f := &Flags{}

	flag.StringVar(&f.ConfigPath, "config", "./station.toml", "Path to configuration file")
	flag.StringVar(&f.Hostname, "hostname", "", "Station hostname")
	flag.StringVar(&f.LogLevel, "log-level", "", "Log level (debug, info, warn, error)")
	flag.StringVar(&f.Listen, "listen", "", "Listen address (replaces all config listeners)")
	flag.StringVar(&f.TLSCert, "tls-cert", "", "TLS certificate file path")
	flag.StringVar(&f.TLSKey, "tls-key", "", "TLS key file path")
	flag.IntVar(&f.MaxConnections, "max-connections", 0, "Maximum concurrent connections")
	flag.StringVar(&f.MailboxRoot, "mailbox-root", "", "Mailbox store state directory")
	flag.StringVar(&f.NeighborID, "neighbor-id", "", "Neighbor station identifier")
	flag.StringVar(&f.NeighborAddr, "neighbor-address", "", "Neighbor station gRPC address")

	flag.Parse()
	return f
}

// Load parses a TOML configuration file and returns the Config.
// If the file does not exist, returns the default configuration.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("reading config file: %w", err)
	}

	var fileConfig Config
	if err := toml.Unmarshal(data, &fileConfig); err != nil {
		return cfg, fmt.Errorf("parsing config file: %w", err)
	}

	return mergeConfig(cfg, fileConfig), nil
}

// ApplyFlags merges command-line flag values into the config.
// Non-zero/non-empty flag values override config file values.
func ApplyFlags(cfg Config, f *Flags) Config {
	if f.Hostname != "" {
		cfg.Station.Hostname = f.Hostname
	}

	if f.LogLevel != "" {
		cfg.LogLevel = f.LogLevel
	}

	if f.Listen != "" {
		// -listen replaces ALL listeners with a single plaintext listener.
		cfg.Station.Listeners = []ListenerConfig{
			{Address: f.Listen},
		}
	}

	if f.TLSCert != "" {
		cfg.TLS.CertFile = f.TLSCert
	}

	if f.TLSKey != "" {
		cfg.TLS.KeyFile = f.TLSKey
	}

	if f.MaxConnections > 0 {
		cfg.Limits.MaxConnections = f.MaxConnections
	}

	if f.MailboxRoot != "" {
		cfg.Mailbox.StateRoot = f.MailboxRoot
	}

	if f.NeighborID != "" {
		cfg.Neighbor.ID = f.NeighborID
	}

	if f.NeighborAddr != "" {
		cfg.Neighbor.Address = f.NeighborAddr
	}

	return cfg
}

// LoadWithFlags loads configuration from the path specified in flags,
// then applies flag overrides.
func LoadWithFlags(f *Flags) (Config, error) {
	cfg, err := Load(f.ConfigPath)
	if err != nil {
		return cfg, err
	}
	return ApplyFlags(cfg, f), nil
}

// mergeConfig merges non-zero values from src into dst.
func mergeConfig(dst, src Config) Config {
	if src.Station.Hostname != "" {
		dst.Station.Hostname = src.Station.Hostname
	}
	if src.Station.ID != "" {
		dst.Station.ID = src.Station.ID
	}
	if len(src.Station.Listeners) > 0 {
		dst.Station.Listeners = src.Station.Listeners
	}

	if src.LogLevel != "" {
		dst.LogLevel = src.LogLevel
	}

	if src.TLS.CertFile != "" {
		dst.TLS.CertFile = src.TLS.CertFile
	}
	if src.TLS.KeyFile != "" {
		dst.TLS.KeyFile = src.TLS.KeyFile
	}
	if src.TLS.MinVersion != "" {
		dst.TLS.MinVersion = src.TLS.MinVersion
	}

	if src.Timeouts.Connection != "" {
		dst.Timeouts.Connection = src.Timeouts.Connection
	}
	if src.Timeouts.Handshake != "" {
		dst.Timeouts.Handshake = src.Timeouts.Handshake
	}
	if src.Timeouts.Idle != "" {
		dst.Timeouts.Idle = src.Timeouts.Idle
	}
	if src.Timeouts.EnvelopeMaxAge != "" {
		dst.Timeouts.EnvelopeMaxAge = src.Timeouts.EnvelopeMaxAge
	}

	if src.Limits.MaxConnections > 0 {
		dst.Limits.MaxConnections = src.Limits.MaxConnections
	}

	// Metrics.Enabled is a plain bool, so an explicit "true" in the file
	// is the only thing that can flip it on; Default() is already false.
	if src.Metrics.Enabled {
		dst.Metrics.Enabled = src.Metrics.Enabled
	}
	if src.Metrics.Address != "" {
		dst.Metrics.Address = src.Metrics.Address
	}
	if src.Metrics.Path != "" {
		dst.Metrics.Path = src.Metrics.Path
	}

	if src.Mailbox.StateRoot != "" {
		dst.Mailbox.StateRoot = src.Mailbox.StateRoot
	}

	if src.Neighbor.ID != "" {
		dst.Neighbor.ID = src.Neighbor.ID
	}
	if src.Neighbor.Address != "" {
		dst.Neighbor.Address = src.Neighbor.Address
	}
	if src.Neighbor.Timeout != "" {
		dst.Neighbor.Timeout = src.Neighbor.Timeout
	}

	return dst
}

package config

import (
	"fmt"
	"net/netip"
	"strings"

	"github.com/user/connwatch/internal/connmon"
)

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Version < 1 {
		return fmt.Errorf("invalid config version")
	}

	if err := c.Policy.Validate(); err != nil {
		return fmt.Errorf("policy config: %w", err)
	}

	if err := c.Monitor.Validate(); err != nil {
		return fmt.Errorf("monitor config: %w", err)
	}

	if err := c.Storage.Validate(); err != nil {
		return fmt.Errorf("storage config: %w", err)
	}

	if c.API.Enabled && c.API.ListenAddr == "" {
		return fmt.Errorf("api config: listen_addr is required")
	}

	if c.Metrics.Enabled {
		if !c.API.Enabled {
			return fmt.Errorf("metrics config: metrics are served by the api, enable api")
		}
		if !strings.HasPrefix(c.Metrics.Path, "/") {
			return fmt.Errorf("metrics config: path must start with /")
		}
	}

	if c.NATS.Enabled {
		if c.NATS.URL == "" {
			return fmt.Errorf("nats config: url is required")
		}
		if c.NATS.Subject == "" {
			return fmt.Errorf("nats config: subject is required")
		}
	}

	switch strings.ToLower(c.Logging.Level) {
	case "", "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("logging config: unknown level: %s", c.Logging.Level)
	}

	return nil
}

// Validate validates the classification policy.
func (p *Policy) Validate() error {
	for port := range p.WatchedPorts {
		if port < 1 || port > 65535 {
			return fmt.Errorf("invalid watched port: %d", port)
		}
	}
	for _, port := range p.TrustedListenPorts {
		if port < 1 || port > 65535 {
			return fmt.Errorf("invalid trusted listen port: %d", port)
		}
	}
	for _, r := range p.PrivateRanges {
		if _, err := netip.ParsePrefix(r); err != nil {
			return fmt.Errorf("invalid private range: %s", r)
		}
	}
	return nil
}

// Validate validates monitor configuration.
func (m *Monitor) Validate() error {
	if m.SamplingIntervalSeconds < 1 {
		return fmt.Errorf("sampling_interval_seconds must be at least 1")
	}
	if len(m.States) == 0 {
		return fmt.Errorf("states cannot be empty")
	}
	for _, s := range m.States {
		if strings.TrimSpace(s) == "" {
			return fmt.Errorf("states cannot contain an empty name")
		}
		if _, ok := connmon.ParseState(s); !ok {
			return fmt.Errorf("unknown state: %s", s)
		}
	}
	switch m.Source {
	case SourcePsutil, SourceProcfs:
	default:
		return fmt.Errorf("unknown source: %s", m.Source)
	}
	if m.ProcessCacheSize < 1 {
		return fmt.Errorf("process_cache_size must be positive")
	}
	if m.ProcessCacheTTLSeconds < 0 {
		return fmt.Errorf("process_cache_ttl_seconds cannot be negative")
	}
	return nil
}

// Validate validates storage configuration.
func (s *Storage) Validate() error {
	switch s.Backend {
	case BackendSQLite:
		if s.SQLite.Path == "" {
			return fmt.Errorf("sqlite.path is required")
		}
	case BackendClickHouse:
		if s.ClickHouse.Host == "" {
			return fmt.Errorf("clickhouse.host is required")
		}
		if s.ClickHouse.Port == 0 {
			return fmt.Errorf("clickhouse.port is required")
		}
	default:
		return fmt.Errorf("unknown backend: %s", s.Backend)
	}
	return nil
}

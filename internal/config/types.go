// Package config handles connwatch configuration loading, saving, and validation.
package config

// Storage backend names.
const (
	BackendSQLite     = "sqlite"
	BackendClickHouse = "clickhouse"
)

// Connection source names.
const (
	SourcePsutil = "psutil"
	SourceProcfs = "procfs"
)

// Config represents the main configuration structure.
type Config struct {
	Version           int     `yaml:"version"`
	RequirePrivileges bool    `yaml:"require_privileges"`
	Policy            Policy  `yaml:"policy"`
	Monitor           Monitor `yaml:"monitor"`
	Storage           Storage `yaml:"storage"`
	API               API     `yaml:"api"`
	Metrics           Metrics `yaml:"metrics"`
	NATS              NATS    `yaml:"nats"`
	Logging           Logging `yaml:"logging"`
}

// Policy is the classification policy. It is read once at startup.
type Policy struct {
	WatchedPorts       map[int]string `yaml:"watched_ports"`        // port -> label
	TrustedListenPorts []int          `yaml:"trusted_listen_ports"` // exempt from the listener rule
	PrivateRanges      []string       `yaml:"private_ranges"`       // ordered CIDR list
}

// Monitor configures the sampling loop.
type Monitor struct {
	SamplingIntervalSeconds int      `yaml:"sampling_interval_seconds"`
	States                  []string `yaml:"states"`
	Source                  string   `yaml:"source"`
	ProcessCacheSize        int      `yaml:"process_cache_size"`
	ProcessCacheTTLSeconds  int      `yaml:"process_cache_ttl_seconds"`
}

// Storage selects and configures the persistent log.
type Storage struct {
	Backend    string     `yaml:"backend"`
	SQLite     SQLite     `yaml:"sqlite"`
	ClickHouse ClickHouse `yaml:"clickhouse,omitempty"`
}

// SQLite backend configuration.
type SQLite struct {
	Path string `yaml:"path"`
}

// ClickHouse backend configuration.
type ClickHouse struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Database string `yaml:"database"`
	Username string `yaml:"username"`
	Password string `yaml:"password,omitempty"`
}

// API configures the read-only HTTP surface.
type API struct {
	Enabled    bool   `yaml:"enabled"`
	ListenAddr string `yaml:"listen_addr"`
}

// Metrics configures the Prometheus endpoint served by the API.
type Metrics struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// NATS configures the cycle report stream.
type NATS struct {
	Enabled bool   `yaml:"enabled"`
	URL     string `yaml:"url"`
	Subject string `yaml:"subject"`
}

// Logging configuration.
type Logging struct {
	File  string `yaml:"file,omitempty"` // empty = next to the executable
	Level string `yaml:"level"`

	// CaptureStderr sends the process stderr to the log file. Log lines
	// are then not mirrored to the terminal.
	CaptureStderr bool `yaml:"capture_stderr"`
}

// DefaultConfig returns a default configuration.
func DefaultConfig() *Config {
	return &Config{
		Version:           1,
		RequirePrivileges: true,
		Policy: Policy{
			WatchedPorts: map[int]string{
				21:   "FTP",
				22:   "SSH",
				23:   "Telnet",
				445:  "SMB",
				3389: "Remote Desktop",
				5900: "VNC",
				8080: "HTTP Proxy",
			},
			TrustedListenPorts: []int{80, 443, 22},
			PrivateRanges: []string{
				"10.0.0.0/8",
				"172.16.0.0/12",
				"192.168.0.0/16",
				"127.0.0.0/8",
			},
		},
		Monitor: Monitor{
			SamplingIntervalSeconds: 30,
			States:                  []string{"ESTABLISHED", "LISTEN", "TIME_WAIT"},
			Source:                  SourcePsutil,
			ProcessCacheSize:        4096,
			ProcessCacheTTLSeconds:  300,
		},
		Storage: Storage{
			Backend: BackendSQLite,
			SQLite:  SQLite{Path: "network_connections.db"},
			ClickHouse: ClickHouse{
				Host:     "127.0.0.1",
				Port:     9000,
				Database: "default",
				Username: "default",
			},
		},
		API: API{
			Enabled:    false,
			ListenAddr: "127.0.0.1:9477",
		},
		Metrics: Metrics{
			Enabled: false,
			Path:    "/metrics",
		},
		NATS: NATS{
			Enabled: false,
			URL:     "nats://127.0.0.1:4222",
			Subject: "connwatch.cycles",
		},
		Logging: Logging{
			Level: "info",
		},
	}
}

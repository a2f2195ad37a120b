package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"
)

// Manager handles configuration operations.
type Manager struct {
	mu         sync.RWMutex
	config     *Config
	configPath string
}

// NewManager creates a new configuration manager.
func NewManager(configPath string) *Manager {
	return &Manager{
		configPath: configPath,
	}
}

// Load reads configuration from file. A missing file is created with
// DefaultConfig. Keys absent from the file keep their default values.
func (m *Manager) Load() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	data, err := os.ReadFile(m.configPath)
	if err != nil {
		if os.IsNotExist(err) {
			m.config = DefaultConfig()
			return m.writeDefault()
		}
		return fmt.Errorf("failed to read config: %w", err)
	}

	cfg := DefaultConfig()
	// yaml.v3 merges into an existing map, so a configured watched_ports
	// would otherwise keep every default entry.
	defaultPorts := cfg.Policy.WatchedPorts
	cfg.Policy.WatchedPorts = nil
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}
	if cfg.Policy.WatchedPorts == nil {
		cfg.Policy.WatchedPorts = defaultPorts
	}

	if err := cfg.Validate(); err != nil {
		return err
	}

	m.config = cfg
	return nil
}

// writeDefault stores m.config at the config path. The caller holds m.mu.
func (m *Manager) writeDefault() error {
	if m.config == nil {
		return fmt.Errorf("no configuration to save")
	}

	dir := filepath.Dir(m.configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(m.config)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(m.configPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// Get returns the current configuration.
func (m *Manager) Get() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.config
}

// Path returns the file the manager reads.
func (m *Manager) Path() string {
	return m.configPath
}

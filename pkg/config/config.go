package config

import (
	"fmt"
	"os"
	"time"
)

// Config represents the main configuration for a broker node
type Config struct {
	Node        NodeConfig        `yaml:"node"`
	Security    SecurityConfig    `yaml:"security"`
	Link        LinkConfig        `yaml:"link"`
	Persistence PersistenceConfig `yaml:"persistence"`
	Workers     WorkersConfig     `yaml:"workers"`
	Logging     LoggingConfig     `yaml:"logging"`
	Monitoring  MonitoringConfig  `yaml:"monitoring"`
}

// IsRoot reports whether the node has no parent configured.
func (c *Config) IsRoot() bool {
	return c.Node.ParentHost == ""
}

// ListenAddr returns the host:port the node's listener binds.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Node.ListenHost, c.Node.Port)
}

// DefaultConfig returns a default configuration
func DefaultConfig() *Config {
	return &Config{
		Node: NodeConfig{
			ListenHost:     "0.0.0.0",
			Port:           8080,
			MaxConnections: 256,
		},
		Link: LinkConfig{
			Codec:            "json",
			HandshakeTimeout: 10 * time.Second,
			WriteTimeout:     10 * time.Second,
			PingInterval:     30 * time.Second,
			PongWait:         60 * time.Second,
			MaxFrameBytes:    4 << 20, // 4MB
			OutboundQueue:    256,
		},
		Persistence: PersistenceConfig{
			Backend: "memory",
		},
		Workers: WorkersConfig{
			Size: 4,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
		Monitoring: MonitoringConfig{
			Enabled:  false,
			Interval: time.Minute,
		},
	}
}

// Load reads a YAML file over the defaults. Unknown keys are rejected.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	defer f.Close()

	cfg := DefaultConfig()
	if err := DecodeStrict(f, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

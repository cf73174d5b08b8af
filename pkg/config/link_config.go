package config

import "time"

// LinkConfig tunes parent and child links
type LinkConfig struct {
	Codec            string        `yaml:"codec"`             // json or cbor, used when dialing the parent
	HandshakeTimeout time.Duration `yaml:"handshake_timeout"` // Dial and upgrade deadline
	WriteTimeout     time.Duration `yaml:"write_timeout"`     // Per-frame write deadline
	PingInterval     time.Duration `yaml:"ping_interval"`     // Keepalive period
	PongWait         time.Duration `yaml:"pong_wait"`         // Read deadline extended by each pong
	MaxFrameBytes    int64         `yaml:"max_frame_bytes"`   // Largest accepted frame
	OutboundQueue    int           `yaml:"outbound_queue"`    // Frames buffered per link before sends fail
}

// PersistenceConfig selects where persisted payloads survive restarts
type PersistenceConfig struct {
	Backend string   `yaml:"backend"` // memory, sqlite, rqlite or olric
	Path    string   `yaml:"path"`    // sqlite database file
	URL     string   `yaml:"url"`     // rqlite HTTP endpoint
	Servers []string `yaml:"servers"` // olric cluster members, host:port
}

// WorkersConfig sizes the off-loop worker pool
type WorkersConfig struct {
	Size int `yaml:"size"`
}

// MonitoringConfig controls the periodic status log
type MonitoringConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Interval time.Duration `yaml:"interval"`
}

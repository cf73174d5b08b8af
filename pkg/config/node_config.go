package config

// NodeConfig contains node-specific configuration
type NodeConfig struct {
	ID             string `yaml:"id"`              // selfId, unique among the parent's children
	ListenHost     string `yaml:"listen_host"`     // Interface the listener binds
	Port           int    `yaml:"port"`            // Listen port; 0 picks a free port
	ParentHost     string `yaml:"parent_host"`     // ws:// URL of the parent; empty for the root
	BearerToken    string `yaml:"bearer_token"`    // Presented to the parent on dial
	MaxConnections int    `yaml:"max_connections"` // Cap on concurrently accepted connections
}

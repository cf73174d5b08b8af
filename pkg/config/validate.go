package config

import (
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
	"time"
)

// ValidationError represents a single validation error with context.
type ValidationError struct {
	Path    string // e.g., "node.parent_host"
	Message string // e.g., "invalid URL"
	Hint    string // e.g., "expected ws://host:port"
}

func (e ValidationError) Error() string {
	if e.Hint != "" {
		return fmt.Sprintf("%s: %s; %s", e.Path, e.Message, e.Hint)
	}
	return fmt.Sprintf("%s: %s", e.Path, e.Message)
}

// Validate performs comprehensive validation of the entire config.
// It aggregates all errors and returns them, allowing the caller to print all issues at once.
func (c *Config) Validate() []error {
	var errs []error

	errs = append(errs, c.validateNode()...)
	errs = append(errs, c.validateLink()...)
	errs = append(errs, c.validateSecurity()...)
	errs = append(errs, c.validatePersistence()...)
	errs = append(errs, c.validateLogging()...)

	if c.Workers.Size < 1 {
		errs = append(errs, ValidationError{
			Path:    "workers.size",
			Message: fmt.Sprintf("must be >= 1; got %d", c.Workers.Size),
		})
	}
	if c.Monitoring.Enabled && c.Monitoring.Interval <= 0 {
		errs = append(errs, ValidationError{
			Path:    "monitoring.interval",
			Message: "must be > 0 when monitoring is enabled",
		})
	}

	return errs
}

func (c *Config) validateNode() []error {
	var errs []error
	nc := c.Node

	if msg, hint := checkNodeID(nc.ID); msg != "" {
		errs = append(errs, ValidationError{Path: "node.id", Message: msg, Hint: hint})
	}

	if nc.Port < 0 || nc.Port > 65535 {
		errs = append(errs, ValidationError{
			Path:    "node.port",
			Message: fmt.Sprintf("must be between 0 and 65535; got %d", nc.Port),
		})
	}

	if nc.ParentHost != "" {
		if err := validateParentHost(nc.ParentHost); err != nil {
			errs = append(errs, ValidationError{
				Path:    "node.parent_host",
				Message: err.Error(),
				Hint:    "expected ws://host:port or wss://host:port",
			})
		}
	}

	if nc.MaxConnections <= 0 {
		errs = append(errs, ValidationError{
			Path:    "node.max_connections",
			Message: fmt.Sprintf("must be > 0; got %d", nc.MaxConnections),
		})
	}

	return errs
}

func (c *Config) validateLink() []error {
	var errs []error
	lc := c.Link

	if lc.Codec != "json" && lc.Codec != "cbor" {
		errs = append(errs, ValidationError{
			Path:    "link.codec",
			Message: fmt.Sprintf("invalid value %q", lc.Codec),
			Hint:    "allowed values: json, cbor",
		})
	}

	for _, d := range []struct {
		path  string
		value time.Duration
	}{
		{"link.handshake_timeout", lc.HandshakeTimeout},
		{"link.write_timeout", lc.WriteTimeout},
		{"link.ping_interval", lc.PingInterval},
		{"link.pong_wait", lc.PongWait},
	} {
		if d.value <= 0 {
			errs = append(errs, ValidationError{
				Path:    d.path,
				Message: "must be > 0",
			})
		}
	}
	if lc.PongWait > 0 && lc.PingInterval >= lc.PongWait {
		errs = append(errs, ValidationError{
			Path:    "link.ping_interval",
			Message: "must be shorter than link.pong_wait",
		})
	}

	if lc.MaxFrameBytes <= 0 {
		errs = append(errs, ValidationError{
			Path:    "link.max_frame_bytes",
			Message: fmt.Sprintf("must be > 0; got %d", lc.MaxFrameBytes),
		})
	}
	if lc.OutboundQueue <= 0 {
		errs = append(errs, ValidationError{
			Path:    "link.outbound_queue",
			Message: fmt.Sprintf("must be > 0; got %d", lc.OutboundQueue),
		})
	}

	return errs
}

func (c *Config) validateSecurity() []error {
	var errs []error
	sc := c.Security

	if (sc.TLSCertFile == "") != (sc.TLSKeyFile == "") {
		errs = append(errs, ValidationError{
			Path:    "security.tls_cert_file",
			Message: "tls_cert_file and tls_key_file must be set together",
		})
	}
	if sc.ACME.Enabled() {
		if sc.TLSCertFile != "" {
			errs = append(errs, ValidationError{
				Path:    "security.acme",
				Message: "cannot be combined with tls_cert_file",
			})
		}
		if sc.ACME.CacheDir == "" {
			errs = append(errs, ValidationError{
				Path:    "security.acme.cache_dir",
				Message: "must not be empty when acme domains are set",
				Hint:    "certificates are cached there across restarts",
			})
		}
	}
	for i, tok := range sc.AcceptedTokens {
		if tok == "" {
			errs = append(errs, ValidationError{
				Path:    fmt.Sprintf("security.accepted_tokens[%d]", i),
				Message: "must not be empty",
			})
		}
	}

	return errs
}

func (c *Config) validatePersistence() []error {
	var errs []error
	pc := c.Persistence

	switch pc.Backend {
	case "memory":
	case "sqlite":
		if pc.Path == "" {
			errs = append(errs, ValidationError{
				Path:    "persistence.path",
				Message: "must not be empty for the sqlite backend",
			})
		} else if !filepath.IsAbs(pc.Path) && strings.HasPrefix(pc.Path, "~") {
			errs = append(errs, ValidationError{
				Path:    "persistence.path",
				Message: "home directory expansion is not supported",
				Hint:    "use an absolute or working-directory relative path",
			})
		}
	case "rqlite":
		if u, err := url.Parse(pc.URL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			errs = append(errs, ValidationError{
				Path:    "persistence.url",
				Message: fmt.Sprintf("invalid rqlite URL %q", pc.URL),
				Hint:    "expected http://host:port",
			})
		}
	case "olric":
		if len(pc.Servers) == 0 {
			errs = append(errs, ValidationError{
				Path:    "persistence.servers",
				Message: "must list at least one olric member",
				Hint:    "e.g. [\"10.0.0.1:3320\"]",
			})
		}
	default:
		errs = append(errs, ValidationError{
			Path:    "persistence.backend",
			Message: fmt.Sprintf("invalid value %q", pc.Backend),
			Hint:    "allowed values: memory, sqlite, rqlite, olric",
		})
	}

	return errs
}

func (c *Config) validateLogging() []error {
	var errs []error
	lc := c.Logging

	switch lc.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, ValidationError{
			Path:    "logging.level",
			Message: fmt.Sprintf("invalid value %q", lc.Level),
			Hint:    "allowed values: debug, info, warn, error",
		})
	}

	switch lc.Format {
	case "json", "console":
	default:
		errs = append(errs, ValidationError{
			Path:    "logging.format",
			Message: fmt.Sprintf("invalid value %q", lc.Format),
			Hint:    "allowed values: json, console",
		})
	}

	return errs
}

func validateParentHost(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid URL: %v", err)
	}
	switch u.Scheme {
	case "ws", "wss":
	default:
		return fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("missing host")
	}
	return nil
}

// CheckNodeID reports whether id can name a node. A selfId becomes a path
// segment on the parent, so it cannot collide with the hop tokens or contain
// a separator.
func CheckNodeID(id string) error {
	if msg, hint := checkNodeID(id); msg != "" {
		return ValidationError{Path: "node.id", Message: msg, Hint: hint}
	}
	return nil
}

func checkNodeID(id string) (msg, hint string) {
	switch {
	case id == "":
		return "must not be empty", "the id must be unique among the parent's children"
	case id == "." || id == "..":
		return fmt.Sprintf("%q is reserved", id), ""
	case strings.Contains(id, "/"):
		return "must not contain '/'", ""
	}
	return "", ""
}

package config

// SecurityConfig contains security-related configuration
type SecurityConfig struct {
	// AcceptedTokens lists the bearer tokens children may present.
	// Empty accepts any token.
	AcceptedTokens []string `yaml:"accepted_tokens"`

	// TLSCertFile and TLSKeyFile make the listener serve wss://.
	TLSCertFile string `yaml:"tls_cert_file"`
	TLSKeyFile  string `yaml:"tls_key_file"`

	// ACME obtains the listener certificate from Let's Encrypt instead.
	ACME ACMEConfig `yaml:"acme"`

	// CACertFile is trusted when dialing a wss:// parent.
	CACertFile string `yaml:"ca_cert_file"`
	// TrustedDomains skip certificate verification of a wss:// parent
	// when no CA file is set.
	TrustedDomains []string `yaml:"trusted_domains"`
}

// ACMEConfig selects the domains a node requests certificates for.
type ACMEConfig struct {
	Domains  []string `yaml:"domains"`
	CacheDir string   `yaml:"cache_dir"`
	Email    string   `yaml:"email"`
	Staging  bool     `yaml:"staging"`
}

// Enabled reports whether any domain is configured.
func (a ACMEConfig) Enabled() bool { return len(a.Domains) > 0 }

// TLSEnabled reports whether the listener serves TLS.
func (s SecurityConfig) TLSEnabled() bool {
	return (s.TLSCertFile != "" && s.TLSKeyFile != "") || s.ACME.Enabled()
}

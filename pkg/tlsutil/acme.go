package tlsutil

import (
	"crypto/tls"

	"golang.org/x/crypto/acme"
	"golang.org/x/crypto/acme/autocert"
)

// LetsEncryptStaging is the directory used when ACMEOptions.Staging is set.
const LetsEncryptStaging = "https://acme-staging-v02.api.letsencrypt.org/directory"

// ACMEOptions configure listener certificates obtained from Let's Encrypt.
type ACMEOptions struct {
	Domains  []string
	CacheDir string
	Email    string
	Staging  bool
}

// ACMEServerConfig returns a listener TLS config that obtains and renews
// certificates for opts.Domains. Challenges are answered over TLS-ALPN on
// the listener itself.
func ACMEServerConfig(opts ACMEOptions) (*tls.Config, *autocert.Manager) {
	directoryURL := autocert.DefaultACMEDirectory
	if opts.Staging {
		directoryURL = LetsEncryptStaging
	}

	m := &autocert.Manager{
		Prompt:     autocert.AcceptTOS,
		HostPolicy: autocert.HostWhitelist(opts.Domains...),
		Cache:      autocert.DirCache(opts.CacheDir),
		Email:      opts.Email,
		Client:     &acme.Client{DirectoryURL: directoryURL},
	}

	cfg := m.TLSConfig()
	cfg.MinVersion = tls.VersionTLS12
	return cfg, m
}

// Package tlsutil builds the TLS configuration for wss:// links.
package tlsutil

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"
)

// ClientOptions control how a node verifies its parent's certificate.
type ClientOptions struct {
	// CACertFile, when set, is the only root trusted.
	CACertFile string
	// TrustedDomains skip verification when no CA file is given.
	// "*.example.com" matches example.com and any subdomain.
	TrustedDomains []string
}

// ShouldSkipTLSVerify reports whether host matches one of trusted.
func ShouldSkipTLSVerify(trusted []string, host string) bool {
	for _, t := range trusted {
		if strings.HasPrefix(t, "*.") {
			suffix := strings.TrimPrefix(t, "*")
			if strings.HasSuffix(host, suffix) || host == strings.TrimPrefix(suffix, ".") {
				return true
			}
		} else if host == t {
			return true
		}
	}
	return false
}

// ClientConfig returns the TLS config for dialing host.
func ClientConfig(opts ClientOptions, host string) (*tls.Config, error) {
	cfg := &tls.Config{
		MinVersion: tls.VersionTLS12,
		ServerName: host,
	}

	if opts.CACertFile != "" {
		data, err := os.ReadFile(opts.CACertFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read CA certificate: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(data) {
			return nil, fmt.Errorf("no certificates found in %s", opts.CACertFile)
		}
		cfg.RootCAs = pool
		return cfg, nil
	}

	if ShouldSkipTLSVerify(opts.TrustedDomains, host) {
		cfg.InsecureSkipVerify = true
	}
	return cfg, nil
}

// ServerConfig loads the key pair a node serves wss:// with.
func ServerConfig(certFile, keyFile string) (*tls.Config, error) {
	cert, err := tls.LoadX509KeyPair(certFile, keyFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load TLS key pair: %w", err)
	}
	return &tls.Config{
		MinVersion:   tls.VersionTLS12,
		Certificates: []tls.Certificate{cert},
	}, nil
}

// NewHTTPClient creates an HTTP client that dials with cfg.
func NewHTTPClient(timeout time.Duration, cfg *tls.Config) *http.Client {
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			Proxy:           http.ProxyFromEnvironment,
			TLSClientConfig: cfg,
		},
	}
}

package tlsutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DeBrosOfficial/cogmesh/pkg/certutil"
)

func TestShouldSkipTLSVerify(t *testing.T) {
	trusted := []string{"*.mesh.local", "10.0.0.1"}

	assert.True(t, ShouldSkipTLSVerify(trusted, "a.mesh.local"))
	assert.True(t, ShouldSkipTLSVerify(trusted, "mesh.local"))
	assert.True(t, ShouldSkipTLSVerify(trusted, "10.0.0.1"))
	assert.False(t, ShouldSkipTLSVerify(trusted, "mesh.localhost"))
	assert.False(t, ShouldSkipTLSVerify(nil, "a.mesh.local"))
}

func TestClientConfig(t *testing.T) {
	cfg, err := ClientConfig(ClientOptions{TrustedDomains: []string{"*.mesh.local"}}, "a.mesh.local")
	require.NoError(t, err)
	assert.True(t, cfg.InsecureSkipVerify)
	assert.Equal(t, "a.mesh.local", cfg.ServerName)

	cfg, err = ClientConfig(ClientOptions{}, "example.com")
	require.NoError(t, err)
	assert.False(t, cfg.InsecureSkipVerify)
	assert.Nil(t, cfg.RootCAs)
}

func TestClientConfigWithCA(t *testing.T) {
	m := certutil.NewManager(t.TempDir())
	_, _, err := m.EnsureCA()
	require.NoError(t, err)

	cfg, err := ClientConfig(ClientOptions{
		CACertFile:     m.CAFile(),
		TrustedDomains: []string{"*.mesh.local"},
	}, "a.mesh.local")
	require.NoError(t, err)
	assert.NotNil(t, cfg.RootCAs)
	assert.False(t, cfg.InsecureSkipVerify)

	bad := filepath.Join(t.TempDir(), "bad.crt")
	require.NoError(t, os.WriteFile(bad, []byte("not a cert"), 0644))
	_, err = ClientConfig(ClientOptions{CACertFile: bad}, "a")
	assert.Error(t, err)
}

func TestServerConfig(t *testing.T) {
	m := certutil.NewManager(t.TempDir())
	certFile, keyFile, err := m.EnsureNodeCertificate("A", []string{"127.0.0.1"})
	require.NoError(t, err)

	cfg, err := ServerConfig(certFile, keyFile)
	require.NoError(t, err)
	assert.Len(t, cfg.Certificates, 1)

	_, err = ServerConfig(certFile, "missing.key")
	assert.Error(t, err)
}

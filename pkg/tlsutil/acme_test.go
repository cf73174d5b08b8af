package tlsutil

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"golang.org/x/crypto/acme"
)

func TestACMEServerConfig(t *testing.T) {
	cfg, m := ACMEServerConfig(ACMEOptions{
		Domains:  []string{"mesh.example.com"},
		CacheDir: t.TempDir(),
		Staging:  true,
	})

	assert.Contains(t, cfg.NextProtos, acme.ALPNProto)
	assert.NotNil(t, cfg.GetCertificate)
	assert.Equal(t, LetsEncryptStaging, m.Client.DirectoryURL)

	assert.NoError(t, m.HostPolicy(context.Background(), "mesh.example.com"))
	assert.Error(t, m.HostPolicy(context.Background(), "other.example.com"))
}

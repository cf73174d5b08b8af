package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTopicFlags(t *testing.T) {
	var f topicFlags
	require.NoError(t, f.Set("blackboard:object"))
	require.NoError(t, f.Set("pose:vector"))
	assert.Equal(t, "blackboard:object,pose:vector", f.String())

	assert.Error(t, f.Set("blackboard"))
	assert.Error(t, f.Set(":object"))
}

func TestLoadConfigAppliesFlags(t *testing.T) {
	cfg, err := loadConfig(&nodeFlags{
		id:     "B",
		port:   0,
		parent: "ws://127.0.0.1:9000",
		codec:  "cbor",
	})
	require.NoError(t, err)
	assert.Equal(t, "B", cfg.Node.ID)
	assert.Equal(t, 0, cfg.Node.Port)
	assert.Equal(t, "ws://127.0.0.1:9000", cfg.Node.ParentHost)
	assert.Equal(t, "cbor", cfg.Link.Codec)

	cfg, err = loadConfig(&nodeFlags{port: -1})
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Node.Port)
}

func TestLoadConfigIssuesCertificate(t *testing.T) {
	dir := t.TempDir()
	cfg, err := loadConfig(&nodeFlags{id: "A", port: -1, tlsDir: dir})
	require.NoError(t, err)
	assert.True(t, cfg.Security.TLSEnabled())
	assert.FileExists(t, cfg.Security.TLSCertFile)
	assert.FileExists(t, cfg.Security.CACertFile)

	_, err = loadConfig(&nodeFlags{port: -1, tlsDir: dir})
	assert.Error(t, err)
}

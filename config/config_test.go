// Copyright Fednode Contributors (https://github.com/blobfed/fednode)
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaultsWithNoConfigFileOrEnv(t *testing.T) {
	chdirToEmptyDir(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, DefaultListenAddress, cfg.ListenAddress)
	assert.Equal(t, DefaultRegistryKind, cfg.Registry.Backend)
	assert.Equal(t, DefaultGossipFanout, cfg.Gossip.Fanout)
	assert.Equal(t, DefaultGossipTimeout, cfg.Gossip.RequestTimeout)
	assert.False(t, cfg.AllowAll)
	assert.False(t, cfg.AllowPost)
	assert.Empty(t, cfg.Registry.SeedNotifyPeers)
}

func TestLoadOverridesFromEnv(t *testing.T) {
	chdirToEmptyDir(t)

	t.Setenv("FEDNODE_LISTEN_ADDRESS", "127.0.0.1:9999")
	t.Setenv("FEDNODE_ALLOW_ALL", "true")
	t.Setenv("FEDNODE_REGISTRY_BACKEND", "sql")
	t.Setenv("FEDNODE_GOSSIP_REQUEST_TIMEOUT", "7s")
	t.Setenv("FEDNODE_REGISTRY_SEED_NOTIFY_PEERS", "https://a.example.com,https://b.example.com")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:9999", cfg.ListenAddress)
	assert.True(t, cfg.AllowAll)
	assert.Equal(t, "sql", cfg.Registry.Backend)
	assert.Equal(t, 7*time.Second, cfg.Gossip.RequestTimeout)
	assert.Equal(t, []string{"https://a.example.com", "https://b.example.com"}, cfg.Registry.SeedNotifyPeers)
}

func chdirToEmptyDir(t *testing.T) {
	t.Helper()

	dir := t.TempDir()
	orig, err := os.Getwd()
	require.NoError(t, err)

	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() {
		_ = os.Chdir(orig)
	})
}

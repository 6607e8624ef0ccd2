// Copyright (c) 2025, the listenarr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewAppliesDefaults(t *testing.T) {
	c, err := New("", "1.2.3")
	require.NoError(t, err)

	assert.Equal(t, "1.2.3", c.Config.Version)
	assert.Equal(t, "127.0.0.1", c.Config.Host)
	assert.Equal(t, 8686, c.Config.Port)
	assert.Equal(t, "INFO", c.Config.LogLevel)
	assert.Equal(t, "127.0.0.1:6379", c.Config.RedisAddr)
	assert.Equal(t, "{author}/{title} {asin}", c.Config.PathTemplate)
	assert.Equal(t, "epub", c.Config.EbookSidecar.PreferredFormat)
	assert.Equal(t, 25, c.Config.Audible.RefreshCount)
}

func TestNewEnvOverride(t *testing.T) {
	t.Setenv("LISTENARR__PORT", "9000")
	t.Setenv("LISTENARR__PROWLARR__APIKEY", "secret")

	c, err := New("", "dev")
	require.NoError(t, err)

	assert.Equal(t, 9000, c.Config.Port)
	assert.Equal(t, "secret", c.Config.Prowlarr.APIKey)
}

func TestNewCreatesDefaultConfigFile(t *testing.T) {
	dir := t.TempDir()

	c, err := New(dir, "dev")
	require.NoError(t, err)

	_, err = os.Stat(filepath.Join(dir, "config.toml"))
	require.NoError(t, err)

	// dataDir falls back to the config directory.
	assert.Equal(t, dir, c.Config.DataDir)
	assert.Equal(t, filepath.Join(dir, "listenarr.db"), c.Config.DatabasePath())
	assert.Equal(t, filepath.Join(dir, "thumbnails"), c.Config.Audible.ThumbnailDir)
}

// Copyright (c) 2025, the listenarr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package config loads the application configuration from file and
// environment using viper.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"

	"github.com/listenarr/listenarr/internal/domain"
)

// envPrefix carries a trailing underscore so viper produces LISTENARR__KEY
// style variables; nested keys repeat the double underscore
// (LISTENARR__PROWLARR__APIKEY).
const envPrefix = "LISTENARR_"

// AppConfig wraps the loaded configuration and the viper instance that
// produced it.
type AppConfig struct {
	Config *domain.Config
	viper  *viper.Viper
}

// New loads configuration from the given directory (config.toml), creating a
// default file on first run. Environment variables prefixed with LISTENARR__
// override file values.
func New(configDir, version string) (*AppConfig, error) {
	c := &AppConfig{
		Config: &domain.Config{Version: version},
		viper:  viper.New(),
	}

	c.defaults()

	c.viper.SetEnvPrefix(envPrefix)
	c.viper.SetEnvKeyReplacer(strings.NewReplacer(".", "__"))
	c.viper.AutomaticEnv()

	if configDir != "" {
		if err := c.load(configDir); err != nil {
			return nil, err
		}
	}

	if err := c.viper.Unmarshal(c.Config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	c.applyDerivedDefaults()

	return c, nil
}

// defaults registers every key so environment overrides bind even when the
// config file omits them.
func (c *AppConfig) defaults() {
	c.viper.SetDefault("host", "127.0.0.1")
	c.viper.SetDefault("port", 8686)
	c.viper.SetDefault("logLevel", "INFO")
	c.viper.SetDefault("logPath", "")
	c.viper.SetDefault("logMaxSize", 50)
	c.viper.SetDefault("logMaxBackups", 3)
	c.viper.SetDefault("dataDir", "")
	c.viper.SetDefault("metricsEnabled", true)
	c.viper.SetDefault("redisAddr", "127.0.0.1:6379")
	c.viper.SetDefault("redisPassword", "")
	c.viper.SetDefault("redisDb", 0)
	c.viper.SetDefault("downloadDir", "")
	c.viper.SetDefault("mediaDir", "")
	c.viper.SetDefault("pathTemplate", "{author}/{title} {asin}")

	c.viper.SetDefault("prowlarr.host", "")
	c.viper.SetDefault("prowlarr.apiKey", "")
	c.viper.SetDefault("prowlarr.timeoutSeconds", 30)

	c.viper.SetDefault("qbittorrent.host", "")
	c.viper.SetDefault("qbittorrent.username", "")
	c.viper.SetDefault("qbittorrent.password", "")
	c.viper.SetDefault("qbittorrent.category", "audiobooks")

	c.viper.SetDefault("sabnzbd.host", "")
	c.viper.SetDefault("sabnzbd.apiKey", "")
	c.viper.SetDefault("sabnzbd.category", "audiobooks")

	c.viper.SetDefault("audiobookshelf.host", "")
	c.viper.SetDefault("audiobookshelf.token", "")
	c.viper.SetDefault("audiobookshelf.libraryId", "")
	c.viper.SetDefault("audiobookshelf.triggerScanAfterImport", true)

	c.viper.SetDefault("plex.host", "")
	c.viper.SetDefault("plex.token", "")
	c.viper.SetDefault("plex.libraryId", "")
	c.viper.SetDefault("plex.triggerScanAfterImport", false)

	c.viper.SetDefault("audible.region", "us")
	c.viper.SetDefault("audible.thumbnailDir", "")
	c.viper.SetDefault("audible.refreshCount", 25)

	c.viper.SetDefault("ebookSidecar.baseUrl", "")
	c.viper.SetDefault("ebookSidecar.preferredFormat", "epub")
	c.viper.SetDefault("ebookSidecar.flaresolverrUrl", "")

	c.viper.SetDefault("notifications.webhookUrl", "")
}

func (c *AppConfig) load(configDir string) error {
	c.viper.SetConfigName("config")
	c.viper.SetConfigType("toml")
	c.viper.AddConfigPath(configDir)

	if err := c.viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("failed to read config file: %w", err)
		}
		if err := c.writeDefaultConfig(configDir); err != nil {
			return err
		}
		if err := c.viper.ReadInConfig(); err != nil {
			return fmt.Errorf("failed to read generated config file: %w", err)
		}
	}

	if c.Config.DataDir == "" && c.viper.GetString("dataDir") == "" {
		c.viper.Set("dataDir", configDir)
	}

	return nil
}

func (c *AppConfig) applyDerivedDefaults() {
	if c.Config.Audible.ThumbnailDir == "" && c.Config.DataDir != "" {
		c.Config.Audible.ThumbnailDir = filepath.Join(c.Config.DataDir, "thumbnails")
	}
}

func (c *AppConfig) writeDefaultConfig(configDir string) error {
	if err := os.MkdirAll(configDir, 0o755); err != nil {
		return fmt.Errorf("failed to create config directory %s: %w", configDir, err)
	}

	path := filepath.Join(configDir, "config.toml")
	if _, err := os.Stat(path); err == nil {
		return nil
	}

	if err := os.WriteFile(path, []byte(defaultConfigTemplate), 0o644); err != nil {
		return fmt.Errorf("failed to write default config: %w", err)
	}

	log.Info().Msgf("Created default config file: %s", path)
	return nil
}

const defaultConfigTemplate = `# Listenarr configuration
# Values can be overridden with LISTENARR__ environment variables,
# for example LISTENARR__PORT=8700 or LISTENARR__PROWLARR__APIKEY=...

host = "127.0.0.1"
port = 8686

logLevel = "INFO"
#logPath = "/var/log/listenarr/listenarr.log"

#dataDir = "/var/lib/listenarr"
downloadDir = "/downloads"
mediaDir = "/media/audiobooks"

redisAddr = "127.0.0.1:6379"

pathTemplate = "{author}/{title} {asin}"

[prowlarr]
host = ""
apiKey = ""

[qbittorrent]
host = ""
username = ""
password = ""
category = "audiobooks"

[sabnzbd]
host = ""
apiKey = ""
category = "audiobooks"

[audiobookshelf]
host = ""
token = ""
libraryId = ""
triggerScanAfterImport = true

[plex]
host = ""
token = ""
libraryId = ""
triggerScanAfterImport = false

[ebookSidecar]
baseUrl = ""
preferredFormat = "epub"
flaresolverrUrl = ""
`

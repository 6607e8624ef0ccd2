// Copyright (c) 2025, the listenarr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package domain

import (
	"errors"
	"path/filepath"
)

// Config represents the application configuration
type Config struct {
	Version string
	Host    string `toml:"host" mapstructure:"host"`
	Port    int    `toml:"port" mapstructure:"port"`

	LogLevel      string `toml:"logLevel" mapstructure:"logLevel"`
	LogPath       string `toml:"logPath" mapstructure:"logPath"`
	LogMaxSize    int    `toml:"logMaxSize" mapstructure:"logMaxSize"`
	LogMaxBackups int    `toml:"logMaxBackups" mapstructure:"logMaxBackups"`

	DataDir        string `toml:"dataDir" mapstructure:"dataDir"`
	MetricsEnabled bool   `toml:"metricsEnabled" mapstructure:"metricsEnabled"`

	// RedisAddr is the address of the Redis instance backing the job broker.
	RedisAddr     string `toml:"redisAddr" mapstructure:"redisAddr"`
	RedisPassword string `toml:"redisPassword" mapstructure:"redisPassword"`
	RedisDB       int    `toml:"redisDb" mapstructure:"redisDb"`

	// DownloadDir is where download clients and direct downloads land files.
	// MediaDir is the root of the organized audiobook library.
	DownloadDir string `toml:"downloadDir" mapstructure:"downloadDir"`
	MediaDir    string `toml:"mediaDir" mapstructure:"mediaDir"`

	// PathTemplate renders the library folder for an audiobook. Supported
	// tokens: {author}, {title}, {asin}, {year}, {series}, {seriesPart},
	// {narrator}. Author and title are required.
	PathTemplate string `toml:"pathTemplate" mapstructure:"pathTemplate"`

	Prowlarr       ProwlarrConfig      `toml:"prowlarr" mapstructure:"prowlarr"`
	QBittorrent    QBittorrentConfig   `toml:"qbittorrent" mapstructure:"qbittorrent"`
	SABnzbd        SABnzbdConfig       `toml:"sabnzbd" mapstructure:"sabnzbd"`
	Audiobookshelf MediaServerConfig   `toml:"audiobookshelf" mapstructure:"audiobookshelf"`
	Plex           MediaServerConfig   `toml:"plex" mapstructure:"plex"`
	Audible        AudibleConfig       `toml:"audible" mapstructure:"audible"`
	EbookSidecar   EbookSidecarConfig  `toml:"ebookSidecar" mapstructure:"ebookSidecar"`
	Notifications  NotificationsConfig `toml:"notifications" mapstructure:"notifications"`
}

// ProwlarrConfig points at the indexer aggregator.
type ProwlarrConfig struct {
	Host           string `toml:"host" mapstructure:"host"`
	APIKey         string `toml:"apiKey" mapstructure:"apiKey"`
	TimeoutSeconds int    `toml:"timeoutSeconds" mapstructure:"timeoutSeconds"`
}

// QBittorrentConfig points at the torrent download client.
type QBittorrentConfig struct {
	Host     string `toml:"host" mapstructure:"host"`
	Username string `toml:"username" mapstructure:"username"`
	Password string `toml:"password" mapstructure:"password"`
	Category string `toml:"category" mapstructure:"category"`
}

// SABnzbdConfig points at the usenet download client.
type SABnzbdConfig struct {
	Host     string `toml:"host" mapstructure:"host"`
	APIKey   string `toml:"apiKey" mapstructure:"apiKey"`
	Category string `toml:"category" mapstructure:"category"`
}

// MediaServerConfig points at a media library server (Audiobookshelf or Plex).
type MediaServerConfig struct {
	Host                   string `toml:"host" mapstructure:"host"`
	Token                  string `toml:"token" mapstructure:"token"`
	LibraryID              string `toml:"libraryId" mapstructure:"libraryId"`
	TriggerScanAfterImport bool   `toml:"triggerScanAfterImport" mapstructure:"triggerScanAfterImport"`
}

// AudibleConfig controls the external metadata provider and its local caches.
type AudibleConfig struct {
	Region       string `toml:"region" mapstructure:"region"`
	ThumbnailDir string `toml:"thumbnailDir" mapstructure:"thumbnailDir"`
	RefreshCount int    `toml:"refreshCount" mapstructure:"refreshCount"`
}

// EbookSidecarConfig controls direct e-book downloads.
type EbookSidecarConfig struct {
	BaseURL         string `toml:"baseUrl" mapstructure:"baseUrl"`
	PreferredFormat string `toml:"preferredFormat" mapstructure:"preferredFormat"`
	FlaresolverrURL string `toml:"flaresolverrUrl" mapstructure:"flaresolverrUrl"`
}

// NotificationsConfig controls the best-effort webhook publisher.
type NotificationsConfig struct {
	WebhookURL string `toml:"webhookUrl" mapstructure:"webhookUrl"`
}

// DatabasePath returns the SQLite file location under the data directory.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.DataDir, "listenarr.db")
}

// Validate checks the settings the pipeline cannot run without. Client
// endpoints are deliberately not required here; processors treat missing
// clients as terminal-config conditions and skip.
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return errors.New("dataDir is required")
	}
	if c.DownloadDir == "" {
		return errors.New("downloadDir is required")
	}
	if c.MediaDir == "" {
		return errors.New("mediaDir is required")
	}
	if c.RedisAddr == "" {
		return errors.New("redisAddr is required")
	}
	return nil
}

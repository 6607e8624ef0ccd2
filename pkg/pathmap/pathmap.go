// Copyright (c) 2025, the listenarr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package pathmap translates paths reported by remote download clients
// into paths visible to this process.
package pathmap

import "strings"

// Config describes a single remote-to-local mapping for a download client.
type Config struct {
	Enabled    bool   `json:"enabled"`
	RemotePath string `json:"remotePath"`
	LocalPath  string `json:"localPath"`
}

// Transform rewrites path by replacing the configured remote prefix with the
// local prefix. The remainder of the path is left byte-identical; no separator
// normalization is performed. Paths that do not carry the remote prefix, and
// all paths when the mapping is disabled, are returned unchanged.
func Transform(path string, cfg Config) string {
	if !cfg.Enabled || cfg.RemotePath == "" {
		return path
	}
	if !strings.HasPrefix(path, cfg.RemotePath) {
		return path
	}
	return cfg.LocalPath + path[len(cfg.RemotePath):]
}

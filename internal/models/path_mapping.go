// Copyright (c) 2025, the listenarr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package models

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/listenarr/listenarr/internal/database"
	"github.com/listenarr/listenarr/pkg/pathmap"
)

// PathMapping associates a remote-to-local mapping and an optional custom
// download subpath with one download client.
type PathMapping struct {
	ID             int64          `json:"id"`
	DownloadClient DownloadClient `json:"downloadClient"`
	Enabled        bool           `json:"enabled"`
	RemotePath     string         `json:"remotePath"`
	LocalPath      string         `json:"localPath"`
	CustomPath     string         `json:"customPath"`
}

// MapConfig converts the row into the pure transform config.
func (m *PathMapping) MapConfig() pathmap.Config {
	return pathmap.Config{Enabled: m.Enabled, RemotePath: m.RemotePath, LocalPath: m.LocalPath}
}

// PathMappingStore manages per-client path mappings.
type PathMappingStore struct {
	db database.Querier
}

func NewPathMappingStore(db database.Querier) *PathMappingStore {
	return &PathMappingStore{db: db}
}

// GetByClient returns the mapping for a client. Clients without a configured
// mapping get a disabled zero mapping, which Transform treats as identity.
func (s *PathMappingStore) GetByClient(ctx context.Context, client DownloadClient) (*PathMapping, error) {
	query := `
		SELECT id, download_client, enabled, remote_path, local_path, custom_path
		FROM path_mappings
		WHERE download_client = ?
	`
	m := &PathMapping{}
	err := s.db.QueryRowContext(ctx, query, client).Scan(
		&m.ID, &m.DownloadClient, &m.Enabled, &m.RemotePath, &m.LocalPath, &m.CustomPath)
	if errors.Is(err, sql.ErrNoRows) {
		return &PathMapping{DownloadClient: client}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get path mapping: %w", err)
	}
	return m, nil
}

// Upsert writes the mapping for a client.
func (s *PathMappingStore) Upsert(ctx context.Context, m *PathMapping) error {
	query := `
		INSERT INTO path_mappings (download_client, enabled, remote_path, local_path, custom_path)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (download_client) DO UPDATE SET
			enabled = excluded.enabled,
			remote_path = excluded.remote_path,
			local_path = excluded.local_path,
			custom_path = excluded.custom_path,
			updated_at = CURRENT_TIMESTAMP
	`
	if _, err := s.db.ExecContext(ctx, query,
		m.DownloadClient, m.Enabled, m.RemotePath, m.LocalPath, m.CustomPath); err != nil {
		return fmt.Errorf("failed to upsert path mapping: %w", err)
	}
	return nil
}

// Copyright (c) 2025, the listenarr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package models

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/listenarr/listenarr/internal/database"
)

var ErrSettingNotFound = errors.New("setting not found")

// Well-known setting keys.
const (
	SettingProwlarrIndexers = "prowlarr_indexers"
	SettingMaxSearchRetries = "max_search_retries"
)

// IndexerConfig is one entry of the prowlarr_indexers JSON setting.
type IndexerConfig struct {
	ID                 int    `json:"id"`
	Name               string `json:"name"`
	Priority           int    `json:"priority"`
	SeedingTimeMinutes int    `json:"seedingTimeMinutes"`
	RSSEnabled         bool   `json:"rssEnabled"`
	Categories         []int  `json:"categories,omitempty"`
}

// AppSettingStore is a dotted-key/value configuration store.
type AppSettingStore struct {
	db database.Querier
}

func NewAppSettingStore(db database.Querier) *AppSettingStore {
	return &AppSettingStore{db: db}
}

func (s *AppSettingStore) Get(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM app_settings WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrSettingNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to get setting %s: %w", key, err)
	}
	return value, nil
}

// GetOrDefault returns the stored value, or fallback when the key is unset.
func (s *AppSettingStore) GetOrDefault(ctx context.Context, key, fallback string) (string, error) {
	value, err := s.Get(ctx, key)
	if errors.Is(err, ErrSettingNotFound) {
		return fallback, nil
	}
	if err != nil {
		return "", err
	}
	return value, nil
}

func (s *AppSettingStore) Set(ctx context.Context, key, value string) error {
	query := `
		INSERT INTO app_settings (key, value) VALUES (?, ?)
		ON CONFLICT (key) DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP
	`
	if _, err := s.db.ExecContext(ctx, query, key, value); err != nil {
		return fmt.Errorf("failed to set setting %s: %w", key, err)
	}
	return nil
}

// GetIndexers decodes the prowlarr_indexers JSON setting. A missing key is an
// empty configuration, not an error.
func (s *AppSettingStore) GetIndexers(ctx context.Context) ([]IndexerConfig, error) {
	raw, err := s.Get(ctx, SettingProwlarrIndexers)
	if errors.Is(err, ErrSettingNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var indexers []IndexerConfig
	if err := json.Unmarshal([]byte(raw), &indexers); err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", SettingProwlarrIndexers, err)
	}
	return indexers, nil
}

// SetIndexers encodes and stores the indexer configuration.
func (s *AppSettingStore) SetIndexers(ctx context.Context, indexers []IndexerConfig) error {
	raw, err := json.Marshal(indexers)
	if err != nil {
		return fmt.Errorf("failed to encode indexers: %w", err)
	}
	return s.Set(ctx, SettingProwlarrIndexers, string(raw))
}

// Copyright (c) 2025, the listenarr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package models

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/listenarr/listenarr/internal/database"
)

var ErrMetadataNotFound = errors.New("metadata not found")

// MetadataEntry is one cached item from the external metadata provider.
type MetadataEntry struct {
	ASIN          string    `json:"asin"`
	Title         string    `json:"title"`
	Author        string    `json:"author"`
	Narrator      *string   `json:"narrator,omitempty"`
	Year          *int      `json:"year,omitempty"`
	CoverArtURL   *string   `json:"coverArtUrl,omitempty"`
	ThumbnailPath *string   `json:"thumbnailPath,omitempty"`
	IsPopular     bool      `json:"isPopular"`
	IsNewRelease  bool      `json:"isNewRelease"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// MetadataCacheStore caches external metadata locally.
type MetadataCacheStore struct {
	db database.Querier
}

func NewMetadataCacheStore(db database.Querier) *MetadataCacheStore {
	return &MetadataCacheStore{db: db}
}

func (s *MetadataCacheStore) GetByASIN(ctx context.Context, asin string) (*MetadataEntry, error) {
	query := `
		SELECT asin, title, author, narrator, year, cover_art_url,
		       thumbnail_path, is_popular, is_new_release, updated_at
		FROM metadata_cache
		WHERE asin = ?
	`
	e := &MetadataEntry{}
	err := s.db.QueryRowContext(ctx, query, asin).Scan(
		&e.ASIN, &e.Title, &e.Author, &e.Narrator, &e.Year, &e.CoverArtURL,
		&e.ThumbnailPath, &e.IsPopular, &e.IsNewRelease, &e.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrMetadataNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get metadata entry: %w", err)
	}
	return e, nil
}

// Upsert writes or refreshes one cache entry, preserving flags passed in.
func (s *MetadataCacheStore) Upsert(ctx context.Context, e *MetadataEntry) error {
	query := `
		INSERT INTO metadata_cache (asin, title, author, narrator, year, cover_art_url, thumbnail_path, is_popular, is_new_release)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (asin) DO UPDATE SET
			title = excluded.title,
			author = excluded.author,
			narrator = excluded.narrator,
			year = excluded.year,
			cover_art_url = excluded.cover_art_url,
			thumbnail_path = excluded.thumbnail_path,
			is_popular = metadata_cache.is_popular OR excluded.is_popular,
			is_new_release = metadata_cache.is_new_release OR excluded.is_new_release,
			updated_at = CURRENT_TIMESTAMP
	`
	if _, err := s.db.ExecContext(ctx, query,
		e.ASIN, e.Title, e.Author, e.Narrator, e.Year, e.CoverArtURL,
		e.ThumbnailPath, e.IsPopular, e.IsNewRelease); err != nil {
		return fmt.Errorf("failed to upsert metadata entry: %w", err)
	}
	return nil
}

// ClearFlags resets the popular/new-release flags ahead of a refresh.
func (s *MetadataCacheStore) ClearFlags(ctx context.Context) error {
	query := `UPDATE metadata_cache SET is_popular = 0, is_new_release = 0, updated_at = CURRENT_TIMESTAMP`
	if _, err := s.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("failed to clear metadata flags: %w", err)
	}
	return nil
}

// LiveThumbnails returns the set of thumbnail paths still referenced by a
// cache row, for post-refresh garbage collection.
func (s *MetadataCacheStore) LiveThumbnails(ctx context.Context) (map[string]struct{}, error) {
	query := `SELECT thumbnail_path FROM metadata_cache WHERE thumbnail_path IS NOT NULL`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list live thumbnails: %w", err)
	}
	defer rows.Close()

	live := make(map[string]struct{})
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, fmt.Errorf("failed to scan thumbnail path: %w", err)
		}
		live[p] = struct{}{}
	}
	return live, rows.Err()
}

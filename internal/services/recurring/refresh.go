// Copyright (c) 2025, the listenarr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package recurring

import (
	"context"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"

	"github.com/listenarr/listenarr/internal/clients/audible"
	"github.com/listenarr/listenarr/internal/models"
)

// ProcessRefreshMetadata handles audible_refresh: clear the popular and
// new-release flags, repopulate both sets from the catalog, cache cover
// thumbnails locally, and garbage-collect orphaned thumbnails afterwards.
func (s *Service) ProcessRefreshMetadata(ctx context.Context, _ []byte) (any, error) {
	if s.audible == nil {
		return map[string]any{"skipped": true, "reason": "metadata provider not configured"}, nil
	}

	if err := s.metadata.ClearFlags(ctx); err != nil {
		return nil, err
	}

	popular, err := s.audible.GetPopular(ctx, s.refreshCount)
	if err != nil {
		return nil, err
	}
	newReleases, err := s.audible.GetNewReleases(ctx, s.refreshCount)
	if err != nil {
		return nil, err
	}

	cached := 0
	cached += s.cacheProducts(ctx, popular, true, false)
	cached += s.cacheProducts(ctx, newReleases, false, true)

	removed := s.collectThumbnails(ctx)

	log.Info().Int("popular", len(popular)).Int("newReleases", len(newReleases)).
		Int("cached", cached).Int("thumbnailsRemoved", removed).
		Msg("metadata refresh completed")
	return map[string]int{
		"popular":           len(popular),
		"newReleases":       len(newReleases),
		"cached":            cached,
		"thumbnailsRemoved": removed,
	}, nil
}

func (s *Service) cacheProducts(ctx context.Context, products []audible.Product, popular, newRelease bool) int {
	cached := 0
	for _, p := range products {
		entry := &models.MetadataEntry{
			ASIN:         p.ASIN,
			Title:        p.Title,
			Author:       p.Author,
			IsPopular:    popular,
			IsNewRelease: newRelease,
		}
		if p.Narrator != "" {
			entry.Narrator = &p.Narrator
		}
		if p.ReleaseYear != 0 {
			year := p.ReleaseYear
			entry.Year = &year
		}
		if p.CoverArtURL != "" {
			entry.CoverArtURL = &p.CoverArtURL
			if path, err := s.audible.DownloadThumbnail(ctx, s.thumbnailDir, p.ASIN, p.CoverArtURL); err == nil {
				entry.ThumbnailPath = &path
			} else {
				log.Debug().Err(err).Str("asin", p.ASIN).Msg("thumbnail download failed")
			}
		}

		if err := s.metadata.Upsert(ctx, entry); err != nil {
			log.Warn().Err(err).Str("asin", p.ASIN).Msg("failed to cache metadata entry")
			continue
		}
		cached++
	}
	return cached
}

// collectThumbnails deletes cached thumbnails no live cache row references.
func (s *Service) collectThumbnails(ctx context.Context) int {
	live, err := s.metadata.LiveThumbnails(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("failed to list live thumbnails, skipping gc")
		return 0
	}

	entries, err := os.ReadDir(s.thumbnailDir)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Warn().Err(err).Msg("failed to read thumbnail dir")
		}
		return 0
	}

	removed := 0
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		path := filepath.Join(s.thumbnailDir, e.Name())
		if _, ok := live[path]; ok {
			continue
		}
		if err := os.Remove(path); err != nil {
			log.Warn().Err(err).Str("path", path).Msg("failed to remove orphaned thumbnail")
			continue
		}
		removed++
	}
	return removed
}

// Copyright (c) 2025, the listenarr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package recurring

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/listenarr/listenarr/internal/clients"
	"github.com/listenarr/listenarr/internal/models"
)

// ProcessCleanupSeeded handles cleanup_seeded_torrents: delete torrents that
// have met their indexer's seeding requirement. seedingTimeMinutes = 0 means
// unlimited and is never cleaned.
func (s *Service) ProcessCleanupSeeded(ctx context.Context, _ []byte) (any, error) {
	downloader := s.downloaders[models.ClientQBittorrent]
	if downloader == nil {
		return map[string]any{"skipped": true, "reason": "qbittorrent not configured"}, nil
	}

	indexers, err := s.settings.GetIndexers(ctx)
	if err != nil {
		return nil, err
	}
	seedingMinutes := make(map[string]int, len(indexers))
	for _, idx := range indexers {
		seedingMinutes[idx.Name] = idx.SeedingTimeMinutes
	}

	reqs, err := s.requests.ListByStatus(ctx, models.StatusCompleted, scanBatchSize)
	if err != nil {
		return nil, err
	}

	cleaned, stillSeeding, unlimited := 0, 0, 0
	for _, req := range reqs {
		hist, err := s.history.GetSelected(ctx, req.ID)
		if errors.Is(err, models.ErrDownloadHistoryNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if hist.DownloadClient != models.ClientQBittorrent {
			continue
		}
		handle := clientHandle(hist)
		if handle == "" {
			continue
		}

		required := 0
		if hist.IndexerName != nil {
			required = seedingMinutes[*hist.IndexerName]
		}
		if required == 0 {
			unlimited++
			continue
		}

		status, err := downloader.GetDownload(ctx, handle)
		if errors.Is(err, clients.ErrDownloadNotFound) {
			continue
		}
		if err != nil {
			log.Warn().Err(err).Int64("requestId", req.ID).Msg("seeding lookup failed")
			continue
		}

		if status.SeedingTime < time.Duration(required)*time.Minute {
			stillSeeding++
			continue
		}

		if err := downloader.Remove(ctx, handle, true); err != nil {
			log.Warn().Err(err).Str("hash", handle).Msg("failed to delete seeded torrent")
			continue
		}
		cleaned++
		log.Info().Int64("requestId", req.ID).Str("hash", handle).
			Dur("seedingTime", status.SeedingTime).Msg("seeded torrent cleaned")
	}

	return map[string]int{
		"cleaned":      cleaned,
		"stillSeeding": stillSeeding,
		"unlimited":    unlimited,
	}, nil
}

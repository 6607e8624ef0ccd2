// Copyright (c) 2025, the listenarr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package recurring implements the scheduled housekeeping processors: search
// retries, import retries, RSS monitoring, seed cleanup, metadata refresh,
// and shelf sync.
package recurring

import (
	"context"
	"errors"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/listenarr/listenarr/internal/clients"
	"github.com/listenarr/listenarr/internal/clients/audible"
	"github.com/listenarr/listenarr/internal/clients/prowlarr"
	"github.com/listenarr/listenarr/internal/jobs"
	"github.com/listenarr/listenarr/internal/models"
	"github.com/listenarr/listenarr/internal/queue"
	"github.com/listenarr/listenarr/internal/services/librarymatch"
	"github.com/listenarr/listenarr/pkg/pathmap"
)

const (
	retryBatchSize = 50
	scanBatchSize  = 100
	// enqueueSpacing keeps batch enqueues from stampeding the connection
	// pool.
	enqueueSpacing = 100 * time.Millisecond
)

type Service struct {
	requests   *models.RequestStore
	audiobooks *models.AudiobookStore
	history    *models.DownloadHistoryStore
	settings   *models.AppSettingStore
	pathmaps   *models.PathMappingStore
	metadata   *models.MetadataCacheStore
	broker     *queue.Broker
	prowlarr   *prowlarr.Client
	audible    *audible.Client
	backends   []librarymatch.Backend

	downloaders map[models.DownloadClient]clients.Downloader

	downloadDir  string
	thumbnailDir string
	refreshCount int
}

func NewService(
	requests *models.RequestStore,
	audiobooks *models.AudiobookStore,
	history *models.DownloadHistoryStore,
	settings *models.AppSettingStore,
	pathmaps *models.PathMappingStore,
	metadata *models.MetadataCacheStore,
	broker *queue.Broker,
	prowlarrClient *prowlarr.Client,
	audibleClient *audible.Client,
	backends []librarymatch.Backend,
	downloaders map[models.DownloadClient]clients.Downloader,
	downloadDir, thumbnailDir string,
	refreshCount int,
) *Service {
	if refreshCount <= 0 {
		refreshCount = 20
	}
	return &Service{
		requests:     requests,
		audiobooks:   audiobooks,
		history:      history,
		settings:     settings,
		pathmaps:     pathmaps,
		metadata:     metadata,
		broker:       broker,
		prowlarr:     prowlarrClient,
		audible:      audibleClient,
		backends:     backends,
		downloaders:  downloaders,
		downloadDir:  downloadDir,
		thumbnailDir: thumbnailDir,
		refreshCount: refreshCount,
	}
}

// searchJobType picks the search processor for a request's pipeline.
func searchJobType(t models.RequestType) string {
	if t == models.RequestTypeEbook {
		return jobs.TypeSearchEbook
	}
	return jobs.TypeSearchIndexers
}

// enqueueSearch pushes the typed search job for one request.
func (s *Service) enqueueSearch(ctx context.Context, req *models.Request) error {
	book, err := s.audiobooks.Get(ctx, req.AudiobookID)
	if err != nil {
		return err
	}

	payload := jobs.SearchPayload{
		RequestID: req.ID,
		Audiobook: jobs.AudiobookRef{
			ID:     book.ID,
			Title:  book.Title,
			Author: book.Author,
		},
	}
	if book.ASIN != nil {
		payload.Audiobook.ASIN = *book.ASIN
	}

	_, err = s.broker.Enqueue(ctx, searchJobType(req.Type), payload,
		queue.EnqueueOptions{RequestID: &req.ID})
	return err
}

// ProcessRetryMissingSearch handles retry_missing_torrents: re-enqueue a
// search for every request still waiting on one.
func (s *Service) ProcessRetryMissingSearch(ctx context.Context, _ []byte) (any, error) {
	reqs, err := s.requests.ListByStatus(ctx, models.StatusAwaitingSearch, retryBatchSize)
	if err != nil {
		return nil, err
	}

	enqueued := 0
	for _, req := range reqs {
		if err := s.enqueueSearch(ctx, req); err != nil {
			log.Warn().Err(err).Int64("requestId", req.ID).Msg("failed to enqueue search retry")
			continue
		}
		enqueued++
		time.Sleep(enqueueSpacing)
	}

	log.Info().Int("candidates", len(reqs)).Int("enqueued", enqueued).
		Msg("retry missing search completed")
	return map[string]int{"candidates": len(reqs), "enqueued": enqueued}, nil
}

// ProcessRetryFailedImports handles retry_failed_imports: resolve a download
// path for every request stuck awaiting import and re-enqueue organization.
func (s *Service) ProcessRetryFailedImports(ctx context.Context, _ []byte) (any, error) {
	reqs, err := s.requests.ListByStatus(ctx, models.StatusAwaitingImport, retryBatchSize)
	if err != nil {
		return nil, err
	}

	enqueued, skipped := 0, 0
	for _, req := range reqs {
		path, err := s.resolveImportPath(ctx, req)
		if err != nil || path == "" {
			if err != nil {
				log.Warn().Err(err).Int64("requestId", req.ID).Msg("failed to resolve import path")
			}
			skipped++
			continue
		}

		if _, err := s.broker.Enqueue(ctx, jobs.TypeOrganizeFiles, jobs.OrganizeFilesPayload{
			RequestID:    req.ID,
			AudiobookID:  req.AudiobookID,
			DownloadPath: path,
		}, queue.EnqueueOptions{RequestID: &req.ID}); err != nil {
			log.Warn().Err(err).Int64("requestId", req.ID).Msg("failed to enqueue import retry")
			skipped++
			continue
		}
		enqueued++
		time.Sleep(enqueueSpacing)
	}

	log.Info().Int("candidates", len(reqs)).Int("enqueued", enqueued).Int("skipped", skipped).
		Msg("retry failed imports completed")
	return map[string]int{"candidates": len(reqs), "enqueued": enqueued, "skipped": skipped}, nil
}

// resolveImportPath computes the organize source in priority order: the
// stored completion path, a live client query through the path mapper, and
// finally the download-dir fallback composed with the client's custom path.
func (s *Service) resolveImportPath(ctx context.Context, req *models.Request) (string, error) {
	hist, err := s.history.GetSelected(ctx, req.ID)
	if errors.Is(err, models.ErrDownloadHistoryNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}

	if hist.DownloadPath != nil && *hist.DownloadPath != "" {
		return *hist.DownloadPath, nil
	}

	mapping, err := s.pathmaps.GetByClient(ctx, hist.DownloadClient)
	if err != nil {
		return "", err
	}

	if downloader, ok := s.downloaders[hist.DownloadClient]; ok && downloader != nil {
		if handle := clientHandle(hist); handle != "" {
			status, err := downloader.GetDownload(ctx, handle)
			if err == nil && status.Path != "" {
				return pathmap.Transform(status.Path, mapping.MapConfig()), nil
			}
			if err != nil && !errors.Is(err, clients.ErrDownloadNotFound) {
				log.Debug().Err(err).Int64("requestId", req.ID).Msg("live path lookup failed")
			}
		}
	}

	if hist.TorrentName == nil || *hist.TorrentName == "" {
		return "", nil
	}
	base := s.downloadDir
	if mapping.CustomPath != "" {
		base = filepath.Join(base, mapping.CustomPath)
	}
	return pathmap.Transform(filepath.Join(base, *hist.TorrentName), mapping.MapConfig()), nil
}

// clientHandle returns the preferred client-side key for a history row.
func clientHandle(hist *models.DownloadHistory) string {
	if hist.DownloadClientID != nil && *hist.DownloadClientID != "" {
		return *hist.DownloadClientID
	}
	if hist.TorrentHash != nil && *hist.TorrentHash != "" {
		return *hist.TorrentHash
	}
	if hist.NzbID != nil && *hist.NzbID != "" {
		return *hist.NzbID
	}
	return ""
}

// ProcessPlexLibraryScan handles plex_library_scan: full scans on every
// configured backend.
func (s *Service) ProcessPlexLibraryScan(ctx context.Context, _ []byte) (any, error) {
	triggered := 0
	for _, b := range s.backends {
		if b.LibraryID == "" {
			continue
		}
		if err := b.Library.TriggerLibraryScan(ctx, b.LibraryID); err != nil {
			log.Warn().Err(err).Str("backend", b.Name).Msg("scheduled library scan refused")
			continue
		}
		triggered++
	}
	return map[string]int{"triggered": triggered}, nil
}

// ProcessRecentlyAdded handles plex_recently_added_check: requests sitting in
// downloaded get a match attempt so fresh library scans promote them.
func (s *Service) ProcessRecentlyAdded(ctx context.Context, _ []byte) (any, error) {
	reqs, err := s.requests.ListByStatus(ctx, models.StatusDownloaded, scanBatchSize)
	if err != nil {
		return nil, err
	}

	enqueued := 0
	for _, req := range reqs {
		book, err := s.audiobooks.Get(ctx, req.AudiobookID)
		if err != nil {
			log.Warn().Err(err).Int64("requestId", req.ID).Msg("failed to load audiobook")
			continue
		}
		if _, err := s.broker.Enqueue(ctx, jobs.TypeMatchLibrary, jobs.MatchLibraryPayload{
			RequestID:   req.ID,
			AudiobookID: book.ID,
			Title:       book.Title,
			Author:      book.Author,
		}, queue.EnqueueOptions{RequestID: &req.ID}); err != nil {
			log.Warn().Err(err).Int64("requestId", req.ID).Msg("failed to enqueue match")
			continue
		}
		enqueued++
	}
	return map[string]int{"candidates": len(reqs), "enqueued": enqueued}, nil
}

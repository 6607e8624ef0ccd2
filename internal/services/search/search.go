// Copyright (c) 2025, the listenarr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package search

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/listenarr/listenarr/internal/clients/ebookscraper"
	"github.com/listenarr/listenarr/internal/clients/prowlarr"
	"github.com/listenarr/listenarr/internal/jobs"
	"github.com/listenarr/listenarr/internal/models"
	"github.com/listenarr/listenarr/internal/queue"
	"github.com/listenarr/listenarr/pkg/sanitize"
)

const (
	defaultMaxSearchRetries = 10
	maxMirrors              = 5
)

// Result is the structured processor outcome recorded on the job row.
type Result struct {
	Skipped    bool   `json:"skipped,omitempty"`
	Reason     string `json:"reason,omitempty"`
	Candidates int    `json:"candidates,omitempty"`
	Selected   string `json:"selected,omitempty"`
	Attempts   int    `json:"attempts,omitempty"`
}

type Service struct {
	requests *models.RequestStore
	history  *models.DownloadHistoryStore
	settings *models.AppSettingStore
	prowlarr *prowlarr.Client
	scraper  *ebookscraper.Client
	broker   *queue.Broker

	preferredFormat string
}

func NewService(
	requests *models.RequestStore,
	history *models.DownloadHistoryStore,
	settings *models.AppSettingStore,
	prowlarrClient *prowlarr.Client,
	scraper *ebookscraper.Client,
	broker *queue.Broker,
	preferredFormat string,
) *Service {
	if preferredFormat == "" {
		preferredFormat = "epub"
	}
	return &Service{
		requests:        requests,
		history:         history,
		settings:        settings,
		prowlarr:        prowlarrClient,
		scraper:         scraper,
		broker:          broker,
		preferredFormat: preferredFormat,
	}
}

// ProcessSearch handles search_indexers: query every configured indexer,
// rank the candidates, select one, and enqueue the download handoff.
// Re-entering on a request already past awaiting_search is a no-op success.
func (s *Service) ProcessSearch(ctx context.Context, payload []byte) (any, error) {
	var p jobs.SearchPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return nil, queue.Terminal(fmt.Errorf("invalid search payload: %w", err))
	}

	req, ok, err := s.searchableRequest(ctx, p.RequestID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return Result{Skipped: true, Reason: "request not awaiting search"}, nil
	}

	if s.prowlarr == nil {
		return Result{Skipped: true, Reason: "prowlarr not configured"}, nil
	}

	indexers, err := s.settings.GetIndexers(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load indexer configuration: %w", err)
	}
	if len(indexers) == 0 {
		return Result{Skipped: true, Reason: "no indexers configured"}, nil
	}

	candidates := s.collectCandidates(ctx, indexers, p.Audiobook)
	ranked := Rank(Query{Title: p.Audiobook.Title, Author: p.Audiobook.Author}, candidates)

	if len(ranked) == 0 {
		return s.recordEmptySearch(ctx, req)
	}

	best := ranked[0]
	if err := s.requests.Transition(ctx, req.ID,
		[]models.RequestStatus{models.StatusAwaitingSearch},
		models.StatusAwaitingDownload,
		&models.RequestPatch{ClearError: true},
	); err != nil {
		if errors.Is(err, models.ErrStateConflict) {
			return Result{Skipped: true, Reason: "request state changed during search"}, nil
		}
		return nil, err
	}

	client := models.ClientQBittorrent
	if best.Protocol == "usenet" {
		client = models.ClientSABnzbd
	}
	hist, err := s.history.CreateSelected(ctx, &models.DownloadHistory{
		RequestID:      req.ID,
		DownloadClient: client,
		TorrentName:    &best.Title,
		IndexerName:    &best.IndexerName,
		TorrentURL:     &best.DownloadURL,
		DownloadStatus: "selected",
	})
	if err != nil {
		return nil, err
	}

	if _, err := s.broker.Enqueue(ctx, jobs.TypeDownloadTorrent, jobs.DownloadTorrentPayload{
		RequestID: req.ID,
		Audiobook: p.Audiobook,
		Torrent: jobs.TorrentRef{
			IndexerName: best.IndexerName,
			Priority:    best.IndexerPriority,
			DownloadURL: best.DownloadURL,
			Protocol:    best.Protocol,
			Category:    best.Category,
			Title:       best.Title,
			Size:        best.Size,
		},
	}, queue.EnqueueOptions{RequestID: &req.ID}); err != nil {
		return nil, err
	}

	log.Info().Int64("requestId", req.ID).Str("indexer", best.IndexerName).
		Str("release", best.Title).Int64("downloadHistoryId", hist.ID).
		Msg("search selected candidate")

	return Result{Candidates: len(ranked), Selected: best.Title}, nil
}

// ProcessSearchEbook handles search_ebook: find mirror pages on the sidecar
// site and hand the list to the direct-download processor.
func (s *Service) ProcessSearchEbook(ctx context.Context, payload []byte) (any, error) {
	var p jobs.SearchPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return nil, queue.Terminal(fmt.Errorf("invalid search payload: %w", err))
	}

	req, ok, err := s.searchableRequest(ctx, p.RequestID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return Result{Skipped: true, Reason: "request not awaiting search"}, nil
	}

	if s.scraper == nil {
		return Result{Skipped: true, Reason: "ebook sidecar not configured"}, nil
	}

	mirrors, err := s.scraper.FindMirrors(ctx, p.Audiobook.Title, p.Audiobook.Author, maxMirrors)
	if err != nil {
		return nil, fmt.Errorf("failed to search ebook mirrors: %w", err)
	}
	if len(mirrors) == 0 {
		return s.recordEmptySearch(ctx, req)
	}

	if err := s.requests.Transition(ctx, req.ID,
		[]models.RequestStatus{models.StatusAwaitingSearch},
		models.StatusAwaitingDownload,
		&models.RequestPatch{ClearError: true},
	); err != nil {
		if errors.Is(err, models.ErrStateConflict) {
			return Result{Skipped: true, Reason: "request state changed during search"}, nil
		}
		return nil, err
	}

	// The mirror list rides in torrent_url as JSON so organization retries
	// can recover it.
	mirrorJSON, err := json.Marshal(mirrors)
	if err != nil {
		return nil, queue.Terminal(fmt.Errorf("failed to encode mirror list: %w", err))
	}
	mirrorStr := string(mirrorJSON)

	filename := sanitize.Segment(fmt.Sprintf("%s - %s", p.Audiobook.Author, p.Audiobook.Title)) +
		"." + strings.TrimPrefix(s.preferredFormat, ".")

	hist, err := s.history.CreateSelected(ctx, &models.DownloadHistory{
		RequestID:      req.ID,
		DownloadClient: models.ClientDirect,
		TorrentName:    &filename,
		TorrentURL:     &mirrorStr,
		DownloadStatus: "selected",
	})
	if err != nil {
		return nil, err
	}

	if _, err := s.broker.Enqueue(ctx, jobs.TypeStartDirectDownload, jobs.StartDirectDownloadPayload{
		RequestID:         req.ID,
		DownloadHistoryID: hist.ID,
		DownloadURLs:      mirrors,
		TargetFilename:    filename,
	}, queue.EnqueueOptions{RequestID: &req.ID}); err != nil {
		return nil, err
	}

	log.Info().Int64("requestId", req.ID).Int("mirrors", len(mirrors)).
		Msg("ebook search found mirrors")

	return Result{Candidates: len(mirrors), Selected: filename}, nil
}

// searchableRequest loads the request and reports whether the search may act.
// Conflicts and missing rows are no-ops, not errors.
func (s *Service) searchableRequest(ctx context.Context, id int64) (*models.Request, bool, error) {
	req, err := s.requests.GetActive(ctx, id)
	if errors.Is(err, models.ErrStateConflict) || errors.Is(err, models.ErrRequestNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	if req.Status != models.StatusAwaitingSearch {
		return nil, false, nil
	}
	return req, true, nil
}

func (s *Service) collectCandidates(ctx context.Context, indexers []models.IndexerConfig, book jobs.AudiobookRef) []Candidate {
	query := strings.TrimSpace(book.Title + " " + book.Author)
	var candidates []Candidate

	for _, idx := range indexers {
		params := map[string]string{"q": query}
		if len(idx.Categories) > 0 {
			cats := make([]string, len(idx.Categories))
			for i, c := range idx.Categories {
				cats[i] = strconv.Itoa(c)
			}
			params["cat"] = strings.Join(cats, ",")
		}

		rss, err := s.prowlarr.SearchIndexer(ctx, idx.ID, params)
		if err != nil {
			log.Warn().Err(err).Str("indexer", idx.Name).Msg("indexer search failed")
			continue
		}

		for _, item := range rss.Channel.Items {
			protocol := "torrent"
			if strings.Contains(strings.ToLower(item.Link), ".nzb") || item.Attr("nzbid") != "" {
				protocol = "usenet"
			}
			candidates = append(candidates, Candidate{
				Title:           item.Title,
				DownloadURL:     item.Link,
				Protocol:        protocol,
				Category:        item.Category,
				Size:            item.Size,
				Seeders:         item.Seeders(),
				IndexerID:       idx.ID,
				IndexerName:     idx.Name,
				IndexerPriority: idx.Priority,
			})
		}
	}
	return candidates
}

// recordEmptySearch leaves the request in awaiting_search for the scheduled
// retry, or fails it once the configured maximum is reached.
func (s *Service) recordEmptySearch(ctx context.Context, req *models.Request) (any, error) {
	maxRetries := defaultMaxSearchRetries
	if raw, err := s.settings.GetOrDefault(ctx, models.SettingMaxSearchRetries, ""); err == nil && raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			maxRetries = n
		}
	}

	attempts := req.DownloadAttempts + 1
	if attempts >= maxRetries {
		msg := fmt.Sprintf("no candidates found after %d searches", attempts)
		if err := s.requests.Transition(ctx, req.ID,
			[]models.RequestStatus{models.StatusAwaitingSearch},
			models.StatusFailed,
			&models.RequestPatch{ErrorMessage: &msg, IncrementDownloadAttempts: true},
		); err != nil && !errors.Is(err, models.ErrStateConflict) {
			return nil, err
		}
		log.Warn().Int64("requestId", req.ID).Int("attempts", attempts).
			Msg("search exhausted, request failed")
		return Result{Candidates: 0, Attempts: attempts, Reason: "exhausted"}, nil
	}

	if err := s.requests.Transition(ctx, req.ID,
		[]models.RequestStatus{models.StatusAwaitingSearch},
		models.StatusAwaitingSearch,
		&models.RequestPatch{IncrementDownloadAttempts: true},
	); err != nil && !errors.Is(err, models.ErrStateConflict) {
		return nil, err
	}

	log.Debug().Int64("requestId", req.ID).Int("attempts", attempts).Msg("search found no candidates")
	return Result{Candidates: 0, Attempts: attempts}, nil
}

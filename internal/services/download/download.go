// Copyright (c) 2025, the listenarr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package download hands selected candidates to the configured download
// client and polls them to completion. Polling is expressed as self-enqueue
// with a fixed delay rather than an in-process wait loop, so in-flight work
// stays bounded.
package download

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/listenarr/listenarr/internal/clients"
	"github.com/listenarr/listenarr/internal/clients/ebookscraper"
	"github.com/listenarr/listenarr/internal/clients/qbittorrent"
	"github.com/listenarr/listenarr/internal/clients/sabnzbd"
	"github.com/listenarr/listenarr/internal/jobs"
	"github.com/listenarr/listenarr/internal/models"
	"github.com/listenarr/listenarr/internal/queue"
	"github.com/listenarr/listenarr/internal/services/notifications"
	"github.com/listenarr/listenarr/pkg/pathmap"
)

const monitorDelay = 10 * time.Second

// Result is the structured processor outcome recorded on the job row.
type Result struct {
	Skipped  bool   `json:"skipped,omitempty"`
	Reason   string `json:"reason,omitempty"`
	State    string `json:"state,omitempty"`
	Progress int    `json:"progress,omitempty"`
}

type Service struct {
	requests  *models.RequestStore
	history   *models.DownloadHistoryStore
	pathmaps  *models.PathMappingStore
	broker    *queue.Broker
	notifier  *notifications.Service
	qbt       *qbittorrent.Client
	sab       *sabnzbd.Client
	registry  *Registry
	scraper   Extractor
	downloads string // download directory for direct downloads
}

// Extractor resolves a mirror page into a direct file link.
type Extractor interface {
	ExtractDownloadURL(ctx context.Context, pageURL, preferredFormat string) (*ebookscraper.Download, error)
}

func NewService(
	requests *models.RequestStore,
	history *models.DownloadHistoryStore,
	pathmaps *models.PathMappingStore,
	broker *queue.Broker,
	notifier *notifications.Service,
	qbt *qbittorrent.Client,
	sab *sabnzbd.Client,
	scraper Extractor,
	downloadDir string,
) *Service {
	return &Service{
		requests:  requests,
		history:   history,
		pathmaps:  pathmaps,
		broker:    broker,
		notifier:  notifier,
		qbt:       qbt,
		sab:       sab,
		registry:  NewRegistry(),
		scraper:   scraper,
		downloads: downloadDir,
	}
}

// Registry exposes the in-memory direct-download table, read by status
// endpoints.
func (s *Service) DirectDownloads() *Registry {
	return s.registry
}

// downloaderFor maps a stored client name to its wrapper. Returns nil when
// the client is not configured.
func (s *Service) downloaderFor(client models.DownloadClient) clients.Downloader {
	switch client {
	case models.ClientQBittorrent:
		if s.qbt == nil {
			return nil
		}
		return s.qbt
	case models.ClientSABnzbd:
		if s.sab == nil {
			return nil
		}
		return s.sab
	}
	return nil
}

// ProcessDownloadTorrent handles download_torrent: submit the selected
// candidate to its client, record the handle, and start monitoring.
func (s *Service) ProcessDownloadTorrent(ctx context.Context, payload []byte) (any, error) {
	var p jobs.DownloadTorrentPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return nil, queue.Terminal(fmt.Errorf("invalid download payload: %w", err))
	}

	req, err := s.requests.GetActive(ctx, p.RequestID)
	if errors.Is(err, models.ErrStateConflict) || errors.Is(err, models.ErrRequestNotFound) {
		return Result{Skipped: true, Reason: "request no longer active"}, nil
	}
	if err != nil {
		return nil, err
	}
	if req.Status != models.StatusAwaitingDownload {
		return Result{Skipped: true, Reason: "request not awaiting download"}, nil
	}

	hist, err := s.history.GetSelected(ctx, req.ID)
	if err != nil {
		return nil, err
	}

	clientID, err := s.submit(ctx, hist, p.Torrent)
	if err != nil {
		return nil, s.failRequest(ctx, req, hist, p.Audiobook,
			[]models.RequestStatus{models.StatusAwaitingDownload},
			fmt.Sprintf("download client rejected candidate: %v", err))
	}

	if err := s.history.SetClientHandle(ctx, hist.ID, clientID, "downloading"); err != nil {
		return nil, err
	}

	if err := s.requests.Transition(ctx, req.ID,
		[]models.RequestStatus{models.StatusAwaitingDownload},
		models.StatusDownloading,
		&models.RequestPatch{ClearError: true},
	); err != nil {
		if errors.Is(err, models.ErrStateConflict) {
			return Result{Skipped: true, Reason: "request state changed during handoff"}, nil
		}
		return nil, err
	}

	if _, err := s.broker.Enqueue(ctx, jobs.TypeMonitorDownload, jobs.MonitorDownloadPayload{
		RequestID:         req.ID,
		DownloadHistoryID: hist.ID,
		DownloadClientID:  clientID,
		DownloadClient:    string(hist.DownloadClient),
	}, queue.EnqueueOptions{RequestID: &req.ID, Delay: monitorDelay}); err != nil {
		return nil, err
	}

	s.notifier.Publish(ctx, notifications.Event{
		Kind:      notifications.EventDownloadStarted,
		RequestID: req.ID,
		Title:     p.Audiobook.Title,
		Author:    p.Audiobook.Author,
	})

	log.Info().Int64("requestId", req.ID).Str("client", string(hist.DownloadClient)).
		Str("clientId", clientID).Msg("download handed off")

	return Result{State: "downloading"}, nil
}

// submit hands the candidate to the matching client and returns the
// client-assigned handle.
func (s *Service) submit(ctx context.Context, hist *models.DownloadHistory, torrent jobs.TorrentRef) (string, error) {
	switch hist.DownloadClient {
	case models.ClientQBittorrent:
		if s.qbt == nil {
			return "", errors.New("qbittorrent not configured")
		}
		if err := s.qbt.AddTorrent(ctx, torrent.DownloadURL); err != nil {
			return "", err
		}
		return s.newestTorrentHash(ctx)
	case models.ClientSABnzbd:
		if s.sab == nil {
			return "", errors.New("sabnzbd not configured")
		}
		return s.sab.AddNZB(ctx, torrent.DownloadURL, torrent.Title)
	}
	return "", fmt.Errorf("unknown download client %q", hist.DownloadClient)
}

// newestTorrentHash returns the hash of the most recently added torrent in
// our category. The qBittorrent add endpoint does not return a handle, so the
// submission is correlated by recency.
func (s *Service) newestTorrentHash(ctx context.Context) (string, error) {
	torrents, err := s.qbt.ListCategory(ctx)
	if err != nil {
		return "", err
	}
	if len(torrents) == 0 {
		return "", errors.New("torrent did not appear in client")
	}

	newest := torrents[0]
	for _, t := range torrents[1:] {
		if t.AddedOn > newest.AddedOn {
			newest = t
		}
	}
	return newest.Hash, nil
}

// ProcessMonitorDownload handles monitor_download: poll the client once and
// either finish, fail, or re-enqueue itself with a 10 second delay.
func (s *Service) ProcessMonitorDownload(ctx context.Context, payload []byte) (any, error) {
	var p jobs.MonitorDownloadPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return nil, queue.Terminal(fmt.Errorf("invalid monitor payload: %w", err))
	}

	req, err := s.requests.GetActive(ctx, p.RequestID)
	if errors.Is(err, models.ErrStateConflict) || errors.Is(err, models.ErrRequestNotFound) {
		return Result{Skipped: true, Reason: "request no longer active"}, nil
	}
	if err != nil {
		return nil, err
	}
	if req.Status != models.StatusDownloading {
		return Result{Skipped: true, Reason: "request not downloading"}, nil
	}

	client := models.DownloadClient(p.DownloadClient)
	downloader := s.downloaderFor(client)
	if downloader == nil {
		return nil, s.failMonitor(ctx, req, p, "download client no longer configured")
	}

	status, err := downloader.GetDownload(ctx, p.DownloadClientID)
	if errors.Is(err, clients.ErrDownloadNotFound) {
		return nil, s.failMonitor(ctx, req, p, "download disappeared from client")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to poll download client: %w", err)
	}

	switch status.State {
	case clients.StateCompleted:
		return s.finishDownload(ctx, req, p, client, status)

	case clients.StateFailed:
		msg := status.Message
		if msg == "" {
			msg = "download client reported failure"
		}
		return nil, s.failMonitor(ctx, req, p, msg)

	default:
		progress := int(status.Progress)
		if progress > 99 {
			progress = 99
		}
		if err := s.requests.UpdateProgress(ctx, req.ID, progress); err != nil {
			return nil, err
		}
		if err := s.history.SetStatus(ctx, p.DownloadHistoryID, "downloading"); err != nil {
			return nil, err
		}

		// Throttled: log only at 5% boundaries or while under 5%.
		if progress < 5 || progress%5 == 0 {
			log.Debug().Int64("requestId", req.ID).Int("progress", progress).
				Str("state", string(status.State)).Msg("download in progress")
		}

		if _, err := s.broker.Enqueue(ctx, jobs.TypeMonitorDownload, p,
			queue.EnqueueOptions{RequestID: &req.ID, Delay: monitorDelay}); err != nil {
			return nil, err
		}
		return Result{State: "downloading", Progress: progress}, nil
	}
}

// finishDownload captures the authoritative import path, advances the request
// and enqueues organization.
func (s *Service) finishDownload(ctx context.Context, req *models.Request, p jobs.MonitorDownloadPayload, client models.DownloadClient, status *clients.DownloadStatus) (any, error) {
	mapping, err := s.pathmaps.GetByClient(ctx, client)
	if err != nil {
		return nil, err
	}
	localPath := pathmap.Transform(status.Path, mapping.MapConfig())

	if err := s.history.MarkCompleted(ctx, p.DownloadHistoryID, localPath, status.Name); err != nil {
		return nil, err
	}

	progress := 99
	if err := s.requests.Transition(ctx, req.ID,
		[]models.RequestStatus{models.StatusDownloading},
		models.StatusAwaitingImport,
		&models.RequestPatch{Progress: &progress, ClearError: true},
	); err != nil {
		if errors.Is(err, models.ErrStateConflict) {
			return Result{Skipped: true, Reason: "request state changed during monitor"}, nil
		}
		return nil, err
	}

	if _, err := s.broker.Enqueue(ctx, jobs.TypeOrganizeFiles, jobs.OrganizeFilesPayload{
		RequestID:    req.ID,
		AudiobookID:  req.AudiobookID,
		DownloadPath: localPath,
	}, queue.EnqueueOptions{RequestID: &req.ID}); err != nil {
		return nil, err
	}

	log.Info().Int64("requestId", req.ID).Str("downloadPath", localPath).
		Msg("download completed")
	return Result{State: "completed", Progress: 100}, nil
}

func (s *Service) failMonitor(ctx context.Context, req *models.Request, p jobs.MonitorDownloadPayload, msg string) error {
	if err := s.history.MarkFailed(ctx, p.DownloadHistoryID, msg); err != nil {
		return err
	}
	return s.failRequest(ctx, req, nil, jobs.AudiobookRef{},
		[]models.RequestStatus{models.StatusDownloading}, msg)
}

// failRequest moves the request to failed and fires the terminal
// notification. The returned error is terminal so the broker stops retrying.
func (s *Service) failRequest(ctx context.Context, req *models.Request, hist *models.DownloadHistory, book jobs.AudiobookRef, from []models.RequestStatus, msg string) error {
	if hist != nil {
		if err := s.history.MarkFailed(ctx, hist.ID, msg); err != nil {
			log.Warn().Err(err).Int64("downloadHistoryId", hist.ID).Msg("failed to mark download failed")
		}
	}

	if err := s.requests.Transition(ctx, req.ID, from, models.StatusFailed,
		&models.RequestPatch{ErrorMessage: &msg}); err != nil && !errors.Is(err, models.ErrStateConflict) {
		return err
	}

	s.notifier.Publish(ctx, notifications.Event{
		Kind:      notifications.EventDownloadFailed,
		RequestID: req.ID,
		Title:     book.Title,
		Author:    book.Author,
		Message:   msg,
	})

	return queue.Terminal(errors.New(msg))
}

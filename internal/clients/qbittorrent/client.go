// Copyright (c) 2025, the listenarr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package qbittorrent wraps the qBittorrent WebUI API behind the shared
// download client capability.
package qbittorrent

import (
	"context"
	"fmt"
	"time"

	qbt "github.com/autobrr/go-qbittorrent"
	"github.com/rs/zerolog/log"

	"github.com/listenarr/listenarr/internal/clients"
)

const category = "listenarr"

type Client struct {
	qbt *qbt.Client
}

// NewClient connects and authenticates against the qBittorrent instance.
func NewClient(ctx context.Context, host, username, password string) (*Client, error) {
	qc := qbt.NewClient(qbt.Config{
		Host:     host,
		Username: username,
		Password: password,
		Timeout:  30,
	})

	if err := qc.LoginCtx(ctx); err != nil {
		return nil, fmt.Errorf("failed to connect to qBittorrent: %w", err)
	}

	log.Debug().Str("host", host).Msg("qBittorrent client created")
	return &Client{qbt: qc}, nil
}

// AddTorrent hands a torrent or magnet URL to the client and returns the set
// of hashes that appeared for the category afterwards, newest first.
func (c *Client) AddTorrent(ctx context.Context, downloadURL string) error {
	opts := map[string]string{"category": category}
	if err := c.qbt.AddTorrentFromUrlCtx(ctx, downloadURL, opts); err != nil {
		return fmt.Errorf("failed to add torrent: %w", err)
	}
	return nil
}

// ListCategory returns all torrents in the client's category.
func (c *Client) ListCategory(ctx context.Context) ([]qbt.Torrent, error) {
	torrents, err := c.qbt.GetTorrentsCtx(ctx, qbt.TorrentFilterOptions{Category: category})
	if err != nil {
		return nil, fmt.Errorf("failed to list torrents: %w", err)
	}
	return torrents, nil
}

// GetDownload reports the status of a torrent by hash.
func (c *Client) GetDownload(ctx context.Context, id string) (*clients.DownloadStatus, error) {
	torrents, err := c.qbt.GetTorrentsCtx(ctx, qbt.TorrentFilterOptions{Hashes: []string{id}})
	if err != nil {
		return nil, fmt.Errorf("failed to query torrent %s: %w", id, err)
	}
	if len(torrents) == 0 {
		return nil, clients.ErrDownloadNotFound
	}

	t := torrents[0]
	status := &clients.DownloadStatus{
		ID:          t.Hash,
		Name:        t.Name,
		Progress:    t.Progress * 100,
		Path:        t.ContentPath,
		SeedingTime: time.Duration(t.SeedingTime) * time.Second,
	}

	switch t.State {
	case qbt.TorrentStateError, qbt.TorrentStateMissingFiles:
		status.State = clients.StateFailed
		status.Message = fmt.Sprintf("torrent in state %s", t.State)
	case qbt.TorrentStateUploading, qbt.TorrentStateStalledUp, qbt.TorrentStateQueuedUp,
		qbt.TorrentStatePausedUp, qbt.TorrentStateStoppedUp, qbt.TorrentStateForcedUp,
		qbt.TorrentStateCheckingUp:
		// Seeding states all imply the payload is complete on disk.
		status.State = clients.StateCompleted
		status.Progress = 100
	case qbt.TorrentStateStalledDl:
		status.State = clients.StateStalled
	default:
		if t.Progress >= 1.0 {
			status.State = clients.StateCompleted
			status.Progress = 100
		} else {
			status.State = clients.StateDownloading
		}
	}

	return status, nil
}

// Remove deletes the torrent, optionally with its downloaded data.
func (c *Client) Remove(ctx context.Context, id string, deleteFiles bool) error {
	if err := c.qbt.DeleteTorrentsCtx(ctx, []string{id}, deleteFiles); err != nil {
		return fmt.Errorf("failed to delete torrent %s: %w", id, err)
	}
	return nil
}

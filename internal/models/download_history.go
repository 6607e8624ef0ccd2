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

var ErrDownloadHistoryNotFound = errors.New("download history not found")

// DownloadClient identifies which client owns a download handle.
type DownloadClient string

const (
	ClientQBittorrent DownloadClient = "qbittorrent"
	ClientSABnzbd     DownloadClient = "sabnzbd"
	ClientDirect      DownloadClient = "direct"
)

// DownloadHistory records one selected candidate for a request: its client
// handles, its lifecycle, and the absolute path captured at completion time.
// That path is the authoritative import source for organization retries.
type DownloadHistory struct {
	ID               int64          `json:"id"`
	RequestID        int64          `json:"requestId"`
	Selected         bool           `json:"selected"`
	DownloadClient   DownloadClient `json:"downloadClient"`
	DownloadClientID *string        `json:"downloadClientId,omitempty"`
	TorrentHash      *string        `json:"torrentHash,omitempty"`
	NzbID            *string        `json:"nzbId,omitempty"`
	TorrentName      *string        `json:"torrentName,omitempty"`
	DownloadPath     *string        `json:"downloadPath,omitempty"`
	IndexerName      *string        `json:"indexerName,omitempty"`
	TorrentURL       *string        `json:"torrentUrl,omitempty"`
	DownloadStatus   string         `json:"downloadStatus"`
	DownloadError    *string        `json:"downloadError,omitempty"`
	StartedAt        *time.Time     `json:"startedAt,omitempty"`
	CompletedAt      *time.Time     `json:"completedAt,omitempty"`
	CreatedAt        time.Time      `json:"createdAt"`
	UpdatedAt        time.Time      `json:"updatedAt"`
}

// DownloadHistoryStore manages download history rows.
type DownloadHistoryStore struct {
	db database.Querier
}

func NewDownloadHistoryStore(db database.Querier) *DownloadHistoryStore {
	return &DownloadHistoryStore{db: db}
}

const downloadHistoryColumns = `
	id, request_id, selected, download_client, download_client_id,
	torrent_hash, nzb_id, torrent_name, download_path, indexer_name,
	torrent_url, download_status, download_error, started_at, completed_at,
	created_at, updated_at
`

func scanDownloadHistory(row interface{ Scan(...any) error }) (*DownloadHistory, error) {
	h := &DownloadHistory{}
	err := row.Scan(
		&h.ID, &h.RequestID, &h.Selected, &h.DownloadClient, &h.DownloadClientID,
		&h.TorrentHash, &h.NzbID, &h.TorrentName, &h.DownloadPath, &h.IndexerName,
		&h.TorrentURL, &h.DownloadStatus, &h.DownloadError, &h.StartedAt, &h.CompletedAt,
		&h.CreatedAt, &h.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return h, nil
}

// CreateSelected inserts a new selected candidate for the request, demoting
// any previously selected row first so the single-selected invariant holds.
func (s *DownloadHistoryStore) CreateSelected(ctx context.Context, h *DownloadHistory) (*DownloadHistory, error) {
	demote := `UPDATE download_history SET selected = 0, updated_at = CURRENT_TIMESTAMP WHERE request_id = ? AND selected = 1`
	if _, err := s.db.ExecContext(ctx, demote, h.RequestID); err != nil {
		return nil, fmt.Errorf("failed to demote previous selection: %w", err)
	}

	insert := `
		INSERT INTO download_history (
			request_id, selected, download_client, download_client_id,
			torrent_hash, nzb_id, torrent_name, indexer_name, torrent_url,
			download_status, started_at
		)
		VALUES (?, 1, ?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
	`
	result, err := s.db.ExecContext(ctx, insert,
		h.RequestID, h.DownloadClient, h.DownloadClientID,
		h.TorrentHash, h.NzbID, h.TorrentName, h.IndexerName, h.TorrentURL,
		h.DownloadStatus)
	if err != nil {
		if isUniqueConstraintError(err) {
			return nil, fmt.Errorf("request already has a selected download: %w", err)
		}
		return nil, fmt.Errorf("failed to create download history: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to get last insert ID: %w", err)
	}
	return s.Get(ctx, id)
}

func (s *DownloadHistoryStore) Get(ctx context.Context, id int64) (*DownloadHistory, error) {
	query := `SELECT ` + downloadHistoryColumns + ` FROM download_history WHERE id = ?`
	h, err := scanDownloadHistory(s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrDownloadHistoryNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get download history: %w", err)
	}
	return h, nil
}

// GetSelected returns the request's current selected candidate. The most
// recent selected row is the reference for organization retries.
func (s *DownloadHistoryStore) GetSelected(ctx context.Context, requestID int64) (*DownloadHistory, error) {
	query := `
		SELECT ` + downloadHistoryColumns + `
		FROM download_history
		WHERE request_id = ? AND selected = 1
		ORDER BY created_at DESC
		LIMIT 1
	`
	h, err := scanDownloadHistory(s.db.QueryRowContext(ctx, query, requestID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrDownloadHistoryNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get selected download history: %w", err)
	}
	return h, nil
}

// SetClientHandle records the id a download client assigned after handoff.
func (s *DownloadHistoryStore) SetClientHandle(ctx context.Context, id int64, clientID string, status string) error {
	query := `
		UPDATE download_history
		SET download_client_id = ?, download_status = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`
	if _, err := s.db.ExecContext(ctx, query, clientID, status, id); err != nil {
		return fmt.Errorf("failed to set client handle: %w", err)
	}
	return nil
}

// SetStatus updates the client-reported download state.
func (s *DownloadHistoryStore) SetStatus(ctx context.Context, id int64, status string) error {
	query := `UPDATE download_history SET download_status = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`
	if _, err := s.db.ExecContext(ctx, query, status, id); err != nil {
		return fmt.Errorf("failed to set download status: %w", err)
	}
	return nil
}

// MarkCompleted persists the final save path and torrent name reported by the
// client. downloadPath is the authoritative fallback for later imports.
func (s *DownloadHistoryStore) MarkCompleted(ctx context.Context, id int64, downloadPath, torrentName string) error {
	query := `
		UPDATE download_history
		SET download_status = 'completed', download_path = ?, torrent_name = ?,
		    completed_at = CURRENT_TIMESTAMP, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`
	if _, err := s.db.ExecContext(ctx, query, downloadPath, torrentName, id); err != nil {
		return fmt.Errorf("failed to mark download completed: %w", err)
	}
	return nil
}

// MarkFailed records the client's error message.
func (s *DownloadHistoryStore) MarkFailed(ctx context.Context, id int64, message string) error {
	query := `
		UPDATE download_history
		SET download_status = 'failed', download_error = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`
	if _, err := s.db.ExecContext(ctx, query, message, id); err != nil {
		return fmt.Errorf("failed to mark download failed: %w", err)
	}
	return nil
}

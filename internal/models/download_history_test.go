// Copyright (c) 2025, the listenarr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package models_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/listenarr/listenarr/internal/database"
	"github.com/listenarr/listenarr/internal/models"
)

func TestDownloadHistorySingleSelected(t *testing.T) {
	ctx := context.Background()

	db, err := database.NewForTest()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	requests := models.NewRequestStore(db)
	audiobooks := models.NewAudiobookStore(db)
	history := models.NewDownloadHistoryStore(db)

	book, err := audiobooks.Create(ctx, &models.Audiobook{Title: "Dune", Author: "Frank Herbert"})
	require.NoError(t, err)
	req, err := requests.Create(ctx, 1, models.RequestTypeAudiobook, book.ID)
	require.NoError(t, err)

	indexer := "indexer-a"
	first, err := history.CreateSelected(ctx, &models.DownloadHistory{
		RequestID:      req.ID,
		DownloadClient: models.ClientQBittorrent,
		IndexerName:    &indexer,
		DownloadStatus: "selected",
	})
	require.NoError(t, err)
	require.True(t, first.Selected)

	second, err := history.CreateSelected(ctx, &models.DownloadHistory{
		RequestID:      req.ID,
		DownloadClient: models.ClientSABnzbd,
		DownloadStatus: "selected",
	})
	require.NoError(t, err)

	selected, err := history.GetSelected(ctx, req.ID)
	require.NoError(t, err)
	require.Equal(t, second.ID, selected.ID)

	// The first row survives as history, demoted.
	old, err := history.Get(ctx, first.ID)
	require.NoError(t, err)
	require.False(t, old.Selected)
}

func TestDownloadHistoryCompletionPath(t *testing.T) {
	ctx := context.Background()

	db, err := database.NewForTest()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	requests := models.NewRequestStore(db)
	audiobooks := models.NewAudiobookStore(db)
	history := models.NewDownloadHistoryStore(db)

	book, err := audiobooks.Create(ctx, &models.Audiobook{Title: "Dune", Author: "Frank Herbert"})
	require.NoError(t, err)
	req, err := requests.Create(ctx, 1, models.RequestTypeAudiobook, book.ID)
	require.NoError(t, err)

	hist, err := history.CreateSelected(ctx, &models.DownloadHistory{
		RequestID:      req.ID,
		DownloadClient: models.ClientQBittorrent,
		DownloadStatus: "selected",
	})
	require.NoError(t, err)

	require.NoError(t, history.SetClientHandle(ctx, hist.ID, "abc123hash", "downloading"))
	require.NoError(t, history.MarkCompleted(ctx, hist.ID, "/downloads/Dune", "Dune [m4b]"))

	got, err := history.GetSelected(ctx, req.ID)
	require.NoError(t, err)
	require.Equal(t, "completed", got.DownloadStatus)
	require.NotNil(t, got.DownloadPath)
	require.Equal(t, "/downloads/Dune", *got.DownloadPath)
	require.NotNil(t, got.TorrentName)
	require.Equal(t, "Dune [m4b]", *got.TorrentName)
	require.NotNil(t, got.CompletedAt)
}

func TestDownloadHistoryGetSelectedNotFound(t *testing.T) {
	ctx := context.Background()

	db, err := database.NewForTest()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	history := models.NewDownloadHistoryStore(db)

	_, err = history.GetSelected(ctx, 9999)
	require.ErrorIs(t, err, models.ErrDownloadHistoryNotFound)
}

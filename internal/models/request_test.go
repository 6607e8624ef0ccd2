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

func newTestStores(t *testing.T) (*models.RequestStore, *models.AudiobookStore) {
	t.Helper()

	db, err := database.NewForTest()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	return models.NewRequestStore(db), models.NewAudiobookStore(db)
}

func createRequest(t *testing.T, requests *models.RequestStore, audiobooks *models.AudiobookStore) *models.Request {
	t.Helper()

	book, err := audiobooks.Create(context.Background(), &models.Audiobook{
		Title:  "Project Hail Mary",
		Author: "Andy Weir",
	})
	require.NoError(t, err)

	req, err := requests.Create(context.Background(), 1, models.RequestTypeAudiobook, book.ID)
	require.NoError(t, err)
	require.Equal(t, models.StatusAwaitingSearch, req.Status)
	return req
}

func TestRequestTransition(t *testing.T) {
	ctx := context.Background()
	requests, audiobooks := newTestStores(t)
	req := createRequest(t, requests, audiobooks)

	err := requests.Transition(ctx, req.ID,
		[]models.RequestStatus{models.StatusAwaitingSearch},
		models.StatusAwaitingDownload, nil)
	require.NoError(t, err)

	got, err := requests.Get(ctx, req.ID)
	require.NoError(t, err)
	require.Equal(t, models.StatusAwaitingDownload, got.Status)
}

func TestRequestTransitionRefusedFromWrongState(t *testing.T) {
	ctx := context.Background()
	requests, audiobooks := newTestStores(t)
	req := createRequest(t, requests, audiobooks)

	err := requests.Transition(ctx, req.ID,
		[]models.RequestStatus{models.StatusDownloading},
		models.StatusAwaitingImport, nil)
	require.ErrorIs(t, err, models.ErrStateConflict)

	got, err := requests.Get(ctx, req.ID)
	require.NoError(t, err)
	require.Equal(t, models.StatusAwaitingSearch, got.Status)
}

func TestRequestTransitionRefusedWhenDeleted(t *testing.T) {
	ctx := context.Background()
	requests, audiobooks := newTestStores(t)
	req := createRequest(t, requests, audiobooks)

	require.NoError(t, requests.SoftDelete(ctx, req.ID))

	err := requests.Transition(ctx, req.ID,
		[]models.RequestStatus{models.StatusAwaitingSearch},
		models.StatusAwaitingDownload, nil)
	require.ErrorIs(t, err, models.ErrStateConflict)
}

func TestRequestTransitionPatchAtomically(t *testing.T) {
	ctx := context.Background()
	requests, audiobooks := newTestStores(t)
	req := createRequest(t, requests, audiobooks)

	msg := "no candidates found"
	err := requests.Transition(ctx, req.ID,
		[]models.RequestStatus{models.StatusAwaitingSearch},
		models.StatusAwaitingSearch, &models.RequestPatch{
			ErrorMessage:              &msg,
			IncrementDownloadAttempts: true,
		})
	require.NoError(t, err)

	got, err := requests.Get(ctx, req.ID)
	require.NoError(t, err)
	require.Equal(t, 1, got.DownloadAttempts)
	require.NotNil(t, got.ErrorMessage)
	require.Equal(t, msg, *got.ErrorMessage)

	err = requests.Transition(ctx, req.ID,
		[]models.RequestStatus{models.StatusAwaitingSearch},
		models.StatusAwaitingDownload, &models.RequestPatch{ClearError: true})
	require.NoError(t, err)

	got, err = requests.Get(ctx, req.ID)
	require.NoError(t, err)
	require.Nil(t, got.ErrorMessage)
}

func TestRequestProgressMonotone(t *testing.T) {
	ctx := context.Background()
	requests, audiobooks := newTestStores(t)
	req := createRequest(t, requests, audiobooks)

	err := requests.Transition(ctx, req.ID,
		[]models.RequestStatus{models.StatusAwaitingSearch},
		models.StatusDownloading, nil)
	require.NoError(t, err)

	require.NoError(t, requests.UpdateProgress(ctx, req.ID, 40))
	require.NoError(t, requests.UpdateProgress(ctx, req.ID, 25))

	got, err := requests.Get(ctx, req.ID)
	require.NoError(t, err)
	require.Equal(t, 40, got.Progress)
}

func TestRequestProgressFrozenWhenTerminal(t *testing.T) {
	ctx := context.Background()
	requests, audiobooks := newTestStores(t)
	req := createRequest(t, requests, audiobooks)

	err := requests.Transition(ctx, req.ID,
		[]models.RequestStatus{models.StatusAwaitingSearch},
		models.StatusFailed, nil)
	require.NoError(t, err)

	require.NoError(t, requests.UpdateProgress(ctx, req.ID, 80))

	got, err := requests.Get(ctx, req.ID)
	require.NoError(t, err)
	require.Equal(t, 0, got.Progress)
}

func TestRequestGetActive(t *testing.T) {
	ctx := context.Background()
	requests, audiobooks := newTestStores(t)
	req := createRequest(t, requests, audiobooks)

	got, err := requests.GetActive(ctx, req.ID)
	require.NoError(t, err)
	require.Equal(t, req.ID, got.ID)

	require.NoError(t, requests.Cancel(ctx, req.ID))

	_, err = requests.GetActive(ctx, req.ID)
	require.ErrorIs(t, err, models.ErrStateConflict)
}

func TestRequestRestartFromWarn(t *testing.T) {
	ctx := context.Background()
	requests, audiobooks := newTestStores(t)
	req := createRequest(t, requests, audiobooks)

	err := requests.Transition(ctx, req.ID,
		[]models.RequestStatus{models.StatusAwaitingSearch},
		models.StatusWarn, &models.RequestPatch{IncrementImportAttempts: true})
	require.NoError(t, err)

	require.NoError(t, requests.Restart(ctx, req.ID))

	got, err := requests.Get(ctx, req.ID)
	require.NoError(t, err)
	require.Equal(t, models.StatusAwaitingImport, got.Status)
	require.Equal(t, 0, got.ImportAttempts)

	// Restart only applies to warn.
	require.ErrorIs(t, requests.Restart(ctx, req.ID), models.ErrStateConflict)
}

func TestRequestCountByStatus(t *testing.T) {
	ctx := context.Background()
	requests, audiobooks := newTestStores(t)

	first := createRequest(t, requests, audiobooks)
	second := createRequest(t, requests, audiobooks)

	err := requests.Transition(ctx, second.ID,
		[]models.RequestStatus{models.StatusAwaitingSearch},
		models.StatusDownloading, nil)
	require.NoError(t, err)

	counts, err := requests.CountByStatus(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, counts[models.StatusAwaitingSearch])
	require.Equal(t, 1, counts[models.StatusDownloading])

	require.NoError(t, requests.SoftDelete(ctx, first.ID))

	counts, err = requests.CountByStatus(ctx)
	require.NoError(t, err)
	require.Equal(t, 0, counts[models.StatusAwaitingSearch])
}

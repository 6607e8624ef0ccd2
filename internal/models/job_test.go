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

func newJobStore(t *testing.T) *models.JobStore {
	t.Helper()

	db, err := database.NewForTest()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	return models.NewJobStore(db)
}

func TestJobCreateIdempotent(t *testing.T) {
	ctx := context.Background()
	jobs := newJobStore(t)

	first, err := jobs.Create(ctx, &models.Job{
		BrokerJobID: "task-1",
		Type:        "search_indexers",
		MaxAttempts: 3,
		Payload:     `{"requestId":1}`,
	})
	require.NoError(t, err)

	// Re-creating for the same broker id keeps the original row.
	second, err := jobs.Create(ctx, &models.Job{
		BrokerJobID: "task-1",
		Type:        "search_indexers",
		MaxAttempts: 5,
		Payload:     `{}`,
	})
	require.NoError(t, err)
	require.Equal(t, first.ID, second.ID)
	require.Equal(t, 3, second.MaxAttempts)
}

func TestJobLifecycle(t *testing.T) {
	ctx := context.Background()
	jobs := newJobStore(t)

	_, err := jobs.Create(ctx, &models.Job{
		BrokerJobID: "task-2",
		Type:        "organize_files",
		MaxAttempts: 3,
	})
	require.NoError(t, err)

	require.NoError(t, jobs.MarkActive(ctx, "task-2", 1))

	got, err := jobs.GetByBrokerID(ctx, "task-2")
	require.NoError(t, err)
	require.Equal(t, models.JobStatusActive, got.Status)
	require.Equal(t, 1, got.Attempts)
	require.NotNil(t, got.StartedAt)

	require.NoError(t, jobs.MarkRetrying(ctx, "task-2", "client timeout"))

	got, err = jobs.GetByBrokerID(ctx, "task-2")
	require.NoError(t, err)
	require.Equal(t, models.JobStatusPending, got.Status)

	require.NoError(t, jobs.MarkActive(ctx, "task-2", 2))
	require.NoError(t, jobs.MarkCompleted(ctx, "task-2", `{"moved":4}`))

	got, err = jobs.GetByBrokerID(ctx, "task-2")
	require.NoError(t, err)
	require.Equal(t, models.JobStatusCompleted, got.Status)
	require.Equal(t, 2, got.Attempts)
	require.Nil(t, got.ErrorMessage)
	require.NotNil(t, got.Result)
	require.NotNil(t, got.CompletedAt)
}

func TestJobMarkActiveKeepsHighestAttempt(t *testing.T) {
	ctx := context.Background()
	jobs := newJobStore(t)

	_, err := jobs.Create(ctx, &models.Job{BrokerJobID: "task-3", Type: "monitor_download"})
	require.NoError(t, err)

	require.NoError(t, jobs.MarkActive(ctx, "task-3", 2))
	require.NoError(t, jobs.MarkActive(ctx, "task-3", 1))

	got, err := jobs.GetByBrokerID(ctx, "task-3")
	require.NoError(t, err)
	require.Equal(t, 2, got.Attempts)
}

func TestJobResetForRetry(t *testing.T) {
	ctx := context.Background()
	jobs := newJobStore(t)

	_, err := jobs.Create(ctx, &models.Job{BrokerJobID: "task-4", Type: "search_indexers"})
	require.NoError(t, err)

	require.NoError(t, jobs.MarkActive(ctx, "task-4", 3))
	require.NoError(t, jobs.MarkFailed(ctx, "task-4", "boom", "stack"))
	require.NoError(t, jobs.ResetForRetry(ctx, "task-4"))

	got, err := jobs.GetByBrokerID(ctx, "task-4")
	require.NoError(t, err)
	require.Equal(t, models.JobStatusPending, got.Status)
	require.Equal(t, 0, got.Attempts)
	require.Nil(t, got.ErrorMessage)
	require.Nil(t, got.StartedAt)
	require.Nil(t, got.CompletedAt)
}

func TestJobNotFound(t *testing.T) {
	jobs := newJobStore(t)

	_, err := jobs.GetByBrokerID(context.Background(), "missing")
	require.ErrorIs(t, err, models.ErrJobNotFound)
}

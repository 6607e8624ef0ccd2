// Copyright (c) 2025, the listenarr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package models_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/listenarr/listenarr/internal/database"
	"github.com/listenarr/listenarr/internal/models"
)

func newScheduledJobStore(t *testing.T) *models.ScheduledJobStore {
	t.Helper()

	db, err := database.NewForTest()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	return models.NewScheduledJobStore(db)
}

func TestScheduledJobSeedPreservesUserEdits(t *testing.T) {
	ctx := context.Background()
	store := newScheduledJobStore(t)

	require.NoError(t, store.Seed(ctx, "RSS Monitor", "monitor_rss_feeds", "*/15 * * * *", true))

	all, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)

	// User disables and changes the schedule.
	require.NoError(t, store.SetEnabled(ctx, all[0].ID, false))
	require.NoError(t, store.UpdateSchedule(ctx, all[0].ID, "*/45 * * * *"))

	// Next startup re-seeds; the user's edits stay.
	require.NoError(t, store.Seed(ctx, "RSS Monitor", "monitor_rss_feeds", "*/15 * * * *", true))

	got, err := store.Get(ctx, all[0].ID)
	require.NoError(t, err)
	require.False(t, got.Enabled)
	require.Equal(t, "*/45 * * * *", got.Schedule)
}

func TestScheduledJobRecordRun(t *testing.T) {
	ctx := context.Background()
	store := newScheduledJobStore(t)

	require.NoError(t, store.Seed(ctx, "Cleanup Seeded", "cleanup_seeded_torrents", "*/30 * * * *", true))

	all, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	require.Nil(t, all[0].LastRun)

	now := time.Now().UTC().Truncate(time.Second)
	require.NoError(t, store.RecordRun(ctx, all[0].ID, "broker-42", now))

	got, err := store.Get(ctx, all[0].ID)
	require.NoError(t, err)
	require.NotNil(t, got.LastRun)
	require.NotNil(t, got.LastRunJobID)
	require.Equal(t, "broker-42", *got.LastRunJobID)
	require.Equal(t, fmt.Sprintf("scheduled-%d", got.ID), got.RepeatableKey())
}

func TestScheduledJobListEnabled(t *testing.T) {
	ctx := context.Background()
	store := newScheduledJobStore(t)

	require.NoError(t, store.Seed(ctx, "Library Scan", "plex_library_scan", "0 */6 * * *", false))
	require.NoError(t, store.Seed(ctx, "Shelves Sync", "sync_goodreads_shelves", "0 */7 * * *", true))

	enabled, err := store.ListEnabled(ctx)
	require.NoError(t, err)
	require.Len(t, enabled, 1)
	require.Equal(t, "Shelves Sync", enabled[0].Name)
}

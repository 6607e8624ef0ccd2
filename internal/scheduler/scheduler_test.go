// Copyright (c) 2025, the listenarr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package scheduler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/listenarr/listenarr/internal/models"
)

func TestDefaultJobsHaveValidSchedules(t *testing.T) {
	require.Len(t, defaultJobs, 8)

	seen := map[string]struct{}{}
	for _, d := range defaultJobs {
		assert.NoError(t, ValidateCronSpec(d.Schedule), d.Name)

		_, dup := seen[d.Name]
		assert.False(t, dup, "duplicate default job name %s", d.Name)
		seen[d.Name] = struct{}{}
	}
}

func TestOverdue(t *testing.T) {
	s := &Scheduler{}
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	never := &models.ScheduledJob{Schedule: "*/15 * * * *"}
	assert.True(t, s.overdue(never, now), "a job that never ran is overdue")

	recent := now.Add(-5 * time.Minute)
	fresh := &models.ScheduledJob{Schedule: "*/15 * * * *", LastRun: &recent}
	assert.False(t, s.overdue(fresh, now))

	stale := now.Add(-20 * time.Minute)
	missed := &models.ScheduledJob{Schedule: "*/15 * * * *", LastRun: &stale}
	assert.True(t, s.overdue(missed, now))

	// Daily job that last ran yesterday evening is not yet overdue at noon.
	yesterday := now.Add(-16 * time.Hour)
	daily := &models.ScheduledJob{Schedule: "0 0 * * *", LastRun: &yesterday}
	assert.False(t, s.overdue(daily, now))
}

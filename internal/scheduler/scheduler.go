// Copyright (c) 2025, the listenarr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package scheduler owns the recurring-job definitions: seeding the default
// schedule table, registering cron entries with the broker, catching up
// overdue jobs at startup, and manual triggering.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/listenarr/listenarr/internal/jobs"
	"github.com/listenarr/listenarr/internal/models"
	"github.com/listenarr/listenarr/internal/queue"
)

// defaultJob is one row of the seeded schedule.
type defaultJob struct {
	Name     string
	Type     string
	Schedule string
	Enabled  bool
}

// defaultJobs is the schedule seeded on first startup. Users can change cron
// expressions and enabled flags afterwards; seeding never overwrites them.
var defaultJobs = []defaultJob{
	{Name: "Library Scan", Type: jobs.TypePlexLibraryScan, Schedule: "0 */6 * * *", Enabled: false},
	{Name: "Recently Added Check", Type: jobs.TypeRecentlyAdded, Schedule: "*/5 * * * *", Enabled: true},
	{Name: "Metadata Refresh", Type: jobs.TypeRefreshMetadata, Schedule: "0 0 * * *", Enabled: false},
	{Name: "Retry Missing Search", Type: jobs.TypeRetryMissingSearch, Schedule: "0 0 * * *", Enabled: true},
	{Name: "Retry Failed Imports", Type: jobs.TypeRetryFailedImports, Schedule: "0 */6 * * *", Enabled: true},
	{Name: "Cleanup Seeded", Type: jobs.TypeCleanupSeeded, Schedule: "*/30 * * * *", Enabled: true},
	{Name: "RSS Monitor", Type: jobs.TypeMonitorRSSFeeds, Schedule: "*/15 * * * *", Enabled: true},
	{Name: "Shelves Sync", Type: jobs.TypeSyncShelves, Schedule: "0 */6 * * *", Enabled: true},
}

// Scheduler bridges the scheduled_jobs table and the broker's cron registry.
type Scheduler struct {
	store  *models.ScheduledJobStore
	broker *queue.Broker
}

func New(store *models.ScheduledJobStore, broker *queue.Broker) *Scheduler {
	return &Scheduler{store: store, broker: broker}
}

// Start seeds defaults, registers every enabled definition with the broker,
// and runs anything overdue. Registration failures for individual rows are
// logged and skipped so one bad cron expression cannot block startup.
func (s *Scheduler) Start(ctx context.Context) error {
	s.seedDefaults(ctx)

	enabled, err := s.store.ListEnabled(ctx)
	if err != nil {
		return fmt.Errorf("failed to list enabled scheduled jobs: %w", err)
	}

	registered := 0
	for _, job := range enabled {
		if err := s.register(job); err != nil {
			log.Error().Err(err).Str("name", job.Name).Msg("failed to register scheduled job")
			continue
		}
		registered++

		if s.overdue(job, time.Now()) {
			log.Info().Str("name", job.Name).Msg("scheduled job overdue, triggering now")
			if _, err := s.trigger(ctx, job); err != nil {
				log.Error().Err(err).Str("name", job.Name).Msg("failed to trigger overdue job")
			}
		}
	}

	log.Info().Int("registered", registered).Int("enabled", len(enabled)).
		Msg("scheduler started")
	return nil
}

// seedDefaults inserts any missing default rows. Each row is independent:
// one failure is logged and the rest still seed.
func (s *Scheduler) seedDefaults(ctx context.Context) {
	for _, d := range defaultJobs {
		if err := s.store.Seed(ctx, d.Name, d.Type, d.Schedule, d.Enabled); err != nil {
			log.Error().Err(err).Str("name", d.Name).Msg("failed to seed scheduled job")
		}
	}
}

// register validates the cron expression and adds the broker entry.
func (s *Scheduler) register(job *models.ScheduledJob) error {
	if err := ValidateCronSpec(job.Schedule); err != nil {
		return err
	}
	if err := s.broker.RegisterRepeatable(job.RepeatableKey(), job.Schedule, job.Type,
		jobs.RecurringPayload{ScheduledJobID: job.ID}); err != nil {
		return err
	}

	next := time.Now().Add(EstimateInterval(job.Schedule))
	if err := s.store.SetNextRun(context.Background(), job.ID, next); err != nil {
		log.Warn().Err(err).Str("name", job.Name).Msg("failed to store next run estimate")
	}
	return nil
}

// overdue reports whether the job missed at least one full interval, which
// happens when the process was down across a scheduled firing.
func (s *Scheduler) overdue(job *models.ScheduledJob, now time.Time) bool {
	if job.LastRun == nil {
		return true
	}
	return now.Sub(*job.LastRun) >= EstimateInterval(job.Schedule)
}

// trigger enqueues the job immediately and records the run on its row.
func (s *Scheduler) trigger(ctx context.Context, job *models.ScheduledJob) (string, error) {
	brokerID, err := s.broker.Enqueue(ctx, job.Type,
		jobs.RecurringPayload{ScheduledJobID: job.ID}, queue.EnqueueOptions{})
	if err != nil {
		return "", fmt.Errorf("failed to enqueue %s: %w", job.Type, err)
	}
	if err := s.store.RecordRun(ctx, job.ID, brokerID, time.Now()); err != nil {
		return brokerID, err
	}
	return brokerID, nil
}

// TriggerNow runs a scheduled job on demand, regardless of its cron schedule
// or enabled flag.
func (s *Scheduler) TriggerNow(ctx context.Context, id int64) (string, error) {
	job, err := s.store.Get(ctx, id)
	if err != nil {
		return "", err
	}
	return s.trigger(ctx, job)
}

// SetEnabled flips a definition on or off. Disabling unregisters the broker
// entry before the row update so a fired tick cannot slip through after the
// flag reads false; enabling writes the row first so a registration failure
// leaves a consistent, retriable state.
func (s *Scheduler) SetEnabled(ctx context.Context, id int64, enabled bool) error {
	job, err := s.store.Get(ctx, id)
	if err != nil {
		return err
	}

	if !enabled {
		if err := s.broker.UnregisterRepeatable(job.RepeatableKey()); err != nil {
			return err
		}
		return s.store.SetEnabled(ctx, id, false)
	}

	if err := s.store.SetEnabled(ctx, id, true); err != nil {
		return err
	}
	job.Enabled = true
	return s.register(job)
}

// UpdateSchedule swaps the cron expression for a definition, re-registering
// the broker entry when the job is enabled.
func (s *Scheduler) UpdateSchedule(ctx context.Context, id int64, spec string) error {
	if err := ValidateCronSpec(spec); err != nil {
		return err
	}

	job, err := s.store.Get(ctx, id)
	if err != nil {
		return err
	}

	if job.Enabled {
		if err := s.broker.UnregisterRepeatable(job.RepeatableKey()); err != nil {
			return err
		}
	}
	if err := s.store.UpdateSchedule(ctx, id, spec); err != nil {
		return err
	}
	if job.Enabled {
		job.Schedule = spec
		return s.register(job)
	}
	return nil
}

// List returns all definitions for display.
func (s *Scheduler) List(ctx context.Context) ([]*models.ScheduledJob, error) {
	return s.store.List(ctx)
}

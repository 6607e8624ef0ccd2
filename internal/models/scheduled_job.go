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

var ErrScheduledJobNotFound = errors.New("scheduled job not found")

// ScheduledJob is a recurring-job definition registered with the broker.
type ScheduledJob struct {
	ID           int64      `json:"id"`
	Name         string     `json:"name"`
	Type         string     `json:"type"`
	Schedule     string     `json:"schedule"`
	Enabled      bool       `json:"enabled"`
	Payload      string     `json:"payload"`
	LastRun      *time.Time `json:"lastRun,omitempty"`
	LastRunJobID *string    `json:"lastRunJobId,omitempty"`
	NextRun      *time.Time `json:"nextRun,omitempty"`
	CreatedAt    time.Time  `json:"createdAt"`
	UpdatedAt    time.Time  `json:"updatedAt"`
}

// RepeatableKey is the broker registration key for this definition.
func (j *ScheduledJob) RepeatableKey() string {
	return fmt.Sprintf("scheduled-%d", j.ID)
}

// ScheduledJobStore manages recurring-job definitions.
type ScheduledJobStore struct {
	db database.Querier
}

func NewScheduledJobStore(db database.Querier) *ScheduledJobStore {
	return &ScheduledJobStore{db: db}
}

const scheduledJobColumns = `
	id, name, type, schedule, enabled, payload,
	last_run, last_run_job_id, next_run, created_at, updated_at
`

func scanScheduledJob(row interface{ Scan(...any) error }) (*ScheduledJob, error) {
	j := &ScheduledJob{}
	err := row.Scan(
		&j.ID, &j.Name, &j.Type, &j.Schedule, &j.Enabled, &j.Payload,
		&j.LastRun, &j.LastRunJobID, &j.NextRun, &j.CreatedAt, &j.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return j, nil
}

// Seed inserts a definition if no row with the same name exists yet. Existing
// rows keep their user-modified schedule and enabled flag.
func (s *ScheduledJobStore) Seed(ctx context.Context, name, jobType, schedule string, enabled bool) error {
	query := `
		INSERT INTO scheduled_jobs (name, type, schedule, enabled)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (name) DO NOTHING
	`
	if _, err := s.db.ExecContext(ctx, query, name, jobType, schedule, enabled); err != nil {
		if isUniqueConstraintError(err) {
			return nil
		}
		return fmt.Errorf("failed to seed scheduled job %s: %w", name, err)
	}
	return nil
}

func (s *ScheduledJobStore) Get(ctx context.Context, id int64) (*ScheduledJob, error) {
	query := `SELECT ` + scheduledJobColumns + ` FROM scheduled_jobs WHERE id = ?`
	j, err := scanScheduledJob(s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrScheduledJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get scheduled job: %w", err)
	}
	return j, nil
}

func (s *ScheduledJobStore) List(ctx context.Context) ([]*ScheduledJob, error) {
	query := `SELECT ` + scheduledJobColumns + ` FROM scheduled_jobs ORDER BY id ASC`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list scheduled jobs: %w", err)
	}
	defer rows.Close()

	var out []*ScheduledJob
	for rows.Next() {
		j, err := scanScheduledJob(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan scheduled job: %w", err)
		}
		out = append(out, j)
	}
	return out, rows.Err()
}

func (s *ScheduledJobStore) ListEnabled(ctx context.Context) ([]*ScheduledJob, error) {
	query := `SELECT ` + scheduledJobColumns + ` FROM scheduled_jobs WHERE enabled = 1 ORDER BY id ASC`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list enabled scheduled jobs: %w", err)
	}
	defer rows.Close()

	var out []*ScheduledJob
	for rows.Next() {
		j, err := scanScheduledJob(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan scheduled job: %w", err)
		}
		out = append(out, j)
	}
	return out, rows.Err()
}

// RecordRun atomically updates last_run and last_run_job_id after a manual or
// overdue trigger.
func (s *ScheduledJobStore) RecordRun(ctx context.Context, id int64, brokerJobID string, at time.Time) error {
	query := `
		UPDATE scheduled_jobs
		SET last_run = ?, last_run_job_id = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`
	if _, err := s.db.ExecContext(ctx, query, at.UTC(), brokerJobID, id); err != nil {
		return fmt.Errorf("failed to record scheduled job run: %w", err)
	}
	return nil
}

// SetNextRun stores the estimated next firing time for display.
func (s *ScheduledJobStore) SetNextRun(ctx context.Context, id int64, at time.Time) error {
	query := `UPDATE scheduled_jobs SET next_run = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`
	if _, err := s.db.ExecContext(ctx, query, at.UTC(), id); err != nil {
		return fmt.Errorf("failed to set scheduled job next run: %w", err)
	}
	return nil
}

// UpdateSchedule replaces the cron expression for a definition.
func (s *ScheduledJobStore) UpdateSchedule(ctx context.Context, id int64, schedule string) error {
	query := `UPDATE scheduled_jobs SET schedule = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`
	result, err := s.db.ExecContext(ctx, query, schedule, id)
	if err != nil {
		return fmt.Errorf("failed to update scheduled job schedule: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return ErrScheduledJobNotFound
	}
	return nil
}

// SetEnabled flips the enabled flag. Broker registration ordering around this
// write is the scheduler's responsibility: unregister before disable, enable
// before register.
func (s *ScheduledJobStore) SetEnabled(ctx context.Context, id int64, enabled bool) error {
	query := `UPDATE scheduled_jobs SET enabled = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`
	result, err := s.db.ExecContext(ctx, query, enabled, id)
	if err != nil {
		return fmt.Errorf("failed to set scheduled job enabled: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return ErrScheduledJobNotFound
	}
	return nil
}

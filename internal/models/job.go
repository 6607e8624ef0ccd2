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

var ErrJobNotFound = errors.New("job not found")

// JobStatus tracks the broker-side lifecycle of one unit of work.
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusActive    JobStatus = "active"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusStuck     JobStatus = "stuck"
	JobStatusCancelled JobStatus = "cancelled"
)

// Job is the durable audit record of one scheduled unit of work. The broker
// owns queue ordering; this table is cross-reference and audit only.
type Job struct {
	ID           int64      `json:"id"`
	BrokerJobID  string     `json:"brokerJobId"`
	RequestID    *int64     `json:"requestId,omitempty"`
	Type         string     `json:"type"`
	Status       JobStatus  `json:"status"`
	Priority     int        `json:"priority"`
	Attempts     int        `json:"attempts"`
	MaxAttempts  int        `json:"maxAttempts"`
	Payload      string     `json:"payload"`
	Result       *string    `json:"result,omitempty"`
	ErrorMessage *string    `json:"errorMessage,omitempty"`
	StackTrace   *string    `json:"stackTrace,omitempty"`
	CreatedAt    time.Time  `json:"createdAt"`
	StartedAt    *time.Time `json:"startedAt,omitempty"`
	CompletedAt  *time.Time `json:"completedAt,omitempty"`
	UpdatedAt    time.Time  `json:"updatedAt"`
}

// JobStore manages job audit rows.
type JobStore struct {
	db database.Querier
}

func NewJobStore(db database.Querier) *JobStore {
	return &JobStore{db: db}
}

const jobColumns = `
	id, broker_job_id, request_id, type, status, priority, attempts,
	max_attempts, payload, result, error_message, stack_trace,
	created_at, started_at, completed_at, updated_at
`

func scanJob(row interface{ Scan(...any) error }) (*Job, error) {
	j := &Job{}
	err := row.Scan(
		&j.ID, &j.BrokerJobID, &j.RequestID, &j.Type, &j.Status, &j.Priority,
		&j.Attempts, &j.MaxAttempts, &j.Payload, &j.Result, &j.ErrorMessage,
		&j.StackTrace, &j.CreatedAt, &j.StartedAt, &j.CompletedAt, &j.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return j, nil
}

// Create inserts the audit row for a freshly enqueued broker job. Exactly one
// row exists per broker job id; re-creating for a known id is a no-op.
func (s *JobStore) Create(ctx context.Context, job *Job) (*Job, error) {
	query := `
		INSERT INTO jobs (broker_job_id, request_id, type, status, priority, max_attempts, payload)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (broker_job_id) DO NOTHING
	`
	if _, err := s.db.ExecContext(ctx, query,
		job.BrokerJobID, job.RequestID, job.Type, JobStatusPending,
		job.Priority, job.MaxAttempts, job.Payload); err != nil {
		return nil, fmt.Errorf("failed to create job: %w", err)
	}
	return s.GetByBrokerID(ctx, job.BrokerJobID)
}

func (s *JobStore) GetByBrokerID(ctx context.Context, brokerID string) (*Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE broker_job_id = ?`
	j, err := scanJob(s.db.QueryRowContext(ctx, query, brokerID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return j, nil
}

func (s *JobStore) FindByRequest(ctx context.Context, requestID int64) ([]*Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE request_id = ? ORDER BY created_at DESC`
	return s.queryJobs(ctx, query, requestID)
}

// FindFailed returns the most recent failed jobs for operator review.
func (s *JobStore) FindFailed(ctx context.Context, limit int) ([]*Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE status = 'failed' ORDER BY updated_at DESC LIMIT ?`
	return s.queryJobs(ctx, query, limit)
}

func (s *JobStore) queryJobs(ctx context.Context, query string, args ...any) ([]*Job, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query jobs: %w", err)
	}
	defer rows.Close()

	var out []*Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan job: %w", err)
		}
		out = append(out, j)
	}
	return out, rows.Err()
}

// MarkActive records the start of an execution attempt. Idempotent: marking
// an already active row active again leaves it active.
func (s *JobStore) MarkActive(ctx context.Context, brokerID string, attempt int) error {
	query := `
		UPDATE jobs
		SET status = ?, attempts = MAX(attempts, ?),
		    started_at = COALESCE(started_at, CURRENT_TIMESTAMP),
		    updated_at = CURRENT_TIMESTAMP
		WHERE broker_job_id = ?
	`
	if _, err := s.db.ExecContext(ctx, query, JobStatusActive, attempt, brokerID); err != nil {
		return fmt.Errorf("failed to mark job active: %w", err)
	}
	return nil
}

// MarkCompleted writes the terminal success status plus result. Replaying the
// same completion produces the same row.
func (s *JobStore) MarkCompleted(ctx context.Context, brokerID string, result string) error {
	query := `
		UPDATE jobs
		SET status = ?, result = ?, error_message = NULL, stack_trace = NULL,
		    completed_at = COALESCE(completed_at, CURRENT_TIMESTAMP),
		    updated_at = CURRENT_TIMESTAMP
		WHERE broker_job_id = ?
	`
	if _, err := s.db.ExecContext(ctx, query, JobStatusCompleted, result, brokerID); err != nil {
		return fmt.Errorf("failed to mark job completed: %w", err)
	}
	return nil
}

// MarkFailed records an error. Terminal failures keep status=failed until an
// explicit retry; transient failures will be overwritten by the next
// MarkActive when the broker re-invokes the handler.
func (s *JobStore) MarkFailed(ctx context.Context, brokerID string, message, stackTrace string) error {
	query := `
		UPDATE jobs
		SET status = ?, error_message = ?, stack_trace = ?,
		    completed_at = CURRENT_TIMESTAMP, updated_at = CURRENT_TIMESTAMP
		WHERE broker_job_id = ?
	`
	if _, err := s.db.ExecContext(ctx, query, JobStatusFailed, message, stackTrace, brokerID); err != nil {
		return fmt.Errorf("failed to mark job failed: %w", err)
	}
	return nil
}

// MarkRetrying records a transient failure while attempts remain. The row
// returns to pending; the next MarkActive overwrites it when the broker
// re-invokes the handler.
func (s *JobStore) MarkRetrying(ctx context.Context, brokerID string, message string) error {
	query := `
		UPDATE jobs
		SET status = ?, error_message = ?, updated_at = CURRENT_TIMESTAMP
		WHERE broker_job_id = ?
	`
	if _, err := s.db.ExecContext(ctx, query, JobStatusPending, message, brokerID); err != nil {
		return fmt.Errorf("failed to mark job retrying: %w", err)
	}
	return nil
}

// ResetForRetry returns a failed job to pending with cleared errors and a
// zeroed attempt counter ahead of an explicit broker retry.
func (s *JobStore) ResetForRetry(ctx context.Context, brokerID string) error {
	query := `
		UPDATE jobs
		SET status = ?, attempts = 0, error_message = NULL, stack_trace = NULL,
		    started_at = NULL, completed_at = NULL, updated_at = CURRENT_TIMESTAMP
		WHERE broker_job_id = ?
	`
	if _, err := s.db.ExecContext(ctx, query, JobStatusPending, brokerID); err != nil {
		return fmt.Errorf("failed to reset job for retry: %w", err)
	}
	return nil
}

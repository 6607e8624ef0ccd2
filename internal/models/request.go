// Copyright (c) 2025, the listenarr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package models

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/listenarr/listenarr/internal/database"
)

var (
	ErrRequestNotFound = errors.New("request not found")

	// ErrStateConflict is returned when a transition is refused because the
	// request is deleted, terminal, or not in an allowed source state.
	// Processors treat it as "someone else already acted" and no-op.
	ErrStateConflict = errors.New("request state conflict")
)

// RequestStatus is a state in the request lifecycle.
type RequestStatus string

const (
	StatusAwaitingSearch   RequestStatus = "awaiting_search"
	StatusAwaitingDownload RequestStatus = "awaiting_download"
	StatusDownloading      RequestStatus = "downloading"
	StatusAwaitingImport   RequestStatus = "awaiting_import"
	StatusProcessing       RequestStatus = "processing"
	StatusDownloaded       RequestStatus = "downloaded"
	StatusCompleted        RequestStatus = "completed"
	StatusWarn             RequestStatus = "warn"
	StatusFailed           RequestStatus = "failed"
	StatusCancelled        RequestStatus = "cancelled"
)

// IsTerminal reports whether no further automated transition is allowed.
// warn is terminal for automation but manually restartable.
func (s RequestStatus) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled, StatusWarn:
		return true
	}
	return false
}

// RequestType distinguishes the audiobook pipeline from the e-book sidecar.
type RequestType string

const (
	RequestTypeAudiobook RequestType = "audiobook"
	RequestTypeEbook     RequestType = "ebook"
)

// Request is the unit of user intent: acquire one title.
type Request struct {
	ID               int64         `json:"id"`
	UserID           int64         `json:"userId"`
	Type             RequestType   `json:"type"`
	AudiobookID      int64         `json:"audiobookId"`
	Status           RequestStatus `json:"status"`
	Progress         int           `json:"progress"`
	DownloadAttempts int           `json:"downloadAttempts"`
	ImportAttempts   int           `json:"importAttempts"`
	MaxImportRetries int           `json:"maxImportRetries"`
	ErrorMessage     *string       `json:"errorMessage,omitempty"`
	CreatedAt        time.Time     `json:"createdAt"`
	UpdatedAt        time.Time     `json:"updatedAt"`
	CompletedAt      *time.Time    `json:"completedAt,omitempty"`
	LastImportAt     *time.Time    `json:"lastImportAt,omitempty"`
	DeletedAt        *time.Time    `json:"deletedAt,omitempty"`
}

// RequestStore manages request rows and enforces the lifecycle state machine.
type RequestStore struct {
	db database.Querier
}

func NewRequestStore(db database.Querier) *RequestStore {
	return &RequestStore{db: db}
}

const requestColumns = `
	id, user_id, type, audiobook_id, status, progress,
	download_attempts, import_attempts, max_import_retries, error_message,
	created_at, updated_at, completed_at, last_import_at, deleted_at
`

func scanRequest(row interface{ Scan(...any) error }) (*Request, error) {
	r := &Request{}
	err := row.Scan(
		&r.ID, &r.UserID, &r.Type, &r.AudiobookID, &r.Status, &r.Progress,
		&r.DownloadAttempts, &r.ImportAttempts, &r.MaxImportRetries, &r.ErrorMessage,
		&r.CreatedAt, &r.UpdatedAt, &r.CompletedAt, &r.LastImportAt, &r.DeletedAt)
	if err != nil {
		return nil, err
	}
	return r, nil
}

func (s *RequestStore) Create(ctx context.Context, userID int64, reqType RequestType, audiobookID int64) (*Request, error) {
	query := `
		INSERT INTO requests (user_id, type, audiobook_id, status)
		VALUES (?, ?, ?, ?)
	`
	result, err := s.db.ExecContext(ctx, query, userID, reqType, audiobookID, StatusAwaitingSearch)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to get last insert ID: %w", err)
	}
	return s.Get(ctx, id)
}

func (s *RequestStore) Get(ctx context.Context, id int64) (*Request, error) {
	query := `SELECT ` + requestColumns + ` FROM requests WHERE id = ?`
	r, err := scanRequest(s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRequestNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get request: %w", err)
	}
	return r, nil
}

// GetActive returns the request only if it is neither soft-deleted nor in a
// terminal state. Processors use this as their initial state read.
func (s *RequestStore) GetActive(ctx context.Context, id int64) (*Request, error) {
	r, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if r.DeletedAt != nil || r.Status.IsTerminal() {
		return nil, ErrStateConflict
	}
	return r, nil
}

// ListByStatus returns up to limit non-deleted requests in the given status,
// oldest first.
func (s *RequestStore) ListByStatus(ctx context.Context, status RequestStatus, limit int) ([]*Request, error) {
	query := `
		SELECT ` + requestColumns + `
		FROM requests
		WHERE status = ? AND deleted_at IS NULL
		ORDER BY created_at ASC
		LIMIT ?
	`
	rows, err := s.db.QueryContext(ctx, query, status, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list requests: %w", err)
	}
	defer rows.Close()

	var out []*Request
	for rows.Next() {
		r, err := scanRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan request: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Transition moves the request from one of the allowed source states to the
// target state. The write is conditional: soft-deleted rows and rows outside
// the allowed set are untouched and ErrStateConflict is returned. Optional
// patch fields are applied in the same statement so counter increments commit
// atomically with the state change.
func (s *RequestStore) Transition(ctx context.Context, id int64, from []RequestStatus, to RequestStatus, patch *RequestPatch) error {
	sets := []string{"status = ?", "updated_at = CURRENT_TIMESTAMP"}
	args := []any{to}

	if patch != nil {
		if patch.Progress != nil {
			// progress is monotone until terminal
			sets = append(sets, "progress = MAX(progress, ?)")
			args = append(args, *patch.Progress)
		}
		if patch.ErrorMessage != nil {
			sets = append(sets, "error_message = ?")
			args = append(args, *patch.ErrorMessage)
		}
		if patch.ClearError {
			sets = append(sets, "error_message = NULL")
		}
		if patch.IncrementDownloadAttempts {
			sets = append(sets, "download_attempts = download_attempts + 1")
		}
		if patch.IncrementImportAttempts {
			sets = append(sets, "import_attempts = import_attempts + 1, last_import_at = CURRENT_TIMESTAMP")
		}
	}

	if to == StatusCompleted {
		sets = append(sets, "completed_at = CURRENT_TIMESTAMP")
	}

	placeholders := make([]string, len(from))
	for i, st := range from {
		placeholders[i] = "?"
		args = append(args, st)
	}
	args = append(args, id)

	query := fmt.Sprintf(`
		UPDATE requests
		SET %s
		WHERE status IN (%s) AND deleted_at IS NULL AND id = ?
	`, strings.Join(sets, ", "), strings.Join(placeholders, ", "))

	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to transition request: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return ErrStateConflict
	}
	return nil
}

// RequestPatch carries optional field updates applied with a transition.
type RequestPatch struct {
	Progress                  *int
	ErrorMessage              *string
	ClearError                bool
	IncrementDownloadAttempts bool
	IncrementImportAttempts   bool
}

// UpdateProgress bumps progress (monotone, clamped by caller) without a
// state change. No-op for deleted or terminal requests.
func (s *RequestStore) UpdateProgress(ctx context.Context, id int64, progress int) error {
	if progress < 0 {
		progress = 0
	}
	if progress > 100 {
		progress = 100
	}
	query := `
		UPDATE requests
		SET progress = MAX(progress, ?), updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND deleted_at IS NULL
		  AND status NOT IN (?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, query, progress, id,
		StatusCompleted, StatusFailed, StatusCancelled, StatusWarn)
	if err != nil {
		return fmt.Errorf("failed to update request progress: %w", err)
	}
	return nil
}

// Cancel flips any non-terminal request to cancelled. In-flight processors
// observe this at their next state read and stop.
func (s *RequestStore) Cancel(ctx context.Context, id int64) error {
	return s.Transition(ctx, id, []RequestStatus{
		StatusAwaitingSearch, StatusAwaitingDownload, StatusDownloading,
		StatusAwaitingImport, StatusProcessing, StatusDownloaded, StatusWarn,
	}, StatusCancelled, nil)
}

// Restart returns a warn request to awaiting_import with a reset attempt
// counter. This backs the manual retry affordance.
func (s *RequestStore) Restart(ctx context.Context, id int64) error {
	query := `
		UPDATE requests
		SET status = ?, import_attempts = 0, error_message = NULL, updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND status = ? AND deleted_at IS NULL
	`
	result, err := s.db.ExecContext(ctx, query, StatusAwaitingImport, id, StatusWarn)
	if err != nil {
		return fmt.Errorf("failed to restart request: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return ErrStateConflict
	}
	return nil
}

// CountByStatus returns live request counts keyed by status, excluding
// soft-deleted rows.
func (s *RequestStore) CountByStatus(ctx context.Context) (map[RequestStatus]int, error) {
	query := `
		SELECT status, COUNT(*)
		FROM requests
		WHERE deleted_at IS NULL
		GROUP BY status
	`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to count requests by status: %w", err)
	}
	defer rows.Close()

	counts := make(map[RequestStatus]int)
	for rows.Next() {
		var status RequestStatus
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("failed to scan request count: %w", err)
		}
		counts[status] = n
	}
	return counts, rows.Err()
}

// SoftDelete hides the request from every processor while keeping the row
// for audit.
func (s *RequestStore) SoftDelete(ctx context.Context, id int64) error {
	query := `UPDATE requests SET deleted_at = CURRENT_TIMESTAMP, updated_at = CURRENT_TIMESTAMP WHERE id = ? AND deleted_at IS NULL`
	if _, err := s.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("failed to soft delete request: %w", err)
	}
	return nil
}

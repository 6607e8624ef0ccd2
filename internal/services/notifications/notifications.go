// Copyright (c) 2025, the listenarr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package notifications publishes pipeline events to a configured webhook.
// Delivery is best-effort: a failed send is logged and never propagated to
// the caller, so a broken webhook cannot mask a pipeline outcome.
package notifications

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/avast/retry-go"
	"github.com/rs/zerolog/log"
)

// Event kinds emitted by the pipeline.
const (
	EventRequestCompleted = "request_completed"
	EventRequestError     = "request_error"
	EventDownloadStarted  = "download_started"
	EventDownloadFailed   = "download_failed"
)

// Event is the webhook payload.
type Event struct {
	Kind      string    `json:"kind"`
	Timestamp time.Time `json:"timestamp"`
	RequestID int64     `json:"requestId,omitempty"`
	Title     string    `json:"title,omitempty"`
	Author    string    `json:"author,omitempty"`
	Message   string    `json:"message,omitempty"`
}

type Service struct {
	webhookURL string
	httpClient *http.Client
}

func NewService(webhookURL string) *Service {
	return &Service{
		webhookURL: webhookURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// Publish sends the event to the webhook. No-op when no webhook is
// configured; errors are swallowed after logging.
func (s *Service) Publish(ctx context.Context, event Event) {
	if s.webhookURL == "" {
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	payload, err := json.Marshal(event)
	if err != nil {
		log.Error().Err(err).Str("kind", event.Kind).Msg("failed to marshal notification")
		return
	}

	err = retry.Do(
		func() error {
			req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.webhookURL, bytes.NewReader(payload))
			if err != nil {
				return retry.Unrecoverable(err)
			}
			req.Header.Set("Content-Type", "application/json")

			resp, err := s.httpClient.Do(req)
			if err != nil {
				return err
			}
			defer resp.Body.Close()

			if resp.StatusCode >= http.StatusInternalServerError {
				return fmt.Errorf("webhook returned status %d", resp.StatusCode)
			}
			if resp.StatusCode >= http.StatusBadRequest {
				return retry.Unrecoverable(fmt.Errorf("webhook returned status %d", resp.StatusCode))
			}
			return nil
		},
		retry.Attempts(2),
		retry.Delay(time.Second),
		retry.Context(ctx),
	)
	if err != nil {
		log.Warn().Err(err).Str("kind", event.Kind).Int64("requestId", event.RequestID).
			Msg("failed to deliver notification")
		return
	}

	log.Debug().Str("kind", event.Kind).Int64("requestId", event.RequestID).Msg("notification delivered")
}

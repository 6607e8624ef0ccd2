// Copyright (c) 2025, the listenarr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"runtime/debug"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog/log"

	"github.com/listenarr/listenarr/internal/models"
)

// wrap surrounds a handler with the audit lifecycle: the job row is created
// if missing (scheduler-born tasks have none), marked active on entry, and
// marked completed, retrying, or failed on exit. Panics become terminal
// failures with the captured stack.
func (b *Broker) wrap(jobType string, fn HandlerFunc) func(context.Context, *asynq.Task) error {
	return func(ctx context.Context, task *asynq.Task) (err error) {
		brokerID, _ := asynq.GetTaskID(ctx)
		retried, _ := asynq.GetRetryCount(ctx)
		maxRetry, _ := asynq.GetMaxRetry(ctx)

		b.ensureJobRow(ctx, brokerID, jobType, task.Payload(), maxRetry+1)

		if dbErr := b.jobStore.MarkActive(ctx, brokerID, retried+1); dbErr != nil {
			log.Warn().Err(dbErr).Str("brokerJobId", brokerID).Msg("failed to mark job active")
		}

		defer func() {
			if r := recover(); r != nil {
				stack := string(debug.Stack())
				log.Error().Str("jobType", jobType).Str("brokerJobId", brokerID).
					Interface("panic", r).Msg("job handler panicked")
				if dbErr := b.jobStore.MarkFailed(ctx, brokerID, fmt.Sprintf("panic: %v", r), stack); dbErr != nil {
					log.Warn().Err(dbErr).Str("brokerJobId", brokerID).Msg("failed to mark job failed")
				}
				err = Terminal(fmt.Errorf("panic in %s handler: %v", jobType, r))
			}
		}()

		result, err := fn(ctx, task.Payload())
		if err == nil {
			b.recordCompleted(ctx, brokerID, result)
			return nil
		}

		exhausted := retried >= maxRetry
		if IsTerminal(err) || exhausted {
			if dbErr := b.jobStore.MarkFailed(ctx, brokerID, err.Error(), ""); dbErr != nil {
				log.Warn().Err(dbErr).Str("brokerJobId", brokerID).Msg("failed to mark job failed")
			}
			log.Error().Err(err).Str("jobType", jobType).Str("brokerJobId", brokerID).
				Int("attempts", retried+1).Msg("job failed")
			return err
		}

		if dbErr := b.jobStore.MarkRetrying(ctx, brokerID, err.Error()); dbErr != nil {
			log.Warn().Err(dbErr).Str("brokerJobId", brokerID).Msg("failed to mark job retrying")
		}
		log.Warn().Err(err).Str("jobType", jobType).Str("brokerJobId", brokerID).
			Int("attempt", retried+1).Int("maxAttempts", maxRetry+1).
			Msg("job failed, will retry")
		return err
	}
}

// ensureJobRow lazily creates the audit row for tasks that bypassed Enqueue,
// such as those emitted by the cron scheduler.
func (b *Broker) ensureJobRow(ctx context.Context, brokerID, jobType string, payload []byte, maxAttempts int) {
	if _, err := b.jobStore.Create(ctx, &models.Job{
		BrokerJobID: brokerID,
		Type:        jobType,
		MaxAttempts: maxAttempts,
		Payload:     string(payload),
	}); err != nil {
		log.Warn().Err(err).Str("brokerJobId", brokerID).Msg("failed to ensure job audit row")
	}
}

func (b *Broker) recordCompleted(ctx context.Context, brokerID string, result any) {
	encoded := ""
	if result != nil {
		if raw, err := json.Marshal(result); err == nil {
			encoded = string(raw)
		}
	}
	if err := b.jobStore.MarkCompleted(ctx, brokerID, encoded); err != nil {
		log.Warn().Err(err).Str("brokerJobId", brokerID).Msg("failed to mark job completed")
	}
}

// Copyright (c) 2025, the listenarr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package queue adapts the asynq broker to the typed job pipeline: push with
// priority and delay, repeatable registration, per-type worker pools, retry
// with exponential backoff, and a persistent audit row per execution.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog/log"

	"github.com/listenarr/listenarr/internal/models"
)

const (
	defaultAttempts = 3
	initialBackoff  = 2 * time.Second
	// asynq retention is duration-based, so finished jobs are kept for a
	// window rather than as fixed completed/failed row counts.
	defaultRetention = 24 * time.Hour
)

// Terminal marks err as non-retryable: the broker records the failure and
// does not reschedule.
func Terminal(err error) error {
	return errors.Join(err, asynq.SkipRetry)
}

// IsTerminal reports whether err carries the non-retryable marker.
func IsTerminal(err error) bool {
	return errors.Is(err, asynq.SkipRetry)
}

// EnqueueOptions mirror the broker push contract.
type EnqueueOptions struct {
	// Priority orders a job within its pool: positive values route to the
	// pool's high queue, drained ahead of default work. Stored on the audit
	// row either way.
	Priority int
	// Delay postpones the first execution.
	Delay time.Duration
	// Attempts caps total executions (default 3).
	Attempts int
	// RequestID links the audit row to its owning request.
	RequestID *int64
}

// HandlerFunc is a typed processor: it receives the raw payload and returns
// a JSON-serializable result or an error. Errors wrapped with Terminal stop
// retrying immediately.
type HandlerFunc func(ctx context.Context, payload []byte) (any, error)

// Broker wraps the asynq client, scheduler, inspector, and one worker server
// per pool.
type Broker struct {
	client    *asynq.Client
	inspector *asynq.Inspector
	scheduler *asynq.Scheduler
	redisOpt  asynq.RedisClientOpt

	mux     *asynq.ServeMux
	servers []*asynq.Server

	jobStore *models.JobStore

	repeatables   map[string]string // registration key -> scheduler entry id
	repeatablesMu sync.Mutex

	started bool
}

// NewBroker constructs the broker against the given Redis instance.
func NewBroker(redisOpt asynq.RedisClientOpt, jobStore *models.JobStore) *Broker {
	b := &Broker{
		client:      asynq.NewClient(redisOpt),
		inspector:   asynq.NewInspector(redisOpt),
		redisOpt:    redisOpt,
		mux:         asynq.NewServeMux(),
		jobStore:    jobStore,
		repeatables: make(map[string]string),
	}

	b.scheduler = asynq.NewScheduler(redisOpt, &asynq.SchedulerOpts{
		Location: time.UTC,
	})

	for _, pool := range Pools() {
		b.servers = append(b.servers, asynq.NewServer(redisOpt, asynq.Config{
			Concurrency: pool.Concurrency,
			Queues:      QueueWeights(pool.Name),
			RetryDelayFunc: func(n int, _ error, _ *asynq.Task) time.Duration {
				return backoffDelay(n)
			},
			LogLevel: asynq.LogLevel(asynq.WarnLevel),
		}))
	}

	return b
}

// backoffDelay implements exponential backoff starting at 2s.
func backoffDelay(retried int) time.Duration {
	d := initialBackoff
	for i := 0; i < retried; i++ {
		d *= 2
	}
	return d
}

// Enqueue pushes a typed job and creates its audit row. Returns the broker
// job id.
func (b *Broker) Enqueue(ctx context.Context, jobType string, payload any, opts EnqueueOptions) (string, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal %s payload: %w", jobType, err)
	}

	attempts := opts.Attempts
	if attempts <= 0 {
		attempts = defaultAttempts
	}

	taskOpts := []asynq.Option{
		asynq.Queue(QueueFor(jobType, opts.Priority)),
		asynq.MaxRetry(attempts - 1),
		asynq.Retention(defaultRetention),
	}
	if opts.Delay > 0 {
		taskOpts = append(taskOpts, asynq.ProcessIn(opts.Delay))
	}

	info, err := b.client.EnqueueContext(ctx, asynq.NewTask(jobType, raw), taskOpts...)
	if err != nil {
		return "", fmt.Errorf("failed to enqueue %s: %w", jobType, err)
	}

	if _, err := b.jobStore.Create(ctx, &models.Job{
		BrokerJobID: info.ID,
		RequestID:   opts.RequestID,
		Type:        jobType,
		Priority:    opts.Priority,
		MaxAttempts: attempts,
		Payload:     string(raw),
	}); err != nil {
		// The broker job exists; the audit row will be backfilled when the
		// handler first runs.
		log.Warn().Err(err).Str("jobType", jobType).Str("brokerJobId", info.ID).
			Msg("failed to create job audit row at enqueue")
	}

	log.Debug().Str("jobType", jobType).Str("brokerJobId", info.ID).
		Str("queue", info.Queue).Msg("job enqueued")

	return info.ID, nil
}

// Handle registers the processor for a job type, wrapped with the audit
// middleware.
func (b *Broker) Handle(jobType string, fn HandlerFunc) {
	b.mux.HandleFunc(jobType, b.wrap(jobType, fn))
}

// RegisterRepeatable registers a cron entry for the job type under the given
// key. Re-registration with the same key is a no-op.
func (b *Broker) RegisterRepeatable(key, cronspec, jobType string, payload any) error {
	b.repeatablesMu.Lock()
	defer b.repeatablesMu.Unlock()

	if _, ok := b.repeatables[key]; ok {
		return nil
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal %s payload: %w", jobType, err)
	}

	entryID, err := b.scheduler.Register(cronspec, asynq.NewTask(jobType, raw),
		asynq.Queue(QueueForType(jobType)),
		asynq.MaxRetry(defaultAttempts-1),
		asynq.Retention(defaultRetention),
	)
	if err != nil {
		return fmt.Errorf("failed to register repeatable %s: %w", key, err)
	}

	b.repeatables[key] = entryID
	log.Debug().Str("key", key).Str("cron", cronspec).Str("jobType", jobType).
		Msg("repeatable registered")
	return nil
}

// UnregisterRepeatable removes the cron entry for the key, if registered.
func (b *Broker) UnregisterRepeatable(key string) error {
	b.repeatablesMu.Lock()
	defer b.repeatablesMu.Unlock()

	entryID, ok := b.repeatables[key]
	if !ok {
		return nil
	}
	if err := b.scheduler.Unregister(entryID); err != nil {
		return fmt.Errorf("failed to unregister repeatable %s: %w", key, err)
	}
	delete(b.repeatables, key)
	return nil
}

// IsRepeatableRegistered reports whether a cron entry exists for the key.
func (b *Broker) IsRepeatableRegistered(key string) bool {
	b.repeatablesMu.Lock()
	defer b.repeatablesMu.Unlock()
	_, ok := b.repeatables[key]
	return ok
}

// Start launches the scheduler and all pool servers.
func (b *Broker) Start() error {
	if err := b.scheduler.Start(); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}
	for i, srv := range b.servers {
		if err := srv.Start(b.mux); err != nil {
			return fmt.Errorf("failed to start worker pool %s: %w", Pools()[i].Name, err)
		}
	}
	b.started = true
	log.Info().Int("pools", len(b.servers)).Msg("job broker started")
	return nil
}

// Shutdown stops workers (waiting for in-flight jobs), then the scheduler,
// then closes the client and inspector connections.
func (b *Broker) Shutdown() {
	if b.started {
		for _, srv := range b.servers {
			srv.Shutdown()
		}
		b.scheduler.Shutdown()
	}
	if err := b.client.Close(); err != nil {
		log.Warn().Err(err).Msg("failed to close broker client")
	}
	if err := b.inspector.Close(); err != nil {
		log.Warn().Err(err).Msg("failed to close broker inspector")
	}
	log.Info().Msg("job broker stopped")
}

// GetTaskInfo returns the broker-side state of a job.
func (b *Broker) GetTaskInfo(ctx context.Context, brokerID string) (*asynq.TaskInfo, error) {
	job, err := b.jobStore.GetByBrokerID(ctx, brokerID)
	if err != nil {
		return nil, err
	}
	return b.inspector.GetTaskInfo(QueueFor(job.Type, job.Priority), brokerID)
}

// Retry moves a failed job back to pending and resets its audit row.
func (b *Broker) Retry(ctx context.Context, brokerID string) error {
	job, err := b.jobStore.GetByBrokerID(ctx, brokerID)
	if err != nil {
		return err
	}
	if err := b.inspector.RunTask(QueueFor(job.Type, job.Priority), brokerID); err != nil {
		return fmt.Errorf("failed to retry job %s: %w", brokerID, err)
	}
	return b.jobStore.ResetForRetry(ctx, brokerID)
}

// Remove deletes a job from the broker.
func (b *Broker) Remove(ctx context.Context, brokerID string) error {
	job, err := b.jobStore.GetByBrokerID(ctx, brokerID)
	if err != nil {
		return err
	}
	if err := b.inspector.DeleteTask(QueueFor(job.Type, job.Priority), brokerID); err != nil {
		return fmt.Errorf("failed to remove job %s: %w", brokerID, err)
	}
	return nil
}

// Pause stops dispatch on every pool queue.
func (b *Broker) Pause() error {
	for _, queue := range allQueues() {
		if err := b.inspector.PauseQueue(queue); err != nil && !errors.Is(err, asynq.ErrQueueNotFound) {
			return fmt.Errorf("failed to pause queue %s: %w", queue, err)
		}
	}
	return nil
}

// Resume restores dispatch on every pool queue.
func (b *Broker) Resume() error {
	for _, queue := range allQueues() {
		if err := b.inspector.UnpauseQueue(queue); err != nil && !errors.Is(err, asynq.ErrQueueNotFound) {
			return fmt.Errorf("failed to resume queue %s: %w", queue, err)
		}
	}
	return nil
}

// allQueues lists every queue the pools serve, high and default.
func allQueues() []string {
	var out []string
	for _, pool := range Pools() {
		out = append(out, pool.Name, HighQueue(pool.Name))
	}
	return out
}

// Counts aggregates queue statistics across all pools.
type Counts struct {
	Waiting   int `json:"waiting"`
	Active    int `json:"active"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
	Delayed   int `json:"delayed"`
}

// Counts returns aggregate queue counters.
func (b *Broker) Counts() (Counts, error) {
	var counts Counts
	for _, queue := range allQueues() {
		info, err := b.inspector.GetQueueInfo(queue)
		if errors.Is(err, asynq.ErrQueueNotFound) {
			// Queues materialize on first enqueue.
			continue
		}
		if err != nil {
			return counts, fmt.Errorf("failed to get queue info for %s: %w", queue, err)
		}
		counts.Waiting += info.Pending
		counts.Active += info.Active
		counts.Completed += info.Completed
		counts.Failed += info.Archived
		counts.Delayed += info.Scheduled + info.Retry
	}
	return counts, nil
}

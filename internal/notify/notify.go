// Package notify carries the fire-and-forget "notify user" side-channel. Jobs are pushed to a
// Redis list and drained by a Worker; enqueue failures are logged and never roll back the
// mutation that produced them.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"queuemedix-server/internal/metrics"
)

// Job asks for a message to be delivered to a user.
type Job struct {
	RecipientID string    `json:"recipient_id"`
	Message     string    `json:"message"`
	CreatedAt   time.Time `json:"created_at"`
}

// Enqueuer accepts notification jobs.
type Enqueuer interface {
	Enqueue(ctx context.Context, job Job) error
}

// Send enqueues a job and logs any failure. It never returns an error to the caller.
func Send(ctx context.Context, q Enqueuer, recipientID, message string) {
	if q == nil || recipientID == "" {
		return
	}
	job := Job{RecipientID: recipientID, Message: message, CreatedAt: time.Now().UTC()}
	if err := q.Enqueue(ctx, job); err != nil {
		metrics.NotificationJob("failed")
		log.Warn().Err(err).Str("recipient_id", recipientID).Msg("notification enqueue failed")
		return
	}
	metrics.NotificationJob("enqueued")
}

// RedisQueue pushes jobs onto a Redis list.
type RedisQueue struct {
	client *redis.Client
	key    string
}

// NewRedisQueue creates a queue writing to key.
func NewRedisQueue(client *redis.Client, key string) *RedisQueue {
	return &RedisQueue{client: client, key: key}
}

// Enqueue implements Enqueuer.
func (q *RedisQueue) Enqueue(ctx context.Context, job Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}
	if err := q.client.LPush(ctx, q.key, data).Err(); err != nil {
		return fmt.Errorf("failed to push job: %w", err)
	}
	return nil
}

// LogQueue delivers jobs immediately by logging them. Used when Redis is not configured.
type LogQueue struct {
	Logger zerolog.Logger
}

// Enqueue implements Enqueuer.
func (q LogQueue) Enqueue(_ context.Context, job Job) error {
	deliver(q.Logger, job)
	return nil
}

// Handler processes one popped job.
type Handler func(ctx context.Context, job Job) error

// Worker drains a RedisQueue.
type Worker struct {
	client  *redis.Client
	key     string
	handler Handler
	wait    time.Duration
	logger  zerolog.Logger
}

// NewWorker creates a worker popping from key. A nil handler logs each job.
func NewWorker(client *redis.Client, key string, handler Handler) *Worker {
	logger := log.With().Str("component", "notify-worker").Logger()
	if handler == nil {
		handler = func(_ context.Context, job Job) error {
			deliver(logger, job)
			return nil
		}
	}
	return &Worker{
		client:  client,
		key:     key,
		handler: handler,
		wait:    time.Second,
		logger:  logger,
	}
}

// Run pops jobs until ctx is canceled.
func (w *Worker) Run(ctx context.Context) {
	w.logger.Info().Str("key", w.key).Msg("notification worker started")
	for {
		if ctx.Err() != nil {
			return
		}
		if _, err := w.ProcessOne(ctx); err != nil && ctx.Err() == nil {
			w.logger.Error().Err(err).Msg("notification job failed")
			time.Sleep(w.wait)
		}
	}
}

// ProcessOne blocks up to the worker's wait for a job and handles it.
// It reports whether a job was handled.
func (w *Worker) ProcessOne(ctx context.Context) (bool, error) {
	res, err := w.client.BRPop(ctx, w.wait, w.key).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to pop job: %w", err)
	}

	// BRPOP returns [key, value].
	var job Job
	if err := json.Unmarshal([]byte(res[1]), &job); err != nil {
		return false, fmt.Errorf("failed to unmarshal job: %w", err)
	}
	if err := w.handler(ctx, job); err != nil {
		return false, err
	}
	metrics.NotificationJob("delivered")
	return true, nil
}

func deliver(logger zerolog.Logger, job Job) {
	logger.Info().
		Str("recipient_id", job.RecipientID).
		Str("message", job.Message).
		Msg("new message for user")
}

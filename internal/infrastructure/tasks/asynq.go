package tasks

import (
	"context"
	"errors"
	"fmt"
	"time"

	"merchant-connect-layer/internal/ports"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"
)

const (
	defaultQueue     = "default"
	defaultMaxRetry  = 5
	defaultTimeout   = 2 * time.Minute
	maxRetryInterval = 5 * time.Minute
)

// AsynqQueue implements ports.TaskQueue on a Redis backed asynq client
type AsynqQueue struct {
	client   *asynq.Client
	queue    string
	maxRetry int
	logger   zerolog.Logger
}

// NewAsynqQueue creates a queue that enqueues onto the default asynq queue
func NewAsynqQueue(opt asynq.RedisClientOpt, logger zerolog.Logger) *AsynqQueue {
	return &AsynqQueue{
		client:   asynq.NewClient(opt),
		queue:    defaultQueue,
		maxRetry: defaultMaxRetry,
		logger:   logger,
	}
}

// Enqueue hands the task to Redis. It does not wait for processing.
func (q *AsynqQueue) Enqueue(ctx context.Context, task ports.Task) error {
	info, err := q.client.EnqueueContext(ctx,
		asynq.NewTask(task.Type, task.Payload),
		asynq.Queue(q.queue),
		asynq.MaxRetry(q.maxRetry),
		asynq.Timeout(defaultTimeout),
	)
	if err != nil {
		return fmt.Errorf("failed to enqueue task: %w", err)
	}

	q.logger.Debug().
		Str("task", task.Type).
		Str("task_id", info.ID).
		Str("queue", info.Queue).
		Msg("Task enqueued")
	return nil
}

// Close closes the Redis connection
func (q *AsynqQueue) Close() error {
	if err := q.client.Close(); err != nil {
		return fmt.Errorf("failed to close asynq client: %w", err)
	}
	return nil
}

// AsynqWorker processes queued tasks with the registered handlers
type AsynqWorker struct {
	server  *asynq.Server
	mux     *asynq.ServeMux
	metrics ports.Metrics
	logger  zerolog.Logger
}

// NewAsynqWorker creates a worker server. Handlers are bound by task type.
func NewAsynqWorker(opt asynq.RedisClientOpt, concurrency int, handlers map[string]ports.TaskHandlerFunc, metrics ports.Metrics, logger zerolog.Logger) *AsynqWorker {
	if concurrency <= 0 {
		concurrency = 4
	}

	w := &AsynqWorker{
		mux:     asynq.NewServeMux(),
		metrics: metrics,
		logger:  logger,
	}

	w.server = asynq.NewServer(opt, asynq.Config{
		Concurrency: concurrency,
		Queues:      map[string]int{defaultQueue: 1},
		RetryDelayFunc: func(n int, err error, task *asynq.Task) time.Duration {
			delay := time.Duration(1<<uint(n)) * time.Second
			if delay > maxRetryInterval {
				delay = maxRetryInterval
			}
			logger.Warn().Err(err).Str("task", task.Type()).Int("retry", n).Dur("delay", delay).Msg("Task failed, retry scheduled")
			return delay
		},
	})

	for taskType, handler := range handlers {
		w.mux.HandleFunc(taskType, w.wrap(taskType, handler))
	}
	return w
}

func (w *AsynqWorker) wrap(taskType string, handler ports.TaskHandlerFunc) func(context.Context, *asynq.Task) error {
	return func(ctx context.Context, task *asynq.Task) error {
		err := handler(ctx, task.Payload())
		observeTask(w.metrics, taskType, err)
		if err == nil {
			return nil
		}

		w.logger.Error().Err(err).Str("task", taskType).Msg("Task failed")
		if errors.Is(err, ports.ErrPermanentTask) {
			return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
		}
		return err
	}
}

// Start begins processing in background goroutines
func (w *AsynqWorker) Start() error {
	if err := w.server.Start(w.mux); err != nil {
		return fmt.Errorf("failed to start task worker: %w", err)
	}
	w.logger.Info().Msg("Task worker started")
	return nil
}

// Shutdown waits for in-flight tasks and stops the server
func (w *AsynqWorker) Shutdown() {
	w.server.Shutdown()
	w.logger.Info().Msg("Task worker stopped")
}

func observeTask(metrics ports.Metrics, taskType string, err error) {
	if metrics == nil {
		return
	}
	switch {
	case err == nil:
		metrics.ObserveTask(taskType, "success")
	case errors.Is(err, ports.ErrPermanentTask):
		metrics.ObserveTask(taskType, "dropped")
	default:
		metrics.ObserveTask(taskType, "failure")
	}
}

package tasks

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"merchant-connect-layer/internal/ports"

	"github.com/rs/zerolog"
)

// ErrQueueFull is returned when the local buffer cannot take more work
var ErrQueueFull = errors.New("task queue is full")

// ErrQueueClosed is returned after Close
var ErrQueueClosed = errors.New("task queue is closed")

// LocalQueue runs tasks on in-process worker goroutines. Pending work is lost
// on restart; use AsynqQueue when Redis is available.
type LocalQueue struct {
	tasks       chan ports.Task
	handlers    map[string]ports.TaskHandlerFunc
	workers     int
	maxAttempts int
	backoff     time.Duration
	metrics     ports.Metrics
	logger      zerolog.Logger

	mu     sync.RWMutex
	closed bool
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewLocalQueue creates a queue with a bounded buffer
func NewLocalQueue(size, workers int, metrics ports.Metrics, logger zerolog.Logger) *LocalQueue {
	if size <= 0 {
		size = 100
	}
	if workers <= 0 {
		workers = 2
	}
	return &LocalQueue{
		tasks:       make(chan ports.Task, size),
		handlers:    make(map[string]ports.TaskHandlerFunc),
		workers:     workers,
		maxAttempts: 3,
		backoff:     time.Second,
		metrics:     metrics,
		logger:      logger,
	}
}

// Handle binds a handler to a task type. Call before Start.
func (q *LocalQueue) Handle(taskType string, handler ports.TaskHandlerFunc) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.handlers[taskType] = handler
}

// Enqueue buffers the task without blocking
func (q *LocalQueue) Enqueue(_ context.Context, task ports.Task) error {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		return ErrQueueClosed
	}
	select {
	case q.tasks <- task:
		return nil
	default:
		return ErrQueueFull
	}
}

// Start launches the workers. Tasks run detached from any request context.
func (q *LocalQueue) Start(ctx context.Context) {
	ctx, q.cancel = context.WithCancel(ctx)
	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go q.work(ctx, i)
	}
	q.logger.Info().Int("workers", q.workers).Msg("Local task queue started")
}

// Close stops accepting tasks, drains the buffer and waits for the workers
func (q *LocalQueue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	close(q.tasks)
	q.mu.Unlock()

	q.wg.Wait()
	if q.cancel != nil {
		q.cancel()
	}
}

func (q *LocalQueue) work(ctx context.Context, id int) {
	defer q.wg.Done()
	for task := range q.tasks {
		q.process(ctx, id, task)
	}
}

func (q *LocalQueue) process(ctx context.Context, worker int, task ports.Task) {
	q.mu.RLock()
	handler, ok := q.handlers[task.Type]
	q.mu.RUnlock()

	log := q.logger.With().Str("task", task.Type).Int("worker", worker).Logger()
	if !ok {
		log.Error().Msg("No handler registered for task")
		observeTask(q.metrics, task.Type, fmt.Errorf("%w: no handler", ports.ErrPermanentTask))
		return
	}

	delay := q.backoff
	var err error
attempts:
	for attempt := 1; attempt <= q.maxAttempts; attempt++ {
		err = q.run(ctx, handler, task)
		if err == nil || errors.Is(err, ports.ErrPermanentTask) {
			break
		}
		log.Warn().Err(err).Int("attempt", attempt).Msg("Task attempt failed")
		if attempt == q.maxAttempts {
			break
		}

		select {
		case <-time.After(delay):
			delay *= 2
		case <-ctx.Done():
			err = ctx.Err()
			break attempts
		}
	}

	observeTask(q.metrics, task.Type, err)
	if err != nil {
		log.Error().Err(err).Msg("Task failed")
		return
	}
	log.Debug().Msg("Task completed")
}

// run isolates handler panics so one bad task cannot stop a worker
func (q *LocalQueue) run(ctx context.Context, handler ports.TaskHandlerFunc, task ports.Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: task panicked: %v", ports.ErrPermanentTask, r)
		}
	}()
	return handler(ctx, task.Payload)
}

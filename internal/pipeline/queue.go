package pipeline

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/tools-tracker/internal/common"
)

// Task asks for one upload of a job to be processed.
type Task struct {
	JobID       uuid.UUID
	RawKey      string
	SubmittedAt time.Time
	RequestID   string
}

// ErrQueueClosed is returned by Enqueue once Shutdown has started.
var ErrQueueClosed = common.NewAppError("QUEUE_CLOSED", "processing queue is shutting down", common.ErrUnavailable)

// ArtifactProcessor is what the queue's workers run.
type ArtifactProcessor interface {
	ProcessArtifact(ctx context.Context, jobID uuid.UUID, rawKey string) (*Report, error)
}

// Queue runs ProcessArtifact on a fixed pool of workers. Tasks of the same job may run on
// different workers; the engine's job lock keeps their rounds from interleaving.
type Queue struct {
	proc    ArtifactProcessor
	logger  *slog.Logger
	workers int
	timeout time.Duration

	ch   chan Task
	wg   sync.WaitGroup
	once sync.Once

	mu     sync.Mutex
	closed bool
}

type Option func(*Queue)

func WithWorkers(n int) Option {
	return func(q *Queue) {
		if n > 0 {
			q.workers = n
		}
	}
}

func WithQueueSize(n int) Option {
	return func(q *Queue) {
		if n > 0 {
			q.ch = make(chan Task, n)
		}
	}
}

func WithProcessTimeout(d time.Duration) Option {
	return func(q *Queue) {
		if d > 0 {
			q.timeout = d
		}
	}
}

func NewQueue(proc ArtifactProcessor, logger *slog.Logger, opts ...Option) *Queue {
	if logger == nil {
		logger = slog.Default()
	}
	q := &Queue{
		proc:    proc,
		logger:  logger,
		workers: 4,
		timeout: 5 * time.Minute,
		ch:      make(chan Task, 256),
	}
	for _, o := range opts {
		o(q)
	}
	q.start()
	return q
}

func (q *Queue) start() {
	q.once.Do(func() {
		for i := 0; i < q.workers; i++ {
			q.wg.Add(1)
			go func(workerID int) {
				defer q.wg.Done()
				q.logger.Debug("pipeline.worker.started", "worker_id", workerID)

				for task := range q.ch {
					q.run(workerID, task)
				}

				q.logger.Debug("pipeline.worker.stopped", "worker_id", workerID)
			}(i + 1)
		}
	})
}

func (q *Queue) run(workerID int, task Task) {
	ctx, cancel := context.WithTimeout(context.Background(), q.timeout)
	defer cancel()
	if task.RequestID != "" {
		ctx = common.WithRequestID(ctx, task.RequestID)
	}

	report, err := q.proc.ProcessArtifact(ctx, task.JobID, task.RawKey)
	if err != nil {
		q.logger.Error("pipeline.task.failed", "worker_id", workerID, "job_id", task.JobID, "key", task.RawKey, "error", err)
		return
	}
	q.logger.Info("pipeline.task.done",
		"worker_id", workerID,
		"job_id", task.JobID,
		"key", task.RawKey,
		"status", report.Status,
		"waited_ms", time.Since(task.SubmittedAt).Milliseconds(),
	)
}

// Enqueue hands task to the workers, blocking while the buffer is full.
func (q *Queue) Enqueue(ctx context.Context, task Task) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		q.logger.Warn("pipeline.queue.closed", "job_id", task.JobID, "key", task.RawKey)
		return ErrQueueClosed
	}
	if task.SubmittedAt.IsZero() {
		task.SubmittedAt = time.Now()
	}
	select {
	case q.ch <- task:
		q.logger.Info("pipeline.queue.enqueued", "job_id", task.JobID, "key", task.RawKey)
		return nil
	default:
	}
	q.logger.Warn("pipeline.queue.full", "job_id", task.JobID, "key", task.RawKey)
	select {
	case q.ch <- task:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Shutdown stops accepting tasks and waits for queued ones to finish or ctx to end.
func (q *Queue) Shutdown(ctx context.Context) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	close(q.ch)
	q.mu.Unlock()

	done := make(chan struct{})
	go func() { defer close(done); q.wg.Wait() }()

	select {
	case <-ctx.Done():
		q.logger.Warn("pipeline.queue.shutdown_interrupted")
	case <-done:
		q.logger.Info("pipeline.queue.drained")
	}
}

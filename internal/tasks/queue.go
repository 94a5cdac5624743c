package tasks

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hyperjump/kham/internal/apperr"
	"github.com/hyperjump/kham/internal/config"
	"github.com/hyperjump/kham/pkg/utils"
)

// Func is the work of a task. The returned details are stored with the task, on failure too.
type Func func(ctx context.Context) (details map[string]any, err error)

// Recorder receives task completions.
type Recorder interface {
	ObserveTask(taskType string, status string, seconds float64)
}

type job struct {
	task *Task
	fn   Func
}

// Queue runs submitted tasks on a fixed pool of workers.
type Queue struct {
	store    Store
	jobs     chan job
	workers  int
	logger   *zap.Logger
	recorder Recorder

	mu      sync.Mutex
	started bool
	stopped bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewQueue creates a queue. Call Start before submitting work.
func NewQueue(store Store, cfg config.TasksConfig, logger *zap.Logger) *Queue {
	workers := cfg.Workers
	if workers <= 0 {
		workers = 1
	}
	size := cfg.QueueSize
	if size <= 0 {
		size = 100
	}
	return &Queue{
		store:   store,
		jobs:    make(chan job, size),
		workers: workers,
		logger:  utils.OrNop(logger).With(zap.String("component", "tasks")),
	}
}

// NewStore returns a SQLite store when cfg names a database and a memory store otherwise.
func NewStore(cfg config.TasksConfig) (Store, error) {
	if cfg.DatabasePath == "" {
		return NewMemoryStore(), nil
	}
	return NewSQLiteStore(cfg.DatabasePath)
}

// SetRecorder sets a completion recorder.
func (q *Queue) SetRecorder(r Recorder) { q.recorder = r }

// Start launches the workers. Tasks run with a context derived from ctx.
func (q *Queue) Start(ctx context.Context) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.started {
		return
	}
	q.started = true
	ctx, q.cancel = context.WithCancel(ctx)
	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go q.worker(ctx)
	}
}

// Stop stops accepting tasks, cancels running ones and waits for workers to exit.
// Tasks still queued are marked failed.
func (q *Queue) Stop() {
	q.mu.Lock()
	if q.stopped {
		q.mu.Unlock()
		return
	}
	q.stopped = true
	if q.cancel != nil {
		q.cancel()
	}
	close(q.jobs)
	q.mu.Unlock()
	q.wg.Wait()

	for j := range q.jobs {
		q.finish(context.Background(), j.task, nil, fmt.Errorf("queue stopped"), time.Now())
	}
}

// Submit enqueues fn and returns the enqueued task.
func (q *Queue) Submit(ctx context.Context, taskType string, fn Func) (*Task, error) {
	t := &Task{
		ID:         uuid.NewString(),
		Type:       taskType,
		Status:     StatusEnqueued,
		EnqueuedAt: time.Now().UTC(),
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.stopped {
		return nil, apperr.New(apperr.KindInternal, "task queue is stopped")
	}
	if err := q.store.Save(ctx, t); err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, err, "save task")
	}
	select {
	case q.jobs <- job{task: t.clone(), fn: fn}:
	default:
		q.finish(ctx, t, nil, fmt.Errorf("task queue is full"), time.Now())
		return nil, &apperr.Error{Kind: apperr.KindInternal, Message: "task queue is full", Retryable: true}
	}
	q.logger.Debug("task enqueued", zap.String("task_id", t.ID), zap.String("type", taskType))
	return t, nil
}

// Get returns a task by id. A missing task is a not_found error.
func (q *Queue) Get(ctx context.Context, id string) (*Task, error) {
	t, err := q.store.Get(ctx, id)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, err, "load task")
	}
	if t == nil {
		return nil, apperr.Newf(apperr.KindNotFound, "task %s not found", id)
	}
	return t, nil
}

// List returns recent tasks, newest first.
func (q *Queue) List(ctx context.Context, limit int) ([]*Task, error) {
	ts, err := q.store.List(ctx, limit)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, err, "list tasks")
	}
	if ts == nil {
		ts = []*Task{}
	}
	return ts, nil
}

// Wait polls until the task finishes or ctx ends.
func (q *Queue) Wait(ctx context.Context, id string, interval time.Duration) (*Task, error) {
	if interval <= 0 {
		interval = 10 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		t, err := q.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if t.Status.Done() {
			return t, nil
		}
		select {
		case <-ctx.Done():
			return t, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (q *Queue) worker(ctx context.Context) {
	defer q.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case j, ok := <-q.jobs:
			if !ok {
				return
			}
			q.run(ctx, j)
		}
	}
}

func (q *Queue) run(ctx context.Context, j job) {
	t := j.task
	started := time.Now()
	startedUTC := started.UTC()
	t.Status = StatusProcessing
	t.StartedAt = &startedUTC
	if err := q.store.Save(ctx, t); err != nil {
		q.logger.Warn("failed to save task state", zap.String("task_id", t.ID), zap.Error(err))
	}

	details, err := q.call(ctx, j.fn)
	q.finish(context.Background(), t, details, err, started)
}

// call runs fn, converting a panic into an error.
func (q *Queue) call(ctx context.Context, fn Func) (details map[string]any, err error) {
	defer func() {
		if r := recover(); r != nil {
			details, err = nil, fmt.Errorf("task panicked: %v", r)
		}
	}()
	return fn(ctx)
}

func (q *Queue) finish(ctx context.Context, t *Task, details map[string]any, err error, started time.Time) {
	finished := time.Now().UTC()
	t.FinishedAt = &finished
	t.Details = details
	if err != nil {
		t.Status = StatusFailed
		t.Error = err.Error()
		q.logger.Warn("task failed", zap.String("task_id", t.ID), zap.String("type", t.Type), zap.Error(err))
	} else {
		t.Status = StatusSucceeded
		q.logger.Debug("task succeeded", zap.String("task_id", t.ID), zap.String("type", t.Type))
	}
	if serr := q.store.Save(ctx, t); serr != nil {
		q.logger.Warn("failed to save task state", zap.String("task_id", t.ID), zap.Error(serr))
	}
	if q.recorder != nil {
		q.recorder.ObserveTask(t.Type, string(t.Status), time.Since(started).Seconds())
	}
}

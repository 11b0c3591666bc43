package quicktest

import (
	"context"
	"errors"
	"log/slog"
	"sync"
)

// ErrQueueFull is returned by SubmitTask when no buffer slot is free.
var ErrQueueFull = errors.New("task queue is full")

// Callbacks receives worker lifecycle events. Orchestrator implements it.
type Callbacks interface {
	OnWorkerStarted(ctx context.Context, testID string) (*QuickTest, error)
	OnWorkerProgress(ctx context.Context, testID string, progress int) (*QuickTest, error)
	OnWorkerCompleted(ctx context.Context, testID string, metrics map[string]any) (*QuickTest, error)
	OnWorkerFailed(ctx context.Context, testID, message string) (*QuickTest, error)
}

// WorkerQueue is an in-process TaskQueue: a bounded channel drained by a
// fixed number of workers that run tasks on an Engine.
type WorkerQueue struct {
	engine    Engine
	callbacks Callbacks
	tasks     chan Task

	mu      sync.Mutex
	queued  map[string]bool
	running map[string]context.CancelFunc
	aborted map[string]bool
}

// NewWorkerQueue creates a queue holding up to size pending tasks.
func NewWorkerQueue(engine Engine, callbacks Callbacks, size int) *WorkerQueue {
	return &WorkerQueue{
		engine:    engine,
		callbacks: callbacks,
		tasks:     make(chan Task, size),
		queued:    make(map[string]bool),
		running:   make(map[string]context.CancelFunc),
		aborted:   make(map[string]bool),
	}
}

// SubmitTask enqueues a task without waiting for a worker.
func (q *WorkerQueue) SubmitTask(ctx context.Context, task Task) error {
	q.mu.Lock()
	q.queued[task.TestID] = true
	q.mu.Unlock()

	var err error
	select {
	case <-ctx.Done():
		err = ctx.Err()
	case q.tasks <- task:
		return nil
	default:
		err = ErrQueueFull
	}

	q.mu.Lock()
	delete(q.queued, task.TestID)
	q.mu.Unlock()
	return err
}

// Abort cancels a running task or drops a queued one. Ids this queue is not
// holding, such as finished tasks, are ignored.
func (q *WorkerQueue) Abort(_ context.Context, testID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if cancel, ok := q.running[testID]; ok {
		cancel()
		return nil
	}
	if q.queued[testID] {
		q.aborted[testID] = true
	}
	return nil
}

// Run starts the workers and blocks until ctx is done and every worker has
// returned. Tasks still queued at that point are left unprocessed.
func (q *WorkerQueue) Run(ctx context.Context, workers int) {
	var wg sync.WaitGroup
	for i := 0; i < max(1, workers); i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case task := <-q.tasks:
					q.execute(ctx, task)
				}
			}
		}()
	}
	wg.Wait()
}

func (q *WorkerQueue) execute(ctx context.Context, task Task) {
	taskCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	q.mu.Lock()
	delete(q.queued, task.TestID)
	if q.aborted[task.TestID] {
		delete(q.aborted, task.TestID)
		q.mu.Unlock()
		slog.Info("Skipping aborted quick test", "id", task.TestID)
		return
	}
	q.running[task.TestID] = cancel
	q.mu.Unlock()
	defer func() {
		q.mu.Lock()
		delete(q.running, task.TestID)
		q.mu.Unlock()
	}()

	qt, err := q.callbacks.OnWorkerStarted(ctx, task.TestID)
	if err != nil {
		slog.Error("Failed to start quick test", "id", task.TestID, "error", err)
		return
	}
	if qt.Status != StatusRunning {
		slog.Info("Quick test finished before it started", "id", task.TestID, "status", qt.Status)
		return
	}

	metrics, err := q.engine.Run(taskCtx, task, func(p int) {
		if _, err := q.callbacks.OnWorkerProgress(ctx, task.TestID, p); err != nil {
			slog.Error("Failed to record quick test progress", "id", task.TestID, "error", err)
		}
	})
	if taskCtx.Err() != nil && ctx.Err() == nil {
		slog.Info("Quick test aborted", "id", task.TestID)
		return
	}
	if ctx.Err() != nil {
		return
	}

	if err != nil {
		_, err = q.callbacks.OnWorkerFailed(ctx, task.TestID, err.Error())
	} else {
		_, err = q.callbacks.OnWorkerCompleted(ctx, task.TestID, metrics)
	}
	if err != nil {
		slog.Error("Failed to record quick test result", "id", task.TestID, "error", err)
	}
}

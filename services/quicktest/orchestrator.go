package quicktest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"logicflow/pkg/apperr"
	"logicflow/services/codegen"
)

// maxUpdateAttempts bounds compare-and-set retries when a record changes
// between read and update.
const maxUpdateAttempts = 3

// Update is the set of fields changed together with a status.
// Nil fields are left as they are.
type Update struct {
	Status      Status
	Progress    *int
	Metrics     map[string]any
	Error       *string
	StartedAt   *time.Time
	CompletedAt *time.Time
}

// Store persists quick tests. Get returns nil, nil when no record matches.
// CompareAndUpdate applies u only while the record is still in status
// expected, as one atomic step, and returns nil, nil otherwise.
type Store interface {
	Create(ctx context.Context, qt *QuickTest) error
	Get(ctx context.Context, id string) (*QuickTest, error)
	CompareAndUpdate(ctx context.Context, id string, expected Status, u Update) (*QuickTest, error)
	ListRunningOlderThan(ctx context.Context, cutoff time.Time) ([]QuickTest, error)
}

// InstanceSource loads strategy instances. GetInstance returns nil, nil when
// the instance does not exist.
type InstanceSource interface {
	GetInstance(ctx context.Context, id string) (*Instance, error)
}

// CodeGenerator compiles an instance's logic flow.
type CodeGenerator interface {
	Generate(ctx context.Context, req codegen.GenerateRequest) (*codegen.GeneratedCode, error)
}

// TaskQueue hands tasks to execution workers. SubmitTask must not wait for
// the task to run; Abort is best effort.
type TaskQueue interface {
	SubmitTask(ctx context.Context, task Task) error
	Abort(ctx context.Context, testID string) error
}

// Orchestrator drives quick tests through their lifecycle:
// pending -> running -> completed | failed | cancelled.
type Orchestrator struct {
	generator CodeGenerator
	instances InstanceSource
	store     Store
	queue     TaskQueue
	defaults  Defaults
	now       func() time.Time
}

// NewOrchestrator creates an Orchestrator. The queue may be attached later
// with SetQueue when queue and orchestrator depend on each other.
func NewOrchestrator(generator CodeGenerator, instances InstanceSource, store Store, queue TaskQueue, defaults Defaults) *Orchestrator {
	return &Orchestrator{
		generator: generator,
		instances: instances,
		store:     store,
		queue:     queue,
		defaults:  defaults,
		now:       time.Now,
	}
}

// SetQueue attaches the task queue.
func (o *Orchestrator) SetQueue(queue TaskQueue) {
	o.queue = queue
}

// Submit compiles the instance, records a pending quick test and enqueues it.
// It returns as soon as the task is queued.
func (o *Orchestrator) Submit(ctx context.Context, userID, instanceID string, req QuickTestRequest) (*QuickTest, error) {
	cfg, err := BuildConfig(req, o.defaults, o.now())
	if err != nil {
		return nil, err
	}

	inst, err := o.instances.GetInstance(ctx, instanceID)
	if err != nil {
		return nil, fmt.Errorf("load instance: %w", err)
	}
	if inst == nil {
		return nil, &apperr.ResourceNotFoundError{Resource: "instance", ID: instanceID}
	}
	if inst.UserID != userID {
		return nil, &apperr.AuthorizationError{Resource: "instance", ID: instanceID, UserID: userID}
	}

	code, err := o.generator.Generate(ctx, codegen.GenerateRequest{
		InstanceID: inst.ID,
		Flow:       &inst.Flow,
		Parameters: inst.Parameters,
	})
	if err != nil {
		return nil, err
	}

	qt := &QuickTest{
		ID:         uuid.NewString(),
		InstanceID: inst.ID,
		UserID:     userID,
		CodeID:     code.ID,
		CodeHash:   code.CodeHash,
		Config:     cfg,
		Status:     StatusPending,
		CreatedAt:  o.now().UTC(),
	}
	if err := o.store.Create(ctx, qt); err != nil {
		return nil, fmt.Errorf("create quick test: %w", err)
	}

	task := Task{
		TestID:      qt.ID,
		Code:        code.Code,
		CodeHash:    code.CodeHash,
		EntrySymbol: code.EntrySymbol,
		Config:      cfg,
	}
	if err := o.queue.SubmitTask(ctx, task); err != nil {
		slog.Error("Failed to enqueue quick test", "id", qt.ID, "error", err)
		msg := fmt.Sprintf("enqueue: %v", err)
		if _, ferr := o.transition(ctx, qt.ID, StatusFailed, Update{Error: &msg}); ferr != nil {
			slog.Error("Failed to mark quick test failed", "id", qt.ID, "error", ferr)
		}
		return nil, fmt.Errorf("submit quick test task: %w", err)
	}

	slog.Info("Quick test submitted", "id", qt.ID, "instance_id", inst.ID, "code_hash", code.CodeHash)
	return qt, nil
}

// InstanceOwner returns the user that owns an instance.
func (o *Orchestrator) InstanceOwner(ctx context.Context, instanceID string) (string, error) {
	inst, err := o.instances.GetInstance(ctx, instanceID)
	if err != nil {
		return "", fmt.Errorf("load instance: %w", err)
	}
	if inst == nil {
		return "", &apperr.ResourceNotFoundError{Resource: "instance", ID: instanceID}
	}
	return inst.UserID, nil
}

// GetStatus returns a quick test owned by userID.
func (o *Orchestrator) GetStatus(ctx context.Context, userID, testID string) (*QuickTest, error) {
	return o.owned(ctx, userID, testID)
}

// Cancel moves a pending or running quick test to cancelled. A running test
// is also aborted on the queue, best effort.
func (o *Orchestrator) Cancel(ctx context.Context, userID, testID string) (*QuickTest, error) {
	if _, err := o.owned(ctx, userID, testID); err != nil {
		return nil, err
	}

	now := o.now().UTC()
	qt, err := o.transition(ctx, testID, StatusCancelled, Update{CompletedAt: &now})
	if err != nil {
		return nil, err
	}
	if qt.StartedAt != nil {
		if err := o.queue.Abort(ctx, testID); err != nil {
			slog.Error("Failed to abort quick test", "id", testID, "error", err)
		}
	}
	return qt, nil
}

// OnWorkerStarted records that a worker picked the test up.
func (o *Orchestrator) OnWorkerStarted(ctx context.Context, testID string) (*QuickTest, error) {
	now := o.now().UTC()
	return o.callback(ctx, testID, StatusRunning, Update{StartedAt: &now})
}

// OnWorkerProgress records progress of a running test, clamped to [0,100].
func (o *Orchestrator) OnWorkerProgress(ctx context.Context, testID string, progress int) (*QuickTest, error) {
	progress = max(0, min(100, progress))

	for attempt := 0; attempt < maxUpdateAttempts; attempt++ {
		current, err := o.load(ctx, testID)
		if err != nil {
			return nil, err
		}
		if current.Status.Terminal() {
			slog.Info("Ignoring progress for finished quick test", "id", testID, "status", current.Status)
			return current, nil
		}
		if current.Status != StatusRunning {
			return nil, &TransitionError{From: current.Status, To: StatusRunning}
		}
		updated, err := o.store.CompareAndUpdate(ctx, testID, StatusRunning, Update{Status: StatusRunning, Progress: &progress})
		if err != nil {
			return nil, fmt.Errorf("update quick test progress: %w", err)
		}
		if updated != nil {
			return updated, nil
		}
	}
	return nil, fmt.Errorf("update quick test %s: too much contention", testID)
}

// OnWorkerCompleted records metrics and completes a running test.
func (o *Orchestrator) OnWorkerCompleted(ctx context.Context, testID string, metrics map[string]any) (*QuickTest, error) {
	now := o.now().UTC()
	progress := 100
	if metrics == nil {
		metrics = map[string]any{}
	}
	return o.callback(ctx, testID, StatusCompleted, Update{Metrics: metrics, Progress: &progress, CompletedAt: &now})
}

// OnWorkerFailed records the worker's error and fails a running test.
func (o *Orchestrator) OnWorkerFailed(ctx context.Context, testID, message string) (*QuickTest, error) {
	now := o.now().UTC()
	return o.callback(ctx, testID, StatusFailed, Update{Error: &message, CompletedAt: &now})
}

// GetRunningTestsOlderThan lists running tests started more than d ago.
func (o *Orchestrator) GetRunningTestsOlderThan(ctx context.Context, d time.Duration) ([]QuickTest, error) {
	tests, err := o.store.ListRunningOlderThan(ctx, o.now().Add(-d))
	if err != nil {
		return nil, fmt.Errorf("list running quick tests: %w", err)
	}
	return tests, nil
}

// FailTimedOut fails every test that has been running longer than ceiling
// and returns how many it failed.
func (o *Orchestrator) FailTimedOut(ctx context.Context, ceiling time.Duration) (int, error) {
	stale, err := o.GetRunningTestsOlderThan(ctx, ceiling)
	if err != nil {
		return 0, err
	}

	failed := 0
	for _, qt := range stale {
		msg := fmt.Sprintf("timed out after %s", ceiling)
		now := o.now().UTC()
		_, err := o.transition(ctx, qt.ID, StatusFailed, Update{Error: &msg, CompletedAt: &now})
		if errors.Is(err, ErrTerminalState) {
			continue
		}
		if err != nil {
			return failed, err
		}
		failed++
		slog.Info("Quick test timed out", "id", qt.ID, "ceiling", ceiling)
		if err := o.queue.Abort(ctx, qt.ID); err != nil {
			slog.Error("Failed to abort timed out quick test", "id", qt.ID, "error", err)
		}
	}
	return failed, nil
}

// RunSweeper calls FailTimedOut every interval until ctx is done.
func (o *Orchestrator) RunSweeper(ctx context.Context, interval, ceiling time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := o.FailTimedOut(ctx, ceiling); err != nil {
				slog.Error("Quick test sweep failed", "error", err)
			}
		}
	}
}

// callback applies a worker-driven transition. Callbacks that arrive after
// the test finished are logged and ignored.
func (o *Orchestrator) callback(ctx context.Context, testID string, to Status, u Update) (*QuickTest, error) {
	qt, err := o.transition(ctx, testID, to, u)
	if errors.Is(err, ErrTerminalState) {
		current, getErr := o.load(ctx, testID)
		if getErr != nil {
			return nil, getErr
		}
		slog.Info("Ignoring callback for finished quick test", "id", testID, "status", current.Status, "event", to)
		return current, nil
	}
	return qt, err
}

// transition moves a test to status to with a compare-and-set on its current
// status, retrying when another writer got there first.
func (o *Orchestrator) transition(ctx context.Context, testID string, to Status, u Update) (*QuickTest, error) {
	u.Status = to
	for attempt := 0; attempt < maxUpdateAttempts; attempt++ {
		current, err := o.load(ctx, testID)
		if err != nil {
			return nil, err
		}
		if err := Transition(current.Status, to); err != nil {
			return nil, err
		}
		updated, err := o.store.CompareAndUpdate(ctx, testID, current.Status, u)
		if err != nil {
			return nil, fmt.Errorf("update quick test status: %w", err)
		}
		if updated != nil {
			slog.Info("Quick test status changed", "id", testID, "from", current.Status, "to", to)
			return updated, nil
		}
	}
	return nil, fmt.Errorf("update quick test %s: too much contention", testID)
}

func (o *Orchestrator) load(ctx context.Context, testID string) (*QuickTest, error) {
	qt, err := o.store.Get(ctx, testID)
	if err != nil {
		return nil, fmt.Errorf("get quick test: %w", err)
	}
	if qt == nil {
		return nil, &apperr.ResourceNotFoundError{Resource: "quick test", ID: testID}
	}
	return qt, nil
}

func (o *Orchestrator) owned(ctx context.Context, userID, testID string) (*QuickTest, error) {
	qt, err := o.load(ctx, testID)
	if err != nil {
		return nil, err
	}
	if qt.UserID != userID {
		return nil, &apperr.AuthorizationError{Resource: "quick test", ID: testID, UserID: userID}
	}
	return qt, nil
}

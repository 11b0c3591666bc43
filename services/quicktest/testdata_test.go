package quicktest

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"logicflow/services/codegen"
	"logicflow/services/flow"
	"logicflow/services/security"
)

// stubQueue records submitted tasks and aborts without running anything.
type stubQueue struct {
	mu        sync.Mutex
	tasks     []Task
	aborted   []string
	submitErr error
}

func (q *stubQueue) SubmitTask(_ context.Context, task Task) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.submitErr != nil {
		return q.submitErr
	}
	q.tasks = append(q.tasks, task)
	return nil
}

func (q *stubQueue) Abort(_ context.Context, testID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.aborted = append(q.aborted, testID)
	return nil
}

func (q *stubQueue) Aborted() []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]string(nil), q.aborted...)
}

// testClock is a settable time source.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fixture struct {
	orchestrator *Orchestrator
	store        *MemoryStore
	instances    *MemoryInstances
	queue        *stubQueue
	clock        *testClock
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	catalog, err := flow.LoadCatalog()
	require.NoError(t, err)

	gen := codegen.NewGenerator(catalog, security.NewValidator(security.DefaultPolicy()), codegen.NewMemoryStore())
	f := &fixture{
		store:     NewMemoryStore(),
		instances: NewMemoryInstances(SampleInstance()),
		queue:     &stubQueue{},
		clock:     &testClock{now: fixedNow},
	}
	f.orchestrator = NewOrchestrator(gen, f.instances, f.store, f.queue, DefaultDefaults())
	f.orchestrator.now = f.clock.Now
	return f
}

func (f *fixture) submit(t *testing.T) *QuickTest {
	t.Helper()
	qt, err := f.orchestrator.Submit(context.Background(), SampleUserID, SampleInstanceID, QuickTestRequest{Symbol: "AAPL"})
	require.NoError(t, err)
	return qt
}

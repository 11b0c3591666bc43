package quicktest

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// MemoryStore keeps quick tests in process memory. Every update happens
// under one lock, which gives the same per-record atomicity as the
// conditional UPDATE in Repository.
type MemoryStore struct {
	mu    sync.RWMutex
	tests map[string]QuickTest
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{tests: make(map[string]QuickTest)}
}

func (s *MemoryStore) Create(_ context.Context, qt *QuickTest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.tests[qt.ID]; exists {
		return fmt.Errorf("quick test %s already exists", qt.ID)
	}
	s.tests[qt.ID] = *qt
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (*QuickTest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	qt, ok := s.tests[id]
	if !ok {
		return nil, nil
	}
	return &qt, nil
}

func (s *MemoryStore) CompareAndUpdate(_ context.Context, id string, expected Status, u Update) (*QuickTest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	qt, ok := s.tests[id]
	if !ok || qt.Status != expected {
		return nil, nil
	}
	qt.Status = u.Status
	if u.Progress != nil {
		qt.Progress = *u.Progress
	}
	if u.Metrics != nil {
		qt.Metrics = u.Metrics
	}
	if u.Error != nil {
		qt.Error = *u.Error
	}
	if u.StartedAt != nil {
		qt.StartedAt = u.StartedAt
	}
	if u.CompletedAt != nil {
		qt.CompletedAt = u.CompletedAt
	}
	s.tests[id] = qt
	return &qt, nil
}

func (s *MemoryStore) ListRunningOlderThan(_ context.Context, cutoff time.Time) ([]QuickTest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []QuickTest{}
	for _, qt := range s.tests {
		if qt.Status == StatusRunning && qt.StartedAt != nil && qt.StartedAt.Before(cutoff) {
			out = append(out, qt)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.Before(*out[j].StartedAt) })
	return out, nil
}

// MemoryInstances is an in-memory InstanceSource.
type MemoryInstances struct {
	mu        sync.RWMutex
	instances map[string]Instance
}

// NewMemoryInstances returns a source holding the given instances.
func NewMemoryInstances(instances ...Instance) *MemoryInstances {
	m := &MemoryInstances{instances: make(map[string]Instance, len(instances))}
	for _, inst := range instances {
		m.instances[inst.ID] = inst
	}
	return m
}

// Put adds or replaces an instance.
func (m *MemoryInstances) Put(inst Instance) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.instances[inst.ID] = inst
}

func (m *MemoryInstances) GetInstance(_ context.Context, id string) (*Instance, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	inst, ok := m.instances[id]
	if !ok {
		return nil, nil
	}
	return &inst, nil
}

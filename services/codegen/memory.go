package codegen

import (
	"context"
	"sort"
	"sync"
)

// MemoryStore keeps generated code in process memory. It is used when no
// database is configured and in tests.
type MemoryStore struct {
	mu      sync.RWMutex
	records []GeneratedCode
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) FindByHash(_ context.Context, instanceID, hash string) (*GeneratedCode, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i := range s.records {
		if s.records[i].InstanceID == instanceID && s.records[i].CodeHash == hash {
			rec := s.records[i]
			return &rec, nil
		}
	}
	return nil, nil
}

// Store saves code unless a record with the same instance and hash exists,
// in which case the existing record is returned.
func (s *MemoryStore) Store(_ context.Context, code *GeneratedCode) (*GeneratedCode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.records {
		if s.records[i].InstanceID == code.InstanceID && s.records[i].CodeHash == code.CodeHash {
			rec := s.records[i]
			return &rec, nil
		}
	}
	s.records = append(s.records, *code)
	rec := *code
	return &rec, nil
}

func (s *MemoryStore) History(_ context.Context, instanceID string) ([]GeneratedCode, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []GeneratedCode{}
	for i := len(s.records) - 1; i >= 0; i-- {
		if s.records[i].InstanceID == instanceID {
			out = append(out, s.records[i])
		}
	}
	// newest first; later inserts win ties
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// Len returns the number of stored records.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

package durable

import (
	"context"
	"sync"
)

// Store persists journal payloads. Keys are unique within a run.
type Store interface {
	Load(ctx context.Context, runID, key string) ([]byte, bool, error)
	Save(ctx context.Context, runID, key string, payload []byte) error
	DeleteRun(ctx context.Context, runID string) error
}

// MemoryStore keeps the journal in process memory.
type MemoryStore struct {
	runs map[string]map[string][]byte
	mu   sync.RWMutex
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{runs: make(map[string]map[string][]byte)}
}

// Load implements Store.
func (s *MemoryStore) Load(_ context.Context, runID, key string) ([]byte, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	payload, ok := s.runs[runID][key]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), payload...), true, nil
}

// Save implements Store.
func (s *MemoryStore) Save(_ context.Context, runID, key string, payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[runID]
	if !ok {
		run = make(map[string][]byte)
		s.runs[runID] = run
	}
	run[key] = append([]byte(nil), payload...)
	return nil
}

// DeleteRun implements Store.
func (s *MemoryStore) DeleteRun(_ context.Context, runID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.runs, runID)
	return nil
}

// Len returns the number of entries journaled for runID.
func (s *MemoryStore) Len(runID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.runs[runID])
}

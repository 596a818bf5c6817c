package pipeline

import (
	"context"
	"sync"
)

// RunStore persists run progress so a run's outcome survives the process.
type RunStore interface {
	SaveRun(ctx context.Context, run Run) error
	GetRun(ctx context.Context, recordingID string) (*Run, error)
}

// MemoryRunStore keeps runs in process memory. Used when no database is
// configured for run tracking and in tests.
type MemoryRunStore struct {
	mu   sync.RWMutex
	runs map[string]Run
}

func NewMemoryRunStore() *MemoryRunStore {
	return &MemoryRunStore{runs: make(map[string]Run)}
}

func (m *MemoryRunStore) SaveRun(ctx context.Context, run Run) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if prev, ok := m.runs[run.RecordingID]; ok && run.CreatedAt.IsZero() {
		run.CreatedAt = prev.CreatedAt
	}
	m.runs[run.RecordingID] = run
	return nil
}

func (m *MemoryRunStore) GetRun(ctx context.Context, recordingID string) (*Run, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	run, ok := m.runs[recordingID]
	if !ok {
		return nil, ErrRunNotFound
	}
	return &run, nil
}

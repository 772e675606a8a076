package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hannes/name-predictor/predictor"
)

// InMemoryRunStore implements RunStore for in-memory storage (fallback)
type InMemoryRunStore struct {
	mu          sync.RWMutex
	runs        map[uuid.UUID]Run
	predictions map[uuid.UUID][]predictor.Prediction
}

// NewInMemoryRunStore creates a new in-memory run store
func NewInMemoryRunStore() *InMemoryRunStore {
	return &InMemoryRunStore{
		runs:        make(map[uuid.UUID]Run),
		predictions: make(map[uuid.UUID][]predictor.Prediction),
	}
}

// StoreRun stores or replaces a run in memory
func (m *InMemoryRunStore) StoreRun(ctx context.Context, run Run) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs[run.ID] = run
	return nil
}

// StorePredictions appends predictions to a stored run
func (m *InMemoryRunStore) StorePredictions(ctx context.Context, runID uuid.UUID, predictions []predictor.Prediction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.runs[runID]; !ok {
		return fmt.Errorf("run %s not found", runID)
	}
	m.predictions[runID] = append(m.predictions[runID], predictions...)
	return nil
}

// GetRun retrieves a run by ID
func (m *InMemoryRunStore) GetRun(ctx context.Context, runID uuid.UUID) (Run, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	run, ok := m.runs[runID]
	return run, ok, nil
}

// CountPredictions returns the number of stored predictions of a run
func (m *InMemoryRunStore) CountPredictions(ctx context.Context, runID uuid.UUID) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.predictions[runID]), nil
}

// CleanupOldRuns removes runs started before the cutoff
func (m *InMemoryRunStore) CleanupOldRuns(ctx context.Context, olderThan time.Duration) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := time.Now().UTC().Add(-olderThan)
	var removed int64
	for id, run := range m.runs {
		if run.StartedAt.Before(cutoff) {
			delete(m.runs, id)
			delete(m.predictions, id)
			removed++
		}
	}
	return removed, nil
}

// Close is a no-op for in-memory storage
func (m *InMemoryRunStore) Close() error {
	return nil
}

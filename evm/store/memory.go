// Package store provides Store implementations.
package store

import (
	"context"
	"slices"
	"sync"

	"github.com/warp/burn-engine/evm"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu       sync.RWMutex
	dataset  *evm.Dataset
	revision int64
	runs     []evm.Run // append order
	results  map[string]*evm.Result
}

func NewMemory() *Memory {
	return &Memory{results: make(map[string]*evm.Result)}
}

// SaveDataset replaces the stored dataset and bumps the revision.
func (m *Memory) SaveDataset(_ context.Context, ds *evm.Dataset) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.dataset = cloneDataset(ds)
	m.revision++
	return m.revision, nil
}

func (m *Memory) LoadDataset(_ context.Context) (*evm.Dataset, int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.dataset == nil {
		return nil, 0, evm.ErrNoDataset
	}
	return cloneDataset(m.dataset), m.revision, nil
}

func (m *Memory) DatasetRevision(_ context.Context) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.revision, nil
}

func (m *Memory) SaveRun(_ context.Context, run evm.Run, result *evm.Result) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.runs = append(m.runs, run)
	if result != nil {
		m.results[run.ID] = result
	}
	return nil
}

func (m *Memory) GetRun(_ context.Context, id string) (*evm.Run, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for i := range m.runs {
		if m.runs[i].ID == id {
			run := m.runs[i]
			return &run, nil
		}
	}
	return nil, evm.ErrRunNotFound
}

// LatestRun returns the most recent completed run.
func (m *Memory) LatestRun(_ context.Context) (*evm.Run, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for i := len(m.runs) - 1; i >= 0; i-- {
		if m.runs[i].Status == evm.RunCompleted {
			run := m.runs[i]
			return &run, nil
		}
	}
	return nil, evm.ErrRunNotFound
}

// ListRuns returns runs newest first.
func (m *Memory) ListRuns(_ context.Context, limit int) ([]evm.Run, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	runs := slices.Clone(m.runs)
	slices.Reverse(runs)
	if limit > 0 && len(runs) > limit {
		runs = runs[:limit]
	}
	return runs, nil
}

func (m *Memory) LoadResult(_ context.Context, runID string) (*evm.Result, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result, ok := m.results[runID]
	if !ok {
		return nil, evm.ErrRunNotFound
	}
	return result, nil
}

func cloneDataset(ds *evm.Dataset) *evm.Dataset {
	return &evm.Dataset{
		SOV:       slices.Clone(ds.SOV),
		Labor:     slices.Clone(ds.Labor),
		Materials: slices.Clone(ds.Materials),
		Periods:   slices.Clone(ds.Periods),
		LineItems: slices.Clone(ds.LineItems),
	}
}

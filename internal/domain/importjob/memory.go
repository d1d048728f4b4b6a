package importjob

import (
	"context"
	"sort"
	"sync"
)

// MemoryRepository keeps the audit trail in process. It backs tests and
// dry runs that have no database.
type MemoryRepository struct {
	mu     sync.Mutex
	runs   map[int64]*JobRun
	errs   []*ErrorRecord
	nextID int64
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{runs: make(map[int64]*JobRun), nextID: 1}
}

func (m *MemoryRepository) CreateRun(_ context.Context, run *JobRun) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	run.ID = m.nextID
	m.nextID++
	c := *run
	m.runs[run.ID] = &c
	return nil
}

func (m *MemoryRepository) UpdateRun(_ context.Context, run *JobRun) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.runs[run.ID]; !ok {
		return ErrNotFound
	}
	c := *run
	m.runs[run.ID] = &c
	return nil
}

func (m *MemoryRepository) GetRun(_ context.Context, id int64) (*JobRun, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	run, ok := m.runs[id]
	if !ok {
		return nil, ErrNotFound
	}
	c := *run
	return &c, nil
}

func (m *MemoryRepository) ListRuns(_ context.Context, limit, offset int) ([]*JobRun, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	all := make([]*JobRun, 0, len(m.runs))
	for _, run := range m.runs {
		c := *run
		all = append(all, &c)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID > all[j].ID })
	return page(all, limit, offset), len(all), nil
}

func (m *MemoryRepository) AddError(_ context.Context, rec *ErrorRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec.ID = int64(len(m.errs) + 1)
	c := *rec
	m.errs = append(m.errs, &c)
	return nil
}

func (m *MemoryRepository) ListErrors(_ context.Context, runID int64, limit, offset int) ([]*ErrorRecord, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var all []*ErrorRecord
	for _, rec := range m.errs {
		if rec.JobRunID == runID {
			c := *rec
			all = append(all, &c)
		}
	}
	return page(all, limit, offset), len(all), nil
}

func page[T any](items []T, limit, offset int) []T {
	if offset >= len(items) {
		return nil
	}
	end := offset + limit
	if limit <= 0 || end > len(items) {
		end = len(items)
	}
	return items[offset:end]
}

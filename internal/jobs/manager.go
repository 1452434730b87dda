package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"
)

// Manager keeps task records. It does not execute tasks; the scheduler
// updates status through it as tasks move through the queue.
type Manager struct {
	mu      sync.RWMutex
	records map[string]*Record
	logger  *slog.Logger
}

// NewManager creates a new task record manager.
func NewManager(logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		records: make(map[string]*Record),
		logger:  logger,
	}
}

// Create stores a queued record for task. Creating an existing id is a no-op.
func (m *Manager) Create(_ context.Context, task *Task) *Record {
	m.mu.Lock()
	defer m.mu.Unlock()

	if rec, ok := m.records[task.ID]; ok {
		cp := *rec
		return &cp
	}
	rec := NewRecord(task)
	m.records[task.ID] = rec

	m.logger.Info("task created", "id", task.ID, "type", task.Type, "key", task.Key)
	cp := *rec
	return &cp
}

// Get returns a task record by id.
func (m *Manager) Get(_ context.Context, id string) (*Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.records[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	cp := *rec
	return &cp, nil
}

// List returns records matching the filter, newest first.
func (m *Manager) List(_ context.Context, filter ListFilter) []*Record {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*Record
	for _, rec := range m.records {
		if filter.Status != "" && rec.Status != filter.Status {
			continue
		}
		if filter.Type != "" && rec.Type != filter.Type {
			continue
		}
		if filter.Key != "" && rec.Key != filter.Key {
			continue
		}
		cp := *rec
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

// UpdateStatus moves a record to status, stamping start and completion times.
func (m *Manager) UpdateStatus(_ context.Context, id string, status Status, errMsg string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.records[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	now := time.Now().UTC()
	rec.Status = status
	rec.Error = errMsg
	switch status {
	case StatusRunning:
		rec.StartedAt = &now
		rec.CompletedAt = nil
	case StatusCompleted, StatusFailed:
		rec.CompletedAt = &now
	}
	return nil
}

// Counts returns the number of records in each status.
func (m *Manager) Counts() map[Status]int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	counts := make(map[Status]int)
	for _, rec := range m.records {
		counts[rec.Status]++
	}
	return counts
}

// ListFilter specifies criteria for listing tasks.
type ListFilter struct {
	Status Status // Filter by status (empty = all)
	Type   string // Filter by task type (empty = all)
	Key    string // Filter by record key (empty = all)
	Limit  int    // Max results (0 = default 100)
}

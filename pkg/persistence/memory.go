package persistence

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/dukex/gridfn/pkg/models"
)

// Memory keeps at most capacity records, dropping the oldest.
type Memory struct {
	mu       sync.RWMutex
	capacity int
	records  map[string]models.ExecutionRecord
}

const defaultMemoryCapacity = 10000

func NewMemory(capacity int) *Memory {
	if capacity <= 0 {
		capacity = defaultMemoryCapacity
	}

	return &Memory{
		capacity: capacity,
		records:  make(map[string]models.ExecutionRecord),
	}
}

func (m *Memory) Save(_ context.Context, record models.ExecutionRecord) error {
	if record.ID == "" {
		return NewRecordError("Save", "", ErrInvalidRecord)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.records[record.ID] = record

	if len(m.records) > m.capacity {
		oldest := m.sortedLocked()
		for _, r := range oldest[m.capacity:] {
			delete(m.records, r.ID)
		}
	}

	return nil
}

func (m *Memory) Recent(_ context.Context, limit int) ([]models.ExecutionRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	records := m.sortedLocked()
	if limit > 0 && len(records) > limit {
		records = records[:limit]
	}

	return records, nil
}

func (m *Memory) ByID(_ context.Context, id string) (*models.ExecutionRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	record, ok := m.records[id]
	if !ok {
		return nil, NewRecordError("ByID", id, ErrExecutionNotFound)
	}

	return &record, nil
}

func (m *Memory) Prune(_ context.Context, before time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var pruned int64

	for id, r := range m.records {
		if r.CompletedAt.Before(before) {
			delete(m.records, id)
			pruned++
		}
	}

	return pruned, nil
}

func (m *Memory) HealthCheck(context.Context) error {
	return nil
}

func (m *Memory) Close(context.Context) error {
	return nil
}

// sortedLocked orders records newest first, by start time then id.
func (m *Memory) sortedLocked() []models.ExecutionRecord {
	records := make([]models.ExecutionRecord, 0, len(m.records))
	for _, r := range m.records {
		records = append(records, r)
	}

	slices.SortFunc(records, func(a, b models.ExecutionRecord) int {
		if c := b.StartedAt.Compare(a.StartedAt); c != 0 {
			return c
		}

		if a.ID > b.ID {
			return -1
		}

		if a.ID < b.ID {
			return 1
		}

		return 0
	})

	return records
}

package index

import (
	"context"
	"sort"
	"strings"
	"sync"
)

// Memory is a thread-safe in-process Client used by tests and local runs.
// Safe for concurrent readers and writers.
type Memory struct {
	mu      sync.RWMutex
	records map[string]Record
}

func NewMemory() *Memory {
	return &Memory{records: make(map[string]Record)}
}

func (m *Memory) Upsert(_ context.Context, record Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[record.ChunkID] = record
	return nil
}

func (m *Memory) DeleteByID(_ context.Context, chunkID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.records, chunkID)
	return nil
}

// Query matches term as a case-insensitive substring of record content,
// newest records first.
func (m *Memory) Query(_ context.Context, tenantID, term string, limit int) ([]Record, error) {
	normalized := strings.ToLower(term)

	m.mu.RLock()
	var matches []Record
	for _, record := range m.records {
		if record.TenantID != tenantID {
			continue
		}
		if strings.Contains(strings.ToLower(record.Content), normalized) {
			matches = append(matches, record)
		}
	}
	m.mu.RUnlock()

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].CreatedAt.Equal(matches[j].CreatedAt) {
			return matches[i].ChunkID < matches[j].ChunkID
		}
		return matches[i].CreatedAt.After(matches[j].CreatedAt)
	})
	if max := maxInt(1, limit); len(matches) > max {
		matches = matches[:max]
	}
	return matches, nil
}

func (m *Memory) ListAll(_ context.Context, tenantID string) ([]Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Record
	for _, record := range m.records {
		if record.TenantID == tenantID {
			out = append(out, record)
		}
	}
	return out, nil
}

// Len reports the number of stored records across all tenants.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records)
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

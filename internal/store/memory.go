package store

import (
	"context"
	"sync"
)

// MemoryStore is an in-memory implementation of the checkpoint and attempt
// APIs. It does not survive a restart; use it for tests and dry runs.
type MemoryStore struct {
	mu          sync.Mutex
	checkpoints map[string][]byte
	attempts    []Attempt
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{checkpoints: make(map[string][]byte)}
}

func (m *MemoryStore) GetCheckpoint(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.checkpoints[key]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), v...), true, nil
}

func (m *MemoryStore) SetCheckpoint(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checkpoints[key] = append([]byte(nil), value...)
	return nil
}

func (m *MemoryStore) DeleteCheckpoint(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.checkpoints, key)
	return nil
}

func (m *MemoryStore) AppendAttempt(_ context.Context, a Attempt) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.attempts {
		if existing.BatchID == a.BatchID && existing.Seq == a.Seq {
			return nil
		}
	}
	m.attempts = append(m.attempts, a)
	return nil
}

func (m *MemoryStore) Attempts(_ context.Context, batchID string) ([]Attempt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []Attempt{}
	for _, a := range m.attempts {
		if a.BatchID == batchID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (m *MemoryStore) HasAttempt(_ context.Context, batchID string, jobIndex int) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.attempts {
		if a.BatchID == batchID && a.JobIndex == jobIndex {
			return true, nil
		}
	}
	return false, nil
}

func (m *MemoryStore) LastAttemptSeq(_ context.Context, batchID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var seq int64
	for _, a := range m.attempts {
		if a.BatchID == batchID && a.Seq > seq {
			seq = a.Seq
		}
	}
	return seq, nil
}

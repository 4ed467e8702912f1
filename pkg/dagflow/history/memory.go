package history

import (
	"slices"
	"sync"
	"time"
)

// MemoryStore keeps records in process memory.
type MemoryStore struct {
	mu     sync.RWMutex
	runs   map[string]storedRecord
	seq    int
	closed bool
}

type storedRecord struct {
	info Info
	data []byte
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		runs: make(map[string]storedRecord),
	}
}

// Save implements Store.
func (m *MemoryStore) Save(graphID, runID string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrStoreClosed
	}

	m.seq++
	m.runs[runID] = storedRecord{
		info: Info{
			GraphID:   graphID,
			RunID:     runID,
			Sequence:  m.seq,
			Timestamp: time.Now().UTC(),
			Size:      int64(len(data)),
		},
		data: slices.Clone(data),
	}
	return nil
}

// Load implements Store.
func (m *MemoryStore) Load(runID string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrStoreClosed
	}

	rec, ok := m.runs[runID]
	if !ok {
		return nil, ErrNotFound
	}
	return slices.Clone(rec.data), nil
}

// List implements Store.
func (m *MemoryStore) List(graphID string) ([]Info, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrStoreClosed
	}

	var infos []Info
	for _, rec := range m.runs {
		if rec.info.GraphID == graphID {
			infos = append(infos, rec.info)
		}
	}
	slices.SortFunc(infos, func(a, b Info) int { return a.Sequence - b.Sequence })
	return infos, nil
}

// Delete implements Store.
func (m *MemoryStore) Delete(runID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrStoreClosed
	}
	delete(m.runs, runID)
	return nil
}

// DeleteGraph implements Store.
func (m *MemoryStore) DeleteGraph(graphID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrStoreClosed
	}
	for runID, rec := range m.runs {
		if rec.info.GraphID == graphID {
			delete(m.runs, runID)
		}
	}
	return nil
}

// Close implements Store.
func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closed = true
	m.runs = nil
	return nil
}

// Len returns the number of stored records.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.runs)
}

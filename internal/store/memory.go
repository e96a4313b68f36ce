package store

import (
	"context"
	"sync"

	"github.com/arkiv/arkiv-platform-reference/internal/proof"
)

// Memory is a map-backed store for dry runs and tests. Nothing survives the
// process.
type Memory struct {
	mu      sync.RWMutex
	records map[uint64]proof.AddressRecord
}

var _ Store = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{records: make(map[uint64]proof.AddressRecord)}
}

func (m *Memory) Initialize(context.Context) error { return nil }

func (m *Memory) Upsert(_ context.Context, r proof.AddressRecord) error {
	m.mu.Lock()
	m.records[r.FID] = r
	m.mu.Unlock()
	return nil
}

// Get returns the record stored for fid.
func (m *Memory) Get(fid uint64) (proof.AddressRecord, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.records[fid]
	return r, ok
}

// Len is the number of stored records.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records)
}

func (m *Memory) Close() error { return nil }

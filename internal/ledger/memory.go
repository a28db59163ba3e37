package ledger

import (
	"context"
	"sync"
)

// MemoryBackend keeps the persisted sequence in process memory. It is
// useful for tests and for runs that do not need to survive a restart.
type MemoryBackend struct {
	mu      sync.Mutex
	records []*Record
	saved   bool
}

// NewMemoryBackend returns an empty MemoryBackend; the first Open seeds it.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{}
}

// Load implements Backend.
func (m *MemoryBackend) Load(_ context.Context) ([]*Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.saved {
		return nil, ErrNoLedger
	}
	out := make([]*Record, len(m.records))
	copy(out, m.records)
	return out, nil
}

// Save implements Backend.
func (m *MemoryBackend) Save(_ context.Context, records []*Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = make([]*Record, len(records))
	copy(m.records, records)
	m.saved = true
	return nil
}

// Close implements Backend.
func (m *MemoryBackend) Close() error { return nil }

var _ Backend = (*MemoryBackend)(nil)

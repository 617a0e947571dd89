package store

import (
	"context"
	"sync"
)

// Medium is a durable key-value backing for whole collections.
//
// Implementations must make Write atomic per name: a reader never observes a
// partially written payload.
type Medium interface {
	Read(ctx context.Context, name string) (payload []byte, found bool, err error)
	Write(ctx context.Context, name string, payload []byte) error
}

// MemoryMedium keeps payloads in a map. It is the medium of the scenario
// harness and of most tests.
//
// Thread-safety: safe for concurrent use.
type MemoryMedium struct {
	mu       sync.RWMutex
	payloads map[string][]byte
}

// NewMemoryMedium creates an empty medium.
func NewMemoryMedium() *MemoryMedium {
	return &MemoryMedium{payloads: make(map[string][]byte)}
}

// Read returns a copy of the payload stored under name.
func (m *MemoryMedium) Read(_ context.Context, name string) ([]byte, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.payloads[name]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), p...), true, nil
}

// Write stores a copy of payload under name.
func (m *MemoryMedium) Write(_ context.Context, name string, payload []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.payloads[name] = append([]byte(nil), payload...)
	return nil
}

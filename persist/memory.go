package persist

import (
	"sync"

	"github.com/AnatoleLucet/dispatch"
)

// Memory keeps the last saved state in process memory.
type Memory struct {
	mu    sync.RWMutex
	state any
	ok    bool
	saves int
}

var _ dispatch.Persistence = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{}
}

func (m *Memory) Get() (any, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.state, m.ok, nil
}

func (m *Memory) Set(state any) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.state, m.ok = state, true
	m.saves++
	return nil
}

func (m *Memory) Purge() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.state, m.ok = nil, false
	return nil
}

// Saves counts the calls to Set.
func (m *Memory) Saves() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.saves
}

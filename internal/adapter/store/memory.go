package store

import (
	"sort"
	"sync"
	"time"

	"github.com/berfenger/senec2mqtt/internal/core/domain"
	"github.com/berfenger/senec2mqtt/internal/core/port"
)

// Memory keeps one latest-value slot per component id.
type Memory struct {
	mu    sync.RWMutex
	slots map[domain.ComponentId]*Slot
	now   func() time.Time
}

func NewMemory() *Memory {
	return &Memory{
		slots: make(map[domain.ComponentId]*Slot),
		now:   time.Now,
	}
}

// Store returns the slot of id, creating it on first use.
func (m *Memory) Store(id domain.ComponentId) port.ValueStore {
	return m.slot(id)
}

func (m *Memory) slot(id domain.ComponentId) *Slot {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.slots[id]
	if !ok {
		s = &Slot{now: m.now}
		m.slots[id] = s
	}
	return s
}

// Lookup returns the slot of id without creating it.
func (m *Memory) Lookup(id domain.ComponentId) (*Slot, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.slots[id]
	return s, ok
}

func (m *Memory) Ids() []domain.ComponentId {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]domain.ComponentId, 0, len(m.slots))
	for id := range m.slots {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Slot holds the most recent snapshot of one component.
type Slot struct {
	mu        sync.RWMutex
	state     domain.ComponentState
	updatedAt time.Time
	now       func() time.Time
}

func (s *Slot) Set(state domain.ComponentState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = state
	s.updatedAt = s.now()
}

func (s *Slot) Get() (domain.ComponentState, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state, s.state != nil
}

func (s *Slot) UpdatedAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.updatedAt
}

// ensure interface compliance
var (
	_ port.StoreProvider = (*Memory)(nil)
	_ port.ValueStore    = (*Slot)(nil)
)

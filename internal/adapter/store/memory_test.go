package store

import (
	"testing"

	"github.com/berfenger/senec2mqtt/internal/core/domain"
	"github.com/stretchr/testify/assert"
)

func TestMemorySlots(t *testing.T) {

	assert := assert.New(t)

	m := NewMemory()
	bat := m.Store(10)
	_, ok := bat.Get()
	assert.False(ok, "empty slot")

	bat.Set(domain.BatState{Power: 100, SoC: 50})
	bat.Set(domain.BatState{Power: 200, SoC: 51})
	st, ok := m.Store(10).Get()
	assert.True(ok)
	assert.Equal(domain.BatState{Power: 200, SoC: 51}, st, "only the latest snapshot is kept")

	m.Store(3)
	assert.Equal([]domain.ComponentId{3, 10}, m.Ids())

	slot, ok := m.Lookup(10)
	assert.True(ok)
	assert.False(slot.UpdatedAt().IsZero())
	_, ok = m.Lookup(99)
	assert.False(ok)
}

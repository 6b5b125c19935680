package port

import "github.com/berfenger/senec2mqtt/internal/core/domain"

// ValueStore is a single slot holding the most recent snapshot of one component.
type ValueStore interface {
	Set(state domain.ComponentState)
	Get() (domain.ComponentState, bool)
}

type StoreProvider interface {
	Store(id domain.ComponentId) ValueStore
}

package service

import (
	"math"
	"sync"
	"time"

	"github.com/berfenger/senec2mqtt/internal/core/domain"
)

// AccumulatorPurpose namespaces accumulations of different component kinds
// sharing one device.
type AccumulatorPurpose string

const (
	PurposeStorage AccumulatorPurpose = "storage"
	PurposeGrid    AccumulatorPurpose = "grid"
	PurposePV      AccumulatorPurpose = "pv"
)

type AccumulatorKey struct {
	DeviceId    domain.DeviceId
	ComponentId domain.ComponentId
	Purpose     AccumulatorPurpose
}

// EnergyTotals are cumulative energies in watt-hours.
type EnergyTotals struct {
	Imported float64
	Exported float64
}

type accumulatorState struct {
	totals     EnergyTotals
	lastSample time.Time
	hasSample  bool
}

// EnergyAccumulator integrates instantaneous power samples into cumulative
// imported/exported energy, one running total per key.
type EnergyAccumulator struct {
	mu     sync.Mutex
	states map[AccumulatorKey]*accumulatorState
}

func NewEnergyAccumulator() *EnergyAccumulator {
	return &EnergyAccumulator{
		states: make(map[AccumulatorKey]*accumulatorState),
	}
}

// Accumulate adds the energy drawn since the previous sample of key and returns
// the increments of this call. The first sample of a key only sets the baseline.
// A sample older than the previous one is ignored and yields (0, 0).
func (a *EnergyAccumulator) Accumulate(key AccumulatorKey, powerWatts float64, now time.Time) (imported, exported float64) {
	a.mu.Lock()
	defer a.mu.Unlock()

	st := a.state(key)
	if !st.hasSample {
		st.lastSample = now
		st.hasSample = true
		return 0, 0
	}
	elapsed := now.Sub(st.lastSample)
	if elapsed < 0 {
		// clock anomaly: keep baseline and totals
		return 0, 0
	}
	st.lastSample = now

	energy := powerWatts * elapsed.Hours()
	if powerWatts >= 0 {
		st.totals.Imported += energy
		return energy, 0
	}
	energy = math.Abs(energy)
	st.totals.Exported += energy
	return 0, energy
}

func (a *EnergyAccumulator) Totals(key AccumulatorKey) EnergyTotals {
	a.mu.Lock()
	defer a.mu.Unlock()
	if st, ok := a.states[key]; ok {
		return st.totals
	}
	return EnergyTotals{}
}

// Restore seeds the totals of key, e.g. after a restart. The sample baseline is
// not restored, so the next Accumulate call for key only sets it.
func (a *EnergyAccumulator) Restore(key AccumulatorKey, totals EnergyTotals) {
	a.mu.Lock()
	defer a.mu.Unlock()
	st := a.state(key)
	st.totals = EnergyTotals{
		Imported: validTotal(totals.Imported),
		Exported: validTotal(totals.Exported),
	}
}

// validTotal maps negative and non-finite totals to 0.
func validTotal(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return 0
	}
	return v
}

func (a *EnergyAccumulator) Snapshot() map[AccumulatorKey]EnergyTotals {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make(map[AccumulatorKey]EnergyTotals, len(a.states))
	for k, st := range a.states {
		out[k] = st.totals
	}
	return out
}

func (a *EnergyAccumulator) state(key AccumulatorKey) *accumulatorState {
	st, ok := a.states[key]
	if !ok {
		st = &accumulatorState{}
		a.states[key] = st
	}
	return st
}

// Meter binds an accumulator to the key of one component.
type Meter struct {
	acc *EnergyAccumulator
	key AccumulatorKey
}

func NewMeter(acc *EnergyAccumulator, key AccumulatorKey) Meter {
	return Meter{acc: acc, key: key}
}

func (m Meter) Key() AccumulatorKey {
	return m.key
}

// Count accumulates one power sample and returns the running totals.
func (m Meter) Count(powerWatts float64, now time.Time) EnergyTotals {
	m.acc.Accumulate(m.key, powerWatts, now)
	return m.acc.Totals(m.key)
}

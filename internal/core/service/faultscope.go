package service

import (
	"fmt"
	"sync"
	"time"

	"github.com/berfenger/senec2mqtt/internal/core/domain"
	"github.com/berfenger/senec2mqtt/internal/core/port"
)

// FaultState holds the last fault record of one component. Records are written
// by a FaultScope and may be read concurrently.
type FaultState struct {
	info   domain.ComponentInfo
	sink   port.FaultSink
	mu     sync.RWMutex
	record domain.FaultRecord
	writes uint64
}

func NewFaultState(info domain.ComponentInfo, sink port.FaultSink) *FaultState {
	return &FaultState{
		info: info,
		sink: sink,
		record: domain.FaultRecord{
			Healthy: true,
			Cause:   domain.FaultCauseNone,
		},
	}
}

func (f *FaultState) Info() domain.ComponentInfo {
	return f.info
}

func (f *FaultState) Record() domain.FaultRecord {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.record
}

// Writes counts the records written since registration.
func (f *FaultState) Writes() uint64 {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.writes
}

func (f *FaultState) write(record domain.FaultRecord) {
	f.mu.Lock()
	f.record = record
	f.writes++
	f.mu.Unlock()
	if f.sink != nil {
		f.sink.Report(f.info, record)
	}
}

// FaultScope guards one update step of one component. Close writes exactly one
// record to the fault state, however often it is called.
type FaultScope struct {
	state  *FaultState
	now    func() time.Time
	closed bool
	record domain.FaultRecord
}

func OpenFaultScope(state *FaultState, now func() time.Time) *FaultScope {
	if now == nil {
		now = time.Now
	}
	return &FaultScope{state: state, now: now}
}

// Close records the outcome of the step. A nil error marks the component
// healthy and clears any previous failure.
func (s *FaultScope) Close(err error) domain.FaultRecord {
	if s.closed {
		return s.record
	}
	s.closed = true
	if err == nil {
		s.record = domain.HealthyRecord(s.now())
	} else {
		s.record = domain.FaultRecord{
			Healthy:   false,
			Cause:     domain.ClassifyFault(err),
			Detail:    err.Error(),
			UpdatedAt: s.now(),
		}
	}
	s.state.write(s.record)
	return s.record
}

// Guard runs step inside a fault scope. Errors and panics of step are recorded
// and never propagated.
func (f *FaultState) Guard(now func() time.Time, step func() error) (record domain.FaultRecord) {
	scope := OpenFaultScope(f, now)
	defer func() {
		if r := recover(); r != nil {
			record = scope.Close(fmt.Errorf("panic in update step: %v", r))
		}
	}()
	return scope.Close(step())
}

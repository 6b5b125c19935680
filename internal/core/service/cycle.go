package service

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/berfenger/senec2mqtt/internal/core/domain"
	"github.com/berfenger/senec2mqtt/internal/core/port"
	"go.uber.org/zap"
)

type CycleState int

const (
	CycleUninitialized CycleState = iota
	CycleSessionReady
	CycleUpdating
	CycleIdle
)

func (s CycleState) String() string {
	switch s {
	case CycleUninitialized:
		return "uninitialized"
	case CycleSessionReady:
		return "session_ready"
	case CycleUpdating:
		return "updating"
	case CycleIdle:
		return "idle"
	default:
		return fmt.Sprintf("cycle_state_%d", int(s))
	}
}

// Component is one registered component of a device.
type Component struct {
	Info      domain.ComponentInfo
	Store     port.ValueStore
	Fault     *FaultState
	Meter     Meter
	normalize Normalizer
}

type ComponentResult struct {
	Info   domain.ComponentInfo
	Record domain.FaultRecord
}

type CycleReport struct {
	Started  time.Time
	Duration time.Duration
	Results  []ComponentResult
	// Skipped is set when another Run of the same cycle was still in progress.
	Skipped bool
}

func (r CycleReport) Failed() int {
	n := 0
	for i := range r.Results {
		if !r.Results[i].Record.Healthy {
			n++
		}
	}
	return n
}

// UpdateCycle polls every registered component of one device, in registration
// order, each inside its own fault scope.
type UpdateCycle struct {
	deviceId     domain.DeviceId
	session      *DeviceSession
	accumulator  *EnergyAccumulator
	stores       port.StoreProvider
	sink         port.FaultSink
	components   []*Component
	shareReading bool
	state        atomic.Int32
	running      atomic.Bool
	now          func() time.Time
	logger       *zap.Logger
}

type CycleOption func(*UpdateCycle)

func WithClock(now func() time.Time) CycleOption {
	return func(c *UpdateCycle) {
		c.now = now
	}
}

// WithSharedReading controls whether all components of a cycle use one reading
// (or one read error). It is on by default; off reads once per component.
func WithSharedReading(share bool) CycleOption {
	return func(c *UpdateCycle) {
		c.shareReading = share
	}
}

func WithFaultSink(sink port.FaultSink) CycleOption {
	return func(c *UpdateCycle) {
		c.sink = sink
	}
}

func NewUpdateCycle(deviceId domain.DeviceId, session *DeviceSession, accumulator *EnergyAccumulator,
	stores port.StoreProvider, logger *zap.Logger, opts ...CycleOption) *UpdateCycle {
	c := &UpdateCycle{
		deviceId:     deviceId,
		session:      session,
		accumulator:  accumulator,
		stores:       stores,
		shareReading: true,
		now:          time.Now,
		logger:       logger.With(zap.String("device", session.Name())),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Register adds a component. Components are updated in registration order.
func (c *UpdateCycle) Register(info domain.ComponentInfo) (*Component, error) {
	if info.DeviceId != c.deviceId {
		return nil, fmt.Errorf("component %s belongs to device %d, not %d", info, info.DeviceId, c.deviceId)
	}
	for _, comp := range c.components {
		if comp.Info.Id == info.Id {
			return nil, fmt.Errorf("component id %d already registered", info.Id)
		}
	}
	normalize, purpose, err := NormalizerFor(info.Kind)
	if err != nil {
		return nil, err
	}
	comp := &Component{
		Info:  info,
		Store: c.stores.Store(info.Id),
		Fault: NewFaultState(info, c.sink),
		Meter: NewMeter(c.accumulator, AccumulatorKey{
			DeviceId:    info.DeviceId,
			ComponentId: info.Id,
			Purpose:     purpose,
		}),
		normalize: normalize,
	}
	c.components = append(c.components, comp)
	return comp, nil
}

func (c *UpdateCycle) Components() []*Component {
	out := make([]*Component, len(c.components))
	copy(out, c.components)
	return out
}

func (c *UpdateCycle) State() CycleState {
	return CycleState(c.state.Load())
}

func (c *UpdateCycle) setState(s CycleState) {
	c.state.Store(int32(s))
}

func (c *UpdateCycle) DeviceId() domain.DeviceId {
	return c.deviceId
}

// Run executes one cycle. It never fails as a whole: every component failure is
// contained by that component's fault scope. Run is not reentrant: a call made
// while another is in progress returns a Skipped report without touching the
// session or any component.
func (c *UpdateCycle) Run(ctx context.Context) CycleReport {
	if !c.running.CompareAndSwap(false, true) {
		c.logger.Warn("cycle: previous run still in progress, skipping")
		return CycleReport{Skipped: true}
	}
	defer c.running.Store(false)

	report := CycleReport{Started: c.now()}

	if c.State() == CycleUninitialized {
		if _, err := c.session.EnsureConnected(); err != nil {
			c.logger.Warn("cycle: session not ready", zap.Error(err))
		} else {
			c.setState(CycleSessionReady)
		}
	}
	prev := c.State()
	c.setState(CycleUpdating)

	read := c.session.Read
	if c.shareReading {
		read = onceReader(c.session.Read)
	}

	c.logger.Debug("cycle: updating components", zap.Int("components", len(c.components)))
	for _, comp := range c.components {
		rec := comp.Fault.Guard(c.now, func() error {
			return c.update(ctx, comp, read)
		})
		report.Results = append(report.Results, ComponentResult{Info: comp.Info, Record: rec})
	}

	if prev == CycleUninitialized && !c.session.Connected() {
		c.setState(CycleUninitialized)
	} else {
		c.setState(CycleIdle)
	}
	report.Duration = c.now().Sub(report.Started)
	return report
}

func (c *UpdateCycle) update(ctx context.Context, comp *Component, read func(context.Context) (domain.RawReading, error)) error {
	reading, err := read(ctx)
	if err != nil {
		return err
	}
	state, err := comp.normalize(reading, comp.Meter, c.now())
	if err != nil {
		return err
	}
	comp.Store.Set(state)
	return nil
}

func onceReader(read func(context.Context) (domain.RawReading, error)) func(context.Context) (domain.RawReading, error) {
	var (
		done    bool
		reading domain.RawReading
		err     error
	)
	return func(ctx context.Context) (domain.RawReading, error) {
		if !done {
			reading, err = read(ctx)
			done = true
		}
		return reading, err
	}
}

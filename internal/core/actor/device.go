package actor

import (
	"context"
	"fmt"
	"time"

	"github.com/berfenger/senec2mqtt/internal/core/domain"
	"github.com/berfenger/senec2mqtt/internal/core/service"
	. "github.com/berfenger/senec2mqtt/internal/util/actorutil"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"github.com/asynkron/protoactor-go/scheduler"
	"go.uber.org/zap"
)

// CycleHook runs on the actor goroutine after every completed cycle.
type CycleHook func(report service.CycleReport)

type DeviceSpec struct {
	Id    domain.DeviceId
	Name  string
	Type  string
	Cycle *service.UpdateCycle
	// optional
	OnCycle CycleHook
}

func (s DeviceSpec) Summary() domain.DeviceSummary {
	components := s.Cycle.Components()
	infos := make([]domain.ComponentInfo, 0, len(components))
	for _, c := range components {
		infos = append(infos, c.Info)
	}
	return domain.DeviceSummary{
		Id:         s.Id,
		Name:       s.Name,
		Type:       s.Type,
		Components: infos,
	}
}

// DeviceActor drives the update cycle of one device on a fixed-rate tick.
// At most one cycle runs at a time; ticks arriving meanwhile are dropped.
type DeviceActor struct {
	ActorWithStates
	spec         DeviceSpec
	interval     time.Duration
	cycleTimeout time.Duration
	eventStream  *eventstream.EventStream
	scheduler    *scheduler.TimerScheduler
	cancelTick   scheduler.CancelFunc
	stash        *Stash

	lastReport   *service.CycleReport
	droppedTicks uint64

	logger *zap.Logger
}

type deviceTick struct {
}

type cycleDone struct {
	report service.CycleReport
	err    error
}

func NewDeviceActor(spec DeviceSpec, interval, cycleTimeout time.Duration, eventStream *eventstream.EventStream, logger *zap.Logger) *DeviceActor {
	act := &DeviceActor{
		spec:         spec,
		interval:     interval,
		cycleTimeout: cycleTimeout,
		eventStream:  eventStream,
		stash:        &Stash{},
		logger:       ActorLogger(domain.DeviceActorId(spec.Id), logger).With(zap.String("device", spec.Name)),
		ActorWithStates: ActorWithStates{
			Behavior: actor.NewBehavior(),
		},
	}
	act.Become(DeviceStartingState{
		actor: act,
	})
	return act
}

func (state *DeviceActor) Receive(context actor.Context) {
	state.Behavior.Receive(context)
}

// Starting state

type DeviceStartingState struct {
	ActorState
	actor *DeviceActor
}

func (state DeviceStartingState) Name() string {
	return "starting"
}

func (state DeviceStartingState) Receive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.actor.logger.Debug("device@starting started", zap.Duration("interval", state.actor.interval))

		state.actor.scheduler = scheduler.NewTimerScheduler(ctx)

		// first cycle runs right away
		ctx.Send(ctx.Self(), deviceTick{})

		state.actor.Become(DeviceIdleState{
			actor: state.actor,
		})
		state.actor.stash.UnstashAll(ctx)
	case *actor.Restarting:
		state.actor.stop()
	default:
		state.actor.logger.Debug("device@starting: stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.actor.stash.Stash(ctx, msg)
	}
}

// Idle state

type DeviceIdleState struct {
	ActorState
	actor *DeviceActor
}

func (state DeviceIdleState) Name() string {
	return "idle"
}

func (state DeviceIdleState) Receive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case deviceTick:
		state.actor.logger.Debug("device@idle tick")
		state.actor.scheduleTick(ctx)
		state.actor.startCycle(ctx)
		state.actor.Become(DeviceUpdatingState{
			actor: state.actor,
		})
	case domain.ActorHealthRequest:
		ctx.Respond(state.actor.health(state.actor.spec.Cycle.State().String()))
	case domain.GetComponentStatesRequest:
		ForRequest(msg).Respond(ctx, state.actor.componentStates(msg, state.actor.spec.Cycle.State().String()))
	case *actor.Restarting:
		state.actor.stop()
	case *actor.Stopping:
		state.actor.stop()
	}
}

// Updating state

type DeviceUpdatingState struct {
	ActorState
	actor *DeviceActor
}

func (state DeviceUpdatingState) Name() string {
	return "updating"
}

func (state DeviceUpdatingState) Receive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case deviceTick:
		state.actor.droppedTicks++
		state.actor.logger.Debug("device@updating tick dropped, cycle still running", zap.Uint64("dropped", state.actor.droppedTicks))
		state.actor.scheduleTick(ctx)
	case cycleDone:
		switch {
		case msg.err != nil:
			state.actor.logger.Error("device@updating cycle aborted", zap.Error(msg.err))
		case msg.report.Skipped:
			// a run started before a restart still owns the cycle
			state.actor.logger.Debug("device@updating cycle skipped")
		default:
			state.actor.completeCycle(msg.report)
		}
		state.actor.Become(DeviceIdleState{
			actor: state.actor,
		})
	case domain.ActorHealthRequest:
		// the cycle owns its state while running
		ctx.Respond(state.actor.health(state.Name()))
	case domain.GetComponentStatesRequest:
		ForRequest(msg).Respond(ctx, state.actor.componentStates(msg, state.Name()))
	case *actor.Restarting:
		state.actor.stop()
	case *actor.Stopping:
		state.actor.stop()
	}
}

func (state *DeviceActor) scheduleTick(ctx actor.Context) {
	state.cancelTick = state.scheduler.RequestOnce(state.interval, ctx.Self(), deviceTick{})
}

func (state *DeviceActor) startCycle(ctx actor.Context) {
	cycle := state.spec.Cycle
	timeout := state.cycleTimeout
	NewBackgroundTaskNoError(ctx, func() *cycleDone {
		runCtx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		return &cycleDone{report: cycle.Run(runCtx)}
	}).Recover(func(err error) cycleDone {
		return cycleDone{err: err}
	}).PipeTo(ctx.Self())
}

func (state *DeviceActor) completeCycle(report service.CycleReport) {
	state.lastReport = &report

	failed := report.Failed()
	if failed > 0 {
		state.logger.Debug("device cycle completed with failures", zap.Int("failed", failed), zap.Int("components", len(report.Results)), zap.Duration("duration", report.Duration))
	} else {
		state.logger.Debug("device cycle completed", zap.Int("components", len(report.Results)), zap.Duration("duration", report.Duration))
	}

	at := report.Started.Add(report.Duration)
	for _, comp := range state.spec.Cycle.Components() {
		snapshot, _ := comp.Store.Get()
		state.eventStream.Publish(domain.ComponentSnapshotEvent{
			Device: state.spec.Name,
			Info:   comp.Info,
			State:  snapshot,
			Fault:  comp.Fault.Record(),
			At:     at,
		})
	}

	if state.spec.OnCycle != nil {
		state.spec.OnCycle(report)
	}
}

// health reports unhealthy only when the last cycle failed every component.
func (state *DeviceActor) health(stateName string) domain.ActorHealthResponse {
	healthy := true
	if r := state.lastReport; r != nil && len(r.Results) > 0 && r.Failed() == len(r.Results) {
		healthy = false
	}
	return domain.ActorHealthResponse{
		Id:      domain.DeviceActorId(state.spec.Id),
		Healthy: healthy,
		State:   stateName,
	}
}

func (state *DeviceActor) componentStates(req domain.GetComponentStatesRequest, stateName string) domain.GetComponentStatesResponse {
	resp := domain.GetComponentStatesResponse{
		DeviceId:   state.spec.Id,
		CycleState: stateName,
	}
	if state.lastReport != nil {
		resp.LastCycle = state.lastReport.Started
	}
	for _, comp := range state.spec.Cycle.Components() {
		if req.ComponentId != nil && *req.ComponentId != comp.Info.Id {
			continue
		}
		snapshot, _ := comp.Store.Get()
		resp.Components = append(resp.Components, domain.ComponentStatus{
			Info:  comp.Info,
			State: snapshot,
			Fault: comp.Fault.Record(),
		})
	}
	if req.ComponentId != nil && len(resp.Components) == 0 {
		resp.ResponseError = domain.ErrUnknownComponent
	}
	return resp
}

func (state *DeviceActor) stop() {
	if state.cancelTick != nil {
		state.cancelTick()
		state.cancelTick = nil
	}
}

package actor

import (
	"fmt"
	"log"
	"time"

	"github.com/berfenger/senec2mqtt/internal/config"
	"github.com/berfenger/senec2mqtt/internal/core/domain"
	. "github.com/berfenger/senec2mqtt/internal/util/actorutil"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"go.uber.org/zap"
)

// PublisherActorProvider builds an actor mirroring the event stream to an
// external system (MQTT, Kafka).
type PublisherActorProvider func(*eventstream.EventStream) actor.Actor

type MasterOfPuppetsActor struct {
	config   config.Config
	behavior actor.Behavior
	stash    *Stash

	devices            []DeviceSpec
	deviceActors       map[domain.DeviceId]*actor.PID
	componentDevice    map[domain.ComponentId]domain.DeviceId
	currentHealthCheck healthCheckResult
	eventStream        *eventstream.EventStream
	mqttActor          *actor.PID
	kafkaActor         *actor.PID
	mqttActorProvider  PublisherActorProvider
	kafkaActorProvider PublisherActorProvider
	logger             *zap.Logger
}

type healthCheckResult struct {
	expected  int
	received  int
	unhealthy []string
	respondTo *actor.PID
}

type child struct {
	id  string
	pid *actor.PID
}

// NewMasterOfPuppetsActor supervises one actor per device plus the optional
// MQTT and Kafka publishers. A nil provider disables that publisher.
func NewMasterOfPuppetsActor(config config.Config, devices []DeviceSpec, eventStream *eventstream.EventStream,
	mqttActorProvider, kafkaActorProvider PublisherActorProvider, logger *zap.Logger) *MasterOfPuppetsActor {
	componentDevice := make(map[domain.ComponentId]domain.DeviceId)
	for _, d := range devices {
		for _, c := range d.Cycle.Components() {
			componentDevice[c.Info.Id] = d.Id
		}
	}
	act := &MasterOfPuppetsActor{
		config:             config,
		behavior:           actor.NewBehavior(),
		stash:              &Stash{},
		logger:             ActorLogger(domain.ACTOR_ID_MASTER, logger),
		devices:            devices,
		deviceActors:       make(map[domain.DeviceId]*actor.PID, len(devices)),
		componentDevice:    componentDevice,
		eventStream:        eventStream,
		mqttActorProvider:  mqttActorProvider,
		kafkaActorProvider: kafkaActorProvider,
	}
	act.behavior.Become(act.StartingReceive)
	return act
}

func (state *MasterOfPuppetsActor) Receive(context actor.Context) {
	state.behavior.Receive(context)
}

func (state *MasterOfPuppetsActor) StartingReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.logger.Debug("master@starting started", zap.Int("devices", len(state.devices)))

		// start device children
		for _, spec := range state.devices {
			pid, err := state.startDeviceActor(ctx, spec)
			if err != nil {
				panic(err)
			}
			state.deviceActors[spec.Id] = pid
		}

		// start MQTT child
		if state.mqttActorProvider != nil {
			mqttActorPID, err := state.startPublisherActor(ctx, domain.ACTOR_ID_MQTT, state.mqttActorProvider)
			if err != nil {
				panic(err)
			}
			state.mqttActor = mqttActorPID
		}

		// start Kafka child
		if state.kafkaActorProvider != nil {
			kafkaActorPID, err := state.startPublisherActor(ctx, domain.ACTOR_ID_KAFKA, state.kafkaActorProvider)
			if err != nil {
				panic(err)
			}
			state.kafkaActor = kafkaActorPID
		}

		// start HA Discovery
		if state.config.MQTT.HADiscoveryEnable && state.mqttActor != nil {
			_, err := state.startHADiscoveryActor(ctx)
			if err != nil {
				panic(err)
			}
		}

		state.behavior.Become(state.DefaultReceive)
		state.stash.UnstashAll(ctx)
	default:
		state.logger.Debug("master@starting stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *MasterOfPuppetsActor) DefaultReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.ActorHealthRequest:
		state.logger.Debug("master@default ActorHealthRequest")
		children := state.children()
		state.currentHealthCheck.reset(len(children))
		state.currentHealthCheck.respondTo = ctx.Sender()
		for _, c := range children {
			id := c.id
			PipeToSelfWithRecover(ctx, ctx.RequestFuture(c.pid, domain.ActorHealthRequest{}, 500*time.Millisecond), func(err error) any {
				return domain.ActorHealthResponse{
					Id:      id,
					Healthy: false,
				}
			})
		}

		ctx.SetReceiveTimeout(1 * time.Second)

		state.behavior.BecomeStacked(state.HealthCheckReceive)
	case domain.GetDevicesRequest:
		devices := make([]domain.DeviceSummary, 0, len(state.devices))
		for _, spec := range state.devices {
			devices = append(devices, spec.Summary())
		}
		ForRequest(msg).Respond(ctx, domain.GetDevicesResponse{Devices: devices})
	case domain.GetComponentStatesRequest:
		state.routeComponentStates(ctx, msg)
	case *actor.Terminated:
		state.logger.Warn("master@default child terminated", zap.String("child", msg.Who.Id))
	case *actor.ReceiveTimeout:
		ctx.CancelReceiveTimeout()
	default:
		state.logger.Debug("master@default unhandled", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

func (state *MasterOfPuppetsActor) HealthCheckReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.ReceiveTimeout:
		// if some actor does not respond to healthCheck, assume not healthy
		state.finishHealthCheck(ctx)
	case domain.ActorHealthResponse:
		state.logger.Debug("master@healthcheck ActorHealthResponse", zap.String("sender", msg.Id), zap.Bool("healthy", msg.Healthy))
		state.currentHealthCheck.received++
		if !msg.Healthy {
			state.currentHealthCheck.unhealthy = append(state.currentHealthCheck.unhealthy, msg.Id)
		}
		if state.currentHealthCheck.allReceived() {
			state.finishHealthCheck(ctx)
		} else {
			ctx.SetReceiveTimeout(1 * time.Second)
		}
	default:
		state.logger.Debug("master@healthcheck stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *MasterOfPuppetsActor) finishHealthCheck(ctx actor.Context) {
	ctx.CancelReceiveTimeout()
	state.currentHealthCheck.respond(ctx)
	state.behavior.UnbecomeStacked()
	state.stash.UnstashAll(ctx)
}

// routeComponentStates forwards the request to the owning device actor, which
// answers the original sender.
func (state *MasterOfPuppetsActor) routeComponentStates(ctx actor.Context, msg domain.GetComponentStatesRequest) {
	if msg.ComponentId != nil {
		deviceId, ok := state.componentDevice[*msg.ComponentId]
		if !ok {
			ForRequest(msg).Respond(ctx, domain.GetComponentStatesResponse{
				ActorResponseMixIn: domain.ActorResponseMixIn{ResponseError: domain.ErrUnknownComponent},
			})
			return
		}
		msg.DeviceId = deviceId
	}
	pid, ok := state.deviceActors[msg.DeviceId]
	if !ok {
		ForRequest(msg).Respond(ctx, domain.GetComponentStatesResponse{
			ActorResponseMixIn: domain.ActorResponseMixIn{ResponseError: domain.ErrUnknownDevice},
		})
		return
	}
	ctx.RequestWithCustomSender(pid, msg, ForRequest(msg).ReplyTo(ctx))
}

func (state *MasterOfPuppetsActor) children() []child {
	var children []child
	for _, spec := range state.devices {
		if pid, ok := state.deviceActors[spec.Id]; ok {
			children = append(children, child{id: domain.DeviceActorId(spec.Id), pid: pid})
		}
	}
	if state.mqttActor != nil {
		children = append(children, child{id: domain.ACTOR_ID_MQTT, pid: state.mqttActor})
	}
	if state.kafkaActor != nil {
		children = append(children, child{id: domain.ACTOR_ID_KAFKA, pid: state.kafkaActor})
	}
	return children
}

func (state *MasterOfPuppetsActor) startDeviceActor(ctx actor.Context, spec DeviceSpec) (*actor.PID, error) {

	decider := func(reason interface{}) actor.Directive {
		log.Printf("handling failure for device %d. reason: %v", spec.Id, reason)
		return actor.RestartDirective
	}
	supervisor := actor.NewOneForOneStrategy(10, 1*time.Minute, decider)

	interval := state.config.PollInterval()
	cycleTimeout := state.config.CycleTimeout()
	deviceProps := actor.PropsFromProducer(func() actor.Actor {
		return NewDeviceActor(spec, interval, cycleTimeout, state.eventStream, state.logger)
	}, actor.WithSupervisor(supervisor))
	return ctx.SpawnNamed(deviceProps, domain.DeviceActorId(spec.Id))
}

func (state *MasterOfPuppetsActor) startPublisherActor(ctx actor.Context, id string, provider PublisherActorProvider) (*actor.PID, error) {

	supervisor := actor.NewExponentialBackoffStrategy(10*time.Second, 1*time.Second)

	props := actor.PropsFromProducer(func() actor.Actor {
		return provider(state.eventStream)
	}, actor.WithSupervisor(supervisor))
	return ctx.SpawnNamed(props, id)
}

func (state *MasterOfPuppetsActor) startHADiscoveryActor(ctx actor.Context) (*actor.PID, error) {

	decider := func(reason interface{}) actor.Directive {
		log.Printf("handling failure for child. reason: %v", reason)
		return actor.RestartDirective
	}
	supervisor := actor.NewOneForOneStrategy(10, 1*time.Minute, decider)

	haDiscProps := actor.PropsFromProducer(func() actor.Actor {
		return NewHADiscoveryActor(state.config.MQTT, state.devices, state.mqttActor, state.logger)
	}, actor.WithSupervisor(supervisor))
	return ctx.SpawnNamed(haDiscProps, domain.ACTOR_ID_HA_DISCOVERY)
}

func (state *healthCheckResult) reset(expected int) {
	state.expected = expected
	state.received = 0
	state.unhealthy = nil
	state.respondTo = nil
}

func (state *healthCheckResult) allReceived() bool {
	return state.received >= state.expected
}

func (state *healthCheckResult) allHealthy() bool {
	return state.allReceived() && len(state.unhealthy) == 0
}

func (state *healthCheckResult) respond(ctx actor.Context) {
	resp := domain.ActorHealthResponse{
		Id:      domain.ACTOR_ID_MASTER,
		Healthy: state.allHealthy(),
	}
	if len(state.unhealthy) > 0 {
		resp.State = fmt.Sprintf("unhealthy: %v", state.unhealthy)
	}
	if state.respondTo != nil {
		ctx.Send(state.respondTo, resp)
	}
}

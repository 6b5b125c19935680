package actor

import (
	"strings"
	"testing"
	"time"

	adactor "github.com/berfenger/senec2mqtt/internal/adapter/actor"
	"github.com/berfenger/senec2mqtt/internal/core/domain"
	"github.com/berfenger/senec2mqtt/internal/core/events"
	"github.com/berfenger/senec2mqtt/internal/mqtt"
	"github.com/berfenger/senec2mqtt/internal/util"
	"github.com/berfenger/senec2mqtt/internal/util/actorutil"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestMasterActor(t *testing.T) {

	cfg := util.LoadTestConfig()
	logCfg := zap.NewDevelopmentConfig()
	logCfg.Level = zap.NewAtomicLevelAt(cfg.LogLevel)
	logger := zap.Must(logCfg.Build())

	as := actorutil.NewActorSystemWithZapLogger(logger)
	context := as.Root
	defer as.Shutdown()

	spec := newTestSpec(t, &stubClient{reading: testReading()})
	es := &eventstream.EventStream{}
	ch, sub := snapshotChannel(es)
	defer es.Unsubscribe(sub)

	props := actor.PropsFromProducer(func() actor.Actor {
		return NewMasterOfPuppetsActor(cfg, []DeviceSpec{spec}, es, nil, nil, logger)
	})
	pid, err := context.SpawnNamed(props, "master")
	require.NoError(t, err)
	defer context.Stop(pid)

	receiveSnapshots(t, ch, 3)

	res, err := context.RequestFuture(pid, domain.ActorHealthRequest{}, 5*time.Second).Result()
	require.NoError(t, err)
	healthResp, ok := res.(domain.ActorHealthResponse)
	require.True(t, ok)
	assert.True(t, healthResp.Healthy, "healthy is true")

	res, err = context.RequestFuture(pid, domain.GetDevicesRequest{}, 2*time.Second).Result()
	require.NoError(t, err)
	devices := res.(domain.GetDevicesResponse).Devices
	require.Len(t, devices, 1)
	assert.Equal(t, "home", devices[0].Name)
	assert.Len(t, devices[0].Components, 3)

	id := domain.ComponentId(11)
	res, err = context.RequestFuture(pid, domain.GetComponentStatesRequest{ComponentId: &id}, 2*time.Second).Result()
	require.NoError(t, err)
	states := res.(domain.GetComponentStatesResponse)
	require.False(t, states.HasResponseError())
	assert.Equal(t, domain.DeviceId(1), states.DeviceId)
	require.Len(t, states.Components, 1)
	counter := states.Components[0].State.(domain.CounterState)
	assert.Equal(t, -300.25, counter.Power)

	unknown := domain.ComponentId(42)
	res, err = context.RequestFuture(pid, domain.GetComponentStatesRequest{ComponentId: &unknown}, 2*time.Second).Result()
	require.NoError(t, err)
	assert.ErrorIs(t, res.(domain.GetComponentStatesResponse).GetResponseError(), domain.ErrUnknownComponent)

	res, err = context.RequestFuture(pid, domain.GetComponentStatesRequest{DeviceId: 7}, 2*time.Second).Result()
	require.NoError(t, err)
	assert.ErrorIs(t, res.(domain.GetComponentStatesResponse).GetResponseError(), domain.ErrUnknownDevice)
}

func TestMasterActorAnnouncesDiscovery(t *testing.T) {

	cfg := util.LoadTestConfig()
	cfg.MQTT.HADiscoveryEnable = true
	logger := zap.NewNop()

	as := actorutil.NewActorSystemWithZapLogger(logger)
	context := as.Root
	defer as.Shutdown()

	paho := mqtt.NewTestPahoClient()
	mqttProvider := func(es *eventstream.EventStream) actor.Actor {
		return adactor.NewMQTTActor(func(func(error)) *mqtt.MQTTClient {
			return mqtt.WrapClient(cfg.MQTT, paho)
		}, es, logger)
	}

	spec := newTestSpec(t, &stubClient{reading: testReading()})
	pid, err := context.SpawnNamed(actor.PropsFromProducer(func() actor.Actor {
		return NewMasterOfPuppetsActor(cfg, []DeviceSpec{spec}, &eventstream.EventStream{}, mqttProvider, nil, logger)
	}), "master")
	require.NoError(t, err)
	defer context.Stop(pid)

	timeout := time.After(5 * time.Second)
	discovered := map[string]bool{}
	for !discovered["bat_10_soc"] || !discovered["counter_11_voltage_l2"] || !discovered["inverter_12_exported"] {
		select {
		case msg := <-paho.Published():
			if strings.HasPrefix(msg.Topic, cfg.MQTT.HADiscoveryTopic+"/") {
				parts := strings.Split(msg.Topic, "/")
				discovered[parts[len(parts)-2]] = true
			}
		case <-timeout:
			t.Fatalf("discovery incomplete: %v", discovered)
		}
	}
	assert.True(t, discovered[events.SENSOR_ID_BRIDGE_STATE])
}


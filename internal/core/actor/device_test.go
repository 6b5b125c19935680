package actor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/berfenger/senec2mqtt/internal/adapter/store"
	"github.com/berfenger/senec2mqtt/internal/core/domain"
	"github.com/berfenger/senec2mqtt/internal/core/port"
	"github.com/berfenger/senec2mqtt/internal/core/service"
	"github.com/berfenger/senec2mqtt/internal/util/actorutil"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type stubClient struct {
	mu      sync.Mutex
	reading domain.RawReading
	err     error
	calls   int
	block   chan struct{}
}

func (c *stubClient) GetValues(ctx context.Context) (domain.RawReading, error) {
	c.mu.Lock()
	c.calls++
	block := c.block
	c.mu.Unlock()
	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return c.reading, c.err
}

func (c *stubClient) Calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

func testReading() domain.RawReading {
	return domain.RawReading{
		domain.SectionEnergy: map[string]any{
			domain.KeyBatPower:      600.0,
			domain.KeyBatSoC:        55.5,
			domain.KeyInverterPower: 2500.0,
		},
		domain.SectionCounter: map[string]any{
			domain.KeyCounterPower:     -300.25,
			domain.KeyCounterFrequency: 50.0,
			domain.KeyCounterCurrents:  []any{1.5, 2.25, 3.0},
			domain.KeyCounterVoltages:  []any{230.0, 231.5, 229.75},
			domain.KeyCounterPowers:    []any{100.0, 200.0, -50.0},
		},
	}
}

func newTestSpec(t *testing.T, client port.DeviceClient) DeviceSpec {
	t.Helper()
	logger := zap.NewNop()
	session := service.NewDeviceSession("home", func() (port.DeviceClient, error) { return client, nil }, logger)
	cycle := service.NewUpdateCycle(1, session, service.NewEnergyAccumulator(), store.NewMemory(), logger)
	for _, info := range []domain.ComponentInfo{
		{Id: 10, DeviceId: 1, Kind: domain.ComponentKindBat},
		{Id: 11, DeviceId: 1, Kind: domain.ComponentKindCounter},
		{Id: 12, DeviceId: 1, Kind: domain.ComponentKindInverter},
	} {
		_, err := cycle.Register(info)
		require.NoError(t, err)
	}
	return DeviceSpec{Id: 1, Name: "home", Type: "senec", Cycle: cycle}
}

func snapshotChannel(es *eventstream.EventStream) (<-chan domain.ComponentSnapshotEvent, *eventstream.Subscription) {
	ch := make(chan domain.ComponentSnapshotEvent, 256)
	sub := es.Subscribe(func(evt any) {
		if ev, ok := evt.(domain.ComponentSnapshotEvent); ok {
			select {
			case ch <- ev:
			default:
			}
		}
	})
	return ch, sub
}

func receiveSnapshots(t *testing.T, ch <-chan domain.ComponentSnapshotEvent, n int) []domain.ComponentSnapshotEvent {
	t.Helper()
	var out []domain.ComponentSnapshotEvent
	timeout := time.After(3 * time.Second)
	for len(out) < n {
		select {
		case ev := <-ch:
			out = append(out, ev)
		case <-timeout:
			t.Fatalf("received %d of %d snapshots", len(out), n)
		}
	}
	return out
}

func TestDeviceActorPublishesSnapshots(t *testing.T) {
	as := actorutil.NewActorSystemWithZapLogger(zap.NewNop())
	context := as.Root
	defer as.Shutdown()

	es := &eventstream.EventStream{}
	ch, sub := snapshotChannel(es)
	defer es.Unsubscribe(sub)

	hooks := make(chan service.CycleReport, 8)
	spec := newTestSpec(t, &stubClient{reading: testReading()})
	spec.OnCycle = func(r service.CycleReport) { hooks <- r }

	pid := context.Spawn(actor.PropsFromProducer(func() actor.Actor {
		return NewDeviceActor(spec, time.Hour, time.Second, es, zap.NewNop())
	}))
	defer context.Stop(pid)

	snapshots := receiveSnapshots(t, ch, 3)
	assert.Equal(t, domain.ComponentId(10), snapshots[0].Info.Id)
	assert.Equal(t, domain.ComponentId(11), snapshots[1].Info.Id)
	assert.Equal(t, domain.ComponentId(12), snapshots[2].Info.Id)
	assert.Equal(t, "home", snapshots[0].Device)
	bat, ok := snapshots[0].State.(domain.BatState)
	require.True(t, ok)
	assert.Equal(t, 600.0, bat.Power)
	assert.True(t, snapshots[1].Fault.Healthy)

	select {
	case r := <-hooks:
		assert.Len(t, r.Results, 3)
		assert.Equal(t, 0, r.Failed())
	case <-time.After(time.Second):
		t.Fatal("cycle hook not called")
	}

	res, err := context.RequestFuture(pid, domain.ActorHealthRequest{}, time.Second).Result()
	require.NoError(t, err)
	health := res.(domain.ActorHealthResponse)
	assert.True(t, health.Healthy)
	assert.Equal(t, "device_1", health.Id)
	assert.Equal(t, "idle", health.State)

	res, err = context.RequestFuture(pid, domain.GetComponentStatesRequest{}, time.Second).Result()
	require.NoError(t, err)
	states := res.(domain.GetComponentStatesResponse)
	assert.Equal(t, "idle", states.CycleState)
	assert.Len(t, states.Components, 3)

	id := domain.ComponentId(12)
	res, err = context.RequestFuture(pid, domain.GetComponentStatesRequest{ComponentId: &id}, time.Second).Result()
	require.NoError(t, err)
	states = res.(domain.GetComponentStatesResponse)
	require.Len(t, states.Components, 1)
	assert.Equal(t, domain.InverterState{Power: -2500}, states.Components[0].State)

	unknown := domain.ComponentId(99)
	res, err = context.RequestFuture(pid, domain.GetComponentStatesRequest{ComponentId: &unknown}, time.Second).Result()
	require.NoError(t, err)
	assert.ErrorIs(t, res.(domain.GetComponentStatesResponse).GetResponseError(), domain.ErrUnknownComponent)
}

func TestDeviceActorDropsTicksWhileUpdating(t *testing.T) {
	as := actorutil.NewActorSystemWithZapLogger(zap.NewNop())
	context := as.Root
	defer as.Shutdown()

	es := &eventstream.EventStream{}
	ch, sub := snapshotChannel(es)
	defer es.Unsubscribe(sub)

	client := &stubClient{reading: testReading(), block: make(chan struct{})}
	spec := newTestSpec(t, client)

	pid := context.Spawn(actor.PropsFromProducer(func() actor.Actor {
		return NewDeviceActor(spec, 20*time.Millisecond, 5*time.Second, es, zap.NewNop())
	}))
	defer context.Stop(pid)

	// several ticks elapse while the first cycle is blocked
	time.Sleep(200 * time.Millisecond)
	assert.Equal(t, 1, client.Calls())

	res, err := context.RequestFuture(pid, domain.ActorHealthRequest{}, time.Second).Result()
	require.NoError(t, err)
	assert.Equal(t, "updating", res.(domain.ActorHealthResponse).State)

	close(client.block)
	receiveSnapshots(t, ch, 3)
}

func TestDeviceActorUnhealthyWhenAllComponentsFail(t *testing.T) {
	as := actorutil.NewActorSystemWithZapLogger(zap.NewNop())
	context := as.Root
	defer as.Shutdown()

	es := &eventstream.EventStream{}
	ch, sub := snapshotChannel(es)
	defer es.Unsubscribe(sub)

	spec := newTestSpec(t, &stubClient{err: &domain.DeviceUnavailableError{Device: "home", Err: errors.New("connection refused")}})
	pid := context.Spawn(actor.PropsFromProducer(func() actor.Actor {
		return NewDeviceActor(spec, time.Hour, time.Second, es, zap.NewNop())
	}))
	defer context.Stop(pid)

	snapshots := receiveSnapshots(t, ch, 3)
	for _, s := range snapshots {
		assert.Nil(t, s.State)
		assert.False(t, s.Fault.Healthy)
		assert.Equal(t, domain.FaultCauseTransient, s.Fault.Cause)
	}

	res, err := context.RequestFuture(pid, domain.ActorHealthRequest{}, time.Second).Result()
	require.NoError(t, err)
	assert.False(t, res.(domain.ActorHealthResponse).Healthy)
}

func TestDeviceActorSkipsCycleOwnedByPreviousIncarnation(t *testing.T) {
	as := actorutil.NewActorSystemWithZapLogger(zap.NewNop())
	context := as.Root
	defer as.Shutdown()

	es := &eventstream.EventStream{}
	ch, sub := snapshotChannel(es)
	defer es.Unsubscribe(sub)

	client := &stubClient{reading: testReading(), block: make(chan struct{})}
	spec := newTestSpec(t, client)
	props := actor.PropsFromProducer(func() actor.Actor {
		return NewDeviceActor(spec, time.Hour, 5*time.Second, es, zap.NewNop())
	})

	first := context.Spawn(props)
	defer context.Stop(first)
	require.Eventually(t, func() bool { return client.Calls() == 1 }, 2*time.Second, 10*time.Millisecond)

	// a second actor driving the same cycle, as after a supervisor restart
	second := context.Spawn(props)
	defer context.Stop(second)

	require.Eventually(t, func() bool {
		res, err := context.RequestFuture(second, domain.ActorHealthRequest{}, time.Second).Result()
		return err == nil && res.(domain.ActorHealthResponse).State != "starting"
	}, 2*time.Second, 20*time.Millisecond)
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 1, client.Calls(), "overlapping run must not reach the device")
	assert.Empty(t, ch, "a skipped run publishes nothing")

	close(client.block)
	receiveSnapshots(t, ch, 3)
	assert.Equal(t, 1, client.Calls())
}

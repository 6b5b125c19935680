package actor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/berfenger/senec2mqtt/internal/core/domain"
	"github.com/berfenger/senec2mqtt/internal/util/actorutil"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeWriter struct {
	mu       sync.Mutex
	messages []kafka.Message
	err      error
	closed   bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.messages = append(w.messages, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
	return nil
}

func (w *fakeWriter) Messages() []kafka.Message {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]kafka.Message(nil), w.messages...)
}

func (w *fakeWriter) SetError(err error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.err = err
}

func (w *fakeWriter) Closed() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closed
}

func snapshotEvent(id domain.ComponentId) domain.ComponentSnapshotEvent {
	return domain.ComponentSnapshotEvent{
		Device: "home",
		Info:   domain.ComponentInfo{Id: id, DeviceId: 1, Kind: domain.ComponentKindInverter},
		State:  domain.InverterState{Power: -2500, Exported: 120},
		Fault:  domain.HealthyRecord(time.Now()),
		At:     time.Now(),
	}
}

func TestKafkaActorWritesSnapshots(t *testing.T) {
	logger := zap.NewNop()
	as := actorutil.NewActorSystemWithZapLogger(logger)
	context := as.Root
	defer as.Shutdown()

	es := &eventstream.EventStream{}
	writer := &fakeWriter{}
	pid := context.Spawn(actor.PropsFromProducer(func() actor.Actor {
		return NewKafkaActor(func() MessageWriter { return writer }, es, logger)
	}))

	// the subscription is in place once the actor answers
	_, err := context.RequestFuture(pid, domain.ActorHealthRequest{}, time.Second).Result()
	require.NoError(t, err)

	for _, id := range []domain.ComponentId{12, 13, 14} {
		es.Publish(snapshotEvent(id))
	}

	require.Eventually(t, func() bool { return len(writer.Messages()) == 3 }, 2*time.Second, 10*time.Millisecond)
	msgs := writer.Messages()
	keys := []string{string(msgs[0].Key), string(msgs[1].Key), string(msgs[2].Key)}
	assert.ElementsMatch(t, []string{"12", "13", "14"}, keys)
	assert.Contains(t, string(msgs[0].Value), `"kind":"inverter"`)
	assert.Equal(t, "kind", msgs[0].Headers[0].Key)
	assert.Equal(t, "inverter", string(msgs[0].Headers[0].Value))

	res, err := context.RequestFuture(pid, domain.ActorHealthRequest{}, time.Second).Result()
	require.NoError(t, err)
	assert.True(t, res.(domain.ActorHealthResponse).Healthy)

	require.NoError(t, context.StopFuture(pid).Wait())
	assert.True(t, writer.Closed())
}

func TestKafkaActorUnhealthyOnWriteError(t *testing.T) {
	logger := zap.NewNop()
	as := actorutil.NewActorSystemWithZapLogger(logger)
	context := as.Root
	defer as.Shutdown()

	es := &eventstream.EventStream{}
	writer := &fakeWriter{}
	writer.SetError(errors.New("broker unreachable"))
	pid := context.Spawn(actor.PropsFromProducer(func() actor.Actor {
		return NewKafkaActor(func() MessageWriter { return writer }, es, logger)
	}))
	defer context.Stop(pid)

	_, err := context.RequestFuture(pid, domain.ActorHealthRequest{}, time.Second).Result()
	require.NoError(t, err)

	es.Publish(snapshotEvent(12))

	require.Eventually(t, func() bool {
		res, err := context.RequestFuture(pid, domain.ActorHealthRequest{}, time.Second).Result()
		return err == nil && !res.(domain.ActorHealthResponse).Healthy
	}, 2*time.Second, 20*time.Millisecond)

	// recovers once the broker accepts writes again
	writer.SetError(nil)
	es.Publish(snapshotEvent(12))
	require.Eventually(t, func() bool {
		res, err := context.RequestFuture(pid, domain.ActorHealthRequest{}, time.Second).Result()
		return err == nil && res.(domain.ActorHealthResponse).Healthy
	}, 2*time.Second, 20*time.Millisecond)
	assert.Len(t, writer.Messages(), 1)
}

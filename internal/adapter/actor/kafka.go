package actor

import (
	"context"
	"fmt"
	"time"

	"github.com/berfenger/senec2mqtt/internal/config"
	"github.com/berfenger/senec2mqtt/internal/core/domain"
	"github.com/berfenger/senec2mqtt/internal/core/events"
	"github.com/berfenger/senec2mqtt/internal/util/actorutil"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

const kafkaWriteTimeout = 10 * time.Second

// MessageWriter is the subset of *kafka.Writer used by the actor.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// NewKafkaWriter keys messages by component id, so one component always lands
// on the same partition.
func NewKafkaWriter(cfg config.KafkaConfig) MessageWriter {
	return &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		BatchTimeout: 50 * time.Millisecond,
	}
}

// KafkaActor mirrors component snapshots to a Kafka topic. Snapshots received
// while a write is in flight are batched into the next write.
type KafkaActor struct {
	newWriter      func() MessageWriter
	eventStream    *eventstream.EventStream
	eventStreamSub *eventstream.Subscription
	behavior       actor.Behavior
	writer         MessageWriter
	pending        []kafka.Message
	lastError      error
	written        uint64
	logger         *zap.Logger
}

type kafkaWriteDone struct {
	count int
	err   error
}

func NewKafkaActor(newWriter func() MessageWriter, eventStream *eventstream.EventStream, logger *zap.Logger) *KafkaActor {
	act := &KafkaActor{
		newWriter:   newWriter,
		eventStream: eventStream,
		behavior:    actor.NewBehavior(),
		logger:      actorutil.ActorLogger(domain.ACTOR_ID_KAFKA, logger),
	}
	act.behavior.Become(act.DefaultReceive)
	return act
}

func (state *KafkaActor) Receive(context actor.Context) {
	state.behavior.Receive(context)
}

func (state *KafkaActor) DefaultReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.logger.Debug("kafka@default started")
		state.writer = state.newWriter()
		root := ctx.ActorSystem().Root
		self := ctx.Self()
		state.eventStreamSub = state.eventStream.Subscribe(func(value any) {
			if ev, ok := value.(domain.ComponentSnapshotEvent); ok {
				root.Send(self, ev)
			}
		})
	case *actor.Restarting:
		state.stop()
	case *actor.Stopping:
		state.stop()
	case domain.ActorHealthRequest:
		ctx.Respond(state.health("idle"))
	case domain.ComponentSnapshotEvent:
		if state.enqueue(msg) {
			state.flush(ctx)
		}
	default:
		state.logger.Debug("kafka@default unhandled", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

func (state *KafkaActor) WritingReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case kafkaWriteDone:
		state.lastError = msg.err
		if msg.err != nil {
			state.logger.Warn("kafka@writing could not write snapshots", zap.Int("messages", msg.count), zap.Error(msg.err))
		} else {
			state.written += uint64(msg.count)
			state.logger.Debug("kafka@writing snapshots written", zap.Int("messages", msg.count), zap.Uint64("total", state.written))
		}
		state.behavior.UnbecomeStacked()
		if len(state.pending) > 0 {
			state.flush(ctx)
		}
	case domain.ComponentSnapshotEvent:
		state.enqueue(msg)
	case domain.ActorHealthRequest:
		ctx.Respond(state.health("writing"))
	case *actor.Restarting:
		state.stop()
	case *actor.Stopping:
		state.stop()
	}
}

func (state *KafkaActor) enqueue(ev domain.ComponentSnapshotEvent) bool {
	payload, err := events.SnapshotPayload(ev)
	if err != nil {
		state.logger.Error("kafka@enqueue snapshot encoding", zap.Stringer("component", ev.Info), zap.Error(err))
		return false
	}
	state.pending = append(state.pending, kafka.Message{
		Key:   []byte(ev.Info.Id.String()),
		Value: payload,
		Time:  ev.At,
		Headers: []kafka.Header{
			{Key: "kind", Value: []byte(ev.Info.Kind)},
			{Key: "device", Value: []byte(ev.Device)},
		},
	})
	return true
}

// flush hands the pending batch to a background write.
func (state *KafkaActor) flush(ctx actor.Context) {
	batch := state.pending
	state.pending = nil
	writer := state.writer
	actorutil.NewBackgroundTaskNoError(ctx, func() *kafkaWriteDone {
		writeCtx, cancel := context.WithTimeout(context.Background(), kafkaWriteTimeout)
		defer cancel()
		return &kafkaWriteDone{count: len(batch), err: writer.WriteMessages(writeCtx, batch...)}
	}).Recover(func(err error) kafkaWriteDone {
		return kafkaWriteDone{count: len(batch), err: err}
	}).PipeTo(ctx.Self())
	state.behavior.BecomeStacked(state.WritingReceive)
}

func (state *KafkaActor) health(name string) domain.ActorHealthResponse {
	return domain.ActorHealthResponse{
		Id:      domain.ACTOR_ID_KAFKA,
		Healthy: state.lastError == nil,
		State:   name,
	}
}

func (state *KafkaActor) stop() {
	if state.eventStreamSub != nil {
		state.eventStream.Unsubscribe(state.eventStreamSub)
		state.eventStreamSub = nil
	}
	if state.writer != nil {
		if err := state.writer.Close(); err != nil {
			state.logger.Warn("kafka: close writer", zap.Error(err))
		}
		state.writer = nil
	}
	state.pending = nil
}

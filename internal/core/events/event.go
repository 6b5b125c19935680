package events

import (
	"encoding/json"
	"time"

	. "github.com/berfenger/senec2mqtt/internal/core/domain"
)

// SnapshotToUpdateEvents converts a component snapshot into sensor update
// events. Value sensors are skipped until the component has a state; the
// problem and fault cause sensors are always emitted.
func SnapshotToUpdateEvents(ev ComponentSnapshotEvent) []any {
	var events []any

	if ev.State != nil {
		for _, f := range fieldsOf(ev.Info.Kind) {
			value, ok := f.value(ev.State)
			if !ok {
				continue
			}
			events = append(events, FloatSensorUpdateEvent{
				SensorUpdateEventMixIn: SensorUpdateEventMixIn{
					Id: SensorId(ev.Info, f.id),
				},
				Value:    value,
				Decimals: f.decimals,
			})
		}
	}

	events = append(events, BinarySensorUpdateEvent{
		SensorUpdateEventMixIn: SensorUpdateEventMixIn{
			Id: SensorId(ev.Info, FIELD_PROBLEM),
		},
		Value: !ev.Fault.Healthy,
	})
	events = append(events, TextSensorUpdateEvent{
		SensorUpdateEventMixIn: SensorUpdateEventMixIn{
			Id: SensorId(ev.Info, FIELD_FAULT_CAUSE),
		},
		Value: ev.Fault.Cause.String(),
	})

	return events
}

type snapshotPayload struct {
	Device      string         `json:"device"`
	DeviceId    DeviceId       `json:"device_id"`
	ComponentId ComponentId    `json:"component_id"`
	Kind        ComponentKind  `json:"kind"`
	Name        string         `json:"name,omitempty"`
	State       ComponentState `json:"state"`
	Fault       FaultRecord    `json:"fault"`
	At          time.Time      `json:"at"`
}

// SnapshotPayload is the JSON document mirrored to MQTT and Kafka.
func SnapshotPayload(ev ComponentSnapshotEvent) ([]byte, error) {
	return json.Marshal(snapshotPayload{
		Device:      ev.Device,
		DeviceId:    ev.Info.DeviceId,
		ComponentId: ev.Info.Id,
		Kind:        ev.Info.Kind,
		Name:        ev.Info.Name,
		State:       ev.State,
		Fault:       ev.Fault,
		At:          ev.At,
	})
}

package domain

import (
	"errors"
	"fmt"
	"time"
)

const (
	ACTOR_ID_MASTER       = "master"
	ACTOR_ID_MQTT         = "mqtt"
	ACTOR_ID_KAFKA        = "kafka"
	ACTOR_ID_HA_DISCOVERY = "hadiscovery"
)

var (
	ErrUnknownDevice    = errors.New("unknown device")
	ErrUnknownComponent = errors.New("unknown component")
)

func DeviceActorId(id DeviceId) string {
	return fmt.Sprintf("device_%d", id)
}

type DeviceSummary struct {
	Id         DeviceId        `json:"id"`
	Name       string          `json:"name"`
	Type       string          `json:"type"`
	Components []ComponentInfo `json:"components"`
}

// ComponentStatus is the last known snapshot of a component. State is nil
// until the first successful update.
type ComponentStatus struct {
	Info  ComponentInfo  `json:"info"`
	State ComponentState `json:"state"`
	Fault FaultRecord    `json:"fault"`
}

type GetDevicesRequest struct {
	ActorRequestMixIn
}

type GetDevicesResponse struct {
	ActorResponseMixIn
	Devices []DeviceSummary
}

// GetComponentStatesRequest asks a device actor for its components. A nil
// ComponentId selects all of them.
type GetComponentStatesRequest struct {
	ActorRequestMixIn
	DeviceId    DeviceId
	ComponentId *ComponentId
}

type GetComponentStatesResponse struct {
	ActorResponseMixIn
	DeviceId   DeviceId          `json:"device_id"`
	CycleState string            `json:"cycle_state"`
	LastCycle  time.Time         `json:"last_cycle"`
	Components []ComponentStatus `json:"components"`
}

type PublishMessageRequest struct {
	ActorRequestMixIn
	Topic   string
	Payload string
	Retain  bool
}

type PublishMessageResponse struct {
	ActorResponseMixIn
}

type PublishSensorUpdateRequest struct {
	ActorRequestMixIn
	Retain bool
	Event  SensorUpdateEvent
}

type PublishSensorUpdateResponse struct {
	ActorResponseMixIn
}

type PublishDiscoveryRequest struct {
	ActorRequestMixIn
	Sensors []GenericSensor
}

type PublishDiscoveryResponse struct {
	ActorResponseMixIn
}

type ActorHealthRequest struct {
	ActorRequestMixIn
}

type ActorHealthResponse struct {
	ActorResponseMixIn
	Id      string
	Healthy bool
	State   string
}

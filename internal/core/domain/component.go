package domain

import (
	"fmt"
	"strconv"
)

// ComponentKind selects the normalization applied to a component's raw reading.
type ComponentKind string

const (
	ComponentKindBat      ComponentKind = "bat"
	ComponentKindCounter  ComponentKind = "counter"
	ComponentKindInverter ComponentKind = "inverter"
)

func ParseComponentKind(s string) (ComponentKind, error) {
	switch ComponentKind(s) {
	case ComponentKindBat, ComponentKindCounter, ComponentKindInverter:
		return ComponentKind(s), nil
	}
	return "", fmt.Errorf("unknown component type %q", s)
}

type ComponentId int

func (id ComponentId) String() string {
	return strconv.Itoa(int(id))
}

type DeviceId int

func (id DeviceId) String() string {
	return strconv.Itoa(int(id))
}

// ComponentInfo is the registration metadata of one component.
type ComponentInfo struct {
	Id       ComponentId   `json:"id"`
	DeviceId DeviceId      `json:"device_id"`
	Kind     ComponentKind `json:"kind"`
	Name     string        `json:"name,omitempty"`
}

func (c ComponentInfo) String() string {
	if c.Name != "" {
		return fmt.Sprintf("%s(%d) %q", c.Kind, c.Id, c.Name)
	}
	return fmt.Sprintf("%s(%d)", c.Kind, c.Id)
}

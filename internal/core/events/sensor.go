package events

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"

	. "github.com/berfenger/senec2mqtt/internal/core/domain"

	"github.com/carlmjohnson/versioninfo"
)

const (
	SENSOR_ID_BRIDGE_STATE       = "bridge"
	FIELD_POWER                  = "power"
	FIELD_SOC                    = "soc"
	FIELD_IMPORTED               = "imported"
	FIELD_EXPORTED               = "exported"
	FIELD_FREQUENCY              = "frequency"
	FIELD_PROBLEM                = "problem"
	FIELD_FAULT_CAUSE            = "fault_cause"
	STATE_CLASS_MEASUREMENT      = "measurement"
	STATE_CLASS_TOTAL_INCREASING = "total_increasing"
	DEVICE_CLASS_BATTERY         = "battery"
	DEVICE_CLASS_CURRENT         = "current"
	DEVICE_CLASS_ENERGY          = "energy"
	DEVICE_CLASS_FREQUENCY       = "frequency"
	DEVICE_CLASS_POWER           = "power"
	DEVICE_CLASS_VOLTAGE         = "voltage"
	DEVICE_CLASS_CONNECTIVITY    = "connectivity"
	DEVICE_CLASS_PROBLEM         = "problem"
	ENTITY_CLASS_DIAGNOSTIC      = "diagnostic"
	SENSOR_TYPE_SENSOR           = "sensor"
	SENSOR_TYPE_BINARY           = "binary_sensor"
)

// field describes one published value of a component state.
type field struct {
	id          string
	name        string
	unit        string
	deviceClass string
	stateClass  string
	decimals    uint
	value       func(ComponentState) (float64, bool)
}

var phases = [3]string{"l1", "l2", "l3"}

func powerField(value func(ComponentState) (float64, bool)) field {
	return field{FIELD_POWER, "power", "W", DEVICE_CLASS_POWER, STATE_CLASS_MEASUREMENT, 2, value}
}

func energyField(id, name string, value func(ComponentState) (float64, bool)) field {
	return field{id, name, "Wh", DEVICE_CLASS_ENERGY, STATE_CLASS_TOTAL_INCREASING, 2, value}
}

func batFields() []field {
	bat := func(fn func(BatState) float64) func(ComponentState) (float64, bool) {
		return func(s ComponentState) (float64, bool) {
			st, ok := s.(BatState)
			return fn(st), ok
		}
	}
	return []field{
		powerField(bat(func(s BatState) float64 { return s.Power })),
		{FIELD_SOC, "state of charge", "%", DEVICE_CLASS_BATTERY, STATE_CLASS_MEASUREMENT, 2, bat(func(s BatState) float64 { return s.SoC })},
		energyField(FIELD_IMPORTED, "energy charged", bat(func(s BatState) float64 { return s.Imported })),
		energyField(FIELD_EXPORTED, "energy discharged", bat(func(s BatState) float64 { return s.Exported })),
	}
}

func counterFields() []field {
	counter := func(fn func(CounterState) float64) func(ComponentState) (float64, bool) {
		return func(s ComponentState) (float64, bool) {
			st, ok := s.(CounterState)
			return fn(st), ok
		}
	}
	fields := []field{
		powerField(counter(func(s CounterState) float64 { return s.Power })),
		{FIELD_FREQUENCY, "grid frequency", "Hz", DEVICE_CLASS_FREQUENCY, STATE_CLASS_MEASUREMENT, 2, counter(func(s CounterState) float64 { return s.Frequency })},
		energyField(FIELD_IMPORTED, "energy imported", counter(func(s CounterState) float64 { return s.Imported })),
		energyField(FIELD_EXPORTED, "energy exported", counter(func(s CounterState) float64 { return s.Exported })),
	}
	for i, ph := range phases {
		fields = append(fields,
			field{"current_" + ph, "current " + ph, "A", DEVICE_CLASS_CURRENT, STATE_CLASS_MEASUREMENT, 2, counter(func(s CounterState) float64 { return s.Currents[i] })},
			field{"voltage_" + ph, "voltage " + ph, "V", DEVICE_CLASS_VOLTAGE, STATE_CLASS_MEASUREMENT, 2, counter(func(s CounterState) float64 { return s.Voltages[i] })},
			field{"power_" + ph, "power " + ph, "W", DEVICE_CLASS_POWER, STATE_CLASS_MEASUREMENT, 2, counter(func(s CounterState) float64 { return s.Powers[i] })},
		)
	}
	return fields
}

func inverterFields() []field {
	inverter := func(fn func(InverterState) float64) func(ComponentState) (float64, bool) {
		return func(s ComponentState) (float64, bool) {
			st, ok := s.(InverterState)
			return fn(st), ok
		}
	}
	return []field{
		powerField(inverter(func(s InverterState) float64 { return s.Power })),
		energyField(FIELD_EXPORTED, "energy produced", inverter(func(s InverterState) float64 { return s.Exported })),
	}
}

func fieldsOf(kind ComponentKind) []field {
	switch kind {
	case ComponentKindBat:
		return batFields()
	case ComponentKindCounter:
		return counterFields()
	case ComponentKindInverter:
		return inverterFields()
	default:
		return nil
	}
}

// SensorId names the sensor publishing one field of a component, e.g. bat_10_soc.
func SensorId(info ComponentInfo, fieldId string) string {
	return fmt.Sprintf("%s_%d_%s", info.Kind, info.Id, fieldId)
}

func BridgeDevice(baseTopic string) Device {
	return Device{
		Id:           fmt.Sprintf("senec2mqtt_bridge_%s", md5HashShort(baseTopic)),
		Manufacturer: "ACasal",
		Model:        "senec2mqtt",
		Version:      versioninfo.Short(),
		Name:         fmt.Sprintf("senec2mqtt %s", md5HashShort(baseTopic)),
	}
}

// SystemDevice is the Home Assistant device of one configured device.
func SystemDevice(bridge Device, deviceId DeviceId, name, deviceType string) Device {
	return Device{
		Id:           fmt.Sprintf("senec2mqtt_%s_%d", md5HashShort(bridge.Id), deviceId),
		Manufacturer: "SENEC",
		Model:        deviceType,
		Name:         name,
		ViaDevice:    bridge.Id,
	}
}

func BridgeSensors(bridgeDevice Device) []GenericSensor {
	return []GenericSensor{{
		Device:         bridgeDevice,
		Id:             SENSOR_ID_BRIDGE_STATE,
		SensorType:     SENSOR_TYPE_BINARY,
		Name:           "Connection state",
		DeviceClass:    DEVICE_CLASS_CONNECTIVITY,
		EntityCategory: ENTITY_CLASS_DIAGNOSTIC,
		UniqueId:       uniqueId(bridgeDevice.Id, SENSOR_ID_BRIDGE_STATE),
	}}
}

func ComponentSensors(device Device, info ComponentInfo) []GenericSensor {
	label := componentLabel(info)

	var sensors []GenericSensor
	for _, f := range fieldsOf(info.Kind) {
		id := SensorId(info, f.id)
		sensors = append(sensors, GenericSensor{
			Device:            device,
			Id:                id,
			SensorType:        SENSOR_TYPE_SENSOR,
			Name:              fmt.Sprintf("%s %s", label, f.name),
			UnitOfMeasurement: f.unit,
			StateClass:        f.stateClass,
			DeviceClass:       f.deviceClass,
			UniqueId:          uniqueId(device.Id, id),
		})
	}

	problemId := SensorId(info, FIELD_PROBLEM)
	sensors = append(sensors, GenericSensor{
		Device:         device,
		Id:             problemId,
		SensorType:     SENSOR_TYPE_BINARY,
		Name:           fmt.Sprintf("%s problem", label),
		DeviceClass:    DEVICE_CLASS_PROBLEM,
		EntityCategory: ENTITY_CLASS_DIAGNOSTIC,
		UniqueId:       uniqueId(device.Id, problemId),
	})

	causeId := SensorId(info, FIELD_FAULT_CAUSE)
	sensors = append(sensors, GenericSensor{
		Device:           device,
		Id:               causeId,
		SensorType:       SENSOR_TYPE_SENSOR,
		Name:             fmt.Sprintf("%s fault cause", label),
		EntityCategory:   ENTITY_CLASS_DIAGNOSTIC,
		EnabledByDefault: optionalBool(false),
		UniqueId:         uniqueId(device.Id, causeId),
		Icon:             "mdi:alert-circle-outline",
	})

	return sensors
}

func componentLabel(info ComponentInfo) string {
	if info.Name != "" {
		return info.Name
	}
	switch info.Kind {
	case ComponentKindBat:
		return fmt.Sprintf("Battery %d", info.Id)
	case ComponentKindCounter:
		return fmt.Sprintf("Grid counter %d", info.Id)
	case ComponentKindInverter:
		return fmt.Sprintf("Inverter %d", info.Id)
	}
	return fmt.Sprintf("%s %d", info.Kind, info.Id)
}

func uniqueId(baseId, id string) string {
	return fmt.Sprintf("uid_%s_%s", baseId, id)
}

func md5Hash(text string) string {
	hash := md5.Sum([]byte(text))
	return hex.EncodeToString(hash[:])
}

func md5HashShort(text string) string {
	hash := md5Hash(text)
	return hash[0:8]
}

func optionalBool(value bool) *bool {
	return &value
}

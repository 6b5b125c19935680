package events

import (
	"testing"
	"time"

	"github.com/berfenger/senec2mqtt/internal/core/domain"
	"github.com/stretchr/testify/assert"
)

func floatValues(evs []any) map[string]float64 {
	out := make(map[string]float64)
	for _, ev := range evs {
		if f, ok := ev.(domain.FloatSensorUpdateEvent); ok {
			out[f.Id] = f.Value
		}
	}
	return out
}

func TestSnapshotToUpdateEventsCounter(t *testing.T) {
	assert := assert.New(t)

	info := domain.ComponentInfo{Id: 11, DeviceId: 1, Kind: domain.ComponentKindCounter}
	evs := SnapshotToUpdateEvents(domain.ComponentSnapshotEvent{
		Info: info,
		State: domain.CounterState{
			Power:     -300.25,
			Currents:  [3]float64{1.5, 2.25, 3},
			Voltages:  [3]float64{230, 231.5, 229.75},
			Powers:    [3]float64{100, 200, -50},
			Frequency: 50,
			Imported:  12.5,
			Exported:  3,
		},
		Fault: domain.HealthyRecord(time.Now()),
	})

	values := floatValues(evs)
	assert.Len(values, 13)
	assert.Equal(-300.25, values["counter_11_power"])
	assert.Equal(2.25, values["counter_11_current_l2"])
	assert.Equal(229.75, values["counter_11_voltage_l3"])
	assert.Equal(-50.0, values["counter_11_power_l3"])
	assert.Equal(50.0, values["counter_11_frequency"])
	assert.Equal(12.5, values["counter_11_imported"])

	assert.Contains(evs, domain.BinarySensorUpdateEvent{
		SensorUpdateEventMixIn: domain.SensorUpdateEventMixIn{Id: "counter_11_problem"},
		Value:                  false,
	})
	assert.Contains(evs, domain.TextSensorUpdateEvent{
		SensorUpdateEventMixIn: domain.SensorUpdateEventMixIn{Id: "counter_11_fault_cause"},
		Value:                  "none",
	})
}

func TestSnapshotToUpdateEventsWithoutState(t *testing.T) {
	info := domain.ComponentInfo{Id: 10, DeviceId: 1, Kind: domain.ComponentKindBat}
	evs := SnapshotToUpdateEvents(domain.ComponentSnapshotEvent{
		Info:  info,
		Fault: domain.FaultRecord{Healthy: false, Cause: domain.FaultCauseTransient},
	})

	assert.Equal(t, []any{
		domain.BinarySensorUpdateEvent{
			SensorUpdateEventMixIn: domain.SensorUpdateEventMixIn{Id: "bat_10_problem"},
			Value:                  true,
		},
		domain.TextSensorUpdateEvent{
			SensorUpdateEventMixIn: domain.SensorUpdateEventMixIn{Id: "bat_10_fault_cause"},
			Value:                  "transient",
		},
	}, evs)
}

func TestComponentSensorsMatchEvents(t *testing.T) {
	bridge := BridgeDevice("senec2mqtt")
	device := SystemDevice(bridge, 1, "home", "senec")

	for _, tt := range []struct {
		info  domain.ComponentInfo
		state domain.ComponentState
	}{
		{domain.ComponentInfo{Id: 10, DeviceId: 1, Kind: domain.ComponentKindBat}, domain.BatState{}},
		{domain.ComponentInfo{Id: 11, DeviceId: 1, Kind: domain.ComponentKindCounter}, domain.CounterState{}},
		{domain.ComponentInfo{Id: 12, DeviceId: 1, Kind: domain.ComponentKindInverter, Name: "Roof"}, domain.InverterState{}},
	} {
		sensors := ComponentSensors(device, tt.info)
		ids := make(map[string]bool, len(sensors))
		for _, s := range sensors {
			assert.Equal(t, device, s.Device)
			assert.Equal(t, uniqueId(device.Id, s.Id), s.UniqueId)
			ids[s.Id] = true
		}

		evs := SnapshotToUpdateEvents(domain.ComponentSnapshotEvent{Info: tt.info, State: tt.state})
		assert.Len(t, sensors, len(evs), "one sensor per event for %s", tt.info)
		for _, ev := range evs {
			id := ev.(domain.SensorUpdateEvent).SensorId()
			assert.True(t, ids[id], "sensor %s announced", id)
		}
	}

	assert.Equal(t, "Roof power", ComponentSensors(device, domain.ComponentInfo{Id: 12, Kind: domain.ComponentKindInverter, Name: "Roof"})[0].Name)
	assert.Equal(t, bridge.Id, device.ViaDevice)
}

func TestSnapshotPayload(t *testing.T) {
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	raw, err := SnapshotPayload(domain.ComponentSnapshotEvent{
		Device: "home",
		Info:   domain.ComponentInfo{Id: 12, DeviceId: 1, Kind: domain.ComponentKindInverter},
		State:  domain.InverterState{Power: -2500, Exported: 41.5},
		Fault:  domain.HealthyRecord(at),
		At:     at,
	})
	assert.NoError(t, err)
	assert.JSONEq(t, `{
		"device": "home",
		"device_id": 1,
		"component_id": 12,
		"kind": "inverter",
		"state": {"power": -2500, "exported": 41.5},
		"fault": {"healthy": true, "cause": "none", "updated_at": "2024-05-01T12:00:00Z"},
		"at": "2024-05-01T12:00:00Z"
	}`, string(raw))
}

func TestFloatEventsKeepStoredPrecision(t *testing.T) {
	assert := assert.New(t)

	for _, ev := range []domain.ComponentSnapshotEvent{
		{
			Info:  domain.ComponentInfo{Id: 10, DeviceId: 1, Kind: domain.ComponentKindBat},
			State: domain.BatState{Power: 600, SoC: 55.56},
		},
		{
			Info:  domain.ComponentInfo{Id: 11, DeviceId: 1, Kind: domain.ComponentKindCounter},
			State: domain.CounterState{Voltages: [3]float64{230.11, 231.22, 229.99}},
		},
		{
			Info:  domain.ComponentInfo{Id: 12, DeviceId: 1, Kind: domain.ComponentKindInverter},
			State: domain.InverterState{Power: -2500.25},
		},
	} {
		for _, u := range SnapshotToUpdateEvents(ev) {
			if f, ok := u.(domain.FloatSensorUpdateEvent); ok {
				assert.Equal(uint(2), f.Decimals, "sensor %s", f.Id)
			}
		}
	}
}

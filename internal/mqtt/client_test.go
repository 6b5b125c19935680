package mqtt

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/berfenger/senec2mqtt/internal/config"
	"github.com/berfenger/senec2mqtt/internal/core/domain"
	"github.com/berfenger/senec2mqtt/internal/core/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testMQTTConfig = config.MQTTConfig{
	Host:             "localhost",
	Port:             1883,
	BaseTopic:        "senec",
	HADiscoveryTopic: "homeassistant",
}

func TestTopics(t *testing.T) {
	assert := assert.New(t)

	client := WrapClient(testMQTTConfig, NewTestPahoClient())

	assert.Equal("senec/bridge/state", client.BridgeStateTopic())
	assert.Equal("senec/sensor/bat_10_soc/state", client.SensorStateTopic("bat_10_soc"))
	assert.Equal("senec/binary_sensor/bat_10_problem/state", client.BinarySensorStateTopic("bat_10_problem"))
	assert.Equal("senec/component/10/snapshot", client.SnapshotTopic("10"))
}

func TestOptsFromConfig(t *testing.T) {
	assert := assert.New(t)

	cfg := testMQTTConfig
	cfg.Username = "user"
	cfg.Password = "pass"
	opts := OptsFromConfig(cfg)

	assert.Equal("tcp://localhost:1883", opts.Servers[0].String())
	assert.True(strings.HasPrefix(opts.ClientID, "senec2mqtt_"))
	assert.NotEqual(opts.ClientID, OptsFromConfig(cfg).ClientID)
	assert.Equal("user", opts.Username)
	assert.Equal("senec/bridge/state", opts.WillTopic)
	assert.True(opts.WillRetained)
}

func TestPublish(t *testing.T) {
	paho := NewTestPahoClient()
	client := WrapClient(testMQTTConfig, paho)

	done := make(chan error, 1)
	client.Publish("senec/sensor/x/state", "1.00", 1, true, func(err error) { done <- err }, time.Second)

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("publish continuation not called")
	}
	assert.Equal(t, []PublishedMessage{{Topic: "senec/sensor/x/state", Payload: "1.00", Retain: true}}, paho.Messages())
}

func TestHADiscoveryMessage(t *testing.T) {
	assert := assert.New(t)

	client := WrapClient(testMQTTConfig, NewTestPahoClient())
	bridge := events.BridgeDevice("senec")
	device := events.SystemDevice(bridge, 1, "home", "senec")
	sensors := events.ComponentSensors(device, domain.ComponentInfo{Id: 10, DeviceId: 1, Kind: domain.ComponentKindBat})

	soc := sensors[1]
	msg := GenericSensorToHADiscoveryMessage(client, soc)
	assert.Equal("senec/sensor/bat_10_soc/state", msg.StateTopic)
	assert.Equal("senec/bridge/state", msg.AvTopic)
	assert.Equal("%", msg.UnitOfMeasurement)
	assert.Equal([]string{device.Id}, msg.Device.Id)
	assert.Equal(bridge.Id, msg.Device.ViaDevice)
	assert.Equal("homeassistant/sensor/"+device.Id+"/bat_10_soc/config", client.HADiscoverySensorTopic(soc))

	var problem domain.GenericSensor
	for _, s := range sensors {
		if s.Id == "bat_10_problem" {
			problem = s
		}
	}
	pmsg := GenericSensorToHADiscoveryMessage(client, problem)
	assert.Equal("senec/binary_sensor/bat_10_problem/state", pmsg.StateTopic)
	assert.Equal(MQTT_PAYLOAD_ON, pmsg.PayloadOn)

	bmsg := GenericSensorToHADiscoveryMessage(client, events.BridgeSensors(bridge)[0])
	assert.Equal(MQTT_PAYLOAD_ONLINE, bmsg.PayloadOn)
	assert.Equal("senec/bridge/state", bmsg.StateTopic)

	raw, err := json.Marshal(msg)
	require.NoError(t, err)
	assert.Contains(string(raw), `"platform":"mqtt"`)
}

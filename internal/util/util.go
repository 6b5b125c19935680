package util

import (
	"github.com/berfenger/senec2mqtt/internal/config"

	"go.uber.org/zap"
)

func LoadTestConfig() config.Config {
	return config.Config{
		LogLevel:           zap.DebugLevel,
		PollIntervalMillis: 5000,
		CycleTimeoutMillis: 2000,
		Devices: []config.DeviceConfig{{
			Id:   1,
			Name: "home",
			Type: config.DeviceTypeSenec,
			Senec: config.SenecConfig{
				IPAddress:     "-.-.-.-",
				TimeoutMillis: 1000,
			},
			Components: []config.ComponentConfig{
				{Id: 10, Type: "bat"},
				{Id: 11, Type: "counter"},
				{Id: 12, Type: "inverter"},
			},
		}},
		MQTT: config.MQTTConfig{
			Host:             "localhost",
			Port:             1883,
			BaseTopic:        "senec2mqtt",
			HADiscoveryTopic: "homeassistant",
		},
		Port: 8080,
	}
}

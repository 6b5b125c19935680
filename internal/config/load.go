package config

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const EnvPrefix = "senec2mqtt"

// Load reads the configuration from the environment and, if CONFIG_FILE names
// an existing file, from that file.
func Load() (*Config, error) {

	// alias PORT => SENEC2MQTT_PORT
	if port := os.Getenv("PORT"); port != "" {
		os.Setenv("SENEC2MQTT_PORT", port)
	}

	v := viper.New()
	setConfigDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()

	// if defined, try to load config from yaml file
	if cfgFile := os.Getenv("CONFIG_FILE"); cfgFile != "" {
		if _, err := os.Stat(cfgFile); err == nil {
			slog.Info("Using config", "file", cfgFile)
			v.SetConfigFile(cfgFile)

			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("reading config file %s: %w", cfgFile, err)
			}
		}
	}

	return FromViper(v)
}

func FromViper(v *viper.Viper) (*Config, error) {
	var cfg Config

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	cfg.LogLevel = ParseLogLevel(v.GetString("log_level"))

	for i := range cfg.Devices {
		applyDeviceDefaults(&cfg.Devices[i])
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func ParseLogLevel(level string) zapcore.Level {
	switch level {
	case "trace":
		return zap.DebugLevel
	case "debug":
		return zap.DebugLevel
	case "info":
		return zap.InfoLevel
	case "error":
		return zap.ErrorLevel
	case "warn":
		return zap.WarnLevel
	case "fatal":
		return zap.FatalLevel
	default:
		return zap.InfoLevel
	}
}

func setConfigDefaults(v *viper.Viper) {
	v.SetDefault("log_level", "info")
	v.SetDefault("port", 8080)
	v.SetDefault("http_log", false)
	v.SetDefault("poll_interval_millis", 5000)
	v.SetDefault("cycle_timeout_millis", 10000)
	v.SetDefault("state_file", "")
	v.SetDefault("mqtt.port", 1883)
	v.SetDefault("mqtt.base_topic", "senec2mqtt")
	v.SetDefault("mqtt.ha_discovery_enable", false)
	v.SetDefault("mqtt.ha_discovery_topic", "homeassistant")
	v.SetDefault("kafka.topic", "")
}

// list entries are not covered by viper defaults
func applyDeviceDefaults(d *DeviceConfig) {
	if d.Senec.TimeoutMillis == 0 {
		d.Senec.TimeoutMillis = 5000
	}
	if d.SunSpec.Port == 0 {
		d.SunSpec.Port = 502
	}
	if d.SunSpec.TimeoutMillis == 0 {
		d.SunSpec.TimeoutMillis = 1000
	}
}

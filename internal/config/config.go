package config

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/berfenger/senec2mqtt/internal/core/domain"
	"go.uber.org/zap/zapcore"
)

const (
	DeviceTypeSenec   = "senec"
	DeviceTypeSunSpec = "sunspec"
)

type Config struct {
	LogLevel           zapcore.Level  `mapstructure:"-"`
	Port               uint           `mapstructure:"port"`
	HttpLog            bool           `mapstructure:"http_log"`
	PollIntervalMillis uint32         `mapstructure:"poll_interval_millis"`
	CycleTimeoutMillis uint32         `mapstructure:"cycle_timeout_millis"`
	StateFile          string         `mapstructure:"state_file"`
	Devices            []DeviceConfig `mapstructure:"devices"`
	MQTT               MQTTConfig     `mapstructure:"mqtt"`
	Kafka              KafkaConfig    `mapstructure:"kafka"`
}

type DeviceConfig struct {
	Id           int               `mapstructure:"id"`
	Name         string            `mapstructure:"name"`
	Type         string            `mapstructure:"type"`
	ShareReading *bool             `mapstructure:"share_reading"`
	Senec        SenecConfig       `mapstructure:"senec"`
	SunSpec      SunSpecConfig     `mapstructure:"sunspec"`
	Components   []ComponentConfig `mapstructure:"components"`
}

type SenecConfig struct {
	IPAddress     string `mapstructure:"ip_address"`
	UseHTTPS      bool   `mapstructure:"use_https"`
	InsecureTLS   bool   `mapstructure:"insecure_tls"`
	TimeoutMillis uint32 `mapstructure:"timeout_millis"`
}

type SunSpecConfig struct {
	Host          string
	Port          uint
	InverterId    uint   `mapstructure:"inverter_id"`
	MeterId       uint   `mapstructure:"meter_id"`
	TimeoutMillis uint32 `mapstructure:"timeout_millis"`
}

type ComponentConfig struct {
	Id   int    `mapstructure:"id"`
	Type string `mapstructure:"type"`
	Name string `mapstructure:"name"`
}

type MQTTConfig struct {
	Host              string
	Port              int
	Username          string
	Password          string
	BaseTopic         string `mapstructure:"base_topic"`
	HADiscoveryEnable bool   `mapstructure:"ha_discovery_enable"`
	HADiscoveryTopic  string `mapstructure:"ha_discovery_topic"`
}

type KafkaConfig struct {
	Brokers []string
	Topic   string
}

func (c MQTTConfig) Enabled() bool {
	return c.Host != ""
}

func (c KafkaConfig) Enabled() bool {
	return len(c.Brokers) > 0 && c.Topic != ""
}

func (c Config) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalMillis) * time.Millisecond
}

func (c Config) CycleTimeout() time.Duration {
	return time.Duration(c.CycleTimeoutMillis) * time.Millisecond
}

// Shared reports whether the components of the device use one reading per cycle.
func (d DeviceConfig) Shared() bool {
	return d.ShareReading == nil || *d.ShareReading
}

func (d DeviceConfig) DeviceId() domain.DeviceId {
	return domain.DeviceId(d.Id)
}

func (d DeviceConfig) DisplayName() string {
	if d.Name != "" {
		return d.Name
	}
	return fmt.Sprintf("%s_%d", d.Type, d.Id)
}

func (d DeviceConfig) ComponentInfos() ([]domain.ComponentInfo, error) {
	infos := make([]domain.ComponentInfo, 0, len(d.Components))
	for _, c := range d.Components {
		kind, err := domain.ParseComponentKind(c.Type)
		if err != nil {
			return nil, fmt.Errorf("device %d component %d: %w", d.Id, c.Id, err)
		}
		infos = append(infos, domain.ComponentInfo{
			Id:       domain.ComponentId(c.Id),
			DeviceId: domain.DeviceId(d.Id),
			Kind:     kind,
			Name:     c.Name,
		})
	}
	return infos, nil
}

func CheckMQTTTopic(baseTopic string) (string, error) {
	// check and fix base topic
	lowerBaseTopic := strings.ToLower(baseTopic)
	baseTopicRegexp := regexp.MustCompile("^[a-z0-9_]+$")
	matches := baseTopicRegexp.FindAllStringSubmatch(lowerBaseTopic, 1)
	if len(matches) <= 0 {
		return "", errors.New("invalid topic. can only contain letters, numbers and underscores")
	}
	return lowerBaseTopic, nil
}

// Validate checks bounds and cross references. Topics are normalized in place.
func (c *Config) Validate() error {
	if c.PollIntervalMillis < 1000 {
		return errors.New("config param poll_interval_millis should be >= 1000")
	}
	if c.CycleTimeoutMillis == 0 {
		return errors.New("config param cycle_timeout_millis should be > 0")
	}
	if len(c.Devices) == 0 {
		return errors.New("config param devices should contain at least one device")
	}

	deviceIds := make(map[int]struct{}, len(c.Devices))
	componentIds := make(map[int]int)
	for _, d := range c.Devices {
		if _, dup := deviceIds[d.Id]; dup {
			return fmt.Errorf("config param devices: duplicated device id %d", d.Id)
		}
		deviceIds[d.Id] = struct{}{}

		switch d.Type {
		case DeviceTypeSenec:
			if d.Senec.IPAddress == "" {
				return fmt.Errorf("config param devices[%d].senec.ip_address is required", d.Id)
			}
		case DeviceTypeSunSpec:
			if d.SunSpec.Host == "" {
				return fmt.Errorf("config param devices[%d].sunspec.host is required", d.Id)
			}
			if d.SunSpec.InverterId > 247 || d.SunSpec.MeterId > 247 {
				return fmt.Errorf("config param devices[%d].sunspec unit ids should be <= 247", d.Id)
			}
		default:
			return fmt.Errorf("config param devices[%d].type: unknown device type %q", d.Id, d.Type)
		}

		if len(d.Components) == 0 {
			return fmt.Errorf("config param devices[%d].components should not be empty", d.Id)
		}
		if _, err := d.ComponentInfos(); err != nil {
			return fmt.Errorf("config param devices[%d].components: %w", d.Id, err)
		}
		for _, comp := range d.Components {
			if other, dup := componentIds[comp.Id]; dup {
				return fmt.Errorf("config param devices[%d].components: component id %d already used by device %d", d.Id, comp.Id, other)
			}
			componentIds[comp.Id] = d.Id
		}
	}

	if c.MQTT.Enabled() {
		baseTopic, err := CheckMQTTTopic(c.MQTT.BaseTopic)
		if err != nil {
			return errors.New("invalid base topic. can only contain letters, numbers and underscores")
		}
		c.MQTT.BaseTopic = baseTopic

		hadBaseTopic, err := CheckMQTTTopic(c.MQTT.HADiscoveryTopic)
		if err != nil {
			return errors.New("invalid homeassistant discovery topic. can only contain letters, numbers and underscores")
		}
		c.MQTT.HADiscoveryTopic = hadBaseTopic
	}

	if len(c.Kafka.Brokers) > 0 && c.Kafka.Topic == "" {
		return errors.New("config param kafka.topic is required when kafka.brokers is set")
	}

	return nil
}

// Redacted returns a copy safe to log.
func (c Config) Redacted() Config {
	if c.MQTT.Username != "" {
		c.MQTT.Username = "*redacted*"
	}
	if c.MQTT.Password != "" {
		c.MQTT.Password = "*redacted*"
	}
	return c
}

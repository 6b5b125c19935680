package sunspec

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/berfenger/senec2mqtt/internal/core/domain"
	"github.com/berfenger/senec2mqtt/internal/core/port"
	"github.com/berfenger/senec2mqtt/pkg/sunspec_modbus"
	"go.uber.org/zap"
)

type Options struct {
	Host       string
	Port       uint
	InverterId uint8
	// 0 disables the meter
	MeterId uint8
	Timeout time.Duration
}

// Source presents a SunSpec inverter and smart meter as a device reading in
// the same key layout as a Senec unit.
type Source struct {
	inverter sunspec_modbus.InverterModbusReader
	meter    sunspec_modbus.ACMeterModbusReader
	logger   *zap.Logger
}

func NewSource(inverter sunspec_modbus.InverterModbusReader, meter sunspec_modbus.ACMeterModbusReader, logger *zap.Logger) *Source {
	return &Source{inverter: inverter, meter: meter, logger: logger}
}

// Factory opens both readers when the first cycle needs them.
func Factory(name string, opts Options, logger *zap.Logger, instrumentation ...sunspec_modbus.ModbusInstrument) port.DeviceClientFactory {
	return func() (port.DeviceClient, error) {
		logger := logger.With(zap.String("device", name))
		inst := append([]sunspec_modbus.ModbusInstrument{traceInstrumentation(logger)}, instrumentation...)
		url := fmt.Sprintf("tcp://%s:%d", opts.Host, opts.Port)

		invClient, err := sunspec_modbus.NewTCPClient(url, opts.InverterId, opts.Timeout)
		if err != nil {
			return nil, err
		}
		inverter := sunspec_modbus.NewInverterIntSFModbusReader(invClient, inst...)
		if err := inverter.Open(); err != nil {
			return nil, fmt.Errorf("open inverter: %w", err)
		}

		var meter sunspec_modbus.ACMeterModbusReader
		if opts.MeterId > 0 {
			meterClient, err := sunspec_modbus.NewTCPClient(url, opts.MeterId, opts.Timeout)
			if err != nil {
				_ = inverter.Close()
				return nil, err
			}
			m := sunspec_modbus.NewACMeterIntSFModbusReader(meterClient, inst...)
			if err := m.Open(); err != nil {
				_ = inverter.Close()
				return nil, fmt.Errorf("open meter: %w", err)
			}
			meter = m
		}
		if info, err := inverter.GetInfo(); err == nil {
			logger.Info("sunspec: inverter found", zap.String("manufacturer", info.Manufacturer),
				zap.String("model", info.Model), zap.String("version", info.Version))
		}
		return NewSource(inverter, meter, logger), nil
	}
}

func traceInstrumentation(logger *zap.Logger) sunspec_modbus.ModbusInstrument {
	return sunspec_modbus.ModbusInstrument{
		RecordTime: func(fnName string, readTime time.Duration) {
			logger.Debug("modbus", zap.String("fn", fnName), zap.Int64("millis", readTime.Milliseconds()))
		},
	}
}

// GetValues reads every available block. Sections whose hardware is absent are
// left out, so only the components that need them fail.
func (s *Source) GetValues(ctx context.Context) (domain.RawReading, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	energy := map[string]any{}
	reading := domain.RawReading{domain.SectionEnergy: energy}

	if s.inverter != nil {
		flow, err := s.inverter.GetPowerFlow()
		if err != nil {
			return nil, fmt.Errorf("inverter power flow: %w", err)
		}
		energy[domain.KeyInverterPower] = flow.PVPowerWatt
		if s.inverter.HasStorage() {
			storage, err := s.inverter.GetStorageState()
			if err != nil {
				return nil, fmt.Errorf("storage state: %w", err)
			}
			energy[domain.KeyBatPower] = flow.BatteryPowerWatt()
			energy[domain.KeyBatSoC] = storage.StateOfCharge
		}
	}

	if s.meter != nil {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		flow, err := s.meter.GetPowerFlow()
		if err != nil {
			return nil, fmt.Errorf("meter power flow: %w", err)
		}
		reading[domain.SectionCounter] = map[string]any{
			domain.KeyCounterPower:     flow.PowerWatt,
			domain.KeyCounterFrequency: flow.Frequency,
			domain.KeyCounterCurrents:  flow.PhaseCurrents[:],
			domain.KeyCounterVoltages:  flow.PhaseVoltages[:],
			domain.KeyCounterPowers:    flow.PhasePowers[:],
		}
	}
	return reading, nil
}

func (s *Source) Close() error {
	var errs []error
	if s.inverter != nil {
		errs = append(errs, s.inverter.Close())
	}
	if s.meter != nil {
		errs = append(errs, s.meter.Close())
	}
	return errors.Join(errs...)
}

// ensure interface compliance
var _ port.DeviceClient = (*Source)(nil)

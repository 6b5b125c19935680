package sunspec_modbus

import (
	"errors"
)

// ACMeterIntSFModbusReader reads a SunSpec smart meter (models 201-204).
type ACMeterIntSFModbusReader struct {
	ModbusClient
	common  uint16
	acMeter uint16
}

func NewACMeterIntSFModbusReader(client RegisterClient, instrumentation ...ModbusInstrument) *ACMeterIntSFModbusReader {
	return &ACMeterIntSFModbusReader{
		ModbusClient: ModbusClient{client: client, instrument: instrumentation},
	}
}

func (reader *ACMeterIntSFModbusReader) Open() error {
	if err := reader.client.Open(); err != nil {
		return err
	}
	found, err := reader.surveyBlocks()
	if err != nil {
		return err
	}
	acMeter, ok := firstInRange(found, SUNSPEC_WK_METERS_MIN, SUNSPEC_WK_METERS_MAX)
	if found[SUNSPEC_WK_COMMON] == 0 || !ok {
		return errors.New("could not find all required sunspec blocks (common, ac_meter)")
	}
	reader.common = found[SUNSPEC_WK_COMMON]
	reader.acMeter = acMeter
	return nil
}

func (reader *ACMeterIntSFModbusReader) Close() error {
	return reader.client.Close()
}

func (reader *ACMeterIntSFModbusReader) GetInfo() (*DeviceInfo, error) {
	return reader.readCommon(reader.common)
}

// meter register offsets relative to the block header
const (
	meterAphA   = 3
	meterASF    = 6
	meterPhVphA = 8
	meterVSF    = 15
	meterHz     = 16
	meterHzSF   = 17
	meterW      = 18
	meterWphA   = 19
	meterWSF    = 22
)

func (reader *ACMeterIntSFModbusReader) GetPowerFlow() (*ACMeterPowerFlow, error) {
	const first = meterAphA
	regs, err := reader.readRegisters(reader.acMeter+first, meterWSF-first+1)
	if err != nil {
		return nil, err
	}
	reg := func(offset uint16) uint16 { return regs[offset-first] }

	flow := &ACMeterPowerFlow{
		PowerWatt: applySFint16(reg(meterW), reg(meterWSF)),
		Frequency: applySF(reg(meterHz), reg(meterHzSF)),
	}
	for i := uint16(0); i < 3; i++ {
		flow.PhaseCurrents[i] = applySFint16(reg(meterAphA+i), reg(meterASF))
		flow.PhaseVoltages[i] = applySF(reg(meterPhVphA+i), reg(meterVSF))
		flow.PhasePowers[i] = applySFint16(reg(meterWphA+i), reg(meterWSF))
	}
	return flow, nil
}

// ensure interface compliance
var _ ACMeterModbusReader = (*ACMeterIntSFModbusReader)(nil)

package sunspec_modbus

import (
	"errors"
)

type inverterBlocks struct {
	common   uint16
	inverter uint16
	mppt     uint16
	storage  uint16
}

// InverterIntSFModbusReader reads an integer+scale-factor SunSpec inverter
// (models 101-103) with its MPPT (160) and optional storage (124) blocks.
type InverterIntSFModbusReader struct {
	ModbusClient
	blocks inverterBlocks
}

func NewInverterIntSFModbusReader(client RegisterClient, instrumentation ...ModbusInstrument) *InverterIntSFModbusReader {
	return &InverterIntSFModbusReader{
		ModbusClient: ModbusClient{client: client, instrument: instrumentation},
	}
}

func (inv *InverterIntSFModbusReader) Open() error {
	if err := inv.client.Open(); err != nil {
		return err
	}
	return inv.survey()
}

func (inv *InverterIntSFModbusReader) Close() error {
	return inv.client.Close()
}

func (inv *InverterIntSFModbusReader) survey() error {
	found, err := inv.surveyBlocks()
	if err != nil {
		return err
	}
	blocks := inverterBlocks{
		common:  found[SUNSPEC_WK_COMMON],
		mppt:    found[SUNSPEC_WK_MPPT],
		storage: found[SUNSPEC_WK_STORAGE],
	}
	blocks.inverter, _ = firstInRange(found, SUNSPEC_WK_INVERTERS_MIN, SUNSPEC_WK_INVERTERS_MAX)
	if blocks.common == 0 || blocks.inverter == 0 || blocks.mppt == 0 {
		return errors.New("could not find all required sunspec blocks (common, inverter, mppt)")
	}
	inv.blocks = blocks
	return nil
}

func (inv *InverterIntSFModbusReader) GetInfo() (*DeviceInfo, error) {
	return inv.readCommon(inv.blocks.common)
}

func (reader ModbusClient) readCommon(common uint16) (*DeviceInfo, error) {
	manufacturer, err := reader.readString(common+2, 32)
	if err != nil {
		return nil, err
	}
	model, err := reader.readString(common+18, 32)
	if err != nil {
		return nil, err
	}
	version, err := reader.readString(common+42, 16)
	if err != nil {
		return nil, err
	}
	serial, err := reader.readString(common+50, 32)
	if err != nil {
		return nil, err
	}
	return &DeviceInfo{
		Manufacturer: manufacturer,
		Model:        model,
		Version:      version,
		Serial:       serial,
	}, nil
}

func (inv *InverterIntSFModbusReader) HasStorage() bool {
	return inv.blocks.storage > 0
}

// GetPowerFlow reads AC output and the DC side of the MPPT block. On hybrid
// inverters the last two MPPT modules are battery charge and discharge.
func (inv *InverterIntSFModbusReader) GetPowerFlow() (*InverterPowerFlow, error) {
	acpower, err := inv.readRegisters(inv.blocks.inverter+14, 2)
	if err != nil {
		return nil, err
	}
	dcPowerSF, err := inv.readRegister(inv.blocks.mppt + 4)
	if err != nil {
		return nil, err
	}
	nMods, err := inv.readRegister(inv.blocks.mppt + 8)
	if err != nil {
		return nil, err
	}

	pvModules := nMods
	if inv.HasStorage() && nMods >= 3 {
		pvModules = nMods - 2
	}

	flow := &InverterPowerFlow{
		ACPowerWatt: applySFint16(acpower[0], acpower[1]),
	}
	for i := uint16(0); i < pvModules; i++ {
		p, err := inv.readMPPTPower(i)
		if err != nil {
			return nil, err
		}
		flow.PVPowerWatt += applySF(p, dcPowerSF)
	}
	if pvModules < nMods {
		charge, err := inv.readMPPTPower(nMods - 2)
		if err != nil {
			return nil, err
		}
		discharge, err := inv.readMPPTPower(nMods - 1)
		if err != nil {
			return nil, err
		}
		flow.BatteryChargePowerWatt = applySF(charge, dcPowerSF)
		flow.BatteryDischargePowerWatt = applySF(discharge, dcPowerSF)
	}
	return flow, nil
}

func (inv *InverterIntSFModbusReader) readMPPTPower(index uint16) (uint16, error) {
	baseAddr := inv.blocks.mppt + 10 + 20*index
	dcpower, err := inv.readRegister(baseAddr + 11)
	if err != nil {
		return 0, err
	}
	// not implemented
	if dcpower == 0xFFFF {
		dcpower = 0
	}
	return dcpower, nil
}

func (inv *InverterIntSFModbusReader) GetStorageState() (*StorageState, error) {
	if inv.blocks.storage == 0 {
		return nil, errors.New("sunspec: storage block not supported")
	}
	regs, err := inv.readRegisters(inv.blocks.storage+2, 24)
	if err != nil {
		return nil, err
	}
	soc := applySF(regs[6], regs[20])
	if regs[9] == StorageChargeStatusOff {
		soc = 0
	}
	return &StorageState{
		StateOfCharge:   soc,
		ChargeStatus:    regs[9],
		ChargeStatusStr: StorageChargeStatusToString(regs[9]),
	}, nil
}

// ensure interface compliance
var _ InverterModbusReader = (*InverterIntSFModbusReader)(nil)

package sunspec_modbus

import (
	"fmt"
)

// storage states
const (
	StorageChargeStatusOff         = 1
	StorageChargeStatusEmpty       = 2
	StorageChargeStatusDischarging = 3
	StorageChargeStatusCharging    = 4
	StorageChargeStatusFull        = 5
	StorageChargeStatusHolding     = 6
	StorageChargeStatusTest        = 7
)

func StorageChargeStatusToString(status uint16) string {
	switch status {
	case StorageChargeStatusOff:
		return "off"
	case StorageChargeStatusEmpty:
		return "empty"
	case StorageChargeStatusDischarging:
		return "discharging"
	case StorageChargeStatusCharging:
		return "charging"
	case StorageChargeStatusFull:
		return "full"
	case StorageChargeStatusHolding:
		return "holding"
	case StorageChargeStatusTest:
		return "test"
	default:
		return fmt.Sprintf("unknown(%d)", status)
	}
}

type DeviceInfo struct {
	Manufacturer string
	Model        string
	Version      string
	Serial       string
}

type InverterPowerFlow struct {
	ACPowerWatt               float64
	PVPowerWatt               float64
	BatteryChargePowerWatt    float64
	BatteryDischargePowerWatt float64
}

// BatteryPowerWatt is positive while charging.
func (pf InverterPowerFlow) BatteryPowerWatt() float64 {
	return pf.BatteryChargePowerWatt - pf.BatteryDischargePowerWatt
}

type StorageState struct {
	StateOfCharge   float64
	ChargeStatus    uint16
	ChargeStatusStr string
}

type ACMeterPowerFlow struct {
	// Positive = import. Negative = export
	PowerWatt     float64
	Frequency     float64
	PhaseCurrents [3]float64
	PhaseVoltages [3]float64
	PhasePowers   [3]float64
}

type InverterModbusReader interface {
	Open() error
	Close() error
	GetInfo() (*DeviceInfo, error)
	GetPowerFlow() (*InverterPowerFlow, error)
	HasStorage() bool
	GetStorageState() (*StorageState, error)
}

type ACMeterModbusReader interface {
	Open() error
	Close() error
	GetInfo() (*DeviceInfo, error)
	GetPowerFlow() (*ACMeterPowerFlow, error)
}

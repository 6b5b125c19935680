package sunspec_modbus

import (
	"math"
	"slices"
	"time"

	"github.com/simonvetter/modbus"
)

// RegisterClient is the subset of *modbus.ModbusClient the readers use.
type RegisterClient interface {
	Open() error
	Close() error
	ReadRegister(addr uint16, regType modbus.RegType) (uint16, error)
	ReadRegisters(addr uint16, quantity uint16, regType modbus.RegType) ([]uint16, error)
	ReadRawBytes(addr uint16, quantity uint16, regType modbus.RegType) ([]byte, error)
}

type ModbusClient struct {
	client     RegisterClient
	instrument []ModbusInstrument
}

// ModbusInstrument observes the duration of every register access.
type ModbusInstrument struct {
	RecordTime func(fnName string, readTime time.Duration)
}

func (reader ModbusClient) readString(address uint16, size uint16) (string, error) {
	bytes, err := reader.readRawBytes(address, size)
	if err != nil {
		return "", err
	}
	if f := slices.Index(bytes, 0x00); f >= 0 {
		return string(bytes[:f]), nil
	}
	return string(bytes), nil
}

func applySF(number uint16, sf uint16) float64 {
	return float64(number) * math.Pow(10, float64(int16(sf)))
}

func applySFint16(number uint16, sf uint16) float64 {
	return float64(int16(number)) * math.Pow(10, float64(int16(sf)))
}

func (reader ModbusClient) readRegister(addr uint16) (uint16, error) {
	defer RecordTimer("ReadRegister", reader.instrument)()
	return reader.client.ReadRegister(addr, modbus.HOLDING_REGISTER)
}

func (reader ModbusClient) readRegisters(addr uint16, quantity uint16) ([]uint16, error) {
	defer RecordTimer("ReadRegisters", reader.instrument)()
	return reader.client.ReadRegisters(addr, quantity, modbus.HOLDING_REGISTER)
}

func (reader ModbusClient) readRawBytes(addr uint16, quantity uint16) ([]byte, error) {
	defer RecordTimer("ReadRawBytes", reader.instrument)()
	return reader.client.ReadRawBytes(addr, quantity, modbus.HOLDING_REGISTER)
}

func RecordTimer(name string, instrument []ModbusInstrument) func() {
	if len(instrument) == 0 {
		return func() {}
	}
	start := time.Now()
	return func() {
		duration := time.Since(start)
		for i := range instrument {
			instrument[i].RecordTime(name, duration)
		}
	}
}

// NewTCPClient builds an unopened modbus TCP client for one unit id.
func NewTCPClient(url string, unitId uint8, timeout time.Duration) (RegisterClient, error) {
	client, err := modbus.NewClient(&modbus.ClientConfiguration{
		URL:     url,
		Timeout: timeout,
	})
	if err != nil {
		return nil, err
	}
	if unitId > 0 {
		if err := client.SetUnitId(unitId); err != nil {
			return nil, err
		}
	}
	return client, nil
}

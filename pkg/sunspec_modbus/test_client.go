package sunspec_modbus

import (
	"errors"
	"fmt"

	"github.com/simonvetter/modbus"
)

// TestRegisterClient is an in-memory holding register bank.
type TestRegisterClient struct {
	Registers map[uint16]uint16
	OpenErr   error
	Opened    bool
}

func NewTestRegisterClient() *TestRegisterClient {
	return &TestRegisterClient{Registers: make(map[uint16]uint16)}
}

func (c *TestRegisterClient) Open() error {
	if c.OpenErr != nil {
		return c.OpenErr
	}
	c.Opened = true
	return nil
}

func (c *TestRegisterClient) Close() error {
	c.Opened = false
	return nil
}

func (c *TestRegisterClient) ReadRegister(addr uint16, regType modbus.RegType) (uint16, error) {
	regs, err := c.ReadRegisters(addr, 1, regType)
	if err != nil {
		return 0, err
	}
	return regs[0], nil
}

func (c *TestRegisterClient) ReadRegisters(addr uint16, quantity uint16, _ modbus.RegType) ([]uint16, error) {
	if !c.Opened {
		return nil, errors.New("test client: not open")
	}
	out := make([]uint16, quantity)
	for i := range out {
		out[i] = c.Registers[addr+uint16(i)]
	}
	return out, nil
}

func (c *TestRegisterClient) ReadRawBytes(addr uint16, quantity uint16, regType modbus.RegType) ([]byte, error) {
	regs, err := c.ReadRegisters(addr, (quantity+1)/2, regType)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, len(regs)*2)
	for _, r := range regs {
		out = append(out, byte(r>>8), byte(r))
	}
	return out[:quantity], nil
}

// PutString stores s big-endian, two bytes per register.
func (c *TestRegisterClient) PutString(addr uint16, s string) {
	b := []byte(s)
	if len(b)%2 == 1 {
		b = append(b, 0)
	}
	for i := 0; i < len(b); i += 2 {
		c.Registers[addr+uint16(i/2)] = uint16(b[i])<<8 | uint16(b[i+1])
	}
}

// PutBlocks writes the SunS marker followed by the given model headers and an
// end block. It returns the header address of every model.
func (c *TestRegisterClient) PutBlocks(models ...[2]uint16) map[uint16]uint16 {
	c.PutString(SUNSPEC_BASE_ADDR, "SunS")
	addrs := make(map[uint16]uint16, len(models))
	addr := uint16(SUNSPEC_BASE_ADDR + 2)
	for _, m := range models {
		c.Registers[addr] = m[0]
		c.Registers[addr+1] = m[1]
		addrs[m[0]] = addr
		addr += m[1] + 2
	}
	c.Registers[addr] = SUNSPEC_END_BLOCK
	return addrs
}

var _ RegisterClient = (*TestRegisterClient)(nil)

// Fake readers returning fixed values.

type TestInverterModbusReader struct {
	Flow    InverterPowerFlow
	Storage *StorageState
	Err     error
}

func (inv TestInverterModbusReader) Open() error  { return inv.Err }
func (inv TestInverterModbusReader) Close() error { return nil }

func (inv TestInverterModbusReader) GetInfo() (*DeviceInfo, error) {
	return &DeviceInfo{Manufacturer: "Fronius", Model: "Primo GEN24 4.0", Version: "1.30.7-1"}, inv.Err
}

func (inv TestInverterModbusReader) GetPowerFlow() (*InverterPowerFlow, error) {
	if inv.Err != nil {
		return nil, inv.Err
	}
	flow := inv.Flow
	return &flow, nil
}

func (inv TestInverterModbusReader) HasStorage() bool {
	return inv.Storage != nil
}

func (inv TestInverterModbusReader) GetStorageState() (*StorageState, error) {
	if inv.Err != nil {
		return nil, inv.Err
	}
	if inv.Storage == nil {
		return nil, fmt.Errorf("sunspec: storage block not supported")
	}
	st := *inv.Storage
	return &st, nil
}

type TestACMeterModbusReader struct {
	Flow ACMeterPowerFlow
	Err  error
}

func (reader TestACMeterModbusReader) Open() error  { return reader.Err }
func (reader TestACMeterModbusReader) Close() error { return nil }

func (reader TestACMeterModbusReader) GetInfo() (*DeviceInfo, error) {
	return &DeviceInfo{Manufacturer: "Fronius", Model: "Smart Meter TS 65A-3", Version: "1.2"}, reader.Err
}

func (reader TestACMeterModbusReader) GetPowerFlow() (*ACMeterPowerFlow, error) {
	if reader.Err != nil {
		return nil, reader.Err
	}
	flow := reader.Flow
	return &flow, nil
}

var (
	_ InverterModbusReader = TestInverterModbusReader{}
	_ ACMeterModbusReader  = TestACMeterModbusReader{}
)

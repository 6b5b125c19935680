package sunspec_modbus

import (
	"errors"
)

const (
	SUNSPEC_BASE_ADDR        = 40000
	SUNSPEC_WK_COMMON        = 1
	SUNSPEC_WK_INVERTERS_MIN = 101
	SUNSPEC_WK_INVERTERS_MAX = 103
	SUNSPEC_WK_STATUS        = 122
	SUNSPEC_WK_STORAGE       = 124
	SUNSPEC_WK_MPPT          = 160
	SUNSPEC_WK_METERS_MIN    = 201
	SUNSPEC_WK_METERS_MAX    = 204
	SUNSPEC_END_BLOCK        = 0xFFFF

	maxSurveyBlocks = 32
)

var ErrNotSunSpec = errors.New("sunspec: SunS marker not found")

type modbusBlock struct {
	id       uint16
	baseAddr uint16
	length   uint16
}

func (block modbusBlock) isEndBlock() bool {
	return block.id == SUNSPEC_END_BLOCK
}

// surveyBlocks walks the model chain that follows the SunS marker and returns
// the address of the first block of each model id.
func (reader ModbusClient) surveyBlocks() (map[uint16]uint16, error) {
	str, err := reader.readString(SUNSPEC_BASE_ADDR, 4)
	if err != nil {
		return nil, err
	}
	if str != "SunS" {
		return nil, ErrNotSunSpec
	}

	blocks := make(map[uint16]uint16)
	baseAddr := uint16(SUNSPEC_BASE_ADDR + 2)
	for n := 0; n < maxSurveyBlocks; n++ {
		header, err := reader.readRegisters(baseAddr, 2)
		if err != nil {
			return nil, err
		}
		block := modbusBlock{id: header[0], length: header[1], baseAddr: baseAddr}
		if block.isEndBlock() {
			break
		}
		if _, seen := blocks[block.id]; !seen {
			blocks[block.id] = block.baseAddr
		}
		baseAddr = baseAddr + block.length + 2
	}
	return blocks, nil
}

// firstInRange returns the lowest model id in [min, max] present in blocks.
func firstInRange(blocks map[uint16]uint16, min, max uint16) (uint16, bool) {
	for id := min; id <= max; id++ {
		if addr, ok := blocks[id]; ok {
			return addr, true
		}
	}
	return 0, false
}

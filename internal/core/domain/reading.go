package domain

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
)

// Key paths of the vendor reading consumed by the normalizers.
const (
	SectionEnergy  = "ENERGY"
	SectionCounter = "PM1OBJ1"

	KeyBatPower      = "GUI_BAT_DATA_POWER"
	KeyBatSoC        = "GUI_BAT_DATA_FUEL_CHARGE"
	KeyInverterPower = "GUI_INVERTER_POWER"

	KeyCounterPower     = "P_TOTAL"
	KeyCounterFrequency = "FREQ"
	KeyCounterCurrents  = "I_AC"
	KeyCounterVoltages  = "U_AC"
	KeyCounterPowers    = "P_AC"
)

// RawReading is the nested, vendor defined value tree returned by a device per poll.
// Nodes are map[string]any, []any or scalars.
type RawReading map[string]any

// Float resolves a path of string keys and int indices to a number.
func (r RawReading) Float(path ...any) (float64, error) {
	var node any = map[string]any(r)
	for i, elem := range path {
		switch key := elem.(type) {
		case string:
			m, ok := node.(map[string]any)
			if !ok {
				if rr, isReading := node.(RawReading); isReading {
					m, ok = map[string]any(rr), true
				}
			}
			if !ok {
				return 0, malformed(path[:i+1], "not an object")
			}
			child, found := m[key]
			if !found {
				return 0, malformed(path[:i+1], "missing")
			}
			node = child
		case int:
			arr, ok := node.([]any)
			if !ok {
				if floats, isFloats := node.([]float64); isFloats {
					arr = make([]any, len(floats))
					for j := range floats {
						arr[j] = floats[j]
					}
					ok = true
				}
			}
			if !ok {
				return 0, malformed(path[:i+1], "not an array")
			}
			if key < 0 || key >= len(arr) {
				return 0, malformed(path[:i+1], fmt.Sprintf("index out of range (len %d)", len(arr)))
			}
			node = arr[key]
		default:
			return 0, malformed(path[:i+1], fmt.Sprintf("invalid path element %T", elem))
		}
	}
	v, ok := toFloat(node)
	if !ok {
		return 0, malformed(path, fmt.Sprintf("not numeric (%T)", node))
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, malformed(path, "not finite")
	}
	return v, nil
}

// Float3 resolves three consecutive array elements below path.
func (r RawReading) Float3(path ...any) ([3]float64, error) {
	var out [3]float64
	for i := range out {
		p := append(append([]any{}, path...), i)
		v, err := r.Float(p...)
		if err != nil {
			return out, err
		}
		out[i] = v
	}
	return out, nil
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

func malformed(path []any, reason string) *MalformedReadingError {
	return &MalformedReadingError{Path: PathString(path...), Reason: reason}
}

// PathString renders a path as "A.B[2]".
func PathString(path ...any) string {
	var sb strings.Builder
	for _, elem := range path {
		switch key := elem.(type) {
		case int:
			fmt.Fprintf(&sb, "[%d]", key)
		default:
			if sb.Len() > 0 {
				sb.WriteByte('.')
			}
			fmt.Fprintf(&sb, "%v", key)
		}
	}
	return sb.String()
}

package senec

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// decodeValue converts one typed lala.cgi value ("fl_43E5B5A2", "u8_64", ...)
// to a Go value. Strings decode to string, everything else to float64.
func decodeValue(raw string) (any, error) {
	prefix, hexPart, ok := strings.Cut(raw, "_")
	if !ok {
		return nil, fmt.Errorf("missing type prefix in %q", raw)
	}
	if prefix == "st" {
		return hexPart, nil
	}
	bits, signed, err := prefixBits(prefix)
	if err != nil {
		return nil, err
	}
	u, err := strconv.ParseUint(hexPart, 16, bits)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", prefix, hexPart, err)
	}
	switch {
	case prefix == "fl":
		return float64(math.Float32frombits(uint32(u))), nil
	case signed:
		return float64(signExtend(u, bits)), nil
	default:
		return float64(u), nil
	}
}

func prefixBits(prefix string) (bits int, signed bool, err error) {
	switch prefix {
	case "fl", "u3":
		return 32, false, nil
	case "u1":
		return 16, false, nil
	case "u6":
		return 64, false, nil
	case "u8":
		return 8, false, nil
	case "i1":
		return 16, true, nil
	case "i3":
		return 32, true, nil
	case "i8":
		return 8, true, nil
	default:
		return 0, false, fmt.Errorf("unknown type prefix %q", prefix)
	}
}

func signExtend(u uint64, bits int) int64 {
	shift := 64 - bits
	return int64(u<<shift) >> shift
}

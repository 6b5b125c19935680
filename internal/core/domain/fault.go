package domain

import (
	"fmt"
	"time"
)

type FaultCause int

const (
	FaultCauseNone FaultCause = iota
	FaultCauseTransient
	FaultCauseMalformed
	FaultCauseUnknown
)

func (c FaultCause) String() string {
	switch c {
	case FaultCauseNone:
		return "none"
	case FaultCauseTransient:
		return "transient"
	case FaultCauseMalformed:
		return "malformed"
	case FaultCauseUnknown:
		return "unknown"
	default:
		return fmt.Sprintf("fault_cause_%d", int(c))
	}
}

func (c FaultCause) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// FaultRecord is the outcome of the last update attempt of a component.
type FaultRecord struct {
	Healthy   bool       `json:"healthy"`
	Cause     FaultCause `json:"cause"`
	Detail    string     `json:"detail,omitempty"`
	UpdatedAt time.Time  `json:"updated_at"`
}

func HealthyRecord(at time.Time) FaultRecord {
	return FaultRecord{
		Healthy:   true,
		Cause:     FaultCauseNone,
		UpdatedAt: at,
	}
}

// ClassifyFault maps an update step error to a fault cause.
func ClassifyFault(err error) FaultCause {
	switch {
	case err == nil:
		return FaultCauseNone
	case IsDeviceUnavailable(err):
		return FaultCauseTransient
	case IsMalformedReading(err):
		return FaultCauseMalformed
	default:
		return FaultCauseUnknown
	}
}

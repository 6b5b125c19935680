package service

import (
	"fmt"
	"math"
	"time"

	"github.com/berfenger/senec2mqtt/internal/core/domain"
)

// Normalizer maps one raw reading into the snapshot of a component kind and
// feeds the component's power into its meter.
type Normalizer func(reading domain.RawReading, meter Meter, now time.Time) (domain.ComponentState, error)

// NormalizerFor returns the normalizer and accumulator purpose of a kind.
func NormalizerFor(kind domain.ComponentKind) (Normalizer, AccumulatorPurpose, error) {
	switch kind {
	case domain.ComponentKindBat:
		return NormalizeBat, PurposeStorage, nil
	case domain.ComponentKindCounter:
		return NormalizeCounter, PurposeGrid, nil
	case domain.ComponentKindInverter:
		return NormalizeInverter, PurposePV, nil
	}
	return nil, "", fmt.Errorf("no normalizer for component type %q", kind)
}

func NormalizeBat(reading domain.RawReading, meter Meter, now time.Time) (domain.ComponentState, error) {
	power, err := reading.Float(domain.SectionEnergy, domain.KeyBatPower)
	if err != nil {
		return nil, err
	}
	soc, err := reading.Float(domain.SectionEnergy, domain.KeyBatSoC)
	if err != nil {
		return nil, err
	}
	power = Round2(power)
	totals := meter.Count(power, now)

	return domain.BatState{
		Power:    power,
		SoC:      Round2(soc),
		Imported: Round2(totals.Imported),
		Exported: Round2(totals.Exported),
	}, nil
}

func NormalizeCounter(reading domain.RawReading, meter Meter, now time.Time) (domain.ComponentState, error) {
	power, err := reading.Float(domain.SectionCounter, domain.KeyCounterPower)
	if err != nil {
		return nil, err
	}
	frequency, err := reading.Float(domain.SectionCounter, domain.KeyCounterFrequency)
	if err != nil {
		return nil, err
	}
	currents, err := reading.Float3(domain.SectionCounter, domain.KeyCounterCurrents)
	if err != nil {
		return nil, err
	}
	voltages, err := reading.Float3(domain.SectionCounter, domain.KeyCounterVoltages)
	if err != nil {
		return nil, err
	}
	powers, err := reading.Float3(domain.SectionCounter, domain.KeyCounterPowers)
	if err != nil {
		return nil, err
	}
	power = Round2(power)
	totals := meter.Count(power, now)

	return domain.CounterState{
		Power:     power,
		Currents:  round2x3(currents),
		Voltages:  round2x3(voltages),
		Powers:    round2x3(powers),
		Frequency: Round2(frequency),
		Imported:  Round2(totals.Imported),
		Exported:  Round2(totals.Exported),
	}, nil
}

// NormalizeInverter flips the device convention (generation positive) so that
// generation is negative like on every other component.
func NormalizeInverter(reading domain.RawReading, meter Meter, now time.Time) (domain.ComponentState, error) {
	generation, err := reading.Float(domain.SectionEnergy, domain.KeyInverterPower)
	if err != nil {
		return nil, err
	}
	power := negate(Round2(generation))
	totals := meter.Count(power, now)

	return domain.InverterState{
		Power:    power,
		Exported: Round2(totals.Exported),
	}, nil
}

// Round2 rounds half away from zero to 2 decimals.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func round2x3(v [3]float64) [3]float64 {
	return [3]float64{Round2(v[0]), Round2(v[1]), Round2(v[2])}
}

func negate(v float64) float64 {
	if v == 0 {
		return 0
	}
	return -v
}

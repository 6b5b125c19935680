package domain

// ComponentState is a normalized snapshot of one component. The set of
// implementations is closed: BatState, CounterState and InverterState.
type ComponentState interface {
	Kind() ComponentKind
	componentState()
}

type BatState struct {
	// Signed power in watts. Positive = charging
	Power float64 `json:"power"`
	// State of charge 0-100
	SoC float64 `json:"soc"`
	// Cumulative energy in Wh
	Imported float64 `json:"imported"`
	Exported float64 `json:"exported"`
}

type CounterState struct {
	// Signed total power in watts. Positive = grid import
	Power     float64    `json:"power"`
	Currents  [3]float64 `json:"currents"`
	Voltages  [3]float64 `json:"voltages"`
	Powers    [3]float64 `json:"powers"`
	Frequency float64    `json:"frequency"`
	Imported  float64    `json:"imported"`
	Exported  float64    `json:"exported"`
}

type InverterState struct {
	// Generation is negative
	Power    float64 `json:"power"`
	Exported float64 `json:"exported"`
}

func (BatState) Kind() ComponentKind      { return ComponentKindBat }
func (CounterState) Kind() ComponentKind  { return ComponentKindCounter }
func (InverterState) Kind() ComponentKind { return ComponentKindInverter }

func (BatState) componentState()      {}
func (CounterState) componentState()  {}
func (InverterState) componentState() {}

// ensure interface compliance
var (
	_ ComponentState = BatState{}
	_ ComponentState = CounterState{}
	_ ComponentState = InverterState{}
)

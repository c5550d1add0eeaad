// Package dispatch implements the day-ahead dispatch optimization core: it
// turns a site's PV forecast, load forecast, tariff schedule and BESS/grid
// limits into a power schedule that minimizes cost, curtailment and
// constraint violation.
package dispatch

// BESSParams describes the battery energy storage system attached to the site.
type BESSParams struct {
	CapacityKWh     float64
	PChargeMaxKW    float64
	PDischargeMaxKW float64
	SoC0            float64
	SoCMin          float64
	SoCMax          float64
	EtaCharge       float64
	EtaDischarge    float64
}

// GridLimits describes the site's connection to the upstream grid.
type GridLimits struct {
	GridImportMaxKW  float64
	GridExportMaxKW  float64
	TransformerMaxKW float64
}

// Weights controls the relative importance of the objective terms.
type Weights struct {
	Cost      float64 `json:"cost"`
	Curtail   float64 `json:"curtail"`
	Violation float64 `json:"violation"`
}

// DefaultWeights returns the weights named in the specification.
func DefaultWeights() Weights {
	return Weights{Cost: 1.0, Curtail: 0.2, Violation: 1000.0}
}

// DefaultBESSParams returns the BESS defaults named in the request schema.
func DefaultBESSParams() BESSParams {
	return BESSParams{
		CapacityKWh:     100.0,
		PChargeMaxKW:    50.0,
		PDischargeMaxKW: 50.0,
		SoC0:            0.5,
		SoCMin:          0.2,
		SoCMax:          0.9,
		EtaCharge:       0.95,
		EtaDischarge:    0.95,
	}
}

// DefaultGridLimits returns the grid limit defaults named in the request schema.
func DefaultGridLimits() GridLimits {
	return GridLimits{
		GridImportMaxKW:  200.0,
		GridExportMaxKW:  200.0,
		TransformerMaxKW: 250.0,
	}
}

// DispatchProblem is the immutable, validated input consumed by both solvers.
// All arrays share length T; SoC arrays used by a Solution have length T+1.
type DispatchProblem struct {
	T          int
	DeltaT     float64 // hours per step
	PVForecast []float64
	Load       []float64
	TariffBuy  []float64
	TariffSell []float64
	BESS       BESSParams
	Grid       GridLimits
	Weights    Weights
}

// SolverKind identifies which solver produced a Solution.
type SolverKind string

const (
	SolverMILP     SolverKind = "milp"
	SolverFallback SolverKind = "fallback"
)

// ConstraintTag names a bound that is active (binding) at a given timestep.
type ConstraintTag string

const (
	TagSoCMin        ConstraintTag = "soc_min"
	TagSoCMax        ConstraintTag = "soc_max"
	TagChargeMax     ConstraintTag = "p_charge_max"
	TagDischargeMax  ConstraintTag = "p_discharge_max"
	TagGridImportMax ConstraintTag = "grid_import_max"
	TagGridExportMax ConstraintTag = "grid_export_max"
)

// Solution is the output of either solver. SoC has T+1 entries: SoC[0] is
// the initial state, SoC[T] is the terminal state.
type Solution struct {
	PVSet             []float64
	BattCh            []float64
	BattDis           []float64
	GridImp           []float64
	GridExp           []float64
	Curtail           []float64
	SoC               []float64
	SolverKind        SolverKind
	ObjectiveValue    *float64
	ActiveConstraints [][]ConstraintTag // one set per timestep, indices [0,T)
}

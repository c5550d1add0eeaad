package dispatch

import (
	"math"
	"sort"
	"strconv"
)

const balanceTolKW = 0.01

// newSolution allocates a zero-valued Solution of the right shape for a
// problem with T timesteps.
func newSolution(t int, kind SolverKind) Solution {
	return Solution{
		PVSet:             make([]float64, t),
		BattCh:            make([]float64, t),
		BattDis:           make([]float64, t),
		GridImp:           make([]float64, t),
		GridExp:           make([]float64, t),
		Curtail:           make([]float64, t),
		SoC:               make([]float64, t+1),
		SolverKind:        kind,
		ActiveConstraints: make([][]ConstraintTag, t),
	}
}

// CheckInvariants verifies invariants (1)-(6) of §3 against the problem the
// solution was produced for. It returns the first violation found, or nil.
// This is the function both solvers' tests and any caller validating a
// Solution before trusting it should use.
func CheckInvariants(p DispatchProblem, s Solution) error {
	for t := 0; t < p.T; t++ {
		balance := s.PVSet[t] + s.BattDis[t] + s.GridImp[t] - p.Load[t] - s.BattCh[t] - s.GridExp[t]
		if math.Abs(balance) > balanceTolKW {
			return violation(t, "power balance", balance)
		}
		decomp := s.PVSet[t] + s.Curtail[t] - p.PVForecast[t]
		if math.Abs(decomp) > balanceTolKW {
			return violation(t, "pv decomposition", decomp)
		}
		if s.BattCh[t]*s.BattDis[t] > balanceTolKW {
			return violation(t, "battery mutual exclusivity", s.BattCh[t]*s.BattDis[t])
		}
		if s.GridImp[t]*s.GridExp[t] > balanceTolKW {
			return violation(t, "grid mutual exclusivity", s.GridImp[t]*s.GridExp[t])
		}
		if s.SoC[t] < p.BESS.SoCMin-1e-6 || s.SoC[t] > p.BESS.SoCMax+1e-6 {
			return violation(t, "soc bounds", s.SoC[t])
		}
		expected := s.SoC[t] + (p.BESS.EtaCharge*s.BattCh[t]-s.BattDis[t]/p.BESS.EtaDischarge)*p.DeltaT/p.BESS.CapacityKWh
		if math.Abs(expected-s.SoC[t+1]) > 1e-4 {
			return violation(t, "soc dynamics", expected-s.SoC[t+1])
		}
		if s.PVSet[t] < -balanceTolKW || s.PVSet[t] > p.PVForecast[t]+balanceTolKW {
			return violation(t, "pv_set bounds", s.PVSet[t])
		}
		if s.BattCh[t] < -balanceTolKW || s.BattCh[t] > p.BESS.PChargeMaxKW+balanceTolKW {
			return violation(t, "batt_ch bounds", s.BattCh[t])
		}
		if s.BattDis[t] < -balanceTolKW || s.BattDis[t] > p.BESS.PDischargeMaxKW+balanceTolKW {
			return violation(t, "batt_dis bounds", s.BattDis[t])
		}
		if s.GridImp[t] < -balanceTolKW || s.GridImp[t] > p.Grid.GridImportMaxKW+balanceTolKW {
			return violation(t, "grid_imp bounds", s.GridImp[t])
		}
		if s.GridExp[t] < -balanceTolKW || s.GridExp[t] > p.Grid.GridExportMaxKW+balanceTolKW {
			return violation(t, "grid_exp bounds", s.GridExp[t])
		}
		if s.Curtail[t] < -balanceTolKW {
			return violation(t, "curtail bounds", s.Curtail[t])
		}
	}
	return nil
}

func violation(t int, what string, delta float64) error {
	return &invariantViolation{t: t, what: what, delta: delta}
}

type invariantViolation struct {
	t     int
	what  string
	delta float64
}

func (e *invariantViolation) Error() string {
	return "invariant violated at t=" + strconv.Itoa(e.t) + ": " + e.what
}

// median returns the median of vals. It does not mutate vals.
func median(vals []float64) float64 {
	if len(vals) == 0 {
		return 0
	}
	cp := make([]float64, len(vals))
	copy(cp, vals)
	sort.Float64s(cp)
	n := len(cp)
	if n%2 == 1 {
		return cp[n/2]
	}
	return (cp[n/2-1] + cp[n/2]) / 2
}

package dispatch

import (
	"context"
	"math"
	"time"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize/convex/lp"
)

// bigM is the default big-M constant used to linearize the charge/import
// directionality indicators. No declared limit in a valid DispatchProblem can
// exceed this, so the logical implication it encodes is exact (§4.2).
const bigM = 1e6

// MILPConfig controls the solver driver's wall-clock budget and optimality
// target. Zero values are replaced by the documented defaults.
type MILPConfig struct {
	Deadline time.Duration // default 3s
	// GapTarget is unused directly by the bundled branch-and-bound, which
	// always closes the gap to zero or times out, but is kept so callers
	// porting a tighter-gap backend have somewhere to plug it in.
	GapTarget float64 // default 0.01
}

func (c MILPConfig) deadline() time.Duration {
	if c.Deadline <= 0 {
		return 3 * time.Second
	}
	return c.Deadline
}

// variable layout, 8 per timestep plus T soc[1..T] plus 1 global slack; index
// 8T (where soc[0] would sit) is left unused, so n is 9T+2.
type varLayout struct {
	t int
	n int // total variable count
}

func newVarLayout(t int) varLayout {
	return varLayout{t: t, n: 8*t + t + 2}
}

func (l varLayout) pvSet(t int) int { return 8*t + 0 }
func (l varLayout) battCh(t int) int { return 8*t + 1 }
func (l varLayout) battDis(t int) int { return 8*t + 2 }
func (l varLayout) gridImp(t int) int { return 8*t + 3 }
func (l varLayout) gridExp(t int) int { return 8*t + 4 }
func (l varLayout) curtail(t int) int { return 8*t + 5 }
func (l varLayout) bCharge(t int) int { return 8*t + 6 }
func (l varLayout) bImport(t int) int { return 8*t + 7 }
func (l varLayout) soc(t int) int { return 8*l.t + t } // t in [1,T], soc[0] is fixed, not a variable
// slackTransformer is its own index past the last soc variable (8T+T), kept
// unbounded above ([0,∞), §4.2) — it must never collide with soc(T)==8T+T.
func (l varLayout) slackTransformer() int { return 8*l.t + l.t + 1 }

// milpModel is the standard-form (minimize c'x s.t. Gx<=h, Ax=b, x>=0) model
// built from a DispatchProblem, following the same gonum/mat + gonum/lp
// construction the teacher's LPDispatcher uses for its simplex LP.
type milpModel struct {
	p      DispatchProblem
	layout varLayout
	binary []int // indices of variables constrained to {0,1}
	ub     []float64
	c      []float64
	gRows  [][]float64
	hVals  []float64
	aRows  [][]float64
	bVals  []float64
}

func buildMILPModel(p DispatchProblem) *milpModel {
	layout := newVarLayout(p.T)
	m := &milpModel{p: p, layout: layout, ub: make([]float64, layout.n)}
	for i := range m.ub {
		m.ub[i] = math.MaxFloat64
	}

	m.c = make([]float64, layout.n)
	for t := 0; t < p.T; t++ {
		m.c[layout.gridImp(t)] += p.Weights.Cost * p.TariffBuy[t] * p.DeltaT
		m.c[layout.gridExp(t)] -= p.Weights.Cost * p.TariffSell[t] * p.DeltaT
		m.c[layout.curtail(t)] += p.Weights.Curtail * p.DeltaT
	}
	m.c[layout.slackTransformer()] = p.Weights.Violation

	for t := 0; t < p.T; t++ {
		m.setBound(layout.pvSet(t), p.PVForecast[t])
		m.setBound(layout.curtail(t), p.PVForecast[t])
		m.setBound(layout.battCh(t), p.BESS.PChargeMaxKW)
		m.setBound(layout.battDis(t), p.BESS.PDischargeMaxKW)
		m.setBound(layout.gridImp(t), p.Grid.GridImportMaxKW)
		m.setBound(layout.gridExp(t), p.Grid.GridExportMaxKW)
		m.setBound(layout.bCharge(t), 1)
		m.setBound(layout.bImport(t), 1)
		m.binary = append(m.binary, layout.bCharge(t), layout.bImport(t))
	}
	for t := 1; t <= p.T; t++ {
		m.setBound(layout.soc(t), p.BESS.SoCMax)
	}

	for t := 0; t < p.T; t++ {
		// C1 power balance: pv_set+batt_dis+grid_imp - load = batt_ch+grid_exp
		row := make([]float64, layout.n)
		row[layout.pvSet(t)] = 1
		row[layout.battDis(t)] = 1
		row[layout.gridImp(t)] = 1
		row[layout.battCh(t)] = -1
		row[layout.gridExp(t)] = -1
		m.addEq(row, p.Load[t])

		// C2 pv decomposition: pv_set+curtail = pv_forecast
		row = make([]float64, layout.n)
		row[layout.pvSet(t)] = 1
		row[layout.curtail(t)] = 1
		m.addEq(row, p.PVForecast[t])

		// C3 soc dynamics: soc[t+1] - (eta_c*batt_ch - batt_dis/eta_d)*dt/cap = soc[t]
		row = make([]float64, layout.n)
		row[layout.soc(t+1)] = 1
		row[layout.battCh(t)] = -p.BESS.EtaCharge * p.DeltaT / p.BESS.CapacityKWh
		row[layout.battDis(t)] = p.DeltaT / (p.BESS.EtaDischarge * p.BESS.CapacityKWh)
		socPrev := p.BESS.SoC0
		if t == 0 {
			m.addEq(row, socPrev)
		} else {
			row[layout.soc(t)] = -1
			m.addEq(row, 0)
		}

		// C4 charge indicator
		row = make([]float64, layout.n)
		row[layout.battCh(t)] = 1
		row[layout.bCharge(t)] = -bigM
		m.addLE(row, 0)
		row = make([]float64, layout.n)
		row[layout.battDis(t)] = 1
		row[layout.bCharge(t)] = bigM
		m.addLE(row, bigM)

		// C5 import indicator
		row = make([]float64, layout.n)
		row[layout.gridImp(t)] = 1
		row[layout.bImport(t)] = -bigM
		m.addLE(row, 0)
		row = make([]float64, layout.n)
		row[layout.gridExp(t)] = 1
		row[layout.bImport(t)] = bigM
		m.addLE(row, bigM)

		// C6 transformer soft limit
		row = make([]float64, layout.n)
		row[layout.gridImp(t)] = 1
		row[layout.gridExp(t)] = 1
		row[layout.slackTransformer()] = -1
		m.addLE(row, p.Grid.TransformerMaxKW)
	}
	// soc bound lower: soc[t] >= soc_min  ->  -soc[t] <= -soc_min
	for t := 1; t <= p.T; t++ {
		row := make([]float64, layout.n)
		row[layout.soc(t)] = -1
		m.addLE(row, -p.BESS.SoCMin)
	}

	return m
}

func (m *milpModel) setBound(idx int, ub float64) {
	if ub < 0 {
		ub = 0
	}
	m.ub[idx] = ub
}

func (m *milpModel) addEq(row []float64, rhs float64) {
	m.aRows = append(m.aRows, row)
	m.bVals = append(m.bVals, rhs)
}

func (m *milpModel) addLE(row []float64, rhs float64) {
	m.gRows = append(m.gRows, row)
	m.hVals = append(m.hVals, rhs)
}

// solveRelaxation solves the continuous relaxation of the model with the
// given per-variable [lb,ub] bounds (used by branch-and-bound to tighten
// binary variables to exactly 0 or 1) and returns the primal solution.
func (m *milpModel) solveRelaxation(lb, ub []float64) ([]float64, float64, error) {
	n := m.layout.n
	extraRows := 2 * n // one upper-bound and one lower-bound row per variable
	g := mat.NewDense(len(m.gRows)+extraRows, n, nil)
	h := make([]float64, len(m.gRows)+extraRows)
	for i, row := range m.gRows {
		for j, v := range row {
			if v != 0 {
				g.Set(i, j, v)
			}
		}
		h[i] = m.hVals[i]
	}
	base := len(m.gRows)
	for i := 0; i < n; i++ {
		g.Set(base+i, i, 1)
		bound := ub[i]
		if bound == math.MaxFloat64 {
			bound = bigM * 10
		}
		h[base+i] = bound
	}
	for i := 0; i < n; i++ {
		// x_i >= lb[i]  ->  -x_i <= -lb[i]
		g.Set(base+n+i, i, -1)
		h[base+n+i] = -lb[i]
	}

	a := mat.NewDense(len(m.aRows), n, nil)
	for i, row := range m.aRows {
		for j, v := range row {
			if v != 0 {
				a.Set(i, j, v)
			}
		}
	}

	cStd, gStd, hStd := lp.Convert(m.c, g, h, a, m.bVals)
	obj, sol, err := lp.Simplex(cStd, gStd, hStd, 1e-8, nil)
	if err != nil {
		return nil, 0, err
	}
	return sol[:n], obj, nil
}

// BranchAndBoundSolve runs a depth-first branch-and-bound over the charge and
// import binary indicators, using gonum's simplex solver for each node's LP
// relaxation. It honors the deadline in cfg and returns a SolverFailure when
// it cannot close the search (or find any feasible integer solution) in
// time.
func BranchAndBoundSolve(ctx context.Context, p DispatchProblem, cfg MILPConfig) (Solution, error) {
	model := buildMILPModel(p)
	deadline := time.Now().Add(cfg.deadline())

	rootLB := make([]float64, model.layout.n)
	type node struct{ lb, ub []float64 }
	root := node{lb: rootLB, ub: append([]float64(nil), model.ub...)}
	stack := []node{root}

	var bestObj = math.MaxFloat64
	var bestSol []float64
	sawInfeasible := false
	sawAnyRelaxation := false

	for len(stack) > 0 {
		if time.Now().After(deadline) {
			// §4.2: TIME_LIMIT is always a failure, even if an incumbent was
			// found — the caller falls back rather than trusting a solution
			// whose optimality gap was never verified.
			return Solution{}, &SolverFailure{Kind: FailureTimeLimit}
		}
		select {
		case <-ctx.Done():
			return Solution{}, &SolverFailure{Kind: FailureTimeLimit, Err: ctx.Err()}
		default:
		}

		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		var sol []float64
		var obj float64
		var err error
		done := make(chan struct{})
		go func() {
			sol, obj, err = model.solveRelaxation(cur.lb, cur.ub)
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(time.Until(deadline)):
			return Solution{}, &SolverFailure{Kind: FailureTimeLimit}
		}
		if err != nil {
			sawInfeasible = true
			continue
		}
		sawAnyRelaxation = true
		if obj >= bestObj {
			continue // bound: this branch cannot improve on the incumbent
		}

		branchVar, frac := model.mostFractionalBinary(sol)
		if branchVar < 0 {
			// integer-feasible
			bestObj = obj
			bestSol = sol
			continue
		}
		_ = frac

		loLB := append([]float64(nil), cur.lb...)
		loUB := append([]float64(nil), cur.ub...)
		loUB[branchVar] = 0
		hiLB := append([]float64(nil), cur.lb...)
		hiUB := append([]float64(nil), cur.ub...)
		hiLB[branchVar] = 1
		stack = append(stack, node{lb: loLB, ub: loUB}, node{lb: hiLB, ub: hiUB})
	}

	if bestSol != nil {
		return model.extractSolution(bestSol, bestObj), nil
	}
	if sawInfeasible && !sawAnyRelaxation {
		return Solution{}, &SolverFailure{Kind: FailureInfeasible}
	}
	return Solution{}, &SolverFailure{Kind: FailureInfeasible}
}

// mostFractionalBinary returns the model variable index of the binary
// variable furthest from an integer value (one of the entries of
// model.binary), or -1 if all are integral within tolerance.
func (m *milpModel) mostFractionalBinary(sol []float64) (int, float64) {
	best := -1
	bestFrac := 1e-6
	for _, idx := range m.binary {
		v := sol[idx]
		frac := v - float64(int(v+0.5))
		if frac < 0 {
			frac = -frac
		}
		if frac > bestFrac {
			bestFrac = frac
			best = idx
		}
	}
	return best, bestFrac
}

func (m *milpModel) extractSolution(sol []float64, obj float64) Solution {
	p := m.p
	s := newSolution(p.T, SolverMILP)
	layout := m.layout
	s.SoC[0] = p.BESS.SoC0
	for t := 0; t < p.T; t++ {
		s.PVSet[t] = clampNonNeg(sol[layout.pvSet(t)])
		s.BattCh[t] = clampNonNeg(sol[layout.battCh(t)])
		s.BattDis[t] = clampNonNeg(sol[layout.battDis(t)])
		s.GridImp[t] = clampNonNeg(sol[layout.gridImp(t)])
		s.GridExp[t] = clampNonNeg(sol[layout.gridExp(t)])
		s.Curtail[t] = clampNonNeg(sol[layout.curtail(t)])
	}
	for t := 1; t <= p.T; t++ {
		s.SoC[t] = sol[layout.soc(t)]
	}
	objCopy := obj
	s.ObjectiveValue = &objCopy
	s.ActiveConstraints = detectActiveConstraints(p, s)
	return s
}

func clampNonNeg(v float64) float64 {
	if v < 0 {
		return 0
	}
	return v
}

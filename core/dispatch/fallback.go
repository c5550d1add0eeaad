package dispatch

import "math"

// FallbackSolve implements the deterministic rule-based scheduler (§4.3). It
// never fails: for any well-formed DispatchProblem it returns a Solution,
// absorbing surplus into export or curtailment and deficit into (capped) grid
// import, then into a reduced battery charge. A deficit left after that is
// not served: the step's power balance stays short, and the returned error
// is a FallbackImbalanceWarning naming those steps. Otherwise it is nil.
//
// Solution.PVSet is the total PV power utilized (pv_forecast - curtail),
// matching invariant (2); the "pv_set = min(forecast, load)" quantity in the
// algorithm below is an intermediate used only to size the battery/curtail
// decisions, not the final reported value.
func FallbackSolve(p DispatchProblem) (Solution, error) {
	s := newSolution(p.T, SolverFallback)
	s.SoC[0] = p.BESS.SoC0

	medBuy := median(p.TariffBuy)
	var imbalanced []int

	for t := 0; t < p.T; t++ {
		soc := s.SoC[t]
		peak := p.TariffBuy[t] > 1.2*medBuy
		offPeak := p.TariffBuy[t] < 0.8*medBuy

		directServe := math.Min(p.PVForecast[t], p.Load[t])
		surplus := p.PVForecast[t] - directServe
		unmetLoad := p.Load[t] - directServe

		availCharge := availableChargeEnergy(p, soc)
		availDischarge := availableDischargeEnergy(p, soc)

		var battCh, battDis float64
		switch {
		case peak && soc > p.BESS.SoCMin:
			d := math.Min(p.BESS.PDischargeMaxKW, math.Max(0, unmetLoad))
			d = math.Min(d, availDischarge)
			battDis = math.Max(0, d)
		case surplus > 0 && soc < p.BESS.SoCMax:
			c := math.Min(p.BESS.PChargeMaxKW, surplus)
			c = math.Min(c, availCharge)
			battCh = math.Max(0, c)
			surplus -= battCh
		case offPeak && soc < p.BESS.SoCMax:
			c := math.Min(p.BESS.PChargeMaxKW, availCharge)
			battCh = math.Max(0, c)
		}

		exportable := math.Min(surplus, p.Grid.GridExportMaxKW)
		curtail := surplus - exportable
		gridExp := exportable

		pvUsed := p.PVForecast[t] - curtail
		residual := p.Load[t] + battCh + gridExp - pvUsed - battDis
		var gridImp float64
		if residual > 0 {
			gridImp = math.Min(residual, p.Grid.GridImportMaxKW)
			shortfall := residual - gridImp
			if shortfall > 0.01 {
				reduce := math.Min(battCh, shortfall)
				battCh -= reduce
				shortfall -= reduce
				if shortfall > 0.01 {
					imbalanced = append(imbalanced, t)
				}
			}
		} else if residual < 0 {
			extra := -residual
			addExp := math.Min(extra, p.Grid.GridExportMaxKW-gridExp)
			gridExp += addExp
			extra -= addExp
			if extra > 0.01 {
				curtail += extra
				pvUsed = p.PVForecast[t] - curtail
			}
		}

		s.PVSet[t] = pvUsed
		s.BattCh[t] = battCh
		s.BattDis[t] = battDis
		s.GridImp[t] = gridImp
		s.GridExp[t] = gridExp
		s.Curtail[t] = curtail
		s.SoC[t+1] = soc + (p.BESS.EtaCharge*battCh-battDis/p.BESS.EtaDischarge)*p.DeltaT/p.BESS.CapacityKWh
	}

	s.ActiveConstraints = detectActiveConstraints(p, s)

	if len(imbalanced) > 0 {
		return s, &FallbackImbalanceWarning{Timesteps: imbalanced}
	}
	return s, nil
}

// availableChargeEnergy returns the charge power (kW) that can be absorbed
// before soc reaches soc_max within one timestep.
func availableChargeEnergy(p DispatchProblem, soc float64) float64 {
	if p.BESS.EtaCharge <= 0 || p.DeltaT <= 0 {
		return 0
	}
	return (p.BESS.SoCMax - soc) * p.BESS.CapacityKWh / (p.BESS.EtaCharge * p.DeltaT)
}

// availableDischargeEnergy returns the discharge power (kW) that can be drawn
// before soc reaches soc_min within one timestep.
func availableDischargeEnergy(p DispatchProblem, soc float64) float64 {
	if p.DeltaT <= 0 {
		return 0
	}
	return (soc - p.BESS.SoCMin) * p.BESS.CapacityKWh * p.BESS.EtaDischarge / p.DeltaT
}

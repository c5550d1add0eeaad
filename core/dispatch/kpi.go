package dispatch

import "gonum.org/v1/gonum/stat"

const kpiEps = 0.01

// KPIs holds the core reported metrics (§4.5) plus the extended set kept for
// richer reporting. All sums use the DispatchProblem's Δt; no rounding is
// applied to intermediate values.
type KPIs struct {
	TotalCost           float64 `json:"total_cost"`
	TotalCurtailKWh     float64 `json:"total_curtail_kwh"`
	PeakGridImportKW    float64 `json:"peak_grid_import_kw"`
	AvgSoC              float64 `json:"avg_soc"`
	GridImportKWh       float64 `json:"grid_import_kwh"`
	GridExportKWh       float64 `json:"grid_export_kwh"`
	BattChargeKWh       float64 `json:"batt_charge_kwh"`
	BattDischargeKWh    float64 `json:"batt_discharge_kwh"`
	SoCMinReached       float64 `json:"soc_min_reached"`
	SoCMaxReached       float64 `json:"soc_max_reached"`
	TotalBuyCost        float64 `json:"total_buy_cost"`
	TotalSellRevenue    float64 `json:"total_sell_revenue"`
	NetEnergyKWh        float64 `json:"net_energy_kwh"`
	SelfConsumptionRate float64 `json:"self_consumption_rate"`
}

// ComputeKPIs derives KPIs from a Solution and the problem it was produced
// for (§4.5). It is a pure function of its inputs: calling it twice on the
// same arguments yields bitwise-identical results.
func ComputeKPIs(p DispatchProblem, s Solution) KPIs {
	var k KPIs
	var pvForecastSum, pvSetSum float64

	k.SoCMinReached = s.SoC[0]
	k.SoCMaxReached = s.SoC[0]

	for t := 0; t < p.T; t++ {
		buyCost := p.TariffBuy[t] * s.GridImp[t] * p.DeltaT
		sellRevenue := p.TariffSell[t] * s.GridExp[t] * p.DeltaT
		k.TotalBuyCost += buyCost
		k.TotalSellRevenue += sellRevenue
		k.TotalCost += buyCost - sellRevenue

		k.TotalCurtailKWh += s.Curtail[t] * p.DeltaT
		if s.GridImp[t] > k.PeakGridImportKW {
			k.PeakGridImportKW = s.GridImp[t]
		}

		k.GridImportKWh += s.GridImp[t] * p.DeltaT
		k.GridExportKWh += s.GridExp[t] * p.DeltaT
		k.BattChargeKWh += s.BattCh[t] * p.DeltaT
		k.BattDischargeKWh += s.BattDis[t] * p.DeltaT

		pvForecastSum += p.PVForecast[t]
		pvSetSum += s.PVSet[t]
	}

	for t := 0; t <= p.T; t++ {
		if s.SoC[t] < k.SoCMinReached {
			k.SoCMinReached = s.SoC[t]
		}
		if s.SoC[t] > k.SoCMaxReached {
			k.SoCMaxReached = s.SoC[t]
		}
	}
	k.AvgSoC = stat.Mean(s.SoC, nil)

	k.NetEnergyKWh = k.GridImportKWh - k.GridExportKWh

	denom := pvForecastSum
	if denom < kpiEps {
		denom = kpiEps
	}
	k.SelfConsumptionRate = pvSetSum / denom

	return k
}

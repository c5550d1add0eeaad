package dispatch

import (
	"fmt"
	"strings"
)

const explainEps = 0.01

// Explain implements the §4.4 reason generator: one short string per
// timestep, selected by the first matching rule in rank order. When the
// solution carries active MILP constraints for that step, they are appended
// to the chosen base reason.
func Explain(p DispatchProblem, s Solution) []string {
	medBuy := median(p.TariffBuy)
	medLoad := median(p.Load)

	reasons := make([]string, p.T)
	for t := 0; t < p.T; t++ {
		reasons[t] = appendActive(explainStep(p, s, t, medBuy, medLoad), s, t)
	}
	return reasons
}

func explainStep(p DispatchProblem, s Solution, t int, medBuy, medLoad float64) string {
	switch {
	case s.BattDis[t] > explainEps && p.TariffBuy[t] > 1.2*medBuy:
		return "Discharge battery during peak tariff hours"
	case s.BattDis[t] > explainEps && p.Load[t] > 1.5*medLoad:
		return "Discharge battery to meet demand peak"
	case s.BattDis[t] > explainEps && nearRatioBound(s.GridImp[t], p.Grid.GridImportMaxKW) && s.GridImp[t] >= 0.95*p.Grid.GridImportMaxKW:
		return "Discharge battery due to grid import limit"
	case s.BattCh[t] > explainEps && s.Curtail[t] > explainEps:
		return "Charge battery using curtailed PV"
	case s.BattCh[t] > explainEps && p.TariffBuy[t] < 0.8*medBuy:
		return "Charge battery during low tariff hours"
	case s.BattCh[t] > explainEps && p.PVForecast[t] > p.Load[t]:
		return "Charge battery with excess PV after load met"
	case s.Curtail[t] > explainEps && s.SoC[t] >= p.BESS.SoCMax-0.05:
		return "Curtail PV due to battery at max SOC"
	case s.Curtail[t] > explainEps && s.GridExp[t] >= 0.95*p.Grid.GridExportMaxKW:
		return "Curtail PV due to grid export limit"
	case s.Curtail[t] > explainEps:
		return "Curtail PV for economic optimization"
	case s.SoC[t] <= p.BESS.SoCMin+0.05:
		return "SOC protected at minimum threshold"
	case s.SoC[t] >= p.BESS.SoCMax-0.05:
		return "SOC approaching maximum limit"
	default:
		return "Grid import to meet demand"
	}
}

func appendActive(reason string, s Solution, t int) string {
	if t >= len(s.ActiveConstraints) || len(s.ActiveConstraints[t]) == 0 {
		return reason
	}
	tags := make([]string, len(s.ActiveConstraints[t]))
	for i, tag := range s.ActiveConstraints[t] {
		tags[i] = string(tag)
	}
	return fmt.Sprintf("%s; active: [%s]", reason, strings.Join(tags, ", "))
}

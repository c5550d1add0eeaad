package dispatch

import "math"

const (
	boundRatioTol = 1e-3
	socAbsTol     = 1e-3
)

// detectActiveConstraints returns, for each timestep, the subset of
// {soc_min, soc_max, p_charge_max, p_discharge_max, grid_import_max,
// grid_export_max} whose bound is met within tolerance (§4.2). Tags are
// appended in the fixed order listed in the specification so that results
// are deterministic regardless of map iteration order.
func detectActiveConstraints(p DispatchProblem, s Solution) [][]ConstraintTag {
	out := make([][]ConstraintTag, p.T)
	for t := 0; t < p.T; t++ {
		var tags []ConstraintTag
		if math.Abs(s.SoC[t]-p.BESS.SoCMin) <= socAbsTol {
			tags = append(tags, TagSoCMin)
		}
		if math.Abs(s.SoC[t]-p.BESS.SoCMax) <= socAbsTol {
			tags = append(tags, TagSoCMax)
		}
		if nearRatioBound(s.BattCh[t], p.BESS.PChargeMaxKW) {
			tags = append(tags, TagChargeMax)
		}
		if nearRatioBound(s.BattDis[t], p.BESS.PDischargeMaxKW) {
			tags = append(tags, TagDischargeMax)
		}
		if nearRatioBound(s.GridImp[t], p.Grid.GridImportMaxKW) {
			tags = append(tags, TagGridImportMax)
		}
		if nearRatioBound(s.GridExp[t], p.Grid.GridExportMaxKW) {
			tags = append(tags, TagGridExportMax)
		}
		out[t] = tags
	}
	return out
}

// nearRatioBound reports whether value is within boundRatioTol (relative) of
// limit. A zero limit never counts as active (there is nothing to bind).
func nearRatioBound(value, limit float64) bool {
	if limit <= 0 {
		return false
	}
	return math.Abs(value-limit)/limit <= boundRatioTol
}

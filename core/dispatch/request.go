package dispatch

import "fmt"

// TariffRequest carries the buy/sell price arrays named in the request schema.
type TariffRequest struct {
	Buy  []float64 `json:"buy"`
	Sell []float64 `json:"sell"`
}

// BESSRequest mirrors the optional "bess" request block; unset (nil) fields
// are replaced with the documented defaults during normalization. Fields are
// pointers so an explicit zero (e.g. soc_min: 0) is distinguishable from
// omission, the same way Request.UseMILP is.
type BESSRequest struct {
	CapacityKWh     *float64 `json:"capacity_kwh,omitempty"`
	PChargeMaxKW    *float64 `json:"p_charge_max_kw,omitempty"`
	PDischargeMaxKW *float64 `json:"p_discharge_max_kw,omitempty"`
	SoC0            *float64 `json:"soc0,omitempty"`
	SoCMin          *float64 `json:"soc_min,omitempty"`
	SoCMax          *float64 `json:"soc_max,omitempty"`
	EtaCharge       *float64 `json:"eta_charge,omitempty"`
	EtaDischarge    *float64 `json:"eta_discharge,omitempty"`
}

// LimitsRequest mirrors the optional "limits" request block; unset (nil)
// fields fall back to defaults, and an explicit 0 (e.g. grid_import_max_kw
// and grid_export_max_kw both pinned to 0, §2 boundary scenario) is honored.
type LimitsRequest struct {
	GridImportMaxKW  *float64 `json:"grid_import_max_kw,omitempty"`
	GridExportMaxKW  *float64 `json:"grid_export_max_kw,omitempty"`
	TransformerMaxKW *float64 `json:"transformer_max_kw,omitempty"`
}

// WeightsRequest mirrors the optional "weights" request block.
type WeightsRequest struct {
	Cost      *float64 `json:"cost,omitempty"`
	Curtail   *float64 `json:"curtail,omitempty"`
	Violation *float64 `json:"violation,omitempty"`
}

// Request is the authoritative shape of a solve() call (§6). It only carries
// the fields the core understands and does not reject unknown fields itself;
// the solve and validate commands decode it with encoding/json defaults, which
// ignore them.
type Request struct {
	SiteID            string          `json:"site_id"`
	ResolutionMinutes int             `json:"resolution_minutes"`
	LoadKW            []float64       `json:"load_kw"`
	Tariff            TariffRequest   `json:"tariff"`
	PVForecastKW      []float64       `json:"pv_forecast_kw"` // absent (nil) triggers the forecast collaborator
	BESS              *BESSRequest    `json:"bess,omitempty"`
	Limits            *LimitsRequest  `json:"limits,omitempty"`
	Weights           *WeightsRequest `json:"weights,omitempty"`
	UseMILP           *bool           `json:"use_milp,omitempty"` // nil means default true
	SolverTimeoutMS   int             `json:"solver_timeout_ms,omitempty"` // <= 0 means SolverConfig.DeadlineMS (3000 by default)
}

// ForecastFetcher is the collaborator interface used to retrieve a PV
// forecast when the request omits pv_forecast_kw. It is consumed, not
// implemented, by this package (§6 forecast.fetch_pv).
type ForecastFetcher interface {
	FetchPV(siteID string, t int, resolutionMinutes int) ([]float64, error)
}

// Normalize validates req and builds a DispatchProblem, applying defaults for
// absent optional blocks. It returns the first failing field as an
// InvalidInputError, or wraps forecast-fetch failures as
// ForecastUnavailableError. fetcher may be nil only if req.PVForecastKW is
// already populated.
func Normalize(req Request, fetcher ForecastFetcher) (DispatchProblem, error) {
	if req.ResolutionMinutes <= 0 {
		return DispatchProblem{}, &InvalidInputError{Field: "resolution_minutes", Reason: "must be > 0"}
	}
	t := len(req.LoadKW)
	if t == 0 {
		return DispatchProblem{}, &InvalidInputError{Field: "load_kw", Reason: "must have at least one element"}
	}
	if err := requireNonNegativeLen("load_kw", req.LoadKW, t); err != nil {
		return DispatchProblem{}, err
	}
	if err := requireNonNegativeLen("tariff.buy", req.Tariff.Buy, t); err != nil {
		return DispatchProblem{}, err
	}
	if err := requireNonNegativeLen("tariff.sell", req.Tariff.Sell, t); err != nil {
		return DispatchProblem{}, err
	}

	pv := req.PVForecastKW
	if pv == nil {
		if fetcher == nil {
			return DispatchProblem{}, &ForecastUnavailableError{SiteID: req.SiteID}
		}
		fetched, err := fetcher.FetchPV(req.SiteID, t, req.ResolutionMinutes)
		if err != nil {
			return DispatchProblem{}, &ForecastUnavailableError{SiteID: req.SiteID, Cause: err}
		}
		pv = fetched
	}
	if err := requireNonNegativeLen("pv_forecast_kw", pv, t); err != nil {
		return DispatchProblem{}, err
	}

	bess := DefaultBESSParams()
	if b := req.BESS; b != nil {
		if b.CapacityKWh != nil {
			bess.CapacityKWh = *b.CapacityKWh
		}
		if b.PChargeMaxKW != nil {
			bess.PChargeMaxKW = *b.PChargeMaxKW
		}
		if b.PDischargeMaxKW != nil {
			bess.PDischargeMaxKW = *b.PDischargeMaxKW
		}
		if b.SoC0 != nil {
			bess.SoC0 = *b.SoC0
		}
		if b.SoCMin != nil {
			bess.SoCMin = *b.SoCMin
		}
		if b.SoCMax != nil {
			bess.SoCMax = *b.SoCMax
		}
		if b.EtaCharge != nil {
			bess.EtaCharge = *b.EtaCharge
		}
		if b.EtaDischarge != nil {
			bess.EtaDischarge = *b.EtaDischarge
		}
	}
	if err := validateBESS(bess); err != nil {
		return DispatchProblem{}, err
	}

	limits := DefaultGridLimits()
	if l := req.Limits; l != nil {
		if l.GridImportMaxKW != nil {
			limits.GridImportMaxKW = *l.GridImportMaxKW
		}
		if l.GridExportMaxKW != nil {
			limits.GridExportMaxKW = *l.GridExportMaxKW
		}
		if l.TransformerMaxKW != nil {
			limits.TransformerMaxKW = *l.TransformerMaxKW
		}
	}
	if limits.GridImportMaxKW < 0 || limits.GridExportMaxKW < 0 || limits.TransformerMaxKW < 0 {
		return DispatchProblem{}, &InvalidInputError{Field: "limits", Reason: "must be non-negative"}
	}

	weights := DefaultWeights()
	if w := req.Weights; w != nil {
		if w.Cost != nil {
			weights.Cost = *w.Cost
		}
		if w.Curtail != nil {
			weights.Curtail = *w.Curtail
		}
		if w.Violation != nil {
			weights.Violation = *w.Violation
		}
	}
	if weights.Cost < 0 || weights.Curtail < 0 || weights.Violation < 0 {
		return DispatchProblem{}, &InvalidInputError{Field: "weights", Reason: "must be non-negative"}
	}

	problem := DispatchProblem{
		T:          t,
		DeltaT:     float64(req.ResolutionMinutes) / 60.0,
		PVForecast: pv,
		Load:       req.LoadKW,
		TariffBuy:  req.Tariff.Buy,
		TariffSell: req.Tariff.Sell,
		BESS:       bess,
		Grid:       limits,
		Weights:    weights,
	}

	// Invariant: the trivial all-grid schedule must respect soc_min <= soc0 <= soc_max.
	if bess.SoC0 < bess.SoCMin || bess.SoC0 > bess.SoCMax {
		return DispatchProblem{}, &InvalidInputError{Field: "bess.soc0", Reason: "must lie within [soc_min, soc_max]"}
	}

	return problem, nil
}

func requireNonNegativeLen(field string, vals []float64, t int) error {
	if len(vals) != t {
		return &InvalidInputError{Field: field, Reason: fmt.Sprintf("expected length %d, got %d", t, len(vals))}
	}
	for _, v := range vals {
		if v < 0 {
			return &InvalidInputError{Field: field, Reason: "must be non-negative"}
		}
	}
	return nil
}

func validateBESS(b BESSParams) error {
	if b.CapacityKWh <= 0 {
		return &InvalidInputError{Field: "bess.capacity_kwh", Reason: "must be > 0"}
	}
	if b.PChargeMaxKW < 0 || b.PDischargeMaxKW < 0 {
		return &InvalidInputError{Field: "bess.p_charge_max_kw", Reason: "must be non-negative"}
	}
	if b.SoCMin < 0 || b.SoCMax > 1 || b.SoCMin > b.SoCMax {
		return &InvalidInputError{Field: "bess.soc_min", Reason: "must satisfy 0 <= soc_min <= soc_max <= 1"}
	}
	if b.SoC0 < 0 || b.SoC0 > 1 {
		return &InvalidInputError{Field: "bess.soc0", Reason: "must be within [0,1]"}
	}
	if b.EtaCharge <= 0 || b.EtaCharge > 1 || b.EtaDischarge <= 0 || b.EtaDischarge > 1 {
		return &InvalidInputError{Field: "bess.eta_charge", Reason: "must be within (0,1]"}
	}
	return nil
}

func boolOr(p *bool, def bool) bool {
	if p == nil {
		return def
	}
	return *p
}

func intOr(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

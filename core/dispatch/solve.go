package dispatch

import (
	"context"
	"errors"
	"time"

	"github.com/sitecore/dispatchcore/core/logger"
	"github.com/sitecore/dispatchcore/core/metrics"
	"github.com/sitecore/dispatchcore/internal/eventbus"
)

// Status is the top-level outcome of a solve() call (§6).
type Status string

const (
	StatusOK           Status = "ok"
	StatusFallback     Status = "fallback"
	StatusInvalidInput Status = "invalid_input"
)

// Solver names which backend actually produced the returned schedule.
const (
	SolverNameMILP      = "milp"
	SolverNameFallback  = "fallback_rule"
	SolverNameRuleBased = "rule_based"
)

// ScheduleEntry is one timestep of the result's schedule array.
type ScheduleEntry struct {
	PVSetKW   float64 `json:"pv_set_kw"`
	BattChKW  float64 `json:"batt_ch_kw"`
	BattDisKW float64 `json:"batt_dis_kw"`
	GridImpKW float64 `json:"grid_imp_kw"`
	GridExpKW float64 `json:"grid_exp_kw"`
	CurtailKW float64 `json:"curtail_kw"`
	SoC       float64 `json:"soc"`
	Reason    string  `json:"reason"`
}

// Result is the response shape of solve() (§6).
type Result struct {
	Status         Status          `json:"status"`
	Solver         string          `json:"solver"`
	FallbackUsed   bool            `json:"fallback_used"`
	ObjectiveValue *float64        `json:"objective_value,omitempty"`
	Schedule       []ScheduleEntry `json:"schedule"`
	KPIs           KPIs            `json:"kpis"`
	Error          string          `json:"error,omitempty"`
}

// SolveEvent is published on the event bus after every solve() call,
// regardless of outcome, so observers (metrics, persistence) can react
// without the core depending on them directly.
type SolveEvent struct {
	SiteID       string
	Status       Status
	Solver       string
	FallbackUsed bool
}

// Collaborators bundles the optional, best-effort dependencies a Solve call
// may use: an event bus for SolveEvent notifications, a logger for warnings,
// and a RunStore for §6's persist.write_run/write_schedule/write_kpis. Any
// field may be nil; nil collaborators are silently skipped.
type Collaborators struct {
	Bus     eventbus.EventBus
	Log     logger.Logger
	Store   RunStore
	Metrics metrics.MetricsSink
}

// Solve runs the full §6 solve() pipeline: normalize the request, attempt
// MILP (unless use_milp=false), fall back deterministically on any solver
// failure, then explain and score the result. It never panics and never
// returns a nil Result; invalid input and forecast failures are reported in
// the Result rather than as a Go error, matching the typed-outcome contract
// of §7. The returned error is non-nil only for ForecastUnavailable and
// InvalidInput, so callers that only care about those two cases can check it
// directly instead of inspecting Result.Status. Persistence failures (§7
// PersistenceFailure) are logged and otherwise ignored.
func Solve(ctx context.Context, req Request, fetcher ForecastFetcher, cfg SolverConfig, col Collaborators) (Result, error) {
	start := time.Now()
	problem, err := Normalize(req, fetcher)
	if err != nil {
		res := Result{Status: StatusInvalidInput, Error: err.Error()}
		finish(ctx, col, req.SiteID, res, time.Since(start))
		return res, err
	}
	if req.Weights == nil {
		problem.Weights = cfg.Weights
	}

	useMILP := boolOr(req.UseMILP, true)
	deadlineMS := intOr(req.SolverTimeoutMS, cfg.DeadlineMS)
	solverCfg := cfg
	solverCfg.DeadlineMS = deadlineMS

	if !useMILP {
		fbSol, fbErr := FallbackSolve(problem)
		res := buildResult(problem, fbSol, SolverNameRuleBased, true, nil, "")
		if fbErr != nil {
			res.Error = fbErr.Error()
		}
		finish(ctx, col, req.SiteID, res, time.Since(start))
		return res, nil
	}

	milpSol, milpErr := BranchAndBoundSolve(ctx, problem, solverCfg.toMILPConfig())
	if milpErr == nil {
		res := buildResult(problem, milpSol, SolverNameMILP, false, milpSol.ObjectiveValue, "")
		finish(ctx, col, req.SiteID, res, time.Since(start))
		return res, nil
	}

	var sf *SolverFailure
	if !errors.As(milpErr, &sf) {
		sf = &SolverFailure{Kind: FailureSolverError, Err: milpErr}
	}
	if col.Log != nil {
		col.Log.Warnf("milp solve failed, falling back: %v", sf)
	}
	if rec, ok := col.Metrics.(metrics.SolverFailureRecorder); ok {
		_ = rec.RecordSolverFailure(metrics.SolverFailureEvent{
			SiteID: req.SiteID,
			Kind:   string(sf.Kind),
			Time:   time.Now(),
		})
	}

	fbSol, fbErr := FallbackSolve(problem)
	res := buildResult(problem, fbSol, SolverNameFallback, true, nil, sf.Error())
	if fbErr != nil {
		res.Error = fbErr.Error()
	}
	finish(ctx, col, req.SiteID, res, time.Since(start))
	return res, nil
}

func buildResult(p DispatchProblem, s Solution, solverName string, fallback bool, objective *float64, errMsg string) Result {
	reasons := Explain(p, s)
	kpis := ComputeKPIs(p, s)

	schedule := make([]ScheduleEntry, p.T)
	for t := 0; t < p.T; t++ {
		schedule[t] = ScheduleEntry{
			PVSetKW:   s.PVSet[t],
			BattChKW:  s.BattCh[t],
			BattDisKW: s.BattDis[t],
			GridImpKW: s.GridImp[t],
			GridExpKW: s.GridExp[t],
			CurtailKW: s.Curtail[t],
			SoC:       s.SoC[t],
			Reason:    reasons[t],
		}
	}

	status := StatusOK
	if fallback {
		status = StatusFallback
	}

	return Result{
		Status:         status,
		Solver:         solverName,
		FallbackUsed:   fallback,
		ObjectiveValue: objective,
		Schedule:       schedule,
		KPIs:           kpis,
		Error:          errMsg,
	}
}

// finish publishes a SolveEvent, records metrics and persists the run, all
// best-effort.
func finish(ctx context.Context, col Collaborators, siteID string, res Result, dur time.Duration) {
	if col.Bus != nil {
		col.Bus.Publish(SolveEvent{
			SiteID:       siteID,
			Status:       res.Status,
			Solver:       res.Solver,
			FallbackUsed: res.FallbackUsed,
		})
	}
	if col.Metrics != nil {
		_ = col.Metrics.RecordSolve(metrics.SolveEvent{
			SiteID:         siteID,
			Status:         string(res.Status),
			Solver:         res.Solver,
			FallbackUsed:   res.FallbackUsed,
			Duration:       dur,
			ObjectiveValue: res.ObjectiveValue,
			TotalCost:      res.KPIs.TotalCost,
			CurtailKWh:     res.KPIs.TotalCurtailKWh,
			PeakImportKW:   res.KPIs.PeakGridImportKW,
			AvgSoC:         res.KPIs.AvgSoC,
			Time:           time.Now(),
		})
	}
	if col.Store == nil || res.Status == StatusInvalidInput {
		return
	}
	runID, err := col.Store.WriteRun(ctx, RunMetadata{SiteID: siteID, Status: res.Status, Solver: res.Solver})
	if err != nil {
		logPersistFailure(col, "", "write_run", err)
		return
	}
	if err := col.Store.WriteSchedule(ctx, runID, res.Schedule); err != nil {
		logPersistFailure(col, runID, "write_schedule", err)
	}
	if err := col.Store.WriteKPIs(ctx, runID, res.KPIs); err != nil {
		logPersistFailure(col, runID, "write_kpis", err)
	}
}

func logPersistFailure(col Collaborators, runID, op string, err error) {
	if col.Log != nil {
		col.Log.Warnf("persistence failure (%s): %v", op, err)
	}
	if rec, ok := col.Metrics.(metrics.PersistenceFailureRecorder); ok {
		_ = rec.RecordPersistenceFailure(metrics.PersistenceFailureEvent{
			RunID: runID,
			Op:    op,
			Time:  time.Now(),
		})
	}
}

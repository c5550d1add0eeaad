package metrics

import "time"

// SolveEvent captures the outcome of one solve() call (§6) for observability
// sinks. It mirrors the fields of dispatch.Result that are cheap to record
// on every call.
type SolveEvent struct {
	SiteID         string
	Status         string // "ok", "fallback", "invalid_input"
	Solver         string // "milp", "fallback_rule", "rule_based", ""
	FallbackUsed   bool
	Duration       time.Duration
	ObjectiveValue *float64
	TotalCost      float64
	CurtailKWh     float64
	PeakImportKW   float64
	AvgSoC         float64
	Time           time.Time
}

// MetricsSink records solve events for observability purposes.
type MetricsSink interface {
	RecordSolve(ev SolveEvent) error
}

// SolverFailureEvent captures a MILP solver failure that triggered a fallback.
type SolverFailureEvent struct {
	SiteID string
	Kind   string
	Time   time.Time
}

// SolverFailureRecorder is implemented by sinks that break down fallback
// causes (timeout vs infeasible vs solver error) rather than only counting
// fallback_used.
type SolverFailureRecorder interface {
	RecordSolverFailure(ev SolverFailureEvent) error
}

// PersistenceFailureEvent captures a best-effort persistence write that
// failed (§7 PersistenceFailure); it is logged, never surfaced in a Result.
type PersistenceFailureEvent struct {
	RunID string
	Op    string // "write_run", "write_schedule", "write_kpis"
	Time  time.Time
}

// PersistenceFailureRecorder is implemented by sinks that track persistence
// reliability separately from solve outcomes.
type PersistenceFailureRecorder interface {
	RecordPersistenceFailure(ev PersistenceFailureEvent) error
}

// NopSink implements MetricsSink with no-op methods. It is the default when
// no sink is configured.
type NopSink struct{}

func (NopSink) RecordSolve(SolveEvent) error                          { return nil }
func (NopSink) RecordSolverFailure(SolverFailureEvent) error          { return nil }
func (NopSink) RecordPersistenceFailure(PersistenceFailureEvent) error { return nil }

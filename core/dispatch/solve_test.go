package dispatch

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/sitecore/dispatchcore/core/metrics"
)

type fakeRunStore struct {
	runs      []RunMetadata
	schedules map[string][]ScheduleEntry
	kpis      map[string]KPIs
}

func newFakeRunStore() *fakeRunStore {
	return &fakeRunStore{schedules: map[string][]ScheduleEntry{}, kpis: map[string]KPIs{}}
}

func (f *fakeRunStore) WriteRun(ctx context.Context, meta RunMetadata) (string, error) {
	meta.RunID = fmt.Sprintf("run-%d", len(f.runs))
	f.runs = append(f.runs, meta)
	return meta.RunID, nil
}

func (f *fakeRunStore) WriteSchedule(ctx context.Context, runID string, schedule []ScheduleEntry) error {
	f.schedules[runID] = schedule
	return nil
}

func (f *fakeRunStore) WriteKPIs(ctx context.Context, runID string, kpis KPIs) error {
	f.kpis[runID] = kpis
	return nil
}

type failingRunStore struct {
	failOp string // "write_schedule" or "write_kpis"
}

func (f *failingRunStore) WriteRun(ctx context.Context, meta RunMetadata) (string, error) {
	return "run-fail", nil
}

func (f *failingRunStore) WriteSchedule(ctx context.Context, runID string, schedule []ScheduleEntry) error {
	if f.failOp == "write_schedule" {
		return fmt.Errorf("disk full")
	}
	return nil
}

func (f *failingRunStore) WriteKPIs(ctx context.Context, runID string, kpis KPIs) error {
	if f.failOp == "write_kpis" {
		return fmt.Errorf("disk full")
	}
	return nil
}

type spyMetricsSink struct {
	metrics.NopSink
	persistFailures []metrics.PersistenceFailureEvent
}

func (s *spyMetricsSink) RecordPersistenceFailure(ev metrics.PersistenceFailureEvent) error {
	s.persistFailures = append(s.persistFailures, ev)
	return nil
}

func s4Problem() Request {
	load := make([]float64, 20)
	pv := make([]float64, 20)
	buy := make([]float64, 20)
	sell := make([]float64, 20)
	for i := range load {
		load[i], pv[i], buy[i], sell[i] = 15, 10, 0.3, 0.1
	}
	return Request{
		SiteID:            "s4",
		ResolutionMinutes: 15,
		LoadKW:            load,
		PVForecastKW:      pv,
		Tariff:            TariffRequest{Buy: buy, Sell: sell},
	}
}

func TestSolveS4TimeoutFallsBackToFallbackRule(t *testing.T) {
	req := s4Problem()
	cfg := DefaultSolverConfig()
	// An already-cancelled context deterministically triggers the milp
	// solver's time-limit failure path, regardless of wall-clock timing.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res, err := Solve(ctx, req, nil, cfg, Collaborators{Metrics: metrics.NopSink{}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Status != StatusFallback {
		t.Errorf("status = %v, want fallback", res.Status)
	}
	if !res.FallbackUsed {
		t.Error("expected fallback_used = true")
	}
	if res.Solver != SolverNameFallback {
		t.Errorf("solver = %q, want %q", res.Solver, SolverNameFallback)
	}
	if res.Error == "" {
		t.Error("expected a non-empty error describing the milp failure")
	}
}

func TestSolveS5InvalidInput(t *testing.T) {
	req := Request{SiteID: "s5", ResolutionMinutes: 0, LoadKW: []float64{10}}
	res, err := Solve(context.Background(), req, nil, DefaultSolverConfig(), Collaborators{})
	if err == nil {
		t.Fatal("expected an error for invalid input")
	}
	if res.Status != StatusInvalidInput {
		t.Errorf("status = %v, want invalid_input", res.Status)
	}
	if res.Error == "" {
		t.Error("expected Result.Error to be populated")
	}
}

func TestSolveS6Determinism(t *testing.T) {
	req := Request{
		SiteID:            "s6",
		ResolutionMinutes: 15,
		LoadKW:            []float64{10, 10, 10, 10},
		PVForecastKW:      []float64{0, 0, 0, 0},
		Tariff:            TariffRequest{Buy: []float64{0.3, 0.3, 0.3, 0.3}, Sell: []float64{0.1, 0.1, 0.1, 0.1}},
		UseMILP:           boolPtr(false),
	}
	res1, err1 := Solve(context.Background(), req, nil, DefaultSolverConfig(), Collaborators{})
	res2, err2 := Solve(context.Background(), req, nil, DefaultSolverConfig(), Collaborators{})
	if err1 != nil || err2 != nil {
		t.Fatalf("unexpected errors: %v, %v", err1, err2)
	}
	if len(res1.Schedule) != len(res2.Schedule) {
		t.Fatalf("schedule length mismatch")
	}
	for i := range res1.Schedule {
		if res1.Schedule[i] != res2.Schedule[i] {
			t.Errorf("schedule[%d] differs between identical runs: %+v vs %+v", i, res1.Schedule[i], res2.Schedule[i])
		}
	}
	if res1.KPIs != res2.KPIs {
		t.Error("kpis differ between identical runs")
	}
}

func TestSolvePersistsRun(t *testing.T) {
	store := newFakeRunStore()
	req := Request{
		SiteID:            "persist-1",
		ResolutionMinutes: 15,
		LoadKW:            []float64{10, 10},
		PVForecastKW:      []float64{0, 0},
		Tariff:            TariffRequest{Buy: []float64{0.3, 0.3}, Sell: []float64{0.1, 0.1}},
		UseMILP:           boolPtr(false),
	}
	_, err := Solve(context.Background(), req, nil, DefaultSolverConfig(), Collaborators{Store: store, Metrics: metrics.NopSink{}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(store.runs) != 1 {
		t.Fatalf("expected exactly one persisted run, got %d", len(store.runs))
	}
	if store.runs[0].SiteID != "persist-1" {
		t.Errorf("persisted run site_id = %q, want persist-1", store.runs[0].SiteID)
	}
}

func TestSolveSkipsPersistenceOnInvalidInput(t *testing.T) {
	store := newFakeRunStore()
	req := Request{SiteID: "bad", ResolutionMinutes: 0}
	_, _ = Solve(context.Background(), req, nil, DefaultSolverConfig(), Collaborators{Store: store})
	if len(store.runs) != 0 {
		t.Errorf("invalid_input runs must not be persisted, got %d", len(store.runs))
	}
}

func TestSolveUsesFetcherWhenForecastAbsent(t *testing.T) {
	req := Request{
		SiteID:            "fetch-1",
		ResolutionMinutes: 15,
		LoadKW:            []float64{10, 10},
		Tariff:            TariffRequest{Buy: []float64{0.3, 0.3}, Sell: []float64{0.1, 0.1}},
		UseMILP:           boolPtr(false),
	}
	res, err := Solve(context.Background(), req, stubFetcher{pv: []float64{5, 5}}, DefaultSolverConfig(), Collaborators{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Status != StatusFallback {
		t.Errorf("status = %v, want fallback", res.Status)
	}
}

func TestSolveTimeoutOverrideFromRequest(t *testing.T) {
	cfg := DefaultSolverConfig()
	cfg.DeadlineMS = 3000
	req := s4Problem()
	req.SolverTimeoutMS = 1

	start := time.Now()
	_, err := Solve(context.Background(), req, nil, cfg, Collaborators{})
	elapsed := time.Since(start)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if elapsed > 2*time.Second {
		t.Errorf("request-level solver_timeout_ms override was not honored, took %v", elapsed)
	}
}

func TestSolveRecordsPersistenceFailureMetric(t *testing.T) {
	store := &failingRunStore{failOp: "write_schedule"}
	sink := &spyMetricsSink{}
	req := Request{
		SiteID:            "persist-fail",
		ResolutionMinutes: 15,
		LoadKW:            []float64{10, 10},
		PVForecastKW:      []float64{0, 0},
		Tariff:            TariffRequest{Buy: []float64{0.3, 0.3}, Sell: []float64{0.1, 0.1}},
		UseMILP:           boolPtr(false),
	}
	_, err := Solve(context.Background(), req, nil, DefaultSolverConfig(), Collaborators{Store: store, Metrics: sink})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(sink.persistFailures) != 1 {
		t.Fatalf("expected exactly one recorded persistence failure, got %d", len(sink.persistFailures))
	}
	if sink.persistFailures[0].Op != "write_schedule" {
		t.Errorf("Op = %q, want write_schedule", sink.persistFailures[0].Op)
	}
	if sink.persistFailures[0].RunID != "run-fail" {
		t.Errorf("RunID = %q, want run-fail", sink.persistFailures[0].RunID)
	}
}

func boolPtr(b bool) *bool { return &b }

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	coremetrics "github.com/sitecore/dispatchcore/core/metrics"
)

// PromSink records solve outcomes as Prometheus metrics.
type PromSink struct {
	solves       *prometheus.CounterVec
	duration     *prometheus.HistogramVec
	failures     *prometheus.CounterVec
	objective    prometheus.Gauge
	peakImport   prometheus.Gauge
	avgSoC       prometheus.Gauge
	curtailTotal prometheus.Counter
}

// NewPromSink registers dispatch metrics on the default Prometheus registerer.
func NewPromSink(cfg coremetrics.Config) (coremetrics.MetricsSink, error) {
	return NewPromSinkWithRegistry(cfg, prometheus.DefaultRegisterer)
}

// NewPromSinkWithRegistry registers metrics on the provided registerer.
// A nil registerer defaults to the global Prometheus registerer.
func NewPromSinkWithRegistry(cfg coremetrics.Config, reg prometheus.Registerer) (coremetrics.MetricsSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	solves := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "dispatch_solves_total",
		Help: "Total number of solve() calls by status and solver",
	}, []string{"status", "solver"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "dispatch_solve_duration_seconds",
		Help:    "Wall-clock time spent inside solve()",
		Buckets: prometheus.DefBuckets,
	}, []string{"solver"})
	failures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "dispatch_solver_failures_total",
		Help: "Total number of MILP solver failures by kind",
	}, []string{"kind"})
	objective := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "dispatch_last_objective_value",
		Help: "Objective value of the most recent MILP solution",
	})
	peakImport := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "dispatch_last_peak_grid_import_kw",
		Help: "peak_grid_import_kw KPI of the most recent solve",
	})
	avgSoC := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "dispatch_last_avg_soc",
		Help: "avg_soc KPI of the most recent solve",
	})
	curtailTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "dispatch_curtail_kwh_total",
		Help: "Cumulative curtailed energy across all solves",
	})

	collectors := []prometheus.Collector{solves, duration, failures, objective, peakImport, avgSoC, curtailTotal}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
				return nil, err
			}
		}
	}

	return &PromSink{
		solves:       solves,
		duration:     duration,
		failures:     failures,
		objective:    objective,
		peakImport:   peakImport,
		avgSoC:       avgSoC,
		curtailTotal: curtailTotal,
	}, nil
}

// RecordSolve updates the solve counters, duration histogram and last-KPI gauges.
func (s *PromSink) RecordSolve(ev coremetrics.SolveEvent) error {
	s.solves.WithLabelValues(ev.Status, ev.Solver).Inc()
	s.duration.WithLabelValues(ev.Solver).Observe(ev.Duration.Seconds())
	s.peakImport.Set(ev.PeakImportKW)
	s.avgSoC.Set(ev.AvgSoC)
	s.curtailTotal.Add(ev.CurtailKWh)
	if ev.ObjectiveValue != nil {
		s.objective.Set(*ev.ObjectiveValue)
	}
	return nil
}

// RecordSolverFailure increments the failure counter for the given kind.
func (s *PromSink) RecordSolverFailure(ev coremetrics.SolverFailureEvent) error {
	s.failures.WithLabelValues(ev.Kind).Inc()
	return nil
}

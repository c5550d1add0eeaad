package app

import (
	"context"
	"fmt"

	"github.com/sitecore/dispatchcore/config"
	"github.com/sitecore/dispatchcore/core/dispatch"
	coremetrics "github.com/sitecore/dispatchcore/core/metrics"
	coremon "github.com/sitecore/dispatchcore/core/monitoring"
	"github.com/sitecore/dispatchcore/infra/logger"
	inframetrics "github.com/sitecore/dispatchcore/infra/metrics"
	"github.com/sitecore/dispatchcore/infra/monitoring"
	"github.com/sitecore/dispatchcore/infra/persist"
	"github.com/sitecore/dispatchcore/internal/eventbus"
)

// Service wires solver configuration, metrics sinks, persistence and
// monitoring into the collaborators consumed by dispatch.Solve.
type Service struct {
	cfg     dispatch.SolverConfig
	col     dispatch.Collaborators
	store   *persist.SQLiteStore
	monitor coremon.Monitor
	log     logger.Logger
}

// New creates a Service from the configuration. The returned Service owns
// its persistence store and must be Closed by the caller.
func New(cfg *config.Config) (*Service, error) {
	logg := logger.New("service")

	sink, err := coremetrics.NewMetricsSink(cfg.Metrics.Sinks)
	if err != nil {
		return nil, fmt.Errorf("metrics sink: %w", err)
	}

	var store *persist.SQLiteStore
	var runStore dispatch.RunStore
	if cfg.Persistence.Backend == "sqlite" {
		s, err := persist.NewSQLiteStore(cfg.Persistence.Path)
		if err != nil {
			return nil, fmt.Errorf("persistence store: %w", err)
		}
		store = s
		runStore = s
	}

	mon, err := monitoring.NewSentryMonitor(cfg.Sentry)
	if err != nil {
		return nil, fmt.Errorf("monitor: %w", err)
	}
	coremon.Init(mon)

	svc := &Service{
		cfg: cfg.Solver,
		col: dispatch.Collaborators{
			Bus:     eventbus.New(),
			Log:     logg,
			Store:   runStore,
			Metrics: sink,
		},
		store:   store,
		monitor: mon,
		log:     logg,
	}
	return svc, nil
}

// Solve runs the dispatch optimization pipeline for a single request,
// recovering any panic into a reported error instead of crashing the caller.
func (s *Service) Solve(ctx context.Context, req dispatch.Request, fetcher dispatch.ForecastFetcher) (res dispatch.Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			s.monitor.CaptureException(fmt.Errorf("panic in solve: %v", r), map[string]string{"site_id": req.SiteID})
			err = fmt.Errorf("internal error during solve")
		}
	}()
	res, err = dispatch.Solve(ctx, req, fetcher, s.cfg, s.col)
	if err != nil {
		s.monitor.CaptureException(err, map[string]string{"site_id": req.SiteID})
	}
	return res, err
}

// StartMetricsServer starts the Prometheus HTTP endpoint if addr is
// non-empty. It blocks until ctx is canceled.
func (s *Service) StartMetricsServer(ctx context.Context, addr string) error {
	if addr == "" {
		return nil
	}
	return inframetrics.StartPromServer(ctx, addr)
}

// Close releases resources held by the service.
func (s *Service) Close() error {
	s.monitor.Flush(0)
	if s.store == nil {
		return nil
	}
	return s.store.Close()
}

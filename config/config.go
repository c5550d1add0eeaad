package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/sitecore/dispatchcore/core/dispatch"
	"github.com/sitecore/dispatchcore/core/metrics"
)

// Config is the top-level configuration for the dispatch service.
type Config struct {
	Solver      dispatch.SolverConfig `json:"solver"`
	Metrics     metrics.Config        `json:"metrics"`
	MetricsAddr string                `json:"metrics_addr"` // Prometheus /metrics listen address; empty disables it
	Persistence PersistenceConfig     `json:"persistence"`
	Sentry      SentryConfig          `json:"sentry"`
}

func Load(path string) (*Config, error) {
	k := koanf.New(".")
	ext := strings.ToLower(filepath.Ext(path))
	var parser koanf.Parser
	switch ext {
	case ".yaml", ".yml":
		parser = yaml.Parser()
	case ".json":
		parser = json.Parser()
	default:
		return nil, fmt.Errorf("unsupported config format: %s", ext)
	}
	if err := k.Load(file.Provider(path), parser); err != nil {
		return nil, err
	}
	// Optional environment overrides
	if err := k.Load(env.Provider("K_", "__", func(s string) string {
		s = strings.TrimPrefix(strings.ToLower(s), "k_")
		return strings.ReplaceAll(s, "__", ".")
	}), nil); err != nil {
		return nil, err
	}
	cfg := Config{Solver: dispatch.DefaultSolverConfig()}
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "json"}); err != nil {
		return nil, err
	}
	cfg.Persistence.SetDefaults()
	if err := cfg.Persistence.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

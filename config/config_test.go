package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	data := `solver:
  deadline_ms: 5000
  gap_target: 0.02
  big_m: 100000
  weights:
    cost: 1.0
    curtail: 0.5
    violation: 500
metrics:
  sinks:
    - type: "nop"
persistence:
  backend: "sqlite"
  path: "runs.db"
sentry:
  dsn: ""
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load error: %v", err)
	}
	checks := []struct {
		name string
		got  any
		want any
	}{
		{"deadline_ms", cfg.Solver.DeadlineMS, 5000},
		{"gap_target", cfg.Solver.GapTarget, 0.02},
		{"big_m", cfg.Solver.BigM, 100000.0},
		{"weights.curtail", cfg.Solver.Weights.Curtail, 0.5},
		{"metrics_sink", len(cfg.Metrics.Sinks) == 1 && cfg.Metrics.Sinks[0].Type == "nop", true},
		{"persistence.backend", cfg.Persistence.Backend, "sqlite"},
		{"persistence.path", cfg.Persistence.Path, "runs.db"},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("%s mismatch: %v", c.name, c.got)
		}
	}
}

func TestLoadUnsupportedFormat(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.txt")
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for unsupported format")
	}
}

func TestPersistenceDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	if err := os.WriteFile(path, []byte(`{"metrics":{"sinks":[]}}`), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load error: %v", err)
	}
	if cfg.Persistence.Backend != "sqlite" {
		t.Errorf("expected default backend sqlite, got %s", cfg.Persistence.Backend)
	}
	if cfg.Persistence.Path != "dispatchcore.db" {
		t.Errorf("expected default path dispatchcore.db, got %s", cfg.Persistence.Path)
	}
}

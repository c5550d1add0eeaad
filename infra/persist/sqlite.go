// Package persist implements dispatch.RunStore against a local SQLite
// database: one row per run, one row per schedule timestep, one row per KPI
// snapshot.
package persist

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/sitecore/dispatchcore/core/dispatch"
)

// SQLiteStore persists run metadata, schedules and KPIs in a SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens or creates the database and ensures schema.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	schema := `
CREATE TABLE IF NOT EXISTS runs (
	run_id TEXT PRIMARY KEY,
	site_id TEXT,
	status TEXT,
	solver TEXT,
	created_at INTEGER
);
CREATE TABLE IF NOT EXISTS schedules (
	run_id TEXT,
	t INTEGER,
	entry TEXT,
	PRIMARY KEY(run_id, t)
);
CREATE TABLE IF NOT EXISTS kpis (
	run_id TEXT PRIMARY KEY,
	payload TEXT
);
`
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &SQLiteStore{db: db}, nil
}

// WriteRun inserts a run record and returns its generated run_id.
func (s *SQLiteStore) WriteRun(ctx context.Context, meta dispatch.RunMetadata) (string, error) {
	runID := meta.RunID
	if runID == "" {
		runID = uuid.NewString()
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO runs (run_id, site_id, status, solver, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		runID, meta.SiteID, string(meta.Status), meta.Solver, time.Now().Unix())
	if err != nil {
		return "", err
	}
	return runID, nil
}

// WriteSchedule inserts one row per schedule timestep, encoded as JSON.
func (s *SQLiteStore) WriteSchedule(ctx context.Context, runID string, schedule []dispatch.ScheduleEntry) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	for t, entry := range schedule {
		payload, err := json.Marshal(entry)
		if err != nil {
			_ = tx.Rollback()
			return err
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO schedules (run_id, t, entry) VALUES (?, ?, ?)`,
			runID, t, string(payload)); err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

// WriteKPIs stores the KPI snapshot for a run, encoded as JSON.
func (s *SQLiteStore) WriteKPIs(ctx context.Context, runID string, kpis dispatch.KPIs) error {
	payload, err := json.Marshal(kpis)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO kpis (run_id, payload) VALUES (?, ?)
		ON CONFLICT(run_id) DO UPDATE SET payload = excluded.payload`,
		runID, string(payload))
	return err
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error { return s.db.Close() }

package run

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// Tracker records run history in a SQLite database at the base output
// directory, one row per run. It is an index over run directories, not a
// source of truth; losing it costs nothing but `history` convenience.
type Tracker struct {
	db *sql.DB
}

// TrackedRun is one row of run history.
type TrackedRun struct {
	RunID      string `json:"run_id"`
	Status     string `json:"status"`
	Resumed    bool   `json:"resumed"`
	StartedAt  string `json:"started_at"`
	FinishedAt string `json:"finished_at,omitempty"`
}

// OpenTracker opens (or creates) runs.db under baseDir.
func OpenTracker(baseDir string) (*Tracker, error) {
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("tracker: mkdir %s: %w", baseDir, err)
	}
	db, err := sql.Open("sqlite", filepath.Join(baseDir, "runs.db"))
	if err != nil {
		return nil, fmt.Errorf("tracker: open db: %w", err)
	}
	db.SetMaxOpenConns(1) // SQLite: single writer

	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS runs (
		run_id      TEXT PRIMARY KEY,
		status      TEXT NOT NULL,
		resumed     INTEGER NOT NULL DEFAULT 0,
		started_at  TEXT NOT NULL,
		finished_at TEXT
	)`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("tracker: init schema: %w", err)
	}
	return &Tracker{db: db}, nil
}

func (t *Tracker) Close() error { return t.db.Close() }

// Begin inserts the run row, or flags an existing one as resumed.
func (t *Tracker) Begin(runID string, resumed bool) error {
	now := time.Now().UTC().Format(time.RFC3339)
	_, err := t.db.Exec(`INSERT INTO runs (run_id, status, resumed, started_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(run_id) DO UPDATE SET status = excluded.status, resumed = 1`,
		runID, StatusNew, boolInt(resumed), now)
	return err
}

// SetStatus updates the run's status; terminal statuses also stamp
// finished_at.
func (t *Tracker) SetStatus(runID, status string) error {
	if status == StatusComplete || status == StatusFailed {
		now := time.Now().UTC().Format(time.RFC3339)
		_, err := t.db.Exec(`UPDATE runs SET status = ?, finished_at = ? WHERE run_id = ?`,
			status, now, runID)
		return err
	}
	_, err := t.db.Exec(`UPDATE runs SET status = ? WHERE run_id = ?`, status, runID)
	return err
}

// History returns the most recent runs, newest first.
func (t *Tracker) History(limit int) ([]TrackedRun, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := t.db.Query(`SELECT run_id, status, resumed, started_at, COALESCE(finished_at, '')
		FROM runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []TrackedRun
	for rows.Next() {
		var r TrackedRun
		var resumed int
		if err := rows.Scan(&r.RunID, &r.Status, &resumed, &r.StartedAt, &r.FinishedAt); err != nil {
			return nil, err
		}
		r.Resumed = resumed != 0
		out = append(out, r)
	}
	return out, rows.Err()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

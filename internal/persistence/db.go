// Package persistence provides SQLite storage for finished batch results.
// Simulation state is never persisted mid-run; only completed runs are written.
package persistence

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/talgya/vou/internal/batch"
	"github.com/talgya/vou/internal/engine"
)

// DB wraps a SQLite connection for batch results.
type DB struct {
	conn *sqlx.DB
}

// BatchInfo describes a batch being saved.
type BatchInfo struct {
	Seed               int64
	Iterations         int
	Days               int
	CalibrationVersion string
	Config             string // the effective configuration, as YAML
}

// BatchRow is a saved batch.
type BatchRow struct {
	ID                 string `db:"id"`
	CreatedAt          string `db:"created_at"`
	Seed               int64  `db:"seed"`
	Iterations         int    `db:"iterations"`
	Days               int    `db:"days"`
	CalibrationVersion string `db:"calibration_version"`
	Config             string `db:"config"`
}

// RunRow is one person's saved result.
type RunRow struct {
	BatchID      string  `db:"batch_id"`
	RunIndex     int     `db:"run_index"`
	Seed         int64   `db:"seed"`
	Status       string  `db:"status"`
	Ticks        int     `db:"ticks"`
	DoseIncrease float64 `db:"dose_increase"`
	FinalDose    float64 `db:"final_dose"`
	Overdoses    int     `db:"overdoses"`
	AnyOverdose  bool    `db:"any_overdose"`
	Fatal        bool    `db:"fatal"`
	DosesTaken   int     `db:"doses_taken"`
	DealerDoses  int     `db:"dealer_doses"`
	FinalSource  string  `db:"final_source"`
	Error        string  `db:"error"`
}

// DoseIncreaseRow is one saved escalation evaluation.
type DoseIncreaseRow struct {
	Tick      int    `db:"tick"`
	Source    string `db:"source"`
	Attempted bool   `db:"attempted"`
	Success   bool   `db:"success"`
	DoseType  string `db:"dose_type"`
}

// Open opens or creates a SQLite database at the given path.
func Open(path string) (*DB, error) {
	conn, err := sqlx.Open("sqlite", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return db, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS batches (
		id TEXT PRIMARY KEY,
		created_at TEXT NOT NULL,
		seed INTEGER NOT NULL,
		iterations INTEGER NOT NULL,
		days INTEGER NOT NULL,
		calibration_version TEXT NOT NULL,
		config TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS runs (
		batch_id TEXT NOT NULL REFERENCES batches(id),
		run_index INTEGER NOT NULL,
		seed INTEGER NOT NULL,
		status TEXT NOT NULL,
		ticks INTEGER NOT NULL,
		dose_increase REAL NOT NULL,
		final_dose REAL NOT NULL,
		overdoses INTEGER NOT NULL,
		any_overdose INTEGER NOT NULL,
		fatal INTEGER NOT NULL,
		doses_taken INTEGER NOT NULL,
		dealer_doses INTEGER NOT NULL,
		final_source TEXT NOT NULL,
		error TEXT NOT NULL DEFAULT '',
		PRIMARY KEY (batch_id, run_index)
	);

	CREATE TABLE IF NOT EXISTS overdoses (
		batch_id TEXT NOT NULL,
		run_index INTEGER NOT NULL,
		tick INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS dose_increases (
		batch_id TEXT NOT NULL,
		run_index INTEGER NOT NULL,
		tick INTEGER NOT NULL,
		source TEXT NOT NULL,
		attempted INTEGER NOT NULL,
		success INTEGER NOT NULL,
		dose_type TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		batch_id TEXT NOT NULL,
		run_index INTEGER NOT NULL,
		tick INTEGER NOT NULL,
		description TEXT NOT NULL,
		category TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS batch_meta (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_overdoses_run ON overdoses(batch_id, run_index);
	CREATE INDEX IF NOT EXISTS idx_dose_increases_run ON dose_increases(batch_id, run_index);
	CREATE INDEX IF NOT EXISTS idx_events_run ON events(batch_id, run_index);
	`
	_, err := db.conn.Exec(schema)
	return err
}

// SaveBatch writes a batch and all of its runs in one transaction and returns
// the new batch ID.
func (db *DB) SaveBatch(info BatchInfo, results []batch.RunResult) (string, error) {
	id := uuid.NewString()
	slog.Info("saving batch", "id", id, "runs", len(results))

	tx, err := db.conn.Beginx()
	if err != nil {
		return "", err
	}
	defer tx.Rollback()

	_, err = tx.Exec(`INSERT INTO batches
		(id, created_at, seed, iterations, days, calibration_version, config)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		id, time.Now().UTC().Format(time.RFC3339), info.Seed, info.Iterations,
		info.Days, info.CalibrationVersion, info.Config,
	)
	if err != nil {
		return "", fmt.Errorf("insert batch: %w", err)
	}

	runStmt, err := tx.Preparex(`INSERT INTO runs
		(batch_id, run_index, seed, status, ticks, dose_increase, final_dose,
		 overdoses, any_overdose, fatal, doses_taken, dealer_doses, final_source, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return "", err
	}
	defer runStmt.Close()

	odStmt, err := tx.Preparex("INSERT INTO overdoses (batch_id, run_index, tick) VALUES (?, ?, ?)")
	if err != nil {
		return "", err
	}
	defer odStmt.Close()

	incStmt, err := tx.Preparex(`INSERT INTO dose_increases
		(batch_id, run_index, tick, source, attempted, success, dose_type)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return "", err
	}
	defer incStmt.Close()

	evStmt, err := tx.Preparex(`INSERT INTO events
		(batch_id, run_index, tick, description, category) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return "", err
	}
	defer evStmt.Close()

	for _, r := range results {
		s := r.Summary
		status, errText := r.Outcome.Status.String(), ""
		if r.Err != nil {
			status, errText = "failed", r.Err.Error()
		}
		_, err := runStmt.Exec(
			id, r.Index, r.Seed, status, r.Outcome.TicksExecuted,
			s.DoseIncrease, s.FinalDose, s.Overdoses, s.AnyOverdose, s.Fatal,
			s.DosesTaken, s.DealerDoses, s.FinalSource.String(), errText,
		)
		if err != nil {
			return "", fmt.Errorf("insert run %d: %w", r.Index, err)
		}
		for _, e := range r.Events {
			if _, err := evStmt.Exec(id, r.Index, e.Tick, e.Description, e.Category); err != nil {
				return "", fmt.Errorf("insert event for run %d: %w", r.Index, err)
			}
		}
		if r.Person == nil {
			continue
		}

		for _, tick := range r.Person.Overdoses {
			if _, err := odStmt.Exec(id, r.Index, tick); err != nil {
				return "", fmt.Errorf("insert overdose for run %d: %w", r.Index, err)
			}
		}
		for _, a := range r.Person.DoseIncreaseRecord {
			if _, err := incStmt.Exec(id, r.Index, a.Tick, a.Source.String(), a.Attempted, a.Success, a.DoseType); err != nil {
				return "", fmt.Errorf("insert dose increase for run %d: %w", r.Index, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return "", err
	}
	slog.Info("batch saved", "id", id)
	return id, nil
}

// Batches returns every saved batch, newest first.
func (db *DB) Batches() ([]BatchRow, error) {
	var rows []BatchRow
	err := db.conn.Select(&rows,
		"SELECT id, created_at, seed, iterations, days, calibration_version, config FROM batches ORDER BY created_at DESC, rowid DESC")
	return rows, err
}

// RunSummaries returns the runs of a batch ordered by index.
func (db *DB) RunSummaries(batchID string) ([]RunRow, error) {
	var rows []RunRow
	err := db.conn.Select(&rows, `SELECT batch_id, run_index, seed, status, ticks, dose_increase,
		final_dose, overdoses, any_overdose, fatal, doses_taken, dealer_doses, final_source, error
		FROM runs WHERE batch_id = ? ORDER BY run_index`, batchID)
	return rows, err
}

// OverdoseTicks returns the overdose ticks of one run in order.
func (db *DB) OverdoseTicks(batchID string, runIndex int) ([]int, error) {
	var ticks []int
	err := db.conn.Select(&ticks,
		"SELECT tick FROM overdoses WHERE batch_id = ? AND run_index = ? ORDER BY tick",
		batchID, runIndex)
	return ticks, err
}

// DoseIncreases returns the escalation record of one run in order.
func (db *DB) DoseIncreases(batchID string, runIndex int) ([]DoseIncreaseRow, error) {
	var rows []DoseIncreaseRow
	err := db.conn.Select(&rows, `SELECT tick, source, attempted, success, dose_type
		FROM dose_increases WHERE batch_id = ? AND run_index = ? ORDER BY tick, rowid`,
		batchID, runIndex)
	return rows, err
}

// RunEvents returns the most recent events of one run, newest first.
func (db *DB) RunEvents(batchID string, runIndex, limit int) ([]engine.Event, error) {
	var events []engine.Event
	err := db.conn.Select(&events,
		"SELECT tick, description, category FROM events WHERE batch_id = ? AND run_index = ? ORDER BY id DESC LIMIT ?",
		batchID, runIndex, limit,
	)
	return events, err
}

// SaveMeta stores a key-value pair in batch metadata.
func (db *DB) SaveMeta(key, value string) error {
	_, err := db.conn.Exec(
		"INSERT OR REPLACE INTO batch_meta (key, value) VALUES (?, ?)",
		key, value,
	)
	return err
}

// GetMeta retrieves a metadata value.
func (db *DB) GetMeta(key string) (string, error) {
	var value string
	err := db.conn.Get(&value, "SELECT value FROM batch_meta WHERE key = ?", key)
	return value, err
}

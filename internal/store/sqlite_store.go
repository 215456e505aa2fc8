package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/cwbudde/gradascent/internal/ascent"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	run_id         TEXT PRIMARY KEY,
	objective      TEXT NOT NULL,
	mode           TEXT NOT NULL,
	strategy       TEXT NOT NULL,
	learning_rate  REAL NOT NULL,
	steps          INTEGER NOT NULL,
	dim            INTEGER NOT NULL,
	initial_point  TEXT NOT NULL,
	final_point    TEXT NOT NULL,
	initial_value  REAL NOT NULL,
	final_value    REAL NOT NULL,
	created_at     TEXT NOT NULL,
	elapsed_ns     INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS runs_created_at ON runs (created_at);
`

// createdAtLayout is fixed width so created_at sorts chronologically as text.
// Timestamps are stored in UTC.
const createdAtLayout = "2006-01-02T15:04:05.000000000Z07:00"

// SQLiteStore keeps run history in a single SQLite database file.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) the database at dbPath and runs migrations.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// SaveRun inserts or replaces a run record.
func (s *SQLiteStore) SaveRun(record *RunRecord) error {
	if record == nil {
		return fmt.Errorf("record cannot be nil")
	}
	if err := record.Validate(); err != nil {
		return err
	}

	initial, err := json.Marshal(record.InitialPoint)
	if err != nil {
		return fmt.Errorf("marshal initial point: %w", err)
	}
	final, err := json.Marshal(record.FinalPoint)
	if err != nil {
		return fmt.Errorf("marshal final point: %w", err)
	}

	_, err = s.db.Exec(
		`INSERT OR REPLACE INTO runs
		 (run_id, objective, mode, strategy, learning_rate, steps, dim, initial_point, final_point,
		  initial_value, final_value, created_at, elapsed_ns)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		record.RunID, record.Objective, record.Mode, record.Strategy.String(),
		record.LearningRate, record.Steps, len(record.FinalPoint),
		string(initial), string(final),
		record.InitialValue, record.FinalValue,
		record.Timestamp.UTC().Format(createdAtLayout), int64(record.Elapsed),
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}

	slog.Debug("Run saved", "run_id", record.RunID, "backend", "sqlite")
	return nil
}

// LoadRun retrieves a run record by ID.
func (s *SQLiteStore) LoadRun(runID string) (*RunRecord, error) {
	if runID == "" {
		return nil, fmt.Errorf("runID cannot be empty")
	}

	var (
		rec            RunRecord
		strategy       string
		initial, final string
		createdAt      string
		elapsed        int64
	)
	err := s.db.QueryRow(
		`SELECT run_id, objective, mode, strategy, learning_rate, steps, initial_point, final_point,
		        initial_value, final_value, created_at, elapsed_ns
		 FROM runs WHERE run_id = ?`, runID,
	).Scan(&rec.RunID, &rec.Objective, &rec.Mode, &strategy, &rec.LearningRate, &rec.Steps,
		&initial, &final, &rec.InitialValue, &rec.FinalValue, &createdAt, &elapsed)
	if err == sql.ErrNoRows {
		return nil, &NotFoundError{RunID: runID}
	}
	if err != nil {
		return nil, fmt.Errorf("query run: %w", err)
	}

	if rec.Strategy, err = ascent.ParseStrategy(strategy); err != nil {
		return nil, fmt.Errorf("decode strategy: %w", err)
	}
	if err := json.Unmarshal([]byte(initial), &rec.InitialPoint); err != nil {
		return nil, fmt.Errorf("unmarshal initial point: %w", err)
	}
	if err := json.Unmarshal([]byte(final), &rec.FinalPoint); err != nil {
		return nil, fmt.Errorf("unmarshal final point: %w", err)
	}
	if rec.Timestamp, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	rec.Elapsed = time.Duration(elapsed)

	return &rec, nil
}

// ListRuns returns metadata for all runs, oldest first.
func (s *SQLiteStore) ListRuns() ([]RunInfo, error) {
	rows, err := s.db.Query(
		`SELECT run_id, objective, mode, dim, steps, final_value, created_at
		 FROM runs ORDER BY created_at ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	infos := []RunInfo{}
	for rows.Next() {
		var info RunInfo
		var createdAt string
		if err := rows.Scan(&info.RunID, &info.Objective, &info.Mode, &info.Dim, &info.Steps, &info.FinalValue, &createdAt); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		if info.Timestamp, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
			return nil, fmt.Errorf("parse created_at: %w", err)
		}
		infos = append(infos, info)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return infos, nil
}

// DeleteRun removes a run record.
func (s *SQLiteStore) DeleteRun(runID string) error {
	if runID == "" {
		return fmt.Errorf("runID cannot be empty")
	}

	res, err := s.db.Exec(`DELETE FROM runs WHERE run_id = ?`, runID)
	if err != nil {
		return fmt.Errorf("delete run: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return &NotFoundError{RunID: runID}
	}
	return nil
}

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL
// mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS collect_runs (
	id          TEXT PRIMARY KEY,
	filter      TEXT NOT NULL,
	persons     INTEGER NOT NULL,
	output_path TEXT NOT NULL,
	created_at  DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS merge_runs (
	id            TEXT PRIMARY KEY,
	ledger_path   TEXT NOT NULL,
	incoming_path TEXT NOT NULL,
	output_path   TEXT NOT NULL,
	cycle_date    TEXT NOT NULL,
	stats         TEXT NOT NULL,
	created_at    DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_collect_runs_created_at ON collect_runs(created_at);
CREATE INDEX IF NOT EXISTS idx_merge_runs_created_at ON merge_runs(created_at);
CREATE INDEX IF NOT EXISTS idx_merge_runs_cycle_date ON merge_runs(cycle_date);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) RecordCollectRun(ctx context.Context, run CollectRun) (*CollectRun, error) {
	run.ID = uuid.New().String()
	run.CreatedAt = time.Now().UTC()

	filterJSON, err := json.Marshal(run.Filter)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: marshal filter")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO collect_runs (id, filter, persons, output_path, created_at) VALUES (?, ?, ?, ?, ?)`,
		run.ID, string(filterJSON), run.Persons, run.OutputPath, run.CreatedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert collect run")
	}
	return &run, nil
}

func (s *SQLiteStore) ListCollectRuns(ctx context.Context, limit int) ([]CollectRun, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, filter, persons, output_path, created_at FROM collect_runs ORDER BY created_at DESC LIMIT ?`,
		clampLimit(limit),
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list collect runs")
	}
	defer rows.Close()

	var runs []CollectRun
	for rows.Next() {
		var run CollectRun
		var filterJSON string
		if err := rows.Scan(&run.ID, &filterJSON, &run.Persons, &run.OutputPath, &run.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan collect run")
		}
		if err := json.Unmarshal([]byte(filterJSON), &run.Filter); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal filter")
		}
		runs = append(runs, run)
	}
	return runs, eris.Wrap(rows.Err(), "sqlite: iterate collect runs")
}

func (s *SQLiteStore) RecordMergeRun(ctx context.Context, run MergeRun) (*MergeRun, error) {
	run.ID = uuid.New().String()
	run.CreatedAt = time.Now().UTC()

	statsJSON, err := json.Marshal(run.Stats)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: marshal stats")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO merge_runs (id, ledger_path, incoming_path, output_path, cycle_date, stats, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.LedgerPath, run.IncomingPath, run.OutputPath, run.CycleDate, string(statsJSON), run.CreatedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert merge run")
	}
	return &run, nil
}

func (s *SQLiteStore) GetMergeRun(ctx context.Context, id string) (*MergeRun, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, ledger_path, incoming_path, output_path, cycle_date, stats, created_at FROM merge_runs WHERE id = ?`,
		id,
	)
	run, err := scanMergeRun(row.Scan)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get merge run %s", id)
	}
	return run, nil
}

func (s *SQLiteStore) ListMergeRuns(ctx context.Context, limit int) ([]MergeRun, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, ledger_path, incoming_path, output_path, cycle_date, stats, created_at FROM merge_runs ORDER BY created_at DESC LIMIT ?`,
		clampLimit(limit),
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list merge runs")
	}
	defer rows.Close()

	var runs []MergeRun
	for rows.Next() {
		run, err := scanMergeRun(rows.Scan)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan merge run")
		}
		runs = append(runs, *run)
	}
	return runs, eris.Wrap(rows.Err(), "sqlite: iterate merge runs")
}

func scanMergeRun(scan func(dest ...any) error) (*MergeRun, error) {
	var run MergeRun
	var statsJSON string
	if err := scan(&run.ID, &run.LedgerPath, &run.IncomingPath, &run.OutputPath, &run.CycleDate, &statsJSON, &run.CreatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(statsJSON), &run.Stats); err != nil {
		return nil, err
	}
	return &run, nil
}

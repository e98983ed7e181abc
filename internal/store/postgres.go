package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"
)

// Pool is the subset of pgxpool.Pool the store needs; pgxmock satisfies
// it in tests.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    Pool
	closeFn func()
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}
	pgxCfg.MaxConns = 5
	pgxCfg.MaxConnLifetime = 30 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS collect_runs (
	id          TEXT PRIMARY KEY,
	filter      JSONB NOT NULL,
	persons     INTEGER NOT NULL,
	output_path TEXT NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS merge_runs (
	id            TEXT PRIMARY KEY,
	ledger_path   TEXT NOT NULL,
	incoming_path TEXT NOT NULL,
	output_path   TEXT NOT NULL,
	cycle_date    TEXT NOT NULL,
	stats         JSONB NOT NULL,
	created_at    TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_collect_runs_created_at ON collect_runs(created_at);
CREATE INDEX IF NOT EXISTS idx_merge_runs_created_at ON merge_runs(created_at);
CREATE INDEX IF NOT EXISTS idx_merge_runs_cycle_date ON merge_runs(cycle_date);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) RecordCollectRun(ctx context.Context, run CollectRun) (*CollectRun, error) {
	run.ID = uuid.New().String()
	run.CreatedAt = time.Now().UTC()

	filterJSON, err := json.Marshal(run.Filter)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: marshal filter")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO collect_runs (id, filter, persons, output_path, created_at) VALUES ($1, $2, $3, $4, $5)`,
		run.ID, string(filterJSON), run.Persons, run.OutputPath, run.CreatedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert collect run")
	}
	return &run, nil
}

func (s *PostgresStore) ListCollectRuns(ctx context.Context, limit int) ([]CollectRun, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, filter, persons, output_path, created_at FROM collect_runs ORDER BY created_at DESC LIMIT $1`,
		clampLimit(limit),
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list collect runs")
	}
	defer rows.Close()

	var runs []CollectRun
	for rows.Next() {
		var run CollectRun
		var filterJSON string
		if err := rows.Scan(&run.ID, &filterJSON, &run.Persons, &run.OutputPath, &run.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan collect run")
		}
		if err := json.Unmarshal([]byte(filterJSON), &run.Filter); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal filter")
		}
		runs = append(runs, run)
	}
	return runs, eris.Wrap(rows.Err(), "postgres: iterate collect runs")
}

func (s *PostgresStore) RecordMergeRun(ctx context.Context, run MergeRun) (*MergeRun, error) {
	run.ID = uuid.New().String()
	run.CreatedAt = time.Now().UTC()

	statsJSON, err := json.Marshal(run.Stats)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: marshal stats")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO merge_runs (id, ledger_path, incoming_path, output_path, cycle_date, stats, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		run.ID, run.LedgerPath, run.IncomingPath, run.OutputPath, run.CycleDate, string(statsJSON), run.CreatedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert merge run")
	}
	return &run, nil
}

func (s *PostgresStore) GetMergeRun(ctx context.Context, id string) (*MergeRun, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, ledger_path, incoming_path, output_path, cycle_date, stats, created_at FROM merge_runs WHERE id = $1`,
		id,
	)
	run, err := scanMergeRun(row.Scan)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get merge run %s", id)
	}
	return run, nil
}

func (s *PostgresStore) ListMergeRuns(ctx context.Context, limit int) ([]MergeRun, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, ledger_path, incoming_path, output_path, cycle_date, stats, created_at FROM merge_runs ORDER BY created_at DESC LIMIT $1`,
		clampLimit(limit),
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list merge runs")
	}
	defer rows.Close()

	var runs []MergeRun
	for rows.Next() {
		run, err := scanMergeRun(rows.Scan)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan merge run")
		}
		runs = append(runs, *run)
	}
	return runs, eris.Wrap(rows.Err(), "postgres: iterate merge runs")
}

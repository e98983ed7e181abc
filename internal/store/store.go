// Package store records collect and merge run history behind a common
// interface with SQLite and Postgres backends.
package store

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/koral-tools/eltunt-cli/internal/collector"
	"github.com/koral-tools/eltunt-cli/internal/reconcile"
)

// CollectRun is one completed scrape.
type CollectRun struct {
	ID         string           `json:"id"`
	Filter     collector.Filter `json:"filter"`
	Persons    int              `json:"persons"`
	OutputPath string           `json:"output_path"`
	CreatedAt  time.Time        `json:"created_at"`
}

// MergeRun is one completed merge cycle.
type MergeRun struct {
	ID           string          `json:"id"`
	LedgerPath   string          `json:"ledger_path"`
	IncomingPath string          `json:"incoming_path"`
	OutputPath   string          `json:"output_path"`
	CycleDate    string          `json:"cycle_date"`
	Stats        reconcile.Stats `json:"stats"`
	CreatedAt    time.Time       `json:"created_at"`
}

// Store persists run history. Record methods fill in ID and CreatedAt.
type Store interface {
	RecordCollectRun(ctx context.Context, run CollectRun) (*CollectRun, error)
	ListCollectRuns(ctx context.Context, limit int) ([]CollectRun, error)

	RecordMergeRun(ctx context.Context, run MergeRun) (*MergeRun, error)
	GetMergeRun(ctx context.Context, id string) (*MergeRun, error)
	ListMergeRuns(ctx context.Context, limit int) ([]MergeRun, error)

	Migrate(ctx context.Context) error
	Close() error
}

// Config selects and configures a backend.
type Config struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	Path        string `yaml:"path" mapstructure:"path"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// Open creates a Store for the configured driver. The zero config opens
// the default SQLite database.
func Open(ctx context.Context, cfg Config) (Store, error) {
	switch cfg.Driver {
	case "", "sqlite":
		path := cfg.Path
		if path == "" {
			path = "eltunt-cli.db"
		}
		return NewSQLite(path)
	case "postgres":
		return NewPostgres(ctx, cfg.DatabaseURL)
	default:
		return nil, eris.Errorf("store: unknown driver %q", cfg.Driver)
	}
}

func clampLimit(limit int) int {
	if limit <= 0 || limit > 500 {
		return 50
	}
	return limit
}

package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"budgetcast/internal/core"

	_ "modernc.org/sqlite"
)

// ErrRunNotFound is returned by GetRun for an unknown ID.
var ErrRunNotFound = errors.New("forecast run not found")

// createdAtLayout is fixed-width so that created_at sorts chronologically as text.
const createdAtLayout = "2006-01-02T15:04:05.000000000Z07:00"

type SQLiteRepository struct {
	db      *sql.DB
	queries *Queries
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	// Run migrations
	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	repo := &SQLiteRepository{
		db:      db,
		queries: New(db),
	}

	return repo, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Ping checks the database connection
func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// SaveRun stores a run summary. Saving an ID that already exists is a no-op,
// so redelivered journal messages are safe to apply twice.
func (r *SQLiteRepository) SaveRun(ctx context.Context, s core.RunSummary) error {
	if s.ID == "" {
		return fmt.Errorf("save run: empty id")
	}

	var seeded int64
	if s.Seeded {
		seeded = 1
	}
	inserted, err := r.queries.InsertRun(ctx, InsertRunParams{
		ID:             s.ID,
		CreatedAt:      s.CreatedAt.UTC().Format(createdAtLayout),
		Salary:         s.Salary,
		Horizon:        int64(s.Horizon),
		CategoryCount:  int64(s.CategoryCount),
		RowCount:       int64(s.RowCount),
		CurrentExpense: s.CurrentExpense,
		FinalSavings:   s.FinalSavings,
		Seeded:         seeded,
	})
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}

	if inserted == 0 {
		slog.DebugContext(ctx, "Forecast run already stored", "run_id", s.ID)
		return nil
	}
	slog.DebugContext(ctx, "Forecast run saved to SQLite",
		"run_id", s.ID,
		"horizon", s.Horizon,
		"category_count", s.CategoryCount)

	return nil
}

// RecordRun journals a computed forecast directly into SQLite.
func (r *SQLiteRepository) RecordRun(ctx context.Context, s core.RunSummary) error {
	return r.SaveRun(ctx, s)
}

// GetRun retrieves a single run summary by ID
func (r *SQLiteRepository) GetRun(ctx context.Context, id string) (core.RunSummary, error) {
	run, err := r.queries.GetRun(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return core.RunSummary{}, ErrRunNotFound
	}
	if err != nil {
		return core.RunSummary{}, fmt.Errorf("get run by id: %w", err)
	}
	return toSummary(run)
}

// ListRuns returns the most recent run summaries, newest first
func (r *SQLiteRepository) ListRuns(ctx context.Context, limit int) ([]core.RunSummary, error) {
	if limit <= 0 {
		return []core.RunSummary{}, nil
	}

	runs, err := r.queries.ListRecentRuns(ctx, int64(limit))
	if err != nil {
		return nil, fmt.Errorf("list recent runs: %w", err)
	}

	summaries := make([]core.RunSummary, 0, len(runs))
	for _, run := range runs {
		s, err := toSummary(run)
		if err != nil {
			return nil, err
		}
		summaries = append(summaries, s)
	}
	return summaries, nil
}

// CountRuns returns the number of stored runs
func (r *SQLiteRepository) CountRuns(ctx context.Context) (int64, error) {
	n, err := r.queries.CountRuns(ctx)
	if err != nil {
		return 0, fmt.Errorf("count runs: %w", err)
	}
	return n, nil
}

func toSummary(run ForecastRun) (core.RunSummary, error) {
	createdAt, err := time.Parse(createdAtLayout, run.CreatedAt)
	if err != nil {
		return core.RunSummary{}, fmt.Errorf("parse created_at of run %s: %w", run.ID, err)
	}
	return core.RunSummary{
		ID:             run.ID,
		CreatedAt:      createdAt,
		Salary:         run.Salary,
		Horizon:        int(run.Horizon),
		CategoryCount:  int(run.CategoryCount),
		RowCount:       int(run.RowCount),
		CurrentExpense: run.CurrentExpense,
		FinalSavings:   run.FinalSavings,
		Seeded:         run.Seeded != 0,
	}, nil
}

package storage

import (
	"context"
	"database/sql"
)

// DBTX is the subset of *sql.DB and *sql.Tx the queries need.
type DBTX interface {
	ExecContext(context.Context, string, ...interface{}) (sql.Result, error)
	QueryContext(context.Context, string, ...interface{}) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...interface{}) *sql.Row
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

type Queries struct {
	db DBTX
}

// ForecastRun is one row of forecast_runs.
type ForecastRun struct {
	ID             string
	CreatedAt      string
	Salary         float64
	Horizon        int64
	CategoryCount  int64
	RowCount       int64
	CurrentExpense float64
	FinalSavings   float64
	Seeded         int64
}

const insertRun = `
INSERT INTO forecast_runs (id, created_at, salary, horizon, category_count, row_count, current_expense, final_savings, seeded)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO NOTHING
`

type InsertRunParams struct {
	ID             string
	CreatedAt      string
	Salary         float64
	Horizon        int64
	CategoryCount  int64
	RowCount       int64
	CurrentExpense float64
	FinalSavings   float64
	Seeded         int64
}

// InsertRun returns the number of inserted rows: 0 when the ID already exists.
func (q *Queries) InsertRun(ctx context.Context, arg InsertRunParams) (int64, error) {
	result, err := q.db.ExecContext(ctx, insertRun,
		arg.ID,
		arg.CreatedAt,
		arg.Salary,
		arg.Horizon,
		arg.CategoryCount,
		arg.RowCount,
		arg.CurrentExpense,
		arg.FinalSavings,
		arg.Seeded,
	)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

const getRun = `
SELECT id, created_at, salary, horizon, category_count, row_count, current_expense, final_savings, seeded
FROM forecast_runs
WHERE id = ?
`

func (q *Queries) GetRun(ctx context.Context, id string) (ForecastRun, error) {
	row := q.db.QueryRowContext(ctx, getRun, id)
	var i ForecastRun
	err := row.Scan(
		&i.ID,
		&i.CreatedAt,
		&i.Salary,
		&i.Horizon,
		&i.CategoryCount,
		&i.RowCount,
		&i.CurrentExpense,
		&i.FinalSavings,
		&i.Seeded,
	)
	return i, err
}

const listRecentRuns = `
SELECT id, created_at, salary, horizon, category_count, row_count, current_expense, final_savings, seeded
FROM forecast_runs
ORDER BY created_at DESC, id DESC
LIMIT ?
`

func (q *Queries) ListRecentRuns(ctx context.Context, limit int64) ([]ForecastRun, error) {
	rows, err := q.db.QueryContext(ctx, listRecentRuns, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []ForecastRun
	for rows.Next() {
		var i ForecastRun
		if err := rows.Scan(
			&i.ID,
			&i.CreatedAt,
			&i.Salary,
			&i.Horizon,
			&i.CategoryCount,
			&i.RowCount,
			&i.CurrentExpense,
			&i.FinalSavings,
			&i.Seeded,
		); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const countRuns = `SELECT COUNT(*) FROM forecast_runs`

func (q *Queries) CountRuns(ctx context.Context) (int64, error) {
	row := q.db.QueryRowContext(ctx, countRuns)
	var count int64
	err := row.Scan(&count)
	return count, err
}

package core

import "time"

// RunSummary is the journal entry recorded for every computed forecast.
type RunSummary struct {
	ID             string    `json:"id"`
	CreatedAt      time.Time `json:"created_at"`
	Salary         float64   `json:"salary"`
	Horizon        int       `json:"horizon"`
	CategoryCount  int       `json:"category_count"`
	RowCount       int       `json:"row_count"`
	CurrentExpense float64   `json:"current_expense"`
	FinalSavings   float64   `json:"final_savings"`
	Seeded         bool      `json:"seeded"`
}

// Summarize builds the journal entry for a computed forecast.
func Summarize(id string, at time.Time, salary float64, rowCount int, seeded bool, f Forecast) RunSummary {
	s := RunSummary{
		ID:            id,
		CreatedAt:     at.UTC(),
		Salary:        salary,
		Horizon:       f.Horizon(),
		CategoryCount: len(f.Categories),
		RowCount:      rowCount,
		Seeded:        seeded,
	}
	for _, m := range f.Months {
		if m.Month == CurrentMonth {
			s.CurrentExpense = m.TotalExpense()
		}
	}
	if n := len(f.Months); n > 0 {
		s.FinalSavings = f.Months[n-1].Savings
	}
	return s
}

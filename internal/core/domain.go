package core

import (
	"bytes"
	"encoding/json"
	"strings"
)

const (
	// HistoricalMonths is the size of the window every category is fitted on:
	// three synthetic months followed by the current month.
	HistoricalMonths = 4
	// CurrentMonth is the month index of the uploaded, real amounts.
	CurrentMonth = HistoricalMonths
	// FirstForecastMonth is the first projected month index.
	FirstForecastMonth = HistoricalMonths + 1

	// DefaultForecastMonths is the horizon used when the caller does not supply one.
	DefaultForecastMonths = 3
)

type (
	// ExpenseRow is one parsed line of the current-month upload.
	ExpenseRow struct {
		Category string
		Amount   float64
	}

	// DataPoint is a known amount of a category in a given month of the
	// historical window.
	DataPoint struct {
		Category string
		Amount   float64
		Month    int
	}

	// CategoryAmount is the amount reported for one category in one month.
	CategoryAmount struct {
		Category string
		Amount   float64
	}

	// MonthRecord is one row of the projection table.
	MonthRecord struct {
		Month    int
		Savings  float64
		Expenses []CategoryAmount
		Forecast bool // true for projected months
	}

	// Forecast is the full result of one computation.
	Forecast struct {
		Categories []string      `json:"categories"`
		Months     []MonthRecord `json:"forecast"`
	}
)

// Amount returns the amount reported for category, if present.
func (m MonthRecord) Amount(category string) (float64, bool) {
	for _, e := range m.Expenses {
		if e.Category == category {
			return e.Amount, true
		}
	}
	return 0, false
}

// TotalExpense sums every category amount of the month.
func (m MonthRecord) TotalExpense() float64 {
	var total float64
	for _, e := range m.Expenses {
		total += e.Amount
	}
	return total
}

// reservedKeys cannot be used as flat category keys in the JSON form.
var reservedKeys = map[string]bool{"month": true, "savings": true}

// MarshalJSON renders the record in the flat form
// {"month": 5, "savings": 2500, "food": 500, ...}. Categories are written in
// record order; a category whose label collides with a reserved key is left
// out of the flat form.
func (m MonthRecord) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(`{"month":`)
	month, err := json.Marshal(m.Month)
	if err != nil {
		return nil, err
	}
	buf.Write(month)

	buf.WriteString(`,"savings":`)
	savings, err := json.Marshal(m.Savings)
	if err != nil {
		return nil, err
	}
	buf.Write(savings)

	for _, e := range m.Expenses {
		if reservedKeys[e.Category] {
			continue
		}
		key, err := json.Marshal(e.Category)
		if err != nil {
			return nil, err
		}
		amount, err := json.Marshal(e.Amount)
		if err != nil {
			return nil, err
		}
		buf.WriteByte(',')
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(amount)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Validate checks the ExpenseRow invariants.
func (r ExpenseRow) Validate() error {
	if strings.TrimSpace(r.Category) == "" {
		return ErrEmptyCategory
	}
	if r.Amount < 0 {
		return ErrNegativeAmount
	}
	return nil
}

// CategorySet returns the unique category labels of rows in first-appearance order.
func CategorySet(rows []ExpenseRow) []string {
	seen := make(map[string]bool, len(rows))
	categories := make([]string, 0, len(rows))
	for _, r := range rows {
		if seen[r.Category] {
			continue
		}
		seen[r.Category] = true
		categories = append(categories, r.Category)
	}
	return categories
}

// FirstAmount returns the amount of the first row labelled category.
// Later rows with the same label are ignored.
func FirstAmount(rows []ExpenseRow, category string) (float64, bool) {
	for _, r := range rows {
		if r.Category == category {
			return r.Amount, true
		}
	}
	return 0, false
}

// DuplicateRows counts rows whose category already appeared earlier.
func DuplicateRows(rows []ExpenseRow) int {
	return len(rows) - len(CategorySet(rows))
}

// Historical returns the records of the historical window (months 1-4).
func (f Forecast) Historical() []MonthRecord {
	var out []MonthRecord
	for _, m := range f.Months {
		if !m.Forecast {
			out = append(out, m)
		}
	}
	return out
}

// Projected returns the forecast records (months 5 onward).
func (f Forecast) Projected() []MonthRecord {
	var out []MonthRecord
	for _, m := range f.Months {
		if m.Forecast {
			out = append(out, m)
		}
	}
	return out
}

// Horizon returns the number of forecast months.
func (f Forecast) Horizon() int {
	return len(f.Projected())
}

// Package forecast projects monthly expenses and savings from a single month
// of category amounts.
//
// Three months of history are synthesized from the current month with a
// random ±10% perturbation, an independent least-squares line is fitted per
// category over the four known months, and the lines are evaluated for each
// forecast month.
package forecast

import (
	crand "crypto/rand"
	"fmt"
	"math"
	"math/rand/v2"

	"budgetcast/internal/core"
)

// Variance is the maximum relative deviation of a synthetic month from the
// current month.
const Variance = 0.1

// Source supplies uniformly distributed values in [0, 1).
// *rand.Rand satisfies it.
type Source interface {
	Float64() float64
}

// NewSeededSource returns a deterministic source: the same seed always yields
// the same sequence.
func NewSeededSource(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

// NewEntropySource returns a source seeded from the operating system's
// entropy pool.
func NewEntropySource() *rand.Rand {
	var seed [32]byte
	if _, err := crand.Read(seed[:]); err != nil {
		return rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return rand.New(rand.NewChaCha8(seed))
}

// Generator builds forecasts. It is not safe for concurrent use because its
// Source is not; build one Generator per computation.
type Generator struct {
	src Source
}

// NewGenerator returns a Generator drawing synthetic variance from src.
func NewGenerator(src Source) *Generator {
	return &Generator{src: src}
}

// Generate produces 4 historical records followed by horizon forecast records.
//
// rows are the current-month amounts; only the first row of each category is
// used. salary is the monthly income savings are computed against.
func (g *Generator) Generate(rows []core.ExpenseRow, salary float64, horizon int) (core.Forecast, error) {
	if horizon <= 0 {
		return core.Forecast{}, fmt.Errorf("generate forecast: %w: %d", core.ErrInvalidHorizon, horizon)
	}
	categories := core.CategorySet(rows)
	if len(categories) == 0 {
		return core.Forecast{}, fmt.Errorf("generate forecast: %w", core.ErrNoCategories)
	}

	points := append(g.Synthesize(rows, categories), CurrentPoints(rows, categories)...)
	byCategory := groupByCategory(points)

	months := make([]core.MonthRecord, 0, core.HistoricalMonths+horizon)
	for month := 1; month <= core.HistoricalMonths; month++ {
		months = append(months, historicalRecord(month, categories, byCategory, salary))
	}

	lines := make(map[string]Line, len(categories))
	for _, c := range categories {
		lines[c] = Fit(byCategory[c])
	}
	for month := core.FirstForecastMonth; month < core.FirstForecastMonth+horizon; month++ {
		months = append(months, projectedRecord(month, categories, lines, salary))
	}

	for _, m := range months {
		if !finite(m) {
			return core.Forecast{}, fmt.Errorf("generate forecast: month %d: %w", m.Month, core.ErrNonFinite)
		}
	}

	return core.Forecast{Categories: categories, Months: months}, nil
}

// Synthesize fabricates the data points of months 1-3. Draws are taken month
// by month, and category by category within a month, so a seeded Source
// always produces the same history for the same input.
func (g *Generator) Synthesize(rows []core.ExpenseRow, categories []string) []core.DataPoint {
	points := make([]core.DataPoint, 0, (core.HistoricalMonths-1)*len(categories))
	for month := 1; month < core.CurrentMonth; month++ {
		for _, c := range categories {
			current, _ := core.FirstAmount(rows, c)
			u := (g.src.Float64()*2 - 1) * Variance
			points = append(points, core.DataPoint{
				Category: c,
				Amount:   current * (1 + u),
				Month:    month,
			})
		}
	}
	return points
}

// CurrentPoints returns the real month-4 point of each category.
func CurrentPoints(rows []core.ExpenseRow, categories []string) []core.DataPoint {
	points := make([]core.DataPoint, 0, len(categories))
	for _, c := range categories {
		amount, _ := core.FirstAmount(rows, c)
		points = append(points, core.DataPoint{Category: c, Amount: amount, Month: core.CurrentMonth})
	}
	return points
}

func groupByCategory(points []core.DataPoint) map[string][]core.DataPoint {
	out := make(map[string][]core.DataPoint)
	for _, p := range points {
		out[p.Category] = append(out[p.Category], p)
	}
	return out
}

func historicalRecord(month int, categories []string, byCategory map[string][]core.DataPoint, salary float64) core.MonthRecord {
	rec := core.MonthRecord{Month: month}
	var total float64
	for _, c := range categories {
		for _, p := range byCategory[c] {
			if p.Month != month {
				continue
			}
			rec.Expenses = append(rec.Expenses, core.CategoryAmount{Category: c, Amount: p.Amount})
			total += p.Amount
			break
		}
	}
	rec.Savings = salary - total
	return rec
}

func finite(m core.MonthRecord) bool {
	if math.IsInf(m.Savings, 0) || math.IsNaN(m.Savings) {
		return false
	}
	for _, e := range m.Expenses {
		if math.IsInf(e.Amount, 0) || math.IsNaN(e.Amount) {
			return false
		}
	}
	return true
}

func projectedRecord(month int, categories []string, lines map[string]Line, salary float64) core.MonthRecord {
	rec := core.MonthRecord{Month: month, Forecast: true}
	var total float64
	for _, c := range categories {
		amount := lines[c].Predict(month)
		rec.Expenses = append(rec.Expenses, core.CategoryAmount{Category: c, Amount: amount})
		total += amount
	}
	rec.Savings = salary - total
	return rec
}

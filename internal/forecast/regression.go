package forecast

import "budgetcast/internal/core"

// Line is a fitted trend amount = Slope*month + Intercept.
type Line struct {
	Slope     float64
	Intercept float64
}

// At evaluates the line at month.
func (l Line) At(month int) float64 {
	return l.Slope*float64(month) + l.Intercept
}

// Predict evaluates the line at month and floors the result at zero.
func (l Line) Predict(month int) float64 {
	if v := l.At(month); v > 0 {
		return v
	}
	return 0
}

// Fit computes the ordinary least-squares line through points. With no
// spread in the month values the slope is 0 and the line is the mean amount;
// with no points it is the zero line.
func Fit(points []core.DataPoint) Line {
	n := float64(len(points))
	if n == 0 {
		return Line{}
	}

	var sumX, sumY float64
	for _, p := range points {
		sumX += float64(p.Month)
		sumY += p.Amount
	}
	meanX, meanY := sumX/n, sumY/n

	var sxy, sxx float64
	for _, p := range points {
		dx := float64(p.Month) - meanX
		sxy += dx * (p.Amount - meanY)
		sxx += dx * dx
	}
	if sxx == 0 {
		return Line{Intercept: meanY}
	}

	slope := sxy / sxx
	return Line{Slope: slope, Intercept: meanY - slope*meanX}
}

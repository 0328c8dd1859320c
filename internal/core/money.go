// Package core provides the forecast domain model, money parsing and the
// classified error taxonomy shared by every adapter.
//
// This file contains functions for parsing monetary amounts, salaries and
// horizons from the raw strings supplied by forms, flags and CSV cells.
package core

import (
	"math"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// MaxAmount bounds the magnitude of salaries and expense amounts so that
// synthetic variance and monthly totals stay finite.
const MaxAmount = 1e15

// ParseDecimal converts a decimal string to a float64.
//
// Surrounding whitespace is ignored. Plain and exponent notation are accepted
// ("12.34", "1e3"); values whose magnitude exceeds MaxAmount are rejected.
//
// Examples:
//
//	ParseDecimal("12.34")  -> 12.34, nil
//	ParseDecimal(" -5 ")   -> -5, nil
//	ParseDecimal("12,34")  -> 0, ErrInvalidAmount
func ParseDecimal(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, ErrInvalidAmount
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, ErrInvalidAmount
	}
	f := d.InexactFloat64()
	if math.IsInf(f, 0) || math.IsNaN(f) || math.Abs(f) > MaxAmount {
		return 0, ErrInvalidAmount
	}
	return f, nil
}

// ParseAmount parses an expense amount, which must be zero or positive.
func ParseAmount(s string) (float64, error) {
	f, err := ParseDecimal(s)
	if err != nil {
		return 0, err
	}
	if f < 0 {
		return 0, ErrNegativeAmount
	}
	return f, nil
}

// ParseSalary parses the monthly salary field.
func ParseSalary(raw string) (float64, error) {
	salary, err := ParseDecimal(raw)
	if err != nil {
		return 0, NewError(KindInvalidNumber, "Salary must be a valid number")
	}
	if salary <= 0 {
		return 0, NewError(KindInvalidNumber, "Salary must be a positive number")
	}
	return salary, nil
}

// ParseHorizon parses the forecast months field. maxMonths <= 0 disables the
// upper bound.
func ParseHorizon(raw string, maxMonths int) (int, error) {
	months, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, NewError(KindInvalidNumber, "Forecast months must be a valid number")
	}
	if err := ValidateHorizon(months, maxMonths); err != nil {
		return 0, err
	}
	return months, nil
}

// ValidateHorizon checks a horizon that is already an integer.
func ValidateHorizon(months, maxMonths int) error {
	if months <= 0 {
		return NewError(KindInvalidNumber, "Forecast months must be a positive number")
	}
	if maxMonths > 0 && months > maxMonths {
		return Errorf(KindInvalidNumber, "Forecast months must be at most %d", maxMonths)
	}
	return nil
}

// RoundCents rounds a float amount half away from zero to two decimal places
// for display.
func RoundCents(f float64) float64 {
	return decimal.NewFromFloat(f).Round(2).InexactFloat64()
}

// FormatAmount renders an amount with two decimals for display.
func FormatAmount(f float64) string {
	return decimal.NewFromFloat(f).StringFixed(2)
}

// Package ingest turns an uploaded current-month expense CSV into expense rows.
//
// The first line must be a two-column header (category,amount, matched
// case-insensitively). Data rows with a field count other than two or an
// empty category are skipped; an unparsable amount fails the whole upload.
package ingest

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"budgetcast/internal/core"
)

const (
	headerCategory = "category"
	headerAmount   = "amount"
)

// Result holds the parsed rows together with bookkeeping about the rows that
// were not used.
type Result struct {
	Rows []core.ExpenseRow
	// Skipped counts data rows dropped for a wrong field count or an empty category.
	Skipped int
	// Duplicates counts rows whose category already appeared; only the first
	// amount of a category is used by the forecast.
	Duplicates int
}

// Parse reads the whole upload from r. Every returned error is a *core.Error.
func Parse(r io.Reader) (Result, error) {
	content, err := decode(r)
	if err != nil {
		return Result{}, err
	}

	reader := csv.NewReader(bytes.NewReader(content))
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return Result{}, malformedHeader()
	}
	if err != nil {
		return Result{}, invalidFile(err)
	}
	// encoding/csv skips blank lines; the header must still be the first line.
	if line, _ := reader.FieldPos(0); line != 1 || !validHeader(header) {
		return Result{}, malformedHeader()
	}

	var res Result
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return Result{}, invalidFile(err)
		}

		if len(record) != 2 {
			res.Skipped++
			continue
		}
		category := strings.TrimSpace(record[0])
		rawAmount := strings.TrimSpace(record[1])
		if category == "" {
			res.Skipped++
			continue
		}

		amount, err := core.ParseAmount(rawAmount)
		if err != nil {
			return Result{}, core.Errorf(core.KindInvalidNumber, "Invalid amount for category %s: %s", category, rawAmount)
		}
		res.Rows = append(res.Rows, core.ExpenseRow{Category: category, Amount: amount})
	}

	if len(res.Rows) == 0 {
		return Result{}, core.NewError(core.KindNoValidRows, "No valid data found in CSV file")
	}
	res.Duplicates = core.DuplicateRows(res.Rows)
	return res, nil
}

// decode reads r as UTF-8 text, honouring a UTF-8 or UTF-16 byte-order mark.
func decode(r io.Reader) ([]byte, error) {
	bomAware := transform.NewReader(r, unicode.BOMOverride(transform.Nop))
	content, err := io.ReadAll(bomAware)
	if err != nil {
		return nil, invalidFile(err)
	}
	if !utf8.Valid(content) {
		return nil, invalidFile(errors.New("file is not valid UTF-8 text"))
	}
	if bytes.IndexByte(content, 0) >= 0 {
		return nil, invalidFile(errors.New("file contains binary data"))
	}
	return content, nil
}

func validHeader(header []string) bool {
	return len(header) == 2 &&
		strings.EqualFold(header[0], headerCategory) &&
		strings.EqualFold(header[1], headerAmount)
}

func malformedHeader() *core.Error {
	return core.NewError(core.KindMalformedHeader, "CSV file must have headers: category,amount")
}

func invalidFile(err error) *core.Error {
	return &core.Error{
		Kind:    core.KindInvalidFile,
		Message: fmt.Sprintf("Error processing CSV file: %s", shortReason(err)),
		Err:     err,
	}
}

// shortReason keeps caller-facing messages to a single line.
func shortReason(err error) string {
	msg := err.Error()
	if i := strings.IndexByte(msg, '\n'); i >= 0 {
		msg = msg[:i]
	}
	if len(msg) > 120 {
		msg = msg[:120]
	}
	return msg
}

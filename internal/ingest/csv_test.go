package ingest

import (
	"bytes"
	"strings"
	"testing"

	"budgetcast/internal/core"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name        string
		input       string
		wantRows    []core.ExpenseRow
		wantSkipped int
		wantDups    int
		wantKind    core.ErrorKind
		wantMessage string
	}{
		{
			name:     "simple",
			input:    "category,amount\nrent,900\nfood,300.50\n",
			wantRows: []core.ExpenseRow{{Category: "rent", Amount: 900}, {Category: "food", Amount: 300.5}},
		},
		{
			name:     "header is case-insensitive",
			input:    "Category,AMOUNT\nrent,900\n",
			wantRows: []core.ExpenseRow{{Category: "rent", Amount: 900}},
		},
		{
			name:     "cells are trimmed",
			input:    "category,amount\n  rent  ,  900  \n",
			wantRows: []core.ExpenseRow{{Category: "rent", Amount: 900}},
		},
		{
			name:        "short, long and unnamed rows are skipped",
			input:       "category,amount\nrent\nfood,1,2\n ,40\ntravel,80\n",
			wantRows:    []core.ExpenseRow{{Category: "travel", Amount: 80}},
			wantSkipped: 3,
		},
		{
			name:     "duplicates are kept and counted",
			input:    "category,amount\nfood,500\nfood,100\n",
			wantRows: []core.ExpenseRow{{Category: "food", Amount: 500}, {Category: "food", Amount: 100}},
			wantDups: 1,
		},
		{
			name:     "quoted category with comma",
			input:    "category,amount\n\"rent, flat\",900\n",
			wantRows: []core.ExpenseRow{{Category: "rent, flat", Amount: 900}},
		},
		{
			name:     "utf-8 byte order mark",
			input:    "\ufeffcategory,amount\nrent,900\n",
			wantRows: []core.ExpenseRow{{Category: "rent", Amount: 900}},
		},
		{
			name:        "malformed header",
			input:       "cat,amt\nrent,900\n",
			wantKind:    core.KindMalformedHeader,
			wantMessage: "CSV file must have headers: category,amount",
		},
		{
			name:        "header with extra column",
			input:       "category,amount,note\nrent,900,x\n",
			wantKind:    core.KindMalformedHeader,
			wantMessage: "CSV file must have headers: category,amount",
		},
		{
			name:        "columns in the wrong order",
			input:       "amount,category\n900,rent\n",
			wantKind:    core.KindMalformedHeader,
			wantMessage: "CSV file must have headers: category,amount",
		},
		{
			name:        "empty file",
			input:       "",
			wantKind:    core.KindMalformedHeader,
			wantMessage: "CSV file must have headers: category,amount",
		},
		{
			name:        "blank line before header",
			input:       "\ncategory,amount\nfood,5\n",
			wantKind:    core.KindMalformedHeader,
			wantMessage: "CSV file must have headers: category,amount",
		},
		{
			name:        "amount too large to forecast",
			input:       "category,amount\nrent,1.7e308\n",
			wantKind:    core.KindInvalidNumber,
			wantMessage: "Invalid amount for category rent: 1.7e308",
		},
		{
			name:        "only blank and short rows",
			input:       "category,amount\n\n\nrent\n,\n",
			wantKind:    core.KindNoValidRows,
			wantMessage: "No valid data found in CSV file",
		},
		{
			name:        "invalid amount names category and raw value",
			input:       "category,amount\nrent,900\nfood,lots\n",
			wantKind:    core.KindInvalidNumber,
			wantMessage: "Invalid amount for category food: lots",
		},
		{
			name:        "negative amount",
			input:       "category,amount\nrent,-5\n",
			wantKind:    core.KindInvalidNumber,
			wantMessage: "Invalid amount for category rent: -5",
		},
		{
			name:        "empty amount",
			input:       "category,amount\nrent,\n",
			wantKind:    core.KindInvalidNumber,
			wantMessage: "Invalid amount for category rent: ",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := Parse(strings.NewReader(tt.input))
			if tt.wantKind != "" {
				ce, ok := core.AsError(err)
				if !ok {
					t.Fatalf("expected classified error, got %v", err)
				}
				if ce.Kind != tt.wantKind {
					t.Errorf("Kind = %s, want %s", ce.Kind, tt.wantKind)
				}
				if ce.Message != tt.wantMessage {
					t.Errorf("Message = %q, want %q", ce.Message, tt.wantMessage)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(res.Rows) != len(tt.wantRows) {
				t.Fatalf("rows = %v, want %v", res.Rows, tt.wantRows)
			}
			for i, row := range res.Rows {
				if row != tt.wantRows[i] {
					t.Errorf("row %d = %+v, want %+v", i, row, tt.wantRows[i])
				}
			}
			if res.Skipped != tt.wantSkipped {
				t.Errorf("Skipped = %d, want %d", res.Skipped, tt.wantSkipped)
			}
			if res.Duplicates != tt.wantDups {
				t.Errorf("Duplicates = %d, want %d", res.Duplicates, tt.wantDups)
			}
		})
	}
}

func TestParse_UTF16WithBOM(t *testing.T) {
	text := "category,amount\nrent,900\n"
	var buf bytes.Buffer
	buf.Write([]byte{0xFF, 0xFE}) // little-endian BOM
	for _, r := range text {
		buf.WriteByte(byte(r))
		buf.WriteByte(0)
	}

	res, err := Parse(&buf)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Rows) != 1 || res.Rows[0].Category != "rent" || res.Rows[0].Amount != 900 {
		t.Fatalf("unexpected rows: %+v", res.Rows)
	}
}

func TestParse_RejectsBinary(t *testing.T) {
	inputs := map[string][]byte{
		"invalid utf-8": {'c', 'a', 't', 0xff, 0xfe, 0xfd, '\n'},
		"nul bytes":     []byte("category,amount\nrent,\x00900\n"),
	}
	for name, in := range inputs {
		t.Run(name, func(t *testing.T) {
			_, err := Parse(bytes.NewReader(in))
			if core.KindOf(err) != core.KindInvalidFile {
				t.Fatalf("expected invalid file, got %v", err)
			}
			ce, _ := core.AsError(err)
			if !strings.HasPrefix(ce.Message, "Error processing CSV file: ") {
				t.Fatalf("unexpected message %q", ce.Message)
			}
		})
	}
}

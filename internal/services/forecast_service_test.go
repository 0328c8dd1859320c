package services

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"budgetcast/internal/core"
)

type fakeRecorder struct {
	mu   sync.Mutex
	runs []core.RunSummary
	err  error
}

func (f *fakeRecorder) RecordRun(ctx context.Context, s core.RunSummary) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.runs = append(f.runs, s)
	return nil
}

type listingRecorder struct {
	fakeRecorder
	listErr error
}

func (l *listingRecorder) ListRuns(ctx context.Context, limit int) ([]core.RunSummary, error) {
	if l.listErr != nil {
		return nil, l.listErr
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if limit > len(l.runs) {
		limit = len(l.runs)
	}
	return l.runs[:limit], nil
}

func (l *listingRecorder) Ping(ctx context.Context) error { return l.listErr }

func request(salary, csv string) Request {
	return Request{
		Salary:    salary,
		SalarySet: true,
		Filename:  "expenses.csv",
		FileSet:   true,
		File:      strings.NewReader(csv),
	}
}

func TestForecastService_Validation(t *testing.T) {
	const validCSV = "category,amount\nrent,900\n"

	tests := []struct {
		name     string
		req      Request
		wantKind core.ErrorKind
		wantMsg  string
	}{
		{
			name:     "missing salary",
			req:      Request{FileSet: true, Filename: "a.csv", File: strings.NewReader(validCSV)},
			wantKind: core.KindMissingField,
			wantMsg:  "Monthly salary is required",
		},
		{
			name:     "salary checked before file",
			req:      Request{Salary: "abc", SalarySet: true},
			wantKind: core.KindInvalidNumber,
			wantMsg:  "Salary must be a valid number",
		},
		{
			name:     "empty salary is not a number",
			req:      request("", validCSV),
			wantKind: core.KindInvalidNumber,
			wantMsg:  "Salary must be a valid number",
		},
		{
			name:     "zero salary",
			req:      request("0", validCSV),
			wantKind: core.KindInvalidNumber,
			wantMsg:  "Salary must be a positive number",
		},
		{
			name:     "missing file",
			req:      Request{Salary: "3000", SalarySet: true},
			wantKind: core.KindMissingField,
			wantMsg:  "CSV file is required",
		},
		{
			name:     "empty filename",
			req:      Request{Salary: "3000", SalarySet: true, FileSet: true, File: strings.NewReader(validCSV)},
			wantKind: core.KindMissingField,
			wantMsg:  "No file selected",
		},
		{
			name: "non-integer horizon",
			req: func() Request {
				r := request("3000", validCSV)
				r.Horizon, r.HorizonSet = "2.5", true
				return r
			}(),
			wantKind: core.KindInvalidNumber,
			wantMsg:  "Forecast months must be a valid number",
		},
		{
			name: "empty horizon",
			req: func() Request {
				r := request("3000", validCSV)
				r.HorizonSet = true
				return r
			}(),
			wantKind: core.KindInvalidNumber,
			wantMsg:  "Forecast months must be a valid number",
		},
		{
			name: "zero horizon",
			req: func() Request {
				r := request("3000", validCSV)
				r.Horizon, r.HorizonSet = "0", true
				return r
			}(),
			wantKind: core.KindInvalidNumber,
			wantMsg:  "Forecast months must be a positive number",
		},
		{
			name: "horizon above maximum",
			req: func() Request {
				r := request("3000", validCSV)
				r.Horizon, r.HorizonSet = "601", true
				return r
			}(),
			wantKind: core.KindInvalidNumber,
			wantMsg:  "Forecast months must be at most 600",
		},
		{
			name:     "malformed header",
			req:      request("3000", "cat,amt\nrent,900\n"),
			wantKind: core.KindMalformedHeader,
			wantMsg:  "CSV file must have headers: category,amount",
		},
		{
			name:     "bad amount names the category",
			req:      request("3000", "category,amount\nrent,12abc\n"),
			wantKind: core.KindInvalidNumber,
			wantMsg:  "Invalid amount for category rent: 12abc",
		},
		{
			name:     "only skipped rows",
			req:      request("3000", "category,amount\n,5\nfood\n\n"),
			wantKind: core.KindNoValidRows,
			wantMsg:  "No valid data found in CSV file",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &fakeRecorder{}
			svc := NewForecastService(Options{MaxMonths: 600}, rec)

			_, err := svc.Run(context.Background(), tt.req)
			ce, ok := core.AsError(err)
			if !ok {
				t.Fatalf("expected *core.Error, got %v", err)
			}
			if ce.Kind != tt.wantKind {
				t.Errorf("Kind = %s, want %s", ce.Kind, tt.wantKind)
			}
			if ce.Message != tt.wantMsg {
				t.Errorf("Message = %q, want %q", ce.Message, tt.wantMsg)
			}
			if len(rec.runs) != 0 {
				t.Error("rejected requests must not be journaled")
			}
		})
	}
}

func TestForecastService_RunDefaultsHorizonAndRecords(t *testing.T) {
	rec := &fakeRecorder{}
	svc := NewForecastService(Options{DefaultMonths: 3, MaxMonths: 600, Seed: 1, Seeded: true}, rec)
	svc.now = func() time.Time { return time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC) }
	svc.newID = func() string { return "fixed-id" }

	res, err := svc.Run(context.Background(), request(" 3000 ", "Category,Amount\nfood,500\nfood,900\nbad row,1,2\n"))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if res.RunID != "fixed-id" {
		t.Errorf("RunID = %s", res.RunID)
	}
	if got := res.Forecast.Horizon(); got != 3 {
		t.Errorf("Horizon = %d, want 3", got)
	}
	if !reflect.DeepEqual(res.Forecast.Categories, []string{"food"}) {
		t.Errorf("Categories = %v", res.Forecast.Categories)
	}
	if res.RowCount != 2 || res.Skipped != 1 || res.Duplicates != 1 {
		t.Errorf("bookkeeping = rows %d skipped %d duplicates %d", res.RowCount, res.Skipped, res.Duplicates)
	}

	current := res.Forecast.Months[core.CurrentMonth-1]
	if food, _ := current.Amount("food"); food != 500 {
		t.Errorf("month 4 food = %v, want 500", food)
	}
	if current.Savings != 2500 {
		t.Errorf("month 4 savings = %v, want 2500", current.Savings)
	}

	if len(rec.runs) != 1 {
		t.Fatalf("expected 1 journaled run, got %d", len(rec.runs))
	}
	run := rec.runs[0]
	if run.ID != "fixed-id" || run.Horizon != 3 || run.CategoryCount != 1 || run.RowCount != 2 || !run.Seeded {
		t.Errorf("unexpected summary %+v", run)
	}
	if run.CurrentExpense != 500 {
		t.Errorf("CurrentExpense = %v, want 500", run.CurrentExpense)
	}
}

func TestForecastService_SeededRunsMatch(t *testing.T) {
	svc := NewForecastService(Options{MaxMonths: 600, Seed: 99, Seeded: true}, nil)
	csv := "category,amount\nrent,900\nfood,300\ntransport,80\n"

	a, err := svc.Compute(context.Background(), request("2500", csv))
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	b, err := svc.Compute(context.Background(), request("2500", csv))
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	if !reflect.DeepEqual(a, b) {
		t.Fatal("seeded service produced different forecasts")
	}
}

func TestForecastService_RecorderFailureDoesNotFailRequest(t *testing.T) {
	rec := &fakeRecorder{err: errors.New("broker unavailable")}
	svc := NewForecastService(Options{MaxMonths: 600}, rec)

	req := request("3000", "category,amount\nrent,900\n")
	req.Horizon, req.HorizonSet = "2", true

	f, err := svc.Compute(context.Background(), req)
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	if len(f.Months) != 6 {
		t.Errorf("expected 6 records, got %d", len(f.Months))
	}
}

func TestForecastService_RecordSurvivesCancelledRequest(t *testing.T) {
	rec := &fakeRecorder{}
	svc := NewForecastService(Options{MaxMonths: 600}, rec)

	ctx, cancel := context.WithCancel(context.Background())
	svc.newID = func() string {
		cancel()
		return "cancelled-mid-run"
	}

	if _, err := svc.Run(ctx, request("3000", "category,amount\nrent,900\n")); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(rec.runs) != 1 {
		t.Fatalf("expected run to be journaled, got %d", len(rec.runs))
	}
}

type failingReader struct{}

func (failingReader) Read(p []byte) (int, error) { return 0, errors.New("connection reset") }

func TestForecastService_UnreadableUploadIsInvalidFile(t *testing.T) {
	svc := NewForecastService(Options{MaxMonths: 600}, nil)
	req := request("3000", "")
	req.File = failingReader{}

	_, err := svc.Run(context.Background(), req)
	if kind := core.KindOf(err); kind != core.KindInvalidFile {
		t.Fatalf("KindOf = %s, want %s (%v)", kind, core.KindInvalidFile, err)
	}
	if !strings.HasPrefix(err.(*core.Error).Message, "Error processing CSV file: ") {
		t.Errorf("unexpected message %q", err.(*core.Error).Message)
	}
}

type panickingReader struct{}

func (panickingReader) Read(p []byte) (int, error) { panic("boom") }

func TestForecastService_PanicBecomesInternalError(t *testing.T) {
	svc := NewForecastService(Options{MaxMonths: 600}, nil)
	req := request("3000", "")
	req.File = panickingReader{}

	_, err := svc.Run(context.Background(), req)
	ce, ok := core.AsError(err)
	if !ok || ce.Kind != core.KindInternal {
		t.Fatalf("expected internal error, got %v", err)
	}
	if !strings.HasPrefix(ce.Message, "Server error") {
		t.Errorf("Message = %q", ce.Message)
	}
}

func TestForecastService_RecentRuns(t *testing.T) {
	t.Run("write-only journal", func(t *testing.T) {
		svc := NewForecastService(Options{}, &fakeRecorder{})
		if _, err := svc.RecentRuns(context.Background(), 10); !errors.Is(err, ErrJournalUnavailable) {
			t.Fatalf("expected ErrJournalUnavailable, got %v", err)
		}
		if svc.JournalReadable() {
			t.Error("JournalReadable should be false")
		}
	})

	t.Run("no journal", func(t *testing.T) {
		svc := NewForecastService(Options{}, nil)
		if _, err := svc.RecentRuns(context.Background(), 10); !errors.Is(err, ErrJournalUnavailable) {
			t.Fatalf("expected ErrJournalUnavailable, got %v", err)
		}
		if err := svc.Ready(context.Background()); err != nil {
			t.Errorf("Ready with no journal = %v", err)
		}
	})

	t.Run("readable journal", func(t *testing.T) {
		rec := &listingRecorder{}
		svc := NewForecastService(Options{MaxMonths: 600}, rec)
		for i := 0; i < 3; i++ {
			if _, err := svc.Run(context.Background(), request("3000", "category,amount\nrent,900\n")); err != nil {
				t.Fatalf("Run: %v", err)
			}
		}

		runs, err := svc.RecentRuns(context.Background(), 2)
		if err != nil {
			t.Fatalf("RecentRuns: %v", err)
		}
		if len(runs) != 2 {
			t.Errorf("expected 2 runs, got %d", len(runs))
		}
		if runs[0].ID == runs[1].ID {
			t.Error("expected distinct run IDs")
		}
	})

	t.Run("journal failure", func(t *testing.T) {
		rec := &listingRecorder{listErr: errors.New("disk I/O error")}
		svc := NewForecastService(Options{}, rec)
		if _, err := svc.RecentRuns(context.Background(), 5); err == nil || errors.Is(err, ErrJournalUnavailable) {
			t.Fatalf("expected wrapped list error, got %v", err)
		}
		if err := svc.Ready(context.Background()); err == nil {
			t.Error("Ready should report the journal failure")
		}
	})
}

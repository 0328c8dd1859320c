package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"

	"budgetcast/internal/core"
	"budgetcast/internal/forecast"
	"budgetcast/internal/ingest"
	"budgetcast/internal/log"
)

// ErrJournalUnavailable is returned by RecentRuns when the configured journal
// cannot be read back.
var ErrJournalUnavailable = errors.New("run journal is not readable")

// RunRecorder journals the summary of every computed forecast
type RunRecorder interface {
	RecordRun(ctx context.Context, s core.RunSummary) error
}

// RunLister reads journaled summaries back, newest first
type RunLister interface {
	ListRuns(ctx context.Context, limit int) ([]core.RunSummary, error)
}

type pinger interface {
	Ping(ctx context.Context) error
}

// Options configures a ForecastService. When Seeded is set every computation
// draws its synthetic history from a generator seeded with Seed.
type Options struct {
	DefaultMonths int
	MaxMonths     int
	Seed          uint64
	Seeded        bool
	RecordTimeout time.Duration
}

// Request carries the raw, unvalidated inputs of one forecast. The *Set flags
// distinguish an absent field from an empty one.
type Request struct {
	Salary     string
	SalarySet  bool
	Horizon    string
	HorizonSet bool
	Filename   string
	FileSet    bool
	File       io.Reader
}

// Result is a computed forecast together with ingestion bookkeeping
type Result struct {
	RunID      string
	Forecast   core.Forecast
	Salary     float64
	RowCount   int
	Skipped    int
	Duplicates int
}

// ForecastService validates forecast requests, runs the generator and
// journals the outcome
type ForecastService struct {
	opts     Options
	recorder RunRecorder
	now      func() time.Time
	newID    func() string
}

// NewForecastService creates a service. recorder may be nil to disable the journal.
func NewForecastService(opts Options, recorder RunRecorder) *ForecastService {
	if opts.DefaultMonths <= 0 {
		opts.DefaultMonths = core.DefaultForecastMonths
	}
	if opts.RecordTimeout <= 0 {
		opts.RecordTimeout = 5 * time.Second
	}
	return &ForecastService{
		opts:     opts,
		recorder: recorder,
		now:      time.Now,
		newID:    uuid.NewString,
	}
}

// Validate checks the salary, file presence and horizon of req, in that order.
func (s *ForecastService) Validate(req Request) (salary float64, horizon int, err error) {
	if !req.SalarySet {
		return 0, 0, core.NewError(core.KindMissingField, "Monthly salary is required")
	}
	salary, err = core.ParseSalary(req.Salary)
	if err != nil {
		return 0, 0, err
	}

	if !req.FileSet || req.File == nil {
		return 0, 0, core.NewError(core.KindMissingField, "CSV file is required")
	}
	if req.Filename == "" {
		return 0, 0, core.NewError(core.KindMissingField, "No file selected")
	}

	horizon = s.opts.DefaultMonths
	if req.HorizonSet {
		horizon, err = core.ParseHorizon(req.Horizon, s.opts.MaxMonths)
		if err != nil {
			return 0, 0, err
		}
	} else if err := core.ValidateHorizon(horizon, s.opts.MaxMonths); err != nil {
		return 0, 0, err
	}

	return salary, horizon, nil
}

// Compute runs a forecast and returns only the projection table.
func (s *ForecastService) Compute(ctx context.Context, req Request) (core.Forecast, error) {
	res, err := s.Run(ctx, req)
	if err != nil {
		return core.Forecast{}, err
	}
	return res.Forecast, nil
}

// Run validates req, parses the upload, generates the forecast and journals
// its summary. Every returned error is a *core.Error.
func (s *ForecastService) Run(ctx context.Context, req Request) (res Result, err error) {
	logger := log.FromContext(ctx).WithComponent(log.ComponentForecast)

	defer func() {
		if r := recover(); r != nil {
			err = core.Internal(fmt.Errorf("panic during forecast: %v", r))
			res = Result{}
		}
		if err != nil {
			ce := core.Classify(err)
			err = ce
			fields := log.NewFields().WithErrorKind(string(ce.Kind)).WithError(ce).WithOperation(log.OpCompute)
			if ce.IsClientError() {
				logger.DebugContext(ctx, "Forecast request rejected", fields.ToSlice()...)
			} else {
				logger.ErrorContext(ctx, "Forecast computation failed", fields.ToSlice()...)
			}
		}
	}()

	salary, horizon, err := s.Validate(req)
	if err != nil {
		return Result{}, err
	}

	parsed, err := ingest.Parse(req.File)
	if err != nil {
		return Result{}, err
	}

	gen := forecast.NewGenerator(s.source())
	f, err := gen.Generate(parsed.Rows, salary, horizon)
	if errors.Is(err, core.ErrNonFinite) {
		return Result{}, &core.Error{Kind: core.KindInvalidFile, Message: "Error processing CSV file: amounts are too large", Err: err}
	}
	if err != nil {
		return Result{}, core.Internal(fmt.Errorf("generate: %w", err))
	}

	res = Result{
		RunID:      s.newID(),
		Forecast:   f,
		Salary:     salary,
		RowCount:   len(parsed.Rows),
		Skipped:    parsed.Skipped,
		Duplicates: parsed.Duplicates,
	}

	summary := core.Summarize(res.RunID, s.now(), salary, res.RowCount, s.opts.Seeded, f)
	log.NewStructuredLogger(logger).LogForecastComputed(ctx, res.RunID, horizon, len(f.Categories), res.RowCount, res.Skipped, s.opts.Seeded, summary.FinalSavings)

	s.record(ctx, logger, summary)

	return res, nil
}

func (s *ForecastService) source() forecast.Source {
	if s.opts.Seeded {
		return forecast.NewSeededSource(s.opts.Seed)
	}
	return forecast.NewEntropySource()
}

// record journals summary. Failures are logged and never reach the caller.
func (s *ForecastService) record(ctx context.Context, logger *log.Logger, summary core.RunSummary) {
	if s.recorder == nil {
		return
	}

	recordCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.opts.RecordTimeout)
	defer cancel()

	if err := s.recorder.RecordRun(recordCtx, summary); err != nil {
		fields := log.NewFields()
		fields[log.FieldRunID] = summary.ID
		log.NewStructuredLogger(logger).LogError(ctx, "Failed to record forecast run", err, log.ComponentForecast, log.OpRecord, fields)
	}
}

// RecentRuns lists journaled runs when the journal can be read back.
func (s *ForecastService) RecentRuns(ctx context.Context, limit int) ([]core.RunSummary, error) {
	lister, ok := s.recorder.(RunLister)
	if !ok {
		return nil, ErrJournalUnavailable
	}
	runs, err := lister.ListRuns(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	return runs, nil
}

// JournalReadable reports whether RecentRuns can succeed.
func (s *ForecastService) JournalReadable() bool {
	_, ok := s.recorder.(RunLister)
	return ok
}

// Ready checks the journal backend, if it can be checked.
func (s *ForecastService) Ready(ctx context.Context) error {
	p, ok := s.recorder.(pinger)
	if !ok {
		return nil
	}
	if err := p.Ping(ctx); err != nil {
		return fmt.Errorf("journal: %w", err)
	}
	return nil
}

// Close releases the journal backend, if it holds resources.
func (s *ForecastService) Close() error {
	c, ok := s.recorder.(io.Closer)
	if !ok {
		return nil
	}
	if err := c.Close(); err != nil {
		return fmt.Errorf("close forecast service: %w", err)
	}
	return nil
}

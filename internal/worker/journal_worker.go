package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"budgetcast/internal/amqp"
	"budgetcast/internal/core"
)

// RunStore persists journal entries
type RunStore interface {
	SaveRun(ctx context.Context, s core.RunSummary) error
	CountRuns(ctx context.Context) (int64, error)
}

// RunConsumer delivers journal entries to a handler until ctx is cancelled
type RunConsumer interface {
	ConsumeRuns(ctx context.Context, handler amqp.RunHandler) error
}

// JournalWorker writes forecast run messages from the broker into the journal database
type JournalWorker struct {
	store       RunStore
	saveTimeout time.Duration
	processed   atomic.Int64
	failed      atomic.Int64
}

func NewJournalWorker(store RunStore, saveTimeout time.Duration) *JournalWorker {
	if saveTimeout <= 0 {
		saveTimeout = 10 * time.Second
	}
	return &JournalWorker{
		store:       store,
		saveTimeout: saveTimeout,
	}
}

// HandleRunMessage stores a single run summary received from AMQP
func (w *JournalWorker) HandleRunMessage(ctx context.Context, s core.RunSummary) error {
	saveCtx, cancel := context.WithTimeout(ctx, w.saveTimeout)
	defer cancel()

	if err := w.store.SaveRun(saveCtx, s); err != nil {
		w.failed.Add(1)
		return fmt.Errorf("save run %s: %w", s.ID, err)
	}

	w.processed.Add(1)
	slog.InfoContext(ctx, "Journaled forecast run",
		"run_id", s.ID,
		"horizon", s.Horizon,
		"category_count", s.CategoryCount,
		"final_savings", s.FinalSavings)

	return nil
}

// Run consumes messages until ctx is cancelled
func (w *JournalWorker) Run(ctx context.Context, consumer RunConsumer) error {
	if total, err := w.store.CountRuns(ctx); err == nil {
		slog.InfoContext(ctx, "Journal worker started", "stored_runs", total)
	}
	return consumer.ConsumeRuns(ctx, w.HandleRunMessage)
}

// ReportStats logs processing counters every interval until ctx is cancelled
func (w *JournalWorker) ReportStats(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			total, err := w.store.CountRuns(ctx)
			if err != nil {
				slog.WarnContext(ctx, "Could not count stored runs", "error", err)
				continue
			}
			slog.InfoContext(ctx, "Journal worker stats",
				"processed", w.processed.Load(),
				"failed", w.failed.Load(),
				"stored_runs", total)
		}
	}
}

// Stats returns the number of messages stored and failed since start
func (w *JournalWorker) Stats() (processed, failed int64) {
	return w.processed.Load(), w.failed.Load()
}

package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"

	"github.com/spf13/cobra"

	"budgetcast/internal/config"
	"budgetcast/internal/core"
	"budgetcast/internal/log"
	"budgetcast/internal/services"
	"budgetcast/internal/storage"
)

type forecastFlags struct {
	salary  string
	file    string
	months  string
	seed    string
	json    bool
	record  bool
	verbose bool
}

type runsFlags struct {
	dbPath string
	limit  int
	json   bool
}

// Run executes budgetcast-cli with args and returns the process exit code.
func Run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	root := NewRootCommand(stdout, stderr)
	root.SetArgs(args)
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(stderr, "Error: %s\n", errorMessage(err))
		return 1
	}
	return 0
}

// errorMessage returns the caller-facing text of err.
func errorMessage(err error) string {
	if ce, ok := core.AsError(err); ok {
		return ce.Message
	}
	return err.Error()
}

// NewRootCommand builds the budgetcast-cli command tree.
func NewRootCommand(stdout, stderr io.Writer) *cobra.Command {
	root := &cobra.Command{
		Use:           "budgetcast-cli",
		Short:         "Salary and expense forecasting",
		Long:          "Project monthly expenses and savings from a category,amount CSV.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(stdout)
	root.SetErr(stderr)

	root.AddCommand(newForecastCommand(), newRunsCommand())
	return root
}

func newForecastCommand() *cobra.Command {
	var flags forecastFlags
	cmd := &cobra.Command{
		Use:   "forecast",
		Short: "Forecast expenses and savings from a CSV file",
		Example: "  budgetcast-cli forecast --salary 3000 --file expenses.csv\n" +
			"  budgetcast-cli forecast --salary 3000 --file expenses.csv --months 6 --seed 42 --json",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runForecast(cmd, flags)
		},
	}

	cmd.Flags().StringVarP(&flags.salary, "salary", "s", "", "Monthly salary")
	cmd.Flags().StringVarP(&flags.file, "file", "f", "", "Expenses CSV with headers category,amount (- for stdin)")
	cmd.Flags().StringVarP(&flags.months, "months", "m", "", "Months to forecast (default from DEFAULT_FORECAST_MONTHS)")
	cmd.Flags().StringVar(&flags.seed, "seed", "", "Seed for reproducible synthetic history")
	cmd.Flags().BoolVar(&flags.json, "json", false, "Print the forecast as JSON")
	cmd.Flags().BoolVar(&flags.record, "record", false, "Journal the run to the configured JOURNAL_BACKEND")
	cmd.Flags().BoolVarP(&flags.verbose, "verbose", "v", false, "Log at the configured LOG_LEVEL instead of warnings only")
	return cmd
}

func runForecast(cmd *cobra.Command, flags forecastFlags) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	cfg := config.Load()
	if flags.seed != "" {
		cfg.RandomSeed = flags.seed
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger := newCLILogger(cfg, cmd.ErrOrStderr(), flags.verbose)
	ctx = log.WithLogger(ctx, logger)

	var recorder services.RunRecorder
	if flags.record {
		r, err := NewRecorder(ctx, cfg, logger)
		if err != nil {
			return err
		}
		recorder = r
	}
	svc := NewForecastService(cfg, recorder)
	defer svc.Close()

	req := services.Request{
		Salary:     flags.salary,
		SalarySet:  cmd.Flags().Changed("salary"),
		Horizon:    flags.months,
		HorizonSet: cmd.Flags().Changed("months"),
	}
	if cmd.Flags().Changed("file") {
		req.FileSet = true
		req.Filename = filepath.Base(flags.file)
		switch {
		case flags.file == "":
			req.Filename = ""
			req.File = eofReader{}
		case flags.file == "-":
			req.Filename = "stdin"
			req.File = cmd.InOrStdin()
		default:
			f, err := os.Open(flags.file)
			if err != nil {
				return fmt.Errorf("open expenses file: %w", err)
			}
			defer f.Close()
			req.File = f
		}
	}

	res, err := svc.Run(ctx, req)
	if err != nil {
		return err
	}

	if flags.json {
		return writeJSON(out, res.Forecast)
	}

	fmt.Fprintln(out, RenderTitle(fmt.Sprintf("FORECAST  salary %s  %d months", core.FormatAmount(res.Salary), res.Forecast.Horizon())))
	fmt.Fprint(out, RenderForecast(res.Forecast))
	fmt.Fprintf(out, "* projected month  |  run %s\n", res.RunID)
	if res.Skipped > 0 {
		fmt.Fprintf(out, "%d row(s) skipped\n", res.Skipped)
	}
	if res.Duplicates > 0 {
		fmt.Fprintf(out, "%d duplicate category row(s): the first amount was used\n", res.Duplicates)
	}
	return nil
}

func newRunsCommand() *cobra.Command {
	var flags runsFlags
	cmd := &cobra.Command{
		Use:   "runs [run-id]",
		Short: "List journaled forecast runs, or show one run, from the SQLite journal",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRuns(cmd, flags, args)
		},
	}
	cmd.Flags().StringVar(&flags.dbPath, "db", "", "SQLite journal path (default SQLITE_DB_PATH)")
	cmd.Flags().IntVarP(&flags.limit, "limit", "n", 20, "Number of runs to show")
	cmd.Flags().BoolVar(&flags.json, "json", false, "Print runs as JSON")
	return cmd
}

func runRuns(cmd *cobra.Command, flags runsFlags, args []string) error {
	out := cmd.OutOrStdout()
	dbPath := flags.dbPath
	if dbPath == "" {
		dbPath = config.Load().SQLiteDBPath
	}
	if _, err := os.Stat(dbPath); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("no journal at %s", dbPath)
		}
		return fmt.Errorf("stat journal: %w", err)
	}

	repo, err := storage.NewSQLiteRepository(dbPath)
	if err != nil {
		return fmt.Errorf("open journal: %w", err)
	}
	defer repo.Close()

	var runs []core.RunSummary
	if len(args) == 1 {
		run, err := repo.GetRun(cmd.Context(), args[0])
		if errors.Is(err, storage.ErrRunNotFound) {
			return fmt.Errorf("no run with id %s", args[0])
		}
		if err != nil {
			return err
		}
		if flags.json {
			return writeJSON(out, run)
		}
		fmt.Fprint(out, RenderRuns([]core.RunSummary{run}))
		return nil
	}

	runs, err = repo.ListRuns(cmd.Context(), flags.limit)
	if err != nil {
		return err
	}

	if flags.json {
		return writeJSON(out, runs)
	}

	if len(runs) == 0 {
		fmt.Fprintln(out, "No forecast runs recorded.")
		return nil
	}
	total, err := repo.CountRuns(cmd.Context())
	if err != nil {
		return err
	}
	fmt.Fprintln(out, RenderTitle("RUNS  showing "+strconv.Itoa(len(runs))+" of "+strconv.FormatInt(total, 10)))
	fmt.Fprint(out, RenderRuns(runs))
	return nil
}

func writeJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// newCLILogger writes to stderr so stdout stays machine-readable.
func newCLILogger(cfg *config.Config, stderr io.Writer, verbose bool) *log.Logger {
	logCfg := loggerConfig(cfg, log.ComponentCLI, stderr)
	if !verbose && logCfg.Level < slog.LevelWarn {
		logCfg.Level = slog.LevelWarn
	}
	return log.New(logCfg)
}

// eofReader stands in for an empty --file value.
type eofReader struct{}

func (eofReader) Read([]byte) (int, error) { return 0, io.EOF }

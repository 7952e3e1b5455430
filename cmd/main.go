package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/okian/sieve/internal/adapters/checkpoint"
	"github.com/okian/sieve/internal/adapters/http/status"
	"github.com/okian/sieve/internal/adapters/judge"
	"github.com/okian/sieve/internal/adapters/source"
	"github.com/okian/sieve/internal/app"
	"github.com/okian/sieve/internal/config"
	"github.com/okian/sieve/internal/domain/classify"
	"github.com/okian/sieve/internal/domain/model"
	"github.com/okian/sieve/pkg/logger"
)

// Exit codes.
const (
	exitOK      = 0
	exitFailure = 1
	exitUsage   = 2
)

const shutdownTimeout = 5 * time.Second

func main() {
	// Root context with cancel on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	if len(args) < 1 {
		usage(stderr)
		return exitUsage
	}
	switch args[0] {
	case "help", "-h", "--help":
		usage(stdout)
		return exitOK
	case "screen":
		return runScreen(ctx, args[1:], stdout, stderr)
	case "retry":
		return runRetry(ctx, args[1:], stdout, stderr)
	case "classify":
		return runClassify(ctx, args[1:], stdout, stderr)
	default:
		_, _ = fmt.Fprintf(stderr, "unknown command: %s\n\n", args[0])
		usage(stderr)
		return exitUsage
	}
}

func usage(w io.Writer) {
	_, _ = fmt.Fprint(w, `sieve screens bibliographic records with judge CLIs.

Usage:
  sieve screen   --input items.csv [--config sieve.yaml] [--output results.csv] [--workers N] [--timeout S] [--save-every K] [--fresh]
  sieve retry    [--input items.csv] [--config sieve.yaml] [--output results.csv] [--workers N] [--timeout S] [--report report.yaml]
  sieve classify --input items.csv [--config sieve.yaml] [--pilot labels.csv]

Configuration is read from --config (or SIEVE_CONFIG) and SIEVE_ environment
variables; flags override both.
`)
}

// common holds the flags shared by the judging commands.
type common struct {
	configPath string
	input      string
	output     string
	workers    int
	timeout    int
	saveEvery  int
}

func (c *common) register(fs *flag.FlagSet) {
	fs.StringVar(&c.configPath, "config", "", "YAML config file (env: SIEVE_CONFIG)")
	fs.StringVar(&c.input, "input", "", "Items CSV (id,title,abstract,keywords,year,source)")
	fs.StringVar(&c.output, "output", "", "Checkpoint path, overrides checkpoint.path")
	fs.IntVar(&c.workers, "workers", 0, "Concurrent items, overrides worker_count")
	fs.IntVar(&c.timeout, "timeout", 0, "Per call timeout in seconds, overrides timeout_seconds")
	fs.IntVar(&c.saveEvery, "save-every", 0, "Completions between checkpoint saves, overrides save_every")
}

// load reads the configuration, applies flag overrides and initializes logging.
func (c *common) load(ctx context.Context, stderr io.Writer) (*config.Config, error) {
	cfg, err := config.Load(ctx, c.configPath)
	if err != nil {
		return nil, err
	}
	if c.output != "" {
		cfg.Checkpoint.Path = c.output
	}
	if c.workers > 0 {
		cfg.WorkerCount = c.workers
	}
	if c.timeout > 0 {
		cfg.TimeoutSeconds = c.timeout
	}
	if c.saveEvery > 0 {
		cfg.SaveEvery = c.saveEvery
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := logger.InitWithWriter(stderr, cfg.LogFormat); err != nil {
		return nil, err
	}
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		logger.Get().Warn(ctx, "invalid log_level; falling back to info", logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}
	return cfg, nil
}

func runScreen(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("screen", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var c common
	c.register(fs)
	fresh := fs.Bool("fresh", false, "Discard the existing checkpoint before screening")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}
	if c.input == "" {
		_, _ = fmt.Fprintln(stderr, "screen requires --input")
		return exitUsage
	}
	cfg, err := c.load(ctx, stderr)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "config error: %s\n", err)
		return exitUsage
	}
	log := logger.Named("sieve")

	items, err := source.ReadItemsFile(c.input)
	if err != nil {
		log.Error(ctx, "failed to read items", logger.Error(err))
		return exitFailure
	}
	if *fresh {
		if err := removeCheckpoint(cfg.Checkpoint); err != nil {
			log.Error(ctx, "failed to discard checkpoint", logger.Error(err))
			return exitFailure
		}
	}
	store, err := checkpoint.Open(cfg.Checkpoint.Backend, cfg.Checkpoint.Path)
	if err != nil {
		log.Error(ctx, "failed to open checkpoint", logger.Error(err))
		return exitFailure
	}
	defer closeStore(ctx, store, log)

	inv := judge.NewExec(cfg.Providers, judge.WithLaunchRate(cfg.LaunchRate))
	orch, err := app.NewOrchestrator(cfg, store, inv)
	if err != nil {
		log.Error(ctx, "failed to create orchestrator", logger.Error(err))
		return exitUsage
	}

	stopStatus, err := startStatus(ctx, cfg.StatusAddr, status.ProgressFunc(func() any { return orch.Progress() }), log)
	if err != nil {
		log.Error(ctx, "failed to start status server", logger.Error(err))
		return exitFailure
	}
	defer stopStatus()

	sum, err := orch.Run(ctx, items)
	printSummary(stdout, sum)
	if err != nil {
		log.Error(ctx, "screening failed", logger.Error(err))
		return exitFailure
	}
	return exitOK
}

func runRetry(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("retry", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var c common
	c.register(fs)
	reportPath := fs.String("report", "", "Write the retry report as YAML to this path")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}
	cfg, err := c.load(ctx, stderr)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "config error: %s\n", err)
		return exitUsage
	}
	log := logger.Named("sieve")

	var items []model.Item
	if c.input != "" {
		if items, err = source.ReadItemsFile(c.input); err != nil {
			log.Error(ctx, "failed to read items", logger.Error(err))
			return exitFailure
		}
	}
	store, err := checkpoint.Open(cfg.Checkpoint.Backend, cfg.Checkpoint.Path)
	if err != nil {
		log.Error(ctx, "failed to open checkpoint", logger.Error(err))
		return exitFailure
	}
	defer closeStore(ctx, store, log)

	inv := judge.NewExec(cfg.Providers, judge.WithLaunchRate(cfg.LaunchRate))
	rc, err := app.NewRetryCoordinator(cfg, store, inv)
	if err != nil {
		log.Error(ctx, "failed to create retry coordinator", logger.Error(err))
		return exitUsage
	}

	stopStatus, err := startStatus(ctx, cfg.StatusAddr, nil, log)
	if err != nil {
		log.Error(ctx, "failed to start status server", logger.Error(err))
		return exitFailure
	}
	defer stopStatus()

	rep, err := rc.Run(ctx, items)
	for _, line := range rep.Lines() {
		_, _ = fmt.Fprintln(stdout, line)
	}
	if *reportPath != "" {
		if werr := rep.WriteYAMLFile(*reportPath); werr != nil {
			log.Error(ctx, "failed to write retry report", logger.Error(werr))
			if err == nil {
				err = werr
			}
		}
	}
	if err != nil {
		log.Error(ctx, "retry failed", logger.Error(err))
		return exitFailure
	}
	return exitOK
}

func runClassify(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("classify", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "", "YAML config file (env: SIEVE_CONFIG)")
	input := fs.String("input", "", "Items CSV")
	pilot := fs.String("pilot", "", "Labels CSV (id plus label/decision column); fails on any false negative")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}
	if *input == "" {
		_, _ = fmt.Fprintln(stderr, "classify requires --input")
		return exitUsage
	}
	c := common{configPath: *configPath}
	cfg, err := c.load(ctx, stderr)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "config error: %s\n", err)
		return exitUsage
	}
	log := logger.Named("sieve")

	items, err := source.ReadItemsFile(*input)
	if err != nil {
		log.Error(ctx, "failed to read items", logger.Error(err))
		return exitFailure
	}
	cl := classify.New(
		classify.WithDomainTerms(cfg.Terms.Domain),
		classify.WithContextTerms(cfg.Terms.Context),
		classify.WithOutcomeTerms(cfg.Terms.Outcome),
	)

	if *pilot == "" {
		tiers := map[model.Tier]int{}
		for _, it := range items {
			tiers[cl.Classify(it.Text()).Tier]++
		}
		for _, t := range []model.Tier{model.T1, model.T2, model.T3} {
			_, _ = fmt.Fprintf(stdout, "%s %d\n", t, tiers[t])
		}
		return exitOK
	}

	labels, err := source.ReadLabelsFile(*pilot)
	if err != nil {
		log.Error(ctx, "failed to read labels", logger.Error(err))
		return exitFailure
	}
	rep := cl.Pilot(items, labels)
	_, _ = fmt.Fprintf(stdout, "checked=%d included=%d T1=%d T2=%d T3=%d false_negatives=%d\n",
		rep.Checked, rep.Included, rep.Tiers[model.T1], rep.Tiers[model.T2], rep.Tiers[model.T3], len(rep.FalseNegatives))
	for _, fn := range rep.FalseNegatives {
		_, _ = fmt.Fprintf(stdout, "false negative %s (%s): %s\n", fn.ID, fn.Reason, fn.Title)
	}
	if !rep.Passed() {
		log.Warn(ctx, "pilot failed: included items would be auto-excluded", logger.Int("false_negatives", len(rep.FalseNegatives)))
		return exitFailure
	}
	return exitOK
}

// startStatus starts the status server when addr is set. The returned
// function shuts it down.
func startStatus(ctx context.Context, addr string, progress status.ProgressProvider, log logger.Logger) (func(), error) {
	if addr == "" {
		return func() {}, nil
	}
	srv := status.New(addr, progress)
	if err := srv.Start(ctx); err != nil {
		return nil, err
	}
	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error(ctx, "status server shutdown failed", logger.Error(err))
		}
	}, nil
}

func closeStore(ctx context.Context, store checkpoint.Store, log logger.Logger) {
	if err := store.Close(); err != nil {
		log.Error(ctx, "failed to close checkpoint", logger.Error(err))
	}
}

// removeCheckpoint deletes the checkpoint and, for SQLite, its journal files.
func removeCheckpoint(cp config.Checkpoint) error {
	paths := []string{cp.Path}
	if cp.Backend == config.BackendSQLite {
		paths = append(paths, cp.Path+"-wal", cp.Path+"-shm")
	}
	for _, p := range paths {
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("remove %s: %w", p, err)
		}
	}
	return nil
}

func printSummary(w io.Writer, sum app.RunSummary) {
	_, _ = fmt.Fprintf(w, "run %s: items=%d skipped=%d dispatched=%d completed=%d canceled=%d elapsed=%s\n",
		sum.RunID, sum.Items, sum.Skipped, sum.Dispatched, sum.Completed, sum.Canceled, sum.Elapsed.Round(time.Millisecond))
	for _, t := range []model.Tier{model.T1, model.T2, model.T3} {
		_, _ = fmt.Fprintf(w, "tier %s %d\n", t, sum.Tiers[t])
	}
	keys := make([]string, 0, len(sum.Consensus))
	for k := range sum.Consensus {
		keys = append(keys, string(k))
	}
	sort.Strings(keys)
	for _, k := range keys {
		_, _ = fmt.Fprintf(w, "consensus %s %d\n", k, sum.Consensus[model.Consensus(k)])
	}
}

// File: cmd/run.go
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xkilldash9x/scenario-cli/api/schemas"
	"github.com/xkilldash9x/scenario-cli/internal/artifacts"
	"github.com/xkilldash9x/scenario-cli/internal/browser"
	"github.com/xkilldash9x/scenario-cli/internal/config"
	"github.com/xkilldash9x/scenario-cli/internal/engine"
	"github.com/xkilldash9x/scenario-cli/internal/generator"
	"github.com/xkilldash9x/scenario-cli/internal/observability"
	"github.com/xkilldash9x/scenario-cli/internal/scenario"
	"github.com/xkilldash9x/scenario-cli/internal/suite"
)

// ErrScenarioFailures is returned with --fail-on-error when any precondition or iteration failed.
var ErrScenarioFailures = errors.New("one or more scenarios recorded failures")

// shutdownTimeout bounds the browser shutdown after the run context is gone.
const shutdownTimeout = 15 * time.Second

// openerFactory starts whatever hands out pages and returns its shutdown function.
type openerFactory func(ctx context.Context, cfg *config.Config, logger *zap.Logger) (schemas.PageOpener, func(context.Context) error, error)

// newPageOpener is replaced in tests to avoid launching a browser.
var newPageOpener openerFactory = func(ctx context.Context, cfg *config.Config, logger *zap.Logger) (schemas.PageOpener, func(context.Context) error, error) {
	mgr, err := browser.NewManager(ctx, cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	return mgr, mgr.Shutdown, nil
}

// runFlagBindings maps run flags onto config keys so flags beat the file and environment.
var runFlagBindings = map[string]string{
	"iterations":    "runner.iterations",
	"concurrency":   "runner.concurrency",
	"fail-on-error": "runner.fail_on_error",
	"seed":          "generator.seed",
	"artifacts":     "artifacts.dir",
	"headless":      "browser.headless",
}

func newRunCmd(v *viper.Viper) *cobra.Command {
	var watch bool

	runCmd := &cobra.Command{
		Use:   "run <file>...",
		Short: "Runs one or more scenario files in a browser",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := configFrom(cmd.Context())
			if err != nil {
				return err
			}
			return runScenarios(cmd.Context(), cfg, args, watch, observability.GetLogger(), cmd.OutOrStdout())
		},
	}

	flags := runCmd.Flags()
	flags.IntP("iterations", "n", -1, "Override the iteration count of every scenario (-1 keeps the file's value)")
	flags.Int("concurrency", 1, "Scenarios run at the same time, one browser tab each")
	flags.Bool("fail-on-error", false, "Exit non-zero when any precondition or iteration fails")
	flags.Int64("seed", 0, "Seed for generated values and select choices (0 picks one)")
	flags.StringP("artifacts", "o", "artifacts", "Directory for screenshots")
	flags.Bool("headless", true, "Run the browser without a window")
	flags.BoolVarP(&watch, "watch", "w", false, "Re-run a scenario each time its file changes")

	for name, key := range runFlagBindings {
		// Lookup cannot fail for flags registered just above.
		_ = v.BindPFlag(key, flags.Lookup(name))
	}
	return runCmd
}

// runScenarios loads every file, starts the browser and runs the suite once. With watch it
// then re-runs each file whenever it changes until ctx is done.
func runScenarios(ctx context.Context, cfg *config.Config, paths []string, watch bool, logger *zap.Logger, out io.Writer) error {
	entries, err := suite.Load(paths)
	if err != nil {
		return err
	}

	store, err := artifacts.New(cfg.Artifacts.Dir)
	if err != nil {
		return err
	}
	metrics := observability.NewMetrics()

	opener, shutdown, err := newPageOpener(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to start browser: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		if err := shutdown(shutdownCtx); err != nil {
			logger.Warn("Browser shutdown failed.", zap.Error(err))
		}
	}()

	opts := suite.Options{
		Engine: engine.Options{
			Store: store,
			Generator: generator.Options{
				MaxRepeat:   cfg.Generator.MaxRepeat,
				MaxLength:   cfg.Generator.MaxLength,
				MaxAttempts: cfg.Generator.MaxAttempts,
			},
			StepTimeout:       cfg.Runner.StepTimeout,
			RunTimeout:        cfg.Runner.RunTimeout,
			MaxStepsPerSecond: cfg.Runner.MaxStepsPerSecond,
			Metrics:           metrics,
		},
		Seed:        cfg.Generator.Seed,
		Concurrency: cfg.Runner.Concurrency,
	}
	if cfg.Runner.Iterations >= 0 {
		opts.Iterations = &cfg.Runner.Iterations
	}
	s, err := suite.New(opener, logger, opts)
	if err != nil {
		return err
	}

	// finish reports a run. Callers hold mu: watch callbacks for different files may fire
	// together and share entries.
	var mu sync.Mutex
	finish := func(results []suite.Result, runErr error) error {
		printSummary(out, s.Seed(), results)
		if err := metrics.WriteTextfile(cfg.Metrics.TextfilePath); err != nil {
			logger.Warn("Failed to export metrics.", zap.Error(err))
		}
		if runErr != nil {
			return runErr
		}
		if cfg.Runner.FailOnError && anyFailed(results) {
			return ErrScenarioFailures
		}
		return nil
	}

	mu.Lock()
	err = finish(s.Run(ctx, entries))
	mu.Unlock()
	if !watch {
		return err
	}
	if err != nil {
		logger.Error("Run failed, watching for changes.", zap.Error(err))
	}

	g, gctx := errgroup.WithContext(ctx)
	for i, path := range paths {
		g.Go(func() error {
			return scenario.Watch(gctx, path, scenario.DefaultDebounce, logger, func() {
				reloaded, err := suite.Load([]string{path})
				if err != nil {
					logger.Error("Scenario file is invalid, waiting for the next change.", zap.String("path", path), zap.Error(err))
					return
				}
				mu.Lock()
				defer mu.Unlock()
				entries[i] = reloaded[0]
				res, runErr := s.RunEntry(ctx, entries, i)
				if err := finish([]suite.Result{res}, runErr); err != nil {
					logger.Error("Run failed.", zap.String("path", path), zap.Error(err))
				}
			})
		})
	}
	return g.Wait()
}

func anyFailed(results []suite.Result) bool {
	for _, res := range results {
		if res.Failed() {
			return true
		}
	}
	return false
}

// printSummary writes one line per scenario followed by each recorded failure.
func printSummary(out io.Writer, seed int64, results []suite.Result) {
	for _, res := range results {
		status := "PASS"
		if res.Failed() {
			status = "FAIL"
		}
		if res.Report == nil {
			fmt.Fprintf(out, "%s  %s  error=%v\n", status, res.Path, res.Err)
			continue
		}

		rep := res.Report
		fmt.Fprintf(out, "%s  %s  scenario=%q iterations=%d failures=%d artifacts=%d seed=%d duration=%s\n",
			status, res.Path, rep.Scenario, rep.Iterations, len(rep.Failures), len(rep.Artifacts), res.Seed,
			rep.Duration().Round(time.Millisecond))
		if rep.PreconditionErr != nil {
			fmt.Fprintf(out, "      precondition: %v\n", rep.PreconditionErr)
		}
		for _, f := range rep.Failures {
			fmt.Fprintf(out, "      iteration %d: %v", f.Iteration, f.Err)
			if f.Artifact != "" {
				fmt.Fprintf(out, " (screenshot: %s)", f.Artifact)
			}
			fmt.Fprintln(out)
		}
		if res.Err != nil {
			fmt.Fprintf(out, "      aborted: %v\n", res.Err)
		}
	}
	fmt.Fprintf(out, "seed=%d\n", seed)
}

// internal/suite/suite.go
package suite

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xkilldash9x/scenario-cli/api/schemas"
	"github.com/xkilldash9x/scenario-cli/internal/engine"
	"github.com/xkilldash9x/scenario-cli/internal/scenario"
)

// Options configures a suite run.
type Options struct {
	// Engine is the template handed to every scenario runner. Its Rand is replaced per
	// scenario and its Store is narrowed to a per-scenario sub-directory.
	Engine engine.Options
	// Seed is the base of every scenario's random source. Zero picks a time-based seed.
	Seed int64
	// Concurrency caps how many scenarios hold a page at once.
	Concurrency int
	// Iterations, when set, overrides every scenario's iteration count.
	Iterations *int
}

// Entry is a loaded scenario together with the file it came from.
type Entry struct {
	Path     string
	Scenario schemas.Scenario
}

// Result is the outcome of one scenario.
type Result struct {
	Path   string
	Seed   int64
	Report *schemas.RunReport
	Err    error
}

// Failed reports whether the scenario aborted or recorded any failure.
func (r Result) Failed() bool {
	return r.Err != nil || (r.Report != nil && r.Report.Failed())
}

// Suite runs a set of scenarios against pages from a shared opener.
type Suite struct {
	opener schemas.PageOpener
	opts   Options
	logger *zap.Logger
}

// New creates a Suite.
func New(opener schemas.PageOpener, logger *zap.Logger, opts Options) (*Suite, error) {
	if opener == nil {
		return nil, errors.New("page opener cannot be nil")
	}
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if opts.Engine.Store == nil {
		return nil, errors.New("artifact store cannot be nil")
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	if opts.Seed == 0 {
		opts.Seed = time.Now().UnixNano()
	}
	return &Suite{
		opener: opener,
		opts:   opts,
		logger: logger.With(zap.String("component", "suite")),
	}, nil
}

// Seed is the base seed in effect, useful for reproducing a run.
func (s *Suite) Seed() int64 {
	return s.opts.Seed
}

// Load reads every file before any browser work starts. All load failures are joined
// into the returned error.
func Load(paths []string) ([]Entry, error) {
	if len(paths) == 0 {
		return nil, errors.New("no scenario files given")
	}
	entries := make([]Entry, 0, len(paths))
	var errs []error
	for _, path := range paths {
		sc, err := scenario.LoadFile(path)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		entries = append(entries, Entry{Path: path, Scenario: sc})
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return entries, nil
}

// Run executes entries with at most Concurrency in flight. Results keep the order of
// entries. A scenario that aborts does not stop the others; the first aborted scenario's
// error is returned once all of them are done.
func (s *Suite) Run(ctx context.Context, entries []Entry) ([]Result, error) {
	results := make([]Result, len(entries))
	s.logger.Info("Starting suite.",
		zap.Int("scenarios", len(entries)),
		zap.Int("concurrency", s.opts.Concurrency),
		zap.Int64("seed", s.opts.Seed),
	)

	var g errgroup.Group
	g.SetLimit(s.opts.Concurrency)
	for i, entry := range entries {
		if ctx.Err() != nil {
			results[i] = Result{Path: entry.Path, Err: ctx.Err()}
			continue
		}
		g.Go(func() error {
			results[i] = s.runOne(ctx, i, entry, len(entries))
			return nil
		})
	}
	_ = g.Wait()

	var firstErr error
	failed := 0
	for _, res := range results {
		if res.Failed() {
			failed++
		}
		if res.Err != nil && firstErr == nil {
			firstErr = fmt.Errorf("scenario %s: %w", res.Path, res.Err)
		}
	}
	s.logger.Info("Suite finished.", zap.Int("scenarios", len(entries)), zap.Int("failed", failed))
	return results, firstErr
}

// RunEntry runs entries[i] on its own, with the seed and artifact directory it gets in a
// full Run of entries. Watch mode uses it to rerun a single changed file.
func (s *Suite) RunEntry(ctx context.Context, entries []Entry, i int) (Result, error) {
	if i < 0 || i >= len(entries) {
		return Result{}, fmt.Errorf("scenario index %d out of range", i)
	}
	if err := ctx.Err(); err != nil {
		return Result{Path: entries[i].Path, Err: err}, err
	}
	res := s.runOne(ctx, i, entries[i], len(entries))
	if res.Err != nil {
		return res, fmt.Errorf("scenario %s: %w", res.Path, res.Err)
	}
	return res, nil
}

func (s *Suite) runOne(ctx context.Context, i int, entry Entry, total int) Result {
	seed := s.opts.Seed + int64(i)
	res := Result{Path: entry.Path, Seed: seed}

	sc := entry.Scenario
	if s.opts.Iterations != nil {
		sc.Iterations = *s.opts.Iterations
	}

	opts := s.opts.Engine
	opts.Rand = rand.New(rand.NewSource(seed))
	if total > 1 {
		opts.Store = opts.Store.Sub(fmt.Sprintf("%02d-%s", i, sc.Name))
	}

	runner, err := engine.NewRunner(s.opener, s.logger, opts)
	if err != nil {
		res.Err = err
		return res
	}
	res.Report, res.Err = runner.Run(ctx, sc)
	if res.Err != nil {
		s.logger.Error("Scenario aborted.", zap.String("path", entry.Path), zap.Error(res.Err))
	}
	return res
}

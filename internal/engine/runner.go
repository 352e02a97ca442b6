// internal/engine/runner.go
package engine

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/scenario-cli/api/schemas"
	"github.com/xkilldash9x/scenario-cli/internal/artifacts"
)

// State is the runner's position in a scenario run.
type State int

const (
	StateIdle State = iota
	StatePreconditionRunning
	StatePreconditionDone
	StateMainRunning
	StateFinished
	StateClosing
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePreconditionRunning:
		return "precondition_running"
	case StatePreconditionDone:
		return "precondition_done"
	case StateMainRunning:
		return "main_running"
	case StateFinished:
		return "finished"
	case StateClosing:
		return "closing"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// cleanupTimeout bounds failure screenshots and the page close, which still run after the
// run context is done.
const cleanupTimeout = 10 * time.Second

// Runner executes scenarios against pages handed out by an opener. Runs on one Runner
// must not overlap because they share the random source.
type Runner struct {
	opener schemas.PageOpener
	opts   Options
	logger *zap.Logger
	now    func() time.Time
}

// NewRunner creates a Runner.
func NewRunner(opener schemas.PageOpener, logger *zap.Logger, opts Options) (*Runner, error) {
	if opener == nil {
		return nil, errors.New("page opener cannot be nil")
	}
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if err := opts.validate(); err != nil {
		return nil, err
	}
	return &Runner{
		opener: opener,
		opts:   opts,
		logger: logger.With(zap.String("component", "runner")),
		now:    time.Now,
	}, nil
}

// run holds the state of a single Run call.
type run struct {
	*Runner
	scenario   schemas.Scenario
	page       schemas.Page
	dispatcher *Dispatcher
	report     *schemas.RunReport
	stamp      string
	state      State
	logger     *zap.Logger
}

// Run executes the precondition once and the main phase sc.Iterations times. Failures in
// the precondition or an iteration are captured, logged and recorded in the report; the
// run goes on. A malformed scenario aborts the run and is returned, as is a cancelled or
// expired context. The page is closed exactly once on every path.
func (r *Runner) Run(ctx context.Context, sc schemas.Scenario) (report *schemas.RunReport, err error) {
	start := r.now()
	runID := artifacts.NewRunID()
	report = &schemas.RunReport{RunID: runID, Scenario: sc.Name, StartedAt: start}
	defer func() { report.FinishedAt = r.now() }()

	if sc.Iterations < 0 {
		return report, &schemas.MalformedScenarioError{Field: "iteration", Reason: "must not be negative"}
	}

	if r.opts.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.opts.RunTimeout)
		defer cancel()
	}

	rn := &run{
		Runner:   r,
		scenario: sc,
		report:   report,
		stamp:    artifacts.RunStamp(start, runID),
		logger:   r.logger.With(zap.String("run_id", runID), zap.String("scenario", sc.Name)),
	}

	opts := r.opts
	opts.OnArtifact = func(path string) {
		report.Artifacts = append(report.Artifacts, path)
		if r.opts.OnArtifact != nil {
			r.opts.OnArtifact(path)
		}
	}
	rn.dispatcher, err = NewDispatcher(rn.logger, opts)
	if err != nil {
		return report, err
	}

	rn.page, err = r.opener.Open(ctx)
	if err != nil {
		return report, browserErr("open page", "", err)
	}
	defer rn.close(ctx)

	return report, rn.execute(ctx)
}

func (rn *run) execute(ctx context.Context) error {
	sc := rn.scenario
	rn.logger.Info("Starting scenario run.", zap.Int("iterations", sc.Iterations))

	if !sc.Precondition.IsZero() {
		rn.transition(StatePreconditionRunning)
		if err := rn.phase(ctx, "precondition", sc.Precondition.URL, sc.Precondition.Steps, sc.Precondition.Ensure); err != nil {
			if ctx.Err() != nil {
				return rn.contextErr(ctx)
			}
			rn.report.PreconditionErr = err
			rn.captureFailure(ctx, artifacts.PreconditionName)
			if schemas.IsFatal(err) {
				rn.logger.Error("Precondition aborted.", zap.Error(err))
				return err
			}
			rn.logger.Error("Precondition failed, continuing with main phase.", zap.Error(err))
		}
		rn.transition(StatePreconditionDone)
	}

	rn.transition(StateMainRunning)
	for i := 0; i < sc.Iterations; i++ {
		if ctx.Err() != nil {
			return rn.contextErr(ctx)
		}
		rn.report.Iterations++

		err := rn.phase(ctx, fmt.Sprintf("iteration %d", i), sc.URL, sc.Steps, nil)
		if err != nil && ctx.Err() != nil {
			return rn.contextErr(ctx)
		}
		rn.opts.Metrics.ObserveIteration(err)
		if err == nil {
			rn.logger.Info("Iteration passed.", zap.Int("iteration", i))
			continue
		}

		rn.logger.Error("Iteration failed.", zap.Int("iteration", i), zap.Error(err))
		path := rn.captureFailure(ctx, artifacts.IterationName(rn.stamp, i))
		rn.report.Failures = append(rn.report.Failures, schemas.IterationFailure{Iteration: i, Err: err, Artifact: path})
		if schemas.IsFatal(err) {
			return err
		}
	}

	rn.transition(StateFinished)
	rn.logger.Info("Scenario run finished.",
		zap.Int("iterations", rn.report.Iterations),
		zap.Int("failures", len(rn.report.Failures)),
		zap.Bool("precondition_failed", rn.report.PreconditionErr != nil),
		zap.Int("artifacts", len(rn.report.Artifacts)),
	)
	return nil
}

// phase navigates to url (when set), dispatches steps in order and checks the optional
// postcondition. The first failing step ends the phase.
func (rn *run) phase(ctx context.Context, name, url string, steps []schemas.Step, post *schemas.EnsureAction) error {
	if url != "" {
		if err := rn.page.Navigate(ctx, url, schemas.NavigateOptions{WaitForNetworkIdle: true}); err != nil {
			return fmt.Errorf("%s: %w", name, browserErr("navigate", "", err))
		}
	}
	for i, step := range steps {
		kind := schemas.KindOf(step.Action)
		rn.logger.Debug("Dispatching step.", zap.String("phase", name), zap.Int("step", i), zap.String("kind", string(kind)))
		if err := rn.dispatch(ctx, step); err != nil {
			return fmt.Errorf("%s: step %d (%s): %w", name, i, kind, err)
		}
	}
	if post != nil {
		if err := rn.dispatch(ctx, schemas.Step{Action: *post}); err != nil {
			return fmt.Errorf("%s: ensure: %w", name, err)
		}
	}
	return nil
}

// dispatch runs one step, turning a panic into an ordinary failure so the page is still
// closed and later iterations still run.
func (rn *run) dispatch(ctx context.Context, step schemas.Step) (err error) {
	defer func() {
		if p := recover(); p != nil {
			rn.logger.Error("Recovered from panic during step.", zap.Any("panic", p), zap.ByteString("stack", debug.Stack()))
			err = fmt.Errorf("panic during step: %v", p)
		}
	}()
	return rn.dispatcher.Dispatch(ctx, rn.page, step)
}

func (rn *run) captureFailure(ctx context.Context, name string) string {
	captureCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
	defer cancel()

	path, err := rn.dispatcher.Capture(captureCtx, rn.page, name)
	if err != nil {
		rn.logger.Warn("Failed to capture failure screenshot.", zap.String("name", name), zap.Error(err))
		return ""
	}
	rn.logger.Info("Captured failure screenshot.", zap.String("path", path))
	return path
}

func (rn *run) close(ctx context.Context) {
	rn.transition(StateClosing)
	closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
	defer cancel()
	if err := rn.page.Close(closeCtx); err != nil {
		rn.logger.Warn("Failed to close page.", zap.Error(err))
	}
}

func (rn *run) contextErr(ctx context.Context) error {
	err := ctx.Err()
	rn.logger.Warn("Scenario run interrupted.", zap.Stringer("state", rn.state), zap.Error(err))
	if errors.Is(err, context.DeadlineExceeded) {
		return &schemas.TimeoutError{Op: "scenario run", Timeout: rn.opts.RunTimeout, Err: err}
	}
	return err
}

func (rn *run) transition(to State) {
	rn.logger.Debug("State transition.", zap.Stringer("from", rn.state), zap.Stringer("to", to))
	rn.state = to
}

// internal/engine/dispatcher.go
package engine

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/xkilldash9x/scenario-cli/api/schemas"
	"github.com/xkilldash9x/scenario-cli/internal/artifacts"
	"github.com/xkilldash9x/scenario-cli/internal/ensure"
	"github.com/xkilldash9x/scenario-cli/internal/generator"
	"github.com/xkilldash9x/scenario-cli/internal/observability"
)

// Options carries the dependencies and limits shared by the dispatcher and the runner.
type Options struct {
	// Rand drives value generation and select choices. Required.
	Rand *rand.Rand
	// Store receives screenshots. Required.
	Store     *artifacts.Store
	Generator generator.Options

	// StepTimeout bounds a single step. Zero means no per-step deadline.
	StepTimeout time.Duration
	// RunTimeout bounds a whole run. Zero means no run deadline.
	RunTimeout time.Duration
	// MaxStepsPerSecond paces dispatch. Zero means unlimited.
	MaxStepsPerSecond float64

	Metrics *observability.Metrics
	// OnArtifact is called with the path of every screenshot written.
	OnArtifact func(path string)
}

func (o Options) validate() error {
	if o.Rand == nil {
		return errors.New("random source cannot be nil")
	}
	if o.Store == nil {
		return errors.New("artifact store cannot be nil")
	}
	if o.StepTimeout < 0 || o.RunTimeout < 0 {
		return errors.New("timeouts cannot be negative")
	}
	if o.MaxStepsPerSecond < 0 {
		return errors.New("max steps per second cannot be negative")
	}
	return nil
}

// Dispatcher turns one step into exactly one browser effect.
type Dispatcher struct {
	opts    Options
	gen     *generator.Generator
	limiter *rate.Limiter
	logger  *zap.Logger
}

// NewDispatcher creates a Dispatcher.
func NewDispatcher(logger *zap.Logger, opts Options) (*Dispatcher, error) {
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if err := opts.validate(); err != nil {
		return nil, err
	}

	limit := rate.Inf
	if opts.MaxStepsPerSecond > 0 {
		limit = rate.Limit(opts.MaxStepsPerSecond)
	}

	return &Dispatcher{
		opts:    opts,
		gen:     generator.New(opts.Rand, opts.Generator),
		limiter: rate.NewLimiter(limit, 1),
		logger:  logger.With(zap.String("component", "dispatcher")),
	}, nil
}

// Dispatch executes step against page under the per-step deadline.
func (d *Dispatcher) Dispatch(ctx context.Context, page schemas.Page, step schemas.Step) error {
	kind := schemas.KindOf(step.Action)
	if err := d.limiter.Wait(ctx); err != nil {
		return err
	}

	stepCtx := ctx
	if d.opts.StepTimeout > 0 {
		var cancel context.CancelFunc
		stepCtx, cancel = context.WithTimeout(ctx, d.opts.StepTimeout)
		defer cancel()
	}

	start := time.Now()
	err := d.execute(stepCtx, page, step.Action)
	if err != nil && ctx.Err() == nil && errors.Is(stepCtx.Err(), context.DeadlineExceeded) {
		err = &schemas.TimeoutError{Op: fmt.Sprintf("%s step", kind), Timeout: d.opts.StepTimeout, Err: err}
	}
	d.opts.Metrics.ObserveStep(string(kind), time.Since(start), err)
	return err
}

func (d *Dispatcher) execute(ctx context.Context, page schemas.Page, action schemas.Action) error {
	switch a := action.(type) {
	case schemas.InputAction:
		return d.input(ctx, page, a)

	case schemas.SelectAction:
		if len(a.Values) == 0 {
			return &schemas.MalformedScenarioError{Field: "form.values", Reason: "select needs at least one value"}
		}
		value := a.Values[d.opts.Rand.Intn(len(a.Values))]
		d.logger.Debug("Selecting option.", zap.String("selector", a.Selector), zap.String("value", value))
		return browserErr("select", a.Selector, page.SelectOption(ctx, a.Selector, value))

	case schemas.ClickAction:
		if err := page.WaitForSelector(ctx, a.Selector); err != nil {
			return browserErr("wait for", a.Selector, err)
		}
		return browserErr("click", a.Selector, page.Click(ctx, a.Selector))

	case schemas.RadioAction:
		return browserErr("click", a.Selector, page.Click(ctx, a.Selector))

	case schemas.WaitAction:
		return page.Sleep(ctx, a.Duration)

	case schemas.EnsureAction:
		actual, err := page.CurrentURL(ctx)
		if err != nil {
			return browserErr("read location", "", err)
		}
		return ensure.Check(actual, a)

	case schemas.ScreenshotAction:
		_, err := d.Capture(ctx, page, a.Name)
		return err

	default:
		return &schemas.UnknownActionError{Kind: string(schemas.KindOf(action))}
	}
}

func (d *Dispatcher) input(ctx context.Context, page schemas.Page, a schemas.InputAction) error {
	var text string
	switch {
	case a.Value != nil:
		text = *a.Value
	case a.Regexp != nil:
		generated, err := d.gen.Generate(*a.Regexp)
		if err != nil {
			return err
		}
		text = generated
	default:
		return nil
	}
	d.logger.Debug("Typing value.", zap.String("selector", a.Selector), zap.String("value", text))
	return browserErr("type into", a.Selector, page.TypeInto(ctx, a.Selector, text))
}

// Capture writes a full-page screenshot named name to the artifact store and returns its
// path. A failed capture leaves no file behind.
func (d *Dispatcher) Capture(ctx context.Context, page schemas.Page, name string) (string, error) {
	data, err := page.Screenshot(ctx, schemas.ScreenshotOptions{FullPage: true})
	if err != nil {
		return "", browserErr("screenshot", "", err)
	}
	path, err := d.opts.Store.Write(name, data)
	if err != nil {
		return "", err
	}
	if d.opts.OnArtifact != nil {
		d.opts.OnArtifact(path)
	}
	return path, nil
}

// browserErr wraps a driver failure unless it is already typed.
func browserErr(op, selector string, err error) error {
	if err == nil {
		return nil
	}
	var typed *schemas.BrowserInteractionError
	if errors.As(err, &typed) {
		return err
	}
	return &schemas.BrowserInteractionError{Op: op, Selector: selector, Err: err}
}

package schemas

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors for the failure taxonomy. Every typed error below matches exactly one
// of them through errors.Is.
var (
	ErrMalformedScenario = errors.New("malformed scenario")
	ErrAssertion         = errors.New("assertion failed")
	ErrBrowser           = errors.New("browser interaction failed")
	ErrGenerator         = errors.New("value generation failed")
	ErrTimeout           = errors.New("timed out")
)

// MalformedScenarioError reports a scenario document (or an in-memory scenario) that does
// not fit the step grammar. It is fatal and never retried.
type MalformedScenarioError struct {
	Field  string
	Reason string
	Err    error
}

func (e *MalformedScenarioError) Error() string {
	msg := "malformed scenario"
	if e.Field != "" {
		msg += ": " + e.Field
	}
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *MalformedScenarioError) Unwrap() error { return e.Err }

func (e *MalformedScenarioError) Is(target error) bool { return target == ErrMalformedScenario }

// UnknownActionError is raised when a step carries an action tag the engine does not know.
type UnknownActionError struct {
	Kind string
}

func (e *UnknownActionError) Error() string {
	if e.Kind == "" {
		return "unknown action type: step has no action"
	}
	return fmt.Sprintf("unknown action type: %q", e.Kind)
}

func (e *UnknownActionError) Is(target error) bool { return target == ErrMalformedScenario }

// AssertionFailure is returned when an ensure check does not hold.
type AssertionFailure struct {
	Expected string
	Actual   string
	// Pattern is true when Expected is a regular expression rather than a literal.
	Pattern bool
}

func (e *AssertionFailure) Error() string {
	if e.Pattern {
		return fmt.Sprintf("location check failed: must match %s, but: %s", e.Expected, e.Actual)
	}
	return fmt.Sprintf("location check failed: must be %s, but: %s", e.Expected, e.Actual)
}

func (e *AssertionFailure) Is(target error) bool { return target == ErrAssertion }

// BrowserInteractionError wraps a failure reported by the page driver.
type BrowserInteractionError struct {
	Op       string
	Selector string
	Err      error
}

func (e *BrowserInteractionError) Error() string {
	if e.Selector != "" {
		return fmt.Sprintf("%s '%s' failed: %v", e.Op, e.Selector, e.Err)
	}
	return fmt.Sprintf("%s failed: %v", e.Op, e.Err)
}

func (e *BrowserInteractionError) Unwrap() error { return e.Err }

func (e *BrowserInteractionError) Is(target error) bool { return target == ErrBrowser }

// GeneratorError is returned when no value satisfying a pattern could be produced.
type GeneratorError struct {
	Pattern string
	Err     error
}

func (e *GeneratorError) Error() string {
	return fmt.Sprintf("cannot generate value for pattern %q: %v", e.Pattern, e.Err)
}

func (e *GeneratorError) Unwrap() error { return e.Err }

func (e *GeneratorError) Is(target error) bool { return target == ErrGenerator }

// TimeoutError reports an operation that exceeded its step or run deadline.
type TimeoutError struct {
	Op      string
	Timeout time.Duration
	Err     error
}

func (e *TimeoutError) Error() string {
	if e.Timeout > 0 {
		return fmt.Sprintf("%s timed out after %s", e.Op, e.Timeout)
	}
	return fmt.Sprintf("%s timed out", e.Op)
}

func (e *TimeoutError) Unwrap() error { return e.Err }

func (e *TimeoutError) Is(target error) bool { return target == ErrTimeout }

// IsFatal reports whether err must abort the whole run instead of only the current phase
// or iteration.
func IsFatal(err error) bool {
	return errors.Is(err, ErrMalformedScenario)
}

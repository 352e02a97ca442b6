package schemas

import (
	"time"
)

// -- Scenario Schemas --

// Scenario is a complete test definition: a one-shot precondition phase followed by a
// main step sequence that is repeated Iterations times against URL.
// A Scenario is immutable once loaded.
type Scenario struct {
	Name         string
	Precondition Phase
	URL          string
	Steps        []Step
	Iterations   int
}

// Phase is a URL plus an ordered step sequence executed once.
type Phase struct {
	URL   string
	Steps []Step
	// Ensure is an optional postcondition evaluated after Steps.
	Ensure *EnsureAction
}

// IsZero reports whether the phase has nothing to do.
func (p Phase) IsZero() bool {
	return p.URL == "" && len(p.Steps) == 0 && p.Ensure == nil
}

// Step wraps exactly one Action.
type Step struct {
	Action Action
}

// ActionKind is the tag naming what kind of interaction a step performs.
type ActionKind string

const (
	KindInput      ActionKind = "input"
	KindSelect     ActionKind = "select"
	KindClick      ActionKind = "click"
	KindRadio      ActionKind = "radio"
	KindWait       ActionKind = "wait"
	KindEnsure     ActionKind = "ensure"
	KindScreenshot ActionKind = "screenshot"
)

// ActionKinds lists every tag the step grammar accepts.
var ActionKinds = []ActionKind{
	KindInput,
	KindSelect,
	KindClick,
	KindRadio,
	KindWait,
	KindEnsure,
	KindScreenshot,
}

// Action is the closed set of step payloads. Only the types declared in this file
// implement it.
type Action interface {
	Kind() ActionKind
	action()
}

// InputAction types into the element matched by Selector. At most one of Value and
// Regexp is set; when neither is, the step types nothing.
type InputAction struct {
	Selector string
	Value    *string
	Regexp   *string
}

// SelectAction sets a <select> control to a value drawn uniformly from Values.
type SelectAction struct {
	Selector string
	Values   []string
}

// ClickAction waits for Selector and clicks it.
type ClickAction struct {
	Selector string
}

// RadioAction clicks the radio input matched by Selector.
type RadioAction struct {
	Selector string
}

// WaitAction suspends the step sequence.
type WaitAction struct {
	Duration time.Duration
}

// EnsureAction checks the current location. Absent fields are not checked.
type EnsureAction struct {
	Location       *string
	LocationRegexp *string
}

// ScreenshotAction captures the full page to an artifact called Name.
type ScreenshotAction struct {
	Name string
}

func (InputAction) Kind() ActionKind      { return KindInput }
func (SelectAction) Kind() ActionKind     { return KindSelect }
func (ClickAction) Kind() ActionKind      { return KindClick }
func (RadioAction) Kind() ActionKind      { return KindRadio }
func (WaitAction) Kind() ActionKind       { return KindWait }
func (EnsureAction) Kind() ActionKind     { return KindEnsure }
func (ScreenshotAction) Kind() ActionKind { return KindScreenshot }

func (InputAction) action()      {}
func (SelectAction) action()     {}
func (ClickAction) action()      {}
func (RadioAction) action()      {}
func (WaitAction) action()       {}
func (EnsureAction) action()     {}
func (ScreenshotAction) action() {}

// KindOf returns the tag of a, or "" for a nil action.
func KindOf(a Action) ActionKind {
	if a == nil {
		return ""
	}
	return a.Kind()
}

// String returns a pointer to s. Handy for building optional fields.
func String(s string) *string {
	return &s
}

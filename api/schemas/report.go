package schemas

import (
	"time"
)

// -- Result Schemas --

// IterationFailure records one failed repetition of the main phase.
type IterationFailure struct {
	Iteration int
	Err       error
	// Artifact is the screenshot path captured at the failure point, empty if capture failed.
	Artifact string
}

// RunReport summarizes a single scenario run. It is handed back to the caller and never
// persisted.
type RunReport struct {
	RunID      string
	Scenario   string
	StartedAt  time.Time
	FinishedAt time.Time

	PreconditionErr error
	// Iterations counts main-phase iterations that were started.
	Iterations int
	Failures   []IterationFailure
	// Artifacts lists every screenshot written during the run, in order.
	Artifacts []string
}

// Failed reports whether the precondition or any iteration failed.
func (r *RunReport) Failed() bool {
	return r.PreconditionErr != nil || len(r.Failures) > 0
}

// Duration is the wall time of the run.
func (r *RunReport) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

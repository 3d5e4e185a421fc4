package harness

import "github.com/roach88/vdb/internal/engine"

// Result is the outcome of a scenario run.
type Result struct {
	// Pass indicates overall success.
	// True if every expectation and assertion holds.
	Pass bool `json:"pass"`

	// RunID is the id stamped on the trace.
	RunID string `json:"run_id"`

	// Trace holds the recorded events in seq order, as read back from the
	// journal.
	Trace []engine.TraceEvent `json:"trace"`

	// Render is the root template after the last step.
	Render string `json:"render"`

	// Errors contains expectation and assertion failures.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult(runID string) *Result {
	return &Result{
		Pass:   true,
		RunID:  runID,
		Trace:  []engine.TraceEvent{},
		Errors: []string{},
	}
}

// AddError adds a failure and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

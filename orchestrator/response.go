package orchestrator

import (
	"fmt"
	"strings"
	"time"

	"github.com/hupe1980/saathi/core"
	"github.com/hupe1980/saathi/graph"
)

// Response is the answer to one turn.
type Response struct {
	RunID      string          `json:"run_id"`
	SessionID  string          `json:"session_id"`
	Capability core.Capability `json:"capability"`
	// Text is the aggregated answer shown to the user.
	Text    string         `json:"text"`
	Outputs []core.Output  `json:"outputs"`
	Status  core.RunStatus `json:"status"`
	// Degraded is set when any accepted output fell back after a transient
	// failure.
	Degraded bool `json:"degraded"`
	// LowConfidence is set when a loop exhausted its iterations.
	LowConfidence bool            `json:"low_confidence"`
	Failures      []graph.Failure `json:"failures,omitempty"`
	Iterations    int             `json:"iterations,omitempty"`
	// Transcript is the run's committed A2A traffic in sequence order.
	Transcript []core.Message `json:"transcript,omitempty"`
	// Committed holds the memory records the turn wrote.
	Committed []core.MemoryRecord `json:"committed,omitempty"`
	Elapsed   time.Duration       `json:"elapsed"`
}

// Answered reports whether the response carries a usable answer.
func (r *Response) Answered() bool {
	return r != nil && r.Status.Answered()
}

// RunError reports a run that ended Failed.
type RunError struct {
	RunID    string
	Failures []graph.Failure
}

func (e *RunError) Error() string {
	if len(e.Failures) == 0 {
		return fmt.Sprintf("run %s failed", e.RunID)
	}
	msgs := make([]string, len(e.Failures))
	for i, f := range e.Failures {
		msgs[i] = f.Error()
	}
	return fmt.Sprintf("run %s failed: %s", e.RunID, strings.Join(msgs, "; "))
}

// Unwrap exposes the underlying failure causes.
func (e *RunError) Unwrap() []error {
	errs := make([]error, 0, len(e.Failures))
	for _, f := range e.Failures {
		errs = append(errs, f.Err)
	}
	return errs
}

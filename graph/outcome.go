package graph

import (
	"github.com/hupe1980/saathi/core"
)

// Failure records a leaf that failed without aborting the run.
type Failure struct {
	Path  string `json:"path"`
	Agent string `json:"agent"`
	Err   error  `json:"-"`
}

// Error returns the failure message.
func (f Failure) Error() string {
	return f.Path + ": " + f.Err.Error()
}

// Outcome is the tagged result of executing a node.
type Outcome struct {
	Status core.RunStatus
	// Output is the node's primary output: the last output in Outputs.
	Output core.Output
	// Outputs holds every accepted leaf output in commit order.
	Outputs []core.Output
	// Delta is what the node proposes to commit. Empty when Status is
	// Failed.
	Delta    core.Delta
	Failures []Failure
	// Iterations is set by loop nodes.
	Iterations int
}

// Degraded reports whether any accepted output is degraded.
func (o Outcome) Degraded() bool {
	for _, out := range o.Outputs {
		if out.Degraded {
			return true
		}
	}
	return false
}

// LowConfidence reports whether any accepted output is flagged low confidence.
func (o Outcome) LowConfidence() bool {
	for _, out := range o.Outputs {
		if out.LowConfidence {
			return true
		}
	}
	return false
}

func failed(failures ...Failure) Outcome {
	return Outcome{Status: core.StatusFailed, Failures: failures}
}

// statusRank orders terminal statuses by severity.
func statusRank(s core.RunStatus) int {
	switch s {
	case core.StatusFailed:
		return 3
	case core.StatusPartiallyFailed:
		return 2
	case core.StatusExhausted:
		return 1
	default:
		return 0
	}
}

// Worst returns the more severe of a and b:
// Failed > PartiallyFailed > Exhausted > Succeeded.
func Worst(a, b core.RunStatus) core.RunStatus {
	if statusRank(b) > statusRank(a) {
		return b
	}
	return a
}

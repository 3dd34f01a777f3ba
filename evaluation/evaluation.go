// Package evaluation scores agent responses and tracks per-agent metrics over
// time. Scores feed loop stop predicates (AcceptAbove) and the performance
// reports exposed by the CLI.
package evaluation

import (
	"fmt"
	"strings"
	"time"

	"github.com/hupe1980/saathi/core"
	"github.com/hupe1980/saathi/logging"
)

// Grade buckets a score.
type Grade string

const (
	GradeA Grade = "A"
	GradeB Grade = "B"
	GradeC Grade = "C"
)

// GradeFor maps a 0-100 score to a grade: A from 80, B from 60, C below.
func GradeFor(score float64) Grade {
	switch {
	case score >= 80:
		return GradeA
	case score >= 60:
		return GradeB
	default:
		return GradeC
	}
}

// Each check contributes a quarter of the score.
const checkWeight = 25.0

var empathyKeywords = []string{"understand", "support", "help"}

// Result is the quality assessment of one response.
type Result struct {
	Agent       string    `json:"agent"`
	Score       float64   `json:"score"`
	Grade       Grade     `json:"grade"`
	Feedback    []string  `json:"feedback"`
	CriteriaMet int       `json:"criteria_met"`
	Criteria    int       `json:"criteria"`
	EvaluatedAt time.Time `json:"evaluated_at"`
}

// CriteriaRatio renders the criteria share as "met/total".
func (r Result) CriteriaRatio() string {
	return fmt.Sprintf("%d/%d", r.CriteriaMet, r.Criteria)
}

// Options configures an Evaluator.
type Options struct {
	// MinLength is the trimmed length a response must exceed. Default 10.
	MinLength int
	Clock     func() time.Time
	Logger    logging.Logger
}

// Evaluator scores responses on length, empathy, structure and expected
// criteria, each worth 25 points.
type Evaluator struct {
	opts Options
}

// New returns an evaluator.
func New(optFns ...func(o *Options)) *Evaluator {
	opts := Options{MinLength: 10, Clock: time.Now, Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}
	opts.Logger = logging.OrNoOp(opts.Logger)
	return &Evaluator{opts: opts}
}

// Evaluate scores response. Criteria are matched case-insensitively as
// substrings; with no criteria the criteria share is awarded in full.
func (e *Evaluator) Evaluate(agent, response string, criteria ...string) Result {
	lower := strings.ToLower(response)
	r := Result{Agent: agent, Criteria: len(criteria), EvaluatedAt: e.opts.Clock().UTC()}

	if len(strings.TrimSpace(response)) > e.opts.MinLength {
		r.Score += checkWeight
		r.Feedback = append(r.Feedback, "response has sufficient length")
	} else {
		r.Feedback = append(r.Feedback, "response too short")
	}

	if containsAny(lower, empathyKeywords) {
		r.Score += checkWeight
		r.Feedback = append(r.Feedback, "response shows empathy")
	} else {
		r.Feedback = append(r.Feedback, "could use more empathetic language")
	}

	if strings.Contains(response, ".") {
		r.Score += checkWeight
		r.Feedback = append(r.Feedback, "well-structured response")
	} else {
		r.Feedback = append(r.Feedback, "response structure could be improved")
	}

	for _, c := range criteria {
		if strings.Contains(lower, strings.ToLower(c)) {
			r.CriteriaMet++
		}
	}
	if len(criteria) == 0 {
		r.Score += checkWeight
	} else {
		r.Score += checkWeight * float64(r.CriteriaMet) / float64(len(criteria))
	}

	r.Grade = GradeFor(r.Score)
	e.opts.Logger.Debug("response evaluated", "agent", agent, "score", r.Score, "grade", string(r.Grade), "criteria", r.CriteriaRatio())
	return r
}

// EvaluateOutput scores an agent output.
func (e *Evaluator) EvaluateOutput(out core.Output, criteria ...string) Result {
	return e.Evaluate(out.Agent, out.Text, criteria...)
}

func containsAny(s string, words []string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}

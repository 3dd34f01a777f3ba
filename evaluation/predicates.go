package evaluation

import "github.com/hupe1980/saathi/core"

// AcceptAbove returns a loop stop predicate accepting outputs scoring at
// least threshold. Degraded outputs are always accepted.
func AcceptAbove(e *Evaluator, threshold float64, criteria ...string) func(core.Output) bool {
	return func(out core.Output) bool {
		if out.Degraded {
			return true
		}
		return e.EvaluateOutput(out, criteria...).Score >= threshold
	}
}

// AcceptGrade is AcceptAbove with the lower bound of grade g.
func AcceptGrade(e *Evaluator, g Grade, criteria ...string) func(core.Output) bool {
	threshold := 0.0
	switch g {
	case GradeA:
		threshold = 80
	case GradeB:
		threshold = 60
	}
	return AcceptAbove(e, threshold, criteria...)
}

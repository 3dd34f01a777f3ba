package agent

import (
	"fmt"
	"strings"

	"github.com/hupe1980/saathi/gateway"
)

// MaxAverageSentenceWords is the average sentence length above which text
// is considered unclear.
const MaxAverageSentenceWords = 20

var (
	clarityMarkers = []string{"specifically", "for example", "in other words", "to clarify", "this means that"}
	actionVerbs    = []string{"create", "plan", "organize", "schedule", "write", "reflect", "share"}

	clarityRewrites = []string{
		"utilize", "use",
		"facilitate", "help",
		"implement", "do",
		"approximately", "about",
		"numerous", "many",
	}
)

// ClarityReport is the readability assessment of a text.
type ClarityReport struct {
	Clear bool `json:"clear"`
	// Readability grows with the clarity markers used, capped at 1.
	Readability float64  `json:"readability"`
	Issues      []string `json:"issues,omitempty"`
	Suggestions []string `json:"suggestions,omitempty"`
}

// ValidateClarity checks sentence length, clarity markers and whether the
// text suggests concrete actions.
func ValidateClarity(text string) ClarityReport {
	r := ClarityReport{Clear: true}

	sentences := strings.Split(text, ". ")
	words := strings.Fields(text)
	avg := float64(len(words)) / float64(len(sentences))
	if avg > MaxAverageSentenceWords {
		r.Clear = false
		r.Issues = append(r.Issues, fmt.Sprintf("average sentence length (%.1f) is too high", avg))
		r.Suggestions = append(r.Suggestions, "Break long sentences into shorter, clearer statements")
	}

	lower := strings.ToLower(text)
	markers := countContained(lower, clarityMarkers)
	r.Readability = min(1.0, float64(markers)/3)
	if markers == 0 {
		r.Suggestions = append(r.Suggestions, "Add examples or clarifications to improve understanding")
	}
	if countContained(lower, actionVerbs) == 0 {
		r.Suggestions = append(r.Suggestions, "Include actionable steps or suggestions")
	}
	return r
}

// Map renders the report as an output payload.
func (r ClarityReport) Map() map[string]any {
	return map[string]any{"clear": r.Clear, "readability": r.Readability, "issues": r.Issues}
}

// ImproveClarity swaps inflated words for plain ones.
func ImproveClarity(text string) string {
	return strings.NewReplacer(clarityRewrites...).Replace(text)
}

// ClarityValidator rejects text whose sentences are too long on average.
func ClarityValidator() gateway.Validator {
	return gateway.ValidatorFunc(func(text string) []string {
		return ValidateClarity(text).Issues
	})
}

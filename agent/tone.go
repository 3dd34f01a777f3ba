package agent

import (
	"strings"

	"github.com/hupe1980/saathi/gateway"
)

var (
	positiveIndicators = []string{
		"support", "understand", "care", "help", "listen", "empathy",
		"compassion", "growth", "healing", "resilience", "strength",
	}
	negativeIndicators = []string{
		"hate", "stupid", "worthless", "failure", "hopeless",
		"useless", "despair", "alone", "reject",
	}
	empathyMarkers = []string{"I understand", "I hear you", "That sounds", "It makes sense"}

	toneRewrites = []string{
		"I think", "I feel",
		"You should", "You might consider",
		"Don't worry", "I understand this is concerning",
		"Just relax", "Let's find ways to bring comfort",
		"It's simple", "This approach can help",
	}
)

// Tone finding texts.
const (
	ToneNegativeLanguage = "text contains potentially negative language"
	ToneLowEmpathy       = "consider adding more empathetic language"
)

// ToneReport is the emotional tone assessment of a text.
type ToneReport struct {
	// Valid is false when any negative indicator appears.
	Valid bool `json:"valid"`
	// Score is the share of positive indicators among all indicators found,
	// 0 when none were found.
	Score       float64  `json:"score"`
	Feedback    []string `json:"feedback,omitempty"`
	Suggestions []string `json:"suggestions,omitempty"`
}

// ValidateTone scores text for supportive language.
func ValidateTone(text string) ToneReport {
	lower := strings.ToLower(text)
	positive := countContained(lower, positiveIndicators)
	negative := countContained(lower, negativeIndicators)

	r := ToneReport{Valid: true}
	if total := positive + negative; total > 0 {
		r.Score = float64(positive) / float64(total)
	}
	if negative > 0 {
		r.Valid = false
		r.Feedback = append(r.Feedback, ToneNegativeLanguage)
		r.Suggestions = append(r.Suggestions, "Reframe negative statements with constructive, supportive language")
	}
	if positive < 2 {
		r.Feedback = append(r.Feedback, ToneLowEmpathy)
		r.Suggestions = append(r.Suggestions, "Include words that show understanding and support")
	}
	if !containsAny(text, empathyMarkers) {
		r.Suggestions = append(r.Suggestions, "Add empathetic reflection to show understanding")
	}
	return r
}

// Map renders the report as an output payload.
func (r ToneReport) Map() map[string]any {
	return map[string]any{"valid": r.Valid, "score": r.Score, "feedback": r.Feedback}
}

// EnhanceTone rewrites directive phrasing into supportive phrasing.
func EnhanceTone(text string) string {
	return strings.NewReplacer(toneRewrites...).Replace(text)
}

// ToneValidator rejects text with negative language. Low empathy is only
// feedback and does not reject.
func ToneValidator() gateway.Validator {
	return gateway.ValidatorFunc(func(text string) []string {
		if r := ValidateTone(text); !r.Valid {
			return []string{ToneNegativeLanguage}
		}
		return nil
	})
}

func countContained(lower string, words []string) int {
	n := 0
	for _, w := range words {
		if strings.Contains(lower, w) {
			n++
		}
	}
	return n
}

func containsAny(text string, phrases []string) bool {
	for _, p := range phrases {
		if strings.Contains(text, p) {
			return true
		}
	}
	return false
}

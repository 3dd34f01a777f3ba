package agent

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/hupe1980/saathi/core"
)

func TestValidateTone(t *testing.T) {
	tests := []struct {
		name      string
		text      string
		valid     bool
		score     float64
		lowEmpath bool
	}{
		{"supportive", "I understand. I care and I am here to help and support you.", true, 1, false},
		{"negative", "That was a failure, but I understand and I care.", false, 2.0 / 3, false},
		{"neutral", "Here is the schedule for tomorrow.", true, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := ValidateTone(tt.text)
			assert.Equal(t, tt.valid, r.Valid)
			assert.InDelta(t, tt.score, r.Score, 1e-9)
			assert.Equal(t, tt.lowEmpath, contains(r.Feedback, ToneLowEmpathy))
		})
	}
}

func TestEnhanceTone(t *testing.T) {
	got := EnhanceTone("I think you did well. You should rest. Don't worry. Just relax. It's simple.")
	assert.Equal(t, "I feel you did well. You might consider rest. I understand this is concerning. Let's find ways to bring comfort. This approach can help.", got)
}

func TestValidateClarity(t *testing.T) {
	r := ValidateClarity("Plan your week. For example, schedule math on Monday. In other words, start small.")
	assert.True(t, r.Clear)
	assert.InDelta(t, 2.0/3, r.Readability, 1e-9)
	assert.Empty(t, r.Issues)
	assert.Len(t, r.Suggestions, 0)

	r = ValidateClarity("nothing here")
	assert.True(t, r.Clear)
	assert.Len(t, r.Suggestions, 2)
}

func TestImproveClarity(t *testing.T) {
	assert.Equal(t, "use many tools to help about ten meetings and do them",
		ImproveClarity("utilize numerous tools to facilitate approximately ten meetings and implement them"))
}

func TestMoodScore(t *testing.T) {
	assert.Equal(t, MoodPositive, MoodScore("Grateful"))
	assert.Equal(t, MoodNegative, MoodScore(" overwhelmed "))
	assert.Equal(t, MoodNeutral, MoodScore("reflective"))
	assert.InDelta(t, 0.8, moodImportance(MoodPositive), 1e-9)
	assert.InDelta(t, 0.5, moodImportance(MoodNeutral), 1e-9)
}

func TestPredicates(t *testing.T) {
	assert.True(t, ToneOK(core.Output{Text: "I understand and I care."}))
	assert.False(t, ToneOK(core.Output{Text: "I understand and I care.", Issues: []string{"x"}}))
	assert.False(t, ToneOK(core.Output{Text: "this is hopeless"}))
	assert.True(t, ToneOK(core.Output{Text: "this is hopeless", Degraded: true}))

	assert.True(t, ClarityOK(core.Output{Text: "Short and clear."}))
	assert.False(t, ClarityOK(core.Output{Text: "Short and clear.", Issues: []string{"too long"}}))
}

func TestSlugAndPlanName(t *testing.T) {
	assert.Equal(t, "pune-kothrud", slug("  Pune,  Kothrud! "))
	assert.Equal(t, "local", slug("!!"))
	assert.Equal(t, "general", planName(nil))
	assert.Equal(t, "chemistry+math", planName([]string{"Math", "chemistry", "math"}))
}

func TestInputHelpers(t *testing.T) {
	in := Input{Fields: map[string]any{
		"list":  []any{"a", " b ", ""},
		"csv":   "x, y,,z",
		"hours": "7",
		"float": 3.0,
		"flag":  "true",
		"empty": "  ",
	}}
	assert.Equal(t, []string{"a", "b"}, in.Strings("list"))
	assert.Equal(t, []string{"x", "y", "z"}, in.Strings("csv"))
	assert.Empty(t, in.Strings("missing"))
	assert.Equal(t, 7, in.Int("hours", 1))
	assert.Equal(t, 3, in.Int("float", 1))
	assert.Equal(t, 1, in.Int("missing", 1))
	assert.True(t, in.Bool("flag"))
	assert.False(t, in.Bool("missing"))
	assert.Equal(t, "fallback", in.String("empty", "fallback"))
}

func TestCurrentInput(t *testing.T) {
	assert.Equal(t, Input{}, CurrentInput(nil))

	sess := core.NewSession("s1")
	sess.AppendTurn(core.Turn{RunID: "r1", Input: "old"})
	sess.AppendTurn(core.Turn{RunID: "r2", Input: "new", Fields: map[string]any{"k": "v"}})
	in := CurrentInput(sess)
	assert.Equal(t, "r2", in.RunID)
	assert.Equal(t, "new", in.Text)
	assert.Equal(t, "v", in.Fields["k"])
}

func contains(list []string, s string) bool {
	for _, e := range list {
		if e == s {
			return true
		}
	}
	return false
}

package agent

import (
	"math"
	"slices"
	"strings"
)

// Mood scores on a 1-10 scale.
const (
	MoodPositive = 8
	MoodNeutral  = 5
	MoodNegative = 3
)

var (
	positiveEmotions = []string{"happy", "joy", "excited", "grateful", "peaceful", "content"}
	negativeEmotions = []string{"sad", "angry", "anxious", "stressed", "frustrated", "overwhelmed"}
)

// MoodScore estimates a mood score for an emotion name.
func MoodScore(emotion string) int {
	e := strings.ToLower(strings.TrimSpace(emotion))
	switch {
	case slices.Contains(positiveEmotions, e):
		return MoodPositive
	case slices.Contains(negativeEmotions, e):
		return MoodNegative
	default:
		return MoodNeutral
	}
}

// moodImportance ranks emotional patterns: strong moods in either direction
// are worth remembering longer than neutral ones.
func moodImportance(score int) float64 {
	return 0.5 + math.Abs(float64(score-MoodNeutral))/10
}

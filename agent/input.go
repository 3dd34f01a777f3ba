package agent

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/hupe1980/saathi/core"
)

// Input is the current turn as an agent sees it: the user's text plus the
// structured fields submitted with it.
type Input struct {
	RunID  string
	Text   string
	Fields map[string]any
}

// CurrentInput returns the latest turn of sess. The orchestrator appends the
// in-flight turn to the session copy it hands to the graph, so during a run
// this is the turn being answered.
func CurrentInput(sess *core.Session) Input {
	if sess == nil {
		return Input{}
	}
	turns := sess.GetTurns()
	if len(turns) == 0 {
		return Input{}
	}
	t := turns[len(turns)-1]
	return Input{RunID: t.RunID, Text: t.Input, Fields: core.CloneMap(t.Fields)}
}

// String returns a string field, or def when it is missing or empty.
func (in Input) String(key, def string) string {
	v, ok := in.Fields[key]
	if !ok || v == nil {
		return def
	}
	s := strings.TrimSpace(fmt.Sprint(v))
	if s == "" {
		return def
	}
	return s
}

// Strings returns a list field. Lists may arrive as []string, []any or a
// comma separated string.
func (in Input) Strings(key string) []string {
	var raw []string
	switch v := in.Fields[key].(type) {
	case []string:
		raw = v
	case []any:
		for _, e := range v {
			raw = append(raw, fmt.Sprint(e))
		}
	case string:
		raw = strings.Split(v, ",")
	}
	out := make([]string, 0, len(raw))
	for _, s := range raw {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// Int returns a numeric field, or def when it is missing or not a number.
func (in Input) Int(key string, def int) int {
	if n, ok := toInt(in.Fields[key]); ok {
		return n
	}
	return def
}

// Bool returns a boolean field. Missing fields are false.
func (in Input) Bool(key string) bool {
	switch v := in.Fields[key].(type) {
	case bool:
		return v
	case string:
		b, _ := strconv.ParseBool(v)
		return b
	default:
		return false
	}
}

func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case uint64:
		return int(n), true
	case float64:
		return int(n), true
	case string:
		i, err := strconv.Atoi(strings.TrimSpace(n))
		return i, err == nil
	default:
		return 0, false
	}
}

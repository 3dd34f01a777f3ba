package agent

import "github.com/hupe1980/saathi/core"

// ToneOK accepts outputs without validator issues whose text passes the tone
// check. Degraded outputs are accepted: retrying a fallback does not help.
func ToneOK(out core.Output) bool {
	if out.Degraded {
		return true
	}
	return len(out.Issues) == 0 && ValidateTone(out.Text).Valid
}

// ClarityOK accepts outputs without validator issues whose text passes the
// clarity check.
func ClarityOK(out core.Output) bool {
	if out.Degraded {
		return true
	}
	return len(out.Issues) == 0 && ValidateClarity(out.Text).Clear
}

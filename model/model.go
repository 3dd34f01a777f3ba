package model

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"
)

// Request captures the normalized reasoning input produced by agents.
type Request struct {
	Instructions string         `json:"instructions"` // System style instructions
	Prompt       string         `json:"prompt"`       // The user facing prompt
	Context      map[string]any `json:"context,omitempty"`
	// Temperature overrides the adapter default when > 0.
	Temperature float64 `json:"temperature,omitempty"`
	// MaxTokens overrides the adapter default when > 0.
	MaxTokens int `json:"max_tokens,omitempty"`
}

// TokenUsage captures token usage statistics for a response.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Response is a completed generation.
type Response struct {
	Text         string     `json:"text"`
	FinishReason string     `json:"finish_reason"` // "stop", "length", ...
	Usage        TokenUsage `json:"usage"`
}

// Info contains metadata about a model implementation.
type Info struct {
	Name     string `json:"name"`
	Provider string `json:"provider"` // "openai", "anthropic", "gemini", "mock"
}

// Model is the minimal reasoning capability: infer(prompt, context) → text.
// Implementations should honor ctx cancellation. The gateway abandons calls
// that overrun their deadline.
type Model interface {
	Infer(ctx context.Context, req Request) (Response, error)

	// Info returns information about the model implementation.
	Info() Info
}

// UserText renders the prompt followed by the context as sorted "key: value"
// lines. Adapters use it to flatten a Request into a single user message.
func UserText(req Request) string {
	if len(req.Context) == 0 {
		return req.Prompt
	}
	var b strings.Builder
	b.WriteString(req.Prompt)
	b.WriteString("\n\nContext:\n")
	for _, k := range slices.Sorted(maps.Keys(req.Context)) {
		fmt.Fprintf(&b, "- %s: %v\n", k, req.Context[k])
	}
	return strings.TrimRight(b.String(), "\n")
}

// Step is one scripted MockModel reply.
type Step struct {
	Text  string
	Err   error
	Delay time.Duration
}

// MockModel is a lightweight in‑memory Model useful for tests & examples.
// Replies are taken from a script in order; once the script is consumed the
// model falls back to canned per-prompt responses and finally echoes the
// prompt.
type MockModel struct {
	info      Info
	mu        sync.Mutex
	script    []Step
	responses map[string]string
	calls     []Request
}

// NewMockModel constructs a MockModel.
func NewMockModel(name string) *MockModel {
	return &MockModel{
		info:      Info{Name: name, Provider: "mock"},
		responses: make(map[string]string),
	}
}

// AddResponse registers a deterministic canned completion for a prompt.
func (m *MockModel) AddResponse(prompt, response string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses[prompt] = response
}

// Script appends scripted replies consumed one per Infer call.
func (m *MockModel) Script(steps ...Step) *MockModel {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.script = append(m.script, steps...)
	return m
}

// Calls returns a copy of every request received so far.
func (m *MockModel) Calls() []Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.calls)
}

// Infer implements Model.
func (m *MockModel) Infer(ctx context.Context, req Request) (Response, error) {
	m.mu.Lock()
	m.calls = append(m.calls, req)
	var step Step
	if len(m.script) > 0 {
		step = m.script[0]
		m.script = m.script[1:]
	} else if canned, ok := m.responses[req.Prompt]; ok {
		step.Text = canned
	} else {
		step.Text = fmt.Sprintf("Mock response to: %s", req.Prompt)
	}
	m.mu.Unlock()

	if step.Delay > 0 {
		t := time.NewTimer(step.Delay)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return Response{}, ctx.Err()
		case <-t.C:
		}
	}
	if err := ctx.Err(); err != nil {
		return Response{}, err
	}
	if step.Err != nil {
		return Response{}, step.Err
	}

	words := len(strings.Fields(step.Text))
	return Response{
		Text:         step.Text,
		FinishReason: "stop",
		Usage:        TokenUsage{CompletionTokens: words, TotalTokens: words},
	}, nil
}

// Info implements Model interface.
func (m *MockModel) Info() Info { return m.info }

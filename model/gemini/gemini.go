// Package gemini provides a model.Model backed by the Google Gen AI SDK
// (Gemini API).
package gemini

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/genai"

	"github.com/hupe1980/saathi/model"
)

var _ model.Model = (*Model)(nil)

// Options configures the Gemini adapter.
type Options struct {
	Model           string
	APIKey          string
	Temperature     float32
	MaxOutputTokens int32
}

// Model wraps genai.Client.Models.GenerateContent.
type Model struct {
	client *genai.Client
	opts   Options
}

func defaultOptions() Options {
	return Options{
		Model:           "gemini-2.0-flash",
		Temperature:     0.7,
		MaxOutputTokens: 1024,
	}
}

// NewModel creates a Gemini client. Without an explicit APIKey the SDK reads
// GOOGLE_API_KEY / GEMINI_API_KEY.
func NewModel(ctx context.Context, optFns ...func(o *Options)) (*Model, error) {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  opts.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}
	return &Model{client: client, opts: opts}, nil
}

// NewModelFromClient wraps an existing client.
func NewModelFromClient(client *genai.Client, optFns ...func(o *Options)) *Model {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Model{client: client, opts: opts}
}

// Infer implements model.Model.
func (m *Model) Infer(ctx context.Context, req model.Request) (model.Response, error) {
	temperature := m.opts.Temperature
	if req.Temperature > 0 {
		temperature = float32(req.Temperature)
	}
	maxTokens := m.opts.MaxOutputTokens
	if req.MaxTokens > 0 {
		maxTokens = int32(req.MaxTokens)
	}

	cfg := &genai.GenerateContentConfig{
		Temperature:     genai.Ptr(temperature),
		MaxOutputTokens: maxTokens,
	}
	if req.Instructions != "" {
		cfg.SystemInstruction = genai.NewContentFromText(req.Instructions, genai.RoleUser)
	}

	contents := []*genai.Content{genai.NewContentFromText(model.UserText(req), genai.RoleUser)}
	resp, err := m.client.Models.GenerateContent(ctx, m.opts.Model, contents, cfg)
	if err != nil {
		return model.Response{}, fmt.Errorf("gemini api error: %w", err)
	}
	if len(resp.Candidates) == 0 {
		return model.Response{}, errors.New("gemini: no candidates returned")
	}

	out := model.Response{
		Text:         resp.Text(),
		FinishReason: string(resp.Candidates[0].FinishReason),
	}
	if u := resp.UsageMetadata; u != nil {
		out.Usage = model.TokenUsage{
			PromptTokens:     int(u.PromptTokenCount),
			CompletionTokens: int(u.CandidatesTokenCount),
			TotalTokens:      int(u.TotalTokenCount),
		}
	}
	return out, nil
}

// Info returns metadata about this model implementation.
func (m *Model) Info() model.Info {
	return model.Info{Name: m.opts.Model, Provider: "gemini"}
}

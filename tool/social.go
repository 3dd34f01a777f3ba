package tool

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"
)

// SocialToolName is the registry name of the social tool.
const SocialToolName = "social"

// Operation names of the social tool.
const (
	OpFormat  = "format"
	OpPublish = "publish"
)

// PlatformFormat describes one platform's post constraints.
type PlatformFormat struct {
	MaxLength int
	Hashtags  int
	Style     string
}

// Platforms lists the supported platforms.
var Platforms = map[string]PlatformFormat{
	"twitter":   {MaxLength: 280, Hashtags: 3, Style: "concise, engaging"},
	"linkedin":  {MaxLength: 1300, Hashtags: 5, Style: "professional, insightful"},
	"instagram": {MaxLength: 2200, Hashtags: 10, Style: "inspirational, visual"},
}

// DefaultHashtags are appended to formatted posts, limited per platform.
var DefaultHashtags = []string{"EmpathyTech", "AIForGood", "AgentSaathi"}

// FormatPost shapes content for platform: content longer than MaxLength/6
// words is truncated with "..." and the platform's share of DefaultHashtags
// is appended after a blank line.
func FormatPost(content, platform string) (string, error) {
	f, ok := Platforms[platform]
	if !ok {
		return "", fmt.Errorf("unknown platform %q", platform)
	}

	words := strings.Fields(content)
	if maxWords := f.MaxLength / 6; len(words) > maxWords {
		content = strings.Join(words[:maxWords], " ") + "..."
	}

	n := min(f.Hashtags, len(DefaultHashtags))
	tags := make([]string, n)
	for i := range n {
		tags[i] = "#" + DefaultHashtags[i]
	}

	return content + "\n\n" + strings.Join(tags, " "), nil
}

// FormatAll formats content for every platform.
func FormatAll(content string) map[string]string {
	out := make(map[string]string, len(Platforms))
	for _, p := range slices.Sorted(maps.Keys(Platforms)) {
		out[p], _ = FormatPost(content, p)
	}
	return out
}

// Receipt acknowledges a published post.
type Receipt struct {
	Platform    string    `json:"platform"`
	ID          string    `json:"id"`
	PublishedAt time.Time `json:"published_at"`
}

// Publisher posts text to a social platform.
type Publisher interface {
	Publish(ctx context.Context, platform, text string) (Receipt, error)
}

// PublisherFunc adapts a function to Publisher.
type PublisherFunc func(ctx context.Context, platform, text string) (Receipt, error)

// Publish calls f.
func (f PublisherFunc) Publish(ctx context.Context, platform, text string) (Receipt, error) {
	return f(ctx, platform, text)
}

// Outbox is an in-memory Publisher that keeps every post. It stands in for
// real platform clients in tests and offline runs.
type Outbox struct {
	mu    sync.Mutex
	posts []Receipt
	texts []string
}

// Publish records the post.
func (o *Outbox) Publish(_ context.Context, platform, text string) (Receipt, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	r := Receipt{Platform: platform, ID: fmt.Sprintf("%s-%d", platform, len(o.posts)+1), PublishedAt: time.Now().UTC()}
	o.posts = append(o.posts, r)
	o.texts = append(o.texts, text)
	return r, nil
}

// Posts returns the published texts in order.
func (o *Outbox) Posts() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return slices.Clone(o.texts)
}

// NewSocialTool creates the social tool. A nil publisher leaves publish
// unavailable while format keeps working.
func NewSocialTool(pub Publisher) *FunctionTool {
	return NewFunctionTool(SocialToolName, "Format posts per platform and publish them").
		Handle(OpFormat, `{
			"type": "object",
			"required": ["content"],
			"properties": {
				"content": {"type": "string"},
				"platform": {"enum": ["twitter", "linkedin", "instagram"]}
			}
		}`, func(ctx context.Context, args map[string]any) (any, error) {
			content := args["content"].(string)
			if p, ok := args["platform"].(string); ok {
				post, err := FormatPost(content, p)
				if err != nil {
					return nil, err
				}
				return map[string]string{p: post}, nil
			}
			return FormatAll(content), ctx.Err()
		}).
		Handle(OpPublish, `{
			"type": "object",
			"required": ["platform", "text"],
			"properties": {
				"platform": {"enum": ["twitter", "linkedin", "instagram"]},
				"text": {"type": "string", "minLength": 1}
			}
		}`, func(ctx context.Context, args map[string]any) (any, error) {
			if pub == nil {
				return nil, &ToolError{Tool: SocialToolName, Op: OpPublish, Message: "no publisher configured", Code: CodeUnavailable, Err: ErrToolUnavailable}
			}
			platform, text := args["platform"].(string), args["text"].(string)
			if f := Platforms[platform]; len(text) > f.MaxLength {
				return nil, NewToolError(SocialToolName, OpPublish, fmt.Sprintf("post exceeds %d characters", f.MaxLength), CodeValidation)
			}
			return pub.Publish(ctx, platform, text)
		})
}

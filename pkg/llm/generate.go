package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/tmc/langchaingo/llms"

	"github.com/g0da-s/vettd/pkg/retry"
)

// Generator wraps a chat model for JSON-mode generation validated against
// a schema. Transport errors are retried by the policy; validation
// failures get a fresh generation attempt, up to maxValidationAttempts.
type Generator struct {
	Model     llms.Model
	ModelName string
	Retry     retry.Policy
	Logger    *slog.Logger
}

const maxValidationAttempts = 3

func (g *Generator) logger() *slog.Logger {
	if g.Logger != nil {
		return g.Logger
	}
	return slog.Default()
}

// GenerateJSON asks the model for a JSON object matching schema and
// returns the raw payload once it validates.
func (g *Generator) GenerateJSON(ctx context.Context, system, user string, schema *Schema) (json.RawMessage, error) {
	prompts := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, system+"\n\n# Response Format\n\n"+schema.PromptJSON()),
		llms.TextParts(llms.ChatMessageTypeHuman, user),
	}

	var lastErr error
	for attempt := 1; attempt <= maxValidationAttempts; attempt++ {
		if attempt > 1 {
			g.logger().Warn("Retrying JSON generation", "attempt", attempt, "last_error", lastErr)
		}

		opts := []llms.CallOption{llms.WithJSONMode()}
		if g.ModelName != "" {
			opts = append(opts, llms.WithModel(g.ModelName))
		}

		var resp *llms.ContentResponse
		err := g.Retry.Do(ctx, "model call", func() error {
			var callErr error
			resp, callErr = g.Model.GenerateContent(ctx, prompts, opts...)
			return callErr
		})
		if err != nil {
			return nil, err
		}
		if len(resp.Choices) == 0 {
			lastErr = fmt.Errorf("model returned no choices")
			continue
		}

		raw := json.RawMessage(stripFences(resp.Choices[0].Content))
		if err := schema.Validate(raw); err != nil {
			lastErr = err
			continue
		}
		return raw, nil
	}

	return nil, fmt.Errorf("generation failed after %d attempts: %w", maxValidationAttempts, lastErr)
}

// stripFences removes a markdown code fence if the model wrapped its JSON
// in one despite JSON mode.
func stripFences(content string) string {
	trimmed := strings.TrimSpace(content)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	trimmed = strings.TrimPrefix(trimmed, "```json")
	trimmed = strings.TrimPrefix(trimmed, "```")
	trimmed = strings.TrimSuffix(strings.TrimSpace(trimmed), "```")
	return strings.TrimSpace(trimmed)
}

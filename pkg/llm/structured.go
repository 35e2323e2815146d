package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"google.golang.org/genai"

	"github.com/g0da-s/vettd/pkg/retry"
)

// StructuredClient performs single-shot structured generation through
// genai's response-schema support. Used by the synthesis agent, which
// needs no tools.
type StructuredClient struct {
	Client *genai.Client
	Model  string
	Retry  retry.Policy
	Logger *slog.Logger
}

func (c *StructuredClient) GenerateStructured(ctx context.Context, system, prompt string, schema *Schema) (json.RawMessage, error) {
	cfg := &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
		ResponseSchema:   schema.Genai(),
	}
	if system != "" {
		cfg.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: system}}}
	}

	var resp *genai.GenerateContentResponse
	err := c.Retry.Do(ctx, "structured generation", func() error {
		var callErr error
		resp, callErr = c.Client.Models.GenerateContent(ctx, c.Model, []*genai.Content{
			{Parts: []*genai.Part{{Text: prompt}}},
		}, cfg)
		return callErr
	})
	if err != nil {
		return nil, err
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil, fmt.Errorf("structured generation returned no candidates")
	}

	rawJSON := ""
	for _, part := range resp.Candidates[0].Content.Parts {
		rawJSON += part.Text
	}

	raw := json.RawMessage(stripFences(rawJSON))
	if err := schema.Validate(raw); err != nil {
		return nil, fmt.Errorf("structured generation did not match schema: %w", err)
	}
	return raw, nil
}

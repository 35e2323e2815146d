package clients

import (
	"context"
	"fmt"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/googleai"
	"google.golang.org/genai"
)

// ModelTier selects between the cheap/fast model and the capable/reasoning model.
type ModelTier string

const (
	FastTier      ModelTier = "fast"
	ReasoningTier ModelTier = "reasoning"
)

// Gemini bundles the per-tier chat clients and the genai client used for
// response-schema structured output.
type Gemini struct {
	GenAi *genai.Client

	fast          llms.Model
	fastName      string
	reasoning     llms.Model
	reasoningName string
}

// NewGemini builds clients for both model tiers.
// See https://ai.google.dev/gemini-api/docs/models/gemini for possible models.
func NewGemini(ctx context.Context, apiKey, fastModel, reasoningModel string) (*Gemini, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("GOOGLE_API_KEY is not set")
	}
	fast, err := googleai.New(ctx, googleai.WithAPIKey(apiKey), googleai.WithDefaultModel(fastModel))
	if err != nil {
		return nil, fmt.Errorf("failed to init fast model client: %w", err)
	}
	reasoning, err := googleai.New(ctx, googleai.WithAPIKey(apiKey), googleai.WithDefaultModel(reasoningModel))
	if err != nil {
		return nil, fmt.Errorf("failed to init reasoning model client: %w", err)
	}
	genaiClient, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: apiKey})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}
	return &Gemini{
		GenAi:         genaiClient,
		fast:          fast,
		fastName:      fastModel,
		reasoning:     reasoning,
		reasoningName: reasoningModel,
	}, nil
}

// Model returns the chat client and model name for a tier. Unknown tiers
// get the reasoning model.
func (g *Gemini) Model(tier ModelTier) (llms.Model, string) {
	if tier == FastTier {
		return g.fast, g.fastName
	}
	return g.reasoning, g.reasoningName
}

package agents

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/g0da-s/vettd/pkg/llm"
	"github.com/g0da-s/vettd/pkg/search"
)

// CompetitorAgent maps the competitive landscape: who already solves
// this, at what price, and how users feel about them.
type CompetitorAgent struct {
	Engine   *llm.Engine
	Searcher Searcher
	Logger   *slog.Logger

	MaxIterations       int
	MinToolUses         int
	RecommendedToolUses int
}

var competitorChannels = []search.Channel{
	search.ChannelWeb,
	search.ChannelReview,
	search.ChannelNews,
	search.ChannelFunding,
}

func competitorInstructions(date string) string {
	return fmt.Sprintf(`You are a competitor researcher. Today is %s.
Given a business idea, find the existing products that address the same problem: direct
competitors, close substitutes, and the "do nothing" alternative users settle for. For
each, look for pricing, positioning, and what reviewers praise or complain about. Check
review sites for sentiment and funding databases for how crowded the space is.

When you have gathered enough evidence, call %s with your findings.
%s`, date, llm.SubmitToolName, extractionRules)
}

func (a *CompetitorAgent) Research(ctx context.Context, idea string) (*CompetitorResearch, error) {
	state := newRunState()
	raw, err := a.Engine.RunToolLoop(ctx, llm.LoopConfig{
		Instructions:        competitorInstructions(time.Now().Format("2006-01-02")),
		Task:                "Idea: " + idea,
		Tools:               searchTools(a.Searcher, state, competitorChannels),
		OutputSchema:        CompetitorSchema(),
		MaxIterations:       a.MaxIterations,
		MinToolUses:         a.MinToolUses,
		RecommendedToolUses: a.RecommendedToolUses,
	})
	if err != nil {
		return nil, fmt.Errorf("competitor research failed: %w", err)
	}

	var out CompetitorResearch
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("competitor research returned malformed json: %w", err)
	}
	out.Normalize()
	if len(out.SearchQueriesUsed) == 0 {
		out.SearchQueriesUsed = state.queriesUsed()
	}
	return &out, nil
}

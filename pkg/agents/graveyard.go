package agents

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/g0da-s/vettd/pkg/llm"
	"github.com/g0da-s/vettd/pkg/search"
)

// GraveyardAgent looks for prior attempts at the same idea that failed,
// using the two-phase flow with quality-gated retries.
type GraveyardAgent struct {
	runner     *twoPhaseRunner
	maxRetries int
}

func NewGraveyardAgent(planner *QueryPlanner, extractor *llm.Generator, searcher Searcher, logger *slog.Logger, maxRetries int) *GraveyardAgent {
	return &GraveyardAgent{
		runner:     &twoPhaseRunner{planner: planner, extractor: extractor, searcher: searcher, logger: logger},
		maxRetries: maxRetries,
	}
}

func graveyardExtraction(date string) string {
	return fmt.Sprintf(`You are a startup post-mortem researcher. Today is %s.
From the search results, extract prior products that attempted the same idea and failed:
shutdowns, pivots, abandoned projects. Capture why each one failed according to the
evidence, and the pitfalls repeated across them.
%s`, date, extractionRules)
}

func graveyardAllocate(retryRound int, queries []string) []search.Query {
	var tasks []search.Query
	for i, q := range queries {
		tasks = append(tasks, search.Query{Text: q, Channel: search.ChannelWeb})
		if i < 3 {
			tasks = append(tasks, search.Query{Text: q, Channel: search.ChannelForum})
		}
		if i < 2 {
			tasks = append(tasks, search.Query{Text: q, Channel: search.ChannelTechnical})
		}
		if i < 1 {
			tasks = append(tasks, search.Query{Text: q, Channel: search.ChannelNews})
		}
		if retryRound > 0 && i < 2 {
			tasks = append(tasks,
				search.Query{Text: q, Channel: search.ChannelSocial},
				search.Query{Text: q, Channel: search.ChannelVideo})
		}
	}
	return tasks
}

func (a *GraveyardAgent) Research(ctx context.Context, idea string) (*GraveyardResearch, error) {
	cfg := twoPhaseConfig{
		name:       "graveyard",
		queryFocus: "Bias toward failure evidence: \"shut down\", \"post-mortem\", \"why X failed\", \"alternatives to\", \"what happened to\".",
		extraction: graveyardExtraction,
		schema:     GraveyardSchema(),
		allocate:   graveyardAllocate,
		countFindings: func(raw json.RawMessage) int {
			var out GraveyardResearch
			if err := json.Unmarshal(raw, &out); err != nil {
				return 0
			}
			return len(out.Attempts)
		},
		minFindings: 2,
		maxRetries:  a.maxRetries,
	}

	raw, queries, err := a.runner.run(ctx, cfg, idea)
	if err != nil {
		return nil, fmt.Errorf("graveyard research failed: %w", err)
	}

	var out GraveyardResearch
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("graveyard research returned malformed json: %w", err)
	}
	out.Normalize()
	out.SearchQueriesUsed = queries
	out.LowEvidence = len(out.Attempts) < cfg.minFindings
	return &out, nil
}

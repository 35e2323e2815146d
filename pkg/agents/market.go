package agents

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/g0da-s/vettd/pkg/llm"
	"github.com/g0da-s/vettd/pkg/search"
)

// MarketAgent gathers market sizing and distribution signals through the
// two-phase query-then-extract flow with quality-gated retries.
type MarketAgent struct {
	runner     *twoPhaseRunner
	maxRetries int
}

func NewMarketAgent(planner *QueryPlanner, extractor *llm.Generator, searcher Searcher, logger *slog.Logger, maxRetries int) *MarketAgent {
	return &MarketAgent{
		runner:     &twoPhaseRunner{planner: planner, extractor: extractor, searcher: searcher, logger: logger},
		maxRetries: maxRetries,
	}
}

func marketExtraction(date string) string {
	return fmt.Sprintf(`You are a market-intelligence analyst. Today is %s.
From the search results, extract market size, growth direction, the channels where
target users congregate, and concrete demand signals (search interest, funding rounds,
hiring, waitlists).
%s`, date, extractionRules)
}

func marketAllocate(retryRound int, queries []string) []search.Query {
	var tasks []search.Query
	for i, q := range queries {
		tasks = append(tasks, search.Query{Text: q, Channel: search.ChannelWeb})
		if i < 3 {
			tasks = append(tasks, search.Query{Text: q, Channel: search.ChannelNews})
		}
		if i < 2 {
			tasks = append(tasks, search.Query{Text: q, Channel: search.ChannelFunding})
		}
		if i < 1 {
			tasks = append(tasks, search.Query{Text: q, Channel: search.ChannelJobs})
		}
		// Retry rounds widen into social and video.
		if retryRound > 0 && i < 2 {
			tasks = append(tasks,
				search.Query{Text: q, Channel: search.ChannelSocial},
				search.Query{Text: q, Channel: search.ChannelVideo})
		}
	}
	return tasks
}

func (a *MarketAgent) Research(ctx context.Context, idea string) (*MarketIntelligence, error) {
	cfg := twoPhaseConfig{
		name:       "market",
		queryFocus: "Bias toward market sizing and demand: \"market size\", \"industry report\", \"growth\", funding and hiring terms.",
		extraction: marketExtraction,
		schema:     MarketSchema(),
		allocate:   marketAllocate,
		countFindings: func(raw json.RawMessage) int {
			var out MarketIntelligence
			if err := json.Unmarshal(raw, &out); err != nil {
				return 0
			}
			return len(out.DemandSignals)
		},
		minFindings: 2,
		maxRetries:  a.maxRetries,
	}

	raw, queries, err := a.runner.run(ctx, cfg, idea)
	if err != nil {
		return nil, fmt.Errorf("market research failed: %w", err)
	}

	var out MarketIntelligence
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("market research returned malformed json: %w", err)
	}
	out.Normalize()
	out.SearchQueriesUsed = queries
	out.LowEvidence = len(out.DemandSignals) < cfg.minFindings
	return &out, nil
}

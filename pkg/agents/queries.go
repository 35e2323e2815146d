package agents

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/g0da-s/vettd/pkg/llm"
)

// QueryPlanner generates diverse natural-language search queries on the
// fast model tier.
type QueryPlanner struct {
	Gen *llm.Generator
}

func queriesSchema() *llm.Schema {
	return llm.Object(map[string]*llm.Schema{
		"queries": llm.Array("Diverse natural-language search queries", llm.String("")),
	}, "queries")
}

// Plan produces an initial query set biased toward the agent's evidence
// type (focus describes the bias, e.g. complaint-style phrasing).
func (p *QueryPlanner) Plan(ctx context.Context, focus, idea string, count int) ([]string, error) {
	system := fmt.Sprintf(`You are a search query planner for startup idea research.
Generate %d diverse search queries a researcher would type into a web search engine.
%s
Vary the phrasing: questions, keyword combinations, and natural sentences. No duplicates.`, count, focus)

	return p.generate(ctx, system, "Idea: "+idea)
}

// Broaden produces a wider replacement set after a low-evidence round.
// Prior queries are listed so the model does not repeat them.
func (p *QueryPlanner) Broaden(ctx context.Context, focus, idea string, prior []string, count int) ([]string, error) {
	system := fmt.Sprintf(`You are a search query planner for startup idea research.
An earlier round of research found too little evidence. Generate %d NEW search queries
that cast a wider net: broader terms, adjacent problems, different communities and phrasings.
%s
Do NOT repeat or lightly rephrase any of the previous queries.`, count, focus)

	user := fmt.Sprintf("Idea: %s\n\nPrevious queries (do not repeat):\n- %s",
		idea, strings.Join(prior, "\n- "))
	return p.generate(ctx, system, user)
}

func (p *QueryPlanner) generate(ctx context.Context, system, user string) ([]string, error) {
	raw, err := p.Gen.GenerateJSON(ctx, system, user, queriesSchema())
	if err != nil {
		return nil, fmt.Errorf("query generation failed: %w", err)
	}

	var resp struct {
		Queries []string `json:"queries"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("query generation returned malformed json: %w", err)
	}

	var queries []string
	seen := make(map[string]bool)
	for _, q := range resp.Queries {
		q = strings.TrimSpace(q)
		key := strings.ToLower(q)
		if q == "" || seen[key] {
			continue
		}
		seen[key] = true
		queries = append(queries, q)
	}
	if len(queries) == 0 {
		return nil, fmt.Errorf("query generation produced no usable queries")
	}
	return queries, nil
}

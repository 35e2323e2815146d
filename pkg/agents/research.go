package agents

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/g0da-s/vettd/pkg/llm"
	"github.com/g0da-s/vettd/pkg/search"
)

// ErrInsufficientData means the search infrastructure itself failed past
// the tolerable threshold; it is distinct from "we searched and found
// little", which only sets the low_evidence flag.
var ErrInsufficientData = errors.New("insufficient data: too many search tasks failed")

// Searcher is the slice of the search gateway the agents need.
type Searcher interface {
	Search(ctx context.Context, query string, channel search.Channel) ([]search.Result, error)
	MultiSearch(ctx context.Context, queries []search.Query) ([]search.Result, int)
}

// snippetCap bounds how many formatted snippets the extraction prompt
// may contain.
const snippetCap = 50

// twoPhaseConfig describes one query-then-extract agent.
type twoPhaseConfig struct {
	name          string
	queryFocus    string
	extraction    func(date string) string
	schema        *llm.Schema
	allocate      func(retryRound int, queries []string) []search.Query
	countFindings func(raw json.RawMessage) int
	minFindings   int
	maxRetries    int
}

// twoPhaseRunner implements the generic flow: query generation, parallel
// multi-source search, extraction, and a quality-gated broadened retry
// loop that merges rather than discards earlier partial findings.
type twoPhaseRunner struct {
	planner   *QueryPlanner
	extractor *llm.Generator
	searcher  Searcher
	logger    *slog.Logger
}

func (r *twoPhaseRunner) run(ctx context.Context, cfg twoPhaseConfig, idea string) (json.RawMessage, []string, error) {
	logger := r.logger
	if logger == nil {
		logger = slog.Default()
	}
	date := time.Now().Format("2006-01-02")

	var usedQueries []string
	var prior json.RawMessage
	for round := 0; round <= cfg.maxRetries; round++ {
		var queries []string
		var err error
		if round == 0 {
			queries, err = r.planner.Plan(ctx, cfg.queryFocus, idea, 8)
		} else {
			queries, err = r.planner.Broaden(ctx, cfg.queryFocus, idea, usedQueries, 8)
		}
		if err != nil {
			return nil, usedQueries, err
		}
		usedQueries = append(usedQueries, queries...)

		tasks := cfg.allocate(round, queries)
		results, failed := r.searcher.MultiSearch(ctx, tasks)
		if failed*2 > len(tasks) {
			return nil, usedQueries, fmt.Errorf("%s: %d of %d search tasks failed: %w",
				cfg.name, failed, len(tasks), ErrInsufficientData)
		}
		logger.Info("Search round complete", "agent", cfg.name, "round", round,
			"tasks", len(tasks), "failed", failed, "results", len(results))

		raw, err := r.extractor.GenerateJSON(ctx, cfg.extraction(date), extractionInput(idea, results, prior), cfg.schema)
		if err != nil {
			return nil, usedQueries, fmt.Errorf("%s extraction failed: %w", cfg.name, err)
		}
		prior = raw

		findings := cfg.countFindings(raw)
		if findings >= cfg.minFindings || round == cfg.maxRetries {
			if findings < cfg.minFindings {
				logger.Warn("Returning best partial result after retries",
					"agent", cfg.name, "findings", findings, "min", cfg.minFindings)
			}
			return raw, usedQueries, nil
		}
		logger.Info("Low evidence, broadening queries",
			"agent", cfg.name, "round", round, "findings", findings, "min", cfg.minFindings)
	}
	return prior, usedQueries, nil
}

// extractionInput formats up to snippetCap deduplicated results, plus
// the previous round's partial findings when retrying.
func extractionInput(idea string, results []search.Result, prior json.RawMessage) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Idea: %s\n\nSearch results:\n\n", idea)
	for i, r := range results {
		if i >= snippetCap {
			break
		}
		fmt.Fprintf(&sb, "[%d] %s\nURL: %s\nSource: %s\nSnippet: %s\n\n", i+1, r.Title, r.URL, r.Source, r.Snippet)
	}
	if len(results) == 0 {
		sb.WriteString("(no results)\n\n")
	}
	if prior != nil {
		fmt.Fprintf(&sb, "Findings from the previous round (merge these with the new evidence, do not discard them):\n%s\n", prior)
	}
	return sb.String()
}

// extractionRules is shared prompt text enforcing no fabrication and
// categorical-only classification values.
const extractionRules = `Rules:
- Extract only what the snippets support. Skip vague or unsupported snippets; never fabricate.
- Classification fields must use only their listed categorical values.
- If the evidence is thin, say so via low_evidence instead of padding the output.
- List every search query that contributed evidence in search_queries_used.`

// formatResults renders search results as a tool output for the model.
func formatResults(query string, results []search.Result) string {
	if len(results) == 0 {
		return "No results found for query: " + query
	}
	var sb strings.Builder
	for i, r := range results {
		fmt.Fprintf(&sb, "[%d] %s\nURL: %s\nSnippet: %s\n\n", i+1, r.Title, r.URL, r.Snippet)
	}
	return sb.String()
}

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

// PainAgent discovers real user pain behind an idea. It runs inside the
// tool-loop engine; the evidence gate is its low-evidence defense.
type PainAgent struct {
	Engine   *llm.Engine
	Searcher Searcher
	Logger   *slog.Logger

	MaxIterations       int
	MinToolUses         int
	RecommendedToolUses int
}

var painChannels = []search.Channel{
	search.ChannelForum,
	search.ChannelTechnical,
	search.ChannelSocial,
	search.ChannelWeb,
}

func painInstructions(date string) string {
	return fmt.Sprintf(`You are a pain-discovery researcher. Today is %s.
Given a business idea, find evidence that real people struggle with the problem it claims to solve.
Search forums and social channels for complaint-style posts: "how do I", "is there a tool for",
"frustrated with", "why is it so hard to". Prefer recent, first-hand accounts.

When you have gathered enough evidence, call %s with your findings.
%s`, date, llm.SubmitToolName, extractionRules)
}

func (a *PainAgent) Research(ctx context.Context, idea string) (*PainResearch, error) {
	state := newRunState()
	raw, err := a.Engine.RunToolLoop(ctx, llm.LoopConfig{
		Instructions:        painInstructions(time.Now().Format("2006-01-02")),
		Task:                "Idea: " + idea,
		Tools:               searchTools(a.Searcher, state, painChannels),
		OutputSchema:        PainSchema(),
		MaxIterations:       a.MaxIterations,
		MinToolUses:         a.MinToolUses,
		RecommendedToolUses: a.RecommendedToolUses,
	})
	if err != nil {
		return nil, fmt.Errorf("pain research failed: %w", err)
	}

	var out PainResearch
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("pain research returned malformed json: %w", err)
	}
	out.Normalize()
	if len(out.SearchQueriesUsed) == 0 {
		out.SearchQueriesUsed = state.queriesUsed()
	}
	return &out, nil
}

package agents

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/g0da-s/vettd/pkg/llm"
	"github.com/g0da-s/vettd/pkg/search"
)

// runState accumulates evidence across one tool-loop invocation:
// queries issued, unique results by URL, and execution tallies.
type runState struct {
	mu        sync.Mutex
	queries   []string
	seen      map[string]bool
	results   []search.Result
	succeeded int
	failed    int
}

func newRunState() *runState {
	return &runState{seen: make(map[string]bool)}
}

func (s *runState) record(query string, results []search.Result, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queries = append(s.queries, query)
	if err != nil {
		s.failed++
		return
	}
	s.succeeded++
	for _, r := range results {
		if r.URL == "" || s.seen[r.URL] {
			continue
		}
		s.seen[r.URL] = true
		s.results = append(s.results, r)
	}
}

func (s *runState) queriesUsed() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.queries))
	copy(out, s.queries)
	return out
}

var channelToolDescriptions = map[search.Channel]string{
	search.ChannelWeb:       "Search the general web.",
	search.ChannelForum:     "Search discussion forums (reddit) for first-hand user experiences and complaints.",
	search.ChannelTechnical: "Search technical discussion (hacker news) for builder and early-adopter perspectives.",
	search.ChannelReview:    "Search software review sites (g2, capterra, trustpilot) for product reviews and pricing.",
	search.ChannelNews:      "Search news coverage for announcements, trends and market reports.",
	search.ChannelVideo:     "Search video content (youtube) for tutorials, reviews and demos.",
	search.ChannelSocial:    "Search social posts (x, linkedin) for sentiment and practitioner chatter.",
	search.ChannelJobs:      "Search job listings for hiring signals around this problem.",
	search.ChannelFunding:   "Search funding databases (crunchbase) for companies and investment in this space.",
}

// searchTools builds one loop tool per channel, all funneling through
// the gateway and recording evidence into the shared run state.
func searchTools(searcher Searcher, state *runState, channels []search.Channel) []llm.Tool {
	params := llm.Object(map[string]*llm.Schema{
		"query": llm.String("The search query"),
	}, "query")

	tools := make([]llm.Tool, 0, len(channels))
	for _, channel := range channels {
		channel := channel
		tools = append(tools, llm.Tool{
			Name:        string(channel) + "_search",
			Description: channelToolDescriptions[channel],
			Parameters:  params,
			Execute: func(ctx context.Context, args json.RawMessage) (string, error) {
				var parsed struct {
					Query string `json:"query"`
				}
				if err := json.Unmarshal(args, &parsed); err != nil || parsed.Query == "" {
					return "", fmt.Errorf("arguments must include a non-empty \"query\" string")
				}
				results, err := searcher.Search(ctx, parsed.Query, channel)
				state.record(parsed.Query, results, err)
				if err != nil {
					return "", err
				}
				return formatResults(parsed.Query, results), nil
			},
		})
	}
	return tools
}

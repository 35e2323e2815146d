// Package search issues de-duplicated, site-scoped, cached web queries
// through a generic search provider.
package search

import "context"

// Channel is a named search scope: a client-side query rewrite plus a
// source tag on the results.
type Channel string

const (
	ChannelWeb       Channel = "web"
	ChannelForum     Channel = "forum"
	ChannelTechnical Channel = "technical"
	ChannelReview    Channel = "review"
	ChannelNews      Channel = "news"
	ChannelVideo     Channel = "video"
	ChannelSocial    Channel = "social"
	ChannelJobs      Channel = "jobs"
	ChannelFunding   Channel = "funding"
)

// channelScopes rewrites a bare query into a channel-scoped one.
// ChannelWeb has no scope and passes queries through unchanged.
var channelScopes = map[Channel]string{
	ChannelForum:     "site:reddit.com",
	ChannelTechnical: "site:news.ycombinator.com",
	ChannelReview:    "(site:g2.com OR site:capterra.com OR site:trustpilot.com)",
	ChannelNews:      "(site:techcrunch.com OR site:news.google.com)",
	ChannelVideo:     "site:youtube.com",
	ChannelSocial:    "(site:x.com OR site:linkedin.com)",
	ChannelJobs:      "site:linkedin.com/jobs",
	ChannelFunding:   "site:crunchbase.com",
}

// Result is a single search result. URL is the natural dedup key.
type Result struct {
	Title   string  `json:"title"`
	URL     string  `json:"url"`
	Snippet string  `json:"snippet"`
	Source  Channel `json:"source"`
}

// Query pairs a search string with the channel it should run on.
type Query struct {
	Text    string
	Channel Channel
}

// Provider executes a raw query against the search backend.
type Provider interface {
	Search(ctx context.Context, query string, maxResults int) ([]Result, error)
}

func scopedQuery(query string, channel Channel) string {
	scope := channelScopes[channel]
	if scope == "" {
		return query
	}
	return query + " " + scope
}

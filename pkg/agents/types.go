// Package agents contains the research agents that turn an idea
// description into structured findings, and the synthesis agent that
// turns findings into a verdict.
package agents

import "github.com/g0da-s/vettd/pkg/llm"

// PainPoint is one concrete complaint found in the wild.
type PainPoint struct {
	Description string `json:"description"`
	Severity    string `json:"severity"`
	Quote       string `json:"quote,omitempty"`
	SourceURL   string `json:"source_url,omitempty"`
}

// PainResearch is the pain-discovery agent's output.
type PainResearch struct {
	PainPoints        []PainPoint `json:"pain_points"`
	UserSegments      []string    `json:"user_segments"`
	PrimaryTargetUser string      `json:"primary_target_user"`
	OverallSeverity   string      `json:"overall_severity"`
	LowEvidence       bool        `json:"low_evidence"`
	SearchQueriesUsed []string    `json:"search_queries_used"`
}

func PainSchema() *llm.Schema {
	return llm.Object(map[string]*llm.Schema{
		"pain_points": llm.Array("Concrete pain points with evidence", llm.Object(map[string]*llm.Schema{
			"description": llm.String("What the user struggles with, in one or two sentences"),
			"severity":    llm.StringEnum("How painful this is", SeverityOptions...),
			"quote":       llm.String("A short verbatim quote from the evidence, if available"),
			"source_url":  llm.String("URL of the supporting evidence"),
		}, "description", "severity")),
		"user_segments":       llm.Array("User groups that exhibit this pain", llm.String("")),
		"primary_target_user": llm.String("The single most promising target user"),
		"overall_severity":    llm.StringEnum("Severity across all findings", SeverityOptions...),
		"low_evidence":        llm.Boolean("True if fewer than three concrete pain points were found"),
		"search_queries_used": llm.Array("The search queries that produced this evidence", llm.String("")),
	}, "pain_points", "primary_target_user", "overall_severity", "low_evidence", "search_queries_used")
}

// Competitor is one existing product in the space.
type Competitor struct {
	Name        string   `json:"name"`
	URL         string   `json:"url,omitempty"`
	Pricing     string   `json:"pricing,omitempty"`
	Positioning string   `json:"positioning,omitempty"`
	Sentiment   string   `json:"sentiment"`
	Complaints  []string `json:"complaints,omitempty"`
}

// CompetitorResearch is the competitor-research agent's output.
type CompetitorResearch struct {
	Competitors       []Competitor `json:"competitors"`
	Saturation        string       `json:"saturation"`
	PricingRange      string       `json:"pricing_range,omitempty"`
	Gaps              []string     `json:"gaps"`
	LowEvidence       bool         `json:"low_evidence"`
	SearchQueriesUsed []string     `json:"search_queries_used"`
}

func CompetitorSchema() *llm.Schema {
	return llm.Object(map[string]*llm.Schema{
		"competitors": llm.Array("Existing products addressing the same problem", llm.Object(map[string]*llm.Schema{
			"name":        llm.String("Product name"),
			"url":         llm.String("Product or review page URL"),
			"pricing":     llm.String("Pricing as stated in the evidence, e.g. \"$29/mo\""),
			"positioning": llm.String("How the product positions itself"),
			"sentiment":   llm.StringEnum("User sentiment from reviews", SentimentOptions...),
			"complaints":  llm.Array("Recurring user complaints", llm.String("")),
		}, "name", "sentiment")),
		"saturation":          llm.StringEnum("How crowded the market is", SaturationOptions...),
		"pricing_range":       llm.String("Observed pricing range across competitors"),
		"gaps":                llm.Array("Needs no competitor covers well", llm.String("")),
		"low_evidence":        llm.Boolean("True if fewer than two competitors were found"),
		"search_queries_used": llm.Array("The search queries that produced this evidence", llm.String("")),
	}, "competitors", "saturation", "low_evidence", "search_queries_used")
}

// MarketIntelligence is the market-intelligence agent's output.
type MarketIntelligence struct {
	MarketSize        string   `json:"market_size"`
	GrowthTrend       string   `json:"growth_trend"`
	Channels          []string `json:"channels"`
	DemandSignals     []string `json:"demand_signals"`
	LowEvidence       bool     `json:"low_evidence"`
	SearchQueriesUsed []string `json:"search_queries_used"`
}

func MarketSchema() *llm.Schema {
	return llm.Object(map[string]*llm.Schema{
		"market_size":         llm.String("Market size as stated in the evidence, or \"unknown\""),
		"growth_trend":        llm.StringEnum("Direction of the market", TrendOptions...),
		"channels":            llm.Array("Distribution channels where target users can be reached", llm.String("")),
		"demand_signals":      llm.Array("Concrete signals of demand (search volume, funding, job posts)", llm.String("")),
		"low_evidence":        llm.Boolean("True if fewer than two concrete demand signals were found"),
		"search_queries_used": llm.Array("The search queries that produced this evidence", llm.String("")),
	}, "market_size", "growth_trend", "low_evidence", "search_queries_used")
}

// FailedAttempt is one prior product that tried and failed in the space.
type FailedAttempt struct {
	Name          string `json:"name"`
	Outcome       string `json:"outcome,omitempty"`
	FailureReason string `json:"failure_reason"`
	Year          string `json:"year,omitempty"`
	SourceURL     string `json:"source_url,omitempty"`
}

// GraveyardResearch is the failure-research agent's output.
type GraveyardResearch struct {
	Attempts          []FailedAttempt `json:"attempts"`
	CommonPitfalls    []string        `json:"common_pitfalls"`
	CautionLevel      string          `json:"caution_level"`
	LowEvidence       bool            `json:"low_evidence"`
	SearchQueriesUsed []string        `json:"search_queries_used"`
}

func GraveyardSchema() *llm.Schema {
	return llm.Object(map[string]*llm.Schema{
		"attempts": llm.Array("Prior products that failed or shut down in this space", llm.Object(map[string]*llm.Schema{
			"name":           llm.String("Product name"),
			"outcome":        llm.String("What happened (shut down, pivoted, acquired for parts)"),
			"failure_reason": llm.String("Why it failed, per the evidence"),
			"year":           llm.String("Year of the failure, if stated"),
			"source_url":     llm.String("URL of the supporting evidence"),
		}, "name", "failure_reason")),
		"common_pitfalls":     llm.Array("Patterns repeated across the failures", llm.String("")),
		"caution_level":       llm.StringEnum("How strongly the graveyard warns against this idea", CautionOptions...),
		"low_evidence":        llm.Boolean("True if fewer than two failed attempts were found"),
		"search_queries_used": llm.Array("The search queries that produced this evidence", llm.String("")),
	}, "attempts", "caution_level", "low_evidence", "search_queries_used")
}

// SynthesisResult is the final calibrated verdict.
type SynthesisResult struct {
	Verdict           string   `json:"verdict"`
	Confidence        float64  `json:"confidence"`
	Reasoning         string   `json:"reasoning"`
	KeyRisks          []string `json:"key_risks"`
	NextSteps         []string `json:"next_steps"`
	PaymentLikelihood string   `json:"payment_likelihood"`
	ReachabilityTier  string   `json:"reachability_tier"`
	GapSize           string   `json:"gap_size"`
	Signals           []string `json:"signals"`
}

func SynthesisSchema() *llm.Schema {
	return llm.Object(map[string]*llm.Schema{
		"verdict":            llm.StringEnum("The recommendation", VerdictOptions...),
		"confidence":         llm.Number("Confidence in the verdict, 0 to 1, calibrated to evidence strength"),
		"reasoning":          llm.String("Why this verdict, citing the strongest evidence"),
		"key_risks":          llm.Array("The biggest risks if the idea is pursued", llm.String("")),
		"next_steps":         llm.Array("At least two concrete next steps", llm.String("")),
		"payment_likelihood": llm.StringEnum("How likely target users are to pay", PaymentOptions...),
		"reachability_tier":  llm.StringEnum("How hard target users are to reach", ReachabilityOptions...),
		"gap_size":           llm.StringEnum("Size of the gap left by competitors", GapOptions...),
		"signals":            llm.Array("Notable positive or negative signals from the research", llm.String("")),
	}, "verdict", "confidence", "reasoning", "key_risks", "next_steps",
		"payment_likelihood", "reachability_tier", "gap_size", "signals")
}

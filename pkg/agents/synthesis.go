package agents

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/g0da-s/vettd/pkg/llm"
)

// StructuredGenerator is the single-call structured-output capability
// the synthesis agent needs.
type StructuredGenerator interface {
	GenerateStructured(ctx context.Context, system, prompt string, schema *llm.Schema) (json.RawMessage, error)
}

// SynthesisInput carries the research outputs. Pain and Competitor are
// mandatory; Market and Graveyard may be nil and their context sections
// are then omitted.
type SynthesisInput struct {
	Pain       *PainResearch
	Competitor *CompetitorResearch
	Market     *MarketIntelligence
	Graveyard  *GraveyardResearch
}

// SynthesisAgent produces the final BUILD/SKIP/MAYBE verdict. One model
// call, no tools.
type SynthesisAgent struct {
	Client StructuredGenerator
	Logger *slog.Logger
}

const synthesisInstructions = `You are the final judge of a startup idea validation. You receive research on user
pain, competitors, and optionally market signals and prior failures. Produce a verdict:

- BUILD: strong pain evidence, a reachable target user, and a real gap competitors leave open.
- SKIP: weak or no pain evidence, a saturated market with satisfied users, or a graveyard of
  failures whose causes still apply.
- MAYBE: genuinely mixed evidence, or too little of it to lean either way.

Calibrate confidence against evidence strength; do not cluster around a default:
- 0.8-1.0: multiple corroborating sources on both pain and competition.
- 0.6-0.8: solid evidence on pain and competition, thin elsewhere.
- 0.4-0.6: partial evidence, notable gaps or contradictions.
- below 0.4: sparse or conflicting evidence.
BUILD should come with higher confidence than SKIP, and SKIP higher than MAYBE would
imply; if your confidence is low, the verdict should usually be MAYBE.

Also assess: how likely the target user is to pay, how reachable they are, how large the
competitor gap is, and the notable signals either way. Give at least two concrete next
steps the founder should take. Use only the listed categorical values for
classification fields.`

func (a *SynthesisAgent) Synthesize(ctx context.Context, idea string, in SynthesisInput) (*SynthesisResult, error) {
	if in.Pain == nil || in.Competitor == nil {
		return nil, fmt.Errorf("synthesis requires pain and competitor research")
	}

	raw, err := a.Client.GenerateStructured(ctx, synthesisInstructions, synthesisContext(idea, in), SynthesisSchema())
	if err != nil {
		return nil, fmt.Errorf("synthesis failed: %w", err)
	}

	var out SynthesisResult
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("synthesis returned malformed json: %w", err)
	}
	out.Normalize()
	return &out, nil
}

// synthesisContext builds the single structured context string
// enumerating all available research.
func synthesisContext(idea string, in SynthesisInput) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Idea: %s\n", idea)

	fmt.Fprintf(&sb, "\n## Pain evidence (target user: %s, overall severity: %s, low evidence: %t)\n",
		in.Pain.PrimaryTargetUser, in.Pain.OverallSeverity, in.Pain.LowEvidence)
	for _, p := range in.Pain.PainPoints {
		fmt.Fprintf(&sb, "- [%s] %s", p.Severity, p.Description)
		if p.Quote != "" {
			fmt.Fprintf(&sb, " (%q)", p.Quote)
		}
		sb.WriteString("\n")
	}
	if len(in.Pain.UserSegments) > 0 {
		fmt.Fprintf(&sb, "User segments: %s\n", strings.Join(in.Pain.UserSegments, ", "))
	}

	fmt.Fprintf(&sb, "\n## Competitive landscape (saturation: %s", in.Competitor.Saturation)
	if in.Competitor.PricingRange != "" {
		fmt.Fprintf(&sb, ", pricing range: %s", in.Competitor.PricingRange)
	}
	fmt.Fprintf(&sb, ", low evidence: %t)\n", in.Competitor.LowEvidence)
	for _, c := range in.Competitor.Competitors {
		fmt.Fprintf(&sb, "- %s (sentiment: %s", c.Name, c.Sentiment)
		if c.Pricing != "" {
			fmt.Fprintf(&sb, ", pricing: %s", c.Pricing)
		}
		sb.WriteString(")")
		if c.Positioning != "" {
			fmt.Fprintf(&sb, ": %s", c.Positioning)
		}
		if len(c.Complaints) > 0 {
			fmt.Fprintf(&sb, "; complaints: %s", strings.Join(c.Complaints, "; "))
		}
		sb.WriteString("\n")
	}
	if len(in.Competitor.Gaps) > 0 {
		fmt.Fprintf(&sb, "Gaps: %s\n", strings.Join(in.Competitor.Gaps, "; "))
	}

	if in.Market != nil {
		fmt.Fprintf(&sb, "\n## Market signals (size: %s, trend: %s, low evidence: %t)\n",
			in.Market.MarketSize, in.Market.GrowthTrend, in.Market.LowEvidence)
		for _, s := range in.Market.DemandSignals {
			fmt.Fprintf(&sb, "- %s\n", s)
		}
		if len(in.Market.Channels) > 0 {
			fmt.Fprintf(&sb, "Channels: %s\n", strings.Join(in.Market.Channels, ", "))
		}
	}

	if in.Graveyard != nil {
		fmt.Fprintf(&sb, "\n## Prior failures (caution: %s, low evidence: %t)\n",
			in.Graveyard.CautionLevel, in.Graveyard.LowEvidence)
		for _, a := range in.Graveyard.Attempts {
			fmt.Fprintf(&sb, "- %s: %s", a.Name, a.FailureReason)
			if a.Year != "" {
				fmt.Fprintf(&sb, " (%s)", a.Year)
			}
			sb.WriteString("\n")
		}
		if len(in.Graveyard.CommonPitfalls) > 0 {
			fmt.Fprintf(&sb, "Common pitfalls: %s\n", strings.Join(in.Graveyard.CommonPitfalls, "; "))
		}
	}

	return sb.String()
}

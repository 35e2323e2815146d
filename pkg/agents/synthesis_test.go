package agents

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/g0da-s/vettd/pkg/llm"
)

type fakeStructured struct {
	system string
	prompt string
	raw    string
	err    error
}

func (f *fakeStructured) GenerateStructured(ctx context.Context, system, prompt string, schema *llm.Schema) (json.RawMessage, error) {
	f.system = system
	f.prompt = prompt
	if f.err != nil {
		return nil, f.err
	}
	return json.RawMessage(f.raw), nil
}

func synthesisFixture() SynthesisInput {
	return SynthesisInput{
		Pain: &PainResearch{
			PrimaryTargetUser: "indie developers",
			OverallSeverity:   "high",
			PainPoints: []PainPoint{
				{Description: "deploys keep breaking", Severity: "high", Quote: "I waste hours every week"},
			},
		},
		Competitor: &CompetitorResearch{
			Saturation: "competitive",
			Competitors: []Competitor{
				{Name: "DeployCo", Sentiment: "negative", Pricing: "$49/mo", Complaints: []string{"slow support"}},
			},
			Gaps: []string{"no self-hosted option"},
		},
	}
}

const synthesisPayload = `{
	"verdict": "build",
	"confidence": 0.72,
	"reasoning": "Strong pain with a clear gap.",
	"key_risks": ["incumbent response"],
	"next_steps": ["interview 10 users", "ship a landing page"],
	"payment_likelihood": "likely",
	"reachability_tier": "accessible",
	"gap_size": "wide",
	"signals": ["negative reviews of DeployCo"]
}`

func TestSynthesizeRequiresMandatoryResearch(t *testing.T) {
	agent := &SynthesisAgent{Client: &fakeStructured{raw: synthesisPayload}}

	in := synthesisFixture()
	in.Pain = nil
	_, err := agent.Synthesize(context.Background(), "idea", in)
	require.Error(t, err)

	in = synthesisFixture()
	in.Competitor = nil
	_, err = agent.Synthesize(context.Background(), "idea", in)
	require.Error(t, err)
}

func TestSynthesizeNormalizesVerdict(t *testing.T) {
	agent := &SynthesisAgent{Client: &fakeStructured{raw: synthesisPayload}}

	out, err := agent.Synthesize(context.Background(), "deployment tool", synthesisFixture())
	require.NoError(t, err)
	assert.Equal(t, "BUILD", out.Verdict)
	assert.Equal(t, "high", out.PaymentLikelihood)
	assert.Equal(t, "easy", out.ReachabilityTier)
	assert.Equal(t, "large", out.GapSize)
	assert.InDelta(t, 0.72, out.Confidence, 0.001)
}

func TestSynthesizeOmitsMissingSections(t *testing.T) {
	client := &fakeStructured{raw: synthesisPayload}
	agent := &SynthesisAgent{Client: client}

	_, err := agent.Synthesize(context.Background(), "deployment tool", synthesisFixture())
	require.NoError(t, err)
	assert.Contains(t, client.prompt, "Pain evidence")
	assert.Contains(t, client.prompt, "Competitive landscape")
	assert.NotContains(t, client.prompt, "Market signals")
	assert.NotContains(t, client.prompt, "Prior failures")
}

func TestSynthesizeIncludesOptionalSections(t *testing.T) {
	client := &fakeStructured{raw: synthesisPayload}
	agent := &SynthesisAgent{Client: client}

	in := synthesisFixture()
	in.Market = &MarketIntelligence{
		MarketSize:    "$2B",
		GrowthTrend:   "growing",
		DemandSignals: []string{"rising search interest"},
	}
	in.Graveyard = &GraveyardResearch{
		CautionLevel: "high",
		Attempts:     []FailedAttempt{{Name: "ShipFast", FailureReason: "no distribution", Year: "2021"}},
	}

	_, err := agent.Synthesize(context.Background(), "deployment tool", in)
	require.NoError(t, err)
	assert.Contains(t, client.prompt, "Market signals")
	assert.Contains(t, client.prompt, "ShipFast")
	assert.Contains(t, client.prompt, "no distribution")
}

func TestSynthesizePropagatesClientErrors(t *testing.T) {
	agent := &SynthesisAgent{Client: &fakeStructured{err: errors.New("quota exceeded")}}

	_, err := agent.Synthesize(context.Background(), "idea", synthesisFixture())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "synthesis failed")
}

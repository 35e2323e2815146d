package agents

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeSeverity(t *testing.T) {
	cases := map[string]string{
		"HIGH":               "high",
		"Critical issue":     "critical",
		"moderate/recurring": "moderate",
		"severe":             "critical",
		"minor annoyance":    "low",
		"somewhat painful":   "moderate", // unrecognized falls back
		"":                   "moderate",
	}
	for input, want := range cases {
		assert.Equal(t, want, NormalizeSeverity(input), "input %q", input)
	}
}

func TestNormalizeVerdict(t *testing.T) {
	cases := map[string]string{
		"BUILD":          "BUILD",
		"build":          "BUILD",
		"Build it now":   "BUILD",
		"skip":           "SKIP",
		"hard pass":      "SKIP",
		"avoid this one": "SKIP",
		"maybe":          "MAYBE",
		"unclear":        "MAYBE",
		"something else": "MAYBE",
	}
	for input, want := range cases {
		assert.Equal(t, want, NormalizeVerdict(input), "input %q", input)
	}
}

func TestNormalizeSaturation(t *testing.T) {
	assert.Equal(t, "saturated", NormalizeSaturation("very crowded"))
	assert.Equal(t, "open", NormalizeSaturation("underserved niche"))
	assert.Equal(t, "competitive", NormalizeSaturation("who knows"))
}

func TestNormalizeAlwaysLandsInVocabulary(t *testing.T) {
	inputs := []string{"", "garbage", "CRITICAL!!!", "sort of high-ish", "n/a", "🤷"}
	contains := func(options []string, v string) bool {
		for _, o := range options {
			if o == v {
				return true
			}
		}
		return false
	}
	for _, in := range inputs {
		assert.True(t, contains(SeverityOptions, NormalizeSeverity(in)), "severity %q", in)
		assert.True(t, contains(SentimentOptions, NormalizeSentiment(in)), "sentiment %q", in)
		assert.True(t, contains(TrendOptions, NormalizeTrend(in)), "trend %q", in)
		assert.True(t, contains(VerdictOptions, NormalizeVerdict(in)), "verdict %q", in)
		assert.True(t, contains(GapOptions, NormalizeGap(in)), "gap %q", in)
	}
}

func TestSynthesisResultNormalizeClampsConfidence(t *testing.T) {
	r := &SynthesisResult{Verdict: "go for it", Confidence: 1.7}
	r.Normalize()
	assert.Equal(t, "BUILD", r.Verdict)
	assert.Equal(t, 1.0, r.Confidence)

	r = &SynthesisResult{Verdict: "pass", Confidence: -0.2}
	r.Normalize()
	assert.Equal(t, "SKIP", r.Verdict)
	assert.Equal(t, 0.0, r.Confidence)
}

func TestPainResearchNormalize(t *testing.T) {
	r := &PainResearch{
		OverallSeverity: "Severe",
		PainPoints: []PainPoint{
			{Severity: "BLOCKER"},
			{Severity: "not really sure"},
		},
	}
	r.Normalize()
	assert.Equal(t, "critical", r.OverallSeverity)
	assert.Equal(t, "critical", r.PainPoints[0].Severity)
	assert.Equal(t, "moderate", r.PainPoints[1].Severity)
}

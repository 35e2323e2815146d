package agents

import "strings"

// Closed vocabularies for every categorical field, with the documented
// fallback default listed first in the comment. Model text is matched
// case-insensitively, then by substring, then by synonym; anything
// unrecognized maps to the default.

// SeverityOptions: default "moderate".
var SeverityOptions = []string{"critical", "high", "moderate", "low"}

// SentimentOptions: default "mixed".
var SentimentOptions = []string{"positive", "mixed", "negative"}

// SaturationOptions: default "competitive".
var SaturationOptions = []string{"saturated", "competitive", "open"}

// TrendOptions: default "flat".
var TrendOptions = []string{"growing", "flat", "declining"}

// CautionOptions: default "moderate".
var CautionOptions = []string{"high", "moderate", "low"}

// VerdictOptions: default "MAYBE".
var VerdictOptions = []string{"BUILD", "SKIP", "MAYBE"}

// PaymentOptions: default "medium".
var PaymentOptions = []string{"high", "medium", "low"}

// ReachabilityOptions: default "moderate".
var ReachabilityOptions = []string{"easy", "moderate", "hard"}

// GapOptions: default "moderate".
var GapOptions = []string{"large", "moderate", "small", "none"}

var severitySynonyms = map[string]string{
	"severe":     "critical",
	"blocker":    "critical",
	"urgent":     "high",
	"major":      "high",
	"recurring":  "moderate",
	"medium":     "moderate",
	"occasional": "low",
	"minor":      "low",
	"mild":       "low",
}

var sentimentSynonyms = map[string]string{
	"good":       "positive",
	"favorable":  "positive",
	"loved":      "positive",
	"neutral":    "mixed",
	"bad":        "negative",
	"poor":       "negative",
	"frustrated": "negative",
}

var saturationSynonyms = map[string]string{
	"crowded":      "saturated",
	"oversupplied": "saturated",
	"moderate":     "competitive",
	"medium":       "competitive",
	"underserved":  "open",
	"empty":        "open",
	"greenfield":   "open",
}

var trendSynonyms = map[string]string{
	"expanding": "growing",
	"rising":    "growing",
	"up":        "growing",
	"stable":    "flat",
	"stagnant":  "flat",
	"shrinking": "declining",
	"down":      "declining",
}

var cautionSynonyms = map[string]string{
	"severe":  "high",
	"strong":  "high",
	"medium":  "moderate",
	"mild":    "low",
	"minimal": "low",
}

var paymentSynonyms = map[string]string{
	"likely":   "high",
	"strong":   "high",
	"moderate": "medium",
	"unlikely": "low",
	"weak":     "low",
}

var reachabilitySynonyms = map[string]string{
	"accessible": "easy",
	"simple":     "easy",
	"medium":     "moderate",
	"difficult":  "hard",
	"expensive":  "hard",
}

var gapSynonyms = map[string]string{
	"big":      "large",
	"wide":     "large",
	"medium":   "moderate",
	"narrow":   "small",
	"tiny":     "small",
	"no gap":   "none",
	"nonexist": "none",
}

// normalizeEnum maps free model text onto a closed vocabulary. After
// normalization the value is always one of options.
func normalizeEnum(value string, options []string, synonyms map[string]string, fallback string) string {
	v := strings.ToLower(strings.TrimSpace(value))
	for _, opt := range options {
		if v == strings.ToLower(opt) {
			return opt
		}
	}
	for _, opt := range options {
		if strings.Contains(v, strings.ToLower(opt)) {
			return opt
		}
	}
	for key, opt := range synonyms {
		if strings.Contains(v, key) {
			return opt
		}
	}
	return fallback
}

func NormalizeSeverity(v string) string {
	return normalizeEnum(v, SeverityOptions, severitySynonyms, "moderate")
}

func NormalizeSentiment(v string) string {
	return normalizeEnum(v, SentimentOptions, sentimentSynonyms, "mixed")
}

func NormalizeSaturation(v string) string {
	return normalizeEnum(v, SaturationOptions, saturationSynonyms, "competitive")
}

func NormalizeTrend(v string) string {
	return normalizeEnum(v, TrendOptions, trendSynonyms, "flat")
}

func NormalizeCaution(v string) string {
	return normalizeEnum(v, CautionOptions, cautionSynonyms, "moderate")
}

func NormalizeVerdict(v string) string {
	return strings.ToUpper(normalizeEnum(v, VerdictOptions, map[string]string{
		"go":      "BUILD",
		"pursue":  "BUILD",
		"avoid":   "SKIP",
		"pass":    "SKIP",
		"unclear": "MAYBE",
		"perhaps": "MAYBE",
	}, "MAYBE"))
}

func NormalizePayment(v string) string {
	return normalizeEnum(v, PaymentOptions, paymentSynonyms, "medium")
}

func NormalizeReachability(v string) string {
	return normalizeEnum(v, ReachabilityOptions, reachabilitySynonyms, "moderate")
}

func NormalizeGap(v string) string {
	return normalizeEnum(v, GapOptions, gapSynonyms, "moderate")
}

func (r *PainResearch) Normalize() {
	for i := range r.PainPoints {
		r.PainPoints[i].Severity = NormalizeSeverity(r.PainPoints[i].Severity)
	}
	r.OverallSeverity = NormalizeSeverity(r.OverallSeverity)
}

func (r *CompetitorResearch) Normalize() {
	for i := range r.Competitors {
		r.Competitors[i].Sentiment = NormalizeSentiment(r.Competitors[i].Sentiment)
	}
	r.Saturation = NormalizeSaturation(r.Saturation)
}

func (r *MarketIntelligence) Normalize() {
	r.GrowthTrend = NormalizeTrend(r.GrowthTrend)
}

func (r *GraveyardResearch) Normalize() {
	r.CautionLevel = NormalizeCaution(r.CautionLevel)
}

func (r *SynthesisResult) Normalize() {
	r.Verdict = NormalizeVerdict(r.Verdict)
	r.PaymentLikelihood = NormalizePayment(r.PaymentLikelihood)
	r.ReachabilityTier = NormalizeReachability(r.ReachabilityTier)
	r.GapSize = NormalizeGap(r.GapSize)
	if r.Confidence < 0 {
		r.Confidence = 0
	}
	if r.Confidence > 1 {
		r.Confidence = 1
	}
}

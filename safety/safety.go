// Package safety holds the deterministic guards around generated advice:
// the restricted-substance hard block, the actionable-query safety gate,
// and the confidence combiner. Keyword matching is case-insensitive
// substring matching; the exact lists are behavioral contract.
package safety

import (
	"strings"

	"github.com/agrisage/agrisage/store"
)

// Gate thresholds. Heuristic policy constants, not calibrated
// probabilities.
const (
	// MinProvenanceScore is the retrieval score an actionable answer needs.
	MinProvenanceScore = 0.6

	// MinCombinedConfidence is the combined confidence an actionable
	// answer needs.
	MinCombinedConfidence = 0.5
)

// restrictedKeywords trigger the hard block: any question touching
// chemicals or dosages is escalated to a human expert before retrieval
// runs. "spray", "dose" and "dosage" also appear in actionableKeywords;
// the overlap is intentional, such queries never reach the softer gate.
var restrictedKeywords = []string{
	"pesticide", "insecticide", "fungicide", "herbicide",
	"dose", "dosage", "ppm", "spray", "chemical",
	"poison", "toxic", "ml/acre", "gm/acre",
	"concentration", "dilution",
}

// actionableKeywords mark questions that request a concrete physical
// action and therefore require authoritative backing.
var actionableKeywords = []string{
	"irrigate", "spray", "apply", "plant", "harvest",
	"fertilize", "dose", "timing",
}

// authoritativeSources are the upstream feeds pre-approved as provenance
// for actionable advice.
var authoritativeSources = map[string]bool{
	"weather_forecast":  true,
	"soil_card":         true,
	"market_prices":     true,
	"enam_trades":       true,
	"real_weather_data": true,
	"real_mandi_prices": true,
}

// Decision is the outcome of gating one query.
// Invariant: IsActionableQuery == false implies IsSafe == true.
type Decision struct {
	IsSafe            bool
	IsActionableQuery bool
	BlockReason       string
}

// IsRestricted reports whether the question contains a restricted-substance
// keyword and must be escalated without consulting retrieval or generation.
func IsRestricted(question string) bool {
	return containsAny(question, restrictedKeywords)
}

// IsActionable reports whether the question requests a concrete farming
// action (irrigate, spray, plant, ...).
func IsActionable(question string) bool {
	return containsAny(question, actionableKeywords)
}

// Evaluate decides whether the combined evidence permits an actionable
// answer. Non-actionable queries never need gating. For actionable queries
// all three checks run and every failing check is reported in BlockReason;
// the checks accumulate, they do not short-circuit.
func Evaluate(question string, metas []store.Metadata, retrievalScore, generationConfidence float64) Decision {
	if !IsActionable(question) {
		return Decision{IsSafe: true}
	}

	hasAuthoritative := false
	for _, m := range metas {
		if authoritativeSources[m.Source] {
			hasAuthoritative = true
			break
		}
	}

	combined := Combine(retrievalScore, generationConfidence)

	var reasons []string
	if !hasAuthoritative {
		reasons = append(reasons, "no authoritative source among retrieved documents")
	}
	if retrievalScore < MinProvenanceScore {
		reasons = append(reasons, "retrieval score below provenance threshold")
	}
	if combined < MinCombinedConfidence {
		reasons = append(reasons, "combined confidence below safety threshold")
	}

	return Decision{
		IsSafe:            len(reasons) == 0,
		IsActionableQuery: true,
		BlockReason:       strings.Join(reasons, "; "),
	}
}

func containsAny(text string, terms []string) bool {
	lower := strings.ToLower(text)
	for _, t := range terms {
		if strings.Contains(lower, t) {
			return true
		}
	}
	return false
}
